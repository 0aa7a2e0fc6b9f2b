package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"testing"

	"finance-atp/internal/database"
	"finance-atp/internal/models"

	"github.com/google/uuid"
)

func setupRepositoryTest(t *testing.T) (*Repository, *database.Service, func()) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := database.NewService(ctx, &models.Config{DatabaseURL: url, DatabaseMaxConns: 5})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		t.Fatalf("Failed to initialize schema: %v", err)
	}
	return NewRepository(db.DB()), db, db.Close
}

func TestStart_FreshThenReplay(t *testing.T) {
	repo, db, cleanup := setupRepositoryTest(t)
	defer cleanup()
	ctx := context.Background()

	key := uuid.New()
	hash := ComputeRequestHash([]byte(`{"op":"replay-test"}`))

	outcome, err := repo.Start(ctx, key, hash)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !outcome.Fresh {
		t.Fatal("First claim must be fresh")
	}

	body := json.RawMessage(`{"transfer_id":"abc","status":"completed"}`)
	tx, err := db.DB().BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	if err := repo.MarkCompletedTx(ctx, tx, key, uuid.New(), http.StatusCreated, body); err != nil {
		t.Fatalf("MarkCompletedTx failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	replay, err := repo.Start(ctx, key, hash)
	if err != nil {
		t.Fatalf("Replay Start failed: %v", err)
	}
	if replay.Fresh {
		t.Fatal("Completed key must replay, not re-run")
	}
	if replay.ResponseStatus != http.StatusCreated {
		t.Errorf("Expected cached status 201, got %d", replay.ResponseStatus)
	}
	if string(replay.ResponseBody) != string(body) {
		t.Errorf("Cached body differs:\n%s\n%s", body, replay.ResponseBody)
	}
}

func TestStart_HashMismatch(t *testing.T) {
	repo, _, cleanup := setupRepositoryTest(t)
	defer cleanup()
	ctx := context.Background()

	key := uuid.New()
	if _, err := repo.Start(ctx, key, ComputeRequestHash([]byte("body A"))); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	_, err := repo.Start(ctx, key, ComputeRequestHash([]byte("body B")))
	if !errors.Is(err, ErrHashMismatch) {
		t.Errorf("Expected ErrHashMismatch, got %v", err)
	}
}

func TestStart_InFlight(t *testing.T) {
	repo, _, cleanup := setupRepositoryTest(t)
	defer cleanup()
	ctx := context.Background()

	key := uuid.New()
	hash := ComputeRequestHash([]byte("in flight"))
	if _, err := repo.Start(ctx, key, hash); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// The key is processing and not stale, so a second claim is rejected.
	_, err := repo.Start(ctx, key, hash)
	if !errors.Is(err, ErrInFlight) {
		t.Errorf("Expected ErrInFlight, got %v", err)
	}
}

func TestStart_FailedKeyIsReclaimable(t *testing.T) {
	repo, _, cleanup := setupRepositoryTest(t)
	defer cleanup()
	ctx := context.Background()

	key := uuid.New()
	hash := ComputeRequestHash([]byte("retry me"))
	if _, err := repo.Start(ctx, key, hash); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	repo.MarkFailed(ctx, key)

	outcome, err := repo.Start(ctx, key, hash)
	if err != nil {
		t.Fatalf("Reclaim failed: %v", err)
	}
	if !outcome.Fresh {
		t.Error("A failed key must be claimable again")
	}
}

func TestMaintenanceQueries(t *testing.T) {
	repo, _, cleanup := setupRepositoryTest(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := repo.ResetStale(ctx); err != nil {
		t.Errorf("ResetStale failed: %v", err)
	}
	if _, err := repo.CleanupExpired(ctx); err != nil {
		t.Errorf("CleanupExpired failed: %v", err)
	}
}
