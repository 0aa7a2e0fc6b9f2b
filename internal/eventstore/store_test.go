package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"finance-atp/internal/aggregate"
	"finance-atp/internal/database"
	"finance-atp/internal/domain"
	"finance-atp/internal/models"

	"github.com/google/uuid"
)

// setupTestStore connects to the database named by TEST_DATABASE_URL and
// initializes the schema. Tests are skipped when the variable is unset.
func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	svc, err := database.NewService(ctx, &models.Config{DatabaseURL: url, DatabaseMaxConns: 5})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := svc.InitSchema(ctx); err != nil {
		svc.Close()
		t.Fatalf("Failed to initialize schema: %v", err)
	}
	return NewStore(svc.DB()), svc.Close
}

func newTestAccountOp(accountID uuid.UUID, expectedVersion int64, events ...domain.Event) AggregateOperation {
	return AggregateOperation{
		AggregateType:   domain.AggregateTypeAccount,
		AggregateID:     accountID,
		ExpectedVersion: expectedVersion,
		Events:          events,
	}
}

func TestAppendAndLoad(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	accountID := uuid.New()
	account, created := aggregate.CreateAccount(accountID, uuid.New(), aggregate.AccountTypeUserWallet)

	_, err := store.AppendAtomic(ctx,
		[]AggregateOperation{newTestAccountOp(accountID, aggregate.NoVersion, created)},
		nil, domain.OperationContext{}, nil)
	if err != nil {
		t.Fatalf("AppendAtomic failed: %v", err)
	}

	loaded := aggregate.NewAccount()
	loaded.AccountID = accountID
	found, err := store.LoadAggregate(ctx, loaded)
	if err != nil {
		t.Fatalf("LoadAggregate failed: %v", err)
	}
	if !found {
		t.Fatal("Expected the aggregate to exist")
	}
	if loaded.Version() != 0 {
		t.Errorf("Expected version 0, got %d", loaded.Version())
	}
	if loaded.AccountType != account.AccountType {
		t.Errorf("Account type lost: %s vs %s", loaded.AccountType, account.AccountType)
	}
}

func TestLoadAggregate_Missing(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	account := aggregate.NewAccount()
	account.AccountID = uuid.New()
	found, err := store.LoadAggregate(context.Background(), account)
	if err != nil {
		t.Fatalf("LoadAggregate failed: %v", err)
	}
	if found {
		t.Error("Expected not found for a fresh id")
	}
	if account.Version() != aggregate.NoVersion {
		t.Errorf("Missing aggregate must stay at version %d, got %d", aggregate.NoVersion, account.Version())
	}
}

func TestAppend_VersionConflict(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	accountID := uuid.New()
	account, created := aggregate.CreateAccount(accountID, uuid.New(), aggregate.AccountTypeUserWallet)
	if _, err := store.AppendAtomic(ctx,
		[]AggregateOperation{newTestAccountOp(accountID, aggregate.NoVersion, created)},
		nil, domain.OperationContext{}, nil); err != nil {
		t.Fatalf("Initial append failed: %v", err)
	}

	// Appending again with the stale expectation -1 must conflict: the
	// stream is now at version 0.
	amount, _ := domain.ParseAmount("1")
	credit, _ := account.Credit(amount, uuid.New(), "test")
	_, err := store.AppendAtomic(ctx,
		[]AggregateOperation{newTestAccountOp(accountID, aggregate.NoVersion, credit)},
		nil, domain.OperationContext{}, nil)

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Expected ConflictError, got %v", err)
	}
	if conflict.Expected != aggregate.NoVersion || conflict.Actual != 0 {
		t.Errorf("Unexpected conflict detail: expected=%d actual=%d", conflict.Expected, conflict.Actual)
	}

	// The correct expectation succeeds.
	if _, err := store.AppendAtomic(ctx,
		[]AggregateOperation{newTestAccountOp(accountID, 0, credit)},
		nil, domain.OperationContext{}, nil); err != nil {
		t.Fatalf("Append at correct version failed: %v", err)
	}
}

func TestAppend_ConcurrentWriters(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	accountID := uuid.New()
	account, created := aggregate.CreateAccount(accountID, uuid.New(), aggregate.AccountTypeUserWallet)
	if _, err := store.AppendAtomic(ctx,
		[]AggregateOperation{newTestAccountOp(accountID, aggregate.NoVersion, created)},
		nil, domain.OperationContext{}, nil); err != nil {
		t.Fatalf("Initial append failed: %v", err)
	}

	// Both writers hold the stream at version 0 and race to append version
	// 1. Exactly one may win; the loser must see a conflict. In particular
	// the loser's version re-read must observe the winner's committed row,
	// not its own pre-commit snapshot.
	amount, _ := domain.ParseAmount("1")
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			credit, _ := account.Credit(amount, uuid.New(), "race")
			_, err := store.AppendAtomic(ctx,
				[]AggregateOperation{newTestAccountOp(accountID, 0, credit)},
				nil, domain.OperationContext{}, nil)
			results <- err
		}()
	}

	var wins, conflicts int
	for i := 0; i < 2; i++ {
		err := <-results
		var conflict *ConflictError
		switch {
		case err == nil:
			wins++
		case errors.As(err, &conflict):
			conflicts++
		default:
			t.Fatalf("Unexpected append error: %v", err)
		}
	}
	if wins != 1 || conflicts != 1 {
		t.Errorf("Expected one winner and one conflict, got %d wins and %d conflicts", wins, conflicts)
	}

	rows, err := store.db.QueryContext(ctx,
		"SELECT version FROM events WHERE aggregate_id = $1 ORDER BY version", accountID)
	if err != nil {
		t.Fatalf("Failed to query versions: %v", err)
	}
	defer rows.Close()
	var versions []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			t.Fatalf("Failed to scan version: %v", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("Error iterating versions: %v", err)
	}
	if len(versions) != 2 || versions[0] != 0 || versions[1] != 1 {
		t.Errorf("Expected versions [0 1] with no duplicates, got %v", versions)
	}
}

func TestAppend_MultiAggregateAtomicity(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	firstID := uuid.New()
	secondID := uuid.New()
	_, firstCreated := aggregate.CreateAccount(firstID, uuid.New(), aggregate.AccountTypeUserWallet)
	_, secondCreated := aggregate.CreateAccount(secondID, uuid.New(), aggregate.AccountTypeUserWallet)

	// The inTx callback fails, so neither stream may gain events.
	boom := errors.New("projection failed")
	_, err := store.AppendAtomic(ctx, []AggregateOperation{
		newTestAccountOp(firstID, aggregate.NoVersion, firstCreated),
		newTestAccountOp(secondID, aggregate.NoVersion, secondCreated),
	}, nil, domain.OperationContext{}, func(_ *sql.Tx, _ []uuid.UUID) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected the callback error to surface, got %v", err)
	}

	first := aggregate.NewAccount()
	first.AccountID = firstID
	found, loadErr := store.LoadAggregate(ctx, first)
	if loadErr != nil {
		t.Fatalf("LoadAggregate failed: %v", loadErr)
	}
	if found {
		t.Error("Failed append must not leave events behind")
	}
}

func TestIdempotencyKeyConflict(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	key := uuid.New()

	firstID := uuid.New()
	_, firstCreated := aggregate.CreateAccount(firstID, uuid.New(), aggregate.AccountTypeUserWallet)
	if _, err := store.AppendAtomic(ctx,
		[]AggregateOperation{newTestAccountOp(firstID, aggregate.NoVersion, firstCreated)},
		&key, domain.OperationContext{}, nil); err != nil {
		t.Fatalf("First append failed: %v", err)
	}

	secondID := uuid.New()
	_, secondCreated := aggregate.CreateAccount(secondID, uuid.New(), aggregate.AccountTypeUserWallet)
	_, err := store.AppendAtomic(ctx,
		[]AggregateOperation{newTestAccountOp(secondID, aggregate.NoVersion, secondCreated)},
		&key, domain.OperationContext{}, nil)
	if !errors.Is(err, ErrIdempotencyKeyConflict) {
		t.Errorf("Expected ErrIdempotencyKeyConflict on key reuse, got %v", err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	accountID := uuid.New()
	account, created := aggregate.CreateAccount(accountID, uuid.New(), aggregate.AccountTypeUserWallet)
	if _, err := store.AppendAtomic(ctx,
		[]AggregateOperation{newTestAccountOp(accountID, aggregate.NoVersion, created)},
		nil, domain.OperationContext{}, nil); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	amount, _ := domain.ParseAmount("1")
	for v := int64(0); v < 3; v++ {
		credit, _ := account.Credit(amount, uuid.New(), "test")
		if _, err := store.AppendAtomic(ctx,
			[]AggregateOperation{newTestAccountOp(accountID, v, credit)},
			nil, domain.OperationContext{}, nil); err != nil {
			t.Fatalf("Append at version %d failed: %v", v, err)
		}
		account.Apply(credit, v+1)
	}

	// Force a snapshot regardless of the interval so the restore path runs.
	if err := store.saveSnapshot(ctx, account); err != nil {
		t.Fatalf("saveSnapshot failed: %v", err)
	}

	loaded := aggregate.NewAccount()
	loaded.AccountID = accountID
	found, err := store.LoadAggregate(ctx, loaded)
	if err != nil {
		t.Fatalf("LoadAggregate failed: %v", err)
	}
	if !found || loaded.Version() != 3 {
		t.Errorf("Expected version 3 after snapshot restore, got found=%v version=%d", found, loaded.Version())
	}
}
