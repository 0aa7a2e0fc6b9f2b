package projection

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"finance-atp/internal/database"
	"finance-atp/internal/domain"
	"finance-atp/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func setupProjectionTest(t *testing.T) (*Service, *database.Service, func()) {
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
	return NewService(db.DB()), db, db.Close
}

// seedWallet creates a user, a wallet account, and a zero balance row, and
// returns the wallet's account id.
func seedWallet(t *testing.T, db *database.Service, svc *Service, username string) (uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	userID := uuid.New()
	accountID := uuid.New()

	tx, err := db.DB().BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	now := time.Now().UTC()
	if err := db.CreateUserProjectionTx(ctx, tx, userID, username, username+"@example.com", "", now); err != nil {
		t.Fatalf("CreateUserProjectionTx failed: %v", err)
	}
	if err := db.CreateAccountProjectionTx(ctx, tx, accountID, userID, "user_wallet", now); err != nil {
		t.Fatalf("CreateAccountProjectionTx failed: %v", err)
	}
	if err := svc.CreateAccountBalanceTx(ctx, tx, accountID, uuid.New()); err != nil {
		t.Fatalf("CreateAccountBalanceTx failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	return userID, accountID
}

func inTx(t *testing.T, db *database.Service, fn func(tx *sql.Tx) error) error {
	t.Helper()
	ctx := context.Background()
	tx, err := db.DB().BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func TestMintThenTransfer(t *testing.T) {
	svc, db, cleanup := setupProjectionTest(t)
	defer cleanup()
	ctx := context.Background()

	aliceID, aliceWallet := seedWallet(t, db, svc, "alice_"+uuid.NewString()[:8])
	bobID, bobWallet := seedWallet(t, db, svc, "bob_"+uuid.NewString()[:8])

	// Mint 100 into alice's wallet; the mint source goes negative.
	err := inTx(t, db, func(tx *sql.Tx) error {
		return svc.ApplyMintTx(ctx, tx, Movement{
			JournalID:     uuid.New(),
			FromAccountID: domain.SystemMintAccountID,
			ToAccountID:   aliceWallet,
			Amount:        decimal.RequireFromString("100"),
			Description:   "Mint: test issue",
			FromEventID:   uuid.New(),
			FromVersion:   0,
			ToEventID:     uuid.New(),
			ToVersion:     1,
		})
	})
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	balance, err := svc.GetUserBalance(ctx, aliceID)
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}
	if !balance.Equal(decimal.RequireFromString("100")) {
		t.Errorf("Expected alice at 100, got %s", balance.String())
	}

	// Transfer 40 alice -> bob.
	err = inTx(t, db, func(tx *sql.Tx) error {
		return svc.ApplyTransferTx(ctx, tx, Movement{
			JournalID:     uuid.New(),
			FromAccountID: aliceWallet,
			ToAccountID:   bobWallet,
			Amount:        decimal.RequireFromString("40"),
			Description:   "Transfer",
			FromEventID:   uuid.New(),
			FromVersion:   2,
			ToEventID:     uuid.New(),
			ToVersion:     1,
		})
	})
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	aliceBalance, _ := svc.GetUserBalance(ctx, aliceID)
	bobBalance, _ := svc.GetUserBalance(ctx, bobID)
	if !aliceBalance.Equal(decimal.RequireFromString("60")) {
		t.Errorf("Expected alice at 60, got %s", aliceBalance.String())
	}
	if !bobBalance.Equal(decimal.RequireFromString("40")) {
		t.Errorf("Expected bob at 40, got %s", bobBalance.String())
	}
}

func TestTransfer_InsufficientBalance(t *testing.T) {
	svc, db, cleanup := setupProjectionTest(t)
	defer cleanup()
	ctx := context.Background()

	_, fromWallet := seedWallet(t, db, svc, "poor_"+uuid.NewString()[:8])
	_, toWallet := seedWallet(t, db, svc, "rich_"+uuid.NewString()[:8])

	err := inTx(t, db, func(tx *sql.Tx) error {
		return svc.ApplyTransferTx(ctx, tx, Movement{
			JournalID:     uuid.New(),
			FromAccountID: fromWallet,
			ToAccountID:   toWallet,
			Amount:        decimal.RequireFromString("1"),
			FromEventID:   uuid.New(),
			FromVersion:   1,
			ToEventID:     uuid.New(),
			ToVersion:     1,
		})
	})
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Errorf("Expected ErrInsufficientBalance, got %v", err)
	}

	balance, err := svc.GetBalance(ctx, fromWallet)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !balance.IsZero() {
		t.Errorf("Failed transfer must not move funds, balance is %s", balance.String())
	}
}

func TestBurn_SystemAccountNotFundsChecked(t *testing.T) {
	svc, db, cleanup := setupProjectionTest(t)
	defer cleanup()
	ctx := context.Background()

	_, wallet := seedWallet(t, db, svc, "burner_"+uuid.NewString()[:8])

	// Fund the wallet first.
	if err := inTx(t, db, func(tx *sql.Tx) error {
		return svc.ApplyMintTx(ctx, tx, Movement{
			JournalID:     uuid.New(),
			FromAccountID: domain.SystemMintAccountID,
			ToAccountID:   wallet,
			Amount:        decimal.RequireFromString("10"),
			FromEventID:   uuid.New(),
			FromVersion:   0,
			ToEventID:     uuid.New(),
			ToVersion:     1,
		})
	}); err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	// Burn it all back.
	if err := inTx(t, db, func(tx *sql.Tx) error {
		return svc.ApplyBurnTx(ctx, tx, Movement{
			JournalID:     uuid.New(),
			FromAccountID: wallet,
			ToAccountID:   domain.SystemMintAccountID,
			Amount:        decimal.RequireFromString("10"),
			FromEventID:   uuid.New(),
			FromVersion:   2,
			ToEventID:     uuid.New(),
			ToVersion:     1,
		})
	}); err != nil {
		t.Fatalf("Burn failed: %v", err)
	}

	balance, err := svc.GetBalance(ctx, wallet)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !balance.IsZero() {
		t.Errorf("Expected wallet back at zero, got %s", balance.String())
	}
}

func TestGetUserBalance_NoWallet(t *testing.T) {
	svc, _, cleanup := setupProjectionTest(t)
	defer cleanup()

	if _, err := svc.GetUserBalance(context.Background(), uuid.New()); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}
