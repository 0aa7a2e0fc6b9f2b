package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"testing"

	"finance-atp/internal/database"
	"finance-atp/internal/domain"
	"finance-atp/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func setupHandlerTest(t *testing.T) (*Handler, func()) {
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
	return New(db), db.Close
}

func adminKey() *models.APIKey {
	return &models.APIKey{ID: uuid.New(), Name: "test-admin", Permissions: []string{"admin"}, IsActive: true}
}

func uniqueUsername() string {
	return "u" + uuid.NewString()[:12]
}

func createTestUser(t *testing.T, h *Handler) uuid.UUID {
	t.Helper()
	userID := uuid.New()
	cmd := CreateUserCommand{
		UserID:   userID,
		Username: uniqueUsername(),
		Email:    uuid.NewString()[:8] + "@example.com",
	}
	result, err := h.CreateUser(context.Background(), cmd, uuid.New(), domain.OperationContext{})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if result.Status != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", result.Status)
	}
	return userID
}

func mintTo(t *testing.T, h *Handler, userID uuid.UUID, amount string) {
	t.Helper()
	_, err := h.Mint(context.Background(), MintCommand{
		RecipientUserID: userID,
		Amount:          amount,
		Reason:          "test funding",
	}, adminKey(), uuid.New(), domain.OperationContext{})
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
}

func TestCreateUser_Flow(t *testing.T) {
	h, cleanup := setupHandlerTest(t)
	defer cleanup()

	userID := uuid.New()
	cmd := CreateUserCommand{
		UserID:      userID,
		Username:    uniqueUsername(),
		Email:       uuid.NewString()[:8] + "@example.com",
		DisplayName: "Test User",
	}
	result, err := h.CreateUser(context.Background(), cmd, uuid.New(), domain.OperationContext{})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	var resp models.CreateUserResponse
	if err := json.Unmarshal(result.Body, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.UserID != userID {
		t.Errorf("Expected user id %s, got %s", userID, resp.UserID)
	}
	if resp.Balance != "0.00000000" {
		t.Errorf("New wallet must start at 0.00000000, got %s", resp.Balance)
	}

	// Duplicate username is rejected.
	dup := CreateUserCommand{UserID: uuid.New(), Username: cmd.Username, Email: uuid.NewString()[:8] + "@example.com"}
	if _, err := h.CreateUser(context.Background(), dup, uuid.New(), domain.OperationContext{}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest on duplicate username, got %v", err)
	}
}

func TestCreateUser_IdempotentReplay(t *testing.T) {
	h, cleanup := setupHandlerTest(t)
	defer cleanup()

	cmd := CreateUserCommand{
		UserID:   uuid.New(),
		Username: uniqueUsername(),
		Email:    uuid.NewString()[:8] + "@example.com",
	}
	key := uuid.New()

	first, err := h.CreateUser(context.Background(), cmd, key, domain.OperationContext{})
	if err != nil {
		t.Fatalf("First call failed: %v", err)
	}
	second, err := h.CreateUser(context.Background(), cmd, key, domain.OperationContext{})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	if second.Status != first.Status {
		t.Errorf("Replay status differs: %d vs %d", second.Status, first.Status)
	}
	if string(second.Body) != string(first.Body) {
		t.Errorf("Replay body must be byte-identical:\n%s\n%s", first.Body, second.Body)
	}
}

func TestCreateUser_SameKeyDifferentBody(t *testing.T) {
	h, cleanup := setupHandlerTest(t)
	defer cleanup()

	key := uuid.New()
	first := CreateUserCommand{UserID: uuid.New(), Username: uniqueUsername(), Email: uuid.NewString()[:8] + "@example.com"}
	if _, err := h.CreateUser(context.Background(), first, key, domain.OperationContext{}); err != nil {
		t.Fatalf("First call failed: %v", err)
	}

	second := CreateUserCommand{UserID: uuid.New(), Username: uniqueUsername(), Email: uuid.NewString()[:8] + "@example.com"}
	_, err := h.CreateUser(context.Background(), second, key, domain.OperationContext{})
	if err == nil {
		t.Fatal("Expected a conflict for key reuse with a different body")
	}
}

func TestTransfer_Flow(t *testing.T) {
	h, cleanup := setupHandlerTest(t)
	defer cleanup()
	ctx := context.Background()

	fromID := createTestUser(t, h)
	toID := createTestUser(t, h)
	mintTo(t, h, fromID, "100")

	opCtx := *domain.NewOperationContext().WithRequestUser(fromID)
	result, err := h.Transfer(ctx, TransferCommand{
		FromUserID: fromID,
		ToUserID:   toID,
		Amount:     "30",
		Memo:       "lunch",
	}, uuid.New(), opCtx)
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if result.Status != http.StatusCreated {
		t.Errorf("Expected 201, got %d", result.Status)
	}

	var resp models.TransferResponse
	if err := json.Unmarshal(result.Body, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.Amount.Equal(decimal.RequireFromString("30")) {
		t.Errorf("Expected amount 30, got %s", resp.Amount.String())
	}
	if resp.Status != "completed" {
		t.Errorf("Expected status completed, got %s", resp.Status)
	}
}

func TestTransfer_Concurrent(t *testing.T) {
	h, cleanup := setupHandlerTest(t)
	defer cleanup()
	ctx := context.Background()

	fromID := createTestUser(t, h)
	toID := createTestUser(t, h)
	mintTo(t, h, fromID, "100")

	// Two transfers from the same wallet race. The loser of the version
	// race reloads and retries, so both must eventually commit.
	opCtx := *domain.NewOperationContext().WithRequestUser(fromID)
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := h.Transfer(ctx, TransferCommand{
				FromUserID: fromID,
				ToUserID:   toID,
				Amount:     "10",
			}, uuid.New(), opCtx)
			errs <- err
		}()
	}
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Concurrent transfer failed: %v", err)
		}
	}

	fromBalance, err := h.projection.GetUserBalance(ctx, fromID)
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}
	if !fromBalance.Equal(decimal.RequireFromString("80")) {
		t.Errorf("Expected sender balance 80, got %s", fromBalance.String())
	}
	toBalance, err := h.projection.GetUserBalance(ctx, toID)
	if err != nil {
		t.Fatalf("GetUserBalance failed: %v", err)
	}
	if !toBalance.Equal(decimal.RequireFromString("20")) {
		t.Errorf("Expected recipient balance 20, got %s", toBalance.String())
	}

	// The sender's stream must be densely versioned with no duplicates:
	// creation at 0, the mint credit at 1, then one debit per transfer.
	accountID, err := h.db.GetWalletAccountID(ctx, fromID)
	if err != nil {
		t.Fatalf("GetWalletAccountID failed: %v", err)
	}
	rows, err := h.db.DB().QueryContext(ctx,
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
	if len(versions) != 4 {
		t.Fatalf("Expected 4 events on the sender wallet, got %v", versions)
	}
	for i, v := range versions {
		if v != int64(i) {
			t.Errorf("Expected contiguous versions [0 1 2 3], got %v", versions)
			break
		}
	}
}

func TestTransfer_Unauthorized(t *testing.T) {
	h, cleanup := setupHandlerTest(t)
	defer cleanup()

	fromID := createTestUser(t, h)
	toID := createTestUser(t, h)
	mintTo(t, h, fromID, "10")

	// Acting user differs from the paying user.
	opCtx := *domain.NewOperationContext().WithRequestUser(toID)
	_, err := h.Transfer(context.Background(), TransferCommand{
		FromUserID: fromID,
		ToUserID:   toID,
		Amount:     "5",
	}, uuid.New(), opCtx)
	if !errors.Is(err, domain.ErrUnauthorizedTransfer) {
		t.Errorf("Expected ErrUnauthorizedTransfer, got %v", err)
	}

	// No acting user at all.
	_, err = h.Transfer(context.Background(), TransferCommand{
		FromUserID: fromID,
		ToUserID:   toID,
		Amount:     "5",
	}, uuid.New(), domain.OperationContext{})
	if !errors.Is(err, domain.ErrUnauthorizedTransfer) {
		t.Errorf("Expected ErrUnauthorizedTransfer without acting user, got %v", err)
	}
}

func TestTransfer_InsufficientBalance(t *testing.T) {
	h, cleanup := setupHandlerTest(t)
	defer cleanup()

	fromID := createTestUser(t, h)
	toID := createTestUser(t, h)

	opCtx := *domain.NewOperationContext().WithRequestUser(fromID)
	_, err := h.Transfer(context.Background(), TransferCommand{
		FromUserID: fromID,
		ToUserID:   toID,
		Amount:     "1",
	}, uuid.New(), opCtx)
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Errorf("Expected ErrInsufficientBalance, got %v", err)
	}
}

func TestMintAndBurn_Flow(t *testing.T) {
	h, cleanup := setupHandlerTest(t)
	defer cleanup()
	ctx := context.Background()

	userID := createTestUser(t, h)

	result, err := h.Mint(ctx, MintCommand{
		RecipientUserID: userID,
		Amount:          "50",
		Reason:          "signup bonus",
	}, adminKey(), uuid.New(), domain.OperationContext{})
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if result.Status != http.StatusCreated {
		t.Errorf("Expected 201, got %d", result.Status)
	}

	burnResult, err := h.Burn(ctx, BurnCommand{
		FromUserID: userID,
		Amount:     "20",
		Reason:     "chargeback",
	}, adminKey(), uuid.New(), domain.OperationContext{})
	if err != nil {
		t.Fatalf("Burn failed: %v", err)
	}
	if burnResult.Status != http.StatusCreated {
		t.Errorf("Expected 201, got %d", burnResult.Status)
	}

	// Burning more than the wallet holds must fail.
	_, err = h.Burn(ctx, BurnCommand{
		FromUserID: userID,
		Amount:     "1000",
		Reason:     "too much",
	}, adminKey(), uuid.New(), domain.OperationContext{})
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Errorf("Expected ErrInsufficientBalance on over-burn, got %v", err)
	}
}

func TestMint_PermissionRequired(t *testing.T) {
	h, cleanup := setupHandlerTest(t)
	defer cleanup()

	userID := createTestUser(t, h)
	limited := &models.APIKey{ID: uuid.New(), Name: "limited", Permissions: []string{"write:users"}, IsActive: true}

	_, err := h.Mint(context.Background(), MintCommand{
		RecipientUserID: userID,
		Amount:          "5",
		Reason:          "nope",
	}, limited, uuid.New(), domain.OperationContext{})
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied, got %v", err)
	}
}

func TestUpdateAndDeactivateUser(t *testing.T) {
	h, cleanup := setupHandlerTest(t)
	defer cleanup()
	ctx := context.Background()

	userID := createTestUser(t, h)

	display := "Renamed"
	result, err := h.UpdateUser(ctx, UpdateUserCommand{
		UserID:      userID,
		DisplayName: &display,
	}, uuid.New(), domain.OperationContext{})
	if err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}
	if result.Status != http.StatusOK {
		t.Errorf("Expected 200, got %d", result.Status)
	}

	deactivate, err := h.DeactivateUser(ctx, DeactivateUserCommand{UserID: userID}, uuid.New(), domain.OperationContext{})
	if err != nil {
		t.Fatalf("DeactivateUser failed: %v", err)
	}
	if deactivate.Status != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", deactivate.Status)
	}

	// Updates after deactivation are rejected.
	_, err = h.UpdateUser(ctx, UpdateUserCommand{UserID: userID, DisplayName: &display}, uuid.New(), domain.OperationContext{})
	if !errors.Is(err, domain.ErrUserDeactivated) {
		t.Errorf("Expected ErrUserDeactivated, got %v", err)
	}
}

func TestSystemUsersProtected(t *testing.T) {
	h, cleanup := setupHandlerTest(t)
	defer cleanup()
	ctx := context.Background()

	display := "hacked"
	_, err := h.UpdateUser(ctx, UpdateUserCommand{
		UserID:      domain.SystemMintUserID,
		DisplayName: &display,
	}, uuid.New(), domain.OperationContext{})
	if !errors.Is(err, domain.ErrSystemUserProtected) {
		t.Errorf("Expected ErrSystemUserProtected on update, got %v", err)
	}

	_, err = h.DeactivateUser(ctx, DeactivateUserCommand{UserID: domain.SystemMintUserID}, uuid.New(), domain.OperationContext{})
	if !errors.Is(err, domain.ErrSystemUserProtected) {
		t.Errorf("Expected ErrSystemUserProtected on deactivate, got %v", err)
	}
}
