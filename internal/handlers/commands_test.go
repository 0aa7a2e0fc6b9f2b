package handlers

import (
	"errors"
	"testing"

	"finance-atp/internal/domain"

	"github.com/google/uuid"
)

func strPtr(s string) *string { return &s }

func TestCreateUserCommand_Validate(t *testing.T) {
	valid := CreateUserCommand{
		UserID:   uuid.New(),
		Username: "alice_01",
		Email:    "alice@example.com",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Valid command rejected: %v", err)
	}

	cases := []struct {
		name string
		cmd  CreateUserCommand
	}{
		{"missing user id", CreateUserCommand{Username: "alice", Email: "alice@example.com"}},
		{"username too short", CreateUserCommand{UserID: uuid.New(), Username: "ab", Email: "a@b.co"}},
		{"username bad chars", CreateUserCommand{UserID: uuid.New(), Username: "alice!", Email: "a@b.co"}},
		{"email missing at", CreateUserCommand{UserID: uuid.New(), Username: "alice", Email: "alice.example.com"}},
		{"email missing domain dot", CreateUserCommand{UserID: uuid.New(), Username: "alice", Email: "alice@example"}},
	}
	for _, c := range cases {
		if err := c.cmd.Validate(); !errors.Is(err, domain.ErrInvalidRequest) {
			t.Errorf("%s: expected ErrInvalidRequest, got %v", c.name, err)
		}
	}
}

func TestCreateUserCommand_DisplayNameLength(t *testing.T) {
	long := make([]byte, 101)
	for i := range long {
		long[i] = 'x'
	}
	cmd := CreateUserCommand{
		UserID:      uuid.New(),
		Username:    "alice",
		Email:       "alice@example.com",
		DisplayName: string(long),
	}
	if err := cmd.Validate(); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest for 101-char display name, got %v", err)
	}
}

func TestUpdateUserCommand_Validate(t *testing.T) {
	if err := (UpdateUserCommand{UserID: uuid.New()}).Validate(); !errors.Is(err, domain.ErrNoChanges) {
		t.Errorf("Expected ErrNoChanges for empty update, got %v", err)
	}
	if err := (UpdateUserCommand{UserID: uuid.New(), Email: strPtr("not-an-email")}).Validate(); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest for bad email, got %v", err)
	}
	if err := (UpdateUserCommand{UserID: uuid.New(), DisplayName: strPtr("New Name")}).Validate(); err != nil {
		t.Errorf("Valid update rejected: %v", err)
	}
}

func TestTransferCommand_Validate(t *testing.T) {
	from := uuid.New()
	to := uuid.New()

	amount, err := TransferCommand{FromUserID: from, ToUserID: to, Amount: "10.5"}.Validate()
	if err != nil {
		t.Fatalf("Valid transfer rejected: %v", err)
	}
	if amount.String() != "10.50000000" {
		t.Errorf("Expected 10.50000000, got %s", amount.String())
	}

	if _, err := (TransferCommand{FromUserID: from, ToUserID: from, Amount: "10"}).Validate(); !errors.Is(err, domain.ErrSameAccountTransfer) {
		t.Errorf("Expected ErrSameAccountTransfer, got %v", err)
	}
	if _, err := (TransferCommand{FromUserID: from, ToUserID: to, Amount: "-1"}).Validate(); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount, got %v", err)
	}
}

func TestMintBurnCommand_RequireReason(t *testing.T) {
	if _, err := (MintCommand{RecipientUserID: uuid.New(), Amount: "5"}).Validate(); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest for mint without reason, got %v", err)
	}
	if _, err := (BurnCommand{FromUserID: uuid.New(), Amount: "5"}).Validate(); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest for burn without reason, got %v", err)
	}
	if _, err := (MintCommand{RecipientUserID: uuid.New(), Amount: "5", Reason: "promo"}).Validate(); err != nil {
		t.Errorf("Valid mint rejected: %v", err)
	}
}
