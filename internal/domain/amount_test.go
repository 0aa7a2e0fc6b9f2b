package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount_Valid(t *testing.T) {
	amount, err := ParseAmount("100.50")
	if err != nil {
		t.Fatalf("ParseAmount failed: %v", err)
	}
	if amount.String() != "100.50000000" {
		t.Errorf("Expected 100.50000000, got %s", amount.String())
	}
}

func TestParseAmount_Zero(t *testing.T) {
	_, err := ParseAmount("0")
	if !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount for zero, got %v", err)
	}
}

func TestParseAmount_Negative(t *testing.T) {
	_, err := ParseAmount("-5")
	if !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount for negative, got %v", err)
	}
}

func TestParseAmount_TooManyDecimals(t *testing.T) {
	if _, err := ParseAmount("1.123456789"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount for 9 decimal places, got %v", err)
	}
	if _, err := ParseAmount("1.12345678"); err != nil {
		t.Errorf("Expected 8 decimal places to be accepted, got %v", err)
	}
}

func TestParseAmount_ExceedsMaximum(t *testing.T) {
	if _, err := ParseAmount("1000000000000.00000001"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount above maximum, got %v", err)
	}
	if _, err := ParseAmount("1000000000000"); err != nil {
		t.Errorf("Expected exact maximum to be accepted, got %v", err)
	}
}

func TestParseAmount_NotANumber(t *testing.T) {
	_, err := ParseAmount("abc")
	if !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount for garbage input, got %v", err)
	}
}

func TestBalance_CreditDebit(t *testing.T) {
	amount, err := ParseAmount("25.5")
	if err != nil {
		t.Fatalf("ParseAmount failed: %v", err)
	}

	balance := ZeroBalance().Credit(amount)
	if !balance.Value().Equal(decimal.RequireFromString("25.5")) {
		t.Errorf("Expected 25.5 after credit, got %s", balance.Value().String())
	}

	balance = balance.Debit(amount)
	if !balance.Value().IsZero() {
		t.Errorf("Expected zero after debit, got %s", balance.Value().String())
	}
}

func TestBalance_IsSufficientFor(t *testing.T) {
	ten, _ := ParseAmount("10")
	balance := ZeroBalance().Credit(ten)

	if !balance.IsSufficientFor(ten) {
		t.Error("Balance of 10 should cover a withdrawal of exactly 10")
	}

	eleven, _ := ParseAmount("10.00000001")
	if balance.IsSufficientFor(eleven) {
		t.Error("Balance of 10 should not cover a withdrawal of 10.00000001")
	}
}

func TestBalance_NegativeAllowed(t *testing.T) {
	// System accounts go negative; Balance must not reject it.
	amount, _ := ParseAmount("100")
	balance := ZeroBalance().Debit(amount)
	if balance.Value().Sign() >= 0 {
		t.Errorf("Expected negative balance, got %s", balance.Value().String())
	}
}
