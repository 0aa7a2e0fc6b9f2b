package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestOperationContext_Builders(t *testing.T) {
	apiKeyID := uuid.New()
	userID := uuid.New()

	opCtx := NewOperationContext().
		WithAPIKey(apiKeyID).
		WithRequestUser(userID).
		WithClientIP("10.0.0.1")

	if opCtx.APIKeyID == nil || *opCtx.APIKeyID != apiKeyID {
		t.Error("APIKeyID not set")
	}
	if opCtx.RequestUserID == nil || *opCtx.RequestUserID != userID {
		t.Error("RequestUserID not set")
	}
	if opCtx.ClientIP != "10.0.0.1" {
		t.Errorf("Expected client IP 10.0.0.1, got %s", opCtx.ClientIP)
	}
}

func TestOperationContext_EnsureCorrelationID(t *testing.T) {
	opCtx := NewOperationContext()
	generated := opCtx.EnsureCorrelationID()
	if generated == uuid.Nil {
		t.Fatal("Expected a generated correlation id")
	}
	if again := opCtx.EnsureCorrelationID(); again != generated {
		t.Errorf("Correlation id changed between calls: %s vs %s", generated, again)
	}

	supplied := uuid.New()
	opCtx = NewOperationContext().WithCorrelationID(supplied)
	if got := opCtx.EnsureCorrelationID(); got != supplied {
		t.Errorf("Supplied correlation id was replaced: %s vs %s", supplied, got)
	}
}

func TestOperationContext_JSONOmitsEmpty(t *testing.T) {
	raw, err := json.Marshal(NewOperationContext())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(raw) != "{}" {
		t.Errorf("Expected empty object for empty context, got %s", raw)
	}
}

func TestIsSystemUserID(t *testing.T) {
	for _, id := range []uuid.UUID{SystemMintUserID, SystemBurnUserID, SystemFeeUserID, SystemReserveUserID} {
		if !IsSystemUserID(id) {
			t.Errorf("Expected %s to be a system user", id)
		}
	}
	if IsSystemUserID(uuid.New()) {
		t.Error("Random UUID should not be a system user")
	}
}
