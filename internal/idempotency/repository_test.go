package idempotency

import (
	"testing"
)

func TestComputeRequestHash_Deterministic(t *testing.T) {
	body := []byte(`{"from_user_id":"a","to_user_id":"b","amount":"10"}`)

	first := ComputeRequestHash(body)
	second := ComputeRequestHash(body)
	if first != second {
		t.Error("Same body must hash to the same value")
	}
	if len(first) != 64 {
		t.Errorf("Expected 64 hex characters, got %d", len(first))
	}
}

func TestComputeRequestHash_DiffersOnBody(t *testing.T) {
	a := ComputeRequestHash([]byte(`{"amount":"10"}`))
	b := ComputeRequestHash([]byte(`{"amount":"11"}`))
	if a == b {
		t.Error("Different bodies must not collide")
	}
}

func TestComputeRequestHash_Empty(t *testing.T) {
	if len(ComputeRequestHash(nil)) != 64 {
		t.Error("Empty body must still produce a full hash")
	}
}
