package api

import (
	"net/http/httptest"
	"testing"

	"finance-atp/internal/models"

	"github.com/google/uuid"
)

func TestMaskAPIKey(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"sk_live_0123456789abcdef", "sk_live_****"},
		{"short", "****"},
		{"", "****"},
		{"12345678", "****"},
		{"123456789", "12345678****"},
	}
	for _, c := range cases {
		if got := MaskAPIKey(c.in); got != c.want {
			t.Errorf("MaskAPIKey(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.10:54321"
	if got := clientIP(r); got != "192.0.2.10" {
		t.Errorf("Expected 192.0.2.10, got %s", got)
	}

	r.Header.Set("X-Forwarded-For", "203.0.113.7")
	if got := clientIP(r); got != "203.0.113.7" {
		t.Errorf("X-Forwarded-For should win, got %s", got)
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := newRateLimiter()
	keyID := uuid.New()

	// Burst equals the per-minute limit, so the first N calls pass.
	allowed := 0
	for i := 0; i < 10; i++ {
		if rl.allow(keyID, 5) {
			allowed++
		}
	}
	if allowed != 5 {
		t.Errorf("Expected exactly 5 allowed requests, got %d", allowed)
	}

	// A different key has its own bucket.
	if !rl.allow(uuid.New(), 5) {
		t.Error("A fresh key should not be limited")
	}
}

func TestAPIKeyHasPermission(t *testing.T) {
	key := models.APIKey{Permissions: []string{"write:users", "admin:mint"}}
	if !key.HasPermission("write:users") {
		t.Error("Expected write:users to be granted")
	}
	if key.HasPermission("admin:burn") {
		t.Error("admin:burn should not be granted")
	}

	admin := models.APIKey{Permissions: []string{"admin"}}
	for _, p := range []string{"write:users", "admin:mint", "admin:burn", "admin:events", "admin:api-keys"} {
		if !admin.HasPermission(p) {
			t.Errorf("admin should imply %s", p)
		}
	}
}

func TestClassify(t *testing.T) {
	status, code := classify(errTest)
	if status != 500 || code != "internal_error" {
		t.Errorf("Unknown errors must map to 500 internal_error, got %d %s", status, code)
	}
}

type testError struct{}

func (testError) Error() string { return "boom" }

var errTest = testError{}
