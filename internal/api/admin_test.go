package api

import (
	"strings"
	"testing"
)

func TestGenerateAPIKey(t *testing.T) {
	key, err := generateAPIKey()
	if err != nil {
		t.Fatalf("generateAPIKey failed: %v", err)
	}
	if !strings.HasPrefix(key, "sk_live_") {
		t.Errorf("Expected sk_live_ prefix, got %s", key)
	}
	if len(key) != len("sk_live_")+48 {
		t.Errorf("Expected 48 hex characters after the prefix, got %d", len(key)-len("sk_live_"))
	}

	other, err := generateAPIKey()
	if err != nil {
		t.Fatalf("generateAPIKey failed: %v", err)
	}
	if key == other {
		t.Error("Two generated keys must differ")
	}
}

func TestParseInt64Param(t *testing.T) {
	if got := parseInt64Param("", 50); got != 50 {
		t.Errorf("Empty value should fall back to default, got %d", got)
	}
	if got := parseInt64Param("200", 50); got != 200 {
		t.Errorf("Expected 200, got %d", got)
	}
	if got := parseInt64Param("-1", 50); got != 50 {
		t.Errorf("Negative values should fall back to default, got %d", got)
	}
	if got := parseInt64Param("abc", 50); got != 50 {
		t.Errorf("Garbage should fall back to default, got %d", got)
	}
}
