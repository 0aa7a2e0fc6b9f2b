package config

import (
	"testing"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Error("Expected an error when DATABASE_URL is unset")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/atp_test")
	t.Setenv("PORT", "")
	t.Setenv("HOST", "")
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DATABASE_MAX_CONNECTIONS", "")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 3000 {
		t.Errorf("Expected default port 3000, got %d", cfg.Port)
	}
	if cfg.Host != "127.0.0.1" {
		t.Errorf("Expected default host 127.0.0.1, got %s", cfg.Host)
	}
	if cfg.Addr() != "127.0.0.1:3000" {
		t.Errorf("Unexpected Addr %s", cfg.Addr())
	}
	if cfg.DatabaseMaxConns != 10 {
		t.Errorf("Expected 10 max connections, got %d", cfg.DatabaseMaxConns)
	}
	if cfg.RateLimitPerMinute != 100 {
		t.Errorf("Expected default rate limit 100, got %d", cfg.RateLimitPerMinute)
	}
	if cfg.IsProduction() {
		t.Error("Default environment must not be production")
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/atp_test")
	t.Setenv("PORT", "not-a-number")
	if _, err := Load(); err == nil {
		t.Error("Expected an error for a non-numeric PORT")
	}
}

func TestLoad_ProductionFlag(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/atp_test")
	t.Setenv("ENVIRONMENT", "production")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.IsProduction() {
		t.Error("Expected IsProduction to be true")
	}
}
