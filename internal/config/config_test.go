package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_DSN", "host=localhost user=test password=test dbname=delivery port=5432 sslmode=disable")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", cfg.APIPort)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}
	if cfg.RateLimitPerSec != 100 {
		t.Errorf("RateLimitPerSec = %d, want 100", cfg.RateLimitPerSec)
	}
	if cfg.DefaultMaxRetries != 3 {
		t.Errorf("DefaultMaxRetries = %d, want 3", cfg.DefaultMaxRetries)
	}
	if cfg.PendingInterval != 5*time.Minute {
		t.Errorf("PendingInterval = %v, want 5m", cfg.PendingInterval)
	}
	if cfg.PendingMaxAge != 24*time.Hour {
		t.Errorf("PendingMaxAge = %v, want 24h", cfg.PendingMaxAge)
	}
	if cfg.RetentionPeriod != 720*time.Hour {
		t.Errorf("RetentionPeriod = %v, want 720h", cfg.RetentionPeriod)
	}
	if cfg.BaseRetryDelay != time.Minute {
		t.Errorf("BaseRetryDelay = %v, want 1m", cfg.BaseRetryDelay)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DISPATCH_PARALLELISM", "4")
	t.Setenv("RETRY_INTERVAL", "30m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", cfg.APIPort)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.DispatchParallel != 4 {
		t.Errorf("DispatchParallel = %d, want 4", cfg.DispatchParallel)
	}
	if cfg.RetryInterval != 30*time.Minute {
		t.Errorf("RetryInterval = %v, want 30m", cfg.RetryInterval)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_DSN", "host=localhost")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
}

func TestLoad_OptionalProviderSettings(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SMTP_HOST", "smtp.example.edu")
	t.Setenv("SMTP_FROM", "no-reply@example.edu")
	t.Setenv("PUSH_GATEWAY_URL", "https://push.example.edu")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.SMTPHost != "smtp.example.edu" {
		t.Errorf("SMTPHost = %s, want smtp.example.edu", cfg.SMTPHost)
	}
	if cfg.SMTPPort != 587 {
		t.Errorf("SMTPPort = %d, want 587", cfg.SMTPPort)
	}
	if cfg.PushGatewayURL != "https://push.example.edu" {
		t.Errorf("PushGatewayURL = %s, want https://push.example.edu", cfg.PushGatewayURL)
	}
}
