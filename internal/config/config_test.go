package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("PROBE_CONCURRENCY", "")
	t.Setenv("OTP_MAX_ATTEMPTS", "")
	t.Setenv("OTP_ATTEMPT_WINDOW", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.ProbeConcurrency != 8 {
		t.Fatalf("expected default probe concurrency 8, got %d", cfg.ProbeConcurrency)
	}
	if cfg.OTPMaxAttempts != 0 {
		t.Fatalf("expected unlimited otp attempts by default, got %d", cfg.OTPMaxAttempts)
	}
	if cfg.OTPAttemptWindow != 15*time.Minute {
		t.Fatalf("expected default otp attempt window, got %s", cfg.OTPAttemptWindow)
	}
	if cfg.CatalogCacheTTL != 5*time.Minute {
		t.Fatalf("expected default catalog ttl, got %s", cfg.CatalogCacheTTL)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("expected no cors origins, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("BACKEND_BASE_URL", "https://api.example.com/")
	t.Setenv("PROBE_CONCURRENCY", "4")
	t.Setenv("PROBE_RATE_PER_SECOND", "12.5")
	t.Setenv("PROBE_TIMEOUT", "3s")
	t.Setenv("BOOKING_DRY_RUN", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("OTP_MAX_ATTEMPTS", "5")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.BackendBaseURL != "https://api.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.BackendBaseURL)
	}
	if cfg.ProbeConcurrency != 4 {
		t.Fatalf("expected probe concurrency override, got %d", cfg.ProbeConcurrency)
	}
	if cfg.ProbeRatePerSecond != 12.5 {
		t.Fatalf("expected probe rate override, got %v", cfg.ProbeRatePerSecond)
	}
	if cfg.ProbeTimeout != 3*time.Second {
		t.Fatalf("expected probe timeout override, got %s", cfg.ProbeTimeout)
	}
	if !cfg.BookingDryRun {
		t.Fatalf("expected dry run enabled")
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("unexpected cors origins: %v", cfg.CORSAllowedOrigins)
	}
	if cfg.OTPMaxAttempts != 5 {
		t.Fatalf("expected otp attempts override, got %d", cfg.OTPMaxAttempts)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("PROBE_CONCURRENCY", "lots")
	t.Setenv("PROBE_TIMEOUT", "soon")
	t.Setenv("REDIS_TLS", "maybe")
	cfg := Load()
	if cfg.ProbeConcurrency != 8 {
		t.Fatalf("expected fallback concurrency, got %d", cfg.ProbeConcurrency)
	}
	if cfg.ProbeTimeout != 10*time.Second {
		t.Fatalf("expected fallback timeout, got %s", cfg.ProbeTimeout)
	}
	if cfg.RedisTLS {
		t.Fatalf("expected redis tls fallback false")
	}
}
