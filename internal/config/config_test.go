package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "LOG_LEVEL", "SESSION_STORE", "SESSION_TTL", "CORS_ALLOWED_ORIGINS", "FINDDOC_TIMEOUT", "EMAIL_PROVIDER"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "5001" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.SessionStore != "memory" {
		t.Fatalf("expected memory session store by default, got %s", cfg.SessionStore)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("expected default session ttl, got %s", cfg.SessionTTL)
	}
	if cfg.BackendTimeout != 15*time.Second {
		t.Fatalf("expected default backend timeout, got %s", cfg.BackendTimeout)
	}
	if cfg.SearchRadius != 10 {
		t.Fatalf("expected default radius 10, got %d", cfg.SearchRadius)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("expected wildcard CORS by default, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.EmailProvider != "none" {
		t.Fatalf("expected email disabled by default, got %s", cfg.EmailProvider)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("SESSION_STORE", " Redis ")
	t.Setenv("SESSION_TTL", "45m")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("FINDDOC_USER_SERVICE_URL", "http://users.local")
	t.Setenv("FINDDOC_SEARCH_RADIUS", "25")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("METRICS_ENABLED", "false")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.SessionStore != "redis" {
		t.Fatalf("expected normalized session store, got %q", cfg.SessionStore)
	}
	if cfg.SessionTTL != 45*time.Minute {
		t.Fatalf("expected ttl override, got %s", cfg.SessionTTL)
	}
	if cfg.UserServiceURL != "http://users.local" {
		t.Fatalf("expected user service override, got %s", cfg.UserServiceURL)
	}
	if cfg.SearchRadius != 25 {
		t.Fatalf("expected radius override, got %d", cfg.SearchRadius)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Fatalf("expected rps override, got %v", cfg.RateLimitRPS)
	}
	if cfg.MetricsEnabled {
		t.Fatalf("expected metrics disabled")
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("SESSION_TTL", "soon")
	t.Setenv("FINDDOC_SEARCH_RADIUS", "wide")
	t.Setenv("REDIS_TLS", "maybe")
	cfg := Load()
	if cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("expected fallback ttl, got %s", cfg.SessionTTL)
	}
	if cfg.SearchRadius != 10 {
		t.Fatalf("expected fallback radius, got %d", cfg.SearchRadius)
	}
	if cfg.RedisTLS {
		t.Fatalf("expected fallback tls false")
	}
}
