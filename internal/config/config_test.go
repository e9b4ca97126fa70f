package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "keygate.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: "test-secret"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("default port: %d", cfg.Server.Port)
	}
	if cfg.Database.Path != "keygate.db" {
		t.Fatalf("default db path: %q", cfg.Database.Path)
	}
	if cfg.Auth.SharedSecretHeader != "X-Keygate-Secret" {
		t.Fatalf("default secret header: %q", cfg.Auth.SharedSecretHeader)
	}
	if cfg.Abuse.BlockTTL != 24*time.Hour {
		t.Fatalf("default abuse TTL: %v", cfg.Abuse.BlockTTL)
	}

	for _, name := range []string{"default", "validate", "auth"} {
		rl, ok := cfg.RateLimits[name]
		if !ok {
			t.Fatalf("missing default rate limit %q", name)
		}
		if rl.Max <= 0 || rl.Window <= 0 {
			t.Fatalf("limiter %q has no budget: %+v", name, rl)
		}
	}
}

func TestLoadExplicitValues(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9090
auth:
  jwt_secret: "test-secret"
  token_expiry: 30m
rate_limits:
  validate:
    max: 5
    window: 10s
    message: "slow down"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.Host != "127.0.0.1" {
		t.Fatalf("server: %+v", cfg.Server)
	}
	if cfg.Auth.TokenExpiry != 30*time.Minute {
		t.Fatalf("token expiry: %v", cfg.Auth.TokenExpiry)
	}

	validate := cfg.RateLimits["validate"]
	if validate.Max != 5 || validate.Window != 10*time.Second || validate.Message != "slow down" {
		t.Fatalf("validate limiter: %+v", validate)
	}

	// Unnamed limiters still receive their defaults.
	if cfg.RateLimits["default"].Max == 0 {
		t.Fatal("default limiter missing")
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing jwt_secret")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: "file-secret"
`)

	t.Setenv("KEYGATE_JWT_SECRET", "env-secret")
	t.Setenv("KEYGATE_DB_PATH", "/tmp/other.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.JWTSecret != "env-secret" {
		t.Fatalf("env override not applied: %q", cfg.Auth.JWTSecret)
	}
	if cfg.Database.Path != "/tmp/other.db" {
		t.Fatalf("db path override not applied: %q", cfg.Database.Path)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: "test-secret"
unknown_section:
  foo: bar
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected strict parse to reject unknown keys")
	}
}
