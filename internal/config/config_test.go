package config

import (
	"os"
	"testing"
)

func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if had {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	setEnv(t, "DATABASE_URL", "postgres://localhost:5432/carebook")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("Port = %q, want 8000", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Errorf("Env = %q, want development", cfg.Env)
	}
	if cfg.DBMaxConns != 20 || cfg.DBMinConns != 5 {
		t.Errorf("pool bounds = %d/%d, want 20/5", cfg.DBMaxConns, cfg.DBMinConns)
	}
	if cfg.JWTTTLMinutes != 60 {
		t.Errorf("JWTTTLMinutes = %d, want 60", cfg.JWTTTLMinutes)
	}
	if !cfg.IsDev() {
		t.Error("IsDev() = false for default env")
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	setEnv(t, "DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is empty")
	}
}

func TestValidateProductionRequiresSecret(t *testing.T) {
	cfg := &Config{Env: "production", JWTTTLMinutes: 60}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for production without JWT_SECRET")
	}

	cfg.JWTSecret = "0123456789abcdef"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate with secret: %v", err)
	}
}

func TestValidateExternalIssuerSatisfiesAuth(t *testing.T) {
	cfg := &Config{Env: "production", AuthIssuer: "https://id.example.com", JWTTTLMinutes: 60}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate with external issuer: %v", err)
	}
	if !cfg.UsesExternalAuth() {
		t.Error("UsesExternalAuth() = false with AUTH_ISSUER set")
	}
}

func TestValidateTLSFiles(t *testing.T) {
	cfg := &Config{Env: "development", JWTTTLMinutes: 60, TLSEnabled: true}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for TLS without cert/key")
	}
	cfg.TLSCertFile = "server.crt"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for TLS without key")
	}
	cfg.TLSKeyFile = "server.key"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate with TLS files: %v", err)
	}
}
