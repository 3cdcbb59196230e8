package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"
)

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(noEnvFile(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Backend != BackendMemory {
		t.Errorf("Backend = %q, want %q", cfg.Backend, BackendMemory)
	}
	if cfg.SignInConfirmTimeout != 5*time.Second {
		t.Errorf("SignInConfirmTimeout = %v, want 5s", cfg.SignInConfirmTimeout)
	}
	if cfg.CacheTTL != 5*time.Minute || cfg.SessionIdleTTL != 30*time.Minute {
		t.Errorf("unexpected TTLs: cache %v, session %v", cfg.CacheTTL, cfg.SessionIdleTTL)
	}
	if cfg.SignInRate != 10 || cfg.MaxRetries != 3 || cfg.DBMaxConns != 10 {
		t.Errorf("unexpected numeric defaults: %+v", cfg)
	}
	if cfg.OnboardingFlow != "standard" || cfg.DefaultTimezone != "Europe/Istanbul" {
		t.Errorf("unexpected session defaults: %+v", cfg)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SIGN_IN_CONFIRM_TIMEOUT", "2s")
	t.Setenv("ONBOARDING_FLOW", "extended")
	t.Setenv("BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://timely@localhost/timely")

	cfg, err := load(noEnvFile(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.SignInConfirmTimeout != 2*time.Second {
		t.Errorf("SignInConfirmTimeout = %v, want 2s", cfg.SignInConfirmTimeout)
	}
	if cfg.OnboardingFlow != "extended" || cfg.Backend != BackendPostgres {
		t.Errorf("unexpected overrides: %+v", cfg)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("LOG_LEVEL=debug\nSIGN_IN_RATE=3\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("SIGN_IN_RATE", "7")

	cfg, err := load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug from .env", cfg.LogLevel)
	}
	if cfg.SignInRate != 7 {
		t.Errorf("SignInRate = %d, want env to override .env", cfg.SignInRate)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown backend", map[string]string{"BACKEND": "mongo"}, "unknown BACKEND"},
		{"supabase without url", map[string]string{"BACKEND": "supabase"}, "SUPABASE_URL"},
		{"supabase without secret", map[string]string{
			"BACKEND": "supabase", "SUPABASE_URL": "https://x.supabase.co", "SUPABASE_ANON_KEY": "anon",
		}, "SUPABASE_JWT_SECRET"},
		{"postgres without dsn", map[string]string{"BACKEND": "postgres"}, "DATABASE_URL"},
		{"unknown flow", map[string]string{"ONBOARDING_FLOW": "quick"}, "ONBOARDING_FLOW"},
		{"unknown timezone", map[string]string{"DEFAULT_TIMEZONE": "Mars/Olympus"}, "DEFAULT_TIMEZONE"},
		{"zero rate", map[string]string{"SIGN_IN_RATE": "0"}, "SIGN_IN_RATE"},
		{"bad port", map[string]string{"PORT": "70000"}, "PORT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := load(noEnvFile(t))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
