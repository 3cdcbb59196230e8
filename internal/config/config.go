// Package config loads application configuration from the environment and an
// optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/timely-go/internal/domain"

	"github.com/spf13/viper"
)

// Backends accepted by BACKEND.
const (
	BackendMemory   = "memory"
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int    `mapstructure:"PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Backend selects where credentials and documents live.
	Backend string `mapstructure:"BACKEND"`

	// Supabase
	SupabaseURL        string `mapstructure:"SUPABASE_URL"`
	SupabaseAnonKey    string `mapstructure:"SUPABASE_ANON_KEY"`
	SupabaseServiceKey string `mapstructure:"SUPABASE_SERVICE_ROLE_KEY"`
	SupabaseJWTSecret  string `mapstructure:"SUPABASE_JWT_SECRET"`

	// Postgres
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`

	// HTTP client
	HTTPTimeout time.Duration `mapstructure:"HTTP_TIMEOUT"`

	// Resilience
	MaxRetries     int           `mapstructure:"MAX_RETRIES"`
	InitialBackoff time.Duration `mapstructure:"INITIAL_BACKOFF"`
	MaxConcurrency int           `mapstructure:"MAX_CONCURRENCY"`

	// Cache
	CacheTTL time.Duration `mapstructure:"CACHE_TTL"`

	// Sessions
	SessionIdleTTL       time.Duration `mapstructure:"SESSION_IDLE_TTL"`
	SignInConfirmTimeout time.Duration `mapstructure:"SIGN_IN_CONFIRM_TIMEOUT"`
	SignInRate           int           `mapstructure:"SIGN_IN_RATE"` // attempts per minute per email
	OnboardingFlow       string        `mapstructure:"ONBOARDING_FLOW"`
	DefaultTimezone      string        `mapstructure:"DEFAULT_TIMEZONE"`

	// Observability
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

var defaults = map[string]any{
	"PORT":                        8080,
	"LOG_LEVEL":                   "info",
	"BACKEND":                     BackendMemory,
	"SUPABASE_URL":                "",
	"SUPABASE_ANON_KEY":           "",
	"SUPABASE_SERVICE_ROLE_KEY":   "",
	"SUPABASE_JWT_SECRET":         "",
	"DATABASE_URL":                "",
	"DB_MAX_CONNS":                10,
	"HTTP_TIMEOUT":                "10s",
	"MAX_RETRIES":                 3,
	"INITIAL_BACKOFF":             "100ms",
	"MAX_CONCURRENCY":             50,
	"CACHE_TTL":                   "5m",
	"SESSION_IDLE_TTL":            "30m",
	"SIGN_IN_CONFIRM_TIMEOUT":     "5s",
	"SIGN_IN_RATE":                10,
	"ONBOARDING_FLOW":             domain.FlowStandard,
	"DEFAULT_TIMEZONE":            "Europe/Istanbul",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "localhost:4317",
}

// Load reads .env (if present), then builds and validates Config from the
// environment. Env vars override .env.
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing .env is fine

	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT %d out of range", c.Port)
	}

	switch c.Backend {
	case BackendMemory:
	case BackendSupabase:
		if c.SupabaseURL == "" || c.SupabaseAnonKey == "" {
			return errors.New("config: BACKEND=supabase requires SUPABASE_URL and SUPABASE_ANON_KEY")
		}
		if c.SupabaseJWTSecret == "" {
			return errors.New("config: BACKEND=supabase requires SUPABASE_JWT_SECRET")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("config: unknown BACKEND %q", c.Backend)
	}

	if _, err := domain.QuestionsForFlow(c.OnboardingFlow); err != nil {
		return fmt.Errorf("config: ONBOARDING_FLOW: %w", err)
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("config: DEFAULT_TIMEZONE: %w", err)
	}
	if c.SignInRate <= 0 {
		return errors.New("config: SIGN_IN_RATE must be positive")
	}
	if c.SessionIdleTTL <= 0 || c.CacheTTL <= 0 {
		return errors.New("config: SESSION_IDLE_TTL and CACHE_TTL must be positive")
	}
	return nil
}
