package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	// Timezone validation must not depend on the host's zoneinfo.
	_ "time/tzdata"

	"github.com/boddenberg/timely-go/internal/config"
	"github.com/boddenberg/timely-go/internal/domain"
	"github.com/boddenberg/timely-go/internal/handler"
	"github.com/boddenberg/timely-go/internal/infra/cache"
	"github.com/boddenberg/timely-go/internal/infra/memory"
	"github.com/boddenberg/timely-go/internal/infra/observability"
	"github.com/boddenberg/timely-go/internal/infra/postgres"
	"github.com/boddenberg/timely-go/internal/infra/resilience"
	"github.com/boddenberg/timely-go/internal/infra/supabase"
	"github.com/boddenberg/timely-go/internal/port"
	"github.com/boddenberg/timely-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		runMigrate(cfg, os.Args[2:], logger)
		return
	}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("backend", cfg.Backend),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Duration("session_idle_ttl", cfg.SessionIdleTTL),
		zap.Duration("sign_in_confirm_timeout", cfg.SignInConfirmTimeout),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.String("onboarding_flow", cfg.OnboardingFlow),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "timely-api")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Backend ---
	ctx := context.Background()
	be, closeBackend, err := newBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to init backend", zap.Error(err))
	}
	defer closeBackend()

	// --- Services ---
	questions, err := domain.QuestionsForFlow(cfg.OnboardingFlow)
	if err != nil {
		logger.Fatal("invalid onboarding flow", zap.Error(err))
	}
	sessions := handler.NewSessions(be.credentials, be.profiles, service.SessionConfig{
		Questions: questions,
	}, cfg.SessionIdleTTL, metrics, logger)

	authSvc := service.NewAuthService(service.AuthConfig{
		ConfirmTimeout:    cfg.SignInConfirmTimeout,
		AttemptsPerMinute: cfg.SignInRate,
	}, metrics, logger)

	meetingTypeCache := cache.New[[]domain.MeetingType](cfg.CacheTTL)
	defer meetingTypeCache.Stop()
	ws := service.NewWorkspace(be.scheduling, meetingTypeCache, cfg.DefaultTimezone, metrics, logger)

	// --- Router ---
	router := handler.NewRouter(sessions, authSvc, ws, be.deps, metrics, logger)

	// --- Server ---
	// No WriteTimeout: /events streams for the lifetime of the session.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")

	// Closing the sessions ends every open event stream.
	sessions.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// backend bundles the adapters selected by BACKEND.
type backend struct {
	credentials port.CredentialProviderFactory
	profiles    port.ProfileStore
	scheduling  port.SchedulingStore
	deps        []handler.Dependency
}

func newBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (backend, func(), error) {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	// Supabase Auth handles credentials whenever it is configured, whatever
	// stores the documents.
	var credentials port.CredentialProviderFactory
	if cfg.SupabaseURL != "" && cfg.SupabaseJWTSecret != "" {
		credentials = supabase.NewAuthProvider(httpClient, cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.SupabaseJWTSecret, logger)
	} else {
		logger.Warn("credentials: Supabase Auth not configured, using in-memory accounts")
		credentials = memory.NewAccounts()
	}

	switch cfg.Backend {
	case config.BackendSupabase:
		logger.Info("using Supabase as data backend", zap.String("supabase_url", cfg.SupabaseURL))
		guard := resilience.NewGuard("supabase", resilience.Config{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
			MaxConcurrency: cfg.MaxConcurrency,
			Retryable:      domain.IsTransient,
		})
		client := supabase.NewClient(httpClient, cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.SupabaseServiceKey, guard, logger)
		return backend{
			credentials: credentials,
			profiles:    supabase.NewProfileStore(client),
			scheduling:  supabase.NewSchedulingStore(client),
			deps:        []handler.Dependency{{Name: "supabase", Pinger: client}},
		}, func() {}, nil

	case config.BackendPostgres:
		logger.Info("using Postgres as data backend")
		if err := postgres.Migrate(cfg.DatabaseURL, "up"); err != nil {
			return backend{}, nil, err
		}
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return backend{}, nil, err
		}
		profiles := postgres.NewProfileStore(pool)
		return backend{
			credentials: credentials,
			profiles:    profiles,
			scheduling:  postgres.NewSchedulingStore(pool),
			deps:        []handler.Dependency{{Name: "postgres", Pinger: profiles}},
		}, pool.Close, nil

	default:
		logger.Warn("using in-memory data backend, data is lost on restart")
		profiles := memory.NewProfileStore()
		return backend{
			credentials: credentials,
			profiles:    profiles,
			scheduling:  memory.NewSchedulingStore(),
			deps:        []handler.Dependency{{Name: "memory", Pinger: profiles}},
		}, func() {}, nil
	}
}

// runMigrate implements `timely migrate up|down`.
func runMigrate(cfg *config.Config, args []string, logger *zap.Logger) {
	direction := "up"
	if len(args) > 0 {
		direction = args[0]
	}
	if err := postgres.Migrate(cfg.DatabaseURL, direction); err != nil {
		logger.Fatal("migration failed", zap.String("direction", direction), zap.Error(err))
	}
	logger.Info("migration complete", zap.String("direction", direction))
}
