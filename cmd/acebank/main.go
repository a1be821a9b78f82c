package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/acebanks/acebank-api-go/internal/config"
	"github.com/acebanks/acebank-api-go/internal/domain"
	"github.com/acebanks/acebank-api-go/internal/handler"
	"github.com/acebanks/acebank-api-go/internal/infra/cache"
	"github.com/acebanks/acebank-api-go/internal/infra/memstore"
	"github.com/acebanks/acebank-api-go/internal/infra/observability"
	"github.com/acebanks/acebank-api-go/internal/infra/resilience"
	"github.com/acebanks/acebank-api-go/internal/infra/supabase"
	"github.com/acebanks/acebank-api-go/internal/port"
	"github.com/acebanks/acebank-api-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("use_supabase", cfg.UseSupabase),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Duration("jwt_access_ttl", cfg.JWTAccessTTL),
		zap.Duration("jwt_refresh_ttl", cfg.JWTRefreshTTL),
		zap.Int("max_failed_attempts", cfg.MaxFailedAttempts),
		zap.Duration("lockout_duration", cfg.LockoutDuration),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(context.Background(), "acebank-api", cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	emailCache := cache.New[domain.User](cfg.CacheTTL)

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("supabase")

	// --- Stores ---
	var (
		ledgerStore  port.LedgerStore
		lockoutStore port.LockoutStore
		identity     port.IdentityProvider
		tokenStore   port.TokenStore
		ready        handler.ReadinessProbe
	)

	if cfg.UseSupabase && cfg.SupabaseURL != "" {
		logger.Info("using Supabase as data backend",
			zap.String("supabase_url", cfg.SupabaseURL),
		)
		httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
		sb := supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			cb,
			resilienceCfg,
			logger,
		)
		ledgerStore = sb
		lockoutStore = sb
		identity = sb
		tokenStore = sb
		ready = sb.Health
	} else {
		logger.Warn("Supabase not configured, using in-memory store (data is not persisted)")
		mem := memstore.New()
		ledgerStore = mem
		lockoutStore = mem
		identity = mem
		tokenStore = mem
	}

	// --- Services ---
	lockoutSvc := service.NewLockoutService(lockoutStore, cfg.MaxFailedAttempts, cfg.LockoutDuration, metrics, logger)
	authSvc := service.NewAuthService(identity, tokenStore, lockoutSvc, cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL, metrics, logger)
	ledgerSvc := service.NewLedgerService(ledgerStore, emailCache, metrics, logger)

	// --- Router ---
	router := handler.NewRouter(ledgerSvc, authSvc, metrics, ready, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
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
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
