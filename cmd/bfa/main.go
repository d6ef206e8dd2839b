package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/freight-quote-bfa-go/internal/config"
	"github.com/boddenberg/freight-quote-bfa-go/internal/domain"
	"github.com/boddenberg/freight-quote-bfa-go/internal/handler"
	"github.com/boddenberg/freight-quote-bfa-go/internal/infra/cache"
	"github.com/boddenberg/freight-quote-bfa-go/internal/infra/client"
	"github.com/boddenberg/freight-quote-bfa-go/internal/infra/observability"
	"github.com/boddenberg/freight-quote-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/freight-quote-bfa-go/internal/infra/supabase"
	"github.com/boddenberg/freight-quote-bfa-go/internal/port"
	"github.com/boddenberg/freight-quote-bfa-go/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("legacy_rates_url", cfg.LegacyRatesURL),
		zap.Bool("ai_advisor", cfg.AIAdvisorURL != ""),
		zap.Bool("compliance", cfg.ComplianceURL != ""),
		zap.Bool("use_supabase", cfg.SupabaseEnabled()),
		zap.Bool("redis_cache", cfg.RedisURL != ""),
		zap.Bool("auth_enabled", cfg.AuthEnabled),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("aggregate_timeout", cfg.AggregateTimeout),
		zap.Duration("source_timeout", cfg.SourceTimeout),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.String("default_margin_percent", cfg.DefaultMarginPercent.String()),
		zap.String("locale", cfg.Locale),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, observability.ServiceName)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	deps := service.QuoteDeps{
		Simulator: service.NewRateSimulator(cfg.SimulatedOptions),
	}
	if cfg.LegacyRatesURL != "" {
		deps.Legacy = client.NewLegacyRatesClient(httpClient, cfg.LegacyRatesURL, resilience.NewCircuitBreaker("legacy-rates"), resilienceCfg)
	} else {
		logger.Warn("legacy rates URL not set, every combination will be simulated")
	}
	if cfg.AIAdvisorURL != "" {
		deps.AI = client.NewAIAdvisorClient(httpClient, cfg.AIAdvisorURL, resilience.NewCircuitBreaker("ai-advisor"), resilienceCfg)
	}
	if cfg.ComplianceURL != "" {
		deps.Compliance = client.NewComplianceClient(httpClient, cfg.ComplianceURL, resilience.NewCircuitBreaker("compliance"), resilienceCfg)
	}

	// --- Supabase + carrier cache ---
	if cfg.SupabaseEnabled() {
		logger.Info("using Supabase for quote history and carriers",
			zap.String("supabase_url", cfg.SupabaseURL),
		)
		sb := supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase"),
			resilienceCfg,
			logger,
		)
		deps.History = sb
		deps.Carriers = service.NewCarrierDirectory(sb, newCarrierCache(cfg, logger), metrics, logger)
	} else {
		logger.Warn("Supabase not configured, quote history and carrier routes unavailable")
	}

	// --- Services ---
	normalizer := service.NewNormalizer(cfg.Locale)
	aggregator := service.NewAggregator(normalizer, cfg.MaxConcurrency, logger).WithSourceTimeout(cfg.SourceTimeout)
	quoteSvc := service.NewQuoteService(deps, aggregator, normalizer, cfg.DefaultMarginPercent, metrics, logger)

	var tokens *service.TokenValidator
	if cfg.AuthEnabled {
		tokens = service.NewTokenValidator(cfg.JWTSecret, cfg.JWTIssuer)
		logger.Info("bearer token auth enabled on /v1", zap.String("issuer", cfg.JWTIssuer))
	}

	// --- Router ---
	router := handler.NewRouter(quoteSvc, tokens, cfg.AggregateTimeout, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.AggregateTimeout + 10*time.Second,
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

// newCarrierCache returns a Redis-backed cache when QUOTE_REDIS_URL is set and
// reachable, and an in-memory one otherwise.
func newCarrierCache(cfg *config.Config, logger *zap.Logger) port.Cache[[]domain.Carrier] {
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err == nil {
			logger.Info("carrier cache backed by Redis")
			return cache.NewRedis[[]domain.Carrier](rdb, "carriers", cfg.CarrierCacheTTL, logger)
		}
		logger.Warn("redis unavailable, falling back to in-memory carrier cache", zap.Error(err))
	}
	return cache.New[[]domain.Carrier](cfg.CarrierCacheTTL)
}
