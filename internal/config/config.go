package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// EnvPrefix prefixes every environment variable (QUOTE_PORT, QUOTE_LOG_LEVEL, ...).
const EnvPrefix = "QUOTE"

// Config holds all application configuration.
type Config struct {
	// Server
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Rate sources. An empty AI advisor or compliance URL disables that source.
	LegacyRatesURL string `envconfig:"LEGACY_RATES_URL" default:"http://localhost:8081"`
	AIAdvisorURL   string `envconfig:"AI_ADVISOR_URL"`
	ComplianceURL  string `envconfig:"COMPLIANCE_URL"`

	// HTTP client and aggregation deadline
	HTTPTimeout      time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`
	AggregateTimeout time.Duration `envconfig:"AGGREGATE_TIMEOUT" default:"20s"`
	// SourceTimeout caps the upstream fan-out so simulation can still answer
	// inside AggregateTimeout.
	SourceTimeout time.Duration `envconfig:"SOURCE_TIMEOUT" default:"15s"`

	// Resilience
	MaxRetries     int           `envconfig:"MAX_RETRIES" default:"2"`
	InitialBackoff time.Duration `envconfig:"INITIAL_BACKOFF" default:"100ms"`
	MaxConcurrency int           `envconfig:"MAX_CONCURRENCY" default:"16"`

	// Simulation
	SimulatedOptions int `envconfig:"SIMULATED_OPTIONS" default:"4"`

	// Cache. An empty Redis URL keeps the carrier cache in memory.
	CarrierCacheTTL time.Duration `envconfig:"CARRIER_CACHE_TTL" default:"10m"`
	RedisURL        string        `envconfig:"REDIS_URL"`

	// Observability. An empty endpoint disables trace export.
	OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`

	// Supabase
	SupabaseURL        string `envconfig:"SUPABASE_URL"`
	SupabaseAnonKey    string `envconfig:"SUPABASE_ANON_KEY"`
	SupabaseServiceKey string `envconfig:"SUPABASE_SERVICE_ROLE_KEY"`
	UseSupabase        bool   `envconfig:"USE_SUPABASE" default:"true"`

	// JWT / Auth
	AuthEnabled bool   `envconfig:"AUTH_ENABLED" default:"false"`
	JWTSecret   string `envconfig:"JWT_SECRET" default:"quote-bfa-default-dev-secret-change-me"`
	JWTIssuer   string `envconfig:"JWT_ISSUER" default:"freight-quote-bfa"`

	// Quoting
	DefaultMarginPercent decimal.Decimal `envconfig:"DEFAULT_MARGIN_PERCENT" default:"15"`
	Locale               string          `envconfig:"LOCALE" default:"en"`
}

// Load reads configuration from QUOTE_* environment variables with defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("%s_PORT out of range: %d", EnvPrefix, c.Port))
	}
	if c.SourceTimeout <= 0 || c.SourceTimeout >= c.AggregateTimeout {
		errs = append(errs, fmt.Errorf("%s_SOURCE_TIMEOUT must be positive and below %s_AGGREGATE_TIMEOUT: %s", EnvPrefix, EnvPrefix, c.SourceTimeout))
	}
	if c.DefaultMarginPercent.IsNegative() || c.DefaultMarginPercent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		errs = append(errs, fmt.Errorf("%s_DEFAULT_MARGIN_PERCENT must be in [0, 100): %s", EnvPrefix, c.DefaultMarginPercent))
	}
	if c.AuthEnabled && len(c.JWTSecret) < 16 {
		errs = append(errs, fmt.Errorf("%s_JWT_SECRET must be at least 16 bytes when auth is enabled", EnvPrefix))
	}
	if c.UseSupabase && c.SupabaseURL != "" && c.SupabaseServiceKey == "" {
		errs = append(errs, fmt.Errorf("%s_SUPABASE_SERVICE_ROLE_KEY is required with %s_SUPABASE_URL", EnvPrefix, EnvPrefix))
	}
	return errors.Join(errs...)
}

// SupabaseEnabled reports whether quote history and carriers are backed by Supabase.
func (c *Config) SupabaseEnabled() bool {
	return c.UseSupabase && c.SupabaseURL != ""
}
