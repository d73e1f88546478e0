package config

import (
	"fmt"
	"strings"
	"time"

	pkgconfig "github.com/omendivilg/CoffeeBox/pkg/config"
	"github.com/omendivilg/CoffeeBox/pkg/database"
	"github.com/omendivilg/CoffeeBox/pkg/middleware"
	"github.com/omendivilg/CoffeeBox/pkg/tracing"
)

// ServiceName identifies this service in logs, metrics and traces.
const ServiceName = "coffeebox"

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

const defaultJWTSecret = "change-this-to-a-secure-secret"

// Config holds all configuration for the CoffeeBox API.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Version     string `env:"SERVICE_VERSION" envDefault:"dev"`

	// HTTP server
	HTTPPort            int           `env:"HTTP_PORT" envDefault:"8080"`
	HTTPReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Document store
	StoreDriver         string `env:"STORE_DRIVER" envDefault:"postgres"`
	StoreRequireIndexes bool   `env:"STORE_REQUIRE_INDEXES" envDefault:"true"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"coffeebox"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"coffeebox"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"coffeebox"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	DBMaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns        int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBMaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	LogSlowQueryMS    int           `env:"LOG_SLOW_QUERY_MS" envDefault:"200"`

	// Redis
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers             []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	EventsEnabled            bool     `env:"EVENTS_ENABLED" envDefault:"false"`
	ReconcileConsumerEnabled bool     `env:"RECONCILE_CONSUMER_ENABLED" envDefault:"false"`
	ReconcileConsumerGroup   string   `env:"RECONCILE_CONSUMER_GROUP" envDefault:"coffeebox-reconciler"`
	IdempotencyTTLHours      int      `env:"IDEMPOTENCY_TTL_HOURS" envDefault:"24"`

	// Identity
	JWTSecret           string `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTIssuer           string `env:"JWT_ISSUER"`
	IdentityUserInfoURL string `env:"IDENTITY_USERINFO_URL"`

	// Reconciliation and listing
	ListingLimit          int           `env:"LISTING_LIMIT" envDefault:"20"`
	ReconcileTolerance    float64       `env:"RECONCILE_TOLERANCE" envDefault:"0.1"`
	ReconcileConcurrency  int           `env:"RECONCILE_CONCURRENCY" envDefault:"4"`
	ReconcileWriteTimeout time.Duration `env:"RECONCILE_WRITE_TIMEOUT" envDefault:"5s"`

	// Review submission throttling, per user
	ReviewRateInterval time.Duration `env:"REVIEW_RATE_INTERVAL" envDefault:"10s"`
	ReviewRateBurst    int           `env:"REVIEW_RATE_BURST" envDefault:"5"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from the environment, falling back to a .env
// file in the working directory.
func Load() (*Config, error) {
	return LoadFrom(".env")
}

// LoadFrom is Load with explicit dotenv files.
func LoadFrom(files ...string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadWithDotenv(cfg, files...); err != nil {
		return nil, fmt.Errorf("load coffeebox config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	if c.StoreDriver != StoreDriverPostgres && c.StoreDriver != StoreDriverMemory {
		return fmt.Errorf("invalid STORE_DRIVER %q: want %q or %q", c.StoreDriver, StoreDriverPostgres, StoreDriverMemory)
	}

	if c.ListingLimit < 1 || c.ListingLimit > 100 {
		return fmt.Errorf("LISTING_LIMIT must be between 1 and 100, got %d", c.ListingLimit)
	}
	if c.ReconcileTolerance < 0 {
		return fmt.Errorf("RECONCILE_TOLERANCE must not be negative, got %g", c.ReconcileTolerance)
	}
	if c.ReconcileConcurrency < 1 {
		return fmt.Errorf("RECONCILE_CONCURRENCY must be at least 1, got %d", c.ReconcileConcurrency)
	}
	if c.ReconcileWriteTimeout <= 0 {
		return fmt.Errorf("RECONCILE_WRITE_TIMEOUT must be positive, got %s", c.ReconcileWriteTimeout)
	}
	if c.ReviewRateInterval <= 0 {
		return fmt.Errorf("REVIEW_RATE_INTERVAL must be positive, got %s", c.ReviewRateInterval)
	}
	if c.ReviewRateBurst < 1 {
		return fmt.Errorf("REVIEW_RATE_BURST must be at least 1, got %d", c.ReviewRateBurst)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0 and 1, got %g", c.OTELSampleRate)
	}
	if (c.EventsEnabled || c.ReconcileConsumerEnabled) && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when events are enabled")
	}
	if c.ReconcileConsumerEnabled && c.IdempotencyTTLHours < 1 {
		return fmt.Errorf("IDEMPOTENCY_TTL_HOURS must be at least 1, got %d", c.IdempotencyTTLHours)
	}

	// In non-development environments, require an explicitly set, strong JWT secret.
	if c.Environment != "development" {
		if c.JWTSecret == defaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", c.Environment)
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters long, got %d", len(c.JWTSecret))
		}
	}
	return nil
}

// Postgres returns the connection pool settings.
func (c *Config) Postgres() database.PostgresConfig {
	return database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: c.DBMaxConnLifetime,
		MaxConnIdleTime: c.DBMaxConnIdleTime,
	}
}

// Redis returns the Redis client settings.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// Tracing returns the tracer provider settings.
func (c *Config) Tracing() tracing.Config {
	return tracing.Config{
		ServiceName:    ServiceName,
		ServiceVersion: c.Version,
		Environment:    c.Environment,
		OTLPEndpoint:   c.OTELEndpoint,
		SampleRate:     c.OTELSampleRate,
		Enabled:        c.OTELEnabled,
	}
}

// ReviewRateLimit returns the throttle applied to review submissions.
func (c *Config) ReviewRateLimit() middleware.RateLimitConfig {
	return middleware.RateLimitConfig{Every: c.ReviewRateInterval, Burst: c.ReviewRateBurst}
}

// SlowQueryThreshold is the duration above which queries are logged.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.LogSlowQueryMS) * time.Millisecond
}

// IdempotencyTTL is how long processed event ids are remembered.
func (c *Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLHours) * time.Hour
}
