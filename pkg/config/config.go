package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/askdata/pkg/observability"
)

// Storage backend types.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Auth provider modes.
const (
	AuthStatic = "static"
	AuthOIDC   = "oidc"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       StorageConfig
	Stripe        StripeConfig
	Auth          AuthConfig
	Limits        LimitsConfig
	Retention     RetentionConfig
	Answerer      AnswererConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Backend     string // memory or postgres
	PostgresURL string
	MaxConns    int

	// Redis backs webhook dedup when set; empty falls back to the
	// in-process LRU deduper.
	RedisURL      string
	RedisPassword string
	RedisDB       int
}

// StripeConfig holds Stripe API and webhook settings.
type StripeConfig struct {
	APIBase       string
	SecretKey     string
	WebhookSecret string
	ProPriceID    string
	SuccessURL    string
	CancelURL     string
}

// AuthConfig selects the identity provider.
type AuthConfig struct {
	Mode string // static or oidc

	// OIDC settings
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Static (dev) user
	StaticUserID    string
	StaticUserEmail string
}

// LimitsConfig overrides catalog defaults.
type LimitsConfig struct {
	// FreeDailyLimit overrides the free tier's daily analysis allowance.
	// Zero keeps the default.
	FreeDailyLimit int
}

// RetentionConfig controls the history retention sweep.
type RetentionConfig struct {
	SweepSchedule string // cron expression
	DedupWindow   time.Duration
}

// AnswererConfig points at the inference backend.
type AnswererConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("ASKDATA_HOST", "0.0.0.0"),
			Port:            getEnv("ASKDATA_PORT", "8080"),
			ReadTimeout:     getEnvDuration("ASKDATA_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("ASKDATA_WRITE_TIMEOUT", 120*time.Second),
			IdleTimeout:     getEnvDuration("ASKDATA_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("ASKDATA_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("ASKDATA_HEALTH_PORT", "9090"),
		},
		Storage: StorageConfig{
			Backend:       getEnv("ASKDATA_STORAGE_BACKEND", StorageMemory),
			PostgresURL:   getEnv("ASKDATA_POSTGRES_URL", ""),
			MaxConns:      getEnvInt("ASKDATA_POSTGRES_MAX_CONNS", 20),
			RedisURL:      getEnv("ASKDATA_REDIS_URL", ""),
			RedisPassword: getEnv("ASKDATA_REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("ASKDATA_REDIS_DB", -1),
		},
		Stripe: StripeConfig{
			APIBase:       getEnv("ASKDATA_STRIPE_API_BASE", ""),
			SecretKey:     getEnv("ASKDATA_STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("ASKDATA_STRIPE_WEBHOOK_SECRET", ""),
			ProPriceID:    getEnv("ASKDATA_STRIPE_PRO_PRICE_ID", ""),
			SuccessURL:    getEnv("ASKDATA_CHECKOUT_SUCCESS_URL", "http://localhost:3000/upgrade/success"),
			CancelURL:     getEnv("ASKDATA_CHECKOUT_CANCEL_URL", "http://localhost:3000/upgrade/cancel"),
		},
		Auth: AuthConfig{
			Mode:            getEnv("ASKDATA_AUTH_MODE", AuthStatic),
			Issuer:          getEnv("ASKDATA_OIDC_ISSUER", ""),
			ClientID:        getEnv("ASKDATA_OIDC_CLIENT_ID", ""),
			ClientSecret:    getEnv("ASKDATA_OIDC_CLIENT_SECRET", ""),
			RedirectURL:     getEnv("ASKDATA_OIDC_REDIRECT_URL", ""),
			StaticUserID:    getEnv("ASKDATA_STATIC_USER_ID", "dev-user"),
			StaticUserEmail: getEnv("ASKDATA_STATIC_USER_EMAIL", "dev@localhost"),
		},
		Limits: LimitsConfig{
			FreeDailyLimit: getEnvInt("ASKDATA_FREE_DAILY_LIMIT", 0),
		},
		Retention: RetentionConfig{
			SweepSchedule: getEnv("ASKDATA_RETENTION_SCHEDULE", "0 3 * * *"),
			DedupWindow:   getEnvDuration("ASKDATA_WEBHOOK_DEDUP_WINDOW", 72*time.Hour),
		},
		Answerer: AnswererConfig{
			Endpoint: getEnv("ASKDATA_ANSWERER_ENDPOINT", ""),
			Timeout:  getEnvDuration("ASKDATA_ANSWERER_TIMEOUT", 60*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:           observability.ParseLevel(getEnv("ASKDATA_LOG_LEVEL", "info")),
			MetricsEnabled:     getEnvBool("ASKDATA_METRICS_ENABLED", true),
			OTelEnabled:        getEnvBool("ASKDATA_OTEL_ENABLED", false),
			OTelEndpoint:       getEnv("ASKDATA_OTEL_ENDPOINT", "localhost:4317"),
			OTelServiceName:    getEnv("ASKDATA_OTEL_SERVICE_NAME", "askdata"),
			OTelServiceVersion: getEnv("ASKDATA_OTEL_SERVICE_VERSION", "1.0.0"),
			OTelInsecure:       getEnvBool("ASKDATA_OTEL_INSECURE", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Storage.Backend {
	case StorageMemory:
	case StoragePostgres:
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be memory or postgres)", c.Storage.Backend)
	}

	if c.Stripe.WebhookSecret == "" {
		return fmt.Errorf("stripe webhook secret is required")
	}

	switch c.Auth.Mode {
	case AuthStatic:
		if c.Auth.StaticUserID == "" {
			return fmt.Errorf("static user ID is required for static auth")
		}
	case AuthOIDC:
		if c.Auth.Issuer == "" || c.Auth.ClientID == "" {
			return fmt.Errorf("OIDC issuer and client ID are required for oidc auth")
		}
	default:
		return fmt.Errorf("invalid auth mode: %s (must be static or oidc)", c.Auth.Mode)
	}

	if c.Limits.FreeDailyLimit < 0 {
		return fmt.Errorf("free daily limit must not be negative")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
