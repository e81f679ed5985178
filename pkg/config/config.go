package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/openfed/manage/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Schema registry configuration
	Schema SchemaConfig

	// Downstream push configuration
	Push PushConfig

	// OIDC client registry configuration
	OIDC OIDCConfig

	// Feed import configuration
	Feed FeedConfig

	// Observability configuration
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

// SchemaConfig holds schema registry settings
type SchemaConfig struct {
	// Dir is an optional directory of YAML schema overrides. When set the
	// registry reloads it on file changes.
	Dir   string
	Watch bool
}

// PushConfig holds downstream push settings
type PushConfig struct {
	Endpoint string
	Username string
	Password string
}

// OIDCConfig holds client registry settings
type OIDCConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// FeedConfig holds metadata feed import settings
type FeedConfig struct {
	URL     string
	Timeout time.Duration

	// SweepSchedule is a cron expression for the orphaned-archive sweep.
	SweepSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Schema:        loadSchemaConfig(),
		Push:          loadPushConfig(),
		OIDC:          loadOIDCConfig(),
		Feed:          loadFeedConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("MANAGE_HOST", "0.0.0.0"),
		Port:            getEnv("MANAGE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("MANAGE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("MANAGE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("MANAGE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("MANAGE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("MANAGE_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if storageType := getEnv("MANAGE_STORAGE_TYPE", ""); storageType != "" {
		cfg.Type = storageType
	}
	if pgURL := getEnv("MANAGE_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if maxConns := getEnvInt("MANAGE_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if timeout := getEnvDuration("MANAGE_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}
	if cacheEnabled := getEnv("MANAGE_CACHE_ENABLED", ""); cacheEnabled != "" {
		cfg.CacheEnabled = strings.ToLower(cacheEnabled) == "true"
	}
	if cacheSize := getEnvInt("MANAGE_CACHE_SIZE", 0); cacheSize > 0 {
		cfg.CacheSize = cacheSize
	}

	return cfg
}

// loadSchemaConfig loads schema registry configuration from environment
func loadSchemaConfig() SchemaConfig {
	return SchemaConfig{
		Dir:   getEnv("MANAGE_SCHEMA_DIR", ""),
		Watch: getEnvBool("MANAGE_SCHEMA_WATCH", true),
	}
}

// loadPushConfig loads downstream push configuration from environment
func loadPushConfig() PushConfig {
	return PushConfig{
		Endpoint: getEnv("MANAGE_PUSH_ENDPOINT", ""),
		Username: getEnv("MANAGE_PUSH_USERNAME", ""),
		Password: getEnv("MANAGE_PUSH_PASSWORD", ""),
	}
}

// loadOIDCConfig loads client registry configuration from environment
func loadOIDCConfig() OIDCConfig {
	return OIDCConfig{
		BaseURL:      getEnv("MANAGE_OIDC_BASE_URL", ""),
		TokenURL:     getEnv("MANAGE_OIDC_TOKEN_URL", ""),
		ClientID:     getEnv("MANAGE_OIDC_CLIENT_ID", ""),
		ClientSecret: getEnv("MANAGE_OIDC_CLIENT_SECRET", ""),
		Timeout:      getEnvDuration("MANAGE_OIDC_TIMEOUT", 10*time.Second),
	}
}

// loadFeedConfig loads feed import configuration from environment
func loadFeedConfig() FeedConfig {
	return FeedConfig{
		URL:           getEnv("MANAGE_FEED_URL", ""),
		Timeout:       getEnvDuration("MANAGE_FEED_TIMEOUT", 30*time.Second),
		SweepSchedule: getEnv("MANAGE_SWEEP_SCHEDULE", "@every 1h"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       getEnv("MANAGE_LOG_LEVEL", "info"),
		MetricsEnabled: getEnvBool("MANAGE_METRICS_ENABLED", true),
	}
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

	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory or postgres)", c.Storage.Type)
	}

	if c.OIDC.BaseURL != "" && c.OIDC.TokenURL != "" {
		if c.OIDC.ClientID == "" || c.OIDC.ClientSecret == "" {
			return fmt.Errorf("OIDC client credentials are required when a token URL is set")
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
