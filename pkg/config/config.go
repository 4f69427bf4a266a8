package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/quartermaster/pkg/observability"
	"github.com/platinummonkey/quartermaster/pkg/storage"
)

// Cache modes for capability decisions
const (
	CacheModeNone   = "none"
	CacheModeMemory = "memory"
	CacheModeRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	// Ops server (health and metrics)
	Ops OpsConfig

	// Database connection
	Database storage.ConnectionConfig

	// Redis connection; optional unless the redis cache is selected
	Redis storage.RedisConfig

	// Capability decision cache
	Cache CacheConfig

	// Capability policy
	Policy PolicyConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// OpsConfig holds the ops HTTP server configuration
type OpsConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Addr returns the listen address
func (o OpsConfig) Addr() string {
	return o.Host + ":" + o.Port
}

// CacheConfig selects and sizes the decision cache
type CacheConfig struct {
	Mode string
	TTL  time.Duration
	Size int
}

// PolicyConfig locates the capability policy file. An empty File uses the
// built-in policy.
type PolicyConfig struct {
	File  string
	Watch bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// OTel converts the settings into the observability OTel config
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
	}
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	database, err := loadDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg := &Config{
		Ops:           loadOpsConfig(),
		Database:      database,
		Redis:         loadRedisConfig(),
		Cache:         loadCacheConfig(),
		Policy:        loadPolicyConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadOpsConfig loads ops server configuration from environment
func loadOpsConfig() OpsConfig {
	return OpsConfig{
		Host:            getEnv("QM_OPS_HOST", "0.0.0.0"),
		Port:            getEnv("QM_OPS_PORT", "9090"),
		ReadTimeout:     getEnvDuration("QM_OPS_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("QM_OPS_WRITE_TIMEOUT", 15*time.Second),
		ShutdownTimeout: getEnvDuration("QM_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// loadDatabaseConfig loads database configuration from environment
func loadDatabaseConfig() (storage.ConnectionConfig, error) {
	dialect, err := storage.ParseDialect(getEnv("QM_DB_DRIVER", "sqlite3"))
	if err != nil {
		return storage.ConnectionConfig{}, err
	}

	defaultURL := "file:quartermaster.db?_foreign_keys=on"
	if dialect == storage.DialectPostgres {
		defaultURL = ""
	}

	return storage.ConnectionConfig{
		Dialect:     dialect,
		PrimaryURL:  getEnv("QM_DB_URL", defaultURL),
		ReplicaURLs: storage.ParseReplicaURLs(getEnv("QM_DB_REPLICA_URLS", "")),
		MaxConns:    getEnvInt("QM_DB_MAX_CONNS", 20),
		MinConns:    getEnvInt("QM_DB_MIN_CONNS", 2),
		Timeout:     getEnvDuration("QM_DB_TIMEOUT", 5*time.Second),
		MaxLifetime: getEnvDuration("QM_DB_MAX_LIFETIME", 30*time.Minute),
		MaxIdleTime: getEnvDuration("QM_DB_MAX_IDLE_TIME", 5*time.Minute),
	}, nil
}

// loadRedisConfig loads redis configuration from environment
func loadRedisConfig() storage.RedisConfig {
	return storage.RedisConfig{
		URL:        getEnv("QM_REDIS_URL", ""),
		Password:   getEnv("QM_REDIS_PASSWORD", ""),
		DB:         getEnvInt("QM_REDIS_DB", 0),
		MaxRetries: getEnvInt("QM_REDIS_MAX_RETRIES", 3),
		PoolSize:   getEnvInt("QM_REDIS_POOL_SIZE", 10),
	}
}

// loadCacheConfig loads decision cache configuration from environment
func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Mode: strings.ToLower(getEnv("QM_CACHE_MODE", CacheModeNone)),
		TTL:  getEnvDuration("QM_CACHE_TTL", 30*time.Second),
		Size: getEnvInt("QM_CACHE_SIZE", 10000),
	}
}

// loadPolicyConfig loads policy configuration from environment
func loadPolicyConfig() PolicyConfig {
	return PolicyConfig{
		File:  getEnv("QM_POLICY_FILE", ""),
		Watch: getEnvBool("QM_POLICY_WATCH", true),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("QM_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("QM_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("QM_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("QM_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("QM_OTEL_SERVICE_NAME", "quartermaster"),
		OTelServiceVersion: getEnv("QM_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("QM_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Ops.Port == "" {
		return fmt.Errorf("ops port is required")
	}

	if c.Database.PrimaryURL == "" {
		return fmt.Errorf("database URL is required for %s", c.Database.Dialect)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("database max connections must be positive")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database min connections (%d) exceed max connections (%d)", c.Database.MinConns, c.Database.MaxConns)
	}

	switch c.Cache.Mode {
	case CacheModeNone:
	case CacheModeMemory:
		if c.Cache.Size < 1 {
			return fmt.Errorf("cache size must be positive for memory cache")
		}
	case CacheModeRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis URL is required for redis cache")
		}
	default:
		return fmt.Errorf("invalid cache mode: %s (must be none, memory, or redis)", c.Cache.Mode)
	}
	if c.Cache.Mode != CacheModeNone && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}

	// Validate OpenTelemetry config
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
