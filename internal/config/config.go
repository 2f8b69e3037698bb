package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port     int    `json:"port"`
	Host     string `json:"host"`
	LogLevel string `json:"log_level"`

	// Database configuration
	DatabaseType string `json:"database_type"` // "postgres" is the reference dialect
	DatabaseURL  string `json:"database_url"`
	Schema       string `json:"schema"` // database schema exposed over GraphQL

	// Catalog cache configuration
	SchemaCacheTTL    time.Duration `json:"schema_cache_ttl"`
	RolePrivilegesTTL time.Duration `json:"role_privileges_ttl"` // reserved
	GraphQLCacheTTL   time.Duration `json:"graphql_cache_ttl"`   // reserved

	// Security configuration
	RoleBasedSchema bool  `json:"role_based_schema"`
	MaxDepth        int   `json:"max_depth"`
	MaxComplexity   int   `json:"max_complexity"`
	MaxRequestBytes int64 `json:"max_request_bytes"`
	Introspection   bool  `json:"introspection"`
	AllowedOrigins  []string `json:"allowed_origins"`

	// CDC configuration
	CDCEnabled           bool          `json:"cdc_enabled"`
	CDCSlotName          string        `json:"cdc_slot_name"`
	CDCPublicationName   string        `json:"cdc_publication_name"`
	CDCHeartbeatInterval time.Duration `json:"cdc_heartbeat_interval"`

	// Rate limiting configuration (optional Redis backend)
	EnableRateLimit    bool   `json:"enable_rate_limit"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute"`
	RedisAddr          string `json:"redis_addr"`
	RedisPassword      string `json:"redis_password"`
	RedisDB            int    `json:"redis_db"`
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     getEnvAsInt("PGBRIDGE_PORT", 8080),
		Host:     getEnv("PGBRIDGE_HOST", "0.0.0.0"),
		LogLevel: getEnv("PGBRIDGE_LOG_LEVEL", "info"),

		DatabaseType: getEnv("PGBRIDGE_DATABASE_TYPE", "postgres"),
		DatabaseURL:  getEnv("PGBRIDGE_DATABASE_URL", ""),
		Schema:       getEnv("PGBRIDGE_SCHEMA", "public"),

		SchemaCacheTTL:    time.Duration(getEnvAsInt("PGBRIDGE_SCHEMA_CACHE_TTL_MINUTES", 30)) * time.Minute,
		RolePrivilegesTTL: time.Duration(getEnvAsInt("PGBRIDGE_ROLE_PRIVILEGES_TTL_MINUTES", 5)) * time.Minute,
		GraphQLCacheTTL:   time.Duration(getEnvAsInt("PGBRIDGE_GRAPHQL_CACHE_TTL_MINUTES", 30)) * time.Minute,

		RoleBasedSchema: getEnvAsBool("PGBRIDGE_ROLE_BASED_SCHEMA", false),
		MaxDepth:        getEnvAsInt("PGBRIDGE_MAX_DEPTH", 8),
		MaxComplexity:   getEnvAsInt("PGBRIDGE_MAX_COMPLEXITY", 500),
		MaxRequestBytes: getEnvAsInt64("PGBRIDGE_MAX_REQUEST_BYTES", 1024*1024),
		Introspection:   getEnvAsBool("PGBRIDGE_INTROSPECTION", true),
		AllowedOrigins:  getEnvAsStringSlice("PGBRIDGE_ALLOWED_ORIGINS", []string{"*"}),

		CDCEnabled:           getEnvAsBool("PGBRIDGE_CDC_ENABLED", false),
		CDCSlotName:          getEnv("PGBRIDGE_CDC_SLOT_NAME", "pgbridge_slot"),
		CDCPublicationName:   getEnv("PGBRIDGE_CDC_PUBLICATION", "pgbridge_pub"),
		CDCHeartbeatInterval: time.Duration(getEnvAsInt("PGBRIDGE_CDC_HEARTBEAT_SECONDS", 30)) * time.Second,

		EnableRateLimit:    getEnvAsBool("PGBRIDGE_ENABLE_RATE_LIMIT", false),
		RateLimitPerMinute: getEnvAsInt("PGBRIDGE_RATE_LIMIT_PER_MINUTE", 300),
		RedisAddr:          getEnv("PGBRIDGE_REDIS_ADDR", ""),
		RedisPassword:      getEnv("PGBRIDGE_REDIS_PASSWORD", ""),
		RedisDB:            getEnvAsInt("PGBRIDGE_REDIS_DB", 0),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// validateConfig checks configuration consistency before startup
func validateConfig(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("PGBRIDGE_DATABASE_URL is required")
	}
	if _, err := url.Parse(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("invalid database URL: %w", err)
	}
	if cfg.DatabaseType != "postgres" {
		return fmt.Errorf("unsupported database type: %s", cfg.DatabaseType)
	}
	if cfg.Schema == "" {
		return fmt.Errorf("PGBRIDGE_SCHEMA must not be empty")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.MaxDepth < 1 {
		return fmt.Errorf("PGBRIDGE_MAX_DEPTH must be at least 1")
	}
	if cfg.MaxComplexity < 1 {
		return fmt.Errorf("PGBRIDGE_MAX_COMPLEXITY must be at least 1")
	}
	if cfg.MaxRequestBytes < 1 {
		return fmt.Errorf("PGBRIDGE_MAX_REQUEST_BYTES must be positive")
	}
	if cfg.CDCEnabled {
		if cfg.CDCSlotName == "" {
			return fmt.Errorf("PGBRIDGE_CDC_SLOT_NAME is required when CDC is enabled")
		}
		if cfg.CDCPublicationName == "" {
			return fmt.Errorf("PGBRIDGE_CDC_PUBLICATION is required when CDC is enabled")
		}
		if cfg.CDCHeartbeatInterval < time.Second {
			return fmt.Errorf("PGBRIDGE_CDC_HEARTBEAT_SECONDS must be at least 1")
		}
	}
	if cfg.EnableRateLimit && cfg.RateLimitPerMinute < 1 {
		return fmt.Errorf("PGBRIDGE_RATE_LIMIT_PER_MINUTE must be positive")
	}
	return nil
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvAsInt gets an environment variable as integer with a fallback value
func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvAsInt64 gets an environment variable as int64 with a fallback value
func getEnvAsInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvAsBool gets an environment variable as boolean with a fallback value
func getEnvAsBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// getEnvAsStringSlice gets an environment variable as string slice with a fallback value
func getEnvAsStringSlice(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return fallback
}
