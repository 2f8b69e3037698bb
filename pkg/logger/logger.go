package logger

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"
	// DatabaseRoleKey is the context key for the resolved database role
	DatabaseRoleKey ContextKey = "database_role"
)

// Config holds logger configuration
type Config struct {
	Level      string
	Format     string // "json" or "console"
	Output     string // "stdout" or "stderr"
	TimeFormat string
}

// New creates a new logger with the specified level and configuration
func New(level string) zerolog.Logger {
	return NewWithConfig(Config{
		Level:      level,
		Format:     "json",
		Output:     "stderr",
		TimeFormat: time.RFC3339,
	})
}

// NewWithConfig creates a new logger with custom configuration
func NewWithConfig(cfg Config) zerolog.Logger {
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	} else {
		zerolog.TimeFieldFormat = time.RFC3339
	}

	var output *os.File
	switch cfg.Output {
	case "stdout":
		output = os.Stdout
	default:
		output = os.Stderr
	}

	var logger zerolog.Logger
	if cfg.Format == "console" || (strings.ToLower(os.Getenv("GO_ENV")) != "production" && cfg.Format != "json") {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: "2006-01-02 15:04:05",
			FormatLevel: func(i interface{}) string {
				return strings.ToUpper(fmt.Sprintf("| %-5s |", i))
			},
		}
		logger = zerolog.New(consoleWriter).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(output).With().Timestamp().Logger()
	}

	logLevel, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	return logger.With().Str("service", "pgbridge").Logger()
}

// WithRequestID adds a request ID to the logger context
func WithRequestID(logger zerolog.Logger, requestID string) zerolog.Logger {
	return logger.With().Str("request_id", requestID).Logger()
}

// WithContext adds request-scoped fields from ctx to the logger
func WithContext(logger zerolog.Logger, ctx context.Context) zerolog.Logger {
	contextLogger := logger

	if requestID := ctx.Value(RequestIDKey); requestID != nil {
		contextLogger = contextLogger.With().Str("request_id", requestID.(string)).Logger()
	}
	if role := ctx.Value(DatabaseRoleKey); role != nil {
		contextLogger = contextLogger.With().Str("database_role", role.(string)).Logger()
	}

	return contextLogger
}

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set("request_id", requestID)

		ctx := context.WithValue(c.Request.Context(), RequestIDKey, requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

// LoggingMiddleware logs HTTP requests with structured information
func LoggingMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Str("ip", c.ClientIP()).
			Int("status", c.Writer.Status()).
			Int("body_size", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Str("request_id", c.GetString("request_id")).
			Msg("request completed")
	}
}
