package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
}

// RateLimitMiddleware limits requests per client per minute. With a Redis
// address configured the counters are shared across instances; otherwise
// an in-process window map is used.
type RateLimitMiddleware struct {
	config RateLimitConfig
	logger zerolog.Logger
	client *redis.Client

	mu      sync.Mutex
	windows map[string]*window
	done    chan struct{}
}

type window struct {
	count     int
	resetTime time.Time
}

// NewRateLimitMiddleware creates a new rate limiting middleware
func NewRateLimitMiddleware(config RateLimitConfig, logger zerolog.Logger) *RateLimitMiddleware {
	if config.RequestsPerMinute == 0 {
		config.RequestsPerMinute = 300
	}

	m := &RateLimitMiddleware{
		config:  config,
		logger:  logger,
		windows: make(map[string]*window),
		done:    make(chan struct{}),
	}

	if config.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, using in-process rate limiting")
		} else {
			m.client = client
			logger.Info().Str("addr", config.RedisAddr).Msg("Redis-backed rate limiting enabled")
		}
	}

	go m.cleanup()
	return m
}

// Stop shuts down the cleanup goroutine and the Redis client.
func (rl *RateLimitMiddleware) Stop() {
	close(rl.done)
	if rl.client != nil {
		rl.client.Close()
	}
}

// RateLimit middleware function
func (rl *RateLimitMiddleware) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}

		identifier := "ip:" + c.ClientIP()

		allowed, err := rl.allow(c.Request.Context(), identifier)
		if err != nil {
			rl.logger.Warn().Err(err).Msg("rate limit check failed, allowing request")
			allowed = true
		}

		if !allowed {
			rl.logger.Warn().
				Str("identifier", identifier).
				Str("path", c.Request.URL.Path).
				Msg("rate limit exceeded")

			c.Header("Retry-After", "60")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
				"code":  "TOO_MANY_REQUESTS",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func (rl *RateLimitMiddleware) allow(ctx context.Context, identifier string) (bool, error) {
	if rl.client != nil {
		return rl.allowRedis(ctx, identifier)
	}
	return rl.allowLocal(identifier), nil
}

func (rl *RateLimitMiddleware) allowRedis(ctx context.Context, identifier string) (bool, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", identifier, time.Now().Format("200601021504"))

	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		return true, err
	}
	if count == 1 {
		rl.client.Expire(ctx, key, 2*time.Minute)
	}
	return count <= int64(rl.config.RequestsPerMinute), nil
}

func (rl *RateLimitMiddleware) allowLocal(identifier string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, ok := rl.windows[identifier]
	if !ok || now.After(w.resetTime) {
		rl.windows[identifier] = &window{count: 1, resetTime: now.Add(time.Minute)}
		return true
	}
	w.count++
	return w.count <= rl.config.RequestsPerMinute
}

func (rl *RateLimitMiddleware) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for id, w := range rl.windows {
				if now.After(w.resetTime) {
					delete(rl.windows, id)
				}
			}
			rl.mu.Unlock()
		}
	}
}
