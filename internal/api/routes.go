package api

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pgbridge/pgbridge/internal/catalog"
	"github.com/pgbridge/pgbridge/internal/cdc"
	"github.com/pgbridge/pgbridge/internal/config"
	"github.com/pgbridge/pgbridge/internal/database"
	"github.com/pgbridge/pgbridge/internal/gql"
	"github.com/pgbridge/pgbridge/internal/handlers"
	"github.com/pgbridge/pgbridge/internal/middleware"
	"github.com/pgbridge/pgbridge/pkg/logger"
)

// Router contains all the route handlers
type Router struct {
	graphqlHandler      *handlers.GraphQLHandler
	subscriptionHandler *handlers.SubscriptionHandler
	adminHandler        *handlers.AdminHandler
	guard               *middleware.Guard
	rateLimiter         *middleware.RateLimitMiddleware
	monitoring          *middleware.MonitoringMiddleware
	engine              *cdc.Engine
	logger              zerolog.Logger
	db                  *database.DB
	config              *config.Config
}

// NewRouter creates a new router with all handlers
func NewRouter(cfg *config.Config, db *database.DB, log zerolog.Logger) (*Router, error) {
	reflector, err := catalog.ForDialect(cfg.DatabaseType, db.SQLX, log)
	if err != nil {
		return nil, err
	}
	cache := catalog.NewCache(reflector, cfg.SchemaCacheTTL, log)

	guard := middleware.NewGuard(middleware.GuardConfig{
		MaxDepth:        cfg.MaxDepth,
		MaxComplexity:   cfg.MaxComplexity,
		MaxRequestBytes: cfg.MaxRequestBytes,
	}, log)

	var engine *cdc.Engine
	var source gql.ChangeSource
	if cfg.CDCEnabled {
		broadcaster := cdc.NewBroadcaster(log)
		engine = cdc.NewEngine(cdc.Config{
			DatabaseURL:       cfg.DatabaseURL,
			SlotName:          cfg.CDCSlotName,
			PublicationName:   cfg.CDCPublicationName,
			HeartbeatInterval: cfg.CDCHeartbeatInterval,
		}, broadcaster, log)
		source = broadcaster
	}

	schemaBuilder := gql.NewSchemaBuilder(db, source, log)
	graphqlHandler := handlers.NewGraphQLHandler(cfg, cache, schemaBuilder, guard, log)
	subscriptionHandler := handlers.NewSubscriptionHandler(graphqlHandler, guard, log)
	adminHandler := handlers.NewAdminHandler(cfg, db, cache, log)

	var rateLimiter *middleware.RateLimitMiddleware
	if cfg.EnableRateLimit {
		rateLimiter = middleware.NewRateLimitMiddleware(middleware.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimitPerMinute,
			RedisAddr:         cfg.RedisAddr,
			RedisPassword:     cfg.RedisPassword,
			RedisDB:           cfg.RedisDB,
		}, log)
	}

	return &Router{
		graphqlHandler:      graphqlHandler,
		subscriptionHandler: subscriptionHandler,
		adminHandler:        adminHandler,
		guard:               guard,
		rateLimiter:         rateLimiter,
		monitoring:          middleware.NewMonitoringMiddleware(log),
		engine:              engine,
		logger:              log,
		db:                  db,
		config:              cfg,
	}, nil
}

// Engine returns the CDC engine, or nil when CDC is disabled.
func (r *Router) Engine() *cdc.Engine {
	return r.engine
}

// Stop releases router-owned resources.
func (r *Router) Stop() {
	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}
}

// SetupRoutes configures the gin engine with all middleware and routes.
func (r *Router) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.Recovery(r.logger))
	router.Use(middleware.NewSecurityMiddleware(middleware.SecurityConfig{
		AllowedOrigins: r.config.AllowedOrigins,
	}, r.logger).Security())
	router.Use(logger.RequestIDMiddleware())
	router.Use(logger.LoggingMiddleware(r.logger))
	router.Use(r.monitoring.Metrics())
	if r.rateLimiter != nil {
		router.Use(r.rateLimiter.RateLimit())
	}

	router.GET("/health", r.adminHandler.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	graphqlGroup := router.Group("/graphql")
	graphqlGroup.Use(r.guard.RequestSizeLimit())
	graphqlGroup.POST("", r.graphqlHandler.HandleGraphQL)
	// the same path serves introspection on plain GET and the
	// graphql-transport-ws subprotocol on upgrade
	graphqlGroup.GET("", func(c *gin.Context) {
		if websocket.IsWebSocketUpgrade(c.Request) {
			r.subscriptionHandler.HandleSubscriptions(c)
			return
		}
		r.graphqlHandler.HandleIntrospection(c)
	})

	admin := router.Group("/admin")
	admin.POST("/schema/invalidate", r.adminHandler.HandleInvalidateSchema)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"error": "not found"})
	})

	return router
}
