package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pgbridge/pgbridge/internal/catalog"
	"github.com/pgbridge/pgbridge/internal/config"
	"github.com/pgbridge/pgbridge/internal/database"
)

// AdminHandler serves operational endpoints: health and catalog cache
// invalidation.
type AdminHandler struct {
	cfg    *config.Config
	db     *database.DB
	cache  *catalog.Cache
	logger zerolog.Logger
}

// NewAdminHandler creates the handler.
func NewAdminHandler(cfg *config.Config, db *database.DB, cache *catalog.Cache, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{cfg: cfg, db: db, cache: cache, logger: logger}
}

// HandleHealth reports service and database health.
func (h *AdminHandler) HandleHealth(c *gin.Context) {
	if err := h.db.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  "database unreachable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

// HandleInvalidateSchema clears the catalog cache so the next request
// reflects and rebuilds the GraphQL schema.
func (h *AdminHandler) HandleInvalidateSchema(c *gin.Context) {
	schema := c.Query("schema")
	if schema == "" {
		schema = h.cfg.Schema
	}
	h.cache.InvalidateSchema(schema)
	h.logger.Info().Str("schema", schema).Msg("schema cache invalidated via admin endpoint")
	c.JSON(http.StatusOK, gin.H{"invalidated": schema})
}
