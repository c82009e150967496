package handler

import (
	"net/http"
	"time"

	"AnalysisOrchestrator/internal/dispatch"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type HealthHandler struct {
	db       *pgxpool.Pool
	rdb      *redis.Client
	registry *dispatch.Registry
}

func NewHealthHandler(db *pgxpool.Pool, rdb *redis.Client, registry *dispatch.Registry) *HealthHandler {
	return &HealthHandler{db: db, rdb: rdb, registry: registry}
}

// GET /healthz
func (h *HealthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GET /readyz
// Ready means the stores answer and the worker registry describes a fleet
// that can actually serve analysis requests.
func (h *HealthHandler) Readyz(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.db.Ping(ctx); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ready": false, "error": "db ping failed"})
		return
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ready": false, "error": "redis ping failed"})
		return
	}
	if len(h.registry.Workers) == 0 {
		c.JSON(http.StatusInternalServerError, gin.H{"ready": false, "error": "no workers configured"})
		return
	}
	capabilities := make(map[string]struct{})
	for _, w := range h.registry.Workers {
		for _, spec := range w.Capabilities {
			capabilities[spec.Name] = struct{}{}
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"ready":              true,
		"workers_configured": len(h.registry.Workers),
		"capabilities":       len(capabilities),
		"timestamp":          time.Now().UTC(),
	})
}
