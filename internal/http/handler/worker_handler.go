package handler

import (
	"net/http"

	"AnalysisOrchestrator/internal/dispatch"
	"AnalysisOrchestrator/internal/health"

	"github.com/gin-gonic/gin"
)

type WorkerHandler struct {
	registry *dispatch.Registry
	liveness *health.LivenessCache
}

func NewWorkerHandler(registry *dispatch.Registry, liveness *health.LivenessCache) *WorkerHandler {
	return &WorkerHandler{registry: registry, liveness: liveness}
}

// GET /api/v1/workers
// Lists the configured fleet with the shared liveness flag. Circuit state is
// per scheduler instance and is not aggregated here.
func (h *WorkerHandler) ListWorkers(c *gin.Context) {
	ctx := c.Request.Context()
	out := make([]gin.H, 0, len(h.registry.Workers))
	for _, w := range h.registry.Workers {
		out = append(out, gin.H{
			"name":           w.Name,
			"address":        w.Address,
			"capabilities":   w.Capabilities,
			"recently_alive": h.liveness.RecentlyAlive(ctx, w.Name),
		})
	}
	c.JSON(http.StatusOK, gin.H{"workers": out})
}
