package handler

import (
	"errors"
	"net/http"

	"AnalysisOrchestrator/internal/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type PipelineHandler struct {
	orch *pipeline.Orchestrator
}

func NewPipelineHandler(orch *pipeline.Orchestrator) *PipelineHandler {
	return &PipelineHandler{orch: orch}
}

// POST /api/v1/pipelines
func (h *PipelineHandler) StartRun(c *gin.Context) {
	var def pipeline.RunDef
	if err := c.ShouldBindJSON(&def); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}
	id, err := h.orch.StartRun(c.Request.Context(), def)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start run failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"run_id": id})
}

// GET /api/v1/pipelines/:id
func (h *PipelineHandler) GetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}
	run, steps, err := h.orch.GetRun(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load run failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run, "steps": steps})
}
