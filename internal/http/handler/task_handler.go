package handler

import (
	"errors"
	"net/http"

	"AnalysisOrchestrator/internal/aggregate"
	"AnalysisOrchestrator/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type TaskHandler struct {
	svc *service.TaskService
}

func NewTaskHandler(svc *service.TaskService) *TaskHandler {
	return &TaskHandler{svc: svc}
}

type CreateTaskRequest struct {
	TargetApp      string   `json:"target_app" binding:"required"`
	TargetRevision string   `json:"target_revision" binding:"required"`
	CapabilitySet  []string `json:"capability_set" binding:"required,min=1"`
	Priority       int      `json:"priority"`
}

// POST /api/v1/tasks
func (h *TaskHandler) CreateTask(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}
	id, status, err := h.svc.CreateTask(c.Request.Context(), service.CreateTaskParams{
		TargetApp:      req.TargetApp,
		TargetRevision: req.TargetRevision,
		CapabilitySet:  req.CapabilitySet,
		Priority:       req.Priority,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create task failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"task_id": id, "status": status})
}

// GET /api/v1/tasks/:id
func (h *TaskHandler) GetTaskStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}
	summary, err := h.svc.GetTaskStatus(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load task failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GET /api/v1/tasks/:id/result
func (h *TaskHandler) GetTaskResult(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}
	res, err := h.svc.GetTaskResult(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		case errors.Is(err, service.ErrResultNotReady):
			c.JSON(http.StatusConflict, gin.H{"error": "result not ready"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "load result failed", "detail": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/v1/tasks/:id/manifest
func (h *TaskHandler) GetTaskManifest(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}
	summary, err := h.svc.GetTaskStatus(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	if summary.Task.ResultRef == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "result not ready"})
		return
	}
	m, err := aggregate.ReadManifest(summary.Task.ResultRef)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load manifest failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, m)
}

// POST /api/v1/tasks/:id/cancel
func (h *TaskHandler) CancelTask(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}
	ok, err := h.svc.CancelTask(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cancel failed", "detail": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "task already terminal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"task_id": id, "status": "cancelled"})
}
