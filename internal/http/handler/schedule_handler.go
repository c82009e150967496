package handler

import (
	"net/http"

	"AnalysisOrchestrator/internal/domain"
	"AnalysisOrchestrator/internal/repo"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ScheduleHandler struct {
	db *pgxpool.Pool
}

func NewScheduleHandler(db *pgxpool.Pool) *ScheduleHandler {
	return &ScheduleHandler{db: db}
}

type CreateScheduleRequest struct {
	TargetApp      string   `json:"target_app" binding:"required"`
	TargetRevision string   `json:"target_revision" binding:"required"`
	CapabilitySet  []string `json:"capability_set" binding:"required,min=1"`
	CronExpr       string   `json:"cron_expression" binding:"required"`
	Timezone       string   `json:"timezone"`
	Priority       int      `json:"priority"`
}

// POST /api/v1/schedules
func (h *ScheduleHandler) CreateSchedule(c *gin.Context) {
	var req CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}
	tz := req.Timezone
	if tz == "" {
		tz = "UTC"
	}
	s := domain.Schedule{
		ID:             uuid.New(),
		TargetApp:      req.TargetApp,
		TargetRevision: req.TargetRevision,
		CapabilitySet:  req.CapabilitySet,
		CronExpr:       req.CronExpr,
		Timezone:       tz,
		Priority:       req.Priority,
		Enabled:        true,
	}
	if err := repo.CreateSchedule(c.Request.Context(), h.db, &s); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create schedule failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"schedule_id": s.ID})
}

// GET /api/v1/schedules
func (h *ScheduleHandler) ListSchedules(c *gin.Context) {
	schedules, err := repo.ListSchedules(c.Request.Context(), h.db, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list schedules failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": schedules})
}

type SetEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// PATCH /api/v1/schedules/:id
func (h *ScheduleHandler) SetEnabled(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid schedule id"})
		return
	}
	var req SetEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}
	if err := repo.SetScheduleEnabled(c.Request.Context(), h.db, id, *req.Enabled); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update schedule failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedule_id": id, "enabled": *req.Enabled})
}
