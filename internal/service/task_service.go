// Package service exposes the task submission surface shared by the HTTP
// API, the CLI, and the recurring-schedule trigger.
package service

import (
	"context"
	"errors"
	"fmt"

	"AnalysisOrchestrator/internal/aggregate"
	"AnalysisOrchestrator/internal/domain"
	"AnalysisOrchestrator/internal/queue"
	"AnalysisOrchestrator/internal/repo"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// ErrResultNotReady is returned while a task has not produced its artifact.
var ErrResultNotReady = errors.New("task result not ready")

type TaskService struct {
	db  *pgxpool.Pool
	rdb *redis.Client
}

func NewTaskService(db *pgxpool.Pool, rdb *redis.Client) *TaskService {
	return &TaskService{db: db, rdb: rdb}
}

type CreateTaskParams struct {
	TargetApp      string
	TargetRevision string
	CapabilitySet  []string
	Priority       int
}

// CreateTask inserts a pending task and signals the ready queue. Submitting
// the same (target, capability set) while an earlier task is still active
// returns the active task instead of queueing a duplicate.
func (s *TaskService) CreateTask(ctx context.Context, p CreateTaskParams) (uuid.UUID, string, error) {
	if p.TargetApp == "" || p.TargetRevision == "" {
		return uuid.Nil, "", fmt.Errorf("target app and revision are required")
	}
	if len(p.CapabilitySet) == 0 {
		return uuid.Nil, "", fmt.Errorf("capability set must not be empty")
	}

	key := domain.CapabilityKey(p.CapabilitySet)
	if existing, err := repo.FindActiveTask(ctx, s.db, p.TargetApp, p.TargetRevision, key); err == nil && existing != nil {
		return existing.ID, existing.Status, nil
	}

	t := domain.Task{
		ID:             uuid.New(),
		TargetApp:      p.TargetApp,
		TargetRevision: p.TargetRevision,
		CapabilitySet:  p.CapabilitySet,
		Status:         domain.StatusPending,
		Priority:       p.Priority,
	}
	if err := repo.InsertTask(ctx, s.db, &t); err != nil {
		return uuid.Nil, "", err
	}
	if err := queue.EnqueueReady(ctx, s.rdb, t.ID.String()); err != nil {
		// The poll fallback will still find the row; losing the signal is
		// not fatal.
		return t.ID, t.Status, nil
	}
	return t.ID, t.Status, nil
}

// StatusSummary is the cheap status view of one task.
type StatusSummary struct {
	Task     *domain.Task  `json:"task"`
	Subtasks []domain.Task `json:"subtasks,omitempty"`
}

func (s *TaskService) GetTaskStatus(ctx context.Context, id uuid.UUID) (*StatusSummary, error) {
	t, err := repo.GetTaskByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	children, err := repo.ListChildren(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return &StatusSummary{Task: t, Subtasks: children}, nil
}

// GetTaskResult loads the consolidated result, or ErrResultNotReady while
// the task has no artifact yet.
func (s *TaskService) GetTaskResult(ctx context.Context, id uuid.UUID) (*domain.ConsolidatedResult, error) {
	t, err := repo.GetTaskByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if t.ResultRef == "" {
		return nil, ErrResultNotReady
	}
	return aggregate.ReadResult(t.ResultRef)
}

// CancelTask transitions the task to cancelled in the store, then broadcasts
// so any scheduler executing it tears its worker connections down. Returns
// false when the task was already terminal.
func (s *TaskService) CancelTask(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := repo.CancelTask(ctx, s.db, id)
	if err != nil {
		return false, err
	}
	if ok {
		_ = queue.PublishCancel(ctx, s.rdb, id.String())
	}
	return ok, nil
}
