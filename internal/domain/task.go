package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Task statuses. Stored lowercase; pending→running requires the atomic
// version-checked claim in repo.ClaimTask.
const (
	StatusPending        = "pending"
	StatusRunning        = "running"
	StatusCompleted      = "completed"
	StatusPartialSuccess = "partial_success"
	StatusFailed         = "failed"
	StatusCancelled      = "cancelled"
)

// Task is one unit of orchestration work against a target application
// revision. A Task with ParentTaskID set is a subtask covering the slice of
// the parent's capability set served by a single worker.
type Task struct {
	ID             uuid.UUID  `json:"id"`
	TargetApp      string     `json:"target_app"`
	TargetRevision string     `json:"target_revision"`
	CapabilitySet  []string   `json:"capability_set"`
	Status         string     `json:"status"`
	Priority       int        `json:"priority"`
	Version        int        `json:"version"`
	ResetCount     int        `json:"reset_count"`
	ParentTaskID   *uuid.UUID `json:"parent_task_id,omitempty"`
	ResultRef      string     `json:"result_ref,omitempty"`
	ErrorSummary   string     `json:"error_summary,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// IsTerminal reports whether s is a terminal task status.
func IsTerminal(s string) bool {
	switch s {
	case StatusCompleted, StatusPartialSuccess, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsSuccessful reports whether s counts as a success for reduction purposes.
func IsSuccessful(s string) bool {
	return s == StatusCompleted || s == StatusPartialSuccess
}

// CapabilityKey is the canonical form of a capability set, used for the
// one-active-execution-per-(target, capability_set) uniqueness constraint.
// Order-insensitive and duplicate-insensitive.
func CapabilityKey(capabilities []string) string {
	set := make(map[string]struct{}, len(capabilities))
	for _, c := range capabilities {
		c = strings.TrimSpace(strings.ToLower(c))
		if c != "" {
			set[c] = struct{}{}
		}
	}
	keys := make([]string, 0, len(set))
	for c := range set {
		keys = append(keys, c)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

// ReduceStatuses folds a set of subtask terminal statuses into the parent's
// terminal status: all succeeded → completed; a mix of success and failure →
// partial_success; no success → failed. An empty vector means nothing ever
// ran, which is a failure. The parent is cancelled only when every subtask
// was cancelled.
func ReduceStatuses(statuses []string) string {
	if len(statuses) == 0 {
		return StatusFailed
	}
	succeeded, cancelled := 0, 0
	for _, s := range statuses {
		switch {
		case IsSuccessful(s):
			succeeded++
		case s == StatusCancelled:
			cancelled++
		}
	}
	switch {
	case cancelled == len(statuses):
		return StatusCancelled
	case succeeded == len(statuses):
		return StatusCompleted
	case succeeded > 0:
		return StatusPartialSuccess
	default:
		return StatusFailed
	}
}
