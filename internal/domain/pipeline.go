package domain

import (
	"time"

	"github.com/google/uuid"
)

// PipelineRun composes an ordered set of task-creating steps into one
// higher-level run. Its status is reduced from step statuses with the same
// three-way rule as parent tasks.
type PipelineRun struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// PipelineStep is one step of a run. A step starts only after every step
// named in DependsOn reaches a terminal state. ContinueOnPartial controls
// whether a predecessor's partial_success lets this step proceed.
type PipelineStep struct {
	ID                uuid.UUID  `json:"id"`
	RunID             uuid.UUID  `json:"run_id"`
	Name              string     `json:"name"`
	TargetApp         string     `json:"target_app"`
	TargetRevision    string     `json:"target_revision"`
	CapabilitySet     []string   `json:"capability_set"`
	DependsOn         []string   `json:"depends_on"`
	ContinueOnPartial bool       `json:"continue_on_partial"`
	Status            string     `json:"status"`
	TaskID            *uuid.UUID `json:"task_id,omitempty"`
	ErrorSummary      string     `json:"error_summary,omitempty"`
}
