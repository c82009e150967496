package domain

import (
	"encoding/json"
	"time"
)

// Tool execution statuses inside a ConsolidatedResult's tool status map.
const (
	ToolSuccess      = "success"
	ToolError        = "error"
	ToolTimeout      = "timeout"
	ToolNotAttempted = "not_attempted"
)

// Normalized finding severities, ordered from most to least severe.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

// SeverityRank orders severities for sorting; lower rank is more severe.
// Unknown severities sort last.
func SeverityRank(s string) int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	case SeverityInfo:
		return 4
	}
	return 5
}

// ResultMetadata describes the task a ConsolidatedResult belongs to.
// GeneratedAt is informational only and excluded from idempotence checks.
type ResultMetadata struct {
	TaskID              string    `json:"task_id"`
	TargetApp           string    `json:"target_app"`
	TargetRevision      string    `json:"target_revision"`
	OrchestratorVersion string    `json:"orchestrator_version"`
	GeneratedAt         time.Time `json:"generated_at"`
}

// ToolStatus is the per-tool entry in the flat tool status map.
type ToolStatus struct {
	Status     string `json:"status"`
	IssueCount int    `json:"issue_count"`
	Detail     string `json:"detail,omitempty"`
}

// Finding is one normalized issue reported by an analysis tool.
type Finding struct {
	Tool     string `json:"tool"`
	Severity string `json:"severity"`
	Location string `json:"location,omitempty"`
	Message  string `json:"message"`
}

// SideDocumentRef points at an oversized payload spilled next to the main
// result document. Path is relative to the result root.
type SideDocumentRef struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	SizeBytes int    `json:"size_bytes"`
}

// ConsolidatedResult is the single queryable artifact produced for a task.
// Immutable once written; a re-run produces a new task and a new result.
// ToolOutputs holds each tool's full output document inline, except entries
// over the side-document threshold, which are replaced by a {"ref": path}
// stub pointing into SideDocuments.
type ConsolidatedResult struct {
	Metadata      ResultMetadata             `json:"metadata"`
	ToolStatusMap map[string]ToolStatus      `json:"tool_status_map"`
	Findings      []Finding                  `json:"findings"`
	ToolOutputs   map[string]json.RawMessage `json:"tool_outputs,omitempty"`
	SideDocuments []SideDocumentRef          `json:"side_documents"`
}

// Manifest is the lightweight companion file written next to the result
// document, for existence/summary checks without parsing the full document.
type Manifest struct {
	TaskID        string            `json:"task_id"`
	Status        string            `json:"status"`
	ResultBytes   int               `json:"result_bytes"`
	FindingCount  int               `json:"finding_count"`
	SideDocuments []SideDocumentRef `json:"side_documents"`
}
