package dispatch

import (
	"encoding/json"

	"AnalysisOrchestrator/internal/protocol"
)

// Worker outcome statuses. These are dispatch-level classifications; the
// aggregator maps them onto per-tool statuses.
const (
	OutcomeSuccess      = "success"
	OutcomePartial      = "partial"
	OutcomeError        = "error"
	OutcomeTimeout      = "timeout"
	OutcomeUnavailable  = "unavailable"
	OutcomeNotAttempted = "not_attempted"
)

// WorkerOutcome is the resolved result of one worker exchange, or the reason
// it never happened. Tools always lists what was asked of the worker so
// coverage stays representable even when nothing came back.
type WorkerOutcome struct {
	Worker       string
	Capabilities []string
	Tools        []string
	Status       string
	ToolResults  map[string]protocol.ToolResult
	Summary      json.RawMessage
	Err          string
}

// Outcome is the dispatcher's answer for one task.
type Outcome struct {
	Workers []WorkerOutcome
	// UnresolvedCapabilities had no worker in the registry at all.
	UnresolvedCapabilities []string
}
