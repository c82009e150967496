// Package protocol defines the message frames exchanged between the
// dispatcher and analysis workers over a persistent connection. Frames are
// newline-delimited JSON; every exchange is correlated by the request ID so
// late or duplicate responses from an earlier exchange can be discarded.
package protocol

import "encoding/json"

// Fixed frame types. Request and terminal result types are derived from the
// capability name: "<capability>_request" / "<capability>_result".
const (
	TypeHello    = "hello"
	TypeHelloAck = "hello_ack"
	TypeProgress = "progress_update"
	TypeError    = "error"
)

// RequestType returns the request frame type for a capability.
func RequestType(capability string) string {
	return capability + "_request"
}

// ResultType returns the terminal result frame type for a capability.
func ResultType(capability string) string {
	return capability + "_result"
}

// Frame is the single message shape on the wire. Which fields are meaningful
// depends on Type; unknown fields are preserved nowhere and unknown types are
// skipped by readers.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Percent int             `json:"percent,omitempty"`
	Message string          `json:"message,omitempty"`
	Status  string          `json:"status,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Results json.RawMessage `json:"results,omitempty"`
	Summary json.RawMessage `json:"summary,omitempty"`
}

// IsTerminalFor reports whether the frame ends an exchange for a capability:
// either the capability's result frame or an explicit error frame.
func (f *Frame) IsTerminalFor(capability string) bool {
	return f.Type == ResultType(capability) || f.Type == TypeError
}

// Target identifies the application revision a request is about.
type Target struct {
	App      string `json:"app"`
	Revision string `json:"revision"`
}

// RequestPayload is the payload of a "<capability>_request" frame.
type RequestPayload struct {
	Target         Target   `json:"target"`
	Tools          []string `json:"tools"`
	TimeoutSeconds int      `json:"timeout"`
}

// ToolResult is one tool's entry inside a terminal result frame's Results
// document. Severity vocabulary is tool-specific; normalization happens in
// the aggregator.
type ToolResult struct {
	Status   string          `json:"status"`
	Issues   []ToolIssue     `json:"issues,omitempty"`
	Raw      json.RawMessage `json:"raw,omitempty"`
	ExitNote string          `json:"exit_note,omitempty"`
}

// ToolIssue is one issue as reported by a tool, pre-normalization.
type ToolIssue struct {
	Severity string `json:"severity"`
	Location string `json:"location,omitempty"`
	Message  string `json:"message"`
}
