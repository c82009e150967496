package aggregate

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AnalysisOrchestrator/internal/dispatch"
	"AnalysisOrchestrator/internal/domain"
	"AnalysisOrchestrator/internal/protocol"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func sampleTask() *domain.Task {
	return &domain.Task{
		ID:             uuid.MustParse("7b6f3a2e-1d4c-4f8a-9b0e-5c6d7e8f9a0b"),
		TargetApp:      "billing",
		TargetRevision: "abc123",
		CapabilitySet:  []string{"static", "security"},
	}
}

func sampleOutcome() *dispatch.Outcome {
	return &dispatch.Outcome{
		Workers: []dispatch.WorkerOutcome{
			{
				Worker:       "static-1",
				Capabilities: []string{"static"},
				Tools:        []string{"lint"},
				Status:       dispatch.OutcomeSuccess,
				ToolResults: map[string]protocol.ToolResult{
					"lint": {
						Status: "success",
						Issues: []protocol.ToolIssue{
							{Severity: "warning", Location: "app/main.py:10", Message: "unused import"},
							{Severity: "error", Location: "app/main.py:42", Message: "undefined name"},
						},
						Raw: json.RawMessage(`{"tool":"lint"}`),
					},
				},
			},
			{
				Worker:       "security-1",
				Capabilities: []string{"security"},
				Tools:        []string{"audit"},
				Status:       dispatch.OutcomeUnavailable,
				Err:          "worker transport unreachable",
			},
		},
	}
}

func TestAggregateIsDeterministic(t *testing.T) {
	a := NewAggregator(&SeverityMap{}, 0, "1.2.0")
	task := sampleTask()

	first, _ := a.Aggregate(task, sampleOutcome(), fixedNow)
	second, _ := a.Aggregate(task, sampleOutcome(), fixedNow)

	b1, err := json.Marshal(first)
	require.NoError(t, err)
	b2, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(b1), string(b2), "same input must yield byte-identical output")
}

func TestAggregateUnreachableWorkerToolsMarkedError(t *testing.T) {
	a := NewAggregator(&SeverityMap{}, 0, "1.2.0")
	res, _ := a.Aggregate(sampleTask(), sampleOutcome(), fixedNow)

	// The reachable worker's tool.
	require.Contains(t, res.ToolStatusMap, "lint")
	assert.Equal(t, domain.ToolSuccess, res.ToolStatusMap["lint"].Status)
	assert.Equal(t, 2, res.ToolStatusMap["lint"].IssueCount)

	// The unreachable worker's tool still appears, marked as error.
	require.Contains(t, res.ToolStatusMap, "audit")
	assert.Equal(t, domain.ToolError, res.ToolStatusMap["audit"].Status)
	assert.Contains(t, res.ToolStatusMap["audit"].Detail, "worker unreachable")
}

func TestAggregateNotAttemptedAndTimeout(t *testing.T) {
	a := NewAggregator(&SeverityMap{}, 0, "1.2.0")
	outcome := &dispatch.Outcome{Workers: []dispatch.WorkerOutcome{
		{Worker: "security-1", Tools: []string{"audit"}, Status: dispatch.OutcomeNotAttempted, Err: "circuit open, cooldown active"},
		{Worker: "static-1", Tools: []string{"lint"}, Status: dispatch.OutcomeTimeout, Err: "no terminal frame within deadline"},
	}}
	res, _ := a.Aggregate(sampleTask(), outcome, fixedNow)

	assert.Equal(t, domain.ToolNotAttempted, res.ToolStatusMap["audit"].Status)
	assert.Equal(t, "circuit open, cooldown active", res.ToolStatusMap["audit"].Detail)
	assert.Equal(t, domain.ToolTimeout, res.ToolStatusMap["lint"].Status)
}

func TestAggregateUnresolvedCapabilityIsVisible(t *testing.T) {
	a := NewAggregator(&SeverityMap{}, 0, "1.2.0")
	outcome := &dispatch.Outcome{UnresolvedCapabilities: []string{"metrics"}}
	res, _ := a.Aggregate(sampleTask(), outcome, fixedNow)

	require.Contains(t, res.ToolStatusMap, "metrics")
	assert.Equal(t, domain.ToolNotAttempted, res.ToolStatusMap["metrics"].Status)
}

func TestAggregateFindingsSortedBySeverity(t *testing.T) {
	a := NewAggregator(&SeverityMap{Default: map[string]string{
		"warning": domain.SeverityMedium,
		"error":   domain.SeverityHigh,
	}}, 0, "1.2.0")
	res, _ := a.Aggregate(sampleTask(), sampleOutcome(), fixedNow)

	require.Len(t, res.Findings, 2)
	assert.Equal(t, domain.SeverityHigh, res.Findings[0].Severity)
	assert.Equal(t, "undefined name", res.Findings[0].Message)
	assert.Equal(t, domain.SeverityMedium, res.Findings[1].Severity)
}

func TestAggregateSpillsOversizedOutputs(t *testing.T) {
	big := `{"report":"` + strings.Repeat("x", 10*1024) + `"}`
	outcome := &dispatch.Outcome{Workers: []dispatch.WorkerOutcome{{
		Worker: "static-1",
		Tools:  []string{"lint"},
		Status: dispatch.OutcomeSuccess,
		ToolResults: map[string]protocol.ToolResult{
			"lint": {Status: "success", Raw: json.RawMessage(big)},
		},
	}}}

	a := NewAggregator(&SeverityMap{}, 1024, "1.2.0")
	res, sideDocs := a.Aggregate(sampleTask(), outcome, fixedNow)

	require.Len(t, res.SideDocuments, 1)
	ref := res.SideDocuments[0]
	assert.Equal(t, "lint", ref.Name)
	assert.Equal(t, "side_documents/lint.json", ref.Path)
	assert.Equal(t, len(big), ref.SizeBytes)

	// Inline output is replaced by a reference stub.
	assert.JSONEq(t, `{"ref":"side_documents/lint.json"}`, string(res.ToolOutputs["lint"]))
	assert.Equal(t, []byte(big), sideDocs[ref.Path])
}

func TestAggregateInlinesSmallOutputs(t *testing.T) {
	a := NewAggregator(&SeverityMap{}, 1024, "1.2.0")
	res, sideDocs := a.Aggregate(sampleTask(), sampleOutcome(), fixedNow)

	assert.Empty(t, sideDocs)
	assert.Empty(t, res.SideDocuments)
	assert.JSONEq(t, `{"tool":"lint"}`, string(res.ToolOutputs["lint"]))
}

func TestSeverityNormalization(t *testing.T) {
	m := &SeverityMap{
		Tools: map[string]map[string]string{
			"audit": {"crit": domain.SeverityCritical},
		},
		Default: map[string]string{
			"warning": domain.SeverityMedium,
		},
	}

	cases := []struct {
		tool, in, want string
	}{
		{"audit", "crit", domain.SeverityCritical},    // per-tool entry wins
		{"lint", "warning", domain.SeverityMedium},    // shared default
		{"lint", "WARNING", domain.SeverityMedium},    // case-insensitive
		{"lint", " high ", domain.SeverityHigh},       // already normalized
		{"lint", "banana", domain.SeverityInfo},       // unknown lands on info
		{"audit", "warning", domain.SeverityMedium},   // tool map miss falls through
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, m.Normalize(tc.tool, tc.in), "%s/%s", tc.tool, tc.in)
	}
}

func TestWriterRoundTrip(t *testing.T) {
	big := `{"report":"` + strings.Repeat("y", 4*1024) + `"}`
	outcome := &dispatch.Outcome{Workers: []dispatch.WorkerOutcome{{
		Worker: "static-1",
		Tools:  []string{"lint"},
		Status: dispatch.OutcomeSuccess,
		ToolResults: map[string]protocol.ToolResult{
			"lint": {Status: "success", Raw: json.RawMessage(big)},
		},
	}}}

	a := NewAggregator(&SeverityMap{}, 1024, "1.2.0")
	task := sampleTask()
	res, sideDocs := a.Aggregate(task, outcome, fixedNow)

	w := NewWriter(t.TempDir())
	ref, err := w.Write(task, domain.StatusCompleted, res, sideDocs, outcome)
	require.NoError(t, err)

	got, err := ReadResult(ref)
	require.NoError(t, err)
	assert.Equal(t, res.Metadata.TaskID, got.Metadata.TaskID)
	require.Len(t, got.SideDocuments, 1)

	// Side-document content survives byte-for-byte.
	body, err := ReadSideDocument(ref, got.SideDocuments[0])
	require.NoError(t, err)
	assert.Equal(t, []byte(big), body)

	m, err := ReadManifest(ref)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, m.Status)
	assert.Equal(t, task.ID.String(), m.TaskID)
	require.Len(t, m.SideDocuments, 1)
}
