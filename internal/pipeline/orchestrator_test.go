package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AnalysisOrchestrator/internal/domain"
)

func step(name string, deps ...string) StepDef {
	return StepDef{
		Name:           name,
		TargetApp:      "billing",
		TargetRevision: "abc123",
		CapabilitySet:  []string{"static"},
		DependsOn:      deps,
	}
}

func TestRunDefValidate(t *testing.T) {
	ok := RunDef{Name: "nightly", Steps: []StepDef{
		step("analyze"),
		step("security", "analyze"),
		step("report", "analyze", "security"),
	}}
	require.NoError(t, ok.Validate())

	cases := []struct {
		name string
		def  RunDef
		want string
	}{
		{"missing run name", RunDef{Steps: []StepDef{step("a")}}, "run name is required"},
		{"no steps", RunDef{Name: "empty"}, "at least one step"},
		{"unnamed step", RunDef{Name: "r", Steps: []StepDef{{TargetApp: "x"}}}, "needs a name"},
		{"duplicate step", RunDef{Name: "r", Steps: []StepDef{step("a"), step("a")}}, "duplicate step name"},
		{"unknown dependency", RunDef{Name: "r", Steps: []StepDef{step("a", "ghost")}}, "unknown step"},
		{"two-step cycle", RunDef{Name: "r", Steps: []StepDef{step("a", "b"), step("b", "a")}}, "cycle"},
		{"self cycle", RunDef{Name: "r", Steps: []StepDef{step("a", "a")}}, "cycle"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.def.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestGateWaitsForUnsettledPredecessor(t *testing.T) {
	s := &domain.PipelineStep{Name: "report", DependsOn: []string{"analyze"}}

	blockedBy, ready := gate(s, map[string]string{"analyze": domain.StatusRunning})
	assert.Empty(t, blockedBy)
	assert.False(t, ready)

	blockedBy, ready = gate(s, map[string]string{"analyze": domain.StatusCompleted})
	assert.Empty(t, blockedBy)
	assert.True(t, ready)
}

func TestGateBlocksOnFailedPredecessor(t *testing.T) {
	s := &domain.PipelineStep{Name: "report", DependsOn: []string{"analyze"}}

	blockedBy, _ := gate(s, map[string]string{"analyze": domain.StatusFailed})
	assert.Equal(t, "analyze", blockedBy)

	blockedBy, _ = gate(s, map[string]string{"analyze": domain.StatusCancelled})
	assert.Equal(t, "analyze", blockedBy)
}

func TestGatePartialSuccessPolicy(t *testing.T) {
	strict := &domain.PipelineStep{Name: "report", DependsOn: []string{"analyze"}}
	lenient := &domain.PipelineStep{Name: "report", DependsOn: []string{"analyze"}, ContinueOnPartial: true}
	statuses := map[string]string{"analyze": domain.StatusPartialSuccess}

	blockedBy, _ := gate(strict, statuses)
	assert.Equal(t, "analyze", blockedBy, "partial success blocks by default")

	blockedBy, ready := gate(lenient, statuses)
	assert.Empty(t, blockedBy)
	assert.True(t, ready, "continue_on_partial accepts a partial predecessor")
}

func TestGateMultiplePredecessors(t *testing.T) {
	s := &domain.PipelineStep{Name: "report", DependsOn: []string{"analyze", "security"}}

	// One settled, one still running: wait, don't block.
	blockedBy, ready := gate(s, map[string]string{
		"analyze":  domain.StatusCompleted,
		"security": domain.StatusRunning,
	})
	assert.Empty(t, blockedBy)
	assert.False(t, ready)

	// A failed predecessor blocks regardless of the others.
	blockedBy, _ = gate(s, map[string]string{
		"analyze":  domain.StatusCompleted,
		"security": domain.StatusFailed,
	})
	assert.Equal(t, "security", blockedBy)
}
