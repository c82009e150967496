package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"AnalysisOrchestrator/internal/domain"
)

var sweepPolicy = SweepPolicy{
	StuckRunningTimeout: 2 * time.Hour,
	StalePendingTimeout: 24 * time.Hour,
	GracePeriod:         5 * time.Minute,
	ResetBudget:         3,
}

func runningTask(age time.Duration, resets int, now time.Time) *domain.Task {
	started := now.Add(-age)
	return &domain.Task{
		Status:     domain.StatusRunning,
		StartedAt:  &started,
		ResetCount: resets,
		CreatedAt:  started,
	}
}

func TestDecideRunningGraceWindow(t *testing.T) {
	now := time.Now()
	// A freshly started task is left alone even when its lease is missing,
	// so a scheduler restart never triggers false resets.
	task := runningTask(3*time.Minute, 0, now)
	assert.Equal(t, SweepNone, sweepPolicy.DecideRunning(task, false, now))
	assert.Equal(t, SweepNone, sweepPolicy.DecideRunning(task, true, now))
}

func TestDecideRunningMissingLeaseMeansDeadExecutor(t *testing.T) {
	now := time.Now()
	task := runningTask(10*time.Minute, 0, now)
	assert.Equal(t, SweepReset, sweepPolicy.DecideRunning(task, false, now))
	// With the lease still held the execution is merely slow, not stuck.
	assert.Equal(t, SweepNone, sweepPolicy.DecideRunning(task, true, now))
}

func TestDecideRunningLongTimeoutOverridesLease(t *testing.T) {
	now := time.Now()
	task := runningTask(3*time.Hour, 0, now)
	assert.Equal(t, SweepReset, sweepPolicy.DecideRunning(task, true, now))
}

func TestDecideRunningResetBudgetExhausted(t *testing.T) {
	now := time.Now()
	assert.Equal(t, SweepReset, sweepPolicy.DecideRunning(runningTask(3*time.Hour, 2, now), false, now))
	assert.Equal(t, SweepFail, sweepPolicy.DecideRunning(runningTask(3*time.Hour, 3, now), false, now))
}

func TestDecideRunningWithoutStartTimestamp(t *testing.T) {
	now := time.Now()
	task := &domain.Task{Status: domain.StatusRunning}
	assert.Equal(t, SweepNone, sweepPolicy.DecideRunning(task, false, now))
}

func TestDecidePending(t *testing.T) {
	now := time.Now()
	fresh := &domain.Task{Status: domain.StatusPending, CreatedAt: now.Add(-time.Hour)}
	stale := &domain.Task{Status: domain.StatusPending, CreatedAt: now.Add(-25 * time.Hour)}
	assert.Equal(t, SweepNone, sweepPolicy.DecidePending(fresh, now))
	assert.Equal(t, SweepCancel, sweepPolicy.DecidePending(stale, now))
}
