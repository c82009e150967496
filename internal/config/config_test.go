package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 3, cfg.BreakerFailureThreshold)
	assert.Equal(t, 5*time.Minute, cfg.BreakerCooldown)
	assert.Equal(t, 4, cfg.DispatchMaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.DispatchBackoffBase)
	assert.Equal(t, 2*time.Hour, cfg.StuckRunningTimeout)
	assert.Equal(t, 24*time.Hour, cfg.StalePendingTimeout)
	assert.Equal(t, 32*1024, cfg.SideDocThresholdBytes)
	assert.Equal(t, 3, cfg.StuckRetryBudget)
	assert.Equal(t, "UTC", cfg.ScheduleTimezone)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BREAKER_FAILURE_THRESHOLD", "5")
	t.Setenv("BREAKER_COOLDOWN", "90s")
	t.Setenv("SIDE_DOC_THRESHOLD_BYTES", "1024")
	t.Setenv("SCHEDULE_TIMEZONE", "Europe/Berlin")

	cfg := Load()
	assert.Equal(t, 5, cfg.BreakerFailureThreshold)
	assert.Equal(t, 90*time.Second, cfg.BreakerCooldown)
	assert.Equal(t, 1024, cfg.SideDocThresholdBytes)
	assert.Equal(t, "Europe/Berlin", cfg.ScheduleTimezone)
}

func TestLoadIgnoresGarbageValues(t *testing.T) {
	t.Setenv("DISPATCH_MAX_ATTEMPTS", "lots")
	t.Setenv("TASK_DEADLINE", "-5m")

	cfg := Load()
	assert.Equal(t, 4, cfg.DispatchMaxAttempts)
	assert.Equal(t, 30*time.Minute, cfg.TaskDeadline)
}
