package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AnalysisOrchestrator/internal/domain"
)

func newTestTrigger(t *testing.T) *CronTrigger {
	t.Helper()
	c, err := NewCronTrigger(nil, nil, 30*time.Second, "UTC")
	require.NoError(t, err)
	return c
}

func TestDueOccurrencesUsesScheduleTimezone(t *testing.T) {
	c := newTestTrigger(t)
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	// Daily at 09:00 in Tokyo, last fired just before today's occurrence.
	last := time.Date(2026, 8, 23, 8, 59, 0, 0, tokyo)
	sch := domain.Schedule{
		CronExpr:        "0 9 * * *",
		Timezone:        "Asia/Tokyo",
		LastTriggeredAt: &last,
	}

	// 00:05 UTC is 09:05 in Tokyo: the Tokyo occurrence is due.
	now := time.Date(2026, 8, 23, 0, 5, 0, 0, time.UTC)
	due, err := c.dueOccurrences(sch, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	fired := due[0].In(tokyo)
	assert.Equal(t, 9, fired.Hour())
	assert.Equal(t, 23, fired.Day())

	// The same expression without a schedule timezone is evaluated in the
	// trigger default (UTC) and is not due yet at 00:05.
	sch.Timezone = ""
	due, err = c.dueOccurrences(sch, now)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestDueOccurrencesUnknownTimezoneFallsBack(t *testing.T) {
	c := newTestTrigger(t)
	last := time.Date(2026, 8, 23, 8, 59, 0, 0, time.UTC)
	sch := domain.Schedule{
		CronExpr:        "0 9 * * *",
		Timezone:        "Mars/Olympus_Mons",
		LastTriggeredAt: &last,
	}
	due, err := c.dueOccurrences(sch, time.Date(2026, 8, 23, 9, 5, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, due, 1, "unknown zone degrades to the trigger default instead of failing the schedule")
	assert.Equal(t, 9, due[0].UTC().Hour())
}

func TestDueOccurrencesFirstFiring(t *testing.T) {
	c := newTestTrigger(t)
	// Never triggered: only the interval-sized lookback window counts.
	sch := domain.Schedule{CronExpr: "* * * * *"}
	now := time.Date(2026, 8, 23, 12, 1, 0, 0, time.UTC)
	due, err := c.dueOccurrences(sch, now)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestDueOccurrencesCatchupIsBounded(t *testing.T) {
	c := newTestTrigger(t)
	last := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	sch := domain.Schedule{CronExpr: "* * * * *", LastTriggeredAt: &last}

	// A half-hour outage leaves 30 missed minutes; only the capped window
	// count is replayed per tick.
	due, err := c.dueOccurrences(sch, last.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Len(t, due, maxCatchupWindows)
}

func TestDueOccurrencesBadExpression(t *testing.T) {
	c := newTestTrigger(t)
	_, err := c.dueOccurrences(domain.Schedule{CronExpr: "not a cron"}, time.Now())
	assert.Error(t, err)
}
