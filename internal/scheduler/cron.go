package scheduler

import (
	"context"
	"log"
	"time"

	"AnalysisOrchestrator/internal/domain"
	"AnalysisOrchestrator/internal/repo"
	"AnalysisOrchestrator/internal/service"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
)

// Catch-up bounds: after downtime, at most this many missed triggers inside
// this window are replayed per schedule per tick.
const (
	maxCatchupWindows  = 10
	maxCatchupDuration = time.Hour
)

// CronTrigger scans enabled schedules each tick and creates re-analysis
// tasks for every cron occurrence since the last trigger. Task creation goes
// through the regular submission surface, so the active-task dedup rule
// applies to scheduled work too.
type CronTrigger struct {
	db       *pgxpool.Pool
	tasks    *service.TaskService
	interval time.Duration
	timezone *time.Location
	parser   cron.Parser
}

func NewCronTrigger(db *pgxpool.Pool, tasks *service.TaskService, interval time.Duration, tz string) (*CronTrigger, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	return &CronTrigger{
		db:       db,
		tasks:    tasks,
		interval: interval,
		timezone: loc,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}, nil
}

func (c *CronTrigger) Run(ctx context.Context) {
	tkr := time.NewTicker(c.interval)
	defer tkr.Stop()
	log.Printf("cron trigger started, interval=%s", c.interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("cron trigger stopped")
			return
		case <-tkr.C:
			if err := c.tickOnce(ctx); err != nil {
				log.Printf("cron trigger tick failed: %v", err)
			}
		}
	}
}

func (c *CronTrigger) tickOnce(ctx context.Context) error {
	enabled := true
	schedules, err := repo.ListSchedules(ctx, c.db, &enabled)
	if err != nil {
		return err
	}
	now := time.Now().In(c.timezone)
	triggered := 0
	for _, sch := range schedules {
		n, err := c.handleSchedule(ctx, sch, now)
		if err != nil {
			log.Printf("cron trigger: schedule %s failed: %v", sch.ID, err)
			continue
		}
		triggered += n
	}
	if triggered > 0 {
		log.Printf("cron trigger: enabled=%d triggered=%d", len(schedules), triggered)
	}
	return nil
}

// scheduleLocation resolves the schedule's own timezone, falling back to
// the trigger-wide default when the row has none or names an unknown zone.
func (c *CronTrigger) scheduleLocation(sch domain.Schedule) *time.Location {
	if sch.Timezone == "" {
		return c.timezone
	}
	loc, err := time.LoadLocation(sch.Timezone)
	if err != nil {
		log.Printf("cron trigger: schedule %s has unknown timezone %q, using %s", sch.ID, sch.Timezone, c.timezone)
		return c.timezone
	}
	return loc
}

// dueOccurrences returns the cron occurrences of the schedule that are due
// at now, evaluated in the schedule's timezone and capped by the catch-up
// window count.
func (c *CronTrigger) dueOccurrences(sch domain.Schedule, now time.Time) ([]time.Time, error) {
	spec, err := c.parser.Parse(sch.CronExpr)
	if err != nil {
		return nil, err
	}
	loc := c.scheduleLocation(sch)
	now = now.In(loc)

	var last time.Time
	if sch.LastTriggeredAt != nil {
		last = sch.LastTriggeredAt.In(loc)
	} else {
		last = now.Add(-c.interval)
	}

	var due []time.Time
	for len(due) < maxCatchupWindows {
		next := spec.Next(last)
		if next.After(now) {
			break
		}
		due = append(due, next)
		last = next
	}
	return due, nil
}

func (c *CronTrigger) handleSchedule(ctx context.Context, sch domain.Schedule, now time.Time) (int, error) {
	due, err := c.dueOccurrences(sch, now)
	if err != nil {
		return 0, err
	}
	cutoff := now.Add(-maxCatchupDuration)

	triggered := 0
	for _, next := range due {
		if !next.Before(cutoff) {
			id, status, err := c.tasks.CreateTask(ctx, service.CreateTaskParams{
				TargetApp:      sch.TargetApp,
				TargetRevision: sch.TargetRevision,
				CapabilitySet:  sch.CapabilitySet,
				Priority:       sch.Priority,
			})
			if err != nil {
				log.Printf("cron trigger: create task for schedule %s failed: %v", sch.ID, err)
			} else {
				triggered++
				log.Printf("cron trigger: schedule %s fired at %s, task %s (%s)",
					sch.ID, next.Format(time.RFC3339), id, status)
			}
		}
		if err := repo.UpdateScheduleLastTriggeredAt(ctx, c.db, sch.ID, next); err != nil {
			return triggered, err
		}
	}
	return triggered, nil
}
