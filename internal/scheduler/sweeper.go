package scheduler

import (
	"context"
	"log"
	"time"

	"AnalysisOrchestrator/internal/domain"
	"AnalysisOrchestrator/internal/lease"
	"AnalysisOrchestrator/internal/queue"
	"AnalysisOrchestrator/internal/repo"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Sweep decisions for a single task.
const (
	SweepNone   = "none"
	SweepReset  = "reset"
	SweepFail   = "fail"
	SweepCancel = "cancel"
)

// SweepPolicy holds the timeout knobs. Thresholds are generous (hours) and
// the grace window exempts freshly claimed tasks so a scheduler restart
// never triggers false resets.
type SweepPolicy struct {
	StuckRunningTimeout time.Duration
	StalePendingTimeout time.Duration
	GracePeriod         time.Duration
	ResetBudget         int
}

// DecideRunning classifies one running task. A task inside the grace window
// is always left alone. Past the grace window, a missing lease means the
// executor died; a held lease only counts as stuck after the long timeout.
// Reset is chosen while the task has budget left, fail afterwards.
func (p SweepPolicy) DecideRunning(t *domain.Task, leaseHeld bool, now time.Time) string {
	if t.StartedAt == nil {
		return SweepNone
	}
	age := now.Sub(*t.StartedAt)
	if age < p.GracePeriod {
		return SweepNone
	}
	stuck := !leaseHeld || age >= p.StuckRunningTimeout
	if !stuck {
		return SweepNone
	}
	if t.ResetCount < p.ResetBudget {
		return SweepReset
	}
	return SweepFail
}

// DecidePending classifies one pending task: cancelled once it has sat
// unclaimed past the stale threshold.
func (p SweepPolicy) DecidePending(t *domain.Task, now time.Time) string {
	if now.Sub(t.CreatedAt) >= p.StalePendingTimeout {
		return SweepCancel
	}
	return SweepNone
}

const sweepLockKey = "lock:task-sweeper"

// Sweeper periodically repairs tasks orphaned by crashed or wedged
// executors. A short Redis lock keeps the sweep single-flight across
// scheduler instances; the per-task updates are safe either way because
// every transition is conditional in SQL.
type Sweeper struct {
	db         *pgxpool.Pool
	rdb        *redis.Client
	leases     *lease.Manager
	policy     SweepPolicy
	instanceID string
	interval   time.Duration
}

func NewSweeper(db *pgxpool.Pool, rdb *redis.Client, policy SweepPolicy, instanceID string, interval time.Duration) *Sweeper {
	return &Sweeper{
		db:         db,
		rdb:        rdb,
		leases:     lease.NewManager(rdb),
		policy:     policy,
		instanceID: instanceID,
		interval:   interval,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	tkr := time.NewTicker(s.interval)
	defer tkr.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tkr.C:
			got, err := queue.AcquireLock(ctx, s.rdb, sweepLockKey, s.instanceID, s.interval)
			if err != nil || !got {
				continue
			}
			s.sweepOnce(ctx)
			_, _ = queue.ReleaseLock(ctx, s.rdb, sweepLockKey, s.instanceID)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	now := time.Now()

	running, err := repo.ListRunningStartedBefore(ctx, s.db, now.Add(-s.policy.GracePeriod))
	if err != nil {
		log.Printf("sweeper: list running failed: %v", err)
	}
	for i := range running {
		t := &running[i]
		leaseHeld, err := s.leases.Exists(ctx, t.ID.String())
		if err != nil {
			// Transient Redis error: assume the lease is held rather than
			// resetting a healthy execution.
			log.Printf("sweeper: lease check for %s failed: %v", t.ID, err)
			leaseHeld = true
		}
		switch s.policy.DecideRunning(t, leaseHeld, now) {
		case SweepReset:
			if ok, err := repo.ResetTaskToPending(ctx, s.db, t.ID); err != nil {
				log.Printf("sweeper: reset task %s failed: %v", t.ID, err)
			} else if ok {
				_ = queue.EnqueueReady(ctx, s.rdb, t.ID.String())
				log.Printf("sweeper: task %s reset to pending (reset %d of %d)",
					t.ID, t.ResetCount+1, s.policy.ResetBudget)
			}
		case SweepFail:
			if ok, err := repo.FailTask(ctx, s.db, t.ID, "stuck running, reset budget exhausted"); err != nil {
				log.Printf("sweeper: fail task %s failed: %v", t.ID, err)
			} else if ok {
				log.Printf("sweeper: task %s failed after exhausting reset budget", t.ID)
			}
		}
	}

	pending, err := repo.ListPendingCreatedBefore(ctx, s.db, now.Add(-s.policy.StalePendingTimeout))
	if err != nil {
		log.Printf("sweeper: list pending failed: %v", err)
	}
	for i := range pending {
		t := &pending[i]
		if s.policy.DecidePending(t, now) != SweepCancel {
			continue
		}
		if ok, err := repo.CancelTask(ctx, s.db, t.ID); err != nil {
			log.Printf("sweeper: cancel stale task %s failed: %v", t.ID, err)
		} else if ok {
			log.Printf("sweeper: stale pending task %s cancelled", t.ID)
		}
	}
}
