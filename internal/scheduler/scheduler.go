// Package scheduler claims pending tasks from the durable store and drives
// them to a terminal state. Multiple instances run against the same store;
// mutual exclusion on claiming comes from the version-checked update in the
// repo layer, never from in-process locks.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"AnalysisOrchestrator/internal/aggregate"
	"AnalysisOrchestrator/internal/dispatch"
	"AnalysisOrchestrator/internal/domain"
	"AnalysisOrchestrator/internal/lease"
	"AnalysisOrchestrator/internal/protocol"
	"AnalysisOrchestrator/internal/queue"
	"AnalysisOrchestrator/internal/repo"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Scheduler struct {
	db         *pgxpool.Pool
	rdb        *redis.Client
	leases     *lease.Manager
	dispatcher *dispatch.Dispatcher
	aggregator *aggregate.Aggregator
	writer     *aggregate.Writer

	instanceID   string
	concurrency  int
	taskDeadline time.Duration
	leaseTTL     time.Duration
	leaseRenew   time.Duration

	mu       sync.Mutex
	inflight map[uuid.UUID]context.CancelFunc
}

func New(db *pgxpool.Pool, rdb *redis.Client, dispatcher *dispatch.Dispatcher,
	aggregator *aggregate.Aggregator, writer *aggregate.Writer,
	concurrency int, taskDeadline, leaseTTL, leaseRenew time.Duration) *Scheduler {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Scheduler{
		db:           db,
		rdb:          rdb,
		leases:       lease.NewManager(rdb),
		dispatcher:   dispatcher,
		aggregator:   aggregator,
		writer:       writer,
		instanceID:   uuid.NewString(),
		concurrency:  concurrency,
		taskDeadline: taskDeadline,
		leaseTTL:     leaseTTL,
		leaseRenew:   leaseRenew,
	}
}

// Run consumes the ready queue with a poll fallback until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.inflight = make(map[uuid.UUID]context.CancelFunc)
	s.mu.Unlock()

	go s.watchCancellations(ctx)

	log.Printf("scheduler %s started, concurrency=%d", s.instanceID, s.concurrency)
	var wg sync.WaitGroup
	for i := 0; i < s.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.consumeLoop(ctx)
		}()
	}
	wg.Wait()
	log.Printf("scheduler %s stopped", s.instanceID)
}

func (s *Scheduler) consumeLoop(ctx context.Context) {
	for ctx.Err() == nil {
		id, ok, err := queue.DequeueReady(ctx, s.rdb, 2*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("scheduler: dequeue failed: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if !ok {
			// Queue was quiet; poll the store in case a ready signal
			// was lost.
			s.pollOnce(ctx)
			continue
		}
		taskID, err := uuid.Parse(id)
		if err != nil {
			log.Printf("scheduler: ignoring malformed task id %q on ready queue", id)
			continue
		}
		s.tryExecute(ctx, taskID)
	}
}

func (s *Scheduler) pollOnce(ctx context.Context) {
	tasks, err := repo.ListPendingTasks(ctx, s.db, 1)
	if err != nil {
		log.Printf("scheduler: poll pending failed: %v", err)
		return
	}
	for _, t := range tasks {
		s.tryExecute(ctx, t.ID)
	}
}

// tryExecute re-reads the task and races the atomic claim. Losing the race
// is normal under concurrent schedulers and is not an error.
func (s *Scheduler) tryExecute(ctx context.Context, taskID uuid.UUID) {
	t, err := repo.GetTaskByID(ctx, s.db, taskID)
	if err != nil {
		log.Printf("scheduler: load task %s failed: %v", taskID, err)
		return
	}
	if t.Status != domain.StatusPending {
		return
	}
	claimed, err := repo.ClaimTask(ctx, s.db, t.ID, t.Version)
	if err != nil {
		log.Printf("scheduler: claim task %s failed: %v", t.ID, err)
		return
	}
	if !claimed {
		return
	}
	if err := s.leases.Take(ctx, t.ID.String(), s.instanceID, s.leaseTTL); err != nil {
		log.Printf("scheduler: take lease for %s failed: %v", t.ID, err)
	}
	s.executeTask(ctx, t)
}

func (s *Scheduler) executeTask(ctx context.Context, t *domain.Task) {
	taskCtx, cancel := context.WithTimeout(ctx, s.taskDeadline)
	defer cancel()

	s.mu.Lock()
	s.inflight[t.ID] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, t.ID)
		s.mu.Unlock()
	}()

	go s.leases.KeepAlive(taskCtx, t.ID.String(), s.instanceID, s.leaseTTL, s.leaseRenew)

	log.Printf("scheduler: executing task %s target=%s@%s capabilities=%v",
		t.ID, t.TargetApp, t.TargetRevision, t.CapabilitySet)

	plan, _ := s.dispatcher.Plan(t.CapabilitySet)
	subtasks := s.createSubtasks(ctx, t, plan)

	onProgress := func(worker string, f protocol.Frame) {
		log.Printf("task %s: worker %s progress %d%%: %s", t.ID, worker, f.Percent, f.Message)
	}
	outcome, dispatchErr := s.dispatcher.Dispatch(taskCtx, t, onProgress)

	// Terminal persistence uses a fresh context: the task deadline may have
	// elapsed, but the store write must still happen.
	persistCtx, persistCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer persistCancel()

	statuses := s.settleSubtasks(persistCtx, subtasks, outcome)

	if dispatchErr != nil {
		summary := dispatchErr.Error()
		log.Printf("scheduler: task %s failed: %v", t.ID, dispatchErr)
		if ok, err := repo.FailTask(persistCtx, s.db, t.ID, summary); err != nil {
			log.Printf("scheduler: persist failure for task %s failed: %v", t.ID, err)
		} else if !ok {
			log.Printf("scheduler: task %s already terminal (cancelled?), leaving as-is", t.ID)
		}
		return
	}

	status := domain.ReduceStatuses(statuses)
	result, sideDocs := s.aggregator.Aggregate(t, outcome, time.Now())
	resultRef, err := s.writer.Write(t, status, result, sideDocs, outcome)
	if err != nil {
		// Store-level failure: the one aggregation error class that fails
		// the whole task.
		log.Printf("scheduler: write result for task %s failed: %v", t.ID, err)
		if _, ferr := repo.FailTask(persistCtx, s.db, t.ID, fmt.Sprintf("persist result: %v", err)); ferr != nil {
			log.Printf("scheduler: persist failure for task %s failed: %v", t.ID, ferr)
		}
		return
	}

	ok, err := repo.CompleteTask(persistCtx, s.db, t.ID, status, resultRef, errorSummary(outcome))
	if err != nil {
		log.Printf("scheduler: complete task %s failed: %v", t.ID, err)
		return
	}
	if !ok {
		// A concurrent cancel reached the store first; its transition wins.
		log.Printf("scheduler: task %s was cancelled during execution", t.ID)
		return
	}
	log.Printf("scheduler: task %s finished status=%s result=%s", t.ID, status, resultRef)
}

// createSubtasks records one subtask row per planned worker so the parent's
// terminal status is an auditable reduction over per-worker rows.
func (s *Scheduler) createSubtasks(ctx context.Context, parent *domain.Task, plan []dispatch.Assignment) map[string]uuid.UUID {
	subtasks := make(map[string]uuid.UUID, len(plan))
	for _, a := range plan {
		parentID := parent.ID
		sub := &domain.Task{
			ID:             uuid.New(),
			TargetApp:      parent.TargetApp,
			TargetRevision: parent.TargetRevision,
			CapabilitySet:  a.Capabilities,
			Status:         domain.StatusRunning,
			Priority:       parent.Priority,
			ParentTaskID:   &parentID,
		}
		if err := repo.InsertTask(ctx, s.db, sub); err != nil {
			log.Printf("scheduler: insert subtask for worker %s failed: %v", a.Worker.Name, err)
			continue
		}
		subtasks[a.Worker.Name] = sub.ID
	}
	return subtasks
}

func (s *Scheduler) settleSubtasks(ctx context.Context, subtasks map[string]uuid.UUID, outcome *dispatch.Outcome) []string {
	var statuses []string
	if outcome == nil {
		return statuses
	}
	for _, w := range outcome.Workers {
		status := subtaskStatus(w.Status)
		statuses = append(statuses, status)
		id, ok := subtasks[w.Worker]
		if !ok {
			continue
		}
		if err := repo.UpdateSubtaskStatus(ctx, s.db, id, status, w.Err); err != nil {
			log.Printf("scheduler: update subtask %s failed: %v", id, err)
		}
	}
	return statuses
}

func subtaskStatus(outcomeStatus string) string {
	switch outcomeStatus {
	case dispatch.OutcomeSuccess:
		return domain.StatusCompleted
	case dispatch.OutcomePartial:
		return domain.StatusPartialSuccess
	default:
		return domain.StatusFailed
	}
}

func errorSummary(outcome *dispatch.Outcome) string {
	if outcome == nil {
		return ""
	}
	for _, w := range outcome.Workers {
		if w.Err != "" {
			return fmt.Sprintf("worker %s: %s", w.Worker, w.Err)
		}
	}
	return ""
}

// watchCancellations propagates cancel broadcasts into in-flight executions.
// The store transition to cancelled already happened on the publishing side;
// this only tears down connections and abandons reads.
func (s *Scheduler) watchCancellations(ctx context.Context) {
	ch, closeSub := queue.SubscribeCancel(ctx, s.rdb)
	defer closeSub()
	for id := range ch {
		taskID, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		s.mu.Lock()
		cancel, ok := s.inflight[taskID]
		s.mu.Unlock()
		if ok {
			log.Printf("scheduler: cancelling in-flight task %s", taskID)
			cancel()
		}
	}
}
