// Package dispatch turns a claimed task into parallel worker exchanges and a
// set of typed outcomes. Per-worker failures degrade coverage instead of
// failing the job; only insufficient coverage fails the dispatch outright.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"AnalysisOrchestrator/internal/domain"
	"AnalysisOrchestrator/internal/health"
	"AnalysisOrchestrator/internal/protocol"
	"AnalysisOrchestrator/internal/wire"
)

// ErrInsufficientCoverage means too few workers were reachable to attempt
// the job meaningfully: fewer than half of the planned workers, or none.
var ErrInsufficientCoverage = errors.New("insufficient worker coverage")

// ProgressFunc receives progress frames as workers emit them. Frames from
// one worker arrive in emission order; frames from different workers carry
// no cross-worker ordering. Implementations must be safe for concurrent use.
type ProgressFunc func(worker string, frame protocol.Frame)

// Dispatcher fans a task out to every planned worker in parallel and gathers
// the slowest-bounded results.
type Dispatcher struct {
	registry *Registry
	breaker  *health.Registry
	liveness *health.LivenessCache
	client   *wire.Client

	maxAttempts      int
	backoffBase      time.Duration
	exchangeDeadline time.Duration

	// sleep is swappable so retry tests don't wait wall-clock backoffs.
	sleep func(ctx context.Context, d time.Duration) bool
}

func NewDispatcher(registry *Registry, breaker *health.Registry, liveness *health.LivenessCache,
	client *wire.Client, maxAttempts int, backoffBase, exchangeDeadline time.Duration) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = 4
	}
	if backoffBase <= 0 {
		backoffBase = 2 * time.Second
	}
	return &Dispatcher{
		registry:         registry,
		breaker:          breaker,
		liveness:         liveness,
		client:           client,
		maxAttempts:      maxAttempts,
		backoffBase:      backoffBase,
		exchangeDeadline: exchangeDeadline,
		sleep:            sleepCtx,
	}
}

// Backoff returns the delay before retry number n (1-based): base, 2*base,
// 4*base, ...
func (d *Dispatcher) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return d.backoffBase << (n - 1)
}

// Plan exposes the registry resolution for a capability set, so the
// scheduler can create one subtask per planned worker before dispatching.
func (d *Dispatcher) Plan(capabilitySet []string) ([]Assignment, []string) {
	return d.registry.Plan(capabilitySet)
}

// Dispatch resolves the task's capability set, runs every worker exchange in
// parallel and waits for the slowest, bounded by ctx. The returned Outcome
// is populated even when the error is ErrInsufficientCoverage, so callers
// can still persist what little was learned.
func (d *Dispatcher) Dispatch(ctx context.Context, task *domain.Task, onProgress ProgressFunc) (*Outcome, error) {
	plan, unresolved := d.registry.Plan(task.CapabilitySet)
	out := &Outcome{UnresolvedCapabilities: unresolved}
	if len(plan) == 0 {
		return out, fmt.Errorf("%w: no registered worker offers any of %v", ErrInsufficientCoverage, task.CapabilitySet)
	}

	results := make([]WorkerOutcome, len(plan))
	var wg sync.WaitGroup
	for i, a := range plan {
		wg.Add(1)
		go func(i int, a Assignment) {
			defer wg.Done()
			results[i] = d.runAssignment(ctx, task, a, onProgress)
		}(i, a)
	}
	wg.Wait()
	out.Workers = results

	reachable := 0
	for _, w := range results {
		switch w.Status {
		case OutcomeUnavailable, OutcomeNotAttempted:
		default:
			reachable++
		}
	}
	if reachable*2 < len(plan) {
		return out, fmt.Errorf("%w: %d of %d planned workers reachable", ErrInsufficientCoverage, reachable, len(plan))
	}
	return out, nil
}

func (d *Dispatcher) runAssignment(ctx context.Context, task *domain.Task, a Assignment, onProgress ProgressFunc) WorkerOutcome {
	name := a.Worker.Name
	out := WorkerOutcome{
		Worker:       name,
		Capabilities: a.Capabilities,
		Tools:        a.Tools,
		ToolResults:  make(map[string]protocol.ToolResult),
	}

	if !d.breaker.Allow(name) {
		out.Status = OutcomeNotAttempted
		out.Err = "circuit open, cooldown active"
		return out
	}

	remaining := append([]string(nil), a.Capabilities...)
	workerErrored := false
	var lastErr error

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if attempt > 1 {
			if !d.sleep(ctx, d.Backoff(attempt-1)) {
				break
			}
			// The failures above may have opened the circuit; every
			// connection attempt is gated, not just the first.
			if !d.breaker.Allow(name) {
				log.Printf("dispatch: circuit for worker %s opened, giving up after %d attempts", name, attempt-1)
				break
			}
		}
		conn, err := d.client.Connect(ctx, a.Worker)
		if err != nil {
			d.breaker.ReportFailure(name)
			lastErr = err
			log.Printf("dispatch: connect to worker %s failed (attempt %d/%d): %v", name, attempt, d.maxAttempts, err)
			continue
		}
		d.liveness.MarkAlive(ctx, name)

		remaining, workerErrored, err = d.exchange(ctx, conn, task, a, remaining, &out, onProgress, workerErrored)
		conn.Close()
		if err != nil {
			d.breaker.ReportFailure(name)
			lastErr = err
			log.Printf("dispatch: exchange with worker %s failed (attempt %d/%d): %v", name, attempt, d.maxAttempts, err)
			continue
		}
		d.breaker.ReportSuccess(name)
		lastErr = nil
		break
	}

	switch {
	case lastErr != nil && errors.Is(lastErr, wire.ErrProtocolTimeout):
		out.Status = OutcomeTimeout
		out.Err = lastErr.Error()
	case lastErr != nil:
		out.Status = OutcomeUnavailable
		out.Err = lastErr.Error()
	case workerErrored && !anyToolUsable(out.ToolResults):
		out.Status = OutcomeError
	case workerErrored:
		out.Status = OutcomePartial
	default:
		out.Status = OutcomeSuccess
	}
	return out
}

// exchange runs one request per remaining capability over the live
// connection. Worker-reported error frames are terminal for their capability
// and are never retried; transport or deadline failures abort the exchange
// and hand the remaining capabilities back for the next attempt.
func (d *Dispatcher) exchange(ctx context.Context, conn *wire.Conn, task *domain.Task, a Assignment,
	remaining []string, out *WorkerOutcome, onProgress ProgressFunc, workerErrored bool) ([]string, bool, error) {

	for len(remaining) > 0 {
		capability := remaining[0]
		payload := protocol.RequestPayload{
			Target:         protocol.Target{App: task.TargetApp, Revision: task.TargetRevision},
			Tools:          a.Worker.ToolsFor(capability),
			TimeoutSeconds: int(d.exchangeDeadline.Seconds()),
		}

		var terminal *protocol.Frame
		for f := range conn.Send(ctx, capability, payload, d.exchangeDeadline) {
			if f.Type == protocol.TypeProgress {
				if onProgress != nil {
					onProgress(a.Worker.Name, f)
				}
				continue
			}
			frame := f
			terminal = &frame
		}
		if terminal == nil {
			return remaining, workerErrored, conn.Err()
		}

		if terminal.Type == protocol.TypeError {
			workerErrored = true
			for _, tool := range a.Worker.ToolsFor(capability) {
				out.ToolResults[tool] = protocol.ToolResult{Status: "error", ExitNote: terminal.Message}
			}
		} else {
			var parsed map[string]protocol.ToolResult
			if err := json.Unmarshal(terminal.Results, &parsed); err != nil {
				workerErrored = true
				log.Printf("dispatch: worker %s returned malformed %s results: %v", a.Worker.Name, capability, err)
				for _, tool := range a.Worker.ToolsFor(capability) {
					out.ToolResults[tool] = protocol.ToolResult{Status: "error", ExitNote: "malformed results payload"}
				}
			} else {
				for tool, res := range parsed {
					out.ToolResults[tool] = res
				}
				if terminal.Status == "partial" || terminal.Status == "error" {
					workerErrored = true
				}
			}
			if len(terminal.Summary) > 0 {
				out.Summary = terminal.Summary
			}
		}
		remaining = remaining[1:]
	}
	return nil, workerErrored, nil
}

// anyToolUsable reports whether at least one tool produced a result other
// than an error. Distinguishes a genuinely mixed exchange (partial) from a
// worker that errored on everything it was asked (error).
func anyToolUsable(results map[string]protocol.ToolResult) bool {
	for _, r := range results {
		if r.Status != "error" {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
