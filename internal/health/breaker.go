// Package health tracks per-worker failure state. Each worker identity gets
// its own circuit: one unhealthy worker never blocks dispatch to the rest.
// The registry is plain mutex-guarded state injected into the dispatcher;
// there is deliberately no package-level singleton.
package health

import (
	"sync"
	"time"
)

// Circuit states.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

// WorkerHealth is a point-in-time snapshot of one worker's circuit.
type WorkerHealth struct {
	Worker              string     `json:"worker"`
	State               string     `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	CooldownUntil       *time.Time `json:"cooldown_until,omitempty"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
}

type record struct {
	state               string
	consecutiveFailures int
	cooldownUntil       time.Time
	lastSuccessAt       time.Time
	probeInFlight       bool
}

// Registry holds one circuit per worker identity.
type Registry struct {
	mu               sync.Mutex
	failureThreshold int
	cooldown         time.Duration
	now              func() time.Time
	workers          map[string]*record
}

func NewRegistry(failureThreshold int, cooldown time.Duration) *Registry {
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	return &Registry{
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		now:              time.Now,
		workers:          make(map[string]*record),
	}
}

func (r *Registry) get(worker string) *record {
	rec, ok := r.workers[worker]
	if !ok {
		rec = &record{state: StateClosed}
		r.workers[worker] = rec
	}
	return rec
}

// Allow reports whether a connection attempt to the worker may proceed.
// Closed circuits always allow. An open circuit whose cooldown has elapsed
// moves to half-open and admits exactly one probing attempt; further calls
// are rejected until that probe reports back.
func (r *Registry) Allow(worker string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.get(worker)
	switch rec.state {
	case StateClosed:
		return true
	case StateOpen:
		if r.now().Before(rec.cooldownUntil) {
			return false
		}
		rec.state = StateHalfOpen
		rec.probeInFlight = true
		return true
	case StateHalfOpen:
		if rec.probeInFlight {
			return false
		}
		rec.probeInFlight = true
		return true
	}
	return false
}

// ReportSuccess records a successful exchange with the worker. A half-open
// probe success closes the circuit.
func (r *Registry) ReportSuccess(worker string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.get(worker)
	rec.consecutiveFailures = 0
	rec.lastSuccessAt = r.now()
	rec.state = StateClosed
	rec.probeInFlight = false
}

// ReportFailure records a failed attempt. The threshold-th consecutive
// failure opens the circuit; a failed half-open probe re-opens it with a
// fresh cooldown.
func (r *Registry) ReportFailure(worker string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.get(worker)
	rec.consecutiveFailures++
	rec.probeInFlight = false
	if rec.state == StateHalfOpen || rec.consecutiveFailures >= r.failureThreshold {
		rec.state = StateOpen
		rec.cooldownUntil = r.now().Add(r.cooldown)
	}
}

// Snapshot returns the current health of every tracked worker.
func (r *Registry) Snapshot() []WorkerHealth {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]WorkerHealth, 0, len(r.workers))
	for name, rec := range r.workers {
		h := WorkerHealth{
			Worker:              name,
			State:               rec.state,
			ConsecutiveFailures: rec.consecutiveFailures,
		}
		if !rec.cooldownUntil.IsZero() {
			t := rec.cooldownUntil
			h.CooldownUntil = &t
		}
		if !rec.lastSuccessAt.IsZero() {
			t := rec.lastSuccessAt
			h.LastSuccessAt = &t
		}
		out = append(out, h)
	}
	return out
}

// SetClock overrides the registry's time source. Test hook.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}
