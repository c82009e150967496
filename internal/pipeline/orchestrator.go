// Package pipeline composes task creations into higher-level runs. A run is
// a small DAG of steps; each step waits for its declared predecessors to
// reach a terminal state and then creates one task through the regular
// submission surface. The run-level status allows partial success, distinct
// from any single task's outcome.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"AnalysisOrchestrator/internal/domain"
	"AnalysisOrchestrator/internal/repo"
	"AnalysisOrchestrator/internal/service"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StepDef declares one step of a run.
type StepDef struct {
	Name              string   `json:"name"`
	TargetApp         string   `json:"target_app"`
	TargetRevision    string   `json:"target_revision"`
	CapabilitySet     []string `json:"capability_set"`
	DependsOn         []string `json:"depends_on,omitempty"`
	ContinueOnPartial bool     `json:"continue_on_partial,omitempty"`
}

// RunDef declares a whole run.
type RunDef struct {
	Name  string    `json:"name"`
	Steps []StepDef `json:"steps"`
}

// Validate checks step names are unique, dependencies exist, and the
// dependency graph is acyclic.
func (d RunDef) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("run name is required")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("run needs at least one step")
	}
	byName := make(map[string]StepDef, len(d.Steps))
	for _, s := range d.Steps {
		if s.Name == "" {
			return fmt.Errorf("every step needs a name")
		}
		if _, dup := byName[s.Name]; dup {
			return fmt.Errorf("duplicate step name %q", s.Name)
		}
		byName[s.Name] = s
	}
	for _, s := range d.Steps {
		for _, dep := range s.DependsOn {
			if _, ok := byName[dep]; !ok {
				return fmt.Errorf("step %q depends on unknown step %q", s.Name, dep)
			}
		}
	}
	// Cycle check by exhaustive topological peeling.
	resolved := make(map[string]bool, len(d.Steps))
	for len(resolved) < len(d.Steps) {
		progressed := false
		for _, s := range d.Steps {
			if resolved[s.Name] {
				continue
			}
			ready := true
			for _, dep := range s.DependsOn {
				if !resolved[dep] {
					ready = false
					break
				}
			}
			if ready {
				resolved[s.Name] = true
				progressed = true
			}
		}
		if !progressed {
			return fmt.Errorf("dependency cycle among run steps")
		}
	}
	return nil
}

// Orchestrator advances runs by polling the durable task store; it never
// holds task state in memory across a wait.
type Orchestrator struct {
	db           *pgxpool.Pool
	tasks        *service.TaskService
	pollInterval time.Duration
}

func New(db *pgxpool.Pool, tasks *service.TaskService, pollInterval time.Duration) *Orchestrator {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Orchestrator{db: db, tasks: tasks, pollInterval: pollInterval}
}

// StartRun persists the run with its steps and begins advancing it in the
// background.
func (o *Orchestrator) StartRun(ctx context.Context, def RunDef) (uuid.UUID, error) {
	if err := def.Validate(); err != nil {
		return uuid.Nil, err
	}
	run := domain.PipelineRun{ID: uuid.New(), Name: def.Name, Status: domain.StatusRunning}
	if err := repo.InsertPipelineRun(ctx, o.db, &run); err != nil {
		return uuid.Nil, err
	}
	for _, s := range def.Steps {
		step := domain.PipelineStep{
			ID:                uuid.New(),
			RunID:             run.ID,
			Name:              s.Name,
			TargetApp:         s.TargetApp,
			TargetRevision:    s.TargetRevision,
			CapabilitySet:     s.CapabilitySet,
			DependsOn:         append([]string{}, s.DependsOn...),
			ContinueOnPartial: s.ContinueOnPartial,
			Status:            domain.StatusPending,
		}
		if err := repo.InsertPipelineStep(ctx, o.db, &step); err != nil {
			return uuid.Nil, err
		}
	}
	go o.watch(context.WithoutCancel(ctx), run.ID)
	return run.ID, nil
}

func (o *Orchestrator) watch(ctx context.Context, runID uuid.UUID) {
	tkr := time.NewTicker(o.pollInterval)
	defer tkr.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tkr.C:
			done, err := o.Advance(ctx, runID)
			if err != nil {
				log.Printf("pipeline: advance run %s failed: %v", runID, err)
				continue
			}
			if done {
				return
			}
		}
	}
}

// Advance performs one scheduling pass over the run: starts steps whose
// predecessors settled, fails steps whose predecessors make them
// unrunnable, folds finished tasks into step statuses, and reduces the run
// status once every step is terminal. Returns true when the run is done.
func (o *Orchestrator) Advance(ctx context.Context, runID uuid.UUID) (bool, error) {
	run, err := repo.GetPipelineRun(ctx, o.db, runID)
	if err != nil {
		return false, err
	}
	if domain.IsTerminal(run.Status) {
		return true, nil
	}
	steps, err := repo.ListPipelineSteps(ctx, o.db, runID)
	if err != nil {
		return false, err
	}

	statuses := make(map[string]string, len(steps))
	for _, s := range steps {
		statuses[s.Name] = s.Status
	}

	allTerminal := true
	for i := range steps {
		step := &steps[i]
		switch step.Status {
		case domain.StatusPending:
			blockedBy, ready := gate(step, statuses)
			switch {
			case blockedBy != "":
				msg := fmt.Sprintf("predecessor %q did not succeed", blockedBy)
				if err := repo.UpdatePipelineStep(ctx, o.db, step.ID, domain.StatusFailed, nil, msg); err != nil {
					return false, err
				}
				statuses[step.Name] = domain.StatusFailed
			case ready:
				if err := o.startStep(ctx, step); err != nil {
					return false, err
				}
				statuses[step.Name] = domain.StatusRunning
				allTerminal = false
			default:
				allTerminal = false
			}
		case domain.StatusRunning:
			if step.TaskID == nil {
				allTerminal = false
				continue
			}
			t, err := repo.GetTaskByID(ctx, o.db, *step.TaskID)
			if err != nil {
				return false, err
			}
			if !domain.IsTerminal(t.Status) {
				allTerminal = false
				continue
			}
			if err := repo.UpdatePipelineStep(ctx, o.db, step.ID, t.Status, nil, t.ErrorSummary); err != nil {
				return false, err
			}
			statuses[step.Name] = t.Status
		}
	}

	if !allTerminal {
		return false, nil
	}
	final := make([]string, 0, len(steps))
	for _, s := range steps {
		final = append(final, statuses[s.Name])
	}
	runStatus := domain.ReduceStatuses(final)
	if err := repo.UpdatePipelineRunStatus(ctx, o.db, runID, runStatus, true); err != nil {
		return false, err
	}
	log.Printf("pipeline: run %s finished status=%s", runID, runStatus)
	return true, nil
}

// gate inspects a pending step's predecessors. It returns the name of a
// predecessor that makes the step unrunnable, or whether every predecessor
// has settled acceptably.
func gate(step *domain.PipelineStep, statuses map[string]string) (blockedBy string, ready bool) {
	ready = true
	for _, dep := range step.DependsOn {
		ds := statuses[dep]
		if !domain.IsTerminal(ds) {
			ready = false
			continue
		}
		switch ds {
		case domain.StatusFailed, domain.StatusCancelled:
			return dep, false
		case domain.StatusPartialSuccess:
			if !step.ContinueOnPartial {
				return dep, false
			}
		}
	}
	return "", ready
}

func (o *Orchestrator) startStep(ctx context.Context, step *domain.PipelineStep) error {
	taskID, _, err := o.tasks.CreateTask(ctx, service.CreateTaskParams{
		TargetApp:      step.TargetApp,
		TargetRevision: step.TargetRevision,
		CapabilitySet:  step.CapabilitySet,
	})
	if err != nil {
		// The step fails descriptively; the run-level reduction decides
		// whether the whole run fails or ends partial.
		msg := fmt.Sprintf("create task: %v", err)
		return repo.UpdatePipelineStep(ctx, o.db, step.ID, domain.StatusFailed, nil, msg)
	}
	log.Printf("pipeline: step %s started task %s", step.Name, taskID)
	return repo.UpdatePipelineStep(ctx, o.db, step.ID, domain.StatusRunning, &taskID, "")
}

// GetRun returns a run with its steps.
func (o *Orchestrator) GetRun(ctx context.Context, runID uuid.UUID) (*domain.PipelineRun, []domain.PipelineStep, error) {
	run, err := repo.GetPipelineRun(ctx, o.db, runID)
	if err != nil {
		return nil, nil, err
	}
	steps, err := repo.ListPipelineSteps(ctx, o.db, runID)
	if err != nil {
		return nil, nil, err
	}
	return run, steps, nil
}
