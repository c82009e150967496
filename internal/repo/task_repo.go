package repo

import (
	"context"
	"time"

	"AnalysisOrchestrator/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const taskColumns = `id, target_app, target_revision, capability_set, status, priority,
    version, reset_count, parent_task_id, result_ref, error_summary,
    created_at, started_at, completed_at`

func scanTask(row pgx.Row) (*domain.Task, error) {
	var t domain.Task
	var resultRef, errorSummary *string
	if err := row.Scan(
		&t.ID, &t.TargetApp, &t.TargetRevision, &t.CapabilitySet, &t.Status, &t.Priority,
		&t.Version, &t.ResetCount, &t.ParentTaskID, &resultRef, &errorSummary,
		&t.CreatedAt, &t.StartedAt, &t.CompletedAt,
	); err != nil {
		return nil, err
	}
	if resultRef != nil {
		t.ResultRef = *resultRef
	}
	if errorSummary != nil {
		t.ErrorSummary = *errorSummary
	}
	return &t, nil
}

// InsertTask inserts a new task row. The partial unique index on
// (target_app, target_revision, capability_key) rejects a second active task
// for the same tuple; callers should treat that conflict as "already queued".
func InsertTask(ctx context.Context, db *pgxpool.Pool, t *domain.Task) error {
	_, err := db.Exec(ctx, `
        INSERT INTO tasks (id, target_app, target_revision, capability_set, capability_key,
            status, priority, version, reset_count, parent_task_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0, $8, NOW())
    `, t.ID, t.TargetApp, t.TargetRevision, t.CapabilitySet, domain.CapabilityKey(t.CapabilitySet),
		t.Status, t.Priority, t.ParentTaskID)
	return err
}

func GetTaskByID(ctx context.Context, db *pgxpool.Pool, taskID uuid.UUID) (*domain.Task, error) {
	return scanTask(db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=$1`, taskID))
}

// FindActiveTask returns the pending/running top-level task for the tuple, if any.
func FindActiveTask(ctx context.Context, db *pgxpool.Pool, targetApp, targetRevision, capabilityKey string) (*domain.Task, error) {
	t, err := scanTask(db.QueryRow(ctx, `
        SELECT `+taskColumns+` FROM tasks
        WHERE target_app=$1 AND target_revision=$2 AND capability_key=$3
          AND status IN ('pending','running') AND parent_task_id IS NULL
        LIMIT 1
    `, targetApp, targetRevision, capabilityKey))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// ClaimTask performs the atomic pending→running transition. The version
// check makes the claim a compare-and-swap: under N concurrent schedulers
// exactly one caller sees true.
func ClaimTask(ctx context.Context, db *pgxpool.Pool, taskID uuid.UUID, version int) (bool, error) {
	tag, err := db.Exec(ctx, `
        UPDATE tasks
        SET status='running', version=version+1, started_at=NOW()
        WHERE id=$1 AND status='pending' AND version=$2
    `, taskID, version)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CompleteTask writes a terminal status plus the result pointer. Only a
// running task can complete, so a concurrent cancel wins races cleanly.
func CompleteTask(ctx context.Context, db *pgxpool.Pool, taskID uuid.UUID, status, resultRef, errorSummary string) (bool, error) {
	tag, err := db.Exec(ctx, `
        UPDATE tasks
        SET status=$2, version=version+1, result_ref=NULLIF($3,''),
            error_summary=NULLIF($4,''), completed_at=NOW()
        WHERE id=$1 AND status='running'
    `, taskID, status, resultRef, errorSummary)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CancelTask transitions a pending or running task to cancelled, exactly
// once. Returns false when the task was already terminal.
func CancelTask(ctx context.Context, db *pgxpool.Pool, taskID uuid.UUID) (bool, error) {
	tag, err := db.Exec(ctx, `
        UPDATE tasks
        SET status='cancelled', version=version+1, completed_at=NOW()
        WHERE id=$1 AND status IN ('pending','running')
    `, taskID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ResetTaskToPending sends a stuck running task back to the queue and burns
// one reset from its budget. The version bump invalidates any stale claim.
func ResetTaskToPending(ctx context.Context, db *pgxpool.Pool, taskID uuid.UUID) (bool, error) {
	tag, err := db.Exec(ctx, `
        UPDATE tasks
        SET status='pending', version=version+1, reset_count=reset_count+1, started_at=NULL
        WHERE id=$1 AND status='running'
    `, taskID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// FailTask marks a running task failed with a summary.
func FailTask(ctx context.Context, db *pgxpool.Pool, taskID uuid.UUID, errorSummary string) (bool, error) {
	return CompleteTask(ctx, db, taskID, domain.StatusFailed, "", errorSummary)
}

// ListChildren returns the subtasks of a parent, ordered for deterministic
// reduction.
func ListChildren(ctx context.Context, db *pgxpool.Pool, parentID uuid.UUID) ([]domain.Task, error) {
	rows, err := db.Query(ctx, `
        SELECT `+taskColumns+` FROM tasks WHERE parent_task_id=$1 ORDER BY created_at, id
    `, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *t)
	}
	return res, rows.Err()
}

// ListPendingTasks returns claimable top-level tasks, highest priority and
// oldest first. Poll fallback for when the ready queue signal is lost.
func ListPendingTasks(ctx context.Context, db *pgxpool.Pool, limit int) ([]domain.Task, error) {
	rows, err := db.Query(ctx, `
        SELECT `+taskColumns+` FROM tasks
        WHERE status='pending' AND parent_task_id IS NULL
        ORDER BY priority DESC, created_at
        LIMIT $1
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *t)
	}
	return res, rows.Err()
}

// ListRunningStartedBefore returns running top-level tasks claimed before
// the cutoff. The sweeper decides per task whether a lease still exists.
func ListRunningStartedBefore(ctx context.Context, db *pgxpool.Pool, before time.Time) ([]domain.Task, error) {
	rows, err := db.Query(ctx, `
        SELECT `+taskColumns+` FROM tasks
        WHERE status='running' AND parent_task_id IS NULL AND started_at < $1
    `, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *t)
	}
	return res, rows.Err()
}

// ListPendingCreatedBefore returns pending top-level tasks never picked up
// since before the cutoff; candidates for stale cancellation.
func ListPendingCreatedBefore(ctx context.Context, db *pgxpool.Pool, before time.Time) ([]domain.Task, error) {
	rows, err := db.Query(ctx, `
        SELECT `+taskColumns+` FROM tasks
        WHERE status='pending' AND parent_task_id IS NULL AND created_at < $1
    `, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *t)
	}
	return res, rows.Err()
}

// UpdateSubtaskStatus writes a subtask's terminal status. Subtasks are
// executed in-process by the scheduler that claimed the parent, so no CAS is
// needed beyond the parent's claim.
func UpdateSubtaskStatus(ctx context.Context, db *pgxpool.Pool, taskID uuid.UUID, status, errorSummary string) error {
	_, err := db.Exec(ctx, `
        UPDATE tasks
        SET status=$2, version=version+1, error_summary=NULLIF($3,''), completed_at=NOW()
        WHERE id=$1
    `, taskID, status, errorSummary)
	return err
}
