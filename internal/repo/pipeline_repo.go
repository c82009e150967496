package repo

import (
	"context"

	"AnalysisOrchestrator/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func InsertPipelineRun(ctx context.Context, db *pgxpool.Pool, r *domain.PipelineRun) error {
	_, err := db.Exec(ctx, `
        INSERT INTO pipeline_runs (id, name, status, created_at) VALUES ($1, $2, $3, NOW())
    `, r.ID, r.Name, r.Status)
	return err
}

func GetPipelineRun(ctx context.Context, db *pgxpool.Pool, runID uuid.UUID) (*domain.PipelineRun, error) {
	row := db.QueryRow(ctx, `
        SELECT id, name, status, created_at, completed_at FROM pipeline_runs WHERE id=$1
    `, runID)
	var r domain.PipelineRun
	if err := row.Scan(&r.ID, &r.Name, &r.Status, &r.CreatedAt, &r.CompletedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func UpdatePipelineRunStatus(ctx context.Context, db *pgxpool.Pool, runID uuid.UUID, status string, terminal bool) error {
	if terminal {
		_, err := db.Exec(ctx, `
            UPDATE pipeline_runs SET status=$2, completed_at=NOW() WHERE id=$1
        `, runID, status)
		return err
	}
	_, err := db.Exec(ctx, `UPDATE pipeline_runs SET status=$2 WHERE id=$1`, runID, status)
	return err
}

func InsertPipelineStep(ctx context.Context, db *pgxpool.Pool, s *domain.PipelineStep) error {
	_, err := db.Exec(ctx, `
        INSERT INTO pipeline_steps (id, run_id, name, target_app, target_revision,
            capability_set, depends_on, continue_on_partial, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, s.ID, s.RunID, s.Name, s.TargetApp, s.TargetRevision,
		s.CapabilitySet, s.DependsOn, s.ContinueOnPartial, s.Status)
	return err
}

func ListPipelineSteps(ctx context.Context, db *pgxpool.Pool, runID uuid.UUID) ([]domain.PipelineStep, error) {
	rows, err := db.Query(ctx, `
        SELECT id, run_id, name, target_app, target_revision, capability_set,
               depends_on, continue_on_partial, status, task_id, error_summary
        FROM pipeline_steps WHERE run_id=$1 ORDER BY name
    `, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PipelineStep
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *s)
	}
	return res, rows.Err()
}

func scanStep(row pgx.Row) (*domain.PipelineStep, error) {
	var s domain.PipelineStep
	var errorSummary *string
	if err := row.Scan(
		&s.ID, &s.RunID, &s.Name, &s.TargetApp, &s.TargetRevision, &s.CapabilitySet,
		&s.DependsOn, &s.ContinueOnPartial, &s.Status, &s.TaskID, &errorSummary,
	); err != nil {
		return nil, err
	}
	if errorSummary != nil {
		s.ErrorSummary = *errorSummary
	}
	return &s, nil
}

func UpdatePipelineStep(ctx context.Context, db *pgxpool.Pool, stepID uuid.UUID, status string, taskID *uuid.UUID, errorSummary string) error {
	_, err := db.Exec(ctx, `
        UPDATE pipeline_steps
        SET status=$2, task_id=COALESCE($3, task_id), error_summary=NULLIF($4,'')
        WHERE id=$1
    `, stepID, status, taskID, errorSummary)
	return err
}
