package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

func Init(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// EnsureSchema creates the minimal durable schema. The version column backs
// the optimistic claim; the partial unique index enforces at most one active
// task per (target, capability set) tuple.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
            id UUID PRIMARY KEY,
            target_app TEXT NOT NULL,
            target_revision TEXT NOT NULL,
            capability_set JSONB NOT NULL,
            capability_key TEXT NOT NULL,
            status TEXT NOT NULL,
            priority INT NOT NULL DEFAULT 0,
            version INT NOT NULL DEFAULT 0,
            reset_count INT NOT NULL DEFAULT 0,
            parent_task_id UUID REFERENCES tasks(id),
            result_ref TEXT,
            error_summary TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            started_at TIMESTAMPTZ,
            completed_at TIMESTAMPTZ
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_active_target
            ON tasks(target_app, target_revision, capability_key)
            WHERE status IN ('pending','running') AND parent_task_id IS NULL;`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_task_id);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status_created ON tasks(status, created_at);`,
		`CREATE TABLE IF NOT EXISTS pipeline_runs (
            id UUID PRIMARY KEY,
            name TEXT NOT NULL,
            status TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            completed_at TIMESTAMPTZ
        );`,
		`CREATE TABLE IF NOT EXISTS pipeline_steps (
            id UUID PRIMARY KEY,
            run_id UUID NOT NULL REFERENCES pipeline_runs(id),
            name TEXT NOT NULL,
            target_app TEXT NOT NULL,
            target_revision TEXT NOT NULL,
            capability_set JSONB NOT NULL,
            depends_on JSONB NOT NULL DEFAULT '[]',
            continue_on_partial BOOLEAN NOT NULL DEFAULT FALSE,
            status TEXT NOT NULL,
            task_id UUID REFERENCES tasks(id),
            error_summary TEXT,
            UNIQUE(run_id, name)
        );`,
		`CREATE TABLE IF NOT EXISTS schedules (
            id UUID PRIMARY KEY,
            target_app TEXT NOT NULL,
            target_revision TEXT NOT NULL,
            capability_set JSONB NOT NULL,
            cron_expression TEXT NOT NULL,
            timezone TEXT NOT NULL DEFAULT 'UTC',
            priority INT NOT NULL DEFAULT 0,
            enabled BOOLEAN NOT NULL DEFAULT TRUE,
            last_triggered_at TIMESTAMPTZ
        );`,
	}
	for _, q := range ddl {
		if _, err := pool.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}
