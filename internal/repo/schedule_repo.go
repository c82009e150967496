package repo

import (
	"context"
	"time"

	"AnalysisOrchestrator/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

func CreateSchedule(ctx context.Context, db *pgxpool.Pool, s *domain.Schedule) error {
	_, err := db.Exec(ctx, `
        INSERT INTO schedules (id, target_app, target_revision, capability_set,
            cron_expression, timezone, priority, enabled, last_triggered_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, s.ID, s.TargetApp, s.TargetRevision, s.CapabilitySet,
		s.CronExpr, s.Timezone, s.Priority, s.Enabled, s.LastTriggeredAt)
	return err
}

// ListSchedules filters by enabled when the pointer is non-nil.
func ListSchedules(ctx context.Context, db *pgxpool.Pool, enabled *bool) ([]domain.Schedule, error) {
	query := `
        SELECT id, target_app, target_revision, capability_set,
               cron_expression, timezone, priority, enabled, last_triggered_at
        FROM schedules
    `
	args := []any{}
	if enabled != nil {
		query += " WHERE enabled=$1"
		args = append(args, *enabled)
	}
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Schedule
	for rows.Next() {
		var s domain.Schedule
		if err := rows.Scan(
			&s.ID, &s.TargetApp, &s.TargetRevision, &s.CapabilitySet,
			&s.CronExpr, &s.Timezone, &s.Priority, &s.Enabled, &s.LastTriggeredAt,
		); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func UpdateScheduleLastTriggeredAt(ctx context.Context, db *pgxpool.Pool, id uuid.UUID, at time.Time) error {
	_, err := db.Exec(ctx, `UPDATE schedules SET last_triggered_at=$2 WHERE id=$1`, id, at)
	return err
}

func SetScheduleEnabled(ctx context.Context, db *pgxpool.Pool, id uuid.UUID, enabled bool) error {
	_, err := db.Exec(ctx, `UPDATE schedules SET enabled=$2 WHERE id=$1`, id, enabled)
	return err
}
