package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/crawlctl/internal/domain"
)

const scheduledJobColumns = `id, website_id, cron_schedule, timezone, next_run_time, last_run_time,
	is_active, job_config, created_at, updated_at`

// ScheduledJobRepository persists recurring cron triggers.
type ScheduledJobRepository struct {
	db *sqlx.DB
}

func NewScheduledJobRepository(db *sqlx.DB) *ScheduledJobRepository {
	return &ScheduledJobRepository{db: db}
}

func (r *ScheduledJobRepository) Create(ctx context.Context, s *domain.ScheduledJob) error {
	query := `INSERT INTO scheduled_job (website_id, cron_schedule, timezone, next_run_time, is_active, job_config)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, s.WebsiteRef, s.CronSchedule, s.Timezone, s.NextRunTime, s.IsActive, s.JobConfig).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create scheduled job: %w", err)
	}
	return nil
}

func (r *ScheduledJobRepository) GetByID(ctx context.Context, id string) (*domain.ScheduledJob, error) {
	var s domain.ScheduledJob
	query := `SELECT ` + scheduledJobColumns + ` FROM scheduled_job WHERE id = $1`
	if err := r.db.GetContext(ctx, &s, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: scheduled job %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("store: get scheduled job: %w", err)
	}
	return &s, nil
}

func (r *ScheduledJobRepository) List(ctx context.Context, limit, offset int) ([]*domain.ScheduledJob, error) {
	var rows []*domain.ScheduledJob
	query := `SELECT ` + scheduledJobColumns + ` FROM scheduled_job ORDER BY next_run_time LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &rows, query, limit, offset); err != nil {
		return nil, fmt.Errorf("store: list scheduled jobs: %w", err)
	}
	if rows == nil {
		rows = []*domain.ScheduledJob{}
	}
	return rows, nil
}

// DueForMaterialization returns active rows with next_run_time <= now, in
// next_run_time order.
func (r *ScheduledJobRepository) DueForMaterialization(ctx context.Context, now time.Time, limit int) ([]*domain.ScheduledJob, error) {
	var rows []*domain.ScheduledJob
	query := `SELECT ` + scheduledJobColumns + ` FROM scheduled_job
		WHERE is_active = TRUE AND next_run_time <= $1
		ORDER BY next_run_time ASC
		LIMIT $2`
	if err := r.db.SelectContext(ctx, &rows, query, now, limit); err != nil {
		return nil, fmt.Errorf("store: due scheduled jobs: %w", err)
	}
	if rows == nil {
		rows = []*domain.ScheduledJob{}
	}
	return rows, nil
}

// AdvanceNextRun atomically advances next_run_time and sets last_run_time,
// but only if the row's next_run_time still matches expectedPrevRun. This
// implements the advance-before-publish at-most-once materialization
// guarantee: the update, not the publish, is the linearization
// point, and a 0-rows-affected result means another materializer won the
// race (or the row changed underneath us), so the caller must skip publish.
func (r *ScheduledJobRepository) AdvanceNextRun(ctx context.Context, id string, expectedPrevRun, newNextRun, materializedAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE scheduled_job
		SET next_run_time = $1, last_run_time = $2, updated_at = NOW()
		WHERE id = $3 AND next_run_time = $4`,
		newNextRun, materializedAt, id, expectedPrevRun)
	if err != nil {
		return false, fmt.Errorf("store: advance next run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: advance next run rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *ScheduledJobRepository) SetActive(ctx context.Context, id string, active bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE scheduled_job SET is_active = $1, updated_at = NOW() WHERE id = $2`, active, id)
	return execRequireRows(result, err, fmt.Errorf("%w: scheduled job %s", ErrNotFound, id))
}

func (r *ScheduledJobRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM scheduled_job WHERE id = $1`, id)
	return execRequireRows(result, err, fmt.Errorf("%w: scheduled job %s", ErrNotFound, id))
}
