package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/crawlctl/internal/domain"
)

const jobColumns = `id, seed_url, website_id, inline_config, variables, priority, job_type, status,
	scheduled_at, started_at, completed_at, cancelled_at, cancelled_by, cancellation_reason,
	max_retries, attempt_count, created_at, updated_at`

// JobRepository persists crawl jobs.
type JobRepository struct {
	db *sqlx.DB
}

func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job. Exactly one of WebsiteRef/InlineConfig must be
// set; the XOR is additionally enforced by the crawl_job check constraint.
func (r *JobRepository) Create(ctx context.Context, j *domain.Job) error {
	query := `INSERT INTO crawl_job (
			seed_url, website_id, inline_config, variables, priority, job_type, status,
			scheduled_at, max_retries, attempt_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(
		ctx, query,
		j.SeedURL, j.WebsiteRef, nullableJSONMap(j.InlineConfig), j.Variables,
		j.Priority, j.JobType, j.Status, j.ScheduledAt, j.MaxRetries, j.AttemptCount,
	).Scan(&j.ID, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("%w: job must set exactly one of website_ref or inline_config", ErrConflict)
		}
		return fmt.Errorf("store: create job: %w", err)
	}
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	var j domain.Job
	query := `SELECT ` + jobColumns + ` FROM crawl_job WHERE id = $1`
	if err := r.db.GetContext(ctx, &j, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: job %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("store: get job: %w", err)
	}
	return &j, nil
}

// ListParams filters List/Count queries.
type ListParams struct {
	Status     string
	WebsiteRef string
	Limit      int
	Offset     int
}

func (r *JobRepository) List(ctx context.Context, params ListParams) ([]*domain.Job, error) {
	var jobs []*domain.Job
	conditions, args := buildJobFilter(params)

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	query := fmt.Sprintf(`SELECT %s FROM crawl_job %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		jobColumns, where, len(args)+1, len(args)+2)
	args = append(args, params.Limit, params.Offset)

	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("store: list jobs: %w", err)
	}
	if jobs == nil {
		jobs = []*domain.Job{}
	}
	return jobs, nil
}

func (r *JobRepository) Count(ctx context.Context, params ListParams) (int, error) {
	var count int
	conditions, args := buildJobFilter(params)
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	query := fmt.Sprintf(`SELECT COUNT(*) FROM crawl_job %s`, where)
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("store: count jobs: %w", err)
	}
	return count, nil
}

func buildJobFilter(params ListParams) ([]string, []any) {
	var conditions []string
	var args []any
	idx := 1
	if params.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", idx))
		args = append(args, params.Status)
		idx++
	}
	if params.WebsiteRef != "" {
		conditions = append(conditions, fmt.Sprintf("website_id = $%d", idx))
		args = append(args, params.WebsiteRef)
		idx++
	}
	return conditions, args
}

// UpdateStatus performs a job status transition. fromStatuses restricts the
// update to rows currently in one of those states, enforcing terminality
// at the store layer.
func (r *JobRepository) UpdateStatus(ctx context.Context, id, newStatus string, fromStatuses []string) error {
	placeholders := make([]string, len(fromStatuses))
	args := []any{newStatus, id}
	for i, s := range fromStatuses {
		args = append(args, s)
		placeholders[i] = fmt.Sprintf("$%d", i+3)
	}
	query := fmt.Sprintf(`UPDATE crawl_job SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status IN (%s)`, strings.Join(placeholders, ", "))

	result, err := r.db.ExecContext(ctx, query, args...)
	return execRequireRows(result, err, fmt.Errorf("%w: job %s not in an eligible state", ErrConflict, id))
}

// MarkRunning transitions pending -> running, setting started_at.
func (r *JobRepository) MarkRunning(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE crawl_job
		SET status = $1, started_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		domain.JobStatusRunning, id, domain.JobStatusPending)
	return execRequireRows(result, err, fmt.Errorf("%w: job %s not pending", ErrConflict, id))
}

// MarkCompleted transitions running -> completed.
func (r *JobRepository) MarkCompleted(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE crawl_job
		SET status = $1, completed_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		domain.JobStatusCompleted, id, domain.JobStatusRunning)
	return execRequireRows(result, err, fmt.Errorf("%w: job %s not running", ErrConflict, id))
}

// MarkFailedTerminal transitions running -> failed (no more retries left).
func (r *JobRepository) MarkFailedTerminal(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE crawl_job
		SET status = $1, completed_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		domain.JobStatusFailed, id, domain.JobStatusRunning)
	return execRequireRows(result, err, fmt.Errorf("%w: job %s not running", ErrConflict, id))
}

// RequeueForRetry returns the job row to pending between attempts, with
// attempt_count incremented, ready for the retry poller to redeliver it.
func (r *JobRepository) RequeueForRetry(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE crawl_job
		SET status = $1, attempt_count = attempt_count + 1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		domain.JobStatusPending, id, domain.JobStatusRunning)
	return execRequireRows(result, err, fmt.Errorf("%w: job %s not running", ErrConflict, id))
}

// Cancel marks a job cancelled from any non-terminal state.
func (r *JobRepository) Cancel(ctx context.Context, id, cancelledBy, reason string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE crawl_job
		SET status = $1, cancelled_at = NOW(), cancelled_by = $2, cancellation_reason = $3, updated_at = NOW()
		WHERE id = $4 AND status IN ($5, $6)`,
		domain.JobStatusCancelled, cancelledBy, reason, id, domain.JobStatusPending, domain.JobStatusRunning)
	return execRequireRows(result, err, fmt.Errorf("%w: job %s already terminal", ErrConflict, id))
}

func nullableJSONMap(m domain.JSONMap) any {
	if m == nil {
		return nil
	}
	return m
}
