package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/crawlctl/internal/domain"
)

const dlqColumns = `id, job_id, seed_url, website_id, job_type, priority, error_category, error_message,
	stack_trace, http_status, total_attempts, first_attempt_at, last_attempt_at, added_to_dlq_at,
	retry_attempted, retry_attempted_at, retry_success, resolved_at, resolution_notes`

// DLQRepository quarantines terminally failed jobs.
type DLQRepository struct {
	db *sqlx.DB
}

func NewDLQRepository(db *sqlx.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// Insert records a terminal-failure snapshot. Rejected with ErrConflict if
// the job already has an unresolved DLQ entry (one active entry per job
// at a time), enforced by ux_dlq_active_job.
func (r *DLQRepository) Insert(ctx context.Context, e *domain.DLQEntry) error {
	query := `INSERT INTO dead_letter_queue (
			job_id, seed_url, website_id, job_type, priority, error_category, error_message,
			stack_trace, http_status, total_attempts, first_attempt_at, last_attempt_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, added_to_dlq_at`

	err := r.db.QueryRowContext(ctx, query,
		e.JobRef, e.SeedURL, e.WebsiteRef, e.JobType, e.Priority, e.ErrorCategory, e.ErrorMessage,
		e.StackTrace, e.HTTPStatus, e.TotalAttempts, e.FirstAttemptAt, e.LastAttemptAt,
	).Scan(&e.ID, &e.AddedToDLQAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: job %s already has an active DLQ entry", ErrConflict, e.JobRef)
		}
		return fmt.Errorf("store: insert dlq entry: %w", err)
	}
	return nil
}

func (r *DLQRepository) GetByID(ctx context.Context, id int64) (*domain.DLQEntry, error) {
	var e domain.DLQEntry
	query := `SELECT ` + dlqColumns + ` FROM dead_letter_queue WHERE id = $1`
	if err := r.db.GetContext(ctx, &e, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: dlq entry %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("store: get dlq entry: %w", err)
	}
	return &e, nil
}

func (r *DLQRepository) GetActiveByJob(ctx context.Context, jobID string) (*domain.DLQEntry, error) {
	var e domain.DLQEntry
	query := `SELECT ` + dlqColumns + ` FROM dead_letter_queue WHERE job_id = $1 AND resolved_at IS NULL`
	if err := r.db.GetContext(ctx, &e, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: active dlq entry for job %s", ErrNotFound, jobID)
		}
		return nil, fmt.Errorf("store: get active dlq entry: %w", err)
	}
	return &e, nil
}

func (r *DLQRepository) List(ctx context.Context, unresolvedOnly bool, limit, offset int) ([]*domain.DLQEntry, error) {
	var rows []*domain.DLQEntry
	where := ""
	if unresolvedOnly {
		where = "WHERE resolved_at IS NULL"
	}
	query := fmt.Sprintf(`SELECT %s FROM dead_letter_queue %s ORDER BY added_to_dlq_at DESC LIMIT $1 OFFSET $2`, dlqColumns, where)
	if err := r.db.SelectContext(ctx, &rows, query, limit, offset); err != nil {
		return nil, fmt.Errorf("store: list dlq entries: %w", err)
	}
	if rows == nil {
		rows = []*domain.DLQEntry{}
	}
	return rows, nil
}

// MarkRetryAttempted records a manual operator retry.
func (r *DLQRepository) MarkRetryAttempted(ctx context.Context, id int64, success *bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE dead_letter_queue
		SET retry_attempted = TRUE, retry_attempted_at = NOW(), retry_success = $1
		WHERE id = $2`, success, id)
	return execRequireRows(result, err, fmt.Errorf("%w: dlq entry %d", ErrNotFound, id))
}

// Resolve closes out an entry with operator notes.
func (r *DLQRepository) Resolve(ctx context.Context, id int64, notes string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE dead_letter_queue
		SET resolved_at = NOW(), resolution_notes = $1
		WHERE id = $2 AND resolved_at IS NULL`, notes, id)
	return execRequireRows(result, err, fmt.Errorf("%w: dlq entry %d not active", ErrConflict, id))
}
