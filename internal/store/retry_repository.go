package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/crawlctl/internal/domain"
)

const retryPolicyColumns = `id, error_category, is_retryable, max_attempts, backoff_strategy,
	initial_delay_seconds, max_delay_seconds, backoff_multiplier, created_at, updated_at`

// RetryPolicyRepository reads/writes the operator-overridable retry decision
// table seeded by the retry_policy migration.
type RetryPolicyRepository struct {
	db *sqlx.DB
}

func NewRetryPolicyRepository(db *sqlx.DB) *RetryPolicyRepository {
	return &RetryPolicyRepository{db: db}
}

func (r *RetryPolicyRepository) GetByCategory(ctx context.Context, category string) (*domain.RetryPolicy, error) {
	var p domain.RetryPolicy
	query := `SELECT ` + retryPolicyColumns + ` FROM retry_policy WHERE error_category = $1`
	if err := r.db.GetContext(ctx, &p, query, category); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: retry policy for category %q", ErrNotFound, category)
		}
		return nil, fmt.Errorf("store: get retry policy: %w", err)
	}
	return &p, nil
}

func (r *RetryPolicyRepository) List(ctx context.Context) ([]*domain.RetryPolicy, error) {
	var rows []*domain.RetryPolicy
	query := `SELECT ` + retryPolicyColumns + ` FROM retry_policy ORDER BY error_category`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("store: list retry policies: %w", err)
	}
	return rows, nil
}

// Update applies an operator override to an existing policy row.
func (r *RetryPolicyRepository) Update(ctx context.Context, p *domain.RetryPolicy) error {
	query := `UPDATE retry_policy
		SET is_retryable = $1, max_attempts = $2, backoff_strategy = $3,
		    initial_delay_seconds = $4, max_delay_seconds = $5, backoff_multiplier = $6, updated_at = NOW()
		WHERE error_category = $7
		RETURNING id, updated_at`

	err := r.db.QueryRowContext(ctx, query, p.IsRetryable, p.MaxAttempts, p.Strategy,
		p.InitialDelaySecs, p.MaxDelaySecs, p.Multiplier, p.ErrorCategory).
		Scan(&p.ID, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: retry policy for category %q", ErrNotFound, p.ErrorCategory)
		}
		return fmt.Errorf("store: update retry policy: %w", err)
	}
	return nil
}

const retryHistoryColumns = `id, job_id, attempt_number, error_category, error_message,
	stack_trace, retry_delay_seconds, attempted_at`

// RetryHistoryRepository is the append-only attempt log.
type RetryHistoryRepository struct {
	db *sqlx.DB
}

func NewRetryHistoryRepository(db *sqlx.DB) *RetryHistoryRepository {
	return &RetryHistoryRepository{db: db}
}

func (r *RetryHistoryRepository) Append(ctx context.Context, h *domain.RetryHistory) error {
	query := `INSERT INTO retry_history (job_id, attempt_number, error_category, error_message, stack_trace, retry_delay_seconds)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, attempted_at`

	err := r.db.QueryRowContext(ctx, query, h.JobRef, h.AttemptNumber, h.ErrorCategory, h.Message, h.Stack, h.DelayApplied).
		Scan(&h.ID, &h.Timestamp)
	if err != nil {
		return fmt.Errorf("store: append retry history: %w", err)
	}
	return nil
}

func (r *RetryHistoryRepository) ListByJob(ctx context.Context, jobID string) ([]*domain.RetryHistory, error) {
	var rows []*domain.RetryHistory
	query := `SELECT ` + retryHistoryColumns + ` FROM retry_history WHERE job_id = $1 ORDER BY attempt_number`
	if err := r.db.SelectContext(ctx, &rows, query, jobID); err != nil {
		return nil, fmt.Errorf("store: list retry history: %w", err)
	}
	if rows == nil {
		rows = []*domain.RetryHistory{}
	}
	return rows, nil
}
