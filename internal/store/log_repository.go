package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/crawlctl/internal/domain"
)

const logColumns = `id, job_id, website_id, step_name, level, message, context, trace_id, created_at`

// LogRepository is the authoritative, monthly-partitioned log store
//).
type LogRepository struct {
	db *sqlx.DB
}

func NewLogRepository(db *sqlx.DB) *LogRepository {
	return &LogRepository{db: db}
}

// Insert writes one log record, returning the assigned monotonic id.
func (r *LogRepository) Insert(ctx context.Context, rec *domain.LogRecord) error {
	query := `INSERT INTO crawl_log (job_id, website_id, step_name, level, message, context, trace_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))
		RETURNING id, created_at`

	var createdAt any
	if !rec.CreatedAt.IsZero() {
		createdAt = rec.CreatedAt
	}

	err := r.db.QueryRowContext(ctx, query, rec.JobRef, rec.WebsiteRef, rec.StepName, rec.Level,
		rec.Message, rec.Context, rec.TraceID, createdAt).
		Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: insert log record: %w", err)
	}
	return nil
}

// ListByJob returns records for a job in ascending id order, optionally
// after a given id (resume_after semantics) with a result cap.
func (r *LogRepository) ListByJob(ctx context.Context, jobID string, afterID int64, limit int) ([]*domain.LogRecord, error) {
	var rows []*domain.LogRecord
	query := `SELECT ` + logColumns + ` FROM crawl_log WHERE job_id = $1 AND id > $2 ORDER BY id ASC LIMIT $3`
	if err := r.db.SelectContext(ctx, &rows, query, jobID, afterID, limit); err != nil {
		return nil, fmt.Errorf("store: list logs by job: %w", err)
	}
	if rows == nil {
		rows = []*domain.LogRecord{}
	}
	return rows, nil
}

// TailByJob returns the most recent n records for a job, oldest first
//.
func (r *LogRepository) TailByJob(ctx context.Context, jobID string, n int) ([]*domain.LogRecord, error) {
	var rows []*domain.LogRecord
	query := `SELECT ` + logColumns + ` FROM (
		SELECT ` + logColumns + ` FROM crawl_log WHERE job_id = $1 ORDER BY id DESC LIMIT $2
	) recent ORDER BY id ASC`
	if err := r.db.SelectContext(ctx, &rows, query, jobID, n); err != nil {
		return nil, fmt.Errorf("store: tail logs by job: %w", err)
	}
	if rows == nil {
		rows = []*domain.LogRecord{}
	}
	return rows, nil
}

// ListByJobSince supports the polling fallback:
// records for a job created strictly after the given timestamp.
func (r *LogRepository) ListByJobSince(ctx context.Context, jobID string, since time.Time, limit int) ([]*domain.LogRecord, error) {
	var rows []*domain.LogRecord
	query := `SELECT ` + logColumns + ` FROM crawl_log WHERE job_id = $1 AND created_at > $2 ORDER BY created_at ASC LIMIT $3`
	if err := r.db.SelectContext(ctx, &rows, query, jobID, since, limit); err != nil {
		return nil, fmt.Errorf("store: list logs since: %w", err)
	}
	if rows == nil {
		rows = []*domain.LogRecord{}
	}
	return rows, nil
}

// EnsurePartitions creates monthStart-based range partitions of crawl_log
// for the current month and the next monthsAhead months, a maintenance
// task run on a schedule,
// not the hot path.
func (r *LogRepository) EnsurePartitions(ctx context.Context, monthsAhead int) error {
	start := time.Now().UTC()
	for i := 0; i <= monthsAhead; i++ {
		monthStart := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, i, 0)
		monthEnd := monthStart.AddDate(0, 1, 0)
		name := fmt.Sprintf("crawl_log_%04d_%02d", monthStart.Year(), monthStart.Month())
		// Partition bounds can't be bind parameters in DDL; both are
		// internally generated month boundaries, not user input.
		query := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s PARTITION OF crawl_log FOR VALUES FROM ('%s') TO ('%s')`,
			pqIdentifier(name), monthStart.Format("2006-01-02"), monthEnd.Format("2006-01-02"),
		)
		if _, err := r.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("store: ensure partition %s: %w", name, err)
		}
	}
	return nil
}

// DropPartitionsOlderThan removes partitions entirely past the retention
// horizon, identified by the fixed crawl_log_YYYY_MM naming convention.
func (r *LogRepository) DropPartitionsOlderThan(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	cutoffMonth := time.Date(cutoff.Year(), cutoff.Month(), 1, 0, 0, 0, 0, time.UTC)

	var names []string
	if err := r.db.SelectContext(ctx, &names, `
		SELECT relname FROM pg_class
		WHERE relname LIKE 'crawl_log_____\___' ESCAPE '\' AND relkind = 'r'`); err != nil {
		return fmt.Errorf("store: list log partitions: %w", err)
	}

	for _, name := range names {
		partMonth, ok := parsePartitionMonth(name)
		if !ok || !partMonth.Before(cutoffMonth) {
			continue
		}
		if _, err := r.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", pqIdentifier(name))); err != nil {
			return fmt.Errorf("store: drop partition %s: %w", name, err)
		}
	}
	return nil
}

// ListPartitions enumerates current crawl_log partitions for operator
// inspection.
func (r *LogRepository) ListPartitions(ctx context.Context) ([]string, error) {
	var names []string
	if err := r.db.SelectContext(ctx, &names, `
		SELECT relname FROM pg_class
		WHERE relname LIKE 'crawl_log_____\___' ESCAPE '\' AND relkind = 'r'
		ORDER BY relname`); err != nil {
		return nil, fmt.Errorf("store: list partitions: %w", err)
	}
	return names, nil
}

func parsePartitionMonth(name string) (time.Time, bool) {
	var year, month int
	if _, err := fmt.Sscanf(name, "crawl_log_%04d_%02d", &year, &month); err != nil {
		return time.Time{}, false
	}
	if month < 1 || month > 12 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), true
}

// pqIdentifier quotes a known-safe (letters/digits/underscore, internally
// generated) identifier for use in DDL that can't be parameterized.
func pqIdentifier(name string) string {
	return `"` + name + `"`
}
