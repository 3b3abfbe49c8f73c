package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/crawlctl/internal/domain"
	"github.com/jonesrussell/crawlctl/internal/store"
)

func newMockRepo(t *testing.T) (*store.JobRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	db := sqlx.NewDb(mockDB, "postgres")
	return store.NewJobRepository(db), mock, func() { mockDB.Close() }
}

func TestJobRepository_Create_TemplateBased(t *testing.T) {
	repo, mock, closeDB := newMockRepo(t)
	defer closeDB()

	websiteID := "11111111-1111-1111-1111-111111111111"
	createdAt, updatedAt := time.Now(), time.Now()

	mock.ExpectQuery("INSERT INTO crawl_job").
		WithArgs("https://example.com/x", &websiteID, nil, sqlmock.AnyArg(), 5, domain.JobTypeOneTime, domain.JobStatusPending, nil, 5, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("job-1", createdAt, updatedAt))

	job := &domain.Job{
		SeedURL:    "https://example.com/x",
		WebsiteRef: &websiteID,
		Variables:  domain.JSONMap{},
		Priority:   5,
		JobType:    domain.JobTypeOneTime,
		Status:     domain.JobStatusPending,
		MaxRetries: 5,
	}

	if err := repo.Create(context.Background(), job); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if job.ID != "job-1" {
		t.Errorf("job.ID = %q, want job-1", job.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestJobRepository_RequeueForRetry(t *testing.T) {
	repo, mock, closeDB := newMockRepo(t)
	defer closeDB()

	mock.ExpectExec("UPDATE crawl_job").
		WithArgs(domain.JobStatusPending, "job-1", domain.JobStatusRunning).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.RequeueForRetry(context.Background(), "job-1"); err != nil {
		t.Fatalf("RequeueForRetry() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestJobRepository_RequeueForRetry_NotRunning(t *testing.T) {
	repo, mock, closeDB := newMockRepo(t)
	defer closeDB()

	mock.ExpectExec("UPDATE crawl_job").
		WithArgs(domain.JobStatusPending, "job-1", domain.JobStatusRunning).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.RequeueForRetry(context.Background(), "job-1"); err == nil {
		t.Error("expected error when job is not running")
	}
}

func TestJobRepository_Cancel_AlreadyTerminal(t *testing.T) {
	repo, mock, closeDB := newMockRepo(t)
	defer closeDB()

	mock.ExpectExec("UPDATE crawl_job").
		WithArgs(domain.JobStatusCancelled, "user", "user-abort", "job-1", domain.JobStatusPending, domain.JobStatusRunning).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Cancel(context.Background(), "job-1", "user", "user-abort")
	if err == nil {
		t.Error("expected error cancelling an already-terminal job")
	}
}
