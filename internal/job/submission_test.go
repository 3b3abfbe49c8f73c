package job_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/crawlctl/internal/broker"
	"github.com/jonesrussell/crawlctl/internal/domain"
	"github.com/jonesrussell/crawlctl/internal/job"
	"github.com/jonesrussell/crawlctl/internal/store"
)

func newSubmissionService(t *testing.T) (*job.Service, sqlmock.Sqlmock, *broker.Broker) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })
	db := sqlx.NewDb(mockDB, "postgres")

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := broker.DefaultConfig()
	cfg.StreamName = "SUBMITTEST"
	br, err := broker.New(context.Background(), rdb, cfg)
	if err != nil {
		t.Fatalf("broker.New() error = %v", err)
	}

	svc := job.New(store.NewWebsiteRepository(db), store.NewJobRepository(db), br)
	return svc, mock, br
}

func websiteRows(id, status string, config []byte) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "base_url", "status", "config", "default_cron", "created_at", "updated_at"}).
		AddRow(id, "example", "https://example.com", status, config, nil, time.Now(), time.Now())
}

func TestCreateTemplateJob_PullsMaxRetriesFromConfig(t *testing.T) {
	svc, mock, br := newSubmissionService(t)
	websiteID := "11111111-1111-1111-1111-111111111111"

	mock.ExpectQuery("SELECT (.+) FROM website WHERE id").
		WithArgs(websiteID).
		WillReturnRows(websiteRows(websiteID, domain.WebsiteStatusActive,
			[]byte(`{"global":{"retry":{"max_attempts":5}}}`)))
	mock.ExpectQuery("INSERT INTO crawl_job").
		WithArgs("https://example.com/x", sqlmock.AnyArg(), nil, sqlmock.AnyArg(),
			5, domain.JobTypeOneTime, domain.JobStatusPending, nil, 5, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("job-1", time.Now(), time.Now()))

	j, err := svc.CreateTemplateJob(context.Background(), job.CreateTemplateJobParams{
		WebsiteRef: websiteID,
		SeedURL:    "https://example.com/x",
	})
	if err != nil {
		t.Fatalf("CreateTemplateJob() error = %v", err)
	}

	if j.Status != domain.JobStatusPending {
		t.Errorf("Status = %q, want pending", j.Status)
	}
	if j.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5 (from config.global.retry.max_attempts)", j.MaxRetries)
	}
	if j.WebsiteRef == nil || *j.WebsiteRef != websiteID {
		t.Errorf("WebsiteRef = %v, want %s", j.WebsiteRef, websiteID)
	}
	if j.InlineConfig != nil {
		t.Error("InlineConfig should be nil for a template-based job")
	}

	depth, err := br.Depth(context.Background())
	if err != nil {
		t.Fatalf("Depth() error = %v", err)
	}
	if depth != 1 {
		t.Errorf("broker depth = %d, want 1 (job published on submission)", depth)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestCreateTemplateJob_WebsiteNotFound(t *testing.T) {
	svc, mock, _ := newSubmissionService(t)

	mock.ExpectQuery("SELECT (.+) FROM website WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "base_url", "status", "config", "default_cron", "created_at", "updated_at"}))

	_, err := svc.CreateTemplateJob(context.Background(), job.CreateTemplateJobParams{
		WebsiteRef: "missing",
		SeedURL:    "https://example.com/x",
	})
	if !errors.Is(err, job.ErrWebsiteNotFound) {
		t.Errorf("error = %v, want ErrWebsiteNotFound", err)
	}
}

func TestCreateTemplateJob_WebsiteInactive(t *testing.T) {
	svc, mock, _ := newSubmissionService(t)
	websiteID := "22222222-2222-2222-2222-222222222222"

	mock.ExpectQuery("SELECT (.+) FROM website WHERE id").
		WithArgs(websiteID).
		WillReturnRows(websiteRows(websiteID, domain.WebsiteStatusInactive, []byte(`{}`)))

	_, err := svc.CreateTemplateJob(context.Background(), job.CreateTemplateJobParams{
		WebsiteRef: websiteID,
		SeedURL:    "https://example.com/x",
	})
	if !errors.Is(err, job.ErrWebsiteInactive) {
		t.Errorf("error = %v, want ErrWebsiteInactive", err)
	}
}

func TestCreateInlineJob_DuplicateStepNames(t *testing.T) {
	svc, _, _ := newSubmissionService(t)

	_, err := svc.CreateInlineJob(context.Background(), job.CreateInlineJobParams{
		SeedURL: "https://example.com/x",
		Steps: []domain.InlineStep{
			{Name: "fetch", Method: "http"},
			{Name: "fetch", Method: "http"},
		},
	})
	if !errors.Is(err, job.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation for colliding step names", err)
	}
}

func TestCreateInlineJob_BrowserStepWithoutBrowserType(t *testing.T) {
	svc, _, _ := newSubmissionService(t)

	_, err := svc.CreateInlineJob(context.Background(), job.CreateInlineJobParams{
		SeedURL: "https://example.com/x",
		Steps: []domain.InlineStep{
			{Name: "render", Method: "browser"},
		},
	})
	if !errors.Is(err, job.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation for browser step without browser_type", err)
	}
}

func TestCreateInlineJob_RejectsNonHTTPScheme(t *testing.T) {
	svc, _, _ := newSubmissionService(t)

	for _, seed := range []string{"ftp://example.com/x", "not a url", "file:///etc/passwd"} {
		_, err := svc.CreateInlineJob(context.Background(), job.CreateInlineJobParams{
			SeedURL: seed,
			Steps:   []domain.InlineStep{{Name: "fetch", Method: "http"}},
		})
		if !errors.Is(err, job.ErrValidation) {
			t.Errorf("seed %q: error = %v, want ErrValidation", seed, err)
		}
	}
}

func TestCreateInlineJob_NoSteps(t *testing.T) {
	svc, _, _ := newSubmissionService(t)

	_, err := svc.CreateInlineJob(context.Background(), job.CreateInlineJobParams{
		SeedURL: "https://example.com/x",
	})
	if !errors.Is(err, job.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation for empty steps", err)
	}
}
