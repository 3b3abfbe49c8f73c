package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/crawlctl/internal/api"
	"github.com/jonesrussell/crawlctl/internal/dlq"
	"github.com/jonesrussell/crawlctl/internal/store"
)

func TestDLQHandler_List(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer mockDB.Close()

	db := sqlx.NewDb(mockDB, "postgres")
	h := api.NewDLQHandler(dlq.New(store.NewDLQRepository(db)))
	router := api.SetupRouter(discardLogger{}, api.Handlers{DLQ: h})

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "job_id", "seed_url", "website_id", "job_type", "priority", "error_category", "error_message",
		"stack_trace", "http_status", "total_attempts", "first_attempt_at", "last_attempt_at", "added_to_dlq_at",
		"retry_attempted", "retry_attempted_at", "retry_success", "resolved_at", "resolution_notes",
	}).AddRow(
		1, "job-1", "https://example.com", nil, "template", 0, "permanent", "boom",
		nil, nil, 3, now, now, now,
		false, nil, nil, nil, nil,
	)
	mock.ExpectQuery("SELECT .* FROM dead_letter_queue").WillReturnRows(rows)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dlq", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body = %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDLQHandler_Retry_InvalidID(t *testing.T) {
	mockDB, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer mockDB.Close()

	db := sqlx.NewDb(mockDB, "postgres")
	h := api.NewDLQHandler(dlq.New(store.NewDLQRepository(db)))
	router := api.SetupRouter(discardLogger{}, api.Handlers{DLQ: h})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/dlq/not-a-number/retry", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d, body = %s", rec.Code, http.StatusBadRequest, rec.Body.String())
	}
}
