package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/crawlctl/internal/api"
	"github.com/jonesrussell/crawlctl/internal/logger"
	"github.com/jonesrussell/crawlctl/internal/store"
)

type discardLogger struct{ logger.Interface }

func (discardLogger) Debug(string, ...any)           {}
func (discardLogger) Info(string, ...any)            {}
func (discardLogger) Warn(string, ...any)            {}
func (discardLogger) Error(string, ...any)           {}
func (discardLogger) Fatal(string, ...any)           {}
func (d discardLogger) With(...any) logger.Interface { return d }

func newTestRouter(t *testing.T) (*http.ServeMux, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })

	db := sqlx.NewDb(mockDB, "postgres")
	websites := api.NewWebsitesHandler(store.NewWebsiteRepository(db))

	router := api.SetupRouter(discardLogger{}, api.Handlers{Websites: websites})
	mux := http.NewServeMux()
	mux.Handle("/", router)
	return mux, mock
}

func TestWebsitesHandler_Create(t *testing.T) {
	router, mock := newTestRouter(t)

	createdAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO website").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("site-1", createdAt, createdAt))

	body, _ := json.Marshal(api.CreateWebsiteRequest{Name: "example", BaseURL: "https://example.com"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/websites", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d, body = %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestWebsitesHandler_Get_NotFound(t *testing.T) {
	router, mock := newTestRouter(t)

	mock.ExpectQuery("SELECT .* FROM website WHERE id = \\$1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/websites/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d, body = %s", rec.Code, http.StatusNotFound, rec.Body.String())
	}
}
