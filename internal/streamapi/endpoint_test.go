package streamapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/crawlctl/internal/logbuffer"
	"github.com/jonesrussell/crawlctl/internal/logbus"
	"github.com/jonesrussell/crawlctl/internal/logger"
	"github.com/jonesrussell/crawlctl/internal/streamapi"
	"github.com/jonesrussell/crawlctl/internal/store"
)

type nopLogger struct{ logger.Interface }

func (nopLogger) Warn(string, ...any)            {}
func (nopLogger) Info(string, ...any)            {}
func (nopLogger) Debug(string, ...any)           {}
func (nopLogger) Error(string, ...any)           {}
func (nopLogger) Fatal(string, ...any)           {}
func (n nopLogger) With(...any) logger.Interface { return n }

func newTestEndpoint(t *testing.T) (*streamapi.Endpoint, sqlmock.Sqlmock, *miniredis.Miniredis) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })
	db := sqlx.NewDb(mockDB, "postgres")

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	issuer := streamapi.NewTokenIssuer(rdb, "test-signing-key", time.Minute)

	ep := streamapi.New(
		store.NewJobRepository(db),
		store.NewLogRepository(db),
		logbuffer.New(),
		logbus.New(rdb),
		issuer,
		nopLogger{},
		10*time.Millisecond,
		50*time.Millisecond,
	)
	return ep, mock, mr
}

func ginTestContext(rec *httptest.ResponseRecorder, req *http.Request, idParam string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(rec)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: idParam}}
	return c
}

func TestEndpoint_Stream_RejectsMissingToken(t *testing.T) {
	ep, _, _ := newTestEndpoint(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job-1/stream", nil)
	rec := httptest.NewRecorder()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	ep.Stream(ginTestContext(rec, req, "job-1"))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d, body = %s", rec.Code, http.StatusUnauthorized, rec.Body.String())
	}
}

func TestEndpoint_IssueToken_NotFound(t *testing.T) {
	ep, mock, _ := newTestEndpoint(t)

	mock.ExpectQuery("SELECT .* FROM crawl_job WHERE id = \\$1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/missing/stream-token", nil)
	rec := httptest.NewRecorder()

	ep.IssueToken(ginTestContext(rec, req, "missing"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d, body = %s", rec.Code, http.StatusNotFound, rec.Body.String())
	}
}
