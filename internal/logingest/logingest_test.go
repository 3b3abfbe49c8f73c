package logingest_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/crawlctl/internal/domain"
	"github.com/jonesrussell/crawlctl/internal/logbuffer"
	"github.com/jonesrussell/crawlctl/internal/logbus"
	"github.com/jonesrussell/crawlctl/internal/logger"
	"github.com/jonesrussell/crawlctl/internal/logingest"
	"github.com/jonesrussell/crawlctl/internal/store"
)

func newIngest(t *testing.T) (*logingest.Ingest, sqlmock.Sqlmock, *logbuffer.Buffer, *miniredis.Miniredis) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	db := sqlx.NewDb(mockDB, "postgres")

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	buffer := logbuffer.New()
	ingest := logingest.New(store.NewLogRepository(db), buffer, logbus.New(rdb), logger.NewNoOp())
	return ingest, mock, buffer, mr
}

func TestRecord_WritesStoreThenBufferThenBus(t *testing.T) {
	ingest, mock, buffer, mr := newIngest(t)

	sub, err := logbus.New(redis.NewClient(&redis.Options{Addr: mr.Addr()})).Subscribe(context.Background(), "job-1")
	require.NoError(t, err)
	defer sub.Close()

	mock.ExpectQuery("INSERT INTO crawl_log").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(11), time.Now()))

	rec := &domain.LogRecord{JobRef: "job-1", Level: domain.LogLevelInfo, Message: "step done"}
	require.NoError(t, ingest.Record(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, int64(11), rec.ID, "store-assigned id flows back onto the record")

	buffered := buffer.Tail("job-1", 0)
	require.Len(t, buffered, 1)
	assert.Equal(t, int64(11), buffered[0].ID)

	select {
	case msg := <-sub.Messages():
		assert.Contains(t, msg.Payload, "step done", "the record reaches LogBus subscribers")
	case <-time.After(2 * time.Second):
		t.Fatal("no LogBus message for the ingested record")
	}
}

func TestRecord_BusFailureDoesNotFailIngest(t *testing.T) {
	ingest, mock, buffer, mr := newIngest(t)
	mr.Close() // bus publish will fail; the store write must still win

	mock.ExpectQuery("INSERT INTO crawl_log").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))

	rec := &domain.LogRecord{JobRef: "job-1", Level: domain.LogLevelWarning, Message: "bus is down"}
	require.NoError(t, ingest.Record(context.Background(), rec),
		"logs are authoritative in the store; bus fan-out is best effort")
	assert.Len(t, buffer.Tail("job-1", 0), 1)
}

func TestRecord_StoreFailureFailsIngest(t *testing.T) {
	ingest, mock, buffer, _ := newIngest(t)

	mock.ExpectQuery("INSERT INTO crawl_log").
		WillReturnError(assert.AnError)

	rec := &domain.LogRecord{JobRef: "job-1", Level: domain.LogLevelError, Message: "db down"}
	require.Error(t, ingest.Record(context.Background(), rec))
	assert.Empty(t, buffer.Tail("job-1", 0), "a record the store rejected must not be buffered")
}
