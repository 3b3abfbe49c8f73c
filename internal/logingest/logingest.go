// Package logingest implements LogIngest: every emitted log is
// inserted into the Store, appended to the LogBuffer, and published on the
// LogBus, with (b) and (c) failures isolated from (a)'s authority.
package logingest

import (
	"context"

	"github.com/jonesrussell/crawlctl/internal/domain"
	"github.com/jonesrussell/crawlctl/internal/logbuffer"
	"github.com/jonesrussell/crawlctl/internal/logbus"
	"github.com/jonesrussell/crawlctl/internal/logger"
	"github.com/jonesrussell/crawlctl/internal/store"
)

// Ingest wires the Store, LogBuffer, and LogBus together behind a single
// Record call.
type Ingest struct {
	logs   *store.LogRepository
	buffer *logbuffer.Buffer
	bus    *logbus.Bus
	log    logger.Interface
}

// New wires an Ingest pipeline.
func New(logs *store.LogRepository, buffer *logbuffer.Buffer, bus *logbus.Bus, log logger.Interface) *Ingest {
	return &Ingest{logs: logs, buffer: buffer, bus: bus, log: log}
}

// Record inserts rec into the Store (authoritative; a failure here is
// returned to the caller), then best-effort appends it to the LogBuffer and
// publishes it on the LogBus: the insert happens-before the publish, so
// a subscriber never sees a bus-only record absent from the Store.
func (i *Ingest) Record(ctx context.Context, rec *domain.LogRecord) error {
	if err := i.logs.Insert(ctx, rec); err != nil {
		return err
	}

	i.buffer.Append(rec)

	if err := i.bus.Publish(ctx, rec); err != nil {
		i.log.Warn("logingest: bus publish failed, log remains authoritative in store",
			"job_id", rec.JobRef, "log_id", rec.ID, "error", err)
	}
	return nil
}
