package streamapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/crawlctl/internal/domain"
	"github.com/jonesrussell/crawlctl/internal/logbuffer"
	"github.com/jonesrussell/crawlctl/internal/logbus"
	"github.com/jonesrussell/crawlctl/internal/logger"
	"github.com/jonesrussell/crawlctl/internal/store"
)

// replayLimit bounds a Store-backed replay when the buffer can't serve a
// resume_after request.
const replayLimit = 1000

// defaultTailSize is how many records are replayed when no resume_after is
// given.
const defaultTailSize = 50

// heartbeatInterval keeps idle SSE connections alive across proxies that
// time out silent connections; not itself part of the wire protocol.
const heartbeatInterval = 15 * time.Second

// event is the SSE wire frame, format `event: <Type>\ndata: <JSON>\n\n`.
type event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
	ID   string `json:"id,omitempty"`
}

func writeEvent(w http.ResponseWriter, e event) error {
	if e.Type != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", e.Type); err != nil {
			return err
		}
	}
	if e.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", e.ID); err != nil {
			return err
		}
	}
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("streamapi: marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// Endpoint implements StreamEndpoint: one instance serves every
// subscriber connection, each running its own replay-then-forward loop.
type Endpoint struct {
	jobs   *store.JobRepository
	logs   *store.LogRepository
	buffer *logbuffer.Buffer
	bus    *logbus.Bus
	tokens *TokenIssuer
	log    logger.Interface

	BatchWindow  time.Duration
	PollFallback time.Duration
}

// New wires an Endpoint. BatchWindow and PollFallback default to 100 ms
// and 2 s when zero.
func New(
	jobs *store.JobRepository,
	logs *store.LogRepository,
	buffer *logbuffer.Buffer,
	bus *logbus.Bus,
	tokens *TokenIssuer,
	log logger.Interface,
	batchWindow, pollFallback time.Duration,
) *Endpoint {
	if batchWindow <= 0 {
		batchWindow = 100 * time.Millisecond
	}
	if pollFallback <= 0 {
		pollFallback = 2 * time.Second
	}
	return &Endpoint{
		jobs: jobs, logs: logs, buffer: buffer, bus: bus, tokens: tokens, log: log,
		BatchWindow: batchWindow, PollFallback: pollFallback,
	}
}

// IssueToken handles POST /api/v1/jobs/:id/stream-token:
// 404 if the job doesn't exist, else a freshly minted single-use token.
func (e *Endpoint) IssueToken(c *gin.Context) {
	jobID := c.Param("id")
	if _, err := e.jobs.GetByID(c.Request.Context(), jobID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up job"})
		return
	}

	token, expiresAt, err := e.tokens.Issue(jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue stream token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"job_id":     jobID,
		"expires_at": expiresAt.Format(time.RFC3339),
	})
}

// Stream handles GET /api/v1/jobs/:id/stream?token=...&resume_after=...:
// token auth, replay, then live-subscribe-or-poll forwarding.
func (e *Endpoint) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	jobID := c.Param("id")
	token := c.Query("token")

	if err := e.tokens.Consume(ctx, token, jobID); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "policy violation"})
		return
	}

	setSSEHeaders(c.Writer)
	c.Writer.WriteHeader(http.StatusOK)

	lastID, lastSeen, err := e.replay(c.Writer, jobID, c.Query("resume_after"))
	if err != nil {
		e.log.Warn("streamapi: replay failed", "job_id", jobID, "error", err)
		return
	}

	if e.bus.Available(ctx) {
		e.forwardLive(ctx, c.Writer, jobID, lastID)
		return
	}
	e.forwardPoll(ctx, c.Writer, jobID, lastSeen)
}

// replay sends the initial batch of records, oldest first, and
// returns the highest id sent (for live dedup) and the latest timestamp
// sent (for the polling fallback's "new records after" cursor).
func (e *Endpoint) replay(w http.ResponseWriter, jobID, resumeAfterParam string) (int64, time.Time, error) {
	var records []*domain.LogRecord

	if resumeAfterParam != "" {
		resumeAfter, err := strconv.ParseInt(resumeAfterParam, 10, 64)
		if err != nil {
			return 0, time.Time{}, fmt.Errorf("streamapi: invalid resume_after: %w", err)
		}
		if buffered, ok := e.buffer.After(jobID, resumeAfter); ok {
			records = buffered
		} else {
			records, err = e.logs.ListByJob(context.Background(), jobID, resumeAfter, replayLimit)
			if err != nil {
				return 0, time.Time{}, err
			}
		}
	} else {
		var err error
		records, err = e.logs.TailByJob(context.Background(), jobID, defaultTailSize)
		if err != nil {
			return 0, time.Time{}, err
		}
	}

	var lastID int64
	lastSeen := time.Now().UTC()
	for _, rec := range records {
		if err := writeEvent(w, event{Type: "log", Data: rec.ToWire(), ID: strconv.FormatInt(rec.ID, 10)}); err != nil {
			return 0, time.Time{}, err
		}
		lastID = rec.ID
		lastSeen = rec.CreatedAt
	}
	return lastID, lastSeen, nil
}

// forwardLive subscribes to LogBus and forwards new records, batching
// within a BatchWindow so a burst of log lines arrives as one transport
// frame.
func (e *Endpoint) forwardLive(ctx context.Context, w http.ResponseWriter, jobID string, lastID int64) {
	sub, err := e.bus.Subscribe(ctx, jobID)
	if err != nil {
		e.log.Warn("streamapi: bus subscribe failed, falling back to poll", "job_id", jobID, "error", err)
		e.forwardPoll(ctx, w, jobID, time.Now().UTC())
		return
	}
	defer sub.Close()

	ticker := time.NewTicker(e.BatchWindow)
	defer ticker.Stop()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	var pending []domain.WireRecord

	flush := func() bool {
		if len(pending) == 0 {
			return true
		}
		batch := pending
		pending = nil
		if err := writeEvent(w, event{Type: "logs", Data: batch}); err != nil {
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			var rec domain.WireRecord
			if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
				e.log.Warn("streamapi: malformed bus message", "job_id", jobID, "error", err)
				continue
			}
			if rec.ID <= lastID {
				continue
			}
			lastID = rec.ID
			pending = append(pending, rec)
		case <-ticker.C:
			if !flush() {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": heartbeat\n\n"); err != nil {
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}
}

// forwardPoll is the fallback used when the LogBus can't
// be reached: poll the Store for records newer than lastSeen every
// PollFallback interval.
func (e *Endpoint) forwardPoll(ctx context.Context, w http.ResponseWriter, jobID string, lastSeen time.Time) {
	ticker := time.NewTicker(e.PollFallback)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			records, err := e.logs.ListByJobSince(ctx, jobID, lastSeen, replayLimit)
			if err != nil {
				e.log.Warn("streamapi: poll fallback query failed", "job_id", jobID, "error", err)
				continue
			}
			if len(records) == 0 {
				continue
			}
			batch := make([]domain.WireRecord, len(records))
			for i, rec := range records {
				batch[i] = rec.ToWire()
			}
			if err := writeEvent(w, event{Type: "logs", Data: batch}); err != nil {
				return
			}
			lastSeen = records[len(records)-1].CreatedAt
		}
	}
}
