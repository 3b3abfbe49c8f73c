package domain

import "time"

// Log levels.
const (
	LogLevelDebug    = "DEBUG"
	LogLevelInfo     = "INFO"
	LogLevelWarning  = "WARNING"
	LogLevelError    = "ERROR"
	LogLevelCritical = "CRITICAL"
)

// LogRecord is one line of job execution output. IDs strictly increase
// within a job over insertion time.
type LogRecord struct {
	ID         int64     `db:"id"          json:"id"`
	JobRef     string    `db:"job_id"      json:"job_ref"`
	WebsiteRef *string   `db:"website_id"  json:"website_ref,omitempty"`
	StepName   *string   `db:"step_name"   json:"step_name,omitempty"`
	Level      string    `db:"level"       json:"level"`
	Message    string    `db:"message"     json:"message"`
	Context    JSONMap   `db:"context"     json:"context,omitempty"`
	TraceID    *string   `db:"trace_id"    json:"trace_id,omitempty"`
	CreatedAt  time.Time `db:"created_at"  json:"created_at"`
}

// WireRecord is the JSON shape published on LogBus and streamed to
// subscribers.
type WireRecord struct {
	ID        int64   `json:"id"`
	JobID     string  `json:"job_id"`
	WebsiteID *string `json:"website_id,omitempty"`
	LogLevel  string  `json:"log_level"`
	Message   string  `json:"message"`
	StepName  *string `json:"step_name,omitempty"`
	Context   JSONMap `json:"context,omitempty"`
	TraceID   *string `json:"trace_id,omitempty"`
	CreatedAt string  `json:"created_at"`
}

// ToWire converts a stored LogRecord to its wire representation.
func (r *LogRecord) ToWire() WireRecord {
	return WireRecord{
		ID:        r.ID,
		JobID:     r.JobRef,
		WebsiteID: r.WebsiteRef,
		LogLevel:  r.Level,
		Message:   r.Message,
		StepName:  r.StepName,
		Context:   r.Context,
		TraceID:   r.TraceID,
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
