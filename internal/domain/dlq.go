package domain

import "time"

// DLQEntry is a terminal-failure quarantine record.
type DLQEntry struct {
	ID         int64  `db:"id"         json:"id"`
	JobRef     string `db:"job_id"     json:"job_ref"`
	SeedURL    string `db:"seed_url"   json:"seed_url"`
	WebsiteRef *string `db:"website_id" json:"website_ref,omitempty"`
	JobType    string `db:"job_type"   json:"job_type"`
	Priority   int    `db:"priority"   json:"priority"`

	ErrorCategory string  `db:"error_category" json:"error_category"`
	ErrorMessage  string  `db:"error_message"  json:"error_message"`
	StackTrace    *string `db:"stack_trace"    json:"stack_trace,omitempty"`
	HTTPStatus    *int    `db:"http_status"     json:"http_status,omitempty"`

	TotalAttempts  int       `db:"total_attempts"   json:"total_attempts"`
	FirstAttemptAt time.Time `db:"first_attempt_at" json:"first_attempt_at"`
	LastAttemptAt  time.Time `db:"last_attempt_at"  json:"last_attempt_at"`

	AddedToDLQAt     time.Time  `db:"added_to_dlq_at"     json:"added_to_dlq_at"`
	RetryAttempted   bool       `db:"retry_attempted"     json:"retry_attempted"`
	RetryAttemptedAt *time.Time `db:"retry_attempted_at"  json:"retry_attempted_at,omitempty"`
	RetrySuccess     *bool      `db:"retry_success"       json:"retry_success,omitempty"`
	ResolvedAt       *time.Time `db:"resolved_at"         json:"resolved_at,omitempty"`
	ResolutionNotes  *string    `db:"resolution_notes"    json:"resolution_notes,omitempty"`
}

// IsResolved reports whether an operator has closed out this entry.
func (e *DLQEntry) IsResolved() bool {
	return e.ResolvedAt != nil
}
