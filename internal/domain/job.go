// Package domain provides the entities shared across the control plane:
// websites, crawl jobs, scheduled jobs, retry policy/history, dead-letter
// entries, and log records.
package domain

import "time"

// Job status values (§4.1 of the job lifecycle).
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// Job type values.
const (
	JobTypeOneTime   = "one_time"
	JobTypeScheduled = "scheduled"
	JobTypeRecrawl   = "recrawl"
)

// DefaultPriority is assigned to a submission that doesn't specify one.
const DefaultPriority = 5

// MinPriority and MaxPriority bound the valid priority range.
const (
	MinPriority = 0
	MaxPriority = 10
)

// DefaultMaxRetries is used when a website template has no
// config.global.retry.max_attempts override.
const DefaultMaxRetries = 3

// Job is a single crawl execution unit. Exactly one of WebsiteRef and
// InlineConfig is set, enforced both by job.Service and by the store's num_nonnulls
// check constraint.
type Job struct {
	ID         string  `db:"id"         json:"id"`
	SeedURL    string  `db:"seed_url"   json:"seed_url"`
	WebsiteRef *string `db:"website_id" json:"website_ref,omitempty"`

	InlineConfig JSONMap `db:"inline_config" json:"inline_config,omitempty"`
	Variables    JSONMap `db:"variables"     json:"variables,omitempty"`

	Priority int    `db:"priority" json:"priority"`
	JobType  string `db:"job_type" json:"job_type"`
	Status   string `db:"status"   json:"status"`

	ScheduledAt *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	StartedAt   *time.Time `db:"started_at"   json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`

	CancelledBy        *string `db:"cancelled_by"        json:"cancelled_by,omitempty"`
	CancellationReason *string `db:"cancellation_reason" json:"cancellation_reason,omitempty"`

	MaxRetries   int `db:"max_retries"   json:"max_retries"`
	AttemptCount int `db:"attempt_count" json:"attempt_count"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IsInline reports whether the job carries its own steps rather than
// referencing a Website template.
func (j *Job) IsInline() bool {
	return j.WebsiteRef == nil
}

// IsTerminal reports whether the job has reached an absorbing state.
func (j *Job) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// InlineStep is one unit of an inline job's plan.
type InlineStep struct {
	Name        string  `json:"name"`
	Method      string  `json:"method"`
	BrowserType *string `json:"browser_type,omitempty"`
	Selector    string  `json:"selector,omitempty"`
	Params      JSONMap `json:"params,omitempty"`
}

// InlineConfigPayload is the shape an inline job's InlineConfig JSONMap
// decodes into when constructing or validating a submission.
type InlineConfigPayload struct {
	Steps        []InlineStep `json:"steps"`
	GlobalConfig JSONMap      `json:"global_config,omitempty"`
}
