package domain

import "time"

// ScheduledJob is a recurring trigger that materializes one-shot Jobs from
// a cron expression, evaluated in its own IANA timezone.
type ScheduledJob struct {
	ID           string     `db:"id"             json:"id"`
	WebsiteRef   string     `db:"website_id"      json:"website_ref"`
	CronSchedule string     `db:"cron_schedule"   json:"cron_schedule"`
	Timezone     string     `db:"timezone"        json:"timezone"`
	NextRunTime  time.Time  `db:"next_run_time"   json:"next_run_time"`
	LastRunTime  *time.Time `db:"last_run_time"   json:"last_run_time,omitempty"`
	IsActive     bool       `db:"is_active"       json:"is_active"`
	JobConfig    JSONMap    `db:"job_config"      json:"job_config,omitempty"`
	CreatedAt    time.Time  `db:"created_at"      json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"      json:"updated_at"`
}
