package domain

import "time"

// Website status values.
const (
	WebsiteStatusActive   = "active"
	WebsiteStatusInactive = "inactive"
)

// Website is a reusable crawl template. Name is globally unique; an
// inactive website may not be referenced by new template-based jobs.
type Website struct {
	ID          string    `db:"id"           json:"id"`
	Name        string    `db:"name"         json:"name"`
	BaseURL     string    `db:"base_url"     json:"base_url"`
	Status      string    `db:"status"       json:"status"`
	Config      JSONMap   `db:"config"       json:"config,omitempty"`
	DefaultCron *string   `db:"default_cron" json:"default_cron,omitempty"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"   json:"updated_at"`
}

// IsActive reports whether the website may still be referenced by new jobs.
func (w *Website) IsActive() bool {
	return w.Status == WebsiteStatusActive
}

// MaxRetriesOverride reads config.global.retry.max_attempts if present.
// Returns (value, true) on a well-formed override, else (DefaultMaxRetries, false).
func (w *Website) MaxRetriesOverride() (int, bool) {
	global, ok := w.Config["global"].(map[string]any)
	if !ok {
		if gm, ok2 := w.Config["global"].(JSONMap); ok2 {
			global = map[string]any(gm)
		} else {
			return DefaultMaxRetries, false
		}
	}
	retry, ok := global["retry"].(map[string]any)
	if !ok {
		return DefaultMaxRetries, false
	}
	raw, ok := retry["max_attempts"]
	if !ok {
		return DefaultMaxRetries, false
	}
	switch v := raw.(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return DefaultMaxRetries, false
	}
}
