package domain

import "time"

// Retry strategies.
const (
	RetryStrategyExponential = "exponential"
	RetryStrategyLinear      = "linear"
	RetryStrategyFixed       = "fixed"
)

// Error categories.
const (
	ErrorCategoryNetwork             = "network"
	ErrorCategoryRateLimit           = "rate_limit"
	ErrorCategoryServerError         = "server_error"
	ErrorCategoryBrowserCrash        = "browser_crash"
	ErrorCategoryResourceUnavailable = "resource_unavailable"
	ErrorCategoryTimeout             = "timeout"
	ErrorCategoryClientError         = "client_error"
	ErrorCategoryAuthError           = "auth_error"
	ErrorCategoryNotFound            = "not_found"
	ErrorCategoryValidationError     = "validation_error"
	ErrorCategoryBusinessLogicError  = "business_logic_error"
	ErrorCategoryUnknown             = "unknown"
)

// RetryPolicy is a per error-class retry rule.
type RetryPolicy struct {
	ID               string    `db:"id"                   json:"id"`
	ErrorCategory    string    `db:"error_category"       json:"error_category"`
	IsRetryable      bool      `db:"is_retryable"         json:"is_retryable"`
	MaxAttempts      int       `db:"max_attempts"         json:"max_attempts"`
	Strategy         string    `db:"backoff_strategy"     json:"strategy"`
	InitialDelaySecs int       `db:"initial_delay_seconds" json:"initial_delay_s"`
	MaxDelaySecs     int       `db:"max_delay_seconds"     json:"max_delay_s"`
	Multiplier       float64   `db:"backoff_multiplier"    json:"multiplier"`
	CreatedAt        time.Time `db:"created_at"            json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"            json:"updated_at"`
}

// RetryHistory is an append-only log of retry attempts.
type RetryHistory struct {
	ID             int64     `db:"id"                   json:"id"`
	JobRef         string    `db:"job_id"               json:"job_ref"`
	AttemptNumber  int       `db:"attempt_number"        json:"attempt_number"`
	ErrorCategory  string    `db:"error_category"        json:"error_category"`
	Message        string    `db:"error_message"         json:"message"`
	Stack          *string   `db:"stack_trace"           json:"stack,omitempty"`
	DelayApplied   int       `db:"retry_delay_seconds"   json:"delay_applied"`
	Timestamp      time.Time `db:"attempted_at"          json:"timestamp"`
}
