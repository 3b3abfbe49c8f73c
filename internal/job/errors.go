// Package job implements Submission and the job lifecycle
// transitions: validating and persisting new jobs, publishing
// them to the Broker, and driving the pending/running/terminal state
// machine as workers report progress and failures.
package job

import "errors"

// Sentinel errors surfaced by Submission and the lifecycle helpers. Store-
// layer ErrNotFound/ErrConflict are wrapped rather than hidden, so callers
// that already switch on store errors keep working.
var (
	// ErrWebsiteNotFound is returned when a template-based submission
	// references a website id that doesn't exist.
	ErrWebsiteNotFound = errors.New("job: website not found")
	// ErrWebsiteInactive is returned when a template-based submission
	// references a website whose status is inactive.
	ErrWebsiteInactive = errors.New("job: website is inactive")
	// ErrValidation covers every inline-submission shape violation: a
	// duplicate step name, a browser step missing browser_type, or a seed
	// URL whose scheme isn't http/https.
	ErrValidation = errors.New("job: validation failed")
	// ErrAlreadyTerminal is returned by any operation that attempts to
	// move a job out of a terminal status.
	ErrAlreadyTerminal = errors.New("job: already in a terminal state")
)
