package cancel

import (
	"context"
	"sync"
	"time"
)

// Outcome is how one resource's teardown concluded.
type Outcome string

const (
	OutcomeGraceful Outcome = "graceful"
	OutcomeForced   Outcome = "forced"
	OutcomeErrored  Outcome = "errored"
)

// DefaultGracefulTimeout is the per-resource graceful-close deadline.
const DefaultGracefulTimeout = 5 * time.Second

// Resource is an externally visible handle a worker registers while
// running a job: an HTTP client, a browser context, and so on.
// Implementations must make IsActive safe to call
// concurrently with CloseGracefully/ForceClose.
type Resource interface {
	// ID identifies the resource for cleanup-outcome reporting.
	ID() string
	// CloseGracefully waits for in-flight work to drain until deadline,
	// returning whether it finished in time.
	CloseGracefully(ctx context.Context, deadline time.Time) (ok bool, err error)
	// ForceClose aborts the resource immediately.
	ForceClose() error
	// IsActive reports whether the resource is still open.
	IsActive() bool
}

// Registry tracks the resources a running job has registered, keyed by job
// id, so the coordinator can tear all of them down concurrently on cancel.
type Registry struct {
	mu        sync.Mutex
	resources map[string][]Resource
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{resources: make(map[string][]Resource)}
}

// Register associates r with jobID. Call once per resource a job opens.
func (r *Registry) Register(jobID string, res Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources[jobID] = append(r.resources[jobID], res)
}

// Release drops jobID's resource list once the job reaches a terminal
// state through its normal path (no cancellation involved).
func (r *Registry) Release(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.resources, jobID)
}

// ResourceOutcome records how one resource's teardown concluded.
type ResourceOutcome struct {
	ResourceID string
	Outcome    Outcome
	Err        error
}

// TeardownAll closes every resource registered for jobID concurrently,
// each against its own deadline, so total cleanup time is max(per-resource)
// rather than their sum.
func (r *Registry) TeardownAll(ctx context.Context, jobID string, timeout time.Duration) []ResourceOutcome {
	r.mu.Lock()
	resources := append([]Resource(nil), r.resources[jobID]...)
	delete(r.resources, jobID)
	r.mu.Unlock()

	if len(resources) == 0 {
		return nil
	}

	outcomes := make([]ResourceOutcome, len(resources))
	var wg sync.WaitGroup
	for i, res := range resources {
		wg.Add(1)
		go func(i int, res Resource) {
			defer wg.Done()
			outcomes[i] = closeOne(ctx, res, timeout)
		}(i, res)
	}
	wg.Wait()
	return outcomes
}

func closeOne(ctx context.Context, res Resource, timeout time.Duration) ResourceOutcome {
	if !res.IsActive() {
		return ResourceOutcome{ResourceID: res.ID(), Outcome: OutcomeGraceful}
	}

	deadline := time.Now().Add(timeout)
	ok, err := res.CloseGracefully(ctx, deadline)
	if err != nil {
		return ResourceOutcome{ResourceID: res.ID(), Outcome: OutcomeErrored, Err: err}
	}
	if ok {
		return ResourceOutcome{ResourceID: res.ID(), Outcome: OutcomeGraceful}
	}

	if err := res.ForceClose(); err != nil {
		return ResourceOutcome{ResourceID: res.ID(), Outcome: OutcomeErrored, Err: err}
	}
	return ResourceOutcome{ResourceID: res.ID(), Outcome: OutcomeForced}
}
