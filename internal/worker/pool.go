package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/jonesrussell/crawlctl/internal/broker"
	"github.com/jonesrussell/crawlctl/internal/logger"
)

// PoolState represents the current state of the pool.
type PoolState int32

const (
	PoolStateStopped PoolState = iota
	PoolStateRunning
	PoolStateDraining
)

func (s PoolState) String() string {
	switch s {
	case PoolStateStopped:
		return "stopped"
	case PoolStateRunning:
		return "running"
	case PoolStateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Pool runs cfg.PoolSize workers, each independently pulling Messages off
// the Broker and handing them to handler; a successful handler call acks
// the message, a failed one leaves it for broker-side redelivery.
type Pool struct {
	config  Config
	workers []*Worker
	br      *broker.Broker
	log     logger.Interface
	state   atomic.Int32
	wg      sync.WaitGroup
	stopCh  chan struct{}
	mu      sync.Mutex
}

// NewPool creates a new worker pool over br.
func NewPool(cfg Config, br *broker.Broker, handler JobHandler, log logger.Interface) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}
	if br == nil {
		return nil, errors.New("broker cannot be nil")
	}

	p := &Pool{
		config:  cfg,
		br:      br,
		log:     log,
		workers: make([]*Worker, cfg.PoolSize),
		stopCh:  make(chan struct{}),
	}
	for i := range cfg.PoolSize {
		p.workers[i] = NewWorker(i, handler, cfg.JobTimeout, log)
	}
	p.state.Store(int32(PoolStateStopped))
	return p, nil
}

// Start launches one consume loop per worker.
func (p *Pool) Start(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(PoolStateStopped), int32(PoolStateRunning)) {
		return errors.New("pool is already running")
	}
	p.log.Info("worker pool started", "pool_size", p.config.PoolSize)

	for _, w := range p.workers {
		p.wg.Add(1)
		go p.consumeLoop(ctx, w)
	}
	return nil
}

func (p *Pool) consumeLoop(ctx context.Context, w *Worker) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		default:
		}

		msg, err := p.br.Consume(ctx)
		if err != nil {
			p.log.Error("worker consume failed", "worker_id", w.ID(), "error", err)
			continue
		}
		if msg == nil {
			continue
		}

		if procErr := w.Process(ctx, msg); procErr != nil {
			continue // leave un-acked; broker reclaims it after AckWait
		}
		if ackErr := p.br.Ack(ctx, msg); ackErr != nil {
			p.log.Error("worker ack failed", "worker_id", w.ID(), "job_id", msg.JobID, "error", ackErr)
		}
	}
}

// Stop signals every consume loop to exit and waits up to DrainTimeout.
func (p *Pool) Stop(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(PoolStateRunning), int32(PoolStateDraining)) {
		return errors.New("pool is not running")
	}
	p.log.Info("worker pool draining")

	p.mu.Lock()
	close(p.stopCh)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.log.Warn("worker pool stop timed out")
	}

	p.state.Store(int32(PoolStateStopped))
	return nil
}

func (p *Pool) State() PoolState { return PoolState(p.state.Load()) }

func (p *Pool) IsRunning() bool { return p.State() == PoolStateRunning }

func (p *Pool) Size() int { return p.config.PoolSize }

func (p *Pool) BusyCount() int {
	count := 0
	for _, w := range p.workers {
		if w.IsBusy() {
			count++
		}
	}
	return count
}

func (p *Pool) IdleCount() int { return p.Size() - p.BusyCount() }

// Stats returns pool-wide statistics aggregated from each worker.
func (p *Pool) Stats() PoolStats {
	workerStats := make([]WorkerStats, len(p.workers))
	var processed, succeeded, failed int64
	for i, w := range p.workers {
		s := w.Stats()
		workerStats[i] = s
		processed += s.JobsProcessed
		succeeded += s.JobsSucceeded
		failed += s.JobsFailed
	}
	return PoolStats{
		State:         p.State(),
		PoolSize:      p.config.PoolSize,
		BusyWorkers:   p.BusyCount(),
		IdleWorkers:   p.IdleCount(),
		JobsProcessed: processed,
		JobsSucceeded: succeeded,
		JobsFailed:    failed,
		Workers:       workerStats,
	}
}

// PoolStats holds aggregate statistics for the pool.
type PoolStats struct {
	State         PoolState
	PoolSize      int
	BusyWorkers   int
	IdleWorkers   int
	JobsProcessed int64
	JobsSucceeded int64
	JobsFailed    int64
	Workers       []WorkerStats
}

// SuccessRate returns the success rate as a percentage.
func (s PoolStats) SuccessRate() float64 {
	if s.JobsProcessed == 0 {
		return 0
	}
	return float64(s.JobsSucceeded) / float64(s.JobsProcessed) * percentageMultiplier
}

// Utilization returns the pool utilization as a percentage.
func (s PoolStats) Utilization() float64 {
	if s.PoolSize == 0 {
		return 0
	}
	return float64(s.BusyWorkers) / float64(s.PoolSize) * percentageMultiplier
}
