package worker

import (
	"context"
	"sync"
	"time"

	"github.com/jonesrussell/crawlctl/internal/logger"
)

// DefaultHealthCheckInterval is the default interval for pool health checks.
const DefaultHealthCheckInterval = 30 * time.Second

// degradedThreshold is the minimum healthy ratio to be considered degraded
// rather than unhealthy.
const degradedThreshold = 0.5

// HealthStatus represents the health status of the pool.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

func (s HealthStatus) String() string { return string(s) }

// HealthCheck represents a health check result.
type HealthCheck struct {
	Status           HealthStatus
	Timestamp        time.Time
	PoolState        PoolState
	TotalWorkers     int
	HealthyWorkers   int
	UnhealthyWorkers int
	BusyWorkers      int
	IdleWorkers      int
	Details          []WorkerHealthDetail
}

// WorkerHealthDetail contains health details for a single worker.
type WorkerHealthDetail struct {
	WorkerID     int
	State        WorkerState
	IsHealthy    bool
	CurrentJobID string
	JobDuration  time.Duration
	LastError    string
}

// HealthMonitor periodically samples Pool.Stats() and classifies the pool
// as healthy, degraded, or unhealthy based on how many workers are stuck.
type HealthMonitor struct {
	pool      *Pool
	log       logger.Interface
	interval  time.Duration
	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	lastCheck *HealthCheck
}

// NewHealthMonitor creates a new health monitor for pool.
func NewHealthMonitor(pool *Pool, interval time.Duration, log logger.Interface) *HealthMonitor {
	if interval <= 0 {
		interval = DefaultHealthCheckInterval
	}
	return &HealthMonitor{pool: pool, log: log, interval: interval, stopCh: make(chan struct{})}
}

// Start begins the periodic check loop.
func (m *HealthMonitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.run(ctx)
}

// Stop ends the check loop and waits for it to exit.
func (m *HealthMonitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

// Check performs one health check and returns the result.
func (m *HealthMonitor) Check() HealthCheck {
	stats := m.pool.Stats()

	healthyCount, unhealthyCount := 0, 0
	details := make([]WorkerHealthDetail, len(stats.Workers))

	for i, ws := range stats.Workers {
		isHealthy := ws.IsHealthy()
		if isHealthy {
			healthyCount++
		} else {
			unhealthyCount++
		}

		var lastErr string
		if ws.LastError != nil {
			lastErr = ws.LastError.Error()
		}

		var jobDuration time.Duration
		if ws.State == WorkerStateBusy && !ws.JobStartedAt.IsZero() {
			jobDuration = time.Since(ws.JobStartedAt)
		}

		details[i] = WorkerHealthDetail{
			WorkerID:     ws.ID,
			State:        ws.State,
			IsHealthy:    isHealthy,
			CurrentJobID: ws.CurrentJobID,
			JobDuration:  jobDuration,
			LastError:    lastErr,
		}
	}

	status := m.determineStatus(stats.PoolSize, healthyCount, unhealthyCount)

	check := HealthCheck{
		Status:           status,
		Timestamp:        time.Now(),
		PoolState:        stats.State,
		TotalWorkers:     stats.PoolSize,
		HealthyWorkers:   healthyCount,
		UnhealthyWorkers: unhealthyCount,
		BusyWorkers:      stats.BusyWorkers,
		IdleWorkers:      stats.IdleWorkers,
		Details:          details,
	}

	m.mu.Lock()
	m.lastCheck = &check
	m.mu.Unlock()
	return check
}

// LastCheck returns the most recent health check result, or nil if none
// has run yet.
func (m *HealthMonitor) LastCheck() *HealthCheck {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastCheck
}

func (m *HealthMonitor) determineStatus(total, healthy, unhealthy int) HealthStatus {
	if total == 0 {
		return HealthStatusUnhealthy
	}
	if unhealthy == 0 {
		return HealthStatusHealthy
	}
	if float64(healthy)/float64(total) >= degradedThreshold {
		return HealthStatusDegraded
	}
	return HealthStatusUnhealthy
}

func (m *HealthMonitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.performCheck()
	for {
		select {
		case <-ticker.C:
			m.performCheck()
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		}
	}
}

func (m *HealthMonitor) performCheck() {
	check := m.Check()
	switch check.Status {
	case HealthStatusHealthy:
		m.log.Debug("pool health check: healthy", "total_workers", check.TotalWorkers, "busy_workers", check.BusyWorkers)
	case HealthStatusDegraded:
		m.log.Warn("pool health check: degraded", "healthy_workers", check.HealthyWorkers, "unhealthy_workers", check.UnhealthyWorkers)
	case HealthStatusUnhealthy:
		m.log.Error("pool health check: unhealthy", "healthy_workers", check.HealthyWorkers, "unhealthy_workers", check.UnhealthyWorkers)
	}
}

// IsHealthy reports whether the last check was healthy or degraded.
func (m *HealthMonitor) IsHealthy() bool {
	check := m.LastCheck()
	if check == nil {
		return false
	}
	return check.Status == HealthStatusHealthy || check.Status == HealthStatusDegraded
}
