package workers

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// HealthMonitor periodically reports worker and mission queue status
type HealthMonitor struct {
	pool     *Pool
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// HealthStatus is a snapshot of the pool as seen by /health
type HealthStatus struct {
	TotalWorkers   int `json:"total_workers"`
	IdleWorkers    int `json:"idle_workers"`
	BusyWorkers    int `json:"busy_workers"`
	StoppedWorkers int `json:"stopped_workers"`

	QueuedMissions  int                       `json:"queued_missions"`
	OldestQueuedAge time.Duration             `json:"oldest_queued_age_ns"`
	LongestRunning  time.Duration             `json:"longest_running_ns"`
	Running         map[string]RunningMission `json:"running,omitempty"`

	// Stalled is set when the oldest queued mission waited past the pool's
	// stall threshold.
	Stalled bool `json:"stalled"`

	Healthy   bool      `json:"healthy"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHealthMonitor creates a health monitor for pool
func NewHealthMonitor(pool *Pool, interval time.Duration, logger *zap.Logger) *HealthMonitor {
	return &HealthMonitor{
		pool:     pool,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start starts the periodic check. A non-positive interval disables it.
func (h *HealthMonitor) Start() {
	if h.interval <= 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true

	go h.run()
}

// Stop stops the periodic check
func (h *HealthMonitor) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	close(h.stopCh)
}

func (h *HealthMonitor) run() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.checkHealth()
		}
	}
}

// checkHealth records pool metrics and logs anything that needs attention
func (h *HealthMonitor) checkHealth() {
	status := h.GetStatus()

	h.pool.metrics.RecordWorkerPoolStatus(status.IdleWorkers, status.BusyWorkers, status.StoppedWorkers)
	h.pool.metrics.RecordMissionQueue(status.QueuedMissions, status.OldestQueuedAge)

	fields := []zap.Field{
		zap.Int("idle", status.IdleWorkers),
		zap.Int("busy", status.BusyWorkers),
		zap.Int("stopped", status.StoppedWorkers),
		zap.Int("queued", status.QueuedMissions),
		zap.Duration("oldest_queued", status.OldestQueuedAge),
		zap.Duration("longest_running", status.LongestRunning),
	}

	switch {
	case status.Stalled:
		h.logger.Warn("mission queue is stalled", append(fields, zap.Duration("threshold", h.pool.stallAfter))...)
	case !status.Healthy:
		h.logger.Warn("worker pool is unhealthy", fields...)
	case status.BusyWorkers == status.TotalWorkers && status.QueuedMissions > 0:
		h.logger.Info("all workers busy with missions waiting", fields...)
	default:
		h.logger.Debug("worker pool health check", fields...)
	}
}

// GetStatus returns the current health status
func (h *HealthMonitor) GetStatus() *HealthStatus {
	now := time.Now()
	status := &HealthStatus{Timestamp: now}

	for _, s := range h.pool.GetStatus() {
		status.TotalWorkers++
		switch s {
		case WorkerStatusIdle:
			status.IdleWorkers++
		case WorkerStatusBusy:
			status.BusyWorkers++
		case WorkerStatusStopped:
			status.StoppedWorkers++
		}
	}

	status.Running = h.pool.Running()
	for _, r := range status.Running {
		if d := now.Sub(r.StartedAt); d > status.LongestRunning {
			status.LongestRunning = d
		}
	}

	status.QueuedMissions, status.OldestQueuedAge = h.pool.oldestQueued(now)
	status.Stalled = h.pool.stallAfter > 0 && status.OldestQueuedAge > h.pool.stallAfter
	status.Healthy = status.TotalWorkers > 0 && status.StoppedWorkers == 0 && !status.Stalled

	return status
}

// IsHealthy returns true if the worker pool is healthy
func (h *HealthMonitor) IsHealthy() bool {
	return h.GetStatus().Healthy
}
