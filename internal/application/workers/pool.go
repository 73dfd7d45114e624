package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/waypoint/internal/graph"
	"github.com/aescanero/waypoint/pkg/domain"
	"github.com/aescanero/waypoint/pkg/ports"
	"go.uber.org/zap"
)

// MissionExecutor runs one mission to completion, or settles a queued one
// that will never run.
type MissionExecutor interface {
	ExecuteMission(ctx context.Context, g *graph.Graph, req domain.MissionRequest) (*domain.MissionReport, error)
	AbandonMission(ctx context.Context, req domain.MissionRequest) (*domain.MissionReport, error)
}

// Pool manages a pool of worker goroutines fed from the mission request topic
type Pool struct {
	size     int
	executor MissionExecutor
	graph    *graph.Graph
	eventBus ports.EventBus
	metrics  ports.MetricsCollector
	logger   *zap.Logger
	health   *HealthMonitor

	stallAfter time.Duration

	jobs    chan queuedMission
	workers []*worker
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	// queued holds the enqueue time of every mission waiting in jobs
	queueMu sync.Mutex
	queued  map[string]time.Time
}

type queuedMission struct {
	req      domain.MissionRequest
	queuedAt time.Time
}

// PoolOption configures a Pool
type PoolOption func(*Pool)

// WithQueueStallThreshold marks the pool unhealthy once the oldest queued
// mission has waited longer than d. Zero disables the check.
func WithQueueStallThreshold(d time.Duration) PoolOption {
	return func(p *Pool) {
		p.stallAfter = d
	}
}

// worker represents a single worker goroutine
type worker struct {
	id     string
	pool   *Pool
	status WorkerStatus
	mu     sync.RWMutex

	mission   string
	startedAt time.Time
}

// WorkerStatus represents worker status
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusBusy    WorkerStatus = "busy"
	WorkerStatusStopped WorkerStatus = "stopped"
)

// NewPool creates a new worker pool executing missions on g
func NewPool(
	size int,
	queueSize int,
	executor MissionExecutor,
	g *graph.Graph,
	eventBus ports.EventBus,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	healthCheckInterval time.Duration,
	opts ...PoolOption,
) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		size:     size,
		executor: executor,
		graph:    g,
		eventBus: eventBus,
		metrics:  metrics,
		logger:   logger,
		jobs:     make(chan queuedMission, queueSize),
		workers:  make([]*worker, size),
		ctx:      ctx,
		cancel:   cancel,
		queued:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(pool)
	}

	pool.health = NewHealthMonitor(pool, healthCheckInterval, logger)

	return pool
}

// Start subscribes to mission requests and starts the workers
func (p *Pool) Start() error {
	p.logger.Info("starting worker pool", zap.Int("size", p.size))

	// One subscription for the whole pool; workers share the job queue
	if err := p.eventBus.Subscribe(p.ctx, domain.TopicMissionRequests, p.enqueue); err != nil {
		return fmt.Errorf("failed to subscribe to mission requests: %w", err)
	}

	// Create and start workers
	for i := 0; i < p.size; i++ {
		w := &worker{
			id:     fmt.Sprintf("worker-%d", i),
			pool:   p,
			status: WorkerStatusIdle,
		}
		p.workers[i] = w

		p.wg.Add(1)
		go w.run(p.ctx)
	}

	// Start health monitor
	p.health.Start()

	p.logger.Info("worker pool started", zap.Int("workers", p.size))
	return nil
}

// enqueue hands a submitted mission to the workers. It blocks while the
// queue is full.
func (p *Pool) enqueue(ctx context.Context, event domain.Event) error {
	if event.Type != domain.EventTypeMissionSubmitted || event.Request == nil {
		p.logger.Warn("ignoring malformed mission request",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)))
		return nil
	}

	if p.ctx.Err() != nil {
		return errors.New("worker pool is shutting down")
	}

	job := queuedMission{req: *event.Request, queuedAt: time.Now()}
	p.queueMu.Lock()
	p.queued[job.req.ID] = job.queuedAt
	p.queueMu.Unlock()

	select {
	case p.jobs <- job:
		return nil
	case <-p.ctx.Done():
		p.dequeued(job.req.ID)
		return errors.New("worker pool is shutting down")
	case <-ctx.Done():
		p.dequeued(job.req.ID)
		return ctx.Err()
	}
}

func (p *Pool) dequeued(missionID string) {
	p.queueMu.Lock()
	delete(p.queued, missionID)
	p.queueMu.Unlock()
}

// oldestQueued returns how many missions wait for a worker and how long the
// oldest of them has waited.
func (p *Pool) oldestQueued(now time.Time) (int, time.Duration) {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()

	var oldest time.Duration
	for _, at := range p.queued {
		if wait := now.Sub(at); wait > oldest {
			oldest = wait
		}
	}
	return len(p.queued), oldest
}

// Shutdown stops intake, settles every mission still queued as cancelled and
// waits for running missions to finish
func (p *Pool) Shutdown(ctx context.Context) error {
	p.logger.Info("shutting down worker pool")

	// Stop health monitor
	p.health.Stop()

	// Cancel context to signal workers to stop
	p.cancel()
	p.abandonQueued(ctx)

	// Wait for all workers to finish with timeout
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// An enqueue racing the cancel may still have landed a job
		p.abandonQueued(ctx)
		p.logger.Info("worker pool shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}
}

// abandonQueued empties the job queue without running anything
func (p *Pool) abandonQueued(ctx context.Context) {
	for {
		select {
		case job := <-p.jobs:
			p.abandon(ctx, job)
		default:
			return
		}
	}
}

func (p *Pool) abandon(ctx context.Context, job queuedMission) {
	p.dequeued(job.req.ID)

	report, _ := p.executor.AbandonMission(context.WithoutCancel(ctx), job.req)
	p.logger.Warn("queued mission cancelled by shutdown",
		zap.String("mission_id", job.req.ID),
		zap.Duration("queued_for", time.Since(job.queuedAt)),
		zap.String("status", string(report.Status)))
}

// GetStatus returns the status of all workers
func (p *Pool) GetStatus() map[string]WorkerStatus {
	status := make(map[string]WorkerStatus)
	for _, w := range p.workers {
		if w == nil {
			continue
		}
		w.mu.RLock()
		status[w.id] = w.status
		w.mu.RUnlock()
	}
	return status
}

// Running returns the mission each busy worker is flying, keyed by worker id,
// with the time it started
func (p *Pool) Running() map[string]RunningMission {
	running := make(map[string]RunningMission)
	for _, w := range p.workers {
		if w == nil {
			continue
		}
		w.mu.RLock()
		if w.status == WorkerStatusBusy {
			running[w.id] = RunningMission{MissionID: w.mission, StartedAt: w.startedAt}
		}
		w.mu.RUnlock()
	}
	return running
}

// RunningMission is the mission a busy worker is executing
type RunningMission struct {
	MissionID string    `json:"mission_id"`
	StartedAt time.Time `json:"started_at"`
}

// Health returns the pool's health monitor
func (p *Pool) Health() *HealthMonitor {
	return p.health
}

// run is the main worker loop
func (w *worker) run(ctx context.Context) {
	defer w.pool.wg.Done()

	w.pool.logger.Info("worker started", zap.String("worker_id", w.id))

	for {
		select {
		case <-ctx.Done():
			w.setStatus(WorkerStatusStopped)
			w.pool.logger.Info("worker stopped", zap.String("worker_id", w.id))
			return
		case job := <-w.pool.jobs:
			// Both cases can be ready once shutdown starts
			if ctx.Err() != nil {
				w.pool.abandon(ctx, job)
				continue
			}
			w.handleMission(context.WithoutCancel(ctx), job)
		}
	}
}

func (w *worker) setStatus(s WorkerStatus) {
	w.mu.Lock()
	w.status = s
	w.mu.Unlock()
}

// handleMission executes one mission request. A started mission always runs
// to completion, even during shutdown.
func (w *worker) handleMission(ctx context.Context, job queuedMission) {
	req := job.req
	w.pool.dequeued(req.ID)

	w.mu.Lock()
	w.status = WorkerStatusBusy
	w.mission = req.ID
	w.startedAt = time.Now()
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.status = WorkerStatusIdle
		w.mission = ""
		w.mu.Unlock()
	}()

	w.pool.logger.Info("executing mission",
		zap.String("worker_id", w.id),
		zap.String("mission_id", req.ID),
		zap.Int("start", req.Start),
		zap.Int("end", req.End),
		zap.Duration("queued_for", time.Since(job.queuedAt)))

	startTime := time.Now()
	report, err := w.pool.executor.ExecuteMission(ctx, w.pool.graph, req)
	duration := time.Since(startTime)

	if err != nil {
		w.pool.logger.Warn("mission failed",
			zap.String("worker_id", w.id),
			zap.String("mission_id", req.ID),
			zap.String("reason", string(report.Reason)),
			zap.Duration("duration", duration),
			zap.Error(err))
		return
	}

	w.pool.logger.Info("mission completed",
		zap.String("worker_id", w.id),
		zap.String("mission_id", req.ID),
		zap.Ints("path", report.Path),
		zap.Duration("duration", duration))
}
