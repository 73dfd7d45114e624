package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/waypoint/internal/actuation"
	"github.com/aescanero/waypoint/internal/graph"
	"github.com/aescanero/waypoint/internal/phase"
	"github.com/aescanero/waypoint/internal/planner"
	"github.com/aescanero/waypoint/pkg/domain"
	"github.com/aescanero/waypoint/pkg/ports"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// ErrShuttingDown is returned by SubmitMission once Shutdown has been called.
var ErrShuttingDown = errors.New("orchestrator is shutting down")

// Manager coordinates mission execution
type Manager struct {
	registry  *phase.Registry
	channel   *actuation.Channel
	eventBus  ports.EventBus
	storage   ports.ReportStorage
	metrics   ports.MetricsCollector
	validator *Validator
	logger    *zap.Logger
	tracer    trace.Tracer

	// Configuration
	missionTimeout time.Duration
	actuationWait  time.Duration

	// Track in-flight missions
	mu      sync.Mutex
	active  int
	closing bool
	drained chan struct{}
}

// Option configures optional Manager settings.
type Option func(*Manager)

// WithTracer sets the tracer used for mission, planner and phase spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Manager) {
		m.tracer = tracer
	}
}

// WithChannel sets the actuation channel shared by all phases.
func WithChannel(ch *actuation.Channel) Option {
	return func(m *Manager) {
		m.channel = ch
	}
}

// WithMissionTimeout bounds a whole mission. Zero disables the bound.
func WithMissionTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.missionTimeout = d
	}
}

// WithActuationWait bounds how long a phase waits for the actuation channel.
// Zero disables the bound.
func WithActuationWait(d time.Duration) Option {
	return func(m *Manager) {
		m.actuationWait = d
	}
}

// NewManager creates a new orchestrator manager
func NewManager(
	registry *phase.Registry,
	eventBus ports.EventBus,
	storage ports.ReportStorage,
	metrics ports.MetricsCollector,
	validator *Validator,
	logger *zap.Logger,
	opts ...Option,
) *Manager {
	m := &Manager{
		registry:  registry,
		eventBus:  eventBus,
		storage:   storage,
		metrics:   metrics,
		validator: validator,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.channel == nil {
		m.channel = actuation.NewChannel()
	}
	if m.tracer == nil {
		m.tracer = noop.NewTracerProvider().Tracer("waypoint/orchestrator")
	}
	return m
}

// Channel returns the actuation channel phases run on.
func (m *Manager) Channel() *actuation.Channel {
	return m.channel
}

// missionRun is the mutable state of one ExecuteMission call.
type missionRun struct {
	mu     sync.Mutex
	report *domain.MissionReport
	req    domain.MissionRequest
}

func (r *missionRun) setState(state domain.MissionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.States = append(r.report.States, state)
}

func (r *missionRun) appendPhase(rec domain.PhaseRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Phases = append(r.report.Phases, rec)
}

func (r *missionRun) snapshot() *domain.MissionReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.report.Clone()
}

// ExecuteMission runs one mission on g and blocks until it is done. The
// returned report is never nil; the error is non-nil exactly when the mission
// failed and carries the failure code.
func (m *Manager) ExecuteMission(ctx context.Context, g *graph.Graph, req domain.MissionRequest) (*domain.MissionReport, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	run := m.newRun(ctx, req)

	ctx, span := m.tracer.Start(ctx, "mission.execute", trace.WithAttributes(
		attribute.String("mission.id", req.ID),
		attribute.Int("mission.start", req.Start),
		attribute.Int("mission.end", req.End),
	))
	defer span.End()

	if err := m.validator.Validate(g, req); err != nil {
		m.logger.Warn("mission rejected",
			zap.String("mission_id", req.ID),
			zap.Error(err))
		return m.finish(ctx, run, err)
	}

	done := m.track()
	defer done()

	if m.missionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.missionTimeout)
		defer cancel()
	}

	now := time.Now()
	run.report.StartedAt = &now
	run.report.Status = domain.MissionStatusRunning
	m.save(ctx, run)

	m.logger.Info("mission started",
		zap.String("mission_id", req.ID),
		zap.Int("start", req.Start),
		zap.Int("end", req.End))

	var (
		wg         sync.WaitGroup
		takeoffErr error
		surveyErr  error
	)

	m.transition(ctx, run, domain.MissionStateAscending)
	wg.Add(1)
	go func() {
		defer wg.Done()
		takeoffErr = m.runPhase(ctx, run, domain.PhaseTakeoff)
	}()

	m.transition(ctx, run, domain.MissionStatePlanning)
	path, err := m.plan(ctx, g, req)
	if err != nil {
		wg.Wait()
		return m.finish(ctx, run, err)
	}
	run.mu.Lock()
	run.report.Path = path.Nodes
	run.report.Cost = path.Cost
	run.mu.Unlock()

	m.transition(ctx, run, domain.MissionStateAscendingSurveying)
	wg.Add(1)
	go func() {
		defer wg.Done()
		surveyErr = m.runPhase(ctx, run, domain.PhaseSurvey)
	}()
	wg.Wait()

	if err := firstError(takeoffErr, surveyErr); err != nil {
		return m.finish(ctx, run, err)
	}

	m.transition(ctx, run, domain.MissionStateReturning)
	if err := m.runPhase(ctx, run, domain.PhaseReturnToHome); err != nil {
		return m.finish(ctx, run, err)
	}

	m.transition(ctx, run, domain.MissionStateDescending)
	if err := m.runPhase(ctx, run, domain.PhaseLand); err != nil {
		return m.finish(ctx, run, err)
	}

	m.transition(ctx, run, domain.MissionStateDone)
	return m.finish(ctx, run, nil)
}

// AbandonMission settles a queued mission that will never run. The stored
// report becomes failed with reason cancelled and mission.failed is published.
func (m *Manager) AbandonMission(ctx context.Context, req domain.MissionRequest) (*domain.MissionReport, error) {
	run := m.newRun(ctx, req)

	ctx, span := m.tracer.Start(ctx, "mission.abandon", trace.WithAttributes(
		attribute.String("mission.id", req.ID),
	))
	defer span.End()

	m.logger.Warn("mission abandoned before start", zap.String("mission_id", req.ID))
	return m.finish(ctx, run, domain.NewError(domain.CodeCancelled, "mission cancelled before it started"))
}

// newRun starts a report for req, keeping the submission time of a stored
// pending report.
func (m *Manager) newRun(ctx context.Context, req domain.MissionRequest) *missionRun {
	run := &missionRun{
		req: req,
		report: &domain.MissionReport{
			MissionID:   req.ID,
			Start:       req.Start,
			End:         req.End,
			States:      []domain.MissionState{domain.MissionStateIdle},
			Status:      domain.MissionStatusPending,
			SubmittedAt: time.Now(),
		},
	}
	if prev, err := m.storage.GetReport(ctx, req.ID); err == nil {
		run.report.SubmittedAt = prev.SubmittedAt
	}
	return run
}

// plan computes the route inside its own span.
func (m *Manager) plan(ctx context.Context, g *graph.Graph, req domain.MissionRequest) (planner.Path, error) {
	_, span := m.tracer.Start(ctx, "planner.shortest_path")
	defer span.End()

	started := time.Now()
	path, err := planner.ShortestPath(g, req.Start, req.End)
	elapsed := time.Since(started)

	outcome := "found"
	switch {
	case errors.Is(err, domain.ErrUnreachable):
		outcome = "unreachable"
	case err != nil:
		outcome = "invalid"
	}
	m.metrics.RecordPlan(outcome, elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		m.logger.Warn("planning failed",
			zap.String("mission_id", req.ID),
			zap.Error(err))
		return planner.Path{}, err
	}

	span.SetAttributes(
		attribute.Int("path.length", path.Len()),
		attribute.Int64("path.cost", path.Cost),
	)
	m.logger.Debug("path planned",
		zap.String("mission_id", req.ID),
		zap.Ints("path", path.Nodes),
		zap.Int64("cost", path.Cost),
		zap.Duration("elapsed", elapsed))
	return path, nil
}

// runPhase executes the phase occupying slot. An injected fault swaps in the
// failure phase.
func (m *Manager) runPhase(ctx context.Context, run *missionRun, slot domain.PhaseKind) error {
	kind := slot
	if run.req.InjectFault == slot {
		kind = domain.PhaseFailure
	}

	ctx, span := m.tracer.Start(ctx, "phase."+kind.String(), trace.WithAttributes(
		attribute.String("mission.id", run.req.ID),
		attribute.String("phase.slot", slot.String()),
	))
	defer span.End()

	p, err := m.registry.Get(kind)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown phase")
		return err
	}

	m.publish(ctx, domain.TopicPhaseEvents, domain.Event{
		Type:      domain.EventTypePhaseStarted,
		MissionID: run.req.ID,
		Phase:     kind,
	})

	runCtx := ctx
	if m.actuationWait > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, m.actuationWait)
		defer cancel()
	}
	res := p.Run(runCtx, m.channel)

	rec := domain.PhaseRecord{
		Phase:       res.Kind,
		Outcome:     res.Outcome(),
		StartedAt:   res.StartedAt,
		CompletedAt: res.CompletedAt,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	run.appendPhase(rec)

	m.metrics.RecordActuationWait(kind, res.Wait)
	m.metrics.RecordPhaseExecuted(kind, rec.Outcome, res.CompletedAt.Sub(res.StartedAt))

	event := domain.Event{
		Type:      domain.EventTypePhaseCompleted,
		MissionID: run.req.ID,
		Phase:     kind,
	}
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, string(rec.Outcome))
		event.Type = domain.EventTypePhaseFaulted
		event.Data = map[string]interface{}{"error": rec.Error}
		m.logger.Error("phase faulted",
			zap.String("mission_id", run.req.ID),
			zap.String("phase", kind.String()),
			zap.Error(res.Err))
	} else {
		m.logger.Debug("phase completed",
			zap.String("mission_id", run.req.ID),
			zap.String("phase", kind.String()),
			zap.Duration("wait", res.Wait))
	}
	m.publish(ctx, domain.TopicPhaseEvents, event)

	return res.Err
}

// transition records a state change and announces it.
func (m *Manager) transition(ctx context.Context, run *missionRun, state domain.MissionState) {
	run.setState(state)
	m.publish(ctx, domain.TopicMissionEvents, domain.Event{
		Type:      domain.EventTypeMissionState,
		MissionID: run.req.ID,
		State:     state,
	})
}

// finish settles the report, persists it and publishes the terminal event.
func (m *Manager) finish(ctx context.Context, run *missionRun, cause error) (*domain.MissionReport, error) {
	err := cause
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = domain.WrapError(domain.CodeTimeout, "mission timed out", cause)
	}

	ctx = context.WithoutCancel(ctx)
	span := trace.SpanFromContext(ctx)

	now := time.Now()
	run.mu.Lock()
	run.report.CompletedAt = &now
	if err != nil {
		run.report.Status = domain.MissionStatusFailed
		run.report.Reason = failureReason(err)
		run.report.Error = err.Error()
		run.report.States = append(run.report.States, domain.MissionStateFailed)
	} else {
		run.report.Status = domain.MissionStatusSuccess
	}
	run.mu.Unlock()

	report := run.snapshot()
	m.save(ctx, run)

	event := domain.Event{
		Type:      domain.EventTypeMissionCompleted,
		MissionID: report.MissionID,
		State:     report.States[len(report.States)-1],
		Report:    report.Clone(),
	}
	if err != nil {
		event.Type = domain.EventTypeMissionFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, string(report.Reason))
	}
	m.publish(ctx, domain.TopicMissionEvents, event)

	var elapsed time.Duration
	if report.StartedAt != nil {
		elapsed = now.Sub(*report.StartedAt)
	}
	m.metrics.RecordMissionCompleted(report.Status, report.Reason, elapsed)

	m.logger.Info("mission finished",
		zap.String("mission_id", report.MissionID),
		zap.String("status", string(report.Status)),
		zap.String("reason", string(report.Reason)),
		zap.Ints("path", report.Path),
		zap.Int("phases", len(report.Phases)),
		zap.Duration("elapsed", elapsed))

	return report, err
}

// SubmitMission validates req, stores a pending report and queues the request
// for the worker pool. It returns the mission id.
func (m *Manager) SubmitMission(ctx context.Context, g *graph.Graph, req domain.MissionRequest) (string, error) {
	m.mu.Lock()
	closing := m.closing
	m.mu.Unlock()
	if closing {
		return "", ErrShuttingDown
	}

	if err := m.validator.Validate(g, req); err != nil {
		m.logger.Error("mission validation failed",
			zap.Int("start", req.Start),
			zap.Int("end", req.End),
			zap.Error(err))
		return "", fmt.Errorf("validation failed: %w", err)
	}

	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	report := &domain.MissionReport{
		MissionID:   req.ID,
		Start:       req.Start,
		End:         req.End,
		States:      []domain.MissionState{domain.MissionStateIdle},
		Status:      domain.MissionStatusPending,
		SubmittedAt: time.Now(),
	}
	if err := m.storage.SaveReport(ctx, report); err != nil {
		m.logger.Error("failed to save pending report",
			zap.String("mission_id", req.ID),
			zap.Error(err))
		return "", fmt.Errorf("failed to save report: %w", err)
	}

	event := domain.Event{
		ID:        uuid.New().String(),
		Type:      domain.EventTypeMissionSubmitted,
		MissionID: req.ID,
		Timestamp: time.Now(),
		Request:   &req,
	}
	if err := m.eventBus.Publish(ctx, domain.TopicMissionRequests, event); err != nil {
		m.logger.Error("failed to publish mission submitted event",
			zap.String("mission_id", req.ID),
			zap.Error(err))
		return "", fmt.Errorf("failed to publish event: %w", err)
	}

	m.metrics.RecordMissionSubmitted()
	m.logger.Info("mission submitted",
		zap.String("mission_id", req.ID),
		zap.Int("start", req.Start),
		zap.Int("end", req.End))

	return req.ID, nil
}

// GetReport retrieves the report of a mission
func (m *Manager) GetReport(ctx context.Context, missionID string) (*domain.MissionReport, error) {
	report, err := m.storage.GetReport(ctx, missionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return report, nil
}

// ListReports retrieves all stored reports
func (m *Manager) ListReports(ctx context.Context) ([]*domain.MissionReport, error) {
	reports, err := m.storage.ListReports(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, nil
}

// Shutdown stops accepting submissions and waits for in-flight missions
// until ctx is done.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down orchestrator manager")

	m.mu.Lock()
	m.closing = true
	if m.active == 0 {
		m.mu.Unlock()
		m.logger.Info("orchestrator manager shut down complete")
		return nil
	}
	if m.drained == nil {
		m.drained = make(chan struct{})
	}
	drained := m.drained
	m.mu.Unlock()

	select {
	case <-drained:
		m.logger.Info("orchestrator manager shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight missions: %w", ctx.Err())
	}
}

// track counts one in-flight mission until the returned func is called.
func (m *Manager) track() func() {
	m.mu.Lock()
	m.active++
	n := m.active
	m.mu.Unlock()
	m.metrics.SetActiveMissions(n)

	return func() {
		m.mu.Lock()
		m.active--
		n := m.active
		if n == 0 && m.drained != nil {
			close(m.drained)
			m.drained = nil
		}
		m.mu.Unlock()
		m.metrics.SetActiveMissions(n)
	}
}

func (m *Manager) save(ctx context.Context, run *missionRun) {
	if err := m.storage.SaveReport(ctx, run.snapshot()); err != nil {
		m.logger.Error("failed to save report",
			zap.String("mission_id", run.req.ID),
			zap.Error(err))
	}
}

func (m *Manager) publish(ctx context.Context, topic string, event domain.Event) {
	event.ID = uuid.New().String()
	event.Timestamp = time.Now()
	if err := m.eventBus.Publish(context.WithoutCancel(ctx), topic, event); err != nil {
		m.logger.Error("failed to publish event",
			zap.String("mission_id", event.MissionID),
			zap.String("type", string(event.Type)),
			zap.Error(err))
	}
}

func failureReason(err error) domain.FailureReason {
	switch domain.CodeOf(err) {
	case domain.CodeInvalidArgument:
		return domain.FailureReasonInvalidArgument
	case domain.CodeUnreachable:
		return domain.FailureReasonUnreachable
	case domain.CodeTimeout:
		return domain.FailureReasonTimeout
	case domain.CodeCancelled:
		return domain.FailureReasonCancelled
	default:
		return domain.FailureReasonPhaseFault
	}
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
