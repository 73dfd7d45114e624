package prometheus

import (
	"time"

	"github.com/aescanero/waypoint/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	missionsSubmitted prometheus.Counter
	missionsCompleted *prometheus.CounterVec
	missionDuration   *prometheus.HistogramVec
	activeMissions    prometheus.Gauge

	phasesExecuted *prometheus.CounterVec
	phaseDuration  *prometheus.HistogramVec
	actuationWait  *prometheus.HistogramVec

	plans        *prometheus.CounterVec
	planDuration prometheus.Histogram

	workerPoolIdle    prometheus.Gauge
	workerPoolBusy    prometheus.Gauge
	workerPoolStopped prometheus.Gauge

	queueDepth      prometheus.Gauge
	queueOldestWait prometheus.Gauge
}

// NewCollector creates a new Prometheus metrics collector registered on reg.
// Pass prometheus.DefaultRegisterer to expose the metrics on the default
// handler.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		missionsSubmitted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "waypoint_missions_submitted_total",
				Help: "Total number of missions submitted for asynchronous execution",
			},
		),
		missionsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waypoint_missions_completed_total",
				Help: "Total number of missions finished, by status and failure reason",
			},
			[]string{"status", "reason"},
		),
		missionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "waypoint_mission_duration_seconds",
				Help:    "Mission execution duration in seconds",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		),
		activeMissions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "waypoint_active_missions",
				Help: "Number of currently executing missions",
			},
		),
		phasesExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waypoint_phases_executed_total",
				Help: "Total number of phases executed, by kind and outcome",
			},
			[]string{"phase", "outcome"},
		),
		phaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "waypoint_phase_duration_seconds",
				Help:    "Time a phase held the actuation channel in seconds",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"phase"},
		),
		actuationWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "waypoint_actuation_wait_seconds",
				Help:    "Time a phase waited for the actuation channel in seconds",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"phase"},
		),
		plans: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waypoint_plans_total",
				Help: "Total number of shortest path computations, by outcome",
			},
			[]string{"outcome"},
		),
		planDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "waypoint_plan_duration_seconds",
				Help:    "Shortest path computation duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
		),
		workerPoolIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "waypoint_worker_pool_idle",
				Help: "Number of idle workers",
			},
		),
		workerPoolBusy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "waypoint_worker_pool_busy",
				Help: "Number of busy workers",
			},
		),
		workerPoolStopped: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "waypoint_worker_pool_stopped",
				Help: "Number of stopped workers",
			},
		),
		queueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "waypoint_mission_queue_depth",
				Help: "Number of submitted missions waiting for a worker",
			},
		),
		queueOldestWait: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "waypoint_mission_queue_oldest_wait_seconds",
				Help: "How long the oldest queued mission has been waiting",
			},
		),
	}
}

// RecordMissionSubmitted records an asynchronous mission submission
func (c *Collector) RecordMissionSubmitted() {
	c.missionsSubmitted.Inc()
}

// RecordMissionCompleted records a finished mission
func (c *Collector) RecordMissionCompleted(status domain.MissionStatus, reason domain.FailureReason, duration time.Duration) {
	c.missionsCompleted.WithLabelValues(string(status), string(reason)).Inc()
	c.missionDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
}

// RecordPhaseExecuted records one phase execution
func (c *Collector) RecordPhaseExecuted(phase domain.PhaseKind, outcome domain.PhaseOutcome, duration time.Duration) {
	c.phasesExecuted.WithLabelValues(string(phase), string(outcome)).Inc()
	c.phaseDuration.WithLabelValues(string(phase)).Observe(duration.Seconds())
}

// RecordActuationWait records how long a phase waited for the actuation channel
func (c *Collector) RecordActuationWait(phase domain.PhaseKind, wait time.Duration) {
	c.actuationWait.WithLabelValues(string(phase)).Observe(wait.Seconds())
}

// RecordPlan records one planner run
func (c *Collector) RecordPlan(outcome string, duration time.Duration) {
	c.plans.WithLabelValues(outcome).Inc()
	c.planDuration.Observe(duration.Seconds())
}

// SetActiveMissions sets the number of currently executing missions
func (c *Collector) SetActiveMissions(count int) {
	c.activeMissions.Set(float64(count))
}

// RecordWorkerPoolStatus records worker pool status
func (c *Collector) RecordWorkerPoolStatus(idle, busy, stopped int) {
	c.workerPoolIdle.Set(float64(idle))
	c.workerPoolBusy.Set(float64(busy))
	c.workerPoolStopped.Set(float64(stopped))
}

// RecordMissionQueue records the depth of the mission queue and the wait of its oldest entry
func (c *Collector) RecordMissionQueue(depth int, oldestWait time.Duration) {
	c.queueDepth.Set(float64(depth))
	c.queueOldestWait.Set(oldestWait.Seconds())
}
