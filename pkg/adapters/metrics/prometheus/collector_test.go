package prometheus

import (
	"testing"
	"time"

	"github.com/aescanero/waypoint/pkg/domain"
	"github.com/aescanero/waypoint/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.MetricsCollector = (*Collector)(nil)

func TestCollectorRecordsMissions(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordMissionSubmitted()
	c.RecordMissionSubmitted()
	c.RecordMissionCompleted(domain.MissionStatusSuccess, domain.FailureReasonNone, time.Second)
	c.RecordMissionCompleted(domain.MissionStatusFailed, domain.FailureReasonUnreachable, time.Millisecond)
	c.SetActiveMissions(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.missionsSubmitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.missionsCompleted.WithLabelValues("success", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.missionsCompleted.WithLabelValues("failed", "unreachable")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.activeMissions))
	assert.Equal(t, 2, testutil.CollectAndCount(c.missionDuration))
}

func TestCollectorRecordsPhasesAndPlans(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPhaseExecuted(domain.PhaseTakeoff, domain.PhaseOutcomeSuccess, 10*time.Millisecond)
	c.RecordPhaseExecuted(domain.PhaseFailure, domain.PhaseOutcomeFault, time.Millisecond)
	c.RecordActuationWait(domain.PhaseSurvey, 5*time.Millisecond)
	c.RecordPlan("found", time.Microsecond)
	c.RecordPlan("unreachable", time.Microsecond)
	c.RecordWorkerPoolStatus(2, 1, 0)
	c.RecordMissionQueue(3, 1500*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.phasesExecuted.WithLabelValues("takeoff", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.phasesExecuted.WithLabelValues("failure", "fault")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.plans.WithLabelValues("unreachable")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.workerPoolIdle))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.workerPoolBusy))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.workerPoolStopped))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.queueDepth))
	assert.Equal(t, 1.5, testutil.ToFloat64(c.queueOldestWait))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "waypoint_actuation_wait_seconds")
	assert.Contains(t, names, "waypoint_plan_duration_seconds")
}

func TestCollectorsUseSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector(prometheus.NewRegistry())
		NewCollector(prometheus.NewRegistry())
	})

	reg := prometheus.NewRegistry()
	NewCollector(reg)
	assert.Panics(t, func() { NewCollector(reg) })
}
