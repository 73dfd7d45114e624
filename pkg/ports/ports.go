// Package ports declares the interfaces the orchestrator depends on. Adapters
// under pkg/adapters implement them.
package ports

import (
	"context"
	"time"

	"github.com/aescanero/waypoint/pkg/domain"
)

// EventHandler handles one event delivered by an EventBus.
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus publishes and delivers mission events.
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error

	// Subscribe registers handler for topic until ctx is cancelled.
	Subscribe(ctx context.Context, topic string, handler EventHandler) error

	Unsubscribe(ctx context.Context, topic string) error
	Close() error
}

// ReportStorage persists mission reports.
type ReportStorage interface {
	SaveReport(ctx context.Context, report *domain.MissionReport) error

	// GetReport returns domain.ErrNotFound for unknown ids.
	GetReport(ctx context.Context, missionID string) (*domain.MissionReport, error)

	DeleteReport(ctx context.Context, missionID string) error
	ListReports(ctx context.Context) ([]*domain.MissionReport, error)
}

// MetricsCollector records mission, phase and planner metrics.
type MetricsCollector interface {
	RecordMissionSubmitted()
	RecordMissionCompleted(status domain.MissionStatus, reason domain.FailureReason, duration time.Duration)
	RecordPhaseExecuted(phase domain.PhaseKind, outcome domain.PhaseOutcome, duration time.Duration)
	RecordActuationWait(phase domain.PhaseKind, wait time.Duration)
	RecordPlan(outcome string, duration time.Duration)
	SetActiveMissions(count int)
	RecordWorkerPoolStatus(idle, busy, stopped int)
	RecordMissionQueue(depth int, oldestWait time.Duration)
}
