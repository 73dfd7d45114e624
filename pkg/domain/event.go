package domain

import "time"

// EventType identifies a mission lifecycle event.
type EventType string

const (
	EventTypeMissionSubmitted EventType = "mission.submitted"
	EventTypeMissionState     EventType = "mission.state"
	EventTypeMissionCompleted EventType = "mission.completed"
	EventTypeMissionFailed    EventType = "mission.failed"
	EventTypePhaseStarted     EventType = "phase.started"
	EventTypePhaseCompleted   EventType = "phase.completed"
	EventTypePhaseFaulted     EventType = "phase.faulted"
)

// Event bus topics.
const (
	TopicMissionRequests = "mission.requests"
	TopicMissionEvents   = "mission.events"
	TopicPhaseEvents     = "phase.events"
)

// Event is published on the event bus.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	MissionID string                 `json:"mission_id"`
	Phase     PhaseKind              `json:"phase,omitempty"`
	State     MissionState           `json:"state,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Request   *MissionRequest        `json:"request,omitempty"`
	Report    *MissionReport         `json:"report,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}
