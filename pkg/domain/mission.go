package domain

import (
	"sort"
	"time"
)

// PhaseKind names one of the fixed mission phases.
type PhaseKind string

const (
	PhaseTakeoff      PhaseKind = "takeoff"
	PhaseLand         PhaseKind = "land"
	PhaseReturnToHome PhaseKind = "return_to_home"
	PhaseSurvey       PhaseKind = "survey"
	PhaseFailure      PhaseKind = "failure"
)

// PhaseKinds lists every phase kind in declaration order.
var PhaseKinds = []PhaseKind{
	PhaseTakeoff,
	PhaseLand,
	PhaseReturnToHome,
	PhaseSurvey,
	PhaseFailure,
}

// Valid reports whether k is one of the declared phase kinds.
func (k PhaseKind) Valid() bool {
	for _, kind := range PhaseKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// String returns the string representation of the phase kind.
func (k PhaseKind) String() string {
	return string(k)
}

// PhaseOutcome is the result of one phase execution.
type PhaseOutcome string

const (
	PhaseOutcomeSuccess PhaseOutcome = "success"
	PhaseOutcomeFault   PhaseOutcome = "fault"
)

// MissionState is a node of the mission state machine.
type MissionState string

const (
	MissionStateIdle               MissionState = "idle"
	MissionStateAscending          MissionState = "ascending"
	MissionStatePlanning           MissionState = "planning"
	MissionStateAscendingSurveying MissionState = "ascending_surveying"
	MissionStateReturning          MissionState = "returning"
	MissionStateDescending         MissionState = "descending"
	MissionStateDone               MissionState = "done"
	MissionStateFailed             MissionState = "failed"
)

// MissionStatus is the lifecycle status of a mission as stored and reported.
type MissionStatus string

const (
	MissionStatusPending MissionStatus = "pending"
	MissionStatusRunning MissionStatus = "running"
	MissionStatusSuccess MissionStatus = "success"
	MissionStatusFailed  MissionStatus = "failed"
)

// IsTerminal returns true for success and failed.
func (s MissionStatus) IsTerminal() bool {
	return s == MissionStatusSuccess || s == MissionStatusFailed
}

// FailureReason explains a failed mission.
type FailureReason string

const (
	FailureReasonNone            FailureReason = ""
	FailureReasonInvalidArgument FailureReason = FailureReason(CodeInvalidArgument)
	FailureReasonUnreachable     FailureReason = FailureReason(CodeUnreachable)
	FailureReasonPhaseFault      FailureReason = FailureReason(CodePhaseFault)
	FailureReasonTimeout         FailureReason = FailureReason(CodeTimeout)
	FailureReasonCancelled       FailureReason = FailureReason(CodeCancelled)
)

// MissionRequest asks for a mission between two waypoints.
type MissionRequest struct {
	ID    string `json:"id,omitempty"`
	Start int    `json:"start"`
	End   int    `json:"end"`

	// InjectFault, when set, runs the failure phase in place of the named phase.
	InjectFault PhaseKind `json:"inject_fault,omitempty"`
}

// PhaseRecord is one executed phase in a mission report.
type PhaseRecord struct {
	Phase       PhaseKind    `json:"phase"`
	Outcome     PhaseOutcome `json:"outcome"`
	Error       string       `json:"error,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt time.Time    `json:"completed_at"`
}

// MissionReport is the outcome record of one mission invocation.
type MissionReport struct {
	MissionID string `json:"mission_id"`
	Start     int    `json:"start"`
	End       int    `json:"end"`

	// Path is nil when planning failed.
	Path []int `json:"path"`
	Cost int64 `json:"cost"`

	Phases []PhaseRecord  `json:"phases_executed"`
	States []MissionState `json:"states"`

	Status MissionStatus `json:"status"`
	Reason FailureReason `json:"reason,omitempty"`
	Error  string        `json:"error,omitempty"`

	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// PhaseKinds returns the kinds of the executed phases in order.
func (r *MissionReport) PhaseKinds() []PhaseKind {
	kinds := make([]PhaseKind, len(r.Phases))
	for i, p := range r.Phases {
		kinds[i] = p.Phase
	}
	return kinds
}

// Clone returns a deep copy of the report.
func (r *MissionReport) Clone() *MissionReport {
	if r == nil {
		return nil
	}
	c := *r
	if r.Path != nil {
		c.Path = append([]int(nil), r.Path...)
	}
	if r.Phases != nil {
		c.Phases = append([]PhaseRecord(nil), r.Phases...)
	}
	if r.States != nil {
		c.States = append([]MissionState(nil), r.States...)
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// SortReports orders reports by submission time, then by mission id.
func SortReports(reports []*MissionReport) {
	sort.Slice(reports, func(i, j int) bool {
		if !reports[i].SubmittedAt.Equal(reports[j].SubmittedAt) {
			return reports[i].SubmittedAt.Before(reports[j].SubmittedAt)
		}
		return reports[i].MissionID < reports[j].MissionID
	})
}
