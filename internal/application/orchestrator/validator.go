package orchestrator

import (
	"github.com/aescanero/waypoint/internal/graph"
	"github.com/aescanero/waypoint/pkg/domain"
)

// Validator validates mission requests against a graph
type Validator struct{}

// NewValidator creates a new mission validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks that the graph is present, that both endpoints are nodes of
// it and that the fault to inject, if any, names a replaceable phase.
func (v *Validator) Validate(g *graph.Graph, req domain.MissionRequest) error {
	if g == nil {
		return domain.InvalidArgument("graph is nil")
	}

	if !g.Contains(req.Start) {
		return domain.InvalidArgument("start node %d not in graph of %d nodes", req.Start, g.NumNodes())
	}
	if !g.Contains(req.End) {
		return domain.InvalidArgument("end node %d not in graph of %d nodes", req.End, g.NumNodes())
	}

	if req.InjectFault != "" {
		if !req.InjectFault.Valid() {
			return domain.InvalidArgument("unknown phase %q for fault injection", req.InjectFault)
		}
		if req.InjectFault == domain.PhaseFailure {
			return domain.InvalidArgument("fault can only be injected into takeoff, survey, return_to_home or land")
		}
	}

	return nil
}
