// Package phase defines the fixed set of mission phases. A phase is a
// stateless value: a kind plus the actuation command issued while the phase
// holds the actuation channel.
package phase

import (
	"context"
	"fmt"
	"time"

	"github.com/aescanero/waypoint/internal/actuation"
	"github.com/aescanero/waypoint/pkg/domain"
)

// Action is the actuation command of a phase. It runs while the phase holds
// the actuation channel.
type Action func(ctx context.Context, kind domain.PhaseKind) error

// Phase is one named unit of vehicle-control work.
type Phase struct {
	kind   domain.PhaseKind
	action Action
}

// Kind returns the phase kind.
func (p Phase) Kind() domain.PhaseKind {
	return p.kind
}

// Result describes a completed Run.
type Result struct {
	Kind        domain.PhaseKind
	Err         error
	Wait        time.Duration
	StartedAt   time.Time
	CompletedAt time.Time
}

// Outcome maps the result error to a phase outcome.
func (r Result) Outcome() domain.PhaseOutcome {
	if r.Err != nil {
		return domain.PhaseOutcomeFault
	}
	return domain.PhaseOutcomeSuccess
}

// Run holds ch for the whole action and releases it on every exit path.
// Any error, including a panic inside the action, is reported as a phase fault.
func (p Phase) Run(ctx context.Context, ch *actuation.Channel) (res Result) {
	res.Kind = p.kind
	waitStart := time.Now()

	release, err := ch.Acquire(ctx, p.kind)
	if err != nil {
		now := time.Now()
		res.Wait = now.Sub(waitStart)
		res.StartedAt, res.CompletedAt = now, now
		res.Err = domain.WrapError(domain.CodePhaseFault, fmt.Sprintf("%s could not acquire actuation", p.kind), err)
		return res
	}
	res.StartedAt = time.Now()
	res.Wait = res.StartedAt.Sub(waitStart)

	defer func() {
		if r := recover(); r != nil {
			res.Err = domain.NewError(domain.CodePhaseFault, "%s panicked: %v", p.kind, r)
		}
		release()
		res.CompletedAt = time.Now()
	}()

	if err := p.action(ctx, p.kind); err != nil {
		res.Err = domain.WrapError(domain.CodePhaseFault, fmt.Sprintf("%s failed", p.kind), err)
	}
	return res
}
