package phase

import (
	"context"
	"errors"
	"time"

	"github.com/aescanero/waypoint/pkg/domain"
	"go.uber.org/zap"
)

// errInjectedFailure is returned by the failure phase's action.
var errInjectedFailure = errors.New("vehicle has encountered a failure")

var messages = map[domain.PhaseKind]string{
	domain.PhaseTakeoff:      "vehicle is taking off",
	domain.PhaseLand:         "vehicle is landing",
	domain.PhaseReturnToHome: "vehicle is returning to home",
	domain.PhaseSurvey:       "vehicle is surveying the area",
	domain.PhaseFailure:      "vehicle has encountered a failure",
}

// Registry holds one Phase per kind.
type Registry struct {
	phases map[domain.PhaseKind]Phase
}

// Option customises a Registry.
type Option func(*registryOptions)

type registryOptions struct {
	duration time.Duration
	actions  map[domain.PhaseKind]Action
}

// WithDuration makes every stub action hold the channel for d.
func WithDuration(d time.Duration) Option {
	return func(o *registryOptions) {
		o.duration = d
	}
}

// WithAction replaces the actuation command of kind. The failure phase always
// faults: its action runs, then the fault is reported regardless.
func WithAction(kind domain.PhaseKind, action Action) Option {
	return func(o *registryOptions) {
		o.actions[kind] = action
	}
}

// NewRegistry builds the fixed phase set. Actions default to logging stubs.
func NewRegistry(logger *zap.Logger, opts ...Option) *Registry {
	o := &registryOptions{actions: make(map[domain.PhaseKind]Action)}
	for _, opt := range opts {
		opt(o)
	}

	r := &Registry{phases: make(map[domain.PhaseKind]Phase, len(domain.PhaseKinds))}
	for _, kind := range domain.PhaseKinds {
		action, ok := o.actions[kind]
		if !ok {
			action = stubAction(logger, o.duration)
		}
		if kind == domain.PhaseFailure {
			action = alwaysFault(action)
		}
		r.phases[kind] = Phase{kind: kind, action: action}
	}
	return r
}

// Get returns the phase for kind.
func (r *Registry) Get(kind domain.PhaseKind) (Phase, error) {
	p, ok := r.phases[kind]
	if !ok {
		return Phase{}, domain.InvalidArgument("unknown phase %q", kind)
	}
	return p, nil
}

// Kinds returns the registered kinds in declaration order.
func (r *Registry) Kinds() []domain.PhaseKind {
	return append([]domain.PhaseKind(nil), domain.PhaseKinds...)
}

func stubAction(logger *zap.Logger, d time.Duration) Action {
	return func(ctx context.Context, kind domain.PhaseKind) error {
		logger.Info(messages[kind], zap.String("phase", string(kind)))
		if d > 0 {
			// The held section runs to completion; ctx is not consulted.
			time.Sleep(d)
		}
		return nil
	}
}

func alwaysFault(action Action) Action {
	return func(ctx context.Context, kind domain.PhaseKind) error {
		if err := action(ctx, kind); err != nil {
			return err
		}
		return errInjectedFailure
	}
}
