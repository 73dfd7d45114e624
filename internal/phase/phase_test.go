package phase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aescanero/waypoint/internal/actuation"
	"github.com/aescanero/waypoint/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistryHasEveryKind(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	assert.Equal(t, domain.PhaseKinds, r.Kinds())

	for _, kind := range domain.PhaseKinds {
		p, err := r.Get(kind)
		require.NoError(t, err)
		assert.Equal(t, kind, p.Kind())
	}

	_, err := r.Get("hover")
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestStubPhasesSucceed(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	ch := actuation.NewChannel()

	for _, kind := range []domain.PhaseKind{domain.PhaseTakeoff, domain.PhaseSurvey, domain.PhaseReturnToHome, domain.PhaseLand} {
		p, err := r.Get(kind)
		require.NoError(t, err)

		res := p.Run(context.Background(), ch)
		assert.NoError(t, res.Err, kind)
		assert.Equal(t, domain.PhaseOutcomeSuccess, res.Outcome())
		assert.Equal(t, kind, res.Kind)
		assert.False(t, res.CompletedAt.Before(res.StartedAt))
	}
}

func TestFailureAlwaysFaults(t *testing.T) {
	called := false
	r := NewRegistry(zap.NewNop(), WithAction(domain.PhaseFailure, func(ctx context.Context, kind domain.PhaseKind) error {
		called = true
		return nil
	}))
	ch := actuation.NewChannel()

	p, err := r.Get(domain.PhaseFailure)
	require.NoError(t, err)
	res := p.Run(context.Background(), ch)

	assert.True(t, called)
	assert.True(t, errors.Is(res.Err, domain.ErrPhaseFault))
	assert.Equal(t, domain.PhaseOutcomeFault, res.Outcome())

	_, held := ch.Holder()
	assert.False(t, held, "channel must be released after a fault")
}

func TestRunHoldsChannelDuringAction(t *testing.T) {
	ch := actuation.NewChannel()
	var seen domain.PhaseKind
	var held bool

	r := NewRegistry(zap.NewNop(), WithAction(domain.PhaseSurvey, func(ctx context.Context, kind domain.PhaseKind) error {
		seen, held = ch.Holder()
		return nil
	}))

	p, err := r.Get(domain.PhaseSurvey)
	require.NoError(t, err)
	res := p.Run(context.Background(), ch)
	require.NoError(t, res.Err)

	assert.True(t, held)
	assert.Equal(t, domain.PhaseSurvey, seen)
	_, held = ch.Holder()
	assert.False(t, held)
}

func TestRunReleasesOnPanic(t *testing.T) {
	ch := actuation.NewChannel()
	r := NewRegistry(zap.NewNop(), WithAction(domain.PhaseLand, func(ctx context.Context, kind domain.PhaseKind) error {
		panic("rotor jam")
	}))

	p, err := r.Get(domain.PhaseLand)
	require.NoError(t, err)
	res := p.Run(context.Background(), ch)

	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, domain.ErrPhaseFault))
	assert.Contains(t, res.Err.Error(), "rotor jam")

	_, held := ch.Holder()
	assert.False(t, held)
}

func TestRunFaultsWhenChannelUnavailable(t *testing.T) {
	ch := actuation.NewChannel()
	release, err := ch.Acquire(context.Background(), domain.PhaseTakeoff)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	p, err := NewRegistry(zap.NewNop()).Get(domain.PhaseSurvey)
	require.NoError(t, err)
	res := p.Run(ctx, ch)

	assert.True(t, errors.Is(res.Err, domain.ErrPhaseFault))
	assert.True(t, errors.Is(res.Err, context.DeadlineExceeded))
}

func TestWithDurationHoldsChannel(t *testing.T) {
	r := NewRegistry(zap.NewNop(), WithDuration(15*time.Millisecond))
	p, err := r.Get(domain.PhaseTakeoff)
	require.NoError(t, err)

	res := p.Run(context.Background(), actuation.NewChannel())
	require.NoError(t, res.Err)
	assert.GreaterOrEqual(t, res.CompletedAt.Sub(res.StartedAt), 15*time.Millisecond)
}
