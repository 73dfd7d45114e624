// Package actuation models the vehicle's single physical actuator as an
// exclusive, owned resource. At most one phase holds a Channel at a time.
package actuation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/waypoint/pkg/domain"
)

// Observer is notified when the channel changes hands. Callbacks run while the
// channel is held and must not block.
type Observer interface {
	Acquired(holder domain.PhaseKind, at time.Time)
	Released(holder domain.PhaseKind, at time.Time)
}

// Channel is a single-holder lock that records who holds it.
type Channel struct {
	token chan struct{}

	mu        sync.Mutex
	holder    domain.PhaseKind
	held      bool
	observers []Observer
}

// NewChannel creates a free channel.
func NewChannel(observers ...Observer) *Channel {
	c := &Channel{
		token:     make(chan struct{}, 1),
		observers: observers,
	}
	c.token <- struct{}{}
	return c
}

// Acquire blocks until the channel is free or ctx is done. The returned
// release function is safe to call more than once.
func (c *Channel) Acquire(ctx context.Context, holder domain.PhaseKind) (func(), error) {
	select {
	case <-c.token:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for actuation channel as %s: %w", holder, ctx.Err())
	}

	c.mu.Lock()
	c.holder = holder
	c.held = true
	observers := c.observers
	c.mu.Unlock()

	now := time.Now()
	for _, o := range observers {
		o.Acquired(holder, now)
	}

	var once sync.Once
	return func() {
		once.Do(func() { c.release(holder) })
	}, nil
}

func (c *Channel) release(holder domain.PhaseKind) {
	c.mu.Lock()
	c.held = false
	c.holder = ""
	observers := c.observers
	c.mu.Unlock()

	now := time.Now()
	for _, o := range observers {
		o.Released(holder, now)
	}

	c.token <- struct{}{}
}

// Holder returns the current holder, if any.
func (c *Channel) Holder() (domain.PhaseKind, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holder, c.held
}

// AddObserver registers o for subsequent acquisitions.
func (c *Channel) AddObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(append([]Observer(nil), c.observers...), o)
}
