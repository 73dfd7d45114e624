package memory

import (
	"context"
	"sync"

	"github.com/aescanero/waypoint/pkg/domain"
	"github.com/aescanero/waypoint/pkg/ports"
	"go.uber.org/zap"
)

// subscriptionBuffer is the number of undelivered events a subscription holds
// before Publish blocks.
const subscriptionBuffer = 256

// subscription delivers events to one handler in publish order.
type subscription struct {
	id      uint64
	topic   string
	handler ports.EventHandler
	events  chan domain.Event
	done    chan struct{}
	once    sync.Once
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// InMemoryEventBus implements EventBus using in-process subscriptions.
// Used for tests and single-process deployments.
type InMemoryEventBus struct {
	subscribers map[string]map[uint64]*subscription
	nextID      uint64
	logger      *zap.Logger
	mu          sync.RWMutex
	wg          sync.WaitGroup
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{
		subscribers: make(map[string]map[uint64]*subscription),
		logger:      logger,
	}
}

// Publish publishes an event to all subscribers of a topic. Each subscriber
// receives events in the order they were published.
func (e *InMemoryEventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	e.mu.RLock()
	subs := make([]*subscription, 0, len(e.subscribers[topic]))
	for _, s := range e.subscribers[topic] {
		subs = append(subs, s)
	}
	e.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.events <- event:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe subscribes to events on a specific topic until ctx is cancelled
func (e *InMemoryEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	e.mu.Lock()
	e.nextID++
	s := &subscription{
		id:      e.nextID,
		topic:   topic,
		handler: handler,
		events:  make(chan domain.Event, subscriptionBuffer),
		done:    make(chan struct{}),
	}
	if e.subscribers[topic] == nil {
		e.subscribers[topic] = make(map[uint64]*subscription)
	}
	e.subscribers[topic][s.id] = s
	e.mu.Unlock()

	e.wg.Add(1)
	go e.deliver(ctx, s)

	// Clean up the subscription on context cancellation
	go func() {
		select {
		case <-ctx.Done():
			e.unsubscribe(s)
		case <-s.done:
		}
	}()

	return nil
}

func (e *InMemoryEventBus) deliver(ctx context.Context, s *subscription) {
	defer e.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case event := <-s.events:
			if err := s.handler(ctx, event); err != nil {
				e.logger.Warn("event handler failed",
					zap.String("topic", s.topic),
					zap.String("event_id", event.ID),
					zap.String("type", string(event.Type)),
					zap.Error(err))
			}
		}
	}
}

// Unsubscribe removes all subscriptions from a topic
func (e *InMemoryEventBus) Unsubscribe(ctx context.Context, topic string) error {
	e.mu.Lock()
	subs := e.subscribers[topic]
	delete(e.subscribers, topic)
	e.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
	return nil
}

// Close stops every subscription and waits for in-progress handlers
func (e *InMemoryEventBus) Close() error {
	e.mu.Lock()
	all := e.subscribers
	e.subscribers = make(map[string]map[uint64]*subscription)
	e.mu.Unlock()

	for _, subs := range all {
		for _, s := range subs {
			s.stop()
		}
	}
	e.wg.Wait()
	return nil
}

// SubscriberCount returns the number of live subscriptions on topic
func (e *InMemoryEventBus) SubscriberCount(topic string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subscribers[topic])
}

// unsubscribe removes a single subscription
func (e *InMemoryEventBus) unsubscribe(s *subscription) {
	e.mu.Lock()
	if subs, ok := e.subscribers[s.topic]; ok {
		delete(subs, s.id)
		if len(subs) == 0 {
			delete(e.subscribers, s.topic)
		}
	}
	e.mu.Unlock()
	s.stop()
}
