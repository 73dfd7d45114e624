package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aescanero/waypoint/pkg/domain"
	"github.com/aescanero/waypoint/pkg/ports"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var _ ports.EventBus = (*StreamsEventBus)(nil)

type collector struct {
	mu     sync.Mutex
	events []domain.Event
}

func (c *collector) handle(_ context.Context, e domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *collector) snapshot() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Event(nil), c.events...)
}

func newTestBus(t *testing.T, consumer string, queues ...string) (*StreamsEventBus, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	bus, err := NewStreamsEventBus(client, "waypoint", consumer, zap.NewNop(), queues...)
	require.NoError(t, err)
	t.Cleanup(func() { bus.Close() })
	return bus, client
}

func TestNewStreamsEventBusRequiresNames(t *testing.T) {
	_, err := NewStreamsEventBus(nil, "", "c", zap.NewNop())
	assert.Error(t, err)
}

func TestPublishWritesStream(t *testing.T) {
	bus, client := newTestBus(t, "c1")
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, domain.TopicMissionEvents, domain.Event{
		ID:        "e1",
		Type:      domain.EventTypeMissionState,
		MissionID: "m1",
		State:     domain.MissionStatePlanning,
	}))

	n, err := client.XLen(ctx, "waypoint:events:mission.events").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestBroadcastSubscriptionSeesNewEvents(t *testing.T) {
	bus, _ := newTestBus(t, "c1")
	ctx := context.Background()

	// Published before subscribing: not delivered
	require.NoError(t, bus.Publish(ctx, domain.TopicPhaseEvents, domain.Event{ID: "old"}))

	a, b := &collector{}, &collector{}
	require.NoError(t, bus.Subscribe(ctx, domain.TopicPhaseEvents, a.handle))
	require.NoError(t, bus.Subscribe(ctx, domain.TopicPhaseEvents, b.handle))

	require.NoError(t, bus.Publish(ctx, domain.TopicPhaseEvents, domain.Event{ID: "new1", Phase: domain.PhaseSurvey}))
	require.NoError(t, bus.Publish(ctx, domain.TopicPhaseEvents, domain.Event{ID: "new2", Phase: domain.PhaseLand}))

	require.Eventually(t, func() bool {
		return len(a.snapshot()) == 2 && len(b.snapshot()) == 2
	}, 5*time.Second, 10*time.Millisecond)

	got := a.snapshot()
	assert.Equal(t, "new1", got[0].ID)
	assert.Equal(t, domain.PhaseSurvey, got[0].Phase)
	assert.Equal(t, "new2", got[1].ID)
}

func TestQueueTopicDeliversOnceAndAcks(t *testing.T) {
	bus, client := newTestBus(t, "c1", domain.TopicMissionRequests)
	ctx := context.Background()

	c := &collector{}
	require.NoError(t, bus.Subscribe(ctx, domain.TopicMissionRequests, c.handle))

	req := domain.MissionRequest{ID: "m1", Start: 0, End: 4}
	require.NoError(t, bus.Publish(ctx, domain.TopicMissionRequests, domain.Event{
		ID:        "e1",
		Type:      domain.EventTypeMissionSubmitted,
		MissionID: "m1",
		Request:   &req,
	}))

	require.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, 5*time.Second, 10*time.Millisecond)
	got := c.snapshot()[0]
	require.NotNil(t, got.Request)
	assert.Equal(t, req, *got.Request)

	require.Eventually(t, func() bool {
		pending, err := client.XPending(ctx, "waypoint:events:mission.requests", "waypoint").Result()
		return err == nil && pending.Count == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestQueueSubscriptionClaimsAbandonedEntries(t *testing.T) {
	bus, client := newTestBus(t, "c2", domain.TopicMissionRequests)
	bus.claimMinIdle = 0
	ctx := context.Background()
	stream := "waypoint:events:mission.requests"

	// A consumer that read the request and died before acknowledging it
	require.NoError(t, client.XGroupCreateMkStream(ctx, stream, "waypoint", "0").Err())
	req := domain.MissionRequest{ID: "m-stuck", Start: 0, End: 2}
	require.NoError(t, bus.Publish(ctx, domain.TopicMissionRequests, domain.Event{
		ID:        "e-stuck",
		Type:      domain.EventTypeMissionSubmitted,
		MissionID: req.ID,
		Request:   &req,
	}))
	read, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    "waypoint",
		Consumer: "c1",
		Streams:  []string{stream, ">"},
		Count:    1,
	}).Result()
	require.NoError(t, err)
	require.Len(t, read[0].Messages, 1)

	c := &collector{}
	require.NoError(t, bus.Subscribe(ctx, domain.TopicMissionRequests, c.handle))

	require.Eventually(t, func() bool { return len(c.snapshot()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "m-stuck", c.snapshot()[0].MissionID)

	require.Eventually(t, func() bool {
		pending, err := client.XPending(ctx, stream, "waypoint").Result()
		return err == nil && pending.Count == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus, _ := newTestBus(t, "c1")
	ctx := context.Background()

	c := &collector{}
	require.NoError(t, bus.Subscribe(ctx, domain.TopicMissionEvents, c.handle))
	require.NoError(t, bus.Unsubscribe(ctx, domain.TopicMissionEvents))

	require.NoError(t, bus.Publish(ctx, domain.TopicMissionEvents, domain.Event{ID: "ignored"}))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, c.snapshot())
}
