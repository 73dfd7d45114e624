package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aescanero/waypoint/pkg/domain"
	"github.com/aescanero/waypoint/pkg/ports"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StreamsEventBus implements EventBus using Redis Streams.
//
// Queue topics are read through a consumer group, so each event is handled
// by one consumer across all processes and acknowledged after the handler
// succeeds. A queue subscription first claims entries that another consumer
// read but left unacknowledged for a minute. Every other topic is
// broadcast: each subscription reads the stream from the moment it subscribed.
type StreamsEventBus struct {
	client        *redis.Client
	logger        *zap.Logger
	consumerGroup string
	consumerName  string
	queueTopics   map[string]bool
	claimMinIdle  time.Duration

	mu      sync.Mutex
	cancels map[string][]context.CancelFunc
	wg      sync.WaitGroup
}

// defaultClaimMinIdle is how long a delivered queue entry stays unacknowledged
// before another consumer may take it over.
const defaultClaimMinIdle = time.Minute

// NewStreamsEventBus creates a new Redis Streams event bus
func NewStreamsEventBus(client *redis.Client, consumerGroup, consumerName string, logger *zap.Logger, queueTopics ...string) (*StreamsEventBus, error) {
	if consumerGroup == "" || consumerName == "" {
		return nil, fmt.Errorf("consumer group and consumer name are required")
	}

	queues := make(map[string]bool, len(queueTopics))
	for _, t := range queueTopics {
		queues[t] = true
	}

	return &StreamsEventBus{
		client:        client,
		logger:        logger,
		consumerGroup: consumerGroup,
		consumerName:  consumerName,
		queueTopics:   queues,
		claimMinIdle:  defaultClaimMinIdle,
		cancels:       make(map[string][]context.CancelFunc),
	}, nil
}

// Publish publishes an event to the appropriate stream topic
func (e *StreamsEventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	streamKey := getStreamKey(topic)

	// Serialize event
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// Add to stream
	args := &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}

	if _, err := e.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to add to stream: %w", err)
	}

	e.logger.Debug("event published",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.String("topic", topic),
		zap.String("stream", streamKey))

	return nil
}

// Subscribe subscribes to events on a specific topic until ctx is cancelled
// or the topic is unsubscribed.
func (e *StreamsEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	streamKey := getStreamKey(topic)
	queue := e.queueTopics[topic]

	lastID := "0-0"
	if queue {
		// Create consumer group if it doesn't exist
		err := e.client.XGroupCreateMkStream(ctx, streamKey, e.consumerGroup, "0").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("failed to create consumer group: %w", err)
		}
	} else {
		// Pin the starting point now so events published after Subscribe
		// returns are never missed
		latest, err := e.client.XRevRangeN(ctx, streamKey, "+", "-", 1).Result()
		if err != nil {
			return fmt.Errorf("failed to read stream tail: %w", err)
		}
		if len(latest) > 0 {
			lastID = latest[0].ID
		}
	}

	subCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancels[topic] = append(e.cancels[topic], cancel)
	e.mu.Unlock()

	e.logger.Info("subscribed to event stream",
		zap.String("stream", streamKey),
		zap.String("topic", topic),
		zap.Bool("queue", queue),
		zap.String("consumer_group", e.consumerGroup),
		zap.String("consumer", e.consumerName))

	// Start reading from stream
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if queue {
			e.readGroup(subCtx, streamKey, handler)
		} else {
			e.readBroadcast(subCtx, streamKey, lastID, handler)
		}
	}()

	return nil
}

// readGroup reads events from a stream through the consumer group
func (e *StreamsEventBus) readGroup(ctx context.Context, streamKey string, handler ports.EventHandler) {
	e.reclaimPending(ctx, streamKey, handler)

	for ctx.Err() == nil {
		streams, err := e.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    e.consumerGroup,
			Consumer: e.consumerName,
			Streams:  []string{streamKey, ">"},
			Count:    10,
			Block:    time.Second,
		}).Result()
		if err != nil {
			if e.readFailed(ctx, streamKey, err) {
				return
			}
			continue
		}

		// Process messages
		for _, stream := range streams {
			for _, message := range stream.Messages {
				if e.processMessage(ctx, streamKey, message, handler) {
					e.ack(ctx, streamKey, message.ID)
				}
			}
		}
	}
}

// reclaimPending takes over entries of the consumer group that were delivered
// but never acknowledged, such as requests a stopped process had refused.
func (e *StreamsEventBus) reclaimPending(ctx context.Context, streamKey string, handler ports.EventHandler) {
	start := "0-0"
	for ctx.Err() == nil {
		messages, next, err := e.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   streamKey,
			Group:    e.consumerGroup,
			Consumer: e.consumerName,
			MinIdle:  e.claimMinIdle,
			Start:    start,
			Count:    10,
		}).Result()
		if err != nil {
			if ctx.Err() == nil {
				e.logger.Error("failed to claim pending entries",
					zap.String("stream", streamKey),
					zap.Error(err))
			}
			return
		}

		for _, message := range messages {
			e.logger.Info("claimed pending entry",
				zap.String("stream", streamKey),
				zap.String("message_id", message.ID))
			if e.processMessage(ctx, streamKey, message, handler) {
				e.ack(ctx, streamKey, message.ID)
			}
		}

		if next == "" || next == "0-0" {
			return
		}
		start = next
	}
}

// readBroadcast reads every event added after the subscription started
func (e *StreamsEventBus) readBroadcast(ctx context.Context, streamKey, lastID string, handler ports.EventHandler) {
	for ctx.Err() == nil {
		streams, err := e.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{streamKey, lastID},
			Count:   10,
			Block:   time.Second,
		}).Result()
		if err != nil {
			if e.readFailed(ctx, streamKey, err) {
				return
			}
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				lastID = message.ID
				e.processMessage(ctx, streamKey, message, handler)
			}
		}
	}
}

// readFailed logs a read error and reports whether the reader should stop.
func (e *StreamsEventBus) readFailed(ctx context.Context, streamKey string, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	if errors.Is(err, redis.Nil) {
		// No new messages
		return false
	}
	if errors.Is(err, redis.ErrClosed) {
		return true
	}

	e.logger.Error("failed to read from stream",
		zap.String("stream", streamKey),
		zap.Error(err))

	select {
	case <-ctx.Done():
		return true
	case <-time.After(time.Second):
		return false
	}
}

// processMessage processes a single message from the stream and reports
// whether it was handled.
func (e *StreamsEventBus) processMessage(ctx context.Context, streamKey string, message redis.XMessage, handler ports.EventHandler) bool {
	// Extract event data
	data, ok := message.Values["data"].(string)
	if !ok {
		e.logger.Error("invalid message format",
			zap.String("stream", streamKey),
			zap.String("message_id", message.ID))
		return false
	}

	// Deserialize event
	var event domain.Event
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		e.logger.Error("failed to unmarshal event",
			zap.String("stream", streamKey),
			zap.String("message_id", message.ID),
			zap.Error(err))
		return false
	}

	// Call handler
	if err := handler(ctx, event); err != nil {
		e.logger.Error("handler error",
			zap.String("stream", streamKey),
			zap.String("message_id", message.ID),
			zap.Error(err))
		return false
	}

	return true
}

func (e *StreamsEventBus) ack(ctx context.Context, streamKey, messageID string) {
	if err := e.client.XAck(ctx, streamKey, e.consumerGroup, messageID).Err(); err != nil {
		e.logger.Error("failed to acknowledge message",
			zap.String("stream", streamKey),
			zap.String("message_id", messageID),
			zap.Error(err))
	}
}

// Unsubscribe stops every subscription on a topic
func (e *StreamsEventBus) Unsubscribe(ctx context.Context, topic string) error {
	e.mu.Lock()
	cancels := e.cancels[topic]
	delete(e.cancels, topic)
	e.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	return nil
}

// Close stops all subscriptions and waits for the readers to exit.
// The Redis client is closed by the caller.
func (e *StreamsEventBus) Close() error {
	e.mu.Lock()
	all := e.cancels
	e.cancels = make(map[string][]context.CancelFunc)
	e.mu.Unlock()

	for _, cancels := range all {
		for _, cancel := range cancels {
			cancel()
		}
	}
	e.wg.Wait()
	return nil
}

// getStreamKey returns the Redis stream key for a topic
func getStreamKey(topic string) string {
	return fmt.Sprintf("waypoint:events:%s", topic)
}
