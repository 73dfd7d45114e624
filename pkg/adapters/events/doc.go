// Package events provides event bus implementations.
//
// Implementations:
//   - redis: Redis Streams, consumer groups for queue topics
//   - memory: In-process, ordered delivery per subscription
package events
