// Package events carries the live progress stream: every operation status
// transition is published as an event that display layers (console,
// websocket) can subscribe to without coupling to the executor.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// TopicStatusChanges is the topic operation transitions are published on.
const TopicStatusChanges = "operation.status-changes"

// StatusChange is one operation status transition.
type StatusChange struct {
	// OperationKey identifies the operation.
	OperationKey string `json:"operationKey"`
	// OldStatus is the state the operation left.
	OldStatus string `json:"oldStatus"`
	// NewStatus is the state the operation entered.
	NewStatus string `json:"newStatus"`
	// Timestamp is when the transition was observed.
	Timestamp time.Time `json:"timestamp"`
}

// Bus is an in-process publish/subscribe hub for progress events, backed by
// a Watermill gochannel Pub/Sub. Publishing never blocks the executor's
// critical section beyond the channel hand-off.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates a progress event bus logging through the given slog logger.
func NewBus(logger *slog.Logger) *Bus {
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		watermill.NewSlogLogger(logger),
	)
	return &Bus{pubsub: pubsub}
}

// Publish emits one status transition to all current subscribers.
func (b *Bus) Publish(change StatusChange) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshaling status change: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	return b.pubsub.Publish(TopicStatusChanges, msg)
}

// Subscribe returns a channel of decoded status changes. The channel closes
// when the context is cancelled or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context) (<-chan StatusChange, error) {
	messages, err := b.pubsub.Subscribe(ctx, TopicStatusChanges)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", TopicStatusChanges, err)
	}

	out := make(chan StatusChange)
	go func() {
		defer close(out)
		for msg := range messages {
			var change StatusChange
			if err := json.Unmarshal(msg.Payload, &change); err != nil {
				// A malformed payload is a programmer error; drop it rather
				// than wedge the subscriber.
				msg.Ack()
				continue
			}
			msg.Ack()
			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close shuts the bus down, closing all subscriber channels.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
