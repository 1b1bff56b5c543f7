// Package feed carries trigger change events between the service and the
// room's devices over redis pub/sub. Delivery is at-least-once; consumers
// must be idempotent.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Raimguhinov/ring-go/pkg/logger"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	EventRinging   = "ringing"
	EventDismissed = "dismissed"
)

// Event is one trigger state change, as pushed to every subscribed device in
// the room.
type Event struct {
	Type        string     `json:"type"`
	TriggerID   uuid.UUID  `json:"trigger_id"`
	AlarmID     uuid.UUID  `json:"alarm_id"`
	RoomID      uuid.UUID  `json:"room_id"`
	TriggeredAt time.Time  `json:"triggered_at"`
	DismissedBy string     `json:"dismissed_by,omitempty"`
	DismissedAt *time.Time `json:"dismissed_at,omitempty"`
}

func channel(roomID uuid.UUID) string {
	return "ring:feed:" + roomID.String()
}

type Feed struct {
	client *redis.Client
	logger *logger.Logger
}

func New(client *redis.Client, logger *logger.Logger) *Feed {
	return &Feed{
		client: client,
		logger: logger,
	}
}

// Publish -.
func (f *Feed) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("feed - Publish - json.Marshal: %w", err)
	}

	if err := f.client.Publish(ctx, channel(e.RoomID), payload).Err(); err != nil {
		return fmt.Errorf("feed - Publish - client.Publish: %w", err)
	}

	f.logger.Debug("feed.Publish",
		logger.Query(e.Type+" "+e.TriggerID.String()),
	)
	return nil
}

// Subscribe opens the room channel and returns a channel of decoded events.
// The channel closes when ctx is done. Undecodable payloads are logged and
// skipped, never fatal.
func (f *Feed) Subscribe(ctx context.Context, roomID uuid.UUID) (<-chan Event, error) {
	sub := f.client.Subscribe(ctx, channel(roomID))

	// Force the subscription handshake so callers observe connection
	// failures here rather than on first receive.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("feed - Subscribe - sub.Receive: %w", err)
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		defer func() { _ = sub.Close() }()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					f.logger.Warn("feed.Subscribe bad payload", logger.Err(err))
					continue
				}
				select {
				case events <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}
