package alert

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/shopassist/watchd/internal/telemetry"
	"github.com/shopassist/watchd/internal/watcher"
)

// PubSubSink publishes alert events to a Google Cloud Pub/Sub topic as
// JSON. Consumers can filter on the "type" and "watcher_id" attributes
// without decoding the payload.
type PubSubSink struct {
	publisher *pubsub.Publisher
}

// NewPubSubSink builds a PubSubSink for the provided topic publisher.
func NewPubSubSink(publisher *pubsub.Publisher) (*PubSubSink, error) {
	if publisher == nil {
		return nil, fmt.Errorf("pubsub publisher is required")
	}
	return &PubSubSink{publisher: publisher}, nil
}

// Emit marshals the event and publishes it, blocking until the server
// acknowledges the message.
func (s *PubSubSink) Emit(ctx context.Context, event watcher.AlertEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal alert event: %w", err)
	}

	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"type":       string(event.Type),
			"watcher_id": event.WatcherID,
		},
	}
	result := s.publisher.Publish(ctx, msg)
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish alert event: %w", err)
	}
	telemetry.ObserveAlert(string(event.Type))
	return nil
}
