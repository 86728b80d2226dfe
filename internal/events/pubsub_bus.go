package events

import (
	"context"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
)

// PubSubEmitter publishes lifecycle events to a Google Cloud Pub/Sub
// topic for durable, at-least-once delivery to downstream consumers
// (billing, alerting) — an external collaborator per spec.md §1.
type PubSubEmitter struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubEmitter creates the topic if it does not already exist.
func NewPubSubEmitter(projectID, topicID string) (*PubSubEmitter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, err
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			client.Close()
			return nil, err
		}
	}

	topic.EnableMessageOrdering = true

	return &PubSubEmitter{client: client, topic: topic}, nil
}

// Emit publishes a lifecycle event. Publish failures are logged, not
// propagated — the monitor's enforcement action has already taken
// effect regardless of whether the notification lands.
func (e *PubSubEmitter) Emit(eventType, subject, userID string, data map[string]interface{}) {
	event := newLifecycleEvent(eventType, subject, userID, data)
	payload, err := event.JSON()
	if err != nil {
		slog.Error("events: marshal failed", "event_id", event.ID, "error", err)
		return
	}

	msg := &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"ce-type": event.Type,
			"ce-id":   event.ID,
		},
		OrderingKey: userID,
	}

	result := e.topic.Publish(context.Background(), msg)
	go func() {
		if _, err := result.Get(context.Background()); err != nil {
			slog.Error("events: publish failed", "event_id", event.ID, "error", err)
		}
	}()
}

func (e *PubSubEmitter) Close() error {
	e.topic.Stop()
	return e.client.Close()
}
