package outbox

import (
	"context"

	"github.com/wms-platform/nursery-fulfillment/pkg/cloudevents"
)

// Repository defines the interface for outbox event persistence
type Repository interface {
	// SaveAll saves events in one operation. Called with the transaction
	// context of the aggregate write.
	SaveAll(ctx context.Context, events []*OutboxEvent) error

	// FindUnpublished retrieves unpublished, retryable events oldest first
	FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error)

	// MarkPublished marks an event as published
	MarkPublished(ctx context.Context, eventID string) error

	// IncrementRetry increments the retry count and records the last error
	IncrementRetry(ctx context.Context, eventID string, errorMsg string) error

	// FindByAggregateID retrieves all events for a specific aggregate
	FindByAggregateID(ctx context.Context, aggregateID string) ([]*OutboxEvent, error)
}

// EventPublisher is the transport the outbox drains into
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event *cloudevents.CloudEvent) error
}
