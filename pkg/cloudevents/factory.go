package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wms-platform/nursery-fulfillment/pkg/logging"
)

// EventFactory creates CloudEvents for fulfillment domain events
type EventFactory struct {
	source string
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source}
}

// CreateEvent creates a new CloudEvent. The correlation id of the request,
// when present on ctx, is carried as an extension.
func (f *EventFactory) CreateEvent(ctx context.Context, eventType, subject string, data any) *CloudEvent {
	event := &CloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
	}

	if v, ok := ctx.Value(logging.CorrelationIDKey).(string); ok {
		event.CorrelationID = v
	}

	return event
}

// CreateOrderEvent creates an event about an order and tags it with the order id
func (f *EventFactory) CreateOrderEvent(ctx context.Context, eventType, subject, orderID string, data any) *CloudEvent {
	event := f.CreateEvent(ctx, eventType, subject, data)
	event.OrderID = orderID
	return event
}
