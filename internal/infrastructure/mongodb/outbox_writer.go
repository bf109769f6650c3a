package mongodb

import (
	"context"
	"fmt"
	"strings"

	"github.com/wms-platform/nursery-fulfillment/internal/domain"
	"github.com/wms-platform/nursery-fulfillment/pkg/cloudevents"
	"github.com/wms-platform/nursery-fulfillment/pkg/kafka"
	"github.com/wms-platform/nursery-fulfillment/pkg/outbox"
	outboxMongo "github.com/wms-platform/nursery-fulfillment/pkg/outbox/mongodb"
)

// OutboxWriter turns domain events into CloudEvents and stores them in the
// outbox with the caller's transaction.
type OutboxWriter struct {
	repo         *outboxMongo.OutboxRepository
	eventFactory *cloudevents.EventFactory
}

// NewOutboxWriter creates an OutboxWriter over the outbox collection of db
func NewOutboxWriter(repo *outboxMongo.OutboxRepository, eventFactory *cloudevents.EventFactory) *OutboxWriter {
	return &OutboxWriter{repo: repo, eventFactory: eventFactory}
}

// Write stores events for one aggregate. ctx must carry the transaction.
func (w *OutboxWriter) Write(ctx context.Context, aggregateID, aggregateType, subjectPrefix string, events []domain.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	outboxEvents := make([]*outbox.OutboxEvent, 0, len(events))
	for _, event := range events {
		cloudEvent := w.eventFactory.CreateOrderEvent(ctx,
			event.EventType(),
			subjectPrefix+"/"+aggregateID,
			orderIDOf(event),
			event,
		)

		outboxEvent, err := outbox.NewOutboxEventFromCloudEvent(aggregateID, aggregateType, topicFor(event.EventType()), cloudEvent)
		if err != nil {
			return fmt.Errorf("failed to create outbox event: %w", err)
		}
		outboxEvents = append(outboxEvents, outboxEvent)
	}

	if err := w.repo.SaveAll(ctx, outboxEvents); err != nil {
		return fmt.Errorf("failed to save outbox events: %w", err)
	}
	return nil
}

func topicFor(eventType string) string {
	switch {
	case strings.HasPrefix(eventType, "nursery.order."):
		return kafka.Topics.OrdersEvents
	case strings.HasPrefix(eventType, "nursery.picking."):
		return kafka.Topics.PickingEvents
	case strings.HasPrefix(eventType, "nursery.packing."):
		return kafka.Topics.PackingEvents
	default:
		return kafka.Topics.DispatchEvents
	}
}

// orderIDOf returns the order an event is about, empty for run-level events
func orderIDOf(event domain.DomainEvent) string {
	switch e := event.(type) {
	case *domain.OrderCreatedEvent:
		return e.OrderID
	case *domain.OrderTrolleysEstimatedEvent:
		return e.OrderID
	case *domain.PickListGeneratedEvent:
		return e.OrderID
	case *domain.ItemPickedEvent:
		return e.OrderID
	case *domain.ItemShortEvent:
		return e.OrderID
	case *domain.BatchSubstitutedEvent:
		return e.OrderID
	case *domain.PickListAssignedEvent:
		return e.OrderID
	case *domain.PickListCompletedEvent:
		return e.OrderID
	case *domain.PackingStartedEvent:
		return e.OrderID
	case *domain.PackingCompletedEvent:
		return e.OrderID
	case *domain.PackingVerifiedEvent:
		return e.OrderID
	case *domain.OrderAddedToRunEvent:
		return e.OrderID
	case *domain.OrderRemovedFromRunEvent:
		return e.OrderID
	case *domain.DeliveryItemStatusChangedEvent:
		return e.OrderID
	default:
		return ""
	}
}
