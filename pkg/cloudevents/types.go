package cloudevents

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types published by the fulfillment service
const (
	OrderCreated           = "nursery.order.created"
	OrderTrolleysEstimated = "nursery.order.trolleys-estimated"

	PickListGenerated = "nursery.picking.list-generated"
	ItemPicked        = "nursery.picking.item-picked"
	ItemShort         = "nursery.picking.item-short"
	BatchSubstituted  = "nursery.picking.batch-substituted"
	PickListAssigned  = "nursery.picking.list-assigned"
	PickListCompleted = "nursery.picking.list-completed"

	PackingStarted   = "nursery.packing.started"
	PackingCompleted = "nursery.packing.completed"
	PackingVerified  = "nursery.packing.verified"

	DeliveryRunCreated        = "nursery.dispatch.run-created"
	OrderAddedToRun           = "nursery.dispatch.order-added"
	OrderRemovedFromRun       = "nursery.dispatch.order-removed"
	DeliveryItemsReordered    = "nursery.dispatch.items-reordered"
	DeliveryRunStatusChanged  = "nursery.dispatch.run-status-changed"
	DeliveryItemStatusChanged = "nursery.dispatch.item-status-changed"
)

// SourceFulfillment is the CloudEvents source of everything this service emits
const SourceFulfillment = "/nursery/fulfillment-service"

// CloudEvent is a CloudEvents v1.0 envelope
type CloudEvent struct {
	SpecVersion     string    `json:"specversion"`
	Type            string    `json:"type"`
	Source          string    `json:"source"`
	Subject         string    `json:"subject,omitempty"`
	ID              string    `json:"id"`
	Time            time.Time `json:"time"`
	DataContentType string    `json:"datacontenttype"`
	Data            any       `json:"data"`

	CorrelationID string `json:"nurserycorrelationid,omitempty"`
	OrderID       string `json:"nurseryorderid,omitempty"`
}

// DataAs decodes the event payload into out. Payloads read back from the
// outbox or from Kafka are generic maps until decoded.
func (e *CloudEvent) DataAs(out any) error {
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", e.Type, err)
	}
	return nil
}
