package domain

import "time"

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// OrderCreatedEvent is published when an order and its lines are stored
type OrderCreatedEvent struct {
	OrderID           string    `json:"orderId"`
	OrderNumber       string    `json:"orderNumber"`
	CustomerID        string    `json:"customerId"`
	LineCount         int       `json:"lineCount"`
	TotalUnits        int       `json:"totalUnits"`
	TrolleysEstimated *int      `json:"trolleysEstimated"`
	CreatedAt         time.Time `json:"createdAt"`
}

func (e *OrderCreatedEvent) EventType() string     { return "nursery.order.created" }
func (e *OrderCreatedEvent) OccurredAt() time.Time { return e.CreatedAt }

// OrderTrolleysEstimatedEvent is published when an estimate is stamped on an order
type OrderTrolleysEstimatedEvent struct {
	OrderID              string    `json:"orderId"`
	TotalTrolleys        float64   `json:"totalTrolleys"`
	TrolleysEstimated    int       `json:"trolleysEstimated"`
	LinesWithoutQuantity int       `json:"linesWithoutQuantity"`
	EstimatedAt          time.Time `json:"estimatedAt"`
}

func (e *OrderTrolleysEstimatedEvent) EventType() string     { return "nursery.order.trolleys-estimated" }
func (e *OrderTrolleysEstimatedEvent) OccurredAt() time.Time { return e.EstimatedAt }

// PickListGeneratedEvent is published when a pick list is created for an order
type PickListGeneratedEvent struct {
	PickListID    string    `json:"pickListId"`
	OrderID       string    `json:"orderId"`
	ItemCount     int       `json:"itemCount"`
	TargetUnits   int       `json:"targetUnits"`
	ReservedUnits int       `json:"reservedUnits"`
	GeneratedAt   time.Time `json:"generatedAt"`
}

func (e *PickListGeneratedEvent) EventType() string     { return "nursery.picking.list-generated" }
func (e *PickListGeneratedEvent) OccurredAt() time.Time { return e.GeneratedAt }

// ItemPickedEvent is published when an item is picked at its full target
type ItemPickedEvent struct {
	PickListID  string            `json:"pickListId"`
	OrderID     string            `json:"orderId"`
	ItemID      string            `json:"itemId"`
	SkuID       string            `json:"skuId"`
	Quantity    int               `json:"quantity"`
	Allocations []BatchAllocation `json:"allocations"`
	PickedAt    time.Time         `json:"pickedAt"`
}

func (e *ItemPickedEvent) EventType() string     { return "nursery.picking.item-picked" }
func (e *ItemPickedEvent) OccurredAt() time.Time { return e.PickedAt }

// ItemShortEvent is published when an item resolves below its target
type ItemShortEvent struct {
	PickListID string    `json:"pickListId"`
	OrderID    string    `json:"orderId"`
	ItemID     string    `json:"itemId"`
	SkuID      string    `json:"skuId"`
	TargetQty  int       `json:"targetQty"`
	PickedQty  int       `json:"pickedQty"`
	ReportedAt time.Time `json:"reportedAt"`
}

func (e *ItemShortEvent) EventType() string     { return "nursery.picking.item-short" }
func (e *ItemShortEvent) OccurredAt() time.Time { return e.ReportedAt }

// BatchSubstitutedEvent is published when a picker overrides the FEFO choice
type BatchSubstitutedEvent struct {
	PickListID    string    `json:"pickListId"`
	OrderID       string    `json:"orderId"`
	ItemID        string    `json:"itemId"`
	BatchID       string    `json:"batchId"`
	Quantity      int       `json:"quantity"`
	Reason        string    `json:"reason"`
	SubstitutedAt time.Time `json:"substitutedAt"`
}

func (e *BatchSubstitutedEvent) EventType() string     { return "nursery.picking.batch-substituted" }
func (e *BatchSubstitutedEvent) OccurredAt() time.Time { return e.SubstitutedAt }

// PickListAssignedEvent is published when a pick list is given to a team
type PickListAssignedEvent struct {
	PickListID string    `json:"pickListId"`
	OrderID    string    `json:"orderId"`
	TeamID     string    `json:"teamId,omitempty"`
	UserID     string    `json:"userId,omitempty"`
	AssignedAt time.Time `json:"assignedAt"`
}

func (e *PickListAssignedEvent) EventType() string     { return "nursery.picking.list-assigned" }
func (e *PickListAssignedEvent) OccurredAt() time.Time { return e.AssignedAt }

// PickListCompletedEvent is published when picking of an order is closed
type PickListCompletedEvent struct {
	PickListID  string    `json:"pickListId"`
	OrderID     string    `json:"orderId"`
	TargetUnits int       `json:"targetUnits"`
	PickedUnits int       `json:"pickedUnits"`
	ShortItems  int       `json:"shortItems"`
	CompletedAt time.Time `json:"completedAt"`
}

func (e *PickListCompletedEvent) EventType() string     { return "nursery.picking.list-completed" }
func (e *PickListCompletedEvent) OccurredAt() time.Time { return e.CompletedAt }

// PackingStartedEvent is published when packing of an order begins
type PackingStartedEvent struct {
	PackingID string    `json:"packingId"`
	OrderID   string    `json:"orderId"`
	StartedAt time.Time `json:"startedAt"`
}

func (e *PackingStartedEvent) EventType() string     { return "nursery.packing.started" }
func (e *PackingStartedEvent) OccurredAt() time.Time { return e.StartedAt }

// PackingCompletedEvent is published when an order is packed onto trolleys
type PackingCompletedEvent struct {
	PackingID    string    `json:"packingId"`
	OrderID      string    `json:"orderId"`
	TrolleysUsed int       `json:"trolleysUsed"`
	CompletedAt  time.Time `json:"completedAt"`
}

func (e *PackingCompletedEvent) EventType() string     { return "nursery.packing.completed" }
func (e *PackingCompletedEvent) OccurredAt() time.Time { return e.CompletedAt }

// PackingVerifiedEvent is published when a supervisor verifies packing
type PackingVerifiedEvent struct {
	PackingID  string    `json:"packingId"`
	OrderID    string    `json:"orderId"`
	VerifiedBy string    `json:"verifiedBy"`
	VerifiedAt time.Time `json:"verifiedAt"`
}

func (e *PackingVerifiedEvent) EventType() string     { return "nursery.packing.verified" }
func (e *PackingVerifiedEvent) OccurredAt() time.Time { return e.VerifiedAt }

// DeliveryRunCreatedEvent is published when a run is planned
type DeliveryRunCreatedEvent struct {
	RunID     string    `json:"runId"`
	RunDate   time.Time `json:"runDate"`
	HaulierID string    `json:"haulierId"`
	VehicleID string    `json:"vehicleId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (e *DeliveryRunCreatedEvent) EventType() string     { return "nursery.dispatch.run-created" }
func (e *DeliveryRunCreatedEvent) OccurredAt() time.Time { return e.CreatedAt }

// OrderAddedToRunEvent is published when an order is loaded onto a run
type OrderAddedToRunEvent struct {
	RunID             string        `json:"runId"`
	OrderID           string        `json:"orderId"`
	ItemID            string        `json:"itemId"`
	SequenceNumber    int           `json:"sequenceNumber"`
	TrolleysDelivered int           `json:"trolleysDelivered"`
	TrolleysSource    TrolleySource `json:"trolleysSource"`
	AddedAt           time.Time     `json:"addedAt"`
}

func (e *OrderAddedToRunEvent) EventType() string     { return "nursery.dispatch.order-added" }
func (e *OrderAddedToRunEvent) OccurredAt() time.Time { return e.AddedAt }

// OrderRemovedFromRunEvent is published when an order is taken off a run
type OrderRemovedFromRunEvent struct {
	RunID     string    `json:"runId"`
	OrderID   string    `json:"orderId"`
	RemovedAt time.Time `json:"removedAt"`
}

func (e *OrderRemovedFromRunEvent) EventType() string     { return "nursery.dispatch.order-removed" }
func (e *OrderRemovedFromRunEvent) OccurredAt() time.Time { return e.RemovedAt }

// DeliveryItemsReorderedEvent is published when two stops swap position
type DeliveryItemsReorderedEvent struct {
	RunID       string    `json:"runId"`
	ItemIDs     [2]string `json:"itemIds"`
	Sequences   [2]int    `json:"sequences"`
	ReorderedAt time.Time `json:"reorderedAt"`
}

func (e *DeliveryItemsReorderedEvent) EventType() string     { return "nursery.dispatch.items-reordered" }
func (e *DeliveryItemsReorderedEvent) OccurredAt() time.Time { return e.ReorderedAt }

// DeliveryRunStatusChangedEvent is published on every run transition
type DeliveryRunStatusChangedEvent struct {
	RunID     string    `json:"runId"`
	From      RunStatus `json:"from"`
	To        RunStatus `json:"to"`
	OrderIDs  []string  `json:"orderIds"`
	ChangedAt time.Time `json:"changedAt"`
}

func (e *DeliveryRunStatusChangedEvent) EventType() string {
	return "nursery.dispatch.run-status-changed"
}
func (e *DeliveryRunStatusChangedEvent) OccurredAt() time.Time { return e.ChangedAt }

// DeliveryItemStatusChangedEvent is published when a drop is delivered or fails
type DeliveryItemStatusChangedEvent struct {
	RunID     string             `json:"runId"`
	ItemID    string             `json:"itemId"`
	OrderID   string             `json:"orderId"`
	Status    DeliveryItemStatus `json:"status"`
	ChangedAt time.Time          `json:"changedAt"`
}

func (e *DeliveryItemStatusChangedEvent) EventType() string {
	return "nursery.dispatch.item-status-changed"
}
func (e *DeliveryItemStatusChangedEvent) OccurredAt() time.Time { return e.ChangedAt }
