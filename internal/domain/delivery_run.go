package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// RunStatus represents the status of a delivery run
type RunStatus string

const (
	RunStatusPlanned   RunStatus = "planned"
	RunStatusLoading   RunStatus = "loading"
	RunStatusInTransit RunStatus = "in_transit"
	RunStatusCompleted RunStatus = "completed"
)

var runTransitions = map[RunStatus][]RunStatus{
	RunStatusPlanned:   {RunStatusLoading, RunStatusInTransit},
	RunStatusLoading:   {RunStatusInTransit},
	RunStatusInTransit: {RunStatusCompleted},
}

// DeliveryItemStatus represents the status of one drop on a run
type DeliveryItemStatus string

const (
	DeliveryItemPending   DeliveryItemStatus = "pending"
	DeliveryItemDelivered DeliveryItemStatus = "delivered"
	DeliveryItemFailed    DeliveryItemStatus = "failed"
)

// TrolleySource records where a delivery item's trolley count came from
type TrolleySource string

const (
	TrolleySourceExplicit TrolleySource = "explicit"
	TrolleySourcePacking  TrolleySource = "packing"
	TrolleySourceEstimate TrolleySource = "estimate"
	TrolleySourceNone     TrolleySource = "none"
)

// MoveDirection for reordering stops
type MoveDirection string

const (
	MoveUp   MoveDirection = "up"
	MoveDown MoveDirection = "down"
)

// DeliveryItem is one order loaded on a run
type DeliveryItem struct {
	ItemID            string             `bson:"itemId"`
	RunID             string             `bson:"runId"`
	OrderID           string             `bson:"orderId"`
	SequenceNumber    int                `bson:"sequenceNumber"`
	TrolleysDelivered int                `bson:"trolleysDelivered"`
	TrolleysSource    TrolleySource      `bson:"trolleysSource"`
	Status            DeliveryItemStatus `bson:"status"`
	DeliveredAt       *time.Time         `bson:"deliveredAt,omitempty"`
	Notes             string             `bson:"notes,omitempty"`
}

// DeliveryRun is the aggregate root for orders dispatched together by one
// vehicle on one date. Items are embedded so reordering is a single write.
type DeliveryRun struct {
	RunID        string         `bson:"runId"`
	RunDate      time.Time      `bson:"runDate"`
	HaulierID    string         `bson:"haulierId"`
	VehicleID    string         `bson:"vehicleId,omitempty"`
	Status       RunStatus      `bson:"status"`
	Items        []DeliveryItem `bson:"items"`
	DispatchedAt *time.Time     `bson:"dispatchedAt,omitempty"`
	CompletedAt  *time.Time     `bson:"completedAt,omitempty"`
	Version      int64          `bson:"version"`
	CreatedAt    time.Time      `bson:"createdAt"`
	UpdatedAt    time.Time      `bson:"updatedAt"`
	DomainEvents []DomainEvent  `bson:"-"`
}

// ResolveTrolleys picks the trolley count for an order joining a run. An
// explicit value, zero included, is used verbatim; then the packed count;
// then the order's estimate.
func ResolveTrolleys(explicit *int, packing *OrderPacking, order *Order) (int, TrolleySource) {
	if explicit != nil {
		return *explicit, TrolleySourceExplicit
	}
	if packing != nil && packing.TrolleysUsed != nil {
		return *packing.TrolleysUsed, TrolleySourcePacking
	}
	if order != nil && order.TrolleysEstimated != nil {
		return *order.TrolleysEstimated, TrolleySourceEstimate
	}
	return 0, TrolleySourceNone
}

// ResolveCapacity returns the vehicle capacity when known, else the
// haulier default
func ResolveCapacity(vehicle *Vehicle, haulier *Haulier) int {
	if vehicle != nil && vehicle.Capacity != nil {
		return *vehicle.Capacity
	}
	if haulier != nil {
		return haulier.DefaultCapacity
	}
	return 0
}

// NewDeliveryRun creates a planned run
func NewDeliveryRun(runID string, runDate time.Time, haulierID, vehicleID string) (*DeliveryRun, error) {
	if haulierID == "" {
		return nil, fmt.Errorf("%w: haulier is required", ErrInvalidRun)
	}

	now := time.Now().UTC()
	run := &DeliveryRun{
		RunID:        runID,
		RunDate:      runDate,
		HaulierID:    haulierID,
		VehicleID:    vehicleID,
		Status:       RunStatusPlanned,
		Items:        make([]DeliveryItem, 0),
		CreatedAt:    now,
		UpdatedAt:    now,
		DomainEvents: make([]DomainEvent, 0),
	}

	run.AddDomainEvent(&DeliveryRunCreatedEvent{
		RunID:     runID,
		RunDate:   runDate,
		HaulierID: haulierID,
		VehicleID: vehicleID,
		CreatedAt: now,
	})
	return run, nil
}

// IsActive reports whether the run still holds its orders
func (r *DeliveryRun) IsActive() bool {
	return r.Status != RunStatusCompleted
}

func (r *DeliveryRun) editable() error {
	if r.Status != RunStatusPlanned && r.Status != RunStatusLoading {
		return fmt.Errorf("%w: run %s is %s", ErrRunNotEditable, r.RunID, r.Status)
	}
	return nil
}

// ItemForOrder returns the item carrying orderID, or nil
func (r *DeliveryRun) ItemForOrder(orderID string) *DeliveryItem {
	for i := range r.Items {
		if r.Items[i].OrderID == orderID {
			return &r.Items[i]
		}
	}
	return nil
}

func (r *DeliveryRun) item(itemID string) (*DeliveryItem, error) {
	for i := range r.Items {
		if r.Items[i].ItemID == itemID {
			return &r.Items[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDeliveryItemNotFound, itemID)
}

// AddOrder appends an order after the current last stop
func (r *DeliveryRun) AddOrder(itemID, orderID string, trolleys int, source TrolleySource) (*DeliveryItem, error) {
	if err := r.editable(); err != nil {
		return nil, err
	}
	if trolleys < 0 {
		return nil, fmt.Errorf("%w: trolleys delivered cannot be negative", ErrInvalidQuantity)
	}
	if r.ItemForOrder(orderID) != nil {
		return nil, fmt.Errorf("%w: %s", ErrOrderAlreadyOnRun, orderID)
	}

	seq := 0
	for _, item := range r.Items {
		seq = max(seq, item.SequenceNumber)
	}
	seq++

	now := time.Now().UTC()
	r.Items = append(r.Items, DeliveryItem{
		ItemID:            itemID,
		RunID:             r.RunID,
		OrderID:           orderID,
		SequenceNumber:    seq,
		TrolleysDelivered: trolleys,
		TrolleysSource:    source,
		Status:            DeliveryItemPending,
	})
	r.UpdatedAt = now

	r.AddDomainEvent(&OrderAddedToRunEvent{
		RunID:             r.RunID,
		OrderID:           orderID,
		ItemID:            itemID,
		SequenceNumber:    seq,
		TrolleysDelivered: trolleys,
		TrolleysSource:    source,
		AddedAt:           now,
	})

	return &r.Items[len(r.Items)-1], nil
}

// RemoveOrder takes an order off the run. Remaining sequence numbers are
// left as they are.
func (r *DeliveryRun) RemoveOrder(orderID string) error {
	if err := r.editable(); err != nil {
		return err
	}

	for i := range r.Items {
		if r.Items[i].OrderID == orderID {
			r.Items = append(r.Items[:i], r.Items[i+1:]...)
			now := time.Now().UTC()
			r.UpdatedAt = now
			r.AddDomainEvent(&OrderRemovedFromRunEvent{RunID: r.RunID, OrderID: orderID, RemovedAt: now})
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrOrderNotOnRun, orderID)
}

// MoveItem swaps an item with its neighbour in sequence order
func (r *DeliveryRun) MoveItem(itemID string, direction MoveDirection) error {
	ordered := r.SortedItems()

	pos := -1
	for i := range ordered {
		if ordered[i].ItemID == itemID {
			pos = i
			break
		}
	}
	if pos < 0 {
		return fmt.Errorf("%w: %s", ErrDeliveryItemNotFound, itemID)
	}

	var neighbour int
	switch direction {
	case MoveUp:
		neighbour = pos - 1
	case MoveDown:
		neighbour = pos + 1
	default:
		return fmt.Errorf("%w: unknown direction %q", ErrCannotMove, direction)
	}
	if neighbour < 0 || neighbour >= len(ordered) {
		return fmt.Errorf("%w: %s cannot move %s", ErrCannotMove, itemID, direction)
	}

	return r.SwapItems(itemID, ordered[neighbour].ItemID)
}

// SwapItems exchanges the sequence numbers of two items
func (r *DeliveryRun) SwapItems(itemA, itemB string) error {
	if err := r.editable(); err != nil {
		return err
	}
	if itemA == itemB {
		return fmt.Errorf("%w: cannot swap an item with itself", ErrCannotMove)
	}

	a, err := r.item(itemA)
	if err != nil {
		return err
	}
	b, err := r.item(itemB)
	if err != nil {
		return err
	}

	a.SequenceNumber, b.SequenceNumber = b.SequenceNumber, a.SequenceNumber

	now := time.Now().UTC()
	r.UpdatedAt = now
	r.AddDomainEvent(&DeliveryItemsReorderedEvent{
		RunID:       r.RunID,
		ItemIDs:     [2]string{a.ItemID, b.ItemID},
		Sequences:   [2]int{a.SequenceNumber, b.SequenceNumber},
		ReorderedAt: now,
	})
	return nil
}

// SortedItems returns a copy of the items in sequence order
func (r *DeliveryRun) SortedItems() []DeliveryItem {
	items := make([]DeliveryItem, len(r.Items))
	copy(items, r.Items)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].SequenceNumber < items[j].SequenceNumber
	})
	return items
}

// TotalTrolleys sums the trolleys of every item on the run
func (r *DeliveryRun) TotalTrolleys() int {
	total := 0
	for _, item := range r.Items {
		total += item.TrolleysDelivered
	}
	return total
}

// FillPercentage is the unclamped share of capacity in use. It exceeds 100
// when the run is overloaded.
func (r *DeliveryRun) FillPercentage(capacity int) int {
	if capacity <= 0 {
		return 0
	}
	return int(math.Round(float64(r.TotalTrolleys()) / float64(capacity) * 100))
}

// DisplayFill is FillPercentage clamped to 0..100
func (r *DeliveryRun) DisplayFill(capacity int) int {
	return min(max(r.FillPercentage(capacity), 0), 100)
}

// OrderIDs returns the orders on the run in sequence order
func (r *DeliveryRun) OrderIDs() []string {
	ids := make([]string, 0, len(r.Items))
	for _, item := range r.SortedItems() {
		ids = append(ids, item.OrderID)
	}
	return ids
}

// TransitionTo moves the run to status. A run needs at least one item to
// leave the yard and every drop must be resolved before it completes.
func (r *DeliveryRun) TransitionTo(status RunStatus) error {
	allowed := false
	for _, next := range runTransitions[r.Status] {
		if next == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: run %s cannot move from %s to %s", ErrInvalidTransition, r.RunID, r.Status, status)
	}

	now := time.Now().UTC()
	switch status {
	case RunStatusInTransit:
		if len(r.Items) == 0 {
			return ErrEmptyRun
		}
		r.DispatchedAt = &now
	case RunStatusCompleted:
		for _, item := range r.Items {
			if item.Status == DeliveryItemPending {
				return fmt.Errorf("%w: order %s has not been marked delivered or failed", ErrInvalidTransition, item.OrderID)
			}
		}
		r.CompletedAt = &now
	}

	from := r.Status
	r.Status = status
	r.UpdatedAt = now

	r.AddDomainEvent(&DeliveryRunStatusChangedEvent{
		RunID:     r.RunID,
		From:      from,
		To:        status,
		OrderIDs:  r.OrderIDs(),
		ChangedAt: now,
	})
	return nil
}

// MarkItemDelivered records a successful drop
func (r *DeliveryRun) MarkItemDelivered(itemID string) error {
	return r.resolveItem(itemID, DeliveryItemDelivered, "")
}

// MarkItemFailed records a failed drop
func (r *DeliveryRun) MarkItemFailed(itemID, notes string) error {
	return r.resolveItem(itemID, DeliveryItemFailed, notes)
}

func (r *DeliveryRun) resolveItem(itemID string, status DeliveryItemStatus, notes string) error {
	if r.Status != RunStatusInTransit {
		return fmt.Errorf("%w: run %s is %s, not in transit", ErrInvalidTransition, r.RunID, r.Status)
	}
	item, err := r.item(itemID)
	if err != nil {
		return err
	}
	if item.Status != DeliveryItemPending {
		return fmt.Errorf("%w: item %s is already %s", ErrInvalidTransition, itemID, item.Status)
	}

	now := time.Now().UTC()
	item.Status = status
	item.Notes = notes
	if status == DeliveryItemDelivered {
		item.DeliveredAt = &now
	}
	r.UpdatedAt = now

	r.AddDomainEvent(&DeliveryItemStatusChangedEvent{
		RunID:     r.RunID,
		ItemID:    itemID,
		OrderID:   item.OrderID,
		Status:    status,
		ChangedAt: now,
	})
	return nil
}

// OrdersWithItemStatus returns the orders whose item has status
func (r *DeliveryRun) OrdersWithItemStatus(status DeliveryItemStatus) []string {
	var ids []string
	for _, item := range r.SortedItems() {
		if item.Status == status {
			ids = append(ids, item.OrderID)
		}
	}
	return ids
}

// AddDomainEvent adds a domain event
func (r *DeliveryRun) AddDomainEvent(event DomainEvent) {
	r.DomainEvents = append(r.DomainEvents, event)
}

// ClearDomainEvents clears all domain events
func (r *DeliveryRun) ClearDomainEvents() {
	r.DomainEvents = make([]DomainEvent, 0)
}

// GetDomainEvents returns all domain events
func (r *DeliveryRun) GetDomainEvents() []DomainEvent {
	return r.DomainEvents
}
