package domain

import (
	"fmt"
	"strings"
	"time"
)

// PickItemStatus represents the status of a pick item
type PickItemStatus string

const (
	PickItemPending     PickItemStatus = "pending"
	PickItemPicked      PickItemStatus = "picked"
	PickItemShort       PickItemStatus = "short"
	PickItemSubstituted PickItemStatus = "substituted"
)

// PickListStatus is derived from the item states
type PickListStatus string

const (
	PickListPending    PickListStatus = "pending"
	PickListInProgress PickListStatus = "in_progress"
	PickListCompleted  PickListStatus = "completed"
)

// PickItem is the demand of one order line on a pick list
type PickItem struct {
	ItemID      string            `bson:"itemId"`
	LineID      string            `bson:"lineId"`
	SkuID       string            `bson:"skuId"`
	SizeID      string            `bson:"sizeId"`
	Family      string            `bson:"family"`
	TargetQty   int               `bson:"targetQty"`
	PickedQty   int               `bson:"pickedQty"`
	Status      PickItemStatus    `bson:"status"`
	Allocations []BatchAllocation `bson:"allocations"`
	Reserved    []BatchAllocation `bson:"reserved"` // held in the batch store, not yet consumed
	PickedAt    *time.Time        `bson:"pickedAt,omitempty"`
	Notes       string            `bson:"notes,omitempty"`
}

// IsTerminal reports whether the item has been resolved
func (i PickItem) IsTerminal() bool {
	return i.Status != PickItemPending
}

// ReservedQty is the quantity currently held for the item
func (i PickItem) ReservedQty() int {
	return SumAllocations(i.Reserved)
}

// ReservedIn returns the quantity held for the item in one batch
func (i PickItem) ReservedIn(batchID string) int {
	qty := 0
	for _, r := range i.Reserved {
		if r.BatchID == batchID {
			qty += r.Quantity
		}
	}
	return qty
}

// PickList is the aggregate root for picking one order
type PickList struct {
	PickListID     string         `bson:"pickListId"`
	OrderID        string         `bson:"orderId"`
	Items          []PickItem     `bson:"items"`
	AssignedTeamID string         `bson:"assignedTeamId,omitempty"`
	AssignedTo     string         `bson:"assignedTo,omitempty"`
	Sequence       int            `bson:"sequence"`
	Status         PickListStatus `bson:"status"`
	CompletedAt    *time.Time     `bson:"completedAt,omitempty"`
	Version        int64          `bson:"version"`
	CreatedAt      time.Time      `bson:"createdAt"`
	UpdatedAt      time.Time      `bson:"updatedAt"`
	DomainEvents   []DomainEvent  `bson:"-"`
}

// NewPickList creates a pick list in pending state
func NewPickList(pickListID, orderID string, sequence int, items []PickItem) (*PickList, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: pick list must have at least one item", ErrInvalidQuantity)
	}

	targetUnits, reservedUnits := 0, 0
	for i := range items {
		if items[i].TargetQty <= 0 {
			return nil, fmt.Errorf("%w: item %s target must be positive", ErrInvalidQuantity, items[i].ItemID)
		}
		if items[i].ReservedQty() > items[i].TargetQty {
			return nil, fmt.Errorf("%w: item %s", ErrQuantityExceedsTarget, items[i].ItemID)
		}
		items[i].Status = PickItemPending
		items[i].PickedQty = 0
		targetUnits += items[i].TargetQty
		reservedUnits += items[i].ReservedQty()
	}

	now := time.Now().UTC()
	list := &PickList{
		PickListID:   pickListID,
		OrderID:      orderID,
		Items:        items,
		Sequence:     sequence,
		Status:       PickListPending,
		CreatedAt:    now,
		UpdatedAt:    now,
		DomainEvents: make([]DomainEvent, 0),
	}

	list.AddDomainEvent(&PickListGeneratedEvent{
		PickListID:    pickListID,
		OrderID:       orderID,
		ItemCount:     len(items),
		TargetUnits:   targetUnits,
		ReservedUnits: reservedUnits,
		GeneratedAt:   now,
	})

	return list, nil
}

// Item returns the item with itemID
func (l *PickList) Item(itemID string) (*PickItem, error) {
	for i := range l.Items {
		if l.Items[i].ItemID == itemID {
			return &l.Items[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrPickItemNotFound, itemID)
}

func (l *PickList) pendingItem(itemID string) (*PickItem, error) {
	item, err := l.Item(itemID)
	if err != nil {
		return nil, err
	}
	if item.IsTerminal() {
		return nil, fmt.Errorf("%w: item %s is already %s", ErrInvalidTransition, itemID, item.Status)
	}
	return item, nil
}

// PickItem records qty picked from the given batches. The item is picked
// when qty reaches the target and short otherwise.
func (l *PickList) PickItem(itemID string, qty int, allocs []BatchAllocation) error {
	item, err := l.pendingItem(itemID)
	if err != nil {
		return err
	}
	if err := validatePickQuantities(item, qty, allocs); err != nil {
		return err
	}

	now := time.Now().UTC()
	item.PickedQty = qty
	item.Allocations = allocs
	item.Reserved = nil
	item.PickedAt = &now
	if qty == item.TargetQty {
		item.Status = PickItemPicked
		l.AddDomainEvent(&ItemPickedEvent{
			PickListID:  l.PickListID,
			OrderID:     l.OrderID,
			ItemID:      item.ItemID,
			SkuID:       item.SkuID,
			Quantity:    qty,
			Allocations: allocs,
			PickedAt:    now,
		})
	} else {
		item.Status = PickItemShort
		l.addShortEvent(item, now)
	}

	l.refreshStatus(now)
	return nil
}

// MarkShort resolves the item below target. qty may be zero when nothing
// could be picked at all.
func (l *PickList) MarkShort(itemID string, qty int, allocs []BatchAllocation, notes string) error {
	item, err := l.pendingItem(itemID)
	if err != nil {
		return err
	}
	if qty >= item.TargetQty {
		return fmt.Errorf("%w: short quantity %d must be below target %d", ErrInvalidQuantity, qty, item.TargetQty)
	}
	if err := validatePickQuantities(item, qty, allocs); err != nil {
		return err
	}

	now := time.Now().UTC()
	item.PickedQty = qty
	item.Allocations = allocs
	item.Reserved = nil
	item.Status = PickItemShort
	item.PickedAt = &now
	item.Notes = notes

	l.addShortEvent(item, now)
	l.refreshStatus(now)
	return nil
}

// Substitute resolves the item from a batch chosen by the picker
func (l *PickList) Substitute(itemID, batchID string, qty int, reason string) error {
	item, err := l.pendingItem(itemID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(reason) == "" {
		return ErrReasonRequired
	}
	if batchID == "" || qty <= 0 {
		return ErrInvalidQuantity
	}
	if qty > item.TargetQty {
		return fmt.Errorf("%w: %d > %d", ErrQuantityExceedsTarget, qty, item.TargetQty)
	}

	now := time.Now().UTC()
	item.PickedQty = qty
	item.Allocations = []BatchAllocation{{BatchID: batchID, Quantity: qty, SubstitutionReason: reason}}
	item.Reserved = nil
	item.PickedAt = &now
	if qty == item.TargetQty {
		item.Status = PickItemSubstituted
	} else {
		item.Status = PickItemShort
		l.addShortEvent(item, now)
	}

	l.AddDomainEvent(&BatchSubstitutedEvent{
		PickListID:    l.PickListID,
		OrderID:       l.OrderID,
		ItemID:        item.ItemID,
		BatchID:       batchID,
		Quantity:      qty,
		Reason:        reason,
		SubstitutedAt: now,
	})

	l.refreshStatus(now)
	return nil
}

// Assign gives the list to a team and/or a picker
func (l *PickList) Assign(teamID, userID string) error {
	if strings.TrimSpace(teamID) == "" && strings.TrimSpace(userID) == "" {
		return ErrInvalidAssignment
	}
	if l.CompletedAt != nil {
		return fmt.Errorf("%w: pick list %s is completed", ErrInvalidTransition, l.PickListID)
	}

	now := time.Now().UTC()
	l.AssignedTeamID = teamID
	l.AssignedTo = userID
	l.UpdatedAt = now

	l.AddDomainEvent(&PickListAssignedEvent{
		PickListID: l.PickListID,
		OrderID:    l.OrderID,
		TeamID:     teamID,
		UserID:     userID,
		AssignedAt: now,
	})
	return nil
}

// Complete closes picking. Every item must be resolved.
func (l *PickList) Complete() error {
	if l.CompletedAt != nil {
		return fmt.Errorf("%w: pick list %s is already completed", ErrInvalidTransition, l.PickListID)
	}
	if pending := l.PendingCount(); pending > 0 {
		return fmt.Errorf("%w: %d item(s) pending", ErrPickListIncomplete, pending)
	}

	now := time.Now().UTC()
	l.CompletedAt = &now
	l.refreshStatus(now)

	targetUnits, pickedUnits, shortItems := 0, 0, 0
	for _, item := range l.Items {
		targetUnits += item.TargetQty
		pickedUnits += item.PickedQty
		if item.Status == PickItemShort {
			shortItems++
		}
	}

	l.AddDomainEvent(&PickListCompletedEvent{
		PickListID:  l.PickListID,
		OrderID:     l.OrderID,
		TargetUnits: targetUnits,
		PickedUnits: pickedUnits,
		ShortItems:  shortItems,
		CompletedAt: now,
	})
	return nil
}

// DerivedStatus computes the list status from its items
func (l *PickList) DerivedStatus() PickListStatus {
	if len(l.Items) == 0 {
		return PickListPending
	}
	resolved := 0
	for _, item := range l.Items {
		if item.IsTerminal() {
			resolved++
		}
	}
	switch {
	case resolved == len(l.Items):
		return PickListCompleted
	case resolved > 0:
		return PickListInProgress
	default:
		return PickListPending
	}
}

// PendingCount returns the number of unresolved items
func (l *PickList) PendingCount() int {
	n := 0
	for _, item := range l.Items {
		if !item.IsTerminal() {
			n++
		}
	}
	return n
}

// IsAssigned reports whether a team or picker has the list
func (l *PickList) IsAssigned() bool {
	return l.AssignedTeamID != "" || l.AssignedTo != ""
}

func (l *PickList) refreshStatus(now time.Time) {
	l.Status = l.DerivedStatus()
	l.UpdatedAt = now
}

func (l *PickList) addShortEvent(item *PickItem, now time.Time) {
	l.AddDomainEvent(&ItemShortEvent{
		PickListID: l.PickListID,
		OrderID:    l.OrderID,
		ItemID:     item.ItemID,
		SkuID:      item.SkuID,
		TargetQty:  item.TargetQty,
		PickedQty:  item.PickedQty,
		ReportedAt: now,
	})
}

func validatePickQuantities(item *PickItem, qty int, allocs []BatchAllocation) error {
	if qty < 0 {
		return ErrInvalidQuantity
	}
	if qty > item.TargetQty {
		return fmt.Errorf("%w: %d > %d", ErrQuantityExceedsTarget, qty, item.TargetQty)
	}
	for _, a := range allocs {
		if a.BatchID == "" || a.Quantity <= 0 {
			return fmt.Errorf("%w: allocation needs a batch and a positive quantity", ErrInvalidQuantity)
		}
	}
	if sum := SumAllocations(allocs); sum != qty {
		return fmt.Errorf("%w: allocations sum to %d, picked %d", ErrAllocationMismatch, sum, qty)
	}
	return nil
}

// AddDomainEvent adds a domain event
func (l *PickList) AddDomainEvent(event DomainEvent) {
	l.DomainEvents = append(l.DomainEvents, event)
}

// ClearDomainEvents clears all domain events
func (l *PickList) ClearDomainEvents() {
	l.DomainEvents = make([]DomainEvent, 0)
}

// GetDomainEvents returns all domain events
func (l *PickList) GetDomainEvents() []DomainEvent {
	return l.DomainEvents
}
