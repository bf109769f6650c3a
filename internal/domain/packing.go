package domain

import (
	"fmt"
	"strings"
	"time"
)

// PackingStatus represents the status of order packing
type PackingStatus string

const (
	PackingNotStarted PackingStatus = "not_started"
	PackingInProgress PackingStatus = "in_progress"
	PackingCompleted  PackingStatus = "completed"
	PackingVerified   PackingStatus = "verified"
)

// OrderPacking tracks packing of one order onto trolleys. There is at most
// one per order, created on the first packing action.
type OrderPacking struct {
	PackingID    string        `bson:"packingId"`
	OrderID      string        `bson:"orderId"`
	Status       PackingStatus `bson:"status"`
	TrolleysUsed *int          `bson:"trolleysUsed,omitempty"` // nil until measured; 0 is a real value
	StartedAt    *time.Time    `bson:"startedAt,omitempty"`
	CompletedAt  *time.Time    `bson:"completedAt,omitempty"`
	VerifiedAt   *time.Time    `bson:"verifiedAt,omitempty"`
	VerifiedBy   string        `bson:"verifiedBy,omitempty"`
	Notes        string        `bson:"notes,omitempty"`
	Version      int64         `bson:"version"`
	CreatedAt    time.Time     `bson:"createdAt"`
	UpdatedAt    time.Time     `bson:"updatedAt"`
	DomainEvents []DomainEvent `bson:"-"`
}

// NewOrderPacking creates a packing record that has not started
func NewOrderPacking(packingID, orderID string) *OrderPacking {
	now := time.Now().UTC()
	return &OrderPacking{
		PackingID:    packingID,
		OrderID:      orderID,
		Status:       PackingNotStarted,
		CreatedAt:    now,
		UpdatedAt:    now,
		DomainEvents: make([]DomainEvent, 0),
	}
}

func (p *OrderPacking) transitionError(to PackingStatus) error {
	return fmt.Errorf("%w: packing %s cannot move from %s to %s", ErrInvalidTransition, p.OrderID, p.Status, to)
}

// Start begins packing
func (p *OrderPacking) Start() error {
	if p.Status != PackingNotStarted {
		return p.transitionError(PackingInProgress)
	}

	now := time.Now().UTC()
	p.Status = PackingInProgress
	p.StartedAt = &now
	p.UpdatedAt = now

	p.AddDomainEvent(&PackingStartedEvent{PackingID: p.PackingID, OrderID: p.OrderID, StartedAt: now})
	return nil
}

// Complete finishes packing. trolleysUsed must be supplied explicitly.
func (p *OrderPacking) Complete(trolleysUsed *int, notes string) error {
	if p.Status != PackingInProgress {
		return p.transitionError(PackingCompleted)
	}
	if trolleysUsed == nil {
		return ErrTrolleysRequired
	}
	if *trolleysUsed < 0 {
		return fmt.Errorf("%w: trolleys used cannot be negative", ErrInvalidQuantity)
	}

	used := *trolleysUsed
	now := time.Now().UTC()
	p.Status = PackingCompleted
	p.TrolleysUsed = &used
	p.CompletedAt = &now
	p.UpdatedAt = now
	if notes != "" {
		p.Notes = notes
	}

	p.AddDomainEvent(&PackingCompletedEvent{
		PackingID:    p.PackingID,
		OrderID:      p.OrderID,
		TrolleysUsed: used,
		CompletedAt:  now,
	})
	return nil
}

// Verify confirms completed packing. Verified is terminal.
func (p *OrderPacking) Verify(verifiedBy string) error {
	if p.Status != PackingCompleted {
		return p.transitionError(PackingVerified)
	}
	if strings.TrimSpace(verifiedBy) == "" {
		return ErrVerifierRequired
	}

	now := time.Now().UTC()
	p.Status = PackingVerified
	p.VerifiedBy = verifiedBy
	p.VerifiedAt = &now
	p.UpdatedAt = now

	p.AddDomainEvent(&PackingVerifiedEvent{
		PackingID:  p.PackingID,
		OrderID:    p.OrderID,
		VerifiedBy: verifiedBy,
		VerifiedAt: now,
	})
	return nil
}

// IsDone reports whether the order is packed
func (p *OrderPacking) IsDone() bool {
	return p.Status == PackingCompleted || p.Status == PackingVerified
}

// AddDomainEvent adds a domain event
func (p *OrderPacking) AddDomainEvent(event DomainEvent) {
	p.DomainEvents = append(p.DomainEvents, event)
}

// ClearDomainEvents clears all domain events
func (p *OrderPacking) ClearDomainEvents() {
	p.DomainEvents = make([]DomainEvent, 0)
}

// GetDomainEvents returns all domain events
func (p *OrderPacking) GetDomainEvents() []DomainEvent {
	return p.DomainEvents
}
