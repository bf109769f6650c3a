package domain

import (
	"fmt"
	"strings"
	"time"
)

// OrderStatus represents the status of an order
type OrderStatus string

const (
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusDispatched OrderStatus = "dispatched"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Address is a delivery address
type Address struct {
	Line1    string `bson:"line1"`
	Line2    string `bson:"line2,omitempty"`
	Town     string `bson:"town"`
	Postcode string `bson:"postcode"`
	Country  string `bson:"country,omitempty"`
}

// Order is the aggregate root for a confirmed customer order
type Order struct {
	OrderID               string        `bson:"orderId"`
	OrderNumber           string        `bson:"orderNumber"`
	CustomerID            string        `bson:"customerId"`
	CustomerName          string        `bson:"customerName"`
	DeliveryAddress       Address       `bson:"deliveryAddress"`
	RequestedDeliveryDate *time.Time    `bson:"requestedDeliveryDate,omitempty"`
	Status                OrderStatus   `bson:"status"`
	TrolleysEstimated     *int          `bson:"trolleysEstimated,omitempty"`
	Lines                 []OrderLine   `bson:"-"`
	Version               int64         `bson:"version"`
	CreatedAt             time.Time     `bson:"createdAt"`
	UpdatedAt             time.Time     `bson:"updatedAt"`
	DomainEvents          []DomainEvent `bson:"-"`
}

// OrderLine is a demand line of an order. Lines are stored apart from the
// order document.
type OrderLine struct {
	LineID      string `bson:"lineId"`
	OrderID     string `bson:"orderId"`
	SkuID       string `bson:"skuId"`
	SizeID      string `bson:"sizeId"`
	Family      string `bson:"family"`
	Description string `bson:"description,omitempty"`
	Quantity    int    `bson:"quantity"`
}

// NewOrder creates a confirmed order
func NewOrder(orderID, orderNumber, customerID, customerName string, address Address, requestedDate *time.Time, lines []OrderLine) (*Order, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, fmt.Errorf("%w: customer is required", ErrInvalidOrder)
	}
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}
	for i := range lines {
		if lines[i].Quantity <= 0 {
			return nil, fmt.Errorf("%w: line %d quantity must be positive", ErrInvalidQuantity, i+1)
		}
		if lines[i].SkuID == "" || lines[i].SizeID == "" {
			return nil, fmt.Errorf("%w: line %d needs sku and size", ErrInvalidOrder, i+1)
		}
		lines[i].OrderID = orderID
	}

	now := time.Now().UTC()
	order := &Order{
		OrderID:               orderID,
		OrderNumber:           orderNumber,
		CustomerID:            customerID,
		CustomerName:          customerName,
		DeliveryAddress:       address,
		RequestedDeliveryDate: requestedDate,
		Status:                OrderStatusConfirmed,
		Lines:                 lines,
		CreatedAt:             now,
		UpdatedAt:             now,
		DomainEvents:          make([]DomainEvent, 0),
	}

	order.AddDomainEvent(&OrderCreatedEvent{
		OrderID:     orderID,
		OrderNumber: orderNumber,
		CustomerID:  customerID,
		LineCount:   len(lines),
		TotalUnits:  order.TotalUnits(),
		CreatedAt:   now,
	})

	return order, nil
}

// TotalUnits sums line quantities
func (o *Order) TotalUnits() int {
	total := 0
	for _, l := range o.Lines {
		total += l.Quantity
	}
	return total
}

// EstimateLines projects the order lines for the trolley estimator
func (o *Order) EstimateLines() []EstimateLine {
	lines := make([]EstimateLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, EstimateLine{SizeID: l.SizeID, Family: l.Family, Quantity: l.Quantity})
	}
	return lines
}

// ApplyTrolleyEstimate stamps the whole-trolley count of est on the order
func (o *Order) ApplyTrolleyEstimate(est TrolleyEstimate) {
	whole := est.WholeTrolleys
	now := time.Now().UTC()
	o.TrolleysEstimated = &whole
	o.UpdatedAt = now

	o.AddDomainEvent(&OrderTrolleysEstimatedEvent{
		OrderID:              o.OrderID,
		TotalTrolleys:        est.TotalTrolleys,
		TrolleysEstimated:    whole,
		LinesWithoutQuantity: est.LinesWithoutQuantity,
		EstimatedAt:          now,
	})
}

// IsOpen reports whether the order still moves through the pipeline
func (o *Order) IsOpen() bool {
	return o.Status == OrderStatusConfirmed || o.Status == OrderStatusDispatched
}

// AddDomainEvent adds a domain event
func (o *Order) AddDomainEvent(event DomainEvent) {
	o.DomainEvents = append(o.DomainEvents, event)
}

// ClearDomainEvents clears all domain events
func (o *Order) ClearDomainEvents() {
	o.DomainEvents = make([]DomainEvent, 0)
}

// GetDomainEvents returns all domain events
func (o *Order) GetDomainEvents() []DomainEvent {
	return o.DomainEvents
}
