package application

import (
	"time"

	"github.com/wms-platform/nursery-fulfillment/internal/domain"
)

// OrderLineInput is one demand line of a new order
type OrderLineInput struct {
	SkuID       string
	SizeID      string
	Family      string
	Description string
	Quantity    int
}

// CreateOrderCommand creates a confirmed order with its lines
type CreateOrderCommand struct {
	OrderNumber           string
	CustomerID            string
	CustomerName          string
	DeliveryAddress       domain.Address
	RequestedDeliveryDate *time.Time
	Lines                 []OrderLineInput
}

// RecomputeEstimateCommand stamps a fresh trolley estimate on an order.
// Without Force an order that already has an estimate is left alone.
type RecomputeEstimateCommand struct {
	OrderID string
	Force   bool
}

// EstimateTrolleysCommand is a dry-run estimate for arbitrary lines
type EstimateTrolleysCommand struct {
	Lines []OrderLineInput
}

type GeneratePickListCommand struct {
	OrderID string
}

type AssignPickListCommand struct {
	PickListID string
	TeamID     string
	UserID     string
}

// PickItemCommand confirms a pick. Without Allocations the quantity is taken
// from the item's reservations in FEFO order. Reason is required when an
// allocation names a batch that was not reserved for the item.
type PickItemCommand struct {
	PickListID  string
	ItemID      string
	Quantity    int
	Allocations []domain.BatchAllocation
	Reason      string
}

// MarkShortCommand resolves an item below target. Quantity may be 0.
type MarkShortCommand struct {
	PickListID  string
	ItemID      string
	Quantity    int
	Allocations []domain.BatchAllocation
	Reason      string
	Notes       string
}

type SubstituteBatchCommand struct {
	PickListID string
	ItemID     string
	BatchID    string
	Quantity   int
	Reason     string
}

type CompletePickingCommand struct {
	PickListID string
}

// Packing actions
const (
	PackingActionStart    = "start"
	PackingActionComplete = "complete"
	PackingActionVerify   = "verify"
)

// UpdatePackingCommand moves an order's packing forward by one action.
// TrolleysUsed is nil when not supplied; 0 is a real count.
type UpdatePackingCommand struct {
	OrderID      string
	Action       string
	TrolleysUsed *int
	VerifiedBy   string
	Notes        string
}

type CreateDeliveryRunCommand struct {
	RunDate   time.Time
	HaulierID string
	VehicleID string
}

// AddOrderToRunCommand loads an order. TrolleysDelivered nil means resolve
// from packing, then the estimate.
type AddOrderToRunCommand struct {
	RunID             string
	OrderID           string
	TrolleysDelivered *int
}

type RemoveOrderFromRunCommand struct {
	RunID   string
	OrderID string
}

type ReorderDeliveryItemCommand struct {
	RunID     string
	ItemID    string
	Direction domain.MoveDirection
}

type UpdateRunStatusCommand struct {
	RunID  string
	Status domain.RunStatus
}

// MarkDeliveryItemCommand records the outcome of one drop
type MarkDeliveryItemCommand struct {
	RunID  string
	ItemID string
	Status domain.DeliveryItemStatus
	Notes  string
}

// GetDispatchBoardQuery lists open orders. Delivered orders are included on request.
type GetDispatchBoardQuery struct {
	Limit            int
	IncludeDelivered bool
}
