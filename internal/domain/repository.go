package domain

import "context"

// Repositories return (nil, nil) when a document does not exist.

// BatchRepository is the inventory lot store. Reserve and Consume are
// atomic per batch.
type BatchRepository interface {
	Save(ctx context.Context, batch *Batch) error
	FindByID(ctx context.Context, batchID string) (*Batch, error)
	FindSaleableBatches(ctx context.Context, skuID, sizeID string) ([]Batch, error)
	// Reserve holds qty if on-hand minus reserved covers it, otherwise
	// returns ErrInsufficientAvailability without changing the batch
	Reserve(ctx context.Context, batchID string, qty int) error
	// Consume removes qty from both on-hand and reserved
	Consume(ctx context.Context, batchID string, qty int) error
	// Release returns a reservation to available stock
	Release(ctx context.Context, batchID string, qty int) error
}

// OrderRepository stores orders and their lines
type OrderRepository interface {
	Create(ctx context.Context, order *Order) error
	AddLines(ctx context.Context, orderID string, lines []OrderLine) error
	Delete(ctx context.Context, orderID string) error
	Save(ctx context.Context, order *Order) error
	FindByID(ctx context.Context, orderID string) (*Order, error)
	FindByStatuses(ctx context.Context, statuses []OrderStatus, limit int) ([]*Order, error)
	UpdateStatus(ctx context.Context, orderIDs []string, status OrderStatus) error
}

// PickListRepository stores pick lists
type PickListRepository interface {
	Save(ctx context.Context, list *PickList) error
	FindByID(ctx context.Context, pickListID string) (*PickList, error)
	FindByOrderID(ctx context.Context, orderID string) (*PickList, error)
	FindByOrderIDs(ctx context.Context, orderIDs []string) ([]*PickList, error)
	NextSequence(ctx context.Context) (int, error)
}

// PackingRepository stores order packing records
type PackingRepository interface {
	Save(ctx context.Context, packing *OrderPacking) error
	FindByOrderID(ctx context.Context, orderID string) (*OrderPacking, error)
	FindByOrderIDs(ctx context.Context, orderIDs []string) ([]*OrderPacking, error)
}

// DeliveryRunRepository stores delivery runs
type DeliveryRunRepository interface {
	Save(ctx context.Context, run *DeliveryRun) error
	FindByID(ctx context.Context, runID string) (*DeliveryRun, error)
	// FindActiveByOrderID returns the run that is not completed and carries orderID
	FindActiveByOrderID(ctx context.Context, orderID string) (*DeliveryRun, error)
	// FindLatestByOrderIDs returns, per order, the most recent run carrying it
	FindLatestByOrderIDs(ctx context.Context, orderIDs []string) (map[string]*DeliveryRun, error)
}

// ReferenceDataProvider serves read-only reference data
type ReferenceDataProvider interface {
	GetCapacityConfigs(ctx context.Context) ([]CapacityConfig, error)
	GetShelfQuantities(ctx context.Context, sizeIDs []string) (map[string]int, error)
	GetHaulier(ctx context.Context, haulierID string) (*Haulier, error)
	GetVehicle(ctx context.Context, vehicleID string) (*Vehicle, error)
}

// Transactor runs fn atomically. Repository calls made with the ctx passed
// to fn join the transaction.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
