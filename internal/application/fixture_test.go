package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wms-platform/nursery-fulfillment/internal/domain"
	"github.com/wms-platform/nursery-fulfillment/pkg/logging"
	"github.com/wms-platform/nursery-fulfillment/pkg/metrics"
	pkgtesting "github.com/wms-platform/nursery-fulfillment/pkg/testing"
)

type fixture struct {
	batches    *memBatches
	orders     *memOrders
	pickLists  *memPickLists
	packings   *memPackings
	runs       *memRuns
	reference  *fakeReference
	transactor *passTransactor
	metrics    *metrics.Metrics

	orderSvc    *OrderService
	pickingSvc  *PickingService
	packingSvc  *PackingService
	dispatchSvc *DispatchService
}

func newFixture(t *testing.T, batches ...*domain.Batch) *fixture {
	t.Helper()

	f := &fixture{
		batches:   newMemBatches(batches...),
		orders:    newMemOrders(),
		pickLists: newMemPickLists(),
		packings:  newMemPackings(),
		runs:      newMemRuns(),
		reference: &fakeReference{
			configs: []domain.CapacityConfig{
				{Family: "lavandula", SizeID: "2L", SizeName: "2 litre", UnitsPerShelf: 10, ShelvesPerTrolley: 5},
				{Family: "salvia", SizeID: "9cm", SizeName: "9cm pot", ShelvesPerTrolley: 4},
			},
			shelves: map[string]int{"9cm": 25},
			hauliers: map[string]*domain.Haulier{
				"HAUL-FEN": {HaulierID: "HAUL-FEN", Name: "Fen Freight", DefaultCapacity: 12},
				"HAUL-OWN": {HaulierID: "HAUL-OWN", Name: "Own fleet", DefaultCapacity: 8},
			},
			vehicles: map[string]*domain.Vehicle{
				"VAN-01": {VehicleID: "VAN-01", HaulierID: "HAUL-OWN", Capacity: pkgtesting.IntPtr(6)},
				"HGV-01": {VehicleID: "HGV-01", HaulierID: "HAUL-FEN"},
			},
		},
		transactor: &passTransactor{},
		metrics:    metrics.New(metrics.DefaultConfig("test")),
	}

	logger := logging.NewNop()
	f.orderSvc = NewOrderService(f.orders, f.reference, f.transactor, logger, f.metrics)
	f.pickingSvc = NewPickingService(f.orders, f.pickLists, f.batches, f.transactor, logger, f.metrics)
	f.pickingSvc.retry.InitialDelay = time.Millisecond
	f.pickingSvc.retry.MaxDelay = time.Millisecond
	f.packingSvc = NewPackingService(f.orders, f.packings, logger)
	f.dispatchSvc = NewDispatchService(f.orders, f.pickLists, f.packings, f.runs, f.reference, f.transactor, logger, f.metrics)
	return f
}

func testBatch(t *testing.T, id, sku, size string, onHand int, ageDays int) *domain.Batch {
	t.Helper()
	b, err := domain.NewBatch(id, sku, "lavandula", size, onHand, time.Now().AddDate(0, 0, -ageDays), "BED-1")
	require.NoError(t, err)
	return b
}

// seedOrder stores a confirmed order directly, bypassing the service
func (f *fixture) seedOrder(t *testing.T, orderID string, estimate *int, lines ...domain.OrderLine) *domain.Order {
	t.Helper()
	if len(lines) == 0 {
		lines = []domain.OrderLine{{LineID: orderID + "-L1", SkuID: "LAV-HID", SizeID: "2L", Family: "lavandula", Quantity: 10}}
	}
	order, err := domain.NewOrder(orderID, "NO-"+orderID, "CUST-1", "Greenfingers Ltd", domain.Address{Line1: "1 Fen Road", Town: "Ely", Postcode: "CB7 4AA"}, nil, lines)
	require.NoError(t, err)
	order.TrolleysEstimated = estimate
	f.orders.put(order)
	return order
}
