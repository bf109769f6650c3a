package application

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wms-platform/nursery-fulfillment/internal/domain"
)

// In-memory stores that copy on the way in and out, so services only see
// their changes after a Save, as with the document store.

type memBatches struct {
	mu        sync.Mutex
	batches   map[string]domain.Batch
	reserveFn func(batchID string, qty int) error
}

func newMemBatches(batches ...*domain.Batch) *memBatches {
	m := &memBatches{batches: make(map[string]domain.Batch)}
	for _, b := range batches {
		m.batches[b.BatchID] = *b
	}
	return m
}

func (m *memBatches) get(id string) domain.Batch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batches[id]
}

func (m *memBatches) Save(ctx context.Context, batch *domain.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[batch.BatchID] = *batch
	return nil
}

func (m *memBatches) FindByID(ctx context.Context, batchID string) (*domain.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (m *memBatches) FindSaleableBatches(ctx context.Context, skuID, sizeID string) ([]domain.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Batch
	for _, b := range m.batches {
		if b.SkuID == skuID && b.SizeID == sizeID && b.IsSaleable() && b.AvailableQty() > 0 {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BatchID < out[j].BatchID })
	return out, nil
}

func (m *memBatches) Reserve(ctx context.Context, batchID string, qty int) error {
	if m.reserveFn != nil {
		if err := m.reserveFn(batchID, qty); err != nil {
			return err
		}
	}
	return m.update(batchID, qty, func(b *domain.Batch) bool {
		if b.AvailableQty() < qty {
			return false
		}
		b.QuantityReserved += qty
		return true
	}, domain.ErrInsufficientAvailability)
}

func (m *memBatches) Consume(ctx context.Context, batchID string, qty int) error {
	return m.update(batchID, qty, func(b *domain.Batch) bool {
		if b.QuantityReserved < qty || b.QuantityOnHand < qty {
			return false
		}
		b.QuantityReserved -= qty
		b.QuantityOnHand -= qty
		return true
	}, domain.ErrInsufficientAvailability)
}

func (m *memBatches) Release(ctx context.Context, batchID string, qty int) error {
	return m.update(batchID, qty, func(b *domain.Batch) bool {
		if b.QuantityReserved < qty {
			return false
		}
		b.QuantityReserved -= qty
		return true
	}, domain.ErrInvalidQuantity)
}

func (m *memBatches) update(batchID string, qty int, apply func(*domain.Batch) bool, onMiss error) error {
	if qty <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok {
		return domain.ErrBatchNotFound
	}
	if !apply(&b) {
		return fmt.Errorf("%w: batch %s", onMiss, batchID)
	}
	m.batches[batchID] = b
	return nil
}

type memOrders struct {
	mu         sync.Mutex
	orders     map[string]domain.Order
	lines      map[string][]domain.OrderLine
	events     []domain.DomainEvent
	addLinesFn func(orderID string) error
	saveFn     func(order *domain.Order) error
}

func newMemOrders() *memOrders {
	return &memOrders{orders: make(map[string]domain.Order), lines: make(map[string][]domain.OrderLine)}
}

func (m *memOrders) put(order *domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := *order
	o.Version++
	o.Lines = nil
	o.DomainEvents = nil
	m.orders[o.OrderID] = o
	m.lines[o.OrderID] = append([]domain.OrderLine(nil), order.Lines...)
}

// reset drops everything stored, as an aborted transaction would
func (m *memOrders) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = make(map[string]domain.Order)
	m.lines = make(map[string][]domain.OrderLine)
	m.events = nil
}

func (m *memOrders) Create(ctx context.Context, order *domain.Order) error {
	if order.Version != 0 {
		return domain.ErrConcurrentModification
	}
	return m.Save(ctx, order)
}

func (m *memOrders) AddLines(ctx context.Context, orderID string, lines []domain.OrderLine) error {
	if m.addLinesFn != nil {
		if err := m.addLinesFn(orderID); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines[orderID] = append(m.lines[orderID], lines...)
	return nil
}

func (m *memOrders) Delete(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orders, orderID)
	delete(m.lines, orderID)
	return nil
}

func (m *memOrders) Save(ctx context.Context, order *domain.Order) error {
	if m.saveFn != nil {
		if err := m.saveFn(order); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, exists := m.orders[order.OrderID]
	if (exists && stored.Version != order.Version) || (!exists && order.Version != 0) {
		return domain.ErrConcurrentModification
	}
	order.Version++
	o := *order
	o.Lines = nil
	o.DomainEvents = nil
	m.orders[o.OrderID] = o
	m.events = append(m.events, order.DomainEvents...)
	order.ClearDomainEvents()
	return nil
}

func (m *memOrders) FindByID(ctx context.Context, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, nil
	}
	o.Lines = append([]domain.OrderLine(nil), m.lines[orderID]...)
	o.DomainEvents = make([]domain.DomainEvent, 0)
	return &o, nil
}

func (m *memOrders) FindByStatuses(ctx context.Context, statuses []domain.OrderStatus, limit int) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, o := range m.orders {
		for _, s := range statuses {
			if o.Status == s {
				c := o
				c.DomainEvents = make([]domain.DomainEvent, 0)
				out = append(out, &c)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memOrders) UpdateStatus(ctx context.Context, orderIDs []string, status domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range orderIDs {
		o, ok := m.orders[id]
		if !ok {
			return fmt.Errorf("order %s not found", id)
		}
		o.Status = status
		o.Version++
		m.orders[id] = o
	}
	return nil
}

func (m *memOrders) status(orderID string) domain.OrderStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[orderID].Status
}

type memPickLists struct {
	mu     sync.Mutex
	lists  map[string]domain.PickList
	seq    int
	saveFn func(list *domain.PickList) error
}

func newMemPickLists() *memPickLists {
	return &memPickLists{lists: make(map[string]domain.PickList)}
}

func clonePickList(l domain.PickList) *domain.PickList {
	items := make([]domain.PickItem, len(l.Items))
	for i, item := range l.Items {
		item.Allocations = append([]domain.BatchAllocation(nil), item.Allocations...)
		item.Reserved = append([]domain.BatchAllocation(nil), item.Reserved...)
		items[i] = item
	}
	l.Items = items
	l.DomainEvents = make([]domain.DomainEvent, 0)
	return &l
}

func (m *memPickLists) Save(ctx context.Context, list *domain.PickList) error {
	if m.saveFn != nil {
		if err := m.saveFn(list); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, exists := m.lists[list.PickListID]
	if (exists && stored.Version != list.Version) || (!exists && list.Version != 0) {
		return domain.ErrConcurrentModification
	}
	if !exists {
		for _, other := range m.lists {
			if other.OrderID == list.OrderID {
				return domain.ErrConcurrentModification
			}
		}
	}
	list.Version++
	m.lists[list.PickListID] = *clonePickList(*list)
	list.ClearDomainEvents()
	return nil
}

func (m *memPickLists) FindByID(ctx context.Context, pickListID string) (*domain.PickList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[pickListID]
	if !ok {
		return nil, nil
	}
	return clonePickList(l), nil
}

func (m *memPickLists) FindByOrderID(ctx context.Context, orderID string) (*domain.PickList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.lists {
		if l.OrderID == orderID {
			return clonePickList(l), nil
		}
	}
	return nil, nil
}

func (m *memPickLists) FindByOrderIDs(ctx context.Context, orderIDs []string) ([]*domain.PickList, error) {
	var out []*domain.PickList
	for _, id := range orderIDs {
		l, _ := m.FindByOrderID(ctx, id)
		if l != nil {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memPickLists) NextSequence(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return m.seq, nil
}

type memPackings struct {
	mu       sync.Mutex
	packings map[string]domain.OrderPacking
}

func newMemPackings() *memPackings {
	return &memPackings{packings: make(map[string]domain.OrderPacking)}
}

func (m *memPackings) Save(ctx context.Context, p *domain.OrderPacking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, exists := m.packings[p.OrderID]
	if (exists && stored.Version != p.Version) || (!exists && p.Version != 0) {
		return domain.ErrConcurrentModification
	}
	p.Version++
	c := *p
	c.DomainEvents = nil
	m.packings[p.OrderID] = c
	p.ClearDomainEvents()
	return nil
}

func (m *memPackings) FindByOrderID(ctx context.Context, orderID string) (*domain.OrderPacking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.packings[orderID]
	if !ok {
		return nil, nil
	}
	p.DomainEvents = make([]domain.DomainEvent, 0)
	return &p, nil
}

func (m *memPackings) FindByOrderIDs(ctx context.Context, orderIDs []string) ([]*domain.OrderPacking, error) {
	var out []*domain.OrderPacking
	for _, id := range orderIDs {
		p, _ := m.FindByOrderID(ctx, id)
		if p != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

type memRuns struct {
	mu   sync.Mutex
	runs map[string]domain.DeliveryRun
}

func newMemRuns() *memRuns {
	return &memRuns{runs: make(map[string]domain.DeliveryRun)}
}

func cloneRun(r domain.DeliveryRun) *domain.DeliveryRun {
	r.Items = append(make([]domain.DeliveryItem, 0, len(r.Items)), r.Items...)
	r.DomainEvents = make([]domain.DomainEvent, 0)
	return &r
}

func (m *memRuns) Save(ctx context.Context, run *domain.DeliveryRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, exists := m.runs[run.RunID]
	if (exists && stored.Version != run.Version) || (!exists && run.Version != 0) {
		return domain.ErrConcurrentModification
	}
	run.Version++
	m.runs[run.RunID] = *cloneRun(*run)
	run.ClearDomainEvents()
	return nil
}

func (m *memRuns) FindByID(ctx context.Context, runID string) (*domain.DeliveryRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return nil, nil
	}
	return cloneRun(r), nil
}

func (m *memRuns) FindActiveByOrderID(ctx context.Context, orderID string) (*domain.DeliveryRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.IsActive() && r.ItemForOrder(orderID) != nil {
			return cloneRun(r), nil
		}
	}
	return nil, nil
}

func (m *memRuns) FindLatestByOrderIDs(ctx context.Context, orderIDs []string) (map[string]*domain.DeliveryRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*domain.DeliveryRun)
	for _, id := range orderIDs {
		for _, r := range m.runs {
			if r.ItemForOrder(id) == nil {
				continue
			}
			if cur, ok := out[id]; !ok || r.RunDate.After(cur.RunDate) {
				out[id] = cloneRun(r)
			}
		}
	}
	return out, nil
}

type fakeReference struct {
	configs  []domain.CapacityConfig
	shelves  map[string]int
	hauliers map[string]*domain.Haulier
	vehicles map[string]*domain.Vehicle
	err      error
}

func (f *fakeReference) GetCapacityConfigs(ctx context.Context) ([]domain.CapacityConfig, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.configs, nil
}

func (f *fakeReference) GetShelfQuantities(ctx context.Context, sizeIDs []string) (map[string]int, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]int)
	for _, id := range sizeIDs {
		if q, ok := f.shelves[id]; ok {
			out[id] = q
		}
	}
	return out, nil
}

func (f *fakeReference) GetHaulier(ctx context.Context, haulierID string) (*domain.Haulier, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hauliers[haulierID], nil
}

func (f *fakeReference) GetVehicle(ctx context.Context, vehicleID string) (*domain.Vehicle, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vehicles[vehicleID], nil
}

// passTransactor runs fn directly; rollback is the stores' business
// replayTransactor commits nothing on the first run of fn: it rolls the
// writes back and runs fn again, the way the driver retries a transaction
// that hit a transient error
type replayTransactor struct {
	rollback func()
	calls    int
}

func (t *replayTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	if err := fn(ctx); err != nil {
		return err
	}
	t.rollback()
	return fn(ctx)
}

type passTransactor struct {
	calls int
}

func (t *passTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}
