package application

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wms-platform/nursery-fulfillment/internal/domain"
	"github.com/wms-platform/nursery-fulfillment/pkg/errors"
	"github.com/wms-platform/nursery-fulfillment/pkg/logging"
	"github.com/wms-platform/nursery-fulfillment/pkg/metrics"
	"github.com/wms-platform/nursery-fulfillment/pkg/resilience"
)

// PickingService generates pick lists against live batch stock and records
// what pickers actually take
type PickingService struct {
	orderRepo    domain.OrderRepository
	pickListRepo domain.PickListRepository
	batchRepo    domain.BatchRepository
	transactor   domain.Transactor
	logger       *logging.Logger
	metrics      *metrics.Metrics
	retry        *resilience.RetryConfig
}

// NewPickingService creates a new PickingService
func NewPickingService(
	orderRepo domain.OrderRepository,
	pickListRepo domain.PickListRepository,
	batchRepo domain.BatchRepository,
	transactor domain.Transactor,
	logger *logging.Logger,
	m *metrics.Metrics,
) *PickingService {
	return &PickingService{
		orderRepo:    orderRepo,
		pickListRepo: pickListRepo,
		batchRepo:    batchRepo,
		transactor:   transactor,
		logger:       logger,
		metrics:      m,
		retry:        allocationRetryConfig(),
	}
}

// allocationRetryConfig retries a whole allocation pass when another
// request took the stock between the read and the reservation
func allocationRetryConfig() *resilience.RetryConfig {
	return &resilience.RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  20 * time.Millisecond,
		MaxDelay:      200 * time.Millisecond,
		BackoffFactor: 2,
		RetryableErrors: func(err error) bool {
			return stderrors.Is(err, domain.ErrInsufficientAvailability)
		},
	}
}

type allocationPass struct {
	items      []domain.PickItem
	shortfalls []ShortfallDTO
	held       *reservationSet
}

// GeneratePickList allocates every order line FEFO and reserves the stock.
// Lines that cannot be covered are reported as shortfalls; the list is
// still created.
func (s *PickingService) GeneratePickList(ctx context.Context, cmd GeneratePickListCommand) (*GeneratePickListResult, error) {
	order, err := s.orderRepo.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		return nil, errors.ErrNotFoundWithID("order", cmd.OrderID)
	}
	if order.Status != domain.OrderStatusConfirmed {
		return nil, errors.ErrValidation(fmt.Sprintf("order %s is %s, only confirmed orders can be picked", order.OrderID, order.Status))
	}

	existing, err := s.pickListRepo.FindByOrderID(ctx, order.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to check pick list: %w", err)
	}
	if existing != nil {
		return nil, errors.ErrConflict(fmt.Sprintf("order %s already has pick list %s", order.OrderID, existing.PickListID)).
			WithDetail("pickListId", existing.PickListID)
	}

	pass, err := resilience.RetryWithResult(ctx, s.retry, func(ctx context.Context) (*allocationPass, error) {
		return s.allocateOrder(ctx, order)
	})
	if err != nil {
		if stderrors.Is(err, domain.ErrInsufficientAvailability) {
			return nil, errors.ErrConflict("stock changed while allocating, retry").Wrap(err)
		}
		s.logger.WithError(err).Error("Failed to allocate order", "orderId", order.OrderID)
		return nil, fmt.Errorf("failed to allocate order: %w", err)
	}

	sequence, err := s.pickListRepo.NextSequence(ctx)
	if err != nil {
		pass.held.releaseAll(ctx)
		s.logger.WithError(err).Error("Failed to allocate pick list sequence", "orderId", order.OrderID)
		return nil, fmt.Errorf("failed to allocate pick list sequence: %w", err)
	}

	list, err := domain.NewPickList(uuid.New().String(), order.OrderID, sequence, pass.items)
	if err != nil {
		pass.held.releaseAll(ctx)
		return nil, mapDomainError(err)
	}

	if err := s.pickListRepo.Save(ctx, list); err != nil {
		pass.held.releaseAll(ctx)
		s.logger.WithError(err).Error("Failed to save pick list", "orderId", order.OrderID)
		return nil, storeError("failed to save pick list", err)
	}

	s.metrics.RecordPickListGenerated()
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "picklist.generated",
		EntityType: "pick_list",
		EntityID:   list.PickListID,
		Action:     "generated",
		RelatedIDs: map[string]string{"orderId": order.OrderID},
		Data:       map[string]any{"items": len(list.Items), "shortfalls": len(pass.shortfalls), "sequence": sequence},
	})

	return &GeneratePickListResult{PickList: ToPickListDTO(list), Shortfalls: pass.shortfalls}, nil
}

// allocateOrder runs one allocation pass. On error every reservation it
// took has been released.
func (s *PickingService) allocateOrder(ctx context.Context, order *domain.Order) (*allocationPass, error) {
	pass := &allocationPass{
		items:      make([]domain.PickItem, 0, len(order.Lines)),
		shortfalls: make([]ShortfallDTO, 0),
		held:       newReservationSet(s.batchRepo, s.logger),
	}

	for _, line := range order.Lines {
		candidates, err := s.batchRepo.FindSaleableBatches(ctx, line.SkuID, line.SizeID)
		if err != nil {
			pass.held.releaseAll(ctx)
			return nil, err
		}

		result := domain.Allocate(line.Quantity, candidates)
		if err := pass.held.reserve(ctx, result.Allocations); err != nil {
			pass.held.releaseAll(ctx)
			if stderrors.Is(err, domain.ErrInsufficientAvailability) {
				s.metrics.RecordReservationConflict()
				s.logger.Warn("Reservation lost to a concurrent request, reallocating", "orderId", order.OrderID, "skuId", line.SkuID)
			}
			return nil, err
		}

		item := domain.PickItem{
			ItemID:    uuid.New().String(),
			LineID:    line.LineID,
			SkuID:     line.SkuID,
			SizeID:    line.SizeID,
			Family:    line.Family,
			TargetQty: line.Quantity,
			Reserved:  result.Allocations,
		}
		pass.items = append(pass.items, item)

		if !result.Fulfilled {
			pass.shortfalls = append(pass.shortfalls, ShortfallDTO{
				ItemID:    item.ItemID,
				LineID:    line.LineID,
				SkuID:     line.SkuID,
				SizeID:    line.SizeID,
				Demanded:  line.Quantity,
				Allocated: result.Allocated,
				Missing:   result.Shortfall(line.Quantity),
			})
		}
	}
	if err := ctx.Err(); err != nil {
		pass.held.releaseAll(ctx)
		return nil, err
	}
	return pass, nil
}

// GetPickList retrieves a pick list by ID
func (s *PickingService) GetPickList(ctx context.Context, pickListID string) (*PickListDTO, error) {
	list, err := s.loadPickList(ctx, pickListID)
	if err != nil {
		return nil, err
	}
	return ToPickListDTO(list), nil
}

// GetPickListByOrder retrieves the pick list of an order
func (s *PickingService) GetPickListByOrder(ctx context.Context, orderID string) (*PickListDTO, error) {
	list, err := s.pickListRepo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pick list: %w", err)
	}
	if list == nil {
		return nil, errors.ErrNotFoundWithID("pick list for order", orderID)
	}
	return ToPickListDTO(list), nil
}

// AssignPickList assigns a pick list to a team and/or picker
func (s *PickingService) AssignPickList(ctx context.Context, cmd AssignPickListCommand) (*PickListDTO, error) {
	list, err := s.loadPickList(ctx, cmd.PickListID)
	if err != nil {
		return nil, err
	}
	if err := list.Assign(cmd.TeamID, cmd.UserID); err != nil {
		return nil, mapDomainError(err)
	}
	if err := s.pickListRepo.Save(ctx, list); err != nil {
		s.logger.WithError(err).Error("Failed to save pick list", "pickListId", list.PickListID)
		return nil, storeError("failed to assign pick list", err)
	}

	s.logger.Info("Pick list assigned", "pickListId", list.PickListID, "teamId", cmd.TeamID, "userId", cmd.UserID)
	return ToPickListDTO(list), nil
}

// PickItem confirms a pick and moves the stock from reserved to consumed
func (s *PickingService) PickItem(ctx context.Context, cmd PickItemCommand) (*PickListDTO, error) {
	list, err := s.loadPickList(ctx, cmd.PickListID)
	if err != nil {
		return nil, err
	}
	reserved, err := reservedFor(list, cmd.ItemID)
	if err != nil {
		return nil, err
	}
	allocs, err := resolveAllocations(cmd.Allocations, reserved, cmd.Quantity)
	if err != nil {
		return nil, err
	}
	if allocs, err = s.checkAllocations(ctx, list, cmd.ItemID, allocs, cmd.Reason); err != nil {
		return nil, err
	}

	if err := list.PickItem(cmd.ItemID, cmd.Quantity, allocs); err != nil {
		return nil, mapDomainError(err)
	}
	if err := s.commitPick(ctx, list, planStockMoves(reserved, allocs)); err != nil {
		return nil, err
	}

	item, _ := list.Item(cmd.ItemID)
	s.metrics.RecordItemPicked(string(item.Status), item.PickedQty)
	s.logger.Info("Item picked",
		"pickListId", list.PickListID,
		"itemId", item.ItemID,
		"status", item.Status,
		"quantity", item.PickedQty,
		"target", item.TargetQty,
	)
	return ToPickListDTO(list), nil
}

// MarkShort resolves an item below its target
func (s *PickingService) MarkShort(ctx context.Context, cmd MarkShortCommand) (*PickListDTO, error) {
	list, err := s.loadPickList(ctx, cmd.PickListID)
	if err != nil {
		return nil, err
	}
	reserved, err := reservedFor(list, cmd.ItemID)
	if err != nil {
		return nil, err
	}
	allocs, err := resolveAllocations(cmd.Allocations, reserved, cmd.Quantity)
	if err != nil {
		return nil, err
	}
	if allocs, err = s.checkAllocations(ctx, list, cmd.ItemID, allocs, cmd.Reason); err != nil {
		return nil, err
	}

	if err := list.MarkShort(cmd.ItemID, cmd.Quantity, allocs, cmd.Notes); err != nil {
		return nil, mapDomainError(err)
	}
	if err := s.commitPick(ctx, list, planStockMoves(reserved, allocs)); err != nil {
		return nil, err
	}

	item, _ := list.Item(cmd.ItemID)
	s.metrics.RecordItemPicked(string(item.Status), item.PickedQty)
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "picking.item_short",
		EntityType: "pick_item",
		EntityID:   item.ItemID,
		Action:     "short",
		RelatedIDs: map[string]string{"pickListId": list.PickListID, "orderId": list.OrderID},
		Data:       map[string]any{"target": item.TargetQty, "picked": item.PickedQty},
	})
	return ToPickListDTO(list), nil
}

// SubstituteBatch resolves an item from a batch the picker chose instead
// of the suggested allocation
func (s *PickingService) SubstituteBatch(ctx context.Context, cmd SubstituteBatchCommand) (*PickListDTO, error) {
	list, err := s.loadPickList(ctx, cmd.PickListID)
	if err != nil {
		return nil, err
	}
	item, err := list.Item(cmd.ItemID)
	if err != nil {
		return nil, mapDomainError(err)
	}
	reserved := append([]domain.BatchAllocation(nil), item.Reserved...)

	batch, err := s.batchRepo.FindByID(ctx, cmd.BatchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	if batch == nil {
		return nil, errors.ErrNotFoundWithID("batch", cmd.BatchID)
	}

	available := batch.AvailableQty() + item.ReservedIn(batch.BatchID)
	if err := domain.ValidateSubstitution(*item, *batch, available, cmd.Quantity, cmd.Reason); err != nil {
		return nil, mapDomainError(err)
	}
	if err := list.Substitute(cmd.ItemID, cmd.BatchID, cmd.Quantity, cmd.Reason); err != nil {
		return nil, mapDomainError(err)
	}

	taken := []domain.BatchAllocation{{BatchID: cmd.BatchID, Quantity: cmd.Quantity}}
	if err := s.commitPick(ctx, list, planStockMoves(reserved, taken)); err != nil {
		return nil, err
	}

	item, _ = list.Item(cmd.ItemID)
	s.metrics.RecordItemPicked(string(item.Status), item.PickedQty)
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "picking.batch_substituted",
		EntityType: "pick_item",
		EntityID:   item.ItemID,
		Action:     "substituted",
		RelatedIDs: map[string]string{"pickListId": list.PickListID, "batchId": cmd.BatchID},
		Data:       map[string]any{"quantity": cmd.Quantity, "reason": cmd.Reason},
	})
	return ToPickListDTO(list), nil
}

// CompletePicking closes a pick list once every item is resolved
func (s *PickingService) CompletePicking(ctx context.Context, cmd CompletePickingCommand) (*PickListDTO, error) {
	list, err := s.loadPickList(ctx, cmd.PickListID)
	if err != nil {
		return nil, err
	}
	if err := list.Complete(); err != nil {
		return nil, mapDomainError(err)
	}
	if err := s.pickListRepo.Save(ctx, list); err != nil {
		s.logger.WithError(err).Error("Failed to save pick list", "pickListId", list.PickListID)
		return nil, storeError("failed to complete pick list", err)
	}

	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "picklist.completed",
		EntityType: "pick_list",
		EntityID:   list.PickListID,
		Action:     "completed",
		RelatedIDs: map[string]string{"orderId": list.OrderID},
	})
	return ToPickListDTO(list), nil
}

// commitPick applies the stock moves and saves the list atomically
func (s *PickingService) commitPick(ctx context.Context, list *domain.PickList, moves []stockMove) error {
	snap := snapshotAggregate(&list.Version, &list.DomainEvents)
	err := s.transactor.WithinTransaction(ctx, func(txCtx context.Context) error {
		snap.restore()
		if err := applyStockMoves(txCtx, s.batchRepo, moves); err != nil {
			return err
		}
		return s.pickListRepo.Save(txCtx, list)
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to record pick", "pickListId", list.PickListID)
		return storeError("failed to record pick", err)
	}
	return nil
}

func (s *PickingService) loadPickList(ctx context.Context, pickListID string) (*domain.PickList, error) {
	list, err := s.pickListRepo.FindByID(ctx, pickListID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pick list: %w", err)
	}
	if list == nil {
		return nil, errors.ErrNotFoundWithID("pick list", pickListID)
	}
	return list, nil
}

func reservedFor(list *domain.PickList, itemID string) ([]domain.BatchAllocation, error) {
	item, err := list.Item(itemID)
	if err != nil {
		return nil, mapDomainError(err)
	}
	return append([]domain.BatchAllocation(nil), item.Reserved...), nil
}

// checkAllocations vets batches the caller named beyond what was reserved
// for the item. Each must hold the item's SKU and size, be saleable and have
// the stock; batches outside the reservation also need a reason, which is
// recorded on the allocation.
func (s *PickingService) checkAllocations(ctx context.Context, list *domain.PickList, itemID string, allocs []domain.BatchAllocation, reason string) ([]domain.BatchAllocation, error) {
	item, err := list.Item(itemID)
	if err != nil {
		return nil, mapDomainError(err)
	}

	taken := make(map[string]int, len(allocs))
	for _, a := range allocs {
		taken[a.BatchID] += a.Quantity
	}

	checked := make([]domain.BatchAllocation, 0, len(allocs))
	for _, a := range allocs {
		held := item.ReservedIn(a.BatchID)
		if held == 0 {
			a.SubstitutionReason = reason
		}
		checked = append(checked, a)

		qty, pending := taken[a.BatchID]
		if !pending || qty <= held {
			continue
		}
		delete(taken, a.BatchID)

		batch, err := s.batchRepo.FindByID(ctx, a.BatchID)
		if err != nil {
			return nil, fmt.Errorf("failed to get batch: %w", err)
		}
		if batch == nil {
			return nil, errors.ErrNotFoundWithID("batch", a.BatchID)
		}
		available := batch.AvailableQty() + held
		if err := domain.ValidateSubstitution(*item, *batch, available, qty, reason); err != nil {
			return nil, mapDomainError(err)
		}
	}
	return checked, nil
}

// resolveAllocations uses the caller's batches when given, otherwise draws
// qty from the reservations in FEFO order
func resolveAllocations(given, reserved []domain.BatchAllocation, qty int) ([]domain.BatchAllocation, error) {
	if len(given) > 0 || qty <= 0 {
		return given, nil
	}
	allocs, ok := allocationsFromReserved(reserved, qty)
	if !ok {
		return nil, errors.ErrValidation(fmt.Sprintf(
			"quantity %d exceeds the %d units reserved, name the batches picked from",
			qty, domain.SumAllocations(reserved)))
	}
	return allocs, nil
}
