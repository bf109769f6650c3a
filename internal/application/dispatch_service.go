package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wms-platform/nursery-fulfillment/internal/domain"
	"github.com/wms-platform/nursery-fulfillment/pkg/errors"
	"github.com/wms-platform/nursery-fulfillment/pkg/logging"
	"github.com/wms-platform/nursery-fulfillment/pkg/metrics"
)

// DefaultBoardLimit caps the dispatch board when the caller sets no limit
const DefaultBoardLimit = 200

// DispatchService plans delivery runs and serves the dispatch board
type DispatchService struct {
	orderRepo    domain.OrderRepository
	pickListRepo domain.PickListRepository
	packingRepo  domain.PackingRepository
	runRepo      domain.DeliveryRunRepository
	reference    domain.ReferenceDataProvider
	transactor   domain.Transactor
	logger       *logging.Logger
	metrics      *metrics.Metrics
}

// NewDispatchService creates a new DispatchService
func NewDispatchService(
	orderRepo domain.OrderRepository,
	pickListRepo domain.PickListRepository,
	packingRepo domain.PackingRepository,
	runRepo domain.DeliveryRunRepository,
	reference domain.ReferenceDataProvider,
	transactor domain.Transactor,
	logger *logging.Logger,
	m *metrics.Metrics,
) *DispatchService {
	return &DispatchService{
		orderRepo:    orderRepo,
		pickListRepo: pickListRepo,
		packingRepo:  packingRepo,
		runRepo:      runRepo,
		reference:    reference,
		transactor:   transactor,
		logger:       logger,
		metrics:      m,
	}
}

// CreateDeliveryRun plans an empty run for a haulier and optional vehicle
func (s *DispatchService) CreateDeliveryRun(ctx context.Context, cmd CreateDeliveryRunCommand) (*DeliveryRunDTO, error) {
	if cmd.RunDate.IsZero() {
		return nil, errors.ErrValidation("run date is required")
	}

	haulier, err := s.reference.GetHaulier(ctx, cmd.HaulierID)
	if err != nil {
		return nil, errors.ErrDependency("haulier", err)
	}
	if haulier == nil {
		return nil, errors.ErrValidation(fmt.Sprintf("unknown haulier %q", cmd.HaulierID))
	}

	var vehicle *domain.Vehicle
	if cmd.VehicleID != "" {
		vehicle, err = s.reference.GetVehicle(ctx, cmd.VehicleID)
		if err != nil {
			return nil, errors.ErrDependency("vehicle", err)
		}
		if vehicle == nil {
			return nil, errors.ErrValidation(fmt.Sprintf("unknown vehicle %q", cmd.VehicleID))
		}
		if vehicle.HaulierID != haulier.HaulierID {
			return nil, errors.ErrValidation(fmt.Sprintf("vehicle %s does not belong to haulier %s", vehicle.VehicleID, haulier.HaulierID))
		}
	}

	run, err := domain.NewDeliveryRun(uuid.New().String(), cmd.RunDate.UTC(), cmd.HaulierID, cmd.VehicleID)
	if err != nil {
		return nil, mapDomainError(err)
	}
	if err := s.runRepo.Save(ctx, run); err != nil {
		s.logger.WithError(err).Error("Failed to save delivery run", "runId", run.RunID)
		return nil, storeError("failed to create delivery run", err)
	}

	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "dispatch.run_created",
		EntityType: "delivery_run",
		EntityID:   run.RunID,
		Action:     "created",
		RelatedIDs: map[string]string{"haulierId": cmd.HaulierID, "vehicleId": cmd.VehicleID},
	})
	return ToDeliveryRunDTO(run, domain.ResolveCapacity(vehicle, haulier)), nil
}

// GetDeliveryRun retrieves a run with its fill figures
func (s *DispatchService) GetDeliveryRun(ctx context.Context, runID string) (*DeliveryRunDTO, error) {
	run, err := s.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return ToDeliveryRunDTO(run, s.runCapacity(ctx, run)), nil
}

// AddOrderToRun loads a confirmed order as the run's last stop
func (s *DispatchService) AddOrderToRun(ctx context.Context, cmd AddOrderToRunCommand) (*DeliveryRunDTO, error) {
	run, err := s.loadRun(ctx, cmd.RunID)
	if err != nil {
		return nil, err
	}

	order, err := s.orderRepo.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		return nil, errors.ErrNotFoundWithID("order", cmd.OrderID)
	}
	if order.Status != domain.OrderStatusConfirmed {
		return nil, errors.ErrValidation(fmt.Sprintf("order %s is %s and cannot be loaded", order.OrderID, order.Status))
	}

	packing, err := s.packingRepo.FindByOrderID(ctx, order.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get packing: %w", err)
	}

	trolleys, source := domain.ResolveTrolleys(cmd.TrolleysDelivered, packing, order)
	item, err := run.AddOrder(uuid.New().String(), order.OrderID, trolleys, source)
	if err != nil {
		return nil, mapDomainError(err)
	}

	// The order is saved alongside the run so two runs claiming it at once
	// collide on its version.
	runSnap := snapshotAggregate(&run.Version, &run.DomainEvents)
	orderSnap := snapshotAggregate(&order.Version, &order.DomainEvents)
	err = s.transactor.WithinTransaction(ctx, func(txCtx context.Context) error {
		runSnap.restore()
		orderSnap.restore()

		active, err := s.runRepo.FindActiveByOrderID(txCtx, order.OrderID)
		if err != nil {
			return fmt.Errorf("failed to check active runs: %w", err)
		}
		if active != nil && active.RunID != run.RunID {
			return errors.ErrConflict(fmt.Sprintf("order %s is already on run %s", order.OrderID, active.RunID)).
				WithDetail("runId", active.RunID)
		}
		if err := s.orderRepo.Save(txCtx, order); err != nil {
			return err
		}
		return s.runRepo.Save(txCtx, run)
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to save delivery run", "runId", run.RunID, "orderId", order.OrderID)
		return nil, storeError("failed to add order to run", err)
	}

	capacity := s.runCapacity(ctx, run)
	if capacity > 0 && run.TotalTrolleys() > capacity {
		s.logger.Warn("Delivery run over capacity",
			"runId", run.RunID,
			"trolleys", run.TotalTrolleys(),
			"capacity", capacity,
		)
	}
	s.logger.Info("Order added to run",
		"runId", run.RunID,
		"orderId", order.OrderID,
		"sequence", item.SequenceNumber,
		"trolleys", trolleys,
		"source", source,
	)
	return ToDeliveryRunDTO(run, capacity), nil
}

// RemoveOrderFromRun takes an order off a run that has not left
func (s *DispatchService) RemoveOrderFromRun(ctx context.Context, cmd RemoveOrderFromRunCommand) (*DeliveryRunDTO, error) {
	run, err := s.loadRun(ctx, cmd.RunID)
	if err != nil {
		return nil, err
	}
	if err := run.RemoveOrder(cmd.OrderID); err != nil {
		return nil, mapDomainError(err)
	}
	if err := s.runRepo.Save(ctx, run); err != nil {
		s.logger.WithError(err).Error("Failed to save delivery run", "runId", run.RunID)
		return nil, storeError("failed to remove order from run", err)
	}

	s.logger.Info("Order removed from run", "runId", run.RunID, "orderId", cmd.OrderID)
	return ToDeliveryRunDTO(run, s.runCapacity(ctx, run)), nil
}

// ReorderDeliveryItem moves a stop one place up or down
func (s *DispatchService) ReorderDeliveryItem(ctx context.Context, cmd ReorderDeliveryItemCommand) (*DeliveryRunDTO, error) {
	run, err := s.loadRun(ctx, cmd.RunID)
	if err != nil {
		return nil, err
	}
	if err := run.MoveItem(cmd.ItemID, cmd.Direction); err != nil {
		return nil, mapDomainError(err)
	}
	if err := s.runRepo.Save(ctx, run); err != nil {
		s.logger.WithError(err).Error("Failed to save delivery run", "runId", run.RunID)
		return nil, storeError("failed to reorder run", err)
	}

	s.logger.Info("Delivery item moved", "runId", run.RunID, "itemId", cmd.ItemID, "direction", cmd.Direction)
	return ToDeliveryRunDTO(run, s.runCapacity(ctx, run)), nil
}

// UpdateRunStatus advances a run and carries its orders along: leaving the
// yard dispatches them, completing delivers or returns them
func (s *DispatchService) UpdateRunStatus(ctx context.Context, cmd UpdateRunStatusCommand) (*DeliveryRunDTO, error) {
	run, err := s.loadRun(ctx, cmd.RunID)
	if err != nil {
		return nil, err
	}
	if err := run.TransitionTo(cmd.Status); err != nil {
		return nil, mapDomainError(err)
	}

	snap := snapshotAggregate(&run.Version, &run.DomainEvents)
	err = s.transactor.WithinTransaction(ctx, func(txCtx context.Context) error {
		snap.restore()
		if err := s.runRepo.Save(txCtx, run); err != nil {
			return err
		}

		switch cmd.Status {
		case domain.RunStatusInTransit:
			return s.setOrderStatus(txCtx, run.OrderIDs(), domain.OrderStatusDispatched)
		case domain.RunStatusCompleted:
			if err := s.setOrderStatus(txCtx, run.OrdersWithItemStatus(domain.DeliveryItemDelivered), domain.OrderStatusDelivered); err != nil {
				return err
			}
			return s.setOrderStatus(txCtx, run.OrdersWithItemStatus(domain.DeliveryItemFailed), domain.OrderStatusConfirmed)
		}
		return nil
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to update run status", "runId", run.RunID, "status", cmd.Status)
		return nil, storeError("failed to update run status", err)
	}

	s.metrics.RecordRunTransition(string(cmd.Status))
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "dispatch.run_status_changed",
		EntityType: "delivery_run",
		EntityID:   run.RunID,
		Action:     string(cmd.Status),
		Data:       map[string]any{"orders": len(run.Items)},
	})
	return ToDeliveryRunDTO(run, s.runCapacity(ctx, run)), nil
}

func (s *DispatchService) setOrderStatus(ctx context.Context, orderIDs []string, status domain.OrderStatus) error {
	if len(orderIDs) == 0 {
		return nil
	}
	return s.orderRepo.UpdateStatus(ctx, orderIDs, status)
}

// MarkDeliveryItem records whether a drop was delivered or failed
func (s *DispatchService) MarkDeliveryItem(ctx context.Context, cmd MarkDeliveryItemCommand) (*DeliveryRunDTO, error) {
	run, err := s.loadRun(ctx, cmd.RunID)
	if err != nil {
		return nil, err
	}

	switch cmd.Status {
	case domain.DeliveryItemDelivered:
		err = run.MarkItemDelivered(cmd.ItemID)
	case domain.DeliveryItemFailed:
		err = run.MarkItemFailed(cmd.ItemID, cmd.Notes)
	default:
		return nil, errors.ErrValidation(fmt.Sprintf("status must be %s or %s", domain.DeliveryItemDelivered, domain.DeliveryItemFailed))
	}
	if err != nil {
		return nil, mapDomainError(err)
	}
	if err := s.runRepo.Save(ctx, run); err != nil {
		s.logger.WithError(err).Error("Failed to save delivery run", "runId", run.RunID)
		return nil, storeError("failed to mark delivery item", err)
	}

	s.logger.Info("Delivery item resolved", "runId", run.RunID, "itemId", cmd.ItemID, "status", cmd.Status)
	return ToDeliveryRunDTO(run, s.runCapacity(ctx, run)), nil
}

// GetDispatchBoard lists open orders with the stage derived from their
// pick list, packing and latest run
func (s *DispatchService) GetDispatchBoard(ctx context.Context, query GetDispatchBoardQuery) (*DispatchBoardDTO, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = DefaultBoardLimit
	}
	statuses := []domain.OrderStatus{domain.OrderStatusConfirmed, domain.OrderStatusDispatched}
	if query.IncludeDelivered {
		statuses = append(statuses, domain.OrderStatusDelivered)
	}

	orders, err := s.orderRepo.FindByStatuses(ctx, statuses, limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list orders for board")
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.OrderID)
	}

	lists, err := s.pickListRepo.FindByOrderIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load pick lists: %w", err)
	}
	packings, err := s.packingRepo.FindByOrderIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load packings: %w", err)
	}
	runs, err := s.runRepo.FindLatestByOrderIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load delivery runs: %w", err)
	}

	listByOrder := make(map[string]*domain.PickList, len(lists))
	for _, l := range lists {
		listByOrder[l.OrderID] = l
	}
	packingByOrder := make(map[string]*domain.OrderPacking, len(packings))
	for _, p := range packings {
		packingByOrder[p.OrderID] = p
	}

	board := &DispatchBoardDTO{
		Orders:      make([]BoardOrderDTO, 0, len(orders)),
		StageCounts: make(map[string]int, len(domain.AllStages)),
		GeneratedAt: time.Now().UTC(),
	}
	for _, stage := range domain.AllStages {
		board.StageCounts[string(stage)] = 0
	}

	for _, order := range orders {
		in := domain.StageInput{
			Order:    order,
			PickList: listByOrder[order.OrderID],
			Packing:  packingByOrder[order.OrderID],
			Run:      runs[order.OrderID],
		}
		if in.Run != nil {
			in.DeliveryItem = in.Run.ItemForOrder(order.OrderID)
		}
		stage := domain.DeriveStage(in)
		board.StageCounts[string(stage)]++

		row := BoardOrderDTO{
			OrderID:               order.OrderID,
			OrderNumber:           order.OrderNumber,
			CustomerName:          order.CustomerName,
			RequestedDeliveryDate: order.RequestedDeliveryDate,
			Status:                string(order.Status),
			Stage:                 string(stage),
			TrolleysEstimated:     order.TrolleysEstimated,
		}
		if in.PickList != nil {
			row.PickListID = in.PickList.PickListID
		}
		if in.Packing != nil {
			row.TrolleysUsed = in.Packing.TrolleysUsed
		}
		if in.DeliveryItem != nil {
			row.RunID = in.Run.RunID
			row.SequenceNumber = in.DeliveryItem.SequenceNumber
		}
		board.Orders = append(board.Orders, row)
	}

	return board, nil
}

func (s *DispatchService) loadRun(ctx context.Context, runID string) (*domain.DeliveryRun, error) {
	run, err := s.runRepo.FindByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery run: %w", err)
	}
	if run == nil {
		return nil, errors.ErrNotFoundWithID("delivery run", runID)
	}
	return run, nil
}

// runCapacity resolves the trolley capacity of a run. Reference failures
// degrade to an unknown capacity of 0.
func (s *DispatchService) runCapacity(ctx context.Context, run *domain.DeliveryRun) int {
	haulier, err := s.reference.GetHaulier(ctx, run.HaulierID)
	if err != nil {
		s.logger.WithError(err).Warn("Haulier lookup failed, capacity unknown", "runId", run.RunID)
		return 0
	}
	var vehicle *domain.Vehicle
	if run.VehicleID != "" {
		vehicle, err = s.reference.GetVehicle(ctx, run.VehicleID)
		if err != nil {
			s.logger.WithError(err).Warn("Vehicle lookup failed, using haulier capacity", "runId", run.RunID)
			vehicle = nil
		}
	}
	return domain.ResolveCapacity(vehicle, haulier)
}
