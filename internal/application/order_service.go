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

const compensationTimeout = 10 * time.Second

// OrderService handles order intake and trolley estimation
type OrderService struct {
	orderRepo  domain.OrderRepository
	reference  domain.ReferenceDataProvider
	transactor domain.Transactor
	logger     *logging.Logger
	metrics    *metrics.Metrics
}

// NewOrderService creates a new OrderService
func NewOrderService(
	orderRepo domain.OrderRepository,
	reference domain.ReferenceDataProvider,
	transactor domain.Transactor,
	logger *logging.Logger,
	m *metrics.Metrics,
) *OrderService {
	return &OrderService{
		orderRepo:  orderRepo,
		reference:  reference,
		transactor: transactor,
		logger:     logger,
		metrics:    m,
	}
}

// CreateOrder stores a confirmed order and its lines as one unit, then
// stamps a trolley estimate on it. A failed estimate does not fail the order.
func (s *OrderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*OrderDTO, error) {
	lines := make([]domain.OrderLine, 0, len(cmd.Lines))
	for _, l := range cmd.Lines {
		lines = append(lines, domain.OrderLine{
			LineID:      uuid.New().String(),
			SkuID:       l.SkuID,
			SizeID:      l.SizeID,
			Family:      l.Family,
			Description: l.Description,
			Quantity:    l.Quantity,
		})
	}

	order, err := domain.NewOrder(
		uuid.New().String(),
		cmd.OrderNumber,
		cmd.CustomerID,
		cmd.CustomerName,
		cmd.DeliveryAddress,
		cmd.RequestedDeliveryDate,
		lines,
	)
	if err != nil {
		return nil, mapDomainError(err)
	}

	snap := snapshotAggregate(&order.Version, &order.DomainEvents)
	err = s.transactor.WithinTransaction(ctx, func(txCtx context.Context) error {
		snap.restore()
		if err := s.orderRepo.Create(txCtx, order); err != nil {
			return err
		}
		return s.orderRepo.AddLines(txCtx, order.OrderID, order.Lines)
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to create order", "orderId", order.OrderID)
		s.compensateCreate(ctx, order.OrderID)
		return nil, storeError("failed to create order", err)
	}

	s.metrics.RecordOrderCreated()
	s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
		EventType:  "order.created",
		EntityType: "order",
		EntityID:   order.OrderID,
		Action:     "created",
		RelatedIDs: map[string]string{"customerId": order.CustomerID},
		Data:       map[string]any{"lines": len(order.Lines), "units": order.TotalUnits()},
	})

	if err := s.stampEstimate(ctx, order); err != nil {
		s.logger.WithError(err).Warn("Trolley estimate skipped, order left without estimate", "orderId", order.OrderID)
	}

	return ToOrderDTO(order), nil
}

// compensateCreate removes anything a failed create left behind
func (s *OrderService) compensateCreate(ctx context.Context, orderID string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	if err := s.orderRepo.Delete(cleanupCtx, orderID); err != nil {
		s.logger.WithError(err).Error("Failed to roll back order", "orderId", orderID)
	}
}

// GetOrder retrieves an order with its lines
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*OrderDTO, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		return nil, errors.ErrNotFoundWithID("order", orderID)
	}
	return ToOrderDTO(order), nil
}

// RecomputeTrolleyEstimate stamps an estimate on an existing order
func (s *OrderService) RecomputeTrolleyEstimate(ctx context.Context, cmd RecomputeEstimateCommand) (*OrderDTO, error) {
	order, err := s.orderRepo.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		return nil, errors.ErrNotFoundWithID("order", cmd.OrderID)
	}
	if order.TrolleysEstimated != nil && !cmd.Force {
		return ToOrderDTO(order), nil
	}

	if err := s.stampEstimate(ctx, order); err != nil {
		return nil, err
	}
	return ToOrderDTO(order), nil
}

// EstimateTrolleys estimates lines without storing anything
func (s *OrderService) EstimateTrolleys(ctx context.Context, cmd EstimateTrolleysCommand) (*TrolleyEstimateDTO, error) {
	if len(cmd.Lines) == 0 {
		return nil, errors.ErrValidation("at least one line is required")
	}

	lines := make([]domain.EstimateLine, 0, len(cmd.Lines))
	for i, l := range cmd.Lines {
		if l.Quantity <= 0 {
			return nil, errors.ErrValidation(fmt.Sprintf("line %d quantity must be positive", i+1))
		}
		lines = append(lines, domain.EstimateLine{SizeID: l.SizeID, Family: l.Family, Quantity: l.Quantity})
	}

	estimator, err := s.loadEstimator(ctx)
	if err != nil {
		return nil, err
	}
	return ToTrolleyEstimateDTO(estimator.Estimate(lines)), nil
}

func (s *OrderService) stampEstimate(ctx context.Context, order *domain.Order) error {
	estimator, err := s.loadEstimator(ctx)
	if err != nil {
		s.metrics.RecordTrolleyEstimate(false)
		return err
	}

	est := estimator.Estimate(order.EstimateLines())
	order.ApplyTrolleyEstimate(est)
	if err := s.orderRepo.Save(ctx, order); err != nil {
		s.metrics.RecordTrolleyEstimate(false)
		s.logger.WithError(err).Error("Failed to save trolley estimate", "orderId", order.OrderID)
		return storeError("failed to save trolley estimate", err)
	}

	s.metrics.RecordTrolleyEstimate(true)
	s.logger.Info("Trolley estimate stamped",
		"orderId", order.OrderID,
		"trolleys", *order.TrolleysEstimated,
		"total", est.TotalTrolleys,
		"linesWithoutQuantity", est.LinesWithoutQuantity,
	)
	return nil
}

// loadEstimator builds an estimator from the capacity table. Configs without
// a shelf quantity fall back to the size's default.
func (s *OrderService) loadEstimator(ctx context.Context) (*domain.Estimator, error) {
	configs, err := s.reference.GetCapacityConfigs(ctx)
	if err != nil {
		return nil, errors.ErrDependency("capacity configs", err)
	}

	var missing []string
	for _, c := range configs {
		if c.UnitsPerShelf <= 0 {
			missing = append(missing, c.SizeID)
		}
	}
	if len(missing) > 0 {
		shelves, err := s.reference.GetShelfQuantities(ctx, missing)
		if err != nil {
			return nil, errors.ErrDependency("shelf quantities", err)
		}
		completed := make([]domain.CapacityConfig, len(configs))
		copy(completed, configs)
		for i := range completed {
			if completed[i].UnitsPerShelf <= 0 {
				completed[i].UnitsPerShelf = shelves[completed[i].SizeID]
			}
		}
		configs = completed
	}

	return domain.NewEstimator(configs), nil
}
