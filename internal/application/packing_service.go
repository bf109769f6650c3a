package application

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/wms-platform/nursery-fulfillment/internal/domain"
	"github.com/wms-platform/nursery-fulfillment/pkg/errors"
	"github.com/wms-platform/nursery-fulfillment/pkg/logging"
)

// PackingService records how orders were packed onto trolleys
type PackingService struct {
	orderRepo   domain.OrderRepository
	packingRepo domain.PackingRepository
	logger      *logging.Logger
}

// NewPackingService creates a new PackingService
func NewPackingService(orderRepo domain.OrderRepository, packingRepo domain.PackingRepository, logger *logging.Logger) *PackingService {
	return &PackingService{
		orderRepo:   orderRepo,
		packingRepo: packingRepo,
		logger:      logger,
	}
}

// UpdatePacking applies one packing action. The packing record is created
// on the first action for an order.
func (s *PackingService) UpdatePacking(ctx context.Context, cmd UpdatePackingCommand) (*PackingDTO, error) {
	order, err := s.orderRepo.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		return nil, errors.ErrNotFoundWithID("order", cmd.OrderID)
	}

	packing, err := s.packingRepo.FindByOrderID(ctx, cmd.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get packing: %w", err)
	}
	if packing == nil {
		packing = domain.NewOrderPacking(uuid.New().String(), cmd.OrderID)
	}

	switch cmd.Action {
	case PackingActionStart:
		err = packing.Start()
	case PackingActionComplete:
		err = packing.Complete(cmd.TrolleysUsed, cmd.Notes)
	case PackingActionVerify:
		err = packing.Verify(cmd.VerifiedBy)
	default:
		return nil, errors.ErrValidation(fmt.Sprintf("unknown packing action %q", cmd.Action))
	}
	if err != nil {
		return nil, mapDomainError(err)
	}

	if err := s.packingRepo.Save(ctx, packing); err != nil {
		s.logger.WithError(err).Error("Failed to save packing", "orderId", cmd.OrderID, "action", cmd.Action)
		return nil, storeError("failed to save packing", err)
	}

	if cmd.Action == PackingActionComplete {
		used := *packing.TrolleysUsed
		if used == 0 && order.TrolleysEstimated != nil && *order.TrolleysEstimated > 0 {
			s.logger.Warn("Packing recorded zero trolleys against a positive estimate",
				"orderId", order.OrderID,
				"estimated", *order.TrolleysEstimated,
			)
		}
		s.logger.LogBusinessEvent(ctx, logging.BusinessEvent{
			EventType:  "packing.completed",
			EntityType: "packing",
			EntityID:   packing.PackingID,
			Action:     "completed",
			RelatedIDs: map[string]string{"orderId": order.OrderID},
			Data:       map[string]any{"trolleysUsed": used},
		})
	} else {
		s.logger.Info("Packing updated", "orderId", order.OrderID, "action", cmd.Action, "status", packing.Status)
	}

	return ToPackingDTO(packing), nil
}

// GetPacking retrieves the packing record of an order
func (s *PackingService) GetPacking(ctx context.Context, orderID string) (*PackingDTO, error) {
	packing, err := s.packingRepo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get packing: %w", err)
	}
	if packing == nil {
		return nil, errors.ErrNotFoundWithID("packing for order", orderID)
	}
	return ToPackingDTO(packing), nil
}
