package events

import (
	"context"

	"github.com/wms-platform/nursery-fulfillment/internal/application"
	"github.com/wms-platform/nursery-fulfillment/internal/domain"
	"github.com/wms-platform/nursery-fulfillment/pkg/cloudevents"
	"github.com/wms-platform/nursery-fulfillment/pkg/errors"
	"github.com/wms-platform/nursery-fulfillment/pkg/kafka"
	"github.com/wms-platform/nursery-fulfillment/pkg/logging"
)

// TrolleyEstimator recomputes the estimate of a stored order
type TrolleyEstimator interface {
	RecomputeTrolleyEstimate(ctx context.Context, cmd application.RecomputeEstimateCommand) (*application.OrderDTO, error)
}

// EstimateRetryHandler fills in trolley estimates that could not be stamped
// when the order was created
type EstimateRetryHandler struct {
	estimator TrolleyEstimator
	validator *PayloadValidator
	logger    *logging.Logger
}

// NewEstimateRetryHandler creates a new EstimateRetryHandler
func NewEstimateRetryHandler(estimator TrolleyEstimator, validator *PayloadValidator, logger *logging.Logger) *EstimateRetryHandler {
	return &EstimateRetryHandler{
		estimator: estimator,
		validator: validator,
		logger:    logger.WithComponent("estimate-retry"),
	}
}

// Register subscribes the handler to order-created events
func (h *EstimateRetryHandler) Register(consumer *kafka.Consumer) {
	consumer.Subscribe(kafka.Topics.OrdersEvents, cloudevents.OrderCreated, h.Handle)
}

// Handle processes one order-created event. Malformed payloads and orders
// that no longer exist are skipped; store failures are returned so the
// message is redelivered.
func (h *EstimateRetryHandler) Handle(ctx context.Context, event *cloudevents.CloudEvent) error {
	logger := h.logger.WithContext(ctx)

	if err := h.validator.Validate(event); err != nil {
		logger.WithError(err).Warn("Skipping malformed event", "eventId", event.ID)
		return nil
	}

	var payload domain.OrderCreatedEvent
	if err := event.DataAs(&payload); err != nil {
		logger.WithError(err).Warn("Skipping undecodable event", "eventId", event.ID)
		return nil
	}
	if payload.TrolleysEstimated != nil {
		return nil
	}

	dto, err := h.estimator.RecomputeTrolleyEstimate(ctx, application.RecomputeEstimateCommand{OrderID: payload.OrderID})
	if err != nil {
		if errors.IsNotFound(err) {
			logger.Info("Order gone before estimate retry", "orderId", payload.OrderID)
			return nil
		}
		return err
	}

	if dto.TrolleysEstimated != nil {
		logger.Info("Trolley estimate ensured", "orderId", payload.OrderID, "trolleys", *dto.TrolleysEstimated)
	}
	return nil
}
