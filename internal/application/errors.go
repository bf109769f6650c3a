package application

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/wms-platform/nursery-fulfillment/internal/domain"
	apperrors "github.com/wms-platform/nursery-fulfillment/pkg/errors"
)

var validationErrors = []error{
	domain.ErrInvalidQuantity,
	domain.ErrQuantityExceedsTarget,
	domain.ErrAllocationMismatch,
	domain.ErrReasonRequired,
	domain.ErrBatchNotSaleable,
	domain.ErrBatchMismatch,
	domain.ErrInvalidTransition,
	domain.ErrPickListIncomplete,
	domain.ErrTrolleysRequired,
	domain.ErrVerifierRequired,
	domain.ErrInvalidAssignment,
	domain.ErrCannotMove,
	domain.ErrRunNotEditable,
	domain.ErrEmptyRun,
	domain.ErrInvalidRun,
	domain.ErrEmptyOrder,
	domain.ErrInvalidOrder,
	domain.ErrInvalidBatch,
}

var notFoundErrors = []error{
	domain.ErrPickItemNotFound,
	domain.ErrDeliveryItemNotFound,
	domain.ErrOrderNotOnRun,
	domain.ErrBatchNotFound,
}

// mapDomainError converts domain sentinels into AppErrors. Anything else is
// returned unchanged.
func mapDomainError(err error) error {
	if err == nil {
		return nil
	}
	if apperrors.IsAppError(err) {
		return err
	}

	switch {
	case errors.Is(err, domain.ErrConcurrentModification), errors.Is(err, domain.ErrOrderAlreadyOnRun):
		return apperrors.ErrConflict(err.Error()).Wrap(err)
	case errors.Is(err, domain.ErrInsufficientAvailability):
		return apperrors.NewAppError(apperrors.CodeInsufficientStock, err.Error(), http.StatusUnprocessableEntity).Wrap(err)
	}
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return apperrors.NewAppError(apperrors.CodeNotFound, err.Error(), http.StatusNotFound).Wrap(err)
		}
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return apperrors.ErrValidation(err.Error()).Wrap(err)
		}
	}
	return err
}

// storeError wraps a repository failure, keeping optimistic lock conflicts
// visible as CONFLICT
func storeError(action string, err error) error {
	if errors.Is(err, domain.ErrConcurrentModification) {
		return apperrors.ErrConflict(fmt.Sprintf("%s: modified by another request, retry", action)).Wrap(err)
	}
	if mapped := mapDomainError(err); mapped != err {
		return mapped
	}
	return fmt.Errorf("%s: %w", action, err)
}
