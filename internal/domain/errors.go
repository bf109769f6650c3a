package domain

import "errors"

// Errors
var (
	ErrInvalidQuantity          = errors.New("invalid quantity")
	ErrQuantityExceedsTarget    = errors.New("quantity exceeds target quantity")
	ErrAllocationMismatch       = errors.New("allocation quantities do not sum to picked quantity")
	ErrReasonRequired           = errors.New("substitution reason is required")
	ErrInsufficientAvailability = errors.New("insufficient available quantity in batch")
	ErrBatchNotSaleable         = errors.New("batch is not saleable")
	ErrBatchMismatch            = errors.New("batch does not hold the item's sku and size")
	ErrInvalidTransition        = errors.New("invalid state transition")
	ErrPickItemNotFound         = errors.New("pick item not found in pick list")
	ErrPickListIncomplete       = errors.New("pick list has pending items")
	ErrTrolleysRequired         = errors.New("trolleys used must be provided to complete packing")
	ErrVerifierRequired         = errors.New("verifier is required")
	ErrInvalidAssignment        = errors.New("team or user is required for assignment")
	ErrOrderAlreadyOnRun        = errors.New("order is already on a delivery run")
	ErrOrderNotOnRun            = errors.New("order is not on this delivery run")
	ErrDeliveryItemNotFound     = errors.New("delivery item not found in run")
	ErrCannotMove               = errors.New("delivery item cannot move further")
	ErrRunNotEditable           = errors.New("delivery run can no longer be edited")
	ErrEmptyRun                 = errors.New("delivery run has no items")
	ErrInvalidRun               = errors.New("invalid delivery run")
	ErrEmptyOrder               = errors.New("order must have at least one line")
	ErrInvalidOrder             = errors.New("invalid order")
	ErrInvalidBatch             = errors.New("invalid batch")
	ErrBatchNotFound            = errors.New("batch not found")
	ErrConcurrentModification   = errors.New("aggregate was modified concurrently")
)
