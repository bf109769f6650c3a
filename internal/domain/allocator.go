package domain

import (
	"fmt"
	"sort"
	"strings"
)

// AllocationResult is the outcome of a FEFO allocation
type AllocationResult struct {
	Allocations []BatchAllocation
	Allocated   int
	Fulfilled   bool
}

// Shortfall returns how many units of demand could not be allocated
func (r AllocationResult) Shortfall(demandQty int) int {
	if r.Allocated >= demandQty {
		return 0
	}
	return demandQty - r.Allocated
}

// Allocate greedily satisfies demandQty from candidates, oldest OrderingKey
// first. Unsaleable and zero-availability batches are never offered.
// candidates is not modified.
func Allocate(demandQty int, candidates []Batch) AllocationResult {
	if demandQty <= 0 {
		return AllocationResult{Fulfilled: true}
	}

	eligible := EligibleBatches(candidates)

	result := AllocationResult{}
	remaining := demandQty
	for _, b := range eligible {
		if remaining == 0 {
			break
		}
		take := min(remaining, b.AvailableQty())
		result.Allocations = append(result.Allocations, BatchAllocation{BatchID: b.BatchID, Quantity: take})
		result.Allocated += take
		remaining -= take
	}

	result.Fulfilled = remaining == 0
	return result
}

// EligibleBatches returns the saleable batches with stock available, in FEFO
// order. Ties on OrderingKey fall back to BatchID so the order is stable.
func EligibleBatches(candidates []Batch) []Batch {
	eligible := make([]Batch, 0, len(candidates))
	for _, b := range candidates {
		if b.IsSaleable() && b.AvailableQty() > 0 {
			eligible = append(eligible, b)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if !eligible[i].OrderingKey.Equal(eligible[j].OrderingKey) {
			return eligible[i].OrderingKey.Before(eligible[j].OrderingKey)
		}
		return eligible[i].BatchID < eligible[j].BatchID
	})
	return eligible
}

// ValidateSubstitution checks a manual batch choice for item. The batch must
// hold the item's SKU in the item's pot size. available is what the picker
// can draw from the batch, including anything already reserved for the same
// item. A reason is required when the batch is not one the FEFO allocation
// reserved for the item.
func ValidateSubstitution(item PickItem, batch Batch, available, qty int, reason string) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if batch.SkuID != item.SkuID || batch.SizeID != item.SizeID {
		return fmt.Errorf("%w: batch %s holds %s/%s, item needs %s/%s",
			ErrBatchMismatch, batch.BatchID, batch.SkuID, batch.SizeID, item.SkuID, item.SizeID)
	}
	if !batch.IsSaleable() {
		return fmt.Errorf("%w: %s", ErrBatchNotSaleable, batch.BatchID)
	}
	if qty > available {
		return fmt.Errorf("%w: batch %s has %d available, %d requested", ErrInsufficientAvailability, batch.BatchID, available, qty)
	}

	if item.ReservedIn(batch.BatchID) > 0 {
		return nil
	}
	if strings.TrimSpace(reason) == "" {
		return ErrReasonRequired
	}
	return nil
}
