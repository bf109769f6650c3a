package application

import (
	"context"
	"time"

	"github.com/wms-platform/nursery-fulfillment/internal/domain"
	"github.com/wms-platform/nursery-fulfillment/pkg/logging"
)

const releaseTimeout = 10 * time.Second

// reservationSet tracks batch reservations taken for one operation so they
// can all be handed back if the operation does not complete
type reservationSet struct {
	batches domain.BatchRepository
	logger  *logging.Logger
	held    []domain.BatchAllocation
}

func newReservationSet(batches domain.BatchRepository, logger *logging.Logger) *reservationSet {
	return &reservationSet{batches: batches, logger: logger}
}

// reserve holds every allocation in order. On failure the reservations
// taken so far stay in the set for releaseAll.
func (r *reservationSet) reserve(ctx context.Context, allocs []domain.BatchAllocation) error {
	for _, a := range allocs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.batches.Reserve(ctx, a.BatchID, a.Quantity); err != nil {
			return err
		}
		r.held = append(r.held, domain.BatchAllocation{BatchID: a.BatchID, Quantity: a.Quantity})
	}
	return nil
}

// releaseAll returns every held reservation. It runs on a detached context
// so a cancelled caller still gets its stock released.
func (r *reservationSet) releaseAll(ctx context.Context) {
	if len(r.held) == 0 {
		return
	}
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	for i := len(r.held) - 1; i >= 0; i-- {
		a := r.held[i]
		if err := r.batches.Release(releaseCtx, a.BatchID, a.Quantity); err != nil {
			r.logger.WithError(err).Warn("Failed to release reservation",
				"batchId", a.BatchID,
				"quantity", a.Quantity,
			)
		}
	}
	r.held = nil
}

// stockMove is what happens to one batch when an item is resolved
type stockMove struct {
	batchID string
	reserve int // extra units not covered by the item's reservation
	consume int
	release int // reserved units that were not used
}

// planStockMoves compares what was reserved for an item with what was
// actually taken. Batches are visited in first-seen order.
func planStockMoves(reserved, taken []domain.BatchAllocation) []stockMove {
	var order []string
	held := make(map[string]int)
	used := make(map[string]int)
	seen := make(map[string]bool)
	visit := func(id string) {
		if !seen[id] {
			seen[id] = true
			order = append(order, id)
		}
	}
	for _, r := range reserved {
		visit(r.BatchID)
		held[r.BatchID] += r.Quantity
	}
	for _, t := range taken {
		visit(t.BatchID)
		used[t.BatchID] += t.Quantity
	}

	moves := make([]stockMove, 0, len(order))
	for _, id := range order {
		h, u := held[id], used[id]
		moves = append(moves, stockMove{
			batchID: id,
			reserve: max(u-h, 0),
			consume: u,
			release: max(h-u, 0),
		})
	}
	return moves
}

// applyStockMoves executes moves. Reservations are taken before anything
// is consumed or released.
func applyStockMoves(ctx context.Context, batches domain.BatchRepository, moves []stockMove) error {
	for _, m := range moves {
		if m.reserve > 0 {
			if err := batches.Reserve(ctx, m.batchID, m.reserve); err != nil {
				return err
			}
		}
	}
	for _, m := range moves {
		if m.consume > 0 {
			if err := batches.Consume(ctx, m.batchID, m.consume); err != nil {
				return err
			}
		}
		if m.release > 0 {
			if err := batches.Release(ctx, m.batchID, m.release); err != nil {
				return err
			}
		}
	}
	return nil
}

// allocationsFromReserved takes qty from reserved in order
func allocationsFromReserved(reserved []domain.BatchAllocation, qty int) ([]domain.BatchAllocation, bool) {
	out := make([]domain.BatchAllocation, 0, len(reserved))
	remaining := qty
	for _, r := range reserved {
		if remaining == 0 {
			break
		}
		take := min(remaining, r.Quantity)
		out = append(out, domain.BatchAllocation{BatchID: r.BatchID, Quantity: take})
		remaining -= take
	}
	return out, remaining == 0
}
