package application

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/nursery-fulfillment/internal/domain"
	apperrors "github.com/wms-platform/nursery-fulfillment/pkg/errors"
)

func TestPickingService_GeneratePickList(t *testing.T) {
	ctx := context.Background()

	t.Run("allocates oldest first and reports shortfall", func(t *testing.T) {
		f := newFixture(t,
			testBatch(t, "B-NEW", "LAV-HID", "2L", 2, 10),
			testBatch(t, "B-OLD", "LAV-HID", "2L", 4, 90),
		)
		f.seedOrder(t, "ORD-1", nil)

		result, err := f.pickingSvc.GeneratePickList(ctx, GeneratePickListCommand{OrderID: "ORD-1"})
		require.NoError(t, err)

		require.Len(t, result.PickList.Items, 1)
		item := result.PickList.Items[0]
		assert.Equal(t, 10, item.TargetQty)
		assert.Equal(t, []BatchAllocationDTO{{BatchID: "B-OLD", Quantity: 4}, {BatchID: "B-NEW", Quantity: 2}}, item.Reserved)
		assert.Equal(t, "pending", result.PickList.Status)
		assert.Equal(t, 1, result.PickList.Sequence)

		require.Len(t, result.Shortfalls, 1)
		assert.Equal(t, 10, result.Shortfalls[0].Demanded)
		assert.Equal(t, 6, result.Shortfalls[0].Allocated)
		assert.Equal(t, 4, result.Shortfalls[0].Missing)

		assert.Equal(t, 4, f.batches.get("B-OLD").QuantityReserved)
		assert.Equal(t, 2, f.batches.get("B-NEW").QuantityReserved)
	})

	t.Run("second list for the same order conflicts", func(t *testing.T) {
		f := newFixture(t, testBatch(t, "B1", "LAV-HID", "2L", 50, 30))
		f.seedOrder(t, "ORD-1", nil)

		_, err := f.pickingSvc.GeneratePickList(ctx, GeneratePickListCommand{OrderID: "ORD-1"})
		require.NoError(t, err)
		_, err = f.pickingSvc.GeneratePickList(ctx, GeneratePickListCommand{OrderID: "ORD-1"})
		assert.True(t, apperrors.IsConflict(err))
		assert.Equal(t, 10, f.batches.get("B1").QuantityReserved)
	})

	t.Run("unknown order", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.pickingSvc.GeneratePickList(ctx, GeneratePickListCommand{OrderID: "missing"})
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("lost reservation is retried", func(t *testing.T) {
		f := newFixture(t, testBatch(t, "B1", "LAV-HID", "2L", 50, 30))
		f.seedOrder(t, "ORD-1", nil)

		calls := 0
		f.batches.reserveFn = func(string, int) error {
			calls++
			if calls == 1 {
				return domain.ErrInsufficientAvailability
			}
			return nil
		}

		result, err := f.pickingSvc.GeneratePickList(ctx, GeneratePickListCommand{OrderID: "ORD-1"})
		require.NoError(t, err)
		assert.Empty(t, result.Shortfalls)
		assert.Equal(t, 10, f.batches.get("B1").QuantityReserved)
		assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.ReservationConflicts))
	})

	t.Run("persistent contention releases everything", func(t *testing.T) {
		f := newFixture(t,
			testBatch(t, "B-LAV", "LAV-HID", "2L", 50, 30),
			testBatch(t, "B-SAL", "SAL-CAR", "9cm", 50, 30),
		)
		f.seedOrder(t, "ORD-1", nil,
			domain.OrderLine{LineID: "L1", SkuID: "LAV-HID", SizeID: "2L", Family: "lavandula", Quantity: 5},
			domain.OrderLine{LineID: "L2", SkuID: "SAL-CAR", SizeID: "9cm", Family: "salvia", Quantity: 5},
		)
		f.batches.reserveFn = func(batchID string, _ int) error {
			if batchID == "B-SAL" {
				return domain.ErrInsufficientAvailability
			}
			return nil
		}

		_, err := f.pickingSvc.GeneratePickList(ctx, GeneratePickListCommand{OrderID: "ORD-1"})
		assert.True(t, apperrors.IsConflict(err))
		assert.Equal(t, 0, f.batches.get("B-LAV").QuantityReserved)
		assert.Equal(t, 0, f.batches.get("B-SAL").QuantityReserved)
		assert.Equal(t, float64(3), testutil.ToFloat64(f.metrics.ReservationConflicts))
	})

	t.Run("cancelled allocation leaves no reservations", func(t *testing.T) {
		tests := []struct {
			name     string
			cancelOn string
		}{
			{name: "cancelled between lines", cancelOn: "B-LAV"},
			{name: "cancelled on the last reservation", cancelOn: "B-SAL"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := newFixture(t,
					testBatch(t, "B-LAV", "LAV-HID", "2L", 50, 30),
					testBatch(t, "B-SAL", "SAL-CAR", "9cm", 50, 30),
				)
				f.seedOrder(t, "ORD-1", nil,
					domain.OrderLine{LineID: "L1", SkuID: "LAV-HID", SizeID: "2L", Family: "lavandula", Quantity: 5},
					domain.OrderLine{LineID: "L2", SkuID: "SAL-CAR", SizeID: "9cm", Family: "salvia", Quantity: 5},
				)

				cctx, cancel := context.WithCancel(ctx)
				defer cancel()
				f.batches.reserveFn = func(batchID string, _ int) error {
					if batchID == tt.cancelOn {
						cancel()
					}
					return nil
				}

				_, err := f.pickingSvc.GeneratePickList(cctx, GeneratePickListCommand{OrderID: "ORD-1"})
				require.Error(t, err)
				assert.ErrorIs(t, err, context.Canceled)
				assert.Equal(t, 0, f.batches.get("B-LAV").QuantityReserved)
				assert.Equal(t, 0, f.batches.get("B-SAL").QuantityReserved)

				list, err := f.pickLists.FindByOrderID(ctx, "ORD-1")
				require.NoError(t, err)
				assert.Nil(t, list)
			})
		}
	})

	t.Run("failed save releases reservations", func(t *testing.T) {
		f := newFixture(t, testBatch(t, "B1", "LAV-HID", "2L", 50, 30))
		f.seedOrder(t, "ORD-1", nil)
		f.pickLists.saveFn = func(*domain.PickList) error { return errors.New("disk full") }

		_, err := f.pickingSvc.GeneratePickList(ctx, GeneratePickListCommand{OrderID: "ORD-1"})
		require.Error(t, err)
		assert.Equal(t, 0, f.batches.get("B1").QuantityReserved)
	})
}

func generateList(t *testing.T, f *fixture, orderID string) *PickListDTO {
	t.Helper()
	result, err := f.pickingSvc.GeneratePickList(context.Background(), GeneratePickListCommand{OrderID: orderID})
	require.NoError(t, err)
	return result.PickList
}

func TestPickingService_PickItem(t *testing.T) {
	ctx := context.Background()

	t.Run("picking the reserved quantity below target is short", func(t *testing.T) {
		f := newFixture(t,
			testBatch(t, "B-OLD", "LAV-HID", "2L", 4, 90),
			testBatch(t, "B-NEW", "LAV-HID", "2L", 2, 10),
		)
		f.seedOrder(t, "ORD-1", nil)
		list := generateList(t, f, "ORD-1")

		dto, err := f.pickingSvc.PickItem(ctx, PickItemCommand{
			PickListID: list.PickListID,
			ItemID:     list.Items[0].ItemID,
			Quantity:   6,
		})
		require.NoError(t, err)

		item := dto.Items[0]
		assert.Equal(t, "short", item.Status)
		assert.Equal(t, 6, item.PickedQty)
		assert.Empty(t, item.Reserved)
		assert.Equal(t, "completed", dto.Status)

		for _, id := range []string{"B-OLD", "B-NEW"} {
			b := f.batches.get(id)
			assert.Equal(t, 0, b.QuantityOnHand, id)
			assert.Equal(t, 0, b.QuantityReserved, id)
		}
	})

	t.Run("full pick from a named batch releases the rest", func(t *testing.T) {
		f := newFixture(t,
			testBatch(t, "B-OLD", "LAV-HID", "2L", 6, 90),
			testBatch(t, "B-NEW", "LAV-HID", "2L", 20, 10),
		)
		f.seedOrder(t, "ORD-1", nil)
		list := generateList(t, f, "ORD-1")

		dto, err := f.pickingSvc.PickItem(ctx, PickItemCommand{
			PickListID:  list.PickListID,
			ItemID:      list.Items[0].ItemID,
			Quantity:    10,
			Allocations: []domain.BatchAllocation{{BatchID: "B-NEW", Quantity: 10}},
		})
		require.NoError(t, err)
		assert.Equal(t, "picked", dto.Items[0].Status)

		old := f.batches.get("B-OLD")
		assert.Equal(t, 6, old.QuantityOnHand)
		assert.Equal(t, 0, old.QuantityReserved)
		fresh := f.batches.get("B-NEW")
		assert.Equal(t, 10, fresh.QuantityOnHand)
		assert.Equal(t, 0, fresh.QuantityReserved)
	})

	t.Run("more than reserved without batches", func(t *testing.T) {
		f := newFixture(t, testBatch(t, "B1", "LAV-HID", "2L", 6, 30))
		f.seedOrder(t, "ORD-1", nil)
		list := generateList(t, f, "ORD-1")

		_, err := f.pickingSvc.PickItem(ctx, PickItemCommand{PickListID: list.PickListID, ItemID: list.Items[0].ItemID, Quantity: 8})
		assert.True(t, apperrors.IsValidation(err))
		assert.Equal(t, 6, f.batches.get("B1").QuantityReserved)
	})

	t.Run("named batches outside the reservation", func(t *testing.T) {
		rejected := func(t *testing.T) *domain.Batch {
			b := testBatch(t, "B-REJ", "LAV-HID", "2L", 50, 60)
			b.QualityStatus = domain.QualityRejected
			return b
		}
		tests := []struct {
			name    string
			extra   func(t *testing.T) *domain.Batch
			batchID string
			reason  string
			checkFn func(error) bool
		}{
			{
				name:    "other sku",
				extra:   func(t *testing.T) *domain.Batch { return testBatch(t, "B-X", "OTHER-SKU", "2L", 50, 60) },
				batchID: "B-X", reason: "closer to the bay",
				checkFn: apperrors.IsValidation,
			},
			{
				name:    "other pot size",
				extra:   func(t *testing.T) *domain.Batch { return testBatch(t, "B-X", "LAV-HID", "9cm", 50, 60) },
				batchID: "B-X", reason: "closer to the bay",
				checkFn: apperrors.IsValidation,
			},
			{
				name:    "rejected batch",
				extra:   rejected,
				batchID: "B-REJ", reason: "closer to the bay",
				checkFn: apperrors.IsValidation,
			},
			{
				name:    "no reason",
				extra:   func(t *testing.T) *domain.Batch { return testBatch(t, "B-X", "LAV-HID", "2L", 50, 60) },
				batchID: "B-X",
				checkFn: apperrors.IsValidation,
			},
			{
				name:    "unknown batch",
				extra:   func(t *testing.T) *domain.Batch { return testBatch(t, "B-X", "LAV-HID", "2L", 50, 60) },
				batchID: "B-NONE", reason: "closer to the bay",
				checkFn: apperrors.IsNotFound,
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				extra := tt.extra(t)
				f := newFixture(t, testBatch(t, "B-OLD", "LAV-HID", "2L", 50, 90), extra)
				f.seedOrder(t, "ORD-1", nil)
				list := generateList(t, f, "ORD-1")
				require.Equal(t, []BatchAllocationDTO{{BatchID: "B-OLD", Quantity: 10}}, list.Items[0].Reserved)

				_, err := f.pickingSvc.PickItem(ctx, PickItemCommand{
					PickListID:  list.PickListID,
					ItemID:      list.Items[0].ItemID,
					Quantity:    10,
					Allocations: []domain.BatchAllocation{{BatchID: tt.batchID, Quantity: 10}},
					Reason:      tt.reason,
				})
				assert.True(t, tt.checkFn(err), "got %v", err)

				assert.Equal(t, 10, f.batches.get("B-OLD").QuantityReserved)
				untouched := f.batches.get(extra.BatchID)
				assert.Equal(t, 50, untouched.QuantityOnHand)
				assert.Equal(t, 0, untouched.QuantityReserved)
			})
		}
	})

	t.Run("named batch outside the reservation with a reason", func(t *testing.T) {
		f := newFixture(t,
			testBatch(t, "B-OLD", "LAV-HID", "2L", 50, 90),
			testBatch(t, "B-NEW", "LAV-HID", "2L", 50, 10),
		)
		f.seedOrder(t, "ORD-1", nil)
		list := generateList(t, f, "ORD-1")

		dto, err := f.pickingSvc.MarkShort(ctx, MarkShortCommand{
			PickListID:  list.PickListID,
			ItemID:      list.Items[0].ItemID,
			Quantity:    4,
			Allocations: []domain.BatchAllocation{{BatchID: "B-NEW", Quantity: 4}},
			Reason:      "old batch is frosted",
		})
		require.NoError(t, err)
		require.Len(t, dto.Items[0].Allocations, 1)
		assert.Equal(t, "old batch is frosted", dto.Items[0].Allocations[0].SubstitutionReason)

		assert.Equal(t, 0, f.batches.get("B-OLD").QuantityReserved)
		assert.Equal(t, 46, f.batches.get("B-NEW").QuantityOnHand)
	})

	t.Run("unknown item and list", func(t *testing.T) {
		f := newFixture(t, testBatch(t, "B1", "LAV-HID", "2L", 50, 30))
		f.seedOrder(t, "ORD-1", nil)
		list := generateList(t, f, "ORD-1")

		_, err := f.pickingSvc.PickItem(ctx, PickItemCommand{PickListID: list.PickListID, ItemID: "nope", Quantity: 1})
		assert.True(t, apperrors.IsNotFound(err))
		_, err = f.pickingSvc.PickItem(ctx, PickItemCommand{PickListID: "nope", ItemID: "nope", Quantity: 1})
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestPickingService_MarkShortAndComplete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testBatch(t, "B1", "LAV-HID", "2L", 50, 30))
	f.seedOrder(t, "ORD-1", nil)
	list := generateList(t, f, "ORD-1")

	_, err := f.pickingSvc.CompletePicking(ctx, CompletePickingCommand{PickListID: list.PickListID})
	assert.True(t, apperrors.IsValidation(err))

	dto, err := f.pickingSvc.MarkShort(ctx, MarkShortCommand{
		PickListID: list.PickListID,
		ItemID:     list.Items[0].ItemID,
		Quantity:   0,
		Notes:      "frost damage",
	})
	require.NoError(t, err)
	assert.Equal(t, "short", dto.Items[0].Status)
	assert.Equal(t, "frost damage", dto.Items[0].Notes)

	b := f.batches.get("B1")
	assert.Equal(t, 50, b.QuantityOnHand)
	assert.Equal(t, 0, b.QuantityReserved)

	dto, err = f.pickingSvc.CompletePicking(ctx, CompletePickingCommand{PickListID: list.PickListID})
	require.NoError(t, err)
	assert.NotNil(t, dto.CompletedAt)
}

func TestPickingService_SubstituteBatch(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*fixture, *PickListDTO) {
		f := newFixture(t,
			testBatch(t, "B-SUGGESTED", "LAV-HID", "2L", 10, 90),
			testBatch(t, "B-OTHER", "LAV-HID", "2L", 12, 10),
		)
		f.seedOrder(t, "ORD-1", nil)
		return f, generateList(t, f, "ORD-1")
	}

	t.Run("takes the chosen batch and frees the suggestion", func(t *testing.T) {
		f, list := setup(t)

		dto, err := f.pickingSvc.SubstituteBatch(ctx, SubstituteBatchCommand{
			PickListID: list.PickListID,
			ItemID:     list.Items[0].ItemID,
			BatchID:    "B-OTHER",
			Quantity:   10,
			Reason:     "root damage on suggested batch",
		})
		require.NoError(t, err)
		assert.Equal(t, "substituted", dto.Items[0].Status)
		require.Len(t, dto.Items[0].Allocations, 1)
		assert.Equal(t, "root damage on suggested batch", dto.Items[0].Allocations[0].SubstitutionReason)

		suggested := f.batches.get("B-SUGGESTED")
		assert.Equal(t, 10, suggested.QuantityOnHand)
		assert.Equal(t, 0, suggested.QuantityReserved)
		other := f.batches.get("B-OTHER")
		assert.Equal(t, 2, other.QuantityOnHand)
		assert.Equal(t, 0, other.QuantityReserved)
	})

	tests := []struct {
		name    string
		cmd     SubstituteBatchCommand
		checkFn func(error) bool
	}{
		{name: "reason required", cmd: SubstituteBatchCommand{BatchID: "B-OTHER", Quantity: 5}, checkFn: apperrors.IsValidation},
		{name: "unknown batch", cmd: SubstituteBatchCommand{BatchID: "B-NONE", Quantity: 5, Reason: "x"}, checkFn: apperrors.IsNotFound},
		{
			name:    "more than the batch holds",
			cmd:     SubstituteBatchCommand{BatchID: "B-OTHER", Quantity: 13, Reason: "x"},
			checkFn: func(err error) bool { return apperrors.HasCode(err, apperrors.CodeInsufficientStock) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, list := setup(t)
			tt.cmd.PickListID = list.PickListID
			tt.cmd.ItemID = list.Items[0].ItemID

			_, err := f.pickingSvc.SubstituteBatch(ctx, tt.cmd)
			assert.True(t, tt.checkFn(err), "got %v", err)
			assert.Equal(t, 10, f.batches.get("B-SUGGESTED").QuantityReserved)
		})
	}
}

func TestPlanStockMoves(t *testing.T) {
	reserved := []domain.BatchAllocation{{BatchID: "A", Quantity: 4}, {BatchID: "B", Quantity: 2}}
	taken := []domain.BatchAllocation{{BatchID: "B", Quantity: 3}, {BatchID: "C", Quantity: 1}}

	moves := planStockMoves(reserved, taken)
	assert.Equal(t, []stockMove{
		{batchID: "A", reserve: 0, consume: 0, release: 4},
		{batchID: "B", reserve: 1, consume: 3, release: 0},
		{batchID: "C", reserve: 1, consume: 1, release: 0},
	}, moves)
}
