package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/nursery-fulfillment/internal/domain"
	apperrors "github.com/wms-platform/nursery-fulfillment/pkg/errors"
	"github.com/wms-platform/nursery-fulfillment/pkg/logging"
	pkgtesting "github.com/wms-platform/nursery-fulfillment/pkg/testing"
)

func lavenderLines(qty int) []OrderLineInput {
	return []OrderLineInput{{SkuID: "LAV-HID", SizeID: "2L", Family: "lavandula", Quantity: qty}}
}

func TestOrderService_CreateOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("stamps whole trolley estimate", func(t *testing.T) {
		f := newFixture(t)

		dto, err := f.orderSvc.CreateOrder(ctx, CreateOrderCommand{
			OrderNumber: "SO-1001",
			CustomerID:  "CUST-1",
			Lines:       lavenderLines(75),
		})
		require.NoError(t, err)
		require.NotNil(t, dto.TrolleysEstimated)
		assert.Equal(t, 2, *dto.TrolleysEstimated)
		assert.Equal(t, 75, dto.TotalUnits)
		require.Len(t, dto.Lines, 1)
		assert.NotEmpty(t, dto.Lines[0].LineID)

		stored, err := f.orders.FindByID(ctx, dto.OrderID)
		require.NoError(t, err)
		require.NotNil(t, stored.TrolleysEstimated)
		assert.Equal(t, 2, *stored.TrolleysEstimated)
		assert.Len(t, stored.Lines, 1)

		types := make([]string, 0)
		for _, e := range f.orders.events {
			types = append(types, e.EventType())
		}
		assert.Equal(t, []string{"nursery.order.created", "nursery.order.trolleys-estimated"}, types)
	})

	t.Run("order survives a failed estimate", func(t *testing.T) {
		f := newFixture(t)
		f.reference.err = errors.New("reference store down")

		dto, err := f.orderSvc.CreateOrder(ctx, CreateOrderCommand{CustomerID: "CUST-1", Lines: lavenderLines(10)})
		require.NoError(t, err)
		assert.Nil(t, dto.TrolleysEstimated)

		got, err := f.orderSvc.GetOrder(ctx, dto.OrderID)
		require.NoError(t, err)
		assert.Nil(t, got.TrolleysEstimated)
	})

	t.Run("failed line insert leaves no order behind", func(t *testing.T) {
		f := newFixture(t)
		f.orders.addLinesFn = func(string) error { return errors.New("write conflict") }

		var createdID string
		f.orders.saveFn = func(o *domain.Order) error {
			createdID = o.OrderID
			return nil
		}

		_, err := f.orderSvc.CreateOrder(ctx, CreateOrderCommand{CustomerID: "CUST-1", Lines: lavenderLines(10)})
		require.Error(t, err)
		require.NotEmpty(t, createdID)

		_, err = f.orderSvc.GetOrder(ctx, createdID)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("retried transaction body", func(t *testing.T) {
		f := newFixture(t)
		tx := &replayTransactor{rollback: f.orders.reset}
		svc := NewOrderService(f.orders, f.reference, tx, logging.NewNop(), f.metrics)

		dto, err := svc.CreateOrder(ctx, CreateOrderCommand{CustomerID: "CUST-1", Lines: lavenderLines(50)})
		require.NoError(t, err)
		assert.Equal(t, 1, tx.calls)

		stored, err := f.orders.FindByID(ctx, dto.OrderID)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Len(t, stored.Lines, 1)
		require.NotEmpty(t, f.orders.events)
		assert.Equal(t, "nursery.order.created", f.orders.events[0].EventType())
	})

	t.Run("validation", func(t *testing.T) {
		f := newFixture(t)

		tests := []struct {
			name string
			cmd  CreateOrderCommand
		}{
			{name: "no lines", cmd: CreateOrderCommand{CustomerID: "CUST-1"}},
			{name: "no customer", cmd: CreateOrderCommand{Lines: lavenderLines(5)}},
			{name: "zero quantity", cmd: CreateOrderCommand{CustomerID: "CUST-1", Lines: lavenderLines(0)}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.orderSvc.CreateOrder(ctx, tt.cmd)
				assert.True(t, apperrors.IsValidation(err), "got %v", err)
			})
		}
	})
}

func TestOrderService_RecomputeTrolleyEstimate(t *testing.T) {
	ctx := context.Background()

	t.Run("keeps existing estimate unless forced", func(t *testing.T) {
		f := newFixture(t)
		f.seedOrder(t, "ORD-1", pkgtesting.IntPtr(7))

		dto, err := f.orderSvc.RecomputeTrolleyEstimate(ctx, RecomputeEstimateCommand{OrderID: "ORD-1"})
		require.NoError(t, err)
		assert.Equal(t, 7, *dto.TrolleysEstimated)

		dto, err = f.orderSvc.RecomputeTrolleyEstimate(ctx, RecomputeEstimateCommand{OrderID: "ORD-1", Force: true})
		require.NoError(t, err)
		assert.Equal(t, 1, *dto.TrolleysEstimated)
	})

	t.Run("completes missing shelf quantity from size", func(t *testing.T) {
		f := newFixture(t)
		f.seedOrder(t, "ORD-2", nil, domain.OrderLine{LineID: "L1", SkuID: "SAL-CAR", SizeID: "9cm", Family: "salvia", Quantity: 150})

		dto, err := f.orderSvc.RecomputeTrolleyEstimate(ctx, RecomputeEstimateCommand{OrderID: "ORD-2"})
		require.NoError(t, err)
		require.NotNil(t, dto.TrolleysEstimated)
		// 25 per shelf x 4 shelves = 100 per trolley
		assert.Equal(t, 2, *dto.TrolleysEstimated)
	})

	t.Run("reference failure is a dependency error", func(t *testing.T) {
		f := newFixture(t)
		f.seedOrder(t, "ORD-3", nil)
		f.reference.err = errors.New("timeout")

		_, err := f.orderSvc.RecomputeTrolleyEstimate(ctx, RecomputeEstimateCommand{OrderID: "ORD-3"})
		assert.True(t, apperrors.HasCode(err, apperrors.CodeDependencyFailure))
	})

	t.Run("unknown order", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.orderSvc.RecomputeTrolleyEstimate(ctx, RecomputeEstimateCommand{OrderID: "nope"})
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestOrderService_EstimateTrolleys(t *testing.T) {
	f := newFixture(t)

	est, err := f.orderSvc.EstimateTrolleys(context.Background(), EstimateTrolleysCommand{
		Lines: append(lavenderLines(75), OrderLineInput{SkuID: "X", SizeID: "5L", Family: "unknown", Quantity: 3}),
	})
	require.NoError(t, err)
	assert.Equal(t, "1.5", est.DisplayValue)
	assert.Equal(t, 2, est.WholeTrolleys)
	assert.Equal(t, 50, est.CurrentFillPercent)
	assert.Equal(t, 1, est.LinesWithoutQuantity)
	assert.NotEmpty(t, est.Suggestions)

	_, err = f.orderSvc.EstimateTrolleys(context.Background(), EstimateTrolleysCommand{})
	assert.True(t, apperrors.IsValidation(err))
}
