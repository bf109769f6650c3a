package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/nursery-fulfillment/internal/domain"
	apperrors "github.com/wms-platform/nursery-fulfillment/pkg/errors"
	pkgtesting "github.com/wms-platform/nursery-fulfillment/pkg/testing"
)

var runDate = time.Date(2026, 4, 14, 0, 0, 0, 0, time.UTC)

func createRun(t *testing.T, f *fixture, haulierID, vehicleID string) *DeliveryRunDTO {
	t.Helper()
	run, err := f.dispatchSvc.CreateDeliveryRun(context.Background(), CreateDeliveryRunCommand{
		RunDate:   runDate,
		HaulierID: haulierID,
		VehicleID: vehicleID,
	})
	require.NoError(t, err)
	return run
}

func packOrder(t *testing.T, f *fixture, orderID string, trolleys int) {
	t.Helper()
	ctx := context.Background()
	_, err := f.packingSvc.UpdatePacking(ctx, UpdatePackingCommand{OrderID: orderID, Action: PackingActionStart})
	require.NoError(t, err)
	_, err = f.packingSvc.UpdatePacking(ctx, UpdatePackingCommand{OrderID: orderID, Action: PackingActionComplete, TrolleysUsed: pkgtesting.IntPtr(trolleys)})
	require.NoError(t, err)
}

func TestDispatchService_CreateDeliveryRun(t *testing.T) {
	ctx := context.Background()

	t.Run("vehicle capacity wins over haulier default", func(t *testing.T) {
		f := newFixture(t)
		run := createRun(t, f, "HAUL-OWN", "VAN-01")
		assert.Equal(t, "planned", run.Status)
		assert.Equal(t, 6, run.Capacity)
		assert.Empty(t, run.Items)

		run = createRun(t, f, "HAUL-FEN", "HGV-01")
		assert.Equal(t, 12, run.Capacity)
	})

	tests := []struct {
		name string
		cmd  CreateDeliveryRunCommand
	}{
		{name: "unknown haulier", cmd: CreateDeliveryRunCommand{RunDate: runDate, HaulierID: "HAUL-X"}},
		{name: "unknown vehicle", cmd: CreateDeliveryRunCommand{RunDate: runDate, HaulierID: "HAUL-OWN", VehicleID: "VAN-99"}},
		{name: "vehicle of another haulier", cmd: CreateDeliveryRunCommand{RunDate: runDate, HaulierID: "HAUL-FEN", VehicleID: "VAN-01"}},
		{name: "no date", cmd: CreateDeliveryRunCommand{HaulierID: "HAUL-OWN"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.dispatchSvc.CreateDeliveryRun(ctx, tt.cmd)
			assert.True(t, apperrors.IsValidation(err), "got %v", err)
		})
	}
}

func TestDispatchService_AddOrderToRun(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name           string
		explicit       *int
		packed         *int
		expected       int
		expectedSource string
	}{
		{name: "explicit zero beats packing and estimate", explicit: pkgtesting.IntPtr(0), packed: pkgtesting.IntPtr(5), expected: 0, expectedSource: "explicit"},
		{name: "packed count beats estimate", packed: pkgtesting.IntPtr(5), expected: 5, expectedSource: "packing"},
		{name: "estimate as last resort", expected: 3, expectedSource: "estimate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seedOrder(t, "ORD-1", pkgtesting.IntPtr(3))
			if tt.packed != nil {
				packOrder(t, f, "ORD-1", *tt.packed)
			}
			run := createRun(t, f, "HAUL-OWN", "VAN-01")

			dto, err := f.dispatchSvc.AddOrderToRun(ctx, AddOrderToRunCommand{RunID: run.RunID, OrderID: "ORD-1", TrolleysDelivered: tt.explicit})
			require.NoError(t, err)
			require.Len(t, dto.Items, 1)
			assert.Equal(t, tt.expected, dto.Items[0].TrolleysDelivered)
			assert.Equal(t, tt.expectedSource, dto.Items[0].TrolleysSource)
			assert.Equal(t, 1, dto.Items[0].SequenceNumber)
		})
	}

	t.Run("over capacity is reported, not refused", func(t *testing.T) {
		f := newFixture(t)
		f.seedOrder(t, "ORD-1", pkgtesting.IntPtr(5))
		f.seedOrder(t, "ORD-2", pkgtesting.IntPtr(3))
		run := createRun(t, f, "HAUL-OWN", "VAN-01")

		_, err := f.dispatchSvc.AddOrderToRun(ctx, AddOrderToRunCommand{RunID: run.RunID, OrderID: "ORD-1"})
		require.NoError(t, err)
		dto, err := f.dispatchSvc.AddOrderToRun(ctx, AddOrderToRunCommand{RunID: run.RunID, OrderID: "ORD-2"})
		require.NoError(t, err)

		assert.Equal(t, 8, dto.TotalTrolleys)
		assert.Equal(t, 133, dto.FillPercentage)
		assert.Equal(t, 100, dto.DisplayFill)
		assert.True(t, dto.OverCapacity)
	})

	t.Run("order on another active run conflicts", func(t *testing.T) {
		f := newFixture(t)
		f.seedOrder(t, "ORD-1", nil)
		first := createRun(t, f, "HAUL-OWN", "")
		second := createRun(t, f, "HAUL-FEN", "")

		_, err := f.dispatchSvc.AddOrderToRun(ctx, AddOrderToRunCommand{RunID: first.RunID, OrderID: "ORD-1"})
		require.NoError(t, err)
		_, err = f.dispatchSvc.AddOrderToRun(ctx, AddOrderToRunCommand{RunID: second.RunID, OrderID: "ORD-1"})
		assert.True(t, apperrors.IsConflict(err))
		_, err = f.dispatchSvc.AddOrderToRun(ctx, AddOrderToRunCommand{RunID: first.RunID, OrderID: "ORD-1"})
		assert.True(t, apperrors.IsConflict(err))
	})

	t.Run("concurrent adds to two runs", func(t *testing.T) {
		f := newFixture(t)
		f.seedOrder(t, "ORD-1", nil)
		first := createRun(t, f, "HAUL-OWN", "")
		second := createRun(t, f, "HAUL-FEN", "")

		// the second request runs to completion while the first is between
		// its guard and its writes
		var secondErr error
		f.orders.saveFn = func(*domain.Order) error {
			f.orders.saveFn = nil
			_, secondErr = f.dispatchSvc.AddOrderToRun(ctx, AddOrderToRunCommand{RunID: second.RunID, OrderID: "ORD-1"})
			return nil
		}

		_, err := f.dispatchSvc.AddOrderToRun(ctx, AddOrderToRunCommand{RunID: first.RunID, OrderID: "ORD-1"})
		require.NoError(t, secondErr)
		assert.True(t, apperrors.IsConflict(err), "got %v", err)

		loser, err := f.dispatchSvc.GetDeliveryRun(ctx, first.RunID)
		require.NoError(t, err)
		assert.Empty(t, loser.Items)
		winner, err := f.dispatchSvc.GetDeliveryRun(ctx, second.RunID)
		require.NoError(t, err)
		require.Len(t, winner.Items, 1)
		assert.Equal(t, "ORD-1", winner.Items[0].OrderID)
	})

	t.Run("unknown run and order", func(t *testing.T) {
		f := newFixture(t)
		run := createRun(t, f, "HAUL-OWN", "")
		_, err := f.dispatchSvc.AddOrderToRun(ctx, AddOrderToRunCommand{RunID: run.RunID, OrderID: "nope"})
		assert.True(t, apperrors.IsNotFound(err))
		_, err = f.dispatchSvc.AddOrderToRun(ctx, AddOrderToRunCommand{RunID: "nope", OrderID: "nope"})
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestDispatchService_ReorderAndRemove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	run := createRun(t, f, "HAUL-OWN", "")
	for _, id := range []string{"ORD-1", "ORD-2", "ORD-3"} {
		f.seedOrder(t, id, pkgtesting.IntPtr(1))
		_, err := f.dispatchSvc.AddOrderToRun(ctx, AddOrderToRunCommand{RunID: run.RunID, OrderID: id})
		require.NoError(t, err)
	}

	dto, err := f.dispatchSvc.GetDeliveryRun(ctx, run.RunID)
	require.NoError(t, err)
	last := dto.Items[2].ItemID

	dto, err = f.dispatchSvc.ReorderDeliveryItem(ctx, ReorderDeliveryItemCommand{RunID: run.RunID, ItemID: last, Direction: domain.MoveUp})
	require.NoError(t, err)
	assert.Equal(t, []string{"ORD-1", "ORD-3", "ORD-2"}, boardOrderIDs(dto.Items))

	_, err = f.dispatchSvc.ReorderDeliveryItem(ctx, ReorderDeliveryItemCommand{RunID: run.RunID, ItemID: dto.Items[0].ItemID, Direction: domain.MoveUp})
	assert.True(t, apperrors.IsValidation(err))

	dto, err = f.dispatchSvc.RemoveOrderFromRun(ctx, RemoveOrderFromRunCommand{RunID: run.RunID, OrderID: "ORD-3"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ORD-1", "ORD-2"}, boardOrderIDs(dto.Items))
	assert.Equal(t, []int{1, 3}, []int{dto.Items[0].SequenceNumber, dto.Items[1].SequenceNumber})

	_, err = f.dispatchSvc.RemoveOrderFromRun(ctx, RemoveOrderFromRunCommand{RunID: run.RunID, OrderID: "ORD-3"})
	assert.True(t, apperrors.IsNotFound(err))
}

func boardOrderIDs(items []DeliveryItemDTO) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.OrderID)
	}
	return ids
}

func TestDispatchService_UpdateRunStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedOrder(t, "ORD-1", pkgtesting.IntPtr(2))
	f.seedOrder(t, "ORD-2", pkgtesting.IntPtr(1))
	run := createRun(t, f, "HAUL-OWN", "VAN-01")

	_, err := f.dispatchSvc.UpdateRunStatus(ctx, UpdateRunStatusCommand{RunID: run.RunID, Status: domain.RunStatusInTransit})
	assert.True(t, apperrors.IsValidation(err), "empty run cannot leave")

	for _, id := range []string{"ORD-1", "ORD-2"} {
		_, err := f.dispatchSvc.AddOrderToRun(ctx, AddOrderToRunCommand{RunID: run.RunID, OrderID: id})
		require.NoError(t, err)
	}

	dto, err := f.dispatchSvc.UpdateRunStatus(ctx, UpdateRunStatusCommand{RunID: run.RunID, Status: domain.RunStatusInTransit})
	require.NoError(t, err)
	assert.Equal(t, "in_transit", dto.Status)
	assert.NotNil(t, dto.DispatchedAt)
	assert.Equal(t, domain.OrderStatusDispatched, f.orders.status("ORD-1"))
	assert.Equal(t, domain.OrderStatusDispatched, f.orders.status("ORD-2"))

	_, err = f.dispatchSvc.AddOrderToRun(ctx, AddOrderToRunCommand{RunID: run.RunID, OrderID: "ORD-1"})
	assert.Error(t, err)

	_, err = f.dispatchSvc.UpdateRunStatus(ctx, UpdateRunStatusCommand{RunID: run.RunID, Status: domain.RunStatusCompleted})
	assert.True(t, apperrors.IsValidation(err), "pending drops block completion")

	_, err = f.dispatchSvc.MarkDeliveryItem(ctx, MarkDeliveryItemCommand{RunID: run.RunID, ItemID: dto.Items[0].ItemID, Status: domain.DeliveryItemDelivered})
	require.NoError(t, err)
	_, err = f.dispatchSvc.MarkDeliveryItem(ctx, MarkDeliveryItemCommand{RunID: run.RunID, ItemID: dto.Items[1].ItemID, Status: domain.DeliveryItemFailed, Notes: "site closed"})
	require.NoError(t, err)
	_, err = f.dispatchSvc.MarkDeliveryItem(ctx, MarkDeliveryItemCommand{RunID: run.RunID, ItemID: dto.Items[1].ItemID, Status: "lost"})
	assert.True(t, apperrors.IsValidation(err))

	dto, err = f.dispatchSvc.UpdateRunStatus(ctx, UpdateRunStatusCommand{RunID: run.RunID, Status: domain.RunStatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, "completed", dto.Status)
	assert.Equal(t, domain.OrderStatusDelivered, f.orders.status("ORD-1"))
	assert.Equal(t, domain.OrderStatusConfirmed, f.orders.status("ORD-2"))

	// the failed order can go out again on a new run
	retry := createRun(t, f, "HAUL-OWN", "")
	_, err = f.dispatchSvc.AddOrderToRun(ctx, AddOrderToRunCommand{RunID: retry.RunID, OrderID: "ORD-2"})
	require.NoError(t, err)
}

func TestDispatchService_GetDispatchBoard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, id := range []string{"ORD-A", "ORD-B", "ORD-C", "ORD-D", "ORD-E"} {
		f.seedOrder(t, id, pkgtesting.IntPtr(1))
	}

	// B: list assigned, nothing picked
	listB := generateList(t, f, "ORD-B")
	_, err := f.pickingSvc.AssignPickList(ctx, AssignPickListCommand{PickListID: listB.PickListID, TeamID: "TEAM-1"})
	require.NoError(t, err)

	// C: picked short and packed
	listC := generateList(t, f, "ORD-C")
	_, err = f.pickingSvc.MarkShort(ctx, MarkShortCommand{PickListID: listC.PickListID, ItemID: listC.Items[0].ItemID})
	require.NoError(t, err)
	packOrder(t, f, "ORD-C", 2)

	// D: out on a run
	runD := createRun(t, f, "HAUL-OWN", "VAN-01")
	_, err = f.dispatchSvc.AddOrderToRun(ctx, AddOrderToRunCommand{RunID: runD.RunID, OrderID: "ORD-D"})
	require.NoError(t, err)
	_, err = f.dispatchSvc.UpdateRunStatus(ctx, UpdateRunStatusCommand{RunID: runD.RunID, Status: domain.RunStatusInTransit})
	require.NoError(t, err)

	// E: delivered
	runE := createRun(t, f, "HAUL-FEN", "")
	runEDTO, err := f.dispatchSvc.AddOrderToRun(ctx, AddOrderToRunCommand{RunID: runE.RunID, OrderID: "ORD-E"})
	require.NoError(t, err)
	_, err = f.dispatchSvc.UpdateRunStatus(ctx, UpdateRunStatusCommand{RunID: runE.RunID, Status: domain.RunStatusInTransit})
	require.NoError(t, err)
	_, err = f.dispatchSvc.MarkDeliveryItem(ctx, MarkDeliveryItemCommand{RunID: runE.RunID, ItemID: runEDTO.Items[0].ItemID, Status: domain.DeliveryItemDelivered})
	require.NoError(t, err)
	_, err = f.dispatchSvc.UpdateRunStatus(ctx, UpdateRunStatusCommand{RunID: runE.RunID, Status: domain.RunStatusCompleted})
	require.NoError(t, err)

	board, err := f.dispatchSvc.GetDispatchBoard(ctx, GetDispatchBoardQuery{})
	require.NoError(t, err)

	stages := make(map[string]string)
	for _, row := range board.Orders {
		stages[row.OrderID] = row.Stage
	}
	assert.Equal(t, map[string]string{
		"ORD-A": "to_pick",
		"ORD-B": "picking",
		"ORD-C": "ready_to_load",
		"ORD-D": "on_route",
	}, stages)
	assert.Equal(t, map[string]int{
		"to_pick":       1,
		"picking":       1,
		"ready_to_load": 1,
		"on_route":      1,
		"delivered":     0,
	}, board.StageCounts)

	for _, row := range board.Orders {
		if row.OrderID == "ORD-C" {
			require.NotNil(t, row.TrolleysUsed)
			assert.Equal(t, 2, *row.TrolleysUsed)
		}
		if row.OrderID == "ORD-D" {
			assert.Equal(t, runD.RunID, row.RunID)
			assert.Equal(t, 1, row.SequenceNumber)
		}
	}

	board, err = f.dispatchSvc.GetDispatchBoard(ctx, GetDispatchBoardQuery{IncludeDelivered: true})
	require.NoError(t, err)
	assert.Len(t, board.Orders, 5)
	assert.Equal(t, 1, board.StageCounts["delivered"])
}
