package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/nursery-fulfillment/internal/application"
	"github.com/wms-platform/nursery-fulfillment/internal/domain"
	"github.com/wms-platform/nursery-fulfillment/pkg/errors"
	"github.com/wms-platform/nursery-fulfillment/pkg/logging"
	"github.com/wms-platform/nursery-fulfillment/pkg/middleware"
)

// stubs embed the interface so only the methods a test needs are written

type stubOrders struct {
	orderAPI
	created *application.CreateOrderCommand
	getErr  error
}

func (s *stubOrders) CreateOrder(_ context.Context, cmd application.CreateOrderCommand) (*application.OrderDTO, error) {
	s.created = &cmd
	return &application.OrderDTO{OrderID: "ord-1", CustomerID: cmd.CustomerID, Status: "confirmed"}, nil
}

func (s *stubOrders) GetOrder(_ context.Context, orderID string) (*application.OrderDTO, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &application.OrderDTO{OrderID: orderID}, nil
}

func (s *stubOrders) RecomputeTrolleyEstimate(_ context.Context, cmd application.RecomputeEstimateCommand) (*application.OrderDTO, error) {
	est := 2
	if cmd.Force {
		est = 3
	}
	return &application.OrderDTO{OrderID: cmd.OrderID, TrolleysEstimated: &est}, nil
}

type stubPicking struct {
	pickingAPI
	generateErr error
	picked      *application.PickItemCommand
}

func (s *stubPicking) GeneratePickList(_ context.Context, cmd application.GeneratePickListCommand) (*application.GeneratePickListResult, error) {
	if s.generateErr != nil {
		return nil, s.generateErr
	}
	return &application.GeneratePickListResult{}, nil
}

func (s *stubPicking) PickItem(_ context.Context, cmd application.PickItemCommand) (*application.PickListDTO, error) {
	s.picked = &cmd
	return &application.PickListDTO{}, nil
}

type stubPacking struct {
	packingAPI
	updated *application.UpdatePackingCommand
}

func (s *stubPacking) UpdatePacking(_ context.Context, cmd application.UpdatePackingCommand) (*application.PackingDTO, error) {
	s.updated = &cmd
	return &application.PackingDTO{}, nil
}

type stubDispatch struct {
	dispatchAPI
	created *application.CreateDeliveryRunCommand
	status  *application.UpdateRunStatusCommand
	board   *application.GetDispatchBoardQuery
}

func (s *stubDispatch) CreateDeliveryRun(_ context.Context, cmd application.CreateDeliveryRunCommand) (*application.DeliveryRunDTO, error) {
	s.created = &cmd
	return &application.DeliveryRunDTO{}, nil
}

func (s *stubDispatch) UpdateRunStatus(_ context.Context, cmd application.UpdateRunStatusCommand) (*application.DeliveryRunDTO, error) {
	s.status = &cmd
	return &application.DeliveryRunDTO{}, nil
}

func (s *stubDispatch) GetDispatchBoard(_ context.Context, query application.GetDispatchBoardQuery) (*application.DispatchBoardDTO, error) {
	s.board = &query
	return &application.DispatchBoardDTO{}, nil
}

type testAPI struct {
	router   *gin.Engine
	orders   *stubOrders
	picking  *stubPicking
	packing  *stubPacking
	dispatch *stubDispatch
}

func newTestAPI() *testAPI {
	gin.SetMode(gin.TestMode)

	api := &testAPI{
		router:   gin.New(),
		orders:   &stubOrders{},
		picking:  &stubPicking{},
		packing:  &stubPacking{},
		dispatch: &stubDispatch{},
	}

	logger := logging.NewNop()
	cfg := middleware.DefaultConfig("test", logger)
	cfg.EnableTracing = false
	middleware.Setup(api.router, cfg)

	registerRoutes(api.router, apiServices{
		orders:   api.orders,
		picking:  api.picking,
		packing:  api.packing,
		dispatch: api.dispatch,
	}, logger)
	return api
}

func (a *testAPI) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestCreateOrderHandler(t *testing.T) {
	api := newTestAPI()

	rec, body := api.do(t, http.MethodPost, "/api/v1/orders", `{
		"customerId": "CUST-1",
		"deliveryAddress": {"line1": "1 Nursery Lane", "town": "Ely", "postcode": "CB7 4AA"},
		"lines": [{"skuId": "LAV-HID", "sizeId": "2L", "family": "lavandula", "quantity": 10}]
	}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "ord-1", body["orderId"])
	require.NotNil(t, api.orders.created)
	assert.Equal(t, "Ely", api.orders.created.DeliveryAddress.Town)
	require.Len(t, api.orders.created.Lines, 1)
	assert.Equal(t, application.OrderLineInput{SkuID: "LAV-HID", SizeID: "2L", Family: "lavandula", Quantity: 10}, api.orders.created.Lines[0])
}

func TestCreateOrderHandler_Validation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"no lines", `{"customerId": "CUST-1", "lines": []}`, "lines"},
		{"blank customer", `{"customerId": "  ", "lines": [{"skuId": "A", "sizeId": "2L", "quantity": 1}]}`, "customerId"},
		{"zero quantity", `{"customerId": "CUST-1", "lines": [{"skuId": "A", "sizeId": "2L", "quantity": 0}]}`, "quantity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI()

			rec, body := api.do(t, http.MethodPost, "/api/v1/orders", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, errors.CodeValidationError, body["code"])
			details, ok := body["details"].(map[string]any)
			require.True(t, ok)
			assert.Contains(t, details, tt.field)
			assert.Nil(t, api.orders.created)
		})
	}
}

func TestCreateOrderHandler_MalformedBody(t *testing.T) {
	api := newTestAPI()

	rec, body := api.do(t, http.MethodPost, "/api/v1/orders", `{"customerId":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errors.CodeBadRequest, body["code"])
}

func TestGetOrderHandler_NotFound(t *testing.T) {
	api := newTestAPI()
	api.orders.getErr = errors.ErrNotFoundWithID("order", "missing")

	rec, body := api.do(t, http.MethodGet, "/api/v1/orders/missing", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, errors.CodeNotFound, body["code"])
	assert.Equal(t, "/api/v1/orders/missing", body["path"])
}

func TestRecomputeEstimateHandler_Force(t *testing.T) {
	api := newTestAPI()

	rec, body := api.do(t, http.MethodPost, "/api/v1/orders/ord-1/trolley-estimate?force=true", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), body["trolleysEstimated"])
}

func TestGeneratePickListHandler_Conflict(t *testing.T) {
	api := newTestAPI()
	api.picking.generateErr = errors.ErrConflict("pick list already exists for order").WithDetail("pickListId", "pl-1")

	rec, body := api.do(t, http.MethodPost, "/api/v1/pick-lists", `{"orderId": "ord-1"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, errors.CodeConflict, body["code"])
	assert.Equal(t, map[string]any{"pickListId": "pl-1"}, body["details"])
}

func TestPickItemHandler_PassesAllocations(t *testing.T) {
	api := newTestAPI()

	rec, _ := api.do(t, http.MethodPost, "/api/v1/pick-lists/pl-1/items/it-1/pick",
		`{"quantity": 6, "allocations": [{"batchId": "B-1", "quantity": 4}, {"batchId": "B-2", "quantity": 2}], "reason": "bay 3 stock first"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, api.picking.picked)
	assert.Equal(t, "pl-1", api.picking.picked.PickListID)
	assert.Equal(t, "it-1", api.picking.picked.ItemID)
	assert.Equal(t, []domain.BatchAllocation{{BatchID: "B-1", Quantity: 4}, {BatchID: "B-2", Quantity: 2}}, api.picking.picked.Allocations)
	assert.Equal(t, "bay 3 stock first", api.picking.picked.Reason)
}

func TestPickItemHandler_NoAllocations(t *testing.T) {
	api := newTestAPI()

	rec, _ := api.do(t, http.MethodPost, "/api/v1/pick-lists/pl-1/items/it-1/pick", `{"quantity": 5}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, api.picking.picked.Allocations)
}

func TestUpdatePackingHandler(t *testing.T) {
	zero := 0

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantUsed   *int
	}{
		{"explicit zero trolleys", `{"action": "complete", "trolleysUsed": 0}`, http.StatusOK, &zero},
		{"trolleys omitted", `{"action": "start"}`, http.StatusOK, nil},
		{"unknown action", `{"action": "seal"}`, http.StatusBadRequest, nil},
		{"negative trolleys", `{"action": "complete", "trolleysUsed": -1}`, http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI()

			rec, _ := api.do(t, http.MethodPost, "/api/v1/packing/ord-1", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				assert.Nil(t, api.packing.updated)
				return
			}
			require.NotNil(t, api.packing.updated)
			assert.Equal(t, "ord-1", api.packing.updated.OrderID)
			assert.Equal(t, tt.wantUsed, api.packing.updated.TrolleysUsed)
		})
	}
}

func TestCreateDeliveryRunHandler(t *testing.T) {
	t.Run("parses run date", func(t *testing.T) {
		api := newTestAPI()

		rec, _ := api.do(t, http.MethodPost, "/api/v1/delivery-runs", `{"runDate": "2026-03-14", "haulierId": "HAUL-OWN", "vehicleId": "VAN-01"}`)

		require.Equal(t, http.StatusCreated, rec.Code)
		require.NotNil(t, api.dispatch.created)
		assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), api.dispatch.created.RunDate)
		assert.Equal(t, "VAN-01", api.dispatch.created.VehicleID)
	})

	t.Run("rejects malformed date", func(t *testing.T) {
		api := newTestAPI()

		rec, body := api.do(t, http.MethodPost, "/api/v1/delivery-runs", `{"runDate": "14/03/2026", "haulierId": "HAUL-OWN"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, errors.CodeValidationError, body["code"])
		assert.Nil(t, api.dispatch.created)
	})
}

func TestUpdateRunStatusHandler(t *testing.T) {
	api := newTestAPI()

	rec, _ := api.do(t, http.MethodPost, "/api/v1/delivery-runs/run-1/status", `{"status": "in_transit"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.RunStatusInTransit, api.dispatch.status.Status)

	rec, _ = api.do(t, http.MethodPost, "/api/v1/delivery-runs/run-1/status", `{"status": "lost"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDispatchBoardHandler(t *testing.T) {
	api := newTestAPI()

	rec, _ := api.do(t, http.MethodGet, "/api/v1/dispatch-board?limit=50&includeDelivered=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, application.GetDispatchBoardQuery{Limit: 50, IncludeDelivered: true}, *api.dispatch.board)

	rec, body := api.do(t, http.MethodGet, "/api/v1/dispatch-board?limit=5000", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errors.CodeValidationError, body["code"])
}

func TestUnknownRoute(t *testing.T) {
	api := newTestAPI()

	rec, body := api.do(t, http.MethodGet, "/api/v1/greenhouses", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ROUTE_NOT_FOUND", body["code"])
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, splitList(" kafka-1:9092, ,kafka-2:9092 "))
	assert.Nil(t, splitList(""))
}
