package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/nursery-fulfillment/internal/application"
	"github.com/wms-platform/nursery-fulfillment/internal/domain"
	"github.com/wms-platform/nursery-fulfillment/pkg/errors"
	"github.com/wms-platform/nursery-fulfillment/pkg/logging"
	"github.com/wms-platform/nursery-fulfillment/pkg/middleware"
)

type orderAPI interface {
	CreateOrder(ctx context.Context, cmd application.CreateOrderCommand) (*application.OrderDTO, error)
	GetOrder(ctx context.Context, orderID string) (*application.OrderDTO, error)
	RecomputeTrolleyEstimate(ctx context.Context, cmd application.RecomputeEstimateCommand) (*application.OrderDTO, error)
	EstimateTrolleys(ctx context.Context, cmd application.EstimateTrolleysCommand) (*application.TrolleyEstimateDTO, error)
}

type pickingAPI interface {
	GeneratePickList(ctx context.Context, cmd application.GeneratePickListCommand) (*application.GeneratePickListResult, error)
	GetPickList(ctx context.Context, pickListID string) (*application.PickListDTO, error)
	GetPickListByOrder(ctx context.Context, orderID string) (*application.PickListDTO, error)
	AssignPickList(ctx context.Context, cmd application.AssignPickListCommand) (*application.PickListDTO, error)
	PickItem(ctx context.Context, cmd application.PickItemCommand) (*application.PickListDTO, error)
	MarkShort(ctx context.Context, cmd application.MarkShortCommand) (*application.PickListDTO, error)
	SubstituteBatch(ctx context.Context, cmd application.SubstituteBatchCommand) (*application.PickListDTO, error)
	CompletePicking(ctx context.Context, cmd application.CompletePickingCommand) (*application.PickListDTO, error)
}

type packingAPI interface {
	UpdatePacking(ctx context.Context, cmd application.UpdatePackingCommand) (*application.PackingDTO, error)
	GetPacking(ctx context.Context, orderID string) (*application.PackingDTO, error)
}

type dispatchAPI interface {
	CreateDeliveryRun(ctx context.Context, cmd application.CreateDeliveryRunCommand) (*application.DeliveryRunDTO, error)
	GetDeliveryRun(ctx context.Context, runID string) (*application.DeliveryRunDTO, error)
	AddOrderToRun(ctx context.Context, cmd application.AddOrderToRunCommand) (*application.DeliveryRunDTO, error)
	RemoveOrderFromRun(ctx context.Context, cmd application.RemoveOrderFromRunCommand) (*application.DeliveryRunDTO, error)
	ReorderDeliveryItem(ctx context.Context, cmd application.ReorderDeliveryItemCommand) (*application.DeliveryRunDTO, error)
	UpdateRunStatus(ctx context.Context, cmd application.UpdateRunStatusCommand) (*application.DeliveryRunDTO, error)
	MarkDeliveryItem(ctx context.Context, cmd application.MarkDeliveryItemCommand) (*application.DeliveryRunDTO, error)
	GetDispatchBoard(ctx context.Context, query application.GetDispatchBoardQuery) (*application.DispatchBoardDTO, error)
}

// apiServices groups the application services behind the HTTP API
type apiServices struct {
	orders   orderAPI
	picking  pickingAPI
	packing  packingAPI
	dispatch dispatchAPI
}

func registerRoutes(router *gin.Engine, svc apiServices, logger *logging.Logger) {
	api := router.Group("/api/v1")

	orders := api.Group("/orders")
	{
		orders.POST("", createOrderHandler(svc.orders, logger))
		orders.GET("/:orderId", getOrderHandler(svc.orders, logger))
		orders.POST("/:orderId/trolley-estimate", recomputeEstimateHandler(svc.orders, logger))
		orders.GET("/:orderId/pick-list", getPickListByOrderHandler(svc.picking, logger))
	}
	api.POST("/trolley-estimates", estimateTrolleysHandler(svc.orders, logger))

	pickLists := api.Group("/pick-lists")
	{
		pickLists.POST("", generatePickListHandler(svc.picking, logger))
		pickLists.GET("/:pickListId", getPickListHandler(svc.picking, logger))
		pickLists.POST("/:pickListId/assign", assignPickListHandler(svc.picking, logger))
		pickLists.POST("/:pickListId/items/:itemId/pick", pickItemHandler(svc.picking, logger))
		pickLists.POST("/:pickListId/items/:itemId/short", markShortHandler(svc.picking, logger))
		pickLists.POST("/:pickListId/items/:itemId/substitute", substituteBatchHandler(svc.picking, logger))
		pickLists.POST("/:pickListId/complete", completePickingHandler(svc.picking, logger))
	}

	packing := api.Group("/packing")
	{
		packing.GET("/:orderId", getPackingHandler(svc.packing, logger))
		packing.POST("/:orderId", updatePackingHandler(svc.packing, logger))
	}

	runs := api.Group("/delivery-runs")
	{
		runs.POST("", createDeliveryRunHandler(svc.dispatch, logger))
		runs.GET("/:runId", getDeliveryRunHandler(svc.dispatch, logger))
		runs.POST("/:runId/orders", addOrderToRunHandler(svc.dispatch, logger))
		runs.DELETE("/:runId/orders/:orderId", removeOrderFromRunHandler(svc.dispatch, logger))
		runs.POST("/:runId/items/:itemId/move", reorderDeliveryItemHandler(svc.dispatch, logger))
		runs.POST("/:runId/items/:itemId/status", markDeliveryItemHandler(svc.dispatch, logger))
		runs.POST("/:runId/status", updateRunStatusHandler(svc.dispatch, logger))
	}

	api.GET("/dispatch-board", dispatchBoardHandler(svc.dispatch, logger))
}

// respond writes result with status, or the error body when err is set
func respond(c *gin.Context, logger *logging.Logger, status int, result any, err error) {
	if err != nil {
		middleware.NewErrorResponder(c, logger.Logger).RespondWithError(err)
		return
	}
	c.JSON(status, result)
}

// bind decodes the body into req and writes a 400 on failure
func bind(c *gin.Context, logger *logging.Logger, req any) bool {
	if appErr := middleware.BindAndValidate(c, req); appErr != nil {
		middleware.NewErrorResponder(c, logger.Logger).RespondWithAppError(appErr)
		return false
	}
	return true
}

// Orders

type addressRequest struct {
	Line1    string `json:"line1"`
	Line2    string `json:"line2"`
	Town     string `json:"town"`
	Postcode string `json:"postcode"`
	Country  string `json:"country"`
}

type orderLineRequest struct {
	SkuID       string `json:"skuId" binding:"required,notblank"`
	SizeID      string `json:"sizeId" binding:"required,notblank"`
	Family      string `json:"family"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity" binding:"gt=0"`
}

func toLineInputs(lines []orderLineRequest) []application.OrderLineInput {
	out := make([]application.OrderLineInput, 0, len(lines))
	for _, l := range lines {
		out = append(out, application.OrderLineInput(l))
	}
	return out
}

func createOrderHandler(service orderAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			OrderNumber           string             `json:"orderNumber"`
			CustomerID            string             `json:"customerId" binding:"required,notblank"`
			CustomerName          string             `json:"customerName"`
			DeliveryAddress       addressRequest     `json:"deliveryAddress"`
			RequestedDeliveryDate *time.Time         `json:"requestedDeliveryDate"`
			Lines                 []orderLineRequest `json:"lines" binding:"required,min=1,dive"`
		}
		if !bind(c, logger, &req) {
			return
		}

		middleware.AddSpanAttributes(c, map[string]interface{}{
			"customer.id": req.CustomerID,
			"order.lines": len(req.Lines),
		})

		order, err := service.CreateOrder(c.Request.Context(), application.CreateOrderCommand{
			OrderNumber:           req.OrderNumber,
			CustomerID:            req.CustomerID,
			CustomerName:          req.CustomerName,
			DeliveryAddress:       domain.Address(req.DeliveryAddress),
			RequestedDeliveryDate: req.RequestedDeliveryDate,
			Lines:                 toLineInputs(req.Lines),
		})
		respond(c, logger, http.StatusCreated, order, err)
	}
}

func getOrderHandler(service orderAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("orderId")
		middleware.AddSpanAttributes(c, map[string]interface{}{"order.id": orderID})

		order, err := service.GetOrder(c.Request.Context(), orderID)
		respond(c, logger, http.StatusOK, order, err)
	}
}

func recomputeEstimateHandler(service orderAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var query struct {
			Force bool `form:"force"`
		}
		if err := c.ShouldBindQuery(&query); err != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondBadRequest("invalid query: " + err.Error())
			return
		}

		order, err := service.RecomputeTrolleyEstimate(c.Request.Context(), application.RecomputeEstimateCommand{
			OrderID: c.Param("orderId"),
			Force:   query.Force,
		})
		respond(c, logger, http.StatusOK, order, err)
	}
}

func estimateTrolleysHandler(service orderAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Lines []orderLineRequest `json:"lines" binding:"required,min=1,dive"`
		}
		if !bind(c, logger, &req) {
			return
		}

		estimate, err := service.EstimateTrolleys(c.Request.Context(), application.EstimateTrolleysCommand{Lines: toLineInputs(req.Lines)})
		respond(c, logger, http.StatusOK, estimate, err)
	}
}

// Picking

type allocationRequest struct {
	BatchID  string `json:"batchId" binding:"required,notblank"`
	Quantity int    `json:"quantity" binding:"gt=0"`
}

func toAllocations(reqs []allocationRequest) []domain.BatchAllocation {
	if len(reqs) == 0 {
		return nil
	}
	out := make([]domain.BatchAllocation, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, domain.BatchAllocation{BatchID: r.BatchID, Quantity: r.Quantity})
	}
	return out
}

func generatePickListHandler(service pickingAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			OrderID string `json:"orderId" binding:"required,notblank"`
		}
		if !bind(c, logger, &req) {
			return
		}
		middleware.AddSpanAttributes(c, map[string]interface{}{"order.id": req.OrderID})

		result, err := service.GeneratePickList(c.Request.Context(), application.GeneratePickListCommand{OrderID: req.OrderID})
		respond(c, logger, http.StatusCreated, result, err)
	}
}

func getPickListHandler(service pickingAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := service.GetPickList(c.Request.Context(), c.Param("pickListId"))
		respond(c, logger, http.StatusOK, list, err)
	}
}

func getPickListByOrderHandler(service pickingAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := service.GetPickListByOrder(c.Request.Context(), c.Param("orderId"))
		respond(c, logger, http.StatusOK, list, err)
	}
}

func assignPickListHandler(service pickingAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			TeamID string `json:"teamId"`
			UserID string `json:"userId"`
		}
		if !bind(c, logger, &req) {
			return
		}

		list, err := service.AssignPickList(c.Request.Context(), application.AssignPickListCommand{
			PickListID: c.Param("pickListId"),
			TeamID:     req.TeamID,
			UserID:     req.UserID,
		})
		respond(c, logger, http.StatusOK, list, err)
	}
}

func pickItemHandler(service pickingAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Quantity    int                 `json:"quantity" binding:"gte=0"`
			Allocations []allocationRequest `json:"allocations" binding:"dive"`
			Reason      string              `json:"reason"`
		}
		if !bind(c, logger, &req) {
			return
		}
		middleware.AddSpanAttributes(c, map[string]interface{}{
			"picklist.id": c.Param("pickListId"),
			"item.id":     c.Param("itemId"),
		})

		list, err := service.PickItem(c.Request.Context(), application.PickItemCommand{
			PickListID:  c.Param("pickListId"),
			ItemID:      c.Param("itemId"),
			Quantity:    req.Quantity,
			Allocations: toAllocations(req.Allocations),
			Reason:      req.Reason,
		})
		respond(c, logger, http.StatusOK, list, err)
	}
}

func markShortHandler(service pickingAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Quantity    int                 `json:"quantity" binding:"gte=0"`
			Allocations []allocationRequest `json:"allocations" binding:"dive"`
			Reason      string              `json:"reason"`
			Notes       string              `json:"notes"`
		}
		if !bind(c, logger, &req) {
			return
		}

		list, err := service.MarkShort(c.Request.Context(), application.MarkShortCommand{
			PickListID:  c.Param("pickListId"),
			ItemID:      c.Param("itemId"),
			Quantity:    req.Quantity,
			Allocations: toAllocations(req.Allocations),
			Reason:      req.Reason,
			Notes:       req.Notes,
		})
		respond(c, logger, http.StatusOK, list, err)
	}
}

func substituteBatchHandler(service pickingAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			BatchID  string `json:"batchId" binding:"required,notblank"`
			Quantity int    `json:"quantity" binding:"gt=0"`
			Reason   string `json:"reason" binding:"required,notblank"`
		}
		if !bind(c, logger, &req) {
			return
		}

		list, err := service.SubstituteBatch(c.Request.Context(), application.SubstituteBatchCommand{
			PickListID: c.Param("pickListId"),
			ItemID:     c.Param("itemId"),
			BatchID:    req.BatchID,
			Quantity:   req.Quantity,
			Reason:     req.Reason,
		})
		respond(c, logger, http.StatusOK, list, err)
	}
}

func completePickingHandler(service pickingAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := service.CompletePicking(c.Request.Context(), application.CompletePickingCommand{PickListID: c.Param("pickListId")})
		respond(c, logger, http.StatusOK, list, err)
	}
}

// Packing

func getPackingHandler(service packingAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		packing, err := service.GetPacking(c.Request.Context(), c.Param("orderId"))
		respond(c, logger, http.StatusOK, packing, err)
	}
}

func updatePackingHandler(service packingAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Action       string `json:"action" binding:"required,packingaction"`
			TrolleysUsed *int   `json:"trolleysUsed" binding:"omitempty,gte=0"`
			VerifiedBy   string `json:"verifiedBy"`
			Notes        string `json:"notes"`
		}
		if !bind(c, logger, &req) {
			return
		}
		middleware.AddSpanAttributes(c, map[string]interface{}{
			"order.id":       c.Param("orderId"),
			"packing.action": req.Action,
		})

		packing, err := service.UpdatePacking(c.Request.Context(), application.UpdatePackingCommand{
			OrderID:      c.Param("orderId"),
			Action:       req.Action,
			TrolleysUsed: req.TrolleysUsed,
			VerifiedBy:   req.VerifiedBy,
			Notes:        req.Notes,
		})
		respond(c, logger, http.StatusOK, packing, err)
	}
}

// Dispatch

func createDeliveryRunHandler(service dispatchAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			RunDate   string `json:"runDate" binding:"required,datetime=2006-01-02"`
			HaulierID string `json:"haulierId" binding:"required,notblank"`
			VehicleID string `json:"vehicleId"`
		}
		if !bind(c, logger, &req) {
			return
		}
		runDate, err := time.Parse(time.DateOnly, req.RunDate)
		if err != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondWithAppError(errors.ErrValidation("runDate must be YYYY-MM-DD"))
			return
		}

		run, err := service.CreateDeliveryRun(c.Request.Context(), application.CreateDeliveryRunCommand{
			RunDate:   runDate,
			HaulierID: req.HaulierID,
			VehicleID: req.VehicleID,
		})
		respond(c, logger, http.StatusCreated, run, err)
	}
}

func getDeliveryRunHandler(service dispatchAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, err := service.GetDeliveryRun(c.Request.Context(), c.Param("runId"))
		respond(c, logger, http.StatusOK, run, err)
	}
}

func addOrderToRunHandler(service dispatchAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			OrderID           string `json:"orderId" binding:"required,notblank"`
			TrolleysDelivered *int   `json:"trolleysDelivered" binding:"omitempty,gte=0"`
		}
		if !bind(c, logger, &req) {
			return
		}
		middleware.AddSpanAttributes(c, map[string]interface{}{
			"run.id":   c.Param("runId"),
			"order.id": req.OrderID,
		})

		run, err := service.AddOrderToRun(c.Request.Context(), application.AddOrderToRunCommand{
			RunID:             c.Param("runId"),
			OrderID:           req.OrderID,
			TrolleysDelivered: req.TrolleysDelivered,
		})
		respond(c, logger, http.StatusOK, run, err)
	}
}

func removeOrderFromRunHandler(service dispatchAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, err := service.RemoveOrderFromRun(c.Request.Context(), application.RemoveOrderFromRunCommand{
			RunID:   c.Param("runId"),
			OrderID: c.Param("orderId"),
		})
		respond(c, logger, http.StatusOK, run, err)
	}
}

func reorderDeliveryItemHandler(service dispatchAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Direction string `json:"direction" binding:"required,oneof=up down"`
		}
		if !bind(c, logger, &req) {
			return
		}

		run, err := service.ReorderDeliveryItem(c.Request.Context(), application.ReorderDeliveryItemCommand{
			RunID:     c.Param("runId"),
			ItemID:    c.Param("itemId"),
			Direction: domain.MoveDirection(req.Direction),
		})
		respond(c, logger, http.StatusOK, run, err)
	}
}

func updateRunStatusHandler(service dispatchAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Status string `json:"status" binding:"required,runstatus"`
		}
		if !bind(c, logger, &req) {
			return
		}
		middleware.AddSpanAttributes(c, map[string]interface{}{
			"run.id":     c.Param("runId"),
			"run.status": req.Status,
		})

		run, err := service.UpdateRunStatus(c.Request.Context(), application.UpdateRunStatusCommand{
			RunID:  c.Param("runId"),
			Status: domain.RunStatus(req.Status),
		})
		respond(c, logger, http.StatusOK, run, err)
	}
}

func markDeliveryItemHandler(service dispatchAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Status string `json:"status" binding:"required,oneof=delivered failed"`
			Notes  string `json:"notes"`
		}
		if !bind(c, logger, &req) {
			return
		}

		run, err := service.MarkDeliveryItem(c.Request.Context(), application.MarkDeliveryItemCommand{
			RunID:  c.Param("runId"),
			ItemID: c.Param("itemId"),
			Status: domain.DeliveryItemStatus(req.Status),
			Notes:  req.Notes,
		})
		respond(c, logger, http.StatusOK, run, err)
	}
}

func dispatchBoardHandler(service dispatchAPI, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var query struct {
			Limit            int  `form:"limit" json:"limit" binding:"omitempty,min=1,max=1000"`
			IncludeDelivered bool `form:"includeDelivered" json:"includeDelivered"`
		}
		if err := c.ShouldBindQuery(&query); err != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondWithAppError(
				errors.ErrValidationWithFields("invalid query", middleware.ValidationErrorFormatter(err)))
			return
		}

		board, err := service.GetDispatchBoard(c.Request.Context(), application.GetDispatchBoardQuery{
			Limit:            query.Limit,
			IncludeDelivered: query.IncludeDelivered,
		})
		respond(c, logger, http.StatusOK, board, err)
	}
}
