package domain

// DispatchStage is the display-level pipeline position of an order. It is
// always derived from sub-records and never stored as the source of truth.
type DispatchStage string

const (
	StageToPick      DispatchStage = "to_pick"
	StagePicking     DispatchStage = "picking"
	StageReadyToLoad DispatchStage = "ready_to_load"
	StageOnRoute     DispatchStage = "on_route"
	StageDelivered   DispatchStage = "delivered"
)

// AllStages lists the stages in pipeline order
var AllStages = []DispatchStage{StageToPick, StagePicking, StageReadyToLoad, StageOnRoute, StageDelivered}

// StageInput is the freshly read sub-state of one order. Any field but
// Order may be nil.
type StageInput struct {
	Order        *Order
	PickList     *PickList
	Packing      *OrderPacking
	DeliveryItem *DeliveryItem
	Run          *DeliveryRun
}

// DeriveStage returns the stage of an order. Later pipeline evidence wins:
// rules are evaluated top-down and the first match is returned.
func DeriveStage(in StageInput) DispatchStage {
	if isDelivered(in) {
		return StageDelivered
	}
	if isOnRoute(in) {
		return StageOnRoute
	}

	if in.PickList != nil {
		pickStatus := in.PickList.DerivedStatus()
		if pickStatus == PickListCompleted && in.Packing != nil && in.Packing.IsDone() {
			return StageReadyToLoad
		}
		// a completed list still waiting on packing stays in the picking lane
		if pickStatus != PickListPending || in.PickList.IsAssigned() {
			return StagePicking
		}
	}

	return StageToPick
}

func isDelivered(in StageInput) bool {
	if in.Order != nil && in.Order.Status == OrderStatusDelivered {
		return true
	}
	return in.DeliveryItem != nil && in.DeliveryItem.Status == DeliveryItemDelivered &&
		in.Run != nil && in.Run.Status == RunStatusCompleted
}

func isOnRoute(in StageInput) bool {
	if in.DeliveryItem != nil && in.DeliveryItem.RunID != "" && in.Run != nil && in.Run.Status == RunStatusInTransit {
		if in.DeliveryItem.Status == DeliveryItemPending || in.DeliveryItem.Status == DeliveryItemDelivered {
			return true
		}
	}
	return in.Order != nil && in.Order.Status == OrderStatusDispatched
}
