package application

import "github.com/wms-platform/nursery-fulfillment/internal/domain"

// ToOrderDTO converts a domain Order to OrderDTO
func ToOrderDTO(order *domain.Order) *OrderDTO {
	if order == nil {
		return nil
	}

	lines := make([]OrderLineDTO, 0, len(order.Lines))
	for _, l := range order.Lines {
		lines = append(lines, OrderLineDTO{
			LineID:      l.LineID,
			SkuID:       l.SkuID,
			SizeID:      l.SizeID,
			Family:      l.Family,
			Description: l.Description,
			Quantity:    l.Quantity,
		})
	}

	return &OrderDTO{
		OrderID:      order.OrderID,
		OrderNumber:  order.OrderNumber,
		CustomerID:   order.CustomerID,
		CustomerName: order.CustomerName,
		DeliveryAddress: AddressDTO{
			Line1:    order.DeliveryAddress.Line1,
			Line2:    order.DeliveryAddress.Line2,
			Town:     order.DeliveryAddress.Town,
			Postcode: order.DeliveryAddress.Postcode,
			Country:  order.DeliveryAddress.Country,
		},
		RequestedDeliveryDate: order.RequestedDeliveryDate,
		Status:                string(order.Status),
		TrolleysEstimated:     order.TrolleysEstimated,
		TotalUnits:            order.TotalUnits(),
		Lines:                 lines,
		Version:               order.Version,
		CreatedAt:             order.CreatedAt,
		UpdatedAt:             order.UpdatedAt,
	}
}

// ToTrolleyEstimateDTO converts an estimator result
func ToTrolleyEstimateDTO(est domain.TrolleyEstimate) *TrolleyEstimateDTO {
	dto := &TrolleyEstimateDTO{
		TotalTrolleys:        est.TotalTrolleys,
		WholeTrolleys:        est.WholeTrolleys,
		DisplayValue:         est.DisplayValue,
		CurrentFillPercent:   est.CurrentFillPercent,
		LinesWithoutQuantity: est.LinesWithoutQuantity,
		Groups:               make([]TrolleyGroupDTO, 0, len(est.Groups)),
		Lines:                make([]LineEstimateDTO, 0, len(est.Lines)),
		Suggestions:          make([]SuggestionDTO, 0, len(est.Suggestions)),
	}
	for _, g := range est.Groups {
		dto.Groups = append(dto.Groups, TrolleyGroupDTO{TrolleyType: g.TrolleyType, Trolleys: g.Trolleys})
	}
	for _, l := range est.Lines {
		dto.Lines = append(dto.Lines, LineEstimateDTO(l))
	}
	for _, s := range est.Suggestions {
		dto.Suggestions = append(dto.Suggestions, SuggestionDTO(s))
	}
	return dto
}

func toAllocationDTOs(allocs []domain.BatchAllocation) []BatchAllocationDTO {
	out := make([]BatchAllocationDTO, 0, len(allocs))
	for _, a := range allocs {
		out = append(out, BatchAllocationDTO(a))
	}
	return out
}

// ToPickListDTO converts a domain PickList to PickListDTO
func ToPickListDTO(list *domain.PickList) *PickListDTO {
	if list == nil {
		return nil
	}

	items := make([]PickItemDTO, 0, len(list.Items))
	for _, item := range list.Items {
		items = append(items, PickItemDTO{
			ItemID:      item.ItemID,
			LineID:      item.LineID,
			SkuID:       item.SkuID,
			SizeID:      item.SizeID,
			Family:      item.Family,
			TargetQty:   item.TargetQty,
			PickedQty:   item.PickedQty,
			Status:      string(item.Status),
			Allocations: toAllocationDTOs(item.Allocations),
			Reserved:    toAllocationDTOs(item.Reserved),
			PickedAt:    item.PickedAt,
			Notes:       item.Notes,
		})
	}

	return &PickListDTO{
		PickListID:     list.PickListID,
		OrderID:        list.OrderID,
		Sequence:       list.Sequence,
		Status:         string(list.DerivedStatus()),
		AssignedTeamID: list.AssignedTeamID,
		AssignedTo:     list.AssignedTo,
		Items:          items,
		PendingItems:   list.PendingCount(),
		CompletedAt:    list.CompletedAt,
		Version:        list.Version,
		CreatedAt:      list.CreatedAt,
		UpdatedAt:      list.UpdatedAt,
	}
}

// ToPackingDTO converts a domain OrderPacking to PackingDTO
func ToPackingDTO(p *domain.OrderPacking) *PackingDTO {
	if p == nil {
		return nil
	}
	return &PackingDTO{
		PackingID:    p.PackingID,
		OrderID:      p.OrderID,
		Status:       string(p.Status),
		TrolleysUsed: p.TrolleysUsed,
		StartedAt:    p.StartedAt,
		CompletedAt:  p.CompletedAt,
		VerifiedAt:   p.VerifiedAt,
		VerifiedBy:   p.VerifiedBy,
		Notes:        p.Notes,
		Version:      p.Version,
	}
}

// ToDeliveryRunDTO converts a run. Fill figures use capacity, which is 0
// when unknown.
func ToDeliveryRunDTO(run *domain.DeliveryRun, capacity int) *DeliveryRunDTO {
	if run == nil {
		return nil
	}

	items := make([]DeliveryItemDTO, 0, len(run.Items))
	for _, item := range run.SortedItems() {
		items = append(items, DeliveryItemDTO{
			ItemID:            item.ItemID,
			OrderID:           item.OrderID,
			SequenceNumber:    item.SequenceNumber,
			TrolleysDelivered: item.TrolleysDelivered,
			TrolleysSource:    string(item.TrolleysSource),
			Status:            string(item.Status),
			DeliveredAt:       item.DeliveredAt,
			Notes:             item.Notes,
		})
	}

	fill := run.FillPercentage(capacity)
	return &DeliveryRunDTO{
		RunID:          run.RunID,
		RunDate:        run.RunDate,
		HaulierID:      run.HaulierID,
		VehicleID:      run.VehicleID,
		Status:         string(run.Status),
		Items:          items,
		TotalTrolleys:  run.TotalTrolleys(),
		Capacity:       capacity,
		FillPercentage: fill,
		DisplayFill:    run.DisplayFill(capacity),
		OverCapacity:   fill > 100,
		DispatchedAt:   run.DispatchedAt,
		CompletedAt:    run.CompletedAt,
		Version:        run.Version,
	}
}
