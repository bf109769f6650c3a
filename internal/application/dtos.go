package application

import "time"

// OrderDTO represents an order in responses
type OrderDTO struct {
	OrderID               string         `json:"orderId"`
	OrderNumber           string         `json:"orderNumber"`
	CustomerID            string         `json:"customerId"`
	CustomerName          string         `json:"customerName"`
	DeliveryAddress       AddressDTO     `json:"deliveryAddress"`
	RequestedDeliveryDate *time.Time     `json:"requestedDeliveryDate,omitempty"`
	Status                string         `json:"status"`
	TrolleysEstimated     *int           `json:"trolleysEstimated"`
	TotalUnits            int            `json:"totalUnits"`
	Lines                 []OrderLineDTO `json:"lines,omitempty"`
	Version               int64          `json:"version"`
	CreatedAt             time.Time      `json:"createdAt"`
	UpdatedAt             time.Time      `json:"updatedAt"`
}

type AddressDTO struct {
	Line1    string `json:"line1"`
	Line2    string `json:"line2,omitempty"`
	Town     string `json:"town"`
	Postcode string `json:"postcode"`
	Country  string `json:"country,omitempty"`
}

type OrderLineDTO struct {
	LineID      string `json:"lineId"`
	SkuID       string `json:"skuId"`
	SizeID      string `json:"sizeId"`
	Family      string `json:"family"`
	Description string `json:"description,omitempty"`
	Quantity    int    `json:"quantity"`
}

// TrolleyEstimateDTO is the estimator output
type TrolleyEstimateDTO struct {
	TotalTrolleys        float64           `json:"totalTrolleys"`
	WholeTrolleys        int               `json:"wholeTrolleys"`
	DisplayValue         string            `json:"displayValue"`
	CurrentFillPercent   int               `json:"currentFillPercent"`
	LinesWithoutQuantity int               `json:"linesWithoutQuantity"`
	Groups               []TrolleyGroupDTO `json:"groups"`
	Lines                []LineEstimateDTO `json:"lines"`
	Suggestions          []SuggestionDTO   `json:"suggestions"`
}

type TrolleyGroupDTO struct {
	TrolleyType string  `json:"trolleyType"`
	Trolleys    float64 `json:"trolleys"`
}

type LineEstimateDTO struct {
	SizeID          string  `json:"sizeId"`
	Family          string  `json:"family"`
	TrolleyType     string  `json:"trolleyType"`
	Quantity        int     `json:"quantity"`
	ShelfFraction   float64 `json:"shelfFraction"`
	TrolleyFraction float64 `json:"trolleyFraction"`
}

type SuggestionDTO struct {
	SizeID      string `json:"sizeId"`
	SizeName    string `json:"sizeName"`
	Family      string `json:"family"`
	UnitsCanFit int    `json:"unitsCanFit"`
}

// PickListDTO represents a pick list in responses
type PickListDTO struct {
	PickListID     string        `json:"pickListId"`
	OrderID        string        `json:"orderId"`
	Sequence       int           `json:"sequence"`
	Status         string        `json:"status"`
	AssignedTeamID string        `json:"assignedTeamId,omitempty"`
	AssignedTo     string        `json:"assignedTo,omitempty"`
	Items          []PickItemDTO `json:"items"`
	PendingItems   int           `json:"pendingItems"`
	CompletedAt    *time.Time    `json:"completedAt,omitempty"`
	Version        int64         `json:"version"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

type PickItemDTO struct {
	ItemID      string               `json:"itemId"`
	LineID      string               `json:"lineId"`
	SkuID       string               `json:"skuId"`
	SizeID      string               `json:"sizeId"`
	Family      string               `json:"family"`
	TargetQty   int                  `json:"targetQty"`
	PickedQty   int                  `json:"pickedQty"`
	Status      string               `json:"status"`
	Allocations []BatchAllocationDTO `json:"allocations"`
	Reserved    []BatchAllocationDTO `json:"reserved"`
	PickedAt    *time.Time           `json:"pickedAt,omitempty"`
	Notes       string               `json:"notes,omitempty"`
}

type BatchAllocationDTO struct {
	BatchID            string `json:"batchId"`
	Quantity           int    `json:"quantity"`
	SubstitutionReason string `json:"substitutionReason,omitempty"`
}

// ShortfallDTO reports a line that could not be fully reserved. It is a
// business outcome, not an error.
type ShortfallDTO struct {
	ItemID    string `json:"itemId"`
	LineID    string `json:"lineId"`
	SkuID     string `json:"skuId"`
	SizeID    string `json:"sizeId"`
	Demanded  int    `json:"demanded"`
	Allocated int    `json:"allocated"`
	Missing   int    `json:"missing"`
}

// GeneratePickListResult is the pick list with any lines left short
type GeneratePickListResult struct {
	PickList   *PickListDTO   `json:"pickList"`
	Shortfalls []ShortfallDTO `json:"shortfalls"`
}

// PackingDTO represents an order packing record
type PackingDTO struct {
	PackingID    string     `json:"packingId"`
	OrderID      string     `json:"orderId"`
	Status       string     `json:"status"`
	TrolleysUsed *int       `json:"trolleysUsed"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	VerifiedAt   *time.Time `json:"verifiedAt,omitempty"`
	VerifiedBy   string     `json:"verifiedBy,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	Version      int64      `json:"version"`
}

// DeliveryRunDTO represents a run with its computed fill
type DeliveryRunDTO struct {
	RunID          string            `json:"runId"`
	RunDate        time.Time         `json:"runDate"`
	HaulierID      string            `json:"haulierId"`
	VehicleID      string            `json:"vehicleId,omitempty"`
	Status         string            `json:"status"`
	Items          []DeliveryItemDTO `json:"items"`
	TotalTrolleys  int               `json:"totalTrolleys"`
	Capacity       int               `json:"capacity"`
	FillPercentage int               `json:"fillPercentage"`
	DisplayFill    int               `json:"displayFill"`
	OverCapacity   bool              `json:"overCapacity"`
	DispatchedAt   *time.Time        `json:"dispatchedAt,omitempty"`
	CompletedAt    *time.Time        `json:"completedAt,omitempty"`
	Version        int64             `json:"version"`
}

type DeliveryItemDTO struct {
	ItemID            string     `json:"itemId"`
	OrderID           string     `json:"orderId"`
	SequenceNumber    int        `json:"sequenceNumber"`
	TrolleysDelivered int        `json:"trolleysDelivered"`
	TrolleysSource    string     `json:"trolleysSource"`
	Status            string     `json:"status"`
	DeliveredAt       *time.Time `json:"deliveredAt,omitempty"`
	Notes             string     `json:"notes,omitempty"`
}

// DispatchBoardDTO lists orders with their derived stage
type DispatchBoardDTO struct {
	Orders      []BoardOrderDTO `json:"orders"`
	StageCounts map[string]int  `json:"stageCounts"`
	GeneratedAt time.Time       `json:"generatedAt"`
}

type BoardOrderDTO struct {
	OrderID               string     `json:"orderId"`
	OrderNumber           string     `json:"orderNumber"`
	CustomerName          string     `json:"customerName"`
	RequestedDeliveryDate *time.Time `json:"requestedDeliveryDate,omitempty"`
	Status                string     `json:"status"`
	Stage                 string     `json:"stage"`
	TrolleysEstimated     *int       `json:"trolleysEstimated"`
	TrolleysUsed          *int       `json:"trolleysUsed"`
	PickListID            string     `json:"pickListId,omitempty"`
	RunID                 string     `json:"runId,omitempty"`
	SequenceNumber        int        `json:"sequenceNumber,omitempty"`
}
