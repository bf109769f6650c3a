package domain

import (
	"fmt"
	"time"
)

// QualityStatus of a batch
type QualityStatus string

const (
	QualityOK       QualityStatus = "ok"
	QualityHold     QualityStatus = "hold"
	QualityRejected QualityStatus = "rejected"
)

// SaleStatus of a batch
type SaleStatus string

const (
	SaleStatusSaleable   SaleStatus = "saleable"
	SaleStatusNotForSale SaleStatus = "not_for_sale"
)

// Batch is a traceable lot of plants of one SKU and pot size
type Batch struct {
	BatchID          string        `bson:"batchId"`
	SkuID            string        `bson:"skuId"`
	Family           string        `bson:"family"`
	SizeID           string        `bson:"sizeId"`
	QuantityOnHand   int           `bson:"quantityOnHand"`
	QuantityReserved int           `bson:"quantityReserved"`
	OrderingKey      time.Time     `bson:"orderingKey"` // planted or received date, oldest is consumed first
	LocationID       string        `bson:"locationId"`
	QualityStatus    QualityStatus `bson:"qualityStatus"`
	SaleStatus       SaleStatus    `bson:"saleStatus"`
	CreatedAt        time.Time     `bson:"createdAt"`
	UpdatedAt        time.Time     `bson:"updatedAt"`
}

// NewBatch creates a batch with nothing reserved
func NewBatch(batchID, skuID, family, sizeID string, onHand int, orderingKey time.Time, locationID string) (*Batch, error) {
	if batchID == "" || skuID == "" || sizeID == "" {
		return nil, fmt.Errorf("%w: batch id, sku and size are required", ErrInvalidBatch)
	}
	if onHand < 0 {
		return nil, ErrInvalidQuantity
	}

	now := time.Now().UTC()
	return &Batch{
		BatchID:        batchID,
		SkuID:          skuID,
		Family:         family,
		SizeID:         sizeID,
		QuantityOnHand: onHand,
		OrderingKey:    orderingKey,
		LocationID:     locationID,
		QualityStatus:  QualityOK,
		SaleStatus:     SaleStatusSaleable,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// AvailableQty is on-hand stock not yet promised to a pick
func (b Batch) AvailableQty() int {
	return b.QuantityOnHand - b.QuantityReserved
}

// IsSaleable reports whether the batch may be allocated to customer orders
func (b Batch) IsSaleable() bool {
	return b.SaleStatus == SaleStatusSaleable && b.QualityStatus != QualityRejected && b.QualityStatus != QualityHold
}

// BatchAllocation is a quantity taken from one batch for one pick item
type BatchAllocation struct {
	BatchID            string `bson:"batchId"`
	Quantity           int    `bson:"quantity"`
	SubstitutionReason string `bson:"substitutionReason,omitempty"`
}

// SumAllocations returns the total quantity across allocations
func SumAllocations(allocs []BatchAllocation) int {
	total := 0
	for _, a := range allocs {
		total += a.Quantity
	}
	return total
}
