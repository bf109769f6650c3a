package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/nursery-fulfillment/internal/domain"
	pkgmongo "github.com/wms-platform/nursery-fulfillment/pkg/mongodb"
)

const collBatches = "batches"

// BatchRepository implements domain.BatchRepository. Reservations are
// conditional $inc updates so two writers can never oversell a batch.
type BatchRepository struct {
	collection *mongo.Collection
	inst       *pkgmongo.Instrumentation
}

func NewBatchRepository(db *mongo.Database, inst *pkgmongo.Instrumentation) *BatchRepository {
	return &BatchRepository{
		collection: db.Collection(collBatches),
		inst:       inst,
	}
}

func (r *BatchRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "batchId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "skuId", Value: 1}, {Key: "sizeId", Value: 1}, {Key: "orderingKey", Value: 1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// Save upserts a batch. Used for stock intake and seeding.
func (r *BatchRepository) Save(ctx context.Context, batch *domain.Batch) error {
	batch.UpdatedAt = pkgmongo.Now()
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = batch.UpdatedAt
	}

	return r.inst.Observe(ctx, collBatches, "save", func(ctx context.Context) error {
		opts := options.Replace().SetUpsert(true)
		if _, err := r.collection.ReplaceOne(ctx, bson.M{"batchId": batch.BatchID}, batch, opts); err != nil {
			return fmt.Errorf("failed to save batch: %w", err)
		}
		return nil
	})
}

func (r *BatchRepository) FindByID(ctx context.Context, batchID string) (*domain.Batch, error) {
	var batch domain.Batch
	err := r.inst.Observe(ctx, collBatches, "findById", func(ctx context.Context) error {
		return r.collection.FindOne(ctx, bson.M{"batchId": batchID}).Decode(&batch)
	})
	if err != nil {
		if pkgmongo.IsNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find batch: %w", err)
	}
	return &batch, nil
}

// FindSaleableBatches returns batches of a sku and size that are on sale,
// not held or rejected, and have stock left to reserve. The allocator does
// the FEFO ordering.
func (r *BatchRepository) FindSaleableBatches(ctx context.Context, skuID, sizeID string) ([]domain.Batch, error) {
	filter := bson.M{
		"skuId":         skuID,
		"sizeId":        sizeID,
		"saleStatus":    domain.SaleStatusSaleable,
		"qualityStatus": bson.M{"$nin": bson.A{domain.QualityHold, domain.QualityRejected}},
		"$expr":         bson.M{"$gt": bson.A{"$quantityOnHand", "$quantityReserved"}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "orderingKey", Value: 1}, {Key: "batchId", Value: 1}})

	var batches []domain.Batch
	err := r.inst.Observe(ctx, collBatches, "findSaleable", func(ctx context.Context) error {
		cursor, err := r.collection.Find(ctx, filter, opts)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, &batches)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find saleable batches: %w", err)
	}
	return batches, nil
}

func (r *BatchRepository) Reserve(ctx context.Context, batchID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: reserve %d", domain.ErrInvalidQuantity, qty)
	}
	filter := bson.M{
		"batchId": batchID,
		"$expr": bson.M{"$gte": bson.A{
			bson.M{"$subtract": bson.A{"$quantityOnHand", "$quantityReserved"}},
			qty,
		}},
	}
	update := bson.M{
		"$inc": bson.M{"quantityReserved": qty},
		"$set": bson.M{"updatedAt": pkgmongo.Now()},
	}
	return r.conditionalUpdate(ctx, "reserve", batchID, filter, update, domain.ErrInsufficientAvailability)
}

func (r *BatchRepository) Consume(ctx context.Context, batchID string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: consume %d", domain.ErrInvalidQuantity, qty)
	}
	filter := bson.M{
		"batchId":          batchID,
		"quantityReserved": bson.M{"$gte": qty},
		"quantityOnHand":   bson.M{"$gte": qty},
	}
	update := bson.M{
		"$inc": bson.M{"quantityOnHand": -qty, "quantityReserved": -qty},
		"$set": bson.M{"updatedAt": pkgmongo.Now()},
	}
	return r.conditionalUpdate(ctx, "consume", batchID, filter, update, domain.ErrInsufficientAvailability)
}

func (r *BatchRepository) Release(ctx context.Context, batchID string, qty int) error {
	if qty <= 0 {
		return nil
	}
	filter := bson.M{
		"batchId":          batchID,
		"quantityReserved": bson.M{"$gte": qty},
	}
	update := bson.M{
		"$inc": bson.M{"quantityReserved": -qty},
		"$set": bson.M{"updatedAt": pkgmongo.Now()},
	}
	return r.conditionalUpdate(ctx, "release", batchID, filter, update, domain.ErrInvalidQuantity)
}

// conditionalUpdate applies update when filter matches. A miss is reported
// as ErrBatchNotFound when the batch does not exist, otherwise as onMiss.
func (r *BatchRepository) conditionalUpdate(ctx context.Context, op, batchID string, filter, update bson.M, onMiss error) error {
	var matched int64
	err := r.inst.Observe(ctx, collBatches, op, func(ctx context.Context) error {
		result, err := r.collection.UpdateOne(ctx, filter, update)
		if err != nil {
			return err
		}
		matched = result.MatchedCount
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to %s batch %s: %w", op, batchID, err)
	}
	if matched > 0 {
		return nil
	}

	batch, err := r.FindByID(ctx, batchID)
	if err != nil {
		return err
	}
	if batch == nil {
		return fmt.Errorf("%w: %s", domain.ErrBatchNotFound, batchID)
	}
	return fmt.Errorf("%w: cannot %s %s (on hand %d, reserved %d)",
		onMiss, op, batchID, batch.QuantityOnHand, batch.QuantityReserved)
}
