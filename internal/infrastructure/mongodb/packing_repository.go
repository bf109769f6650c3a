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

const collPackings = "order_packings"

// PackingRepository implements domain.PackingRepository
type PackingRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
	outbox     *OutboxWriter
	inst       *pkgmongo.Instrumentation
}

func NewPackingRepository(db *mongo.Database, outbox *OutboxWriter, inst *pkgmongo.Instrumentation) *PackingRepository {
	return &PackingRepository{
		client:     db.Client(),
		collection: db.Collection(collPackings),
		outbox:     outbox,
		inst:       inst,
	}
}

func (r *PackingRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "packingId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "orderId", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	return err
}

func (r *PackingRepository) Save(ctx context.Context, packing *domain.OrderPacking) error {
	previous := packing.Version
	packing.Version = previous + 1
	packing.UpdatedAt = pkgmongo.Now()

	err := pkgmongo.RunInTransaction(ctx, r.client, func(ctx context.Context) error {
		return r.inst.Observe(ctx, collPackings, "save", func(ctx context.Context) error {
			if err := writeVersioned(ctx, r.collection, "packingId", packing.PackingID, previous, packing); err != nil {
				return err
			}
			return r.outbox.Write(ctx, packing.PackingID, "OrderPacking", "packing", packing.GetDomainEvents())
		})
	})
	if err != nil {
		packing.Version = previous
		return fmt.Errorf("failed to save packing: %w", err)
	}

	packing.ClearDomainEvents()
	return nil
}

func (r *PackingRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.OrderPacking, error) {
	var packing domain.OrderPacking
	err := r.inst.Observe(ctx, collPackings, "findByOrderId", func(ctx context.Context) error {
		return r.collection.FindOne(ctx, bson.M{"orderId": orderID}).Decode(&packing)
	})
	if err != nil {
		if pkgmongo.IsNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find packing: %w", err)
	}
	packing.DomainEvents = make([]domain.DomainEvent, 0)
	return &packing, nil
}

func (r *PackingRepository) FindByOrderIDs(ctx context.Context, orderIDs []string) ([]*domain.OrderPacking, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	var packings []*domain.OrderPacking
	err := r.inst.Observe(ctx, collPackings, "findByOrderIds", func(ctx context.Context) error {
		cursor, err := r.collection.Find(ctx, bson.M{"orderId": bson.M{"$in": orderIDs}})
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, &packings)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find packings: %w", err)
	}
	return packings, nil
}
