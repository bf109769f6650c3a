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

const (
	collPickLists = "pick_lists"
	collCounters  = "counters"

	pickListSequence = "pick_list_sequence"
)

// PickListRepository implements domain.PickListRepository
type PickListRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
	counters   *mongo.Collection
	outbox     *OutboxWriter
	inst       *pkgmongo.Instrumentation
}

func NewPickListRepository(db *mongo.Database, outbox *OutboxWriter, inst *pkgmongo.Instrumentation) *PickListRepository {
	return &PickListRepository{
		client:     db.Client(),
		collection: db.Collection(collPickLists),
		counters:   db.Collection(collCounters),
		outbox:     outbox,
		inst:       inst,
	}
}

func (r *PickListRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "pickListId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "orderId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	return err
}

func (r *PickListRepository) Save(ctx context.Context, list *domain.PickList) error {
	previous := list.Version
	list.Version = previous + 1
	list.UpdatedAt = pkgmongo.Now()

	err := pkgmongo.RunInTransaction(ctx, r.client, func(ctx context.Context) error {
		return r.inst.Observe(ctx, collPickLists, "save", func(ctx context.Context) error {
			if err := writeVersioned(ctx, r.collection, "pickListId", list.PickListID, previous, list); err != nil {
				return err
			}
			return r.outbox.Write(ctx, list.PickListID, "PickList", "pick-list", list.GetDomainEvents())
		})
	})
	if err != nil {
		list.Version = previous
		return fmt.Errorf("failed to save pick list: %w", err)
	}

	list.ClearDomainEvents()
	return nil
}

func (r *PickListRepository) FindByID(ctx context.Context, pickListID string) (*domain.PickList, error) {
	return r.findOne(ctx, "findById", bson.M{"pickListId": pickListID})
}

func (r *PickListRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.PickList, error) {
	return r.findOne(ctx, "findByOrderId", bson.M{"orderId": orderID})
}

func (r *PickListRepository) findOne(ctx context.Context, op string, filter bson.M) (*domain.PickList, error) {
	var list domain.PickList
	err := r.inst.Observe(ctx, collPickLists, op, func(ctx context.Context) error {
		return r.collection.FindOne(ctx, filter).Decode(&list)
	})
	if err != nil {
		if pkgmongo.IsNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find pick list: %w", err)
	}
	list.DomainEvents = make([]domain.DomainEvent, 0)
	return &list, nil
}

func (r *PickListRepository) FindByOrderIDs(ctx context.Context, orderIDs []string) ([]*domain.PickList, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	var lists []*domain.PickList
	err := r.inst.Observe(ctx, collPickLists, "findByOrderIds", func(ctx context.Context) error {
		cursor, err := r.collection.Find(ctx, bson.M{"orderId": bson.M{"$in": orderIDs}})
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, &lists)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find pick lists: %w", err)
	}
	return lists, nil
}

// NextSequence hands out pick list sequence numbers from a counter document
func (r *PickListRepository) NextSequence(ctx context.Context) (int, error) {
	var counter struct {
		Value int `bson:"value"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	err := r.inst.Observe(ctx, collCounters, "nextSequence", func(ctx context.Context) error {
		return r.counters.FindOneAndUpdate(ctx,
			bson.M{"_id": pickListSequence},
			bson.M{"$inc": bson.M{"value": 1}},
			opts,
		).Decode(&counter)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to allocate pick list sequence: %w", err)
	}
	return counter.Value, nil
}
