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

const collDeliveryRuns = "delivery_runs"

// DeliveryRunRepository implements domain.DeliveryRunRepository. Items are
// embedded in the run document.
type DeliveryRunRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
	outbox     *OutboxWriter
	inst       *pkgmongo.Instrumentation
}

func NewDeliveryRunRepository(db *mongo.Database, outbox *OutboxWriter, inst *pkgmongo.Instrumentation) *DeliveryRunRepository {
	return &DeliveryRunRepository{
		client:     db.Client(),
		collection: db.Collection(collDeliveryRuns),
		outbox:     outbox,
		inst:       inst,
	}
}

func (r *DeliveryRunRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "runId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "items.orderId", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "runDate", Value: 1}}},
	})
	return err
}

func (r *DeliveryRunRepository) Save(ctx context.Context, run *domain.DeliveryRun) error {
	previous := run.Version
	run.Version = previous + 1
	run.UpdatedAt = pkgmongo.Now()
	if run.Items == nil {
		run.Items = []domain.DeliveryItem{}
	}

	err := pkgmongo.RunInTransaction(ctx, r.client, func(ctx context.Context) error {
		return r.inst.Observe(ctx, collDeliveryRuns, "save", func(ctx context.Context) error {
			if err := writeVersioned(ctx, r.collection, "runId", run.RunID, previous, run); err != nil {
				return err
			}
			return r.outbox.Write(ctx, run.RunID, "DeliveryRun", "delivery-run", run.GetDomainEvents())
		})
	})
	if err != nil {
		run.Version = previous
		return fmt.Errorf("failed to save delivery run: %w", err)
	}

	run.ClearDomainEvents()
	return nil
}

func (r *DeliveryRunRepository) FindByID(ctx context.Context, runID string) (*domain.DeliveryRun, error) {
	var run domain.DeliveryRun
	err := r.inst.Observe(ctx, collDeliveryRuns, "findById", func(ctx context.Context) error {
		return r.collection.FindOne(ctx, bson.M{"runId": runID}).Decode(&run)
	})
	if err != nil {
		if pkgmongo.IsNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find delivery run: %w", err)
	}
	run.DomainEvents = make([]domain.DomainEvent, 0)
	return &run, nil
}

func (r *DeliveryRunRepository) FindActiveByOrderID(ctx context.Context, orderID string) (*domain.DeliveryRun, error) {
	filter := bson.M{
		"items.orderId": orderID,
		"status":        bson.M{"$ne": domain.RunStatusCompleted},
	}
	var run domain.DeliveryRun
	err := r.inst.Observe(ctx, collDeliveryRuns, "findActiveByOrderId", func(ctx context.Context) error {
		return r.collection.FindOne(ctx, filter).Decode(&run)
	})
	if err != nil {
		if pkgmongo.IsNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find active delivery run: %w", err)
	}
	run.DomainEvents = make([]domain.DomainEvent, 0)
	return &run, nil
}

// FindLatestByOrderIDs maps each order to the newest run carrying it
func (r *DeliveryRunRepository) FindLatestByOrderIDs(ctx context.Context, orderIDs []string) (map[string]*domain.DeliveryRun, error) {
	result := make(map[string]*domain.DeliveryRun, len(orderIDs))
	if len(orderIDs) == 0 {
		return result, nil
	}

	opts := options.Find().SetSort(bson.D{{Key: "runDate", Value: -1}, {Key: "createdAt", Value: -1}})
	var runs []*domain.DeliveryRun
	err := r.inst.Observe(ctx, collDeliveryRuns, "findByOrderIds", func(ctx context.Context) error {
		cursor, err := r.collection.Find(ctx, bson.M{"items.orderId": bson.M{"$in": orderIDs}}, opts)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, &runs)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find delivery runs: %w", err)
	}

	wanted := make(map[string]bool, len(orderIDs))
	for _, id := range orderIDs {
		wanted[id] = true
	}
	for _, run := range runs {
		for _, item := range run.Items {
			if !wanted[item.OrderID] {
				continue
			}
			if _, seen := result[item.OrderID]; !seen {
				result[item.OrderID] = run
			}
		}
	}
	return result, nil
}
