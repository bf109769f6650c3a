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
	collOrders     = "orders"
	collOrderLines = "order_lines"
)

// OrderRepository implements domain.OrderRepository. Lines live in their own
// collection and are written separately from the order header.
type OrderRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
	lines      *mongo.Collection
	outbox     *OutboxWriter
	inst       *pkgmongo.Instrumentation
}

func NewOrderRepository(db *mongo.Database, outbox *OutboxWriter, inst *pkgmongo.Instrumentation) *OrderRepository {
	return &OrderRepository{
		client:     db.Client(),
		collection: db.Collection(collOrders),
		lines:      db.Collection(collOrderLines),
		outbox:     outbox,
		inst:       inst,
	}
}

func (r *OrderRepository) EnsureIndexes(ctx context.Context) error {
	if _, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "orderId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}},
	}); err != nil {
		return err
	}
	_, err := r.lines.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "lineId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "orderId", Value: 1}}},
	})
	return err
}

// Create inserts the order header and its pending events. Lines are added
// with AddLines.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	if order.Version != 0 {
		return fmt.Errorf("%w: order %s already stored", domain.ErrConcurrentModification, order.OrderID)
	}
	return r.Save(ctx, order)
}

func (r *OrderRepository) AddLines(ctx context.Context, orderID string, lines []domain.OrderLine) error {
	if len(lines) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(lines))
	for i := range lines {
		lines[i].OrderID = orderID
		docs = append(docs, lines[i])
	}

	err := r.inst.Observe(ctx, collOrderLines, "insertMany", func(ctx context.Context) error {
		_, err := r.lines.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to insert order lines: %w", err)
	}
	return nil
}

// Delete removes an order and its lines. It backs the compensation of a
// failed create.
func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	return pkgmongo.RunInTransaction(ctx, r.client, func(ctx context.Context) error {
		return r.inst.Observe(ctx, collOrders, "delete", func(ctx context.Context) error {
			if _, err := r.lines.DeleteMany(ctx, bson.M{"orderId": orderID}); err != nil {
				return fmt.Errorf("failed to delete order lines: %w", err)
			}
			if _, err := r.collection.DeleteOne(ctx, bson.M{"orderId": orderID}); err != nil {
				return fmt.Errorf("failed to delete order: %w", err)
			}
			return nil
		})
	})
}

// Save writes the order header with optimistic versioning and stores its
// domain events in the outbox in the same transaction.
func (r *OrderRepository) Save(ctx context.Context, order *domain.Order) error {
	previous := order.Version
	order.Version = previous + 1
	order.UpdatedAt = pkgmongo.Now()

	err := pkgmongo.RunInTransaction(ctx, r.client, func(ctx context.Context) error {
		return r.inst.Observe(ctx, collOrders, "save", func(ctx context.Context) error {
			if err := writeVersioned(ctx, r.collection, "orderId", order.OrderID, previous, order); err != nil {
				return err
			}
			return r.outbox.Write(ctx, order.OrderID, "Order", "order", order.GetDomainEvents())
		})
	})
	if err != nil {
		order.Version = previous
		return fmt.Errorf("failed to save order: %w", err)
	}

	order.ClearDomainEvents()
	return nil
}

// FindByID returns the order with its lines in insertion order
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (*domain.Order, error) {
	var order domain.Order
	err := r.inst.Observe(ctx, collOrders, "findById", func(ctx context.Context) error {
		return r.collection.FindOne(ctx, bson.M{"orderId": orderID}).Decode(&order)
	})
	if err != nil {
		if pkgmongo.IsNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}

	err = r.inst.Observe(ctx, collOrderLines, "findByOrderId", func(ctx context.Context) error {
		cursor, err := r.lines.Find(ctx, bson.M{"orderId": orderID}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, &order.Lines)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find order lines: %w", err)
	}

	order.DomainEvents = make([]domain.DomainEvent, 0)
	return &order, nil
}

// FindByStatuses returns order headers, oldest first. Lines are not loaded.
func (r *OrderRepository) FindByStatuses(ctx context.Context, statuses []domain.OrderStatus, limit int) ([]*domain.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "orderId", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	var orders []*domain.Order
	err := r.inst.Observe(ctx, collOrders, "findByStatuses", func(ctx context.Context) error {
		cursor, err := r.collection.Find(ctx, bson.M{"status": bson.M{"$in": statuses}}, opts)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, &orders)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find orders by status: %w", err)
	}
	return orders, nil
}

// UpdateStatus moves every listed order to status in one write. Versions
// are bumped so in-flight saves of those orders fail instead of reverting it.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderIDs []string, status domain.OrderStatus) error {
	if len(orderIDs) == 0 {
		return nil
	}
	update := bson.M{
		"$set": bson.M{"status": status, "updatedAt": pkgmongo.Now()},
		"$inc": bson.M{"version": 1},
	}

	err := r.inst.Observe(ctx, collOrders, "updateStatus", func(ctx context.Context) error {
		result, err := r.collection.UpdateMany(ctx, bson.M{"orderId": bson.M{"$in": orderIDs}}, update)
		if err != nil {
			return err
		}
		if result.MatchedCount != int64(len(orderIDs)) {
			return fmt.Errorf("matched %d of %d orders", result.MatchedCount, len(orderIDs))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return nil
}
