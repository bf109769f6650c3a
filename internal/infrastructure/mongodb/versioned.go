package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/wms-platform/nursery-fulfillment/internal/domain"
	pkgmongo "github.com/wms-platform/nursery-fulfillment/pkg/mongodb"
)

// writeVersioned inserts doc when previous is 0, otherwise replaces the
// document matching idField/id at the previous version. doc must already
// carry previous+1.
func writeVersioned(ctx context.Context, coll *mongo.Collection, idField, id string, previous int64, doc any) error {
	if previous == 0 {
		if _, err := coll.InsertOne(ctx, doc); err != nil {
			if pkgmongo.IsDuplicateKey(err) {
				return fmt.Errorf("%w: %s %s already exists", domain.ErrConcurrentModification, coll.Name(), id)
			}
			return err
		}
		return nil
	}

	filter := bson.M{idField: id, "version": previous}
	result, err := coll.ReplaceOne(ctx, filter, doc)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %s %s changed since version %d", domain.ErrConcurrentModification, coll.Name(), id, previous)
	}
	return nil
}
