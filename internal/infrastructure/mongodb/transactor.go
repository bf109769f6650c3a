package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"

	pkgmongo "github.com/wms-platform/nursery-fulfillment/pkg/mongodb"
)

// Transactor implements domain.Transactor on MongoDB sessions
type Transactor struct {
	client *mongo.Client
}

func NewTransactor(client *mongo.Client) *Transactor {
	return &Transactor{client: client}
}

func (t *Transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return pkgmongo.RunInTransaction(ctx, t.client, fn)
}
