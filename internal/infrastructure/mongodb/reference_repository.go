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
	collCapacityConfigs = "capacity_configs"
	collSizes           = "sizes"
	collHauliers        = "hauliers"
	collVehicles        = "vehicles"
)

// ReferenceRepository reads reference data collections. It implements
// domain.ReferenceDataProvider without caching.
type ReferenceRepository struct {
	db   *mongo.Database
	inst *pkgmongo.Instrumentation
}

func NewReferenceRepository(db *mongo.Database, inst *pkgmongo.Instrumentation) *ReferenceRepository {
	return &ReferenceRepository{db: db, inst: inst}
}

func (r *ReferenceRepository) EnsureIndexes(ctx context.Context) error {
	unique := func(keys ...string) mongo.IndexModel {
		d := bson.D{}
		for _, k := range keys {
			d = append(d, bson.E{Key: k, Value: 1})
		}
		return mongo.IndexModel{Keys: d, Options: options.Index().SetUnique(true)}
	}
	indexes := map[string]mongo.IndexModel{
		collCapacityConfigs: unique("family", "sizeId"),
		collSizes:           unique("sizeId"),
		collHauliers:        unique("haulierId"),
		collVehicles:        unique("vehicleId"),
	}
	for coll, idx := range indexes {
		if _, err := r.db.Collection(coll).Indexes().CreateOne(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", coll, err)
		}
	}
	return nil
}

func (r *ReferenceRepository) GetCapacityConfigs(ctx context.Context) ([]domain.CapacityConfig, error) {
	var configs []domain.CapacityConfig
	err := r.inst.Observe(ctx, collCapacityConfigs, "findAll", func(ctx context.Context) error {
		opts := options.Find().SetSort(bson.D{{Key: "family", Value: 1}, {Key: "sizeId", Value: 1}})
		cursor, err := r.db.Collection(collCapacityConfigs).Find(ctx, bson.M{}, opts)
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, &configs)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load capacity configs: %w", err)
	}
	return configs, nil
}

// GetShelfQuantities returns units per shelf for the sizes that define one
func (r *ReferenceRepository) GetShelfQuantities(ctx context.Context, sizeIDs []string) (map[string]int, error) {
	result := make(map[string]int, len(sizeIDs))
	if len(sizeIDs) == 0 {
		return result, nil
	}

	var sizes []domain.Size
	err := r.inst.Observe(ctx, collSizes, "findByIds", func(ctx context.Context) error {
		cursor, err := r.db.Collection(collSizes).Find(ctx, bson.M{"sizeId": bson.M{"$in": sizeIDs}})
		if err != nil {
			return err
		}
		defer cursor.Close(ctx)
		return cursor.All(ctx, &sizes)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load shelf quantities: %w", err)
	}

	for _, s := range sizes {
		if s.UnitsPerShelf > 0 {
			result[s.SizeID] = s.UnitsPerShelf
		}
	}
	return result, nil
}

func (r *ReferenceRepository) GetHaulier(ctx context.Context, haulierID string) (*domain.Haulier, error) {
	var haulier domain.Haulier
	if err := r.findOne(ctx, collHauliers, bson.M{"haulierId": haulierID}, &haulier); err != nil {
		if pkgmongo.IsNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find haulier: %w", err)
	}
	return &haulier, nil
}

func (r *ReferenceRepository) GetVehicle(ctx context.Context, vehicleID string) (*domain.Vehicle, error) {
	var vehicle domain.Vehicle
	if err := r.findOne(ctx, collVehicles, bson.M{"vehicleId": vehicleID}, &vehicle); err != nil {
		if pkgmongo.IsNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find vehicle: %w", err)
	}
	return &vehicle, nil
}

func (r *ReferenceRepository) findOne(ctx context.Context, coll string, filter bson.M, out any) error {
	return r.inst.Observe(ctx, coll, "findOne", func(ctx context.Context) error {
		return r.db.Collection(coll).FindOne(ctx, filter).Decode(out)
	})
}

// UpsertCapacityConfigs replaces configs by (family, sizeId)
func (r *ReferenceRepository) UpsertCapacityConfigs(ctx context.Context, configs []domain.CapacityConfig) error {
	models := make([]mongo.WriteModel, 0, len(configs))
	for _, c := range configs {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"family": c.Family, "sizeId": c.SizeID}).
			SetReplacement(c).
			SetUpsert(true))
	}
	return r.bulkUpsert(ctx, collCapacityConfigs, models)
}

func (r *ReferenceRepository) UpsertSizes(ctx context.Context, sizes []domain.Size) error {
	models := make([]mongo.WriteModel, 0, len(sizes))
	for _, s := range sizes {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"sizeId": s.SizeID}).
			SetReplacement(s).
			SetUpsert(true))
	}
	return r.bulkUpsert(ctx, collSizes, models)
}

func (r *ReferenceRepository) UpsertHauliers(ctx context.Context, hauliers []domain.Haulier) error {
	models := make([]mongo.WriteModel, 0, len(hauliers))
	for _, h := range hauliers {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"haulierId": h.HaulierID}).
			SetReplacement(h).
			SetUpsert(true))
	}
	return r.bulkUpsert(ctx, collHauliers, models)
}

func (r *ReferenceRepository) UpsertVehicles(ctx context.Context, vehicles []domain.Vehicle) error {
	models := make([]mongo.WriteModel, 0, len(vehicles))
	for _, v := range vehicles {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"vehicleId": v.VehicleID}).
			SetReplacement(v).
			SetUpsert(true))
	}
	return r.bulkUpsert(ctx, collVehicles, models)
}

func (r *ReferenceRepository) bulkUpsert(ctx context.Context, coll string, models []mongo.WriteModel) error {
	if len(models) == 0 {
		return nil
	}
	err := r.inst.Observe(ctx, coll, "bulkUpsert", func(ctx context.Context) error {
		_, err := r.db.Collection(coll).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %s: %w", coll, err)
	}
	return nil
}
