package reference

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wms-platform/nursery-fulfillment/internal/domain"
)

// SeedData is the reference data file layout
type SeedData struct {
	CapacityConfigs []domain.CapacityConfig `yaml:"capacityConfigs"`
	Sizes           []domain.Size           `yaml:"sizes"`
	Hauliers        []domain.Haulier        `yaml:"hauliers"`
	Vehicles        []domain.Vehicle        `yaml:"vehicles"`
}

// Seeder stores reference data
type Seeder interface {
	UpsertCapacityConfigs(ctx context.Context, configs []domain.CapacityConfig) error
	UpsertSizes(ctx context.Context, sizes []domain.Size) error
	UpsertHauliers(ctx context.Context, hauliers []domain.Haulier) error
	UpsertVehicles(ctx context.Context, vehicles []domain.Vehicle) error
}

// LoadSeedFile reads and validates a YAML seed file
func LoadSeedFile(path string) (*SeedData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(raw)
}

// ParseSeed decodes YAML seed data. Unknown keys are rejected.
func ParseSeed(raw []byte) (*SeedData, error) {
	var data SeedData
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse seed data: %w", err)
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}
	return &data, nil
}

// Validate checks keys are present and unique and capacities are sane
func (d *SeedData) Validate() error {
	seen := make(map[string]bool)
	for i, c := range d.CapacityConfigs {
		if c.Family == "" || c.SizeID == "" {
			return fmt.Errorf("capacityConfigs[%d]: family and sizeId are required", i)
		}
		if c.UnitsPerShelf < 0 || c.ShelvesPerTrolley < 0 {
			return fmt.Errorf("capacityConfigs[%d]: capacities cannot be negative", i)
		}
		key := c.Family + "/" + c.SizeID
		if seen[key] {
			return fmt.Errorf("capacityConfigs[%d]: duplicate %s", i, key)
		}
		seen[key] = true
	}
	for i, s := range d.Sizes {
		if s.SizeID == "" {
			return fmt.Errorf("sizes[%d]: sizeId is required", i)
		}
	}
	hauliers := make(map[string]bool)
	for i, h := range d.Hauliers {
		if h.HaulierID == "" {
			return fmt.Errorf("hauliers[%d]: haulierId is required", i)
		}
		hauliers[h.HaulierID] = true
	}
	for i, v := range d.Vehicles {
		if v.VehicleID == "" {
			return fmt.Errorf("vehicles[%d]: vehicleId is required", i)
		}
		if !hauliers[v.HaulierID] {
			return fmt.Errorf("vehicles[%d]: unknown haulier %q", i, v.HaulierID)
		}
	}
	return nil
}

// Seed upserts every section of data
func Seed(ctx context.Context, seeder Seeder, data *SeedData) error {
	if err := seeder.UpsertCapacityConfigs(ctx, data.CapacityConfigs); err != nil {
		return err
	}
	if err := seeder.UpsertSizes(ctx, data.Sizes); err != nil {
		return err
	}
	if err := seeder.UpsertHauliers(ctx, data.Hauliers); err != nil {
		return err
	}
	return seeder.UpsertVehicles(ctx, data.Vehicles)
}
