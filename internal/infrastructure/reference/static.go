package reference

import (
	"context"

	"github.com/wms-platform/nursery-fulfillment/internal/domain"
)

// StaticSource serves seed data from memory. It backs the provider when no
// reference collections are configured.
type StaticSource struct {
	data *SeedData
}

func NewStaticSource(data *SeedData) *StaticSource {
	if data == nil {
		data = &SeedData{}
	}
	return &StaticSource{data: data}
}

func (s *StaticSource) GetCapacityConfigs(ctx context.Context) ([]domain.CapacityConfig, error) {
	out := make([]domain.CapacityConfig, len(s.data.CapacityConfigs))
	copy(out, s.data.CapacityConfigs)
	return out, nil
}

func (s *StaticSource) GetShelfQuantities(ctx context.Context, sizeIDs []string) (map[string]int, error) {
	wanted := make(map[string]bool, len(sizeIDs))
	for _, id := range sizeIDs {
		wanted[id] = true
	}
	result := make(map[string]int)
	for _, size := range s.data.Sizes {
		if wanted[size.SizeID] && size.UnitsPerShelf > 0 {
			result[size.SizeID] = size.UnitsPerShelf
		}
	}
	return result, nil
}

func (s *StaticSource) GetHaulier(ctx context.Context, haulierID string) (*domain.Haulier, error) {
	for i := range s.data.Hauliers {
		if s.data.Hauliers[i].HaulierID == haulierID {
			h := s.data.Hauliers[i]
			return &h, nil
		}
	}
	return nil, nil
}

func (s *StaticSource) GetVehicle(ctx context.Context, vehicleID string) (*domain.Vehicle, error) {
	for i := range s.data.Vehicles {
		if s.data.Vehicles[i].VehicleID == vehicleID {
			v := s.data.Vehicles[i]
			return &v, nil
		}
	}
	return nil, nil
}
