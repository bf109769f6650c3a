package reference

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wms-platform/nursery-fulfillment/internal/domain"
	"github.com/wms-platform/nursery-fulfillment/pkg/logging"
	"github.com/wms-platform/nursery-fulfillment/pkg/resilience"
)

// DefaultTTL is how long reference data is served from memory
const DefaultTTL = 5 * time.Minute

type entry[V any] struct {
	value    V
	loadedAt time.Time
}

// Provider serves reference data from a TTL cache in front of a source.
// Source calls go through a circuit breaker. When the source fails, an
// expired entry is served instead of an error.
type Provider struct {
	source  domain.ReferenceDataProvider
	breaker *resilience.CircuitBreaker
	logger  *logging.Logger
	ttl     time.Duration
	now     func() time.Time

	mu       sync.RWMutex
	configs  *entry[[]domain.CapacityConfig]
	shelves  map[string]entry[int]
	hauliers map[string]entry[*domain.Haulier]
	vehicles map[string]entry[*domain.Vehicle]
}

// NewProvider wraps source. A ttl of zero uses DefaultTTL.
func NewProvider(source domain.ReferenceDataProvider, breaker *resilience.CircuitBreaker, logger *logging.Logger, ttl time.Duration) *Provider {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Provider{
		source:   source,
		breaker:  breaker,
		logger:   logger.WithComponent("reference-data"),
		ttl:      ttl,
		now:      time.Now,
		shelves:  make(map[string]entry[int]),
		hauliers: make(map[string]entry[*domain.Haulier]),
		vehicles: make(map[string]entry[*domain.Vehicle]),
	}
}

func (p *Provider) fresh(loadedAt time.Time) bool {
	return p.now().Sub(loadedAt) < p.ttl
}

func (p *Provider) call(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if p.breaker == nil {
		return fn(ctx)
	}
	return p.breaker.Execute(ctx, fn)
}

func (p *Provider) GetCapacityConfigs(ctx context.Context) ([]domain.CapacityConfig, error) {
	p.mu.RLock()
	cached := p.configs
	p.mu.RUnlock()
	if cached != nil && p.fresh(cached.loadedAt) {
		return cached.value, nil
	}

	result, err := p.call(ctx, func(ctx context.Context) (interface{}, error) {
		return p.source.GetCapacityConfigs(ctx)
	})
	if err != nil {
		if cached != nil {
			p.logger.WithError(err).Warn("Serving stale capacity configs")
			return cached.value, nil
		}
		return nil, fmt.Errorf("failed to load capacity configs: %w", err)
	}

	configs, _ := result.([]domain.CapacityConfig)
	p.mu.Lock()
	p.configs = &entry[[]domain.CapacityConfig]{value: configs, loadedAt: p.now()}
	p.mu.Unlock()
	return configs, nil
}

// GetShelfQuantities caches per size. Sizes without a shelf quantity are
// absent from the result.
func (p *Provider) GetShelfQuantities(ctx context.Context, sizeIDs []string) (map[string]int, error) {
	result := make(map[string]int, len(sizeIDs))
	missing := make([]string, 0)

	p.mu.RLock()
	for _, id := range sizeIDs {
		if e, ok := p.shelves[id]; ok && p.fresh(e.loadedAt) {
			result[id] = e.value
			continue
		}
		missing = append(missing, id)
	}
	p.mu.RUnlock()

	if len(missing) == 0 {
		return result, nil
	}
	sort.Strings(missing)

	loaded, err := p.call(ctx, func(ctx context.Context) (interface{}, error) {
		return p.source.GetShelfQuantities(ctx, missing)
	})
	if err != nil {
		stale := p.staleShelves(missing, result)
		if stale {
			p.logger.WithError(err).Warn("Serving stale shelf quantities", "sizes", strings.Join(missing, ","))
			return result, nil
		}
		return nil, fmt.Errorf("failed to load shelf quantities: %w", err)
	}

	quantities, _ := loaded.(map[string]int)
	now := p.now()
	p.mu.Lock()
	for id, qty := range quantities {
		p.shelves[id] = entry[int]{value: qty, loadedAt: now}
		result[id] = qty
	}
	p.mu.Unlock()
	return result, nil
}

// staleShelves fills result from expired entries and reports whether every
// missing size had one
func (p *Provider) staleShelves(missing []string, result map[string]int) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, id := range missing {
		e, ok := p.shelves[id]
		if !ok {
			return false
		}
		result[id] = e.value
	}
	return true
}

func (p *Provider) GetHaulier(ctx context.Context, haulierID string) (*domain.Haulier, error) {
	return lookup(ctx, p, p.hauliers, haulierID, "haulier", func(ctx context.Context) (*domain.Haulier, error) {
		return p.source.GetHaulier(ctx, haulierID)
	})
}

func (p *Provider) GetVehicle(ctx context.Context, vehicleID string) (*domain.Vehicle, error) {
	return lookup(ctx, p, p.vehicles, vehicleID, "vehicle", func(ctx context.Context) (*domain.Vehicle, error) {
		return p.source.GetVehicle(ctx, vehicleID)
	})
}

// lookup serves a keyed entry. Unknown keys are not cached.
func lookup[V any](ctx context.Context, p *Provider, cache map[string]entry[*V], key, kind string, load func(ctx context.Context) (*V, error)) (*V, error) {
	p.mu.RLock()
	cached, ok := cache[key]
	p.mu.RUnlock()
	if ok && p.fresh(cached.loadedAt) {
		return cached.value, nil
	}

	result, err := p.call(ctx, func(ctx context.Context) (interface{}, error) {
		return load(ctx)
	})
	if err != nil {
		if ok {
			p.logger.WithError(err).Warn("Serving stale reference data", "kind", kind, "id", key)
			return cached.value, nil
		}
		return nil, fmt.Errorf("failed to load %s %s: %w", kind, key, err)
	}

	value, _ := result.(*V)
	if value == nil {
		return nil, nil
	}
	p.mu.Lock()
	cache[key] = entry[*V]{value: value, loadedAt: p.now()}
	p.mu.Unlock()
	return value, nil
}

// Invalidate drops every cached entry
func (p *Provider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.configs = nil
	p.shelves = make(map[string]entry[int])
	p.hauliers = make(map[string]entry[*domain.Haulier])
	p.vehicles = make(map[string]entry[*domain.Vehicle])
}
