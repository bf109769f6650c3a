package application

import "github.com/wms-platform/nursery-fulfillment/internal/domain"

// aggregateSnapshot restores an aggregate's version and pending events.
// Transaction bodies may run more than once, and a successful Save inside
// an aborted attempt has already bumped the version and cleared events.
type aggregateSnapshot struct {
	version *int64
	events  *[]domain.DomainEvent
	v       int64
	e       []domain.DomainEvent
}

func snapshotAggregate(version *int64, events *[]domain.DomainEvent) aggregateSnapshot {
	return aggregateSnapshot{
		version: version,
		events:  events,
		v:       *version,
		e:       append([]domain.DomainEvent(nil), (*events)...),
	}
}

func (s aggregateSnapshot) restore() {
	*s.version = s.v
	*s.events = append([]domain.DomainEvent(nil), s.e...)
}
