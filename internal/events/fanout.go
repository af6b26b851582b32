package events

import (
	"context"
	"errors"

	"github.com/infrabond/core/internal/domain"
)

// Fanout publishes to several buses, typically the in-process bus feeding
// the websocket hub plus the redis bus feeding external consumers. Every
// bus sees every event; errors are joined.
type Fanout struct {
	buses []domain.EventBus
}

// NewFanout creates a Fanout over the given buses.
func NewFanout(buses ...domain.EventBus) *Fanout {
	return &Fanout{buses: buses}
}

// Publish delivers the event to every bus.
func (f *Fanout) Publish(ctx context.Context, ev domain.Event) error {
	var errs []error
	for _, b := range f.buses {
		if err := b.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ domain.EventBus = (*Fanout)(nil)
