package notify

import (
	"context"
	"fmt"

	"github.com/infrabond/core/internal/domain"
	"github.com/infrabond/core/internal/events"
)

// watchBufferSize is the buffer on the watcher's event bus subscription.
const watchBufferSize = 256

// Watcher bridges the domain event bus to the Notifier, turning state
// transitions into operator alerts. Which event types alert is decided by
// the Notifier's allowed-event filter.
type Watcher struct {
	bus      *events.MemoryBus
	notifier *Notifier
}

// NewWatcher creates a Watcher over the given bus and notifier.
func NewWatcher(bus *events.MemoryBus, notifier *Notifier) *Watcher {
	return &Watcher{
		bus:      bus,
		notifier: notifier,
	}
}

// Run consumes domain events until the context is cancelled. Delivery
// failures are logged inside the Notifier and never stop the loop.
func (w *Watcher) Run(ctx context.Context) error {
	evCh, cancel := w.bus.Subscribe(watchBufferSize)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-evCh:
			if !ok {
				return nil
			}
			title, message := format(ev)
			_ = w.notifier.Notify(ctx, ev.Type, title, message)
		}
	}
}

// format renders a domain event as a short human-readable alert.
func format(ev domain.Event) (title, message string) {
	switch ev.Type {
	case domain.EventProjectRegistered:
		return "Project registered", fmt.Sprintf("project %s registered by %v", ev.ProjectID, ev.Payload["sponsor"])
	case domain.EventProjectFunded:
		return "Project fully funded", fmt.Sprintf("project %s reached its funding goal", ev.ProjectID)
	case domain.EventProjectCompleted:
		return "Project completed", fmt.Sprintf("project %s completed; market settles YES", ev.ProjectID)
	case domain.EventProjectFailed:
		return "Project failed", fmt.Sprintf("project %s failed: %v", ev.ProjectID, ev.Payload["reason"])
	case domain.EventMarketOpened:
		return "Market opened", fmt.Sprintf("market %s opened for project %s", ev.MarketID, ev.ProjectID)
	case domain.EventMarketResolved:
		return "Market resolved", fmt.Sprintf("market %s resolved (outcome=%v)", ev.MarketID, ev.Payload["outcome"])
	case domain.EventYieldDeposited:
		return "Yield deposited", fmt.Sprintf("project %s received revenue %v", ev.ProjectID, ev.Payload["amount"])
	default:
		return ev.Type, fmt.Sprintf("project=%s market=%s", ev.ProjectID, ev.MarketID)
	}
}
