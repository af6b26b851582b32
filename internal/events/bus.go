package events

import (
	"context"
	"sync"

	"github.com/infrabond/core/internal/domain"
)

// MemoryBus is an in-process fan-out implementation of domain.EventBus,
// used in memory-storage mode and by the websocket hub when redis is not
// configured. Slow subscribers drop events rather than block publishers.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[int]chan domain.Event
	next int
}

// NewMemoryBus creates an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]chan domain.Event)}
}

// Publish fans the event out to every subscriber.
func (b *MemoryBus) Publish(_ context.Context, ev domain.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// Subscribe registers a buffered subscription. The returned cancel func
// unregisters and closes the channel.
func (b *MemoryBus) Subscribe(buffer int) (<-chan domain.Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan domain.Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

var _ domain.EventBus = (*MemoryBus)(nil)
