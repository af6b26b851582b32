package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/infrabond/core/internal/domain"
)

// BalanceStore is an in-memory implementation of domain.BalanceStore.
// Unknown accounts read as zero.
type BalanceStore struct {
	mu   sync.RWMutex
	data map[string]decimal.Decimal
}

// NewBalanceStore creates an empty balance store.
func NewBalanceStore() *BalanceStore {
	return &BalanceStore{data: make(map[string]decimal.Decimal)}
}

// Get returns the account balance, zero for unknown accounts.
func (s *BalanceStore) Get(_ context.Context, account string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, exists := s.data[account]; exists {
		return b, nil
	}
	return decimal.Zero, nil
}

// Set stores the account balance.
func (s *BalanceStore) Set(_ context.Context, account string, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[account] = balance
	return nil
}

// EventStore is an in-memory implementation of domain.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data []domain.Event
}

// NewEventStore creates an empty event store.
func NewEventStore() *EventStore {
	return &EventStore{}
}

// Insert appends an event to the log.
func (s *EventStore) Insert(_ context.Context, ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append(s.data, ev)
	return nil
}

// List returns events newest-first.
func (s *EventStore) List(_ context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Event, len(s.data))
	copy(out, s.data)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return paginate(out, opts), nil
}
