package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/infrabond/core/internal/domain"
)

// MarketStore is an in-memory implementation of domain.MarketStore.
type MarketStore struct {
	mu        sync.RWMutex
	byID      map[string]domain.Market
	byProject map[string]string // project ID → market ID
}

// NewMarketStore creates an empty market store.
func NewMarketStore() *MarketStore {
	return &MarketStore{
		byID:      make(map[string]domain.Market),
		byProject: make(map[string]string),
	}
}

// Insert adds a market. At most one market per project.
func (s *MarketStore) Insert(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[m.ID]; exists {
		return fmt.Errorf("market %s: %w", m.ID, domain.ErrStateConflict)
	}
	if _, exists := s.byProject[m.ProjectID]; exists {
		return fmt.Errorf("market for project %s: %w", m.ProjectID, domain.ErrStateConflict)
	}
	s.byID[m.ID] = m
	s.byProject[m.ProjectID] = m.ID
	return nil
}

// Update replaces a market record.
func (s *MarketStore) Update(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[m.ID]; !exists {
		return fmt.Errorf("market %s: %w", m.ID, domain.ErrNotFound)
	}
	s.byID[m.ID] = m
	return nil
}

// Get retrieves a market by ID.
func (s *MarketStore) Get(_ context.Context, id string) (domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, exists := s.byID[id]
	if !exists {
		return domain.Market{}, fmt.Errorf("market %s: %w", id, domain.ErrNotFound)
	}
	return m, nil
}

// GetByProject retrieves the market associated with a project.
func (s *MarketStore) GetByProject(_ context.Context, projectID string) (domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, exists := s.byProject[projectID]
	if !exists {
		return domain.Market{}, fmt.Errorf("market for project %s: %w", projectID, domain.ErrNotFound)
	}
	return s.byID[id], nil
}

// List returns markets ordered by creation time descending.
func (s *MarketStore) List(_ context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Market, 0, len(s.byID))
	for _, m := range s.byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return paginate(out, opts), nil
}

// TradeStore is an in-memory implementation of domain.TradeStore.
type TradeStore struct {
	mu       sync.RWMutex
	byMarket map[string][]domain.Trade
}

// NewTradeStore creates an empty trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{byMarket: make(map[string][]domain.Trade)}
}

// Insert appends a trade. The log is never mutated afterwards.
func (s *TradeStore) Insert(_ context.Context, t domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byMarket[t.MarketID] = append(s.byMarket[t.MarketID], t)
	return nil
}

// ListByMarket returns a market's trades in append order.
func (s *TradeStore) ListByMarket(_ context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	trades := s.byMarket[marketID]
	out := make([]domain.Trade, len(trades))
	copy(out, trades)
	return paginate(out, opts), nil
}

type outcomeKey struct {
	marketID string
	holder   common.Address
	side     domain.Side
}

// OutcomeStore is an in-memory implementation of domain.OutcomeStore.
type OutcomeStore struct {
	mu   sync.RWMutex
	data map[outcomeKey]domain.OutcomeHolding
}

// NewOutcomeStore creates an empty outcome store.
func NewOutcomeStore() *OutcomeStore {
	return &OutcomeStore{data: make(map[outcomeKey]domain.OutcomeHolding)}
}

// Upsert inserts or replaces an outcome holding.
func (s *OutcomeStore) Upsert(_ context.Context, h domain.OutcomeHolding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[outcomeKey{h.MarketID, h.Holder, h.Side}] = h
	return nil
}

// Get retrieves an outcome holding; ErrNotFound means zero balance.
func (s *OutcomeStore) Get(_ context.Context, marketID string, holder common.Address, side domain.Side) (domain.OutcomeHolding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, exists := s.data[outcomeKey{marketID, holder, side}]
	if !exists {
		return domain.OutcomeHolding{}, fmt.Errorf("outcome holding %s/%s/%s: %w", marketID, holder.Hex(), side, domain.ErrNotFound)
	}
	return h, nil
}
