package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/infrabond/core/internal/domain"
)

type holderYieldKey struct {
	projectID string
	holder    common.Address
}

// YieldStore is an in-memory implementation of domain.YieldStore.
type YieldStore struct {
	mu      sync.RWMutex
	pools   map[string]domain.YieldPool
	holders map[holderYieldKey]domain.HolderYield
}

// NewYieldStore creates an empty yield store.
func NewYieldStore() *YieldStore {
	return &YieldStore{
		pools:   make(map[string]domain.YieldPool),
		holders: make(map[holderYieldKey]domain.HolderYield),
	}
}

// UpsertPool inserts or replaces a project's yield pool.
func (s *YieldStore) UpsertPool(_ context.Context, p domain.YieldPool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[p.ProjectID] = p
	return nil
}

// GetPool retrieves a project's yield pool.
func (s *YieldStore) GetPool(_ context.Context, projectID string) (domain.YieldPool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, exists := s.pools[projectID]
	if !exists {
		return domain.YieldPool{}, fmt.Errorf("yield pool %s: %w", projectID, domain.ErrNotFound)
	}
	return p, nil
}

// UpsertHolder inserts or replaces a holder's claim record.
func (s *YieldStore) UpsertHolder(_ context.Context, h domain.HolderYield) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holders[holderYieldKey{h.ProjectID, h.Holder}] = h
	return nil
}

// GetHolder retrieves a holder's claim record.
func (s *YieldStore) GetHolder(_ context.Context, projectID string, holder common.Address) (domain.HolderYield, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, exists := s.holders[holderYieldKey{projectID, holder}]
	if !exists {
		return domain.HolderYield{}, fmt.Errorf("holder yield %s/%s: %w", projectID, holder.Hex(), domain.ErrNotFound)
	}
	return h, nil
}
