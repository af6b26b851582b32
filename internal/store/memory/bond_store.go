package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/infrabond/core/internal/domain"
)

// BondStore is an in-memory implementation of domain.BondStore.
type BondStore struct {
	mu        sync.RWMutex
	byProject map[string]domain.Bond
}

// NewBondStore creates an empty bond store.
func NewBondStore() *BondStore {
	return &BondStore{byProject: make(map[string]domain.Bond)}
}

// Insert adds a bond record, one per project.
func (s *BondStore) Insert(_ context.Context, b domain.Bond) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byProject[b.ProjectID]; exists {
		return fmt.Errorf("bond for project %s: %w", b.ProjectID, domain.ErrStateConflict)
	}
	s.byProject[b.ProjectID] = b
	return nil
}

// Update replaces a bond record (total supply changes).
func (s *BondStore) Update(_ context.Context, b domain.Bond) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byProject[b.ProjectID]; !exists {
		return fmt.Errorf("bond for project %s: %w", b.ProjectID, domain.ErrNotFound)
	}
	s.byProject[b.ProjectID] = b
	return nil
}

// GetByProject retrieves the project's bond record.
func (s *BondStore) GetByProject(_ context.Context, projectID string) (domain.Bond, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, exists := s.byProject[projectID]
	if !exists {
		return domain.Bond{}, fmt.Errorf("bond for project %s: %w", projectID, domain.ErrNotFound)
	}
	return b, nil
}

type holdingKey struct {
	projectID string
	holder    common.Address
}

// HoldingStore is an in-memory implementation of domain.HoldingStore.
type HoldingStore struct {
	mu   sync.RWMutex
	data map[holdingKey]domain.BondHolding
}

// NewHoldingStore creates an empty holding store.
func NewHoldingStore() *HoldingStore {
	return &HoldingStore{data: make(map[holdingKey]domain.BondHolding)}
}

// Upsert inserts or replaces a holding.
func (s *HoldingStore) Upsert(_ context.Context, h domain.BondHolding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[holdingKey{h.ProjectID, h.Holder}] = h
	return nil
}

// Get retrieves a holding. Returns ErrNotFound when the holder never
// purchased; callers treat that as a zero balance.
func (s *HoldingStore) Get(_ context.Context, projectID string, holder common.Address) (domain.BondHolding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, exists := s.data[holdingKey{projectID, holder}]
	if !exists {
		return domain.BondHolding{}, fmt.Errorf("holding %s/%s: %w", projectID, holder.Hex(), domain.ErrNotFound)
	}
	return h, nil
}

// ListByProject returns all holdings for a project, holder-ordered.
func (s *HoldingStore) ListByProject(_ context.Context, projectID string) ([]domain.BondHolding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.BondHolding
	for k, h := range s.data {
		if k.projectID == projectID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Holder.Hex() < out[j].Holder.Hex()
	})
	return out, nil
}
