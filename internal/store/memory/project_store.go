// Package memory implements the domain store interfaces in process memory
// with copy-on-read semantics. It backs unit tests and single-node
// deployments that do not need durable storage.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/infrabond/core/internal/domain"
)

// ProjectStore is an in-memory implementation of domain.ProjectStore.
type ProjectStore struct {
	mu   sync.RWMutex
	data map[string]domain.Project
}

// NewProjectStore creates an empty project store.
func NewProjectStore() *ProjectStore {
	return &ProjectStore{data: make(map[string]domain.Project)}
}

// Insert adds a project. Fails on duplicate IDs.
func (s *ProjectStore) Insert(_ context.Context, p domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[p.ID]; exists {
		return fmt.Errorf("project %s: %w", p.ID, domain.ErrStateConflict)
	}
	s.data[p.ID] = p
	return nil
}

// Update replaces an existing project record.
func (s *ProjectStore) Update(_ context.Context, p domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[p.ID]; !exists {
		return fmt.Errorf("project %s: %w", p.ID, domain.ErrNotFound)
	}
	s.data[p.ID] = p
	return nil
}

// Get retrieves a project by ID.
func (s *ProjectStore) Get(_ context.Context, id string) (domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, exists := s.data[id]
	if !exists {
		return domain.Project{}, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

// List returns projects ordered by creation time descending.
func (s *ProjectStore) List(_ context.Context, opts domain.ListOpts) ([]domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Project, 0, len(s.data))
	for _, p := range s.data {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return paginate(out, opts), nil
}

// MilestoneStore is an in-memory implementation of domain.MilestoneStore.
type MilestoneStore struct {
	mu   sync.RWMutex
	data map[string][]domain.Milestone // keyed by project ID, index-ordered
}

// NewMilestoneStore creates an empty milestone store.
func NewMilestoneStore() *MilestoneStore {
	return &MilestoneStore{data: make(map[string][]domain.Milestone)}
}

// InsertBatch stores the full milestone set for a project. One-time per
// project.
func (s *MilestoneStore) InsertBatch(_ context.Context, ms []domain.Milestone) error {
	if len(ms) == 0 {
		return fmt.Errorf("empty milestone batch: %w", domain.ErrValidation)
	}
	projectID := ms[0].ProjectID
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[projectID]; exists {
		return fmt.Errorf("milestones for project %s: %w", projectID, domain.ErrStateConflict)
	}
	cp := make([]domain.Milestone, len(ms))
	copy(cp, ms)
	s.data[projectID] = cp
	return nil
}

// Update replaces one milestone, addressed by (project, index).
func (s *MilestoneStore) Update(_ context.Context, m domain.Milestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, exists := s.data[m.ProjectID]
	if !exists || m.Index < 0 || m.Index >= len(ms) {
		return fmt.Errorf("milestone %s[%d]: %w", m.ProjectID, m.Index, domain.ErrNotFound)
	}
	ms[m.Index] = m
	return nil
}

// ListByProject returns the project's milestones in index order.
func (s *MilestoneStore) ListByProject(_ context.Context, projectID string) ([]domain.Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ms, exists := s.data[projectID]
	if !exists {
		return nil, nil
	}
	out := make([]domain.Milestone, len(ms))
	copy(out, ms)
	return out, nil
}

// paginate applies ListOpts to an already-ordered slice.
func paginate[T any](in []T, opts domain.ListOpts) []T {
	if opts.Offset >= len(in) {
		return nil
	}
	in = in[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(in) {
		in = in[:opts.Limit]
	}
	return in
}
