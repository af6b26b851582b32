package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/infrabond/core/internal/domain"
)

// YieldStore implements domain.YieldStore using PostgreSQL.
type YieldStore struct {
	pool *pgxpool.Pool
}

// NewYieldStore creates a new YieldStore backed by the given connection pool.
func NewYieldStore(pool *pgxpool.Pool) *YieldStore {
	return &YieldStore{pool: pool}
}

// UpsertPool inserts or replaces a project's yield pool.
func (s *YieldStore) UpsertPool(ctx context.Context, p domain.YieldPool) error {
	const query = `
		INSERT INTO yield_pools (project_id, deposited, distributed, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (project_id) DO UPDATE SET
			deposited = EXCLUDED.deposited,
			distributed = EXCLUDED.distributed,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query, p.ProjectID, p.Deposited, p.Distributed, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert yield pool %s: %w", p.ProjectID, err)
	}
	return nil
}

// GetPool retrieves a project's yield pool.
func (s *YieldStore) GetPool(ctx context.Context, projectID string) (domain.YieldPool, error) {
	var p domain.YieldPool
	err := s.pool.QueryRow(ctx,
		`SELECT project_id, deposited, distributed, updated_at
		 FROM yield_pools WHERE project_id = $1`, projectID,
	).Scan(&p.ProjectID, &p.Deposited, &p.Distributed, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.YieldPool{}, fmt.Errorf("yield pool %s: %w", projectID, domain.ErrNotFound)
		}
		return domain.YieldPool{}, fmt.Errorf("postgres: get yield pool %s: %w", projectID, err)
	}
	return p, nil
}

// UpsertHolder inserts or replaces a holder's claim record.
func (s *YieldStore) UpsertHolder(ctx context.Context, h domain.HolderYield) error {
	const query = `
		INSERT INTO holder_yields (project_id, holder, total_claimed, last_claim_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (project_id, holder) DO UPDATE SET
			total_claimed = EXCLUDED.total_claimed,
			last_claim_at = EXCLUDED.last_claim_at`

	_, err := s.pool.Exec(ctx, query, h.ProjectID, h.Holder.Hex(), h.TotalClaimed, h.LastClaimAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert holder yield %s/%s: %w", h.ProjectID, h.Holder.Hex(), err)
	}
	return nil
}

// GetHolder retrieves a holder's claim record.
func (s *YieldStore) GetHolder(ctx context.Context, projectID string, holder common.Address) (domain.HolderYield, error) {
	var h domain.HolderYield
	var addr string
	err := s.pool.QueryRow(ctx,
		`SELECT project_id, holder, total_claimed, last_claim_at
		 FROM holder_yields WHERE project_id = $1 AND holder = $2`,
		projectID, holder.Hex(),
	).Scan(&h.ProjectID, &addr, &h.TotalClaimed, &h.LastClaimAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.HolderYield{}, fmt.Errorf("holder yield %s/%s: %w", projectID, holder.Hex(), domain.ErrNotFound)
		}
		return domain.HolderYield{}, fmt.Errorf("postgres: get holder yield: %w", err)
	}
	h.Holder = common.HexToAddress(addr)
	return h, nil
}
