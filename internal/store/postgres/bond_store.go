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

// BondStore implements domain.BondStore using PostgreSQL.
type BondStore struct {
	pool *pgxpool.Pool
}

// NewBondStore creates a new BondStore backed by the given connection pool.
func NewBondStore(pool *pgxpool.Pool) *BondStore {
	return &BondStore{pool: pool}
}

// Insert adds a bond record. The unique project_id constraint enforces
// one bond per project.
func (s *BondStore) Insert(ctx context.Context, b domain.Bond) error {
	const query = `
		INSERT INTO bonds (id, project_id, total_supply, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (project_id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query, b.ID, b.ProjectID, b.TotalSupply, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert bond %s: %w", b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bond for project %s: %w", b.ProjectID, domain.ErrStateConflict)
	}
	return nil
}

// Update replaces a bond record.
func (s *BondStore) Update(ctx context.Context, b domain.Bond) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bonds SET total_supply = $2 WHERE id = $1`, b.ID, b.TotalSupply)
	if err != nil {
		return fmt.Errorf("postgres: update bond %s: %w", b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bond %s: %w", b.ID, domain.ErrNotFound)
	}
	return nil
}

// GetByProject retrieves a project's bond record.
func (s *BondStore) GetByProject(ctx context.Context, projectID string) (domain.Bond, error) {
	var b domain.Bond
	err := s.pool.QueryRow(ctx,
		`SELECT id, project_id, total_supply, created_at FROM bonds WHERE project_id = $1`,
		projectID,
	).Scan(&b.ID, &b.ProjectID, &b.TotalSupply, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bond{}, fmt.Errorf("bond for project %s: %w", projectID, domain.ErrNotFound)
		}
		return domain.Bond{}, fmt.Errorf("postgres: get bond for %s: %w", projectID, err)
	}
	return b, nil
}

// HoldingStore implements domain.HoldingStore using PostgreSQL.
type HoldingStore struct {
	pool *pgxpool.Pool
}

// NewHoldingStore creates a new HoldingStore backed by the given connection pool.
func NewHoldingStore(pool *pgxpool.Pool) *HoldingStore {
	return &HoldingStore{pool: pool}
}

// Upsert inserts or replaces a bond holding.
func (s *HoldingStore) Upsert(ctx context.Context, h domain.BondHolding) error {
	const query = `
		INSERT INTO bond_holdings (project_id, holder, balance, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (project_id, holder) DO UPDATE SET
			balance = EXCLUDED.balance,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query, h.ProjectID, h.Holder.Hex(), h.Balance, h.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert holding %s/%s: %w", h.ProjectID, h.Holder.Hex(), err)
	}
	return nil
}

// Get retrieves a bond holding; ErrNotFound means zero balance.
func (s *HoldingStore) Get(ctx context.Context, projectID string, holder common.Address) (domain.BondHolding, error) {
	var h domain.BondHolding
	var addr string
	err := s.pool.QueryRow(ctx,
		`SELECT project_id, holder, balance, updated_at
		 FROM bond_holdings WHERE project_id = $1 AND holder = $2`,
		projectID, holder.Hex(),
	).Scan(&h.ProjectID, &addr, &h.Balance, &h.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BondHolding{}, fmt.Errorf("holding %s/%s: %w", projectID, holder.Hex(), domain.ErrNotFound)
		}
		return domain.BondHolding{}, fmt.Errorf("postgres: get holding %s/%s: %w", projectID, holder.Hex(), err)
	}
	h.Holder = common.HexToAddress(addr)
	return h, nil
}

// ListByProject returns all holdings for a project.
func (s *HoldingStore) ListByProject(ctx context.Context, projectID string) ([]domain.BondHolding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT project_id, holder, balance, updated_at
		 FROM bond_holdings WHERE project_id = $1 ORDER BY holder`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list holdings for %s: %w", projectID, err)
	}
	defer rows.Close()

	var out []domain.BondHolding
	for rows.Next() {
		var h domain.BondHolding
		var addr string
		if err := rows.Scan(&h.ProjectID, &addr, &h.Balance, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan holding: %w", err)
		}
		h.Holder = common.HexToAddress(addr)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list holdings rows: %w", err)
	}
	return out, nil
}
