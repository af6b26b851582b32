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

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, project_id, question, deadline, b, yes_shares,
	no_shares, resolved, outcome, resolved_at, volume, created_at`

// Insert adds a market. The unique project_id constraint enforces at most
// one market per project.
func (s *MarketStore) Insert(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, project_id, question, deadline, b, yes_shares,
			no_shares, resolved, outcome, resolved_at, volume, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (project_id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		m.ID, m.ProjectID, m.Question, m.Deadline, m.B,
		m.YesShares, m.NoShares, m.Resolved, m.Outcome,
		m.ResolvedAt, m.Volume, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("market for project %s: %w", m.ProjectID, domain.ErrStateConflict)
	}
	return nil
}

// Update replaces a market record.
func (s *MarketStore) Update(ctx context.Context, m domain.Market) error {
	const query = `
		UPDATE markets SET
			question = $2, deadline = $3, b = $4, yes_shares = $5,
			no_shares = $6, resolved = $7, outcome = $8, resolved_at = $9,
			volume = $10
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		m.ID, m.Question, m.Deadline, m.B, m.YesShares,
		m.NoShares, m.Resolved, m.Outcome, m.ResolvedAt, m.Volume,
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("market %s: %w", m.ID, domain.ErrNotFound)
	}
	return nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	err := row.Scan(
		&m.ID, &m.ProjectID, &m.Question, &m.Deadline, &m.B,
		&m.YesShares, &m.NoShares, &m.Resolved, &m.Outcome,
		&m.ResolvedAt, &m.Volume, &m.CreatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

// Get retrieves a market by ID.
func (s *MarketStore) Get(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, fmt.Errorf("market %s: %w", id, domain.ErrNotFound)
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// GetByProject retrieves the market associated with a project.
func (s *MarketStore) GetByProject(ctx context.Context, projectID string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE project_id = $1`, projectID)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, fmt.Errorf("market for project %s: %w", projectID, domain.ErrNotFound)
		}
		return domain.Market{}, fmt.Errorf("postgres: get market for %s: %w", projectID, err)
	}
	return m, nil
}

// List returns markets ordered by creation time descending.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets ORDER BY created_at DESC, id`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Insert appends a trade to the immutable log.
func (s *TradeStore) Insert(ctx context.Context, t domain.Trade) error {
	const query = `
		INSERT INTO trades (id, market_id, trader, side, direction, shares, collateral, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.MarketID, t.Trader.Hex(), string(t.Side), string(t.Direction),
		t.Shares, t.Collateral, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", t.ID, err)
	}
	return nil
}

// ListByMarket returns a market's trades in append order.
func (s *TradeStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `
		SELECT id, market_id, trader, side, direction, shares, collateral, created_at
		FROM trades WHERE market_id = $1 ORDER BY created_at, id`
	args := []any{marketID}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades for %s: %w", marketID, err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var trader, side, direction string
		if err := rows.Scan(
			&t.ID, &t.MarketID, &trader, &side, &direction,
			&t.Shares, &t.Collateral, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		t.Trader = common.HexToAddress(trader)
		t.Side = domain.Side(side)
		t.Direction = domain.Direction(direction)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list trades rows: %w", err)
	}
	return trades, nil
}

// OutcomeStore implements domain.OutcomeStore using PostgreSQL.
type OutcomeStore struct {
	pool *pgxpool.Pool
}

// NewOutcomeStore creates a new OutcomeStore backed by the given connection pool.
func NewOutcomeStore(pool *pgxpool.Pool) *OutcomeStore {
	return &OutcomeStore{pool: pool}
}

// Upsert inserts or replaces an outcome holding.
func (s *OutcomeStore) Upsert(ctx context.Context, h domain.OutcomeHolding) error {
	const query = `
		INSERT INTO outcome_holdings (market_id, holder, side, balance, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (market_id, holder, side) DO UPDATE SET
			balance = EXCLUDED.balance,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		h.MarketID, h.Holder.Hex(), string(h.Side), h.Balance, h.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert outcome holding %s/%s/%s: %w",
			h.MarketID, h.Holder.Hex(), h.Side, err)
	}
	return nil
}

// Get retrieves an outcome holding; ErrNotFound means zero balance.
func (s *OutcomeStore) Get(ctx context.Context, marketID string, holder common.Address, side domain.Side) (domain.OutcomeHolding, error) {
	var h domain.OutcomeHolding
	var addr, sd string
	err := s.pool.QueryRow(ctx,
		`SELECT market_id, holder, side, balance, updated_at
		 FROM outcome_holdings WHERE market_id = $1 AND holder = $2 AND side = $3`,
		marketID, holder.Hex(), string(side),
	).Scan(&h.MarketID, &addr, &sd, &h.Balance, &h.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OutcomeHolding{}, fmt.Errorf("outcome holding %s/%s/%s: %w",
				marketID, holder.Hex(), side, domain.ErrNotFound)
		}
		return domain.OutcomeHolding{}, fmt.Errorf("postgres: get outcome holding: %w", err)
	}
	h.Holder = common.HexToAddress(addr)
	h.Side = domain.Side(sd)
	return h, nil
}
