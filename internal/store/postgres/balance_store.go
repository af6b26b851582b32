package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/infrabond/core/internal/domain"
)

// BalanceStore implements domain.BalanceStore using PostgreSQL. Unknown
// accounts read as zero.
type BalanceStore struct {
	pool *pgxpool.Pool
}

// NewBalanceStore creates a new BalanceStore backed by the given connection pool.
func NewBalanceStore(pool *pgxpool.Pool) *BalanceStore {
	return &BalanceStore{pool: pool}
}

// Get returns an account's collateral balance.
func (s *BalanceStore) Get(ctx context.Context, account string) (decimal.Decimal, error) {
	var b decimal.Decimal
	err := s.pool.QueryRow(ctx,
		`SELECT balance FROM balances WHERE account = $1`, account).Scan(&b)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("postgres: get balance %s: %w", account, err)
	}
	return b, nil
}

// Set writes an account's collateral balance.
func (s *BalanceStore) Set(ctx context.Context, account string, balance decimal.Decimal) error {
	const query = `
		INSERT INTO balances (account, balance) VALUES ($1, $2)
		ON CONFLICT (account) DO UPDATE SET balance = EXCLUDED.balance`

	if _, err := s.pool.Exec(ctx, query, account, balance); err != nil {
		return fmt.Errorf("postgres: set balance %s: %w", account, err)
	}
	return nil
}

// EventStore implements domain.EventStore using PostgreSQL.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Insert appends a domain event to the durable log.
func (s *EventStore) Insert(ctx context.Context, ev domain.Event) error {
	const query = `
		INSERT INTO events (id, type, project_id, market_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		ev.ID, ev.Type, ev.ProjectID, ev.MarketID, ev.Payload, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert event %s: %w", ev.ID, err)
	}
	return nil
}

// List returns events, newest first.
func (s *EventStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	query := `SELECT id, type, project_id, market_id, payload, created_at
		FROM events ORDER BY created_at DESC, id`
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
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var ev domain.Event
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.ProjectID, &ev.MarketID, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return events, nil
}
