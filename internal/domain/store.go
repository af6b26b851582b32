package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// ProjectStore persists project registry records.
type ProjectStore interface {
	Insert(ctx context.Context, p Project) error
	Update(ctx context.Context, p Project) error
	Get(ctx context.Context, id string) (Project, error)
	List(ctx context.Context, opts ListOpts) ([]Project, error)
}

// MilestoneStore persists project milestones, addressable by contiguous
// zero-based index within a project.
type MilestoneStore interface {
	InsertBatch(ctx context.Context, ms []Milestone) error
	Update(ctx context.Context, m Milestone) error
	ListByProject(ctx context.Context, projectID string) ([]Milestone, error)
}

// BondStore persists per-project bond records and total supply.
type BondStore interface {
	Insert(ctx context.Context, b Bond) error
	Update(ctx context.Context, b Bond) error
	GetByProject(ctx context.Context, projectID string) (Bond, error)
}

// HoldingStore persists bond holdings keyed by (project, holder).
type HoldingStore interface {
	Upsert(ctx context.Context, h BondHolding) error
	Get(ctx context.Context, projectID string, holder common.Address) (BondHolding, error)
	ListByProject(ctx context.Context, projectID string) ([]BondHolding, error)
}

// YieldStore persists yield pools and per-holder claim records.
type YieldStore interface {
	UpsertPool(ctx context.Context, p YieldPool) error
	GetPool(ctx context.Context, projectID string) (YieldPool, error)
	UpsertHolder(ctx context.Context, h HolderYield) error
	GetHolder(ctx context.Context, projectID string, holder common.Address) (HolderYield, error)
}

// MarketStore persists outcome markets.
type MarketStore interface {
	Insert(ctx context.Context, m Market) error
	Update(ctx context.Context, m Market) error
	Get(ctx context.Context, id string) (Market, error)
	GetByProject(ctx context.Context, projectID string) (Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
}

// TradeStore persists the append-only trade log.
type TradeStore interface {
	Insert(ctx context.Context, t Trade) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Trade, error)
}

// OutcomeStore persists outcome token balances keyed by (market, holder, side).
type OutcomeStore interface {
	Upsert(ctx context.Context, h OutcomeHolding) error
	Get(ctx context.Context, marketID string, holder common.Address, side Side) (OutcomeHolding, error)
}

// BalanceStore persists mirrored collateral balances keyed by account name
// (address accounts and named vault accounts share one keyspace).
type BalanceStore interface {
	Get(ctx context.Context, account string) (decimal.Decimal, error)
	Set(ctx context.Context, account string, balance decimal.Decimal) error
}

// EventStore persists the durable, append-only domain event log.
type EventStore interface {
	Insert(ctx context.Context, ev Event) error
	List(ctx context.Context, opts ListOpts) ([]Event, error)
}

// Locker serializes mutating operations per key. Keys are namespaced
// ("project:<id>", "market:<id>"); the only caller that ever holds two locks
// is the oracle aggregator, which always acquires project before market.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// FundingRecorder is the narrow registry surface handed to the bond ledger.
// RecordFunding must be invoked inside the caller's project critical
// section; it performs no locking of its own.
type FundingRecorder interface {
	RecordFunding(ctx context.Context, projectID string, delta decimal.Decimal) (Project, error)
}

// StatusWriter is the narrow registry surface handed to the oracle
// aggregator. SetStatus validates the transition table but assumes the
// caller holds the project critical section.
type StatusWriter interface {
	SetStatus(ctx context.Context, projectID string, status ProjectStatus, reason string) (Project, error)
}

// MarketResolver is the narrow market surface handed to the oracle
// aggregator for early resolution on project completion or failure.
type MarketResolver interface {
	ResolveForProject(ctx context.Context, projectID string, outcome bool) error
}

// PriceCache caches the latest market prices for cheap frontend reads.
type PriceCache interface {
	SetPrices(ctx context.Context, p MarketPrices) error
	GetPrices(ctx context.Context, marketID string) (MarketPrices, error)
}

// RateLimiter bounds request rates per key. Allow counts the request when
// permitted.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Clock abstracts time for deterministic tests.
type Clock func() time.Time
