package market

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infrabond/core/internal/auth"
	"github.com/infrabond/core/internal/domain"
	"github.com/infrabond/core/internal/events"
	"github.com/infrabond/core/internal/registry"
	"github.com/infrabond/core/internal/store/memory"
	"github.com/infrabond/core/internal/treasury"
)

var (
	operator = common.HexToAddress("0x0000000000000000000000000000000000000001")
	oracle   = common.HexToAddress("0x0000000000000000000000000000000000000e01")
	sponsor  = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	traderA  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	traderB  = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

type fixture struct {
	svc     *Service
	funds   *treasury.Ledger
	project domain.Project
	market  domain.Market
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	roles := auth.New()
	roles.Grant(operator, auth.RoleOperator)
	roles.Grant(oracle, auth.RoleOracle)
	emitter := events.NewEmitter(memory.NewEventStore(), events.NewMemoryBus(), logger)
	locker := memory.NewLocker()

	reg := registry.New(memory.NewProjectStore(), locker, roles, emitter, logger)
	funds := treasury.NewLedger(memory.NewBalanceStore(), roles, emitter, logger)
	svc := New(memory.NewMarketStore(), memory.NewTradeStore(), memory.NewOutcomeStore(),
		reg, funds, locker, roles, emitter, nil, logger)

	p, err := reg.Register(ctx, sponsor, "ipfs://meta", decimal.NewFromInt(50000), decimal.NewFromInt(10))
	require.NoError(t, err)

	m, err := svc.Open(ctx, operator, p.ID, "Will the project complete all milestones?",
		time.Now().Add(24*time.Hour), decimal.NewFromInt(100))
	require.NoError(t, err)

	for _, tr := range []common.Address{traderA, traderB, operator} {
		require.NoError(t, funds.Deposit(ctx, operator, tr, decimal.NewFromInt(10000)))
	}
	return &fixture{svc: svc, funds: funds, project: p, market: m}
}

func TestOpenValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Open(ctx, traderA, f.project.ID, "q", time.Now(), decimal.NewFromInt(100))
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))

	_, err = f.svc.Open(ctx, operator, f.project.ID, "q", time.Now(), decimal.Zero)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = f.svc.Open(ctx, operator, "missing", "q", time.Now(), decimal.NewFromInt(100))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestOpenIsOnePerProject(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Open(context.Background(), operator, f.project.ID, "again?",
		time.Now().Add(time.Hour), decimal.NewFromInt(50))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStateConflict))
}

func TestInitialPricesAreEven(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.Prices(context.Background(), f.market.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p.Yes, 1e-12)
	assert.InDelta(t, 0.5, p.No, 1e-12)
}

func TestBuyMovesPriceAndPullsExactCost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before, err := f.funds.Balance(ctx, treasury.AddressAccount(traderA))
	require.NoError(t, err)

	tr, err := f.svc.Buy(ctx, f.market.ID, traderA, domain.SideYes, decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.True(t, tr.Collateral.IsPositive())

	after, err := f.funds.Balance(ctx, treasury.AddressAccount(traderA))
	require.NoError(t, err)
	assert.True(t, before.Sub(after).Equal(tr.Collateral))

	vault, err := f.funds.Balance(ctx, treasury.MarketVault(f.market.ID))
	require.NoError(t, err)
	assert.True(t, vault.Equal(tr.Collateral))

	p, err := f.svc.Prices(ctx, f.market.ID)
	require.NoError(t, err)
	assert.Greater(t, p.Yes, 0.5)
	assert.Less(t, p.No, 0.5)

	m, err := f.svc.Get(ctx, f.market.ID)
	require.NoError(t, err)
	assert.True(t, m.YesShares.Equal(decimal.NewFromInt(50)))
	assert.True(t, m.Volume.Equal(tr.Collateral))
}

func TestQuoteMatchesTradeAndIsNonNegative(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	q, err := f.svc.QuoteShares(ctx, f.market.ID, domain.SideNo, decimal.NewFromInt(25))
	require.NoError(t, err)
	assert.False(t, q.BuyCost.IsNegative())
	assert.False(t, q.SellPayout.IsNegative())

	tr, err := f.svc.Buy(ctx, f.market.ID, traderA, domain.SideNo, decimal.NewFromInt(25))
	require.NoError(t, err)
	assert.True(t, tr.Collateral.Equal(q.BuyCost))
}

func TestSellPayoutNeverExceedsBuyCost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	buy, err := f.svc.Buy(ctx, f.market.ID, traderA, domain.SideYes, decimal.NewFromInt(40))
	require.NoError(t, err)

	sell, err := f.svc.Sell(ctx, f.market.ID, traderA, domain.SideYes, decimal.NewFromInt(40))
	require.NoError(t, err)

	// Rounding favours the pool on both legs.
	assert.True(t, sell.Collateral.LessThanOrEqual(buy.Collateral),
		"sell %s > buy %s", sell.Collateral, buy.Collateral)

	m, err := f.svc.Get(ctx, f.market.ID)
	require.NoError(t, err)
	assert.True(t, m.YesShares.IsZero())
}

func TestSellRequiresShares(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Sell(context.Background(), f.market.ID, traderB, domain.SideYes, decimal.NewFromInt(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientShares))
}

func TestTradeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Buy(ctx, f.market.ID, traderA, domain.SideYes, decimal.Zero)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = f.svc.Buy(ctx, f.market.ID, traderA, domain.Side("maybe"), decimal.NewFromInt(1))
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = f.svc.Buy(ctx, "missing", traderA, domain.SideYes, decimal.NewFromInt(1))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestResolveGating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Resolve(ctx, traderA, f.market.ID, true, false)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))

	// Deadline not reached: only force may resolve.
	_, err = f.svc.Resolve(ctx, oracle, f.market.ID, true, false)
	assert.True(t, errors.Is(err, domain.ErrStateConflict))

	m, err := f.svc.Resolve(ctx, oracle, f.market.ID, true, true)
	require.NoError(t, err)
	assert.True(t, m.Resolved)
	assert.True(t, m.Outcome)

	// Resolve-once.
	_, err = f.svc.Resolve(ctx, oracle, f.market.ID, false, true)
	assert.True(t, errors.Is(err, domain.ErrStateConflict))
}

func TestResolveAfterDeadlineWithoutForce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.clock = func() time.Time { return f.market.Deadline.Add(time.Minute) }
	m, err := f.svc.Resolve(ctx, oracle, f.market.ID, false, false)
	require.NoError(t, err)
	assert.True(t, m.Resolved)
	assert.False(t, m.Outcome)
}

func TestNoTradingAfterResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Buy(ctx, f.market.ID, traderA, domain.SideYes, decimal.NewFromInt(5))
	require.NoError(t, err)
	_, err = f.svc.Resolve(ctx, oracle, f.market.ID, true, true)
	require.NoError(t, err)

	_, err = f.svc.Buy(ctx, f.market.ID, traderA, domain.SideYes, decimal.NewFromInt(5))
	assert.True(t, errors.Is(err, domain.ErrStateConflict))
	_, err = f.svc.Sell(ctx, f.market.ID, traderA, domain.SideYes, decimal.NewFromInt(5))
	assert.True(t, errors.Is(err, domain.ErrStateConflict))
}

func TestClaimWinnings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Buy(ctx, f.market.ID, traderA, domain.SideYes, decimal.NewFromInt(10))
	require.NoError(t, err)
	_, err = f.svc.Buy(ctx, f.market.ID, traderB, domain.SideNo, decimal.NewFromInt(10))
	require.NoError(t, err)

	// Claim before resolution is a conflict.
	_, err = f.svc.ClaimWinnings(ctx, f.market.ID, traderA)
	assert.True(t, errors.Is(err, domain.ErrStateConflict))

	_, err = f.svc.Resolve(ctx, oracle, f.market.ID, true, true)
	require.NoError(t, err)

	// Trades pulled roughly the LMSR cost; top the vault up so every
	// winning share pays out in full.
	require.NoError(t, f.svc.Backstop(ctx, operator, f.market.ID, decimal.NewFromInt(100)))

	before, err := f.funds.Balance(ctx, treasury.AddressAccount(traderA))
	require.NoError(t, err)
	paid, err := f.svc.ClaimWinnings(ctx, f.market.ID, traderA)
	require.NoError(t, err)
	assert.True(t, paid.Equal(decimal.NewFromInt(10)), "1 collateral per winning share, got %s", paid)

	after, err := f.funds.Balance(ctx, treasury.AddressAccount(traderA))
	require.NoError(t, err)
	assert.True(t, after.Sub(before).Equal(paid))

	// Double claim pays zero: shares were burned.
	paid, err = f.svc.ClaimWinnings(ctx, f.market.ID, traderA)
	require.NoError(t, err)
	assert.True(t, paid.IsZero())

	// Losing-side claim pays zero without error or state change.
	paid, err = f.svc.ClaimWinnings(ctx, f.market.ID, traderB)
	require.NoError(t, err)
	assert.True(t, paid.IsZero())
	h, err := f.svc.Holding(ctx, f.market.ID, traderB, domain.SideNo)
	require.NoError(t, err)
	assert.True(t, h.Balance.Equal(decimal.NewFromInt(10)))
}

func TestResolveForProjectIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.ResolveForProject(ctx, f.project.ID, true))
	require.NoError(t, f.svc.ResolveForProject(ctx, f.project.ID, false))

	m, err := f.svc.Get(ctx, f.market.ID)
	require.NoError(t, err)
	assert.True(t, m.Resolved)
	assert.True(t, m.Outcome, "first resolution wins")

	// No market attached is a no-op.
	require.NoError(t, f.svc.ResolveForProject(ctx, "no-such-project", true))
}

func TestBackstopGating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.Backstop(ctx, traderA, f.market.ID, decimal.NewFromInt(10))
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))

	err = f.svc.Backstop(ctx, operator, f.market.ID, decimal.Zero)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	require.NoError(t, f.svc.Backstop(ctx, operator, f.market.ID, decimal.NewFromInt(10)))
	vault, err := f.funds.Balance(ctx, treasury.MarketVault(f.market.ID))
	require.NoError(t, err)
	assert.True(t, vault.Equal(decimal.NewFromInt(10)))
}

func TestTradeLogIsAppendOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Buy(ctx, f.market.ID, traderA, domain.SideYes, decimal.NewFromInt(5))
	require.NoError(t, err)
	_, err = f.svc.Sell(ctx, f.market.ID, traderA, domain.SideYes, decimal.NewFromInt(2))
	require.NoError(t, err)

	trades, err := f.svc.Trades(ctx, f.market.ID, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, trades, 2)
}
