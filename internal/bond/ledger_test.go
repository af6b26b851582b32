package bond

import (
	"context"
	"errors"
	"log/slog"
	"testing"

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
	investorA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	investorB = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

type fixture struct {
	ledger   *Ledger
	registry *registry.Service
	funds    *treasury.Ledger
	project  domain.Project
}

// newFixture builds a funding-stage project with a bond and collateral
// balances for both investors.
func newFixture(t *testing.T, goal, price int64) *fixture {
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
	ledger := NewLedger(memory.NewBondStore(), memory.NewHoldingStore(), reg, funds, locker, roles, emitter, logger)

	p, err := reg.Register(ctx, investorA, "ipfs://meta", decimal.NewFromInt(goal), decimal.NewFromInt(price))
	require.NoError(t, err)
	_, err = reg.UpdateStatus(ctx, oracle, p.ID, domain.ProjectFunding, "")
	require.NoError(t, err)
	_, err = ledger.Create(ctx, operator, p.ID)
	require.NoError(t, err)

	for _, inv := range []common.Address{investorA, investorB} {
		require.NoError(t, funds.Deposit(ctx, operator, inv, decimal.NewFromInt(1_000_000)))
	}
	return &fixture{ledger: ledger, registry: reg, funds: funds, project: p}
}

func TestCreateIsOneTime(t *testing.T) {
	f := newFixture(t, 50000, 10)
	_, err := f.ledger.Create(context.Background(), operator, f.project.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStateConflict))
}

func TestCreateUnknownProject(t *testing.T) {
	f := newFixture(t, 50000, 10)
	_, err := f.ledger.Create(context.Background(), operator, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestPurchaseMintsProportionally(t *testing.T) {
	f := newFixture(t, 50000, 10)
	ctx := context.Background()

	hA, err := f.ledger.Purchase(ctx, f.project.ID, investorA, decimal.NewFromInt(20000))
	require.NoError(t, err)
	assert.True(t, hA.Balance.Equal(decimal.NewFromInt(2000)), "20,000 collateral at price 10 mints 2,000 bonds, got %s", hA.Balance)

	p, err := f.registry.Get(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectFunding, p.Status)

	hB, err := f.ledger.Purchase(ctx, f.project.ID, investorB, decimal.NewFromInt(30000))
	require.NoError(t, err)
	assert.True(t, hB.Balance.Equal(decimal.NewFromInt(3000)))

	// Goal met: Funding → Active inside the purchase's critical section.
	p, err = f.registry.Get(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectActive, p.Status)
	assert.True(t, p.FundingRaised.Equal(decimal.NewFromInt(50000)))

	b, err := f.ledger.Get(ctx, f.project.ID)
	require.NoError(t, err)
	assert.True(t, b.TotalSupply.Equal(decimal.NewFromInt(5000)))
}

func TestPurchaseRatioInvariant(t *testing.T) {
	f := newFixture(t, 1_000_000, 7)
	ctx := context.Background()

	// Repeated purchases by the same holder: minted/collateral stays
	// constant at 1/price.
	total := decimal.Zero
	paid := decimal.Zero
	for _, amt := range []string{"7", "70.000007", "123.456789", "9999.999993"} {
		c := decimal.RequireFromString(amt).Truncate(6)
		h, err := f.ledger.Purchase(ctx, f.project.ID, investorA, c)
		require.NoError(t, err)
		paid = paid.Add(c)
		total = h.Balance
	}
	expected, _ := paid.QuoRem(decimal.NewFromInt(7), BondPlaces)
	assert.True(t, total.Equal(expected), "minted %s, expected %s", total, expected)
}

func TestPurchaseMovesCollateralIntoVault(t *testing.T) {
	f := newFixture(t, 50000, 10)
	ctx := context.Background()

	_, err := f.ledger.Purchase(ctx, f.project.ID, investorA, decimal.NewFromInt(500))
	require.NoError(t, err)

	vault, err := f.funds.Balance(ctx, treasury.BondVault(f.project.ID))
	require.NoError(t, err)
	assert.True(t, vault.Equal(decimal.NewFromInt(500)))
}

func TestPurchaseValidation(t *testing.T) {
	f := newFixture(t, 50000, 10)
	ctx := context.Background()

	_, err := f.ledger.Purchase(ctx, f.project.ID, investorA, decimal.Zero)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = f.ledger.Purchase(ctx, "missing", investorA, decimal.NewFromInt(10))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestPurchaseRejectedAfterActive(t *testing.T) {
	f := newFixture(t, 100, 10)
	ctx := context.Background()

	_, err := f.ledger.Purchase(ctx, f.project.ID, investorA, decimal.NewFromInt(100))
	require.NoError(t, err)

	_, err = f.ledger.Purchase(ctx, f.project.ID, investorB, decimal.NewFromInt(10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStateConflict))
}

func TestPurchaseInsufficientCollateral(t *testing.T) {
	f := newFixture(t, 50000, 10)
	_, err := f.ledger.Purchase(context.Background(), f.project.ID, investorA, decimal.NewFromInt(2_000_000))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientFunds))
}

func TestTransfer(t *testing.T) {
	f := newFixture(t, 50000, 10)
	ctx := context.Background()

	_, err := f.ledger.Purchase(ctx, f.project.ID, investorA, decimal.NewFromInt(1000))
	require.NoError(t, err)

	require.NoError(t, f.ledger.Transfer(ctx, f.project.ID, investorA, investorB, decimal.NewFromInt(40)))

	hA, err := f.ledger.Holding(ctx, f.project.ID, investorA)
	require.NoError(t, err)
	hB, err := f.ledger.Holding(ctx, f.project.ID, investorB)
	require.NoError(t, err)
	assert.True(t, hA.Balance.Equal(decimal.NewFromInt(60)))
	assert.True(t, hB.Balance.Equal(decimal.NewFromInt(40)))

	err = f.ledger.Transfer(ctx, f.project.ID, investorB, investorA, decimal.NewFromInt(41))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientShares))
}

func TestHoldingZeroForStranger(t *testing.T) {
	f := newFixture(t, 50000, 10)
	h, err := f.ledger.Holding(context.Background(), f.project.ID, investorB)
	require.NoError(t, err)
	assert.True(t, h.Balance.IsZero())
}
