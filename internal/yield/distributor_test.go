package yield

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
	"github.com/infrabond/core/internal/bond"
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
	holderA  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	holderB  = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

type fixture struct {
	dist    *Distributor
	bonds   *bond.Ledger
	funds   *treasury.Ledger
	project domain.Project
}

// newFixture builds the reference scenario: goal 50,000 at bond price 10,
// holder A in for 20,000 (2,000 bonds), holder B in for 30,000 (3,000
// bonds), project Active, sponsor holding 100,000 collateral for revenue.
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
	bonds := bond.NewLedger(memory.NewBondStore(), memory.NewHoldingStore(), reg, funds, locker, roles, emitter, logger)
	dist := New(memory.NewYieldStore(), bonds, reg, funds, locker, emitter, logger)

	p, err := reg.Register(ctx, sponsor, "ipfs://meta", decimal.NewFromInt(50000), decimal.NewFromInt(10))
	require.NoError(t, err)
	_, err = reg.UpdateStatus(ctx, oracle, p.ID, domain.ProjectFunding, "")
	require.NoError(t, err)
	_, err = bonds.Create(ctx, operator, p.ID)
	require.NoError(t, err)

	for _, h := range []common.Address{holderA, holderB} {
		require.NoError(t, funds.Deposit(ctx, operator, h, decimal.NewFromInt(50000)))
	}
	require.NoError(t, funds.Deposit(ctx, operator, sponsor, decimal.NewFromInt(100000)))

	_, err = bonds.Purchase(ctx, p.ID, holderA, decimal.NewFromInt(20000))
	require.NoError(t, err)
	_, err = bonds.Purchase(ctx, p.ID, holderB, decimal.NewFromInt(30000))
	require.NoError(t, err)

	return &fixture{dist: dist, bonds: bonds, funds: funds, project: p}
}

func TestClaimableIsProportional(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.dist.DepositRevenue(ctx, f.project.ID, sponsor, decimal.NewFromInt(5000)))

	// 2,000 / 5,000 and 3,000 / 5,000 of the undistributed pool.
	cA, err := f.dist.Claimable(ctx, f.project.ID, holderA)
	require.NoError(t, err)
	assert.True(t, cA.Equal(decimal.NewFromInt(2000)), "holder A claimable %s", cA)

	cB, err := f.dist.Claimable(ctx, f.project.ID, holderB)
	require.NoError(t, err)
	assert.True(t, cB.Equal(decimal.NewFromInt(3000)), "holder B claimable %s", cB)
}

func TestClaimPaysFromVaultAndAdvancesDistributed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.dist.DepositRevenue(ctx, f.project.ID, sponsor, decimal.NewFromInt(5000)))

	before, err := f.funds.Balance(ctx, treasury.AddressAccount(holderA))
	require.NoError(t, err)

	paid, err := f.dist.Claim(ctx, f.project.ID, holderA)
	require.NoError(t, err)
	assert.True(t, paid.Equal(decimal.NewFromInt(2000)))

	after, err := f.funds.Balance(ctx, treasury.AddressAccount(holderA))
	require.NoError(t, err)
	assert.True(t, after.Sub(before).Equal(paid))

	info, err := f.dist.ProjectInfo(ctx, f.project.ID)
	require.NoError(t, err)
	assert.True(t, info.Deposited.Equal(decimal.NewFromInt(5000)))
	assert.True(t, info.Distributed.Equal(decimal.NewFromInt(2000)))

	// Claims are computed against what is left, so a late claimant gets a
	// proportional share of the remainder, not of the original deposit.
	cB, err := f.dist.Claimable(ctx, f.project.ID, holderB)
	require.NoError(t, err)
	assert.True(t, cB.Equal(decimal.NewFromInt(1800)), "holder B claimable %s", cB)
}

func TestClaimsNeverExceedDeposits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deposited := decimal.NewFromInt(5000)
	require.NoError(t, f.dist.DepositRevenue(ctx, f.project.ID, sponsor, deposited))

	// Alternate claims until both holders are exhausted.
	totalPaid := decimal.Zero
	for i := 0; i < 200; i++ {
		progressed := false
		for _, h := range []common.Address{holderA, holderB} {
			paid, err := f.dist.Claim(ctx, f.project.ID, h)
			if errors.Is(err, domain.ErrValidation) {
				continue
			}
			require.NoError(t, err)
			totalPaid = totalPaid.Add(paid)
			progressed = true
		}
		if !progressed {
			break
		}
	}

	assert.True(t, totalPaid.LessThanOrEqual(deposited), "paid %s of %s", totalPaid, deposited)

	info, err := f.dist.ProjectInfo(ctx, f.project.ID)
	require.NoError(t, err)
	assert.True(t, info.Distributed.Equal(totalPaid))

	vault, err := f.funds.Balance(ctx, treasury.YieldVault(f.project.ID))
	require.NoError(t, err)
	assert.True(t, vault.Equal(deposited.Sub(totalPaid)))
	assert.False(t, vault.IsNegative())
}

func TestInterleavedDepositsRedistributeResidual(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.dist.DepositRevenue(ctx, f.project.ID, sponsor, decimal.NewFromInt(1000)))
	paid1, err := f.dist.Claim(ctx, f.project.ID, holderA)
	require.NoError(t, err)
	assert.True(t, paid1.Equal(decimal.NewFromInt(400)))

	require.NoError(t, f.dist.DepositRevenue(ctx, f.project.ID, sponsor, decimal.NewFromInt(1000)))

	// Undistributed is 600 + 1,000; A's share is 40% of that.
	cA, err := f.dist.Claimable(ctx, f.project.ID, holderA)
	require.NoError(t, err)
	assert.True(t, cA.Equal(decimal.NewFromInt(640)), "claimable %s", cA)
}

func TestDepositValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.dist.DepositRevenue(ctx, f.project.ID, sponsor, decimal.Zero)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	err = f.dist.DepositRevenue(ctx, f.project.ID, sponsor, decimal.NewFromInt(-5))
	assert.True(t, errors.Is(err, domain.ErrValidation))

	err = f.dist.DepositRevenue(ctx, "missing", sponsor, decimal.NewFromInt(100))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestClaimWithNothingClaimable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// No revenue deposited yet.
	_, err := f.dist.Claim(ctx, f.project.ID, holderA)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	// Stranger with no bonds.
	require.NoError(t, f.dist.DepositRevenue(ctx, f.project.ID, sponsor, decimal.NewFromInt(1000)))
	_, err = f.dist.Claim(ctx, f.project.ID, operator)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestProjectInfoAPY(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.dist.DepositRevenue(ctx, f.project.ID, sponsor, decimal.NewFromInt(5000)))
	_, err := f.dist.Claim(ctx, f.project.ID, holderA)
	require.NoError(t, err)

	// Pin the clock half a year after bond creation: 2,000 distributed on
	// 50,000 raised over 0.5y is an 8% annualized rate.
	b, err := f.bonds.Get(ctx, f.project.ID)
	require.NoError(t, err)
	f.dist.clock = func() time.Time { return b.CreatedAt.Add(365 * 12 * time.Hour) }

	info, err := f.dist.ProjectInfo(ctx, f.project.ID)
	require.NoError(t, err)
	assert.InDelta(t, 8.0, info.APY, 0.01)
}
