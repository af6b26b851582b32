package treasury

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
	"github.com/infrabond/core/internal/store/memory"
)

var (
	operator = common.HexToAddress("0x0000000000000000000000000000000000000001")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	roles := auth.New()
	roles.Grant(operator, auth.RoleOperator)
	logger := slog.New(slog.DiscardHandler)
	emitter := events.NewEmitter(memory.NewEventStore(), events.NewMemoryBus(), logger)
	return NewLedger(memory.NewBalanceStore(), roles, emitter, logger)
}

func TestDepositAndBalance(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()

	require.NoError(t, l.Deposit(ctx, operator, alice, decimal.NewFromInt(1000)))

	bal, err := l.Balance(ctx, AddressAccount(alice))
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(1000)))
}

func TestDepositRequiresOperator(t *testing.T) {
	l := newLedger(t)
	err := l.Deposit(context.Background(), alice, alice, decimal.NewFromInt(10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestDepositRejectsNonPositive(t *testing.T) {
	l := newLedger(t)
	err := l.Deposit(context.Background(), operator, alice, decimal.Zero)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestTransferInsufficientFunds(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, operator, alice, decimal.NewFromInt(5)))

	err := l.Transfer(ctx, AddressAccount(alice), BondVault("p1"), decimal.NewFromInt(6))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInsufficientFunds))

	// Nothing moved.
	bal, err := l.Balance(ctx, AddressAccount(alice))
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(5)))
}

func TestTransferMovesExactAmount(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Deposit(ctx, operator, alice, decimal.RequireFromString("100.000001")))

	amt := decimal.RequireFromString("99.999999")
	require.NoError(t, l.Transfer(ctx, AddressAccount(alice), MarketVault("m1"), amt))

	src, _ := l.Balance(ctx, AddressAccount(alice))
	dst, _ := l.Balance(ctx, MarketVault("m1"))
	assert.True(t, src.Equal(decimal.RequireFromString("0.000002")))
	assert.True(t, dst.Equal(amt))
}
