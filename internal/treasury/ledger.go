// Package treasury tracks mirrored stablecoin balances inside the core.
// The collateral token itself is external; an operator deposit entry point
// stands in for the on-chain transfer-in, and every purchase, trade, and
// claim moves balances between address accounts and named vault accounts.
package treasury

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/infrabond/core/internal/auth"
	"github.com/infrabond/core/internal/domain"
	"github.com/infrabond/core/internal/events"
)

// CollateralPlaces is the decimal precision of the stablecoin.
const CollateralPlaces = 6

// AddressAccount is the balance key for an externally-owned account.
func AddressAccount(addr common.Address) string {
	return "addr:" + strings.ToLower(addr.Hex())
}

// BondVault holds collateral paid into a project's bond ledger.
func BondVault(projectID string) string { return "vault:bond:" + projectID }

// MarketVault holds a market's trading collateral and payout reserve.
func MarketVault(marketID string) string { return "vault:market:" + marketID }

// YieldVault holds deposited revenue awaiting claims.
func YieldVault(projectID string) string { return "vault:yield:" + projectID }

// Ledger is the collateral accounting component. A single internal mutex
// makes each transfer atomic across its two balance keys; callers holding
// project or market locks may nest into it freely because the ledger never
// acquires those locks itself.
type Ledger struct {
	mu       sync.Mutex
	balances domain.BalanceStore
	roles    *auth.Roles
	emitter  *events.Emitter
	logger   *slog.Logger
}

// NewLedger creates a Ledger over the given balance store.
func NewLedger(balances domain.BalanceStore, roles *auth.Roles, emitter *events.Emitter, logger *slog.Logger) *Ledger {
	return &Ledger{
		balances: balances,
		roles:    roles,
		emitter:  emitter,
		logger:   logger.With(slog.String("component", "treasury")),
	}
}

// Deposit mirrors an on-chain stablecoin transfer-in. Operator-gated.
func (l *Ledger) Deposit(ctx context.Context, caller, to common.Address, amount decimal.Decimal) error {
	if err := l.roles.Require(caller, auth.RoleOperator); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return fmt.Errorf("deposit amount must be positive: %w", domain.ErrValidation)
	}
	amount = amount.Truncate(CollateralPlaces)

	l.mu.Lock()
	defer l.mu.Unlock()

	account := AddressAccount(to)
	bal, err := l.balances.Get(ctx, account)
	if err != nil {
		return fmt.Errorf("treasury: read %s: %w", account, err)
	}
	if err := l.balances.Set(ctx, account, bal.Add(amount)); err != nil {
		return fmt.Errorf("treasury: credit %s: %w", account, err)
	}

	l.emitter.Emit(ctx, domain.EventCollateralDeposited, "", "", map[string]any{
		"account": to.Hex(),
		"amount":  amount.String(),
	})
	return nil
}

// Balance returns the current balance of any account key.
func (l *Ledger) Balance(ctx context.Context, account string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances.Get(ctx, account)
}

// Transfer moves collateral between two accounts, failing with
// ErrInsufficientFunds when the source is short. Used by the bond, yield,
// and market services inside their own critical sections.
func (l *Ledger) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("transfer amount must be positive: %w", domain.ErrValidation)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	src, err := l.balances.Get(ctx, from)
	if err != nil {
		return fmt.Errorf("treasury: read %s: %w", from, err)
	}
	if src.LessThan(amount) {
		return fmt.Errorf("account %s holds %s, needs %s: %w",
			from, src.String(), amount.String(), domain.ErrInsufficientFunds)
	}
	dst, err := l.balances.Get(ctx, to)
	if err != nil {
		return fmt.Errorf("treasury: read %s: %w", to, err)
	}
	if err := l.balances.Set(ctx, from, src.Sub(amount)); err != nil {
		return fmt.Errorf("treasury: debit %s: %w", from, err)
	}
	if err := l.balances.Set(ctx, to, dst.Add(amount)); err != nil {
		// Restore the debit so no transfer is half-applied.
		if rerr := l.balances.Set(ctx, from, src); rerr != nil {
			l.logger.ErrorContext(ctx, "treasury rollback failed",
				slog.String("account", from), slog.String("error", rerr.Error()))
		}
		return fmt.Errorf("treasury: credit %s: %w", to, err)
	}
	return nil
}
