// Package bond implements the per-project bond ledger: one-time bond
// creation, collateral-proportional minting, and fungible transfers.
package bond

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/infrabond/core/internal/auth"
	"github.com/infrabond/core/internal/domain"
	"github.com/infrabond/core/internal/events"
	"github.com/infrabond/core/internal/treasury"
)

// BondPlaces is the decimal precision of bond units.
const BondPlaces = 18

// ProjectRegistry is the registry surface the bond ledger is allowed to
// touch: project reads, the bond attachment, and the funding callback.
type ProjectRegistry interface {
	Get(ctx context.Context, projectID string) (domain.Project, error)
	AttachBond(ctx context.Context, projectID, bondID string) error
	RecordFunding(ctx context.Context, projectID string, delta decimal.Decimal) (domain.Project, error)
}

// Ledger implements the bond ledger.
type Ledger struct {
	bonds    domain.BondStore
	holdings domain.HoldingStore
	registry ProjectRegistry
	funds    *treasury.Ledger
	locker   domain.Locker
	roles    *auth.Roles
	emitter  *events.Emitter
	clock    domain.Clock
	logger   *slog.Logger
}

// NewLedger creates a bond Ledger.
func NewLedger(
	bonds domain.BondStore,
	holdings domain.HoldingStore,
	reg ProjectRegistry,
	funds *treasury.Ledger,
	locker domain.Locker,
	roles *auth.Roles,
	emitter *events.Emitter,
	logger *slog.Logger,
) *Ledger {
	return &Ledger{
		bonds:    bonds,
		holdings: holdings,
		registry: reg,
		funds:    funds,
		locker:   locker,
		roles:    roles,
		emitter:  emitter,
		clock:    time.Now,
		logger:   logger.With(slog.String("component", "bond_ledger")),
	}
}

// Create issues the one-time bond record for a project. Operator-gated.
func (l *Ledger) Create(ctx context.Context, caller common.Address, projectID string) (domain.Bond, error) {
	if err := l.roles.Require(caller, auth.RoleOperator); err != nil {
		return domain.Bond{}, err
	}
	release, err := l.locker.Acquire(ctx, domain.ProjectLockKey(projectID))
	if err != nil {
		return domain.Bond{}, fmt.Errorf("bond: lock project %s: %w", projectID, err)
	}
	defer release()

	if _, err := l.registry.Get(ctx, projectID); err != nil {
		return domain.Bond{}, err
	}
	b := domain.Bond{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		TotalSupply: decimal.Zero,
		CreatedAt:   l.clock().UTC(),
	}
	if err := l.bonds.Insert(ctx, b); err != nil {
		return domain.Bond{}, err
	}
	if err := l.registry.AttachBond(ctx, projectID, b.ID); err != nil {
		return domain.Bond{}, fmt.Errorf("bond: attach to project %s: %w", projectID, err)
	}

	l.logger.InfoContext(ctx, "bond created",
		slog.String("project_id", projectID), slog.String("bond_id", b.ID))
	l.emitter.Emit(ctx, domain.EventBondCreated, projectID, "", map[string]any{
		"project_id": projectID,
		"bond_id":    b.ID,
	})
	return b, nil
}

// Purchase converts collateral into bond units at the project's fixed bond
// price: bonds = collateral / price, truncated to 18 decimals, so minting
// stays strictly proportional to collateral paid. The raw collateral amount
// is forwarded to the registry's funding callback inside the same critical
// section.
func (l *Ledger) Purchase(ctx context.Context, projectID string, buyer common.Address, collateral decimal.Decimal) (domain.BondHolding, error) {
	if !collateral.IsPositive() {
		return domain.BondHolding{}, fmt.Errorf("purchase amount must be positive: %w", domain.ErrValidation)
	}
	collateral = collateral.Truncate(treasury.CollateralPlaces)
	if collateral.IsZero() {
		return domain.BondHolding{}, fmt.Errorf("purchase amount below collateral precision: %w", domain.ErrValidation)
	}

	release, err := l.locker.Acquire(ctx, domain.ProjectLockKey(projectID))
	if err != nil {
		return domain.BondHolding{}, fmt.Errorf("bond: lock project %s: %w", projectID, err)
	}
	defer release()

	b, err := l.bonds.GetByProject(ctx, projectID)
	if err != nil {
		return domain.BondHolding{}, err
	}
	p, err := l.registry.Get(ctx, projectID)
	if err != nil {
		return domain.BondHolding{}, err
	}
	if p.Status != domain.ProjectFunding {
		return domain.BondHolding{}, fmt.Errorf("project %s is %s, purchases only while funding: %w",
			projectID, p.Status, domain.ErrStateConflict)
	}

	minted, _ := collateral.QuoRem(p.BondPrice, BondPlaces)
	if !minted.IsPositive() {
		return domain.BondHolding{}, fmt.Errorf("purchase too small to mint any bond units: %w", domain.ErrValidation)
	}

	if err := l.funds.Transfer(ctx, treasury.AddressAccount(buyer), treasury.BondVault(projectID), collateral); err != nil {
		return domain.BondHolding{}, err
	}

	holding, err := l.holdings.Get(ctx, projectID, buyer)
	if errors.Is(err, domain.ErrNotFound) {
		holding = domain.BondHolding{ProjectID: projectID, Holder: buyer, Balance: decimal.Zero}
	} else if err != nil {
		return domain.BondHolding{}, err
	}
	holding.Balance = holding.Balance.Add(minted)
	holding.UpdatedAt = l.clock().UTC()
	if err := l.holdings.Upsert(ctx, holding); err != nil {
		return domain.BondHolding{}, fmt.Errorf("bond: upsert holding: %w", err)
	}

	b.TotalSupply = b.TotalSupply.Add(minted)
	if err := l.bonds.Update(ctx, b); err != nil {
		return domain.BondHolding{}, fmt.Errorf("bond: update supply: %w", err)
	}

	if _, err := l.registry.RecordFunding(ctx, projectID, collateral); err != nil {
		return domain.BondHolding{}, fmt.Errorf("bond: record funding: %w", err)
	}

	l.logger.InfoContext(ctx, "bonds purchased",
		slog.String("project_id", projectID),
		slog.String("buyer", buyer.Hex()),
		slog.String("collateral", collateral.String()),
		slog.String("minted", minted.String()),
	)
	l.emitter.Emit(ctx, domain.EventBondPurchased, projectID, "", map[string]any{
		"project_id":   projectID,
		"buyer":        buyer.Hex(),
		"collateral":   collateral.String(),
		"bonds_minted": minted.String(),
		"total_supply": b.TotalSupply.String(),
	})
	return holding, nil
}

// Transfer moves bond units between holders. An ordinary fungible
// transfer: no yield snapshot is taken, claims are always computed live
// against current balances.
func (l *Ledger) Transfer(ctx context.Context, projectID string, from, to common.Address, units decimal.Decimal) error {
	if !units.IsPositive() {
		return fmt.Errorf("transfer units must be positive: %w", domain.ErrValidation)
	}
	if from == to {
		return fmt.Errorf("self-transfer: %w", domain.ErrValidation)
	}

	release, err := l.locker.Acquire(ctx, domain.ProjectLockKey(projectID))
	if err != nil {
		return fmt.Errorf("bond: lock project %s: %w", projectID, err)
	}
	defer release()

	if _, err := l.bonds.GetByProject(ctx, projectID); err != nil {
		return err
	}

	src, err := l.holdings.Get(ctx, projectID, from)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && src.Balance.LessThan(units)) {
		return fmt.Errorf("holder %s short of %s bond units: %w", from.Hex(), units.String(), domain.ErrInsufficientShares)
	} else if err != nil {
		return err
	}

	dst, err := l.holdings.Get(ctx, projectID, to)
	if errors.Is(err, domain.ErrNotFound) {
		dst = domain.BondHolding{ProjectID: projectID, Holder: to, Balance: decimal.Zero}
	} else if err != nil {
		return err
	}

	now := l.clock().UTC()
	src.Balance = src.Balance.Sub(units)
	src.UpdatedAt = now
	dst.Balance = dst.Balance.Add(units)
	dst.UpdatedAt = now
	if err := l.holdings.Upsert(ctx, src); err != nil {
		return fmt.Errorf("bond: update sender holding: %w", err)
	}
	if err := l.holdings.Upsert(ctx, dst); err != nil {
		return fmt.Errorf("bond: update receiver holding: %w", err)
	}

	l.emitter.Emit(ctx, domain.EventBondTransferred, projectID, "", map[string]any{
		"project_id": projectID,
		"from":       from.Hex(),
		"to":         to.Hex(),
		"units":      units.String(),
	})
	return nil
}

// Get returns the project's bond record.
func (l *Ledger) Get(ctx context.Context, projectID string) (domain.Bond, error) {
	return l.bonds.GetByProject(ctx, projectID)
}

// Holding returns a holder's balance; never-purchased holders read as a
// zero-balance holding, not an error.
func (l *Ledger) Holding(ctx context.Context, projectID string, holder common.Address) (domain.BondHolding, error) {
	h, err := l.holdings.Get(ctx, projectID, holder)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.BondHolding{ProjectID: projectID, Holder: holder, Balance: decimal.Zero}, nil
	}
	return h, err
}
