// Package yield tracks per-project revenue and pays holders a
// proportional slice of whatever remains undistributed at claim time.
// Claims are deliberately order-dependent across interleaved deposits: a
// late claimant receives a proportional share of what is left, not of the
// original deposit, and the residual is redistributed going forward.
package yield

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/infrabond/core/internal/domain"
	"github.com/infrabond/core/internal/events"
	"github.com/infrabond/core/internal/treasury"
)

// BondReader is the bond-ledger surface the distributor reads.
type BondReader interface {
	Get(ctx context.Context, projectID string) (domain.Bond, error)
	Holding(ctx context.Context, projectID string, holder common.Address) (domain.BondHolding, error)
}

// ProjectReader is the registry surface the distributor reads.
type ProjectReader interface {
	Get(ctx context.Context, projectID string) (domain.Project, error)
}

// Info is the read-only yield summary for a project.
type Info struct {
	ProjectID   string
	Deposited   decimal.Decimal
	Distributed decimal.Decimal
	// APY is distributed revenue annualized over time since bond
	// creation, relative to funding raised. Informational only.
	APY float64
}

// Distributor implements the yield distributor.
type Distributor struct {
	pools    domain.YieldStore
	bonds    BondReader
	projects ProjectReader
	funds    *treasury.Ledger
	locker   domain.Locker
	emitter  *events.Emitter
	clock    domain.Clock
	logger   *slog.Logger
}

// New creates a Distributor.
func New(
	pools domain.YieldStore,
	bonds BondReader,
	projects ProjectReader,
	funds *treasury.Ledger,
	locker domain.Locker,
	emitter *events.Emitter,
	logger *slog.Logger,
) *Distributor {
	return &Distributor{
		pools:    pools,
		bonds:    bonds,
		projects: projects,
		funds:    funds,
		locker:   locker,
		emitter:  emitter,
		clock:    time.Now,
		logger:   logger.With(slog.String("component", "yield")),
	}
}

// DepositRevenue records operating revenue for a project. Any caller may
// deposit; the collateral moves from the depositor into the yield vault.
func (d *Distributor) DepositRevenue(ctx context.Context, projectID string, from common.Address, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("revenue amount must be positive: %w", domain.ErrValidation)
	}
	amount = amount.Truncate(treasury.CollateralPlaces)
	if amount.IsZero() {
		return fmt.Errorf("revenue amount below collateral precision: %w", domain.ErrValidation)
	}

	release, err := d.locker.Acquire(ctx, domain.ProjectLockKey(projectID))
	if err != nil {
		return fmt.Errorf("yield: lock project %s: %w", projectID, err)
	}
	defer release()

	if _, err := d.bonds.Get(ctx, projectID); err != nil {
		return err
	}

	if err := d.funds.Transfer(ctx, treasury.AddressAccount(from), treasury.YieldVault(projectID), amount); err != nil {
		return err
	}

	pool, err := d.pools.GetPool(ctx, projectID)
	if errors.Is(err, domain.ErrNotFound) {
		pool = domain.YieldPool{ProjectID: projectID, Deposited: decimal.Zero, Distributed: decimal.Zero}
	} else if err != nil {
		return err
	}
	pool.Deposited = pool.Deposited.Add(amount)
	pool.UpdatedAt = d.clock().UTC()
	if err := d.pools.UpsertPool(ctx, pool); err != nil {
		return fmt.Errorf("yield: upsert pool: %w", err)
	}

	d.logger.InfoContext(ctx, "revenue deposited",
		slog.String("project_id", projectID),
		slog.String("amount", amount.String()),
		slog.String("total_deposited", pool.Deposited.String()),
	)
	d.emitter.Emit(ctx, domain.EventYieldDeposited, projectID, "", map[string]any{
		"project_id":      projectID,
		"depositor":       from.Hex(),
		"amount":          amount.String(),
		"total_deposited": pool.Deposited.String(),
	})
	return nil
}

// Claimable returns holderBalance / totalSupply × undistributed revenue,
// truncated to collateral precision, against a consistent snapshot.
func (d *Distributor) Claimable(ctx context.Context, projectID string, holder common.Address) (decimal.Decimal, error) {
	release, err := d.locker.Acquire(ctx, domain.ProjectLockKey(projectID))
	if err != nil {
		return decimal.Zero, fmt.Errorf("yield: lock project %s: %w", projectID, err)
	}
	defer release()

	return d.claimableLocked(ctx, projectID, holder)
}

func (d *Distributor) claimableLocked(ctx context.Context, projectID string, holder common.Address) (decimal.Decimal, error) {
	b, err := d.bonds.Get(ctx, projectID)
	if err != nil {
		return decimal.Zero, err
	}
	if !b.TotalSupply.IsPositive() {
		return decimal.Zero, nil
	}
	pool, err := d.pools.GetPool(ctx, projectID)
	if errors.Is(err, domain.ErrNotFound) {
		return decimal.Zero, nil
	} else if err != nil {
		return decimal.Zero, err
	}
	h, err := d.bonds.Holding(ctx, projectID, holder)
	if err != nil {
		return decimal.Zero, err
	}
	und := pool.Deposited.Sub(pool.Distributed)
	if !und.IsPositive() || !h.Balance.IsPositive() {
		return decimal.Zero, nil
	}
	// Integer division truncates; dust stays in the pool and is
	// redistributed by later claims.
	share, _ := und.Mul(h.Balance).QuoRem(b.TotalSupply, treasury.CollateralPlaces)
	return share, nil
}

// Claim pays the caller's claimable amount out of the yield vault and
// advances totalRevenueDistributed by exactly that amount.
func (d *Distributor) Claim(ctx context.Context, projectID string, holder common.Address) (decimal.Decimal, error) {
	release, err := d.locker.Acquire(ctx, domain.ProjectLockKey(projectID))
	if err != nil {
		return decimal.Zero, fmt.Errorf("yield: lock project %s: %w", projectID, err)
	}
	defer release()

	amount, err := d.claimableLocked(ctx, projectID, holder)
	if err != nil {
		return decimal.Zero, err
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("nothing claimable for %s: %w", holder.Hex(), domain.ErrValidation)
	}

	if err := d.funds.Transfer(ctx, treasury.YieldVault(projectID), treasury.AddressAccount(holder), amount); err != nil {
		return decimal.Zero, err
	}

	pool, err := d.pools.GetPool(ctx, projectID)
	if err != nil {
		return decimal.Zero, err
	}
	now := d.clock().UTC()
	pool.Distributed = pool.Distributed.Add(amount)
	pool.UpdatedAt = now
	if err := d.pools.UpsertPool(ctx, pool); err != nil {
		return decimal.Zero, fmt.Errorf("yield: upsert pool: %w", err)
	}

	rec, err := d.pools.GetHolder(ctx, projectID, holder)
	if errors.Is(err, domain.ErrNotFound) {
		rec = domain.HolderYield{ProjectID: projectID, Holder: holder, TotalClaimed: decimal.Zero}
	} else if err != nil {
		return decimal.Zero, err
	}
	rec.TotalClaimed = rec.TotalClaimed.Add(amount)
	rec.LastClaimAt = &now
	if err := d.pools.UpsertHolder(ctx, rec); err != nil {
		return decimal.Zero, fmt.Errorf("yield: upsert holder record: %w", err)
	}

	d.logger.InfoContext(ctx, "yield claimed",
		slog.String("project_id", projectID),
		slog.String("holder", holder.Hex()),
		slog.String("amount", amount.String()),
	)
	d.emitter.Emit(ctx, domain.EventYieldClaimed, projectID, "", map[string]any{
		"project_id":        projectID,
		"holder":            holder.Hex(),
		"amount":            amount.String(),
		"total_distributed": pool.Distributed.String(),
	})
	return amount, nil
}

// ProjectInfo returns total revenue, distributed revenue, and the derived
// APY for a project.
func (d *Distributor) ProjectInfo(ctx context.Context, projectID string) (Info, error) {
	release, err := d.locker.Acquire(ctx, domain.ProjectLockKey(projectID))
	if err != nil {
		return Info{}, fmt.Errorf("yield: lock project %s: %w", projectID, err)
	}
	defer release()

	b, err := d.bonds.Get(ctx, projectID)
	if err != nil {
		return Info{}, err
	}
	info := Info{ProjectID: projectID, Deposited: decimal.Zero, Distributed: decimal.Zero}

	pool, err := d.pools.GetPool(ctx, projectID)
	if err == nil {
		info.Deposited = pool.Deposited
		info.Distributed = pool.Distributed
	} else if !errors.Is(err, domain.ErrNotFound) {
		return Info{}, err
	}

	p, err := d.projects.Get(ctx, projectID)
	if err != nil {
		return Info{}, err
	}
	elapsed := d.clock().UTC().Sub(b.CreatedAt)
	if elapsed > 0 && p.FundingRaised.IsPositive() && info.Distributed.IsPositive() {
		ratio := info.Distributed.InexactFloat64() / p.FundingRaised.InexactFloat64()
		years := elapsed.Hours() / (24 * 365)
		info.APY = ratio / years * 100
	}
	return info, nil
}
