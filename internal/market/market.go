// Package market implements the per-project YES/NO outcome market priced
// by the LMSR cost function. Collateral moves through a per-market vault;
// quotes round in the pool's favour (buy costs up, sell payouts down).
package market

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
	"github.com/infrabond/core/internal/lmsr"
	"github.com/infrabond/core/internal/treasury"
)

// SharePlaces is the decimal precision of outcome shares.
const SharePlaces = 18

// ProjectRegistry is the registry surface the market service touches.
type ProjectRegistry interface {
	Get(ctx context.Context, projectID string) (domain.Project, error)
	AttachMarket(ctx context.Context, projectID, marketID string) error
}

// Quote is a read-only price estimate for one share amount.
type Quote struct {
	MarketID string
	Side     domain.Side
	Shares   decimal.Decimal
	// BuyCost is what a buyer would pay, rounded up to collateral
	// precision; SellPayout is what a seller would receive, rounded down.
	BuyCost    decimal.Decimal
	SellPayout decimal.Decimal
}

// Service implements the outcome market.
type Service struct {
	markets  domain.MarketStore
	trades   domain.TradeStore
	outcomes domain.OutcomeStore
	registry ProjectRegistry
	funds    *treasury.Ledger
	locker   domain.Locker
	roles    *auth.Roles
	emitter  *events.Emitter
	prices   domain.PriceCache // optional
	clock    domain.Clock
	logger   *slog.Logger
}

// New creates a market Service. prices may be nil when no cache is wired.
func New(
	markets domain.MarketStore,
	trades domain.TradeStore,
	outcomes domain.OutcomeStore,
	reg ProjectRegistry,
	funds *treasury.Ledger,
	locker domain.Locker,
	roles *auth.Roles,
	emitter *events.Emitter,
	prices domain.PriceCache,
	logger *slog.Logger,
) *Service {
	return &Service{
		markets:  markets,
		trades:   trades,
		outcomes: outcomes,
		registry: reg,
		funds:    funds,
		locker:   locker,
		roles:    roles,
		emitter:  emitter,
		prices:   prices,
		clock:    time.Now,
		logger:   logger.With(slog.String("component", "market")),
	}
}

// Open creates the single outcome market for a project. Operator-gated.
func (s *Service) Open(ctx context.Context, caller common.Address, projectID, question string, deadline time.Time, b decimal.Decimal) (domain.Market, error) {
	if err := s.roles.Require(caller, auth.RoleOperator); err != nil {
		return domain.Market{}, err
	}
	if !b.IsPositive() {
		return domain.Market{}, fmt.Errorf("liquidity parameter must be positive: %w", domain.ErrValidation)
	}
	if question == "" {
		return domain.Market{}, fmt.Errorf("market question required: %w", domain.ErrValidation)
	}

	release, err := s.locker.Acquire(ctx, domain.ProjectLockKey(projectID))
	if err != nil {
		return domain.Market{}, fmt.Errorf("market: lock project %s: %w", projectID, err)
	}
	defer release()

	if _, err := s.registry.Get(ctx, projectID); err != nil {
		return domain.Market{}, err
	}
	if _, err := s.markets.GetByProject(ctx, projectID); err == nil {
		return domain.Market{}, fmt.Errorf("project %s already has a market: %w", projectID, domain.ErrStateConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Market{}, err
	}

	m := domain.Market{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Question:  question,
		Deadline:  deadline.UTC(),
		B:         b.Truncate(treasury.CollateralPlaces),
		YesShares: decimal.Zero,
		NoShares:  decimal.Zero,
		Volume:    decimal.Zero,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.markets.Insert(ctx, m); err != nil {
		return domain.Market{}, err
	}
	if err := s.registry.AttachMarket(ctx, projectID, m.ID); err != nil {
		return domain.Market{}, fmt.Errorf("market: attach to project %s: %w", projectID, err)
	}
	s.cachePrices(ctx, m)

	s.logger.InfoContext(ctx, "market opened",
		slog.String("market_id", m.ID),
		slog.String("project_id", projectID),
		slog.String("b", m.B.String()),
		slog.Time("deadline", m.Deadline),
	)
	s.emitter.Emit(ctx, domain.EventMarketOpened, projectID, m.ID, map[string]any{
		"market_id":  m.ID,
		"project_id": projectID,
		"question":   question,
		"deadline":   m.Deadline,
		"b":          m.B.String(),
	})
	return m, nil
}

// QuoteShares estimates buy cost and sell payout for a share amount
// against the current pool, without mutating anything.
func (s *Service) QuoteShares(ctx context.Context, marketID string, side domain.Side, shares decimal.Decimal) (Quote, error) {
	if err := validateShares(shares); err != nil {
		return Quote{}, err
	}
	if err := validateSide(side); err != nil {
		return Quote{}, err
	}

	release, err := s.locker.Acquire(ctx, domain.MarketLockKey(marketID))
	if err != nil {
		return Quote{}, fmt.Errorf("market: lock %s: %w", marketID, err)
	}
	defer release()

	m, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return Quote{}, err
	}
	shares = shares.Truncate(SharePlaces)
	return Quote{
		MarketID:   marketID,
		Side:       side,
		Shares:     shares,
		BuyCost:    buyCost(m, side, shares),
		SellPayout: sellPayout(m, side, shares),
	}, nil
}

// Buy pulls the exact LMSR cost from the trader into the market vault and
// mints outcome shares on one side.
func (s *Service) Buy(ctx context.Context, marketID string, trader common.Address, side domain.Side, shares decimal.Decimal) (domain.Trade, error) {
	if err := validateShares(shares); err != nil {
		return domain.Trade{}, err
	}
	if err := validateSide(side); err != nil {
		return domain.Trade{}, err
	}
	shares = shares.Truncate(SharePlaces)

	release, err := s.locker.Acquire(ctx, domain.MarketLockKey(marketID))
	if err != nil {
		return domain.Trade{}, fmt.Errorf("market: lock %s: %w", marketID, err)
	}
	defer release()

	m, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return domain.Trade{}, err
	}
	if m.Resolved {
		return domain.Trade{}, fmt.Errorf("market %s is resolved: %w", marketID, domain.ErrStateConflict)
	}

	cost := buyCost(m, side, shares)
	if cost.IsPositive() {
		if err := s.funds.Transfer(ctx, treasury.AddressAccount(trader), treasury.MarketVault(marketID), cost); err != nil {
			return domain.Trade{}, err
		}
	}

	holding, err := s.outcomes.Get(ctx, marketID, trader, side)
	if errors.Is(err, domain.ErrNotFound) {
		holding = domain.OutcomeHolding{MarketID: marketID, Holder: trader, Side: side, Balance: decimal.Zero}
	} else if err != nil {
		return domain.Trade{}, err
	}
	now := s.clock().UTC()
	holding.Balance = holding.Balance.Add(shares)
	holding.UpdatedAt = now
	if err := s.outcomes.Upsert(ctx, holding); err != nil {
		return domain.Trade{}, fmt.Errorf("market: upsert holding: %w", err)
	}

	if side == domain.SideYes {
		m.YesShares = m.YesShares.Add(shares)
	} else {
		m.NoShares = m.NoShares.Add(shares)
	}
	m.Volume = m.Volume.Add(cost)
	if err := s.markets.Update(ctx, m); err != nil {
		return domain.Trade{}, fmt.Errorf("market: update: %w", err)
	}

	tr := domain.Trade{
		ID:         uuid.NewString(),
		MarketID:   marketID,
		Trader:     trader,
		Side:       side,
		Direction:  domain.DirectionBuy,
		Shares:     shares,
		Collateral: cost,
		CreatedAt:  now,
	}
	if err := s.trades.Insert(ctx, tr); err != nil {
		return domain.Trade{}, fmt.Errorf("market: insert trade: %w", err)
	}
	s.afterTrade(ctx, m, tr)
	return tr, nil
}

// Sell burns outcome shares and pays C(current) − C(after) out of the
// market vault.
func (s *Service) Sell(ctx context.Context, marketID string, trader common.Address, side domain.Side, shares decimal.Decimal) (domain.Trade, error) {
	if err := validateShares(shares); err != nil {
		return domain.Trade{}, err
	}
	if err := validateSide(side); err != nil {
		return domain.Trade{}, err
	}
	shares = shares.Truncate(SharePlaces)

	release, err := s.locker.Acquire(ctx, domain.MarketLockKey(marketID))
	if err != nil {
		return domain.Trade{}, fmt.Errorf("market: lock %s: %w", marketID, err)
	}
	defer release()

	m, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return domain.Trade{}, err
	}
	if m.Resolved {
		return domain.Trade{}, fmt.Errorf("market %s is resolved: %w", marketID, domain.ErrStateConflict)
	}

	holding, err := s.outcomes.Get(ctx, marketID, trader, side)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && holding.Balance.LessThan(shares)) {
		return domain.Trade{}, fmt.Errorf("trader %s short of %s %s shares: %w",
			trader.Hex(), shares.String(), side, domain.ErrInsufficientShares)
	} else if err != nil {
		return domain.Trade{}, err
	}

	payout := sellPayout(m, side, shares)
	if payout.IsPositive() {
		if err := s.funds.Transfer(ctx, treasury.MarketVault(marketID), treasury.AddressAccount(trader), payout); err != nil {
			return domain.Trade{}, err
		}
	}

	now := s.clock().UTC()
	holding.Balance = holding.Balance.Sub(shares)
	holding.UpdatedAt = now
	if err := s.outcomes.Upsert(ctx, holding); err != nil {
		return domain.Trade{}, fmt.Errorf("market: upsert holding: %w", err)
	}

	if side == domain.SideYes {
		m.YesShares = m.YesShares.Sub(shares)
	} else {
		m.NoShares = m.NoShares.Sub(shares)
	}
	m.Volume = m.Volume.Add(payout)
	if err := s.markets.Update(ctx, m); err != nil {
		return domain.Trade{}, fmt.Errorf("market: update: %w", err)
	}

	tr := domain.Trade{
		ID:         uuid.NewString(),
		MarketID:   marketID,
		Trader:     trader,
		Side:       side,
		Direction:  domain.DirectionSell,
		Shares:     shares,
		Collateral: payout,
		CreatedAt:  now,
	}
	if err := s.trades.Insert(ctx, tr); err != nil {
		return domain.Trade{}, fmt.Errorf("market: insert trade: %w", err)
	}
	s.afterTrade(ctx, m, tr)
	return tr, nil
}

// Resolve settles the market to an outcome. Oracle-gated; before the
// deadline only with force, which is the privileged early path the oracle
// aggregator uses on project completion or failure.
func (s *Service) Resolve(ctx context.Context, caller common.Address, marketID string, outcome, force bool) (domain.Market, error) {
	if err := s.roles.Require(caller, auth.RoleOracle); err != nil {
		return domain.Market{}, err
	}
	release, err := s.locker.Acquire(ctx, domain.MarketLockKey(marketID))
	if err != nil {
		return domain.Market{}, fmt.Errorf("market: lock %s: %w", marketID, err)
	}
	defer release()

	m, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	if !force && s.clock().UTC().Before(m.Deadline) {
		return domain.Market{}, fmt.Errorf("market %s deadline not reached: %w", marketID, domain.ErrStateConflict)
	}
	return s.resolveLocked(ctx, m, outcome)
}

// ResolveForProject force-resolves a project's market. It is the narrow
// MarketResolver surface handed to the oracle aggregator, which already
// holds the project critical section; the market lock nests inside it.
// A project without a market, or with an already-resolved market, is a
// no-op.
func (s *Service) ResolveForProject(ctx context.Context, projectID string, outcome bool) error {
	m, err := s.markets.GetByProject(ctx, projectID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}

	release, err := s.locker.Acquire(ctx, domain.MarketLockKey(m.ID))
	if err != nil {
		return fmt.Errorf("market: lock %s: %w", m.ID, err)
	}
	defer release()

	m, err = s.markets.Get(ctx, m.ID)
	if err != nil {
		return err
	}
	if m.Resolved {
		return nil
	}
	_, err = s.resolveLocked(ctx, m, outcome)
	return err
}

func (s *Service) resolveLocked(ctx context.Context, m domain.Market, outcome bool) (domain.Market, error) {
	if m.Resolved {
		return domain.Market{}, fmt.Errorf("market %s already resolved: %w", m.ID, domain.ErrStateConflict)
	}

	now := s.clock().UTC()
	m.Resolved = true
	m.Outcome = outcome
	m.ResolvedAt = &now
	if err := s.markets.Update(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("market: update: %w", err)
	}

	// Solvency is operational, not structural: warn when the vault cannot
	// cover every winning share at 1 collateral apiece.
	worstCase := m.YesShares
	if !outcome {
		worstCase = m.NoShares
	}
	vault, err := s.funds.Balance(ctx, treasury.MarketVault(m.ID))
	if err == nil && vault.LessThan(worstCase.Truncate(treasury.CollateralPlaces)) {
		s.logger.WarnContext(ctx, "market vault underfunded at resolution",
			slog.String("market_id", m.ID),
			slog.String("vault", vault.String()),
			slog.String("worst_case", worstCase.String()),
		)
	}

	s.logger.InfoContext(ctx, "market resolved",
		slog.String("market_id", m.ID),
		slog.String("project_id", m.ProjectID),
		slog.Bool("outcome", outcome),
	)
	s.emitter.Emit(ctx, domain.EventMarketResolved, m.ProjectID, m.ID, map[string]any{
		"market_id":  m.ID,
		"project_id": m.ProjectID,
		"outcome":    outcome,
	})
	return m, nil
}

// ClaimWinnings burns the holder's winning-side shares and pays 1
// collateral unit per share from the market vault. A losing-side or empty
// claim pays zero without error or state change.
func (s *Service) ClaimWinnings(ctx context.Context, marketID string, holder common.Address) (decimal.Decimal, error) {
	release, err := s.locker.Acquire(ctx, domain.MarketLockKey(marketID))
	if err != nil {
		return decimal.Zero, fmt.Errorf("market: lock %s: %w", marketID, err)
	}
	defer release()

	m, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return decimal.Zero, err
	}
	if !m.Resolved {
		return decimal.Zero, fmt.Errorf("market %s not resolved: %w", marketID, domain.ErrStateConflict)
	}

	winning := domain.SideNo
	if m.Outcome {
		winning = domain.SideYes
	}
	holding, err := s.outcomes.Get(ctx, marketID, holder, winning)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && !holding.Balance.IsPositive()) {
		return decimal.Zero, nil
	} else if err != nil {
		return decimal.Zero, err
	}

	payout := holding.Balance.Truncate(treasury.CollateralPlaces)
	if payout.IsPositive() {
		if err := s.funds.Transfer(ctx, treasury.MarketVault(marketID), treasury.AddressAccount(holder), payout); err != nil {
			return decimal.Zero, err
		}
	}

	holding.Balance = decimal.Zero
	holding.UpdatedAt = s.clock().UTC()
	if err := s.outcomes.Upsert(ctx, holding); err != nil {
		return decimal.Zero, fmt.Errorf("market: upsert holding: %w", err)
	}

	s.logger.InfoContext(ctx, "winnings claimed",
		slog.String("market_id", marketID),
		slog.String("holder", holder.Hex()),
		slog.String("payout", payout.String()),
	)
	s.emitter.Emit(ctx, domain.EventWinningsClaimed, m.ProjectID, marketID, map[string]any{
		"market_id": marketID,
		"holder":    holder.Hex(),
		"side":      string(winning),
		"payout":    payout.String(),
	})
	return payout, nil
}

// Backstop tops up the market vault from the operator's collateral so
// resolution stays solvent.
func (s *Service) Backstop(ctx context.Context, caller common.Address, marketID string, amount decimal.Decimal) error {
	if err := s.roles.Require(caller, auth.RoleOperator); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return fmt.Errorf("backstop amount must be positive: %w", domain.ErrValidation)
	}
	amount = amount.Truncate(treasury.CollateralPlaces)

	release, err := s.locker.Acquire(ctx, domain.MarketLockKey(marketID))
	if err != nil {
		return fmt.Errorf("market: lock %s: %w", marketID, err)
	}
	defer release()

	if _, err := s.markets.Get(ctx, marketID); err != nil {
		return err
	}
	if err := s.funds.Transfer(ctx, treasury.AddressAccount(caller), treasury.MarketVault(marketID), amount); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "market vault backstopped",
		slog.String("market_id", marketID),
		slog.String("amount", amount.String()),
	)
	return nil
}

// Prices returns a consistent snapshot of both instantaneous prices.
func (s *Service) Prices(ctx context.Context, marketID string) (domain.MarketPrices, error) {
	release, err := s.locker.Acquire(ctx, domain.MarketLockKey(marketID))
	if err != nil {
		return domain.MarketPrices{}, fmt.Errorf("market: lock %s: %w", marketID, err)
	}
	defer release()

	m, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return domain.MarketPrices{}, err
	}
	return s.pricesOf(m), nil
}

// Get returns a market by ID.
func (s *Service) Get(ctx context.Context, marketID string) (domain.Market, error) {
	return s.markets.Get(ctx, marketID)
}

// GetByProject returns a project's market.
func (s *Service) GetByProject(ctx context.Context, projectID string) (domain.Market, error) {
	return s.markets.GetByProject(ctx, projectID)
}

// Trades returns the trade log, newest first.
func (s *Service) Trades(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	return s.trades.ListByMarket(ctx, marketID, opts)
}

// Holding returns a trader's outcome balance; unknown holders read zero.
func (s *Service) Holding(ctx context.Context, marketID string, holder common.Address, side domain.Side) (domain.OutcomeHolding, error) {
	h, err := s.outcomes.Get(ctx, marketID, holder, side)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.OutcomeHolding{MarketID: marketID, Holder: holder, Side: side, Balance: decimal.Zero}, nil
	}
	return h, err
}

func (s *Service) pricesOf(m domain.Market) domain.MarketPrices {
	qYes := m.YesShares.InexactFloat64()
	qNo := m.NoShares.InexactFloat64()
	b := m.B.InexactFloat64()
	return domain.MarketPrices{
		MarketID: m.ID,
		Yes:      lmsr.PriceYes(qYes, qNo, b),
		No:       lmsr.PriceNo(qYes, qNo, b),
		At:       s.clock().UTC(),
	}
}

func (s *Service) cachePrices(ctx context.Context, m domain.Market) domain.MarketPrices {
	p := s.pricesOf(m)
	if s.prices != nil {
		if err := s.prices.SetPrices(ctx, p); err != nil {
			s.logger.WarnContext(ctx, "price cache write failed",
				slog.String("market_id", m.ID), slog.String("error", err.Error()))
		}
	}
	return p
}

func (s *Service) afterTrade(ctx context.Context, m domain.Market, tr domain.Trade) {
	p := s.cachePrices(ctx, m)
	s.logger.InfoContext(ctx, "trade executed",
		slog.String("market_id", m.ID),
		slog.String("trader", tr.Trader.Hex()),
		slog.String("side", string(tr.Side)),
		slog.String("direction", string(tr.Direction)),
		slog.String("shares", tr.Shares.String()),
		slog.String("collateral", tr.Collateral.String()),
	)
	s.emitter.Emit(ctx, domain.EventMarketTraded, m.ProjectID, m.ID, map[string]any{
		"market_id":  m.ID,
		"trade_id":   tr.ID,
		"trader":     tr.Trader.Hex(),
		"side":       string(tr.Side),
		"direction":  string(tr.Direction),
		"shares":     tr.Shares.String(),
		"collateral": tr.Collateral.String(),
		"price_yes":  p.Yes,
		"price_no":   p.No,
	})
}

// buyCost converts the LMSR cost into a collateral amount rounded up, so
// the pool never undercharges.
func buyCost(m domain.Market, side domain.Side, shares decimal.Decimal) decimal.Decimal {
	c := lmsr.CostToBuy(m.YesShares.InexactFloat64(), m.NoShares.InexactFloat64(),
		m.B.InexactFloat64(), side == domain.SideYes, shares.InexactFloat64())
	return decimal.NewFromFloat(c).RoundUp(treasury.CollateralPlaces)
}

// sellPayout rounds down, so the pool never overpays.
func sellPayout(m domain.Market, side domain.Side, shares decimal.Decimal) decimal.Decimal {
	p := lmsr.PayoutForSell(m.YesShares.InexactFloat64(), m.NoShares.InexactFloat64(),
		m.B.InexactFloat64(), side == domain.SideYes, shares.InexactFloat64())
	return decimal.NewFromFloat(p).RoundDown(treasury.CollateralPlaces)
}

func validateShares(shares decimal.Decimal) error {
	if !shares.IsPositive() {
		return fmt.Errorf("share amount must be positive: %w", domain.ErrValidation)
	}
	return nil
}

func validateSide(side domain.Side) error {
	if side != domain.SideYes && side != domain.SideNo {
		return fmt.Errorf("unknown side %q: %w", side, domain.ErrValidation)
	}
	return nil
}

var _ domain.MarketResolver = (*Service)(nil)
