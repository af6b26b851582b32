package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Side is a market outcome side.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Direction is a trade direction.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// Market is an LMSR-priced YES/NO outcome market, 1:1 with a project.
// YesShares and NoShares are outstanding share counts (18-decimal); B is
// the liquidity parameter (> 0, 6-decimal collateral units). Outcome is
// meaningful only when Resolved is true.
type Market struct {
	ID         string
	ProjectID  string
	Question   string
	Deadline   time.Time
	B          decimal.Decimal
	YesShares  decimal.Decimal
	NoShares   decimal.Decimal
	Resolved   bool
	Outcome    bool
	ResolvedAt *time.Time
	Volume     decimal.Decimal
	CreatedAt  time.Time
}

// MarketPrices is a consistent snapshot of both instantaneous prices.
type MarketPrices struct {
	MarketID string
	Yes      float64
	No       float64
	At       time.Time
}

// Trade is an immutable trade log entry, append-only, used for audit and
// volume accounting.
type Trade struct {
	ID         string
	MarketID   string
	Trader     common.Address
	Side       Side
	Direction  Direction
	Shares     decimal.Decimal
	Collateral decimal.Decimal
	CreatedAt  time.Time
}

// OutcomeHolding is a trader's balance of one side's outcome token,
// scoped to a market.
type OutcomeHolding struct {
	MarketID  string
	Holder    common.Address
	Side      Side
	Balance   decimal.Decimal
	UpdatedAt time.Time
}
