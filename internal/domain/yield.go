package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// YieldPool tracks cumulative project revenue (6-decimal collateral units).
// Invariant: Distributed ≤ Deposited at all times; equality is reached only
// in the limit as every holder claims to exhaustion, integer truncation may
// leave a dust residual.
type YieldPool struct {
	ProjectID   string
	Deposited   decimal.Decimal
	Distributed decimal.Decimal
	UpdatedAt   time.Time
}

// HolderYield records a holder's lifetime claims against one project.
type HolderYield struct {
	ProjectID    string
	Holder       common.Address
	TotalClaimed decimal.Decimal
	LastClaimAt  *time.Time
}
