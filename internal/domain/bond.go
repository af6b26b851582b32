package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Bond is the per-project fungible claim token record. TotalSupply is in
// 18-decimal bond units; minting is strictly proportional to collateral
// paid so that yield share tracks capital contributed.
type Bond struct {
	ID          string
	ProjectID   string
	TotalSupply decimal.Decimal
	CreatedAt   time.Time
}

// BondHolding is an investor's balance of one project's bond token.
// Created on first purchase and never deleted; a zero balance is a valid
// terminal state.
type BondHolding struct {
	ProjectID string
	Holder    common.Address
	Balance   decimal.Decimal
	UpdatedAt time.Time
}
