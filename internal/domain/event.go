package domain

import (
	"context"
	"time"
)

// Event types emitted at every state transition. The indexer reconstructs
// entity deltas from the payload without re-querying the core.
const (
	EventProjectRegistered    = "project_registered"
	EventProjectStatusChanged = "project_status_changed"
	EventProjectFunded        = "project_funded"
	EventProjectCompleted     = "project_completed"
	EventProjectFailed        = "project_failed"
	EventBondCreated          = "bond_created"
	EventBondPurchased        = "bond_purchased"
	EventBondTransferred      = "bond_transferred"
	EventMilestonesSetup      = "milestones_setup"
	EventMilestoneVerified    = "milestone_verified"
	EventMarketOpened         = "market_opened"
	EventMarketTraded         = "market_traded"
	EventMarketResolved       = "market_resolved"
	EventYieldDeposited       = "yield_deposited"
	EventYieldClaimed         = "yield_claimed"
	EventWinningsClaimed      = "winnings_claimed"
	EventRoleGranted          = "role_granted"
	EventRoleRevoked          = "role_revoked"
	EventCollateralDeposited  = "collateral_deposited"
)

// Event is a domain event. ID is the keccak-256 digest of the canonical
// payload plus a nonce, hex-encoded.
type Event struct {
	ID        string
	Type      string
	ProjectID string
	MarketID  string
	Payload   map[string]any
	CreatedAt time.Time
}

// EventBus publishes domain events to external consumers (indexer,
// websocket hub). Publishing is best-effort relative to the committed
// state change; the durable record lives in the EventStore.
type EventBus interface {
	Publish(ctx context.Context, ev Event) error
}
