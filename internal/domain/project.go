package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ProjectStatus is the lifecycle state of an infrastructure project.
// Transitions are one-directional: Pending → Funding → Active → Completed,
// with Failed reachable from any non-terminal state. Completed and Failed
// are terminal.
type ProjectStatus string

const (
	ProjectPending   ProjectStatus = "pending"
	ProjectFunding   ProjectStatus = "funding"
	ProjectActive    ProjectStatus = "active"
	ProjectCompleted ProjectStatus = "completed"
	ProjectFailed    ProjectStatus = "failed"
)

// Terminal reports whether no further status transition is accepted.
func (s ProjectStatus) Terminal() bool {
	return s == ProjectCompleted || s == ProjectFailed
}

// Project is the authoritative registry record for a funded infrastructure
// project. FundingGoal, FundingRaised, and BondPrice carry 6-decimal
// stablecoin semantics. FundingRaised may exceed FundingGoal briefly:
// over-subscription is possible up to the moment the status flips to Active.
type Project struct {
	ID            string
	Sponsor       common.Address
	MetadataURI   string
	FundingGoal   decimal.Decimal
	FundingRaised decimal.Decimal
	BondPrice     decimal.Decimal
	Status        ProjectStatus
	FailReason    string
	BondID        string
	MarketID      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Milestone is a discrete checkpoint in a project's execution, addressable
// by a contiguous zero-based index. Mutated only by oracle verification,
// monotonically pending → completed.
type Milestone struct {
	ProjectID   string
	Index       int
	Description string
	TargetDate  time.Time
	Completed   bool
	CompletedAt *time.Time
	EvidenceURI string
	DataSources []string
	Confidence  int // 0-100
}
