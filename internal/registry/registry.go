// Package registry is the authoritative project record and status state
// machine. The funding, market, and oracle subsystems read and mutate it
// only through the narrow surfaces it exposes.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/infrabond/core/internal/auth"
	"github.com/infrabond/core/internal/domain"
	"github.com/infrabond/core/internal/events"
)

// validNext is the one-directional transition table. Completed and Failed
// are terminal.
var validNext = map[domain.ProjectStatus]map[domain.ProjectStatus]bool{
	domain.ProjectPending: {domain.ProjectFunding: true, domain.ProjectFailed: true},
	domain.ProjectFunding: {domain.ProjectActive: true, domain.ProjectFailed: true},
	domain.ProjectActive:  {domain.ProjectCompleted: true, domain.ProjectFailed: true},
}

// Service implements the project registry.
type Service struct {
	projects domain.ProjectStore
	locker   domain.Locker
	roles    *auth.Roles
	emitter  *events.Emitter
	clock    domain.Clock
	logger   *slog.Logger
}

// New creates a registry Service.
func New(projects domain.ProjectStore, locker domain.Locker, roles *auth.Roles, emitter *events.Emitter, logger *slog.Logger) *Service {
	return &Service{
		projects: projects,
		locker:   locker,
		roles:    roles,
		emitter:  emitter,
		clock:    time.Now,
		logger:   logger.With(slog.String("component", "registry")),
	}
}

// Register creates a project in Pending status. Anyone may register; the
// sponsor is the caller's identity.
func (s *Service) Register(ctx context.Context, sponsor common.Address, metadataURI string, fundingGoal, bondPrice decimal.Decimal) (domain.Project, error) {
	if !fundingGoal.IsPositive() {
		return domain.Project{}, fmt.Errorf("funding goal must be positive: %w", domain.ErrValidation)
	}
	if !bondPrice.IsPositive() {
		return domain.Project{}, fmt.Errorf("bond price must be positive: %w", domain.ErrValidation)
	}

	now := s.clock().UTC()
	p := domain.Project{
		ID:            uuid.NewString(),
		Sponsor:       sponsor,
		MetadataURI:   metadataURI,
		FundingGoal:   fundingGoal.Truncate(6),
		FundingRaised: decimal.Zero,
		BondPrice:     bondPrice.Truncate(6),
		Status:        domain.ProjectPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.projects.Insert(ctx, p); err != nil {
		return domain.Project{}, fmt.Errorf("registry: insert project: %w", err)
	}

	s.logger.InfoContext(ctx, "project registered",
		slog.String("project_id", p.ID),
		slog.String("sponsor", sponsor.Hex()),
		slog.String("funding_goal", p.FundingGoal.String()),
	)
	s.emitter.Emit(ctx, domain.EventProjectRegistered, p.ID, "", map[string]any{
		"project_id":   p.ID,
		"sponsor":      sponsor.Hex(),
		"metadata_uri": metadataURI,
		"funding_goal": p.FundingGoal.String(),
		"bond_price":   p.BondPrice.String(),
	})
	return p, nil
}

// OpenFunding moves a reviewed project from Pending to Funding. This is
// the approval hook for the off-chain review workflow; the operator or
// the oracle identity may call it.
func (s *Service) OpenFunding(ctx context.Context, caller common.Address, projectID string) (domain.Project, error) {
	if !s.roles.Has(caller, auth.RoleOperator) && !s.roles.Has(caller, auth.RoleOracle) {
		return domain.Project{}, fmt.Errorf("%s may not open funding: %w", caller.Hex(), domain.ErrUnauthorized)
	}
	release, err := s.locker.Acquire(ctx, domain.ProjectLockKey(projectID))
	if err != nil {
		return domain.Project{}, fmt.Errorf("registry: lock project %s: %w", projectID, err)
	}
	defer release()

	return s.SetStatus(ctx, projectID, domain.ProjectFunding, "")
}

// UpdateStatus applies an explicit status transition. Restricted to the
// oracle identity; the oracle aggregator is the usual caller.
func (s *Service) UpdateStatus(ctx context.Context, caller common.Address, projectID string, status domain.ProjectStatus, reason string) (domain.Project, error) {
	if err := s.roles.Require(caller, auth.RoleOracle); err != nil {
		return domain.Project{}, err
	}
	release, err := s.locker.Acquire(ctx, domain.ProjectLockKey(projectID))
	if err != nil {
		return domain.Project{}, fmt.Errorf("registry: lock project %s: %w", projectID, err)
	}
	defer release()

	return s.SetStatus(ctx, projectID, status, reason)
}

// SetStatus validates and applies a transition. It performs no locking or
// authorization of its own: it is the narrow StatusWriter surface handed
// to the oracle aggregator, which composes it inside the project critical
// section it already holds.
func (s *Service) SetStatus(ctx context.Context, projectID string, status domain.ProjectStatus, reason string) (domain.Project, error) {
	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if p.Status.Terminal() {
		return domain.Project{}, fmt.Errorf("project %s is %s (terminal): %w", projectID, p.Status, domain.ErrStateConflict)
	}
	if !validNext[p.Status][status] {
		return domain.Project{}, fmt.Errorf("transition %s → %s not allowed: %w", p.Status, status, domain.ErrStateConflict)
	}

	from := p.Status
	p.Status = status
	if status == domain.ProjectFailed {
		p.FailReason = reason
	}
	p.UpdatedAt = s.clock().UTC()
	if err := s.projects.Update(ctx, p); err != nil {
		return domain.Project{}, fmt.Errorf("registry: update project %s: %w", projectID, err)
	}

	s.logger.InfoContext(ctx, "project status changed",
		slog.String("project_id", projectID),
		slog.String("from", string(from)),
		slog.String("to", string(status)),
	)
	s.emitter.Emit(ctx, domain.EventProjectStatusChanged, projectID, "", map[string]any{
		"project_id": projectID,
		"from":       string(from),
		"to":         string(status),
		"reason":     reason,
	})
	return p, nil
}

// RecordFunding adds raised collateral to the project and auto-transitions
// Funding → Active once the goal is met. It is the narrow FundingRecorder
// surface handed to the bond ledger and must be called inside the caller's
// project critical section.
func (s *Service) RecordFunding(ctx context.Context, projectID string, delta decimal.Decimal) (domain.Project, error) {
	if !delta.IsPositive() {
		return domain.Project{}, fmt.Errorf("funding delta must be positive: %w", domain.ErrValidation)
	}
	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}

	p.FundingRaised = p.FundingRaised.Add(delta)
	p.UpdatedAt = s.clock().UTC()

	activated := p.Status == domain.ProjectFunding && p.FundingRaised.GreaterThanOrEqual(p.FundingGoal)
	if activated {
		p.Status = domain.ProjectActive
	}
	if err := s.projects.Update(ctx, p); err != nil {
		return domain.Project{}, fmt.Errorf("registry: update project %s: %w", projectID, err)
	}

	if activated {
		s.logger.InfoContext(ctx, "project fully funded",
			slog.String("project_id", projectID),
			slog.String("raised", p.FundingRaised.String()),
		)
		s.emitter.Emit(ctx, domain.EventProjectFunded, projectID, "", map[string]any{
			"project_id":     projectID,
			"funding_raised": p.FundingRaised.String(),
			"funding_goal":   p.FundingGoal.String(),
		})
	}
	return p, nil
}

// AttachBond records the bond ledger ID on the project. Called by the bond
// service inside the project critical section.
func (s *Service) AttachBond(ctx context.Context, projectID, bondID string) error {
	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return err
	}
	p.BondID = bondID
	p.UpdatedAt = s.clock().UTC()
	return s.projects.Update(ctx, p)
}

// AttachMarket records the market ID on the project. Called by the market
// service inside the project critical section.
func (s *Service) AttachMarket(ctx context.Context, projectID, marketID string) error {
	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return err
	}
	if p.MarketID != "" {
		return fmt.Errorf("project %s already has market %s: %w", projectID, p.MarketID, domain.ErrStateConflict)
	}
	p.MarketID = marketID
	p.UpdatedAt = s.clock().UTC()
	return s.projects.Update(ctx, p)
}

// Get retrieves a single project.
func (s *Service) Get(ctx context.Context, projectID string) (domain.Project, error) {
	return s.projects.Get(ctx, projectID)
}

// List returns projects, newest first.
func (s *Service) List(ctx context.Context, opts domain.ListOpts) ([]domain.Project, error) {
	return s.projects.List(ctx, opts)
}

var (
	_ domain.FundingRecorder = (*Service)(nil)
	_ domain.StatusWriter    = (*Service)(nil)
)
