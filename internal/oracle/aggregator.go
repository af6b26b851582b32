// Package oracle implements the milestone verification aggregator: the
// role-gated overlay that ties milestone evidence to the project state
// machine and to outcome-market resolution. Every mutation runs inside
// one per-project critical section so a verification that completes a
// project can never leave its market unresolved.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/infrabond/core/internal/auth"
	"github.com/infrabond/core/internal/domain"
	"github.com/infrabond/core/internal/events"
)

// Config tunes the aggregator's verification policy.
type Config struct {
	// MinMilestones is the smallest milestone set a project may carry.
	MinMilestones int

	// CompletionRequiresTargetDate delays project completion until the
	// final milestone's target date has been reached, even when all
	// milestones verify early.
	CompletionRequiresTargetDate bool

	// OverdueGrace is how long past the final milestone's target date an
	// Active project may run before the FailOverdue sweep fails it.
	OverdueGrace time.Duration
}

// DefaultConfig mirrors the deployed verification policy.
func DefaultConfig() Config {
	return Config{
		MinMilestones:                3,
		CompletionRequiresTargetDate: true,
		OverdueGrace:                 30 * 24 * time.Hour,
	}
}

// ProjectReader is the registry read surface the aggregator uses.
type ProjectReader interface {
	Get(ctx context.Context, projectID string) (domain.Project, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Project, error)
}

// Aggregator implements the oracle overlay. It owns no entity storage
// beyond milestones; project status flows through the StatusWriter and
// market resolution through the MarketResolver, both invoked inside the
// project critical section the aggregator holds.
type Aggregator struct {
	milestones domain.MilestoneStore
	projects   ProjectReader
	status     domain.StatusWriter
	resolver   domain.MarketResolver
	locker     domain.Locker
	roles      *auth.Roles
	emitter    *events.Emitter
	cfg        Config
	clock      domain.Clock
	logger     *slog.Logger
}

// New creates an Aggregator.
func New(
	milestones domain.MilestoneStore,
	projects ProjectReader,
	status domain.StatusWriter,
	resolver domain.MarketResolver,
	locker domain.Locker,
	roles *auth.Roles,
	emitter *events.Emitter,
	cfg Config,
	logger *slog.Logger,
) *Aggregator {
	if cfg.MinMilestones <= 0 {
		cfg.MinMilestones = DefaultConfig().MinMilestones
	}
	return &Aggregator{
		milestones: milestones,
		projects:   projects,
		status:     status,
		resolver:   resolver,
		locker:     locker,
		roles:      roles,
		emitter:    emitter,
		cfg:        cfg,
		clock:      time.Now,
		logger:     logger.With(slog.String("component", "oracle")),
	}
}

// SetupMilestones registers the one-time milestone plan for a project.
func (a *Aggregator) SetupMilestones(ctx context.Context, caller common.Address, projectID string, descriptions []string, targetDates []time.Time) ([]domain.Milestone, error) {
	if err := a.roles.Require(caller, auth.RoleOracle); err != nil {
		return nil, err
	}
	if len(descriptions) != len(targetDates) {
		return nil, fmt.Errorf("%d descriptions for %d target dates: %w",
			len(descriptions), len(targetDates), domain.ErrValidation)
	}
	if len(descriptions) < a.cfg.MinMilestones {
		return nil, fmt.Errorf("at least %d milestones required, got %d: %w",
			a.cfg.MinMilestones, len(descriptions), domain.ErrValidation)
	}

	release, err := a.locker.Acquire(ctx, domain.ProjectLockKey(projectID))
	if err != nil {
		return nil, fmt.Errorf("oracle: lock project %s: %w", projectID, err)
	}
	defer release()

	if _, err := a.projects.Get(ctx, projectID); err != nil {
		return nil, err
	}

	ms := make([]domain.Milestone, len(descriptions))
	for i, desc := range descriptions {
		if desc == "" {
			return nil, fmt.Errorf("milestone %d has no description: %w", i, domain.ErrValidation)
		}
		ms[i] = domain.Milestone{
			ProjectID:   projectID,
			Index:       i,
			Description: desc,
			TargetDate:  targetDates[i].UTC(),
		}
	}
	if err := a.milestones.InsertBatch(ctx, ms); err != nil {
		return nil, err
	}

	a.logger.InfoContext(ctx, "milestones set up",
		slog.String("project_id", projectID), slog.Int("count", len(ms)))
	a.emitter.Emit(ctx, domain.EventMilestonesSetup, projectID, "", map[string]any{
		"project_id": projectID,
		"count":      len(ms),
	})
	return ms, nil
}

// VerifyMilestone records an oracle verdict on one milestone. A positive
// verdict on the last pending milestone completes the project and
// force-resolves its market YES, atomically within the project critical
// section.
func (a *Aggregator) VerifyMilestone(ctx context.Context, caller common.Address, projectID string, index int, verified bool, evidenceURI string, dataSources []string, confidence int) (domain.Milestone, error) {
	if err := a.roles.Require(caller, auth.RoleOracle); err != nil {
		return domain.Milestone{}, err
	}
	if confidence < 0 || confidence > 100 {
		return domain.Milestone{}, fmt.Errorf("confidence %d out of [0,100]: %w", confidence, domain.ErrValidation)
	}

	release, err := a.locker.Acquire(ctx, domain.ProjectLockKey(projectID))
	if err != nil {
		return domain.Milestone{}, fmt.Errorf("oracle: lock project %s: %w", projectID, err)
	}
	defer release()

	p, err := a.projects.Get(ctx, projectID)
	if err != nil {
		return domain.Milestone{}, err
	}
	ms, err := a.milestones.ListByProject(ctx, projectID)
	if err != nil {
		return domain.Milestone{}, err
	}
	if index < 0 || index >= len(ms) {
		return domain.Milestone{}, fmt.Errorf("milestone index %d out of range [0,%d): %w",
			index, len(ms), domain.ErrValidation)
	}
	m := ms[index]
	if m.Completed {
		return domain.Milestone{}, fmt.Errorf("milestone %s[%d] already completed: %w",
			projectID, index, domain.ErrStateConflict)
	}

	now := a.clock().UTC()
	m.EvidenceURI = evidenceURI
	m.DataSources = dataSources
	m.Confidence = confidence
	if verified {
		m.Completed = true
		m.CompletedAt = &now
	}
	if err := a.milestones.Update(ctx, m); err != nil {
		return domain.Milestone{}, err
	}
	ms[index] = m

	a.logger.InfoContext(ctx, "milestone verified",
		slog.String("project_id", projectID),
		slog.Int("index", index),
		slog.Bool("verified", verified),
		slog.Int("confidence", confidence),
	)
	a.emitter.Emit(ctx, domain.EventMilestoneVerified, projectID, "", map[string]any{
		"project_id":   projectID,
		"index":        index,
		"verified":     verified,
		"evidence_uri": evidenceURI,
		"data_sources": dataSources,
		"confidence":   confidence,
	})

	if verified && p.Status == domain.ProjectActive && allCompleted(ms) && a.completionDue(ms, now) {
		if err := a.completeLocked(ctx, p); err != nil {
			return domain.Milestone{}, err
		}
	}
	return m, nil
}

// completionDue applies the target-date policy to a fully verified
// milestone set.
func (a *Aggregator) completionDue(ms []domain.Milestone, now time.Time) bool {
	if !a.cfg.CompletionRequiresTargetDate {
		return true
	}
	final := ms[len(ms)-1]
	return !now.Before(final.TargetDate)
}

// completeLocked transitions the project to Completed and force-resolves
// its market YES. Caller holds the project critical section.
func (a *Aggregator) completeLocked(ctx context.Context, p domain.Project) error {
	if _, err := a.status.SetStatus(ctx, p.ID, domain.ProjectCompleted, ""); err != nil {
		return fmt.Errorf("oracle: complete project %s: %w", p.ID, err)
	}
	if err := a.resolver.ResolveForProject(ctx, p.ID, true); err != nil {
		return fmt.Errorf("oracle: resolve market for %s: %w", p.ID, err)
	}
	a.logger.InfoContext(ctx, "project completed", slog.String("project_id", p.ID))
	a.emitter.Emit(ctx, domain.EventProjectCompleted, p.ID, p.MarketID, map[string]any{
		"project_id": p.ID,
	})
	return nil
}

// MarkFailed fails a project unconditionally and force-resolves its
// market NO.
func (a *Aggregator) MarkFailed(ctx context.Context, caller common.Address, projectID, reason string) error {
	if err := a.roles.Require(caller, auth.RoleOracle); err != nil {
		return err
	}
	release, err := a.locker.Acquire(ctx, domain.ProjectLockKey(projectID))
	if err != nil {
		return fmt.Errorf("oracle: lock project %s: %w", projectID, err)
	}
	defer release()

	return a.failLocked(ctx, projectID, reason)
}

func (a *Aggregator) failLocked(ctx context.Context, projectID, reason string) error {
	if _, err := a.status.SetStatus(ctx, projectID, domain.ProjectFailed, reason); err != nil {
		return err
	}
	if err := a.resolver.ResolveForProject(ctx, projectID, false); err != nil {
		return fmt.Errorf("oracle: resolve market for %s: %w", projectID, err)
	}
	a.logger.WarnContext(ctx, "project failed",
		slog.String("project_id", projectID), slog.String("reason", reason))
	a.emitter.Emit(ctx, domain.EventProjectFailed, projectID, "", map[string]any{
		"project_id": projectID,
		"reason":     reason,
	})
	return nil
}

// FailOverdue sweeps Active projects whose final milestone target date
// passed more than the configured grace ago and fails them. Returns the
// IDs of the projects it failed.
func (a *Aggregator) FailOverdue(ctx context.Context, caller common.Address, now time.Time) ([]string, error) {
	if err := a.roles.Require(caller, auth.RoleOracle); err != nil {
		return nil, err
	}
	projects, err := a.projects.List(ctx, domain.ListOpts{})
	if err != nil {
		return nil, err
	}

	var failed []string
	for _, p := range projects {
		if p.Status != domain.ProjectActive {
			continue
		}
		overdue, err := a.isOverdue(ctx, p.ID, now)
		if err != nil {
			return failed, err
		}
		if !overdue {
			continue
		}
		release, err := a.locker.Acquire(ctx, domain.ProjectLockKey(p.ID))
		if err != nil {
			return failed, fmt.Errorf("oracle: lock project %s: %w", p.ID, err)
		}
		// Re-check under the lock: a verification may have raced the sweep.
		overdue, err = a.isOverdue(ctx, p.ID, now)
		if err == nil && overdue {
			err = a.failLocked(ctx, p.ID, "final milestone overdue")
		}
		release()
		if err != nil {
			return failed, err
		}
		failed = append(failed, p.ID)
	}
	return failed, nil
}

func (a *Aggregator) isOverdue(ctx context.Context, projectID string, now time.Time) (bool, error) {
	p, err := a.projects.Get(ctx, projectID)
	if err != nil {
		return false, err
	}
	if p.Status != domain.ProjectActive {
		return false, nil
	}
	ms, err := a.milestones.ListByProject(ctx, projectID)
	if err != nil || len(ms) == 0 {
		return false, err
	}
	if allCompleted(ms) {
		return false, nil
	}
	final := ms[len(ms)-1]
	return now.UTC().After(final.TargetDate.Add(a.cfg.OverdueGrace)), nil
}

// Progress returns completed and total milestone counts.
func (a *Aggregator) Progress(ctx context.Context, projectID string) (completed, total int, err error) {
	if _, err := a.projects.Get(ctx, projectID); err != nil {
		return 0, 0, err
	}
	ms, err := a.milestones.ListByProject(ctx, projectID)
	if err != nil {
		return 0, 0, err
	}
	for _, m := range ms {
		if m.Completed {
			completed++
		}
	}
	return completed, len(ms), nil
}

// Milestones returns the project's milestone set in index order.
func (a *Aggregator) Milestones(ctx context.Context, projectID string) ([]domain.Milestone, error) {
	if _, err := a.projects.Get(ctx, projectID); err != nil {
		return nil, err
	}
	return a.milestones.ListByProject(ctx, projectID)
}

func allCompleted(ms []domain.Milestone) bool {
	for _, m := range ms {
		if !m.Completed {
			return false
		}
	}
	return len(ms) > 0
}
