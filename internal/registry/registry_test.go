package registry

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infrabond/core/internal/auth"
	"github.com/infrabond/core/internal/domain"
	"github.com/infrabond/core/internal/events"
	"github.com/infrabond/core/internal/store/memory"
)

var (
	oracle  = common.HexToAddress("0x0000000000000000000000000000000000000e01")
	sponsor = common.HexToAddress("0x00000000000000000000000000000000000000f1")
)

func newService(t *testing.T) *Service {
	t.Helper()
	roles := auth.New()
	roles.Grant(oracle, auth.RoleOracle)
	logger := slog.New(slog.DiscardHandler)
	emitter := events.NewEmitter(memory.NewEventStore(), events.NewMemoryBus(), logger)
	return New(memory.NewProjectStore(), memory.NewLocker(), roles, emitter, logger)
}

func register(t *testing.T, s *Service, goal int64) domain.Project {
	t.Helper()
	p, err := s.Register(context.Background(), sponsor, "ipfs://meta", decimal.NewFromInt(goal), decimal.NewFromInt(10))
	require.NoError(t, err)
	return p
}

func TestRegisterValidation(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	_, err := s.Register(ctx, sponsor, "uri", decimal.Zero, decimal.NewFromInt(10))
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = s.Register(ctx, sponsor, "uri", decimal.NewFromInt(100), decimal.NewFromInt(-1))
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestRegisterStartsPending(t *testing.T) {
	s := newService(t)
	p := register(t, s, 50000)
	assert.Equal(t, domain.ProjectPending, p.Status)
	assert.True(t, p.FundingRaised.IsZero())
}

func TestOpenFunding(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	p := register(t, s, 50000)

	_, err := s.OpenFunding(ctx, sponsor, p.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))

	got, err := s.OpenFunding(ctx, oracle, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectFunding, got.Status)

	// Already past Pending.
	_, err = s.OpenFunding(ctx, oracle, p.ID)
	assert.True(t, errors.Is(err, domain.ErrStateConflict))
}

func TestUpdateStatusRequiresOracle(t *testing.T) {
	s := newService(t)
	p := register(t, s, 50000)

	_, err := s.UpdateStatus(context.Background(), sponsor, p.ID, domain.ProjectFunding, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestStatusTransitions(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	p := register(t, s, 50000)

	// Pending → Active skips Funding: rejected.
	_, err := s.UpdateStatus(ctx, oracle, p.ID, domain.ProjectActive, "")
	assert.True(t, errors.Is(err, domain.ErrStateConflict))

	got, err := s.UpdateStatus(ctx, oracle, p.ID, domain.ProjectFunding, "")
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectFunding, got.Status)

	// Funding → Completed skips Active: rejected.
	_, err = s.UpdateStatus(ctx, oracle, p.ID, domain.ProjectCompleted, "")
	assert.True(t, errors.Is(err, domain.ErrStateConflict))

	got, err = s.UpdateStatus(ctx, oracle, p.ID, domain.ProjectFailed, "sponsor default")
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectFailed, got.Status)
	assert.Equal(t, "sponsor default", got.FailReason)

	// Terminal: no transition accepted out of Failed.
	_, err = s.UpdateStatus(ctx, oracle, p.ID, domain.ProjectFunding, "")
	assert.True(t, errors.Is(err, domain.ErrStateConflict))
}

func TestUpdateStatusUnknownProject(t *testing.T) {
	s := newService(t)
	_, err := s.UpdateStatus(context.Background(), oracle, "missing", domain.ProjectFunding, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRecordFundingActivatesAtExactGoal(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	p := register(t, s, 50000)
	_, err := s.UpdateStatus(ctx, oracle, p.ID, domain.ProjectFunding, "")
	require.NoError(t, err)

	// One unit (10^-6) below the goal: still Funding.
	almost := decimal.NewFromInt(50000).Sub(decimal.New(1, -6))
	got, err := s.RecordFunding(ctx, p.ID, almost)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectFunding, got.Status)

	got, err = s.RecordFunding(ctx, p.ID, decimal.New(1, -6))
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectActive, got.Status)
	assert.True(t, got.FundingRaised.Equal(decimal.NewFromInt(50000)))
}

func TestRecordFundingAllowsOversubscription(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	p := register(t, s, 100)
	_, err := s.UpdateStatus(ctx, oracle, p.ID, domain.ProjectFunding, "")
	require.NoError(t, err)

	got, err := s.RecordFunding(ctx, p.ID, decimal.NewFromInt(250))
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectActive, got.Status)
	assert.True(t, got.FundingRaised.Equal(decimal.NewFromInt(250)))
}

func TestRecordFundingValidation(t *testing.T) {
	s := newService(t)
	p := register(t, s, 100)
	_, err := s.RecordFunding(context.Background(), p.ID, decimal.Zero)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}
