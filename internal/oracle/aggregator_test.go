package oracle

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infrabond/core/internal/auth"
	"github.com/infrabond/core/internal/domain"
	"github.com/infrabond/core/internal/events"
	"github.com/infrabond/core/internal/market"
	"github.com/infrabond/core/internal/registry"
	"github.com/infrabond/core/internal/store/memory"
	"github.com/infrabond/core/internal/treasury"
)

var (
	operator = common.HexToAddress("0x0000000000000000000000000000000000000001")
	oracle   = common.HexToAddress("0x0000000000000000000000000000000000000e01")
	sponsor  = common.HexToAddress("0x00000000000000000000000000000000000000f1")
)

type fixture struct {
	agg     *Aggregator
	reg     *registry.Service
	markets *market.Service
	now     time.Time
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	roles := auth.New()
	roles.Grant(operator, auth.RoleOperator)
	roles.Grant(oracle, auth.RoleOracle)
	emitter := events.NewEmitter(memory.NewEventStore(), events.NewMemoryBus(), logger)
	locker := memory.NewLocker()

	reg := registry.New(memory.NewProjectStore(), locker, roles, emitter, logger)
	funds := treasury.NewLedger(memory.NewBalanceStore(), roles, emitter, logger)
	markets := market.New(memory.NewMarketStore(), memory.NewTradeStore(), memory.NewOutcomeStore(),
		reg, funds, locker, roles, emitter, nil, logger)
	agg := New(memory.NewMilestoneStore(), reg, reg, markets, locker, roles, emitter, cfg, logger)

	f := &fixture{agg: agg, reg: reg, markets: markets, now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	f.agg.clock = func() time.Time { return f.now }
	return f
}

// activeProject registers a project, funds it to goal, and opens its
// market, leaving it Active with an unresolved market.
func (f *fixture) activeProject(t *testing.T) domain.Project {
	t.Helper()
	ctx := context.Background()

	p, err := f.reg.Register(ctx, sponsor, "ipfs://meta", decimal.NewFromInt(1000), decimal.NewFromInt(10))
	require.NoError(t, err)
	_, err = f.reg.OpenFunding(ctx, oracle, p.ID)
	require.NoError(t, err)
	p, err = f.reg.RecordFunding(ctx, p.ID, decimal.NewFromInt(1000))
	require.NoError(t, err)
	require.Equal(t, domain.ProjectActive, p.Status)

	_, err = f.markets.Open(ctx, operator, p.ID, "Completes all milestones?",
		f.now.Add(90*24*time.Hour), decimal.NewFromInt(100))
	require.NoError(t, err)
	return p
}

func dates(base time.Time, days ...int) []time.Time {
	out := make([]time.Time, len(days))
	for i, d := range days {
		out[i] = base.Add(time.Duration(d) * 24 * time.Hour)
	}
	return out
}

func TestSetupMilestonesValidation(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	p := f.activeProject(t)

	_, err := f.agg.SetupMilestones(ctx, sponsor, p.ID, []string{"a", "b", "c"}, dates(f.now, 1, 2, 3))
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))

	_, err = f.agg.SetupMilestones(ctx, oracle, p.ID, []string{"a", "b"}, dates(f.now, 1, 2, 3))
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = f.agg.SetupMilestones(ctx, oracle, p.ID, []string{"a", "b"}, dates(f.now, 1, 2))
	assert.True(t, errors.Is(err, domain.ErrValidation), "below the minimum milestone count")

	_, err = f.agg.SetupMilestones(ctx, oracle, "missing", []string{"a", "b", "c"}, dates(f.now, 1, 2, 3))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSetupMilestonesIsOneTime(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	p := f.activeProject(t)

	ms, err := f.agg.SetupMilestones(ctx, oracle, p.ID, []string{"a", "b", "c"}, dates(f.now, 10, 20, 30))
	require.NoError(t, err)
	require.Len(t, ms, 3)
	assert.Equal(t, 0, ms[0].Index)

	_, err = f.agg.SetupMilestones(ctx, oracle, p.ID, []string{"x", "y", "z"}, dates(f.now, 1, 2, 3))
	assert.True(t, errors.Is(err, domain.ErrStateConflict))
}

func TestVerifyMilestoneValidation(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	p := f.activeProject(t)
	_, err := f.agg.SetupMilestones(ctx, oracle, p.ID, []string{"a", "b", "c"}, dates(f.now, 10, 20, 30))
	require.NoError(t, err)

	_, err = f.agg.VerifyMilestone(ctx, sponsor, p.ID, 0, true, "", nil, 90)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))

	_, err = f.agg.VerifyMilestone(ctx, oracle, p.ID, 3, true, "", nil, 90)
	assert.True(t, errors.Is(err, domain.ErrValidation), "index out of range")

	_, err = f.agg.VerifyMilestone(ctx, oracle, p.ID, 0, true, "", nil, 101)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = f.agg.VerifyMilestone(ctx, oracle, "missing", 0, true, "", nil, 90)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = f.agg.VerifyMilestone(ctx, oracle, p.ID, 0, true, "ipfs://ev", nil, 90)
	require.NoError(t, err)
	_, err = f.agg.VerifyMilestone(ctx, oracle, p.ID, 0, true, "ipfs://ev2", nil, 95)
	assert.True(t, errors.Is(err, domain.ErrStateConflict), "already completed")
}

func TestVerifyRecordsEvidence(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	p := f.activeProject(t)
	_, err := f.agg.SetupMilestones(ctx, oracle, p.ID, []string{"a", "b", "c"}, dates(f.now, 10, 20, 30))
	require.NoError(t, err)

	m, err := f.agg.VerifyMilestone(ctx, oracle, p.ID, 1, true, "ipfs://evidence",
		[]string{"satellite", "site-report"}, 87)
	require.NoError(t, err)
	assert.True(t, m.Completed)
	require.NotNil(t, m.CompletedAt)
	assert.Equal(t, "ipfs://evidence", m.EvidenceURI)
	assert.Equal(t, []string{"satellite", "site-report"}, m.DataSources)
	assert.Equal(t, 87, m.Confidence)

	done, total, err := f.agg.Progress(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, done)
	assert.Equal(t, 3, total)
}

func TestNegativeVerdictLeavesMilestonePending(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	p := f.activeProject(t)
	_, err := f.agg.SetupMilestones(ctx, oracle, p.ID, []string{"a", "b", "c"}, dates(f.now, 10, 20, 30))
	require.NoError(t, err)

	m, err := f.agg.VerifyMilestone(ctx, oracle, p.ID, 0, false, "ipfs://rejected", nil, 40)
	require.NoError(t, err)
	assert.False(t, m.Completed)
	assert.Nil(t, m.CompletedAt)

	// A later positive verdict is still possible.
	m, err = f.agg.VerifyMilestone(ctx, oracle, p.ID, 0, true, "ipfs://accepted", nil, 92)
	require.NoError(t, err)
	assert.True(t, m.Completed)
}

func TestFinalMilestoneCompletesProjectAndResolvesYes(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	p := f.activeProject(t)

	// All target dates already reached.
	_, err := f.agg.SetupMilestones(ctx, oracle, p.ID, []string{"a", "b", "c"}, dates(f.now, -30, -20, -10))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = f.agg.VerifyMilestone(ctx, oracle, p.ID, i, true, "", nil, 90)
		require.NoError(t, err)
		got, err := f.reg.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ProjectActive, got.Status)
	}

	_, err = f.agg.VerifyMilestone(ctx, oracle, p.ID, 2, true, "", nil, 90)
	require.NoError(t, err)

	got, err := f.reg.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectCompleted, got.Status)

	m, err := f.markets.GetByProject(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, m.Resolved)
	assert.True(t, m.Outcome)
}

func TestCompletionWaitsForTargetDate(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	p := f.activeProject(t)

	// Final target date still in the future: early verification of every
	// milestone must not complete the project.
	_, err := f.agg.SetupMilestones(ctx, oracle, p.ID, []string{"a", "b", "c"}, dates(f.now, -10, -5, 30))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = f.agg.VerifyMilestone(ctx, oracle, p.ID, i, true, "", nil, 90)
		require.NoError(t, err)
	}

	got, err := f.reg.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectActive, got.Status)
	m, err := f.markets.GetByProject(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, m.Resolved)
}

func TestCompletionPolicyDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CompletionRequiresTargetDate = false
	f := newFixture(t, cfg)
	ctx := context.Background()
	p := f.activeProject(t)

	_, err := f.agg.SetupMilestones(ctx, oracle, p.ID, []string{"a", "b", "c"}, dates(f.now, -10, -5, 30))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = f.agg.VerifyMilestone(ctx, oracle, p.ID, i, true, "", nil, 90)
		require.NoError(t, err)
	}

	got, err := f.reg.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectCompleted, got.Status, "early completion allowed when the policy is off")
}

func TestMarkFailedOverridesAndResolvesNo(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	p := f.activeProject(t)

	err := f.agg.MarkFailed(ctx, sponsor, p.ID, "nope")
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))

	require.NoError(t, f.agg.MarkFailed(ctx, oracle, p.ID, "sponsor insolvent"))

	got, err := f.reg.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectFailed, got.Status)
	assert.Equal(t, "sponsor insolvent", got.FailReason)

	m, err := f.markets.GetByProject(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, m.Resolved)
	assert.False(t, m.Outcome)

	// Failed is terminal.
	err = f.agg.MarkFailed(ctx, oracle, p.ID, "again")
	assert.True(t, errors.Is(err, domain.ErrStateConflict))
}

func TestMarkFailedBeforeActivation(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	p, err := f.reg.Register(ctx, sponsor, "ipfs://meta", decimal.NewFromInt(1000), decimal.NewFromInt(10))
	require.NoError(t, err)

	require.NoError(t, f.agg.MarkFailed(ctx, oracle, p.ID, "review rejected"))
	got, err := f.reg.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectFailed, got.Status)
}

func TestFailOverdueSweep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OverdueGrace = 7 * 24 * time.Hour
	f := newFixture(t, cfg)
	ctx := context.Background()

	overdue := f.activeProject(t)
	_, err := f.agg.SetupMilestones(ctx, oracle, overdue.ID, []string{"a", "b", "c"}, dates(f.now, -60, -40, -20))
	require.NoError(t, err)

	inGrace := f.activeProject(t)
	_, err = f.agg.SetupMilestones(ctx, oracle, inGrace.ID, []string{"a", "b", "c"}, dates(f.now, -10, -6, -3))
	require.NoError(t, err)

	_, err = f.agg.FailOverdue(ctx, sponsor, f.now)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))

	failed, err := f.agg.FailOverdue(ctx, oracle, f.now)
	require.NoError(t, err)
	require.Equal(t, []string{overdue.ID}, failed)

	got, err := f.reg.Get(ctx, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectFailed, got.Status)
	m, err := f.markets.GetByProject(ctx, overdue.ID)
	require.NoError(t, err)
	assert.True(t, m.Resolved)
	assert.False(t, m.Outcome)

	got, err = f.reg.Get(ctx, inGrace.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectActive, got.Status)
}

func TestFailOverdueSkipsFullyVerified(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	// Every milestone verified but completion blocked by a future final
	// target date: the project is on track, not overdue.
	p := f.activeProject(t)
	_, err := f.agg.SetupMilestones(ctx, oracle, p.ID, []string{"a", "b", "c"}, dates(f.now, -400, -300, 30))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = f.agg.VerifyMilestone(ctx, oracle, p.ID, i, true, "", nil, 90)
		require.NoError(t, err)
	}

	failed, err := f.agg.FailOverdue(ctx, oracle, f.now)
	require.NoError(t, err)
	assert.Empty(t, failed)
}
