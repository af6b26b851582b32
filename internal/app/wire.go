package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/infrabond/core/internal/auth"
	s3blob "github.com/infrabond/core/internal/blob/s3"
	"github.com/infrabond/core/internal/bond"
	"github.com/infrabond/core/internal/cache/redis"
	"github.com/infrabond/core/internal/config"
	"github.com/infrabond/core/internal/domain"
	"github.com/infrabond/core/internal/events"
	"github.com/infrabond/core/internal/market"
	"github.com/infrabond/core/internal/notify"
	"github.com/infrabond/core/internal/oracle"
	"github.com/infrabond/core/internal/registry"
	"github.com/infrabond/core/internal/store/memory"
	"github.com/infrabond/core/internal/store/postgres"
	"github.com/infrabond/core/internal/treasury"
	"github.com/infrabond/core/internal/yield"
)

// stores bundles every persistence interface the services need, filled in
// by either the memory or the postgres driver.
type stores struct {
	projects   domain.ProjectStore
	milestones domain.MilestoneStore
	bonds      domain.BondStore
	holdings   domain.HoldingStore
	markets    domain.MarketStore
	trades     domain.TradeStore
	outcomes   domain.OutcomeStore
	yields     domain.YieldStore
	balances   domain.BalanceStore
	events     domain.EventStore
}

// Dependencies bundles everything the application needs to serve requests.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Roles       *auth.Roles
	MemoryBus   *events.MemoryBus
	Emitter     *events.Emitter
	RateLimiter domain.RateLimiter

	Registry *registry.Service
	Treasury *treasury.Ledger
	Bonds    *bond.Ledger
	Markets  *market.Service
	Yield    *yield.Distributor
	Oracle   *oracle.Aggregator

	Archiver *s3blob.Archiver
	Watcher  *notify.Watcher
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Roles ---
	roles := auth.New()
	for _, addr := range cfg.OracleAddresses() {
		roles.Grant(addr, auth.RoleOracle)
	}
	for _, addr := range cfg.OperatorAddresses() {
		roles.Grant(addr, auth.RoleOperator)
	}
	deps.Roles = roles

	// --- Persistence ---
	st, err := wireStores(ctx, cfg, &closers)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	// --- Locking, eventing, caching ---
	// The in-process bus always exists; the websocket hub reads from it.
	memBus := events.NewMemoryBus()
	deps.MemoryBus = memBus

	var (
		locker domain.Locker      = memory.NewLocker()
		bus    domain.EventBus    = memBus
		prices domain.PriceCache  // nil without redis
	)

	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		locker = redis.NewLocker(redisClient)
		bus = events.NewFanout(memBus, redis.NewEventBus(redisClient))
		prices = redis.NewPriceCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	}

	emitter := events.NewEmitter(st.events, bus, logger)
	deps.Emitter = emitter

	// --- Services ---
	deps.Treasury = treasury.NewLedger(st.balances, roles, emitter, logger)
	deps.Registry = registry.New(st.projects, locker, roles, emitter, logger)
	deps.Bonds = bond.NewLedger(st.bonds, st.holdings, deps.Registry, deps.Treasury, locker, roles, emitter, logger)
	deps.Markets = market.New(st.markets, st.trades, st.outcomes, deps.Registry, deps.Treasury, locker, roles, emitter, prices, logger)
	deps.Yield = yield.New(st.yields, deps.Bonds, deps.Registry, deps.Treasury, locker, emitter, logger)
	deps.Oracle = oracle.New(st.milestones, deps.Registry, deps.Registry, deps.Markets, locker, roles, emitter, oracle.Config{
		MinMilestones:                cfg.Oracle.MinMilestones,
		CompletionRequiresTargetDate: cfg.Oracle.CompletionRequiresTargetDate,
		OverdueGrace:                 cfg.Oracle.OverdueGrace.Duration,
	}, logger)

	// --- S3 archive export ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(s3Client, st.markets, st.trades, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger)
		deps.Watcher = notify.NewWatcher(memBus, notifier)
	}

	return deps, cleanup, nil
}

// wireStores builds the persistence layer for the configured driver.
func wireStores(ctx context.Context, cfg *config.Config, closers *[]func()) (stores, error) {
	switch strings.ToLower(cfg.Storage.Driver) {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return stores{}, fmt.Errorf("wire: postgres: %w", err)
		}
		*closers = append(*closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return stores{}, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		return stores{
			projects:   postgres.NewProjectStore(pool),
			milestones: postgres.NewMilestoneStore(pool),
			bonds:      postgres.NewBondStore(pool),
			holdings:   postgres.NewHoldingStore(pool),
			markets:    postgres.NewMarketStore(pool),
			trades:     postgres.NewTradeStore(pool),
			outcomes:   postgres.NewOutcomeStore(pool),
			yields:     postgres.NewYieldStore(pool),
			balances:   postgres.NewBalanceStore(pool),
			events:     postgres.NewEventStore(pool),
		}, nil

	default: // memory
		return stores{
			projects:   memory.NewProjectStore(),
			milestones: memory.NewMilestoneStore(),
			bonds:      memory.NewBondStore(),
			holdings:   memory.NewHoldingStore(),
			markets:    memory.NewMarketStore(),
			trades:     memory.NewTradeStore(),
			outcomes:   memory.NewOutcomeStore(),
			yields:     memory.NewYieldStore(),
			balances:   memory.NewBalanceStore(),
			events:     memory.NewEventStore(),
		}, nil
	}
}
