package app

import (
	"context"
	"fmt"

	"github.com/pvpbtc/btcbattle/internal/identity"
	"github.com/pvpbtc/btcbattle/internal/market"
	"github.com/pvpbtc/btcbattle/internal/matchmaking"
	"github.com/pvpbtc/btcbattle/internal/notify"
	"github.com/pvpbtc/btcbattle/internal/simulation"
	"github.com/pvpbtc/btcbattle/internal/store"
	"github.com/pvpbtc/btcbattle/internal/sweeper"
	"github.com/pvpbtc/btcbattle/pkg/cache"
	"github.com/pvpbtc/btcbattle/pkg/config"
	"github.com/pvpbtc/btcbattle/pkg/healthprobe"
	"github.com/pvpbtc/btcbattle/pkg/httpserver"
	"go.uber.org/zap"
)

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	appStore, err := setupStore(ctx, cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup store: %w", err)
	}

	bus, err := setupBus(ctx, cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup bus: %w", err)
	}

	hub := notify.NewHub(&notify.HubConfig{Bus: bus, Logger: logger})

	poolMarket := market.New(market.Config{
		TargetPriceCents: cfg.MarketTargetPriceCents,
		Duration:         cfg.MarketDuration,
		FeedSize:         cfg.MarketFeedSize,
		Logger:           logger,
	})

	matchSvc := matchmaking.NewService(&matchmaking.Config{
		Store:         appStore,
		Bus:           bus,
		Logger:        logger,
		RetryAttempts: cfg.MatchRetryAttempts,
	})

	poolSweeper := sweeper.New(&sweeper.Config{
		Store:    appStore,
		Bus:      bus,
		Logger:   logger,
		Interval: cfg.SweepInterval,
		MaxAge:   cfg.PredictionMaxAge,
	})

	priceFeed := simulation.NewPriceFeed(&simulation.PriceFeedConfig{
		Bus:      bus,
		Logger:   logger,
		Interval: cfg.SimPriceInterval,
	})

	var betSim *simulation.BetSimulator
	if opts.Simulate {
		betSim = simulation.NewBetSimulator(&simulation.BetSimulatorConfig{
			Market:   poolMarket,
			Logger:   logger,
			Interval: cfg.SimBetInterval,
		})
	}

	healthChecker := healthprobe.New(appStore.Ping)

	httpServer := httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: healthChecker,
		Market:        poolMarket,
		Matchmaking:   matchSvc,
		Store:         appStore,
		Identity:      identity.NewMiddleware(&identity.Config{Users: appStore, Logger: logger}),
		Hub:           hub,
		Bus:           bus,
		Prices:        priceFeed,
	})

	return &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthChecker,
		httpServer:    httpServer,
		store:         appStore,
		bus:           bus,
		hub:           hub,
		market:        poolMarket,
		matchmaking:   matchSvc,
		sweeper:       poolSweeper,
		priceFeed:     priceFeed,
		betSimulator:  betSim,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// setupStore builds the configured store behind a read-through record cache.
func setupStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	var backing store.Store

	if cfg.StorageMode == "postgres" {
		pg, err := store.NewPostgresStore(&store.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres store: %w", err)
		}
		backing = pg
	} else {
		backing = store.NewMemoryStore(&store.MemoryConfig{Logger: logger})
	}

	recordCache, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 100_000, // 10x expected max records
		MaxCost:     10_000,  // record count, not bytes
		BufferItems: 64,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create record cache: %w", err)
	}

	return store.NewCachedStore(&store.CachedConfig{
		Inner:  backing,
		Cache:  recordCache,
		TTL:    cfg.CacheTTL,
		Logger: logger,
	}), nil
}

func setupBus(ctx context.Context, cfg *config.Config, logger *zap.Logger) (notify.Bus, error) {
	if cfg.NotifyMode == "redis" {
		bus, err := notify.NewRedisBus(ctx, &notify.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create redis bus: %w", err)
		}
		return bus, nil
	}

	return notify.NewMemoryBus(&notify.MemoryConfig{Logger: logger}), nil
}
