// Package simulation generates demo traffic: a random-walk BTC price feed
// and a stream of random pool bets. It drives the public APIs of the market
// and notify packages only, so the simulated load exercises the same paths
// as real clients.
package simulation

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pvpbtc/btcbattle/internal/market"
	"github.com/pvpbtc/btcbattle/internal/notify"
	"github.com/pvpbtc/btcbattle/pkg/types"
	"go.uber.org/zap"
)

// Price walk bounds, in cents.
const (
	priceStartCents int64 = 45_000_00
	priceFloorCents int64 = 40_000_00
	priceCeilCents  int64 = 50_000_00
	priceStepCents  int64 = 500_00 // max move per tick, centered on zero
)

// Bet generation bounds.
const (
	betMinCents   int64 = 100_00
	betSpanCents  int64 = 500_00 // bets land in [min, min+span)
	aboveBias           = 0.6    // share of bets on the above side
)

//nolint:gochecknoglobals // fixed demo roster
var simUsernames = []string{
	"@CryptoWolf2024", "@BTCMaximalist", "@DiamondHandsDAO", "@SatoshiFollower",
	"@CoinMaster88", "@BlockchainBro", "@CryptoPumper", "@HODLgang",
	"@BitcoinBull", "@AltcoinAlpha", "@DegenTrader", "@CryptoWhale42",
	"@SatStackr", "@BTCBeliever", "@CoinFlipKing", "@CryptoSage",
	"@DigitalGold", "@BlockRewards", "@CryptoNinja", "@BitBeast",
}

// PriceFeed holds the simulated BTC price. Reads are lock-free so handlers
// can sample the current price on every request.
type PriceFeed struct {
	bus    notify.Bus
	logger *zap.Logger
	rng    *rand.Rand

	current  atomic.Int64
	interval time.Duration
}

// PriceFeedConfig holds price feed configuration.
type PriceFeedConfig struct {
	Bus      notify.Bus
	Logger   *zap.Logger
	Interval time.Duration
	Seed     int64 // for tests; 0 seeds from the clock
}

// NewPriceFeed creates a price feed starting at the walk's midpoint.
func NewPriceFeed(cfg *PriceFeedConfig) *PriceFeed {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	f := &PriceFeed{
		bus:      cfg.Bus,
		logger:   cfg.Logger,
		rng:      rand.New(rand.NewSource(seed)),
		interval: cfg.Interval,
	}
	f.current.Store(priceStartCents)
	return f
}

// Current returns the latest simulated price in cents.
func (f *PriceFeed) Current() int64 {
	return f.current.Load()
}

// Start runs the price walk until ctx is cancelled. Blocking; call in a
// goroutine.
func (f *PriceFeed) Start(ctx context.Context) {
	f.logger.Info("price-feed-started",
		zap.Int64("start_cents", priceStartCents),
		zap.Duration("interval", f.interval))

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("price-feed-stopped")
			return
		case <-ticker.C:
			price := f.Step()
			if err := f.bus.Publish(ctx, notify.ChannelMarket, notify.Event{
				Type:      notify.EventPriceUpdate,
				Payload:   map[string]int64{"price_cents": price},
				Timestamp: time.Now(),
			}); err != nil {
				f.logger.Warn("price-event-publish-failed", zap.Error(err))
			}
		}
	}
}

// Step advances the walk one tick and returns the new price.
func (f *PriceFeed) Step() int64 {
	delta := f.rng.Int63n(priceStepCents) - priceStepCents/2

	price := f.current.Load() + delta
	if price < priceFloorCents {
		price = priceFloorCents
	}
	if price > priceCeilCents {
		price = priceCeilCents
	}

	f.current.Store(price)
	return price
}

// BetSimulator submits random pool stakes against the market.
type BetSimulator struct {
	market   *market.Market
	logger   *zap.Logger
	rng      *rand.Rand
	interval time.Duration
}

// BetSimulatorConfig holds bet simulator configuration.
type BetSimulatorConfig struct {
	Market   *market.Market
	Logger   *zap.Logger
	Interval time.Duration
	Seed     int64 // for tests; 0 seeds from the clock
}

// NewBetSimulator creates a bet simulator.
func NewBetSimulator(cfg *BetSimulatorConfig) *BetSimulator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &BetSimulator{
		market:   cfg.Market,
		logger:   cfg.Logger,
		rng:      rand.New(rand.NewSource(seed)),
		interval: cfg.Interval,
	}
}

// Start submits one random stake per tick until ctx is cancelled or the
// market closes. Blocking; call in a goroutine.
func (s *BetSimulator) Start(ctx context.Context) {
	s.logger.Info("bet-simulator-started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("bet-simulator-stopped")
			return
		case <-ticker.C:
			if s.market.Closed() {
				s.logger.Info("bet-simulator-stopped", zap.String("reason", "market closed"))
				return
			}
			s.PlaceOne()
		}
	}
}

// PlaceOne submits a single random stake.
func (s *BetSimulator) PlaceOne() {
	side := s.RandomSide()
	amountCents := betMinCents + s.rng.Int63n(betSpanCents)
	username := simUsernames[s.rng.Intn(len(simUsernames))]

	_, err := s.market.SubmitStake(uuid.NewString(), username, side, amountCents)
	if err != nil {
		s.logger.Debug("simulated-stake-rejected", zap.Error(err))
	}
}

// RandomSide picks a side with the above bias.
func (s *BetSimulator) RandomSide() types.Side {
	if s.rng.Float64() < aboveBias {
		return types.SideAbove
	}
	return types.SideBelow
}
