package market

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pvpbtc/btcbattle/pkg/types"
	"go.uber.org/zap"
)

// Market is a single timed pari-mutuel market: wagers go into an above pool
// or a below pool against a fixed target price, and each side's payout
// multiplier is totalPool/sidePool, recomputed on every read. The market
// accepts stakes until its deadline and is permanently closed afterwards.
type Market struct {
	targetPriceCents int64
	closesAt         time.Time
	feedSize         int
	logger           *zap.Logger
	now              func() time.Time

	mu             sync.Mutex
	abovePoolCents int64
	belowPoolCents int64
	aboveBets      int
	belowBets      int
	feed           []types.Stake // newest first, capped at feedSize
}

// Config holds market configuration.
type Config struct {
	TargetPriceCents int64
	Duration         time.Duration
	FeedSize         int
	Logger           *zap.Logger
	Now              func() time.Time // for tests; defaults to time.Now
}

// Snapshot is a consistent read of the market for the HTTP layer. Odds are
// nil until both pools are funded.
type Snapshot struct {
	TargetPriceCents int64         `json:"target_price_cents"`
	AbovePoolCents   int64         `json:"above_pool_cents"`
	BelowPoolCents   int64         `json:"below_pool_cents"`
	AboveBets        int           `json:"above_bets"`
	BelowBets        int           `json:"below_bets"`
	AboveOdds        *float64      `json:"above_odds"`
	BelowOdds        *float64      `json:"below_odds"`
	SecondsRemaining int64         `json:"seconds_remaining"`
	Closed           bool          `json:"closed"`
	Feed             []types.Stake `json:"feed"`
}

// New creates a market that opens now with zero pools and closes after
// cfg.Duration.
func New(cfg Config) *Market {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	m := &Market{
		targetPriceCents: cfg.TargetPriceCents,
		closesAt:         now().Add(cfg.Duration),
		feedSize:         cfg.FeedSize,
		logger:           cfg.Logger,
		now:              now,
	}

	m.logger.Info("market-opened",
		zap.Int64("target-price-cents", cfg.TargetPriceCents),
		zap.Time("closes-at", m.closesAt))

	return m
}

// SubmitStake atomically adds amountCents to the chosen side's pool,
// increments that side's bet count, and records the stake on the activity
// feed. The stake is rejected without any pool mutation when the amount is
// not positive or the deadline has elapsed.
func (m *Market) SubmitStake(userID, username string, side types.Side, amountCents int64) (types.Stake, error) {
	if !side.Valid() {
		StakesRejectedTotal.WithLabelValues("invalid_side").Inc()
		return types.Stake{}, types.NewValidationError("side", "must be above or below")
	}

	if amountCents <= 0 {
		StakesRejectedTotal.WithLabelValues("invalid_amount").Inc()
		return types.Stake{}, types.NewValidationError("amount", "must be positive")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closesAt.After(m.now()) {
		StakesRejectedTotal.WithLabelValues("market_closed").Inc()
		return types.Stake{}, types.ErrMarketClosed
	}

	stake := types.Stake{
		ID:          uuid.NewString(),
		UserID:      userID,
		Username:    username,
		Side:        side,
		AmountCents: amountCents,
		PlacedAt:    m.now(),
	}

	if side == types.SideAbove {
		m.abovePoolCents += amountCents
		m.aboveBets++
		AbovePoolCents.Set(float64(m.abovePoolCents))
	} else {
		m.belowPoolCents += amountCents
		m.belowBets++
		BelowPoolCents.Set(float64(m.belowPoolCents))
	}

	// Newest first; evicted entries are gone, the pool totals keep the sum.
	m.feed = append([]types.Stake{stake}, m.feed...)
	if len(m.feed) > m.feedSize {
		m.feed = m.feed[:m.feedSize]
	}

	StakesAcceptedTotal.WithLabelValues(string(side)).Inc()
	StakeAmountCents.Observe(float64(amountCents))

	m.logger.Debug("stake-accepted",
		zap.String("stake-id", stake.ID),
		zap.String("user-id", userID),
		zap.String("side", string(side)),
		zap.Int64("amount-cents", amountCents))

	return stake, nil
}

// Odds returns the pari-mutuel payout multiplier for side:
// (abovePool + belowPool) / sidePool. The second return is false until both
// pools are funded, in which case there are no odds yet: a lone pool would
// only pay 1.00x against itself.
func (m *Market) Odds(side types.Side) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.oddsLocked(side)
}

func (m *Market) oddsLocked(side types.Side) (float64, bool) {
	if m.abovePoolCents == 0 || m.belowPoolCents == 0 {
		return 0, false
	}

	sidePool := m.abovePoolCents
	if side == types.SideBelow {
		sidePool = m.belowPoolCents
	}

	total := m.abovePoolCents + m.belowPoolCents
	return float64(total) / float64(sidePool), true
}

// TimeRemaining returns the time left until the deadline, clamped at zero.
func (m *Market) TimeRemaining() time.Duration {
	remaining := m.closesAt.Sub(m.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Closed reports whether the deadline has elapsed. A closed market never
// reopens.
func (m *Market) Closed() bool {
	return m.TimeRemaining() == 0
}

// PotentialPayoutCents returns the payout the stake would earn at the
// current odds. The value is informational only: the pools keep moving until
// the market closes. The second return is false while the market has no odds
// yet.
func (m *Market) PotentialPayoutCents(stake types.Stake) (int64, bool) {
	odds, ok := m.Odds(stake.Side)
	if !ok {
		return 0, false
	}
	return int64(float64(stake.AmountCents) * odds), true
}

// Snapshot returns a consistent view of pools, counts, odds, and the recent
// activity feed.
func (m *Market) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		TargetPriceCents: m.targetPriceCents,
		AbovePoolCents:   m.abovePoolCents,
		BelowPoolCents:   m.belowPoolCents,
		AboveBets:        m.aboveBets,
		BelowBets:        m.belowBets,
		SecondsRemaining: int64(m.TimeRemaining().Seconds()),
		Closed:           m.closesAt.Sub(m.now()) <= 0,
		Feed:             make([]types.Stake, len(m.feed)),
	}
	copy(snap.Feed, m.feed)

	if odds, ok := m.oddsLocked(types.SideAbove); ok {
		snap.AboveOdds = &odds
	}
	if odds, ok := m.oddsLocked(types.SideBelow); ok {
		snap.BelowOdds = &odds
	}

	return snap
}
