// Package sweeper cancels stale searching predictions on a timer so the
// matchmaking pool does not accumulate abandoned entries.
package sweeper

import (
	"context"
	"time"

	"github.com/pvpbtc/btcbattle/internal/notify"
	"github.com/pvpbtc/btcbattle/internal/store"
	"go.uber.org/zap"
)

// Sweeper periodically expires searching predictions older than MaxAge.
type Sweeper struct {
	store    store.PredictionStore
	bus      notify.Bus
	logger   *zap.Logger
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time
}

// Config holds sweeper configuration.
type Config struct {
	Store    store.PredictionStore
	Bus      notify.Bus
	Logger   *zap.Logger
	Interval time.Duration
	MaxAge   time.Duration
	Now      func() time.Time // for tests; defaults to time.Now
}

// New creates a sweeper.
func New(cfg *Config) *Sweeper {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Sweeper{
		store:    cfg.Store,
		bus:      cfg.Bus,
		logger:   cfg.Logger,
		interval: cfg.Interval,
		maxAge:   cfg.MaxAge,
		now:      now,
	}
}

// Start runs the sweep loop until ctx is cancelled. Blocking; call in a
// goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("sweeper-started",
		zap.Duration("interval", s.interval),
		zap.Duration("max_age", s.maxAge))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper-stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single expiry pass. Failures are logged and retried on
// the next tick.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	cutoff := s.now().Add(-s.maxAge)

	swept, err := s.store.ExpireSearching(ctx, cutoff)
	if err != nil {
		SweepErrorsTotal.Inc()
		s.logger.Error("sweep-failed", zap.Error(err))
		return
	}

	if swept == 0 {
		return
	}

	PredictionsExpiredTotal.Add(float64(swept))
	s.logger.Info("predictions-expired",
		zap.Int64("count", swept),
		zap.Time("cutoff", cutoff))

	if err := s.bus.Publish(ctx, notify.ChannelPredictions, notify.Event{
		Type:      notify.EventPredictionExpired,
		Payload:   map[string]int64{"count": swept},
		Timestamp: s.now(),
	}); err != nil {
		s.logger.Warn("expiry-event-publish-failed", zap.Error(err))
	}
}
