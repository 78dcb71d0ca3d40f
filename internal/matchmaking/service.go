// Package matchmaking owns the prediction and battle lifecycle: pairing
// opposite predictions into battles, mutual acceptance, decline, and
// settlement. All state transitions go through the store's atomic methods;
// this package decides, the store enforces.
package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pvpbtc/btcbattle/internal/notify"
	"github.com/pvpbtc/btcbattle/internal/settlement"
	"github.com/pvpbtc/btcbattle/internal/store"
	"github.com/pvpbtc/btcbattle/pkg/types"
	"go.uber.org/zap"
)

// Service drives the prediction and battle lifecycle.
type Service struct {
	store  store.Store
	bus    notify.Bus
	logger *zap.Logger
	now    func() time.Time

	// retryAttempts is how many extra match attempts follow a lost claim
	// race before giving up and leaving the prediction searching.
	retryAttempts int
}

// Config holds matchmaking service configuration.
type Config struct {
	Store         store.Store
	Bus           notify.Bus
	Logger        *zap.Logger
	RetryAttempts int
	Now           func() time.Time // for tests; defaults to time.Now
}

// NewService creates a matchmaking service.
func NewService(cfg *Config) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		store:         cfg.Store,
		bus:           cfg.Bus,
		logger:        cfg.Logger,
		now:           now,
		retryAttempts: cfg.RetryAttempts,
	}
}

// CreatePrediction validates and persists a new prediction, then immediately
// tries to pair it. The returned battle is nil when no opponent was found
// and the prediction stays searching.
func (s *Service) CreatePrediction(ctx context.Context, p *types.Prediction) (*types.Prediction, *types.Battle, error) {
	if err := validatePrediction(p); err != nil {
		return nil, nil, err
	}

	now := s.now()
	pred := &types.Prediction{
		ID:                  uuid.NewString(),
		UserID:              p.UserID,
		PredictedPriceCents: p.PredictedPriceCents,
		Direction:           p.Direction,
		BetAmountCents:      p.BetAmountCents,
		ReferencePriceCents: p.ReferencePriceCents,
		Status:              types.PredictionSearching,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.store.CreatePrediction(ctx, pred); err != nil {
		return nil, nil, fmt.Errorf("create prediction: %w", err)
	}

	PredictionsCreatedTotal.WithLabelValues(string(pred.Direction)).Inc()
	s.logger.Info("prediction-created",
		zap.String("prediction_id", pred.ID),
		zap.String("user_id", pred.UserID),
		zap.String("direction", string(pred.Direction)),
		zap.Int64("bet_amount_cents", pred.BetAmountCents))

	s.publish(ctx, notify.ChannelPredictions, notify.Event{
		Type:      notify.EventPredictionCreated,
		Payload:   pred,
		Timestamp: now,
	})

	battle, err := s.Match(ctx, pred)
	if err != nil {
		// The prediction stands; pairing can succeed later.
		s.logger.Warn("match-attempt-failed",
			zap.String("prediction_id", pred.ID),
			zap.Error(err))
		return pred, nil, nil
	}

	return pred, battle, nil
}

// Match tries to pair the prediction with the earliest compatible searching
// opponent. A lost claim race is retried against a fresh candidate list up
// to the configured attempt budget. Returns (nil, nil) when no opponent
// exists.
func (s *Service) Match(ctx context.Context, p *types.Prediction) (*types.Battle, error) {
	for attempt := 0; attempt <= s.retryAttempts; attempt++ {
		candidates, err := s.store.ListSearching(ctx)
		if err != nil {
			return nil, fmt.Errorf("list candidates: %w", err)
		}

		opponent := FindCandidate(p, candidates)
		if opponent == nil {
			return nil, nil
		}

		battle, err := s.claim(ctx, p, opponent)
		if err == nil {
			return battle, nil
		}
		if !errors.Is(err, types.ErrConflict) {
			return nil, err
		}

		MatchConflictsTotal.Inc()
		s.logger.Debug("match-claim-lost",
			zap.String("prediction_id", p.ID),
			zap.String("opponent_id", opponent.ID),
			zap.Int("attempt", attempt))
	}

	return nil, nil
}

func (s *Service) claim(ctx context.Context, p, opponent *types.Prediction) (*types.Battle, error) {
	now := s.now()
	battle := &types.Battle{
		ID:            uuid.NewString(),
		Prediction1ID: p.ID,
		Prediction2ID: opponent.ID,
		User1ID:       p.UserID,
		User2ID:       opponent.UserID,
		Status:        types.BattlePending,
		CreatedAt:     now,
	}

	if err := s.store.ClaimMatch(ctx, battle); err != nil {
		return nil, err
	}

	MatchesCreatedTotal.Inc()
	s.logger.Info("match-found",
		zap.String("battle_id", battle.ID),
		zap.String("user1_id", battle.User1ID),
		zap.String("user2_id", battle.User2ID))

	e := notify.Event{Type: notify.EventMatchFound, Payload: battle, Timestamp: now}
	s.publish(ctx, notify.ChannelBattles, e)
	s.publish(ctx, notify.UserChannel(battle.User1ID), e)
	s.publish(ctx, notify.UserChannel(battle.User2ID), e)

	return battle, nil
}

// Accept records one participant's acceptance. When both sides have
// accepted the battle activates.
func (s *Service) Accept(ctx context.Context, battleID, userID string) (*types.Battle, error) {
	battle, err := s.store.AcceptBattle(ctx, battleID, userID, s.now())
	if err != nil {
		return nil, err
	}

	BattlesAcceptedTotal.Inc()
	s.logger.Info("battle-accepted",
		zap.String("battle_id", battle.ID),
		zap.String("user_id", userID),
		zap.String("status", string(battle.Status)))

	eventType := notify.EventBattleAccepted
	if battle.Status == types.BattleActive {
		eventType = notify.EventBattleActivated
		BattlesActivatedTotal.Inc()
	}

	e := notify.Event{Type: eventType, Payload: battle, Timestamp: s.now()}
	s.publish(ctx, notify.ChannelBattles, e)
	s.publish(ctx, notify.UserChannel(battle.User1ID), e)
	s.publish(ctx, notify.UserChannel(battle.User2ID), e)

	return battle, nil
}

// Decline cancels a pending battle and returns both predictions to the
// searching pool, where later arrivals can pair with them.
func (s *Service) Decline(ctx context.Context, battleID, userID string) (*types.Battle, error) {
	battle, err := s.store.DeclineBattle(ctx, battleID, userID, s.now())
	if err != nil {
		return nil, err
	}

	BattlesDeclinedTotal.Inc()
	s.logger.Info("battle-declined",
		zap.String("battle_id", battle.ID),
		zap.String("user_id", userID))

	e := notify.Event{Type: notify.EventBattleCancelled, Payload: battle, Timestamp: s.now()}
	s.publish(ctx, notify.ChannelBattles, e)
	s.publish(ctx, notify.UserChannel(battle.User1ID), e)
	s.publish(ctx, notify.UserChannel(battle.User2ID), e)

	return battle, nil
}

// Resolve settles an active battle against the final price. Resolution is
// idempotent: repeat calls return the stored outcome regardless of the
// price submitted.
func (s *Service) Resolve(ctx context.Context, battleID, userID string, finalPriceCents int64) (*types.Outcome, error) {
	if finalPriceCents <= 0 {
		return nil, types.NewValidationError("final_price_cents", "must be positive")
	}

	battle, err := s.store.GetBattle(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if !battle.IsParticipant(userID) {
		return nil, types.ErrNotParticipant
	}

	p1, err := s.store.GetPrediction(ctx, battle.Prediction1ID)
	if err != nil {
		return nil, fmt.Errorf("load prediction 1: %w", err)
	}
	p2, err := s.store.GetPrediction(ctx, battle.Prediction2ID)
	if err != nil {
		return nil, fmt.Errorf("load prediction 2: %w", err)
	}

	out := settlement.Settle(battle, p1, p2, finalPriceCents, s.now())

	stored, err := s.store.ResolveBattle(ctx, battleID, out)
	if err != nil {
		return nil, err
	}

	result := "win"
	if stored.Draw {
		result = "draw"
	}
	BattlesResolvedTotal.WithLabelValues(result).Inc()
	s.logger.Info("battle-resolved",
		zap.String("battle_id", battleID),
		zap.String("winner_user_id", stored.WinnerUserID),
		zap.Bool("draw", stored.Draw),
		zap.Int64("payout_cents", stored.PayoutCents))

	e := notify.Event{Type: notify.EventBattleResolved, Payload: stored, Timestamp: s.now()}
	s.publish(ctx, notify.ChannelBattles, e)
	s.publish(ctx, notify.UserChannel(battle.User1ID), e)
	s.publish(ctx, notify.UserChannel(battle.User2ID), e)

	return stored, nil
}

// Cancel withdraws a searching prediction.
func (s *Service) Cancel(ctx context.Context, predictionID, userID string) (*types.Prediction, error) {
	pred, err := s.store.CancelPrediction(ctx, predictionID, userID)
	if err != nil {
		return nil, err
	}

	PredictionsCancelledTotal.Inc()
	s.logger.Info("prediction-cancelled",
		zap.String("prediction_id", predictionID),
		zap.String("user_id", userID))

	return pred, nil
}

func (s *Service) publish(ctx context.Context, channel string, e notify.Event) {
	if err := s.bus.Publish(ctx, channel, e); err != nil {
		s.logger.Warn("event-publish-failed",
			zap.String("channel", channel),
			zap.String("type", e.Type),
			zap.Error(err))
	}
}

func validatePrediction(p *types.Prediction) error {
	if p.UserID == "" {
		return types.NewValidationError("user_id", "required")
	}
	if !p.Direction.Valid() {
		return types.NewValidationError("direction", "must be above or below")
	}
	if p.BetAmountCents <= 0 {
		return types.NewValidationError("bet_amount_cents", "must be positive")
	}
	if p.PredictedPriceCents <= 0 {
		return types.NewValidationError("predicted_price_cents", "must be positive")
	}
	if p.ReferencePriceCents <= 0 {
		return types.NewValidationError("reference_price_cents", "must be positive")
	}
	return nil
}
