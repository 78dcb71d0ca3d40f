package httpserver

import (
	"net/http"
	"time"

	"github.com/pvpbtc/btcbattle/internal/identity"
	"github.com/pvpbtc/btcbattle/internal/market"
	"github.com/pvpbtc/btcbattle/internal/notify"
	"github.com/pvpbtc/btcbattle/pkg/types"
	"go.uber.org/zap"
)

// PriceSource supplies the current BTC price for snapshots and reference
// prices.
type PriceSource interface {
	Current() int64
}

// MarketHandler serves the pari-mutuel pool endpoints.
type MarketHandler struct {
	market *market.Market
	prices PriceSource
	bus    notify.Bus
	logger *zap.Logger
}

// NewMarketHandler creates a market handler.
func NewMarketHandler(m *market.Market, prices PriceSource, bus notify.Bus, logger *zap.Logger) *MarketHandler {
	return &MarketHandler{
		market: m,
		prices: prices,
		bus:    bus,
		logger: logger,
	}
}

type marketResponse struct {
	market.Snapshot
	CurrentPriceCents int64 `json:"current_price_cents"`
}

// HandleSnapshot returns pools, counts, odds, deadline, and the recent feed.
// GET /api/market
func (h *MarketHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, marketResponse{
		Snapshot:          h.market.Snapshot(),
		CurrentPriceCents: h.prices.Current(),
	})
}

type stakeRequest struct {
	Side        types.Side `json:"side"`
	AmountCents int64      `json:"amount_cents"`
}

type stakeResponse struct {
	Stake                types.Stake `json:"stake"`
	PotentialPayoutCents int64       `json:"potential_payout_cents,omitempty"`
	PotentialPayoutKnown bool        `json:"potential_payout_known"`
}

// HandleStake places a pool wager for the calling user.
// POST /api/market/stakes
func (h *MarketHandler) HandleStake(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())

	var req stakeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	stake, err := h.market.SubmitStake(user.ID, user.Username, req.Side, req.AmountCents)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.bus.Publish(r.Context(), notify.ChannelMarket, notify.Event{
		Type:      notify.EventStakeAccepted,
		Payload:   stake,
		Timestamp: time.Now(),
	}); err != nil {
		h.logger.Warn("stake-event-publish-failed", zap.Error(err))
	}

	resp := stakeResponse{Stake: stake}
	resp.PotentialPayoutCents, resp.PotentialPayoutKnown = h.market.PotentialPayoutCents(stake)

	writeJSON(w, http.StatusCreated, resp)
}
