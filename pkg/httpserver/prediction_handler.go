package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pvpbtc/btcbattle/internal/identity"
	"github.com/pvpbtc/btcbattle/internal/matchmaking"
	"github.com/pvpbtc/btcbattle/internal/store"
	"github.com/pvpbtc/btcbattle/pkg/types"
	"go.uber.org/zap"
)

// PredictionHandler serves the prediction endpoints.
type PredictionHandler struct {
	svc    *matchmaking.Service
	store  store.PredictionStore
	prices PriceSource
	logger *zap.Logger
}

// NewPredictionHandler creates a prediction handler.
func NewPredictionHandler(svc *matchmaking.Service, st store.PredictionStore, prices PriceSource, logger *zap.Logger) *PredictionHandler {
	return &PredictionHandler{
		svc:    svc,
		store:  st,
		prices: prices,
		logger: logger,
	}
}

type createPredictionRequest struct {
	PredictedPriceCents int64      `json:"predicted_price_cents"`
	Direction           types.Side `json:"direction"`
	BetAmountCents      int64      `json:"bet_amount_cents"`

	// CurrentPriceCents is the client's view of the BTC price. When absent
	// the server samples its own feed.
	CurrentPriceCents int64 `json:"current_price_cents,omitempty"`
}

type createPredictionResponse struct {
	Prediction *types.Prediction `json:"prediction"`
	Battle     *types.Battle     `json:"battle,omitempty"`
}

// HandleCreate registers a prediction and immediately tries to pair it.
// POST /api/predictions
func (h *PredictionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())

	var req createPredictionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	referencePriceCents := req.CurrentPriceCents
	if referencePriceCents <= 0 {
		referencePriceCents = h.prices.Current()
	}

	pred, battle, err := h.svc.CreatePrediction(r.Context(), &types.Prediction{
		UserID:              user.ID,
		PredictedPriceCents: req.PredictedPriceCents,
		Direction:           req.Direction,
		BetAmountCents:      req.BetAmountCents,
		ReferencePriceCents: referencePriceCents,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, createPredictionResponse{
		Prediction: pred,
		Battle:     battle,
	})
}

// HandleList returns the caller's searching predictions.
// GET /api/predictions
func (h *PredictionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())

	preds, err := h.store.ListUserSearching(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if preds == nil {
		preds = []*types.Prediction{}
	}

	writeJSON(w, http.StatusOK, preds)
}

// HandleCancel withdraws the caller's searching prediction.
// DELETE /api/predictions/{id}
func (h *PredictionHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())
	id := chi.URLParam(r, "id")

	pred, err := h.svc.Cancel(r.Context(), id, user.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, pred)
}
