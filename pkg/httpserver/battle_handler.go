package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pvpbtc/btcbattle/internal/identity"
	"github.com/pvpbtc/btcbattle/internal/matchmaking"
	"github.com/pvpbtc/btcbattle/internal/store"
	"github.com/pvpbtc/btcbattle/pkg/types"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// BattleHandler serves the battle lifecycle endpoints.
type BattleHandler struct {
	svc    *matchmaking.Service
	store  store.BattleStore
	logger *zap.Logger
}

// NewBattleHandler creates a battle handler.
func NewBattleHandler(svc *matchmaking.Service, st store.BattleStore, logger *zap.Logger) *BattleHandler {
	return &BattleHandler{
		svc:    svc,
		store:  st,
		logger: logger,
	}
}

// HandleList returns the caller's battles, newest first.
// GET /api/battles
func (h *BattleHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())

	battles, err := h.store.ListUserBattles(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if battles == nil {
		battles = []*types.Battle{}
	}

	writeJSON(w, http.StatusOK, battles)
}

// HandleHistory returns the caller's resolved battles.
// GET /api/battles/history?limit=20
func (h *BattleHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, h.logger, types.NewValidationError("limit", "must be a positive integer"))
			return
		}
		limit = n
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}
	}

	battles, err := h.store.ListBattleHistory(r.Context(), user.ID, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if battles == nil {
		battles = []*types.Battle{}
	}

	writeJSON(w, http.StatusOK, battles)
}

// HandleGet returns a single battle. Participants only.
// GET /api/battles/{id}
func (h *BattleHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())

	battle, err := h.store.GetBattle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !battle.IsParticipant(user.ID) {
		writeError(w, h.logger, types.ErrNotParticipant)
		return
	}

	writeJSON(w, http.StatusOK, battle)
}

// HandleAccept records the caller's acceptance.
// POST /api/battles/{id}/accept
func (h *BattleHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())

	battle, err := h.svc.Accept(r.Context(), chi.URLParam(r, "id"), user.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, battle)
}

// HandleDecline cancels the pending battle and releases both predictions.
// POST /api/battles/{id}/decline
func (h *BattleHandler) HandleDecline(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())

	battle, err := h.svc.Decline(r.Context(), chi.URLParam(r, "id"), user.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, battle)
}

type resolveRequest struct {
	FinalPriceCents int64 `json:"final_price_cents"`
}

// HandleResolve settles the battle. Idempotent: repeat calls return the
// stored outcome.
// POST /api/battles/{id}/resolve
func (h *BattleHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	user := identity.UserFromContext(r.Context())

	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	out, err := h.svc.Resolve(r.Context(), chi.URLParam(r, "id"), user.ID, req.FinalPriceCents)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}
