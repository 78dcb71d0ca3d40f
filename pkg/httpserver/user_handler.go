package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pvpbtc/btcbattle/internal/store"
	"github.com/pvpbtc/btcbattle/pkg/types"
	"go.uber.org/zap"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// UserHandler serves account and leaderboard endpoints.
type UserHandler struct {
	store  store.UserStore
	logger *zap.Logger
}

// NewUserHandler creates a user handler.
func NewUserHandler(st store.UserStore, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		store:  st,
		logger: logger,
	}
}

// HandleGet returns a user's public profile and tallies.
// GET /api/users/{id}
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	u, err := h.store.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, u)
}

// HandleLeaderboard returns the top users by winnings.
// GET /api/leaderboard?limit=10
func (h *UserHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, h.logger, types.NewValidationError("limit", "must be a positive integer"))
			return
		}
		limit = n
		if limit > maxLeaderboardLimit {
			limit = maxLeaderboardLimit
		}
	}

	users, err := h.store.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if users == nil {
		users = []*types.User{}
	}

	writeJSON(w, http.StatusOK, users)
}
