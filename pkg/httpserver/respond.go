package httpserver

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/pvpbtc/btcbattle/pkg/types"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses. Unknown errors are
// reported as 500 without leaking internals.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var verr *types.ValidationError

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error()})
	case errors.Is(err, types.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, types.ErrNotParticipant):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "not a participant"})
	case errors.Is(err, types.ErrMarketClosed):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "market closed"})
	case errors.Is(err, types.ErrConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "state conflict"})
	case errors.Is(err, types.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "temporarily unavailable"})
	default:
		logger.Error("request-failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return types.NewValidationError("body", "malformed json")
	}
	return nil
}
