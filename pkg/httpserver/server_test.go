package httpserver

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pvpbtc/btcbattle/internal/identity"
	"github.com/pvpbtc/btcbattle/internal/market"
	"github.com/pvpbtc/btcbattle/internal/matchmaking"
	"github.com/pvpbtc/btcbattle/internal/notify"
	"github.com/pvpbtc/btcbattle/internal/store"
	"github.com/pvpbtc/btcbattle/pkg/healthprobe"
	"github.com/pvpbtc/btcbattle/pkg/types"
	"go.uber.org/zap"
)

type fixedPrice int64

func (p fixedPrice) Current() int64 { return int64(p) }

type testEnv struct {
	router http.Handler
	store  *store.MemoryStore
	market *market.Market
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger, _ := zap.NewDevelopment()
	st := store.NewMemoryStore(&store.MemoryConfig{Logger: logger})
	bus := notify.NewMemoryBus(&notify.MemoryConfig{Logger: logger})

	m := market.New(market.Config{
		TargetPriceCents: 40_000_00,
		Duration:         time.Hour,
		FeedSize:         8,
		Logger:           logger,
	})

	svc := matchmaking.NewService(&matchmaking.Config{
		Store:         st,
		Bus:           bus,
		Logger:        logger,
		RetryAttempts: 1,
	})

	hc := healthprobe.New(st.Ping)
	hc.SetReady(true)

	router := NewRouter(&Config{
		Port:          "0",
		Logger:        logger,
		HealthChecker: hc,
		Market:        m,
		Matchmaking:   svc,
		Store:         st,
		Identity:      identity.NewMiddleware(&identity.Config{Users: st, Logger: logger}),
		Bus:           bus,
		Prices:        fixedPrice(45_000_00),
	})

	return &testEnv{router: router, store: st, market: m}
}

func (e *testEnv) do(t *testing.T, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+user)
		req.Header.Set("X-Username", user)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestMarketSnapshot(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/market", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	resp := decode[marketResponse](t, w)
	if resp.TargetPriceCents != 40_000_00 {
		t.Errorf("target = %d", resp.TargetPriceCents)
	}
	if resp.AboveOdds != nil || resp.BelowOdds != nil {
		t.Error("expected null odds on empty pools")
	}
	if resp.CurrentPriceCents != 45_000_00 {
		t.Errorf("current price = %d", resp.CurrentPriceCents)
	}
}

func TestStakeFlow(t *testing.T) {
	env := newTestEnv(t)

	// Anonymous stake is rejected.
	w := env.do(t, http.MethodPost, "/api/market/stakes", "",
		stakeRequest{Side: types.SideAbove, AmountCents: 100_00})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous stake status = %d, want 401", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/market/stakes", "alice",
		stakeRequest{Side: types.SideAbove, AmountCents: 100_00})
	if w.Code != http.StatusCreated {
		t.Fatalf("stake status = %d, want 201: %s", w.Code, w.Body.String())
	}

	resp := decode[stakeResponse](t, w)
	if resp.Stake.UserID != "alice" || resp.Stake.AmountCents != 100_00 {
		t.Errorf("unexpected stake: %+v", resp.Stake)
	}
	// Only one side has money: no odds yet, so no payout estimate.
	if resp.PotentialPayoutKnown {
		t.Errorf("payout = %d known=%v, want unknown while below pool is empty",
			resp.PotentialPayoutCents, resp.PotentialPayoutKnown)
	}

	// Opposite stake funds both pools: bob's below stake pays 2.00x.
	w = env.do(t, http.MethodPost, "/api/market/stakes", "bob",
		stakeRequest{Side: types.SideBelow, AmountCents: 100_00})
	if w.Code != http.StatusCreated {
		t.Fatalf("stake status = %d, want 201: %s", w.Code, w.Body.String())
	}
	resp = decode[stakeResponse](t, w)
	if !resp.PotentialPayoutKnown || resp.PotentialPayoutCents != 200_00 {
		t.Errorf("payout = %d known=%v, want 20000", resp.PotentialPayoutCents, resp.PotentialPayoutKnown)
	}

	w = env.do(t, http.MethodPost, "/api/market/stakes", "alice",
		stakeRequest{Side: types.Side("sideways"), AmountCents: 100_00})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid side status = %d, want 400", w.Code)
	}
}

func TestPredictionAndBattleFlow(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/predictions", "alice", createPredictionRequest{
		PredictedPriceCents: 46_000_00,
		Direction:           types.SideAbove,
		BetAmountCents:      200_00,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	first := decode[createPredictionResponse](t, w)
	if first.Battle != nil {
		t.Fatal("first prediction should not match")
	}
	if first.Prediction.ReferencePriceCents != 45_000_00 {
		t.Errorf("server should fill reference price, got %d", first.Prediction.ReferencePriceCents)
	}

	w = env.do(t, http.MethodPost, "/api/predictions", "bob", createPredictionRequest{
		PredictedPriceCents: 43_000_00,
		Direction:           types.SideBelow,
		BetAmountCents:      200_00,
		CurrentPriceCents:   45_000_00,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	second := decode[createPredictionResponse](t, w)
	if second.Battle == nil {
		t.Fatal("expected a match")
	}
	battleID := second.Battle.ID

	// Outsider cannot act on the battle.
	w = env.do(t, http.MethodPost, "/api/battles/"+battleID+"/accept", "mallory", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("outsider accept status = %d, want 403", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/battles/"+battleID+"/accept", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("alice accept status = %d", w.Code)
	}
	w = env.do(t, http.MethodPost, "/api/battles/"+battleID+"/accept", "bob", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("bob accept status = %d", w.Code)
	}
	battle := decode[types.Battle](t, w)
	if battle.Status != types.BattleActive {
		t.Errorf("expected active battle, got %s", battle.Status)
	}

	// Resolve twice; outcome must not change.
	w = env.do(t, http.MethodPost, "/api/battles/"+battleID+"/resolve", "alice",
		resolveRequest{FinalPriceCents: 47_000_00})
	if w.Code != http.StatusOK {
		t.Fatalf("resolve status = %d: %s", w.Code, w.Body.String())
	}
	out := decode[types.Outcome](t, w)
	if out.WinnerUserID != "alice" || out.PayoutCents != 400_00 {
		t.Errorf("unexpected outcome: %+v", out)
	}

	w = env.do(t, http.MethodPost, "/api/battles/"+battleID+"/resolve", "bob",
		resolveRequest{FinalPriceCents: 30_000_00})
	if w.Code != http.StatusOK {
		t.Fatalf("repeat resolve status = %d", w.Code)
	}
	repeat := decode[types.Outcome](t, w)
	if repeat.WinnerUserID != out.WinnerUserID || repeat.FinalPriceCents != out.FinalPriceCents {
		t.Errorf("repeat resolve changed outcome: %+v vs %+v", repeat, out)
	}

	// History shows the resolved battle.
	w = env.do(t, http.MethodGet, "/api/battles/history?limit=5", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d", w.Code)
	}
	history := decode[[]*types.Battle](t, w)
	if len(history) != 1 || history[0].Status != types.BattleResolved {
		t.Errorf("unexpected history: %+v", history)
	}

	// Winner shows on the leaderboard.
	w = env.do(t, http.MethodGet, "/api/leaderboard", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("leaderboard status = %d", w.Code)
	}
	leaders := decode[[]*types.User](t, w)
	if len(leaders) == 0 || leaders[0].ID != "alice" {
		t.Errorf("expected alice on top, got %+v", leaders)
	}
}

func TestDeclineFlow(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/api/predictions", "alice", createPredictionRequest{
		PredictedPriceCents: 46_000_00,
		Direction:           types.SideAbove,
		BetAmountCents:      200_00,
	})
	w := env.do(t, http.MethodPost, "/api/predictions", "bob", createPredictionRequest{
		PredictedPriceCents: 43_000_00,
		Direction:           types.SideBelow,
		BetAmountCents:      200_00,
	})
	resp := decode[createPredictionResponse](t, w)
	if resp.Battle == nil {
		t.Fatal("expected a match")
	}

	w = env.do(t, http.MethodPost, "/api/battles/"+resp.Battle.ID+"/decline", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("decline status = %d", w.Code)
	}

	// Both predictions are searching again.
	w = env.do(t, http.MethodGet, "/api/predictions", "bob", nil)
	preds := decode[[]*types.Prediction](t, w)
	if len(preds) != 1 || preds[0].Status != types.PredictionSearching {
		t.Errorf("expected bob's prediction searching, got %+v", preds)
	}

	// Acting again on the cancelled battle conflicts.
	w = env.do(t, http.MethodPost, "/api/battles/"+resp.Battle.ID+"/accept", "bob", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("accept on cancelled battle status = %d, want 409", w.Code)
	}
}

func TestPredictionCancel(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/predictions", "alice", createPredictionRequest{
		PredictedPriceCents: 46_000_00,
		Direction:           types.SideAbove,
		BetAmountCents:      200_00,
	})
	resp := decode[createPredictionResponse](t, w)

	path := fmt.Sprintf("/api/predictions/%s", resp.Prediction.ID)

	w = env.do(t, http.MethodDelete, path, "bob", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign cancel status = %d, want 403", w.Code)
	}

	w = env.do(t, http.MethodDelete, path, "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", w.Code)
	}
	pred := decode[types.Prediction](t, w)
	if pred.Status != types.PredictionCancelled {
		t.Errorf("expected cancelled, got %s", pred.Status)
	}
}

func TestUserLookup(t *testing.T) {
	env := newTestEnv(t)

	// Any authenticated request upserts the caller.
	env.do(t, http.MethodGet, "/api/market", "alice", nil)

	w := env.do(t, http.MethodGet, "/api/users/alice", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("user status = %d", w.Code)
	}
	u := decode[types.User](t, w)
	if u.ID != "alice" {
		t.Errorf("unexpected user: %+v", u)
	}

	w = env.do(t, http.MethodGet, "/api/users/nobody", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing user status = %d, want 404", w.Code)
	}
}

func TestOperationalEndpoints(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		w := env.do(t, http.MethodGet, path, "", nil)
		if w.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, w.Code)
		}
	}
}

// limitCaptureStore records the limit the handlers pass down.
type limitCaptureStore struct {
	store.BattleStore
	store.UserStore
	historyLimit     int
	leaderboardLimit int
}

func (s *limitCaptureStore) ListBattleHistory(ctx context.Context, userID string, limit int) ([]*types.Battle, error) {
	s.historyLimit = limit
	return nil, nil
}

func (s *limitCaptureStore) Leaderboard(ctx context.Context, limit int) ([]*types.User, error) {
	s.leaderboardLimit = limit
	return nil, nil
}

func TestListLimitsAreClamped(t *testing.T) {
	logger := zap.NewNop()
	st := &limitCaptureStore{}
	battles := NewBattleHandler(nil, st, logger)
	users := NewUserHandler(st, logger)

	req := httptest.NewRequest(http.MethodGet, "/api/battles/history?limit=1000000000", nil)
	req = req.WithContext(identity.ContextWithUser(req.Context(), &types.User{ID: "alice"}))
	battles.HandleHistory(httptest.NewRecorder(), req)
	if st.historyLimit != maxHistoryLimit {
		t.Errorf("history limit = %d, want %d", st.historyLimit, maxHistoryLimit)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/battles/history?limit=5", nil)
	req = req.WithContext(identity.ContextWithUser(req.Context(), &types.User{ID: "alice"}))
	battles.HandleHistory(httptest.NewRecorder(), req)
	if st.historyLimit != 5 {
		t.Errorf("history limit = %d, want 5", st.historyLimit)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/leaderboard?limit=1000000000", nil)
	users.HandleLeaderboard(httptest.NewRecorder(), req)
	if st.leaderboardLimit != maxLeaderboardLimit {
		t.Errorf("leaderboard limit = %d, want %d", st.leaderboardLimit, maxLeaderboardLimit)
	}
}
