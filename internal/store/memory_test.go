package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pvpbtc/btcbattle/pkg/types"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	return NewMemoryStore(&MemoryConfig{Logger: logger})
}

func seedPrediction(t *testing.T, s *MemoryStore, id, userID string, dir types.Side, amountCents int64, createdAt time.Time) *types.Prediction {
	t.Helper()

	p := &types.Prediction{
		ID:                  id,
		UserID:              userID,
		PredictedPriceCents: 45_000_00,
		Direction:           dir,
		BetAmountCents:      amountCents,
		ReferencePriceCents: 40_000_00,
		Status:              types.PredictionSearching,
		CreatedAt:           createdAt,
		UpdatedAt:           createdAt,
	}
	if err := s.CreatePrediction(context.Background(), p); err != nil {
		t.Fatalf("seed prediction %s: %v", id, err)
	}
	return p
}

func seedMatch(t *testing.T, s *MemoryStore, battleID string) *types.Battle {
	t.Helper()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seedPrediction(t, s, battleID+"-p1", "alice", types.SideAbove, 200_00, base)
	seedPrediction(t, s, battleID+"-p2", "bob", types.SideBelow, 200_00, base.Add(time.Second))

	b := &types.Battle{
		ID:            battleID,
		Prediction1ID: battleID + "-p1",
		Prediction2ID: battleID + "-p2",
		User1ID:       "alice",
		User2ID:       "bob",
		Status:        types.BattlePending,
		CreatedAt:     base.Add(2 * time.Second),
	}
	if err := s.ClaimMatch(context.Background(), b); err != nil {
		t.Fatalf("seed match: %v", err)
	}
	return b
}

func TestMemoryStore_ListSearchingOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seedPrediction(t, s, "p-late", "u1", types.SideAbove, 100_00, base.Add(time.Minute))
	seedPrediction(t, s, "p-b", "u2", types.SideBelow, 100_00, base)
	seedPrediction(t, s, "p-a", "u3", types.SideAbove, 100_00, base)

	got, err := s.ListSearching(ctx)
	if err != nil {
		t.Fatalf("ListSearching: %v", err)
	}

	want := []string{"p-a", "p-b", "p-late"}
	if len(got) != len(want) {
		t.Fatalf("expected %d predictions, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestMemoryStore_CancelPrediction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	seedPrediction(t, s, "p1", "alice", types.SideAbove, 100_00, base)

	if _, err := s.CancelPrediction(ctx, "p1", "bob"); !errors.Is(err, types.ErrNotParticipant) {
		t.Errorf("foreign cancel: expected ErrNotParticipant, got %v", err)
	}

	p, err := s.CancelPrediction(ctx, "p1", "alice")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if p.Status != types.PredictionCancelled {
		t.Errorf("expected cancelled, got %s", p.Status)
	}

	if _, err := s.CancelPrediction(ctx, "p1", "alice"); !errors.Is(err, types.ErrConflict) {
		t.Errorf("repeat cancel: expected ErrConflict, got %v", err)
	}
	if _, err := s.CancelPrediction(ctx, "missing", "alice"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("missing cancel: expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_ClaimMatchConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	seedPrediction(t, s, "p1", "alice", types.SideAbove, 100_00, base)
	seedPrediction(t, s, "p2", "bob", types.SideBelow, 100_00, base)
	seedPrediction(t, s, "p3", "carol", types.SideBelow, 100_00, base)

	first := &types.Battle{
		ID: "b1", Prediction1ID: "p1", Prediction2ID: "p2",
		User1ID: "alice", User2ID: "bob",
		Status: types.BattlePending, CreatedAt: base,
	}
	if err := s.ClaimMatch(ctx, first); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	// p1 is already matched: a second claim over it must fail atomically,
	// leaving p3 untouched.
	second := &types.Battle{
		ID: "b2", Prediction1ID: "p1", Prediction2ID: "p3",
		User1ID: "alice", User2ID: "carol",
		Status: types.BattlePending, CreatedAt: base,
	}
	if err := s.ClaimMatch(ctx, second); !errors.Is(err, types.ErrConflict) {
		t.Fatalf("second claim: expected ErrConflict, got %v", err)
	}

	p3, err := s.GetPrediction(ctx, "p3")
	if err != nil {
		t.Fatalf("get p3: %v", err)
	}
	if p3.Status != types.PredictionSearching {
		t.Errorf("p3 should still be searching, got %s", p3.Status)
	}
	if _, err := s.GetBattle(ctx, "b2"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("b2 should not exist, got %v", err)
	}
}

func TestMemoryStore_AcceptActivatesOnSecond(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := seedMatch(t, s, "b1")
	at := time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)

	got, err := s.AcceptBattle(ctx, b.ID, "alice", at)
	if err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if got.Status != types.BattlePending {
		t.Errorf("after one accept expected pending, got %s", got.Status)
	}
	if !got.User1Accepted || got.User2Accepted {
		t.Errorf("expected only user1 accepted, got %v/%v", got.User1Accepted, got.User2Accepted)
	}

	got, err = s.AcceptBattle(ctx, b.ID, "bob", at.Add(time.Second))
	if err != nil {
		t.Fatalf("second accept: %v", err)
	}
	if got.Status != types.BattleActive {
		t.Errorf("after both accepts expected active, got %s", got.Status)
	}
	if got.StartedAt == nil {
		t.Error("expected StartedAt set on activation")
	}

	inv, err := s.GetInvitation(ctx, b.ID)
	if err != nil {
		t.Fatalf("get invitation: %v", err)
	}
	if inv.Status != types.InvitationAccepted {
		t.Errorf("expected invitation accepted, got %s", inv.Status)
	}

	if _, err := s.AcceptBattle(ctx, b.ID, "alice", at); !errors.Is(err, types.ErrConflict) {
		t.Errorf("accept on active battle: expected ErrConflict, got %v", err)
	}
	if _, err := s.AcceptBattle(ctx, b.ID, "mallory", at); !errors.Is(err, types.ErrNotParticipant) {
		t.Errorf("outsider accept: expected ErrNotParticipant, got %v", err)
	}
}

func TestMemoryStore_DeclineReleasesPredictions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := seedMatch(t, s, "b1")
	at := time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)

	// One acceptance first; a later decline still cancels.
	if _, err := s.AcceptBattle(ctx, b.ID, "alice", at); err != nil {
		t.Fatalf("accept: %v", err)
	}

	got, err := s.DeclineBattle(ctx, b.ID, "bob", at.Add(time.Second))
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if got.Status != types.BattleCancelled {
		t.Errorf("expected cancelled, got %s", got.Status)
	}

	for _, pid := range []string{b.Prediction1ID, b.Prediction2ID} {
		p, err := s.GetPrediction(ctx, pid)
		if err != nil {
			t.Fatalf("get %s: %v", pid, err)
		}
		if p.Status != types.PredictionSearching {
			t.Errorf("%s should be searching again, got %s", pid, p.Status)
		}
	}

	inv, err := s.GetInvitation(ctx, b.ID)
	if err != nil {
		t.Fatalf("get invitation: %v", err)
	}
	if inv.Status != types.InvitationDeclined {
		t.Errorf("expected invitation declined, got %s", inv.Status)
	}

	if _, err := s.DeclineBattle(ctx, b.ID, "alice", at); !errors.Is(err, types.ErrConflict) {
		t.Errorf("decline on cancelled battle: expected ErrConflict, got %v", err)
	}
}

func TestMemoryStore_ResolveIdempotentAndTallies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"alice", "bob"} {
		if _, err := s.UpsertUser(ctx, &types.User{ID: id, Username: id}); err != nil {
			t.Fatalf("seed user %s: %v", id, err)
		}
	}

	b := seedMatch(t, s, "b1")
	at := time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)
	if _, err := s.AcceptBattle(ctx, b.ID, "alice", at); err != nil {
		t.Fatalf("accept alice: %v", err)
	}
	if _, err := s.AcceptBattle(ctx, b.ID, "bob", at); err != nil {
		t.Fatalf("accept bob: %v", err)
	}

	out := types.Outcome{
		BattleID:        b.ID,
		FinalPriceCents: 46_000_00,
		WinnerUserID:    "alice",
		PayoutCents:     400_00,
		ResolvedAt:      at.Add(time.Hour),
	}

	first, err := s.ResolveBattle(ctx, b.ID, out)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if first.WinnerUserID != "alice" {
		t.Errorf("expected winner alice, got %s", first.WinnerUserID)
	}

	// Second resolution with a contradictory outcome must return the stored
	// one untouched.
	second, err := s.ResolveBattle(ctx, b.ID, types.Outcome{
		BattleID: b.ID, WinnerUserID: "bob", PayoutCents: 999_99,
		ResolvedAt: at.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("repeat resolve: %v", err)
	}
	if second.WinnerUserID != "alice" || second.PayoutCents != 400_00 {
		t.Errorf("repeat resolve mutated outcome: %+v", second)
	}

	alice, _ := s.GetUser(ctx, "alice")
	bob, _ := s.GetUser(ctx, "bob")
	if alice.Wins != 1 || alice.TotalWinningsCents != 200_00 {
		t.Errorf("alice tallies: wins=%d winnings=%d", alice.Wins, alice.TotalWinningsCents)
	}
	if bob.Losses != 1 || bob.TotalWinningsCents != -200_00 {
		t.Errorf("bob tallies: losses=%d winnings=%d", bob.Losses, bob.TotalWinningsCents)
	}
}

func TestMemoryStore_ResolvePendingIsConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := seedMatch(t, s, "b1")

	_, err := s.ResolveBattle(ctx, b.ID, types.Outcome{BattleID: b.ID, Draw: true})
	if !errors.Is(err, types.ErrConflict) {
		t.Errorf("resolving a pending battle: expected ErrConflict, got %v", err)
	}
}

func TestMemoryStore_ExpireSearching(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	seedPrediction(t, s, "old-1", "u1", types.SideAbove, 100_00, base.Add(-2*time.Hour))
	seedPrediction(t, s, "old-2", "u2", types.SideBelow, 100_00, base.Add(-90*time.Minute))
	seedPrediction(t, s, "fresh", "u3", types.SideAbove, 100_00, base.Add(-time.Minute))

	swept, err := s.ExpireSearching(ctx, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if swept != 2 {
		t.Errorf("expected 2 swept, got %d", swept)
	}

	fresh, _ := s.GetPrediction(ctx, "fresh")
	if fresh.Status != types.PredictionSearching {
		t.Errorf("fresh prediction should survive, got %s", fresh.Status)
	}
	old, _ := s.GetPrediction(ctx, "old-1")
	if old.Status != types.PredictionCancelled {
		t.Errorf("old prediction should be cancelled, got %s", old.Status)
	}
}

func TestMemoryStore_UpsertPreservesTallies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.UpsertUser(ctx, &types.User{ID: "u1", Username: "satoshi"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if first.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	s.mu.Lock()
	s.users["u1"].Wins = 3
	s.users["u1"].TotalWinningsCents = 500_00
	s.mu.Unlock()

	second, err := s.UpsertUser(ctx, &types.User{ID: "u1", XUsername: "@satoshi"})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.Username != "satoshi" || second.XUsername != "@satoshi" {
		t.Errorf("profile merge wrong: %+v", second)
	}
	if second.Wins != 3 || second.TotalWinningsCents != 500_00 {
		t.Errorf("tallies not preserved: %+v", second)
	}
}

func TestMemoryStore_Leaderboard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rows := []*types.User{
		{ID: "c", Username: "carol", Wins: 1, TotalWinningsCents: 100_00},
		{ID: "a", Username: "alice", Wins: 5, TotalWinningsCents: 900_00},
		{ID: "b", Username: "bob", Wins: 2, TotalWinningsCents: 900_00},
	}
	for _, u := range rows {
		cp := *u
		s.mu.Lock()
		s.users[cp.ID] = &cp
		s.mu.Unlock()
	}

	got, err := s.Leaderboard(ctx, 2)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("expected [a b], got [%s %s]", got[0].ID, got[1].ID)
	}
}

func TestMemoryStore_BattleHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)

	b := seedMatch(t, s, "b1")
	if _, err := s.AcceptBattle(ctx, b.ID, "alice", at); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := s.AcceptBattle(ctx, b.ID, "bob", at); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := s.ResolveBattle(ctx, b.ID, types.Outcome{
		BattleID: b.ID, Draw: true, PayoutCents: 200_00, ResolvedAt: at,
	}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	all, err := s.ListUserBattles(ctx, "alice")
	if err != nil {
		t.Fatalf("list battles: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 battle, got %d", len(all))
	}

	history, err := s.ListBattleHistory(ctx, "bob", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Status != types.BattleResolved {
		t.Errorf("expected one resolved battle, got %+v", history)
	}

	none, err := s.ListBattleHistory(ctx, "mallory", 10)
	if err != nil {
		t.Fatalf("history outsider: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no battles for outsider, got %d", len(none))
	}
}
