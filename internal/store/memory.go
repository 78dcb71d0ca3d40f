package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pvpbtc/btcbattle/pkg/types"
	"go.uber.org/zap"
)

// MemoryStore implements Store with process-local maps behind a single
// mutex. Every lifecycle transition runs as one critical section, which
// gives the same atomicity the Postgres implementation gets from
// transactions. Used in memory storage mode and throughout the tests.
type MemoryStore struct {
	logger *zap.Logger
	now    func() time.Time

	mu          sync.Mutex
	predictions map[string]*types.Prediction
	battles     map[string]*types.Battle
	invitations map[string]*types.BattleInvitation // keyed by battle id
	outcomes    map[string]*types.Outcome          // keyed by battle id
	users       map[string]*types.User
}

// MemoryConfig holds in-memory store configuration.
type MemoryConfig struct {
	Logger *zap.Logger
	Now    func() time.Time // for tests; defaults to time.Now
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(cfg *MemoryConfig) *MemoryStore {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	cfg.Logger.Info("memory-store-initialized")

	return &MemoryStore{
		logger:      cfg.Logger,
		now:         now,
		predictions: make(map[string]*types.Prediction),
		battles:     make(map[string]*types.Battle),
		invitations: make(map[string]*types.BattleInvitation),
		outcomes:    make(map[string]*types.Outcome),
		users:       make(map[string]*types.User),
	}
}

// CreatePrediction persists a new prediction in searching state.
func (s *MemoryStore) CreatePrediction(ctx context.Context, p *types.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.predictions[cp.ID] = &cp
	return nil
}

// GetPrediction loads a prediction by id.
func (s *MemoryStore) GetPrediction(ctx context.Context, id string) (*types.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.predictions[id]
	if !ok {
		return nil, types.ErrNotFound
	}

	cp := *p
	return &cp, nil
}

// ListSearching returns searching predictions ordered created_at ASC, id ASC.
func (s *MemoryStore) ListSearching(ctx context.Context) ([]*types.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*types.Prediction
	for _, p := range s.predictions {
		if p.Status == types.PredictionSearching {
			cp := *p
			out = append(out, &cp)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	return out, nil
}

// ListUserSearching returns the user's searching predictions, newest first.
func (s *MemoryStore) ListUserSearching(ctx context.Context, userID string) ([]*types.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*types.Prediction
	for _, p := range s.predictions {
		if p.UserID == userID && p.Status == types.PredictionSearching {
			cp := *p
			out = append(out, &cp)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out, nil
}

// CancelPrediction cancels a searching prediction, owner-only.
func (s *MemoryStore) CancelPrediction(ctx context.Context, id, userID string) (*types.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.predictions[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	if p.UserID != userID {
		return nil, types.ErrNotParticipant
	}
	if p.Status != types.PredictionSearching {
		return nil, types.ErrConflict
	}

	p.Status = types.PredictionCancelled
	p.UpdatedAt = s.now()

	cp := *p
	return &cp, nil
}

// ExpireSearching cancels searching predictions created before cutoff.
func (s *MemoryStore) ExpireSearching(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var swept int64
	for _, p := range s.predictions {
		if p.Status == types.PredictionSearching && p.CreatedAt.Before(cutoff) {
			p.Status = types.PredictionCancelled
			p.UpdatedAt = s.now()
			swept++
		}
	}

	return swept, nil
}

// ClaimMatch atomically claims both predictions and creates the battle.
func (s *MemoryStore) ClaimMatch(ctx context.Context, battle *types.Battle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p1, ok1 := s.predictions[battle.Prediction1ID]
	p2, ok2 := s.predictions[battle.Prediction2ID]
	if !ok1 || !ok2 {
		return types.ErrNotFound
	}

	// The optimistic-concurrency guard: a racing matchmaking attempt may
	// have claimed either prediction since the caller read it.
	if p1.Status != types.PredictionSearching || p2.Status != types.PredictionSearching {
		return types.ErrConflict
	}

	now := s.now()
	p1.Status = types.PredictionMatched
	p1.UpdatedAt = now
	p2.Status = types.PredictionMatched
	p2.UpdatedAt = now

	cp := *battle
	s.battles[cp.ID] = &cp
	s.invitations[cp.ID] = &types.BattleInvitation{
		BattleID:  cp.ID,
		Status:    types.InvitationPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	return nil
}

// GetBattle loads a battle by id.
func (s *MemoryStore) GetBattle(ctx context.Context, id string) (*types.Battle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.battles[id]
	if !ok {
		return nil, types.ErrNotFound
	}

	cp := *b
	return &cp, nil
}

// AcceptBattle sets the caller's acceptance flag; both flags true inside the
// same critical section activates the battle.
func (s *MemoryStore) AcceptBattle(ctx context.Context, battleID, userID string, at time.Time) (*types.Battle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.battles[battleID]
	if !ok {
		return nil, types.ErrNotFound
	}
	if !b.IsParticipant(userID) {
		return nil, types.ErrNotParticipant
	}
	if b.Status != types.BattlePending {
		return nil, types.ErrConflict
	}

	if userID == b.User1ID {
		b.User1Accepted = true
		b.User1AcceptedAt = &at
	} else {
		b.User2Accepted = true
		b.User2AcceptedAt = &at
	}

	if b.BothAccepted() {
		b.Status = types.BattleActive
		b.StartedAt = &at

		if inv, ok := s.invitations[battleID]; ok {
			inv.Status = types.InvitationAccepted
			inv.UpdatedAt = at
		}
	}

	cp := *b
	return &cp, nil
}

// DeclineBattle cancels a pending battle and releases both predictions back
// to searching.
func (s *MemoryStore) DeclineBattle(ctx context.Context, battleID, userID string, at time.Time) (*types.Battle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.battles[battleID]
	if !ok {
		return nil, types.ErrNotFound
	}
	if !b.IsParticipant(userID) {
		return nil, types.ErrNotParticipant
	}
	if b.Status != types.BattlePending {
		return nil, types.ErrConflict
	}

	b.Status = types.BattleCancelled

	if inv, ok := s.invitations[battleID]; ok {
		inv.Status = types.InvitationDeclined
		inv.UpdatedAt = at
	}

	for _, pid := range []string{b.Prediction1ID, b.Prediction2ID} {
		if p, ok := s.predictions[pid]; ok {
			p.Status = types.PredictionSearching
			p.UpdatedAt = at
		}
	}

	cp := *b
	return &cp, nil
}

// ResolveBattle persists the outcome under an active→resolved guard and
// applies win/loss tallies. Already-resolved battles return the stored
// outcome unchanged.
func (s *MemoryStore) ResolveBattle(ctx context.Context, battleID string, out types.Outcome) (*types.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.battles[battleID]
	if !ok {
		return nil, types.ErrNotFound
	}

	if b.Status == types.BattleResolved {
		stored := *s.outcomes[battleID]
		return &stored, nil
	}
	if b.Status != types.BattleActive {
		return nil, types.ErrConflict
	}

	b.Status = types.BattleResolved
	b.ResolvedAt = &out.ResolvedAt
	b.FinalPriceCents = out.FinalPriceCents
	b.WinnerUserID = out.WinnerUserID
	b.Draw = out.Draw
	b.PayoutCents = out.PayoutCents

	stored := out
	s.outcomes[battleID] = &stored

	if !out.Draw {
		stakeCents := out.PayoutCents / 2

		loserID := b.User1ID
		if out.WinnerUserID == b.User1ID {
			loserID = b.User2ID
		}

		if winner, ok := s.users[out.WinnerUserID]; ok {
			winner.Wins++
			winner.TotalWinningsCents += out.PayoutCents - stakeCents
		}
		if loser, ok := s.users[loserID]; ok {
			loser.Losses++
			loser.TotalWinningsCents -= stakeCents
		}
	}

	cp := stored
	return &cp, nil
}

// GetInvitation loads the invitation for a battle.
func (s *MemoryStore) GetInvitation(ctx context.Context, battleID string) (*types.BattleInvitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invitations[battleID]
	if !ok {
		return nil, types.ErrNotFound
	}

	cp := *inv
	return &cp, nil
}

// ListUserBattles returns battles where the user is either side, newest
// first.
func (s *MemoryStore) ListUserBattles(ctx context.Context, userID string) ([]*types.Battle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*types.Battle
	for _, b := range s.battles {
		if b.IsParticipant(userID) {
			cp := *b
			out = append(out, &cp)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out, nil
}

// ListBattleHistory returns the user's resolved battles, newest first.
func (s *MemoryStore) ListBattleHistory(ctx context.Context, userID string, limit int) ([]*types.Battle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*types.Battle
	for _, b := range s.battles {
		if b.IsParticipant(userID) && b.Status == types.BattleResolved {
			cp := *b
			out = append(out, &cp)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

// UpsertUser creates or updates a user by id.
func (s *MemoryStore) UpsertUser(ctx context.Context, u *types.User) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[u.ID]
	if !ok {
		cp := *u
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = s.now()
		}
		s.users[cp.ID] = &cp

		out := cp
		return &out, nil
	}

	// Profile fields update; tallies and creation time are preserved.
	if u.Username != "" {
		existing.Username = u.Username
	}
	if u.XUsername != "" {
		existing.XUsername = u.XUsername
	}
	if u.WalletAddress != "" {
		existing.WalletAddress = u.WalletAddress
	}

	cp := *existing
	return &cp, nil
}

// GetUser loads a user by id.
func (s *MemoryStore) GetUser(ctx context.Context, id string) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, types.ErrNotFound
	}

	cp := *u
	return &cp, nil
}

// Leaderboard returns users ordered by winnings, then wins.
func (s *MemoryStore) Leaderboard(ctx context.Context, limit int) ([]*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*types.User
	for _, u := range s.users {
		cp := *u
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalWinningsCents != out[j].TotalWinningsCents {
			return out[i].TotalWinningsCents > out[j].TotalWinningsCents
		}
		if out[i].Wins != out[j].Wins {
			return out[i].Wins > out[j].Wins
		}
		return out[i].ID < out[j].ID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

// Ping is a no-op for the in-memory store.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	s.logger.Info("closing-memory-store")
	return nil
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)
