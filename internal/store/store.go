// Package store is the persistence collaborator: predictions, battles,
// invitations, and users. Two implementations exist, Postgres for
// production and an in-memory store for tests and single-process runs,
// following the same contract. The lifecycle operations that the original
// backend hid behind stored procedures (claiming a match, acceptance,
// resolution) are explicit atomic methods here so matchmaking logic stays a
// pure function on top of them.
package store

import (
	"context"
	"time"

	"github.com/pvpbtc/btcbattle/pkg/types"
)

// PredictionStore manages prediction records and their matchmaking state.
type PredictionStore interface {
	// CreatePrediction persists a new prediction in searching state.
	CreatePrediction(ctx context.Context, p *types.Prediction) error

	// GetPrediction loads a prediction by id.
	GetPrediction(ctx context.Context, id string) (*types.Prediction, error)

	// ListSearching returns all searching predictions ordered by
	// created_at ascending, id ascending. The ordering is the matching
	// tie-break: earliest-created candidates are considered first.
	ListSearching(ctx context.Context) ([]*types.Prediction, error)

	// ListUserSearching returns the user's searching predictions, newest
	// first.
	ListUserSearching(ctx context.Context, userID string) ([]*types.Prediction, error)

	// CancelPrediction cancels a searching prediction. Only the owner may
	// cancel; a prediction that already left searching is ErrConflict.
	CancelPrediction(ctx context.Context, id, userID string) (*types.Prediction, error)

	// ExpireSearching cancels searching predictions created before cutoff
	// and returns how many were swept.
	ExpireSearching(ctx context.Context, cutoff time.Time) (int64, error)
}

// BattleStore manages battle records and the atomic lifecycle transitions.
type BattleStore interface {
	// ClaimMatch atomically transitions both predictions from searching to
	// matched and creates the battle in pending state with a pending
	// invitation. If either prediction is no longer searching the whole
	// operation fails with ErrConflict and nothing is written.
	ClaimMatch(ctx context.Context, battle *types.Battle) error

	// GetBattle loads a battle by id.
	GetBattle(ctx context.Context, id string) (*types.Battle, error)

	// AcceptBattle sets the caller's acceptance flag and timestamp. When
	// both flags become true inside the same atomic update, the battle
	// transitions to active with a start timestamp and the invitation is
	// marked accepted. ErrNotParticipant if userID is neither side;
	// ErrConflict if the battle is not pending.
	AcceptBattle(ctx context.Context, battleID, userID string, at time.Time) (*types.Battle, error)

	// DeclineBattle cancels a pending battle, marks the invitation
	// declined, and resets both referenced predictions to searching.
	// ErrNotParticipant if userID is neither side; ErrConflict if the
	// battle is not pending.
	DeclineBattle(ctx context.Context, battleID, userID string, at time.Time) (*types.Battle, error)

	// ResolveBattle persists a settlement outcome under an active→resolved
	// status guard and applies win/loss tallies to the participants. When
	// the battle is already resolved the stored outcome is returned
	// unchanged, making resolution idempotent. ErrConflict if the battle
	// never became active.
	ResolveBattle(ctx context.Context, battleID string, out types.Outcome) (*types.Outcome, error)

	// GetInvitation loads the invitation mirroring a battle's acceptance
	// state.
	GetInvitation(ctx context.Context, battleID string) (*types.BattleInvitation, error)

	// ListUserBattles returns battles where the user is either side,
	// newest first.
	ListUserBattles(ctx context.Context, userID string) ([]*types.Battle, error)

	// ListBattleHistory returns the user's resolved battles, newest first,
	// capped at limit.
	ListBattleHistory(ctx context.Context, userID string, limit int) ([]*types.Battle, error)
}

// UserStore manages account records.
type UserStore interface {
	// UpsertUser creates or updates a user by id and returns the stored
	// row.
	UpsertUser(ctx context.Context, u *types.User) (*types.User, error)

	// GetUser loads a user by id.
	GetUser(ctx context.Context, id string) (*types.User, error)

	// Leaderboard returns users ordered by total winnings descending, then
	// wins descending, capped at limit.
	Leaderboard(ctx context.Context, limit int) ([]*types.User, error)
}

// Store is the full persistence surface.
type Store interface {
	PredictionStore
	BattleStore
	UserStore

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close closes the storage connection.
	Close() error
}
