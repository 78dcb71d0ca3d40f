package store

import (
	"context"
	"time"

	"github.com/pvpbtc/btcbattle/pkg/cache"
	"github.com/pvpbtc/btcbattle/pkg/types"
	"go.uber.org/zap"
)

// CachedStore is a read-through cache in front of a Store. Single-record
// reads (battle, prediction, user) are cached with a short TTL; every write
// that can change a record invalidates its key. List queries always hit the
// backing store.
type CachedStore struct {
	inner  Store
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// CachedConfig holds configuration for CachedStore.
type CachedConfig struct {
	Inner  Store
	Cache  cache.Cache
	TTL    time.Duration
	Logger *zap.Logger
}

// NewCachedStore wraps a store with a record cache.
func NewCachedStore(cfg *CachedConfig) *CachedStore {
	return &CachedStore{
		inner:  cfg.Inner,
		cache:  cfg.Cache,
		ttl:    cfg.TTL,
		logger: cfg.Logger,
	}
}

func battleKey(id string) string     { return "battle:" + id }
func predictionKey(id string) string { return "prediction:" + id }
func userKey(id string) string       { return "user:" + id }

// CreatePrediction passes through to the backing store.
func (c *CachedStore) CreatePrediction(ctx context.Context, p *types.Prediction) error {
	return c.inner.CreatePrediction(ctx, p)
}

// GetPrediction serves from cache when possible.
func (c *CachedStore) GetPrediction(ctx context.Context, id string) (*types.Prediction, error) {
	if v, ok := c.cache.Get(predictionKey(id)); ok {
		if p, ok := v.(*types.Prediction); ok {
			return p, nil
		}
	}

	p, err := c.inner.GetPrediction(ctx, id)
	if err != nil {
		return nil, err
	}

	c.cache.Set(predictionKey(id), p, c.ttl)
	return p, nil
}

// ListSearching always hits the backing store: matchmaking must not see
// stale candidates.
func (c *CachedStore) ListSearching(ctx context.Context) ([]*types.Prediction, error) {
	return c.inner.ListSearching(ctx)
}

// ListUserSearching passes through to the backing store.
func (c *CachedStore) ListUserSearching(ctx context.Context, userID string) ([]*types.Prediction, error) {
	return c.inner.ListUserSearching(ctx, userID)
}

// CancelPrediction invalidates the prediction on success.
func (c *CachedStore) CancelPrediction(ctx context.Context, id, userID string) (*types.Prediction, error) {
	p, err := c.inner.CancelPrediction(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	c.cache.Delete(predictionKey(id))
	return p, nil
}

// ExpireSearching clears the whole cache when anything was swept: the sweep
// does not report which predictions it touched.
func (c *CachedStore) ExpireSearching(ctx context.Context, cutoff time.Time) (int64, error) {
	swept, err := c.inner.ExpireSearching(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if swept > 0 {
		c.cache.Clear()
	}
	return swept, nil
}

// ClaimMatch invalidates both claimed predictions.
func (c *CachedStore) ClaimMatch(ctx context.Context, battle *types.Battle) error {
	err := c.inner.ClaimMatch(ctx, battle)
	if err != nil {
		return err
	}

	c.cache.Delete(predictionKey(battle.Prediction1ID))
	c.cache.Delete(predictionKey(battle.Prediction2ID))
	return nil
}

// GetBattle serves from cache when possible.
func (c *CachedStore) GetBattle(ctx context.Context, id string) (*types.Battle, error) {
	if v, ok := c.cache.Get(battleKey(id)); ok {
		if b, ok := v.(*types.Battle); ok {
			return b, nil
		}
	}

	b, err := c.inner.GetBattle(ctx, id)
	if err != nil {
		return nil, err
	}

	c.cache.Set(battleKey(id), b, c.ttl)
	return b, nil
}

// AcceptBattle invalidates the battle on success.
func (c *CachedStore) AcceptBattle(ctx context.Context, battleID, userID string, at time.Time) (*types.Battle, error) {
	b, err := c.inner.AcceptBattle(ctx, battleID, userID, at)
	if err != nil {
		return nil, err
	}

	c.cache.Delete(battleKey(battleID))
	return b, nil
}

// DeclineBattle invalidates the battle and both released predictions.
func (c *CachedStore) DeclineBattle(ctx context.Context, battleID, userID string, at time.Time) (*types.Battle, error) {
	b, err := c.inner.DeclineBattle(ctx, battleID, userID, at)
	if err != nil {
		return nil, err
	}

	c.cache.Delete(battleKey(battleID))
	c.cache.Delete(predictionKey(b.Prediction1ID))
	c.cache.Delete(predictionKey(b.Prediction2ID))
	return b, nil
}

// ResolveBattle invalidates the battle and both participants' user records,
// whose tallies change with the outcome.
func (c *CachedStore) ResolveBattle(ctx context.Context, battleID string, out types.Outcome) (*types.Outcome, error) {
	stored, err := c.inner.ResolveBattle(ctx, battleID, out)
	if err != nil {
		return nil, err
	}

	c.cache.Delete(battleKey(battleID))
	if b, err := c.inner.GetBattle(ctx, battleID); err == nil {
		c.cache.Delete(userKey(b.User1ID))
		c.cache.Delete(userKey(b.User2ID))
	}
	return stored, nil
}

// GetInvitation passes through to the backing store.
func (c *CachedStore) GetInvitation(ctx context.Context, battleID string) (*types.BattleInvitation, error) {
	return c.inner.GetInvitation(ctx, battleID)
}

// ListUserBattles passes through to the backing store.
func (c *CachedStore) ListUserBattles(ctx context.Context, userID string) ([]*types.Battle, error) {
	return c.inner.ListUserBattles(ctx, userID)
}

// ListBattleHistory passes through to the backing store.
func (c *CachedStore) ListBattleHistory(ctx context.Context, userID string, limit int) ([]*types.Battle, error) {
	return c.inner.ListBattleHistory(ctx, userID, limit)
}

// UpsertUser invalidates the user on success.
func (c *CachedStore) UpsertUser(ctx context.Context, u *types.User) (*types.User, error) {
	stored, err := c.inner.UpsertUser(ctx, u)
	if err != nil {
		return nil, err
	}

	c.cache.Delete(userKey(stored.ID))
	return stored, nil
}

// GetUser serves from cache when possible.
func (c *CachedStore) GetUser(ctx context.Context, id string) (*types.User, error) {
	if v, ok := c.cache.Get(userKey(id)); ok {
		if u, ok := v.(*types.User); ok {
			return u, nil
		}
	}

	u, err := c.inner.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	c.cache.Set(userKey(id), u, c.ttl)
	return u, nil
}

// Leaderboard passes through to the backing store.
func (c *CachedStore) Leaderboard(ctx context.Context, limit int) ([]*types.User, error) {
	return c.inner.Leaderboard(ctx, limit)
}

// Ping passes through to the backing store.
func (c *CachedStore) Ping(ctx context.Context) error {
	return c.inner.Ping(ctx)
}

// Close closes the cache, then the backing store.
func (c *CachedStore) Close() error {
	c.cache.Close()
	return c.inner.Close()
}

// Compile-time interface check.
var _ Store = (*CachedStore)(nil)
