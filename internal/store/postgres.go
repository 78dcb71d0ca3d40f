package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pvpbtc/btcbattle/pkg/types"
	"go.uber.org/zap"
)

// PostgresStore implements Store using PostgreSQL.
//
// Expected schema:
//
//	users(id TEXT PK, username TEXT, x_username TEXT, wallet_address TEXT,
//	      wins INT, losses INT, total_winnings_cents BIGINT, created_at TIMESTAMPTZ)
//	predictions(id TEXT PK, user_id TEXT, predicted_price_cents BIGINT,
//	      direction TEXT, bet_amount_cents BIGINT, reference_price_cents BIGINT,
//	      status TEXT, created_at TIMESTAMPTZ, updated_at TIMESTAMPTZ)
//	battles(id TEXT PK, prediction1_id TEXT, prediction2_id TEXT,
//	      user1_id TEXT, user2_id TEXT, user1_accepted BOOL, user2_accepted BOOL,
//	      user1_accepted_at TIMESTAMPTZ NULL, user2_accepted_at TIMESTAMPTZ NULL,
//	      status TEXT, created_at TIMESTAMPTZ, started_at TIMESTAMPTZ NULL,
//	      resolved_at TIMESTAMPTZ NULL, final_price_cents BIGINT,
//	      winner_user_id TEXT, draw BOOL, payout_cents BIGINT)
//	battle_invitations(battle_id TEXT PK, status TEXT,
//	      created_at TIMESTAMPTZ, updated_at TIMESTAMPTZ)
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresStore creates a new PostgreSQL store.
func NewPostgresStore(cfg *PostgresConfig) (*PostgresStore, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Ping()
	if err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	cfg.Logger.Info("postgres-store-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return &PostgresStore{
		db:     db,
		logger: cfg.Logger,
	}, nil
}

const predictionColumns = `id, user_id, predicted_price_cents, direction,
	bet_amount_cents, reference_price_cents, status, created_at, updated_at`

const battleColumns = `id, prediction1_id, prediction2_id, user1_id, user2_id,
	user1_accepted, user2_accepted, user1_accepted_at, user2_accepted_at,
	status, created_at, started_at, resolved_at, final_price_cents,
	winner_user_id, draw, payout_cents`

// CreatePrediction persists a new prediction.
func (p *PostgresStore) CreatePrediction(ctx context.Context, pred *types.Prediction) error {
	query := `
		INSERT INTO predictions (` + predictionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := p.db.ExecContext(ctx, query,
		pred.ID,
		pred.UserID,
		pred.PredictedPriceCents,
		string(pred.Direction),
		pred.BetAmountCents,
		pred.ReferencePriceCents,
		string(pred.Status),
		pred.CreatedAt,
		pred.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}

	return nil
}

// GetPrediction loads a prediction by id.
func (p *PostgresStore) GetPrediction(ctx context.Context, id string) (*types.Prediction, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+predictionColumns+` FROM predictions WHERE id = $1`, id)

	pred, err := scanPrediction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("select prediction: %w", err)
	}

	return pred, nil
}

// ListSearching returns searching predictions in tie-break order.
func (p *PostgresStore) ListSearching(ctx context.Context) ([]*types.Prediction, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+predictionColumns+` FROM predictions
		 WHERE status = $1 ORDER BY created_at ASC, id ASC`,
		string(types.PredictionSearching))
	if err != nil {
		return nil, fmt.Errorf("select searching predictions: %w", err)
	}
	defer rows.Close()

	return collectPredictions(rows)
}

// ListUserSearching returns the user's searching predictions, newest first.
func (p *PostgresStore) ListUserSearching(ctx context.Context, userID string) ([]*types.Prediction, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+predictionColumns+` FROM predictions
		 WHERE user_id = $1 AND status = $2 ORDER BY created_at DESC`,
		userID, string(types.PredictionSearching))
	if err != nil {
		return nil, fmt.Errorf("select user predictions: %w", err)
	}
	defer rows.Close()

	return collectPredictions(rows)
}

// CancelPrediction cancels a searching prediction, owner-only. The status
// predicate in the UPDATE is the concurrency guard: a prediction claimed by
// a racing match attempt is not cancellable.
func (p *PostgresStore) CancelPrediction(ctx context.Context, id, userID string) (*types.Prediction, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE predictions SET status = $1, updated_at = now()
		WHERE id = $2 AND user_id = $3 AND status = $4
		RETURNING `+predictionColumns,
		string(types.PredictionCancelled), id, userID, string(types.PredictionSearching))

	pred, err := scanPrediction(row)
	if err == nil {
		return pred, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cancel prediction: %w", err)
	}

	// Guard lost: distinguish missing, foreign, and already-transitioned.
	existing, getErr := p.GetPrediction(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if existing.UserID != userID {
		return nil, types.ErrNotParticipant
	}
	return nil, types.ErrConflict
}

// ExpireSearching cancels stale searching predictions.
func (p *PostgresStore) ExpireSearching(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE predictions SET status = $1, updated_at = now()
		WHERE status = $2 AND created_at < $3`,
		string(types.PredictionCancelled), string(types.PredictionSearching), cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire predictions: %w", err)
	}

	swept, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire predictions rows: %w", err)
	}

	return swept, nil
}

// ClaimMatch claims both predictions and creates the battle in one
// transaction. The status-guarded UPDATE must touch exactly two rows or the
// claim was lost to a racing caller.
func (p *PostgresStore) ClaimMatch(ctx context.Context, battle *types.Battle) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin claim: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE predictions SET status = $1, updated_at = $2
		WHERE id = ANY($3) AND status = $4`,
		string(types.PredictionMatched),
		battle.CreatedAt,
		pq.Array([]string{battle.Prediction1ID, battle.Prediction2ID}),
		string(types.PredictionSearching))
	if err != nil {
		return fmt.Errorf("claim predictions: %w", err)
	}

	claimed, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim predictions rows: %w", err)
	}
	if claimed != 2 {
		return types.ErrConflict
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO battles (id, prediction1_id, prediction2_id, user1_id, user2_id,
			user1_accepted, user2_accepted, status, created_at,
			final_price_cents, winner_user_id, draw, payout_cents)
		VALUES ($1, $2, $3, $4, $5, false, false, $6, $7, 0, '', false, 0)`,
		battle.ID, battle.Prediction1ID, battle.Prediction2ID,
		battle.User1ID, battle.User2ID,
		string(types.BattlePending), battle.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert battle: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO battle_invitations (battle_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $3)`,
		battle.ID, string(types.InvitationPending), battle.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert invitation: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit claim: %w", err)
	}

	return nil
}

// GetBattle loads a battle by id.
func (p *PostgresStore) GetBattle(ctx context.Context, id string) (*types.Battle, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+battleColumns+` FROM battles WHERE id = $1`, id)

	b, err := scanBattle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("select battle: %w", err)
	}

	return b, nil
}

// AcceptBattle sets the caller's acceptance flag under a row lock so the
// both-accepted check always sees the latest flags.
func (p *PostgresStore) AcceptBattle(ctx context.Context, battleID, userID string, at time.Time) (*types.Battle, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin accept: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	b, err := lockBattle(ctx, tx, battleID)
	if err != nil {
		return nil, err
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
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE battles SET user1_accepted = $2, user2_accepted = $3,
			user1_accepted_at = $4, user2_accepted_at = $5,
			status = $6, started_at = $7
		WHERE id = $1`,
		battleID, b.User1Accepted, b.User2Accepted,
		nullTime(b.User1AcceptedAt), nullTime(b.User2AcceptedAt),
		string(b.Status), nullTime(b.StartedAt))
	if err != nil {
		return nil, fmt.Errorf("update battle acceptance: %w", err)
	}

	if b.Status == types.BattleActive {
		_, err = tx.ExecContext(ctx, `
			UPDATE battle_invitations SET status = $2, updated_at = $3
			WHERE battle_id = $1`,
			battleID, string(types.InvitationAccepted), at)
		if err != nil {
			return nil, fmt.Errorf("update invitation: %w", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return nil, fmt.Errorf("commit accept: %w", err)
	}

	return b, nil
}

// DeclineBattle cancels a pending battle and resets both predictions to
// searching inside one transaction.
func (p *PostgresStore) DeclineBattle(ctx context.Context, battleID, userID string, at time.Time) (*types.Battle, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin decline: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	b, err := lockBattle(ctx, tx, battleID)
	if err != nil {
		return nil, err
	}
	if !b.IsParticipant(userID) {
		return nil, types.ErrNotParticipant
	}
	if b.Status != types.BattlePending {
		return nil, types.ErrConflict
	}

	b.Status = types.BattleCancelled

	_, err = tx.ExecContext(ctx,
		`UPDATE battles SET status = $2 WHERE id = $1`,
		battleID, string(types.BattleCancelled))
	if err != nil {
		return nil, fmt.Errorf("cancel battle: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE battle_invitations SET status = $2, updated_at = $3
		WHERE battle_id = $1`,
		battleID, string(types.InvitationDeclined), at)
	if err != nil {
		return nil, fmt.Errorf("decline invitation: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE predictions SET status = $1, updated_at = $2
		WHERE id = ANY($3)`,
		string(types.PredictionSearching), at,
		pq.Array([]string{b.Prediction1ID, b.Prediction2ID}))
	if err != nil {
		return nil, fmt.Errorf("release predictions: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return nil, fmt.Errorf("commit decline: %w", err)
	}

	return b, nil
}

// ResolveBattle persists the outcome under an active→resolved guard and
// applies win/loss tallies. Re-resolving returns the stored outcome.
func (p *PostgresStore) ResolveBattle(ctx context.Context, battleID string, out types.Outcome) (*types.Outcome, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin resolve: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	b, err := lockBattle(ctx, tx, battleID)
	if err != nil {
		return nil, err
	}

	if b.Status == types.BattleResolved {
		stored := &types.Outcome{
			BattleID:        b.ID,
			FinalPriceCents: b.FinalPriceCents,
			WinnerUserID:    b.WinnerUserID,
			Draw:            b.Draw,
			PayoutCents:     b.PayoutCents,
		}
		if b.ResolvedAt != nil {
			stored.ResolvedAt = *b.ResolvedAt
		}
		return stored, nil
	}
	if b.Status != types.BattleActive {
		return nil, types.ErrConflict
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE battles SET status = $2, resolved_at = $3, final_price_cents = $4,
			winner_user_id = $5, draw = $6, payout_cents = $7
		WHERE id = $1`,
		battleID, string(types.BattleResolved), out.ResolvedAt,
		out.FinalPriceCents, out.WinnerUserID, out.Draw, out.PayoutCents)
	if err != nil {
		return nil, fmt.Errorf("resolve battle: %w", err)
	}

	if !out.Draw {
		stakeCents := out.PayoutCents / 2

		loserID := b.User1ID
		if out.WinnerUserID == b.User1ID {
			loserID = b.User2ID
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE users SET wins = wins + 1,
				total_winnings_cents = total_winnings_cents + $2
			WHERE id = $1`,
			out.WinnerUserID, out.PayoutCents-stakeCents)
		if err != nil {
			return nil, fmt.Errorf("credit winner: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE users SET losses = losses + 1,
				total_winnings_cents = total_winnings_cents - $2
			WHERE id = $1`,
			loserID, stakeCents)
		if err != nil {
			return nil, fmt.Errorf("debit loser: %w", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return nil, fmt.Errorf("commit resolve: %w", err)
	}

	stored := out
	return &stored, nil
}

// GetInvitation loads the invitation for a battle.
func (p *PostgresStore) GetInvitation(ctx context.Context, battleID string) (*types.BattleInvitation, error) {
	var inv types.BattleInvitation
	var status string

	err := p.db.QueryRowContext(ctx, `
		SELECT battle_id, status, created_at, updated_at
		FROM battle_invitations WHERE battle_id = $1`, battleID).
		Scan(&inv.BattleID, &status, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("select invitation: %w", err)
	}

	inv.Status = types.InvitationStatus(status)
	return &inv, nil
}

// ListUserBattles returns battles where the user is either side.
func (p *PostgresStore) ListUserBattles(ctx context.Context, userID string) ([]*types.Battle, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+battleColumns+` FROM battles
		 WHERE user1_id = $1 OR user2_id = $1
		 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("select user battles: %w", err)
	}
	defer rows.Close()

	return collectBattles(rows)
}

// ListBattleHistory returns the user's resolved battles.
func (p *PostgresStore) ListBattleHistory(ctx context.Context, userID string, limit int) ([]*types.Battle, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+battleColumns+` FROM battles
		 WHERE (user1_id = $1 OR user2_id = $1) AND status = $2
		 ORDER BY created_at DESC LIMIT $3`,
		userID, string(types.BattleResolved), limit)
	if err != nil {
		return nil, fmt.Errorf("select battle history: %w", err)
	}
	defer rows.Close()

	return collectBattles(rows)
}

// UpsertUser creates or updates a user by id, preserving tallies.
func (p *PostgresStore) UpsertUser(ctx context.Context, u *types.User) (*types.User, error) {
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO users (id, username, x_username, wallet_address,
			wins, losses, total_winnings_cents, created_at)
		VALUES ($1, $2, $3, $4, 0, 0, 0, now())
		ON CONFLICT (id) DO UPDATE SET
			username = COALESCE(NULLIF(EXCLUDED.username, ''), users.username),
			x_username = COALESCE(NULLIF(EXCLUDED.x_username, ''), users.x_username),
			wallet_address = COALESCE(NULLIF(EXCLUDED.wallet_address, ''), users.wallet_address)
		RETURNING id, username, x_username, wallet_address,
			wins, losses, total_winnings_cents, created_at`,
		u.ID, u.Username, u.XUsername, u.WalletAddress)

	stored, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	return stored, nil
}

// GetUser loads a user by id.
func (p *PostgresStore) GetUser(ctx context.Context, id string) (*types.User, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, username, x_username, wallet_address,
			wins, losses, total_winnings_cents, created_at
		FROM users WHERE id = $1`, id)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}

	return u, nil
}

// Leaderboard returns users ordered by winnings, then wins.
func (p *PostgresStore) Leaderboard(ctx context.Context, limit int) ([]*types.User, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, username, x_username, wallet_address,
			wins, losses, total_winnings_cents, created_at
		FROM users
		ORDER BY total_winnings_cents DESC, wins DESC, id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select leaderboard: %w", err)
	}
	defer rows.Close()

	var out []*types.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		out = append(out, u)
	}

	return out, rows.Err()
}

// Ping verifies the database connection.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection.
func (p *PostgresStore) Close() error {
	p.logger.Info("closing-postgres-store")
	return p.db.Close()
}

// scanner matches both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPrediction(s scanner) (*types.Prediction, error) {
	var pred types.Prediction
	var direction, status string

	err := s.Scan(
		&pred.ID,
		&pred.UserID,
		&pred.PredictedPriceCents,
		&direction,
		&pred.BetAmountCents,
		&pred.ReferencePriceCents,
		&status,
		&pred.CreatedAt,
		&pred.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	pred.Direction = types.Side(direction)
	pred.Status = types.PredictionStatus(status)
	return &pred, nil
}

func scanBattle(s scanner) (*types.Battle, error) {
	var b types.Battle
	var status string
	var u1At, u2At, startedAt, resolvedAt sql.NullTime

	err := s.Scan(
		&b.ID,
		&b.Prediction1ID,
		&b.Prediction2ID,
		&b.User1ID,
		&b.User2ID,
		&b.User1Accepted,
		&b.User2Accepted,
		&u1At,
		&u2At,
		&status,
		&b.CreatedAt,
		&startedAt,
		&resolvedAt,
		&b.FinalPriceCents,
		&b.WinnerUserID,
		&b.Draw,
		&b.PayoutCents,
	)
	if err != nil {
		return nil, err
	}

	b.Status = types.BattleStatus(status)
	b.User1AcceptedAt = timePtr(u1At)
	b.User2AcceptedAt = timePtr(u2At)
	b.StartedAt = timePtr(startedAt)
	b.ResolvedAt = timePtr(resolvedAt)
	return &b, nil
}

func scanUser(s scanner) (*types.User, error) {
	var u types.User
	err := s.Scan(
		&u.ID,
		&u.Username,
		&u.XUsername,
		&u.WalletAddress,
		&u.Wins,
		&u.Losses,
		&u.TotalWinningsCents,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func collectPredictions(rows *sql.Rows) ([]*types.Prediction, error) {
	var out []*types.Prediction
	for rows.Next() {
		pred, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prediction row: %w", err)
		}
		out = append(out, pred)
	}
	return out, rows.Err()
}

func collectBattles(rows *sql.Rows) ([]*types.Battle, error) {
	var out []*types.Battle
	for rows.Next() {
		b, err := scanBattle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan battle row: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func lockBattle(ctx context.Context, tx *sql.Tx, battleID string) (*types.Battle, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+battleColumns+` FROM battles WHERE id = $1 FOR UPDATE`, battleID)

	b, err := scanBattle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("lock battle: %w", err)
	}

	return b, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)
