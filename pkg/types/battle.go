package types

import "time"

// BattleStatus is the lifecycle state of a battle.
type BattleStatus string

const (
	// BattlePending means a match was found and both sides must accept.
	BattlePending BattleStatus = "pending"
	// BattleActive means both sides accepted; the battle is running.
	BattleActive BattleStatus = "active"
	// BattleCancelled means a side declined; predictions went back to
	// searching.
	BattleCancelled BattleStatus = "cancelled"
	// BattleResolved means settlement ran against a final price.
	BattleResolved BattleStatus = "resolved"
)

// InvitationStatus mirrors the battle's acceptance outcome for notification
// purposes. The battle row is the source of truth.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
)

// Battle is a matched pair of opposite-direction, equal-stake predictions.
// It references the predictions by id only; their lifecycle is owned by the
// prediction store.
type Battle struct {
	ID              string       `json:"id"`
	Prediction1ID   string       `json:"prediction1_id"`
	Prediction2ID   string       `json:"prediction2_id"`
	User1ID         string       `json:"user1_id"`
	User2ID         string       `json:"user2_id"`
	User1Accepted   bool         `json:"user1_accepted"`
	User2Accepted   bool         `json:"user2_accepted"`
	User1AcceptedAt *time.Time   `json:"user1_accepted_at,omitempty"`
	User2AcceptedAt *time.Time   `json:"user2_accepted_at,omitempty"`
	Status          BattleStatus `json:"status"`
	CreatedAt       time.Time    `json:"created_at"`
	StartedAt       *time.Time   `json:"started_at,omitempty"`

	// Settlement outcome, populated once Status is BattleResolved.
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	FinalPriceCents int64      `json:"final_price_cents,omitempty"`
	WinnerUserID    string     `json:"winner_user_id,omitempty"`
	Draw            bool       `json:"draw,omitempty"`
	PayoutCents     int64      `json:"payout_cents,omitempty"`
}

// IsParticipant reports whether userID is one of the battle's sides.
func (b *Battle) IsParticipant(userID string) bool {
	return userID == b.User1ID || userID == b.User2ID
}

// BothAccepted reports whether both acceptance flags are set.
func (b *Battle) BothAccepted() bool {
	return b.User1Accepted && b.User2Accepted
}

// BattleInvitation notifies participants that a pending battle awaits their
// acceptance.
type BattleInvitation struct {
	BattleID  string           `json:"battle_id"`
	Status    InvitationStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Outcome is the settlement result of a battle. Resolution is idempotent:
// resolving an already-resolved battle returns the stored outcome unchanged.
type Outcome struct {
	BattleID        string     `json:"battle_id"`
	FinalPriceCents int64      `json:"final_price_cents"`
	WinnerUserID    string     `json:"winner_user_id,omitempty"`
	Draw            bool       `json:"draw"`
	PayoutCents     int64      `json:"payout_cents"`
	ResolvedAt      time.Time  `json:"resolved_at"`
}
