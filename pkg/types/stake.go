package types

import "time"

// Side is the direction of a wager relative to the market's target price.
type Side string

const (
	SideAbove Side = "above"
	SideBelow Side = "below"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideAbove || s == SideBelow
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideAbove {
		return SideBelow
	}
	return SideAbove
}

// Stake is an accepted pool wager. Stakes are append-only: once accepted they
// are never mutated or deleted, and the market's pool totals are the sum of
// all accepted stakes.
type Stake struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username,omitempty"`
	Side        Side      `json:"side"`
	AmountCents int64     `json:"amount_cents"`
	PlacedAt    time.Time `json:"placed_at"`
}
