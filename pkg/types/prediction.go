package types

import "time"

// PredictionStatus is the matchmaking state of a prediction.
type PredictionStatus string

const (
	// PredictionSearching means the prediction is eligible for matchmaking.
	PredictionSearching PredictionStatus = "searching"
	// PredictionMatched means the prediction has been paired into a battle.
	PredictionMatched PredictionStatus = "matched"
	// PredictionCancelled means the owner cancelled it or it expired.
	PredictionCancelled PredictionStatus = "cancelled"
)

// Prediction is a single user's price call awaiting (or holding) a match.
// ReferencePriceCents is the BTC price observed at submission time; the
// settlement rule compares the final price against it.
type Prediction struct {
	ID                  string           `json:"id"`
	UserID              string           `json:"user_id"`
	PredictedPriceCents int64            `json:"predicted_price_cents"`
	Direction           Side             `json:"direction"`
	BetAmountCents      int64            `json:"bet_amount_cents"`
	ReferencePriceCents int64            `json:"reference_price_cents"`
	Status              PredictionStatus `json:"status"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// Matchable reports whether other is a valid opponent for p: opposite
// direction, equal bet amount, different user, and both still searching.
func (p *Prediction) Matchable(other *Prediction) bool {
	if other == nil || p.ID == other.ID || p.UserID == other.UserID {
		return false
	}
	if p.Status != PredictionSearching || other.Status != PredictionSearching {
		return false
	}
	return other.Direction == p.Direction.Opposite() &&
		other.BetAmountCents == p.BetAmountCents
}
