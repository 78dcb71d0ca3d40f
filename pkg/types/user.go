package types

import "time"

// User is an account record. Credentials are verified by the external
// identity collaborator; this service only stores the opaque id it supplies.
type User struct {
	ID                 string    `json:"id"`
	Username           string    `json:"username"`
	XUsername          string    `json:"x_username,omitempty"`
	WalletAddress      string    `json:"wallet_address,omitempty"`
	Wins               int       `json:"wins"`
	Losses             int       `json:"losses"`
	TotalWinningsCents int64     `json:"total_winnings_cents"`
	CreatedAt          time.Time `json:"created_at"`
}
