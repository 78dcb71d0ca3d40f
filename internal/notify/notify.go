// Package notify is the realtime collaborator: lifecycle and market events
// fan out to subscribers over an event bus, and a WebSocket hub bridges the
// bus to connected clients. Delivery is best-effort; the store remains the
// source of truth and notification failure never blocks a transition.
package notify

import (
	"context"
	"time"
)

// Well-known bus channels.
const (
	ChannelMarket      = "market"
	ChannelPredictions = "predictions"
	ChannelBattles     = "battles"

	// UserChannelPrefix scopes events to a single user, e.g. "user:alice".
	UserChannelPrefix = "user:"
)

// Event types emitted by the services.
const (
	EventStakeAccepted     = "stake-accepted"
	EventPriceUpdate       = "price-update"
	EventPredictionCreated = "prediction-created"
	EventPredictionExpired = "prediction-expired"
	EventMatchFound        = "match-found"
	EventBattleAccepted    = "battle-accepted"
	EventBattleActivated   = "battle-activated"
	EventBattleCancelled   = "battle-cancelled"
	EventBattleResolved    = "battle-resolved"
)

// Event is a single notification. Payload is any JSON-marshalable value.
type Event struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// UserChannel returns the bus channel scoped to one user.
func UserChannel(userID string) string {
	return UserChannelPrefix + userID
}

// Bus is the pub/sub surface the services publish into. Two implementations
// exist: an in-process bus for memory mode and a Redis-backed bus for
// multi-instance deployments. Channels ending in '*' subscribe by prefix.
type Bus interface {
	// Publish sends an event to a channel. Best-effort: slow subscribers
	// may miss events, and an error never carries lifecycle state.
	Publish(ctx context.Context, channel string, e Event) error

	// Subscribe returns a channel of events published to the given bus
	// channel. The subscription ends and the returned channel closes when
	// ctx is cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan Event, error)

	// Close releases bus resources.
	Close() error
}
