package notify

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// subscriberBufferSize is the per-subscriber event buffer. A subscriber that
// falls this far behind starts dropping events.
const subscriberBufferSize = 128

// MemoryBus is an in-process Bus. Publishes fan out to matching subscribers
// without blocking: a full subscriber buffer drops the event and counts it.
type MemoryBus struct {
	logger *zap.Logger

	mu   sync.Mutex
	subs map[*memorySub]struct{}
}

type memorySub struct {
	pattern string
	ch      chan Event
}

// MemoryConfig holds in-process bus configuration.
type MemoryConfig struct {
	Logger *zap.Logger
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus(cfg *MemoryConfig) *MemoryBus {
	return &MemoryBus{
		logger: cfg.Logger,
		subs:   make(map[*memorySub]struct{}),
	}
}

// Publish fans the event out to every subscriber whose pattern matches.
func (b *MemoryBus) Publish(ctx context.Context, channel string, e Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	// One publish is one event regardless of subscriber count, matching the
	// Redis bus.
	EventsPublishedTotal.WithLabelValues(channel).Inc()

	for sub := range b.subs {
		if !channelMatches(sub.pattern, channel) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			EventsDroppedTotal.WithLabelValues(channel).Inc()
		}
	}

	return nil
}

// Subscribe registers a subscriber for a channel or trailing-'*' prefix
// pattern.
func (b *MemoryBus) Subscribe(ctx context.Context, channel string) (<-chan Event, error) {
	sub := &memorySub{
		pattern: channel,
		ch:      make(chan Event, subscriberBufferSize),
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	out := make(chan Event, subscriberBufferSize)
	go func() {
		defer close(out)
		defer func() {
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case e := <-sub.ch:
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close drops all subscribers.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs = make(map[*memorySub]struct{})
	b.logger.Info("memory-bus-closed")
	return nil
}

// channelMatches reports whether a channel name matches a subscription
// pattern. A trailing '*' matches by prefix, e.g. "user:*" matches
// "user:alice".
func channelMatches(pattern, channel string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(channel, pattern[:len(pattern)-1])
	}
	return pattern == channel
}

// Compile-time interface check.
var _ Bus = (*MemoryBus)(nil)
