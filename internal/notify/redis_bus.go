package notify

import (
	"context"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus is a Bus backed by Redis Pub/Sub, for deployments running more
// than one instance. Events cross the wire as JSON.
type RedisBus struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// RedisConfig holds Redis bus configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Logger   *zap.Logger
}

// NewRedisBus connects to Redis and verifies the connection.
func NewRedisBus(ctx context.Context, cfg *RedisConfig) (*RedisBus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	err := rdb.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	cfg.Logger.Info("redis-bus-connected", zap.String("addr", cfg.Addr))

	return &RedisBus{
		rdb:    rdb,
		logger: cfg.Logger,
	}, nil
}

// Publish marshals the event and sends it to a Redis channel.
func (b *RedisBus) Publish(ctx context.Context, channel string, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = b.rdb.Publish(ctx, channel, payload).Err()
	if err != nil {
		EventsDroppedTotal.WithLabelValues(channel).Inc()
		return fmt.Errorf("publish %s: %w", channel, err)
	}

	EventsPublishedTotal.WithLabelValues(channel).Inc()
	return nil
}

// Subscribe creates a Redis Pub/Sub subscription. Patterns with a trailing
// '*' use PSUBSCRIBE. The subscription closes with the context.
func (b *RedisBus) Subscribe(ctx context.Context, channel string) (<-chan Event, error) {
	var pubsub *redis.PubSub
	if strings.ContainsAny(channel, "*?[") {
		pubsub = b.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = b.rdb.Subscribe(ctx, channel)
	}

	// Wait for the subscription confirmation before handing the channel out.
	_, err := pubsub.Receive(ctx)
	if err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	out := make(chan Event, subscriberBufferSize)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					b.logger.Warn("bad-event-payload",
						zap.String("channel", msg.Channel),
						zap.Error(err))
					continue
				}

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

// Close closes the Redis connection.
func (b *RedisBus) Close() error {
	b.logger.Info("redis-bus-closed")
	return b.rdb.Close()
}

// Compile-time interface check.
var _ Bus = (*RedisBus)(nil)
