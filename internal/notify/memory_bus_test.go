package notify

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func newTestBus(t *testing.T) *MemoryBus {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	return NewMemoryBus(&MemoryConfig{Logger: logger})
}

func recvEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := bus.Subscribe(ctx, ChannelBattles)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	want := Event{Type: EventMatchFound, Timestamp: time.Now()}
	if err := bus.Publish(ctx, ChannelBattles, want); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := recvEvent(t, events)
	if got.Type != EventMatchFound {
		t.Errorf("expected %s, got %s", EventMatchFound, got.Type)
	}
}

func TestMemoryBus_ChannelIsolation(t *testing.T) {
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	battles, err := bus.Subscribe(ctx, ChannelBattles)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := bus.Publish(ctx, ChannelMarket, Event{Type: EventStakeAccepted}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case e := <-battles:
		t.Errorf("battles subscriber received foreign event %s", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBus_WildcardSubscription(t *testing.T) {
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	users, err := bus.Subscribe(ctx, UserChannelPrefix+"*")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := bus.Publish(ctx, UserChannel("alice"), Event{Type: EventBattleAccepted}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := recvEvent(t, users)
	if got.Type != EventBattleAccepted {
		t.Errorf("expected %s, got %s", EventBattleAccepted, got.Type)
	}
}

func TestMemoryBus_SubscriptionEndsWithContext(t *testing.T) {
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())

	events, err := bus.Subscribe(ctx, ChannelMarket)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	cancel()

	select {
	case _, ok := <-events:
		if ok {
			t.Error("expected channel to close after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel did not close after cancel")
	}
}

func TestMemoryBus_PublishCountsOncePerPublish(t *testing.T) {
	bus := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel := UserChannel("counter-check")

	if _, err := bus.Subscribe(ctx, channel); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := bus.Subscribe(ctx, UserChannelPrefix+"*"); err != nil {
		t.Fatalf("subscribe wildcard: %v", err)
	}

	before := testutil.ToFloat64(EventsPublishedTotal.WithLabelValues(channel))
	if err := bus.Publish(ctx, channel, Event{Type: EventBattleResolved}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	after := testutil.ToFloat64(EventsPublishedTotal.WithLabelValues(channel))

	// Two matching subscribers, one publish: the counter moves by exactly
	// one, same as the Redis bus.
	if got := after - before; got != 1 {
		t.Errorf("published delta = %v, want 1", got)
	}
}

func TestChannelMatches(t *testing.T) {
	tests := []struct {
		pattern string
		channel string
		want    bool
	}{
		{ChannelBattles, ChannelBattles, true},
		{ChannelBattles, ChannelMarket, false},
		{"user:*", "user:alice", true},
		{"user:*", "market", false},
		{"user:alice", "user:alice", true},
		{"user:alice", "user:bob", false},
	}

	for _, tt := range tests {
		got := channelMatches(tt.pattern, tt.channel)
		if got != tt.want {
			t.Errorf("channelMatches(%q, %q) = %v, want %v",
				tt.pattern, tt.channel, got, tt.want)
		}
	}
}
