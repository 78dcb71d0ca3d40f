package notify

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func newTestHub(t *testing.T) (*Hub, *MemoryBus) {
	t.Helper()
	bus := newTestBus(t)
	return NewHub(&HubConfig{Bus: bus, Logger: zap.NewNop()}), bus
}

func TestHub_PumpStopsWithFullBroadcastBuffer(t *testing.T) {
	h, bus := newTestHub(t)

	// Fill the broadcast buffer so forwarding would block.
	for i := 0; i < cap(h.broadcast); i++ {
		h.broadcast <- broadcastMsg{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	pumpDone := make(chan struct{})
	go func() {
		h.pump(ctx, ChannelMarket)
		close(pumpDone)
	}()

	// Wait for the pump's subscription to land, hand it an event it cannot
	// forward, then cancel.
	for {
		bus.mu.Lock()
		n := len(bus.subs)
		bus.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if err := bus.Publish(ctx, ChannelMarket, Event{Type: EventPriceUpdate}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-pumpDone:
	case <-time.After(time.Second):
		t.Fatal("pump did not stop while the broadcast buffer was full")
	}
}

func TestHub_HandleWSAfterShutdownRefusesClient(t *testing.T) {
	h, _ := newTestHub(t)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		_ = h.Run(ctx)
		close(runDone)
	}()
	cancel()
	<-runDone

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.HandleWS(w, r, "alice")
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// A stopped hub closes the connection instead of registering it. A read
	// deadline hit here would mean the handler is parked on the register
	// channel with the connection left open.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if err == nil {
		t.Fatal("expected closed connection from a stopped hub")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		t.Fatal("hub left the connection open instead of refusing it")
	}
}
