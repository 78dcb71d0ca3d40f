package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait bounds a single WebSocket write.
	writeWait = 10 * time.Second

	// pongWait is how long a client may stay silent before the read side
	// gives up. pingPeriod must be shorter.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
)

// publicChannels are the bus channels every client receives by default.
var publicChannels = []string{
	ChannelMarket,
	ChannelPredictions,
	ChannelBattles,
}

//nolint:gochecknoglobals // upgrader is stateless
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The API fronts a public frontend; origin policy lives at the edge.
		return true
	},
}

// Hub bridges the event bus to connected WebSocket clients. Each client
// receives the public channels plus their own user channel as JSON text
// frames.
type Hub struct {
	bus    Bus
	logger *zap.Logger

	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan broadcastMsg
	done       chan struct{} // closed when Run returns

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type broadcastMsg struct {
	channel string
	event   Event
}

type wsClient struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

// subscribeMsg is the control frame a client may send to adjust channels.
// Currently informational only: public channels and the user channel are
// fixed server-side.
type subscribeMsg struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

// wsFrame is the envelope written to clients.
type wsFrame struct {
	Channel string `json:"channel"`
	Event   Event  `json:"event"`
}

// HubConfig holds WebSocket hub configuration.
type HubConfig struct {
	Bus    Bus
	Logger *zap.Logger
}

// NewHub creates a hub over the given bus.
func NewHub(cfg *HubConfig) *Hub {
	return &Hub{
		bus:        cfg.Bus,
		logger:     cfg.Logger,
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan broadcastMsg, 256),
		done:       make(chan struct{}),
		clients:    make(map[*wsClient]struct{}),
	}
}

// Run drives registration and fan-out until ctx is cancelled. Call in a
// goroutine.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for _, ch := range publicChannels {
		go h.pump(ctx, ch)
	}
	go h.pump(ctx, UserChannelPrefix+"*")

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()

			WSClientsConnected.Set(float64(total))
			h.logger.Info("ws-client-connected",
				zap.String("user_id", c.userID),
				zap.Int("total_clients", total))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()

			WSClientsConnected.Set(float64(total))
			h.logger.Info("ws-client-disconnected",
				zap.Int("total_clients", total))

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// pump subscribes to one bus channel and forwards its events into the hub.
func (h *Hub) pump(ctx context.Context, channel string) {
	events, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("hub-subscribe-failed",
			zap.String("channel", channel),
			zap.Error(err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			select {
			case h.broadcast <- broadcastMsg{channel: channel, event: e}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// deliver writes one event to every client entitled to its channel.
func (h *Hub) deliver(msg broadcastMsg) {
	frame, err := json.Marshal(wsFrame{Channel: msg.channel, Event: msg.event})
	if err != nil {
		h.logger.Warn("frame-marshal-failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.entitled(msg.channel) {
			continue
		}
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("dropping-frame-for-slow-client",
				zap.String("user_id", c.userID))
		}
	}
}

// entitled reports whether the client may receive events from the channel.
func (c *wsClient) entitled(channel string) bool {
	for _, pub := range publicChannels {
		if channel == pub {
			return true
		}
	}
	return c.userID != "" && channel == UserChannel(c.userID)
}

// HandleWS upgrades the request and registers the client. userID may be
// empty for anonymous clients, which then receive public channels only.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws-upgrade-failed", zap.Error(err))
		return
	}

	c := &wsClient{
		hub:    h,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, subscriberBufferSize),
	}

	select {
	case h.register <- c:
	case <-h.done:
		// The hub already stopped; refuse the client.
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws-unexpected-close", zap.Error(err))
			}
			return
		}

		// Control frames are accepted but channels are server-assigned.
		var sub subscribeMsg
		_ = json.Unmarshal(message, &sub)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
			WSMessagesSentTotal.Inc()

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
