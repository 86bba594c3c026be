// Package ws streams ledger events to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/predictionledger/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Channels forwarded to clients.
var Channels = []string{
	domain.ChannelMarkets,
	domain.ChannelTrades,
	domain.ChannelResolutions,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Config holds runtime metadata sent to clients on connect.
type Config struct {
	StartedAt time.Time
	// MarketCount reports the current number of markets; may be nil.
	MarketCount func() int
}

// Hub relays ledger events from the signal bus to connected clients. A
// client receives every channel by default and may narrow the stream to
// specific channels and markets.
type Hub struct {
	bus    domain.SignalBus
	cfg    Config
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*client]bool

	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	ready      chan struct{}
	done       chan struct{}
}

type broadcastMsg struct {
	channel  string
	marketID string
	data     []byte
}

// NewHub creates a Hub reading from bus.
func NewHub(bus domain.SignalBus, cfg Config, logger *slog.Logger) *Hub {
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	return &Hub{
		bus:        bus,
		cfg:        cfg,
		logger:     logger,
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Ready is closed once the hub is subscribed to every channel.
func (h *Hub) Ready() <-chan struct{} {
	return h.ready
}

// Run subscribes to the ledger channels and serves clients until ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for _, ch := range Channels {
		msgs, err := h.bus.Subscribe(ctx, ch)
		if err != nil {
			h.logger.ErrorContext(ctx, "ws: subscribe failed",
				slog.String("channel", ch),
				slog.String("error", err.Error()),
			)
			continue
		}
		go h.forward(ctx, ch, msgs)
	}
	close(h.ready)

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
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", n))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.wants(msg.channel, msg.marketID) {
					continue
				}
				select {
				case c.send <- msg.data:
				default:
					h.logger.Warn("ws: dropping message for slow client", slog.String("channel", msg.channel))
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) forward(ctx context.Context, channel string, msgs <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				return
			}
			var evt struct {
				Market *struct {
					ID string `json:"id"`
				} `json:"market"`
			}
			marketID := ""
			if json.Unmarshal(data, &evt) == nil && evt.Market != nil {
				marketID = evt.Market.ID
			}
			select {
			case h.broadcast <- broadcastMsg{channel: channel, marketID: marketID, data: data}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades the request and registers the client. The optional
// query parameters channels=a,b and markets=1,2 narrow the stream.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(h, conn)
	if chs := splitList(r.URL.Query().Get("channels")); len(chs) > 0 {
		c.setChannels(chs)
	}
	c.setMarkets(splitList(r.URL.Query().Get("markets")))

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		_ = conn.Close()
		return
	}

	c.sendHello()
	go c.writePump()
	go c.readPump()
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
