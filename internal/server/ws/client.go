package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	channels map[string]bool
	// markets filters events by market id; empty means all markets.
	markets map[string]bool
}

// controlMsg is what clients send to change their subscription:
//
//	{"action":"subscribe","channels":["trades"]}
//	{"action":"unsubscribe","channels":["markets"]}
//	{"action":"markets","markets":["1","7"]}
type controlMsg struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
	Markets  []string `json:"markets"`
}

func newClient(h *Hub, conn *websocket.Conn) *client {
	c := &client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		channels: make(map[string]bool),
		markets:  make(map[string]bool),
	}
	c.setChannels(Channels)
	return c
}

func (c *client) setChannels(chs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels = make(map[string]bool, len(chs))
	for _, ch := range chs {
		c.channels[ch] = true
	}
}

func (c *client) setMarkets(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markets = make(map[string]bool, len(ids))
	for _, id := range ids {
		c.markets[id] = true
	}
}

func (c *client) wants(channel, marketID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.channels[channel] {
		return false
	}
	return len(c.markets) == 0 || c.markets[marketID]
}

func (c *client) handleControl(msg controlMsg) {
	switch msg.Action {
	case "subscribe":
		c.mu.Lock()
		for _, ch := range msg.Channels {
			c.channels[ch] = true
		}
		c.mu.Unlock()
	case "unsubscribe":
		c.mu.Lock()
		for _, ch := range msg.Channels {
			delete(c.channels, ch)
		}
		c.mu.Unlock()
	case "markets":
		c.setMarkets(msg.Markets)
	}
}

func (c *client) sendHello() {
	markets := 0
	if c.hub.cfg.MarketCount != nil {
		markets = c.hub.cfg.MarketCount()
	}
	msg, err := json.Marshal(map[string]any{
		"type":          "hello",
		"channels":      Channels,
		"markets":       markets,
		"uptimeSeconds": max(int64(time.Since(c.hub.cfg.StartedAt).Seconds()), 0),
	})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var msg controlMsg
		if json.Unmarshal(data, &msg) == nil && msg.Action != "" {
			c.handleControl(msg)
		}
	}
}

// writePump sends events as JSON text frames and keeps the connection alive
// with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
