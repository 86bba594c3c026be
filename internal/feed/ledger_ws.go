// Package feed consumes the ledger's WebSocket event stream.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/predictionledger/internal/domain"
)

const (
	handshakeTimeout  = 15 * time.Second
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// EventHandler is called for each ledger event received.
type EventHandler func(ctx context.Context, evt domain.LedgerEvent)

// Config configures a LedgerFeed.
type Config struct {
	// URL is the ws:// or wss:// address of the /ws endpoint.
	URL string
	// Channels narrows the stream; empty receives every channel.
	Channels []string
	// Markets narrows the stream to these market ids; empty receives all.
	Markets []string
	// ReconnectDelay is the first backoff after a disconnect (2s when zero).
	// It doubles up to one minute.
	ReconnectDelay time.Duration
}

// LedgerFeed connects to a ledger server's WebSocket, optionally narrows the
// subscription, and invokes the handler on each event. It reconnects with
// exponential backoff on disconnect.
type LedgerFeed struct {
	cfg       Config
	onEvent   EventHandler
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewLedgerFeed creates a feed for cfg.
func NewLedgerFeed(cfg Config, onEvent EventHandler, logger *slog.Logger) *LedgerFeed {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = reconnectDelay
	}
	return &LedgerFeed{
		cfg:     cfg,
		onEvent: onEvent,
		logger:  logger.With(slog.String("component", "ledger_ws_feed")),
		done:    make(chan struct{}),
	}
}

// StreamURL turns an http(s) API base URL into the ledger's ws(s) stream
// address.
func StreamURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("feed: parse %q: %w", base, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("feed: unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	return u.String(), nil
}

// Run connects and dispatches events until ctx is cancelled or Close is
// called. Reconnects with backoff on disconnect.
func (f *LedgerFeed) Run(ctx context.Context) error {
	target, err := f.target()
	if err != nil {
		return err
	}

	delay := f.cfg.ReconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		connected, err := f.runConnection(ctx, target)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			delay = f.cfg.ReconnectDelay
		}
		f.logger.Warn("feed: ledger ws disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("backoff", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

func (f *LedgerFeed) target() (string, error) {
	u, err := url.Parse(f.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("feed: parse %q: %w", f.cfg.URL, err)
	}
	q := u.Query()
	if len(f.cfg.Channels) > 0 {
		q.Set("channels", strings.Join(f.cfg.Channels, ","))
	}
	if len(f.cfg.Markets) > 0 {
		q.Set("markets", strings.Join(f.cfg.Markets, ","))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// runConnection reads one connection until it fails. It reports whether the
// handshake succeeded and returns nil only when the feed was closed.
func (f *LedgerFeed) runConnection(ctx context.Context, target string) (bool, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return false, fmt.Errorf("feed: connect: %w", err)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
		case <-stop:
			return
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()
	defer conn.Close()

	f.logger.Info("feed: ledger ws connected", slog.String("url", target))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-f.done:
				return true, nil
			default:
			}
			if ctx.Err() != nil {
				return true, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseGoingAway) {
				return true, errors.New("feed: server going away")
			}
			return true, fmt.Errorf("feed: read: %w", err)
		}

		var evt domain.LedgerEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			f.logger.Debug("feed: dropping unparseable message")
			continue
		}
		if !domain.IsLedgerEvent(evt.Type) {
			f.logger.Debug("feed: skipping control message", slog.String("type", evt.Type))
			continue
		}
		if f.onEvent != nil {
			f.onEvent(ctx, evt)
		}
	}
}

// Close stops the feed.
func (f *LedgerFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
