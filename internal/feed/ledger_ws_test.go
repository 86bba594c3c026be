package feed_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictionledger/internal/bus/memory"
	"github.com/alanyoungcy/predictionledger/internal/domain"
	"github.com/alanyoungcy/predictionledger/internal/feed"
	"github.com/alanyoungcy/predictionledger/internal/server/ws"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestStreamURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{base: "http://localhost:8080", want: "ws://localhost:8080/ws"},
		{base: "https://ledger.example.com/", want: "wss://ledger.example.com/ws"},
		{base: "http://host/prefix", want: "ws://host/prefix/ws"},
		{base: "ftp://host", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := feed.StreamURL(tt.base)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLedgerFeedReceivesEvents(t *testing.T) {
	bus := memory.NewBus(0)
	hub := ws.NewHub(bus, ws.Config{}, discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)
	<-hub.Ready()

	ts := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer ts.Close()

	events := make(chan domain.LedgerEvent, 8)
	f := feed.NewLedgerFeed(feed.Config{
		URL:      "ws" + strings.TrimPrefix(ts.URL, "http"),
		Channels: []string{domain.ChannelResolutions},
	}, func(_ context.Context, evt domain.LedgerEvent) {
		select {
		case events <- evt:
		default:
		}
	}, discard())

	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	// The hello frame is not a ledger event, so registration is only
	// observable through delivery. Publish until the first event lands.
	var evt domain.LedgerEvent
	require.Eventually(t, func() bool {
		assert.NoError(t, bus.Publish(ctx, domain.ChannelMarkets, []byte(`{"type":"market_created","market":{"id":"1"}}`)))
		assert.NoError(t, bus.Publish(ctx, domain.ChannelResolutions, []byte(`{"type":"market_resolved","market":{"id":"1","resolved":true}}`)))
		select {
		case evt = <-events:
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, domain.EventMarketResolved, evt.Type, "hello and filtered channels are not delivered")
	require.NotNil(t, evt.Market)
	assert.True(t, evt.Market.Resolved)

	f.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop after Close")
	}
}

func TestLedgerFeedRetriesUntilCancelled(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	ts.Close()

	f := feed.NewLedgerFeed(feed.Config{URL: url, ReconnectDelay: 10 * time.Millisecond}, nil, discard())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.Run(ctx), context.DeadlineExceeded)
}
