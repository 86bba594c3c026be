package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictionledger/internal/bus/memory"
	"github.com/alanyoungcy/predictionledger/internal/domain"
	"github.com/alanyoungcy/predictionledger/internal/ledger"
	"github.com/alanyoungcy/predictionledger/internal/ratelimit"
	"github.com/alanyoungcy/predictionledger/internal/server"
	"github.com/alanyoungcy/predictionledger/internal/server/handler"
	"github.com/alanyoungcy/predictionledger/internal/server/ws"
	"github.com/alanyoungcy/predictionledger/internal/service"
)

const adminKey = "s3cret"

type fixture struct {
	ts      *httptest.Server
	markets *service.MarketService
}

func newFixture(t *testing.T, rateLimit int) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	l := ledger.New(ledger.Options{})
	bus := memory.NewBus(0)
	events := service.NewEvents(bus, nil, nil, nil, logger)

	markets := service.NewMarketService(l, events, nil, logger)
	trades := service.NewTradeService(l, nil, events, logger)
	resolutions := service.NewResolutionService(l, events, logger)
	positions := service.NewPositionService(l, logger)

	hub := ws.NewHub(bus, ws.Config{MarketCount: l.MarketCount}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	<-hub.Ready()

	srv := server.NewServer(server.Config{
		AdminAPIKey:       adminKey,
		RateLimitRequests: rateLimit,
		RateLimitWindow:   time.Minute,
	}, server.Handlers{
		Health:    handler.NewHealthHandler(markets, handler.StatusInfo{Chain: "none", Bus: "memory"}),
		Markets:   handler.NewMarketHandler(markets, logger),
		Trades:    handler.NewTradeHandler(trades, logger),
		Positions: handler.NewPositionHandler(positions, logger),
		Admin:     handler.NewAdminHandler(resolutions, logger),
	}, hub, ratelimit.New(), logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return &fixture{ts: ts, markets: markets}
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers ...string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func probabilities(t *testing.T, market any) []float64 {
	t.Helper()
	m := market.(map[string]any)
	var out []float64
	for _, o := range m["outcomes"].([]any) {
		out = append(out, o.(map[string]any)["probability"].(float64))
	}
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, 100)

	for _, path := range []string{"/health", "/api/health"} {
		status, body := f.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "ok", body["status"])
	}

	status, body := f.do(t, http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["markets"])
	assert.Equal(t, "memory", body["bus"])
}

func TestMarketLifecycle(t *testing.T) {
	f := newFixture(t, 100)
	admin := []string{"Authorization", "Bearer " + adminKey}

	status, created := f.do(t, http.MethodPost, "/api/markets", map[string]any{
		"question": "Will it rain tomorrow?",
		"outcomes": []string{"Yes", "No"},
		"endTime":  1792411200000,
	})
	require.Equal(t, http.StatusCreated, status)
	id := created["id"].(string)
	assert.Equal(t, []float64{0.5, 0.5}, probabilities(t, created))

	status, placed := f.do(t, http.MethodPost, "/api/trades", map[string]any{
		"marketId": id, "outcomeIndex": 0, "amount": 100, "walletAddress": "0xaaa",
	})
	require.Equal(t, http.StatusCreated, status)
	p := probabilities(t, placed["market"])
	assert.InDelta(t, 0.667, p[0], 0.001)
	assert.InDelta(t, 0.333, p[1], 0.001)
	assert.Equal(t, "0xaaa", placed["trade"].(map[string]any)["walletAddress"])

	status, placed = f.do(t, http.MethodPost, "/api/trades", map[string]any{
		"marketId": id, "outcomeIndex": 1, "amount": 50, "walletAddress": "0xbbb",
	})
	require.Equal(t, http.StatusCreated, status)
	p = probabilities(t, placed["market"])
	assert.InDelta(t, 0.571, p[0], 0.001)
	assert.InDelta(t, 0.429, p[1], 0.001)

	status, trades := f.do(t, http.MethodGet, "/api/markets/"+id+"/trades", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, trades["trades"], 2)

	status, walletTrades := f.do(t, http.MethodGet, "/api/positions/trades?wallet=0xaaa", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "0xaaa", walletTrades["wallet"])
	assert.Len(t, walletTrades["trades"], 1)

	status, positions := f.do(t, http.MethodGet, "/api/positions?wallet=0xaaa", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, positions["positions"], 1)

	status, resolved := f.do(t, http.MethodPost, "/api/admin/resolve", map[string]any{
		"marketId": id, "winningOutcomeIndex": 0, "evidence": "weather report",
	}, admin...)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, resolved["resolved"])
	assert.Equal(t, float64(0), resolved["winningOutcomeIndex"])

	status, body := f.do(t, http.MethodPost, "/api/trades", map[string]any{
		"marketId": id, "outcomeIndex": 0, "amount": 10,
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "market_resolved", body["error"])

	status, body = f.do(t, http.MethodPost, "/api/admin/resolve", map[string]any{
		"marketId": id, "winningOutcomeIndex": 1,
	}, admin...)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "market_already_resolved", body["error"])

	status, body = f.do(t, http.MethodGet, "/api/admin/reconcile?wallet=0xaaa", nil, admin...)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["consistent"])
}

func TestErrorStatuses(t *testing.T) {
	f := newFixture(t, 100)
	m, err := f.markets.Create(context.Background(), "Q?", []string{"A", "B", "C"}, 0)
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown market", http.MethodGet, "/api/markets/nope", nil, http.StatusNotFound, "market_not_found"},
		{"one outcome", http.MethodPost, "/api/markets", map[string]any{"question": "Q?", "outcomes": []string{"A"}}, http.StatusBadRequest, "invalid_market_spec"},
		{"blank question", http.MethodPost, "/api/markets", map[string]any{"question": " ", "outcomes": []string{"A", "B"}}, http.StatusBadRequest, "invalid_market_spec"},
		{"trade unknown market", http.MethodPost, "/api/trades", map[string]any{"marketId": "nope", "outcomeIndex": 0, "amount": 1}, http.StatusNotFound, "market_not_found"},
		{"outcome out of range", http.MethodPost, "/api/trades", map[string]any{"marketId": m.ID, "outcomeIndex": 3, "amount": 1}, http.StatusBadRequest, "invalid_outcome_index"},
		{"missing outcome", http.MethodPost, "/api/trades", map[string]any{"marketId": m.ID, "amount": 1}, http.StatusBadRequest, "invalid_outcome_index"},
		{"zero amount", http.MethodPost, "/api/trades", map[string]any{"marketId": m.ID, "outcomeIndex": 0, "amount": 0}, http.StatusBadRequest, "invalid_amount"},
		{"negative amount", http.MethodPost, "/api/trades", map[string]any{"marketId": m.ID, "outcomeIndex": 0, "amount": -5}, http.StatusBadRequest, "invalid_amount"},
		{"missing amount", http.MethodPost, "/api/trades", map[string]any{"marketId": m.ID, "outcomeIndex": 0}, http.StatusBadRequest, "invalid_amount"},
		{"positions without wallet", http.MethodGet, "/api/positions", nil, http.StatusBadRequest, "invalid_request"},
		{"wallet trades without wallet", http.MethodGet, "/api/positions/trades", nil, http.StatusBadRequest, "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body["error"])
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		resp, err := http.Post(f.ts.URL+"/api/trades", "application/json", strings.NewReader("{"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	got, err := f.markets.Get(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, m, got, "failed requests must not change the market")
}

func TestAdminRequiresKey(t *testing.T) {
	f := newFixture(t, 100)
	m, err := f.markets.Create(context.Background(), "Q?", []string{"A", "B"}, 0)
	require.NoError(t, err)

	body := map[string]any{"marketId": m.ID, "winningOutcomeIndex": 0}

	status, resp := f.do(t, http.MethodPost, "/api/admin/resolve", body)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", resp["error"])

	status, _ = f.do(t, http.MethodPost, "/api/admin/resolve", body, "X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = f.do(t, http.MethodPost, "/api/admin/resolve", body, "X-API-Key", adminKey)
	assert.Equal(t, http.StatusOK, status)
}

func TestWriteRoutesRateLimited(t *testing.T) {
	f := newFixture(t, 2)
	body := map[string]any{"question": "Q?", "outcomes": []string{"A", "B"}}

	for range 2 {
		status, _ := f.do(t, http.MethodPost, "/api/markets", body)
		require.Equal(t, http.StatusCreated, status)
	}
	status, resp := f.do(t, http.MethodPost, "/api/markets", body)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "rate_limited", resp["error"])

	// Reads are not limited.
	status, _ = f.do(t, http.MethodGet, "/api/markets/1", nil)
	assert.Equal(t, http.StatusOK, status)
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestWebSocketStreamsEvents(t *testing.T) {
	f := newFixture(t, 100)
	m, err := f.markets.Create(context.Background(), "Q?", []string{"A", "B"}, 0)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws?channels=trades,resolutions"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	hello := readJSON(t, conn)
	assert.Equal(t, "hello", hello["type"])
	assert.Equal(t, float64(1), hello["markets"])

	// Not subscribed to markets, so this one is filtered out.
	_, err = f.markets.Create(context.Background(), "Other?", []string{"A", "B"}, 0)
	require.NoError(t, err)

	status, _ := f.do(t, http.MethodPost, "/api/trades", map[string]any{
		"marketId": m.ID, "outcomeIndex": 1, "amount": 25,
	})
	require.Equal(t, http.StatusCreated, status)

	evt := readJSON(t, conn)
	assert.Equal(t, "trade_placed", evt["type"])
	assert.Equal(t, m.ID, evt["trade"].(map[string]any)["marketId"])
}

type fakeAudit struct {
	entries []domain.AuditEntry
	opts    domain.ListOpts
}

func (a *fakeAudit) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	a.opts = opts
	return a.entries, nil
}

func TestAuditRoute(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := ledger.New(ledger.Options{})
	markets := service.NewMarketService(l, nil, nil, logger)
	positions := service.NewPositionService(l, logger)
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(markets, handler.StatusInfo{}),
		Markets:   handler.NewMarketHandler(markets, logger),
		Trades:    handler.NewTradeHandler(service.NewTradeService(l, nil, nil, logger), logger),
		Positions: handler.NewPositionHandler(positions, logger),
		Admin:     handler.NewAdminHandler(service.NewResolutionService(l, nil, logger), logger),
	}

	get := func(h http.Handler, path string, headers ...string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		for i := 0; i+1 < len(headers); i += 2 {
			req.Header.Set(headers[i], headers[i+1])
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	withoutAudit := server.NewServer(server.Config{AdminAPIKey: adminKey}, handlers, nil, nil, logger).Handler()
	assert.Equal(t, http.StatusNotFound, get(withoutAudit, "/api/admin/audit", "X-API-Key", adminKey).Code)

	audit := &fakeAudit{entries: []domain.AuditEntry{{ID: 7, Event: "market.created"}}}
	handlers.Audit = handler.NewAuditHandler(audit, logger)
	h := server.NewServer(server.Config{AdminAPIKey: adminKey}, handlers, nil, nil, logger).Handler()

	assert.Equal(t, http.StatusUnauthorized, get(h, "/api/admin/audit").Code)

	rec := get(h, "/api/admin/audit?limit=5&offset=10", "X-API-Key", adminKey)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"event":"market.created"`)
	assert.Equal(t, 5, audit.opts.Limit)
	assert.Equal(t, 10, audit.opts.Offset)
}
