package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictionledger/internal/domain"
	"github.com/alanyoungcy/predictionledger/internal/ledger"
	"github.com/alanyoungcy/predictionledger/internal/server"
	"github.com/alanyoungcy/predictionledger/internal/server/handler"
	"github.com/alanyoungcy/predictionledger/internal/service"
)

const testKey = "admin-key"

func newAPI(t *testing.T) string {
	t.Helper()
	t.Setenv("LEDGER_ADMIN_API_KEY", "")
	t.Setenv("LEDGER_ADDR", "")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := ledger.New(ledger.Options{})
	markets := service.NewMarketService(l, nil, nil, logger)

	srv := server.NewServer(server.Config{AdminAPIKey: testKey}, server.Handlers{
		Health:    handler.NewHealthHandler(markets, handler.StatusInfo{}),
		Markets:   handler.NewMarketHandler(markets, logger),
		Trades:    handler.NewTradeHandler(service.NewTradeService(l, nil, nil, logger), logger),
		Positions: handler.NewPositionHandler(service.NewPositionService(l, logger), logger),
		Admin:     handler.NewAdminHandler(service.NewResolutionService(l, nil, logger), logger),
	}, nil, nil, logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCLIWorkflow(t *testing.T) {
	addr := newAPI(t)

	code, out, _ := runCLI(t, "-addr", addr, "markets")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "no markets")

	code, out, errOut := runCLI(t, "-addr", addr, "create", "-q", "Rain?", "-outcomes", "Yes,No", "-ends", "2030-01-01T00:00:00Z")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "#1 Rain?")
	assert.Contains(t, out, "2030-01-01")

	code, out, _ = runCLI(t, "-addr", addr, "markets")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Rain?")
	assert.Contains(t, out, "50.0%")
	assert.Contains(t, out, "open")

	code, out, errOut = runCLI(t, "-addr", addr, "trade", "-market", "1", "-outcome", "0", "-amount", "100", "-wallet", "0xabc")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "trade 1 placed")
	assert.Contains(t, out, "66.7%")

	code, out, _ = runCLI(t, "-addr", addr, "trades", "1")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "0xabc")

	code, out, errOut = runCLI(t, "-addr", addr, "trades", "-wallet", "0xabc")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "0xabc")
	assert.Contains(t, out, "100")

	code, _, errOut = runCLI(t, "-addr", addr, "trades", "-wallet", "0xabc", "1")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "not both")

	code, out, _ = runCLI(t, "-addr", addr, "positions", "0xabc")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Rain?")
	assert.Contains(t, out, "100")

	code, _, errOut = runCLI(t, "-addr", addr, "resolve", "-market", "1", "-winner", "0")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "401")

	code, out, errOut = runCLI(t, "-addr", addr, "-key", testKey, "resolve", "-market", "1", "-winner", "0", "-evidence", "radar")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "evidence: radar")

	code, _, errOut = runCLI(t, "-addr", addr, "trade", "-market", "1", "-outcome", "1", "-amount", "5")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "market_resolved")
}

func TestCLIJSONOutput(t *testing.T) {
	addr := newAPI(t)

	code, _, _ := runCLI(t, "-addr", addr, "create", "-q", "Q?", "-outcomes", "A,B,C")
	require.Equal(t, 0, code)

	code, out, _ := runCLI(t, "-addr", addr, "-json", "market", "1")
	require.Equal(t, 0, code)

	var m domain.Market
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.Equal(t, "Q?", m.Question)
	assert.Len(t, m.Outcomes, 3)
	assert.Equal(t, "100", m.Outcomes[0].Liquidity.String())
}

func TestCLIErrors(t *testing.T) {
	addr := newAPI(t)

	tests := []struct {
		name   string
		args   []string
		code   int
		stderr string
	}{
		{"no command", []string{"-addr", addr}, 2, "usage"},
		{"unknown command", []string{"-addr", addr, "frobnicate"}, 2, "unknown command"},
		{"market without id", []string{"-addr", addr, "market"}, 2, "market id"},
		{"trade without market", []string{"-addr", addr, "trade", "-amount", "1"}, 2, "-market is required"},
		{"bad end time", []string{"-addr", addr, "create", "-q", "Q?", "-ends", "soon"}, 2, "invalid end time"},
		{"unknown market", []string{"-addr", addr, "market", "42"}, 1, "market_not_found"},
		{"single outcome", []string{"-addr", addr, "create", "-q", "Q?", "-outcomes", "A"}, 1, "invalid_market_spec"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := runCLI(t, tt.args...)
			assert.Equal(t, tt.code, code)
			assert.Contains(t, errOut, tt.stderr)
		})
	}
}

func TestParseEndTime(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	got, err := parseEndTime("24h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(24*time.Hour).UnixMilli(), got)

	got, err = parseEndTime("2027-01-01T00:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), got)

	_, err = parseEndTime("tomorrow", now)
	assert.Error(t, err)
}

func TestFormatEvent(t *testing.T) {
	winner := 1
	m := domain.Market{
		ID:       "3",
		Question: "Q?",
		Outcomes: []domain.Outcome{
			{Name: "Yes", Probability: 0.25},
			{Name: "No", Probability: 0.75},
		},
	}
	trade := domain.Trade{OutcomeIndex: 1, Amount: decimal.NewFromInt(50)}

	at := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, "09:30:00 market_created", formatEvent(domain.LedgerEvent{Type: domain.EventMarketCreated, At: at}))
	assert.Equal(t, `- trade_placed #3 "Q?" [Yes 25.0% / No 75.0%] 50 on No`,
		formatEvent(domain.LedgerEvent{Type: domain.EventTradePlaced, Market: &m, Trade: &trade}))

	m.Resolved = true
	m.WinningOutcomeIndex = &winner
	assert.Equal(t, `- market_resolved #3 "Q?" [Yes 25.0% / No 75.0%] resolved: No`,
		formatEvent(domain.LedgerEvent{Type: domain.EventMarketResolved, Market: &m}))
}
