package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictionledger/internal/bus/memory"
	"github.com/alanyoungcy/predictionledger/internal/domain"
	"github.com/alanyoungcy/predictionledger/internal/ledger"
	"github.com/alanyoungcy/predictionledger/internal/notify"
	"github.com/alanyoungcy/predictionledger/internal/service"
)

var fixedNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

var clock = domain.ClockFunc(func() time.Time { return fixedNow })

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func ptr(s string) *string { return &s }

type fakeAudit struct {
	mu      sync.Mutex
	events  []string
	details []map[string]any
	err     error
}

func (a *fakeAudit) Log(_ context.Context, event string, detail map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	a.details = append(a.details, detail)
	return a.err
}

func (a *fakeAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type fakeChain struct {
	calls int
	err   error
}

func (c *fakeChain) SubmitTrade(_ context.Context, _ domain.TradeIntent) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return "0xfeed", nil
}

func (c *fakeChain) Name() string { return "fake" }

type syncSender struct {
	mu     sync.Mutex
	titles []string
}

func (s *syncSender) Send(_ context.Context, title, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, title)
	return nil
}

func (s *syncSender) Name() string { return "sync" }

func (s *syncSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.titles)
}

type fixture struct {
	ledger    *ledger.Ledger
	bus       *memory.Bus
	audit     *fakeAudit
	sender    *syncSender
	markets   *service.MarketService
	trades    *service.TradeService
	resolver  *service.ResolutionService
	positions *service.PositionService
}

func newFixture(chain domain.ChainSubmitter) *fixture {
	f := &fixture{
		ledger: ledger.New(ledger.Options{Clock: clock}),
		bus:    memory.NewBus(0),
		audit:  &fakeAudit{},
		sender: &syncSender{},
	}
	n := notify.NewNotifier([]notify.Sender{f.sender}, nil, discard())
	events := service.NewEvents(f.bus, f.audit, n, clock, discard())
	f.markets = service.NewMarketService(f.ledger, events, clock, discard())
	f.trades = service.NewTradeService(f.ledger, chain, events, discard())
	f.resolver = service.NewResolutionService(f.ledger, events, discard())
	f.positions = service.NewPositionService(f.ledger, discard())
	return f
}

func receive(t *testing.T, ch <-chan []byte) domain.LedgerEvent {
	t.Helper()
	select {
	case payload := <-ch:
		var evt domain.LedgerEvent
		require.NoError(t, json.Unmarshal(payload, &evt))
		return evt
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return domain.LedgerEvent{}
	}
}

func TestLifecyclePublishesEvents(t *testing.T) {
	f := newFixture(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	marketsCh, err := f.bus.Subscribe(ctx, domain.ChannelMarkets)
	require.NoError(t, err)
	tradesCh, err := f.bus.Subscribe(ctx, domain.ChannelTrades)
	require.NoError(t, err)
	resCh, err := f.bus.Subscribe(ctx, domain.ChannelResolutions)
	require.NoError(t, err)

	m, err := f.markets.Create(ctx, "Will it rain?", []string{"Yes", "No"}, 0)
	require.NoError(t, err)
	evt := receive(t, marketsCh)
	assert.Equal(t, domain.EventMarketCreated, evt.Type)
	require.NotNil(t, evt.Market)
	assert.Equal(t, m.ID, evt.Market.ID)
	assert.Equal(t, fixedNow.UnixMilli(), evt.At)

	_, tr, err := f.trades.Place(ctx, service.TradeRequest{MarketID: m.ID, OutcomeIndex: 0, Amount: 50, WalletAddress: ptr("w1")})
	require.NoError(t, err)
	evt = receive(t, tradesCh)
	assert.Equal(t, domain.EventTradePlaced, evt.Type)
	require.NotNil(t, evt.Trade)
	assert.Equal(t, tr.ID, evt.Trade.ID)
	assert.InDelta(t, 0.6, evt.Market.Outcomes[0].Probability, 1e-9)

	_, err = f.resolver.Resolve(ctx, m.ID, 0, "observed")
	require.NoError(t, err)
	evt = receive(t, resCh)
	assert.Equal(t, domain.EventMarketResolved, evt.Type)
	assert.True(t, evt.Market.Resolved)

	stream, err := f.bus.StreamRead(ctx, domain.StreamLedgerEvents, "0", 10)
	require.NoError(t, err)
	assert.Len(t, stream, 3)

	assert.Equal(t, []string{domain.EventMarketCreated, domain.EventTradePlaced, domain.EventMarketResolved}, f.audit.events)
	assert.Equal(t, "50", f.audit.details[1]["amount"])
	assert.Equal(t, "w1", f.audit.details[1]["walletAddress"])

	assert.Eventually(t, func() bool { return f.sender.count() == 2 }, time.Second, 10*time.Millisecond,
		"created and resolved are notified, trades are not")
}

func TestFailedOperationsEmitNothing(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	_, err := f.markets.Create(ctx, "", []string{"Yes", "No"}, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidMarketSpec)

	_, _, err = f.trades.Place(ctx, service.TradeRequest{MarketID: "404", Amount: 1})
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)

	_, err = f.resolver.Resolve(ctx, "404", 0, "")
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)

	assert.Empty(t, f.audit.events)
	stream, err := f.bus.StreamRead(ctx, domain.StreamLedgerEvents, "0", 10)
	require.NoError(t, err)
	assert.Empty(t, stream)
}

func TestAuditFailureDoesNotFailTrade(t *testing.T) {
	f := newFixture(nil)
	f.audit.err = errors.New("db down")
	ctx := context.Background()

	m, err := f.markets.Create(ctx, "Q?", []string{"A", "B"}, 0)
	require.NoError(t, err)
	_, _, err = f.trades.Place(ctx, service.TradeRequest{MarketID: m.ID, Amount: 5})
	require.NoError(t, err)
	assert.Len(t, f.ledger.ListTrades(m.ID), 1)
}

func TestChainSubmissionAttachesTxID(t *testing.T) {
	chain := &fakeChain{}
	f := newFixture(chain)
	ctx := context.Background()

	m, err := f.markets.Create(ctx, "Q?", []string{"A", "B"}, 0)
	require.NoError(t, err)

	_, tr, err := f.trades.Place(ctx, service.TradeRequest{MarketID: m.ID, OutcomeIndex: 1, Amount: 10})
	require.NoError(t, err)
	require.NotNil(t, tr.TxID)
	assert.Equal(t, "0xfeed", *tr.TxID)
	assert.Equal(t, 1, chain.calls)
}

func TestChainRejectionLeavesLedgerUnchanged(t *testing.T) {
	chain := &fakeChain{err: errors.New("node unreachable")}
	f := newFixture(chain)
	ctx := context.Background()

	m, err := f.markets.Create(ctx, "Q?", []string{"A", "B"}, 0)
	require.NoError(t, err)

	_, _, err = f.trades.Place(ctx, service.TradeRequest{MarketID: m.ID, Amount: 10})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrChainRejected)
	assert.True(t, domain.IsValidation(err))

	after, _ := f.ledger.GetMarket(m.ID)
	assert.Equal(t, m, after)
	assert.Empty(t, f.ledger.ListTrades(m.ID))
}

func TestInvalidTradeIsNeverSubmitted(t *testing.T) {
	chain := &fakeChain{}
	f := newFixture(chain)
	ctx := context.Background()

	m, err := f.markets.Create(ctx, "Q?", []string{"A", "B"}, 0)
	require.NoError(t, err)

	_, _, err = f.trades.Place(ctx, service.TradeRequest{MarketID: m.ID, OutcomeIndex: 5, Amount: 10})
	assert.ErrorIs(t, err, domain.ErrInvalidOutcomeIndex)
	_, _, err = f.trades.Place(ctx, service.TradeRequest{MarketID: m.ID, Amount: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Zero(t, chain.calls)
}

func TestSeedExample(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	created, err := f.markets.SeedExample(ctx)
	require.NoError(t, err)
	assert.True(t, created)

	markets := f.markets.List(ctx)
	require.Len(t, markets, 1)
	assert.Equal(t, service.ExampleQuestion, markets[0].Question)
	assert.Equal(t, fixedNow.Add(30*24*time.Hour).UnixMilli(), markets[0].EndTime)
	assert.Equal(t, []float64{0.5, 0.5}, markets[0].Probabilities())

	created, err = f.markets.SeedExample(ctx)
	require.NoError(t, err)
	assert.False(t, created, "a non-empty ledger is not seeded again")
	assert.Equal(t, 1, f.markets.Count(ctx))
}

func TestMarketQueries(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	_, err := f.markets.Get(ctx, "1")
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)
	_, err = f.markets.Trades(ctx, "1")
	assert.ErrorIs(t, err, domain.ErrMarketNotFound)

	m, err := f.markets.Create(ctx, "Q?", []string{"A", "B"}, 0)
	require.NoError(t, err)
	got, err := f.markets.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m, got)

	trades, err := f.markets.Trades(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestPositionsAreEnriched(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	m1, err := f.markets.Create(ctx, "First?", []string{"Yes", "No"}, 0)
	require.NoError(t, err)
	m2, err := f.markets.Create(ctx, "Second?", []string{"Red", "Green", "Blue"}, 0)
	require.NoError(t, err)

	for _, req := range []service.TradeRequest{
		{MarketID: m1.ID, OutcomeIndex: 0, Amount: 50, WalletAddress: ptr("w1")},
		{MarketID: m2.ID, OutcomeIndex: 2, Amount: 10, WalletAddress: ptr("w1")},
		{MarketID: m1.ID, OutcomeIndex: 0, Amount: 25, WalletAddress: ptr("w1")},
		{MarketID: m1.ID, OutcomeIndex: 1, Amount: 5, WalletAddress: ptr("w2")},
	} {
		_, _, err := f.trades.Place(ctx, req)
		require.NoError(t, err)
	}
	_, err = f.resolver.Resolve(ctx, m2.ID, 2, "")
	require.NoError(t, err)

	views := f.positions.Positions(ctx, "w1")
	require.Len(t, views, 2)
	assert.Equal(t, "First?", views[0].Question)
	assert.Equal(t, []string{"Yes", "No"}, views[0].Outcomes)
	assert.Equal(t, "75", views[0].SharesOf(0).String())
	assert.Len(t, views[0].Probabilities, 2)
	assert.False(t, views[0].Resolved)
	assert.Equal(t, "Second?", views[1].Question)
	assert.True(t, views[1].Resolved)

	assert.Len(t, f.positions.Trades(ctx, "w1"), 3)
	assert.Empty(t, f.positions.Positions(ctx, "nobody"))
	assert.Empty(t, f.positions.Reconcile(ctx, "w1"))
}
