// Package ledger is the authoritative prediction-market ledger: market
// creation, trade execution, resolution and the read-only query surface.
//
// Every mutation runs as one critical section per market. The market is
// copied out of the Store, fully validated, changed on the copy and written
// back in a single Store commit, so a failed call changes nothing and
// readers never observe half a trade.
package ledger

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/predictionledger/internal/domain"
	"github.com/alanyoungcy/predictionledger/internal/idgen"
	"github.com/alanyoungcy/predictionledger/internal/pricing"
)

// DefaultInitialLiquidity seeds every outcome of a new market.
var DefaultInitialLiquidity = decimal.NewFromInt(100)

const (
	opCreateMarket  = "create market"
	opPlaceTrade    = "place trade"
	opResolveMarket = "resolve market"
)

var errDuplicateID = errors.New("duplicate market id")

// Options configures a Ledger. Zero values select the defaults.
type Options struct {
	InitialLiquidity decimal.Decimal
	MarketIDs        domain.IDGenerator
	TradeIDs         domain.IDGenerator
	Clock            domain.Clock
}

// Ledger owns all market, trade and position state.
type Ledger struct {
	store            *Store
	initialLiquidity decimal.Decimal
	marketIDs        domain.IDGenerator
	tradeIDs         domain.IDGenerator
	clock            domain.Clock

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates an empty Ledger.
func New(opts Options) *Ledger {
	l := &Ledger{
		store:            NewStore(),
		initialLiquidity: opts.InitialLiquidity,
		marketIDs:        opts.MarketIDs,
		tradeIDs:         opts.TradeIDs,
		clock:            opts.Clock,
		locks:            make(map[string]*sync.Mutex),
	}
	if !l.initialLiquidity.IsPositive() {
		l.initialLiquidity = DefaultInitialLiquidity
	}
	if l.marketIDs == nil {
		l.marketIDs = idgen.NewSequence()
	}
	if l.tradeIDs == nil {
		l.tradeIDs = idgen.NewSequence()
	}
	if l.clock == nil {
		l.clock = domain.SystemClock
	}
	return l
}

// lockMarket serializes mutations of one market. Markets never share a lock.
// It reports false without locking when the market does not exist.
func (l *Ledger) lockMarket(id string) (func(), bool) {
	if !l.store.HasMarket(id) {
		return nil, false
	}

	l.locksMu.Lock()
	mu, ok := l.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		l.locks[id] = mu
	}
	l.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock, true
}

func (l *Ledger) now() int64 {
	return l.clock.Now().UnixMilli()
}

// CreateMarket opens a market whose outcomes all start with the initial
// liquidity and therefore equal probability. endTime is stored as given.
func (l *Ledger) CreateMarket(question string, outcomes []string, endTime int64) (domain.Market, error) {
	if strings.TrimSpace(question) == "" || len(outcomes) < 2 {
		return domain.Market{}, domain.NewValidationError(opCreateMarket, domain.ErrInvalidMarketSpec)
	}

	id, err := l.marketIDs.NextID()
	if err != nil {
		return domain.Market{}, domain.NewInternalError(opCreateMarket, err)
	}

	m := domain.Market{
		ID:        id,
		Question:  question,
		Outcomes:  make([]domain.Outcome, len(outcomes)),
		EndTime:   endTime,
		CreatedAt: l.now(),
		Version:   1,
	}
	for i, name := range outcomes {
		m.Outcomes[i] = domain.Outcome{Name: name, Liquidity: l.initialLiquidity}
	}
	reprice(&m)

	if !l.store.InsertMarket(m) {
		return domain.Market{}, domain.NewInternalError(opCreateMarket, fmt.Errorf("%w %q", errDuplicateID, id))
	}
	return m.Clone(), nil
}

// TradeOption adjusts a trade before it is recorded.
type TradeOption func(*domain.Trade)

// WithTxID attaches the chain transaction id returned for the trade.
func WithTxID(txID string) TradeOption {
	return func(t *domain.Trade) {
		if txID != "" {
			t.TxID = &txID
		}
	}
}

// PlaceTrade adds amount to one outcome's liquidity, reprices the market,
// appends the trade and credits the wallet's position with amount shares.
// A nil or empty wallet places an anonymous trade that opens no position.
func (l *Ledger) PlaceTrade(marketID string, outcomeIndex int, amount float64, wallet *string, opts ...TradeOption) (domain.Market, domain.Trade, error) {
	unlock, ok := l.lockMarket(marketID)
	if !ok {
		return domain.Market{}, domain.Trade{}, domain.NewValidationError(opPlaceTrade, domain.ErrMarketNotFound)
	}
	defer unlock()

	m, stake, err := l.checkTrade(marketID, outcomeIndex, amount)
	if err != nil {
		return domain.Market{}, domain.Trade{}, err
	}

	m.Outcomes[outcomeIndex].Liquidity = m.Outcomes[outcomeIndex].Liquidity.Add(stake)
	m.Version++
	reprice(&m)

	t := domain.Trade{
		MarketID:     m.ID,
		OutcomeIndex: outcomeIndex,
		Amount:       stake,
	}
	if wallet != nil && *wallet != "" {
		w := *wallet
		t.WalletAddress = &w
	}
	for _, opt := range opts {
		opt(&t)
	}

	var pos *domain.Position
	if t.WalletAddress != nil {
		p, ok := l.store.Position(*t.WalletAddress, m.ID)
		if !ok {
			p = domain.Position{Wallet: *t.WalletAddress, MarketID: m.ID, Shares: map[int]decimal.Decimal{}}
		}
		p = p.Add(outcomeIndex, stake)
		pos = &p
	}

	t, err = l.store.CommitTrade(m, t, pos, l.stampTrade)
	if err != nil {
		return domain.Market{}, domain.Trade{}, domain.NewInternalError(opPlaceTrade, err)
	}
	return m.Clone(), t, nil
}

func (l *Ledger) stampTrade(t *domain.Trade) error {
	id, err := l.tradeIDs.NextID()
	if err != nil {
		return err
	}
	t.ID = id
	t.Timestamp = l.now()
	return nil
}

// CheckTrade runs the PlaceTrade validation without changing anything. A nil
// result is only a hint: the market may be resolved before the trade lands.
func (l *Ledger) CheckTrade(marketID string, outcomeIndex int, amount float64) error {
	_, _, err := l.checkTrade(marketID, outcomeIndex, amount)
	return err
}

func (l *Ledger) checkTrade(marketID string, outcomeIndex int, amount float64) (domain.Market, decimal.Decimal, error) {
	m, ok := l.store.Market(marketID)
	if !ok {
		return domain.Market{}, decimal.Zero, domain.NewValidationError(opPlaceTrade, domain.ErrMarketNotFound)
	}
	if m.Resolved {
		return domain.Market{}, decimal.Zero, domain.NewValidationError(opPlaceTrade, domain.ErrMarketResolved)
	}
	if !m.ValidOutcome(outcomeIndex) {
		return domain.Market{}, decimal.Zero, domain.NewValidationError(opPlaceTrade, domain.ErrInvalidOutcomeIndex)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return domain.Market{}, decimal.Zero, domain.NewValidationError(opPlaceTrade, domain.ErrInvalidAmount)
	}
	return m, decimal.NewFromFloat(amount), nil
}

// ResolveMarket closes a market on its winning outcome. Liquidity and
// probabilities keep their last traded values. Resolution is terminal.
func (l *Ledger) ResolveMarket(marketID string, winningOutcomeIndex int, evidence string) (domain.Market, error) {
	unlock, ok := l.lockMarket(marketID)
	if !ok {
		return domain.Market{}, domain.NewValidationError(opResolveMarket, domain.ErrMarketNotFound)
	}
	defer unlock()

	m, _ := l.store.Market(marketID)
	if m.Resolved {
		return domain.Market{}, domain.NewValidationError(opResolveMarket, domain.ErrMarketAlreadyResolved)
	}
	if !m.ValidOutcome(winningOutcomeIndex) {
		return domain.Market{}, domain.NewValidationError(opResolveMarket, domain.ErrInvalidOutcomeIndex)
	}

	m.Resolved = true
	m.Version++
	m.WinningOutcomeIndex = &winningOutcomeIndex
	m.Evidence = &evidence

	l.store.ReplaceMarket(m)
	return m.Clone(), nil
}

// GetMarket returns the market with the given id and whether it exists.
func (l *Ledger) GetMarket(marketID string) (domain.Market, bool) {
	return l.store.Market(marketID)
}

// ListMarkets returns every market in creation order.
func (l *Ledger) ListMarkets() []domain.Market {
	return l.store.Markets()
}

// MarketCount returns the number of markets.
func (l *Ledger) MarketCount() int {
	return l.store.MarketCount()
}

// ListTrades returns a market's trades oldest first. Unknown markets have no
// trades.
func (l *Ledger) ListTrades(marketID string) []domain.Trade {
	return l.store.TradesByMarket(marketID)
}

// ListTradesByWallet returns a wallet's trades oldest first.
func (l *Ledger) ListTradesByWallet(wallet string) []domain.Trade {
	return l.store.TradesByWallet(wallet)
}

// Snapshot returns every market and the complete trade log as of one
// instant: each trade in the log is reflected in the markets' liquidity.
func (l *Ledger) Snapshot() ([]domain.Market, []domain.Trade) {
	return l.store.Snapshot()
}

// ListAllTrades returns the complete trade log oldest first.
func (l *Ledger) ListAllTrades() []domain.Trade {
	return l.store.Trades()
}

// GetPositions returns the wallet's positions in the order they were opened.
func (l *Ledger) GetPositions(wallet string) []domain.Position {
	return l.store.PositionsByWallet(wallet)
}

// ReconcilePositions rebuilds the wallet's shares from its trade history and
// reports every outcome where the recorded position disagrees.
func (l *Ledger) ReconcilePositions(wallet string) []domain.PositionMismatch {
	type key struct {
		market  string
		outcome int
	}
	fromTrades := make(map[key]decimal.Decimal)
	for _, t := range l.store.TradesByWallet(wallet) {
		k := key{t.MarketID, t.OutcomeIndex}
		fromTrades[k] = fromTrades[k].Add(t.Amount)
	}

	var out []domain.PositionMismatch
	seen := make(map[key]bool)
	for _, p := range l.store.PositionsByWallet(wallet) {
		for idx, shares := range p.Shares {
			k := key{p.MarketID, idx}
			seen[k] = true
			if want := fromTrades[k]; !want.Equal(shares) {
				out = append(out, domain.PositionMismatch{MarketID: p.MarketID, OutcomeIndex: idx, Recorded: shares, FromTrades: want})
			}
		}
	}
	for k, want := range fromTrades {
		if !seen[k] {
			out = append(out, domain.PositionMismatch{MarketID: k.market, OutcomeIndex: k.outcome, Recorded: decimal.Zero, FromTrades: want})
		}
	}
	return out
}

func reprice(m *domain.Market) {
	probs := pricing.Probabilities(m.Liquidities())
	for i := range m.Outcomes {
		m.Outcomes[i].Probability = probs[i]
	}
}
