package ledger

import (
	"sync"

	"github.com/alanyoungcy/predictionledger/internal/domain"
)

type positionKey struct {
	wallet   string
	marketID string
}

// Store holds the canonical markets, trades and positions. It performs no
// business validation. Every read returns copies and every write replaces
// whole records under one lock, so a reader sees a mutation either entirely
// or not at all.
type Store struct {
	mu sync.RWMutex

	markets     map[string]domain.Market
	marketOrder []string

	trades        []domain.Trade
	tradesByMkt   map[string][]int
	tradesByOwner map[string][]int

	positions     map[positionKey]domain.Position
	walletMarkets map[string][]string
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		markets:       make(map[string]domain.Market),
		tradesByMkt:   make(map[string][]int),
		tradesByOwner: make(map[string][]int),
		positions:     make(map[positionKey]domain.Position),
		walletMarkets: make(map[string][]string),
	}
}

// InsertMarket adds a new market. It reports false, storing nothing, when the
// id is already taken.
func (s *Store) InsertMarket(m domain.Market) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.markets[m.ID]; exists {
		return false
	}
	s.markets[m.ID] = m.Clone()
	s.marketOrder = append(s.marketOrder, m.ID)
	return true
}

// ReplaceMarket overwrites an existing market record.
func (s *Store) ReplaceMarket(m domain.Market) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.ID] = m.Clone()
}

// CommitTrade stamps t, then writes the post-trade market, appends the trade
// and stores the updated position as one unit. stamp runs under the store
// lock, so trade ids and timestamps follow the order of the trade log.
// Nothing is written when stamp fails.
func (s *Store) CommitTrade(m domain.Market, t domain.Trade, pos *domain.Position, stamp func(*domain.Trade) error) (domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stamp != nil {
		if err := stamp(&t); err != nil {
			return domain.Trade{}, err
		}
	}

	s.markets[m.ID] = m.Clone()

	idx := len(s.trades)
	s.trades = append(s.trades, t.Clone())
	s.tradesByMkt[t.MarketID] = append(s.tradesByMkt[t.MarketID], idx)

	if pos == nil {
		return t.Clone(), nil
	}
	s.tradesByOwner[pos.Wallet] = append(s.tradesByOwner[pos.Wallet], idx)
	key := positionKey{wallet: pos.Wallet, marketID: pos.MarketID}
	if _, ok := s.positions[key]; !ok {
		s.walletMarkets[pos.Wallet] = append(s.walletMarkets[pos.Wallet], pos.MarketID)
	}
	s.positions[key] = pos.Clone()
	return t.Clone(), nil
}

// Market returns a copy of the market with the given id.
func (s *Store) Market(id string) (domain.Market, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, false
	}
	return m.Clone(), true
}

// HasMarket reports whether a market with the given id exists.
func (s *Store) HasMarket(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.markets[id]
	return ok
}

// Markets returns every market in creation order.
func (s *Store) Markets() []domain.Market {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Market, 0, len(s.marketOrder))
	for _, id := range s.marketOrder {
		out = append(out, s.markets[id].Clone())
	}
	return out
}

// MarketCount returns the number of markets.
func (s *Store) MarketCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.marketOrder)
}

// TradesByMarket returns the trades of one market in insertion order.
func (s *Store) TradesByMarket(marketID string) []domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.tradesByMkt[marketID])
}

// TradesByWallet returns the trades of one wallet in insertion order.
func (s *Store) TradesByWallet(wallet string) []domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.tradesByOwner[wallet])
}

// Trades returns the whole trade log in insertion order.
func (s *Store) Trades() []domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectAll()
}

// Snapshot copies every market in creation order and the whole trade log
// under one lock.
func (s *Store) Snapshot() ([]domain.Market, []domain.Trade) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]domain.Market, 0, len(s.marketOrder))
	for _, id := range s.marketOrder {
		markets = append(markets, s.markets[id].Clone())
	}
	return markets, s.collectAll()
}

func (s *Store) collectAll() []domain.Trade {
	out := make([]domain.Trade, len(s.trades))
	for i, t := range s.trades {
		out[i] = t.Clone()
	}
	return out
}

func (s *Store) collect(idxs []int) []domain.Trade {
	out := make([]domain.Trade, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, s.trades[i].Clone())
	}
	return out
}

// Position returns a copy of the wallet's position on a market.
func (s *Store) Position(wallet, marketID string) (domain.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[positionKey{wallet: wallet, marketID: marketID}]
	if !ok {
		return domain.Position{}, false
	}
	return p.Clone(), true
}

// PositionsByWallet returns the wallet's positions in the order they were
// opened.
func (s *Store) PositionsByWallet(wallet string) []domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.walletMarkets[wallet]
	out := make([]domain.Position, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.positions[positionKey{wallet: wallet, marketID: id}].Clone())
	}
	return out
}
