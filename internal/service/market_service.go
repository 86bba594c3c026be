// Package service adapts the ledger core to its callers. Each service runs
// one ledger operation and then reports the committed result through Events.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/predictionledger/internal/domain"
	"github.com/alanyoungcy/predictionledger/internal/ledger"
)

// Seed market created at startup when enabled.
const (
	ExampleQuestion = "Will Solana flip Ethereum in market cap by 2030?"
	exampleHorizon  = 30 * 24 * time.Hour
)

// ExampleOutcomes are the outcomes of the seed market.
var ExampleOutcomes = []string{"Yes", "No"}

// MarketService creates markets and serves market queries.
type MarketService struct {
	ledger *ledger.Ledger
	events *Events
	clock  domain.Clock
	logger *slog.Logger
}

// NewMarketService creates a MarketService.
func NewMarketService(l *ledger.Ledger, events *Events, clock domain.Clock, logger *slog.Logger) *MarketService {
	if events == nil {
		events = NewEvents(nil, nil, nil, clock, logger)
	}
	if clock == nil {
		clock = domain.SystemClock
	}
	return &MarketService{ledger: l, events: events, clock: clock, logger: logger}
}

// Create opens a market.
func (s *MarketService) Create(ctx context.Context, question string, outcomes []string, endTime int64) (domain.Market, error) {
	m, err := s.ledger.CreateMarket(question, outcomes, endTime)
	if err != nil {
		return domain.Market{}, err
	}

	s.logger.InfoContext(ctx, "market_service: market created",
		slog.String("market_id", m.ID),
		slog.String("question", m.Question),
		slog.Int("outcomes", len(m.Outcomes)),
	)
	s.events.MarketCreated(ctx, m)
	return m, nil
}

// SeedExample creates the example market when the ledger is empty. It
// reports whether a market was created.
func (s *MarketService) SeedExample(ctx context.Context) (bool, error) {
	if s.ledger.MarketCount() > 0 {
		return false, nil
	}
	endTime := s.clock.Now().Add(exampleHorizon).UnixMilli()
	if _, err := s.Create(ctx, ExampleQuestion, ExampleOutcomes, endTime); err != nil {
		return false, err
	}
	return true, nil
}

// Get returns one market.
func (s *MarketService) Get(_ context.Context, id string) (domain.Market, error) {
	m, ok := s.ledger.GetMarket(id)
	if !ok {
		return domain.Market{}, domain.NewValidationError("get market", domain.ErrMarketNotFound)
	}
	return m, nil
}

// List returns every market in creation order.
func (s *MarketService) List(_ context.Context) []domain.Market {
	return s.ledger.ListMarkets()
}

// Trades returns a market's trades oldest first.
func (s *MarketService) Trades(_ context.Context, id string) ([]domain.Trade, error) {
	if _, ok := s.ledger.GetMarket(id); !ok {
		return nil, domain.NewValidationError("list trades", domain.ErrMarketNotFound)
	}
	return s.ledger.ListTrades(id), nil
}

// Count returns the number of markets.
func (s *MarketService) Count(_ context.Context) int {
	return s.ledger.MarketCount()
}
