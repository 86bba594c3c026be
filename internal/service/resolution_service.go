package service

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/predictionledger/internal/domain"
	"github.com/alanyoungcy/predictionledger/internal/ledger"
)

// ResolutionService resolves markets on behalf of the oracle or an admin.
type ResolutionService struct {
	ledger *ledger.Ledger
	events *Events
	logger *slog.Logger
}

// NewResolutionService creates a ResolutionService.
func NewResolutionService(l *ledger.Ledger, events *Events, logger *slog.Logger) *ResolutionService {
	if events == nil {
		events = NewEvents(nil, nil, nil, nil, logger)
	}
	return &ResolutionService{ledger: l, events: events, logger: logger}
}

// Resolve closes a market on its winning outcome.
func (s *ResolutionService) Resolve(ctx context.Context, marketID string, winningOutcomeIndex int, evidence string) (domain.Market, error) {
	m, err := s.ledger.ResolveMarket(marketID, winningOutcomeIndex, evidence)
	if err != nil {
		return domain.Market{}, err
	}

	s.logger.InfoContext(ctx, "resolution_service: market resolved",
		slog.String("market_id", m.ID),
		slog.Int("winning_outcome", winningOutcomeIndex),
		slog.String("evidence", evidence),
	)
	s.events.MarketResolved(ctx, m)
	return m, nil
}
