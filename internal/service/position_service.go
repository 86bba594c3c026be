package service

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/predictionledger/internal/domain"
	"github.com/alanyoungcy/predictionledger/internal/ledger"
)

// PositionService serves wallet holdings.
type PositionService struct {
	ledger *ledger.Ledger
	logger *slog.Logger
}

// NewPositionService creates a PositionService.
func NewPositionService(l *ledger.Ledger, logger *slog.Logger) *PositionService {
	return &PositionService{ledger: l, logger: logger}
}

// Positions returns the wallet's positions, each with the current question,
// outcome names, probabilities and resolution state of its market.
func (s *PositionService) Positions(_ context.Context, wallet string) []domain.PositionView {
	positions := s.ledger.GetPositions(wallet)
	out := make([]domain.PositionView, 0, len(positions))
	for _, p := range positions {
		v := domain.PositionView{Position: p}
		if m, ok := s.ledger.GetMarket(p.MarketID); ok {
			v.Question = m.Question
			v.Outcomes = make([]string, len(m.Outcomes))
			for i, o := range m.Outcomes {
				v.Outcomes[i] = o.Name
			}
			v.Probabilities = m.Probabilities()
			v.Resolved = m.Resolved
		}
		out = append(out, v)
	}
	return out
}

// Trades returns the wallet's trades oldest first.
func (s *PositionService) Trades(_ context.Context, wallet string) []domain.Trade {
	return s.ledger.ListTradesByWallet(wallet)
}

// Reconcile compares the wallet's recorded positions with its trade history
// and logs every disagreement.
func (s *PositionService) Reconcile(ctx context.Context, wallet string) []domain.PositionMismatch {
	mismatches := s.ledger.ReconcilePositions(wallet)
	for _, mm := range mismatches {
		s.logger.ErrorContext(ctx, "position_service: position disagrees with trade history",
			slog.String("wallet", wallet),
			slog.String("market_id", mm.MarketID),
			slog.Int("outcome", mm.OutcomeIndex),
			slog.String("recorded", mm.Recorded.String()),
			slog.String("from_trades", mm.FromTrades.String()),
		)
	}
	return mismatches
}
