package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/predictionledger/internal/domain"
	"github.com/alanyoungcy/predictionledger/internal/ledger"
)

// TradeRequest is a trade as submitted by a client.
type TradeRequest struct {
	MarketID      string
	OutcomeIndex  int
	Amount        float64
	WalletAddress *string
}

// TradeService places trades, optionally confirming them on a chain first.
type TradeService struct {
	ledger *ledger.Ledger
	chain  domain.ChainSubmitter
	events *Events
	logger *slog.Logger
}

// NewTradeService creates a TradeService. A nil chain records trades
// directly.
func NewTradeService(l *ledger.Ledger, chain domain.ChainSubmitter, events *Events, logger *slog.Logger) *TradeService {
	if events == nil {
		events = NewEvents(nil, nil, nil, nil, logger)
	}
	return &TradeService{ledger: l, chain: chain, events: events, logger: logger}
}

// Place executes a trade. With a chain configured the trade is validated,
// submitted and only then recorded with its transaction id; a rejected
// submission leaves the ledger untouched.
func (s *TradeService) Place(ctx context.Context, req TradeRequest) (domain.Market, domain.Trade, error) {
	var opts []ledger.TradeOption
	if s.chain != nil {
		txID, err := s.submit(ctx, req)
		if err != nil {
			return domain.Market{}, domain.Trade{}, err
		}
		opts = append(opts, ledger.WithTxID(txID))
	}

	m, t, err := s.ledger.PlaceTrade(req.MarketID, req.OutcomeIndex, req.Amount, req.WalletAddress, opts...)
	if err != nil {
		if len(opts) > 0 {
			s.logger.WarnContext(ctx, "trade_service: submitted trade rejected by ledger",
				slog.String("market_id", req.MarketID),
				slog.String("chain", s.chain.Name()),
				slog.String("error", err.Error()),
			)
		}
		return domain.Market{}, domain.Trade{}, err
	}

	s.logger.InfoContext(ctx, "trade_service: trade placed",
		slog.String("trade_id", t.ID),
		slog.String("market_id", t.MarketID),
		slog.Int("outcome", t.OutcomeIndex),
		slog.String("amount", t.Amount.String()),
		slog.String("wallet", t.Wallet()),
	)
	s.events.TradePlaced(ctx, m, t)
	return m, t, nil
}

func (s *TradeService) submit(ctx context.Context, req TradeRequest) (string, error) {
	if err := s.ledger.CheckTrade(req.MarketID, req.OutcomeIndex, req.Amount); err != nil {
		return "", err
	}

	txID, err := s.chain.SubmitTrade(ctx, domain.TradeIntent{
		MarketID:      req.MarketID,
		OutcomeIndex:  req.OutcomeIndex,
		Amount:        decimal.NewFromFloat(req.Amount),
		WalletAddress: req.WalletAddress,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "trade_service: chain submission failed",
			slog.String("market_id", req.MarketID),
			slog.String("chain", s.chain.Name()),
			slog.String("error", err.Error()),
		)
		if !errors.Is(err, domain.ErrChainRejected) {
			err = fmt.Errorf("%w: %w", domain.ErrChainRejected, err)
		}
		return "", domain.NewValidationError("submit trade", err)
	}
	return txID, nil
}
