package handler

import (
	"context"
	"log/slog"
	"math"
	"net/http"

	"github.com/alanyoungcy/predictionledger/internal/domain"
	"github.com/alanyoungcy/predictionledger/internal/service"
)

// TradeService is what the trade handler needs from the service layer.
type TradeService interface {
	Place(ctx context.Context, req service.TradeRequest) (domain.Market, domain.Trade, error)
}

// TradeHandler serves the trade endpoint.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{trades: trades, logger: logger}
}

type placeTradeRequest struct {
	MarketID      string   `json:"marketId"`
	OutcomeIndex  *int     `json:"outcomeIndex"`
	Amount        *float64 `json:"amount"`
	WalletAddress *string  `json:"walletAddress"`
}

type placeTradeResponse struct {
	Market domain.Market `json:"market"`
	Trade  domain.Trade  `json:"trade"`
}

// PlaceTrade executes a trade and returns the repriced market with the
// recorded trade.
// POST /api/trades
func (h *TradeHandler) PlaceTrade(w http.ResponseWriter, r *http.Request) {
	var req placeTradeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	// A missing index or amount fails ledger validation like any other
	// invalid value.
	idx := -1
	if req.OutcomeIndex != nil {
		idx = *req.OutcomeIndex
	}
	amount := math.NaN()
	if req.Amount != nil {
		amount = *req.Amount
	}

	m, t, err := h.trades.Place(r.Context(), service.TradeRequest{
		MarketID:      req.MarketID,
		OutcomeIndex:  idx,
		Amount:        amount,
		WalletAddress: req.WalletAddress,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "place trade", err)
		return
	}
	writeJSON(w, http.StatusCreated, placeTradeResponse{Market: m, Trade: t})
}
