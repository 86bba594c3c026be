package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/predictionledger/internal/domain"
)

// PositionService is what the position handler needs from the service layer.
type PositionService interface {
	Positions(ctx context.Context, wallet string) []domain.PositionView
	Trades(ctx context.Context, wallet string) []domain.Trade
	Reconcile(ctx context.Context, wallet string) []domain.PositionMismatch
}

// PositionHandler serves wallet position endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{positions: positions, logger: logger}
}

type listPositionsResponse struct {
	Wallet    string                `json:"wallet"`
	Positions []domain.PositionView `json:"positions"`
}

// ListPositions returns the wallet's positions with current market state.
// GET /api/positions?wallet=...
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "wallet query parameter required")
		return
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{
		Wallet:    wallet,
		Positions: h.positions.Positions(r.Context(), wallet),
	})
}

type walletTradesResponse struct {
	Wallet string         `json:"wallet"`
	Trades []domain.Trade `json:"trades"`
}

// ListTrades returns the wallet's trades oldest first.
// GET /api/positions/trades?wallet=...
func (h *PositionHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "wallet query parameter required")
		return
	}
	writeJSON(w, http.StatusOK, walletTradesResponse{
		Wallet: wallet,
		Trades: h.positions.Trades(r.Context(), wallet),
	})
}

type reconcileResponse struct {
	Wallet     string                    `json:"wallet"`
	Consistent bool                      `json:"consistent"`
	Mismatches []domain.PositionMismatch `json:"mismatches"`
}

// Reconcile checks the wallet's positions against its trade history.
// GET /api/admin/reconcile?wallet=...
func (h *PositionHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "wallet query parameter required")
		return
	}
	mismatches := h.positions.Reconcile(r.Context(), wallet)
	if mismatches == nil {
		mismatches = []domain.PositionMismatch{}
	}
	writeJSON(w, http.StatusOK, reconcileResponse{
		Wallet:     wallet,
		Consistent: len(mismatches) == 0,
		Mismatches: mismatches,
	})
}
