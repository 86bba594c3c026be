package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/predictionledger/internal/domain"
)

// ResolutionService is what the admin handler needs from the service layer.
type ResolutionService interface {
	Resolve(ctx context.Context, marketID string, winningOutcomeIndex int, evidence string) (domain.Market, error)
}

// AdminHandler serves oracle and operator endpoints. Routes are mounted
// behind the admin auth middleware.
type AdminHandler struct {
	resolutions ResolutionService
	logger      *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(resolutions ResolutionService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{resolutions: resolutions, logger: logger}
}

type resolveRequest struct {
	MarketID            string `json:"marketId"`
	WinningOutcomeIndex *int   `json:"winningOutcomeIndex"`
	Evidence            string `json:"evidence"`
}

// ResolveMarket resolves a market and returns it.
// POST /api/admin/resolve
func (h *AdminHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	idx := -1
	if req.WinningOutcomeIndex != nil {
		idx = *req.WinningOutcomeIndex
	}

	m, err := h.resolutions.Resolve(r.Context(), req.MarketID, idx, req.Evidence)
	if err != nil {
		writeServiceError(w, r, h.logger, "resolve market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}
