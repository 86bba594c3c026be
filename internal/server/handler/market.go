package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/predictionledger/internal/domain"
)

// MarketService is what the market handler needs from the service layer.
type MarketService interface {
	Create(ctx context.Context, question string, outcomes []string, endTime int64) (domain.Market, error)
	Get(ctx context.Context, id string) (domain.Market, error)
	List(ctx context.Context) []domain.Market
	Trades(ctx context.Context, id string) ([]domain.Trade, error)
}

// MarketHandler serves market endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, logger: logger}
}

// ListMarkets returns every market in creation order as a JSON array.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets := h.markets.List(r.Context())
	if markets == nil {
		markets = []domain.Market{}
	}
	writeJSON(w, http.StatusOK, markets)
}

// GetMarket returns one market.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.markets.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type createMarketRequest struct {
	Question string   `json:"question"`
	Outcomes []string `json:"outcomes"`
	EndTime  int64    `json:"endTime"`
}

// CreateMarket opens a market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	m, err := h.markets.Create(r.Context(), req.Question, req.Outcomes, req.EndTime)
	if err != nil {
		writeServiceError(w, r, h.logger, "create market", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

type listTradesResponse struct {
	MarketID string         `json:"marketId"`
	Trades   []domain.Trade `json:"trades"`
}

// ListTrades returns a market's trades oldest first.
// GET /api/markets/{id}/trades
func (h *MarketHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	trades, err := h.markets.Trades(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "list trades", err)
		return
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, listTradesResponse{MarketID: id, Trades: trades})
}
