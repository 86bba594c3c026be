package handler

import (
	"context"
	"net/http"
	"time"
)

// MarketCounter reports how many markets the ledger holds.
type MarketCounter interface {
	Count(ctx context.Context) int
}

// StatusInfo is static runtime metadata reported by GET /api/status.
type StatusInfo struct {
	Chain     string
	Bus       string
	StartedAt time.Time
}

// HealthHandler serves liveness and status endpoints.
type HealthHandler struct {
	markets MarketCounter
	info    StatusInfo
	now     func() time.Time
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(markets MarketCounter, info StatusInfo) *HealthHandler {
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}
	return &HealthHandler{markets: markets, info: info, now: time.Now}
}

// HealthCheck reports that the server is alive.
// GET /health, GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

type statusResponse struct {
	Markets       int    `json:"markets"`
	Chain         string `json:"chain"`
	Bus           string `json:"bus"`
	StartedAt     string `json:"startedAt"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
}

// Status reports ledger size and runtime wiring.
// GET /api/status
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Markets:       h.markets.Count(r.Context()),
		Chain:         h.info.Chain,
		Bus:           h.info.Bus,
		StartedAt:     h.info.StartedAt.UTC().Format(time.RFC3339),
		UptimeSeconds: max(int64(h.now().Sub(h.info.StartedAt).Seconds()), 0),
	})
}
