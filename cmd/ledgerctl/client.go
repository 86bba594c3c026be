package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/predictionledger/internal/domain"
)

// apiError is a non-2xx response from the ledger API.
type apiError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("ledgerctl: http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("ledgerctl: http %d %s: %s", e.Status, e.Code, e.Message)
}

// client is a minimal JSON client for the ledger HTTP API.
type client struct {
	base   string
	apiKey string
	http   *http.Client
}

func newClient(base, apiKey string, timeout time.Duration) *client {
	return &client{
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
	}
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("ledgerctl: encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("ledgerctl: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ledgerctl: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("ledgerctl: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &apiError{Status: resp.StatusCode}
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("ledgerctl: decode response: %w", err)
	}
	return nil
}

func (c *client) markets(ctx context.Context) ([]domain.Market, error) {
	var out []domain.Market
	err := c.do(ctx, http.MethodGet, "/api/markets", nil, &out)
	return out, err
}

func (c *client) market(ctx context.Context, id string) (domain.Market, error) {
	var out domain.Market
	err := c.do(ctx, http.MethodGet, "/api/markets/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *client) trades(ctx context.Context, marketID string) ([]domain.Trade, error) {
	var out struct {
		Trades []domain.Trade `json:"trades"`
	}
	err := c.do(ctx, http.MethodGet, "/api/markets/"+url.PathEscape(marketID)+"/trades", nil, &out)
	return out.Trades, err
}

func (c *client) walletTrades(ctx context.Context, wallet string) ([]domain.Trade, error) {
	var out struct {
		Trades []domain.Trade `json:"trades"`
	}
	err := c.do(ctx, http.MethodGet, "/api/positions/trades?wallet="+url.QueryEscape(wallet), nil, &out)
	return out.Trades, err
}

func (c *client) positions(ctx context.Context, wallet string) ([]domain.PositionView, error) {
	var out struct {
		Positions []domain.PositionView `json:"positions"`
	}
	err := c.do(ctx, http.MethodGet, "/api/positions?wallet="+url.QueryEscape(wallet), nil, &out)
	return out.Positions, err
}

func (c *client) createMarket(ctx context.Context, question string, outcomes []string, endTime int64) (domain.Market, error) {
	var out domain.Market
	err := c.do(ctx, http.MethodPost, "/api/markets", map[string]any{
		"question": question,
		"outcomes": outcomes,
		"endTime":  endTime,
	}, &out)
	return out, err
}

type tradeResult struct {
	Market domain.Market `json:"market"`
	Trade  domain.Trade  `json:"trade"`
}

func (c *client) placeTrade(ctx context.Context, marketID string, outcome int, amount float64, wallet string) (tradeResult, error) {
	body := map[string]any{
		"marketId":     marketID,
		"outcomeIndex": outcome,
		"amount":       amount,
	}
	if wallet != "" {
		body["walletAddress"] = wallet
	}
	var out tradeResult
	err := c.do(ctx, http.MethodPost, "/api/trades", body, &out)
	return out, err
}

func (c *client) resolve(ctx context.Context, marketID string, winner int, evidence string) (domain.Market, error) {
	var out domain.Market
	err := c.do(ctx, http.MethodPost, "/api/admin/resolve", map[string]any{
		"marketId":            marketID,
		"winningOutcomeIndex": winner,
		"evidence":            evidence,
	}, &out)
	return out, err
}
