package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/predictionledger/internal/domain"
)

const maxBodyBytes = 1 << 20

// errorResponse is the body of every non-2xx response. Code is stable and
// machine-readable; Message is for humans.
type errorResponse struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

// writeJSON marshals v as JSON and writes it with the given status. If
// marshaling fails it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal","message":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// errorStatus maps ledger and collaborator errors to HTTP statuses.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrMarketNotFound):
		return http.StatusNotFound, "market_not_found"
	case errors.Is(err, domain.ErrInvalidMarketSpec):
		return http.StatusBadRequest, "invalid_market_spec"
	case errors.Is(err, domain.ErrInvalidOutcomeIndex):
		return http.StatusBadRequest, "invalid_outcome_index"
	case errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, domain.ErrMarketResolved):
		return http.StatusConflict, "market_resolved"
	case errors.Is(err, domain.ErrMarketAlreadyResolved):
		return http.StatusConflict, "market_already_resolved"
	case errors.Is(err, domain.ErrChainRejected):
		return http.StatusPaymentRequired, "chain_rejected"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case domain.IsValidation(err):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// writeServiceError writes err with its mapped status. Internal faults are
// logged and their detail is not sent to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "handler: "+op+" failed", slog.String("error", err.Error()))
		writeError(w, status, code, "internal server error")
		return
	}
	msg := err.Error()
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		msg = ve.Err.Error()
	}
	writeError(w, status, code, msg)
}

// decodeJSON reads a JSON request body of at most 1 MiB into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// pathParam extracts a named path parameter using Go 1.22+ routing.
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
