package domain

import "errors"

// Business-rule violations. Ledger operations wrap these in *ValidationError.
var (
	ErrInvalidMarketSpec     = errors.New("market must have a question and at least two outcomes")
	ErrMarketNotFound        = errors.New("market not found")
	ErrMarketResolved        = errors.New("market is resolved")
	ErrMarketAlreadyResolved = errors.New("market is already resolved")
	ErrInvalidOutcomeIndex   = errors.New("invalid outcome index")
	ErrInvalidAmount         = errors.New("trade amount must be positive")
)

// Errors raised outside the ledger core.
var (
	ErrChainRejected = errors.New("chain submission rejected")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
)

// ValidationError is a rejected request. The ledger is unchanged when one is
// returned and retrying the same request will fail the same way.
type ValidationError struct {
	Op  string
	Err error
}

func (e *ValidationError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// InternalError is an unexpected fault inside the ledger, such as an id
// source failing. The ledger is unchanged when one is returned.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return e.Op + ": internal: " + e.Err.Error()
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// NewValidationError wraps a business-rule sentinel for op.
func NewValidationError(op string, err error) *ValidationError {
	return &ValidationError{Op: op, Err: err}
}

// NewInternalError wraps an unexpected fault for op.
func NewInternalError(op string, err error) *InternalError {
	return &InternalError{Op: op, Err: err}
}

// IsValidation reports whether err is a business-rule violation.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsInternal reports whether err is an unexpected internal fault.
func IsInternal(err error) bool {
	var ie *InternalError
	return errors.As(err, &ie)
}
