package apperrors

import (
	"errors"
	"fmt"
)

// Standardized broker errors
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidSymbol     = errors.New("invalid symbol")
	ErrMarketClosed      = errors.New("market closed")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrNetwork           = errors.New("network error")
	ErrTimeout           = errors.New("request timeout")
	ErrOrderRejected     = errors.New("order rejected")
	ErrOrderNotFound     = errors.New("order not found")
	ErrPositionNotFound  = errors.New("position not found")
	ErrValidation        = errors.New("validation failed")
	ErrDuplicateOrder    = errors.New("duplicate order")
	ErrSymbolNotTradable = errors.New("symbol not tradable")
)

// BrokerError is a broker API failure with a transport status code, when one
// was available on the response path.
type BrokerError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *BrokerError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("broker error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("broker error: %s", e.Message)
}

func (e *BrokerError) Unwrap() error { return e.Err }

// NewBrokerError wraps a broker failure with its transport status code
func NewBrokerError(statusCode int, message string, err error) *BrokerError {
	return &BrokerError{StatusCode: statusCode, Message: message, Err: err}
}

// StatusCode extracts a transport status code from an error chain, or 0
func StatusCode(err error) int {
	var be *BrokerError
	if errors.As(err, &be) {
		return be.StatusCode
	}
	return 0
}
