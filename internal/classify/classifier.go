// Package classify maps raw broker and transport errors to typed kinds with
// retry and recovery policies.
package classify

import (
	"context"
	"errors"
	"strings"
	"time"

	"autotrader/pkg/apperrors"
)

// Kind is the classified error category
type Kind string

const (
	KindInsufficientFunds Kind = "INSUFFICIENT_FUNDS"
	KindInvalidSymbol     Kind = "INVALID_SYMBOL"
	KindMarketClosed      Kind = "MARKET_CLOSED"
	KindRateLimited       Kind = "RATE_LIMITED"
	KindNetworkError      Kind = "NETWORK_ERROR"
	KindTimeout           Kind = "TIMEOUT"
	KindBrokerRejection   Kind = "BROKER_REJECTION"
	KindNotFound          Kind = "POSITION_ORDER_NOT_FOUND"
	KindValidationError   Kind = "VALIDATION_ERROR"
	KindUnknown           Kind = "UNKNOWN"
)

// RecoveryStrategy is the post-failure action the execution engine should take
type RecoveryStrategy string

const (
	RecoverNone               RecoveryStrategy = "NONE"
	RecoverRetryWithBackoff   RecoveryStrategy = "RETRY_WITH_BACKOFF"
	RecoverAdjustAndRetry     RecoveryStrategy = "ADJUST_AND_RETRY"
	RecoverWaitForMarketOpen  RecoveryStrategy = "WAIT_FOR_MARKET_OPEN"
	RecoverCheckAndSync       RecoveryStrategy = "CHECK_AND_SYNC"
	RecoverManualIntervention RecoveryStrategy = "MANUAL_INTERVENTION"
)

// Classification is the typed verdict for a raw error
type Classification struct {
	Kind           Kind
	Retryable      bool
	SuggestedDelay time.Duration
	Recovery       RecoveryStrategy
	Message        string
}

// policy table, one row per kind
var policies = map[Kind]Classification{
	KindInsufficientFunds: {Kind: KindInsufficientFunds, Retryable: false, SuggestedDelay: 0, Recovery: RecoverAdjustAndRetry},
	KindInvalidSymbol:     {Kind: KindInvalidSymbol, Retryable: false, SuggestedDelay: 0, Recovery: RecoverManualIntervention},
	KindMarketClosed:      {Kind: KindMarketClosed, Retryable: true, SuggestedDelay: 60 * time.Second, Recovery: RecoverWaitForMarketOpen},
	KindRateLimited:       {Kind: KindRateLimited, Retryable: true, SuggestedDelay: 5 * time.Second, Recovery: RecoverRetryWithBackoff},
	KindNetworkError:      {Kind: KindNetworkError, Retryable: true, SuggestedDelay: 2 * time.Second, Recovery: RecoverRetryWithBackoff},
	KindTimeout:           {Kind: KindTimeout, Retryable: true, SuggestedDelay: 1 * time.Second, Recovery: RecoverCheckAndSync},
	KindBrokerRejection:   {Kind: KindBrokerRejection, Retryable: false, SuggestedDelay: 0, Recovery: RecoverAdjustAndRetry},
	KindNotFound:          {Kind: KindNotFound, Retryable: false, SuggestedDelay: 0, Recovery: RecoverCheckAndSync},
	KindValidationError:   {Kind: KindValidationError, Retryable: false, SuggestedDelay: 0, Recovery: RecoverNone},
	KindUnknown:           {Kind: KindUnknown, Retryable: true, SuggestedDelay: 3 * time.Second, Recovery: RecoverRetryWithBackoff},
}

// Permanent patterns are checked before transient ones: a message that matches
// both must classify as the permanent kind.
var permanentPatterns = []struct {
	kind     Kind
	patterns []string
}{
	{KindValidationError, []string{"validation failed", "validation error", "invalid order parameter", "missing required"}},
	{KindInsufficientFunds, []string{"insufficient funds", "insufficient buying power", "buying power", "insufficient balance", "insufficient margin"}},
	{KindInvalidSymbol, []string{"invalid symbol", "unknown symbol", "symbol not found", "asset not found", "not tradable"}},
	{KindNotFound, []string{"order not found", "position not found", "position does not exist", "no position"}},
	{KindBrokerRejection, []string{"order rejected", "rejected by broker", "forbidden", "unprocessable", "cannot be replaced"}},
}

var transientPatterns = []struct {
	kind     Kind
	patterns []string
}{
	{KindMarketClosed, []string{"market closed", "market is closed", "outside regular trading hours", "not open for trading"}},
	{KindRateLimited, []string{"rate limit", "too many requests", "429"}},
	{KindTimeout, []string{"timeout", "timed out", "deadline exceeded", "context deadline"}},
	{KindNetworkError, []string{"econnrefused", "econnreset", "connection refused", "connection reset", "no such host", "network", "broken pipe", "eof"}},
}

// Classify maps a raw error to its kind and policy. It is pure and total: every
// input yields a classification, nil included.
func Classify(err error) Classification {
	if err == nil {
		return withMessage(policies[KindUnknown], "")
	}

	if c, ok := classifySentinel(err); ok {
		return withMessage(c, err.Error())
	}

	msg := strings.ToLower(err.Error())

	for _, group := range permanentPatterns {
		for _, p := range group.patterns {
			if strings.Contains(msg, p) {
				return withMessage(policies[group.kind], err.Error())
			}
		}
	}

	if code := apperrors.StatusCode(err); code != 0 {
		if c, ok := classifyStatusCode(code); ok {
			return withMessage(c, err.Error())
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return withMessage(policies[KindTimeout], err.Error())
	}

	for _, group := range transientPatterns {
		for _, p := range group.patterns {
			if strings.Contains(msg, p) {
				return withMessage(policies[group.kind], err.Error())
			}
		}
	}

	return withMessage(policies[KindUnknown], err.Error())
}

func classifySentinel(err error) (Classification, bool) {
	switch {
	case errors.Is(err, apperrors.ErrInsufficientFunds):
		return policies[KindInsufficientFunds], true
	case errors.Is(err, apperrors.ErrInvalidSymbol), errors.Is(err, apperrors.ErrSymbolNotTradable):
		return policies[KindInvalidSymbol], true
	case errors.Is(err, apperrors.ErrMarketClosed):
		return policies[KindMarketClosed], true
	case errors.Is(err, apperrors.ErrRateLimitExceeded):
		return policies[KindRateLimited], true
	case errors.Is(err, apperrors.ErrNetwork):
		return policies[KindNetworkError], true
	case errors.Is(err, apperrors.ErrTimeout):
		return policies[KindTimeout], true
	case errors.Is(err, apperrors.ErrOrderRejected), errors.Is(err, apperrors.ErrDuplicateOrder):
		return policies[KindBrokerRejection], true
	case errors.Is(err, apperrors.ErrOrderNotFound), errors.Is(err, apperrors.ErrPositionNotFound):
		return policies[KindNotFound], true
	case errors.Is(err, apperrors.ErrValidation):
		return policies[KindValidationError], true
	}
	return Classification{}, false
}

// classifyStatusCode uses the structured transport code when the message alone
// was inconclusive. 4xx is permanent except 408 and 429; 5xx is transient.
func classifyStatusCode(code int) (Classification, bool) {
	switch {
	case code == 429:
		return policies[KindRateLimited], true
	case code == 408:
		return policies[KindTimeout], true
	case code == 404:
		return policies[KindNotFound], true
	case code == 422, code == 403:
		return policies[KindBrokerRejection], true
	case code >= 400 && code < 500:
		return policies[KindBrokerRejection], true
	case code >= 500:
		return policies[KindNetworkError], true
	}
	return Classification{}, false
}

func withMessage(c Classification, msg string) Classification {
	c.Message = msg
	return c
}
