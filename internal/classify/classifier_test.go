package classify

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"autotrader/pkg/apperrors"
)

func TestClassify_Sentinels(t *testing.T) {
	cases := []struct {
		err       error
		kind      Kind
		retryable bool
		recovery  RecoveryStrategy
	}{
		{apperrors.ErrInsufficientFunds, KindInsufficientFunds, false, RecoverAdjustAndRetry},
		{apperrors.ErrInvalidSymbol, KindInvalidSymbol, false, RecoverManualIntervention},
		{apperrors.ErrMarketClosed, KindMarketClosed, true, RecoverWaitForMarketOpen},
		{apperrors.ErrRateLimitExceeded, KindRateLimited, true, RecoverRetryWithBackoff},
		{apperrors.ErrNetwork, KindNetworkError, true, RecoverRetryWithBackoff},
		{apperrors.ErrTimeout, KindTimeout, true, RecoverCheckAndSync},
		{apperrors.ErrOrderRejected, KindBrokerRejection, false, RecoverAdjustAndRetry},
		{apperrors.ErrOrderNotFound, KindNotFound, false, RecoverCheckAndSync},
		{apperrors.ErrValidation, KindValidationError, false, RecoverNone},
	}

	for _, tc := range cases {
		c := Classify(tc.err)
		if c.Kind != tc.kind {
			t.Errorf("Classify(%v): kind = %s, want %s", tc.err, c.Kind, tc.kind)
		}
		if c.Retryable != tc.retryable {
			t.Errorf("Classify(%v): retryable = %v, want %v", tc.err, c.Retryable, tc.retryable)
		}
		if c.Recovery != tc.recovery {
			t.Errorf("Classify(%v): recovery = %s, want %s", tc.err, c.Recovery, tc.recovery)
		}
	}
}

func TestClassify_MessagePatterns(t *testing.T) {
	cases := []struct {
		msg  string
		kind Kind
	}{
		{"dial tcp: ECONNREFUSED", KindNetworkError},
		{"request timed out after 30s", KindTimeout},
		{"429 Too Many Requests", KindRateLimited},
		{"market is closed", KindMarketClosed},
		{"insufficient buying power for order", KindInsufficientFunds},
		{"asset not found: FAKE", KindInvalidSymbol},
		{"order rejected: limit price too aggressive", KindBrokerRejection},
		{"completely novel failure", KindUnknown},
	}

	for _, tc := range cases {
		c := Classify(errors.New(tc.msg))
		if c.Kind != tc.kind {
			t.Errorf("Classify(%q): kind = %s, want %s", tc.msg, c.Kind, tc.kind)
		}
	}
}

// Permanent patterns win over transient ones when a message matches both.
func TestClassify_PermanentPrecedence(t *testing.T) {
	c := Classify(errors.New("network hiccup then order rejected"))
	if c.Kind != KindBrokerRejection {
		t.Errorf("kind = %s, want %s", c.Kind, KindBrokerRejection)
	}
	if c.Retryable {
		t.Error("broker rejection must not be retryable")
	}
}

func TestClassify_StatusCodes(t *testing.T) {
	cases := []struct {
		code int
		kind Kind
	}{
		{429, KindRateLimited},
		{408, KindTimeout},
		{404, KindNotFound},
		{422, KindBrokerRejection},
		{400, KindBrokerRejection},
		{500, KindNetworkError},
		{503, KindNetworkError},
	}

	for _, tc := range cases {
		err := apperrors.NewBrokerError(tc.code, "opaque upstream failure", nil)
		c := Classify(err)
		if c.Kind != tc.kind {
			t.Errorf("status %d: kind = %s, want %s", tc.code, c.Kind, tc.kind)
		}
	}
}

func TestClassify_ContextDeadline(t *testing.T) {
	err := fmt.Errorf("broker call: %w", context.DeadlineExceeded)
	c := Classify(err)
	if c.Kind != KindTimeout {
		t.Errorf("kind = %s, want %s", c.Kind, KindTimeout)
	}
	if c.Recovery != RecoverCheckAndSync {
		t.Errorf("recovery = %s, want %s", c.Recovery, RecoverCheckAndSync)
	}
}

// classify is total and deterministic
func TestClassify_TotalAndDeterministic(t *testing.T) {
	inputs := []error{
		nil,
		errors.New(""),
		errors.New("?????"),
		fmt.Errorf("wrapped: %w", apperrors.ErrTimeout),
		apperrors.NewBrokerError(418, "teapot", nil),
	}

	for _, err := range inputs {
		first := Classify(err)
		second := Classify(err)
		if first != second {
			t.Errorf("Classify(%v) not deterministic: %+v vs %+v", err, first, second)
		}
		if first.Kind == "" {
			t.Errorf("Classify(%v) returned empty kind", err)
		}
	}
}

func TestClassify_UnknownDefaults(t *testing.T) {
	c := Classify(errors.New("gremlins"))
	if c.Kind != KindUnknown || !c.Retryable {
		t.Fatalf("unexpected classification: %+v", c)
	}
	if c.SuggestedDelay != 3*time.Second {
		t.Errorf("delay = %v, want 3s", c.SuggestedDelay)
	}
}
