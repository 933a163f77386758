// Package execution drives a single order submission through validation,
// outcome prediction, submit-with-retry, broker-side monitoring and outcome
// analysis. State here is per-process and transient; durable state lives in
// the store.
package execution

import (
	"time"

	"github.com/shopspring/decimal"

	"autotrader/internal/classify"
	"autotrader/internal/core"
)

// Status is the in-memory lifecycle of one submission
type Status string

const (
	StatusPending    Status = "pending"
	StatusValidating Status = "validating"
	StatusSubmitting Status = "submitting"
	StatusSubmitted  Status = "submitted"
	StatusMonitoring Status = "monitoring"
	StatusFilled     Status = "filled"
	StatusCanceled   Status = "canceled"
	StatusFailed     Status = "failed"
	StatusRecovering Status = "recovering"
)

// maxRecordedErrors bounds the per-submission error history
const maxRecordedErrors = 10

// State tracks one active submission, keyed by client order id. Owned
// exclusively by the engine and removed on terminal outcome.
type State struct {
	ClientOrderID  string
	BrokerOrderID  string
	Symbol         string
	Side           core.OrderSide
	OrderType      core.OrderType
	RequestedQty   decimal.Decimal
	FilledQty      decimal.Decimal
	RequestedPrice *decimal.Decimal
	FilledPrice    *decimal.Decimal
	Attempts       int
	MaxAttempts    int
	Status         Status
	Errors         []classify.Classification
	Validation     *ValidationResult
	Expected       *ExpectedOutcome
	Actual         *ActualOutcome
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (s *State) transition(status Status, now time.Time) {
	s.Status = status
	s.UpdatedAt = now
}

func (s *State) recordError(cls classify.Classification, now time.Time) {
	if len(s.Errors) < maxRecordedErrors {
		s.Errors = append(s.Errors, cls)
	}
	s.UpdatedAt = now
}
