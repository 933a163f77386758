package execution

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ActualOutcome records what the broker actually did with the order
type ActualOutcome struct {
	Filled           bool
	FillPrice        decimal.Decimal
	FillQty          decimal.Decimal
	TotalCost        decimal.Decimal
	FillTime         time.Duration
	Slippage         decimal.Decimal // percent, relative to the expected range midpoint
	UnexpectedEvents []string
}

var partialFillThreshold = decimal.RequireFromString("0.99")

// analyzeOutcome compares actual to expected and flags anything surprising.
// Expected may be nil; in that case only the raw actuals are recorded.
func analyzeOutcome(expected *ExpectedOutcome, actual *ActualOutcome) {
	if expected == nil || actual == nil || !actual.Filled {
		return
	}

	if actual.FillPrice.IsPositive() && expected.MaxPrice.IsPositive() {
		if actual.FillPrice.LessThan(expected.MinPrice) || actual.FillPrice.GreaterThan(expected.MaxPrice) {
			actual.UnexpectedEvents = append(actual.UnexpectedEvents,
				fmt.Sprintf("fill price %s outside expected range [%s, %s]",
					actual.FillPrice, expected.MinPrice, expected.MaxPrice))
		}

		mid := expected.MinPrice.Add(expected.MaxPrice).Div(decimal.NewFromInt(2))
		if mid.IsPositive() {
			actual.Slippage = actual.FillPrice.Sub(mid).Div(mid).Mul(decimal.NewFromInt(100))
		}
	}

	if expected.ExpectedQty.IsPositive() &&
		actual.FillQty.LessThan(expected.ExpectedQty.Mul(partialFillThreshold)) {
		actual.UnexpectedEvents = append(actual.UnexpectedEvents,
			fmt.Sprintf("partial fill: %s of %s", actual.FillQty, expected.ExpectedQty))
	}

	if expected.ShouldFillImmediately && actual.FillTime > 10*expected.FillTimeEstimate {
		actual.UnexpectedEvents = append(actual.UnexpectedEvents,
			fmt.Sprintf("expected immediate fill but took %s", actual.FillTime))
	}
}
