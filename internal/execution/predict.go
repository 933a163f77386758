package execution

import (
	"time"

	"github.com/shopspring/decimal"

	"autotrader/internal/core"
)

// ExpectedOutcome is the pre-submission prediction used by the outcome
// analysis. It is advisory; a missing prediction never blocks an order.
type ExpectedOutcome struct {
	MinPrice              decimal.Decimal
	MaxPrice              decimal.Decimal
	ExpectedQty           decimal.Decimal
	ShouldFillImmediately bool
	FillTimeEstimate      time.Duration
	Risks                 []string
}

var (
	marketBuffer   = decimal.RequireFromString("0.005") // ±0.5% of last trade
	stopBuffer     = decimal.RequireFromString("0.01")  // ±1% of stop price
	trailingBuffer = decimal.RequireFromString("0.10")  // ±10% of last trade
	one            = decimal.NewFromInt(1)
)

// Predict computes the expected fill for req given the last trade price.
// Returns nil when there is no usable price to anchor the prediction.
func Predict(req *core.OrderRequest, lastTrade decimal.Decimal) *ExpectedOutcome {
	if !lastTrade.IsPositive() && req.LimitPrice == nil && req.StopPrice == nil {
		return nil
	}

	expected := &ExpectedOutcome{}
	if req.Qty != nil {
		expected.ExpectedQty = *req.Qty
	} else if req.Notional != nil && lastTrade.IsPositive() {
		expected.ExpectedQty = req.Notional.Div(lastTrade)
	}

	switch req.Type {
	case core.TypeMarket:
		expected.MinPrice = lastTrade.Mul(one.Sub(marketBuffer))
		expected.MaxPrice = lastTrade.Mul(one.Add(marketBuffer))
		expected.ShouldFillImmediately = true
		expected.FillTimeEstimate = 500 * time.Millisecond
		expected.Risks = append(expected.Risks, "slippage")

	case core.TypeLimit:
		expected.MinPrice = *req.LimitPrice
		expected.MaxPrice = *req.LimitPrice
		if lastTrade.IsPositive() {
			if req.Side == core.SideBuy {
				expected.ShouldFillImmediately = req.LimitPrice.GreaterThanOrEqual(lastTrade)
			} else {
				expected.ShouldFillImmediately = req.LimitPrice.LessThanOrEqual(lastTrade)
			}
		}
		if expected.ShouldFillImmediately {
			expected.FillTimeEstimate = time.Second
		} else {
			expected.FillTimeEstimate = 5 * time.Minute
		}
		expected.Risks = append(expected.Risks, "may not fill")

	case core.TypeStop:
		expected.MinPrice = req.StopPrice.Mul(one.Sub(stopBuffer))
		expected.MaxPrice = req.StopPrice.Mul(one.Add(stopBuffer))
		expected.FillTimeEstimate = 10 * time.Minute
		expected.Risks = append(expected.Risks, "triggers as market order", "slippage")

	case core.TypeStopLimit:
		expected.MinPrice = *req.LimitPrice
		expected.MaxPrice = *req.LimitPrice
		expected.FillTimeEstimate = 10 * time.Minute
		expected.Risks = append(expected.Risks, "may not fill past limit on gap")

	case core.TypeTrailingStop:
		anchor := lastTrade
		if !anchor.IsPositive() {
			return nil
		}
		expected.MinPrice = anchor.Mul(one.Sub(trailingBuffer))
		expected.MaxPrice = anchor.Mul(one.Add(trailingBuffer))
		expected.FillTimeEstimate = time.Hour
		expected.Risks = append(expected.Risks, "normal volatility may trigger")

	default:
		return nil
	}

	return expected
}
