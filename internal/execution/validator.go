package execution

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"autotrader/internal/core"
	"autotrader/internal/universe"
)

// ValidationResult is the validator's verdict. Hard errors block submission;
// warnings travel with the order for operator review.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

func (r *ValidationResult) addError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Valid = false
}

func (r *ValidationResult) addWarning(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// tifMatrix maps order type to its allowed time-in-force values
var tifMatrix = map[core.OrderType]map[core.TimeInForce]bool{
	core.TypeMarket: {
		core.TIFDay: true, core.TIFOPG: true, core.TIFCLS: true,
		core.TIFIOC: true, core.TIFFOK: true,
	},
	core.TypeLimit: {
		core.TIFDay: true, core.TIFGTC: true, core.TIFOPG: true,
		core.TIFCLS: true, core.TIFIOC: true, core.TIFFOK: true,
	},
	core.TypeStop:         {core.TIFDay: true, core.TIFGTC: true},
	core.TypeStopLimit:    {core.TIFDay: true, core.TIFGTC: true},
	core.TypeTrailingStop: {core.TIFDay: true, core.TIFGTC: true},
}

// extendedHoursTypes are the order types the broker accepts outside regular session
var extendedHoursTypes = map[core.OrderType]bool{
	core.TypeLimit:     true,
	core.TypeStopLimit: true,
}

var (
	limitBuffer = decimal.RequireFromString("0.10") // 10% away-from-market warning threshold
	hundred     = decimal.NewFromInt(100)
)

// Validator checks an order request against schema, tradability, session and
// price sanity rules before it reaches the broker.
type Validator struct {
	universe *universe.Universe
	broker   core.Broker
	logger   core.ILogger
}

// NewValidator creates a validator over the tradable universe and broker
func NewValidator(uni *universe.Universe, broker core.Broker, logger core.ILogger) *Validator {
	return &Validator{
		universe: uni,
		broker:   broker,
		logger:   logger.WithField("component", "order_validator"),
	}
}

// Validate runs the full sequence. Schema runs to completion first; any hard
// schema error short-circuits the rest. Bracket orders with a non-day
// time-in-force are corrected in place with a warning.
func (v *Validator) Validate(ctx context.Context, req *core.OrderRequest) *ValidationResult {
	result := &ValidationResult{Valid: true}

	v.checkSchema(req, result)
	if !result.Valid {
		return result
	}

	v.checkTradability(req, result)
	v.checkTimeInForce(req, result)
	v.checkPrices(ctx, req, result)
	v.checkSession(ctx, req, result)

	return result
}

func (v *Validator) checkSchema(req *core.OrderRequest, result *ValidationResult) {
	if req.Symbol == "" {
		result.addError("symbol is required")
	}
	if req.Side != core.SideBuy && req.Side != core.SideSell {
		result.addError("side must be buy or sell, got %q", req.Side)
	}

	hasQty := req.Qty != nil && req.Qty.IsPositive()
	hasNotional := req.Notional != nil && req.Notional.IsPositive()
	switch {
	case !hasQty && !hasNotional:
		result.addError("either qty or notional must be positive")
	case hasQty && hasNotional:
		result.addError("qty and notional are mutually exclusive")
	}

	switch req.Type {
	case core.TypeMarket:
	case core.TypeLimit:
		if req.LimitPrice == nil || !req.LimitPrice.IsPositive() {
			result.addError("limit order requires a positive limit_price")
		}
	case core.TypeStop:
		if req.StopPrice == nil || !req.StopPrice.IsPositive() {
			result.addError("stop order requires a positive stop_price")
		}
	case core.TypeStopLimit:
		if req.LimitPrice == nil || !req.LimitPrice.IsPositive() {
			result.addError("stop_limit order requires a positive limit_price")
		}
		if req.StopPrice == nil || !req.StopPrice.IsPositive() {
			result.addError("stop_limit order requires a positive stop_price")
		}
	case core.TypeTrailingStop:
		hasPercent := req.TrailPercent != nil
		hasPrice := req.TrailPrice != nil
		if hasPercent == hasPrice {
			result.addError("trailing_stop requires exactly one of trail_percent or trail_price")
		}
		if hasPercent && (!req.TrailPercent.IsPositive() || req.TrailPercent.GreaterThan(hundred)) {
			result.addError("trail_percent must be in (0, 100], got %s", req.TrailPercent)
		}
		if hasPrice && !req.TrailPrice.IsPositive() {
			result.addError("trail_price must be positive")
		}
	default:
		result.addError("unknown order type %q", req.Type)
	}

	if req.OrderClass == core.ClassBracket {
		if req.TakeProfitLimitPrice == nil || !req.TakeProfitLimitPrice.IsPositive() {
			result.addError("bracket order requires a positive take_profit_limit_price")
		}
		if req.StopLossStopPrice == nil || !req.StopLossStopPrice.IsPositive() {
			result.addError("bracket order requires a positive stop_loss_stop_price")
		}
	}
}

// checkTradability enforces the universe gate for buys. Sells bypass it: a
// position must stay closeable after its symbol leaves the candidate universe.
func (v *Validator) checkTradability(req *core.OrderRequest, result *ValidationResult) {
	if req.Side == core.SideSell {
		return
	}

	asset := v.universe.Get(req.Symbol)
	if asset == nil {
		result.addError("symbol %s is not in the tradable universe", req.Symbol)
		return
	}
	if req.Notional != nil && !asset.Fractionable {
		result.addWarning("%s is not fractionable; notional orders may be rejected", req.Symbol)
	}
	if !asset.Marginable {
		result.addWarning("%s is not marginable", req.Symbol)
	}
}

func (v *Validator) checkTimeInForce(req *core.OrderRequest, result *ValidationResult) {
	if req.OrderClass == core.ClassBracket && req.TimeInForce != core.TIFDay {
		result.addWarning("bracket orders require time_in_force=day; corrected from %s", req.TimeInForce)
		req.TimeInForce = core.TIFDay
	}

	allowed, ok := tifMatrix[req.Type]
	if !ok {
		return // schema already rejected the type
	}
	if !allowed[req.TimeInForce] {
		result.addError("time_in_force %s is not valid for %s orders", req.TimeInForce, req.Type)
	}

	if req.ExtendedHours && !extendedHoursTypes[req.Type] {
		result.addError("extended_hours is only supported for limit and stop_limit orders")
	}
}

// checkPrices warns on orders likely to behave surprisingly and hard-fails
// broken bracket leg ordering. A missing snapshot downgrades the whole step
// to a warning rather than blocking the order.
func (v *Validator) checkPrices(ctx context.Context, req *core.OrderRequest, result *ValidationResult) {
	snapshots, err := v.broker.GetSnapshots(ctx, []string{req.Symbol})
	var last decimal.Decimal
	snapshot, ok := snapshots[req.Symbol]
	if err != nil || !ok || snapshot == nil || !snapshot.LatestTradePrice.IsPositive() {
		result.addWarning("no market snapshot for %s; price sanity checks skipped", req.Symbol)
	} else {
		last = snapshot.LatestTradePrice

		if req.StopPrice != nil {
			if req.Side == core.SideBuy && req.StopPrice.LessThanOrEqual(last) {
				result.addWarning("buy stop %s at or below market %s will trigger immediately",
					req.StopPrice, last)
			}
			if req.Side == core.SideSell && req.StopPrice.GreaterThanOrEqual(last) {
				result.addWarning("sell stop %s at or above market %s will trigger immediately",
					req.StopPrice, last)
			}
		}

		if req.LimitPrice != nil {
			high := last.Mul(decimal.NewFromInt(1).Add(limitBuffer))
			low := last.Mul(decimal.NewFromInt(1).Sub(limitBuffer))
			if req.Side == core.SideBuy && req.LimitPrice.GreaterThan(high) {
				result.addWarning("buy limit %s is more than 10%% above market %s", req.LimitPrice, last)
			}
			if req.Side == core.SideSell && req.LimitPrice.LessThan(low) {
				result.addWarning("sell limit %s is more than 10%% below market %s", req.LimitPrice, last)
			}
		}
	}

	if req.OrderClass == core.ClassBracket &&
		req.TakeProfitLimitPrice != nil && req.StopLossStopPrice != nil {
		entry := last
		if req.LimitPrice != nil {
			entry = *req.LimitPrice
		}
		if entry.IsPositive() {
			tp, sl := *req.TakeProfitLimitPrice, *req.StopLossStopPrice
			if req.Side == core.SideBuy && !(tp.GreaterThan(entry) && entry.GreaterThan(sl)) {
				result.addError("buy bracket legs must satisfy take_profit %s > entry %s > stop_loss %s",
					tp, entry, sl)
			}
			if req.Side == core.SideSell && !(tp.LessThan(entry) && entry.LessThan(sl)) {
				result.addError("sell bracket legs must satisfy take_profit %s < entry %s < stop_loss %s",
					tp, entry, sl)
			}
		}
	}
}

func (v *Validator) checkSession(ctx context.Context, req *core.OrderRequest, result *ValidationResult) {
	if req.ExtendedHours {
		return
	}
	status, err := v.broker.GetMarketStatus(ctx)
	if err != nil {
		result.addWarning("market status unavailable: %v", err)
		return
	}
	if !status.IsOpen {
		result.addWarning("market is closed; day orders will queue for the next session")
	}
}
