// Package processor implements the per-work-item-type handlers dispatched by
// the queue worker.
package processor

import (
	"github.com/shopspring/decimal"

	"autotrader/internal/core"
)

// SubmitPayload is the ORDER_SUBMIT work item payload
type SubmitPayload struct {
	Symbol               string           `json:"symbol"`
	Side                 core.OrderSide   `json:"side"`
	Qty                  *decimal.Decimal `json:"qty,omitempty"`
	Notional             *decimal.Decimal `json:"notional,omitempty"`
	Type                 core.OrderType   `json:"type"`
	TimeInForce          core.TimeInForce `json:"time_in_force"`
	LimitPrice           *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice            *decimal.Decimal `json:"stop_price,omitempty"`
	TrailPercent         *decimal.Decimal `json:"trail_percent,omitempty"`
	TrailPrice           *decimal.Decimal `json:"trail_price,omitempty"`
	ExtendedHours        bool             `json:"extended_hours,omitempty"`
	OrderClass           core.OrderClass  `json:"order_class,omitempty"`
	TakeProfitLimitPrice *decimal.Decimal `json:"take_profit_limit_price,omitempty"`
	StopLossStopPrice    *decimal.Decimal `json:"stop_loss_stop_price,omitempty"`
	TraceID              string           `json:"traceId,omitempty"`
}

// CancelPayload is the ORDER_CANCEL work item payload
type CancelPayload struct {
	OrderID string `json:"orderId"`
}

// KillSwitchPayload is the KILL_SWITCH work item payload
type KillSwitchPayload struct {
	ClosePositions bool `json:"closePositions,omitempty"`
}

// UniverseSyncPayload is the ASSET_UNIVERSE_SYNC work item payload
type UniverseSyncPayload struct {
	AssetClass string `json:"assetClass,omitempty"`
}

// SyncPayload is the ORDER_SYNC work item payload
type SyncPayload struct {
	TraceID string `json:"traceId,omitempty"`
}
