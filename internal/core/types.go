// Package core defines the domain types and interfaces for the trading controller
package core

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// WorkItemType identifies the processor responsible for a work item
type WorkItemType string

const (
	WorkItemOrderSubmit        WorkItemType = "ORDER_SUBMIT"
	WorkItemOrderCancel        WorkItemType = "ORDER_CANCEL"
	WorkItemOrderSync          WorkItemType = "ORDER_SYNC"
	WorkItemPositionClose      WorkItemType = "POSITION_CLOSE"
	WorkItemKillSwitch         WorkItemType = "KILL_SWITCH"
	WorkItemDecisionEvaluation WorkItemType = "DECISION_EVALUATION"
	WorkItemAssetUniverseSync  WorkItemType = "ASSET_UNIVERSE_SYNC"
)

// WorkItemStatus is the durable lifecycle state of a work item
type WorkItemStatus string

const (
	WorkItemPending    WorkItemStatus = "PENDING"
	WorkItemClaimed    WorkItemStatus = "CLAIMED"
	WorkItemSucceeded  WorkItemStatus = "SUCCEEDED"
	WorkItemDeadLetter WorkItemStatus = "DEAD_LETTER"
)

// IsTerminal reports whether the status permits no further worker transitions
func (s WorkItemStatus) IsTerminal() bool {
	return s == WorkItemSucceeded || s == WorkItemDeadLetter
}

// WorkItem is a durable, retryable unit of deferred work
type WorkItem struct {
	ID             string
	Type           WorkItemType
	Payload        json.RawMessage
	IdempotencyKey string // optional 32-char fingerprint; enqueue deduplicates on it
	Status         WorkItemStatus
	Attempts       int
	MaxAttempts    int
	NextRunAt      time.Time
	LastError      string
	Result         string
	BrokerOrderID  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WorkItemRun is an append-only record of a single processing attempt
type WorkItemRun struct {
	ID            string
	WorkItemID    string
	AttemptNumber int
	Status        string
	StartedAt     time.Time
}

// Work item run statuses
const (
	RunRunning   = "RUNNING"
	RunSucceeded = "SUCCEEDED"
	RunFailed    = "FAILED"
)

// WorkItemPatch carries a partial update for a work item. Nil fields are left unchanged.
type WorkItemPatch struct {
	Status        *WorkItemStatus
	Attempts      *int
	NextRunAt     *time.Time
	LastError     *string
	Result        *string
	BrokerOrderID *string
}

// OrderSide is the direction of an order
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderType is the broker order type
type OrderType string

const (
	TypeMarket       OrderType = "market"
	TypeLimit        OrderType = "limit"
	TypeStop         OrderType = "stop"
	TypeStopLimit    OrderType = "stop_limit"
	TypeTrailingStop OrderType = "trailing_stop"
)

// TimeInForce is the broker time-in-force
type TimeInForce string

const (
	TIFDay TimeInForce = "day"
	TIFGTC TimeInForce = "gtc"
	TIFOPG TimeInForce = "opg"
	TIFCLS TimeInForce = "cls"
	TIFIOC TimeInForce = "ioc"
	TIFFOK TimeInForce = "fok"
)

// OrderClass distinguishes simple orders from multi-leg structures
type OrderClass string

const (
	ClassSimple  OrderClass = "simple"
	ClassBracket OrderClass = "bracket"
	ClassOCO     OrderClass = "oco"
	ClassOTO     OrderClass = "oto"
)

// OrderStatus mirrors the broker's order status vocabulary
type OrderStatus string

const (
	OrderNew             OrderStatus = "new"
	OrderAccepted        OrderStatus = "accepted"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderFilled          OrderStatus = "filled"
	OrderCanceled        OrderStatus = "canceled"
	OrderExpired         OrderStatus = "expired"
	OrderReplaced        OrderStatus = "replaced"
	OrderRejected        OrderStatus = "rejected"
)

// IsTerminal reports whether the broker considers the order done
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderFilled, OrderCanceled, OrderExpired, OrderReplaced, OrderRejected:
		return true
	}
	return false
}

// Order is the local mirror of a broker order. The broker is authoritative for
// identity and fill state; this record supports operator tooling and forensics.
type Order struct {
	ID             string // local surrogate id
	BrokerOrderID  string
	ClientOrderID  string
	Symbol         string
	Side           OrderSide
	Type           OrderType
	TimeInForce    TimeInForce
	Qty            decimal.Decimal
	Notional       decimal.Decimal
	LimitPrice     *decimal.Decimal
	StopPrice      *decimal.Decimal
	Status         OrderStatus
	SubmittedAt    time.Time
	UpdatedAt      time.Time
	FilledAt       *time.Time
	FilledQty      decimal.Decimal
	FilledAvgPrice *decimal.Decimal
	WorkItemID     string
	TraceID        string
	RawJSON        json.RawMessage
}

// Fill is an append-only per-execution record
type Fill struct {
	ID            string
	BrokerOrderID string
	OrderID       string
	Symbol        string
	Side          OrderSide
	Qty           decimal.Decimal
	Price         decimal.Decimal
	OccurredAt    time.Time
	RawJSON       json.RawMessage
}

// OrderRequest carries the parameters for a broker order creation call
type OrderRequest struct {
	Symbol        string
	Side          OrderSide
	Type          OrderType
	TimeInForce   TimeInForce
	Qty           *decimal.Decimal
	Notional      *decimal.Decimal
	LimitPrice    *decimal.Decimal
	StopPrice     *decimal.Decimal
	TrailPercent  *decimal.Decimal
	TrailPrice    *decimal.Decimal
	ExtendedHours bool
	OrderClass    OrderClass
	// Bracket legs
	TakeProfitLimitPrice *decimal.Decimal
	StopLossStopPrice    *decimal.Decimal
	ClientOrderID        string
}

// Position is an open broker position
type Position struct {
	Symbol        string
	Qty           decimal.Decimal
	AvgEntryPrice decimal.Decimal
	MarketValue   decimal.Decimal
	Side          string
}

// Snapshot is the latest market view for a symbol
type Snapshot struct {
	Symbol           string
	LatestTradePrice decimal.Decimal
	BidPrice         decimal.Decimal
	AskPrice         decimal.Decimal
}

// MarketStatus describes the current trading session
type MarketStatus struct {
	IsOpen          bool
	Session         string
	IsExtendedHours bool
}

// OrderStatusFilter selects which broker orders to list
type OrderStatusFilter string

const (
	FilterOpen   OrderStatusFilter = "open"
	FilterClosed OrderStatusFilter = "closed"
	FilterAll    OrderStatusFilter = "all"
)

// Asset is an entry in the tradable universe
type Asset struct {
	Symbol       string
	Class        string
	Tradable     bool
	Fractionable bool
	Marginable   bool
}

// Event names emitted to the sink
const (
	EventOrderSubmitted = "trade.order.submitted"
	EventOrderFilled    = "trade.order.filled"
	EventOrderRejected  = "trade.order.rejected"
)

// Event is a trade lifecycle notification
type Event struct {
	Name          string          `json:"name"`
	OrderID       string          `json:"orderId"`
	ClientOrderID string          `json:"clientOrderId"`
	Symbol        string          `json:"symbol"`
	Side          OrderSide       `json:"side"`
	Qty           decimal.Decimal `json:"qty"`
	Price         decimal.Decimal `json:"price"`
	Status        OrderStatus     `json:"status"`
	Timestamp     time.Time       `json:"timestamp"`
	Message       string          `json:"message,omitempty"`
}
