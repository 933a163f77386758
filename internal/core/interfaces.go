package core

import (
	"context"
	"time"
)

// Broker is the typed client for the remote brokerage API. Implementations are
// injected; the wire protocol is outside the core.
type Broker interface {
	CreateOrder(ctx context.Context, req *OrderRequest) (*Order, error)
	GetOrder(ctx context.Context, brokerOrderID string) (*Order, error)
	GetOrders(ctx context.Context, filter OrderStatusFilter, limit int) ([]*Order, error)
	CancelOrder(ctx context.Context, brokerOrderID string) error
	CancelAllOrders(ctx context.Context) error
	GetPositions(ctx context.Context) ([]*Position, error)
	ClosePosition(ctx context.Context, symbol string) error
	GetSnapshots(ctx context.Context, symbols []string) (map[string]*Snapshot, error)
	GetMarketStatus(ctx context.Context) (*MarketStatus, error)
}

// AssetLister is an optional broker capability for refreshing the tradable universe
type AssetLister interface {
	GetAssets(ctx context.Context, assetClass string) ([]*Asset, error)
}

// Store is the transactional work item, order and fill store. ClaimNextWorkItem
// is the only non-trivial contract: concurrent callers must never observe the
// same item in CLAIMED.
type Store interface {
	CreateWorkItem(ctx context.Context, item *WorkItem) (*WorkItem, error)
	GetWorkItem(ctx context.Context, id string) (*WorkItem, error)
	GetWorkItemByIdempotencyKey(ctx context.Context, key string) (*WorkItem, error)
	ClaimNextWorkItem(ctx context.Context, types []WorkItemType) (*WorkItem, error)
	UpdateWorkItem(ctx context.Context, id string, patch WorkItemPatch) (*WorkItem, error)
	GetWorkItemCount(ctx context.Context, status WorkItemStatus, typ WorkItemType) (int, error)
	GetWorkItems(ctx context.Context, limit int, status WorkItemStatus) ([]*WorkItem, error)
	CreateWorkItemRun(ctx context.Context, run *WorkItemRun) error
	GetWorkItemRuns(ctx context.Context, workItemID string) ([]*WorkItemRun, error)

	UpsertOrderByBrokerOrderID(ctx context.Context, brokerOrderID string, order *Order) (*Order, error)
	GetOrderByBrokerOrderID(ctx context.Context, brokerOrderID string) (*Order, error)
	GetOrderByID(ctx context.Context, id string) (*Order, error)
	GetOrdersByStatus(ctx context.Context, status OrderStatus) ([]*Order, error)
	GetRecentOrders(ctx context.Context, limit int) ([]*Order, error)

	CreateFill(ctx context.Context, fill *Fill) error
	GetFillsByOrderID(ctx context.Context, orderID string) ([]*Fill, error)
	GetFillsByBrokerOrderID(ctx context.Context, brokerOrderID string) ([]*Fill, error)
	GetFillsByOrderIDs(ctx context.Context, orderIDs []string) (map[string][]*Fill, error)
}

// EventSink receives trade lifecycle events. Implementations must not block the
// emitting component; failures are the sink's problem.
type EventSink interface {
	Emit(ctx context.Context, event *Event)
}

// Clock abstracts wall-clock access for deterministic tests
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
