package processor

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"autotrader/internal/core"
)

// Sync list bounds: the broker is paged but reconciliation only needs the
// recent window.
const (
	syncOpenLimit   = 100
	syncClosedLimit = 50
)

// OrderSync handles ORDER_SYNC work items: it rewrites the local order mirror
// from the broker's authoritative book and backfills missing fills.
type OrderSync struct {
	broker core.Broker
	store  core.Store
	logger core.ILogger
}

// NewOrderSync creates the ORDER_SYNC processor
func NewOrderSync(broker core.Broker, store core.Store, logger core.ILogger) *OrderSync {
	return &OrderSync{
		broker: broker,
		store:  store,
		logger: logger.WithField("component", "order_sync_processor"),
	}
}

func (p *OrderSync) Type() core.WorkItemType { return core.WorkItemOrderSync }

func (p *OrderSync) Process(ctx context.Context, item *core.WorkItem) (string, error) {
	open, err := p.broker.GetOrders(ctx, core.FilterOpen, syncOpenLimit)
	if err != nil {
		return "", fmt.Errorf("failed to list open orders: %w", err)
	}
	closed, err := p.broker.GetOrders(ctx, core.FilterClosed, syncClosedLimit)
	if err != nil {
		return "", fmt.Errorf("failed to list closed orders: %w", err)
	}

	synced := 0
	fillsCreated := 0
	for _, order := range append(open, closed...) {
		local, err := p.syncOrder(ctx, order)
		if err != nil {
			return "", err
		}
		synced++

		created, err := p.backfillFill(ctx, order, local)
		if err != nil {
			return "", err
		}
		if created {
			fillsCreated++
		}
	}

	p.logger.Info("Order book synced",
		"open", len(open),
		"closed", len(closed),
		"fills_created", fillsCreated)
	return fmt.Sprintf("synced %d orders, created %d fills", synced, fillsCreated), nil
}

// syncOrder upserts one broker order, linking it back to the originating work
// item through the client order id when possible.
func (p *OrderSync) syncOrder(ctx context.Context, order *core.Order) (*core.Order, error) {
	copied := *order
	if copied.WorkItemID == "" && copied.ClientOrderID != "" {
		if origin, err := p.store.GetWorkItemByIdempotencyKey(ctx, copied.ClientOrderID); err == nil && origin != nil {
			copied.WorkItemID = origin.ID
		}
	}

	local, err := p.store.UpsertOrderByBrokerOrderID(ctx, order.BrokerOrderID, &copied)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert order %s: %w", order.BrokerOrderID, err)
	}
	return local, nil
}

// backfillFill appends a Fill for a filled broker order that has none locally
func (p *OrderSync) backfillFill(ctx context.Context, order *core.Order, local *core.Order) (bool, error) {
	if order.FilledAt == nil || !order.FilledQty.IsPositive() {
		return false, nil
	}

	existing, err := p.store.GetFillsByBrokerOrderID(ctx, order.BrokerOrderID)
	if err != nil {
		return false, fmt.Errorf("failed to look up fills for %s: %w", order.BrokerOrderID, err)
	}
	if len(existing) > 0 {
		return false, nil
	}

	fill := &core.Fill{
		ID:            uuid.NewString(),
		BrokerOrderID: order.BrokerOrderID,
		Symbol:        order.Symbol,
		Side:          order.Side,
		Qty:           order.FilledQty,
		OccurredAt:    *order.FilledAt,
		RawJSON:       order.RawJSON,
	}
	if local != nil {
		fill.OrderID = local.ID
	}
	if order.FilledAvgPrice != nil {
		fill.Price = *order.FilledAvgPrice
	}

	if err := p.store.CreateFill(ctx, fill); err != nil {
		return false, fmt.Errorf("failed to create fill for %s: %w", order.BrokerOrderID, err)
	}
	return true, nil
}
