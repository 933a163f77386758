package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"autotrader/internal/core"
)

// OrderCancel handles ORDER_CANCEL work items. The payload order id may be a
// local surrogate id or a broker order id; both resolve.
type OrderCancel struct {
	broker core.Broker
	store  core.Store
	logger core.ILogger
}

// NewOrderCancel creates the ORDER_CANCEL processor
func NewOrderCancel(broker core.Broker, store core.Store, logger core.ILogger) *OrderCancel {
	return &OrderCancel{
		broker: broker,
		store:  store,
		logger: logger.WithField("component", "order_cancel_processor"),
	}
}

func (p *OrderCancel) Type() core.WorkItemType { return core.WorkItemOrderCancel }

func (p *OrderCancel) Process(ctx context.Context, item *core.WorkItem) (string, error) {
	var payload CancelPayload
	if err := json.Unmarshal(item.Payload, &payload); err != nil {
		return "", fmt.Errorf("validation failed: malformed ORDER_CANCEL payload: %w", err)
	}
	if payload.OrderID == "" {
		return "", fmt.Errorf("validation failed: ORDER_CANCEL payload missing orderId")
	}

	brokerOrderID := payload.OrderID
	if local, err := p.store.GetOrderByID(ctx, payload.OrderID); err == nil && local != nil {
		brokerOrderID = local.BrokerOrderID
	}

	if err := p.broker.CancelOrder(ctx, brokerOrderID); err != nil {
		return "", err
	}

	p.logger.Info("Order canceled", "broker_order_id", brokerOrderID)
	return fmt.Sprintf("canceled %s", brokerOrderID), nil
}
