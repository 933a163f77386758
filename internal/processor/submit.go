package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"autotrader/internal/core"
	"autotrader/internal/execution"
)

// OrderSubmit runs the execution engine for ORDER_SUBMIT work items. The work
// item's idempotency key becomes the broker client order id, so a retried item
// can never produce a second broker order.
type OrderSubmit struct {
	engine *execution.Engine
	store  core.Store
	logger core.ILogger
}

// NewOrderSubmit creates the ORDER_SUBMIT processor
func NewOrderSubmit(engine *execution.Engine, store core.Store, logger core.ILogger) *OrderSubmit {
	return &OrderSubmit{
		engine: engine,
		store:  store,
		logger: logger.WithField("component", "order_submit_processor"),
	}
}

func (p *OrderSubmit) Type() core.WorkItemType { return core.WorkItemOrderSubmit }

func (p *OrderSubmit) Process(ctx context.Context, item *core.WorkItem) (string, error) {
	var payload SubmitPayload
	if err := json.Unmarshal(item.Payload, &payload); err != nil {
		return "", fmt.Errorf("validation failed: malformed ORDER_SUBMIT payload: %w", err)
	}

	req := &core.OrderRequest{
		Symbol:               payload.Symbol,
		Side:                 payload.Side,
		Type:                 payload.Type,
		TimeInForce:          payload.TimeInForce,
		Qty:                  payload.Qty,
		Notional:             payload.Notional,
		LimitPrice:           payload.LimitPrice,
		StopPrice:            payload.StopPrice,
		TrailPercent:         payload.TrailPercent,
		TrailPrice:           payload.TrailPrice,
		ExtendedHours:        payload.ExtendedHours,
		OrderClass:           payload.OrderClass,
		TakeProfitLimitPrice: payload.TakeProfitLimitPrice,
		StopLossStopPrice:    payload.StopLossStopPrice,
		ClientOrderID:        item.IdempotencyKey,
	}

	order, err := p.engine.Execute(ctx, req, item.ID, payload.TraceID)
	if err != nil {
		return "", err
	}

	brokerOrderID := order.BrokerOrderID
	if _, err := p.store.UpdateWorkItem(ctx, item.ID, core.WorkItemPatch{
		BrokerOrderID: &brokerOrderID,
	}); err != nil {
		p.logger.Warn("Failed to record broker order id on work item",
			"work_item_id", item.ID, "broker_order_id", brokerOrderID, "error", err.Error())
	}

	return fmt.Sprintf("order %s %s filled_qty=%s", order.BrokerOrderID, order.Status, order.FilledQty), nil
}
