package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"autotrader/internal/core"
	"autotrader/pkg/concurrency"
	"autotrader/pkg/telemetry"
)

// KillSwitch handles KILL_SWITCH work items: cancel everything at the broker
// and, when asked, flatten all positions. Position closes run in parallel and
// are best effort; individual failures never fail the work item.
type KillSwitch struct {
	broker core.Broker
	active *atomic.Bool
	pool   *concurrency.WorkerPool
	logger core.ILogger
}

// NewKillSwitch creates the KILL_SWITCH processor. The active flag is shared
// with the rest of the process so enqueuers can refuse new trade intents.
func NewKillSwitch(broker core.Broker, active *atomic.Bool, logger core.ILogger) *KillSwitch {
	return &KillSwitch{
		broker: broker,
		active: active,
		pool: concurrency.NewWorkerPool(concurrency.PoolConfig{
			Name:        "position_close",
			MaxWorkers:  4,
			MaxCapacity: 256,
		}, logger),
		logger: logger.WithField("component", "kill_switch_processor"),
	}
}

func (p *KillSwitch) Type() core.WorkItemType { return core.WorkItemKillSwitch }

func (p *KillSwitch) Process(ctx context.Context, item *core.WorkItem) (string, error) {
	var payload KillSwitchPayload
	if len(item.Payload) > 0 {
		if err := json.Unmarshal(item.Payload, &payload); err != nil {
			return "", fmt.Errorf("validation failed: malformed KILL_SWITCH payload: %w", err)
		}
	}

	p.active.Store(true)
	telemetry.GetGlobalMetrics().SetKillSwitchActive(true)
	p.logger.Warn("Kill switch engaged", "close_positions", payload.ClosePositions)

	if err := p.broker.CancelAllOrders(ctx); err != nil {
		return "", fmt.Errorf("failed to cancel open orders: %w", err)
	}

	closed := 0
	failed := 0
	if payload.ClosePositions {
		positions, err := p.broker.GetPositions(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to list positions: %w", err)
		}

		var closedCount, failedCount atomic.Int64
		group := p.pool.Group()
		for _, position := range positions {
			symbol := position.Symbol
			group.Submit(func() {
				if err := p.broker.ClosePosition(ctx, symbol); err != nil {
					failedCount.Add(1)
					p.logger.Error("Failed to close position", "symbol", symbol, "error", err.Error())
					return
				}
				closedCount.Add(1)
				p.logger.Info("Position closed", "symbol", symbol)
			})
		}
		group.Wait()
		closed = int(closedCount.Load())
		failed = int(failedCount.Load())
	}

	return fmt.Sprintf("orders canceled, positions closed=%d failed=%d", closed, failed), nil
}
