package processor

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/core"
	"autotrader/internal/events"
	"autotrader/internal/execution"
	"autotrader/internal/mock"
	"autotrader/internal/queue"
	"autotrader/internal/store"
	"autotrader/internal/universe"
	"autotrader/pkg/apperrors"
	"autotrader/pkg/logging"
)

type fixture struct {
	broker   *mock.Broker
	store    *store.MemoryStore
	queue    *queue.Queue
	worker   *queue.Worker
	sink     *events.MemorySink
	universe *universe.Universe
	engine   *execution.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	broker := mock.NewBroker()
	broker.SetAssets(
		&core.Asset{Symbol: "AAPL", Class: "us_equity", Tradable: true, Fractionable: true, Marginable: true},
	)
	broker.SetFillPrice("AAPL", decimal.RequireFromString("150.25"))

	uni := universe.NewUniverse(broker, nil, logging.NewNopLogger(), 0)
	_, err := uni.Refresh(context.Background(), "")
	require.NoError(t, err)

	st := store.NewMemoryStore(nil)
	sink := events.NewMemorySink()
	validator := execution.NewValidator(uni, broker, logging.NewNopLogger())
	engine := execution.NewEngine(broker, st, validator, nil, sink, nil, logging.NewNopLogger(),
		execution.Config{PollInterval: time.Millisecond, MonitorBudget: 500 * time.Millisecond})

	q := queue.NewQueue(st, nil, logging.NewNopLogger())
	w := queue.NewWorker(st, queue.NewBackoff(nil), nil, logging.NewNopLogger(), time.Second)
	w.Register(NewOrderSubmit(engine, st, logging.NewNopLogger()))
	w.Register(NewOrderCancel(broker, st, logging.NewNopLogger()))
	w.Register(NewOrderSync(broker, st, logging.NewNopLogger()))
	w.Register(NewUniverseSync(uni, logging.NewNopLogger()))

	return &fixture{broker: broker, store: st, queue: q, worker: w, sink: sink, universe: uni, engine: engine}
}

func enqueueMarketBuy(t *testing.T, f *fixture, qty int64) *core.WorkItem {
	t.Helper()

	q := decimal.NewFromInt(qty)
	key := queue.IdempotencyKey("momentum-1", "AAPL", "buy", "sig1", queue.TimeBucket(time.Now()))
	item, err := f.queue.Enqueue(context.Background(), core.WorkItemOrderSubmit, SubmitPayload{
		Symbol:      "AAPL",
		Side:        core.SideBuy,
		Qty:         &q,
		Type:        core.TypeMarket,
		TimeInForce: core.TIFDay,
	}, queue.WithIdempotencyKey(key))
	require.NoError(t, err)
	return item
}

func TestOrderSubmit_HappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	item := enqueueMarketBuy(t, f, 10)
	f.worker.RunCycle(ctx)

	done, err := f.store.GetWorkItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, core.WorkItemSucceeded, done.Status)
	require.NotEmpty(t, done.BrokerOrderID)
	assert.Contains(t, done.Result, "filled")

	order, err := f.store.GetOrderByBrokerOrderID(ctx, done.BrokerOrderID)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, item.IdempotencyKey, order.ClientOrderID, "idempotency key is echoed as client order id")
	assert.Equal(t, item.ID, order.WorkItemID)
	assert.True(t, order.FilledQty.Equal(decimal.NewFromInt(10)))

	fills, err := f.store.GetFillsByBrokerOrderID(ctx, done.BrokerOrderID)
	require.NoError(t, err)
	assert.Len(t, fills, 1)

	assert.Len(t, f.sink.Named(core.EventOrderSubmitted), 1)
	assert.Len(t, f.sink.Named(core.EventOrderFilled), 1)
}

// A sync after execution must not duplicate the fill the engine recorded.
func TestOrderSync_NoDuplicateFills(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	item := enqueueMarketBuy(t, f, 10)
	f.worker.RunCycle(ctx)

	done, err := f.store.GetWorkItem(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, core.WorkItemSucceeded, done.Status)

	syncProc := NewOrderSync(f.broker, f.store, logging.NewNopLogger())
	for i := 0; i < 2; i++ {
		_, err := syncProc.Process(ctx, &core.WorkItem{ID: "sync", Type: core.WorkItemOrderSync})
		require.NoError(t, err)
	}

	fills, err := f.store.GetFillsByBrokerOrderID(ctx, done.BrokerOrderID)
	require.NoError(t, err)
	assert.Len(t, fills, 1, "sync must be idempotent over fills")
}

// Sync discovers broker orders the engine never saw and links them to their
// originating work item through the client order id.
func TestOrderSync_BackfillsAndLinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	origin, err := f.store.CreateWorkItem(ctx, &core.WorkItem{
		Type:           core.WorkItemOrderSubmit,
		IdempotencyKey: "feedbead0123456789feedbead012345",
		Status:         core.WorkItemClaimed,
		MaxAttempts:    3,
		NextRunAt:      time.Now(),
	})
	require.NoError(t, err)

	filledAt := time.Now()
	price := decimal.RequireFromString("99.5")
	f.broker.InjectOrder(&core.Order{
		BrokerOrderID:  "bk_orphan",
		ClientOrderID:  origin.IdempotencyKey,
		Symbol:         "AAPL",
		Side:           core.SideBuy,
		Qty:            decimal.NewFromInt(5),
		Status:         core.OrderFilled,
		FilledQty:      decimal.NewFromInt(5),
		FilledAvgPrice: &price,
		FilledAt:       &filledAt,
		SubmittedAt:    time.Now(),
	})

	syncProc := NewOrderSync(f.broker, f.store, logging.NewNopLogger())
	result, err := syncProc.Process(ctx, &core.WorkItem{ID: "sync", Type: core.WorkItemOrderSync})
	require.NoError(t, err)
	assert.Contains(t, result, "created 1 fills")

	local, err := f.store.GetOrderByBrokerOrderID(ctx, "bk_orphan")
	require.NoError(t, err)
	require.NotNil(t, local)
	assert.Equal(t, origin.ID, local.WorkItemID)

	fills, err := f.store.GetFillsByBrokerOrderID(ctx, "bk_orphan")
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.True(t, fills[0].Price.Equal(price))
	assert.Equal(t, local.ID, fills[0].OrderID)
}

func TestOrderCancel_ResolvesLocalID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.broker.InjectOrder(&core.Order{
		BrokerOrderID: "bk_live",
		Symbol:        "AAPL",
		Side:          core.SideBuy,
		Qty:           decimal.NewFromInt(1),
		Status:        core.OrderAccepted,
		SubmittedAt:   time.Now(),
	})
	local, err := f.store.UpsertOrderByBrokerOrderID(ctx, "bk_live", &core.Order{
		Symbol: "AAPL", Side: core.SideBuy, Qty: decimal.NewFromInt(1),
		Status: core.OrderAccepted, SubmittedAt: time.Now(),
	})
	require.NoError(t, err)

	proc := NewOrderCancel(f.broker, f.store, logging.NewNopLogger())
	item := &core.WorkItem{
		ID:      "wi_cancel",
		Type:    core.WorkItemOrderCancel,
		Payload: []byte(`{"orderId":"` + local.ID + `"}`),
	}
	_, err = proc.Process(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, []string{"bk_live"}, f.broker.CanceledOrderIDs())
}

func TestKillSwitch_CancelsAndCloses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.broker.InjectOrder(&core.Order{
		BrokerOrderID: "bk_open", Symbol: "AAPL", Side: core.SideBuy,
		Qty: decimal.NewFromInt(1), Status: core.OrderAccepted, SubmittedAt: time.Now(),
	})
	f.broker.SetPositions(
		&core.Position{Symbol: "AAPL", Qty: decimal.NewFromInt(10)},
		&core.Position{Symbol: "MSFT", Qty: decimal.NewFromInt(5)},
	)

	var active atomic.Bool
	proc := NewKillSwitch(f.broker, &active, logging.NewNopLogger())
	result, err := proc.Process(ctx, &core.WorkItem{
		ID:      "wi_kill",
		Type:    core.WorkItemKillSwitch,
		Payload: []byte(`{"closePositions":true}`),
	})
	require.NoError(t, err)

	assert.True(t, active.Load())
	assert.Contains(t, result, "closed=2")
	assert.Contains(t, f.broker.CanceledOrderIDs(), "bk_open")

	positions, err := f.broker.GetPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

// Individual close failures are logged, not fatal.
func TestKillSwitch_PositionFailureDoesNotFailItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.broker.SetPositions(
		&core.Position{Symbol: "AAPL", Qty: decimal.NewFromInt(10)},
		&core.Position{Symbol: "MSFT", Qty: decimal.NewFromInt(5)},
	)
	f.broker.ScriptCloseError("MSFT", apperrors.ErrPositionNotFound)

	var active atomic.Bool
	proc := NewKillSwitch(f.broker, &active, logging.NewNopLogger())
	result, err := proc.Process(ctx, &core.WorkItem{
		ID:      "wi_kill",
		Type:    core.WorkItemKillSwitch,
		Payload: []byte(`{"closePositions":true}`),
	})
	require.NoError(t, err, "a single position failure must not fail the item")
	assert.Contains(t, result, "closed=1")
	assert.Contains(t, result, "failed=1")
}

func TestUniverseSync_RefreshesAndFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	proc := NewUniverseSync(f.universe, logging.NewNopLogger())

	f.broker.SetAssets(
		&core.Asset{Symbol: "AAPL", Tradable: true},
		&core.Asset{Symbol: "DELISTED", Tradable: false},
	)
	result, err := proc.Process(ctx, &core.WorkItem{Type: core.WorkItemAssetUniverseSync})
	require.NoError(t, err)
	assert.Contains(t, result, "1 tradable")
	assert.True(t, f.universe.IsTradable("AAPL"))
	assert.False(t, f.universe.IsTradable("DELISTED"))

	f.broker.SetAssetsError(context.DeadlineExceeded)
	_, err = proc.Process(ctx, &core.WorkItem{Type: core.WorkItemAssetUniverseSync})
	require.Error(t, err, "a failed refresh must fail the work item")
	assert.True(t, f.universe.IsTradable("AAPL"), "a failed refresh must not clear the cache")
}

func TestDelegate_RequiresHandler(t *testing.T) {
	ctx := context.Background()

	unconfigured := NewDelegate(core.WorkItemDecisionEvaluation, nil)
	_, err := unconfigured.Process(ctx, &core.WorkItem{Type: core.WorkItemDecisionEvaluation})
	require.Error(t, err)

	called := false
	configured := NewDelegate(core.WorkItemPositionClose, func(ctx context.Context, payload json.RawMessage) (string, error) {
		called = true
		return "done", nil
	})
	result, err := configured.Process(ctx, &core.WorkItem{Type: core.WorkItemPositionClose, Payload: []byte(`{}`)})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "done", result)
}
