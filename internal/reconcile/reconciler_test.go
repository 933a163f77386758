package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/core"
	"autotrader/internal/mock"
	"autotrader/internal/queue"
	"autotrader/internal/store"
	"autotrader/pkg/logging"
)

func newReconciler(t *testing.T) (*Reconciler, *mock.Broker, *store.MemoryStore) {
	t.Helper()

	broker := mock.NewBroker()
	st := store.NewMemoryStore(nil)
	q := queue.NewQueue(st, nil, logging.NewNopLogger())
	r := NewReconciler(broker, q, nil, logging.NewNopLogger(), Config{})
	return r, broker, st
}

func brokerOrder(id string, status core.OrderStatus, filledQty int64, age time.Duration) *core.Order {
	return &core.Order{
		BrokerOrderID: id,
		Symbol:        "AAPL",
		Side:          core.SideBuy,
		Qty:           decimal.NewFromInt(10),
		Status:        status,
		FilledQty:     decimal.NewFromInt(filledQty),
		SubmittedAt:   time.Now().Add(-age),
	}
}

func TestReconciler_EnqueueSync(t *testing.T) {
	r, _, st := newReconciler(t)
	ctx := context.Background()

	require.NoError(t, r.EnqueueSync(ctx))

	count, err := st.GetWorkItemCount(ctx, core.WorkItemPending, core.WorkItemOrderSync)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestReconciler_SweepFlagsUnrealOrders(t *testing.T) {
	r, broker, _ := newReconciler(t)
	ctx := context.Background()

	broker.InjectOrder(brokerOrder("bk_rejected", core.OrderRejected, 0, time.Hour))
	broker.InjectOrder(brokerOrder("bk_canceled_empty", core.OrderCanceled, 0, time.Hour))
	broker.InjectOrder(brokerOrder("bk_expired_empty", core.OrderExpired, 0, time.Hour))
	broker.InjectOrder(brokerOrder("bk_stale", core.OrderAccepted, 0, 25*time.Hour))

	zeroSize := brokerOrder("bk_zero", core.OrderAccepted, 0, time.Hour)
	zeroSize.Qty = decimal.Zero
	broker.InjectOrder(zeroSize)

	// Real orders: filled, canceled after a partial fill, young and working
	broker.InjectOrder(brokerOrder("bk_filled", core.OrderFilled, 10, time.Hour))
	broker.InjectOrder(brokerOrder("bk_canceled_partial", core.OrderCanceled, 3, time.Hour))
	broker.InjectOrder(brokerOrder("bk_working", core.OrderAccepted, 0, time.Hour))

	flagged, err := r.SweepUnrealOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, flagged)

	// Active unreal orders were canceled; terminal ones left alone
	canceled := broker.CanceledOrderIDs()
	assert.Contains(t, canceled, "bk_stale")
	assert.Contains(t, canceled, "bk_zero")
	assert.NotContains(t, canceled, "bk_rejected")
	assert.NotContains(t, canceled, "bk_working")
	assert.NotContains(t, canceled, "bk_filled")
}

func TestReconciler_SweepCancelFailureIsNonFatal(t *testing.T) {
	r, broker, _ := newReconciler(t)
	ctx := context.Background()

	broker.InjectOrder(brokerOrder("bk_stale", core.OrderAccepted, 0, 25*time.Hour))
	broker.ScriptCancelError("bk_stale", context.DeadlineExceeded)

	flagged, err := r.SweepUnrealOrders(ctx)
	require.NoError(t, err, "cancel failures are logged, not returned")
	assert.Equal(t, 1, flagged)
}

func TestReconciler_ClassifyUnrealRules(t *testing.T) {
	r, _, _ := newReconciler(t)
	now := time.Now()

	cases := []struct {
		name   string
		order  *core.Order
		unreal bool
		reason string
	}{
		{"rejected", brokerOrder("a", core.OrderRejected, 0, 0), true, "rejected"},
		{"canceled unfilled", brokerOrder("b", core.OrderCanceled, 0, 0), true, "canceled_unfilled"},
		{"canceled partial", brokerOrder("c", core.OrderCanceled, 2, 0), false, ""},
		{"expired unfilled", brokerOrder("d", core.OrderExpired, 0, 0), true, "expired_unfilled"},
		{"stale active", brokerOrder("e", core.OrderNew, 0, 25*time.Hour), true, "stale_unfilled"},
		{"young active", brokerOrder("f", core.OrderNew, 0, time.Hour), false, ""},
		{"filled", brokerOrder("g", core.OrderFilled, 10, 48*time.Hour), false, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reason, unreal := r.classifyUnreal(tc.order, now)
			assert.Equal(t, tc.unreal, unreal)
			assert.Equal(t, tc.reason, reason)
		})
	}
}

func TestReconciler_StartStop(t *testing.T) {
	r, _, _ := newReconciler(t)

	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Stop())
}
