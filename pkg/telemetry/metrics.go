package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricWorkItemsClaimedTotal    = "autotrader_work_items_claimed_total"
	MetricWorkItemsSucceededTotal  = "autotrader_work_items_succeeded_total"
	MetricWorkItemsFailedTotal     = "autotrader_work_items_failed_total"
	MetricWorkItemsDeadLetterTotal = "autotrader_work_items_dead_letter_total"
	MetricQueueDepth               = "autotrader_queue_depth"
	MetricOrdersSubmittedTotal     = "autotrader_orders_submitted_total"
	MetricOrdersFilledTotal        = "autotrader_orders_filled_total"
	MetricOrdersFailedTotal        = "autotrader_orders_failed_total"
	MetricBrokerLatency            = "autotrader_broker_latency_ms"
	MetricKillSwitchActive         = "autotrader_kill_switch_active"
	MetricReconcilerUnrealTotal    = "autotrader_reconciler_unreal_orders_total"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	WorkItemsClaimedTotal    metric.Int64Counter
	WorkItemsSucceededTotal  metric.Int64Counter
	WorkItemsFailedTotal     metric.Int64Counter
	WorkItemsDeadLetterTotal metric.Int64Counter
	QueueDepth               metric.Int64ObservableGauge
	OrdersSubmittedTotal     metric.Int64Counter
	OrdersFilledTotal        metric.Int64Counter
	OrdersFailedTotal        metric.Int64Counter
	BrokerLatency            metric.Float64Histogram
	KillSwitchActive         metric.Int64ObservableGauge
	ReconcilerUnrealTotal    metric.Int64Counter

	// State for observable gauges
	mu            sync.RWMutex
	queueDepthMap map[string]int64
	killSwitchOn  int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			queueDepthMap: make(map[string]int64),
		}
	})
	return globalMetrics
}

// InitMetrics creates all instruments on the given meter. Call once after Setup.
func InitMetrics(meter metric.Meter) error {
	m := GetGlobalMetrics()
	var err error

	if m.WorkItemsClaimedTotal, err = meter.Int64Counter(MetricWorkItemsClaimedTotal,
		metric.WithDescription("Work items claimed by workers")); err != nil {
		return err
	}
	if m.WorkItemsSucceededTotal, err = meter.Int64Counter(MetricWorkItemsSucceededTotal,
		metric.WithDescription("Work items that completed successfully")); err != nil {
		return err
	}
	if m.WorkItemsFailedTotal, err = meter.Int64Counter(MetricWorkItemsFailedTotal,
		metric.WithDescription("Work item attempts that failed")); err != nil {
		return err
	}
	if m.WorkItemsDeadLetterTotal, err = meter.Int64Counter(MetricWorkItemsDeadLetterTotal,
		metric.WithDescription("Work items moved to the dead letter state")); err != nil {
		return err
	}
	if m.OrdersSubmittedTotal, err = meter.Int64Counter(MetricOrdersSubmittedTotal,
		metric.WithDescription("Orders submitted to the broker")); err != nil {
		return err
	}
	if m.OrdersFilledTotal, err = meter.Int64Counter(MetricOrdersFilledTotal,
		metric.WithDescription("Orders that reached the filled status")); err != nil {
		return err
	}
	if m.OrdersFailedTotal, err = meter.Int64Counter(MetricOrdersFailedTotal,
		metric.WithDescription("Orders that failed terminally")); err != nil {
		return err
	}
	if m.BrokerLatency, err = meter.Float64Histogram(MetricBrokerLatency,
		metric.WithDescription("Broker API call latency in milliseconds")); err != nil {
		return err
	}
	if m.ReconcilerUnrealTotal, err = meter.Int64Counter(MetricReconcilerUnrealTotal,
		metric.WithDescription("Unreal orders detected by the reconciler")); err != nil {
		return err
	}

	if m.QueueDepth, err = meter.Int64ObservableGauge(MetricQueueDepth,
		metric.WithDescription("Pending work items by type"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for typ, depth := range m.queueDepthMap {
				o.Observe(depth, metric.WithAttributes(attribute.String("type", typ)))
			}
			return nil
		})); err != nil {
		return err
	}
	if m.KillSwitchActive, err = meter.Int64ObservableGauge(MetricKillSwitchActive,
		metric.WithDescription("1 when the kill switch has been engaged"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			o.Observe(m.killSwitchOn)
			return nil
		})); err != nil {
		return err
	}

	return nil
}

// SetQueueDepth records the pending depth for a work item type
func (m *MetricsHolder) SetQueueDepth(typ string, depth int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueDepthMap[typ] = depth
}

// SetKillSwitchActive flips the kill switch gauge
func (m *MetricsHolder) SetKillSwitchActive(active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if active {
		m.killSwitchOn = 1
	} else {
		m.killSwitchOn = 0
	}
}
