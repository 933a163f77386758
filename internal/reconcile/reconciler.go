// Package reconcile keeps the local order mirror in agreement with the broker
// and sweeps "unreal" broker orders: rejected, canceled or expired with zero
// fills, zero-size, or stale and unfilled.
package reconcile

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"autotrader/internal/core"
	"autotrader/internal/processor"
	"autotrader/internal/queue"
	"autotrader/pkg/telemetry"
)

// Config holds the reconciler schedules and thresholds
type Config struct {
	SyncSchedule  string        // cron spec for order-book sync enqueue
	SweepSchedule string        // cron spec for the unreal-order sweep
	StaleAfter    time.Duration // unfilled active orders older than this are unreal
	SweepLimit    int           // broker orders fetched per sweep
}

// DefaultConfig returns the production schedules
func DefaultConfig() Config {
	return Config{
		SyncSchedule:  "@every 5m",
		SweepSchedule: "@every 1h",
		StaleAfter:    24 * time.Hour,
		SweepLimit:    500,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.SyncSchedule == "" {
		c.SyncSchedule = d.SyncSchedule
	}
	if c.SweepSchedule == "" {
		c.SweepSchedule = d.SweepSchedule
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = d.StaleAfter
	}
	if c.SweepLimit <= 0 {
		c.SweepLimit = d.SweepLimit
	}
}

// Reconciler runs the two periodic jobs on a cron scheduler
type Reconciler struct {
	broker core.Broker
	queue  *queue.Queue
	clock  core.Clock
	logger core.ILogger
	cfg    Config

	cron *cron.Cron

	unrealCounter metric.Int64Counter
}

// NewReconciler creates a reconciler; Start schedules its jobs
func NewReconciler(broker core.Broker, q *queue.Queue, clock core.Clock, logger core.ILogger, cfg Config) *Reconciler {
	cfg.applyDefaults()
	if clock == nil {
		clock = core.SystemClock{}
	}

	meter := telemetry.GetMeter("reconciler")
	unreal, _ := meter.Int64Counter("reconciler_unreal_orders_total",
		metric.WithDescription("Unreal broker orders detected by the sweep"))

	return &Reconciler{
		broker:        broker,
		queue:         q,
		clock:         clock,
		logger:        logger.WithField("component", "reconciler"),
		cfg:           cfg,
		cron:          cron.New(),
		unrealCounter: unreal,
	}
}

// Start registers and starts the periodic jobs
func (r *Reconciler) Start(ctx context.Context) error {
	if _, err := r.cron.AddFunc(r.cfg.SyncSchedule, func() {
		if err := r.EnqueueSync(ctx); err != nil {
			r.logger.Error("Failed to enqueue order sync", "error", err.Error())
		}
	}); err != nil {
		return err
	}

	if _, err := r.cron.AddFunc(r.cfg.SweepSchedule, func() {
		if _, err := r.SweepUnrealOrders(ctx); err != nil {
			r.logger.Error("Unreal-order sweep failed", "error", err.Error())
		}
	}); err != nil {
		return err
	}

	r.logger.Info("Starting reconciler",
		"sync_schedule", r.cfg.SyncSchedule,
		"sweep_schedule", r.cfg.SweepSchedule)
	r.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for running jobs
func (r *Reconciler) Stop() error {
	r.logger.Info("Stopping reconciler")
	<-r.cron.Stop().Done()
	return nil
}

// EnqueueSync enqueues one ORDER_SYNC work item
func (r *Reconciler) EnqueueSync(ctx context.Context) error {
	_, err := r.queue.Enqueue(ctx, core.WorkItemOrderSync, processor.SyncPayload{})
	return err
}

// SweepUnrealOrders fetches the recent broker book and flags unreal orders,
// canceling any that are still active. Returns the number flagged.
func (r *Reconciler) SweepUnrealOrders(ctx context.Context) (int, error) {
	orders, err := r.broker.GetOrders(ctx, core.FilterAll, r.cfg.SweepLimit)
	if err != nil {
		return 0, err
	}

	now := r.clock.Now()
	flagged := 0
	for _, order := range orders {
		reason, unreal := r.classifyUnreal(order, now)
		if !unreal {
			continue
		}
		flagged++
		r.unrealCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
		r.logger.Warn("Unreal order detected",
			"broker_order_id", order.BrokerOrderID,
			"symbol", order.Symbol,
			"status", order.Status,
			"reason", reason)

		if !order.Status.IsTerminal() {
			if err := r.broker.CancelOrder(ctx, order.BrokerOrderID); err != nil {
				r.logger.Error("Failed to cancel unreal order",
					"broker_order_id", order.BrokerOrderID, "error", err.Error())
			}
		}
	}

	if flagged > 0 {
		r.logger.Info("Unreal-order sweep finished", "scanned", len(orders), "flagged", flagged)
	}
	return flagged, nil
}

// classifyUnreal applies the unreal-order rules to one broker order
func (r *Reconciler) classifyUnreal(order *core.Order, now time.Time) (string, bool) {
	zeroFilled := !order.FilledQty.IsPositive()

	switch {
	case order.Status == core.OrderRejected:
		return "rejected", true
	case order.Status == core.OrderCanceled && zeroFilled:
		return "canceled_unfilled", true
	case order.Status == core.OrderExpired && zeroFilled:
		return "expired_unfilled", true
	case !order.Qty.IsPositive() && !order.Notional.IsPositive() && zeroFilled:
		return "zero_size", true
	case !order.Status.IsTerminal() && zeroFilled && now.Sub(order.SubmittedAt) > r.cfg.StaleAfter:
		return "stale_unfilled", true
	}
	return "", false
}
