// Package bootstrap wires configuration, storage, execution and the worker
// loop into a runnable application.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"autotrader/internal/config"
	"autotrader/internal/core"
	"autotrader/internal/events"
	"autotrader/internal/execution"
	"autotrader/internal/infrastructure/metrics"
	"autotrader/internal/processor"
	"autotrader/internal/queue"
	"autotrader/internal/ratelimit"
	"autotrader/internal/reconcile"
	"autotrader/internal/store"
	"autotrader/internal/universe"
	"autotrader/pkg/telemetry"
)

const queueDepthInterval = 15 * time.Second

// App holds every wired component. The broker is injected so the same wiring
// serves live and paper setups.
type App struct {
	Cfg    *config.Config
	Broker core.Broker
	Store  core.Store

	Queue      *queue.Queue
	Worker     *queue.Worker
	Engine     *execution.Engine
	Reconciler *reconcile.Reconciler
	Universe   *universe.Universe
	Limiter    *ratelimit.Limiter

	KillSwitchActive *atomic.Bool

	logger  core.ILogger
	metrics *metrics.Server
	webhook *events.WebhookSink
}

// NewApp builds the full component graph from configuration
func NewApp(cfg *config.Config, broker core.Broker, logger core.ILogger) (*App, error) {
	st, err := buildStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	lister, ok := broker.(core.AssetLister)
	if !ok {
		return nil, fmt.Errorf("broker %T does not list assets", broker)
	}
	uni := universe.NewUniverse(lister, nil, logger, cfg.App.UniverseTTL())

	limiter := ratelimit.NewLimiter(buildLimits(cfg), nil)

	sinks := []core.EventSink{}
	var webhook *events.WebhookSink
	if cfg.Webhook.Enabled {
		headers := map[string]string{}
		if token := cfg.Webhook.AuthToken.Reveal(); token != "" {
			headers["Authorization"] = "Bearer " + token
		}
		webhook = events.NewWebhookSink(cfg.Webhook.URL, cfg.Webhook.Path, headers, logger)
		sinks = append(sinks, webhook)
	}
	sink := core.EventSink(events.NewMultiSink(sinks...))

	validator := execution.NewValidator(uni, broker, logger)
	engine := execution.NewEngine(broker, st, validator, limiter, sink, nil, logger, execution.Config{
		MaxRetries:    cfg.Execution.MaxRetries,
		SubmitTimeout: cfg.Execution.SubmitTimeout(),
		PollInterval:  cfg.Execution.PollInterval(),
		MonitorBudget: cfg.Execution.MonitorBudget(),
	})

	q := queue.NewQueue(st, nil, logger)
	worker := queue.NewWorker(st, queue.NewBackoff(nil), nil, logger, cfg.Queue.WorkerInterval())

	killSwitchActive := &atomic.Bool{}
	worker.Register(processor.NewOrderSubmit(engine, st, logger))
	worker.Register(processor.NewOrderCancel(broker, st, logger))
	worker.Register(processor.NewOrderSync(broker, st, logger))
	worker.Register(processor.NewKillSwitch(broker, killSwitchActive, logger))
	worker.Register(processor.NewUniverseSync(uni, logger))

	reconciler := reconcile.NewReconciler(broker, q, nil, logger, reconcile.Config{
		SyncSchedule:  cfg.Reconcile.SyncSchedule,
		SweepSchedule: cfg.Reconcile.SweepSchedule,
		StaleAfter:    cfg.Reconcile.StaleAfter(),
		SweepLimit:    cfg.Reconcile.SweepLimit,
	})

	var metricsServer *metrics.Server
	if cfg.Telemetry.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Telemetry.MetricsPort, logger)
	}

	return &App{
		Cfg:              cfg,
		Broker:           broker,
		Store:            st,
		Queue:            q,
		Worker:           worker,
		Engine:           engine,
		Reconciler:       reconciler,
		Universe:         uni,
		Limiter:          limiter,
		KillSwitchActive: killSwitchActive,
		logger:           logger.WithField("component", "app"),
		metrics:          metricsServer,
		webhook:          webhook,
	}, nil
}

func buildStore(cfg *config.Config) (core.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return store.NewMemoryStore(nil), nil
	default:
		return store.NewSQLiteStore(cfg.Store.Path, nil)
	}
}

func buildLimits(cfg *config.Config) map[string]ratelimit.Limits {
	limits := make(map[string]ratelimit.Limits, len(cfg.RateLimits))
	for bucket, l := range cfg.RateLimits {
		limits[bucket] = ratelimit.Limits{
			PerMinute:   l.PerMinute,
			PerHour:     l.PerHour,
			MinCooldown: time.Duration(l.CooldownMs) * time.Millisecond,
		}
	}
	return limits
}

// RegisterHandler wires a caller-supplied handler for a delegated work item
// type such as DECISION_EVALUATION or POSITION_CLOSE. Types without a handler
// dead-letter on arrival.
func (a *App) RegisterHandler(typ core.WorkItemType, handler processor.Handler) {
	a.Worker.Register(processor.NewDelegate(typ, handler))
}

// Run starts every component and blocks until ctx is canceled or a component
// fails. Shutdown is graceful: the worker finishes its in-flight item.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("Starting application")

	if count, err := a.Universe.Refresh(ctx, a.Cfg.App.AssetClass); err != nil {
		a.logger.Warn("Initial universe refresh failed, continuing with empty cache", "error", err.Error())
	} else {
		a.logger.Info("Tradable universe loaded", "count", count)
	}

	if a.metrics != nil {
		a.metrics.Start()
	}
	if err := a.Worker.Start(ctx); err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	if err := a.Reconciler.Start(ctx); err != nil {
		return fmt.Errorf("reconciler: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.reportQueueDepth(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	err := g.Wait()
	a.logger.Info("Application stopped")
	return err
}

func (a *App) shutdown() error {
	a.logger.Info("Shutting down")

	if err := a.Worker.Stop(); err != nil {
		a.logger.Error("Worker stop failed", "error", err.Error())
	}
	if err := a.Reconciler.Stop(); err != nil {
		a.logger.Error("Reconciler stop failed", "error", err.Error())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.Cfg.App.CancelOrdersOnExit {
		if err := a.Broker.CancelAllOrders(shutdownCtx); err != nil {
			a.logger.Error("Cancel-on-exit failed", "error", err.Error())
		}
	}

	if a.metrics != nil {
		if err := a.metrics.Stop(shutdownCtx); err != nil {
			a.logger.Error("Metrics server stop failed", "error", err.Error())
		}
	}
	if a.webhook != nil {
		a.webhook.Close()
	}
	if closer, ok := a.Store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			a.logger.Error("Store close failed", "error", err.Error())
		}
	}
	return nil
}

// reportQueueDepth feeds the pending-depth gauges until ctx is done
func (a *App) reportQueueDepth(ctx context.Context) {
	types := []core.WorkItemType{
		core.WorkItemOrderSubmit,
		core.WorkItemOrderCancel,
		core.WorkItemOrderSync,
		core.WorkItemPositionClose,
		core.WorkItemKillSwitch,
		core.WorkItemDecisionEvaluation,
		core.WorkItemAssetUniverseSync,
	}

	ticker := time.NewTicker(queueDepthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, typ := range types {
				count, err := a.Store.GetWorkItemCount(ctx, core.WorkItemPending, typ)
				if err != nil {
					continue
				}
				telemetry.GetGlobalMetrics().SetQueueDepth(string(typ), int64(count))
			}
		}
	}
}
