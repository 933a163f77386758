package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"autotrader/internal/classify"
	"autotrader/internal/core"
	"autotrader/pkg/telemetry"
)

// Processor handles one work item type. A returned error marks the attempt
// failed; the worker classifies it to decide between retry and dead-letter.
type Processor interface {
	Type() core.WorkItemType
	Process(ctx context.Context, item *core.WorkItem) (result string, err error)
}

// Worker is the polling claim loop. Mutual exclusion on an individual item is
// enforced by the store's claim, not by in-process locks, so multiple workers
// (and processes) can run concurrently.
type Worker struct {
	store   core.Store
	backoff *Backoff
	clock   core.Clock
	logger  core.ILogger

	interval    time.Duration
	typesFilter []core.WorkItemType
	processors  map[core.WorkItemType]Processor

	processing atomic.Bool // re-entrancy guard for a single process

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// OTel
	tracer            trace.Tracer
	claimedCounter    metric.Int64Counter
	succeededCounter  metric.Int64Counter
	failedCounter     metric.Int64Counter
	deadLetterCounter metric.Int64Counter
}

// NewWorker creates a worker; interval <= 0 selects the 5s default
func NewWorker(store core.Store, backoff *Backoff, clock core.Clock, logger core.ILogger, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if clock == nil {
		clock = core.SystemClock{}
	}
	if backoff == nil {
		backoff = NewBackoff(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())

	tracer := telemetry.GetTracer("work-queue-worker")
	meter := telemetry.GetMeter("work-queue-worker")

	claimed, _ := meter.Int64Counter("work_items_claimed_total",
		metric.WithDescription("Total number of work items claimed"))
	succeeded, _ := meter.Int64Counter("work_items_succeeded_total",
		metric.WithDescription("Total number of work items that succeeded"))
	failed, _ := meter.Int64Counter("work_items_failed_total",
		metric.WithDescription("Total number of failed work item attempts"))
	deadLetter, _ := meter.Int64Counter("work_items_dead_letter_total",
		metric.WithDescription("Total number of work items moved to dead letter"))

	return &Worker{
		store:             store,
		backoff:           backoff,
		clock:             clock,
		logger:            logger.WithField("component", "queue_worker"),
		interval:          interval,
		processors:        make(map[core.WorkItemType]Processor),
		ctx:               ctx,
		cancel:            cancel,
		tracer:            tracer,
		claimedCounter:    claimed,
		succeededCounter:  succeeded,
		failedCounter:     failed,
		deadLetterCounter: deadLetter,
	}
}

// Register adds a processor for its work item type
func (w *Worker) Register(p Processor) {
	w.processors[p.Type()] = p
}

// SetTypesFilter restricts which work item types this worker claims
func (w *Worker) SetTypesFilter(types []core.WorkItemType) {
	w.typesFilter = types
}

// Start begins the polling loop
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting queue worker", "interval", w.interval)
	w.wg.Add(1)
	go w.runLoop()
	return nil
}

// Stop cancels the loop and waits for the in-flight cycle to finish
func (w *Worker) Stop() error {
	w.logger.Info("Stopping queue worker")
	w.cancel()
	w.wg.Wait()
	return nil
}

func (w *Worker) runLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.RunCycle(w.ctx)
		}
	}
}

// RunCycle claims and processes at most one due work item. Exposed for tests
// and for operators that want to drain without waiting for the ticker.
func (w *Worker) RunCycle(ctx context.Context) {
	if !w.processing.CompareAndSwap(false, true) {
		return
	}
	defer w.processing.Store(false)

	item, err := w.store.ClaimNextWorkItem(ctx, w.typesFilter)
	if err != nil {
		w.logger.Error("Failed to claim work item", "error", err.Error())
		return
	}
	if item == nil {
		return
	}

	ctx, span := w.tracer.Start(ctx, "ProcessWorkItem",
		trace.WithAttributes(
			attribute.String("work_item.id", item.ID),
			attribute.String("work_item.type", string(item.Type)),
			attribute.Int("work_item.attempt", item.Attempts+1),
		),
	)
	defer span.End()

	w.claimedCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", string(item.Type)),
	))

	if err := w.store.CreateWorkItemRun(ctx, &core.WorkItemRun{
		ID:            uuid.NewString(),
		WorkItemID:    item.ID,
		AttemptNumber: item.Attempts + 1,
		Status:        core.RunRunning,
		StartedAt:     w.clock.Now(),
	}); err != nil {
		w.logger.Warn("Failed to record work item run", "id", item.ID, "error", err.Error())
	}

	processor, ok := w.processors[item.Type]
	if !ok {
		w.markFailed(ctx, item, fmt.Errorf("no processor registered for type %s", item.Type), false)
		return
	}

	w.logger.Info("Processing work item",
		"id", item.ID,
		"type", item.Type,
		"attempt", item.Attempts+1)

	result, err := processor.Process(ctx, item)
	if err != nil {
		cls := classify.Classify(err)
		span.RecordError(err)
		w.markFailed(ctx, item, err, cls.Retryable)
		return
	}

	w.markSucceeded(ctx, item, result)
}

func (w *Worker) markSucceeded(ctx context.Context, item *core.WorkItem, result string) {
	status := core.WorkItemSucceeded
	attempts := item.Attempts + 1
	patch := core.WorkItemPatch{
		Status:   &status,
		Attempts: &attempts,
	}
	if result != "" {
		patch.Result = &result
	}

	if _, err := w.store.UpdateWorkItem(ctx, item.ID, patch); err != nil {
		w.logger.Error("Failed to mark work item succeeded", "id", item.ID, "error", err.Error())
		return
	}

	w.succeededCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", string(item.Type)),
	))
	w.logger.Info("Work item succeeded", "id", item.ID, "type", item.Type, "attempts", attempts)
}

func (w *Worker) markFailed(ctx context.Context, item *core.WorkItem, procErr error, retryable bool) {
	newAttempts := item.Attempts + 1
	lastError := procErr.Error()

	w.failedCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", string(item.Type)),
	))

	if !retryable || newAttempts >= item.MaxAttempts {
		status := core.WorkItemDeadLetter
		if _, err := w.store.UpdateWorkItem(ctx, item.ID, core.WorkItemPatch{
			Status:    &status,
			Attempts:  &newAttempts,
			LastError: &lastError,
		}); err != nil {
			w.logger.Error("Failed to dead-letter work item", "id", item.ID, "error", err.Error())
			return
		}

		w.deadLetterCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", string(item.Type)),
		))
		w.logger.Warn("Work item moved to dead letter",
			"id", item.ID,
			"type", item.Type,
			"attempts", newAttempts,
			"retryable", retryable,
			"error", lastError)
		return
	}

	status := core.WorkItemPending
	nextRun := w.clock.Now().Add(w.backoff.Delay(item.Type, newAttempts-1))
	if _, err := w.store.UpdateWorkItem(ctx, item.ID, core.WorkItemPatch{
		Status:    &status,
		Attempts:  &newAttempts,
		NextRunAt: &nextRun,
		LastError: &lastError,
	}); err != nil {
		w.logger.Error("Failed to reschedule work item", "id", item.ID, "error", err.Error())
		return
	}

	w.logger.Warn("Work item failed, rescheduled",
		"id", item.ID,
		"type", item.Type,
		"attempt", newAttempts,
		"next_run_at", nextRun,
		"error", lastError)
}
