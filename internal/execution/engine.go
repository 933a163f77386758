package execution

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"autotrader/internal/classify"
	"autotrader/internal/core"
	"autotrader/internal/ratelimit"
	"autotrader/pkg/apperrors"
	"autotrader/pkg/telemetry"
)

// Config bounds the engine's retry and monitoring behavior
type Config struct {
	MaxRetries    int           // submit attempts per order
	SubmitTimeout time.Duration // per-attempt broker call timeout
	PollInterval  time.Duration // monitor poll cadence
	MonitorBudget time.Duration // overall monitoring wall-clock budget
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		MaxRetries:    3,
		SubmitTimeout: 30 * time.Second,
		PollInterval:  time.Second,
		MonitorBudget: 30 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = d.SubmitTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.MonitorBudget <= 0 {
		c.MonitorBudget = d.MonitorBudget
	}
}

// Engine drives individual order submissions. One Execute call owns one
// client order id end to end; concurrent calls for the same id are refused.
type Engine struct {
	broker    core.Broker
	store     core.Store
	validator *Validator
	limiter   *ratelimit.Limiter
	sink      core.EventSink
	clock     core.Clock
	logger    core.ILogger
	cfg       Config

	mu     sync.Mutex
	active map[string]*State

	tracer           trace.Tracer
	submittedCounter metric.Int64Counter
	filledCounter    metric.Int64Counter
	failedCounter    metric.Int64Counter
	brokerLatency    metric.Float64Histogram
}

// NewEngine creates an execution engine
func NewEngine(broker core.Broker, store core.Store, validator *Validator,
	limiter *ratelimit.Limiter, sink core.EventSink, clock core.Clock,
	logger core.ILogger, cfg Config) *Engine {

	cfg.applyDefaults()
	if clock == nil {
		clock = core.SystemClock{}
	}

	tracer := telemetry.GetTracer("execution-engine")
	meter := telemetry.GetMeter("execution-engine")
	submitted, _ := meter.Int64Counter("orders_submitted_total",
		metric.WithDescription("Orders accepted by the broker"))
	filled, _ := meter.Int64Counter("orders_filled_total",
		metric.WithDescription("Orders that reached filled"))
	failed, _ := meter.Int64Counter("orders_failed_total",
		metric.WithDescription("Submissions that failed terminally"))
	latency, _ := meter.Float64Histogram("broker_call_latency_ms",
		metric.WithDescription("Broker RPC latency in milliseconds"))

	return &Engine{
		broker:           broker,
		store:            store,
		validator:        validator,
		limiter:          limiter,
		sink:             sink,
		clock:            clock,
		logger:           logger.WithField("component", "execution_engine"),
		cfg:              cfg,
		active:           make(map[string]*State),
		tracer:           tracer,
		submittedCounter: submitted,
		filledCounter:    filled,
		failedCounter:    failed,
		brokerLatency:    latency,
	}
}

// ActiveCount returns the number of submissions currently in flight
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Execute runs one submission through validation, prediction, submit with
// retry and recovery, monitoring and outcome analysis. It returns the final
// broker order snapshot, or an error classified by the caller for retry.
func (e *Engine) Execute(ctx context.Context, req *core.OrderRequest, workItemID, traceID string) (*core.Order, error) {
	clientOrderID := req.ClientOrderID
	if clientOrderID == "" {
		clientOrderID = strings.ReplaceAll(uuid.NewString(), "-", "")
		req.ClientOrderID = clientOrderID
	}

	ctx, span := e.tracer.Start(ctx, "ExecuteOrder",
		trace.WithAttributes(
			attribute.String("order.client_order_id", clientOrderID),
			attribute.String("order.symbol", req.Symbol),
			attribute.String("order.side", string(req.Side)),
			attribute.String("order.type", string(req.Type)),
		),
	)
	defer span.End()

	now := e.clock.Now()
	state := &State{
		ClientOrderID: clientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		OrderType:     req.Type,
		MaxAttempts:   e.cfg.MaxRetries,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.Qty != nil {
		state.RequestedQty = *req.Qty
	}
	if req.LimitPrice != nil {
		state.RequestedPrice = req.LimitPrice
	} else if req.StopPrice != nil {
		state.RequestedPrice = req.StopPrice
	}

	if err := e.register(state); err != nil {
		return nil, err
	}
	defer e.unregister(clientOrderID)

	log := e.logger.WithFields(map[string]interface{}{
		"client_order_id": clientOrderID,
		"symbol":          req.Symbol,
		"side":            req.Side,
	})

	// Phase 1: validation
	state.transition(StatusValidating, e.clock.Now())
	validation := e.validator.Validate(ctx, req)
	state.Validation = validation
	for _, warning := range validation.Warnings {
		log.Warn("Order validation warning", "warning", warning)
	}
	if !validation.Valid {
		state.transition(StatusFailed, e.clock.Now())
		e.failedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "validation")))
		return nil, fmt.Errorf("%w: %s", apperrors.ErrValidation, strings.Join(validation.Errors, "; "))
	}

	// Sell duplicate-submission guard: an open order with our client id means
	// a previous attempt already reached the broker.
	if req.Side == core.SideSell {
		if existing, err := e.findByClientOrderID(ctx, clientOrderID, core.FilterOpen); err == nil && existing != nil {
			log.Info("Adopting existing open order for client order id",
				"broker_order_id", existing.BrokerOrderID)
			return e.afterSubmit(ctx, state, existing, workItemID, traceID, log)
		}
	}

	// Phase 2: expected-outcome prediction, best effort
	state.Expected = e.predict(ctx, req)

	// Phase 3: submit with retry, then recovery
	order, adjustNote, err := e.submitWithRetry(ctx, state, req, log)
	if err != nil {
		state.transition(StatusFailed, e.clock.Now())
		e.failedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "submit")))
		span.RecordError(err)
		e.emit(ctx, core.EventOrderRejected, state, nil, err.Error())
		return nil, err
	}

	return e.afterSubmitWithNote(ctx, state, order, workItemID, traceID, adjustNote, log)
}

func (e *Engine) register(state *State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.active[state.ClientOrderID]; ok {
		return fmt.Errorf("submission already in flight for client order id %s", state.ClientOrderID)
	}
	e.active[state.ClientOrderID] = state
	return nil
}

func (e *Engine) unregister(clientOrderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, clientOrderID)
}

func (e *Engine) predict(ctx context.Context, req *core.OrderRequest) *ExpectedOutcome {
	var lastTrade decimal.Decimal
	snapshots, err := e.broker.GetSnapshots(ctx, []string{req.Symbol})
	if err == nil {
		if snapshot, ok := snapshots[req.Symbol]; ok && snapshot != nil {
			lastTrade = snapshot.LatestTradePrice
		}
	}
	return Predict(req, lastTrade)
}

// submitWithRetry is phase 3. It returns the broker's order on success, plus
// an optional note when recovery adjusted the request.
func (e *Engine) submitWithRetry(ctx context.Context, state *State, req *core.OrderRequest, log core.ILogger) (*core.Order, string, error) {
	state.transition(StatusSubmitting, e.clock.Now())

	var lastCls classify.Classification
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		state.Attempts = attempt

		order, err := e.submitOnce(ctx, req)
		if err == nil {
			return order, "", nil
		}
		lastErr = err
		lastCls = classify.Classify(err)
		state.recordError(lastCls, e.clock.Now())

		log.Warn("Order submission attempt failed",
			"attempt", attempt,
			"kind", lastCls.Kind,
			"retryable", lastCls.Retryable,
			"error", err.Error())

		if !lastCls.Retryable || attempt == e.cfg.MaxRetries {
			break
		}

		delay := lastCls.SuggestedDelay * time.Duration(1<<uint(attempt-1))
		if !e.sleep(ctx, delay) {
			return nil, "", ctx.Err()
		}
	}

	return e.recover(ctx, state, req, lastCls, lastErr, log)
}

// recover is phase 3b, selected by the classifier's recovery strategy
func (e *Engine) recover(ctx context.Context, state *State, req *core.OrderRequest,
	cls classify.Classification, cause error, log core.ILogger) (*core.Order, string, error) {

	state.transition(StatusRecovering, e.clock.Now())

	switch cls.Recovery {
	case classify.RecoverCheckAndSync:
		// The submission may have landed even though the response did not.
		order, err := e.findByClientOrderID(ctx, state.ClientOrderID, core.FilterAll)
		if err != nil {
			log.Warn("Recovery lookup failed", "error", err.Error())
		}
		if order != nil {
			log.Info("Recovered order by client order id",
				"broker_order_id", order.BrokerOrderID, "status", order.Status)
			return order, "", nil
		}

	case classify.RecoverAdjustAndRetry:
		if cls.Kind == classify.KindInsufficientFunds {
			note, ok := halveRequest(req)
			if ok {
				log.Info("Retrying with reduced size after insufficient funds", "adjustment", note)
				order, err := e.submitOnce(ctx, req)
				if err == nil {
					return order, note, nil
				}
				state.recordError(classify.Classify(err), e.clock.Now())
				cause = err
			}
		}
		// A generic broker rejection has no safe size or price adjustment.

	case classify.RecoverWaitForMarketOpen:
		status, err := e.broker.GetMarketStatus(ctx)
		if err == nil && (status.IsOpen || status.IsExtendedHours) {
			log.Info("Market reopened during recovery; retrying once")
			order, err := e.submitOnce(ctx, req)
			if err == nil {
				return order, "", nil
			}
			state.recordError(classify.Classify(err), e.clock.Now())
			cause = err
		}
	}

	return nil, "", fmt.Errorf("order submission failed after %d attempts: %w", state.Attempts, cause)
}

// halveRequest cuts qty or notional in half, once. Returns false when the
// request has nothing adjustable.
func halveRequest(req *core.OrderRequest) (string, bool) {
	two := decimal.NewFromInt(2)
	if req.Qty != nil && req.Qty.IsPositive() {
		halved := req.Qty.Div(two).Floor()
		if !halved.IsPositive() {
			return "", false
		}
		note := fmt.Sprintf("qty halved from %s to %s", req.Qty, halved)
		req.Qty = &halved
		return note, true
	}
	if req.Notional != nil && req.Notional.IsPositive() {
		halved := req.Notional.Div(two).Round(2)
		if !halved.IsPositive() {
			return "", false
		}
		note := fmt.Sprintf("notional halved from %s to %s", req.Notional, halved)
		req.Notional = &halved
		return note, true
	}
	return "", false
}

func (e *Engine) submitOnce(ctx context.Context, req *core.OrderRequest) (*core.Order, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, "create_order", "engine"); err != nil {
			return nil, err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.SubmitTimeout)
	defer cancel()

	start := time.Now()
	order, err := e.broker.CreateOrder(callCtx, req)
	e.brokerLatency.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.String("call", "create_order")))
	return order, err
}

// findByClientOrderID scans recent broker orders for our client order id
func (e *Engine) findByClientOrderID(ctx context.Context, clientOrderID string, filter core.OrderStatusFilter) (*core.Order, error) {
	orders, err := e.broker.GetOrders(ctx, filter, 100)
	if err != nil {
		return nil, err
	}
	for _, order := range orders {
		if order.ClientOrderID == clientOrderID {
			return order, nil
		}
	}
	return nil, nil
}

func (e *Engine) afterSubmit(ctx context.Context, state *State, order *core.Order,
	workItemID, traceID string, log core.ILogger) (*core.Order, error) {
	return e.afterSubmitWithNote(ctx, state, order, workItemID, traceID, "", log)
}

// afterSubmitWithNote runs phases 4 and 5 for an order the broker accepted
func (e *Engine) afterSubmitWithNote(ctx context.Context, state *State, order *core.Order,
	workItemID, traceID, adjustNote string, log core.ILogger) (*core.Order, error) {

	now := e.clock.Now()
	state.BrokerOrderID = order.BrokerOrderID
	state.transition(StatusSubmitted, now)
	submittedAt := order.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = now
	}

	e.submittedCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("symbol", state.Symbol),
		attribute.String("side", string(state.Side)),
	))
	e.persistOrder(ctx, order, state.ClientOrderID, workItemID, traceID, log)
	e.emit(ctx, core.EventOrderSubmitted, state, order, "")
	log.Info("Order submitted", "broker_order_id", order.BrokerOrderID, "status", order.Status)

	// Phase 4: monitor until terminal or budget exhausted
	state.transition(StatusMonitoring, e.clock.Now())
	final := e.monitor(ctx, order, log)
	e.persistOrder(ctx, final, state.ClientOrderID, workItemID, traceID, log)

	// Phase 5: outcome recording and analysis
	actual := &ActualOutcome{
		Filled:   final.Status == core.OrderFilled,
		FillQty:  final.FilledQty,
		FillTime: e.clock.Now().Sub(submittedAt),
	}
	if final.FilledAvgPrice != nil {
		actual.FillPrice = *final.FilledAvgPrice
		actual.TotalCost = actual.FillPrice.Mul(final.FilledQty)
	}
	if adjustNote != "" {
		actual.UnexpectedEvents = append(actual.UnexpectedEvents, adjustNote)
	}
	analyzeOutcome(state.Expected, actual)
	state.Actual = actual
	state.FilledQty = final.FilledQty
	if final.FilledAvgPrice != nil {
		state.FilledPrice = final.FilledAvgPrice
	}

	for _, event := range actual.UnexpectedEvents {
		log.Warn("Order outcome deviation", "deviation", event)
	}

	switch {
	case final.Status == core.OrderFilled:
		state.transition(StatusFilled, e.clock.Now())
		e.filledCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("symbol", state.Symbol)))
		e.recordFill(ctx, final, log)
		e.emit(ctx, core.EventOrderFilled, state, final, "")
		log.Info("Order filled",
			"broker_order_id", final.BrokerOrderID,
			"filled_qty", final.FilledQty,
			"avg_price", actual.FillPrice)

	case final.Status == core.OrderCanceled:
		state.transition(StatusCanceled, e.clock.Now())
		log.Warn("Order canceled before fill", "broker_order_id", final.BrokerOrderID)

	case final.Status == core.OrderRejected, final.Status == core.OrderExpired:
		state.transition(StatusFailed, e.clock.Now())
		e.failedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(final.Status))))
		e.emit(ctx, core.EventOrderRejected, state, final, string(final.Status))
		return final, fmt.Errorf("%w: order %s ended %s",
			apperrors.ErrOrderRejected, final.BrokerOrderID, final.Status)

	default:
		// Monitoring budget exhausted with the order still working. The order
		// stays live at the broker; the reconciler picks up the final state.
		log.Info("Monitoring budget exhausted, order still working",
			"broker_order_id", final.BrokerOrderID, "status", final.Status)
	}

	return final, nil
}

// monitor polls the broker until the order is terminal or the budget runs out.
// It never cancels the order.
func (e *Engine) monitor(ctx context.Context, order *core.Order, log core.ILogger) *core.Order {
	if order.Status.IsTerminal() {
		return order
	}

	deadline := time.Now().Add(e.cfg.MonitorBudget)
	current := order
	for time.Now().Before(deadline) {
		if !e.sleep(ctx, e.cfg.PollInterval) {
			return current
		}

		start := time.Now()
		updated, err := e.broker.GetOrder(ctx, order.BrokerOrderID)
		e.brokerLatency.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("call", "get_order")))
		if err != nil {
			log.Warn("Order status poll failed",
				"broker_order_id", order.BrokerOrderID, "error", err.Error())
			continue
		}

		current = updated
		if current.Status.IsTerminal() {
			return current
		}
	}
	return current
}

// recordFill appends a Fill for the terminal order unless sync already did
func (e *Engine) recordFill(ctx context.Context, order *core.Order, log core.ILogger) {
	if !order.FilledQty.IsPositive() {
		return
	}

	existing, err := e.store.GetFillsByBrokerOrderID(ctx, order.BrokerOrderID)
	if err != nil {
		log.Warn("Fill lookup failed", "broker_order_id", order.BrokerOrderID, "error", err.Error())
		return
	}
	if len(existing) > 0 {
		return
	}

	price := decimal.Zero
	if order.FilledAvgPrice != nil {
		price = *order.FilledAvgPrice
	}
	occurredAt := e.clock.Now()
	if order.FilledAt != nil {
		occurredAt = *order.FilledAt
	}

	local, _ := e.store.GetOrderByBrokerOrderID(ctx, order.BrokerOrderID)
	localID := ""
	if local != nil {
		localID = local.ID
	}

	if err := e.store.CreateFill(ctx, &core.Fill{
		ID:            uuid.NewString(),
		BrokerOrderID: order.BrokerOrderID,
		OrderID:       localID,
		Symbol:        order.Symbol,
		Side:          order.Side,
		Qty:           order.FilledQty,
		Price:         price,
		OccurredAt:    occurredAt,
		RawJSON:       order.RawJSON,
	}); err != nil {
		log.Warn("Failed to record fill", "broker_order_id", order.BrokerOrderID, "error", err.Error())
	}
}

func (e *Engine) persistOrder(ctx context.Context, order *core.Order, clientOrderID, workItemID, traceID string, log core.ILogger) {
	copied := *order
	if copied.ClientOrderID == "" {
		copied.ClientOrderID = clientOrderID
	}
	if copied.WorkItemID == "" {
		copied.WorkItemID = workItemID
	}
	if copied.TraceID == "" {
		copied.TraceID = traceID
	}
	if _, err := e.store.UpsertOrderByBrokerOrderID(ctx, order.BrokerOrderID, &copied); err != nil {
		log.Error("Failed to persist order", "broker_order_id", order.BrokerOrderID, "error", err.Error())
	}
}

func (e *Engine) emit(ctx context.Context, name string, state *State, order *core.Order, message string) {
	if e.sink == nil {
		return
	}

	event := &core.Event{
		Name:          name,
		ClientOrderID: state.ClientOrderID,
		Symbol:        state.Symbol,
		Side:          state.Side,
		Qty:           state.RequestedQty,
		Timestamp:     e.clock.Now(),
		Message:       message,
	}
	if order != nil {
		event.OrderID = order.BrokerOrderID
		event.Status = order.Status
		event.Qty = order.Qty
		if order.FilledAvgPrice != nil {
			event.Price = *order.FilledAvgPrice
		} else if order.LimitPrice != nil {
			event.Price = *order.LimitPrice
		}
	}
	e.sink.Emit(ctx, event)
}

// sleep waits for d or until ctx is done; false means the context ended
func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
