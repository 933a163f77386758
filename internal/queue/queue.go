// Package queue implements the durable, idempotent work queue that drives all
// order execution: enqueue, claim, succeed, fail, dead-letter, operator retry.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"autotrader/internal/core"
)

// DefaultMaxAttempts is the retry budget for a work item unless overridden
const DefaultMaxAttempts = 3

// Queue is the enqueue-side API shared by strategies, processors and the
// reconciler. All state lives in the store; Queue itself is stateless.
type Queue struct {
	store  core.Store
	clock  core.Clock
	logger core.ILogger
}

// NewQueue creates a queue facade over the store
func NewQueue(store core.Store, clock core.Clock, logger core.ILogger) *Queue {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &Queue{
		store:  store,
		clock:  clock,
		logger: logger.WithField("component", "work_queue"),
	}
}

// EnqueueOption customizes a work item before insert
type EnqueueOption func(*core.WorkItem)

// WithIdempotencyKey sets the dedup fingerprint; a second enqueue with the same
// key returns the existing item unchanged.
func WithIdempotencyKey(key string) EnqueueOption {
	return func(item *core.WorkItem) { item.IdempotencyKey = key }
}

// WithMaxAttempts overrides the retry budget
func WithMaxAttempts(n int) EnqueueOption {
	return func(item *core.WorkItem) { item.MaxAttempts = n }
}

// WithRunAt defers the first claim until t
func WithRunAt(t time.Time) EnqueueOption {
	return func(item *core.WorkItem) { item.NextRunAt = t }
}

// Enqueue inserts a new PENDING work item. The payload is serialized as JSON
// for the processor registered for typ.
func (q *Queue) Enqueue(ctx context.Context, typ core.WorkItemType, payload interface{}, opts ...EnqueueOption) (*core.WorkItem, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := q.clock.Now()
	item := &core.WorkItem{
		ID:          uuid.NewString(),
		Type:        typ,
		Payload:     raw,
		Status:      core.WorkItemPending,
		MaxAttempts: DefaultMaxAttempts,
		NextRunAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, opt := range opts {
		opt(item)
	}

	created, err := q.store.CreateWorkItem(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("failed to create work item: %w", err)
	}

	if created.ID != item.ID {
		q.logger.Debug("Enqueue deduplicated by idempotency key",
			"type", typ,
			"idempotency_key", item.IdempotencyKey,
			"existing_id", created.ID)
	} else {
		q.logger.Info("Work item enqueued",
			"id", created.ID,
			"type", typ,
			"next_run_at", created.NextRunAt)
	}

	return created, nil
}

// RetryDeadLetter is the operator-initiated escape hatch: it resets a
// DEAD_LETTER item so the worker picks it up immediately.
func (q *Queue) RetryDeadLetter(ctx context.Context, id string) (*core.WorkItem, error) {
	item, err := q.store.GetWorkItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load work item: %w", err)
	}
	if item.Status != core.WorkItemDeadLetter {
		return nil, fmt.Errorf("work item %s is %s, not %s", id, item.Status, core.WorkItemDeadLetter)
	}

	status := core.WorkItemPending
	attempts := 0
	now := q.clock.Now()
	empty := ""

	updated, err := q.store.UpdateWorkItem(ctx, id, core.WorkItemPatch{
		Status:    &status,
		Attempts:  &attempts,
		NextRunAt: &now,
		LastError: &empty,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reset work item: %w", err)
	}

	q.logger.Info("Dead-letter work item reset for retry", "id", id, "type", item.Type)
	return updated, nil
}

// Depth returns the count of pending items, for operator tooling and gauges
func (q *Queue) Depth(ctx context.Context) (int, error) {
	return q.store.GetWorkItemCount(ctx, core.WorkItemPending, "")
}
