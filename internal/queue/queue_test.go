package queue

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/core"
	"autotrader/internal/store"
	"autotrader/pkg/apperrors"
	"autotrader/pkg/logging"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scriptedProcessor returns the scripted errors in order, then succeeds.
type scriptedProcessor struct {
	typ    core.WorkItemType
	script []error
	calls  int
}

func (p *scriptedProcessor) Type() core.WorkItemType { return p.typ }

func (p *scriptedProcessor) Process(ctx context.Context, item *core.WorkItem) (string, error) {
	defer func() { p.calls++ }()
	if p.calls < len(p.script) {
		return "", p.script[p.calls]
	}
	return "ok", nil
}

func TestIdempotencyKey(t *testing.T) {
	bucket := TimeBucket(time.Date(2025, 6, 2, 14, 30, 45, 0, time.UTC))

	key := IdempotencyKey("momentum-1", "AAPL", "buy", "sig123", bucket)
	assert.Len(t, key, 32)
	assert.Equal(t, strings.ToLower(key), key)

	// Deterministic
	assert.Equal(t, key, IdempotencyKey("momentum-1", "AAPL", "buy", "sig123", bucket))

	// Any component change produces a different key
	assert.NotEqual(t, key, IdempotencyKey("momentum-2", "AAPL", "buy", "sig123", bucket))
	assert.NotEqual(t, key, IdempotencyKey("momentum-1", "MSFT", "buy", "sig123", bucket))
	assert.NotEqual(t, key, IdempotencyKey("momentum-1", "AAPL", "sell", "sig123", bucket))
	assert.NotEqual(t, key, IdempotencyKey("momentum-1", "AAPL", "buy", "sig999", bucket))
	assert.NotEqual(t, key, IdempotencyKey("momentum-1", "AAPL", "buy", "sig123", bucket+1))
}

func TestTimeBucketWindow(t *testing.T) {
	base := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

	// Same minute, same bucket
	assert.Equal(t, TimeBucket(base), TimeBucket(base.Add(59*time.Second)))
	// Next minute, next bucket
	assert.Equal(t, TimeBucket(base)+1, TimeBucket(base.Add(time.Minute)))
}

func TestBackoffDelay(t *testing.T) {
	b := NewBackoff(nil)

	cases := []struct {
		typ     core.WorkItemType
		attempt int
		base    time.Duration
	}{
		{core.WorkItemOrderSubmit, 0, 1 * time.Second},
		{core.WorkItemOrderSubmit, 1, 5 * time.Second},
		{core.WorkItemOrderSubmit, 2, 15 * time.Second},
		{core.WorkItemOrderSubmit, 7, 15 * time.Second}, // clamped to last step
		{core.WorkItemKillSwitch, 0, 500 * time.Millisecond},
		{core.WorkItemAssetUniverseSync, 2, 10 * time.Minute},
		{core.WorkItemType("unknown"), 0, 1 * time.Second}, // default schedule
	}

	for _, tc := range cases {
		delay := b.Delay(tc.typ, tc.attempt)
		assert.GreaterOrEqual(t, delay, tc.base, "%s attempt %d", tc.typ, tc.attempt)
		assert.Less(t, delay, tc.base+tc.base/5+time.Millisecond, "%s attempt %d", tc.typ, tc.attempt)
	}
}

func TestEnqueueDeduplicatesByIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	st := store.NewMemoryStore(clock)
	q := NewQueue(st, clock, logging.NewNopLogger())

	key := IdempotencyKey("momentum-1", "AAPL", "buy", "sig123", TimeBucket(clock.Now()))

	first, err := q.Enqueue(ctx, core.WorkItemOrderSubmit,
		map[string]string{"symbol": "AAPL"}, WithIdempotencyKey(key))
	require.NoError(t, err)

	second, err := q.Enqueue(ctx, core.WorkItemOrderSubmit,
		map[string]string{"symbol": "AAPL"}, WithIdempotencyKey(key))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

func TestWorkerRetriesTransientThenSucceeds(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	st := store.NewMemoryStore(clock)
	q := NewQueue(st, clock, logging.NewNopLogger())
	w := NewWorker(st, NewBackoff(nil), clock, logging.NewNopLogger(), time.Second)

	proc := &scriptedProcessor{
		typ:    core.WorkItemOrderSubmit,
		script: []error{apperrors.ErrNetwork},
	}
	w.Register(proc)

	item, err := q.Enqueue(ctx, core.WorkItemOrderSubmit, map[string]string{"symbol": "AAPL"})
	require.NoError(t, err)

	// First cycle fails; the item goes back to PENDING with a future next_run_at
	w.RunCycle(ctx)
	after, err := st.GetWorkItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, core.WorkItemPending, after.Status)
	assert.Equal(t, 1, after.Attempts)
	assert.True(t, after.NextRunAt.After(clock.Now()))
	assert.Contains(t, after.LastError, "network")

	// Not due yet
	w.RunCycle(ctx)
	assert.Equal(t, 1, proc.calls)

	clock.Advance(2 * time.Minute)
	w.RunCycle(ctx)

	final, err := st.GetWorkItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, core.WorkItemSucceeded, final.Status)
	assert.Equal(t, 2, final.Attempts)
	assert.Equal(t, "ok", final.Result)

	runs, err := st.GetWorkItemRuns(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestWorkerDeadLettersAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	st := store.NewMemoryStore(clock)
	q := NewQueue(st, clock, logging.NewNopLogger())
	w := NewWorker(st, NewBackoff(nil), clock, logging.NewNopLogger(), time.Second)

	proc := &scriptedProcessor{
		typ:    core.WorkItemOrderSubmit,
		script: []error{apperrors.ErrNetwork, apperrors.ErrTimeout, apperrors.ErrNetwork},
	}
	w.Register(proc)

	item, err := q.Enqueue(ctx, core.WorkItemOrderSubmit, map[string]string{"symbol": "AAPL"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		clock.Advance(time.Hour)
		w.RunCycle(ctx)
	}

	final, err := st.GetWorkItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, core.WorkItemDeadLetter, final.Status)
	assert.Equal(t, 3, final.Attempts)
	assert.Equal(t, 3, proc.calls)

	// Dead-lettered items are never claimed again
	clock.Advance(time.Hour)
	w.RunCycle(ctx)
	assert.Equal(t, 3, proc.calls)
}

func TestWorkerDeadLettersPermanentErrorImmediately(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	st := store.NewMemoryStore(clock)
	q := NewQueue(st, clock, logging.NewNopLogger())
	w := NewWorker(st, NewBackoff(nil), clock, logging.NewNopLogger(), time.Second)

	proc := &scriptedProcessor{
		typ:    core.WorkItemOrderSubmit,
		script: []error{apperrors.ErrInvalidSymbol, apperrors.ErrInvalidSymbol, apperrors.ErrInvalidSymbol},
	}
	w.Register(proc)

	item, err := q.Enqueue(ctx, core.WorkItemOrderSubmit, map[string]string{"symbol": "FAKE"})
	require.NoError(t, err)

	w.RunCycle(ctx)

	final, err := st.GetWorkItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, core.WorkItemDeadLetter, final.Status)
	assert.Equal(t, 1, final.Attempts, "permanent failures must not burn retries")
	assert.Equal(t, 1, proc.calls)
}

func TestWorkerDeadLettersUnregisteredType(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	st := store.NewMemoryStore(clock)
	q := NewQueue(st, clock, logging.NewNopLogger())
	w := NewWorker(st, NewBackoff(nil), clock, logging.NewNopLogger(), time.Second)

	item, err := q.Enqueue(ctx, core.WorkItemDecisionEvaluation, nil)
	require.NoError(t, err)

	w.RunCycle(ctx)

	final, err := st.GetWorkItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, core.WorkItemDeadLetter, final.Status)
	assert.Contains(t, final.LastError, "no processor registered")
}

func TestRetryDeadLetterResetsItem(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	st := store.NewMemoryStore(clock)
	q := NewQueue(st, clock, logging.NewNopLogger())
	w := NewWorker(st, NewBackoff(nil), clock, logging.NewNopLogger(), time.Second)

	proc := &scriptedProcessor{
		typ:    core.WorkItemOrderSubmit,
		script: []error{apperrors.ErrInvalidSymbol},
	}
	w.Register(proc)

	item, err := q.Enqueue(ctx, core.WorkItemOrderSubmit, map[string]string{"symbol": "AAPL"})
	require.NoError(t, err)

	w.RunCycle(ctx)
	dead, err := st.GetWorkItem(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, core.WorkItemDeadLetter, dead.Status)

	// Only dead-letter items can be reset
	_, err = q.RetryDeadLetter(ctx, "missing")
	assert.Error(t, err)

	reset, err := q.RetryDeadLetter(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, core.WorkItemPending, reset.Status)
	assert.Equal(t, 0, reset.Attempts)
	assert.Empty(t, reset.LastError)

	_, err = q.RetryDeadLetter(ctx, item.ID)
	assert.Error(t, err, "a PENDING item cannot be reset again")

	// The retried item now succeeds and keeps its full retry budget
	w.RunCycle(ctx)
	final, err := st.GetWorkItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, core.WorkItemSucceeded, final.Status)
	assert.Equal(t, 1, final.Attempts)
}

func TestWorkerTypesFilter(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	st := store.NewMemoryStore(clock)
	q := NewQueue(st, clock, logging.NewNopLogger())
	w := NewWorker(st, NewBackoff(nil), clock, logging.NewNopLogger(), time.Second)
	w.SetTypesFilter([]core.WorkItemType{core.WorkItemOrderSync})

	proc := &scriptedProcessor{typ: core.WorkItemOrderSync}
	w.Register(proc)

	submit, err := q.Enqueue(ctx, core.WorkItemOrderSubmit, nil)
	require.NoError(t, err)
	syncItem, err := q.Enqueue(ctx, core.WorkItemOrderSync, nil)
	require.NoError(t, err)

	w.RunCycle(ctx)
	w.RunCycle(ctx)

	skipped, err := st.GetWorkItem(ctx, submit.ID)
	require.NoError(t, err)
	assert.Equal(t, core.WorkItemPending, skipped.Status)

	done, err := st.GetWorkItem(ctx, syncItem.ID)
	require.NoError(t, err)
	assert.Equal(t, core.WorkItemSucceeded, done.Status)
}
