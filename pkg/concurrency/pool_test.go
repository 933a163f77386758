package concurrency

import (
	"sync/atomic"
	"testing"
	"time"

	"autotrader/pkg/logging"
)

func TestWorkerPoolRunsTasks(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{Name: "test", MaxWorkers: 4, MaxCapacity: 16}, logging.NewNopLogger())

	var count atomic.Int64
	for i := 0; i < 20; i++ {
		if err := pool.Submit(func() { count.Add(1) }); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}
	pool.Stop()

	if got := count.Load(); got != 20 {
		t.Fatalf("expected 20 tasks to run, got %d", got)
	}
}

func TestWorkerPoolSubmitAndWait(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{Name: "test", MaxWorkers: 2, MaxCapacity: 4}, logging.NewNopLogger())
	defer pool.Stop()

	done := false
	pool.SubmitAndWait(func() {
		time.Sleep(10 * time.Millisecond)
		done = true
	})
	if !done {
		t.Fatal("SubmitAndWait returned before the task finished")
	}
}

func BenchmarkWorkerPoolSubmit(b *testing.B) {
	pool := NewWorkerPool(PoolConfig{Name: "bench", MaxWorkers: 8, MaxCapacity: 1024}, logging.NewNopLogger())
	defer pool.Stop()

	var count atomic.Int64
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = pool.Submit(func() { count.Add(1) })
	}
}
