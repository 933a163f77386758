package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/core"
	"autotrader/pkg/logging"
)

func TestMemorySink_CopiesAndFilters(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()

	event := &core.Event{Name: core.EventOrderSubmitted, Symbol: "AAPL"}
	sink.Emit(ctx, event)
	event.Symbol = "MUTATED"

	sink.Emit(ctx, &core.Event{Name: core.EventOrderFilled, Symbol: "AAPL"})

	assert.Len(t, sink.Events(), 2)
	submitted := sink.Named(core.EventOrderSubmitted)
	require.Len(t, submitted, 1)
	assert.Equal(t, "AAPL", submitted[0].Symbol, "sink stores a copy, not the caller's pointer")
	assert.Empty(t, sink.Named("trade.order.unknown"))
}

func TestMultiSink_FansOut(t *testing.T) {
	a := NewMemorySink()
	b := NewMemorySink()
	multi := NewMultiSink(a, b)

	multi.Emit(context.Background(), &core.Event{Name: core.EventOrderFilled})

	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
}

func TestMultiSink_EmptyIsNoop(t *testing.T) {
	NewMultiSink().Emit(context.Background(), &core.Event{Name: core.EventOrderRejected})
}

func TestWebhookSink_DeliversEvents(t *testing.T) {
	var mu sync.Mutex
	var got []core.Event

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var event core.Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&event))
		mu.Lock()
		got = append(got, event)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, "/events", map[string]string{"Authorization": "Bearer tok"}, logging.NewNopLogger())

	ctx := context.Background()
	sink.Emit(ctx, &core.Event{Name: core.EventOrderSubmitted, Symbol: "AAPL"})
	sink.Emit(ctx, &core.Event{Name: core.EventOrderFilled, Symbol: "AAPL"})
	sink.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, core.EventOrderSubmitted, got[0].Name)
	assert.Equal(t, core.EventOrderFilled, got[1].Name)
}

func TestWebhookSink_EmitNeverBlocks(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	sink := NewWebhookSink(srv.URL, "/events", nil, logging.NewNopLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 300; i++ {
			sink.Emit(context.Background(), &core.Event{Name: core.EventOrderSubmitted})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked on a slow receiver")
	}
}
