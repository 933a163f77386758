package events

import (
	"context"
	"time"

	"autotrader/internal/core"
	pkghttp "autotrader/pkg/http"
)

// WebhookSink POSTs events to an external receiver. Deliveries run on a
// buffered background channel so emitters never block; the underlying client
// already retries and circuit-breaks.
type WebhookSink struct {
	client *pkghttp.Client
	path   string
	logger core.ILogger

	ch     chan *core.Event
	done   chan struct{}
	cancel context.CancelFunc
}

// NewWebhookSink creates and starts a webhook sink delivering to baseURL+path
func NewWebhookSink(baseURL, path string, headers map[string]string, logger core.ILogger) *WebhookSink {
	ctx, cancel := context.WithCancel(context.Background())
	s := &WebhookSink{
		client: pkghttp.NewClient(baseURL, 10*time.Second, headers),
		path:   path,
		logger: logger.WithField("component", "webhook_sink"),
		ch:     make(chan *core.Event, 256),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go s.deliverLoop(ctx)
	return s
}

// Emit queues the event for delivery; a full buffer drops it with a log line
func (s *WebhookSink) Emit(ctx context.Context, event *core.Event) {
	copied := *event
	select {
	case s.ch <- &copied:
	default:
		s.logger.Warn("Webhook buffer full, dropping event", "event", event.Name)
	}
}

// Close stops the delivery loop after draining queued events
func (s *WebhookSink) Close() {
	close(s.ch)
	<-s.done
	s.cancel()
}

func (s *WebhookSink) deliverLoop(ctx context.Context) {
	defer close(s.done)
	for event := range s.ch {
		if _, err := s.client.Post(ctx, s.path, event); err != nil {
			s.logger.Error("Webhook delivery failed", "event", event.Name, "error", err.Error())
		}
	}
}
