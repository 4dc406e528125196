package payment

import (
	"context"
	"sync"

	"github.com/jwalitptl/salon-api/internal/gateway"
	"github.com/jwalitptl/salon-api/pkg/logger"
	"github.com/jwalitptl/salon-api/pkg/metrics"
)

// WebhookProcessor applies verified webhook events off the request path.
// The HTTP handler acknowledges as soon as the event is queued.
type WebhookProcessor struct {
	svc     *Service
	queue   chan *gateway.WebhookEvent
	logger  *logger.Logger
	metrics *metrics.Metrics
	wg      sync.WaitGroup

	// mu guards stopped; Enqueue holds it shared while sending so no event
	// lands in the queue after the final drain
	mu      sync.RWMutex
	stopped bool
}

func NewWebhookProcessor(svc *Service, queueSize int, log *logger.Logger, m *metrics.Metrics) *WebhookProcessor {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &WebhookProcessor{
		svc:     svc,
		queue:   make(chan *gateway.WebhookEvent, queueSize),
		logger:  log.WithComponent("webhook_processor"),
		metrics: m,
	}
}

// Enqueue hands evt to the worker. It reports false when the queue is
// full or the processor has stopped, in which case the caller should
// Process inline.
func (w *WebhookProcessor) Enqueue(evt *gateway.WebhookEvent) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return false
	}
	select {
	case w.queue <- evt:
		w.metrics.WebhookQueueDepth.Set(float64(len(w.queue)))
		return true
	default:
		return false
	}
}

// Process applies one event. Failures are logged for manual
// reconciliation; the provider has already been acknowledged.
func (w *WebhookProcessor) Process(ctx context.Context, evt *gateway.WebhookEvent) {
	if err := w.svc.HandleEvent(ctx, evt); err != nil {
		w.logger.Error(err, "Failed to apply webhook event",
			"event_id", evt.ID,
			"event_type", evt.Type,
			"intent_id", evt.IntentID)
	}
}

// Start runs workers until ctx is done, then stops accepting events and
// drains what is left. It returns once the queue is empty.
func (w *WebhookProcessor) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	w.logger.Info("Starting webhook processor", "workers", workers)

	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case evt := <-w.queue:
					w.metrics.WebhookQueueDepth.Set(float64(len(w.queue)))
					w.Process(ctx, evt)
				}
			}
		}()
	}
	w.wg.Wait()

	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()

	drain := context.WithoutCancel(ctx)
	for {
		select {
		case evt := <-w.queue:
			w.Process(drain, evt)
		default:
			w.metrics.WebhookQueueDepth.Set(0)
			w.logger.Info("Webhook processor stopped")
			return
		}
	}
}
