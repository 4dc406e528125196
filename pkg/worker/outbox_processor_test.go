package worker

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository/memory"
	eventsvc "github.com/jwalitptl/salon-api/internal/service/event"
	"github.com/jwalitptl/salon-api/pkg/clock"
	"github.com/jwalitptl/salon-api/pkg/event"
	"github.com/jwalitptl/salon-api/pkg/logger"
	memorybroker "github.com/jwalitptl/salon-api/pkg/messaging/memory"
	"github.com/jwalitptl/salon-api/pkg/metrics"
)

type failingPublisher struct {
	calls int
}

func (p *failingPublisher) Publish(ctx context.Context, channel string, message interface{}) error {
	p.calls++
	return stderrors.New("broker down")
}

func testConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
		MaxRetries:    2,
	}
}

func emit(t *testing.T, store *memory.Store, eventType event.EventType) uuid.UUID {
	t.Helper()
	emitter := eventsvc.NewEmitter(store.Repositories().Outbox, clock.Real{})
	id := uuid.New()
	require.NoError(t, emitter.Emit(context.Background(), eventType, id, event.ReservationPayload{ReservationID: id}))
	return id
}

func TestProcessBatchPublishesEnvelopes(t *testing.T) {
	store := memory.NewStore()
	broker := memorybroker.NewBroker(10)
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := broker.Subscribe(ctx, event.Channel)
	require.NoError(t, err)

	aggregate := emit(t, store, event.ReservationCreated)
	emit(t, store, event.ReservationCancelled)

	p := NewOutboxProcessor(store.Repositories().Outbox, broker, testConfig(), logger.Nop(), metrics.NewNop())
	published, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, published)

	var first event.Envelope
	require.NoError(t, json.Unmarshal(<-msgs, &first))
	assert.Equal(t, event.ReservationCreated, first.Type)
	assert.Equal(t, aggregate, first.AggregateID)

	var payload event.ReservationPayload
	require.NoError(t, json.Unmarshal(first.Payload, &payload))
	assert.Equal(t, aggregate, payload.ReservationID)

	for _, evt := range store.Events() {
		assert.Equal(t, model.OutboxStatusProcessed, evt.Status)
	}

	published, err = p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, published)
}

func TestProcessBatchParksFailingEvents(t *testing.T) {
	store := memory.NewStore()
	emit(t, store, event.PaymentCompleted)

	pub := &failingPublisher{}
	p := NewOutboxProcessor(store.Repositories().Outbox, pub, testConfig(), logger.Nop(), metrics.NewNop())

	published, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, published)
	assert.Equal(t, 2, pub.calls)

	evt := store.Events()[0]
	assert.Equal(t, model.OutboxStatusPending, evt.Status)
	assert.Equal(t, 1, evt.RetryCount)

	_, err = p.ProcessBatch(context.Background())
	require.NoError(t, err)
	evt = store.Events()[0]
	assert.Equal(t, model.OutboxStatusFailed, evt.Status)
	assert.Equal(t, "broker down", *evt.ErrorMessage)

	_, err = p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, pub.calls)
}

func TestNewOutboxProcessorValidatesConfig(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 0
	assert.Panics(t, func() {
		NewOutboxProcessor(memory.NewStore().Repositories().Outbox, &failingPublisher{}, cfg, logger.Nop(), metrics.NewNop())
	})
}
