package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
	"github.com/jwalitptl/salon-api/pkg/clock"
	"github.com/jwalitptl/salon-api/pkg/event"
)

// Emitter records domain events in the outbox. Call it with the context of
// the transaction that makes the state change, so the event is committed
// or rolled back with it.
type Emitter struct {
	outboxRepo repository.OutboxRepository
	clock      clock.Clock
}

func NewEmitter(outboxRepo repository.OutboxRepository, clk clock.Clock) *Emitter {
	return &Emitter{
		outboxRepo: outboxRepo,
		clock:      clk,
	}
}

func (e *Emitter) Emit(ctx context.Context, eventType event.EventType, aggregateID uuid.UUID, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := e.clock.Now()
	evt := &model.OutboxEvent{
		ID:          uuid.New(),
		EventType:   string(eventType),
		AggregateID: aggregateID,
		Payload:     payloadJSON,
		Status:      model.OutboxStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := e.outboxRepo.Create(ctx, evt); err != nil {
		return fmt.Errorf("failed to store %s event: %w", eventType, err)
	}
	return nil
}
