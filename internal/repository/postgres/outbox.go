package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
)

type outboxRepository struct {
	BaseRepository
}

func NewOutboxRepository(base BaseRepository) repository.OutboxRepository {
	return &outboxRepository{base}
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}

	_, err := r.exec(ctx, "outbox.create", psql.Insert("outbox_events").
		Columns("id", "event_type", "aggregate_id", "payload", "status", "retry_count", "created_at", "updated_at").
		Values(event.ID, event.EventType, event.AggregateID, []byte(event.Payload), event.Status, event.RetryCount, event.CreatedAt, event.UpdatedAt))
	return err
}

// GetPendingEventsWithLock claims rows in one statement. SKIP LOCKED lets
// several workers poll the same table without handing out a row twice.
func (r *outboxRepository) GetPendingEventsWithLock(ctx context.Context, limit int, staleAfter time.Duration) ([]*model.OutboxEvent, error) {
	query := `
		UPDATE outbox_events
		SET status = 'processing', locked_at = NOW(), updated_at = NOW()
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status = 'pending'
			   OR (status = 'processing' AND locked_at < NOW() - make_interval(secs => $2))
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`

	var events []*model.OutboxEvent
	err := r.selectAll(ctx, "outbox.claim", &events, squirrel.Expr(query, limit, staleAfter.Seconds()))
	return events, err
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return r.execOne(ctx, "outbox.mark_processed", psql.Update("outbox_events").
		Set("status", model.OutboxStatusProcessed).
		Set("processed_at", squirrel.Expr("NOW()")).
		Set("updated_at", squirrel.Expr("NOW()")).
		Set("error_message", nil).
		Where(squirrel.Eq{"id": id}))
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, maxRetries int) error {
	return r.execOne(ctx, "outbox.mark_failed", psql.Update("outbox_events").
		Set("retry_count", squirrel.Expr("retry_count + 1")).
		Set("status", squirrel.Expr("CASE WHEN retry_count + 1 >= ? THEN 'failed' ELSE 'pending' END", maxRetries)).
		Set("error_message", errMsg).
		Set("locked_at", nil).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}))
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	return r.exec(ctx, "outbox.delete_processed", psql.Delete("outbox_events").
		Where(squirrel.Eq{"status": model.OutboxStatusProcessed}).
		Where(squirrel.Lt{"processed_at": before}))
}
