package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
)

type outboxRepository struct{ s *Store }

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	return r.s.do(ctx, func() error {
		r.s.outbox[event.ID] = *event
		return nil
	})
}

func (r *outboxRepository) GetPendingEventsWithLock(ctx context.Context, limit int, staleAfter time.Duration) ([]*model.OutboxEvent, error) {
	var out []*model.OutboxEvent
	err := r.s.do(ctx, func() error {
		now := time.Now()
		var candidates []model.OutboxEvent
		for _, e := range r.s.outbox {
			stale := e.Status == model.OutboxStatusProcessing && e.LockedAt != nil && now.Sub(*e.LockedAt) > staleAfter
			if e.Status == model.OutboxStatusPending || stale {
				candidates = append(candidates, e)
			}
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt.Before(candidates[j].CreatedAt) })
		if len(candidates) > limit {
			candidates = candidates[:limit]
		}
		for _, e := range candidates {
			e.Status = model.OutboxStatusProcessing
			e.LockedAt = &now
			e.UpdatedAt = now
			r.s.outbox[e.ID] = e
			e := e
			out = append(out, &e)
		}
		return nil
	})
	return out, err
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return r.s.do(ctx, func() error {
		e, ok := r.s.outbox[id]
		if !ok {
			return repository.ErrNotFound
		}
		now := time.Now()
		e.Status = model.OutboxStatusProcessed
		e.ProcessedAt = &now
		e.UpdatedAt = now
		e.ErrorMessage = nil
		r.s.outbox[id] = e
		return nil
	})
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, maxRetries int) error {
	return r.s.do(ctx, func() error {
		e, ok := r.s.outbox[id]
		if !ok {
			return repository.ErrNotFound
		}
		e.RetryCount++
		e.ErrorMessage = &errMsg
		e.UpdatedAt = time.Now()
		e.LockedAt = nil
		if e.RetryCount >= maxRetries {
			e.Status = model.OutboxStatusFailed
		} else {
			e.Status = model.OutboxStatusPending
		}
		r.s.outbox[id] = e
		return nil
	})
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	var deleted int64
	err := r.s.do(ctx, func() error {
		for id, e := range r.s.outbox {
			if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
				delete(r.s.outbox, id)
				deleted++
			}
		}
		return nil
	})
	return deleted, err
}

// Events returns a copy of every outbox row, for tests and diagnostics
func (s *Store) Events() []model.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.OutboxEvent, 0, len(s.outbox))
	for _, e := range s.outbox {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
