package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
)

type notificationRepository struct{ s *Store }

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	return r.s.do(ctx, func() error {
		if n.EventID != nil {
			for _, other := range r.s.notifications {
				if other.EventID != nil && *other.EventID == *n.EventID && other.UserID == n.UserID {
					return repository.ErrConflict
				}
			}
		}
		r.s.notifications[n.ID] = *n
		return nil
	})
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, page model.Pagination) ([]*model.Notification, int64, error) {
	var all []*model.Notification
	err := r.s.do(ctx, func() error {
		for _, n := range r.s.notifications {
			if n.UserID != userID || (unreadOnly && n.IsRead) {
				continue
			}
			n := n
			all = append(all, &n)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].SentAt.After(all[j].SentAt) })
	return paginate(all, page), int64(len(all)), nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, userID, id uuid.UUID, at time.Time) error {
	return r.s.do(ctx, func() error {
		n, ok := r.s.notifications[id]
		if !ok || n.UserID != userID {
			return repository.ErrNotFound
		}
		if !n.IsRead {
			n.IsRead = true
			n.ReadAt = &at
			r.s.notifications[id] = n
		}
		return nil
	})
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	var updated int64
	err := r.s.do(ctx, func() error {
		for id, n := range r.s.notifications {
			if n.UserID == userID && !n.IsRead {
				n.IsRead = true
				n.ReadAt = &at
				r.s.notifications[id] = n
				updated++
			}
		}
		return nil
	})
	return updated, err
}
