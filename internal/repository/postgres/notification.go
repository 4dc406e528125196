package postgres

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
)

type notificationRepository struct {
	BaseRepository
}

func NewNotificationRepository(base BaseRepository) repository.NotificationRepository {
	return &notificationRepository{base}
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	_, err := r.exec(ctx, "notification.create", psql.Insert("notifications").
		Columns("id", "user_id", "type", "title", "message", "reservation_id", "event_id", "is_read", "sent_at").
		Values(n.ID, n.UserID, n.Type, n.Title, n.Message, n.ReservationID, n.EventID, n.IsRead, n.SentAt))
	return err
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, page model.Pagination) ([]*model.Notification, int64, error) {
	where := squirrel.And{squirrel.Eq{"user_id": userID}}
	if unreadOnly {
		where = append(where, squirrel.Eq{"is_read": false})
	}

	var total int64
	if err := r.get(ctx, "notification.count", &total, psql.Select("COUNT(*)").From("notifications").Where(where)); err != nil {
		return nil, 0, err
	}

	q := psql.Select("*").From("notifications").Where(where).OrderBy("sent_at DESC")
	if page.PageSize > 0 {
		q = q.Limit(uint64(page.PageSize)).Offset(uint64(page.Offset()))
	}
	var out []*model.Notification
	if err := r.selectAll(ctx, "notification.list", &out, q); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, userID, id uuid.UUID, at time.Time) error {
	return r.execOne(ctx, "notification.mark_read", psql.Update("notifications").
		Set("is_read", true).
		Set("read_at", squirrel.Expr("COALESCE(read_at, ?)", at)).
		Where(squirrel.Eq{"id": id, "user_id": userID}))
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	return r.exec(ctx, "notification.mark_all_read", psql.Update("notifications").
		Set("is_read", true).
		Set("read_at", at).
		Where(squirrel.Eq{"user_id": userID, "is_read": false}))
}
