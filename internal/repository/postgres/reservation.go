package postgres

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
)

type reservationRepository struct {
	BaseRepository
}

func NewReservationRepository(base BaseRepository) repository.ReservationRepository {
	return &reservationRepository{base}
}

func (r *reservationRepository) Create(ctx context.Context, res *model.Reservation) error {
	_, err := r.exec(ctx, "reservation.create", psql.Insert("reservations").
		Columns(
			"id", "client_id", "stylist_id", "service_id", "branch_id",
			"scheduled_at", "duration_minutes", "status",
			"service_price", "discount_amount", "total_price",
			"platform_commission", "salon_commission", "stylist_earnings",
			"promotion_id", "promotion_code", "payment_intent_id", "notes",
			"confirmed_at", "created_at", "updated_at",
		).
		Values(
			res.ID, res.ClientID, res.StylistID, res.ServiceID, res.BranchID,
			res.ScheduledAt, res.DurationMinutes, res.Status,
			res.ServicePrice, res.DiscountAmount, res.TotalPrice,
			res.PlatformCommission, res.SalonCommission, res.StylistEarnings,
			res.PromotionID, res.PromotionCode, res.PaymentIntentID, res.Notes,
			res.ConfirmedAt, res.CreatedAt, res.UpdatedAt,
		))
	return err
}

func (r *reservationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Reservation, error) {
	var res model.Reservation
	if err := r.get(ctx, "reservation.get", &res, psql.Select("*").From("reservations").Where(squirrel.Eq{"id": id})); err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *reservationRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Reservation, error) {
	var res model.Reservation
	q := psql.Select("*").From("reservations").Where(squirrel.Eq{"id": id}).Suffix("FOR UPDATE")
	if err := r.get(ctx, "reservation.get_for_update", &res, q); err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *reservationRepository) Update(ctx context.Context, res *model.Reservation) error {
	return r.execOne(ctx, "reservation.update", psql.Update("reservations").
		Set("stylist_id", res.StylistID).
		Set("scheduled_at", res.ScheduledAt).
		Set("duration_minutes", res.DurationMinutes).
		Set("status", res.Status).
		Set("payment_intent_id", res.PaymentIntentID).
		Set("notes", res.Notes).
		Set("confirmed_at", res.ConfirmedAt).
		Set("completed_at", res.CompletedAt).
		Set("cancelled_at", res.CancelledAt).
		Set("cancelled_by", res.CancelledBy).
		Set("cancellation_reason", res.CancellationReason).
		Set("updated_at", res.UpdatedAt).
		Where(squirrel.Eq{"id": res.ID}))
}

func (r *reservationRepository) List(ctx context.Context, f model.ReservationFilter) ([]*model.Reservation, int64, error) {
	where := squirrel.And{}
	if f.ClientID != nil {
		where = append(where, squirrel.Eq{"client_id": *f.ClientID})
	}
	if f.StylistID != nil {
		where = append(where, squirrel.Eq{"stylist_id": *f.StylistID})
	}
	if f.BranchID != nil {
		where = append(where, squirrel.Eq{"branch_id": *f.BranchID})
	}
	if f.Status != nil {
		where = append(where, squirrel.Eq{"status": *f.Status})
	}
	if f.From != nil {
		where = append(where, squirrel.GtOrEq{"scheduled_at": *f.From})
	}
	if f.To != nil {
		where = append(where, squirrel.Lt{"scheduled_at": *f.To})
	}

	var total int64
	if err := r.get(ctx, "reservation.count", &total, psql.Select("COUNT(*)").From("reservations").Where(where)); err != nil {
		return nil, 0, err
	}

	q := psql.Select("*").From("reservations").Where(where).OrderBy("scheduled_at")
	if f.PageSize > 0 {
		q = q.Limit(uint64(f.PageSize)).Offset(uint64(f.Offset()))
	}
	var out []*model.Reservation
	if err := r.selectAll(ctx, "reservation.list", &out, q); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *reservationRepository) ListActiveInRange(ctx context.Context, scope model.ScheduleScope, from, to time.Time, excludeID *uuid.UUID) ([]*model.Reservation, error) {
	q := psql.Select("*").From("reservations").
		Where(squirrel.NotEq{"status": model.ReservationStatusCancelled}).
		Where(squirrel.Lt{"scheduled_at": to}).
		Where("scheduled_at + make_interval(mins => duration_minutes) > ?", from).
		OrderBy("scheduled_at")

	if scope.StylistID != nil {
		q = q.Where(squirrel.Eq{"stylist_id": *scope.StylistID})
	} else {
		q = q.Where(squirrel.Eq{"branch_id": scope.BranchID, "stylist_id": nil})
	}
	if excludeID != nil {
		q = q.Where(squirrel.NotEq{"id": *excludeID})
	}

	var out []*model.Reservation
	err := r.selectAll(ctx, "reservation.list_active_in_range", &out, q)
	return out, err
}

func (r *reservationRepository) CountCompletedByClient(ctx context.Context, clientID uuid.UUID) (int, error) {
	var n int
	q := psql.Select("COUNT(*)").From("reservations").
		Where(squirrel.Eq{"client_id": clientID, "status": model.ReservationStatusCompleted})
	err := r.get(ctx, "reservation.count_completed", &n, q)
	return n, err
}

// LockSchedule takes a transaction scoped advisory lock on the scope key
func (r *reservationRepository) LockSchedule(ctx context.Context, scope model.ScheduleScope) error {
	_, err := r.exec(ctx, "reservation.lock_schedule", squirrel.Expr("SELECT pg_advisory_xact_lock(hashtext($1))", scope.LockKey()))
	return err
}
