package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
)

type reservationRepository struct{ s *Store }

// slotTaken mirrors the partial unique index on (stylist_id, scheduled_at)
func (r *reservationRepository) slotTaken(res *model.Reservation) bool {
	if res.StylistID == nil || res.Status == model.ReservationStatusCancelled {
		return false
	}
	for _, other := range r.s.reservations {
		if other.ID == res.ID || other.Status == model.ReservationStatusCancelled || other.StylistID == nil {
			continue
		}
		if *other.StylistID == *res.StylistID && other.ScheduledAt.Equal(res.ScheduledAt) {
			return true
		}
	}
	return false
}

func (r *reservationRepository) Create(ctx context.Context, res *model.Reservation) error {
	return r.s.do(ctx, func() error {
		if r.slotTaken(res) {
			return repository.ErrConflict
		}
		r.s.reservations[res.ID] = *res
		return nil
	})
}

func (r *reservationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Reservation, error) {
	var out *model.Reservation
	err := r.s.do(ctx, func() error {
		res, ok := r.s.reservations[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &res
		return nil
	})
	return out, err
}

func (r *reservationRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Reservation, error) {
	return r.Get(ctx, id)
}

func (r *reservationRepository) Update(ctx context.Context, res *model.Reservation) error {
	return r.s.do(ctx, func() error {
		if _, ok := r.s.reservations[res.ID]; !ok {
			return repository.ErrNotFound
		}
		if r.slotTaken(res) {
			return repository.ErrConflict
		}
		r.s.reservations[res.ID] = *res
		return nil
	})
}

func (r *reservationRepository) List(ctx context.Context, f model.ReservationFilter) ([]*model.Reservation, int64, error) {
	var all []*model.Reservation
	err := r.s.do(ctx, func() error {
		for _, res := range r.s.reservations {
			if f.ClientID != nil && res.ClientID != *f.ClientID {
				continue
			}
			if f.StylistID != nil && !res.IsAssignedTo(*f.StylistID) {
				continue
			}
			if f.BranchID != nil && res.BranchID != *f.BranchID {
				continue
			}
			if f.Status != nil && res.Status != *f.Status {
				continue
			}
			if f.From != nil && res.ScheduledAt.Before(*f.From) {
				continue
			}
			if f.To != nil && !res.ScheduledAt.Before(*f.To) {
				continue
			}
			res := res
			all = append(all, &res)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ScheduledAt.Before(all[j].ScheduledAt) })
	return paginate(all, f.Pagination), int64(len(all)), nil
}

func (r *reservationRepository) ListActiveInRange(ctx context.Context, scope model.ScheduleScope, from, to time.Time, excludeID *uuid.UUID) ([]*model.Reservation, error) {
	var out []*model.Reservation
	err := r.s.do(ctx, func() error {
		for _, res := range r.s.reservations {
			if res.Status == model.ReservationStatusCancelled {
				continue
			}
			if excludeID != nil && res.ID == *excludeID {
				continue
			}
			if scope.StylistID != nil {
				if !res.IsAssignedTo(*scope.StylistID) {
					continue
				}
			} else if res.BranchID != scope.BranchID || res.StylistID != nil {
				continue
			}
			if !model.Overlaps(res.ScheduledAt, res.EndsAt(), from, to) {
				continue
			}
			res := res
			out = append(out, &res)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, err
}

func (r *reservationRepository) CountCompletedByClient(ctx context.Context, clientID uuid.UUID) (int, error) {
	count := 0
	err := r.s.do(ctx, func() error {
		for _, res := range r.s.reservations {
			if res.ClientID == clientID && res.Status == model.ReservationStatusCompleted {
				count++
			}
		}
		return nil
	})
	return count, err
}

// LockSchedule is a no-op: transactions already hold the store lock
func (r *reservationRepository) LockSchedule(ctx context.Context, scope model.ScheduleScope) error {
	return nil
}
