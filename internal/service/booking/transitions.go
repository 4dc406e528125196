package booking

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
	"github.com/jwalitptl/salon-api/internal/service/availability"
	"github.com/jwalitptl/salon-api/pkg/errors"
	"github.com/jwalitptl/salon-api/pkg/event"
)

type change struct {
	event    event.EventType
	reason   string
	previous *model.Reservation
}

// transition loads the reservation row-locked, lets apply mutate it, then
// stores it and its event in one transaction
func (s *Service) transition(ctx context.Context, actor model.Actor, id uuid.UUID, apply func(ctx context.Context, res *model.Reservation) (*change, error)) (*model.Reservation, error) {
	var (
		res *model.Reservation
		ch  *change
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		res, err = s.reservations.GetForUpdate(ctx, id)
		if err != nil {
			if stderrors.Is(err, repository.ErrNotFound) {
				return errors.NotFound("reservation", err)
			}
			return errors.Internal(fmt.Errorf("failed to load reservation: %w", err))
		}
		before := *res

		ch, err = apply(ctx, res)
		if err != nil {
			return err
		}
		ch.previous = &before
		res.UpdatedAt = s.clock.Now()

		if err := s.reservations.Update(ctx, res); err != nil {
			if stderrors.Is(err, repository.ErrConflict) {
				return errors.Conflict("time slot is already booked", err)
			}
			return errors.Internal(fmt.Errorf("failed to update reservation: %w", err))
		}

		var previousAt *time.Time
		if ch.event == event.ReservationRescheduled {
			previousAt = &before.ScheduledAt
		}
		payload, err := s.payload(ctx, res, actor, ch.reason, previousAt)
		if err != nil {
			return err
		}
		if err := s.emitter.Emit(ctx, ch.event, res.ID, payload); err != nil {
			return errors.Internal(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.LogUpdate(ctx, "reservations", res.ID, ch.previous, res)
	return res, nil
}

func isOwner(actor model.Actor, res *model.Reservation) bool {
	return res.ClientID == actor.UserID
}

// requireAssigned allows administrators and the stylist the reservation is
// assigned to
func (s *Service) requireAssigned(ctx context.Context, actor model.Actor, res *model.Reservation) error {
	if actor.IsAdmin() {
		return nil
	}
	if !actor.IsStylist() || res.StylistID == nil {
		return errors.Forbidden("only the assigned stylist or an administrator can do this")
	}
	stylist, err := s.catalog.StylistForUser(ctx, actor.UserID)
	if err != nil || !res.IsAssignedTo(stylist.ID) {
		return errors.Forbidden("only the assigned stylist or an administrator can do this")
	}
	return nil
}

// Cancel cancels a pending or confirmed reservation. Clients need at least
// CancelWindow of notice, administrators can cancel at any time.
func (s *Service) Cancel(ctx context.Context, actor model.Actor, id uuid.UUID, req model.CancelReservationRequest) (*model.Reservation, error) {
	return s.transition(ctx, actor, id, func(ctx context.Context, res *model.Reservation) (*change, error) {
		if !isOwner(actor, res) && !actor.IsAdmin() {
			return nil, errors.Forbidden("only the client or an administrator can cancel this reservation")
		}
		switch res.Status {
		case model.ReservationStatusCancelled:
			return nil, errors.Conflict("reservation is already cancelled", nil)
		case model.ReservationStatusCompleted:
			return nil, errors.Policy("completed reservations cannot be cancelled")
		}

		now := s.clock.Now()
		if !actor.IsAdmin() && res.ScheduledAt.Sub(now) < s.cfg.CancelWindow {
			return nil, errors.Policy(fmt.Sprintf("reservations can only be cancelled at least %s in advance", humanHours(s.cfg.CancelWindow)))
		}

		res.Status = model.ReservationStatusCancelled
		res.CancelledAt = &now
		res.CancelledBy = &actor.UserID
		if req.Reason != "" {
			reason := req.Reason
			res.CancellationReason = &reason
		}
		return &change{event: event.ReservationCancelled, reason: req.Reason}, nil
	})
}

func (s *Service) Confirm(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Reservation, error) {
	return s.transition(ctx, actor, id, func(ctx context.Context, res *model.Reservation) (*change, error) {
		if err := s.requireAssigned(ctx, actor, res); err != nil {
			return nil, err
		}
		if res.Status != model.ReservationStatusPending {
			return nil, errors.Policy("only pending reservations can be confirmed")
		}
		now := s.clock.Now()
		res.Status = model.ReservationStatusConfirmed
		res.ConfirmedAt = &now
		return &change{event: event.ReservationConfirmed}, nil
	})
}

func (s *Service) Complete(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Reservation, error) {
	return s.transition(ctx, actor, id, func(ctx context.Context, res *model.Reservation) (*change, error) {
		if err := s.requireAssigned(ctx, actor, res); err != nil {
			return nil, err
		}
		if res.Status != model.ReservationStatusPending && res.Status != model.ReservationStatusConfirmed {
			return nil, errors.Policy(fmt.Sprintf("%s reservations cannot be completed", res.Status))
		}
		now := s.clock.Now()
		res.Status = model.ReservationStatusCompleted
		res.CompletedAt = &now
		return &change{event: event.ReservationCompleted}, nil
	})
}

// Reschedule moves a reservation to a new free slot and sends it back to
// pending, so the stylist has to confirm again
func (s *Service) Reschedule(ctx context.Context, actor model.Actor, id uuid.UUID, req model.RescheduleReservationRequest) (*model.Reservation, error) {
	return s.transition(ctx, actor, id, func(ctx context.Context, res *model.Reservation) (*change, error) {
		if !isOwner(actor, res) && !actor.IsAdmin() {
			return nil, errors.Forbidden("only the client or an administrator can reschedule this reservation")
		}
		if res.Status.IsTerminal() {
			return nil, errors.Policy(fmt.Sprintf("%s reservations cannot be rescheduled", res.Status))
		}
		if req.ScheduledAt.Before(s.clock.Now()) {
			return nil, errors.Field("scheduled_at", "must not be in the past")
		}

		branch, err := s.catalog.GetBranch(ctx, res.BranchID)
		if err != nil {
			return nil, err
		}
		scope := model.ScheduleScope{BranchID: res.BranchID, StylistID: res.StylistID}
		if err := s.reservations.LockSchedule(ctx, scope); err != nil {
			return nil, errors.Internal(fmt.Errorf("failed to lock schedule: %w", err))
		}
		if err := s.availability.CheckBookable(ctx, availability.BookableCheck{
			Scope:     scope,
			Start:     req.ScheduledAt,
			Duration:  res.EndsAt().Sub(res.ScheduledAt),
			Location:  s.catalog.Location(branch),
			ExcludeID: &res.ID,
		}); err != nil {
			return nil, err
		}

		res.ScheduledAt = req.ScheduledAt.UTC()
		res.Status = model.ReservationStatusPending
		res.ConfirmedAt = nil
		return &change{event: event.ReservationRescheduled}, nil
	})
}

// Get returns a reservation to its client, its stylist or an administrator
func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Reservation, error) {
	res, err := s.reservations.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("reservation", err)
		}
		return nil, errors.Internal(fmt.Errorf("failed to load reservation: %w", err))
	}
	if isOwner(actor, res) {
		return res, nil
	}
	if err := s.requireAssigned(ctx, actor, res); err != nil {
		return nil, errors.Forbidden("you cannot view this reservation")
	}
	return res, nil
}

// List scopes the filter to the actor: clients see their own bookings,
// stylists the ones assigned to them
func (s *Service) List(ctx context.Context, actor model.Actor, filter model.ReservationFilter) ([]*model.Reservation, int64, error) {
	switch {
	case actor.IsAdmin():
	case actor.IsStylist():
		stylist, err := s.catalog.StylistForUser(ctx, actor.UserID)
		if err != nil {
			return nil, 0, err
		}
		filter.StylistID = &stylist.ID
		filter.ClientID = nil
	default:
		filter.ClientID = &actor.UserID
		filter.StylistID = nil
	}

	filter.Normalize()
	reservations, total, err := s.reservations.List(ctx, filter)
	if err != nil {
		return nil, 0, errors.Internal(fmt.Errorf("failed to list reservations: %w", err))
	}
	return reservations, total, nil
}

func humanHours(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%d hours", int64(d/time.Hour))
	}
	return d.String()
}
