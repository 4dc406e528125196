// Package availability resolves stylist working rules, blackouts and
// existing reservations into bookable slots.
package availability

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
	"github.com/jwalitptl/salon-api/internal/service/audit"
	"github.com/jwalitptl/salon-api/internal/service/catalog"
	"github.com/jwalitptl/salon-api/pkg/clock"
	"github.com/jwalitptl/salon-api/pkg/errors"
)

const dateLayout = "2006-01-02"

type Config struct {
	// Granularity between slot starts, 30 minutes when unset
	Granularity time.Duration
	// MinNotice is how far ahead of now a slot must start
	MinNotice time.Duration
	// DefaultOpen and DefaultClose bound bookings without a stylist
	DefaultOpen  model.ClockTime
	DefaultClose model.ClockTime
}

func (c *Config) setDefaults() {
	if c.Granularity <= 0 {
		c.Granularity = 30 * time.Minute
	}
	if c.DefaultOpen == 0 && c.DefaultClose == 0 {
		c.DefaultOpen = model.NewClockTime(9, 0)
		c.DefaultClose = model.NewClockTime(18, 0)
	}
}

type Service struct {
	tx           repository.TxManager
	availability repository.AvailabilityRepository
	reservations repository.ReservationRepository
	catalog      *catalog.Service
	auditor      *audit.Recorder
	clock        clock.Clock
	cfg          Config
}

func NewService(repos *repository.Repositories, catalogSvc *catalog.Service, auditor *audit.Recorder, clk clock.Clock, cfg Config) *Service {
	cfg.setDefaults()
	return &Service{
		tx:           repos.Tx,
		availability: repos.Availability,
		reservations: repos.Reservations,
		catalog:      catalogSvc,
		auditor:      auditor,
		clock:        clk,
		cfg:          cfg,
	}
}

type SlotQuery struct {
	ServiceID uuid.UUID
	StylistID *uuid.UUID
	// Date is a calendar day (YYYY-MM-DD) in the branch timezone
	Date string
}

type window struct {
	start, end time.Time
}

// Slots lists the open slots for a service on a day, sorted by start
func (s *Service) Slots(ctx context.Context, q SlotQuery) ([]model.TimeSlot, error) {
	svc, err := s.catalog.GetService(ctx, q.ServiceID)
	if err != nil {
		return nil, err
	}
	if !svc.IsActive {
		return nil, errors.Field("service_id", "service is not active")
	}
	if svc.DurationMinutes <= 0 {
		return nil, errors.Field("service_id", "service has no duration")
	}

	branch, err := s.catalog.GetBranch(ctx, svc.BranchID)
	if err != nil {
		return nil, err
	}
	loc := s.catalog.Location(branch)

	day, err := time.ParseInLocation(dateLayout, q.Date, loc)
	if err != nil {
		return nil, errors.Field("date", "must be a date formatted YYYY-MM-DD")
	}

	scope := model.ScheduleScope{BranchID: svc.BranchID}
	if q.StylistID != nil {
		if _, err := s.BookableStylist(ctx, *q.StylistID, svc.BranchID); err != nil {
			return nil, err
		}
		scope.StylistID = q.StylistID
	}

	windows, err := s.windows(ctx, scope, day)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return []model.TimeSlot{}, nil
	}

	duration := svc.Duration()
	seen := make(map[int64]bool)
	var candidates []model.TimeSlot
	for _, w := range windows {
		for start := w.start; !start.Add(duration).After(w.end); start = start.Add(s.cfg.Granularity) {
			if seen[start.Unix()] {
				continue
			}
			seen[start.Unix()] = true
			candidates = append(candidates, model.TimeSlot{Start: start, End: start.Add(duration)})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Start.Before(candidates[j].Start) })
	if len(candidates) == 0 {
		return []model.TimeSlot{}, nil
	}

	from, to := candidates[0].Start, candidates[len(candidates)-1].End
	busy, err := s.busy(ctx, scope, from, to, nil)
	if err != nil {
		return nil, err
	}

	earliest := s.clock.Now().Add(s.cfg.MinNotice)
	slots := make([]model.TimeSlot, 0, len(candidates))
	for _, slot := range candidates {
		if slot.Start.Before(earliest) {
			continue
		}
		if overlapsAny(slot.Start, slot.End, busy) {
			continue
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

// BookableCheck describes a proposed booking
type BookableCheck struct {
	Scope     model.ScheduleScope
	Start     time.Time
	Duration  time.Duration
	Location  *time.Location
	ExcludeID *uuid.UUID
}

// CheckBookable verifies that the interval starts after the minimum notice,
// lies inside a working window and is free. Callers booking for real must
// hold the schedule lock.
func (s *Service) CheckBookable(ctx context.Context, c BookableCheck) error {
	if s.cfg.MinNotice > 0 && c.Start.Before(s.clock.Now().Add(s.cfg.MinNotice)) {
		return errors.Field("scheduled_at", fmt.Sprintf("must be at least %d minutes from now", int(s.cfg.MinNotice.Minutes())))
	}
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	start := c.Start.In(loc)
	end := start.Add(c.Duration)

	windows, err := s.windows(ctx, c.Scope, start)
	if err != nil {
		return err
	}
	inside := false
	for _, w := range windows {
		if !start.Before(w.start) && !end.After(w.end) {
			inside = true
			break
		}
	}
	if !inside {
		return errors.Field("scheduled_at", "outside working hours")
	}

	if c.Scope.StylistID != nil {
		blackouts, err := s.availability.ListBlackouts(ctx, *c.Scope.StylistID, start, end)
		if err != nil {
			return errors.Internal(fmt.Errorf("failed to load blackouts: %w", err))
		}
		if len(blackouts) > 0 {
			return errors.Conflict("stylist is unavailable at the requested time", nil)
		}
	}

	taken, err := s.reservations.ListActiveInRange(ctx, c.Scope, start, end, c.ExcludeID)
	if err != nil {
		return errors.Internal(fmt.Errorf("failed to check conflicts: %w", err))
	}
	if len(taken) > 0 {
		return errors.Conflict("time slot is already booked", nil)
	}
	return nil
}

// windows returns the working windows of scope on the calendar day of day
func (s *Service) windows(ctx context.Context, scope model.ScheduleScope, day time.Time) ([]window, error) {
	if scope.StylistID == nil {
		return []window{{start: s.cfg.DefaultOpen.On(day), end: s.cfg.DefaultClose.On(day)}}, nil
	}

	rules, err := s.availability.ListRulesForDay(ctx, *scope.StylistID, int(day.Weekday()))
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("failed to load availability rules: %w", err))
	}
	var out []window
	for _, r := range rules {
		if !r.IsAvailable {
			continue
		}
		out = append(out, window{start: r.StartTime.On(day), end: r.EndTime.On(day)})
	}
	return out, nil
}

func (s *Service) busy(ctx context.Context, scope model.ScheduleScope, from, to time.Time, excludeID *uuid.UUID) ([]window, error) {
	reservations, err := s.reservations.ListActiveInRange(ctx, scope, from, to, excludeID)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("failed to load reservations: %w", err))
	}
	out := make([]window, 0, len(reservations))
	for _, r := range reservations {
		out = append(out, window{start: r.ScheduledAt, end: r.EndsAt()})
	}

	if scope.StylistID != nil {
		blackouts, err := s.availability.ListBlackouts(ctx, *scope.StylistID, from, to)
		if err != nil {
			return nil, errors.Internal(fmt.Errorf("failed to load blackouts: %w", err))
		}
		for _, b := range blackouts {
			out = append(out, window{start: b.StartsAt, end: b.EndsAt})
		}
	}
	return out, nil
}

func overlapsAny(start, end time.Time, busy []window) bool {
	for _, b := range busy {
		if model.Overlaps(start, end, b.start, b.end) {
			return true
		}
	}
	return false
}

// BookableStylist loads an active stylist of the branch
func (s *Service) BookableStylist(ctx context.Context, stylistID, branchID uuid.UUID) (*model.Stylist, error) {
	stylist, err := s.catalog.GetStylist(ctx, stylistID)
	if err != nil {
		return nil, err
	}
	if !stylist.IsActive {
		return nil, errors.Field("stylist_id", "stylist is not active")
	}
	if stylist.BranchID != branchID {
		return nil, errors.Field("stylist_id", "stylist does not work at this branch")
	}
	return stylist, nil
}

// managedStylist loads a stylist the actor may edit: their own profile, or
// any profile for administrators
func (s *Service) managedStylist(ctx context.Context, actor model.Actor, stylistID uuid.UUID) (*model.Stylist, error) {
	stylist, err := s.catalog.GetStylist(ctx, stylistID)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() || (actor.IsStylist() && stylist.UserID == actor.UserID) {
		return stylist, nil
	}
	return nil, errors.Forbidden("only the stylist or an administrator can manage this schedule")
}

func (s *Service) ListRules(ctx context.Context, stylistID uuid.UUID) ([]*model.AvailabilityRule, error) {
	if _, err := s.catalog.GetStylist(ctx, stylistID); err != nil {
		return nil, err
	}
	rules, err := s.availability.ListRules(ctx, stylistID)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("failed to list availability rules: %w", err))
	}
	return rules, nil
}

// SetRules replaces the weekly schedule of a stylist. Overlapping rules are
// allowed, identical ones are not.
func (s *Service) SetRules(ctx context.Context, actor model.Actor, stylistID uuid.UUID, req model.SetAvailabilityRequest) ([]*model.AvailabilityRule, error) {
	if _, err := s.managedStylist(ctx, actor, stylistID); err != nil {
		return nil, err
	}

	type key struct {
		day        int
		start, end model.ClockTime
	}
	seen := make(map[key]bool, len(req.Rules))
	now := s.clock.Now()
	rules := make([]*model.AvailabilityRule, 0, len(req.Rules))
	for i, in := range req.Rules {
		field := fmt.Sprintf("rules[%d]", i)
		if in.DayOfWeek < 0 || in.DayOfWeek > 6 {
			return nil, errors.Field(field+".day_of_week", "must be between 0 and 6")
		}
		if in.EndTime <= in.StartTime {
			return nil, errors.Field(field+".end_time", "must be after start_time")
		}
		k := key{in.DayOfWeek, in.StartTime, in.EndTime}
		if seen[k] {
			return nil, errors.Field(field, "duplicate rule")
		}
		seen[k] = true

		available := true
		if in.IsAvailable != nil {
			available = *in.IsAvailable
		}
		rules = append(rules, &model.AvailabilityRule{
			ID:          uuid.New(),
			StylistID:   stylistID,
			DayOfWeek:   in.DayOfWeek,
			StartTime:   in.StartTime,
			EndTime:     in.EndTime,
			IsAvailable: available,
			CreatedAt:   now,
		})
	}

	var before []*model.AvailabilityRule
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if before, err = s.availability.ListRules(ctx, stylistID); err != nil {
			return err
		}
		return s.availability.ReplaceRules(ctx, stylistID, rules)
	})
	if err != nil {
		if stderrors.Is(err, repository.ErrConflict) {
			return nil, errors.Conflict("duplicate availability rule", err)
		}
		return nil, errors.Internal(fmt.Errorf("failed to replace availability rules: %w", err))
	}

	s.auditor.LogUpdate(ctx, "availability_rules", stylistID, before, rules)
	return rules, nil
}

func (s *Service) AddBlackout(ctx context.Context, actor model.Actor, stylistID uuid.UUID, req model.CreateBlackoutRequest) (*model.Blackout, error) {
	if _, err := s.managedStylist(ctx, actor, stylistID); err != nil {
		return nil, err
	}
	if !req.EndsAt.After(req.StartsAt) {
		return nil, errors.Field("ends_at", "must be after starts_at")
	}

	blackout := &model.Blackout{
		ID:        uuid.New(),
		StylistID: stylistID,
		StartsAt:  req.StartsAt,
		EndsAt:    req.EndsAt,
		Reason:    req.Reason,
		CreatedAt: s.clock.Now(),
	}
	if err := s.availability.CreateBlackout(ctx, blackout); err != nil {
		return nil, errors.Internal(fmt.Errorf("failed to create blackout: %w", err))
	}

	s.auditor.LogCreate(ctx, "stylist_blackouts", blackout.ID, blackout)
	return blackout, nil
}

func (s *Service) DeleteBlackout(ctx context.Context, actor model.Actor, stylistID, blackoutID uuid.UUID) error {
	if _, err := s.managedStylist(ctx, actor, stylistID); err != nil {
		return err
	}
	if err := s.availability.DeleteBlackout(ctx, stylistID, blackoutID); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return errors.NotFound("blackout", err)
		}
		return errors.Internal(fmt.Errorf("failed to delete blackout: %w", err))
	}

	s.auditor.LogDelete(ctx, "stylist_blackouts", blackoutID, nil)
	return nil
}

func (s *Service) ListBlackouts(ctx context.Context, stylistID uuid.UUID, from, to time.Time) ([]*model.Blackout, error) {
	blackouts, err := s.availability.ListBlackouts(ctx, stylistID, from, to)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("failed to list blackouts: %w", err))
	}
	return blackouts, nil
}
