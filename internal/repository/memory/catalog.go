package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
)

type branchRepository struct{ s *Store }

func (r *branchRepository) Create(ctx context.Context, branch *model.Branch) error {
	return r.s.do(ctx, func() error {
		for _, b := range r.s.branches {
			if b.Code == branch.Code {
				return repository.ErrConflict
			}
		}
		r.s.branches[branch.ID] = *branch
		return nil
	})
}

func (r *branchRepository) Get(ctx context.Context, id uuid.UUID) (*model.Branch, error) {
	var out *model.Branch
	err := r.s.do(ctx, func() error {
		b, ok := r.s.branches[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &b
		return nil
	})
	return out, err
}

func (r *branchRepository) List(ctx context.Context, activeOnly bool) ([]*model.Branch, error) {
	var out []*model.Branch
	err := r.s.do(ctx, func() error {
		for _, b := range r.s.branches {
			if activeOnly && !b.IsActive {
				continue
			}
			b := b
			out = append(out, &b)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, err
}

func (r *branchRepository) Update(ctx context.Context, branch *model.Branch) error {
	return r.s.do(ctx, func() error {
		if _, ok := r.s.branches[branch.ID]; !ok {
			return repository.ErrNotFound
		}
		r.s.branches[branch.ID] = *branch
		return nil
	})
}

type userRepository struct{ s *Store }

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return r.s.do(ctx, func() error {
		for _, u := range r.s.users {
			if strings.EqualFold(u.Email, user.Email) {
				return repository.ErrConflict
			}
		}
		r.s.users[user.ID] = *user
		return nil
	})
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var out *model.User
	err := r.s.do(ctx, func() error {
		u, ok := r.s.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var out *model.User
	err := r.s.do(ctx, func() error {
		for _, u := range r.s.users {
			if strings.EqualFold(u.Email, email) {
				u := u
				out = &u
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

type serviceRepository struct{ s *Store }

func (r *serviceRepository) Create(ctx context.Context, service *model.Service) error {
	return r.s.do(ctx, func() error {
		r.s.services[service.ID] = *service
		return nil
	})
}

func (r *serviceRepository) Get(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	var out *model.Service
	err := r.s.do(ctx, func() error {
		svc, ok := r.s.services[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &svc
		return nil
	})
	return out, err
}

func (r *serviceRepository) List(ctx context.Context, filter model.ServiceFilter) ([]*model.Service, error) {
	var out []*model.Service
	err := r.s.do(ctx, func() error {
		for _, svc := range r.s.services {
			if filter.BranchID != nil && svc.BranchID != *filter.BranchID {
				continue
			}
			if filter.Category != "" && svc.Category != filter.Category {
				continue
			}
			if filter.ActiveOnly && !svc.IsActive {
				continue
			}
			svc := svc
			out = append(out, &svc)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

func (r *serviceRepository) Update(ctx context.Context, service *model.Service) error {
	return r.s.do(ctx, func() error {
		if _, ok := r.s.services[service.ID]; !ok {
			return repository.ErrNotFound
		}
		r.s.services[service.ID] = *service
		return nil
	})
}

type stylistRepository struct{ s *Store }

func (r *stylistRepository) Create(ctx context.Context, stylist *model.Stylist) error {
	return r.s.do(ctx, func() error {
		for _, st := range r.s.stylists {
			if st.UserID == stylist.UserID {
				return repository.ErrConflict
			}
		}
		r.s.stylists[stylist.ID] = *stylist
		return nil
	})
}

func (r *stylistRepository) Get(ctx context.Context, id uuid.UUID) (*model.Stylist, error) {
	var out *model.Stylist
	err := r.s.do(ctx, func() error {
		st, ok := r.s.stylists[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &st
		return nil
	})
	return out, err
}

func (r *stylistRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Stylist, error) {
	var out *model.Stylist
	err := r.s.do(ctx, func() error {
		for _, st := range r.s.stylists {
			if st.UserID == userID {
				st := st
				out = &st
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r *stylistRepository) List(ctx context.Context, branchID *uuid.UUID, activeOnly bool) ([]*model.Stylist, error) {
	var out []*model.Stylist
	err := r.s.do(ctx, func() error {
		for _, st := range r.s.stylists {
			if branchID != nil && st.BranchID != *branchID {
				continue
			}
			if activeOnly && !st.IsActive {
				continue
			}
			st := st
			out = append(out, &st)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, err
}

func (r *stylistRepository) Update(ctx context.Context, stylist *model.Stylist) error {
	return r.s.do(ctx, func() error {
		if _, ok := r.s.stylists[stylist.ID]; !ok {
			return repository.ErrNotFound
		}
		r.s.stylists[stylist.ID] = *stylist
		return nil
	})
}

type availabilityRepository struct{ s *Store }

func (r *availabilityRepository) ListRules(ctx context.Context, stylistID uuid.UUID) ([]*model.AvailabilityRule, error) {
	return r.list(ctx, stylistID, -1)
}

func (r *availabilityRepository) ListRulesForDay(ctx context.Context, stylistID uuid.UUID, dayOfWeek int) ([]*model.AvailabilityRule, error) {
	return r.list(ctx, stylistID, dayOfWeek)
}

func (r *availabilityRepository) list(ctx context.Context, stylistID uuid.UUID, day int) ([]*model.AvailabilityRule, error) {
	var out []*model.AvailabilityRule
	err := r.s.do(ctx, func() error {
		for _, rule := range r.s.rules {
			if rule.StylistID != stylistID || (day >= 0 && rule.DayOfWeek != day) {
				continue
			}
			rule := rule
			out = append(out, &rule)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].EndTime < out[j].EndTime
	})
	return out, err
}

func (r *availabilityRepository) ReplaceRules(ctx context.Context, stylistID uuid.UUID, rules []*model.AvailabilityRule) error {
	return r.s.do(ctx, func() error {
		type key struct {
			day        int
			start, end model.ClockTime
		}
		seen := make(map[key]bool, len(rules))
		for _, rule := range rules {
			k := key{rule.DayOfWeek, rule.StartTime, rule.EndTime}
			if seen[k] {
				return repository.ErrConflict
			}
			seen[k] = true
		}

		for id, rule := range r.s.rules {
			if rule.StylistID == stylistID {
				delete(r.s.rules, id)
			}
		}
		for _, rule := range rules {
			r.s.rules[rule.ID] = *rule
		}
		return nil
	})
}

func (r *availabilityRepository) CreateBlackout(ctx context.Context, blackout *model.Blackout) error {
	return r.s.do(ctx, func() error {
		r.s.blackouts[blackout.ID] = *blackout
		return nil
	})
}

func (r *availabilityRepository) DeleteBlackout(ctx context.Context, stylistID, id uuid.UUID) error {
	return r.s.do(ctx, func() error {
		b, ok := r.s.blackouts[id]
		if !ok || b.StylistID != stylistID {
			return repository.ErrNotFound
		}
		delete(r.s.blackouts, id)
		return nil
	})
}

func (r *availabilityRepository) ListBlackouts(ctx context.Context, stylistID uuid.UUID, from, to time.Time) ([]*model.Blackout, error) {
	var out []*model.Blackout
	err := r.s.do(ctx, func() error {
		for _, b := range r.s.blackouts {
			if b.StylistID == stylistID && model.Overlaps(b.StartsAt, b.EndsAt, from, to) {
				b := b
				out = append(out, &b)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, err
}
