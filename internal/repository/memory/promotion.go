package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
)

type promotionRepository struct{ s *Store }

func (r *promotionRepository) Create(ctx context.Context, p *model.Promotion) error {
	return r.s.do(ctx, func() error {
		for _, other := range r.s.promotions {
			if strings.EqualFold(other.Code, p.Code) {
				return repository.ErrConflict
			}
		}
		r.s.promotions[p.ID] = *p
		return nil
	})
}

func (r *promotionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Promotion, error) {
	var out *model.Promotion
	err := r.s.do(ctx, func() error {
		p, ok := r.s.promotions[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *promotionRepository) GetByCode(ctx context.Context, code string) (*model.Promotion, error) {
	var out *model.Promotion
	err := r.s.do(ctx, func() error {
		for _, p := range r.s.promotions {
			if strings.EqualFold(p.Code, code) {
				p := p
				out = &p
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r *promotionRepository) List(ctx context.Context, publicOnly bool) ([]*model.Promotion, error) {
	var out []*model.Promotion
	err := r.s.do(ctx, func() error {
		for _, p := range r.s.promotions {
			if publicOnly && !p.IsPublic {
				continue
			}
			p := p
			out = append(out, &p)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, err
}

func (r *promotionRepository) Update(ctx context.Context, p *model.Promotion) error {
	return r.s.do(ctx, func() error {
		if _, ok := r.s.promotions[p.ID]; !ok {
			return repository.ErrNotFound
		}
		r.s.promotions[p.ID] = *p
		return nil
	})
}

func (r *promotionRepository) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	return r.s.do(ctx, func() error {
		p, ok := r.s.promotions[id]
		if !ok {
			return repository.ErrNotFound
		}
		if p.Exhausted() {
			return repository.ErrLimitReached
		}
		p.UsageCount++
		r.s.promotions[id] = p
		return nil
	})
}
