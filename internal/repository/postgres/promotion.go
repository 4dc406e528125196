package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
)

type promotionRepository struct {
	BaseRepository
}

func NewPromotionRepository(base BaseRepository) repository.PromotionRepository {
	return &promotionRepository{base}
}

func (r *promotionRepository) Create(ctx context.Context, p *model.Promotion) error {
	_, err := r.exec(ctx, "promotion.create", psql.Insert("promotions").
		Columns(
			"id", "code", "description", "discount_type", "discount_value",
			"valid_from", "valid_until", "usage_limit", "usage_count",
			"is_active", "is_public", "is_first_booking_only", "service_ids",
			"created_at", "updated_at",
		).
		Values(
			p.ID, p.Code, p.Description, p.DiscountType, p.DiscountValue,
			p.ValidFrom, p.ValidUntil, p.UsageLimit, p.UsageCount,
			p.IsActive, p.IsPublic, p.IsFirstBookingOnly, p.ServiceIDs,
			p.CreatedAt, p.UpdatedAt,
		))
	return err
}

func (r *promotionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Promotion, error) {
	var p model.Promotion
	if err := r.get(ctx, "promotion.get", &p, psql.Select("*").From("promotions").Where(squirrel.Eq{"id": id})); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *promotionRepository) GetByCode(ctx context.Context, code string) (*model.Promotion, error) {
	var p model.Promotion
	q := psql.Select("*").From("promotions").Where("upper(code) = upper(?)", code)
	if err := r.get(ctx, "promotion.get_by_code", &p, q); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *promotionRepository) List(ctx context.Context, publicOnly bool) ([]*model.Promotion, error) {
	q := psql.Select("*").From("promotions").OrderBy("code")
	if publicOnly {
		q = q.Where(squirrel.Eq{"is_public": true})
	}
	var out []*model.Promotion
	err := r.selectAll(ctx, "promotion.list", &out, q)
	return out, err
}

func (r *promotionRepository) Update(ctx context.Context, p *model.Promotion) error {
	return r.execOne(ctx, "promotion.update", psql.Update("promotions").
		Set("description", p.Description).
		Set("discount_type", p.DiscountType).
		Set("discount_value", p.DiscountValue).
		Set("valid_from", p.ValidFrom).
		Set("valid_until", p.ValidUntil).
		Set("usage_limit", p.UsageLimit).
		Set("is_active", p.IsActive).
		Set("is_public", p.IsPublic).
		Set("is_first_booking_only", p.IsFirstBookingOnly).
		Set("service_ids", p.ServiceIDs).
		Set("updated_at", p.UpdatedAt).
		Where(squirrel.Eq{"id": p.ID}))
}

// IncrementUsage is a guarded update, so two redemptions racing for the last
// use cannot both succeed.
func (r *promotionRepository) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	n, err := r.exec(ctx, "promotion.increment_usage", psql.Update("promotions").
		Set("usage_count", squirrel.Expr("usage_count + 1")).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Or{squirrel.Eq{"usage_limit": nil}, squirrel.Expr("usage_count < usage_limit")}))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("promotion.increment_usage: %w", repository.ErrLimitReached)
	}
	return nil
}
