package postgres

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
)

type branchRepository struct {
	BaseRepository
}

func NewBranchRepository(base BaseRepository) repository.BranchRepository {
	return &branchRepository{base}
}

func (r *branchRepository) Create(ctx context.Context, b *model.Branch) error {
	_, err := r.exec(ctx, "branch.create", psql.Insert("branches").
		Columns("id", "name", "code", "address", "phone", "timezone", "is_active", "created_at", "updated_at").
		Values(b.ID, b.Name, b.Code, b.Address, b.Phone, b.Timezone, b.IsActive, b.CreatedAt, b.UpdatedAt))
	return err
}

func (r *branchRepository) Get(ctx context.Context, id uuid.UUID) (*model.Branch, error) {
	var b model.Branch
	if err := r.get(ctx, "branch.get", &b, psql.Select("*").From("branches").Where(squirrel.Eq{"id": id})); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *branchRepository) List(ctx context.Context, activeOnly bool) ([]*model.Branch, error) {
	q := psql.Select("*").From("branches").OrderBy("code")
	if activeOnly {
		q = q.Where(squirrel.Eq{"is_active": true})
	}
	var out []*model.Branch
	err := r.selectAll(ctx, "branch.list", &out, q)
	return out, err
}

func (r *branchRepository) Update(ctx context.Context, b *model.Branch) error {
	return r.execOne(ctx, "branch.update", psql.Update("branches").
		Set("name", b.Name).
		Set("address", b.Address).
		Set("phone", b.Phone).
		Set("timezone", b.Timezone).
		Set("is_active", b.IsActive).
		Set("updated_at", b.UpdatedAt).
		Where(squirrel.Eq{"id": b.ID}))
}

type userRepository struct {
	BaseRepository
}

func NewUserRepository(base BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

func (r *userRepository) Create(ctx context.Context, u *model.User) error {
	_, err := r.exec(ctx, "user.create", psql.Insert("users").
		Columns("id", "name", "email", "phone", "role", "is_active", "created_at", "updated_at").
		Values(u.ID, u.Name, u.Email, u.Phone, u.Role, u.IsActive, u.CreatedAt, u.UpdatedAt))
	return err
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var u model.User
	if err := r.get(ctx, "user.get", &u, psql.Select("*").From("users").Where(squirrel.Eq{"id": id})); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	q := psql.Select("*").From("users").Where("lower(email) = lower(?)", email)
	if err := r.get(ctx, "user.get_by_email", &u, q); err != nil {
		return nil, err
	}
	return &u, nil
}

type serviceRepository struct {
	BaseRepository
}

func NewServiceRepository(base BaseRepository) repository.ServiceRepository {
	return &serviceRepository{base}
}

func (r *serviceRepository) Create(ctx context.Context, s *model.Service) error {
	_, err := r.exec(ctx, "service.create", psql.Insert("services").
		Columns("id", "branch_id", "name", "description", "price", "duration_minutes", "category", "is_active", "created_at", "updated_at").
		Values(s.ID, s.BranchID, s.Name, s.Description, s.Price, s.DurationMinutes, s.Category, s.IsActive, s.CreatedAt, s.UpdatedAt))
	return err
}

func (r *serviceRepository) Get(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	var s model.Service
	if err := r.get(ctx, "service.get", &s, psql.Select("*").From("services").Where(squirrel.Eq{"id": id})); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *serviceRepository) List(ctx context.Context, f model.ServiceFilter) ([]*model.Service, error) {
	q := psql.Select("*").From("services").OrderBy("name")
	if f.BranchID != nil {
		q = q.Where(squirrel.Eq{"branch_id": *f.BranchID})
	}
	if f.Category != "" {
		q = q.Where(squirrel.Eq{"category": f.Category})
	}
	if f.ActiveOnly {
		q = q.Where(squirrel.Eq{"is_active": true})
	}
	var out []*model.Service
	err := r.selectAll(ctx, "service.list", &out, q)
	return out, err
}

func (r *serviceRepository) Update(ctx context.Context, s *model.Service) error {
	return r.execOne(ctx, "service.update", psql.Update("services").
		Set("name", s.Name).
		Set("description", s.Description).
		Set("price", s.Price).
		Set("duration_minutes", s.DurationMinutes).
		Set("category", s.Category).
		Set("is_active", s.IsActive).
		Set("updated_at", s.UpdatedAt).
		Where(squirrel.Eq{"id": s.ID}))
}

type stylistRepository struct {
	BaseRepository
}

func NewStylistRepository(base BaseRepository) repository.StylistRepository {
	return &stylistRepository{base}
}

func (r *stylistRepository) Create(ctx context.Context, s *model.Stylist) error {
	_, err := r.exec(ctx, "stylist.create", psql.Insert("stylists").
		Columns("id", "user_id", "branch_id", "display_name", "bio", "is_active", "created_at", "updated_at").
		Values(s.ID, s.UserID, s.BranchID, s.DisplayName, s.Bio, s.IsActive, s.CreatedAt, s.UpdatedAt))
	return err
}

func (r *stylistRepository) Get(ctx context.Context, id uuid.UUID) (*model.Stylist, error) {
	var s model.Stylist
	if err := r.get(ctx, "stylist.get", &s, psql.Select("*").From("stylists").Where(squirrel.Eq{"id": id})); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *stylistRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Stylist, error) {
	var s model.Stylist
	if err := r.get(ctx, "stylist.get_by_user", &s, psql.Select("*").From("stylists").Where(squirrel.Eq{"user_id": userID})); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *stylistRepository) List(ctx context.Context, branchID *uuid.UUID, activeOnly bool) ([]*model.Stylist, error) {
	q := psql.Select("*").From("stylists").OrderBy("display_name")
	if branchID != nil {
		q = q.Where(squirrel.Eq{"branch_id": *branchID})
	}
	if activeOnly {
		q = q.Where(squirrel.Eq{"is_active": true})
	}
	var out []*model.Stylist
	err := r.selectAll(ctx, "stylist.list", &out, q)
	return out, err
}

func (r *stylistRepository) Update(ctx context.Context, s *model.Stylist) error {
	return r.execOne(ctx, "stylist.update", psql.Update("stylists").
		Set("branch_id", s.BranchID).
		Set("display_name", s.DisplayName).
		Set("bio", s.Bio).
		Set("is_active", s.IsActive).
		Set("updated_at", s.UpdatedAt).
		Where(squirrel.Eq{"id": s.ID}))
}

type availabilityRepository struct {
	BaseRepository
}

func NewAvailabilityRepository(base BaseRepository) repository.AvailabilityRepository {
	return &availabilityRepository{base}
}

func (r *availabilityRepository) ListRules(ctx context.Context, stylistID uuid.UUID) ([]*model.AvailabilityRule, error) {
	q := psql.Select("*").From("availability_rules").
		Where(squirrel.Eq{"stylist_id": stylistID}).
		OrderBy("day_of_week", "start_time", "end_time")
	var out []*model.AvailabilityRule
	err := r.selectAll(ctx, "availability.list_rules", &out, q)
	return out, err
}

func (r *availabilityRepository) ListRulesForDay(ctx context.Context, stylistID uuid.UUID, dayOfWeek int) ([]*model.AvailabilityRule, error) {
	q := psql.Select("*").From("availability_rules").
		Where(squirrel.Eq{"stylist_id": stylistID, "day_of_week": dayOfWeek}).
		OrderBy("start_time", "end_time")
	var out []*model.AvailabilityRule
	err := r.selectAll(ctx, "availability.list_rules_for_day", &out, q)
	return out, err
}

// ReplaceRules must run inside a transaction so the delete and inserts land together
func (r *availabilityRepository) ReplaceRules(ctx context.Context, stylistID uuid.UUID, rules []*model.AvailabilityRule) error {
	if _, err := r.exec(ctx, "availability.delete_rules", psql.Delete("availability_rules").Where(squirrel.Eq{"stylist_id": stylistID})); err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}

	q := psql.Insert("availability_rules").
		Columns("id", "stylist_id", "day_of_week", "start_time", "end_time", "is_available", "created_at")
	for _, rule := range rules {
		q = q.Values(rule.ID, stylistID, rule.DayOfWeek, rule.StartTime, rule.EndTime, rule.IsAvailable, rule.CreatedAt)
	}
	_, err := r.exec(ctx, "availability.insert_rules", q)
	return err
}

func (r *availabilityRepository) CreateBlackout(ctx context.Context, b *model.Blackout) error {
	_, err := r.exec(ctx, "availability.create_blackout", psql.Insert("stylist_blackouts").
		Columns("id", "stylist_id", "starts_at", "ends_at", "reason", "created_at").
		Values(b.ID, b.StylistID, b.StartsAt, b.EndsAt, b.Reason, b.CreatedAt))
	return err
}

func (r *availabilityRepository) DeleteBlackout(ctx context.Context, stylistID, id uuid.UUID) error {
	return r.execOne(ctx, "availability.delete_blackout", psql.Delete("stylist_blackouts").
		Where(squirrel.Eq{"id": id, "stylist_id": stylistID}))
}

func (r *availabilityRepository) ListBlackouts(ctx context.Context, stylistID uuid.UUID, from, to time.Time) ([]*model.Blackout, error) {
	q := psql.Select("*").From("stylist_blackouts").
		Where(squirrel.Eq{"stylist_id": stylistID}).
		Where(squirrel.Lt{"starts_at": to}).
		Where(squirrel.Gt{"ends_at": from}).
		OrderBy("starts_at")
	var out []*model.Blackout
	err := r.selectAll(ctx, "availability.list_blackouts", &out, q)
	return out, err
}
