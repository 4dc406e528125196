// Package catalog manages branches, salon services, stylists and users.
package catalog

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
	"github.com/jwalitptl/salon-api/internal/service/audit"
	"github.com/jwalitptl/salon-api/pkg/clock"
	"github.com/jwalitptl/salon-api/pkg/errors"
)

type Config struct {
	DefaultTimezone string
	CacheTTL        time.Duration
}

type Service struct {
	branches repository.BranchRepository
	services repository.ServiceRepository
	stylists repository.StylistRepository
	users    repository.UserRepository
	auditor  *audit.Recorder
	clock    clock.Clock
	cache    *cache.Cache
	cfg      Config
}

func NewService(repos *repository.Repositories, auditor *audit.Recorder, clk clock.Clock, cfg Config) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = "America/Costa_Rica"
	}
	return &Service{
		branches: repos.Branches,
		services: repos.Services,
		stylists: repos.Stylists,
		users:    repos.Users,
		auditor:  auditor,
		clock:    clk,
		cache:    cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		cfg:      cfg,
	}
}

func requireAdmin(actor model.Actor) error {
	if !actor.IsAdmin() {
		return errors.Forbidden("administrator role required")
	}
	return nil
}

func notFound(resource string, err error) error {
	if stderrors.Is(err, repository.ErrNotFound) {
		return errors.NotFound(resource, err)
	}
	return errors.Internal(fmt.Errorf("failed to load %s: %w", resource, err))
}

func (s *Service) CreateBranch(ctx context.Context, actor model.Actor, req model.CreateBranchRequest) (*model.Branch, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	tz := req.Timezone
	if tz == "" {
		tz = s.cfg.DefaultTimezone
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, errors.Field("timezone", "unknown timezone")
	}

	now := s.clock.Now()
	branch := &model.Branch{
		ID:        uuid.New(),
		Name:      req.Name,
		Code:      req.Code,
		Address:   req.Address,
		Phone:     req.Phone,
		Timezone:  tz,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.branches.Create(ctx, branch); err != nil {
		if stderrors.Is(err, repository.ErrConflict) {
			return nil, errors.Conflict("branch code already in use", err)
		}
		return nil, errors.Internal(fmt.Errorf("failed to create branch: %w", err))
	}

	s.auditor.LogCreate(ctx, "branches", branch.ID, branch)
	return branch, nil
}

func (s *Service) GetBranch(ctx context.Context, id uuid.UUID) (*model.Branch, error) {
	key := "branch:" + id.String()
	if v, ok := s.cache.Get(key); ok {
		b := v.(model.Branch)
		return &b, nil
	}

	branch, err := s.branches.Get(ctx, id)
	if err != nil {
		return nil, notFound("branch", err)
	}
	s.cache.SetDefault(key, *branch)
	return branch, nil
}

func (s *Service) ListBranches(ctx context.Context, activeOnly bool) ([]*model.Branch, error) {
	branches, err := s.branches.List(ctx, activeOnly)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("failed to list branches: %w", err))
	}
	return branches, nil
}

// Location resolves the timezone a branch books in
func (s *Service) Location(branch *model.Branch) *time.Location {
	for _, name := range []string{branch.Timezone, s.cfg.DefaultTimezone} {
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.UTC
}

func (s *Service) CreateUser(ctx context.Context, actor model.Actor, req model.CreateUserRequest) (*model.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if req.Role == model.RoleSuperAdmin && actor.Role != model.RoleSuperAdmin {
		return nil, errors.Forbidden("only super administrators can create super administrators")
	}

	now := s.clock.Now()
	user := &model.User{
		ID:        uuid.New(),
		Name:      req.Name,
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:     req.Phone,
		Role:      req.Role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if stderrors.Is(err, repository.ErrConflict) {
			return nil, errors.Conflict("email already registered", err)
		}
		return nil, errors.Internal(fmt.Errorf("failed to create user: %w", err))
	}

	s.auditor.LogCreate(ctx, "users", user.ID, user)
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.users.Get(ctx, id)
	if err != nil {
		return nil, notFound("user", err)
	}
	return user, nil
}

func (s *Service) CreateService(ctx context.Context, actor model.Actor, req model.CreateServiceRequest) (*model.Service, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if _, err := s.GetBranch(ctx, req.BranchID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	svc := &model.Service{
		ID:              uuid.New(),
		BranchID:        req.BranchID,
		Name:            req.Name,
		Description:     req.Description,
		Price:           req.Price.Round(2),
		DurationMinutes: req.DurationMinutes,
		Category:        req.Category,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.services.Create(ctx, svc); err != nil {
		return nil, errors.Internal(fmt.Errorf("failed to create service: %w", err))
	}

	s.auditor.LogCreate(ctx, "services", svc.ID, svc)
	return svc, nil
}

// UpdateService applies a partial update. Services are deactivated rather
// than deleted so past reservations keep their reference.
func (s *Service) UpdateService(ctx context.Context, actor model.Actor, id uuid.UUID, req model.UpdateServiceRequest) (*model.Service, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	current, err := s.services.Get(ctx, id)
	if err != nil {
		return nil, notFound("service", err)
	}
	before := *current

	if req.Name != nil {
		current.Name = *req.Name
	}
	if req.Description != nil {
		current.Description = *req.Description
	}
	if req.Price != nil {
		current.Price = req.Price.Round(2)
	}
	if req.DurationMinutes != nil {
		current.DurationMinutes = *req.DurationMinutes
	}
	if req.Category != nil {
		current.Category = *req.Category
	}
	if req.IsActive != nil {
		current.IsActive = *req.IsActive
	}
	current.UpdatedAt = s.clock.Now()

	if err := s.services.Update(ctx, current); err != nil {
		return nil, errors.Internal(fmt.Errorf("failed to update service: %w", err))
	}
	s.cache.Delete("service:" + id.String())

	s.auditor.LogUpdate(ctx, "services", id, before, current)
	return current, nil
}

func (s *Service) GetService(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	key := "service:" + id.String()
	if v, ok := s.cache.Get(key); ok {
		svc := v.(model.Service)
		return &svc, nil
	}

	svc, err := s.services.Get(ctx, id)
	if err != nil {
		return nil, notFound("service", err)
	}
	s.cache.SetDefault(key, *svc)
	return svc, nil
}

func (s *Service) ListServices(ctx context.Context, filter model.ServiceFilter) ([]*model.Service, error) {
	services, err := s.services.List(ctx, filter)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("failed to list services: %w", err))
	}
	return services, nil
}

func (s *Service) CreateStylist(ctx context.Context, actor model.Actor, req model.CreateStylistRequest) (*model.Stylist, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	user, err := s.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if user.Role != model.RoleStylist {
		return nil, errors.Field("user_id", "user must have the stylist role")
	}
	if _, err := s.GetBranch(ctx, req.BranchID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	stylist := &model.Stylist{
		ID:          uuid.New(),
		UserID:      req.UserID,
		BranchID:    req.BranchID,
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.stylists.Create(ctx, stylist); err != nil {
		if stderrors.Is(err, repository.ErrConflict) {
			return nil, errors.Conflict("user already has a stylist profile", err)
		}
		return nil, errors.Internal(fmt.Errorf("failed to create stylist: %w", err))
	}

	s.auditor.LogCreate(ctx, "stylists", stylist.ID, stylist)
	return stylist, nil
}

func (s *Service) GetStylist(ctx context.Context, id uuid.UUID) (*model.Stylist, error) {
	stylist, err := s.stylists.Get(ctx, id)
	if err != nil {
		return nil, notFound("stylist", err)
	}
	return stylist, nil
}

// StylistForUser returns the stylist profile of a user, nil when none
func (s *Service) StylistForUser(ctx context.Context, userID uuid.UUID) (*model.Stylist, error) {
	stylist, err := s.stylists.GetByUserID(ctx, userID)
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("failed to load stylist profile: %w", err))
	}
	return stylist, nil
}

func (s *Service) ListStylists(ctx context.Context, branchID *uuid.UUID) ([]*model.Stylist, error) {
	stylists, err := s.stylists.List(ctx, branchID, true)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("failed to list stylists: %w", err))
	}
	return stylists, nil
}
