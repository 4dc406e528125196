// Package promotion validates discount codes and tracks their usage.
package promotion

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
	"github.com/jwalitptl/salon-api/internal/service/audit"
	"github.com/jwalitptl/salon-api/pkg/clock"
	"github.com/jwalitptl/salon-api/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// Rejection reasons reported in PromotionResult.Errors
const (
	ReasonNotFound          = "promotion code not found"
	ReasonInactive          = "promotion is not active"
	ReasonOutsideWindow     = "promotion is not valid at this time"
	ReasonExhausted         = "promotion usage limit reached"
	ReasonFirstBookingOnly  = "promotion is only valid for a first booking"
	ReasonServiceNotCovered = "promotion does not apply to the selected services"
)

type Service struct {
	promotions   repository.PromotionRepository
	reservations repository.ReservationRepository
	auditor      *audit.Recorder
	clock        clock.Clock
}

func NewService(repos *repository.Repositories, auditor *audit.Recorder, clk clock.Clock) *Service {
	return &Service{
		promotions:   repos.Promotions,
		reservations: repos.Reservations,
		auditor:      auditor,
		clock:        clk,
	}
}

// NormalizeCode is applied on write and on lookup
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Discount computes the discount of p on amount, never more than amount
func Discount(p *model.Promotion, amount decimal.Decimal) decimal.Decimal {
	if amount.Sign() <= 0 {
		return decimal.Zero
	}
	var d decimal.Decimal
	switch p.DiscountType {
	case model.DiscountTypePercentage:
		d = amount.Mul(p.DiscountValue).Div(hundred).Round(2)
	case model.DiscountTypeFixed:
		d = p.DiscountValue
	}
	return decimal.Max(decimal.Min(d, amount), decimal.Zero)
}

// Evaluate checks code for userID without consuming it. Business
// rejections come back in the result; the error is for infrastructure
// failures only.
func (s *Service) Evaluate(ctx context.Context, code string, userID uuid.UUID, serviceIDs []uuid.UUID, amount decimal.Decimal) (*model.PromotionResult, error) {
	reject := func(reasons ...string) *model.PromotionResult {
		return &model.PromotionResult{
			Valid:       false,
			Discount:    decimal.Zero,
			FinalAmount: amount,
			Errors:      reasons,
		}
	}

	p, err := s.promotions.GetByCode(ctx, NormalizeCode(code))
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return reject(ReasonNotFound), nil
		}
		return nil, errors.Internal(fmt.Errorf("failed to load promotion: %w", err))
	}

	var reasons []string
	if !p.IsActive {
		reasons = append(reasons, ReasonInactive)
	}
	if !p.InWindow(s.clock.Now()) {
		reasons = append(reasons, ReasonOutsideWindow)
	}
	if p.Exhausted() {
		reasons = append(reasons, ReasonExhausted)
	}
	if len(p.ServiceIDs) > 0 && !coversAny(p.ServiceIDs, serviceIDs) {
		reasons = append(reasons, ReasonServiceNotCovered)
	}
	if p.IsFirstBookingOnly {
		completed, err := s.reservations.CountCompletedByClient(ctx, userID)
		if err != nil {
			return nil, errors.Internal(fmt.Errorf("failed to count bookings: %w", err))
		}
		if completed > 0 {
			reasons = append(reasons, ReasonFirstBookingOnly)
		}
	}
	if len(reasons) > 0 {
		res := reject(reasons...)
		res.Promotion = p
		return res, nil
	}

	discount := Discount(p, amount)
	return &model.PromotionResult{
		Valid:       true,
		Discount:    discount,
		FinalAmount: decimal.Max(amount.Sub(discount), decimal.Zero),
		Promotion:   p,
	}, nil
}

func coversAny(allowed model.UUIDList, requested []uuid.UUID) bool {
	for _, id := range requested {
		if allowed.Contains(id) {
			return true
		}
	}
	return false
}

func (s *Service) Validate(ctx context.Context, actor model.Actor, req model.ValidatePromotionRequest) (*model.PromotionResult, error) {
	if NormalizeCode(req.Code) == "" {
		return nil, errors.Field("code", "is required")
	}
	if req.Amount.Sign() < 0 {
		return nil, errors.Field("amount", "must not be negative")
	}
	return s.Evaluate(ctx, req.Code, actor.UserID, req.ServiceIDs, req.Amount)
}

// Redeem consumes one use of the promotion. Call it inside the booking
// transaction so a rolled back booking gives the use back.
func (s *Service) Redeem(ctx context.Context, id uuid.UUID) error {
	if err := s.promotions.IncrementUsage(ctx, id); err != nil {
		if stderrors.Is(err, repository.ErrLimitReached) {
			return errors.Conflict(ReasonExhausted, err)
		}
		if stderrors.Is(err, repository.ErrNotFound) {
			return errors.NotFound("promotion", err)
		}
		return errors.Internal(fmt.Errorf("failed to redeem promotion: %w", err))
	}
	return nil
}

func (s *Service) Create(ctx context.Context, actor model.Actor, req model.CreatePromotionRequest) (*model.Promotion, error) {
	if !actor.IsAdmin() {
		return nil, errors.Forbidden("only administrators can create promotions")
	}
	code := NormalizeCode(req.Code)
	if code == "" {
		return nil, errors.Field("code", "is required")
	}
	if req.DiscountValue.Sign() <= 0 {
		return nil, errors.Field("discount_value", "must be greater than 0")
	}
	if req.DiscountType == model.DiscountTypePercentage && req.DiscountValue.GreaterThan(hundred) {
		return nil, errors.Field("discount_value", "percentage cannot exceed 100")
	}
	if req.ValidFrom != nil && req.ValidUntil != nil && req.ValidUntil.Before(*req.ValidFrom) {
		return nil, errors.Field("valid_until", "must be after valid_from")
	}

	now := s.clock.Now()
	p := &model.Promotion{
		ID:                 uuid.New(),
		Code:               code,
		Description:        req.Description,
		DiscountType:       req.DiscountType,
		DiscountValue:      req.DiscountValue.Round(2),
		ValidFrom:          req.ValidFrom,
		ValidUntil:         req.ValidUntil,
		UsageLimit:         req.UsageLimit,
		IsActive:           true,
		IsPublic:           req.IsPublic,
		IsFirstBookingOnly: req.IsFirstBookingOnly,
		ServiceIDs:         model.UUIDList(req.ServiceIDs),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.promotions.Create(ctx, p); err != nil {
		if stderrors.Is(err, repository.ErrConflict) {
			return nil, errors.Conflict("promotion code already exists", err)
		}
		return nil, errors.Internal(fmt.Errorf("failed to create promotion: %w", err))
	}

	s.auditor.LogCreate(ctx, "promotions", p.ID, p)
	return p, nil
}

func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Promotion, error) {
	if !actor.IsAdmin() {
		return nil, errors.Forbidden("only administrators can view promotions")
	}
	p, err := s.promotions.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("promotion", err)
		}
		return nil, errors.Internal(fmt.Errorf("failed to load promotion: %w", err))
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, actor model.Actor) ([]*model.Promotion, error) {
	if !actor.IsAdmin() {
		return nil, errors.Forbidden("only administrators can list promotions")
	}
	promotions, err := s.promotions.List(ctx, false)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("failed to list promotions: %w", err))
	}
	return promotions, nil
}

// ListPublic returns the public promotions a client can use right now
func (s *Service) ListPublic(ctx context.Context) ([]*model.Promotion, error) {
	promotions, err := s.promotions.List(ctx, true)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("failed to list promotions: %w", err))
	}
	now := s.clock.Now()
	out := make([]*model.Promotion, 0, len(promotions))
	for _, p := range promotions {
		if p.IsActive && p.InWindow(now) && !p.Exhausted() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Service) Deactivate(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Promotion, error) {
	p, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return p, nil
	}

	before := *p
	p.IsActive = false
	p.UpdatedAt = s.clock.Now()
	if err := s.promotions.Update(ctx, p); err != nil {
		return nil, errors.Internal(fmt.Errorf("failed to deactivate promotion: %w", err))
	}

	s.auditor.LogUpdate(ctx, "promotions", p.ID, before, p)
	return p, nil
}
