package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

type Promotion struct {
	ID                 uuid.UUID       `json:"id" db:"id"`
	Code               string          `json:"code" db:"code"`
	Description        string          `json:"description" db:"description"`
	DiscountType       DiscountType    `json:"discount_type" db:"discount_type"`
	DiscountValue      decimal.Decimal `json:"discount_value" db:"discount_value"`
	ValidFrom          *time.Time      `json:"valid_from,omitempty" db:"valid_from"`
	ValidUntil         *time.Time      `json:"valid_until,omitempty" db:"valid_until"`
	UsageLimit         *int            `json:"usage_limit,omitempty" db:"usage_limit"`
	UsageCount         int             `json:"usage_count" db:"usage_count"`
	IsActive           bool            `json:"is_active" db:"is_active"`
	IsPublic           bool            `json:"is_public" db:"is_public"`
	IsFirstBookingOnly bool            `json:"is_first_booking_only" db:"is_first_booking_only"`
	ServiceIDs         UUIDList        `json:"service_ids,omitempty" db:"service_ids"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// InWindow reports whether now falls inside [valid_from, valid_until]
func (p *Promotion) InWindow(now time.Time) bool {
	if p.ValidFrom != nil && now.Before(*p.ValidFrom) {
		return false
	}
	if p.ValidUntil != nil && now.After(*p.ValidUntil) {
		return false
	}
	return true
}

func (p *Promotion) Exhausted() bool {
	return p.UsageLimit != nil && p.UsageCount >= *p.UsageLimit
}

type CreatePromotionRequest struct {
	Code               string          `json:"code" validate:"required,min=3,max=50,alphanum"`
	Description        string          `json:"description" validate:"max=500"`
	DiscountType       DiscountType    `json:"discount_type" validate:"required,oneof=percentage fixed"`
	DiscountValue      decimal.Decimal `json:"discount_value" validate:"gt=0"`
	ValidFrom          *time.Time      `json:"valid_from"`
	ValidUntil         *time.Time      `json:"valid_until"`
	UsageLimit         *int            `json:"usage_limit" validate:"omitempty,min=1"`
	IsPublic           bool            `json:"is_public"`
	IsFirstBookingOnly bool            `json:"is_first_booking_only"`
	ServiceIDs         []uuid.UUID     `json:"service_ids"`
}

type ValidatePromotionRequest struct {
	Code       string          `json:"code" validate:"required,max=50"`
	ServiceIDs []uuid.UUID     `json:"service_ids"`
	Amount     decimal.Decimal `json:"amount" validate:"gte=0"`
}

// PromotionResult is the outcome of evaluating a code
type PromotionResult struct {
	Valid       bool            `json:"valid"`
	Discount    decimal.Decimal `json:"discount"`
	FinalAmount decimal.Decimal `json:"final_amount"`
	Errors      []string        `json:"errors,omitempty"`
	Promotion   *Promotion      `json:"-"`
}
