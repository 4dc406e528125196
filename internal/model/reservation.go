package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusCompleted ReservationStatus = "completed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

func (s ReservationStatus) IsTerminal() bool {
	return s == ReservationStatusCompleted || s == ReservationStatusCancelled
}

type Reservation struct {
	ID                 uuid.UUID         `json:"id" db:"id"`
	ClientID           uuid.UUID         `json:"client_id" db:"client_id"`
	StylistID          *uuid.UUID        `json:"stylist_id,omitempty" db:"stylist_id"`
	ServiceID          uuid.UUID         `json:"service_id" db:"service_id"`
	BranchID           uuid.UUID         `json:"branch_id" db:"branch_id"`
	ScheduledAt        time.Time         `json:"scheduled_at" db:"scheduled_at"`
	DurationMinutes    int               `json:"duration_minutes" db:"duration_minutes"`
	Status             ReservationStatus `json:"status" db:"status"`
	ServicePrice       decimal.Decimal   `json:"service_price" db:"service_price"`
	DiscountAmount     decimal.Decimal   `json:"discount_amount" db:"discount_amount"`
	TotalPrice         decimal.Decimal   `json:"total_price" db:"total_price"`
	PlatformCommission decimal.Decimal   `json:"platform_commission" db:"platform_commission"`
	SalonCommission    decimal.Decimal   `json:"salon_commission" db:"salon_commission"`
	StylistEarnings    decimal.Decimal   `json:"stylist_earnings" db:"stylist_earnings"`
	PromotionID        *uuid.UUID        `json:"promotion_id,omitempty" db:"promotion_id"`
	PromotionCode      *string           `json:"promotion_code,omitempty" db:"promotion_code"`
	PaymentIntentID    *string           `json:"payment_intent_id,omitempty" db:"payment_intent_id"`
	Notes              *string           `json:"notes,omitempty" db:"notes"`
	ConfirmedAt        *time.Time        `json:"confirmed_at,omitempty" db:"confirmed_at"`
	CompletedAt        *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
	CancelledAt        *time.Time        `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelledBy        *uuid.UUID        `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CancellationReason *string           `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CreatedAt          time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at" db:"updated_at"`
}

func (r *Reservation) EndsAt() time.Time {
	return r.ScheduledAt.Add(time.Duration(r.DurationMinutes) * time.Minute)
}

func (r *Reservation) IsAssignedTo(stylistID uuid.UUID) bool {
	return r.StylistID != nil && *r.StylistID == stylistID
}

type CreateReservationRequest struct {
	ServiceID       uuid.UUID        `json:"service_id" validate:"required"`
	StylistID       *uuid.UUID       `json:"stylist_id"`
	ScheduledAt     time.Time        `json:"scheduled_at" validate:"required"`
	PaymentMethodID string           `json:"payment_method_id" validate:"required"`
	Amount          decimal.Decimal  `json:"amount" validate:"gte=0"`
	Tip             *decimal.Decimal `json:"tip" validate:"omitempty,gte=0"`
	PromotionCode   *string          `json:"promotion_code" validate:"omitempty,max=50"`
	Notes           *string          `json:"notes" validate:"omitempty,max=1000"`
}

type CancelReservationRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type RescheduleReservationRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
}

type ReservationFilter struct {
	ClientID  *uuid.UUID
	StylistID *uuid.UUID
	BranchID  *uuid.UUID
	Status    *ReservationStatus
	From      *time.Time
	To        *time.Time
	Pagination
}

// ScheduleScope selects whose calendar a conflict check runs against: a
// stylist, or the unassigned pool of a branch when StylistID is nil.
type ScheduleScope struct {
	BranchID  uuid.UUID
	StylistID *uuid.UUID
}

// LockKey identifies the scope for advisory locking
func (s ScheduleScope) LockKey() string {
	if s.StylistID != nil {
		return "stylist:" + s.StylistID.String()
	}
	return "branch:" + s.BranchID.String()
}

// BookingResult is returned by a successful booking
type BookingResult struct {
	Reservation *Reservation `json:"reservation"`
	Payment     *Payment     `json:"payment"`
	Invoice     *Invoice     `json:"invoice,omitempty"`
}
