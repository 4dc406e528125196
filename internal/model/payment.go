package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusCompleted         PaymentStatus = "completed"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:           {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusFailed:            {PaymentStatusCompleted},
	PaymentStatusCompleted:         {PaymentStatusRefunded, PaymentStatusPartiallyRefunded},
	PaymentStatusPartiallyRefunded: {PaymentStatusPartiallyRefunded, PaymentStatusRefunded},
}

// CanTransition guards concurrent writers (webhooks, user confirms, refunds)
// against moving a payment backwards, e.g. refunded -> completed.
func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	for _, next := range paymentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s PaymentStatus) IsRefundable() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusPartiallyRefunded
}

const (
	PaymentMethodCard     = "card"
	PaymentProviderStripe = "stripe"
)

type Payment struct {
	ID                 uuid.UUID       `json:"id" db:"id"`
	TransactionCode    string          `json:"transaction_code" db:"transaction_code"`
	ReservationID      *uuid.UUID      `json:"reservation_id,omitempty" db:"reservation_id"`
	UserID             uuid.UUID       `json:"user_id" db:"user_id"`
	BranchID           uuid.UUID       `json:"branch_id" db:"branch_id"`
	AmountSubtotal     decimal.Decimal `json:"amount_subtotal" db:"amount_subtotal"`
	AmountTip          decimal.Decimal `json:"amount_tip" db:"amount_tip"`
	AmountDiscount     decimal.Decimal `json:"amount_discount" db:"amount_discount"`
	AmountTax          decimal.Decimal `json:"amount_tax" db:"amount_tax"`
	AmountTotal        decimal.Decimal `json:"amount_total" db:"amount_total"`
	CommissionPlatform decimal.Decimal `json:"commission_platform" db:"commission_platform"`
	AmountBranch       decimal.Decimal `json:"amount_branch" db:"amount_branch"`
	AmountStylist      decimal.Decimal `json:"amount_stylist" db:"amount_stylist"`
	Currency           string          `json:"currency" db:"currency"`
	Method             string          `json:"method" db:"method"`
	Provider           string          `json:"provider" db:"provider"`
	ProviderIntentID   *string         `json:"provider_intent_id,omitempty" db:"provider_intent_id"`
	ProviderChargeID   *string         `json:"provider_charge_id,omitempty" db:"provider_charge_id"`
	Status             PaymentStatus   `json:"status" db:"status"`
	RefundAmount       decimal.Decimal `json:"refund_amount" db:"refund_amount"`
	RefundReason       *string         `json:"refund_reason,omitempty" db:"refund_reason"`
	RefundedAt         *time.Time      `json:"refunded_at,omitempty" db:"refunded_at"`
	FailureReason      *string         `json:"failure_reason,omitempty" db:"failure_reason"`
	PaidAt             *time.Time      `json:"paid_at,omitempty" db:"paid_at"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// NewTransactionCode returns a human readable payment reference
func NewTransactionCode() string {
	return "TXN-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// Refundable is what is left to refund
func (p *Payment) Refundable() decimal.Decimal {
	return p.AmountTotal.Sub(p.RefundAmount)
}

type CreateIntentRequest struct {
	ReservationID   *uuid.UUID      `json:"reservation_id"`
	BranchID        *uuid.UUID      `json:"branch_id"`
	Amount          decimal.Decimal `json:"amount" validate:"gt=0"`
	PaymentMethodID *string         `json:"payment_method_id"`
}

type ConfirmIntentRequest struct {
	PaymentIntentID string `json:"payment_intent_id" validate:"required"`
	PaymentMethodID string `json:"payment_method_id" validate:"required"`
}

type RefundRequest struct {
	Amount *decimal.Decimal `json:"amount" validate:"omitempty,gt=0"`
	Reason string           `json:"reason" validate:"max=500"`
}
