package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type HaciendaStatus string

const (
	HaciendaStatusPending  HaciendaStatus = "pending"
	HaciendaStatusSent     HaciendaStatus = "sent"
	HaciendaStatusAccepted HaciendaStatus = "accepted"
	HaciendaStatusRejected HaciendaStatus = "rejected"
)

var haciendaTransitions = map[HaciendaStatus][]HaciendaStatus{
	HaciendaStatusPending:  {HaciendaStatusSent},
	HaciendaStatusSent:     {HaciendaStatusAccepted, HaciendaStatusRejected},
	HaciendaStatusRejected: {HaciendaStatusSent},
}

func (s HaciendaStatus) CanTransition(to HaciendaStatus) bool {
	for _, next := range haciendaTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type Invoice struct {
	ID                 uuid.UUID       `json:"id" db:"id"`
	PaymentID          uuid.UUID       `json:"payment_id" db:"payment_id"`
	BranchID           uuid.UUID       `json:"branch_id" db:"branch_id"`
	DocumentNumber     string          `json:"document_number" db:"document_number"`
	Year               int             `json:"year" db:"year"`
	Sequence           int64           `json:"sequence" db:"sequence"`
	AmountSubtotal     decimal.Decimal `json:"amount_subtotal" db:"amount_subtotal"`
	AmountDiscount     decimal.Decimal `json:"amount_discount" db:"amount_discount"`
	AmountTip          decimal.Decimal `json:"amount_tip" db:"amount_tip"`
	AmountTax          decimal.Decimal `json:"amount_tax" db:"amount_tax"`
	AmountTotal        decimal.Decimal `json:"amount_total" db:"amount_total"`
	Currency           string          `json:"currency" db:"currency"`
	HaciendaStatus     HaciendaStatus  `json:"hacienda_status" db:"hacienda_status"`
	HaciendaMessage    *string         `json:"hacienda_message,omitempty" db:"hacienda_message"`
	HaciendaSentAt     *time.Time      `json:"hacienda_sent_at,omitempty" db:"hacienda_sent_at"`
	IsCancelled        bool            `json:"is_cancelled" db:"is_cancelled"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancellationReason *string         `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	IssuedAt           time.Time       `json:"issued_at" db:"issued_at"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// FormatDocumentNumber renders INV-{yyyy}-{branch:3}-{sequence:8}
func FormatDocumentNumber(year, branchCode int, sequence int64) string {
	return fmt.Sprintf("INV-%04d-%03d-%08d", year, branchCode, sequence)
}

type HaciendaStatusRequest struct {
	Status  HaciendaStatus `json:"status" validate:"required,oneof=sent accepted rejected"`
	Message *string        `json:"message" validate:"omitempty,max=1000"`
}

type CancelInvoiceRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type InvoiceFilter struct {
	BranchID       *uuid.UUID
	HaciendaStatus *HaciendaStatus
	From           *time.Time
	To             *time.Time
	Pagination
}
