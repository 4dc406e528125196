package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Channel is the broker channel outbox events are relayed on
const Channel = "salon.events"

type EventType string

const (
	ReservationCreated     EventType = "reservation.created"
	ReservationConfirmed   EventType = "reservation.confirmed"
	ReservationCompleted   EventType = "reservation.completed"
	ReservationRescheduled EventType = "reservation.rescheduled"
	ReservationCancelled   EventType = "reservation.cancelled"
	PaymentCompleted       EventType = "payment.completed"
	PaymentFailed          EventType = "payment.failed"
	PaymentRefunded        EventType = "payment.refunded"
	InvoiceIssued          EventType = "invoice.issued"
)

// Envelope is the message published for every outbox row
type Envelope struct {
	ID          uuid.UUID       `json:"id"`
	Type        EventType       `json:"type"`
	AggregateID uuid.UUID       `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     json.RawMessage `json:"payload"`
}

// ReservationPayload describes a reservation state change
type ReservationPayload struct {
	ReservationID uuid.UUID  `json:"reservation_id"`
	ClientID      uuid.UUID  `json:"client_id"`
	StylistUserID *uuid.UUID `json:"stylist_user_id,omitempty"`
	ActorID       *uuid.UUID `json:"actor_id,omitempty"`
	ServiceName   string     `json:"service_name"`
	ScheduledAt   time.Time  `json:"scheduled_at"`
	PreviousAt    *time.Time `json:"previous_at,omitempty"`
	Status        string     `json:"status"`
	Reason        string     `json:"reason,omitempty"`
}

// PaymentPayload describes a payment state change
type PaymentPayload struct {
	PaymentID     uuid.UUID       `json:"payment_id"`
	ReservationID *uuid.UUID      `json:"reservation_id,omitempty"`
	UserID        uuid.UUID       `json:"user_id"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	RefundAmount  decimal.Decimal `json:"refund_amount"`
	Currency      string          `json:"currency"`
}

// InvoicePayload describes an issued invoice
type InvoicePayload struct {
	InvoiceID      uuid.UUID `json:"invoice_id"`
	PaymentID      uuid.UUID `json:"payment_id"`
	DocumentNumber string    `json:"document_number"`
}
