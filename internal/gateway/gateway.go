// Package gateway isolates the card processor behind a small interface.
// Amounts cross the boundary in cents.
package gateway

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidSignature is returned for webhooks that fail verification
	ErrInvalidSignature = errors.New("gateway: invalid webhook signature")

	// ErrUnavailable is returned while the circuit breaker is open
	ErrUnavailable = errors.New("gateway: payment provider unavailable")
)

type IntentStatus string

const (
	IntentSucceeded             IntentStatus = "succeeded"
	IntentProcessing            IntentStatus = "processing"
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentRequiresAction        IntentStatus = "requires_action"
	IntentCanceled              IntentStatus = "canceled"
)

// Webhook event types reconciled onto local records
const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
	EventChargeRefunded  = "charge.refunded"
)

type Intent struct {
	ID             string
	ClientSecret   string
	Status         IntentStatus
	AmountCents    int64
	Currency       string
	ChargeID       string
	FailureMessage string
}

func (i *Intent) Succeeded() bool {
	return i.Status == IntentSucceeded
}

type CreateIntentParams struct {
	AmountCents     int64
	Currency        string
	PaymentMethodID string
	// Confirm charges immediately; requires PaymentMethodID
	Confirm        bool
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

type RefundParams struct {
	IntentID string
	// AmountCents of zero refunds the remaining balance
	AmountCents    int64
	Reason         string
	IdempotencyKey string
}

type Refund struct {
	ID          string
	AmountCents int64
	Status      string
}

// WebhookEvent is a verified provider event reduced to what reconciliation
// needs. AmountRefundedCents is cumulative, as reported by the provider.
type WebhookEvent struct {
	ID                  string
	Type                string
	IntentID            string
	ChargeID            string
	AmountCents         int64
	AmountRefundedCents int64
	FailureMessage      string
	// Metadata echoes CreateIntentParams.Metadata for intent events
	Metadata            map[string]string
}

type Gateway interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error)
	ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (*Intent, error)
	Refund(ctx context.Context, params RefundParams) (*Refund, error)
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// ProviderError carries a message that is safe to show to the caller
type ProviderError struct {
	Message string
	// Declined is set for card errors, which are not provider failures
	Declined bool
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// PublicMessage extracts the caller-safe message of a gateway error
func PublicMessage(err error) string {
	var perr *ProviderError
	if errors.As(err, &perr) && perr.Message != "" {
		return perr.Message
	}
	if errors.Is(err, ErrUnavailable) {
		return "payment provider is temporarily unavailable"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "payment provider timed out"
	}
	return "payment could not be processed"
}

// IsDecline reports whether err is a card decline
func IsDecline(err error) bool {
	var perr *ProviderError
	return errors.As(err, &perr) && perr.Declined
}
