package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/salon-api/internal/gateway"
	"github.com/jwalitptl/salon-api/internal/gateway/fake"
	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
	eventsvc "github.com/jwalitptl/salon-api/internal/service/event"
	"github.com/jwalitptl/salon-api/internal/service/invoice"
	"github.com/jwalitptl/salon-api/internal/service/servicetest"
	"github.com/jwalitptl/salon-api/pkg/errors"
	"github.com/jwalitptl/salon-api/pkg/event"
	"github.com/jwalitptl/salon-api/pkg/logger"
)

type env struct {
	*servicetest.Fixture
	gw  *fake.Gateway
	svc *Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWithLogger(t, nil)
}

// newEnvWithLogger builds the service on log, or the fixture's logger when nil
func newEnvWithLogger(t *testing.T, log *logger.Logger) *env {
	t.Helper()
	f := servicetest.New(t)
	if log == nil {
		log = f.Log
	}
	gw := fake.New("whsec_test")
	emitter := eventsvc.NewEmitter(f.Repos.Outbox, f.Clock)

	svc := NewService(Deps{
		Repos:    f.Repos,
		Catalog:  f.Catalog,
		Invoices: invoice.NewService(f.Repos, f.Catalog, emitter, f.Auditor, f.Clock),
		Gateway:  gw,
		Emitter:  emitter,
		Auditor:  f.Auditor,
		Clock:    f.Clock,
		Metrics:  f.Metrics,
		Logger:   log,
	}, Config{})
	return &env{Fixture: f, gw: gw, svc: svc}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// pending seeds an unpaid reservation for the default client
func (e *env) pending(t *testing.T) *model.Reservation {
	return e.Seed(t, &model.Reservation{
		StylistID:   &e.Stylist.ID,
		ScheduledAt: e.Clock.Now().Add(72 * time.Hour),
		Status:      model.ReservationStatusPending,
	})
}

// paid runs a synchronous card payment for a fresh pending reservation
func (e *env) paid(t *testing.T) *model.Payment {
	t.Helper()
	res := e.pending(t)
	result, err := e.svc.CreateIntent(context.Background(), e.Client, model.CreateIntentRequest{
		ReservationID:   &res.ID,
		Amount:          dec("50.00"),
		PaymentMethodID: servicetest.Ptr("pm_card_visa"),
	})
	require.NoError(t, err)
	require.Equal(t, model.PaymentStatusCompleted, result.Payment.Status)
	return result.Payment
}

func (e *env) webhook(t *testing.T, evt gateway.WebhookEvent) error {
	t.Helper()
	body, err := json.Marshal(evt)
	require.NoError(t, err)
	parsed, err := e.svc.ParseWebhook(body, e.gw.Sign(body))
	require.NoError(t, err)
	return e.svc.HandleEvent(context.Background(), parsed)
}

func (e *env) count(eventType event.EventType) int {
	n := 0
	for _, evt := range e.Store.Events() {
		if evt.EventType == string(eventType) {
			n++
		}
	}
	return n
}

func TestCreateIntentThenWebhook(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.pending(t)

	result, err := e.svc.CreateIntent(ctx, e.Client, model.CreateIntentRequest{ReservationID: &res.ID, Amount: dec("55.00")})
	require.NoError(t, err)
	p := result.Payment
	assert.Equal(t, model.PaymentStatusPending, p.Status)
	assert.Equal(t, string(gateway.IntentRequiresPaymentMethod), result.Status)
	assert.NotEmpty(t, result.ClientSecret)
	assert.True(t, p.AmountTip.Equal(dec("5.00")))
	assert.True(t, p.AmountTotal.Equal(dec("55.00")))
	assert.True(t, p.CommissionPlatform.Add(p.AmountBranch).Add(p.AmountStylist).Equal(p.AmountTotal))

	succeeded := gateway.WebhookEvent{ID: "evt_1", Type: gateway.EventIntentSucceeded, IntentID: *p.ProviderIntentID, ChargeID: "ch_1", AmountCents: 5500}
	require.NoError(t, e.webhook(t, succeeded))

	stored, err := e.Repos.Payments.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, stored.Status)
	assert.Equal(t, "ch_1", *stored.ProviderChargeID)
	assert.NotNil(t, stored.PaidAt)

	confirmed, err := e.Repos.Reservations.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationStatusConfirmed, confirmed.Status)

	inv, err := e.Repos.Invoices.GetByPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-2025-001-00000001", inv.DocumentNumber)

	// replays change nothing
	require.NoError(t, e.webhook(t, succeeded))
	require.NoError(t, e.webhook(t, succeeded))
	assert.Equal(t, 1, e.count(event.PaymentCompleted))
	assert.Equal(t, 1, e.count(event.ReservationConfirmed))
	assert.Equal(t, 1, e.count(event.InvoiceIssued))
}

func TestCreateIntentRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.pending(t)

	_, err := e.svc.CreateIntent(ctx, e.OtherClient, model.CreateIntentRequest{ReservationID: &res.ID, Amount: dec("50.00")})
	assert.True(t, errors.IsKind(err, errors.KindForbidden))

	_, err = e.svc.CreateIntent(ctx, e.Client, model.CreateIntentRequest{ReservationID: &res.ID, Amount: dec("49.99")})
	assert.True(t, errors.IsKind(err, errors.KindValidation))

	_, err = e.svc.CreateIntent(ctx, e.Client, model.CreateIntentRequest{ReservationID: &res.ID, Amount: dec("50.00")})
	require.NoError(t, err)
	_, err = e.svc.CreateIntent(ctx, e.Client, model.CreateIntentRequest{ReservationID: &res.ID, Amount: dec("50.00")})
	assert.True(t, errors.IsKind(err, errors.KindConflict))

	_, err = e.svc.CreateIntent(ctx, e.Client, model.CreateIntentRequest{Amount: dec("10.00")})
	assert.True(t, errors.IsKind(err, errors.KindValidation))

	walkIn, err := e.svc.CreateIntent(ctx, e.Client, model.CreateIntentRequest{BranchID: &e.Branch.ID, Amount: dec("20.00")})
	require.NoError(t, err)
	assert.Nil(t, walkIn.Payment.ReservationID)
	assert.True(t, walkIn.Payment.AmountStylist.IsZero())
	assert.True(t, walkIn.Payment.AmountBranch.Equal(dec("18.00")))
}

func TestFailedWebhookCancelsReservation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.pending(t)

	result, err := e.svc.CreateIntent(ctx, e.Client, model.CreateIntentRequest{ReservationID: &res.ID, Amount: dec("50.00")})
	require.NoError(t, err)

	failed := gateway.WebhookEvent{ID: "evt_f", Type: gateway.EventIntentFailed, IntentID: *result.Payment.ProviderIntentID, FailureMessage: "Your card was declined."}
	require.NoError(t, e.webhook(t, failed))
	require.NoError(t, e.webhook(t, failed))

	stored, err := e.Repos.Payments.Get(ctx, result.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusFailed, stored.Status)
	assert.Equal(t, "Your card was declined.", *stored.FailureReason)

	cancelled, err := e.Repos.Reservations.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationStatusCancelled, cancelled.Status)
	assert.Equal(t, "payment failed", *cancelled.CancellationReason)
	assert.Equal(t, 1, e.count(event.PaymentFailed))
	assert.Equal(t, 1, e.count(event.ReservationCancelled))
}

func TestConfirmIntentDecline(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.pending(t)

	result, err := e.svc.CreateIntent(ctx, e.Client, model.CreateIntentRequest{ReservationID: &res.ID, Amount: dec("50.00")})
	require.NoError(t, err)
	intentID := *result.Payment.ProviderIntentID

	_, err = e.svc.ConfirmIntent(ctx, e.OtherClient, model.ConfirmIntentRequest{PaymentIntentID: intentID, PaymentMethodID: "pm_card_visa"})
	assert.True(t, errors.IsKind(err, errors.KindForbidden))

	_, err = e.svc.ConfirmIntent(ctx, e.Client, model.ConfirmIntentRequest{PaymentIntentID: intentID, PaymentMethodID: "pm_card_chargeDeclined"})
	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.KindGateway, appErr.Kind)
	assert.Equal(t, "Your card was declined.", appErr.Message)

	stored, err := e.Repos.Payments.Get(ctx, result.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusFailed, stored.Status)
}

func TestConfirmIntentSucceeds(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.pending(t)

	result, err := e.svc.CreateIntent(ctx, e.Client, model.CreateIntentRequest{ReservationID: &res.ID, Amount: dec("50.00")})
	require.NoError(t, err)

	p, err := e.svc.ConfirmIntent(ctx, e.Client, model.ConfirmIntentRequest{PaymentIntentID: *result.Payment.ProviderIntentID, PaymentMethodID: "pm_card_visa"})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, p.Status)

	// a late webhook for the same intent is a no-op
	require.NoError(t, e.webhook(t, gateway.WebhookEvent{Type: gateway.EventIntentSucceeded, IntentID: *p.ProviderIntentID}))
	assert.Equal(t, 1, e.count(event.PaymentCompleted))
}

func TestRefundCannotExceedTotal(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.paid(t)

	_, err := e.svc.Refund(ctx, e.Client, p.ID, model.RefundRequest{})
	assert.True(t, errors.IsKind(err, errors.KindForbidden))

	partial, err := e.svc.Refund(ctx, e.Admin, p.ID, model.RefundRequest{Amount: servicetest.Ptr(dec("30.00")), Reason: "late stylist"})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPartiallyRefunded, partial.Status)
	assert.True(t, partial.RefundAmount.Equal(dec("30.00")))

	_, err = e.svc.Refund(ctx, e.Admin, p.ID, model.RefundRequest{Amount: servicetest.Ptr(dec("25.00"))})
	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.KindValidation, appErr.Kind)
	assert.Contains(t, appErr.Fields["amount"], "20.00")

	stored, err := e.Repos.Payments.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, stored.RefundAmount.Equal(dec("30.00")))

	// the provider echoes the cumulative refund back
	require.NoError(t, e.webhook(t, gateway.WebhookEvent{Type: gateway.EventChargeRefunded, IntentID: *p.ProviderIntentID, AmountRefundedCents: 3000}))
	assert.Equal(t, 1, e.count(event.PaymentRefunded))

	full, err := e.svc.Refund(ctx, e.Admin, p.ID, model.RefundRequest{})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefunded, full.Status)
	assert.True(t, full.RefundAmount.Equal(dec("50.00")))

	_, err = e.svc.Refund(ctx, e.Admin, p.ID, model.RefundRequest{})
	assert.True(t, errors.IsKind(err, errors.KindPolicy))
	assert.Len(t, e.gw.Refunds, 2)
}

func TestRefundedPaymentCannotComplete(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.paid(t)

	_, err := e.svc.Refund(ctx, e.Admin, p.ID, model.RefundRequest{})
	require.NoError(t, err)

	require.NoError(t, e.webhook(t, gateway.WebhookEvent{Type: gateway.EventIntentSucceeded, IntentID: *p.ProviderIntentID}))
	require.NoError(t, e.webhook(t, gateway.WebhookEvent{Type: gateway.EventIntentFailed, IntentID: *p.ProviderIntentID}))

	stored, err := e.Repos.Payments.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefunded, stored.Status)
}

func TestWebhookForUnknownIntentIsIgnored(t *testing.T) {
	e := newEnv(t)
	assert.NoError(t, e.webhook(t, gateway.WebhookEvent{Type: gateway.EventIntentSucceeded, IntentID: "pi_missing"}))
	assert.Empty(t, e.Store.Events())
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.ParseWebhook([]byte(`{"Type":"payment_intent.succeeded"}`), "bogus")
	assert.ErrorIs(t, err, gateway.ErrInvalidSignature)
}

func TestWebhookProcessorDrainsOnShutdown(t *testing.T) {
	e := newEnv(t)
	res := e.pending(t)
	result, err := e.svc.CreateIntent(context.Background(), e.Client, model.CreateIntentRequest{ReservationID: &res.ID, Amount: dec("50.00")})
	require.NoError(t, err)

	proc := NewWebhookProcessor(e.svc, 4, e.Log, e.Metrics)
	require.True(t, proc.Enqueue(&gateway.WebhookEvent{Type: gateway.EventIntentSucceeded, IntentID: *result.Payment.ProviderIntentID}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	proc.Start(ctx, 2)

	stored, err := e.Repos.Payments.Get(context.Background(), result.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, stored.Status)
}

func TestWebhookProcessorQueueFull(t *testing.T) {
	e := newEnv(t)
	proc := NewWebhookProcessor(e.svc, 1, e.Log, e.Metrics)
	assert.True(t, proc.Enqueue(&gateway.WebhookEvent{}))
	assert.False(t, proc.Enqueue(&gateway.WebhookEvent{}))
}

func TestConfirmIntentRetryAfterDeclineIsRefused(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.pending(t)

	result, err := e.svc.CreateIntent(ctx, e.Client, model.CreateIntentRequest{ReservationID: &res.ID, Amount: dec("50.00")})
	require.NoError(t, err)
	intentID := *result.Payment.ProviderIntentID

	_, err = e.svc.ConfirmIntent(ctx, e.Client, model.ConfirmIntentRequest{PaymentIntentID: intentID, PaymentMethodID: "pm_card_chargeDeclined"})
	require.True(t, errors.IsKind(err, errors.KindGateway))

	_, err = e.svc.ConfirmIntent(ctx, e.Client, model.ConfirmIntentRequest{PaymentIntentID: intentID, PaymentMethodID: "pm_card_visa"})
	assert.True(t, errors.IsKind(err, errors.KindPolicy))

	stored, err := e.Repos.Payments.Get(ctx, result.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusFailed, stored.Status)

	cancelled, err := e.Repos.Reservations.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationStatusCancelled, cancelled.Status)

	_, err = e.Repos.Invoices.GetByPayment(ctx, result.Payment.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Zero(t, e.count(event.PaymentCompleted))
}

func TestLateSuccessForCancelledReservationIsRefunded(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	res := e.pending(t)

	result, err := e.svc.CreateIntent(ctx, e.Client, model.CreateIntentRequest{ReservationID: &res.ID, Amount: dec("50.00")})
	require.NoError(t, err)
	intentID := *result.Payment.ProviderIntentID

	require.NoError(t, e.webhook(t, gateway.WebhookEvent{ID: "evt_f", Type: gateway.EventIntentFailed, IntentID: intentID}))

	// the client completes the intent at the provider after the decline
	intent, err := e.gw.ConfirmIntent(ctx, intentID, "pm_card_visa")
	require.NoError(t, err)
	require.NoError(t, e.webhook(t, gateway.WebhookEvent{ID: "evt_s", Type: gateway.EventIntentSucceeded, IntentID: intentID, ChargeID: intent.ChargeID, AmountCents: 5000}))

	stored, err := e.Repos.Payments.Get(ctx, result.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefunded, stored.Status)
	assert.True(t, stored.RefundAmount.Equal(dec("50.00")))

	cancelled, err := e.Repos.Reservations.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationStatusCancelled, cancelled.Status)

	require.Len(t, e.gw.Refunds, 1)
	assert.Equal(t, int64(5000), e.gw.Refunds[0].AmountCents)
	_, err = e.Repos.Invoices.GetByPayment(ctx, result.Payment.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Zero(t, e.count(event.PaymentCompleted))
	assert.Zero(t, e.count(event.ReservationConfirmed))
	assert.Equal(t, 1, e.count(event.PaymentRefunded))

	// a replay finds the payment refunded and does nothing
	require.NoError(t, e.webhook(t, gateway.WebhookEvent{ID: "evt_s", Type: gateway.EventIntentSucceeded, IntentID: intentID}))
	assert.Len(t, e.gw.Refunds, 1)
}

func TestUnrecordedBookingChargeIsLoggedAsError(t *testing.T) {
	var buf bytes.Buffer
	e := newEnvWithLogger(t, logger.NewLogger(&logger.Config{Level: logger.DebugLevel, Output: &buf, JSON: true}))

	require.NoError(t, e.webhook(t, gateway.WebhookEvent{
		Type:        gateway.EventIntentSucceeded,
		IntentID:    "pi_lost",
		AmountCents: 5000,
		Metadata:    map[string]string{"reservation_id": "7c1f9a52-0d4e-4c1b-9a57-3f7f0a1e2b6d"},
	}))
	require.NoError(t, e.webhook(t, gateway.WebhookEvent{Type: gateway.EventIntentFailed, IntentID: "pi_other"}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var levels []string
	for _, line := range lines {
		var entry struct {
			Level    string `json:"level"`
			IntentID string `json:"intent_id"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry.IntentID != "" {
			levels = append(levels, entry.IntentID+":"+entry.Level)
		}
	}
	assert.Equal(t, []string{"pi_lost:error", "pi_other:warn"}, levels)
	assert.Empty(t, e.Store.Events())
}

func TestWebhookProcessorRefusesEventsAfterStop(t *testing.T) {
	e := newEnv(t)
	res := e.pending(t)
	result, err := e.svc.CreateIntent(context.Background(), e.Client, model.CreateIntentRequest{ReservationID: &res.ID, Amount: dec("50.00")})
	require.NoError(t, err)

	proc := NewWebhookProcessor(e.svc, 4, e.Log, e.Metrics)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	proc.Start(ctx, 1)

	evt := &gateway.WebhookEvent{Type: gateway.EventIntentSucceeded, IntentID: *result.Payment.ProviderIntentID}
	require.False(t, proc.Enqueue(evt))

	// the handler falls back to applying inline
	proc.Process(context.Background(), evt)
	stored, err := e.Repos.Payments.Get(context.Background(), result.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCompleted, stored.Status)
}
