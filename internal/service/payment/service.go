// Package payment creates and confirms card payments, reconciles gateway
// webhooks onto local payments and reservations, and issues refunds.
package payment

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jwalitptl/salon-api/internal/gateway"
	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
	"github.com/jwalitptl/salon-api/internal/service/audit"
	"github.com/jwalitptl/salon-api/internal/service/catalog"
	eventsvc "github.com/jwalitptl/salon-api/internal/service/event"
	"github.com/jwalitptl/salon-api/internal/service/invoice"
	"github.com/jwalitptl/salon-api/internal/service/pricing"
	"github.com/jwalitptl/salon-api/pkg/clock"
	"github.com/jwalitptl/salon-api/pkg/errors"
	"github.com/jwalitptl/salon-api/pkg/event"
	"github.com/jwalitptl/salon-api/pkg/logger"
	"github.com/jwalitptl/salon-api/pkg/metrics"
)

type Config struct {
	Rates          pricing.Rates
	Currency       string
	GatewayTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.Rates == (pricing.Rates{}) {
		c.Rates = pricing.DefaultRates()
	}
	if c.Currency == "" {
		c.Currency = "usd"
	}
	if c.GatewayTimeout <= 0 {
		c.GatewayTimeout = 15 * time.Second
	}
}

type Service struct {
	tx           repository.TxManager
	payments     repository.PaymentRepository
	reservations repository.ReservationRepository
	catalog      *catalog.Service
	invoices     *invoice.Service
	gateway      gateway.Gateway
	emitter      *eventsvc.Emitter
	auditor      *audit.Recorder
	clock        clock.Clock
	metrics      *metrics.Metrics
	log          *logger.Logger
	cfg          Config
}

type Deps struct {
	Repos    *repository.Repositories
	Catalog  *catalog.Service
	Invoices *invoice.Service
	Gateway  gateway.Gateway
	Emitter  *eventsvc.Emitter
	Auditor  *audit.Recorder
	Clock    clock.Clock
	Metrics  *metrics.Metrics
	Logger   *logger.Logger
}

func NewService(d Deps, cfg Config) *Service {
	cfg.setDefaults()
	return &Service{
		tx:           d.Repos.Tx,
		payments:     d.Repos.Payments,
		reservations: d.Repos.Reservations,
		catalog:      d.Catalog,
		invoices:     d.Invoices,
		gateway:      d.Gateway,
		emitter:      d.Emitter,
		auditor:      d.Auditor,
		clock:        d.Clock,
		metrics:      d.Metrics,
		log:          d.Logger.WithComponent("payment"),
		cfg:          cfg,
	}
}

// IntentResult carries what the client needs to finish the payment
type IntentResult struct {
	Payment      *model.Payment `json:"payment"`
	ClientSecret string         `json:"client_secret"`
	Status       string         `json:"status"`
}

func (s *Service) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.GatewayTimeout)
}

// CreateIntent opens a payment intent and stores a pending payment. When a
// reservation is given it must be the caller's, pending and unpaid; any
// amount above its total is recorded as tip.
func (s *Service) CreateIntent(ctx context.Context, actor model.Actor, req model.CreateIntentRequest) (*IntentResult, error) {
	now := s.clock.Now()
	p := &model.Payment{
		ID:              uuid.New(),
		TransactionCode: model.NewTransactionCode(),
		UserID:          actor.UserID,
		Currency:        s.cfg.Currency,
		Method:          model.PaymentMethodCard,
		Provider:        model.PaymentProviderStripe,
		Status:          model.PaymentStatusPending,
		RefundAmount:    decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	amount := req.Amount.Round(2)

	var quote pricing.Quote
	switch {
	case req.ReservationID != nil:
		res, err := s.reservations.Get(ctx, *req.ReservationID)
		if err != nil {
			if stderrors.Is(err, repository.ErrNotFound) {
				return nil, errors.NotFound("reservation", err)
			}
			return nil, errors.Internal(fmt.Errorf("failed to load reservation: %w", err))
		}
		if res.ClientID != actor.UserID {
			return nil, errors.Forbidden("you can only pay for your own reservations")
		}
		if res.Status != model.ReservationStatusPending {
			return nil, errors.Policy("only pending reservations can be paid")
		}
		if _, err := s.payments.GetByReservation(ctx, res.ID); err == nil {
			return nil, errors.Conflict("reservation already has a payment", nil)
		} else if !stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.Internal(fmt.Errorf("failed to look up payment: %w", err))
		}
		if amount.LessThan(res.TotalPrice) {
			return nil, errors.Field("amount", fmt.Sprintf("must be at least the reservation total of %s", res.TotalPrice.StringFixed(2)))
		}
		quote = pricing.Calculate(s.cfg.Rates, res.ServicePrice, res.DiscountAmount, amount.Sub(res.TotalPrice), res.StylistID != nil)
		p.ReservationID = &res.ID
		p.BranchID = res.BranchID
	case req.BranchID != nil:
		quote = pricing.Calculate(s.cfg.Rates, amount, decimal.Zero, decimal.Zero, false)
		p.BranchID = *req.BranchID
	default:
		return nil, errors.Field("branch_id", "is required without a reservation")
	}
	applyQuote(p, quote)

	params := gateway.CreateIntentParams{
		AmountCents:    pricing.Cents(p.AmountTotal),
		Currency:       s.cfg.Currency,
		Description:    "Payment " + p.TransactionCode,
		Metadata:       map[string]string{"payment_id": p.ID.String(), "user_id": actor.UserID.String()},
		IdempotencyKey: "intent-" + p.ID.String(),
	}
	if req.PaymentMethodID != nil && *req.PaymentMethodID != "" {
		params.PaymentMethodID = *req.PaymentMethodID
		params.Confirm = true
	}
	if p.ReservationID != nil {
		params.Metadata["reservation_id"] = p.ReservationID.String()
	}

	callCtx, cancel := s.call(ctx)
	intent, err := s.gateway.CreateIntent(callCtx, params)
	cancel()
	if err != nil {
		return nil, errors.Gateway(gateway.PublicMessage(err), err)
	}
	p.ProviderIntentID = &intent.ID

	if err := s.payments.Create(ctx, p); err != nil {
		if stderrors.Is(err, repository.ErrConflict) {
			return nil, errors.Conflict("reservation already has a payment", err)
		}
		return nil, errors.Internal(fmt.Errorf("failed to create payment: %w", err))
	}
	s.auditor.LogCreate(ctx, "payments", p.ID, p)

	if intent.Succeeded() {
		if err := s.HandleEvent(ctx, eventFromIntent(intent)); err != nil {
			return nil, err
		}
		if p, err = s.load(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	return &IntentResult{Payment: p, ClientSecret: intent.ClientSecret, Status: string(intent.Status)}, nil
}

func applyQuote(p *model.Payment, q pricing.Quote) {
	p.AmountSubtotal = q.ServicePrice
	p.AmountDiscount = q.Discount
	p.AmountTip = q.Tip
	p.AmountTax = q.Tax
	p.AmountTotal = q.Charge
	p.CommissionPlatform = q.Platform
	p.AmountBranch = q.Salon
	p.AmountStylist = q.Stylist
}

// ConfirmIntent confirms an intent with a payment method and reconciles the
// outcome right away instead of waiting for the webhook. A failed payment
// may be retried only while its reservation still holds the slot.
func (s *Service) ConfirmIntent(ctx context.Context, actor model.Actor, req model.ConfirmIntentRequest) (*model.Payment, error) {
	p, err := s.payments.GetByIntentID(ctx, req.PaymentIntentID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("payment", err)
		}
		return nil, errors.Internal(fmt.Errorf("failed to load payment: %w", err))
	}
	if p.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, errors.Forbidden("you can only confirm your own payments")
	}
	if p.Status != model.PaymentStatusPending && p.Status != model.PaymentStatusFailed {
		return p, nil
	}
	if p.ReservationID != nil {
		res, err := s.reservations.Get(ctx, *p.ReservationID)
		if err != nil {
			return nil, errors.Internal(fmt.Errorf("failed to load reservation: %w", err))
		}
		if !holdsSlot(res.Status) {
			return nil, errors.Policy(fmt.Sprintf("reservation is %s and can no longer be paid", res.Status))
		}
	}

	callCtx, cancel := s.call(ctx)
	intent, err := s.gateway.ConfirmIntent(callCtx, req.PaymentIntentID, req.PaymentMethodID)
	cancel()
	if err != nil {
		if gateway.IsDecline(err) {
			evt := &gateway.WebhookEvent{Type: gateway.EventIntentFailed, IntentID: req.PaymentIntentID, FailureMessage: gateway.PublicMessage(err)}
			if herr := s.HandleEvent(ctx, evt); herr != nil {
				s.log.Error(herr, "failed to record declined payment", "payment_id", p.ID)
			}
		}
		return nil, errors.Gateway(gateway.PublicMessage(err), err)
	}
	if intent.Succeeded() {
		if err := s.HandleEvent(ctx, eventFromIntent(intent)); err != nil {
			return nil, err
		}
	}
	return s.load(ctx, p.ID)
}

// holdsSlot reports whether a reservation can still take a payment
func holdsSlot(status model.ReservationStatus) bool {
	return status == model.ReservationStatusPending || status == model.ReservationStatusConfirmed
}

func eventFromIntent(intent *gateway.Intent) *gateway.WebhookEvent {
	return &gateway.WebhookEvent{
		Type:        gateway.EventIntentSucceeded,
		IntentID:    intent.ID,
		ChargeID:    intent.ChargeID,
		AmountCents: intent.AmountCents,
	}
}

// ParseWebhook verifies and decodes a provider webhook
func (s *Service) ParseWebhook(payload []byte, signature string) (*gateway.WebhookEvent, error) {
	return s.gateway.ParseWebhook(payload, signature)
}

// HandleEvent applies a verified gateway event. Events are delivered at
// least once and may race user confirms and refunds, so every change is a
// guarded transition on the row-locked payment and replays are no-ops.
func (s *Service) HandleEvent(ctx context.Context, evt *gateway.WebhookEvent) error {
	var (
		before, after     *model.Payment
		applied, orphaned bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.payments.GetByIntentIDForUpdate(ctx, evt.IntentID)
		if err != nil {
			if stderrors.Is(err, repository.ErrNotFound) {
				s.unknownIntent(evt)
				return nil
			}
			return errors.Internal(fmt.Errorf("failed to load payment: %w", err))
		}
		snapshot := *p
		before = &snapshot

		switch evt.Type {
		case gateway.EventIntentSucceeded:
			applied, orphaned, err = s.applySucceeded(ctx, p, evt)
		case gateway.EventIntentFailed:
			applied, err = s.applyFailed(ctx, p, evt)
		case gateway.EventChargeRefunded:
			applied, err = s.applyRefunded(ctx, p, pricing.FromCents(evt.AmountRefundedCents), "")
		default:
			s.log.Debug("ignoring webhook event", "type", evt.Type)
		}
		after = p
		return err
	})

	result := "ignored"
	switch {
	case err != nil:
		result = "error"
	case applied:
		result = "applied"
		s.auditor.LogUpdate(ctx, "payments", after.ID, before, after)
	}
	s.metrics.WebhookEvents.WithLabelValues(evt.Type, result).Inc()
	if err == nil && orphaned {
		s.refundOrphan(ctx, after)
	}
	return err
}

// unknownIntent logs an event for an intent with no local payment. One that
// names a reservation is a charge whose booking never committed.
func (s *Service) unknownIntent(evt *gateway.WebhookEvent) {
	resID := evt.Metadata["reservation_id"]
	if evt.Type == gateway.EventIntentSucceeded && resID != "" {
		s.log.Error(fmt.Errorf("no payment for intent %s", evt.IntentID),
			"charge succeeded for a booking that was not recorded, reconcile manually",
			"intent_id", evt.IntentID, "reservation_id", resID, "amount_cents", evt.AmountCents)
		return
	}
	s.log.Warn("webhook for unknown payment intent", "intent_id", evt.IntentID, "type", evt.Type)
}

// applySucceeded records the charge. When the reservation was already
// cancelled the payment is completed without confirming or invoicing and
// reported as orphaned so the caller refunds it.
func (s *Service) applySucceeded(ctx context.Context, p *model.Payment, evt *gateway.WebhookEvent) (applied, orphaned bool, err error) {
	if !p.Status.CanTransition(model.PaymentStatusCompleted) {
		return false, false, nil
	}
	var res *model.Reservation
	if p.ReservationID != nil {
		if res, err = s.reservations.GetForUpdate(ctx, *p.ReservationID); err != nil {
			return false, false, errors.Internal(fmt.Errorf("failed to load reservation: %w", err))
		}
		orphaned = !holdsSlot(res.Status)
	}

	now := s.clock.Now()
	p.Status = model.PaymentStatusCompleted
	p.PaidAt = &now
	p.FailureReason = nil
	if evt.ChargeID != "" {
		chargeID := evt.ChargeID
		p.ProviderChargeID = &chargeID
	}
	p.UpdatedAt = now
	if err := s.payments.Update(ctx, p); err != nil {
		return false, false, errors.Internal(fmt.Errorf("failed to update payment: %w", err))
	}
	if orphaned {
		return true, true, nil
	}

	if res != nil && res.Status == model.ReservationStatusPending {
		res.Status = model.ReservationStatusConfirmed
		res.ConfirmedAt = &now
		res.PaymentIntentID = p.ProviderIntentID
		res.UpdatedAt = now
		if err := s.reservations.Update(ctx, res); err != nil {
			return false, false, errors.Internal(fmt.Errorf("failed to confirm reservation: %w", err))
		}
		if err := s.emitter.Emit(ctx, event.ReservationConfirmed, res.ID, s.reservationPayload(ctx, res)); err != nil {
			return false, false, errors.Internal(err)
		}
	}

	if _, err := s.invoices.IssueForPayment(ctx, p); err != nil {
		return false, false, errors.Internal(err)
	}
	if err := s.emitter.Emit(ctx, event.PaymentCompleted, p.ID, paymentPayload(p)); err != nil {
		return false, false, errors.Internal(err)
	}
	return true, false, nil
}

// refundOrphan returns in full a charge that landed after its reservation
// was cancelled
func (s *Service) refundOrphan(ctx context.Context, p *model.Payment) {
	const reason = "reservation cancelled before payment completed"
	ctx = context.WithoutCancel(ctx)

	callCtx, cancel := s.call(ctx)
	_, err := s.gateway.Refund(callCtx, gateway.RefundParams{
		IntentID:       *p.ProviderIntentID,
		AmountCents:    pricing.Cents(p.AmountTotal),
		Reason:         reason,
		IdempotencyKey: "orphan-refund-" + p.ID.String(),
	})
	cancel()
	if err != nil {
		s.log.Error(err, "charge for cancelled reservation was not refunded, reconcile manually",
			"payment_id", p.ID, "intent_id", *p.ProviderIntentID)
		return
	}

	var before, after model.Payment
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		locked, err := s.payments.GetForUpdate(ctx, p.ID)
		if err != nil {
			return errors.Internal(fmt.Errorf("failed to load payment: %w", err))
		}
		before = *locked
		if _, err := s.applyRefunded(ctx, locked, locked.AmountTotal, reason); err != nil {
			return err
		}
		after = *locked
		return nil
	})
	if err != nil {
		s.log.Error(err, "refund succeeded at the provider but was not recorded", "payment_id", p.ID)
		return
	}
	s.auditor.LogUpdate(ctx, "payments", p.ID, before, after)
	s.log.Warn("refunded charge for cancelled reservation", "payment_id", p.ID, "reservation_id", p.ReservationID, "amount", p.AmountTotal)
}

func (s *Service) applyFailed(ctx context.Context, p *model.Payment, evt *gateway.WebhookEvent) (bool, error) {
	if !p.Status.CanTransition(model.PaymentStatusFailed) {
		return false, nil
	}
	now := s.clock.Now()
	reason := evt.FailureMessage
	if reason == "" {
		reason = "payment failed"
	}
	p.Status = model.PaymentStatusFailed
	p.FailureReason = &reason
	p.UpdatedAt = now
	if err := s.payments.Update(ctx, p); err != nil {
		return false, errors.Internal(fmt.Errorf("failed to update payment: %w", err))
	}

	if p.ReservationID != nil {
		res, err := s.reservations.GetForUpdate(ctx, *p.ReservationID)
		if err != nil {
			return false, errors.Internal(fmt.Errorf("failed to load reservation: %w", err))
		}
		if !res.Status.IsTerminal() {
			msg := "payment failed"
			res.Status = model.ReservationStatusCancelled
			res.CancelledAt = &now
			res.CancellationReason = &msg
			res.UpdatedAt = now
			if err := s.reservations.Update(ctx, res); err != nil {
				return false, errors.Internal(fmt.Errorf("failed to cancel reservation: %w", err))
			}
			payload := s.reservationPayload(ctx, res)
			payload.Reason = msg
			if err := s.emitter.Emit(ctx, event.ReservationCancelled, res.ID, payload); err != nil {
				return false, errors.Internal(err)
			}
		}
	}

	if err := s.emitter.Emit(ctx, event.PaymentFailed, p.ID, paymentPayload(p)); err != nil {
		return false, errors.Internal(err)
	}
	return true, nil
}

// applyRefunded moves the refunded total up to refunded. Totals at or below
// what is already recorded are replays.
func (s *Service) applyRefunded(ctx context.Context, p *model.Payment, refunded decimal.Decimal, reason string) (bool, error) {
	if !p.Status.IsRefundable() || !refunded.GreaterThan(p.RefundAmount) {
		return false, nil
	}
	refunded = decimal.Min(refunded, p.AmountTotal)

	next := model.PaymentStatusPartiallyRefunded
	if refunded.Equal(p.AmountTotal) {
		next = model.PaymentStatusRefunded
	}
	if !p.Status.CanTransition(next) {
		return false, nil
	}

	now := s.clock.Now()
	p.Status = next
	p.RefundAmount = refunded
	p.RefundedAt = &now
	if reason != "" {
		p.RefundReason = &reason
	}
	p.UpdatedAt = now
	if err := s.payments.Update(ctx, p); err != nil {
		return false, errors.Internal(fmt.Errorf("failed to update payment: %w", err))
	}
	if err := s.emitter.Emit(ctx, event.PaymentRefunded, p.ID, paymentPayload(p)); err != nil {
		return false, errors.Internal(err)
	}
	return true, nil
}

// Refund returns part or all of a completed payment. Cumulative refunds
// never exceed the payment total.
func (s *Service) Refund(ctx context.Context, actor model.Actor, id uuid.UUID, req model.RefundRequest) (*model.Payment, error) {
	if !actor.IsAdmin() {
		return nil, errors.Forbidden("only administrators can refund payments")
	}
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Status.IsRefundable() {
		return nil, errors.Policy(fmt.Sprintf("%s payments cannot be refunded", p.Status))
	}
	if p.ProviderIntentID == nil {
		return nil, errors.Policy("payment has no provider charge to refund")
	}

	remaining := p.Refundable()
	amount := remaining
	if req.Amount != nil {
		amount = req.Amount.Round(2)
	}
	if amount.Sign() <= 0 {
		return nil, errors.Field("amount", "must be greater than 0")
	}
	if amount.GreaterThan(remaining) {
		return nil, errors.Field("amount", fmt.Sprintf("exceeds the refundable balance of %s", remaining.StringFixed(2)))
	}

	callCtx, cancel := s.call(ctx)
	_, err = s.gateway.Refund(callCtx, gateway.RefundParams{
		IntentID:       *p.ProviderIntentID,
		AmountCents:    pricing.Cents(amount),
		Reason:         req.Reason,
		IdempotencyKey: fmt.Sprintf("refund-%s-%d", p.ID, pricing.Cents(p.RefundAmount)),
	})
	cancel()
	if err != nil {
		return nil, errors.Gateway(gateway.PublicMessage(err), err)
	}

	target := p.RefundAmount.Add(amount)
	var before model.Payment
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		locked, err := s.payments.GetForUpdate(ctx, id)
		if err != nil {
			return errors.Internal(fmt.Errorf("failed to load payment: %w", err))
		}
		before = *locked
		if _, err := s.applyRefunded(ctx, locked, target, req.Reason); err != nil {
			return err
		}
		p = locked
		return nil
	})
	if err != nil {
		s.log.Error(err, "refund succeeded at the provider but was not recorded", "payment_id", id, "amount", amount)
		return nil, err
	}

	s.auditor.LogUpdate(ctx, "payments", p.ID, before, p)
	s.log.Info("payment refunded", "payment_id", p.ID, "amount", amount, "status", p.Status)
	return p, nil
}

// Get returns a payment to its payer or an administrator
func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Payment, error) {
	p, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, errors.Forbidden("you cannot view this payment")
	}
	return p, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	p, err := s.payments.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("payment", err)
		}
		return nil, errors.Internal(fmt.Errorf("failed to load payment: %w", err))
	}
	return p, nil
}

// reservationPayload describes a reservation changed by the gateway, with
// no acting user
func (s *Service) reservationPayload(ctx context.Context, res *model.Reservation) event.ReservationPayload {
	p := event.ReservationPayload{
		ReservationID: res.ID,
		ClientID:      res.ClientID,
		ScheduledAt:   res.ScheduledAt,
		Status:        string(res.Status),
	}
	if svc, err := s.catalog.GetService(ctx, res.ServiceID); err == nil {
		p.ServiceName = svc.Name
	}
	if res.StylistID != nil {
		if stylist, err := s.catalog.GetStylist(ctx, *res.StylistID); err == nil {
			p.StylistUserID = &stylist.UserID
		}
	}
	return p
}

func paymentPayload(p *model.Payment) event.PaymentPayload {
	return event.PaymentPayload{
		PaymentID:     p.ID,
		ReservationID: p.ReservationID,
		UserID:        p.UserID,
		Status:        string(p.Status),
		Amount:        p.AmountTotal,
		RefundAmount:  p.RefundAmount,
		Currency:      p.Currency,
	}
}
