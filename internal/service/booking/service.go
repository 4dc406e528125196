// Package booking implements the reservation lifecycle: the atomic
// create-and-charge flow and the confirm, complete, cancel and reschedule
// transitions.
package booking

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jwalitptl/salon-api/internal/gateway"
	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
	"github.com/jwalitptl/salon-api/internal/service/audit"
	"github.com/jwalitptl/salon-api/internal/service/availability"
	"github.com/jwalitptl/salon-api/internal/service/catalog"
	eventsvc "github.com/jwalitptl/salon-api/internal/service/event"
	"github.com/jwalitptl/salon-api/internal/service/invoice"
	"github.com/jwalitptl/salon-api/internal/service/pricing"
	"github.com/jwalitptl/salon-api/internal/service/promotion"
	"github.com/jwalitptl/salon-api/pkg/clock"
	"github.com/jwalitptl/salon-api/pkg/errors"
	"github.com/jwalitptl/salon-api/pkg/event"
	"github.com/jwalitptl/salon-api/pkg/logger"
	"github.com/jwalitptl/salon-api/pkg/metrics"
)

type Config struct {
	Rates    pricing.Rates
	Currency string
	// CancelWindow is the minimum notice a client needs to cancel
	CancelWindow time.Duration
	// GatewayTimeout bounds the charge made while the schedule is locked
	GatewayTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.Rates == (pricing.Rates{}) {
		c.Rates = pricing.DefaultRates()
	}
	if c.Currency == "" {
		c.Currency = "usd"
	}
	if c.CancelWindow <= 0 {
		c.CancelWindow = 24 * time.Hour
	}
	if c.GatewayTimeout <= 0 {
		c.GatewayTimeout = 15 * time.Second
	}
}

type Service struct {
	tx           repository.TxManager
	reservations repository.ReservationRepository
	payments     repository.PaymentRepository
	catalog      *catalog.Service
	availability *availability.Service
	promotions   *promotion.Service
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
	Repos        *repository.Repositories
	Catalog      *catalog.Service
	Availability *availability.Service
	Promotions   *promotion.Service
	Invoices     *invoice.Service
	Gateway      gateway.Gateway
	Emitter      *eventsvc.Emitter
	Auditor      *audit.Recorder
	Clock        clock.Clock
	Metrics      *metrics.Metrics
	Logger       *logger.Logger
}

func NewService(d Deps, cfg Config) *Service {
	cfg.setDefaults()
	return &Service{
		tx:           d.Repos.Tx,
		reservations: d.Repos.Reservations,
		payments:     d.Repos.Payments,
		catalog:      d.Catalog,
		availability: d.Availability,
		promotions:   d.Promotions,
		invoices:     d.Invoices,
		gateway:      d.Gateway,
		emitter:      d.Emitter,
		auditor:      d.Auditor,
		clock:        d.Clock,
		metrics:      d.Metrics,
		log:          d.Logger.WithComponent("booking"),
		cfg:          cfg,
	}
}

// Quote prices a booking without side effects
func (s *Service) Quote(price, discount, tip decimal.Decimal, hasStylist bool) pricing.Quote {
	return pricing.Calculate(s.cfg.Rates, price, discount, tip, hasStylist)
}

// Create books and charges a reservation in one unit of work. Either the
// reservation, its completed payment, its invoice and the promotion use are
// all stored, or none are. A charge made before a failed commit is refunded.
func (s *Service) Create(ctx context.Context, actor model.Actor, req model.CreateReservationRequest) (*model.BookingResult, error) {
	result, err := s.create(ctx, actor, req)
	s.metrics.Bookings.WithLabelValues(outcome(err)).Inc()
	return result, err
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	if appErr, ok := errors.As(err); ok {
		return string(appErr.Kind)
	}
	return "error"
}

func (s *Service) create(ctx context.Context, actor model.Actor, req model.CreateReservationRequest) (*model.BookingResult, error) {
	svc, err := s.catalog.GetService(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}
	if !svc.IsActive {
		return nil, errors.Field("service_id", "service is not active")
	}
	branch, err := s.catalog.GetBranch(ctx, svc.BranchID)
	if err != nil {
		return nil, err
	}
	loc := s.catalog.Location(branch)

	var stylist *model.Stylist
	if req.StylistID != nil {
		stylist, err = s.availability.BookableStylist(ctx, *req.StylistID, branch.ID)
		if err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	if req.ScheduledAt.Before(now) {
		return nil, errors.Field("scheduled_at", "must not be in the past")
	}

	discount := decimal.Zero
	var promo *model.Promotion
	if req.PromotionCode != nil && strings.TrimSpace(*req.PromotionCode) != "" {
		res, err := s.promotions.Evaluate(ctx, *req.PromotionCode, actor.UserID, []uuid.UUID{svc.ID}, svc.Price)
		if err != nil {
			return nil, err
		}
		if !res.Valid {
			return nil, errors.Field("promotion_code", strings.Join(res.Errors, "; "))
		}
		discount = res.Discount
		promo = res.Promotion
	}

	tip := decimal.Zero
	if req.Tip != nil {
		tip = *req.Tip
	}
	quote := s.Quote(svc.Price, discount, tip, stylist != nil)
	if !req.Amount.Round(2).Equal(quote.Charge) {
		return nil, errors.Field("amount", fmt.Sprintf("must equal the booking total of %s", quote.Charge.StringFixed(2)))
	}

	res := &model.Reservation{
		ID:                 uuid.New(),
		ClientID:           actor.UserID,
		StylistID:          req.StylistID,
		ServiceID:          svc.ID,
		BranchID:           branch.ID,
		ScheduledAt:        req.ScheduledAt.UTC(),
		DurationMinutes:    svc.DurationMinutes,
		Status:             model.ReservationStatusConfirmed,
		ServicePrice:       quote.ServicePrice,
		DiscountAmount:     quote.Discount,
		TotalPrice:         quote.Total,
		PlatformCommission: quote.Platform,
		SalonCommission:    quote.Salon,
		StylistEarnings:    quote.Stylist,
		Notes:              req.Notes,
		ConfirmedAt:        &now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if promo != nil {
		res.PromotionID = &promo.ID
		res.PromotionCode = &promo.Code
	}
	scope := model.ScheduleScope{BranchID: branch.ID, StylistID: req.StylistID}

	var (
		charged *gateway.Intent
		payment *model.Payment
		inv     *model.Invoice
	)
	txErr := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.reservations.LockSchedule(ctx, scope); err != nil {
			return errors.Internal(fmt.Errorf("failed to lock schedule: %w", err))
		}
		if err := s.availability.CheckBookable(ctx, availability.BookableCheck{
			Scope:    scope,
			Start:    res.ScheduledAt,
			Duration: svc.Duration(),
			Location: loc,
		}); err != nil {
			return err
		}
		if promo != nil {
			if err := s.promotions.Redeem(ctx, promo.ID); err != nil {
				return err
			}
		}

		intent, err := s.charge(ctx, res, quote, req.PaymentMethodID)
		if err != nil {
			return err
		}
		charged = intent
		res.PaymentIntentID = &intent.ID

		if err := s.reservations.Create(ctx, res); err != nil {
			if stderrors.Is(err, repository.ErrConflict) {
				return errors.Conflict("time slot is already booked", err)
			}
			return errors.Internal(fmt.Errorf("failed to create reservation: %w", err))
		}

		payment = s.newPayment(res, quote, intent, now)
		if err := s.payments.Create(ctx, payment); err != nil {
			return errors.Internal(fmt.Errorf("failed to create payment: %w", err))
		}

		inv, err = s.invoices.IssueForPayment(ctx, payment)
		if err != nil {
			return errors.Internal(err)
		}

		payload, err := s.payload(ctx, res, actor, "", nil)
		if err != nil {
			return err
		}
		if err := s.emitter.Emit(ctx, event.ReservationCreated, res.ID, payload); err != nil {
			return errors.Internal(err)
		}
		return nil
	})
	if txErr != nil {
		if charged != nil {
			s.compensate(res.ID, charged, txErr)
		}
		return nil, txErr
	}

	s.auditor.LogCreate(ctx, "reservations", res.ID, res)
	s.auditor.LogCreate(ctx, "payments", payment.ID, payment)
	s.log.Ctx(ctx).Info("reservation booked", "reservation_id", res.ID, "payment_id", payment.ID, "total", payment.AmountTotal)

	return &model.BookingResult{Reservation: res, Payment: payment, Invoice: inv}, nil
}

// charge runs the gateway call with its own deadline. Anything short of a
// succeeded intent aborts the booking.
func (s *Service) charge(ctx context.Context, res *model.Reservation, quote pricing.Quote, methodID string) (*gateway.Intent, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	intent, err := s.gateway.CreateIntent(callCtx, gateway.CreateIntentParams{
		AmountCents:     pricing.Cents(quote.Charge),
		Currency:        s.cfg.Currency,
		PaymentMethodID: methodID,
		Confirm:         true,
		Description:     "Reservation " + res.ID.String(),
		Metadata: map[string]string{
			"reservation_id": res.ID.String(),
			"client_id":      res.ClientID.String(),
		},
		IdempotencyKey: "booking-" + res.ID.String(),
	})
	if err != nil {
		return nil, errors.Gateway(gateway.PublicMessage(err), err)
	}
	if !intent.Succeeded() {
		msg := intent.FailureMessage
		if msg == "" {
			msg = fmt.Sprintf("payment was not completed (%s)", intent.Status)
		}
		return nil, errors.Gateway(msg, nil)
	}
	return intent, nil
}

// compensate refunds a charge whose booking did not commit
func (s *Service) compensate(reservationID uuid.UUID, intent *gateway.Intent, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GatewayTimeout)
	defer cancel()

	_, err := s.gateway.Refund(ctx, gateway.RefundParams{
		IntentID:       intent.ID,
		Reason:         "booking rolled back",
		IdempotencyKey: "booking-rollback-" + reservationID.String(),
	})
	if err != nil {
		s.log.Error(err, "failed to refund charge of rolled back booking, reconcile manually",
			"reservation_id", reservationID, "intent_id", intent.ID, "cause", cause.Error())
		return
	}
	s.log.Warn("refunded charge of rolled back booking",
		"reservation_id", reservationID, "intent_id", intent.ID, "cause", cause.Error())
}

func (s *Service) newPayment(res *model.Reservation, quote pricing.Quote, intent *gateway.Intent, now time.Time) *model.Payment {
	p := &model.Payment{
		ID:                 uuid.New(),
		TransactionCode:    model.NewTransactionCode(),
		ReservationID:      &res.ID,
		UserID:             res.ClientID,
		BranchID:           res.BranchID,
		AmountSubtotal:     quote.ServicePrice,
		AmountTip:          quote.Tip,
		AmountDiscount:     quote.Discount,
		AmountTax:          quote.Tax,
		AmountTotal:        quote.Charge,
		CommissionPlatform: quote.Platform,
		AmountBranch:       quote.Salon,
		AmountStylist:      quote.Stylist,
		Currency:           s.cfg.Currency,
		Method:             model.PaymentMethodCard,
		Provider:           model.PaymentProviderStripe,
		ProviderIntentID:   &intent.ID,
		Status:             model.PaymentStatusCompleted,
		RefundAmount:       decimal.Zero,
		PaidAt:             &now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if intent.ChargeID != "" {
		p.ProviderChargeID = &intent.ChargeID
	}
	return p
}

// payload describes res for the notification dispatcher
func (s *Service) payload(ctx context.Context, res *model.Reservation, actor model.Actor, reason string, previous *time.Time) (event.ReservationPayload, error) {
	p := event.ReservationPayload{
		ReservationID: res.ID,
		ClientID:      res.ClientID,
		ActorID:       &actor.UserID,
		ScheduledAt:   res.ScheduledAt,
		PreviousAt:    previous,
		Status:        string(res.Status),
		Reason:        reason,
	}
	svc, err := s.catalog.GetService(ctx, res.ServiceID)
	if err != nil {
		return p, err
	}
	p.ServiceName = svc.Name
	if res.StylistID != nil {
		stylist, err := s.catalog.GetStylist(ctx, *res.StylistID)
		if err != nil {
			return p, err
		}
		p.StylistUserID = &stylist.UserID
	}
	return p, nil
}
