// Package stripe implements gateway.Gateway on top of stripe-go.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	stripeapi "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/jwalitptl/salon-api/internal/gateway"
	"github.com/jwalitptl/salon-api/pkg/circuitbreaker"
	"github.com/jwalitptl/salon-api/pkg/metrics"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	// WebhookTolerance bounds the age of a signed webhook, 5 minutes when unset
	WebhookTolerance time.Duration
	BreakerTimeout   time.Duration
}

type Gateway struct {
	api     *client.API
	cfg     Config
	breaker *circuitbreaker.CircuitBreaker
	metrics *metrics.Metrics
}

func New(cfg Config, m *metrics.Metrics) *Gateway {
	if cfg.WebhookTolerance <= 0 {
		cfg.WebhookTolerance = webhook.DefaultTolerance
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	return &Gateway{
		api: client.New(cfg.SecretKey, nil),
		cfg: cfg,
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "stripe",
			MaxRequests: 1,
			Timeout:     cfg.BreakerTimeout,
			// declines are answers, not outages
			IsSuccessful: func(err error) bool {
				return err == nil || gateway.IsDecline(err)
			},
		}),
		metrics: m,
	}
}

func (g *Gateway) call(op string, fn func() error) error {
	start := time.Now()
	err := g.breaker.Execute(fn)
	g.metrics.GatewayLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return gateway.ErrUnavailable
	}
	return err
}

func (g *Gateway) CreateIntent(ctx context.Context, p gateway.CreateIntentParams) (*gateway.Intent, error) {
	params := &stripeapi.PaymentIntentParams{
		Amount:             stripeapi.Int64(p.AmountCents),
		Currency:           stripeapi.String(p.Currency),
		PaymentMethodTypes: stripeapi.StringSlice([]string{"card"}),
	}
	if p.PaymentMethodID != "" {
		params.PaymentMethod = stripeapi.String(p.PaymentMethodID)
	}
	if p.Confirm {
		params.Confirm = stripeapi.Bool(true)
	}
	if p.Description != "" {
		params.Description = stripeapi.String(p.Description)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}
	params.Context = ctx
	params.AddExpand("latest_charge")

	var pi *stripeapi.PaymentIntent
	err := g.call("create_intent", func() error {
		var err error
		pi, err = g.api.PaymentIntents.New(params)
		return translate(err)
	})
	if err != nil {
		return nil, err
	}
	return toIntent(pi), nil
}

func (g *Gateway) ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (*gateway.Intent, error) {
	params := &stripeapi.PaymentIntentConfirmParams{
		PaymentMethod: stripeapi.String(paymentMethodID),
	}
	params.Context = ctx
	params.AddExpand("latest_charge")

	var pi *stripeapi.PaymentIntent
	err := g.call("confirm_intent", func() error {
		var err error
		pi, err = g.api.PaymentIntents.Confirm(intentID, params)
		return translate(err)
	})
	if err != nil {
		return nil, err
	}
	return toIntent(pi), nil
}

func (g *Gateway) Refund(ctx context.Context, p gateway.RefundParams) (*gateway.Refund, error) {
	params := &stripeapi.RefundParams{
		PaymentIntent: stripeapi.String(p.IntentID),
		Reason:        stripeapi.String(string(stripeapi.RefundReasonRequestedByCustomer)),
	}
	if p.AmountCents > 0 {
		params.Amount = stripeapi.Int64(p.AmountCents)
	}
	if p.Reason != "" {
		params.AddMetadata("reason", p.Reason)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}
	params.Context = ctx

	var r *stripeapi.Refund
	err := g.call("refund", func() error {
		var err error
		r, err = g.api.Refunds.New(params)
		return translate(err)
	})
	if err != nil {
		return nil, err
	}
	return &gateway.Refund{ID: r.ID, AmountCents: r.Amount, Status: string(r.Status)}, nil
}

// ParseWebhook verifies the Stripe-Signature header before decoding
func (g *Gateway) ParseWebhook(payload []byte, signature string) (*gateway.WebhookEvent, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signature, g.cfg.WebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                g.cfg.WebhookTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrInvalidSignature, err)
	}

	out := &gateway.WebhookEvent{ID: evt.ID, Type: string(evt.Type)}
	if evt.Data == nil {
		return out, nil
	}

	switch out.Type {
	case gateway.EventIntentSucceeded, gateway.EventIntentFailed:
		var pi stripeapi.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("failed to decode payment intent: %w", err)
		}
		intent := toIntent(&pi)
		out.IntentID = intent.ID
		out.ChargeID = intent.ChargeID
		out.AmountCents = intent.AmountCents
		out.FailureMessage = intent.FailureMessage
		out.Metadata = pi.Metadata
	case gateway.EventChargeRefunded:
		var ch stripeapi.Charge
		if err := json.Unmarshal(evt.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("failed to decode charge: %w", err)
		}
		out.ChargeID = ch.ID
		out.AmountCents = ch.Amount
		out.AmountRefundedCents = ch.AmountRefunded
		if ch.PaymentIntent != nil {
			out.IntentID = ch.PaymentIntent.ID
		}
	}
	return out, nil
}

func toIntent(pi *stripeapi.PaymentIntent) *gateway.Intent {
	intent := &gateway.Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       gateway.IntentStatus(pi.Status),
		AmountCents:  pi.Amount,
		Currency:     string(pi.Currency),
	}
	if pi.LatestCharge != nil {
		intent.ChargeID = pi.LatestCharge.ID
	}
	if pi.LastPaymentError != nil {
		intent.FailureMessage = pi.LastPaymentError.Msg
	}
	return intent
}

// translate keeps provider internals out of caller-facing messages
func translate(err error) error {
	if err == nil {
		return nil
	}
	var serr *stripeapi.Error
	if !errors.As(err, &serr) {
		return err
	}
	if serr.Type == stripeapi.ErrorTypeCard {
		return &gateway.ProviderError{Message: serr.Msg, Declined: true, Err: err}
	}
	if serr.Type == stripeapi.ErrorTypeInvalidRequest {
		return &gateway.ProviderError{Message: "payment request was rejected", Err: err}
	}
	return &gateway.ProviderError{Message: "payment provider error", Err: err}
}
