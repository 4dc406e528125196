// Package fake is an in-process gateway for local runs and tests. Webhook
// payloads are JSON encoded gateway.WebhookEvent values signed with
// hex(HMAC-SHA256(secret, payload)).
package fake

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/salon-api/internal/gateway"
)

type intentState struct {
	intent   gateway.Intent
	refunded int64
}

type Gateway struct {
	mu      sync.Mutex
	secret  string
	intents map[string]*intentState
	byKey   map[string]string

	// DeclineMethods lists payment methods that are declined
	DeclineMethods map[string]bool
	// FailNext makes the next call return this error
	FailNext error
	// Delay is applied to every call, honouring ctx
	Delay time.Duration

	Refunds []gateway.RefundParams
}

func New(webhookSecret string) *Gateway {
	return &Gateway{
		secret:         webhookSecret,
		intents:        make(map[string]*intentState),
		byKey:          make(map[string]string),
		DeclineMethods: map[string]bool{"pm_card_chargeDeclined": true},
	}
}

func (g *Gateway) wait(ctx context.Context) error {
	g.mu.Lock()
	delay := g.Delay
	g.mu.Unlock()
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) takeFailure() error {
	err := g.FailNext
	g.FailNext = nil
	return err
}

func (g *Gateway) CreateIntent(ctx context.Context, p gateway.CreateIntentParams) (*gateway.Intent, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.takeFailure(); err != nil {
		return nil, err
	}
	if p.IdempotencyKey != "" {
		if id, ok := g.byKey[p.IdempotencyKey]; ok {
			intent := g.intents[id].intent
			return &intent, nil
		}
	}

	id := "pi_" + uuid.NewString()[:18]
	state := &intentState{intent: gateway.Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       gateway.IntentRequiresPaymentMethod,
		AmountCents:  p.AmountCents,
		Currency:     p.Currency,
	}}
	if p.PaymentMethodID != "" {
		state.intent.Status = gateway.IntentRequiresConfirmation
	}
	g.intents[id] = state
	if p.IdempotencyKey != "" {
		g.byKey[p.IdempotencyKey] = id
	}

	if p.Confirm {
		if err := g.confirm(state, p.PaymentMethodID); err != nil {
			return nil, err
		}
	}
	intent := state.intent
	return &intent, nil
}

func (g *Gateway) ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (*gateway.Intent, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.takeFailure(); err != nil {
		return nil, err
	}
	state, ok := g.intents[intentID]
	if !ok {
		return nil, &gateway.ProviderError{Message: "no such payment intent"}
	}
	if err := g.confirm(state, paymentMethodID); err != nil {
		return nil, err
	}
	intent := state.intent
	return &intent, nil
}

func (g *Gateway) confirm(state *intentState, method string) error {
	if state.intent.Status == gateway.IntentSucceeded {
		return nil
	}
	if method == "" || g.DeclineMethods[method] {
		state.intent.Status = gateway.IntentRequiresPaymentMethod
		state.intent.FailureMessage = "Your card was declined."
		return &gateway.ProviderError{Message: "Your card was declined.", Declined: true}
	}
	state.intent.Status = gateway.IntentSucceeded
	state.intent.ChargeID = "ch_" + uuid.NewString()[:18]
	return nil
}

func (g *Gateway) Refund(ctx context.Context, p gateway.RefundParams) (*gateway.Refund, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.takeFailure(); err != nil {
		return nil, err
	}
	state, ok := g.intents[p.IntentID]
	if !ok || state.intent.Status != gateway.IntentSucceeded {
		return nil, &gateway.ProviderError{Message: "charge cannot be refunded"}
	}
	amount := p.AmountCents
	if amount == 0 {
		amount = state.intent.AmountCents - state.refunded
	}
	if state.refunded+amount > state.intent.AmountCents {
		return nil, &gateway.ProviderError{Message: "refund exceeds charge amount"}
	}
	state.refunded += amount
	g.Refunds = append(g.Refunds, p)
	return &gateway.Refund{ID: "re_" + uuid.NewString()[:18], AmountCents: amount, Status: "succeeded"}, nil
}

func (g *Gateway) ParseWebhook(payload []byte, signature string) (*gateway.WebhookEvent, error) {
	if !hmac.Equal([]byte(signature), []byte(g.Sign(payload))) {
		return nil, gateway.ErrInvalidSignature
	}
	var evt gateway.WebhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("failed to decode webhook: %w", err)
	}
	return &evt, nil
}

// Sign computes the signature header for payload
func (g *Gateway) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(g.secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Intent returns the provider side view of an intent
func (g *Gateway) Intent(id string) (gateway.Intent, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	state, ok := g.intents[id]
	if !ok {
		return gateway.Intent{}, false
	}
	return state.intent, true
}

// IntentCount is the number of intents created
func (g *Gateway) IntentCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.intents)
}
