package fake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/salon-api/internal/gateway"
)

func TestChargeAndRefund(t *testing.T) {
	g := New("whsec_test")
	ctx := context.Background()

	intent, err := g.CreateIntent(ctx, gateway.CreateIntentParams{
		AmountCents:     5000,
		Currency:        "usd",
		PaymentMethodID: "pm_card_visa",
		Confirm:         true,
		IdempotencyKey:  "res-1",
	})
	require.NoError(t, err)
	assert.True(t, intent.Succeeded())
	assert.NotEmpty(t, intent.ChargeID)

	again, err := g.CreateIntent(ctx, gateway.CreateIntentParams{AmountCents: 5000, IdempotencyKey: "res-1"})
	require.NoError(t, err)
	assert.Equal(t, intent.ID, again.ID)
	assert.Equal(t, 1, g.IntentCount())

	refund, err := g.Refund(ctx, gateway.RefundParams{IntentID: intent.ID, AmountCents: 3000})
	require.NoError(t, err)
	assert.EqualValues(t, 3000, refund.AmountCents)

	_, err = g.Refund(ctx, gateway.RefundParams{IntentID: intent.ID, AmountCents: 2500})
	var perr *gateway.ProviderError
	assert.True(t, errors.As(err, &perr))

	rest, err := g.Refund(ctx, gateway.RefundParams{IntentID: intent.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 2000, rest.AmountCents)
}

func TestDecline(t *testing.T) {
	g := New("whsec_test")
	_, err := g.CreateIntent(context.Background(), gateway.CreateIntentParams{
		AmountCents:     5000,
		PaymentMethodID: "pm_card_chargeDeclined",
		Confirm:         true,
	})
	assert.True(t, gateway.IsDecline(err))
	assert.Equal(t, "Your card was declined.", gateway.PublicMessage(err))
}

func TestFailNextAndDelay(t *testing.T) {
	g := New("whsec_test")
	g.FailNext = gateway.ErrUnavailable
	_, err := g.CreateIntent(context.Background(), gateway.CreateIntentParams{AmountCents: 100})
	assert.ErrorIs(t, err, gateway.ErrUnavailable)

	g.Delay = time.Second
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = g.CreateIntent(ctx, gateway.CreateIntentParams{AmountCents: 100})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseWebhook(t *testing.T) {
	g := New("whsec_test")
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","intentID":"pi_1","amountCents":5000}`)

	evt, err := g.ParseWebhook(payload, g.Sign(payload))
	require.NoError(t, err)
	assert.Equal(t, gateway.EventIntentSucceeded, evt.Type)
	assert.Equal(t, "pi_1", evt.IntentID)
	assert.EqualValues(t, 5000, evt.AmountCents)

	_, err = g.ParseWebhook(payload, New("other").Sign(payload))
	assert.ErrorIs(t, err, gateway.ErrInvalidSignature)
}
