package notification

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/service/servicetest"
	"github.com/jwalitptl/salon-api/pkg/errors"
	"github.com/jwalitptl/salon-api/pkg/event"
	"github.com/jwalitptl/salon-api/pkg/messaging/memory"
)

type sentMail struct {
	to, subject string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *recordingMailer) SendCustom(ctx context.Context, to, subject, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, subject: subject})
	return nil
}

func envelope(t *testing.T, eventType event.EventType, payload interface{}) []byte {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	raw, err := json.Marshal(event.Envelope{
		ID:          uuid.New(),
		Type:        eventType,
		AggregateID: uuid.New(),
		OccurredAt:  time.Now(),
		Payload:     body,
	})
	require.NoError(t, err)
	return raw
}

func inbox(t *testing.T, svc *Service, actor model.Actor) []*model.Notification {
	t.Helper()
	items, _, err := svc.List(context.Background(), actor, false, model.Pagination{})
	require.NoError(t, err)
	return items
}

func TestRescheduleNotifiesCounterParty(t *testing.T) {
	f := servicetest.New(t)
	mailer := &recordingMailer{}
	svc := NewService(f.Repos, mailer, nil, f.Clock, f.Metrics, f.Log)
	ctx := context.Background()

	previous := f.At(t, "2025-06-03", "10:00")
	raw := envelope(t, event.ReservationRescheduled, event.ReservationPayload{
		ReservationID: uuid.New(),
		ClientID:      f.Client.UserID,
		StylistUserID: &f.StylistActor.UserID,
		ActorID:       &f.Client.UserID,
		ServiceName:   "Haircut",
		ScheduledAt:   f.At(t, "2025-06-03", "14:00"),
		PreviousAt:    &previous,
		Status:        string(model.ReservationStatusPending),
	})

	require.NoError(t, svc.Handle(ctx, raw))
	require.NoError(t, svc.Handle(ctx, raw))

	assert.Empty(t, inbox(t, svc, f.Client))
	got := inbox(t, svc, f.StylistActor)
	require.Len(t, got, 1)
	assert.Equal(t, model.NotificationReservationRescheduled, got[0].Type)
	assert.Contains(t, got[0].Message, "Haircut")
	assert.Contains(t, got[0].Message, "was moved to")

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "Reservation rescheduled", mailer.sent[0].subject)
}

func TestSystemChangeNotifiesBothSides(t *testing.T) {
	f := servicetest.New(t)
	svc := NewService(f.Repos, nil, nil, f.Clock, f.Metrics, f.Log)

	raw := envelope(t, event.ReservationCancelled, event.ReservationPayload{
		ReservationID: uuid.New(),
		ClientID:      f.Client.UserID,
		StylistUserID: &f.StylistActor.UserID,
		ScheduledAt:   f.At(t, "2025-06-03", "10:00"),
		Reason:        "payment failed",
	})
	require.NoError(t, svc.Handle(context.Background(), raw))

	for _, actor := range []model.Actor{f.Client, f.StylistActor} {
		got := inbox(t, svc, actor)
		require.Len(t, got, 1)
		assert.Equal(t, model.NotificationReservationCancelled, got[0].Type)
		assert.Contains(t, got[0].Message, "Reason: payment failed")
	}
}

func TestRefundNotifiesPayer(t *testing.T) {
	f := servicetest.New(t)
	svc := NewService(f.Repos, nil, nil, f.Clock, f.Metrics, f.Log)

	raw := envelope(t, event.PaymentRefunded, event.PaymentPayload{
		PaymentID:    uuid.New(),
		UserID:       f.Client.UserID,
		Status:       string(model.PaymentStatusPartiallyRefunded),
		Amount:       decimal.RequireFromString("50.00"),
		RefundAmount: decimal.RequireFromString("30.00"),
		Currency:     "usd",
	})
	require.NoError(t, svc.Handle(context.Background(), raw))

	got := inbox(t, svc, f.Client)
	require.Len(t, got, 1)
	assert.Equal(t, "Your payment was refunded. Total refunded: 30.00 USD of 50.00.", got[0].Message)
}

func TestUnhandledEventsAreIgnored(t *testing.T) {
	f := servicetest.New(t)
	svc := NewService(f.Repos, nil, nil, f.Clock, f.Metrics, f.Log)

	assert.NoError(t, svc.Handle(context.Background(), envelope(t, event.InvoiceIssued, event.InvoicePayload{})))
	assert.Error(t, svc.Handle(context.Background(), []byte("not json")))
}

func TestInboxReadState(t *testing.T) {
	f := servicetest.New(t)
	svc := NewService(f.Repos, nil, nil, f.Clock, f.Metrics, f.Log)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		raw := envelope(t, event.ReservationCreated, event.ReservationPayload{
			ReservationID: uuid.New(),
			ClientID:      f.Client.UserID,
			StylistUserID: &f.StylistActor.UserID,
			ActorID:       &f.Client.UserID,
			ScheduledAt:   f.At(t, "2025-06-03", "10:00"),
		})
		require.NoError(t, svc.Handle(ctx, raw))
	}

	got := inbox(t, svc, f.StylistActor)
	require.Len(t, got, 3)

	err := svc.MarkRead(ctx, f.Client, got[0].ID)
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
	require.NoError(t, svc.MarkRead(ctx, f.StylistActor, got[0].ID))

	unread, total, err := svc.List(ctx, f.StylistActor, true, model.Pagination{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, unread, 2)

	n, err := svc.MarkAllRead(ctx, f.StylistActor)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestRunConsumesBroker(t *testing.T) {
	f := servicetest.New(t)
	svc := NewService(f.Repos, nil, nil, f.Clock, f.Metrics, f.Log)
	broker := memory.NewBroker(8)
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx, broker)

	var env event.Envelope
	require.NoError(t, json.Unmarshal(envelope(t, event.ReservationConfirmed, event.ReservationPayload{
		ReservationID: uuid.New(),
		ClientID:      f.Client.UserID,
		StylistUserID: &f.StylistActor.UserID,
		ActorID:       &f.StylistActor.UserID,
		ScheduledAt:   f.At(t, "2025-06-03", "10:00"),
	}), &env))

	// republishing is safe, deliveries are deduplicated by event id
	assert.Eventually(t, func() bool {
		_ = broker.Publish(ctx, event.Channel, env)
		items, _, err := svc.List(ctx, f.Client, false, model.Pagination{})
		return err == nil && len(items) == 1
	}, 2*time.Second, 20*time.Millisecond)
}
