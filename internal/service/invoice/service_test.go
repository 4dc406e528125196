package invoice

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/salon-api/internal/model"
	eventsvc "github.com/jwalitptl/salon-api/internal/service/event"
	"github.com/jwalitptl/salon-api/internal/service/servicetest"
	"github.com/jwalitptl/salon-api/pkg/errors"
)

func newService(f *servicetest.Fixture) *Service {
	return NewService(f.Repos, f.Catalog, eventsvc.NewEmitter(f.Repos.Outbox, f.Clock), f.Auditor, f.Clock)
}

func payment(t *testing.T, f *servicetest.Fixture, payer model.Actor) *model.Payment {
	t.Helper()
	now := f.Clock.Now()
	p := &model.Payment{
		ID:              uuid.New(),
		TransactionCode: model.NewTransactionCode(),
		UserID:          payer.UserID,
		BranchID:        f.Branch.ID,
		AmountSubtotal:  decimal.RequireFromString("50.00"),
		AmountTotal:     decimal.RequireFromString("50.00"),
		Currency:        "usd",
		Status:          model.PaymentStatusCompleted,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, f.Repos.Payments.Create(context.Background(), p))
	return p
}

func TestIssueForPaymentNumbering(t *testing.T) {
	f := servicetest.New(t)
	svc := newService(f)
	ctx := context.Background()

	first := payment(t, f, f.Client)
	inv, err := svc.IssueForPayment(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "INV-2025-001-00000001", inv.DocumentNumber)
	assert.Equal(t, model.HaciendaStatusPending, inv.HaciendaStatus)
	assert.True(t, inv.AmountTotal.Equal(first.AmountTotal))

	again, err := svc.IssueForPayment(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, inv.ID, again.ID)

	second, err := svc.IssueForPayment(ctx, payment(t, f, f.Client))
	require.NoError(t, err)
	assert.Equal(t, "INV-2025-001-00000002", second.DocumentNumber)
	assert.Len(t, f.Store.Events(), 2)
}

func TestIssueForPaymentYearFollowsBranchTime(t *testing.T) {
	f := servicetest.New(t)
	svc := newService(f)
	ctx := context.Background()

	// already 2026 in UTC, still 2025 in Costa Rica
	f.Clock.Set(time.Date(2025, 12, 31, 23, 30, 0, 0, f.Loc))
	inv, err := svc.IssueForPayment(ctx, payment(t, f, f.Client))
	require.NoError(t, err)
	assert.Equal(t, "INV-2025-001-00000001", inv.DocumentNumber)

	f.Clock.Advance(time.Hour)
	inv, err = svc.IssueForPayment(ctx, payment(t, f, f.Client))
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-001-00000001", inv.DocumentNumber)
}

func TestHaciendaTransitions(t *testing.T) {
	f := servicetest.New(t)
	svc := newService(f)
	ctx := context.Background()

	inv, err := svc.IssueForPayment(ctx, payment(t, f, f.Client))
	require.NoError(t, err)

	_, err = svc.UpdateHaciendaStatus(ctx, f.Client, inv.ID, model.HaciendaStatusRequest{Status: model.HaciendaStatusSent})
	assert.True(t, errors.IsKind(err, errors.KindForbidden))

	_, err = svc.UpdateHaciendaStatus(ctx, f.Admin, inv.ID, model.HaciendaStatusRequest{Status: model.HaciendaStatusAccepted})
	assert.True(t, errors.IsKind(err, errors.KindPolicy))

	sent, err := svc.UpdateHaciendaStatus(ctx, f.Admin, inv.ID, model.HaciendaStatusRequest{Status: model.HaciendaStatusSent})
	require.NoError(t, err)
	assert.NotNil(t, sent.HaciendaSentAt)

	rejected, err := svc.UpdateHaciendaStatus(ctx, f.Admin, inv.ID, model.HaciendaStatusRequest{Status: model.HaciendaStatusRejected, Message: servicetest.Ptr("bad cabys code")})
	require.NoError(t, err)
	assert.Equal(t, "bad cabys code", *rejected.HaciendaMessage)

	_, err = svc.UpdateHaciendaStatus(ctx, f.Admin, inv.ID, model.HaciendaStatusRequest{Status: model.HaciendaStatusSent})
	require.NoError(t, err)
	accepted, err := svc.UpdateHaciendaStatus(ctx, f.Admin, inv.ID, model.HaciendaStatusRequest{Status: model.HaciendaStatusAccepted})
	require.NoError(t, err)
	assert.Equal(t, model.HaciendaStatusAccepted, accepted.HaciendaStatus)

	_, err = svc.UpdateHaciendaStatus(ctx, f.Admin, inv.ID, model.HaciendaStatusRequest{Status: model.HaciendaStatusSent})
	assert.True(t, errors.IsKind(err, errors.KindPolicy))
}

func TestCancel(t *testing.T) {
	f := servicetest.New(t)
	svc := newService(f)
	ctx := context.Background()

	inv, err := svc.IssueForPayment(ctx, payment(t, f, f.Client))
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, f.Admin, inv.ID, "duplicate charge")
	require.NoError(t, err)
	assert.True(t, cancelled.IsCancelled)
	assert.Equal(t, "duplicate charge", *cancelled.CancellationReason)

	_, err = svc.Cancel(ctx, f.Admin, inv.ID, "again")
	assert.True(t, errors.IsKind(err, errors.KindConflict))

	_, err = svc.UpdateHaciendaStatus(ctx, f.Admin, inv.ID, model.HaciendaStatusRequest{Status: model.HaciendaStatusSent})
	assert.True(t, errors.IsKind(err, errors.KindPolicy))
}

func TestGetAndList(t *testing.T) {
	f := servicetest.New(t)
	svc := newService(f)
	ctx := context.Background()

	inv, err := svc.IssueForPayment(ctx, payment(t, f, f.Client))
	require.NoError(t, err)

	_, err = svc.Get(ctx, f.Client, inv.ID)
	assert.NoError(t, err)
	_, err = svc.Get(ctx, f.OtherClient, inv.ID)
	assert.True(t, errors.IsKind(err, errors.KindForbidden))
	_, err = svc.Get(ctx, f.Admin, uuid.New())
	assert.True(t, errors.IsKind(err, errors.KindNotFound))

	_, _, err = svc.List(ctx, f.Client, model.InvoiceFilter{})
	assert.True(t, errors.IsKind(err, errors.KindForbidden))
	list, total, err := svc.List(ctx, f.Admin, model.InvoiceFilter{BranchID: &f.Branch.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, inv.ID, list[0].ID)
}
