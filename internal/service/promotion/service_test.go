package promotion

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/service/servicetest"
	"github.com/jwalitptl/salon-api/pkg/errors"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func create(t *testing.T, f *servicetest.Fixture, svc *Service, req model.CreatePromotionRequest) *model.Promotion {
	t.Helper()
	p, err := svc.Create(context.Background(), f.Admin, req)
	require.NoError(t, err)
	return p
}

func TestValidatePercentage(t *testing.T) {
	f := servicetest.New(t)
	svc := NewService(f.Repos, f.Auditor, f.Clock)
	ctx := context.Background()

	p := create(t, f, svc, model.CreatePromotionRequest{
		Code:          "save10",
		DiscountType:  model.DiscountTypePercentage,
		DiscountValue: dec("10"),
		UsageLimit:    servicetest.Ptr(5),
	})
	assert.Equal(t, "SAVE10", p.Code)
	p.UsageCount = 4
	require.NoError(t, f.Repos.Promotions.Update(ctx, p))

	res, err := svc.Validate(ctx, f.Client, model.ValidatePromotionRequest{Code: " Save10 ", Amount: dec("100.00")})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.True(t, res.Discount.Equal(dec("10.00")))
	assert.True(t, res.FinalAmount.Equal(dec("90.00")))

	require.NoError(t, svc.Redeem(ctx, p.ID))

	res, err = svc.Validate(ctx, f.Client, model.ValidatePromotionRequest{Code: "SAVE10", Amount: dec("100.00")})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, []string{ReasonExhausted}, res.Errors)
	assert.True(t, res.FinalAmount.Equal(dec("100.00")))

	err = svc.Redeem(ctx, p.ID)
	assert.True(t, errors.IsKind(err, errors.KindConflict))

	stored, err := f.Repos.Promotions.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.UsageCount)
}

func TestFixedDiscountIsCapped(t *testing.T) {
	f := servicetest.New(t)
	svc := NewService(f.Repos, f.Auditor, f.Clock)

	create(t, f, svc, model.CreatePromotionRequest{Code: "TENOFF", DiscountType: model.DiscountTypeFixed, DiscountValue: dec("10")})

	res, err := svc.Validate(context.Background(), f.Client, model.ValidatePromotionRequest{Code: "tenoff", Amount: dec("6.50")})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.True(t, res.Discount.Equal(dec("6.50")))
	assert.True(t, res.FinalAmount.IsZero())
}

func TestEvaluateRejections(t *testing.T) {
	f := servicetest.New(t)
	svc := NewService(f.Repos, f.Auditor, f.Clock)
	ctx := context.Background()
	now := f.Clock.Now()

	create(t, f, svc, model.CreatePromotionRequest{
		Code: "LATER", DiscountType: model.DiscountTypeFixed, DiscountValue: dec("5"),
		ValidFrom: servicetest.Ptr(now.Add(24 * time.Hour)),
	})
	create(t, f, svc, model.CreatePromotionRequest{
		Code: "COLORONLY", DiscountType: model.DiscountTypeFixed, DiscountValue: dec("5"),
		ServiceIDs: []uuid.UUID{uuid.New()},
	})
	off := create(t, f, svc, model.CreatePromotionRequest{Code: "OFF", DiscountType: model.DiscountTypeFixed, DiscountValue: dec("5")})
	_, err := svc.Deactivate(ctx, f.Admin, off.ID)
	require.NoError(t, err)

	tests := []struct {
		code   string
		reason string
	}{
		{"NOPE", ReasonNotFound},
		{"LATER", ReasonOutsideWindow},
		{"COLORONLY", ReasonServiceNotCovered},
		{"OFF", ReasonInactive},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			res, err := svc.Evaluate(ctx, tt.code, f.Client.UserID, []uuid.UUID{f.Service.ID}, dec("50"))
			require.NoError(t, err)
			assert.False(t, res.Valid)
			assert.Contains(t, res.Errors, tt.reason)
			assert.True(t, res.Discount.IsZero())
		})
	}
}

func TestFirstBookingOnly(t *testing.T) {
	f := servicetest.New(t)
	svc := NewService(f.Repos, f.Auditor, f.Clock)
	ctx := context.Background()

	create(t, f, svc, model.CreatePromotionRequest{
		Code: "WELCOME", DiscountType: model.DiscountTypePercentage, DiscountValue: dec("20"), IsFirstBookingOnly: true,
	})

	res, err := svc.Evaluate(ctx, "WELCOME", f.Client.UserID, nil, dec("50"))
	require.NoError(t, err)
	assert.True(t, res.Valid)

	f.Seed(t, &model.Reservation{ScheduledAt: f.Clock.Now().Add(-48 * time.Hour), Status: model.ReservationStatusCompleted})

	res, err = svc.Evaluate(ctx, "WELCOME", f.Client.UserID, nil, dec("50"))
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, []string{ReasonFirstBookingOnly}, res.Errors)

	res, err = svc.Evaluate(ctx, "WELCOME", f.OtherClient.UserID, nil, dec("50"))
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestCreateRules(t *testing.T) {
	f := servicetest.New(t)
	svc := NewService(f.Repos, f.Auditor, f.Clock)
	ctx := context.Background()

	_, err := svc.Create(ctx, f.Client, model.CreatePromotionRequest{Code: "X10", DiscountType: model.DiscountTypeFixed, DiscountValue: dec("1")})
	assert.True(t, errors.IsKind(err, errors.KindForbidden))

	_, err = svc.Create(ctx, f.Admin, model.CreatePromotionRequest{Code: "BIG", DiscountType: model.DiscountTypePercentage, DiscountValue: dec("150")})
	assert.True(t, errors.IsKind(err, errors.KindValidation))

	create(t, f, svc, model.CreatePromotionRequest{Code: "DUP", DiscountType: model.DiscountTypeFixed, DiscountValue: dec("1")})
	_, err = svc.Create(ctx, f.Admin, model.CreatePromotionRequest{Code: "dup", DiscountType: model.DiscountTypeFixed, DiscountValue: dec("1")})
	assert.True(t, errors.IsKind(err, errors.KindConflict))
}

func TestListPublic(t *testing.T) {
	f := servicetest.New(t)
	svc := NewService(f.Repos, f.Auditor, f.Clock)

	create(t, f, svc, model.CreatePromotionRequest{Code: "PUBLIC", DiscountType: model.DiscountTypeFixed, DiscountValue: dec("1"), IsPublic: true})
	create(t, f, svc, model.CreatePromotionRequest{Code: "PRIVATE", DiscountType: model.DiscountTypeFixed, DiscountValue: dec("1")})

	list, err := svc.ListPublic(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "PUBLIC", list[0].Code)
}
