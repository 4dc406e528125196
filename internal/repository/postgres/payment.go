package postgres

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
)

type paymentRepository struct {
	BaseRepository
}

func NewPaymentRepository(base BaseRepository) repository.PaymentRepository {
	return &paymentRepository{base}
}

func (r *paymentRepository) Create(ctx context.Context, p *model.Payment) error {
	_, err := r.exec(ctx, "payment.create", psql.Insert("payments").
		Columns(
			"id", "transaction_code", "reservation_id", "user_id", "branch_id",
			"amount_subtotal", "amount_tip", "amount_discount", "amount_tax", "amount_total",
			"commission_platform", "amount_branch", "amount_stylist",
			"currency", "method", "provider", "provider_intent_id", "provider_charge_id",
			"status", "refund_amount", "failure_reason", "paid_at", "created_at", "updated_at",
		).
		Values(
			p.ID, p.TransactionCode, p.ReservationID, p.UserID, p.BranchID,
			p.AmountSubtotal, p.AmountTip, p.AmountDiscount, p.AmountTax, p.AmountTotal,
			p.CommissionPlatform, p.AmountBranch, p.AmountStylist,
			p.Currency, p.Method, p.Provider, p.ProviderIntentID, p.ProviderChargeID,
			p.Status, p.RefundAmount, p.FailureReason, p.PaidAt, p.CreatedAt, p.UpdatedAt,
		))
	return err
}

func (r *paymentRepository) getOne(ctx context.Context, op string, q squirrel.SelectBuilder) (*model.Payment, error) {
	var p model.Payment
	if err := r.get(ctx, op, &p, q); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	return r.getOne(ctx, "payment.get", psql.Select("*").From("payments").Where(squirrel.Eq{"id": id}))
}

func (r *paymentRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	return r.getOne(ctx, "payment.get_for_update", psql.Select("*").From("payments").
		Where(squirrel.Eq{"id": id}).Suffix("FOR UPDATE"))
}

func (r *paymentRepository) GetByIntentID(ctx context.Context, intentID string) (*model.Payment, error) {
	return r.getOne(ctx, "payment.get_by_intent", psql.Select("*").From("payments").
		Where(squirrel.Eq{"provider_intent_id": intentID}))
}

func (r *paymentRepository) GetByIntentIDForUpdate(ctx context.Context, intentID string) (*model.Payment, error) {
	return r.getOne(ctx, "payment.get_by_intent_for_update", psql.Select("*").From("payments").
		Where(squirrel.Eq{"provider_intent_id": intentID}).Suffix("FOR UPDATE"))
}

func (r *paymentRepository) GetByReservation(ctx context.Context, reservationID uuid.UUID) (*model.Payment, error) {
	return r.getOne(ctx, "payment.get_by_reservation", psql.Select("*").From("payments").
		Where(squirrel.Eq{"reservation_id": reservationID}).
		OrderBy("created_at DESC").Limit(1))
}

func (r *paymentRepository) Update(ctx context.Context, p *model.Payment) error {
	return r.execOne(ctx, "payment.update", psql.Update("payments").
		Set("reservation_id", p.ReservationID).
		Set("provider_intent_id", p.ProviderIntentID).
		Set("provider_charge_id", p.ProviderChargeID).
		Set("status", p.Status).
		Set("refund_amount", p.RefundAmount).
		Set("refund_reason", p.RefundReason).
		Set("refunded_at", p.RefundedAt).
		Set("failure_reason", p.FailureReason).
		Set("paid_at", p.PaidAt).
		Set("updated_at", p.UpdatedAt).
		Where(squirrel.Eq{"id": p.ID}))
}
