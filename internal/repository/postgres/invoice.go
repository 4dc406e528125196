package postgres

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
)

type invoiceRepository struct {
	BaseRepository
}

func NewInvoiceRepository(base BaseRepository) repository.InvoiceRepository {
	return &invoiceRepository{base}
}

// NextSequence relies on the row lock taken by the upsert, so concurrent
// issuers for the same branch and year never see the same value.
func (r *invoiceRepository) NextSequence(ctx context.Context, branchID uuid.UUID, year int) (int64, error) {
	var next int64
	q := psql.Insert("invoice_sequences").
		Columns("branch_id", "year", "last_value").
		Values(branchID, year, 1).
		Suffix("ON CONFLICT (branch_id, year) DO UPDATE SET last_value = invoice_sequences.last_value + 1 RETURNING last_value")
	if err := r.get(ctx, "invoice.next_sequence", &next, q); err != nil {
		return 0, err
	}
	return next, nil
}

func (r *invoiceRepository) Create(ctx context.Context, inv *model.Invoice) error {
	_, err := r.exec(ctx, "invoice.create", psql.Insert("invoices").
		Columns(
			"id", "payment_id", "branch_id", "document_number", "year", "sequence",
			"amount_subtotal", "amount_discount", "amount_tip", "amount_tax", "amount_total",
			"currency", "hacienda_status", "is_cancelled", "issued_at", "created_at", "updated_at",
		).
		Values(
			inv.ID, inv.PaymentID, inv.BranchID, inv.DocumentNumber, inv.Year, inv.Sequence,
			inv.AmountSubtotal, inv.AmountDiscount, inv.AmountTip, inv.AmountTax, inv.AmountTotal,
			inv.Currency, inv.HaciendaStatus, inv.IsCancelled, inv.IssuedAt, inv.CreatedAt, inv.UpdatedAt,
		))
	return err
}

func (r *invoiceRepository) Get(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	var inv model.Invoice
	if err := r.get(ctx, "invoice.get", &inv, psql.Select("*").From("invoices").Where(squirrel.Eq{"id": id})); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *invoiceRepository) GetByPayment(ctx context.Context, paymentID uuid.UUID) (*model.Invoice, error) {
	var inv model.Invoice
	if err := r.get(ctx, "invoice.get_by_payment", &inv, psql.Select("*").From("invoices").Where(squirrel.Eq{"payment_id": paymentID})); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *invoiceRepository) Update(ctx context.Context, inv *model.Invoice) error {
	return r.execOne(ctx, "invoice.update", psql.Update("invoices").
		Set("hacienda_status", inv.HaciendaStatus).
		Set("hacienda_message", inv.HaciendaMessage).
		Set("hacienda_sent_at", inv.HaciendaSentAt).
		Set("is_cancelled", inv.IsCancelled).
		Set("cancelled_at", inv.CancelledAt).
		Set("cancellation_reason", inv.CancellationReason).
		Set("updated_at", inv.UpdatedAt).
		Where(squirrel.Eq{"id": inv.ID}))
}

func (r *invoiceRepository) List(ctx context.Context, f model.InvoiceFilter) ([]*model.Invoice, int64, error) {
	where := squirrel.And{}
	if f.BranchID != nil {
		where = append(where, squirrel.Eq{"branch_id": *f.BranchID})
	}
	if f.HaciendaStatus != nil {
		where = append(where, squirrel.Eq{"hacienda_status": *f.HaciendaStatus})
	}
	if f.From != nil {
		where = append(where, squirrel.GtOrEq{"issued_at": *f.From})
	}
	if f.To != nil {
		where = append(where, squirrel.Lt{"issued_at": *f.To})
	}

	var total int64
	if err := r.get(ctx, "invoice.count", &total, psql.Select("COUNT(*)").From("invoices").Where(where)); err != nil {
		return nil, 0, err
	}

	q := psql.Select("*").From("invoices").Where(where).OrderBy("document_number DESC")
	if f.PageSize > 0 {
		q = q.Limit(uint64(f.PageSize)).Offset(uint64(f.Offset()))
	}
	var out []*model.Invoice
	if err := r.selectAll(ctx, "invoice.list", &out, q); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
