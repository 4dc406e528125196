package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
)

type paymentRepository struct{ s *Store }

func (r *paymentRepository) Create(ctx context.Context, p *model.Payment) error {
	return r.s.do(ctx, func() error {
		for _, other := range r.s.payments {
			if other.TransactionCode == p.TransactionCode {
				return repository.ErrConflict
			}
			if p.ProviderIntentID != nil && other.ProviderIntentID != nil && *other.ProviderIntentID == *p.ProviderIntentID {
				return repository.ErrConflict
			}
		}
		r.s.payments[p.ID] = *p
		return nil
	})
}

func (r *paymentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	var out *model.Payment
	err := r.s.do(ctx, func() error {
		p, ok := r.s.payments[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *paymentRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	return r.Get(ctx, id)
}

func (r *paymentRepository) GetByIntentIDForUpdate(ctx context.Context, intentID string) (*model.Payment, error) {
	return r.GetByIntentID(ctx, intentID)
}

func (r *paymentRepository) GetByIntentID(ctx context.Context, intentID string) (*model.Payment, error) {
	var out *model.Payment
	err := r.s.do(ctx, func() error {
		for _, p := range r.s.payments {
			if p.ProviderIntentID != nil && *p.ProviderIntentID == intentID {
				p := p
				out = &p
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r *paymentRepository) GetByReservation(ctx context.Context, reservationID uuid.UUID) (*model.Payment, error) {
	var out *model.Payment
	err := r.s.do(ctx, func() error {
		for _, p := range r.s.payments {
			if p.ReservationID != nil && *p.ReservationID == reservationID {
				p := p
				out = &p
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r *paymentRepository) Update(ctx context.Context, p *model.Payment) error {
	return r.s.do(ctx, func() error {
		if _, ok := r.s.payments[p.ID]; !ok {
			return repository.ErrNotFound
		}
		r.s.payments[p.ID] = *p
		return nil
	})
}

type invoiceRepository struct{ s *Store }

func (r *invoiceRepository) NextSequence(ctx context.Context, branchID uuid.UUID, year int) (int64, error) {
	var next int64
	err := r.s.do(ctx, func() error {
		key := sequenceKey{branchID: branchID, year: year}
		r.s.sequences[key]++
		next = r.s.sequences[key]
		return nil
	})
	return next, err
}

func (r *invoiceRepository) Create(ctx context.Context, inv *model.Invoice) error {
	return r.s.do(ctx, func() error {
		for _, other := range r.s.invoices {
			if other.PaymentID == inv.PaymentID || other.DocumentNumber == inv.DocumentNumber {
				return repository.ErrConflict
			}
		}
		r.s.invoices[inv.ID] = *inv
		return nil
	})
}

func (r *invoiceRepository) Get(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	var out *model.Invoice
	err := r.s.do(ctx, func() error {
		inv, ok := r.s.invoices[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &inv
		return nil
	})
	return out, err
}

func (r *invoiceRepository) GetByPayment(ctx context.Context, paymentID uuid.UUID) (*model.Invoice, error) {
	var out *model.Invoice
	err := r.s.do(ctx, func() error {
		for _, inv := range r.s.invoices {
			if inv.PaymentID == paymentID {
				inv := inv
				out = &inv
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r *invoiceRepository) Update(ctx context.Context, inv *model.Invoice) error {
	return r.s.do(ctx, func() error {
		if _, ok := r.s.invoices[inv.ID]; !ok {
			return repository.ErrNotFound
		}
		r.s.invoices[inv.ID] = *inv
		return nil
	})
}

func (r *invoiceRepository) List(ctx context.Context, f model.InvoiceFilter) ([]*model.Invoice, int64, error) {
	var all []*model.Invoice
	err := r.s.do(ctx, func() error {
		for _, inv := range r.s.invoices {
			if f.BranchID != nil && inv.BranchID != *f.BranchID {
				continue
			}
			if f.HaciendaStatus != nil && inv.HaciendaStatus != *f.HaciendaStatus {
				continue
			}
			if f.From != nil && inv.IssuedAt.Before(*f.From) {
				continue
			}
			if f.To != nil && !inv.IssuedAt.Before(*f.To) {
				continue
			}
			inv := inv
			all = append(all, &inv)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].DocumentNumber > all[j].DocumentNumber })
	return paginate(all, f.Pagination), int64(len(all)), nil
}
