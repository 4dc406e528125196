// Package invoice issues sequentially numbered invoices for payments and
// tracks their submission to the tax authority (Hacienda).
package invoice

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
	"github.com/jwalitptl/salon-api/internal/service/audit"
	"github.com/jwalitptl/salon-api/internal/service/catalog"
	eventsvc "github.com/jwalitptl/salon-api/internal/service/event"
	"github.com/jwalitptl/salon-api/pkg/clock"
	"github.com/jwalitptl/salon-api/pkg/errors"
	"github.com/jwalitptl/salon-api/pkg/event"
)

type Service struct {
	tx       repository.TxManager
	invoices repository.InvoiceRepository
	payments repository.PaymentRepository
	catalog  *catalog.Service
	emitter  *eventsvc.Emitter
	auditor  *audit.Recorder
	clock    clock.Clock
}

func NewService(repos *repository.Repositories, catalogSvc *catalog.Service, emitter *eventsvc.Emitter, auditor *audit.Recorder, clk clock.Clock) *Service {
	return &Service{
		tx:       repos.Tx,
		invoices: repos.Invoices,
		payments: repos.Payments,
		catalog:  catalogSvc,
		emitter:  emitter,
		auditor:  auditor,
		clock:    clk,
	}
}

// IssueForPayment returns the invoice of payment, creating it on first
// call. Run it inside the transaction that completes the payment.
func (s *Service) IssueForPayment(ctx context.Context, payment *model.Payment) (*model.Invoice, error) {
	existing, err := s.invoices.GetByPayment(ctx, payment.ID)
	if err == nil {
		return existing, nil
	}
	if !stderrors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up invoice: %w", err)
	}

	branch, err := s.catalog.GetBranch(ctx, payment.BranchID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	year := now.In(s.catalog.Location(branch)).Year()
	seq, err := s.invoices.NextSequence(ctx, branch.ID, year)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate invoice number: %w", err)
	}

	inv := &model.Invoice{
		ID:             uuid.New(),
		PaymentID:      payment.ID,
		BranchID:       branch.ID,
		DocumentNumber: model.FormatDocumentNumber(year, branch.Code, seq),
		Year:           year,
		Sequence:       seq,
		AmountSubtotal: payment.AmountSubtotal,
		AmountDiscount: payment.AmountDiscount,
		AmountTip:      payment.AmountTip,
		AmountTax:      payment.AmountTax,
		AmountTotal:    payment.AmountTotal,
		Currency:       payment.Currency,
		HaciendaStatus: model.HaciendaStatusPending,
		IssuedAt:       now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.invoices.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	if err := s.emitter.Emit(ctx, event.InvoiceIssued, inv.ID, event.InvoicePayload{
		InvoiceID:      inv.ID,
		PaymentID:      payment.ID,
		DocumentNumber: inv.DocumentNumber,
	}); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	inv, err := s.invoices.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.NotFound("invoice", err)
		}
		return nil, errors.Internal(fmt.Errorf("failed to load invoice: %w", err))
	}
	return inv, nil
}

// Get returns an invoice to an administrator or to the payer
func (s *Service) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Invoice, error) {
	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() {
		return inv, nil
	}
	payment, err := s.payments.Get(ctx, inv.PaymentID)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("failed to load payment: %w", err))
	}
	if payment.UserID != actor.UserID {
		return nil, errors.Forbidden("you cannot view this invoice")
	}
	return inv, nil
}

func (s *Service) List(ctx context.Context, actor model.Actor, filter model.InvoiceFilter) ([]*model.Invoice, int64, error) {
	if !actor.IsAdmin() {
		return nil, 0, errors.Forbidden("only administrators can list invoices")
	}
	filter.Normalize()
	invoices, total, err := s.invoices.List(ctx, filter)
	if err != nil {
		return nil, 0, errors.Internal(fmt.Errorf("failed to list invoices: %w", err))
	}
	return invoices, total, nil
}

// UpdateHaciendaStatus records the tax authority's answer:
// pending -> sent -> accepted | rejected, and rejected -> sent on resubmission.
func (s *Service) UpdateHaciendaStatus(ctx context.Context, actor model.Actor, id uuid.UUID, req model.HaciendaStatusRequest) (*model.Invoice, error) {
	if !actor.IsAdmin() {
		return nil, errors.Forbidden("only administrators can update invoices")
	}

	var before, inv *model.Invoice
	err := s.invoicesTx(ctx, id, func(ctx context.Context, loaded *model.Invoice) error {
		if loaded.IsCancelled {
			return errors.Policy("cancelled invoices cannot be submitted")
		}
		if !loaded.HaciendaStatus.CanTransition(req.Status) {
			return errors.Policy(fmt.Sprintf("cannot move hacienda status from %s to %s", loaded.HaciendaStatus, req.Status))
		}
		snapshot := *loaded
		before = &snapshot

		now := s.clock.Now()
		loaded.HaciendaStatus = req.Status
		loaded.HaciendaMessage = req.Message
		if req.Status == model.HaciendaStatusSent {
			loaded.HaciendaSentAt = &now
		}
		loaded.UpdatedAt = now
		inv = loaded
		return s.invoices.Update(ctx, loaded)
	})
	if err != nil {
		return nil, err
	}

	s.auditor.LogUpdate(ctx, "invoices", inv.ID, before, inv)
	return inv, nil
}

func (s *Service) Cancel(ctx context.Context, actor model.Actor, id uuid.UUID, reason string) (*model.Invoice, error) {
	if !actor.IsAdmin() {
		return nil, errors.Forbidden("only administrators can cancel invoices")
	}

	var before, inv *model.Invoice
	err := s.invoicesTx(ctx, id, func(ctx context.Context, loaded *model.Invoice) error {
		if loaded.IsCancelled {
			return errors.Conflict("invoice is already cancelled", nil)
		}
		snapshot := *loaded
		before = &snapshot

		now := s.clock.Now()
		loaded.IsCancelled = true
		loaded.CancelledAt = &now
		loaded.CancellationReason = &reason
		loaded.UpdatedAt = now
		inv = loaded
		return s.invoices.Update(ctx, loaded)
	})
	if err != nil {
		return nil, err
	}

	s.auditor.LogUpdate(ctx, "invoices", inv.ID, before, inv)
	return inv, nil
}

func (s *Service) invoicesTx(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, inv *model.Invoice) error) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		inv, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(ctx, inv); err != nil {
			if _, ok := errors.As(err); ok {
				return err
			}
			return errors.Internal(fmt.Errorf("failed to update invoice: %w", err))
		}
		return nil
	})
}
