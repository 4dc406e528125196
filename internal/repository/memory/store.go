// Package memory implements the repositories in process memory. It backs
// the "memory" database driver and the service tests.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
)

type txKey struct{}

type sequenceKey struct {
	branchID uuid.UUID
	year     int
}

// Store holds every table. A single mutex serializes transactions, which
// gives the same isolation a schedule lock gives in postgres.
type Store struct {
	mu sync.Mutex

	branches      map[uuid.UUID]model.Branch
	users         map[uuid.UUID]model.User
	services      map[uuid.UUID]model.Service
	stylists      map[uuid.UUID]model.Stylist
	rules         map[uuid.UUID]model.AvailabilityRule
	blackouts     map[uuid.UUID]model.Blackout
	reservations  map[uuid.UUID]model.Reservation
	payments      map[uuid.UUID]model.Payment
	invoices      map[uuid.UUID]model.Invoice
	sequences     map[sequenceKey]int64
	promotions    map[uuid.UUID]model.Promotion
	auditLogs     []model.AuditLog
	notifications map[uuid.UUID]model.Notification
	outbox        map[uuid.UUID]model.OutboxEvent
}

func NewStore() *Store {
	return &Store{
		branches:      make(map[uuid.UUID]model.Branch),
		users:         make(map[uuid.UUID]model.User),
		services:      make(map[uuid.UUID]model.Service),
		stylists:      make(map[uuid.UUID]model.Stylist),
		rules:         make(map[uuid.UUID]model.AvailabilityRule),
		blackouts:     make(map[uuid.UUID]model.Blackout),
		reservations:  make(map[uuid.UUID]model.Reservation),
		payments:      make(map[uuid.UUID]model.Payment),
		invoices:      make(map[uuid.UUID]model.Invoice),
		sequences:     make(map[sequenceKey]int64),
		promotions:    make(map[uuid.UUID]model.Promotion),
		notifications: make(map[uuid.UUID]model.Notification),
		outbox:        make(map[uuid.UUID]model.OutboxEvent),
	}
}

func (s *Store) Branches() repository.BranchRepository            { return &branchRepository{s} }
func (s *Store) Users() repository.UserRepository                 { return &userRepository{s} }
func (s *Store) Services() repository.ServiceRepository           { return &serviceRepository{s} }
func (s *Store) Stylists() repository.StylistRepository           { return &stylistRepository{s} }
func (s *Store) Availability() repository.AvailabilityRepository  { return &availabilityRepository{s} }
func (s *Store) Reservations() repository.ReservationRepository   { return &reservationRepository{s} }
func (s *Store) Payments() repository.PaymentRepository           { return &paymentRepository{s} }
func (s *Store) Invoices() repository.InvoiceRepository           { return &invoiceRepository{s} }
func (s *Store) Promotions() repository.PromotionRepository       { return &promotionRepository{s} }
func (s *Store) Audit() repository.AuditRepository                { return &auditRepository{s} }
func (s *Store) Notifications() repository.NotificationRepository { return &notificationRepository{s} }
func (s *Store) Outbox() repository.OutboxRepository              { return &outboxRepository{s} }
func (s *Store) TxManager() repository.TxManager                  { return s }

// WithinTx runs fn holding the store lock and restores the previous state
// when fn fails or panics.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// do runs fn under the store lock unless ctx already holds it
func (s *Store) do(ctx context.Context, fn func() error) error {
	if inTx(ctx) {
		return fn()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func (s *Store) snapshot() *Store {
	return &Store{
		branches:      maps.Clone(s.branches),
		users:         maps.Clone(s.users),
		services:      maps.Clone(s.services),
		stylists:      maps.Clone(s.stylists),
		rules:         maps.Clone(s.rules),
		blackouts:     maps.Clone(s.blackouts),
		reservations:  maps.Clone(s.reservations),
		payments:      maps.Clone(s.payments),
		invoices:      maps.Clone(s.invoices),
		sequences:     maps.Clone(s.sequences),
		promotions:    maps.Clone(s.promotions),
		auditLogs:     slices.Clone(s.auditLogs),
		notifications: maps.Clone(s.notifications),
		outbox:        maps.Clone(s.outbox),
	}
}

func (s *Store) restore(snap *Store) {
	s.branches = snap.branches
	s.users = snap.users
	s.services = snap.services
	s.stylists = snap.stylists
	s.rules = snap.rules
	s.blackouts = snap.blackouts
	s.reservations = snap.reservations
	s.payments = snap.payments
	s.invoices = snap.invoices
	s.sequences = snap.sequences
	s.promotions = snap.promotions
	s.auditLogs = snap.auditLogs
	s.notifications = snap.notifications
	s.outbox = snap.outbox
}

func paginate[T any](items []T, p model.Pagination) []T {
	if p.PageSize <= 0 {
		return items
	}
	start := p.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + p.PageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func (s *Store) Repositories() *repository.Repositories {
	return &repository.Repositories{
		Tx:            s,
		Branches:      s.Branches(),
		Users:         s.Users(),
		Services:      s.Services(),
		Stylists:      s.Stylists(),
		Availability:  s.Availability(),
		Reservations:  s.Reservations(),
		Payments:      s.Payments(),
		Invoices:      s.Invoices(),
		Promotions:    s.Promotions(),
		Audit:         s.Audit(),
		Notifications: s.Notifications(),
		Outbox:        s.Outbox(),
	}
}
