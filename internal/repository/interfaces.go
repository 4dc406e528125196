package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/salon-api/internal/model"
)

// TxManager runs fn inside a unit of work. The transaction travels in the
// context, so repositories called with that context join it. Nested calls
// join the outer transaction.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type BranchRepository interface {
	Create(ctx context.Context, branch *model.Branch) error
	Get(ctx context.Context, id uuid.UUID) (*model.Branch, error)
	List(ctx context.Context, activeOnly bool) ([]*model.Branch, error)
	Update(ctx context.Context, branch *model.Branch) error
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	Get(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

type ServiceRepository interface {
	Create(ctx context.Context, service *model.Service) error
	Get(ctx context.Context, id uuid.UUID) (*model.Service, error)
	List(ctx context.Context, filter model.ServiceFilter) ([]*model.Service, error)
	Update(ctx context.Context, service *model.Service) error
}

type StylistRepository interface {
	Create(ctx context.Context, stylist *model.Stylist) error
	Get(ctx context.Context, id uuid.UUID) (*model.Stylist, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Stylist, error)
	List(ctx context.Context, branchID *uuid.UUID, activeOnly bool) ([]*model.Stylist, error)
	Update(ctx context.Context, stylist *model.Stylist) error
}

type AvailabilityRepository interface {
	ListRules(ctx context.Context, stylistID uuid.UUID) ([]*model.AvailabilityRule, error)
	ListRulesForDay(ctx context.Context, stylistID uuid.UUID, dayOfWeek int) ([]*model.AvailabilityRule, error)
	// ReplaceRules swaps the whole weekly schedule of a stylist
	ReplaceRules(ctx context.Context, stylistID uuid.UUID, rules []*model.AvailabilityRule) error
	CreateBlackout(ctx context.Context, blackout *model.Blackout) error
	DeleteBlackout(ctx context.Context, stylistID, id uuid.UUID) error
	ListBlackouts(ctx context.Context, stylistID uuid.UUID, from, to time.Time) ([]*model.Blackout, error)
}

type ReservationRepository interface {
	Create(ctx context.Context, reservation *model.Reservation) error
	Get(ctx context.Context, id uuid.UUID) (*model.Reservation, error)
	// GetForUpdate row-locks the reservation for the rest of the transaction
	GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Reservation, error)
	Update(ctx context.Context, reservation *model.Reservation) error
	List(ctx context.Context, filter model.ReservationFilter) ([]*model.Reservation, int64, error)
	// ListActiveInRange returns non-cancelled reservations of scope that
	// intersect [from, to)
	ListActiveInRange(ctx context.Context, scope model.ScheduleScope, from, to time.Time, excludeID *uuid.UUID) ([]*model.Reservation, error)
	CountCompletedByClient(ctx context.Context, clientID uuid.UUID) (int, error)
	// LockSchedule serializes bookings for scope until the transaction ends
	LockSchedule(ctx context.Context, scope model.ScheduleScope) error
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *model.Payment) error
	Get(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	GetByIntentID(ctx context.Context, intentID string) (*model.Payment, error)
	GetByIntentIDForUpdate(ctx context.Context, intentID string) (*model.Payment, error)
	GetByReservation(ctx context.Context, reservationID uuid.UUID) (*model.Payment, error)
	Update(ctx context.Context, payment *model.Payment) error
}

type InvoiceRepository interface {
	// NextSequence atomically allocates the next number for (branch, year)
	NextSequence(ctx context.Context, branchID uuid.UUID, year int) (int64, error)
	Create(ctx context.Context, invoice *model.Invoice) error
	Get(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
	GetByPayment(ctx context.Context, paymentID uuid.UUID) (*model.Invoice, error)
	Update(ctx context.Context, invoice *model.Invoice) error
	List(ctx context.Context, filter model.InvoiceFilter) ([]*model.Invoice, int64, error)
}

type PromotionRepository interface {
	Create(ctx context.Context, promotion *model.Promotion) error
	Get(ctx context.Context, id uuid.UUID) (*model.Promotion, error)
	GetByCode(ctx context.Context, code string) (*model.Promotion, error)
	List(ctx context.Context, publicOnly bool) ([]*model.Promotion, error)
	Update(ctx context.Context, promotion *model.Promotion) error
	// IncrementUsage bumps usage_count by one or fails with ErrLimitReached
	IncrementUsage(ctx context.Context, id uuid.UUID) error
}

type AuditRepository interface {
	Create(ctx context.Context, log *model.AuditLog) error
	ListWithPagination(ctx context.Context, filter model.AuditFilter) ([]*model.AuditLog, int64, error)
	GetAggregateStats(ctx context.Context, filter model.AuditFilter) (*model.AggregateStats, error)
	Cleanup(ctx context.Context, before time.Time) (int64, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, notification *model.Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, page model.Pagination) ([]*model.Notification, int64, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID, at time.Time) error
	MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)
}

type OutboxRepository interface {
	Create(ctx context.Context, event *model.OutboxEvent) error
	// GetPendingEventsWithLock claims up to limit pending events, plus
	// processing events whose claim is older than staleAfter
	GetPendingEventsWithLock(ctx context.Context, limit int, staleAfter time.Duration) ([]*model.OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	// MarkFailed records the error and returns the event to pending until
	// maxRetries is reached
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, maxRetries int) error
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}

// Repositories bundles one implementation of every repository
type Repositories struct {
	Tx            TxManager
	Branches      BranchRepository
	Users         UserRepository
	Services      ServiceRepository
	Stylists      StylistRepository
	Availability  AvailabilityRepository
	Reservations  ReservationRepository
	Payments      PaymentRepository
	Invoices      InvoiceRepository
	Promotions    PromotionRepository
	Audit         AuditRepository
	Notifications NotificationRepository
	Outbox        OutboxRepository
}
