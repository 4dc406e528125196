package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/salon-api/internal/repository"
	"github.com/jwalitptl/salon-api/pkg/metrics"
)

func NewRepositories(db *sqlx.DB, m *metrics.Metrics) *repository.Repositories {
	base := NewBaseRepository(db, m)
	return &repository.Repositories{
		Tx:            NewTxManager(db),
		Branches:      NewBranchRepository(base),
		Users:         NewUserRepository(base),
		Services:      NewServiceRepository(base),
		Stylists:      NewStylistRepository(base),
		Availability:  NewAvailabilityRepository(base),
		Reservations:  NewReservationRepository(base),
		Payments:      NewPaymentRepository(base),
		Invoices:      NewInvoiceRepository(base),
		Promotions:    NewPromotionRepository(base),
		Audit:         NewAuditRepository(base),
		Notifications: NewNotificationRepository(base),
		Outbox:        NewOutboxRepository(base),
	}
}
