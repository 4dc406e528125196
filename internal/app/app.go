// Package app wires the domain services shared by cmd/api and cmd/worker.
package app

import (
	"github.com/jwalitptl/salon-api/internal/config"
	"github.com/jwalitptl/salon-api/internal/email"
	"github.com/jwalitptl/salon-api/internal/gateway"
	"github.com/jwalitptl/salon-api/internal/repository"
	"github.com/jwalitptl/salon-api/internal/service/audit"
	"github.com/jwalitptl/salon-api/internal/service/availability"
	"github.com/jwalitptl/salon-api/internal/service/booking"
	"github.com/jwalitptl/salon-api/internal/service/catalog"
	eventsvc "github.com/jwalitptl/salon-api/internal/service/event"
	"github.com/jwalitptl/salon-api/internal/service/invoice"
	"github.com/jwalitptl/salon-api/internal/service/notification"
	"github.com/jwalitptl/salon-api/internal/service/payment"
	"github.com/jwalitptl/salon-api/internal/service/promotion"
	"github.com/jwalitptl/salon-api/internal/sms"
	"github.com/jwalitptl/salon-api/pkg/clock"
	"github.com/jwalitptl/salon-api/pkg/logger"
	"github.com/jwalitptl/salon-api/pkg/metrics"
)

type Deps struct {
	Repos   *repository.Repositories
	Gateway gateway.Gateway
	// Email and SMS are optional; leave them nil to disable the channel
	Email   email.Service
	SMS     sms.Sender
	Clock   clock.Clock
	Metrics *metrics.Metrics
	Logger  *logger.Logger
}

type App struct {
	Repos         *repository.Repositories
	Recorder      *audit.Recorder
	Audit         *audit.Service
	Catalog       *catalog.Service
	Availability  *availability.Service
	Promotions    *promotion.Service
	Invoices      *invoice.Service
	Bookings      *booking.Service
	Payments      *payment.Service
	Webhooks      *payment.WebhookProcessor
	Notifications *notification.Service
}

func New(d Deps, cfg *config.Config) *App {
	a := &App{Repos: d.Repos}
	emitter := eventsvc.NewEmitter(d.Repos.Outbox, d.Clock)

	a.Recorder = audit.NewRecorder(d.Repos.Audit, d.Logger, d.Metrics, d.Clock)
	a.Audit = audit.NewService(d.Repos.Audit, d.Clock)
	a.Catalog = catalog.NewService(d.Repos, a.Recorder, d.Clock, cfg.ToCatalog())
	a.Availability = availability.NewService(d.Repos, a.Catalog, a.Recorder, d.Clock, cfg.ToAvailability())
	a.Promotions = promotion.NewService(d.Repos, a.Recorder, d.Clock)
	a.Invoices = invoice.NewService(d.Repos, a.Catalog, emitter, a.Recorder, d.Clock)

	a.Bookings = booking.NewService(booking.Deps{
		Repos:        d.Repos,
		Catalog:      a.Catalog,
		Availability: a.Availability,
		Promotions:   a.Promotions,
		Invoices:     a.Invoices,
		Gateway:      d.Gateway,
		Emitter:      emitter,
		Auditor:      a.Recorder,
		Clock:        d.Clock,
		Metrics:      d.Metrics,
		Logger:       d.Logger,
	}, cfg.ToBooking())

	a.Payments = payment.NewService(payment.Deps{
		Repos:    d.Repos,
		Catalog:  a.Catalog,
		Invoices: a.Invoices,
		Gateway:  d.Gateway,
		Emitter:  emitter,
		Auditor:  a.Recorder,
		Clock:    d.Clock,
		Metrics:  d.Metrics,
		Logger:   d.Logger,
	}, cfg.ToPayment())
	a.Webhooks = payment.NewWebhookProcessor(a.Payments, cfg.Server.WebhookQueueSize, d.Logger, d.Metrics)

	a.Notifications = notification.NewService(d.Repos, d.Email, d.SMS, d.Clock, d.Metrics, d.Logger)
	return a
}
