// Package notification turns domain events into notifications for the
// counter-party of a change, and serves a user's notification inbox.
package notification

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/salon-api/internal/email"
	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
	"github.com/jwalitptl/salon-api/internal/sms"
	"github.com/jwalitptl/salon-api/pkg/clock"
	"github.com/jwalitptl/salon-api/pkg/errors"
	"github.com/jwalitptl/salon-api/pkg/event"
	"github.com/jwalitptl/salon-api/pkg/logger"
	"github.com/jwalitptl/salon-api/pkg/messaging"
	"github.com/jwalitptl/salon-api/pkg/metrics"
)

const (
	channelInApp = "in_app"
	channelEmail = "email"
	channelSMS   = "sms"

	timeLayout = "Mon 2 Jan 2006 15:04 MST"
)

type Service struct {
	repo     repository.NotificationRepository
	users    repository.UserRepository
	emailSvc email.Service
	sms      sms.Sender
	clock    clock.Clock
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

// NewService builds the dispatcher. emailSvc and smsSender are optional
// extra channels; in-app notifications are always stored.
func NewService(repos *repository.Repositories, emailSvc email.Service, smsSender sms.Sender, clk clock.Clock, m *metrics.Metrics, log *logger.Logger) *Service {
	return &Service{
		repo:     repos.Notifications,
		users:    repos.Users,
		emailSvc: emailSvc,
		sms:      smsSender,
		clock:    clk,
		metrics:  m,
		logger:   log.WithComponent("notification"),
	}
}

// Run consumes the event channel until ctx is done
func (s *Service) Run(ctx context.Context, broker messaging.Broker) error {
	s.logger.Info("Starting notification dispatcher", "channel", event.Channel)
	return messaging.Consume(ctx, broker, event.Channel, s.Handle, func(err error) {
		s.logger.Error(err, "Failed to dispatch notification")
	})
}

// Handle processes one published envelope. Redelivered envelopes do not
// produce duplicates.
func (s *Service) Handle(ctx context.Context, raw []byte) error {
	var env event.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to decode envelope: %w", err)
	}

	drafts, err := s.drafts(env)
	if err != nil {
		return err
	}
	for _, n := range drafts {
		if err := s.deliver(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

// drafts maps an envelope to the notifications it causes
func (s *Service) drafts(env event.Envelope) ([]*model.Notification, error) {
	switch env.Type {
	case event.ReservationCreated, event.ReservationConfirmed, event.ReservationCompleted,
		event.ReservationRescheduled, event.ReservationCancelled:
		var p event.ReservationPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", env.Type, err)
		}
		kind, title, message := describeReservation(env.Type, p)
		var out []*model.Notification
		for _, userID := range counterParties(p) {
			out = append(out, s.draft(env, userID, kind, title, message, &p.ReservationID))
		}
		return out, nil

	case event.PaymentRefunded:
		var p event.PaymentPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", env.Type, err)
		}
		message := fmt.Sprintf("Your payment was refunded. Total refunded: %s %s of %s.",
			p.RefundAmount.StringFixed(2), strings.ToUpper(p.Currency), p.Amount.StringFixed(2))
		return []*model.Notification{
			s.draft(env, p.UserID, model.NotificationPaymentRefunded, "Refund issued", message, p.ReservationID),
		}, nil
	}
	return nil, nil
}

func (s *Service) draft(env event.Envelope, userID uuid.UUID, kind model.NotificationType, title, message string, reservationID *uuid.UUID) *model.Notification {
	eventID := env.ID
	return &model.Notification{
		ID:            uuid.New(),
		UserID:        userID,
		Type:          kind,
		Title:         title,
		Message:       message,
		ReservationID: reservationID,
		EventID:       &eventID,
		SentAt:        s.clock.Now(),
	}
}

// counterParties is everyone involved except the user who made the change.
// Changes made by the system notify both sides.
func counterParties(p event.ReservationPayload) []uuid.UUID {
	involved := []uuid.UUID{p.ClientID}
	if p.StylistUserID != nil && *p.StylistUserID != p.ClientID {
		involved = append(involved, *p.StylistUserID)
	}
	if p.ActorID == nil {
		return involved
	}
	out := involved[:0]
	for _, id := range involved {
		if id != *p.ActorID {
			out = append(out, id)
		}
	}
	return out
}

func describeReservation(t event.EventType, p event.ReservationPayload) (model.NotificationType, string, string) {
	when := p.ScheduledAt.UTC().Format(timeLayout)
	service := p.ServiceName
	if service == "" {
		service = "appointment"
	}
	switch t {
	case event.ReservationCreated:
		return model.NotificationReservationCreated, "New reservation",
			fmt.Sprintf("A %s was booked for %s.", service, when)
	case event.ReservationConfirmed:
		return model.NotificationReservationConfirmed, "Reservation confirmed",
			fmt.Sprintf("Your %s on %s is confirmed.", service, when)
	case event.ReservationCompleted:
		return model.NotificationReservationCompleted, "Reservation completed",
			fmt.Sprintf("The %s on %s was completed.", service, when)
	case event.ReservationRescheduled:
		msg := fmt.Sprintf("The %s was moved to %s.", service, when)
		if p.PreviousAt != nil {
			msg = fmt.Sprintf("The %s on %s was moved to %s.", service, p.PreviousAt.UTC().Format(timeLayout), when)
		}
		return model.NotificationReservationRescheduled, "Reservation rescheduled", msg
	default:
		msg := fmt.Sprintf("The %s on %s was cancelled.", service, when)
		if p.Reason != "" {
			msg += " Reason: " + p.Reason
		}
		return model.NotificationReservationCancelled, "Reservation cancelled", msg
	}
}

func (s *Service) deliver(ctx context.Context, n *model.Notification) error {
	if err := s.repo.Create(ctx, n); err != nil {
		if stderrors.Is(err, repository.ErrConflict) {
			s.logger.Debug("Notification already delivered", "event_id", n.EventID, "user_id", n.UserID)
			return nil
		}
		s.metrics.Notifications.WithLabelValues(channelInApp, "error").Inc()
		return fmt.Errorf("failed to store notification: %w", err)
	}
	s.metrics.Notifications.WithLabelValues(channelInApp, "sent").Inc()

	if s.emailSvc == nil && s.sms == nil {
		return nil
	}
	user, err := s.users.Get(ctx, n.UserID)
	if err != nil {
		s.logger.Error(err, "Failed to load notification recipient", "user_id", n.UserID)
		return nil
	}
	if s.emailSvc != nil && user.Email != "" {
		s.external(channelEmail, s.emailSvc.SendCustom(ctx, user.Email, n.Title, n.Message), n)
	}
	if s.sms != nil && user.Phone != nil {
		s.external(channelSMS, s.sms.Send(ctx, *user.Phone, n.Title+": "+n.Message), n)
	}
	return nil
}

// external records the outcome of a best effort channel
func (s *Service) external(channel string, err error, n *model.Notification) {
	if err != nil {
		s.metrics.Notifications.WithLabelValues(channel, "error").Inc()
		s.logger.Error(err, "Failed to send notification", "channel", channel, "notification_id", n.ID)
		return
	}
	s.metrics.Notifications.WithLabelValues(channel, "sent").Inc()
}

func (s *Service) List(ctx context.Context, actor model.Actor, unreadOnly bool, page model.Pagination) ([]*model.Notification, int64, error) {
	page.Normalize()
	items, total, err := s.repo.ListByUser(ctx, actor.UserID, unreadOnly, page)
	if err != nil {
		return nil, 0, errors.Internal(fmt.Errorf("failed to list notifications: %w", err))
	}
	return items, total, nil
}

func (s *Service) MarkRead(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	if err := s.repo.MarkRead(ctx, actor.UserID, id, s.clock.Now()); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return errors.NotFound("notification", err)
		}
		return errors.Internal(fmt.Errorf("failed to mark notification read: %w", err))
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, actor model.Actor) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, actor.UserID, s.clock.Now())
	if err != nil {
		return 0, errors.Internal(fmt.Errorf("failed to mark notifications read: %w", err))
	}
	return n, nil
}
