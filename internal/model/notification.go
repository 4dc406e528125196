package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationReservationCreated     NotificationType = "reservation_created"
	NotificationReservationConfirmed   NotificationType = "reservation_confirmed"
	NotificationReservationCompleted   NotificationType = "reservation_completed"
	NotificationReservationRescheduled NotificationType = "reservation_rescheduled"
	NotificationReservationCancelled   NotificationType = "reservation_cancelled"
	NotificationPaymentRefunded        NotificationType = "payment_refunded"
)

type Notification struct {
	ID            uuid.UUID        `json:"id" db:"id"`
	UserID        uuid.UUID        `json:"user_id" db:"user_id"`
	Type          NotificationType `json:"type" db:"type"`
	Title         string           `json:"title" db:"title"`
	Message       string           `json:"message" db:"message"`
	ReservationID *uuid.UUID       `json:"reservation_id,omitempty" db:"reservation_id"`
	EventID       *uuid.UUID       `json:"-" db:"event_id"`
	IsRead        bool             `json:"is_read" db:"is_read"`
	ReadAt        *time.Time       `json:"read_at,omitempty" db:"read_at"`
	SentAt        time.Time        `json:"sent_at" db:"sent_at"`
}
