package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service is a bookable salon service. Services referenced by reservations
// are never deleted, only deactivated.
type Service struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	BranchID        uuid.UUID       `json:"branch_id" db:"branch_id"`
	Name            string          `json:"name" db:"name"`
	Description     string          `json:"description" db:"description"`
	Price           decimal.Decimal `json:"price" db:"price"`
	DurationMinutes int             `json:"duration_minutes" db:"duration_minutes"`
	Category        string          `json:"category" db:"category"`
	IsActive        bool            `json:"is_active" db:"is_active"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

func (s *Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

type CreateServiceRequest struct {
	BranchID        uuid.UUID       `json:"branch_id" validate:"required"`
	Name            string          `json:"name" validate:"required,max=120"`
	Description     string          `json:"description"`
	Price           decimal.Decimal `json:"price" validate:"gte=0"`
	DurationMinutes int             `json:"duration_minutes" validate:"required,min=5,max=720"`
	Category        string          `json:"category" validate:"max=60"`
}

type UpdateServiceRequest struct {
	Name            *string          `json:"name" validate:"omitempty,max=120"`
	Description     *string          `json:"description"`
	Price           *decimal.Decimal `json:"price" validate:"omitempty,gte=0"`
	DurationMinutes *int             `json:"duration_minutes" validate:"omitempty,min=5,max=720"`
	Category        *string          `json:"category" validate:"omitempty,max=60"`
	IsActive        *bool            `json:"is_active"`
}

type ServiceFilter struct {
	BranchID   *uuid.UUID
	Category   string
	ActiveOnly bool
}
