package model

import (
	"time"

	"github.com/google/uuid"
)

type Branch struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Code      int       `json:"code" db:"code"`
	Address   string    `json:"address" db:"address"`
	Phone     *string   `json:"phone,omitempty" db:"phone"`
	Timezone  string    `json:"timezone" db:"timezone"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CreateBranchRequest struct {
	Name     string  `json:"name" validate:"required,max=120"`
	Code     int     `json:"code" validate:"required,min=1,max=999"`
	Address  string  `json:"address" validate:"required"`
	Phone    *string `json:"phone"`
	Timezone string  `json:"timezone" validate:"omitempty,timezone"`
}
