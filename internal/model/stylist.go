package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Stylist struct {
	ID          uuid.UUID `json:"id" db:"id"`
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	BranchID    uuid.UUID `json:"branch_id" db:"branch_id"`
	DisplayName string    `json:"display_name" db:"display_name"`
	Bio         string    `json:"bio" db:"bio"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

type CreateStylistRequest struct {
	UserID      uuid.UUID `json:"user_id" validate:"required"`
	BranchID    uuid.UUID `json:"branch_id" validate:"required"`
	DisplayName string    `json:"display_name" validate:"required,max=120"`
	Bio         string    `json:"bio" validate:"max=2000"`
}

// ClockTime is a wall-clock time of day in minutes since midnight
type ClockTime int

func NewClockTime(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

// ParseClockTime accepts "15:04" and "15:04:05"
func ParseClockTime(s string) (ClockTime, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return NewClockTime(t.Hour(), t.Minute()), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", s)
}

func (c ClockTime) Hour() int   { return int(c) / 60 }
func (c ClockTime) Minute() int { return int(c) % 60 }

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// On places the clock time on the calendar day of date, in date's location
func (c ClockTime) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), 0, 0, date.Location())
}

func (c ClockTime) Value() (driver.Value, error) {
	return c.String() + ":00", nil
}

func (c *ClockTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*c = NewClockTime(v.Hour(), v.Minute())
		return nil
	case []byte:
		return c.parse(string(v))
	case string:
		return c.parse(v)
	}
	return fmt.Errorf("unsupported clock time source %T", src)
}

func (c *ClockTime) parse(s string) error {
	parsed, err := ParseClockTime(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return c.parse(s)
}

// AvailabilityRule is a weekly working window. DayOfWeek follows
// time.Weekday (0 = Sunday).
type AvailabilityRule struct {
	ID          uuid.UUID `json:"id" db:"id"`
	StylistID   uuid.UUID `json:"stylist_id" db:"stylist_id"`
	DayOfWeek   int       `json:"day_of_week" db:"day_of_week"`
	StartTime   ClockTime `json:"start_time" db:"start_time"`
	EndTime     ClockTime `json:"end_time" db:"end_time"`
	IsAvailable bool      `json:"is_available" db:"is_available"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type AvailabilityRuleInput struct {
	DayOfWeek   int       `json:"day_of_week" validate:"min=0,max=6"`
	StartTime   ClockTime `json:"start_time"`
	EndTime     ClockTime `json:"end_time" validate:"gtfield=StartTime"`
	IsAvailable *bool     `json:"is_available"`
}

type SetAvailabilityRequest struct {
	Rules []AvailabilityRuleInput `json:"rules" validate:"dive"`
}

// Blackout blocks a stylist for an absolute time range
type Blackout struct {
	ID        uuid.UUID `json:"id" db:"id"`
	StylistID uuid.UUID `json:"stylist_id" db:"stylist_id"`
	StartsAt  time.Time `json:"starts_at" db:"starts_at"`
	EndsAt    time.Time `json:"ends_at" db:"ends_at"`
	Reason    string    `json:"reason" db:"reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type CreateBlackoutRequest struct {
	StartsAt time.Time `json:"starts_at" validate:"required"`
	EndsAt   time.Time `json:"ends_at" validate:"required,gtfield=StartsAt"`
	Reason   string    `json:"reason" validate:"max=255"`
}

// TimeSlot is a bookable interval
type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps applies the half-open interval rule
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
