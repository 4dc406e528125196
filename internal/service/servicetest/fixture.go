// Package servicetest builds an in-memory salon for service tests.
package servicetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
	"github.com/jwalitptl/salon-api/internal/repository/memory"
	"github.com/jwalitptl/salon-api/internal/service/audit"
	"github.com/jwalitptl/salon-api/internal/service/catalog"
	"github.com/jwalitptl/salon-api/pkg/clock"
	"github.com/jwalitptl/salon-api/pkg/logger"
	"github.com/jwalitptl/salon-api/pkg/metrics"
)

const Timezone = "America/Costa_Rica"

type Fixture struct {
	Store   *memory.Store
	Repos   *repository.Repositories
	Clock   *clock.Mock
	Metrics *metrics.Metrics
	Log     *logger.Logger
	Auditor *audit.Recorder
	Catalog *catalog.Service
	Loc     *time.Location

	Admin        model.Actor
	Client       model.Actor
	OtherClient  model.Actor
	StylistActor model.Actor

	Branch  *model.Branch
	Service *model.Service
	Stylist *model.Stylist
}

// New seeds one branch (code 1), a 50.00 / 60 minute service and a stylist
// working Monday to Saturday 09:00-18:00. The clock is set to Sunday
// 2025-06-01 06:00 branch time.
func New(t *testing.T) *Fixture {
	t.Helper()

	loc, err := time.LoadLocation(Timezone)
	require.NoError(t, err)

	store := memory.NewStore()
	f := &Fixture{
		Store:   store,
		Repos:   store.Repositories(),
		Clock:   clock.NewMock(time.Date(2025, 6, 1, 6, 0, 0, 0, loc)),
		Metrics: metrics.NewNop(),
		Log:     logger.Nop(),
		Loc:     loc,
		Admin:   model.Actor{UserID: uuid.New(), Role: model.RoleAdmin},
	}
	f.Auditor = audit.NewRecorder(store.Audit(), f.Log, f.Metrics, f.Clock)
	f.Catalog = catalog.NewService(f.Repos, f.Auditor, f.Clock, catalog.Config{DefaultTimezone: Timezone})

	ctx := context.Background()
	f.Branch, err = f.Catalog.CreateBranch(ctx, f.Admin, model.CreateBranchRequest{Name: "Escazú", Code: 1, Address: "Escazú centro", Timezone: Timezone})
	require.NoError(t, err)

	f.Service, err = f.Catalog.CreateService(ctx, f.Admin, model.CreateServiceRequest{
		BranchID:        f.Branch.ID,
		Name:            "Haircut",
		Price:           decimal.RequireFromString("50.00"),
		DurationMinutes: 60,
		Category:        "hair",
	})
	require.NoError(t, err)

	f.Client = f.NewUser(t, model.RoleClient)
	f.OtherClient = f.NewUser(t, model.RoleClient)
	f.StylistActor = f.NewUser(t, model.RoleStylist)

	f.Stylist = f.NewStylist(t, f.StylistActor)
	return f
}

func (f *Fixture) NewUser(t *testing.T, role model.Role) model.Actor {
	t.Helper()
	id := uuid.New()
	user, err := f.Catalog.CreateUser(context.Background(), f.Admin, model.CreateUserRequest{
		Name:  string(role) + " " + id.String()[:8],
		Email: id.String() + "@example.com",
		Role:  role,
	})
	require.NoError(t, err)
	return model.Actor{UserID: user.ID, Role: user.Role}
}

// NewStylist creates a stylist profile for actor with the weekday schedule
func (f *Fixture) NewStylist(t *testing.T, actor model.Actor) *model.Stylist {
	t.Helper()
	stylist, err := f.Catalog.CreateStylist(context.Background(), f.Admin, model.CreateStylistRequest{
		UserID:      actor.UserID,
		BranchID:    f.Branch.ID,
		DisplayName: "Stylist " + actor.UserID.String()[:8],
	})
	require.NoError(t, err)

	var rules []*model.AvailabilityRule
	for day := 1; day <= 6; day++ {
		rules = append(rules, &model.AvailabilityRule{
			ID:          uuid.New(),
			StylistID:   stylist.ID,
			DayOfWeek:   day,
			StartTime:   model.NewClockTime(9, 0),
			EndTime:     model.NewClockTime(18, 0),
			IsAvailable: true,
			CreatedAt:   f.Clock.Now(),
		})
	}
	require.NoError(t, f.Repos.Availability.ReplaceRules(context.Background(), stylist.ID, rules))
	return stylist
}

// At returns date ("2006-01-02") and clock ("15:04") in branch time
func (f *Fixture) At(t *testing.T, date, hhmm string) time.Time {
	t.Helper()
	ts, err := time.ParseInLocation("2006-01-02 15:04", date+" "+hhmm, f.Loc)
	require.NoError(t, err)
	return ts
}

// Seed inserts a reservation directly, bypassing the booking engine
func (f *Fixture) Seed(t *testing.T, r *model.Reservation) *model.Reservation {
	t.Helper()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.ServiceID == uuid.Nil {
		r.ServiceID = f.Service.ID
	}
	if r.BranchID == uuid.Nil {
		r.BranchID = f.Branch.ID
	}
	if r.ClientID == uuid.Nil {
		r.ClientID = f.Client.UserID
	}
	if r.DurationMinutes == 0 {
		r.DurationMinutes = f.Service.DurationMinutes
	}
	if r.Status == "" {
		r.Status = model.ReservationStatusConfirmed
	}
	if r.ServicePrice.IsZero() {
		r.ServicePrice = f.Service.Price
		r.TotalPrice = f.Service.Price
	}
	r.CreatedAt = f.Clock.Now()
	r.UpdatedAt = r.CreatedAt
	require.NoError(t, f.Repos.Reservations.Create(context.Background(), r))
	return r
}

func Ptr[T any](v T) *T {
	return &v
}
