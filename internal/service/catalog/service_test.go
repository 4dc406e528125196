package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository/memory"
	"github.com/jwalitptl/salon-api/internal/service/audit"
	"github.com/jwalitptl/salon-api/pkg/clock"
	"github.com/jwalitptl/salon-api/pkg/errors"
	"github.com/jwalitptl/salon-api/pkg/logger"
	"github.com/jwalitptl/salon-api/pkg/metrics"
)

var (
	admin  = model.Actor{UserID: uuid.New(), Role: model.RoleAdmin}
	client = model.Actor{UserID: uuid.New(), Role: model.RoleClient}
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	clk := clock.NewMock(time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC))
	rec := audit.NewRecorder(store.Audit(), logger.Nop(), metrics.NewNop(), clk)
	return NewService(store.Repositories(), rec, clk, Config{}), store
}

func createBranch(t *testing.T, svc *Service, code int) *model.Branch {
	t.Helper()
	b, err := svc.CreateBranch(context.Background(), admin, model.CreateBranchRequest{Name: "Centro", Code: code, Address: "San José"})
	require.NoError(t, err)
	return b
}

func TestCreateBranch(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	_, err := svc.CreateBranch(ctx, client, model.CreateBranchRequest{Name: "X", Code: 1, Address: "Y"})
	assert.True(t, errors.IsKind(err, errors.KindForbidden))

	b := createBranch(t, svc, 7)
	assert.Equal(t, "America/Costa_Rica", b.Timezone)
	assert.True(t, b.IsActive)

	_, err = svc.CreateBranch(ctx, admin, model.CreateBranchRequest{Name: "Dup", Code: 7, Address: "Z"})
	assert.True(t, errors.IsKind(err, errors.KindConflict))

	_, err = svc.CreateBranch(ctx, admin, model.CreateBranchRequest{Name: "Bad", Code: 8, Address: "Z", Timezone: "Mars/Olympus"})
	assert.True(t, errors.IsKind(err, errors.KindValidation))

	_, total, err := store.Audit().ListWithPagination(ctx, model.AuditFilter{TableName: "branches"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestUpdateServiceInvalidatesCache(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	b := createBranch(t, svc, 1)

	created, err := svc.CreateService(ctx, admin, model.CreateServiceRequest{
		BranchID:        b.ID,
		Name:            "Haircut",
		Price:           decimal.RequireFromString("50.00"),
		DurationMinutes: 60,
	})
	require.NoError(t, err)

	cached, err := svc.GetService(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, cached.IsActive)

	inactive := false
	price := decimal.RequireFromString("55.555")
	updated, err := svc.UpdateService(ctx, admin, created.ID, model.UpdateServiceRequest{IsActive: &inactive, Price: &price})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.True(t, decimal.RequireFromString("55.56").Equal(updated.Price))

	reloaded, err := svc.GetService(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsActive)
}

func TestCreateServiceUnknownBranch(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.CreateService(context.Background(), admin, model.CreateServiceRequest{
		BranchID:        uuid.New(),
		Name:            "Color",
		Price:           decimal.NewFromInt(80),
		DurationMinutes: 90,
	})
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
}

func TestCreateStylistRequiresStylistRole(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	b := createBranch(t, svc, 2)

	clientUser, err := svc.CreateUser(ctx, admin, model.CreateUserRequest{Name: "Ana", Email: "ana@example.com", Role: model.RoleClient})
	require.NoError(t, err)
	_, err = svc.CreateStylist(ctx, admin, model.CreateStylistRequest{UserID: clientUser.ID, BranchID: b.ID, DisplayName: "Ana"})
	assert.True(t, errors.IsKind(err, errors.KindValidation))

	stylistUser, err := svc.CreateUser(ctx, admin, model.CreateUserRequest{Name: "Leo", Email: "Leo@Example.com", Role: model.RoleStylist})
	require.NoError(t, err)
	assert.Equal(t, "leo@example.com", stylistUser.Email)

	st, err := svc.CreateStylist(ctx, admin, model.CreateStylistRequest{UserID: stylistUser.ID, BranchID: b.ID, DisplayName: "Leo"})
	require.NoError(t, err)

	_, err = svc.CreateStylist(ctx, admin, model.CreateStylistRequest{UserID: stylistUser.ID, BranchID: b.ID, DisplayName: "Leo again"})
	assert.True(t, errors.IsKind(err, errors.KindConflict))

	found, err := svc.StylistForUser(ctx, stylistUser.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, st.ID, found.ID)

	none, err := svc.StylistForUser(ctx, clientUser.ID)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestCreateUserSuperAdminGate(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.CreateUser(context.Background(), admin, model.CreateUserRequest{Name: "Root", Email: "root@example.com", Role: model.RoleSuperAdmin})
	assert.True(t, errors.IsKind(err, errors.KindForbidden))
}
