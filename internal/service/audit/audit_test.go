package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
	"github.com/jwalitptl/salon-api/internal/repository/memory"
	"github.com/jwalitptl/salon-api/pkg/clock"
	apperrors "github.com/jwalitptl/salon-api/pkg/errors"
	"github.com/jwalitptl/salon-api/pkg/logger"
	"github.com/jwalitptl/salon-api/pkg/metrics"
	"github.com/jwalitptl/salon-api/pkg/requestmeta"
)

var (
	admin  = model.Actor{UserID: uuid.New(), Role: model.RoleAdmin}
	client = model.Actor{UserID: uuid.New(), Role: model.RoleClient}
)

type failingRepo struct {
	repository.AuditRepository
}

func (failingRepo) Create(context.Context, *model.AuditLog) error {
	return errors.New("disk full")
}

func TestRecorderCapturesRequestMeta(t *testing.T) {
	store := memory.NewStore()
	clk := clock.NewMock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	rec := NewRecorder(store.Audit(), logger.Nop(), metrics.NewNop(), clk)

	ctx := requestmeta.WithMeta(context.Background(), requestmeta.Meta{IPAddress: "203.0.113.7", UserAgent: "test-agent"})
	ctx = requestmeta.WithUser(ctx, admin.UserID, string(admin.Role))

	id := uuid.New()
	rec.LogUpdate(ctx, "services", id, map[string]string{"name": "Cut"}, map[string]string{"name": "Cut & Style"})

	logs, total, err := store.Audit().ListWithPagination(context.Background(), model.AuditFilter{})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)

	l := logs[0]
	assert.Equal(t, model.AuditActionUpdate, l.Action)
	assert.Equal(t, "services", l.TableName)
	assert.Equal(t, id.String(), l.RecordID)
	require.NotNil(t, l.UserID)
	assert.Equal(t, admin.UserID, *l.UserID)
	assert.Equal(t, "203.0.113.7", l.IPAddress)
	assert.Equal(t, "test-agent", l.UserAgent)
	assert.JSONEq(t, `{"name":"Cut"}`, string(l.OldValues))
	assert.JSONEq(t, `{"name":"Cut & Style"}`, string(l.NewValues))
	assert.Equal(t, clk.Now(), l.CreatedAt)
}

func TestRecorderSwallowsWriteErrors(t *testing.T) {
	m := metrics.NewNop()
	rec := NewRecorder(failingRepo{}, logger.Nop(), m, clock.Real{})

	assert.NotPanics(t, func() {
		rec.LogCreate(context.Background(), "reservations", uuid.New(), map[string]int{"a": 1})
	})
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AuditWriteErrors))
}

func TestRecorderSwallowsMarshalErrors(t *testing.T) {
	m := metrics.NewNop()
	store := memory.NewStore()
	rec := NewRecorder(store.Audit(), logger.Nop(), m, clock.Real{})

	rec.LogCreate(context.Background(), "reservations", uuid.New(), map[string]interface{}{"bad": make(chan int)})

	_, total, err := store.Audit().ListWithPagination(context.Background(), model.AuditFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AuditWriteErrors))
}

func seed(t *testing.T, store *memory.Store, at time.Time, action string) {
	t.Helper()
	require.NoError(t, store.Audit().Create(context.Background(), &model.AuditLog{
		ID:        uuid.New(),
		Action:    action,
		TableName: "reservations",
		RecordID:  uuid.NewString(),
		IPAddress: "10.0.0.1",
		CreatedAt: at,
	}))
}

func TestServiceRequiresAdmin(t *testing.T) {
	svc := NewService(memory.NewStore().Audit(), clock.Real{})
	ctx := context.Background()

	_, _, err := svc.List(ctx, client, model.AuditFilter{})
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))

	_, err = svc.Stats(ctx, client, model.AuditFilter{})
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))

	_, err = svc.Cleanup(ctx, client, 30)
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))

	err = svc.Export(ctx, client, model.AuditFilter{}, &bytes.Buffer{})
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))
}

func TestCleanupDeletesOnlyOlderRows(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store := memory.NewStore()
	seed(t, store, now.AddDate(0, 0, -100), model.AuditActionCreate)
	seed(t, store, now.AddDate(0, 0, -91), model.AuditActionUpdate)
	seed(t, store, now.AddDate(0, 0, -10), model.AuditActionUpdate)

	svc := NewService(store.Audit(), clock.NewMock(now))
	deleted, err := svc.Cleanup(context.Background(), admin, 90)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, total, err := svc.List(context.Background(), admin, model.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	_, err = svc.Cleanup(context.Background(), admin, 0)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestListFiltersAndStats(t *testing.T) {
	now := time.Now()
	store := memory.NewStore()
	seed(t, store, now.Add(-3*time.Hour), model.AuditActionCreate)
	seed(t, store, now.Add(-2*time.Hour), model.AuditActionUpdate)
	seed(t, store, now.Add(-1*time.Hour), model.AuditActionUpdate)

	svc := NewService(store.Audit(), clock.Real{})
	logs, total, err := svc.List(context.Background(), admin, model.AuditFilter{Action: model.AuditActionUpdate})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.True(t, logs[0].CreatedAt.After(logs[1].CreatedAt), "newest first")

	stats, err := svc.Stats(context.Background(), admin, model.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalLogs)
	assert.Equal(t, 2, stats.ActionCounts[model.AuditActionUpdate])
	assert.Equal(t, 3, stats.TableCounts["reservations"])
	require.Len(t, stats.TopIPs, 1)
	assert.Equal(t, 3, stats.TopIPs[0].Count)
}

func TestExportWritesCSV(t *testing.T) {
	store := memory.NewStore()
	for i := 0; i < 3; i++ {
		seed(t, store, time.Now().Add(-time.Duration(i)*time.Minute), model.AuditActionCreate)
	}

	var buf bytes.Buffer
	svc := NewService(store.Audit(), clock.Real{})
	require.NoError(t, svc.Export(context.Background(), admin, model.AuditFilter{}, &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, model.AuditActionCreate, rows[1][2])
}
