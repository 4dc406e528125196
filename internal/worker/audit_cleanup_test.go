package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository/memory"
	"github.com/jwalitptl/salon-api/internal/service/audit"
	"github.com/jwalitptl/salon-api/pkg/clock"
	"github.com/jwalitptl/salon-api/pkg/logger"
	"github.com/jwalitptl/salon-api/pkg/metrics"
)

var now = time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)

func newWorker(store *memory.Store, cfg CleanupConfig) *AuditCleanupWorker {
	clk := clock.NewMock(now)
	recorder := audit.NewRecorder(store.Audit(), logger.Nop(), metrics.NewNop(), clk)
	return NewAuditCleanupWorker(audit.NewService(store.Audit(), clk), recorder, store.Outbox(), clk, cfg, logger.Nop())
}

func TestCleanupAuditRecordsRun(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	for _, age := range []int{400, 366, 10} {
		require.NoError(t, store.Audit().Create(ctx, &model.AuditLog{
			ID:        uuid.New(),
			Action:    model.AuditActionUpdate,
			TableName: "reservations",
			RecordID:  uuid.NewString(),
			CreatedAt: now.AddDate(0, 0, -age),
		}))
	}

	w := newWorker(store, CleanupConfig{})
	deleted, err := w.CleanupAudit(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	logs, total, err := store.Audit().ListWithPagination(ctx, model.AuditFilter{Action: model.AuditActionCleanup})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, "audit_logs", logs[0].TableName)
	assert.Equal(t, "cleanup-worker", logs[0].UserAgent)

	var summary map[string]string
	require.NoError(t, json.Unmarshal(logs[0].NewValues, &summary))
	assert.Equal(t, "2", summary["deleted"])
	assert.Equal(t, "365", summary["days_to_keep"])
}

func TestPurgeOutboxKeepsRecentAndPending(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	add := func(status model.OutboxStatus, processedAgo time.Duration) {
		processed := now.Add(-processedAgo)
		require.NoError(t, store.Outbox().Create(ctx, &model.OutboxEvent{
			ID:          uuid.New(),
			EventType:   "reservation.created",
			Status:      status,
			ProcessedAt: &processed,
			CreatedAt:   processed,
		}))
	}
	add(model.OutboxStatusProcessed, 8*24*time.Hour)
	add(model.OutboxStatusProcessed, time.Hour)
	add(model.OutboxStatusFailed, 30*24*time.Hour)

	w := newWorker(store, CleanupConfig{})
	deleted, err := w.PurgeOutbox(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
	assert.Len(t, store.Events(), 2)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	w := newWorker(memory.NewStore(), CleanupConfig{AuditSchedule: "every tuesday"})
	assert.Error(t, w.Start(context.Background()))
}

func TestStartStopsWithContext(t *testing.T) {
	w := newWorker(memory.NewStore(), CleanupConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
