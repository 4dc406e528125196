package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
	"github.com/jwalitptl/salon-api/pkg/clock"
	"github.com/jwalitptl/salon-api/pkg/logger"
	"github.com/jwalitptl/salon-api/pkg/metrics"
	"github.com/jwalitptl/salon-api/pkg/requestmeta"
)

// Recorder appends audit rows. It never returns errors: a failed write is
// logged and counted and the caller carries on.
type Recorder struct {
	repo    repository.AuditRepository
	log     *logger.Logger
	metrics *metrics.Metrics
	clock   clock.Clock
}

func NewRecorder(repo repository.AuditRepository, log *logger.Logger, m *metrics.Metrics, clk clock.Clock) *Recorder {
	return &Recorder{
		repo:    repo,
		log:     log.WithComponent("audit"),
		metrics: m,
		clock:   clk,
	}
}

func (r *Recorder) LogCreate(ctx context.Context, table string, recordID uuid.UUID, after interface{}) {
	r.Log(ctx, model.AuditActionCreate, table, recordID.String(), nil, after)
}

func (r *Recorder) LogUpdate(ctx context.Context, table string, recordID uuid.UUID, before, after interface{}) {
	r.Log(ctx, model.AuditActionUpdate, table, recordID.String(), before, after)
}

func (r *Recorder) LogDelete(ctx context.Context, table string, recordID uuid.UUID, before interface{}) {
	r.Log(ctx, model.AuditActionDelete, table, recordID.String(), before, nil)
}

// Log writes one row. User, IP and user agent come from the request
// metadata in ctx.
func (r *Recorder) Log(ctx context.Context, action, table, recordID string, before, after interface{}) {
	oldValues, err := snapshot(before)
	if err != nil {
		r.fail(err, action, table, recordID)
		return
	}
	newValues, err := snapshot(after)
	if err != nil {
		r.fail(err, action, table, recordID)
		return
	}

	meta := requestmeta.FromContext(ctx)
	entry := &model.AuditLog{
		ID:        uuid.New(),
		UserID:    meta.UserID,
		Action:    action,
		TableName: table,
		RecordID:  recordID,
		OldValues: oldValues,
		NewValues: newValues,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		CreatedAt: r.clock.Now(),
	}

	if err := r.repo.Create(ctx, entry); err != nil {
		r.fail(err, action, table, recordID)
	}
}

func (r *Recorder) fail(err error, action, table, recordID string) {
	r.metrics.AuditWriteErrors.Inc()
	r.log.Error(err, "failed to write audit log",
		"action", action,
		"table", table,
		"record_id", recordID,
	)
}

func snapshot(v interface{}) (model.JSON, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return model.JSON(b), nil
}
