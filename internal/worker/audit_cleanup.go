// Package worker holds the scheduled maintenance jobs run by cmd/worker.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
	"github.com/jwalitptl/salon-api/internal/service/audit"
	"github.com/jwalitptl/salon-api/pkg/clock"
	"github.com/jwalitptl/salon-api/pkg/logger"
	"github.com/jwalitptl/salon-api/pkg/requestmeta"
)

type CleanupConfig struct {
	// AuditSchedule and OutboxSchedule are cron expressions
	AuditSchedule      string
	AuditRetentionDays int
	OutboxSchedule     string
	OutboxRetention    time.Duration
}

// systemActor runs scheduled jobs with administrator rights
var systemActor = model.Actor{UserID: uuid.Nil, Role: model.RoleSuperAdmin}

type AuditCleanupWorker struct {
	audit    *audit.Service
	recorder *audit.Recorder
	outbox   repository.OutboxRepository
	clock    clock.Clock
	config   CleanupConfig
	logger   *logger.Logger
}

func NewAuditCleanupWorker(auditSvc *audit.Service, recorder *audit.Recorder, outbox repository.OutboxRepository, clk clock.Clock, config CleanupConfig, log *logger.Logger) *AuditCleanupWorker {
	if config.AuditSchedule == "" {
		config.AuditSchedule = "0 3 * * *"
	}
	if config.AuditRetentionDays <= 0 {
		config.AuditRetentionDays = 365
	}
	if config.OutboxSchedule == "" {
		config.OutboxSchedule = "30 3 * * *"
	}
	if config.OutboxRetention <= 0 {
		config.OutboxRetention = 7 * 24 * time.Hour
	}
	return &AuditCleanupWorker{
		audit:    auditSvc,
		recorder: recorder,
		outbox:   outbox,
		clock:    clk,
		config:   config,
		logger:   log.WithComponent("cleanup_worker"),
	}
}

// Start schedules the jobs and blocks until ctx is done
func (w *AuditCleanupWorker) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(w.config.AuditSchedule, func() {
		if _, err := w.CleanupAudit(ctx); err != nil {
			w.logger.Error(err, "Error cleaning up audit logs")
		}
	}); err != nil {
		return fmt.Errorf("invalid audit cleanup schedule %q: %w", w.config.AuditSchedule, err)
	}
	if _, err := c.AddFunc(w.config.OutboxSchedule, func() {
		if _, err := w.PurgeOutbox(ctx); err != nil {
			w.logger.Error(err, "Error purging outbox")
		}
	}); err != nil {
		return fmt.Errorf("invalid outbox purge schedule %q: %w", w.config.OutboxSchedule, err)
	}

	c.Start()
	w.logger.Info("Cleanup scheduler started",
		"audit_schedule", w.config.AuditSchedule,
		"outbox_schedule", w.config.OutboxSchedule)

	<-ctx.Done()
	<-c.Stop().Done()
	w.logger.Info("Cleanup scheduler stopped")
	return nil
}

// CleanupAudit deletes expired audit rows and records the run
func (w *AuditCleanupWorker) CleanupAudit(ctx context.Context) (int64, error) {
	ctx = requestmeta.WithMeta(ctx, requestmeta.Meta{Role: string(systemActor.Role), UserAgent: "cleanup-worker"})

	deleted, err := w.audit.Cleanup(ctx, systemActor, w.config.AuditRetentionDays)
	if err != nil {
		return 0, err
	}
	w.recorder.Log(ctx, model.AuditActionCleanup, "audit_logs", "", nil, audit.CleanupSummary(w.config.AuditRetentionDays, deleted))
	w.logger.Info("Cleaned up audit logs", "deleted", deleted, "days_to_keep", w.config.AuditRetentionDays)
	return deleted, nil
}

// PurgeOutbox drops relayed outbox rows older than the retention
func (w *AuditCleanupWorker) PurgeOutbox(ctx context.Context) (int64, error) {
	before := w.clock.Now().Add(-w.config.OutboxRetention)
	deleted, err := w.outbox.DeleteProcessedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge outbox: %w", err)
	}
	w.logger.Info("Purged processed outbox events", "deleted", deleted, "before", before)
	return deleted, nil
}
