package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
	"github.com/jwalitptl/salon-api/pkg/clock"
	"github.com/jwalitptl/salon-api/pkg/errors"
)

// maxExportRows bounds a single CSV export
const maxExportRows = 50000

// Service is the admin read surface over the audit log
type Service struct {
	repo  repository.AuditRepository
	clock clock.Clock
}

func NewService(repo repository.AuditRepository, clk clock.Clock) *Service {
	return &Service{repo: repo, clock: clk}
}

func requireAdmin(actor model.Actor) error {
	if !actor.IsAdmin() {
		return errors.Forbidden("audit logs are restricted to administrators")
	}
	return nil
}

func (s *Service) List(ctx context.Context, actor model.Actor, filter model.AuditFilter) ([]*model.AuditLog, int64, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, 0, err
	}
	filter.Normalize()

	logs, total, err := s.repo.ListWithPagination(ctx, filter)
	if err != nil {
		return nil, 0, errors.Internal(fmt.Errorf("failed to list audit logs: %w", err))
	}
	return logs, total, nil
}

func (s *Service) Stats(ctx context.Context, actor model.Actor, filter model.AuditFilter) (*model.AggregateStats, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	stats, err := s.repo.GetAggregateStats(ctx, filter)
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("failed to aggregate audit logs: %w", err))
	}
	return stats, nil
}

// Export writes matching rows to w as CSV, newest first
func (s *Service) Export(ctx context.Context, actor model.Actor, filter model.AuditFilter, w io.Writer) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"ID", "User ID", "Action", "Table", "Record ID", "IP Address", "User Agent", "Old Values", "New Values", "Created At"}); err != nil {
		return err
	}

	filter.Page = 1
	filter.PageSize = 500
	written := 0
	for written < maxExportRows {
		logs, total, err := s.repo.ListWithPagination(ctx, filter)
		if err != nil {
			return errors.Internal(fmt.Errorf("failed to export audit logs: %w", err))
		}
		for _, l := range logs {
			userID := ""
			if l.UserID != nil {
				userID = l.UserID.String()
			}
			if err := writer.Write([]string{
				l.ID.String(),
				userID,
				l.Action,
				l.TableName,
				l.RecordID,
				l.IPAddress,
				l.UserAgent,
				string(l.OldValues),
				string(l.NewValues),
				l.CreatedAt.Format(time.RFC3339),
			}); err != nil {
				return err
			}
		}
		written += len(logs)
		if len(logs) == 0 || int64(filter.Page*filter.PageSize) >= total {
			break
		}
		filter.Page++
	}

	writer.Flush()
	return writer.Error()
}

// Cleanup deletes entries older than daysToKeep. It does not audit itself;
// the caller records the cleanup once it succeeds.
func (s *Service) Cleanup(ctx context.Context, actor model.Actor, daysToKeep int) (int64, error) {
	if err := requireAdmin(actor); err != nil {
		return 0, err
	}
	if daysToKeep < 1 {
		return 0, errors.Field("days_to_keep", "must be at least 1")
	}

	cutoff := s.clock.Now().AddDate(0, 0, -daysToKeep)
	deleted, err := s.repo.Cleanup(ctx, cutoff)
	if err != nil {
		return 0, errors.Internal(fmt.Errorf("failed to clean up audit logs: %w", err))
	}
	return deleted, nil
}

// CleanupSummary is the payload recorded for a cleanup run
func CleanupSummary(daysToKeep int, deleted int64) map[string]string {
	return map[string]string{
		"days_to_keep": strconv.Itoa(daysToKeep),
		"deleted":      strconv.FormatInt(deleted, 10),
	}
}
