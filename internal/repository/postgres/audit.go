package postgres

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository"
)

type auditRepository struct {
	BaseRepository
}

func NewAuditRepository(base BaseRepository) repository.AuditRepository {
	return &auditRepository{base}
}

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	_, err := r.exec(ctx, "audit.create", psql.Insert("audit_logs").
		Columns("id", "user_id", "action", "table_name", "record_id", "old_values", "new_values", "ip_address", "user_agent", "created_at").
		Values(log.ID, log.UserID, log.Action, log.TableName, log.RecordID, log.OldValues, log.NewValues, log.IPAddress, log.UserAgent, log.CreatedAt))
	return err
}

func auditWhere(f model.AuditFilter) squirrel.And {
	where := squirrel.And{}
	if f.UserID != nil {
		where = append(where, squirrel.Eq{"user_id": *f.UserID})
	}
	if f.Action != "" {
		where = append(where, squirrel.Eq{"action": f.Action})
	}
	if f.TableName != "" {
		where = append(where, squirrel.Eq{"table_name": f.TableName})
	}
	if f.RecordID != "" {
		where = append(where, squirrel.Eq{"record_id": f.RecordID})
	}
	if f.IPAddress != "" {
		where = append(where, squirrel.Eq{"ip_address": f.IPAddress})
	}
	if f.From != nil {
		where = append(where, squirrel.GtOrEq{"created_at": *f.From})
	}
	if f.To != nil {
		where = append(where, squirrel.LtOrEq{"created_at": *f.To})
	}
	return where
}

func (r *auditRepository) ListWithPagination(ctx context.Context, f model.AuditFilter) ([]*model.AuditLog, int64, error) {
	where := auditWhere(f)

	// Get total count
	var total int64
	if err := r.get(ctx, "audit.count", &total, psql.Select("COUNT(*)").From("audit_logs").Where(where)); err != nil {
		return nil, 0, err
	}

	q := psql.Select("*").From("audit_logs").Where(where).OrderBy("created_at DESC")
	if f.PageSize > 0 {
		q = q.Limit(uint64(f.PageSize)).Offset(uint64(f.Offset()))
	}
	var logs []*model.AuditLog
	if err := r.selectAll(ctx, "audit.list", &logs, q); err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

type groupCount struct {
	Key   string `db:"key"`
	Count int    `db:"count"`
}

func (r *auditRepository) GetAggregateStats(ctx context.Context, f model.AuditFilter) (*model.AggregateStats, error) {
	where := auditWhere(f)
	stats := &model.AggregateStats{
		ActionCounts: make(map[string]int),
		TableCounts:  make(map[string]int),
	}

	if err := r.get(ctx, "audit.stats_total", &stats.TotalLogs, psql.Select("COUNT(*)").From("audit_logs").Where(where)); err != nil {
		return nil, err
	}

	var actions []groupCount
	if err := r.selectAll(ctx, "audit.stats_actions", &actions, psql.Select("action AS key", "COUNT(*) AS count").
		From("audit_logs").Where(where).GroupBy("action")); err != nil {
		return nil, err
	}
	for _, a := range actions {
		stats.ActionCounts[a.Key] = a.Count
	}

	var tables []groupCount
	if err := r.selectAll(ctx, "audit.stats_tables", &tables, psql.Select("table_name AS key", "COUNT(*) AS count").
		From("audit_logs").Where(where).GroupBy("table_name")); err != nil {
		return nil, err
	}
	for _, t := range tables {
		stats.TableCounts[t.Key] = t.Count
	}

	if err := r.selectAll(ctx, "audit.stats_ips", &stats.TopIPs, psql.Select("ip_address", "COUNT(*) AS count").
		From("audit_logs").Where(where).GroupBy("ip_address").OrderBy("count DESC", "ip_address").Limit(10)); err != nil {
		return nil, err
	}

	return stats, nil
}

func (r *auditRepository) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	return r.exec(ctx, "audit.cleanup", psql.Delete("audit_logs").Where(squirrel.Lt{"created_at": before}))
}
