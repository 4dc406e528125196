package memory

import (
	"context"
	"sort"
	"time"

	"github.com/jwalitptl/salon-api/internal/model"
)

type auditRepository struct{ s *Store }

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	return r.s.do(ctx, func() error {
		r.s.auditLogs = append(r.s.auditLogs, *log)
		return nil
	})
}

func matchAudit(l *model.AuditLog, f model.AuditFilter) bool {
	if f.UserID != nil && (l.UserID == nil || *l.UserID != *f.UserID) {
		return false
	}
	if f.Action != "" && l.Action != f.Action {
		return false
	}
	if f.TableName != "" && l.TableName != f.TableName {
		return false
	}
	if f.RecordID != "" && l.RecordID != f.RecordID {
		return false
	}
	if f.IPAddress != "" && l.IPAddress != f.IPAddress {
		return false
	}
	if f.From != nil && l.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && l.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

func (r *auditRepository) filtered(ctx context.Context, f model.AuditFilter) ([]*model.AuditLog, error) {
	var out []*model.AuditLog
	err := r.s.do(ctx, func() error {
		for i := range r.s.auditLogs {
			l := r.s.auditLogs[i]
			if matchAudit(&l, f) {
				out = append(out, &l)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}

func (r *auditRepository) ListWithPagination(ctx context.Context, f model.AuditFilter) ([]*model.AuditLog, int64, error) {
	all, err := r.filtered(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return paginate(all, f.Pagination), int64(len(all)), nil
}

func (r *auditRepository) GetAggregateStats(ctx context.Context, f model.AuditFilter) (*model.AggregateStats, error) {
	all, err := r.filtered(ctx, f)
	if err != nil {
		return nil, err
	}

	stats := &model.AggregateStats{
		TotalLogs:    int64(len(all)),
		ActionCounts: make(map[string]int),
		TableCounts:  make(map[string]int),
	}
	ips := make(map[string]int)
	for _, l := range all {
		stats.ActionCounts[l.Action]++
		stats.TableCounts[l.TableName]++
		ips[l.IPAddress]++
	}
	for ip, count := range ips {
		stats.TopIPs = append(stats.TopIPs, model.IPActivityCount{IPAddress: ip, Count: count})
	}
	sort.Slice(stats.TopIPs, func(i, j int) bool {
		if stats.TopIPs[i].Count != stats.TopIPs[j].Count {
			return stats.TopIPs[i].Count > stats.TopIPs[j].Count
		}
		return stats.TopIPs[i].IPAddress < stats.TopIPs[j].IPAddress
	})
	if len(stats.TopIPs) > 10 {
		stats.TopIPs = stats.TopIPs[:10]
	}
	return stats, nil
}

func (r *auditRepository) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	var deleted int64
	err := r.s.do(ctx, func() error {
		kept := r.s.auditLogs[:0:0]
		for _, l := range r.s.auditLogs {
			if l.CreatedAt.Before(before) {
				deleted++
				continue
			}
			kept = append(kept, l)
		}
		r.s.auditLogs = kept
		return nil
	})
	return deleted, err
}
