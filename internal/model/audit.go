package model

import (
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    *uuid.UUID `json:"user_id,omitempty" db:"user_id"`
	Action    string     `json:"action" db:"action"`
	TableName string     `json:"table_name" db:"table_name"`
	RecordID  string     `json:"record_id" db:"record_id"`
	OldValues JSON       `json:"old_values,omitempty" db:"old_values"`
	NewValues JSON       `json:"new_values,omitempty" db:"new_values"`
	IPAddress string     `json:"ip_address" db:"ip_address"`
	UserAgent string     `json:"user_agent" db:"user_agent"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

const (
	// Action types
	AuditActionCreate  = "create"
	AuditActionUpdate  = "update"
	AuditActionDelete  = "delete"
	AuditActionCleanup = "cleanup"
)

type AuditFilter struct {
	UserID    *uuid.UUID
	Action    string
	TableName string
	RecordID  string
	IPAddress string
	From      *time.Time
	To        *time.Time
	Pagination
}

type IPActivityCount struct {
	IPAddress string `json:"ip_address" db:"ip_address"`
	Count     int    `json:"count" db:"count"`
}

type AggregateStats struct {
	TotalLogs    int64             `json:"total_logs"`
	ActionCounts map[string]int    `json:"action_counts"`
	TableCounts  map[string]int    `json:"table_counts"`
	TopIPs       []IPActivityCount `json:"top_ips"`
}

type AuditCleanupRequest struct {
	DaysToKeep int `json:"days_to_keep" validate:"required,min=1,max=3650"`
}
