package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/actor"
	"github.com/smallbiznis/carebill/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string
	TargetType string
	TargetID   string
	ActorID    string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	InsertTimeline(ctx context.Context, db *gorm.DB, entry *TimelineEntry) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
	ListTimeline(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) ([]TimelineEntry, error)
}

// Service writes audit and timeline rows. Writers take the caller's handle so
// entries share the ledger transaction; each write runs in its own savepoint
// and failures never abort the caller.
type Service interface {
	AuditLog(ctx context.Context, db *gorm.DB, a actor.Actor, action string, targetType string, targetID string, metadata map[string]any) error
	Timeline(ctx context.Context, db *gorm.DB, encounterID snowflake.ID, a actor.Actor, kind string, message string, metadata map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
	ListTimeline(ctx context.Context, encounterID snowflake.ID) ([]TimelineEntry, error)
}

var (
	ErrInvalidPageToken = pagination.ErrInvalidPageToken
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidAction    = errors.New("invalid_action")
)
