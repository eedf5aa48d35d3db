package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/actor"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	"github.com/smallbiznis/carebill/internal/audit/masking"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/pkg/db/pagination"
	"github.com/smallbiznis/carebill/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: clk,
		repo:  p.Repo,
	}
}

func (s *Service) AuditLog(ctx context.Context, db *gorm.DB, a actor.Actor, action string, targetType string, targetID string, metadata map[string]any) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	targetType = strings.TrimSpace(targetType)
	if targetType == "" {
		targetType = "unknown"
	}

	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  a.Type(),
		ActorID:    a.ID,
		ActorRole:  string(a.Role),
		Action:     action,
		TargetType: targetType,
		TargetID:   strings.TrimSpace(targetID),
		Metadata:   datatypes.JSONMap(s.payload(ctx, metadata)),
		CreatedAt:  s.clock.Now(),
	}

	err := s.handle(db).WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.Insert(ctx, tx, &entry)
	})
	if err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) Timeline(ctx context.Context, db *gorm.DB, encounterID snowflake.ID, a actor.Actor, kind string, message string, metadata map[string]any) error {
	kind = strings.TrimSpace(kind)
	if kind == "" || encounterID == 0 {
		return auditdomain.ErrInvalidAction
	}

	entry := auditdomain.TimelineEntry{
		ID:          s.genID.Generate(),
		EncounterID: encounterID,
		Kind:        kind,
		Message:     strings.TrimSpace(message),
		ActorID:     a.ID,
		Metadata:    datatypes.JSONMap(s.payload(ctx, metadata)),
		CreatedAt:   s.clock.Now(),
	}

	err := s.handle(db).WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.InsertTimeline(ctx, tx, &entry)
	})
	if err != nil {
		s.log.Warn("failed to write timeline entry",
			zap.String("kind", kind),
			zap.String("encounter_id", encounterID.String()),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}

	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}
	limit := req.Limit()

	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		ActorID:    req.ActorID,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Cursor:     cursor,
		Limit:      limit,
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	items, pageInfo, err := pagination.Page(items, limit, func(item *auditdomain.AuditLog) pagination.Cursor {
		return pagination.Cursor{ID: item.ID, CreatedAt: item.CreatedAt}
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	logs := make([]auditdomain.AuditLog, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		logs = append(logs, *item)
	}

	return auditdomain.ListAuditLogResponse{PageInfo: pageInfo, AuditLogs: logs}, nil
}

func (s *Service) ListTimeline(ctx context.Context, encounterID snowflake.ID) ([]auditdomain.TimelineEntry, error) {
	return s.repo.ListTimeline(ctx, s.db, encounterID)
}

func (s *Service) handle(db *gorm.DB) *gorm.DB {
	if db != nil {
		return db
	}
	return s.db
}

func (s *Service) payload(ctx context.Context, metadata map[string]any) map[string]any {
	payload := masking.MaskSensitive(metadata)
	for key, value := range correlation.Metadata(ctx) {
		payload[key] = value
	}
	return payload
}
