package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/fulfillment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock `optional:"true"`
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("fulfillment.service"),
		genID: p.GenID,
		clock: clk,
		repo:  p.Repo,
	}
}

// Record stores a fulfillment event. Re-posting the same clinical entity
// returns the stored event unchanged.
func (s *Service) Record(ctx context.Context, req domain.RecordRequest) (*domain.Event, error) {
	entityType, ok := domain.NormalizeEntityType(req.EntityType)
	if !ok {
		return nil, domain.ErrInvalidEntityType
	}
	serviceCode := strings.TrimSpace(req.ServiceCode)
	if req.EntityID == 0 || req.EncounterID == 0 || serviceCode == "" {
		return nil, domain.ErrInvalidReference
	}

	now := s.clock.Now()
	occurredAt := now
	if req.OccurredAt != nil && !req.OccurredAt.IsZero() {
		occurredAt = req.OccurredAt.UTC()
	}

	ev := &domain.Event{
		ID:                s.genID.Generate(),
		EntityType:        entityType,
		EntityID:          req.EntityID,
		EncounterID:       req.EncounterID,
		ServiceCode:       serviceCode,
		EmergencyOverride: req.EmergencyOverride,
		OccurredAt:        occurredAt,
		CreatedAt:         now,
	}
	inserted, err := s.repo.Insert(ctx, s.db, ev)
	if err != nil {
		return nil, err
	}
	if inserted {
		return ev, nil
	}
	s.log.Debug("fulfillment event already recorded",
		zap.String("entity_type", entityType),
		zap.String("entity_id", req.EntityID.String()),
	)
	return s.Get(ctx, nil, entityType, req.EntityID)
}

func (s *Service) Get(ctx context.Context, db *gorm.DB, entityType string, entityID snowflake.ID) (*domain.Event, error) {
	normalized, ok := domain.NormalizeEntityType(entityType)
	if !ok {
		return nil, domain.ErrInvalidEntityType
	}
	if db == nil {
		db = s.db
	}
	ev, err := s.repo.FindByEntity(ctx, db, normalized, entityID)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, domain.ErrFulfillmentEventNotFound
	}
	return ev, nil
}

func (s *Service) ListBetween(ctx context.Context, db *gorm.DB, from, to time.Time) ([]domain.Event, error) {
	if db == nil {
		db = s.db
	}
	return s.repo.ListBetween(ctx, db, from.UTC(), to.UTC())
}
