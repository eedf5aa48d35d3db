package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/coverage/domain"
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
		log:   p.Log.Named("coverage.service"),
		genID: p.GenID,
		clock: clk,
		repo:  p.Repo,
	}
}

func (s *Service) SetInsurance(ctx context.Context, req domain.SetInsuranceRequest) (*domain.InsuranceRecord, error) {
	if req.EncounterID == 0 || strings.TrimSpace(req.ProviderName) == "" {
		return nil, domain.ErrInvalidReference
	}
	status := strings.ToUpper(strings.TrimSpace(req.ApprovalStatus))
	switch status {
	case domain.ApprovalPending, domain.ApprovalApproved, domain.ApprovalRejected:
	default:
		return nil, domain.ErrInvalidStatus
	}
	coverageType := strings.ToUpper(strings.TrimSpace(req.CoverageType))
	bps := req.CoverageBps
	switch coverageType {
	case domain.CoverageFull:
		bps = domain.FullCoverageBps
	case domain.CoveragePartial:
		if bps < 0 || bps > domain.FullCoverageBps {
			return nil, domain.ErrInvalidCoverage
		}
	default:
		return nil, domain.ErrInvalidCoverage
	}
	if req.ApprovedAmount != nil && *req.ApprovedAmount < 0 {
		return nil, domain.ErrInvalidAmount
	}

	now := s.clock.Now()
	rec := &domain.InsuranceRecord{
		ID:             s.genID.Generate(),
		EncounterID:    req.EncounterID,
		ProviderName:   strings.TrimSpace(req.ProviderName),
		ApprovalStatus: status,
		CoverageType:   coverageType,
		CoverageBps:    bps,
		ApprovedAmount: req.ApprovedAmount,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.UpsertInsurance(ctx, s.db, rec); err != nil {
		return nil, err
	}
	return s.repo.FindInsurance(ctx, s.db, req.EncounterID)
}

func (s *Service) Insurance(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) (*domain.InsuranceRecord, error) {
	return s.repo.FindInsurance(ctx, s.handle(db), encounterID)
}

func (s *Service) SetRetainership(ctx context.Context, req domain.SetRetainershipRequest) (*domain.RetainershipRecord, error) {
	if req.EncounterID == 0 || strings.TrimSpace(req.OrganizationName) == "" {
		return nil, domain.ErrInvalidReference
	}
	if req.DiscountBps < 0 || req.DiscountBps > domain.FullCoverageBps {
		return nil, domain.ErrInvalidCoverage
	}

	now := s.clock.Now()
	rec := &domain.RetainershipRecord{
		ID:               s.genID.Generate(),
		EncounterID:      req.EncounterID,
		OrganizationName: strings.TrimSpace(req.OrganizationName),
		DiscountBps:      req.DiscountBps,
		Active:           req.Active,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.UpsertRetainership(ctx, s.db, rec); err != nil {
		return nil, err
	}
	return s.repo.FindRetainership(ctx, s.db, req.EncounterID)
}

func (s *Service) Retainership(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) (*domain.RetainershipRecord, error) {
	return s.repo.FindRetainership(ctx, s.handle(db), encounterID)
}

func (s *Service) handle(db *gorm.DB) *gorm.DB {
	if db != nil {
		return db
	}
	return s.db
}
