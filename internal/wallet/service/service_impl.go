package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/wallet/domain"
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
		log:   p.Log.Named("wallet.service"),
		genID: p.GenID,
		clock: clk,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, req domain.RecordRequest) (*domain.Transaction, error) {
	if req.EncounterID == 0 {
		return nil, domain.ErrInvalidReference
	}
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	kind := strings.ToUpper(strings.TrimSpace(req.Kind))
	if kind != domain.KindDebit && kind != domain.KindCredit {
		return nil, domain.ErrInvalidKind
	}
	status := strings.ToUpper(strings.TrimSpace(req.Status))
	if status == "" {
		status = domain.StatusCompleted
	}
	switch status {
	case domain.StatusPending, domain.StatusCompleted, domain.StatusFailed:
	default:
		return nil, domain.ErrInvalidStatus
	}

	tx := &domain.Transaction{
		ID:          s.genID.Generate(),
		EncounterID: req.EncounterID,
		Kind:        kind,
		Status:      status,
		Amount:      req.Amount,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *Service) CompletedDebits(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) (int64, error) {
	if db == nil {
		db = s.db
	}
	return s.repo.SumCompletedDebits(ctx, db, encounterID)
}
