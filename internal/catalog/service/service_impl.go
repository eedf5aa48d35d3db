package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/cache"
	"github.com/smallbiznis/carebill/internal/catalog/domain"
	"github.com/smallbiznis/carebill/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const lookupTTL = 5 * time.Minute

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
	cache cache.Cache[string, domain.Service]
}

func New(p Params) domain.Catalog {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		genID: p.GenID,
		clock: clk,
		repo:  p.Repo,
		cache: cache.NewTTLCache[string, domain.Service](),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Service, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, domain.ErrInvalidCode
	}
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = code
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := s.clock.Now()
	svc := &domain.Service{
		ID:                   s.genID.Generate(),
		Code:                 code,
		Name:                 name,
		Department:           strings.TrimSpace(req.Department),
		WorkflowType:         strings.TrimSpace(req.WorkflowType),
		Amount:               req.Amount,
		RequiresConsultation: req.RequiresConsultation,
		Active:               active,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.Insert(ctx, s.db, svc); err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Service, error) {
	key := cache.Key("id", id.String())
	if cached, ok := s.cache.Get(key); ok {
		return &cached, nil
	}
	svc, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, domain.ErrServiceNotFound
	}
	s.remember(svc)
	return svc, nil
}

func (s *Service) Lookup(ctx context.Context, code string) (*domain.Service, error) {
	return s.LookupWithDB(ctx, s.db, code)
}

func (s *Service) LookupWithDB(ctx context.Context, db *gorm.DB, code string) (*domain.Service, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domain.ErrInvalidCode
	}
	if cached, ok := s.cache.Get(cache.Key("code", code)); ok {
		return &cached, nil
	}
	if db == nil {
		db = s.db
	}
	svc, err := s.repo.FindByCode(ctx, db, code)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, domain.ErrServiceNotFound
	}
	s.remember(svc)
	return svc, nil
}

func (s *Service) SetActive(ctx context.Context, id snowflake.ID, active bool) error {
	svc, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if svc == nil {
		return domain.ErrServiceNotFound
	}
	if err := s.repo.SetActive(ctx, s.db, id, active); err != nil {
		return err
	}
	s.cache.Delete(cache.Key("id", id.String()))
	s.cache.Delete(cache.Key("code", svc.Code))
	s.log.Info("catalog service toggled",
		zap.String("code", svc.Code),
		zap.Bool("active", active),
	)
	return nil
}

func (s *Service) remember(svc *domain.Service) {
	s.cache.Set(cache.Key("id", svc.ID.String()), *svc, lookupTTL)
	s.cache.Set(cache.Key("code", svc.Code), *svc, lookupTTL)
}
