package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/actor"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/encounter/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// initial cached status of an encounter with no charges
const unpaidStatus = "UNPAID"

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock `optional:"true"`
	Repo     domain.Repository
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	auditSvc auditdomain.Service
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("encounter.service"),
		genID:    p.GenID,
		clock:    clk,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Open(ctx context.Context, req domain.OpenRequest) (*domain.Encounter, error) {
	patientRef := strings.TrimSpace(req.PatientRef)
	if patientRef == "" {
		return nil, domain.ErrInvalidReference
	}
	now := s.clock.Now()
	openedAt := now
	if req.OpenedAt != nil && !req.OpenedAt.IsZero() {
		openedAt = req.OpenedAt.UTC()
	}

	e := &domain.Encounter{
		ID:            s.genID.Generate(),
		PatientRef:    patientRef,
		Status:        domain.StatusOpen,
		PaymentStatus: unpaidStatus,
		OpenedAt:      openedAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.InsertEncounter(ctx, s.db, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) Get(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Encounter, error) {
	if id == 0 {
		return nil, domain.ErrInvalidReference
	}
	e, err := s.repo.FindEncounter(ctx, s.handle(db), id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, domain.ErrEncounterNotFound
	}
	return e, nil
}

func (s *Service) Lock(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Encounter, error) {
	if id == 0 {
		return nil, domain.ErrInvalidReference
	}
	e, err := s.repo.LockEncounter(ctx, s.handle(tx), id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, domain.ErrEncounterNotFound
	}
	return e, nil
}

func (s *Service) Close(ctx context.Context, tx *gorm.DB, a actor.Actor, id snowflake.ID) (bool, error) {
	db := s.handle(tx)
	closed, err := s.repo.Close(ctx, db, id, s.clock.Now())
	if err != nil {
		return false, err
	}
	if !closed {
		return false, nil
	}

	if s.auditSvc != nil {
		_ = s.auditSvc.Timeline(ctx, db, id, a, auditdomain.TimelineEncounterClosed, "encounter closed", nil)
	}
	s.log.Debug("encounter closed",
		zap.String("encounter_id", id.String()),
		zap.String("actor_id", a.ID),
	)
	return true, nil
}

func (s *Service) ListOpenBefore(ctx context.Context, db *gorm.DB, before time.Time) ([]domain.Encounter, error) {
	return s.repo.ListOpenBefore(ctx, s.handle(db), before.UTC())
}

func (s *Service) UpdatePaymentStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status string) error {
	return s.repo.UpdatePaymentStatus(ctx, s.handle(db), id, status, s.clock.Now())
}

func (s *Service) CreateConsultation(ctx context.Context, req domain.CreateConsultationRequest) (*domain.Consultation, error) {
	if req.EncounterID == 0 {
		return nil, domain.ErrInvalidReference
	}
	if _, err := s.Get(ctx, nil, req.EncounterID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	c := &domain.Consultation{
		ID:          s.genID.Generate(),
		EncounterID: req.EncounterID,
		Status:      domain.ConsultationPending,
		CreatedBy:   strings.TrimSpace(req.CreatedBy),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.InsertConsultation(ctx, s.db, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) GetConsultation(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Consultation, error) {
	if id == 0 {
		return nil, domain.ErrInvalidReference
	}
	c, err := s.repo.FindConsultation(ctx, s.handle(db), id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, domain.ErrConsultationNotFound
	}
	return c, nil
}

// ActivateConsultation moves a PENDING consultation to ACTIVE and reports
// whether this call performed the transition. ACTIVE and CLOSED
// consultations are left untouched.
func (s *Service) ActivateConsultation(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Consultation, bool, error) {
	db := s.handle(tx)
	c, err := s.repo.LockConsultation(ctx, db, id)
	if err != nil {
		return nil, false, err
	}
	if c == nil {
		return nil, false, domain.ErrConsultationNotFound
	}
	if c.Status != domain.ConsultationPending {
		return c, false, nil
	}

	var clinicianID *string
	if creator := strings.TrimSpace(c.CreatedBy); creator != "" {
		clinicianID = &creator
	}
	now := s.clock.Now()
	activated, err := s.repo.ActivateConsultation(ctx, db, id, clinicianID, now)
	if err != nil {
		return nil, false, err
	}
	if !activated {
		return c, false, nil
	}

	c.Status = domain.ConsultationActive
	c.ActivatedAt = &now
	c.UpdatedAt = now
	if clinicianID != nil {
		c.ClinicianID = clinicianID
	}
	return c, true, nil
}

func (s *Service) AddFlatCharge(ctx context.Context, req domain.AddFlatChargeRequest) (*domain.FlatCharge, error) {
	if req.EncounterID == 0 {
		return nil, domain.ErrInvalidReference
	}
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if _, err := s.Get(ctx, nil, req.EncounterID); err != nil {
		return nil, err
	}

	c := &domain.FlatCharge{
		ID:          s.genID.Generate(),
		EncounterID: req.EncounterID,
		Description: strings.TrimSpace(req.Description),
		Amount:      req.Amount,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.repo.InsertFlatCharge(ctx, s.db, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) FlatChargesTotal(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) (int64, error) {
	return s.repo.SumFlatCharges(ctx, s.handle(db), encounterID)
}

func (s *Service) handle(db *gorm.DB) *gorm.DB {
	if db != nil {
		return db
	}
	return s.db
}
