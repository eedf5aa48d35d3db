package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/actor"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	"github.com/smallbiznis/carebill/internal/authorization"
	catalogdomain "github.com/smallbiznis/carebill/internal/catalog/domain"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/config"
	fulfillmentdomain "github.com/smallbiznis/carebill/internal/fulfillment/domain"
	"github.com/smallbiznis/carebill/internal/leak/domain"
	lineitemdomain "github.com/smallbiznis/carebill/internal/lineitem/domain"
	obslogger "github.com/smallbiznis/carebill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/carebill/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultListLimit = 100

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock `optional:"true"`
	Repo           domain.Repository
	Catalog        catalogdomain.Catalog
	LineItemSvc    lineitemdomain.Service
	FulfillmentSvc fulfillmentdomain.Service
	Policy         *config.BillingPolicyHolder `optional:"true"`
	AuditSvc       auditdomain.Service         `optional:"true"`
	Authz          authorization.Service       `optional:"true"`
	ObsMetrics     *obsmetrics.Metrics         `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	repo           domain.Repository
	catalog        catalogdomain.Catalog
	lineItemSvc    lineitemdomain.Service
	fulfillmentSvc fulfillmentdomain.Service
	policy         *config.BillingPolicyHolder
	auditSvc       auditdomain.Service
	authz          authorization.Service
	obsMetrics     *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("leak.service"),
		genID:          p.GenID,
		clock:          clk,
		repo:           p.Repo,
		catalog:        p.Catalog,
		lineItemSvc:    p.LineItemSvc,
		fulfillmentSvc: p.FulfillmentSvc,
		policy:         p.Policy,
		auditSvc:       p.AuditSvc,
		authz:          p.Authz,
		obsMetrics:     p.ObsMetrics,
	}
}

// Check flags a fulfillment event that has no PAID line item for the same
// service on the same encounter. Emergency overrides are never flagged. An
// entity with an open leak is not flagged again; once resolved, a later check
// that still finds no payment opens a new record.
func (s *Service) Check(ctx context.Context, db *gorm.DB, event fulfillmentdomain.Event) (*domain.LeakRecord, domain.Outcome, error) {
	db = s.handle(db)
	if event.EmergencyOverride {
		return nil, domain.OutcomeSkipped, nil
	}

	existing, err := s.repo.FindOpenByEntity(ctx, db, event.EntityType, event.EntityID)
	if err != nil {
		return nil, "", err
	}
	if existing != nil {
		return existing, domain.OutcomeAlreadyFlagged, nil
	}

	paid, err := s.lineItemSvc.HasPaidService(ctx, db, event.EncounterID, event.ServiceCode)
	if err != nil {
		return nil, "", err
	}
	if paid {
		return nil, domain.OutcomeClean, nil
	}

	amount, err := s.estimate(ctx, db, event.ServiceCode)
	if err != nil {
		return nil, "", err
	}

	rec := &domain.LeakRecord{
		ID:              s.genID.Generate(),
		EntityType:      event.EntityType,
		EntityID:        event.EntityID,
		ServiceCode:     event.ServiceCode,
		EstimatedAmount: amount,
		EncounterID:     event.EncounterID,
		DetectedAt:      s.clock.Now(),
	}
	inserted, err := s.repo.Insert(ctx, db, rec)
	if err != nil {
		return nil, "", err
	}
	if !inserted {
		existing, err := s.repo.FindOpenByEntity(ctx, db, event.EntityType, event.EntityID)
		if err != nil {
			return nil, "", err
		}
		return existing, domain.OutcomeAlreadyFlagged, nil
	}

	obslogger.WithContext(ctx, s.log).Warn("revenue leak detected",
		zap.String("leak_id", rec.ID.String()),
		zap.String("entity_type", rec.EntityType),
		zap.String("entity_id", rec.EntityID.String()),
		zap.String("service_code", rec.ServiceCode),
		zap.String("encounter_id", rec.EncounterID.String()),
		zap.Int64("estimated_amount", rec.EstimatedAmount),
	)
	s.obsMetrics.RecordLeakDetected(ctx, rec.EntityType)
	if s.auditSvc != nil {
		_ = s.auditSvc.Timeline(ctx, db, rec.EncounterID, actor.System(), auditdomain.TimelineLeakDetected,
			fmt.Sprintf("%s delivered without payment", rec.ServiceCode),
			map[string]any{"leak_id": rec.ID.String(), "entity_type": rec.EntityType})
	}
	return rec, domain.OutcomeDetected, nil
}

func (s *Service) DetectLeak(ctx context.Context, a actor.Actor, entityType string, entityID snowflake.ID) (*domain.LeakRecord, error) {
	if err := s.authorize(ctx, a, authorization.ActionLeakDetect); err != nil {
		return nil, err
	}
	normalized, ok := fulfillmentdomain.NormalizeEntityType(entityType)
	if !ok {
		return nil, domain.ErrInvalidEntityType
	}
	if entityID == 0 {
		return nil, domain.ErrInvalidReference
	}

	var rec *domain.LeakRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event, err := s.fulfillmentSvc.Get(ctx, tx, normalized, entityID)
		if err != nil {
			return err
		}
		rec, _, err = s.Check(ctx, tx, *event)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) Sweep(ctx context.Context, a actor.Actor, from, to time.Time) (domain.SweepResult, error) {
	if err := s.authorize(ctx, a, authorization.ActionLeakSweep); err != nil {
		return domain.SweepResult{}, err
	}
	var result domain.SweepResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.SweepWithDB(ctx, tx, from, to)
		return err
	})
	return result, err
}

// SweepWithDB checks every fulfillment event that occurred in [from, to).
func (s *Service) SweepWithDB(ctx context.Context, db *gorm.DB, from, to time.Time) (domain.SweepResult, error) {
	var result domain.SweepResult
	if from.IsZero() || to.IsZero() || !from.Before(to) {
		return result, domain.ErrInvalidDate
	}
	db = s.handle(db)

	events, err := s.fulfillmentSvc.ListBetween(ctx, db, from, to)
	if err != nil {
		return result, err
	}
	for _, event := range events {
		_, outcome, err := s.Check(ctx, db, event)
		if err != nil {
			return result, fmt.Errorf("check %s %s: %w", event.EntityType, event.EntityID, err)
		}
		result.Add(outcome)
	}

	obslogger.WithContext(ctx, s.log).Info("leak sweep complete",
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Int("scanned", result.Scanned),
		zap.Int("detected", result.Detected),
		zap.Int("already_flagged", result.AlreadyFlagged),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

// Resolve closes a leak by hand. Leaks are never resolved automatically.
func (s *Service) Resolve(ctx context.Context, a actor.Actor, id snowflake.ID, notes string) (*domain.LeakRecord, error) {
	if err := s.authorize(ctx, a, authorization.ActionLeakResolve); err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, domain.ErrInvalidReference
	}
	notes = strings.TrimSpace(notes)

	var rec *domain.LeakRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.Find(ctx, tx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return domain.ErrLeakNotFound
		}
		if existing.Resolved() {
			return domain.ErrLeakAlreadyResolved
		}

		updated, err := s.repo.Resolve(ctx, tx, id, a.ID, notes, s.clock.Now())
		if err != nil {
			return err
		}
		if !updated {
			return domain.ErrLeakAlreadyResolved
		}
		rec, err = s.repo.Find(ctx, tx, id)
		if err != nil {
			return err
		}

		if s.auditSvc != nil {
			_ = s.auditSvc.AuditLog(ctx, tx, a, "leak.resolved", "leak", id.String(), map[string]any{
				"service_code": rec.ServiceCode,
				"notes":        notes,
			})
			_ = s.auditSvc.Timeline(ctx, tx, rec.EncounterID, a, auditdomain.TimelineLeakResolved,
				fmt.Sprintf("leak on %s resolved", rec.ServiceCode),
				map[string]any{"leak_id": id.String()})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.LeakRecord, error) {
	if id == 0 {
		return nil, domain.ErrInvalidReference
	}
	rec, err := s.repo.Find(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.ErrLeakNotFound
	}
	return rec, nil
}

func (s *Service) ListUnresolved(ctx context.Context, limit int) ([]domain.LeakRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.repo.ListUnresolved(ctx, s.db, limit)
}

func (s *Service) Totals(ctx context.Context, db *gorm.DB, from, to time.Time) (domain.Totals, error) {
	if !from.Before(to) {
		return domain.Totals{}, domain.ErrInvalidDate
	}
	return s.repo.Totals(ctx, s.handle(db), from, to)
}

// estimate prices a leak from the catalog, falling back to the configured
// default for codes the catalog does not know.
func (s *Service) estimate(ctx context.Context, db *gorm.DB, serviceCode string) (int64, error) {
	svc, err := s.catalog.LookupWithDB(ctx, db, serviceCode)
	switch {
	case err == nil:
		return svc.Amount, nil
	case errors.Is(err, catalogdomain.ErrServiceNotFound), errors.Is(err, catalogdomain.ErrInvalidCode):
		return s.policy.Get().DefaultLeakAmount, nil
	default:
		return 0, err
	}
}

func (s *Service) authorize(ctx context.Context, a actor.Actor, action string) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if s.authz == nil {
		return nil
	}
	return s.authz.Authorize(ctx, a, authorization.ObjectLeak, action)
}

func (s *Service) handle(db *gorm.DB) *gorm.DB {
	if db != nil {
		return db
	}
	return s.db
}
