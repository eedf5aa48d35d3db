package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/actor"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	"github.com/smallbiznis/carebill/internal/authorization"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/config"
	encounterdomain "github.com/smallbiznis/carebill/internal/encounter/domain"
	leakdomain "github.com/smallbiznis/carebill/internal/leak/domain"
	lineitemdomain "github.com/smallbiznis/carebill/internal/lineitem/domain"
	obslogger "github.com/smallbiznis/carebill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/carebill/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/carebill/internal/payment/domain"
	"github.com/smallbiznis/carebill/internal/reconciliation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock   `optional:"true"`
	Cfg          config.Config `optional:"true"`
	Repo         domain.Repository
	PaymentRepo  paymentdomain.Repository
	LineItemSvc  lineitemdomain.Service
	EncounterSvc encounterdomain.Service
	LeakSvc      leakdomain.Service
	AuditSvc     auditdomain.Service   `optional:"true"`
	Authz        authorization.Service `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics   `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	loc          *time.Location
	repo         domain.Repository
	paymentRepo  paymentdomain.Repository
	lineItemSvc  lineitemdomain.Service
	encounterSvc encounterdomain.Service
	leakSvc      leakdomain.Service
	auditSvc     auditdomain.Service
	authz        authorization.Service
	obsMetrics   *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("reconciliation.service"),
		genID:        p.GenID,
		clock:        clk,
		loc:          p.Cfg.Location(),
		repo:         p.Repo,
		paymentRepo:  p.PaymentRepo,
		lineItemSvc:  p.LineItemSvc,
		encounterSvc: p.EncounterSvc,
		leakSvc:      p.LeakSvc,
		auditSvc:     p.AuditSvc,
		authz:        p.Authz,
		obsMetrics:   p.ObsMetrics,
	}
}

// Create computes the report for a business day and stores it as DRAFT. A
// DRAFT or CANCELLED report for the same day is recomputed in place.
func (s *Service) Create(ctx context.Context, a actor.Actor, req domain.CreateRequest) (*domain.DailyReconciliation, error) {
	if err := s.authorize(ctx, a, authorization.ActionReconciliationPrepare); err != nil {
		return nil, err
	}
	date, start, end, err := s.dayBounds(req.Date)
	if err != nil {
		return nil, err
	}
	// encounters are closed only once the day is over
	closeOpen := req.CloseOpenEncounters && !end.After(s.clock.Now())
	if req.CloseOpenEncounters && !closeOpen {
		obslogger.WithContext(ctx, s.log).Info("day still in progress, open encounters left untouched",
			zap.String("date", date),
		)
	}

	var rec *domain.DailyReconciliation
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByDate(ctx, tx, date)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status == domain.StatusFinalized {
			return domain.ErrAlreadyFinalized
		}

		figures, err := s.compute(ctx, tx, a, start, end, closeOpen)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if existing == nil {
			fresh := &domain.DailyReconciliation{
				ID:         s.genID.Generate(),
				Date:       date,
				Status:     domain.StatusDraft,
				PreparedBy: a.ID,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			figures.Apply(fresh)
			inserted, err := s.repo.Insert(ctx, tx, fresh)
			if err != nil {
				return err
			}
			if inserted {
				rec = fresh
				return nil
			}
			// another preparer inserted the day first
			existing, err = s.repo.FindByDate(ctx, tx, date)
			if err != nil {
				return err
			}
			if existing == nil {
				return domain.ErrReconciliationNotFound
			}
		}

		existing.PreparedBy = a.ID
		existing.UpdatedAt = now
		figures.Apply(existing)
		updated, err := s.repo.Recompute(ctx, tx, existing)
		if err != nil {
			return err
		}
		if !updated {
			return domain.ErrAlreadyFinalized
		}
		rec, err = s.repo.Find(ctx, tx, existing.ID)
		if err != nil {
			return err
		}
		if rec == nil {
			return domain.ErrReconciliationNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, a, "reconciliation.prepared", rec, map[string]any{
		"total_revenue":  rec.TotalRevenue,
		"has_mismatches": rec.HasMismatches,
	})
	obslogger.WithContext(ctx, s.log).Info("reconciliation prepared",
		zap.String("reconciliation_id", rec.ID.String()),
		zap.String("date", rec.Date),
		zap.Int64("total_revenue", rec.TotalRevenue),
		zap.Int64("outstanding_total", rec.OutstandingTotal),
		zap.Int64("leak_total", rec.LeakTotal),
		zap.Bool("has_mismatches", rec.HasMismatches),
	)
	s.obsMetrics.RecordReconciliation(ctx, rec.Status)
	return rec, nil
}

// compute gathers the day's figures inside the caller's transaction.
func (s *Service) compute(ctx context.Context, tx *gorm.DB, a actor.Actor, start, end time.Time, closeOpen bool) (domain.Figures, error) {
	var figures domain.Figures

	if closeOpen {
		open, err := s.encounterSvc.ListOpenBefore(ctx, tx, end)
		if err != nil {
			return figures, err
		}
		for _, enc := range open {
			closed, err := s.encounterSvc.Close(ctx, tx, a, enc.ID)
			if err != nil {
				return figures, fmt.Errorf("close encounter %s: %w", enc.ID, err)
			}
			if closed {
				figures.EncountersClosed++
			}
		}
	}

	byMethod, err := s.paymentRepo.SumClearedByMethod(ctx, tx, start, end)
	if err != nil {
		return figures, err
	}
	var bucketCount int64
	for _, row := range byMethod {
		switch row.Method.Bucket() {
		case paymentdomain.BucketCash:
			figures.CashTotal += row.Total
		case paymentdomain.BucketWallet:
			figures.WalletTotal += row.Total
		case paymentdomain.BucketGateway:
			figures.GatewayTotal += row.Total
		case paymentdomain.BucketHMO:
			figures.HMOTotal += row.Total
			if row.Method == paymentdomain.MethodInsurance {
				figures.InsuranceTotal += row.Total
			}
		default:
			figures.Mismatches = append(figures.Mismatches, domain.Mismatch{
				Check:  "unbucketed_method",
				Actual: row.Total,
				Detail: fmt.Sprintf("%d payment(s) with method %q fall in no bucket", row.Count, row.Method),
			})
			continue
		}
		bucketCount += row.Count
	}

	revenue, err := s.paymentRepo.SumClearedBetween(ctx, tx, start, end)
	if err != nil {
		return figures, err
	}
	figures.TotalRevenue = revenue.Total
	figures.PaymentCount = revenue.Count
	if sum := figures.BucketSum(); sum != figures.TotalRevenue {
		figures.Mismatches = append(figures.Mismatches, domain.Mismatch{
			Check:    "revenue_vs_buckets",
			Expected: figures.TotalRevenue,
			Actual:   sum,
		})
	}
	if bucketCount != figures.PaymentCount {
		figures.Mismatches = append(figures.Mismatches, domain.Mismatch{
			Check:    "payment_count",
			Expected: figures.PaymentCount,
			Actual:   bucketCount,
		})
	}

	outstanding, err := s.lineItemSvc.OutstandingBefore(ctx, tx, end)
	if err != nil {
		return figures, err
	}
	figures.OutstandingTotal = outstanding.Total
	figures.OutstandingCount = outstanding.Count

	if _, err := s.leakSvc.SweepWithDB(ctx, tx, start, end); err != nil {
		return figures, fmt.Errorf("leak sweep: %w", err)
	}
	leaks, err := s.leakSvc.Totals(ctx, tx, start, end)
	if err != nil {
		return figures, err
	}
	figures.LeakTotal = leaks.Amount
	figures.LeakCount = leaks.Count
	return figures, nil
}

// Finalize moves a DRAFT report to FINALIZED. Only one caller can win.
func (s *Service) Finalize(ctx context.Context, a actor.Actor, id snowflake.ID) (*domain.DailyReconciliation, error) {
	if err := s.authorize(ctx, a, authorization.ActionReconciliationFinalize); err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, domain.ErrInvalidReference
	}

	updated, err := s.repo.Finalize(ctx, s.db, id, a.ID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, transitionError(rec.Status)
	}

	s.audit(ctx, a, "reconciliation.finalized", rec, nil)
	s.obsMetrics.RecordReconciliation(ctx, rec.Status)
	return rec, nil
}

// Cancel moves a DRAFT report to CANCELLED, appending the reason to notes.
func (s *Service) Cancel(ctx context.Context, a actor.Actor, id snowflake.ID, reason string) (*domain.DailyReconciliation, error) {
	if err := s.authorize(ctx, a, authorization.ActionReconciliationCancel); err != nil {
		return nil, err
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != domain.StatusDraft {
		return nil, transitionError(current.Status)
	}

	notes := current.Notes
	if reason = strings.TrimSpace(reason); reason != "" {
		if notes != "" {
			notes += "\n"
		}
		notes += "cancelled: " + reason
	}
	updated, err := s.repo.Cancel(ctx, s.db, id, a.ID, notes, s.clock.Now())
	if err != nil {
		return nil, err
	}
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, transitionError(rec.Status)
	}

	s.audit(ctx, a, "reconciliation.cancelled", rec, map[string]any{"reason": reason})
	s.obsMetrics.RecordReconciliation(ctx, rec.Status)
	return rec, nil
}

// UpdateNotes is allowed in every status.
func (s *Service) UpdateNotes(ctx context.Context, a actor.Actor, id snowflake.ID, notes string) (*domain.DailyReconciliation, error) {
	if err := s.authorize(ctx, a, authorization.ActionReconciliationNotes); err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, domain.ErrInvalidReference
	}
	updated, err := s.repo.UpdateNotes(ctx, s.db, id, strings.TrimSpace(notes), s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domain.ErrReconciliationNotFound
	}
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, a, "reconciliation.notes_updated", rec, nil)
	return rec, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.DailyReconciliation, error) {
	if id == 0 {
		return nil, domain.ErrInvalidReference
	}
	rec, err := s.repo.Find(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.ErrReconciliationNotFound
	}
	return rec, nil
}

func (s *Service) GetByDate(ctx context.Context, date string) (*domain.DailyReconciliation, error) {
	date, _, _, err := s.dayBounds(date)
	if err != nil {
		return nil, err
	}
	rec, err := s.repo.FindByDate(ctx, s.db, date)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.ErrReconciliationNotFound
	}
	return rec, nil
}

func (s *Service) List(ctx context.Context, from, to string) ([]domain.DailyReconciliation, error) {
	from, _, _, err := s.dayBounds(from)
	if err != nil {
		return nil, err
	}
	to, _, _, err = s.dayBounds(to)
	if err != nil {
		return nil, err
	}
	if to < from {
		return nil, domain.ErrInvalidDate
	}
	return s.repo.List(ctx, s.db, from, to)
}

// dayBounds resolves a YYYY-MM-DD business day in the hospital time zone to
// a UTC half-open interval. Days that have not started are rejected.
func (s *Service) dayBounds(value string) (string, time.Time, time.Time, error) {
	day, err := time.ParseInLocation(domain.DateLayout, strings.TrimSpace(value), s.loc)
	if err != nil {
		return "", time.Time{}, time.Time{}, domain.ErrInvalidDate
	}
	if day.After(s.clock.Now().In(s.loc)) {
		return "", time.Time{}, time.Time{}, domain.ErrInvalidDate
	}
	return day.Format(domain.DateLayout), day.UTC(), day.AddDate(0, 0, 1).UTC(), nil
}

func transitionError(status string) error {
	switch status {
	case domain.StatusFinalized:
		return domain.ErrAlreadyFinalized
	case domain.StatusCancelled:
		return domain.ErrReconciliationCancelled
	default:
		return domain.ErrReconciliationNotFound
	}
}

func (s *Service) audit(ctx context.Context, a actor.Actor, action string, rec *domain.DailyReconciliation, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["date"] = rec.Date
	metadata["status"] = rec.Status
	_ = s.auditSvc.AuditLog(ctx, nil, a, action, "reconciliation", rec.ID.String(), metadata)
}

func (s *Service) authorize(ctx context.Context, a actor.Actor, action string) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if s.authz == nil {
		return nil
	}
	return s.authz.Authorize(ctx, a, authorization.ObjectReconciliation, action)
}
