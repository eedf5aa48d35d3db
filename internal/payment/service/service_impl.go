package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/actor"
	allocationdomain "github.com/smallbiznis/carebill/internal/allocation/domain"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	"github.com/smallbiznis/carebill/internal/authorization"
	billingsummarydomain "github.com/smallbiznis/carebill/internal/billingsummary/domain"
	"github.com/smallbiznis/carebill/internal/clock"
	encounterdomain "github.com/smallbiznis/carebill/internal/encounter/domain"
	obslogger "github.com/smallbiznis/carebill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/carebill/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/carebill/internal/payment/domain"
	dbutil "github.com/smallbiznis/carebill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// settlementCurrency is the only currency gateway events may settle in.
const settlementCurrency = "NGN"

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock `optional:"true"`
	Repo          paymentdomain.Repository
	EncounterSvc  encounterdomain.Service
	AllocationSvc allocationdomain.Service
	SummarySvc    billingsummarydomain.Service `optional:"true"`
	AuditSvc      auditdomain.Service          `optional:"true"`
	Authz         authorization.Service        `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics          `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          paymentdomain.Repository
	encounterSvc  encounterdomain.Service
	allocationSvc allocationdomain.Service
	summarySvc    billingsummarydomain.Service
	auditSvc      auditdomain.Service
	authz         authorization.Service
	obsMetrics    *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("payment.service"),
		genID:         p.GenID,
		clock:         clk,
		repo:          p.Repo,
		encounterSvc:  p.EncounterSvc,
		allocationSvc: p.AllocationSvc,
		summarySvc:    p.SummarySvc,
		auditSvc:      p.AuditSvc,
		authz:         p.Authz,
		obsMetrics:    p.ObsMetrics,
	}
}

// RecordPayment appends a payment record and, when it is CLEARED, allocates
// it over the encounter's open line items in the same transaction. A repeated
// reference returns the original payment with Duplicate set.
func (s *Service) RecordPayment(ctx context.Context, a actor.Actor, req paymentdomain.RecordPaymentRequest) (*paymentdomain.RecordPaymentResult, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if s.authz != nil {
		if err := s.authz.Authorize(ctx, a, authorization.ObjectPayment, authorization.ActionPaymentRecord); err != nil {
			return nil, err
		}
	}

	if req.EncounterID == 0 {
		return nil, paymentdomain.ErrInvalidReference
	}
	if req.Amount <= 0 {
		return nil, paymentdomain.ErrInvalidAmount
	}
	method, ok := paymentdomain.ParseMethod(req.Method)
	if !ok {
		return nil, paymentdomain.ErrInvalidMethod
	}
	status, err := normalizeStatus(req.Status)
	if err != nil {
		return nil, err
	}
	reference := strings.TrimSpace(req.Reference)

	if reference != "" {
		existing, err := s.duplicateOf(ctx, reference)
		if err != nil || existing != nil {
			return existing, err
		}
	}

	var result *paymentdomain.RecordPaymentResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.encounterSvc.Lock(ctx, tx, req.EncounterID); err != nil {
			return err
		}

		now := s.clock.Now()
		record := paymentdomain.Record{
			ID:          s.genID.Generate(),
			EncounterID: req.EncounterID,
			Amount:      req.Amount,
			Method:      method,
			Status:      status,
			ProcessedBy: a.ID,
			CreatedAt:   now,
		}
		if reference != "" {
			record.Reference = &reference
		}
		if err := s.repo.InsertRecord(ctx, tx, &record); err != nil {
			return err
		}

		res := &paymentdomain.RecordPaymentResult{Payment: record, Unallocated: record.Amount}
		if status == paymentdomain.StatusCleared {
			allocated, err := s.allocationSvc.AllocateInTx(ctx, tx, a, req.EncounterID, req.Amount, string(method))
			if err != nil {
				return err
			}
			for _, app := range allocated.Applications {
				alloc := paymentdomain.Allocation{
					ID:         s.genID.Generate(),
					PaymentID:  record.ID,
					LineItemID: app.LineItemID,
					Amount:     app.Amount,
					CreatedAt:  now,
				}
				if err := s.repo.InsertAllocation(ctx, tx, &alloc); err != nil {
					return err
				}
				res.Allocations = append(res.Allocations, alloc)
			}
			res.Allocated = allocated.Allocated
			res.Unallocated = allocated.Unallocated
		}

		s.recordAudit(ctx, tx, a, res)
		s.refreshPaymentStatus(ctx, tx, req.EncounterID)
		result = res
		return nil
	})
	if err != nil {
		if reference != "" && dbutil.IsDuplicateKeyErr(err) {
			return s.duplicateOf(ctx, reference)
		}
		return nil, err
	}

	obslogger.WithContext(ctx, s.log).Info("payment recorded",
		zap.String("payment_id", result.Payment.ID.String()),
		zap.String("encounter_id", req.EncounterID.String()),
		zap.String("method", string(method)),
		zap.String("status", status),
		zap.Int64("amount", req.Amount),
		zap.Int64("unallocated", result.Unallocated),
	)
	s.obsMetrics.RecordPayment(ctx, string(method))
	return result, nil
}

// ProcessEvent stores a verified gateway event once per provider event id
// and turns a successful charge into a cleared payment.
func (s *Service) ProcessEvent(ctx context.Context, event *paymentdomain.PaymentEvent, payload []byte) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}
	if err := validateEvent(event); err != nil {
		return err
	}

	now := s.clock.Now()
	received := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Reference:       event.Reference,
		Amount:          event.Amount,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}
	if event.EncounterID != 0 {
		encounterID := event.EncounterID
		received.EncounterID = &encounterID
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			return paymentdomain.ErrEventAlreadyProcessed
		}
	}

	if err := s.processEvent(ctx, stored, event); err != nil {
		return err
	}
	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, s.clock.Now()); err != nil {
		return err
	}

	if inserted {
		s.obsMetrics.RecordWebhookEvent(ctx, event.Provider, event.Type)
	}
	return nil
}

func (s *Service) processEvent(ctx context.Context, stored *paymentdomain.EventRecord, event *paymentdomain.PaymentEvent) error {
	switch event.Type {
	case paymentdomain.EventTypePaymentSucceeded:
		res, err := s.RecordPayment(ctx, actor.System(), paymentdomain.RecordPaymentRequest{
			EncounterID: event.EncounterID,
			Amount:      event.Amount,
			Method:      string(event.Method),
			Status:      paymentdomain.StatusCleared,
			Reference:   event.Reference,
		})
		if err != nil {
			return fmt.Errorf("record %s payment %s: %w", event.Provider, event.Reference, err)
		}
		if res.Duplicate {
			obslogger.WithContext(ctx, s.log).Info("gateway payment already recorded",
				zap.String("provider", event.Provider),
				zap.String("reference", event.Reference),
			)
		}
		return nil
	case paymentdomain.EventTypePaymentFailed:
		if s.auditSvc != nil {
			_ = s.auditSvc.AuditLog(ctx, nil, actor.System(), "payment.failed", "payment_event", stored.ID.String(), map[string]any{
				"provider":  event.Provider,
				"reference": event.Reference,
				"amount":    event.Amount,
			})
		}
		return nil
	default:
		return paymentdomain.ErrInvalidEvent
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*paymentdomain.Record, error) {
	if id == 0 {
		return nil, paymentdomain.ErrInvalidReference
	}
	rec, err := s.repo.FindRecord(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	return rec, nil
}

func (s *Service) ListByEncounter(ctx context.Context, encounterID snowflake.ID) ([]paymentdomain.Record, error) {
	if encounterID == 0 {
		return nil, paymentdomain.ErrInvalidReference
	}
	return s.repo.ListByEncounter(ctx, s.db, encounterID)
}

func (s *Service) ListAllocations(ctx context.Context, paymentID snowflake.ID) ([]paymentdomain.Allocation, error) {
	if paymentID == 0 {
		return nil, paymentdomain.ErrInvalidReference
	}
	return s.repo.ListAllocations(ctx, s.db, paymentID)
}

func (s *Service) duplicateOf(ctx context.Context, reference string) (*paymentdomain.RecordPaymentResult, error) {
	existing, err := s.repo.FindByReference(ctx, s.db, reference)
	if err != nil || existing == nil {
		return nil, err
	}
	allocations, err := s.repo.ListAllocations(ctx, s.db, existing.ID)
	if err != nil {
		return nil, err
	}
	res := &paymentdomain.RecordPaymentResult{
		Payment:     *existing,
		Allocations: allocations,
		Duplicate:   true,
	}
	for _, alloc := range allocations {
		res.Allocated += alloc.Amount
	}
	if existing.Status == paymentdomain.StatusCleared {
		res.Unallocated = existing.Amount - res.Allocated
	} else {
		res.Unallocated = existing.Amount
	}
	return res, nil
}

func (s *Service) recordAudit(ctx context.Context, tx *gorm.DB, a actor.Actor, res *paymentdomain.RecordPaymentResult) {
	if s.auditSvc == nil {
		return
	}
	payment := res.Payment
	_ = s.auditSvc.AuditLog(ctx, tx, a, "payment.recorded", "payment", payment.ID.String(), map[string]any{
		"encounter_id": payment.EncounterID.String(),
		"amount":       payment.Amount,
		"method":       string(payment.Method),
		"status":       payment.Status,
		"allocated":    res.Allocated,
		"unallocated":  res.Unallocated,
	})
	_ = s.auditSvc.Timeline(ctx, tx, payment.EncounterID, a, auditdomain.TimelinePaymentRecorded,
		fmt.Sprintf("%s payment of %d received", payment.Method, payment.Amount),
		map[string]any{"payment_id": payment.ID.String()})
}

// refreshPaymentStatus keeps the encounter's cached status current for
// payments that do not settle an item. Failures leave the cached value stale.
func (s *Service) refreshPaymentStatus(ctx context.Context, tx *gorm.DB, encounterID snowflake.ID) {
	if s.summarySvc == nil {
		return
	}
	err := tx.Transaction(func(sp *gorm.DB) error {
		report, err := s.summarySvc.ComputeWithDB(ctx, sp, encounterID)
		if err != nil {
			return err
		}
		return s.encounterSvc.UpdatePaymentStatus(ctx, sp, encounterID, string(report.Summary.PaymentStatus))
	})
	if err != nil {
		obslogger.WithContext(ctx, s.log).Warn("refresh encounter payment status failed",
			zap.String("encounter_id", encounterID.String()),
			zap.Error(err),
		)
	}
}

func normalizeStatus(value string) (string, error) {
	status := strings.ToUpper(strings.TrimSpace(value))
	switch status {
	case "":
		return paymentdomain.StatusCleared, nil
	case paymentdomain.StatusCleared, paymentdomain.StatusPending, paymentdomain.StatusFailed:
		return status, nil
	default:
		return "", paymentdomain.ErrInvalidStatus
	}
}

func validateEvent(event *paymentdomain.PaymentEvent) error {
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.ProviderEventID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	event.Type = strings.TrimSpace(event.Type)
	event.Reference = strings.TrimSpace(event.Reference)
	if event.Reference == "" {
		return paymentdomain.ErrInvalidReference
	}
	currency := strings.ToUpper(strings.TrimSpace(event.Currency))
	if currency != settlementCurrency {
		return paymentdomain.ErrInvalidCurrency
	}
	event.Currency = currency

	switch event.Type {
	case paymentdomain.EventTypePaymentSucceeded:
		if event.Amount <= 0 {
			return paymentdomain.ErrInvalidAmount
		}
		if event.EncounterID == 0 {
			return paymentdomain.ErrInvalidReference
		}
		if _, ok := paymentdomain.ParseMethod(string(event.Method)); !ok {
			return paymentdomain.ErrInvalidMethod
		}
	case paymentdomain.EventTypePaymentFailed:
	default:
		return paymentdomain.ErrInvalidEvent
	}
	return nil
}
