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
	catalogdomain "github.com/smallbiznis/carebill/internal/catalog/domain"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/config"
	encounterdomain "github.com/smallbiznis/carebill/internal/encounter/domain"
	"github.com/smallbiznis/carebill/internal/lineitem/domain"
	obslogger "github.com/smallbiznis/carebill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/carebill/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/carebill/internal/payment/domain"
	paymenteventdomain "github.com/smallbiznis/carebill/internal/paymentevent/domain"
	dbutil "github.com/smallbiznis/carebill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock `optional:"true"`
	Repo         domain.Repository
	Catalog      catalogdomain.Catalog
	EncounterSvc encounterdomain.Service
	PaymentRepo  paymentdomain.Repository
	Policy       *config.BillingPolicyHolder   `optional:"true"`
	AuditSvc     auditdomain.Service           `optional:"true"`
	Dispatcher   paymenteventdomain.Dispatcher `optional:"true"`
	Authz        authorization.Service         `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics           `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         domain.Repository
	catalog      catalogdomain.Catalog
	encounterSvc encounterdomain.Service
	paymentRepo  paymentdomain.Repository
	policy       *config.BillingPolicyHolder
	auditSvc     auditdomain.Service
	dispatcher   paymenteventdomain.Dispatcher
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
		log:          p.Log.Named("lineitem.service"),
		genID:        p.GenID,
		clock:        clk,
		repo:         p.Repo,
		catalog:      p.Catalog,
		encounterSvc: p.EncounterSvc,
		paymentRepo:  p.PaymentRepo,
		policy:       p.Policy,
		auditSvc:     p.AuditSvc,
		dispatcher:   p.Dispatcher,
		authz:        p.Authz,
		obsMetrics:   p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, a actor.Actor, req domain.CreateRequest) (*domain.LineItem, error) {
	if err := s.authorize(ctx, a, authorization.ActionLineItemCreate); err != nil {
		return nil, err
	}
	code := strings.TrimSpace(req.ServiceCode)
	if req.EncounterID == 0 || (req.ServiceID == 0 && code == "") {
		return nil, domain.ErrInvalidReference
	}

	svc, err := s.resolveService(ctx, req.ServiceID, code)
	if err != nil {
		return nil, err
	}
	if !svc.Active {
		return nil, domain.ErrInactiveService
	}

	var created *domain.LineItem
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		enc, err := s.encounterSvc.Lock(ctx, tx, req.EncounterID)
		if err != nil {
			return err
		}
		if enc.Status == encounterdomain.StatusClosed {
			payments, err := s.paymentRepo.CountByEncounter(ctx, tx, enc.ID)
			if err != nil {
				return err
			}
			if payments == 0 {
				return domain.ErrClosedEncounter
			}
		}
		if req.ConsultationID != nil {
			if err := s.checkConsultation(ctx, tx, enc.ID, *req.ConsultationID); err != nil {
				return err
			}
		}

		existing, err := s.repo.FindByServiceEncounter(ctx, tx, svc.ID, enc.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicateLineItem
		}

		now := s.clock.Now()
		item := &domain.LineItem{
			ID:             s.genID.Generate(),
			ServiceID:      svc.ID,
			ServiceCode:    svc.Code,
			ServiceName:    svc.Name,
			Department:     svc.Department,
			WorkflowType:   svc.WorkflowType,
			EncounterID:    enc.ID,
			ConsultationID: copyID(req.ConsultationID),
			Amount:         svc.Amount,
			CreatedBy:      a.ID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		item.Recompute()
		if err := item.CheckInvariants(); err != nil {
			return err
		}

		if err := s.repo.Insert(ctx, tx, item); err != nil {
			if dbutil.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateLineItem
			}
			return err
		}

		s.recordAudit(ctx, tx, a, "line_item.created", item, nil)
		s.recordTimeline(ctx, tx, a, item, auditdomain.TimelineLineItemCreated,
			fmt.Sprintf("%s billed (%d)", item.ServiceCode, item.Amount))
		created = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordLineItem(ctx, "create")
	return created, nil
}

func (s *Service) ApplyPayment(ctx context.Context, a actor.Actor, lineItemID snowflake.ID, amount int64, method string) (*domain.LineItem, error) {
	if err := s.authorize(ctx, a, authorization.ActionLineItemApplyPayment); err != nil {
		return nil, err
	}

	var updated *domain.LineItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.ApplyPaymentInTx(ctx, tx, a, lineItemID, amount, method)
		if err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ApplyPaymentInTx applies amount to one line item inside the caller's
// transaction. The caller is responsible for authorization.
func (s *Service) ApplyPaymentInTx(ctx context.Context, tx *gorm.DB, a actor.Actor, lineItemID snowflake.ID, amount int64, method string) (*domain.LineItem, error) {
	m, ok := paymentdomain.ParseMethod(method)
	if !ok {
		return nil, domain.ErrInvalidMethod
	}

	item, err := s.lockForWrite(ctx, tx, lineItemID)
	if err != nil {
		return nil, err
	}
	previous := item.Status

	if item.Status == domain.StatusPaid {
		return nil, domain.ErrAlreadyPaid
	}
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if amount > item.Amount-item.AmountPaid {
		return nil, domain.ErrOverAllocation
	}

	now := s.clock.Now()
	methodName := string(m)
	item.AmountPaid += amount
	item.PaymentMethod = &methodName
	item.UpdatedAt = now
	item.Recompute()
	if item.Status == domain.StatusPaid && item.PaidAt == nil {
		item.PaidAt = &now
	}
	if err := item.CheckInvariants(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, tx, item); err != nil {
		return nil, err
	}

	s.afterWrite(ctx, tx, a, previous, item, "line_item.payment_applied", map[string]any{
		"amount": amount,
		"method": methodName,
	})
	s.obsMetrics.RecordLineItem(ctx, "apply_payment")
	return item, nil
}

func (s *Service) Update(ctx context.Context, a actor.Actor, lineItemID snowflake.ID, req domain.UpdateRequest) (*domain.LineItem, error) {
	if err := s.authorize(ctx, a, authorization.ActionLineItemUpdate); err != nil {
		return nil, err
	}

	var replacement *catalogdomain.Service
	if req.ServiceID != nil {
		svc, err := s.catalog.Get(ctx, *req.ServiceID)
		if err != nil {
			return nil, err
		}
		replacement = svc
	}

	var updated *domain.LineItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.lockForWrite(ctx, tx, lineItemID)
		if err != nil {
			return err
		}
		previous := item.Status
		paid := item.Status == domain.StatusPaid
		changes := map[string]any{}

		if req.Amount != nil && *req.Amount != item.Amount {
			if paid {
				return domain.ErrImmutableRecord
			}
			// a reprice never settles an item; only allocation does
			if *req.Amount <= 0 || *req.Amount < item.AmountPaid || (item.AmountPaid > 0 && *req.Amount == item.AmountPaid) {
				return domain.ErrInvalidAmount
			}
			changes["amount"] = map[string]any{"from": item.Amount, "to": *req.Amount}
			item.Amount = *req.Amount
		}

		if replacement != nil && replacement.ID != item.ServiceID {
			if paid || item.AmountPaid > 0 {
				return domain.ErrImmutableRecord
			}
			if !replacement.Active {
				return domain.ErrInactiveService
			}
			existing, err := s.repo.FindByServiceEncounter(ctx, tx, replacement.ID, item.EncounterID)
			if err != nil {
				return err
			}
			if existing != nil {
				return domain.ErrDuplicateLineItem
			}
			changes["service_code"] = map[string]any{"from": item.ServiceCode, "to": replacement.Code}
			item.ServiceID = replacement.ID
			item.ServiceCode = replacement.Code
			item.ServiceName = replacement.Name
			item.Department = replacement.Department
			item.WorkflowType = replacement.WorkflowType
			if req.Amount == nil {
				item.Amount = replacement.Amount
			}
		}

		if req.ConsultationID != nil && !sameID(item.ConsultationID, req.ConsultationID) {
			if paid {
				return domain.ErrImmutableRecord
			}
			if err := s.checkConsultation(ctx, tx, item.EncounterID, *req.ConsultationID); err != nil {
				return err
			}
			changes["consultation_id"] = req.ConsultationID.String()
			item.ConsultationID = copyID(req.ConsultationID)
		}

		if req.PaymentMethod != nil {
			m, ok := paymentdomain.ParseMethod(*req.PaymentMethod)
			if !ok {
				return domain.ErrInvalidMethod
			}
			methodName := string(m)
			if item.PaymentMethod == nil || *item.PaymentMethod != methodName {
				if paid {
					return domain.ErrImmutableRecord
				}
				changes["payment_method"] = methodName
				item.PaymentMethod = &methodName
			}
		}

		if len(changes) == 0 {
			updated = item
			return nil
		}

		now := s.clock.Now()
		item.UpdatedAt = now
		item.Recompute()
		if item.Status == domain.StatusPaid && item.PaidAt == nil {
			item.PaidAt = &now
		}
		if err := item.CheckInvariants(); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, tx, item); err != nil {
			if dbutil.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateLineItem
			}
			return err
		}

		s.afterWrite(ctx, tx, a, previous, item, "line_item.updated", changes)
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordLineItem(ctx, "update")
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, a actor.Actor, lineItemID snowflake.ID) error {
	if err := s.authorize(ctx, a, authorization.ActionLineItemDelete); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.lockForWrite(ctx, tx, lineItemID)
		if err != nil {
			return err
		}
		if item.AmountPaid > 0 {
			return domain.ErrImmutableRecord
		}
		deleted, err := s.repo.Delete(ctx, tx, item.ID)
		if err != nil {
			return err
		}
		if !deleted {
			return domain.ErrImmutableRecord
		}

		s.recordAudit(ctx, tx, a, "line_item.deleted", item, nil)
		s.recordTimeline(ctx, tx, a, item, auditdomain.TimelineLineItemDeleted,
			fmt.Sprintf("%s removed", item.ServiceCode))
		return nil
	})
	if err != nil {
		return err
	}

	s.obsMetrics.RecordLineItem(ctx, "delete")
	return nil
}

func (s *Service) Get(ctx context.Context, lineItemID snowflake.ID) (*domain.LineItem, error) {
	if lineItemID == 0 {
		return nil, domain.ErrInvalidReference
	}
	item, err := s.repo.FindByID(ctx, s.db, lineItemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrLineItemNotFound
	}
	return item, nil
}

func (s *Service) ListByEncounter(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) ([]domain.LineItem, error) {
	return s.repo.ListByEncounter(ctx, s.handle(db), encounterID)
}

func (s *Service) LockUnpaid(ctx context.Context, tx *gorm.DB, encounterID snowflake.ID) ([]domain.LineItem, error) {
	return s.repo.LockUnpaidByEncounter(ctx, s.handle(tx), encounterID)
}

func (s *Service) HasPaidService(ctx context.Context, db *gorm.DB, encounterID snowflake.ID, serviceCode string) (bool, error) {
	return s.repo.HasPaidService(ctx, s.handle(db), encounterID, strings.TrimSpace(serviceCode))
}

func (s *Service) OutstandingBefore(ctx context.Context, db *gorm.DB, before time.Time) (domain.OutstandingTotals, error) {
	return s.repo.SumOutstanding(ctx, s.handle(db), before.UTC())
}

func (s *Service) TierRules() domain.TierRules {
	return domain.RulesFromPolicy(s.policy.Get())
}

// lockForWrite locks the owning encounter first and then the line item, so
// every writer acquires the two rows in the same order.
func (s *Service) lockForWrite(ctx context.Context, tx *gorm.DB, lineItemID snowflake.ID) (*domain.LineItem, error) {
	if lineItemID == 0 {
		return nil, domain.ErrInvalidReference
	}
	current, err := s.repo.FindByID(ctx, tx, lineItemID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrLineItemNotFound
	}
	if _, err := s.encounterSvc.Lock(ctx, tx, current.EncounterID); err != nil {
		return nil, err
	}
	item, err := s.repo.LockByID(ctx, tx, lineItemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrLineItemNotFound
	}
	return item, nil
}

func (s *Service) afterWrite(ctx context.Context, tx *gorm.DB, a actor.Actor, previous domain.Status, item *domain.LineItem, action string, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["status_from"] = string(previous)
	metadata["status_to"] = string(item.Status)

	s.recordAudit(ctx, tx, a, action, item, metadata)

	if action == "line_item.payment_applied" {
		s.recordTimeline(ctx, tx, a, item, auditdomain.TimelinePaymentApplied,
			fmt.Sprintf("%d applied to %s", metadata["amount"], item.ServiceCode))
	}

	if previous == domain.StatusPaid || item.Status != domain.StatusPaid {
		return
	}

	s.recordTimeline(ctx, tx, a, item, auditdomain.TimelineLineItemPaid,
		fmt.Sprintf("%s paid in full", item.ServiceCode))
	s.dispatch(ctx, tx, a, item)
}

func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, a actor.Actor, item *domain.LineItem) {
	if s.dispatcher == nil {
		return
	}
	method := ""
	if item.PaymentMethod != nil {
		method = *item.PaymentMethod
	}
	event := paymenteventdomain.PaymentConfirmedEvent{
		LineItemID:     item.ID,
		EncounterID:    item.EncounterID,
		ServiceCode:    item.ServiceCode,
		Amount:         item.Amount,
		Method:         method,
		ConsultationID: copyID(item.ConsultationID),
		Actor:          a,
	}
	if err := s.dispatcher.Dispatch(ctx, tx, event); err != nil {
		obslogger.WithContext(ctx, s.log).Warn("payment confirmed dispatch failed",
			zap.String("line_item_id", item.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) recordAudit(ctx context.Context, tx *gorm.DB, a actor.Actor, action string, item *domain.LineItem, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	payload := map[string]any{
		"encounter_id": item.EncounterID.String(),
		"service_code": item.ServiceCode,
		"amount":       item.Amount,
		"amount_paid":  item.AmountPaid,
	}
	for k, v := range metadata {
		payload[k] = v
	}
	_ = s.auditSvc.AuditLog(ctx, tx, a, action, "line_item", item.ID.String(), payload)
}

func (s *Service) recordTimeline(ctx context.Context, tx *gorm.DB, a actor.Actor, item *domain.LineItem, kind string, message string) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.Timeline(ctx, tx, item.EncounterID, a, kind, message, map[string]any{
		"line_item_id": item.ID.String(),
	})
}

func (s *Service) authorize(ctx context.Context, a actor.Actor, action string) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if s.authz == nil {
		return nil
	}
	return s.authz.Authorize(ctx, a, authorization.ObjectLineItem, action)
}

func (s *Service) resolveService(ctx context.Context, serviceID snowflake.ID, code string) (*catalogdomain.Service, error) {
	if serviceID != 0 {
		return s.catalog.Get(ctx, serviceID)
	}
	return s.catalog.Lookup(ctx, code)
}

func (s *Service) checkConsultation(ctx context.Context, tx *gorm.DB, encounterID, consultationID snowflake.ID) error {
	c, err := s.encounterSvc.GetConsultation(ctx, tx, consultationID)
	if err != nil {
		return err
	}
	if c.EncounterID != encounterID {
		return domain.ErrInvalidReference
	}
	return nil
}

func (s *Service) handle(db *gorm.DB) *gorm.DB {
	if db != nil {
		return db
	}
	return s.db
}

func copyID(id *snowflake.ID) *snowflake.ID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func sameID(a, b *snowflake.ID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
