package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/actor"
	"github.com/smallbiznis/carebill/internal/allocation/domain"
	"github.com/smallbiznis/carebill/internal/authorization"
	encounterdomain "github.com/smallbiznis/carebill/internal/encounter/domain"
	lineitemdomain "github.com/smallbiznis/carebill/internal/lineitem/domain"
	obslogger "github.com/smallbiznis/carebill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/carebill/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/carebill/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	LineItemSvc  lineitemdomain.Service
	EncounterSvc encounterdomain.Service
	Authz        authorization.Service `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics   `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	lineItemSvc  lineitemdomain.Service
	encounterSvc encounterdomain.Service
	authz        authorization.Service
	obsMetrics   *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("allocation.service"),
		lineItemSvc:  p.LineItemSvc,
		encounterSvc: p.EncounterSvc,
		authz:        p.Authz,
		obsMetrics:   p.ObsMetrics,
	}
}

func (s *Service) AllocatePayment(ctx context.Context, a actor.Actor, encounterID snowflake.ID, amount int64, method string) (*domain.Result, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if s.authz != nil {
		if err := s.authz.Authorize(ctx, a, authorization.ObjectPayment, authorization.ActionPaymentAllocate); err != nil {
			return nil, err
		}
	}

	var result *domain.Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, err := s.AllocateInTx(ctx, tx, a, encounterID, amount, method)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AllocateInTx walks the encounter's open items in tier order and applies
// min(remaining, outstanding) to each. The encounter row is locked before
// any item row.
func (s *Service) AllocateInTx(ctx context.Context, tx *gorm.DB, a actor.Actor, encounterID snowflake.ID, amount int64, method string) (*domain.Result, error) {
	if encounterID == 0 {
		return nil, domain.ErrInvalidReference
	}
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	m, ok := paymentdomain.ParseMethod(method)
	if !ok {
		return nil, domain.ErrInvalidMethod
	}

	if _, err := s.encounterSvc.Lock(ctx, tx, encounterID); err != nil {
		return nil, err
	}
	items, err := s.lineItemSvc.LockUnpaid(ctx, tx, encounterID)
	if err != nil {
		return nil, err
	}
	rules := s.lineItemSvc.TierRules()
	lineitemdomain.SortForAllocation(items, rules)

	result := &domain.Result{
		EncounterID: encounterID,
		Method:      string(m),
		Requested:   amount,
	}
	remaining := amount
	for _, item := range items {
		if remaining == 0 {
			break
		}
		outstanding := item.Amount - item.AmountPaid
		if outstanding <= 0 {
			continue
		}
		share := min(remaining, outstanding)

		updated, err := s.lineItemSvc.ApplyPaymentInTx(ctx, tx, a, item.ID, share, string(m))
		if err != nil {
			return nil, err
		}
		remaining -= share
		result.Applications = append(result.Applications, domain.Application{
			LineItemID:   item.ID,
			ServiceCode:  item.ServiceCode,
			Tier:         rules.TierOf(item).String(),
			Amount:       share,
			StatusBefore: item.Status,
			StatusAfter:  updated.Status,
		})
		result.Items = append(result.Items, *updated)
	}
	result.Allocated = amount - remaining
	result.Unallocated = remaining

	obslogger.WithContext(ctx, s.log).Info("payment allocated",
		zap.String("encounter_id", encounterID.String()),
		zap.String("method", string(m)),
		zap.Int64("requested", amount),
		zap.Int64("allocated", result.Allocated),
		zap.Int64("unallocated", result.Unallocated),
		zap.Int("items", len(result.Applications)),
	)
	s.obsMetrics.RecordAllocation(ctx, string(m), result.Allocated)
	return result, nil
}
