package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/billingsummary/domain"
	"github.com/smallbiznis/carebill/internal/billingsummary/summary"
	"github.com/smallbiznis/carebill/internal/config"
	coveragedomain "github.com/smallbiznis/carebill/internal/coverage/domain"
	encounterdomain "github.com/smallbiznis/carebill/internal/encounter/domain"
	lineitemdomain "github.com/smallbiznis/carebill/internal/lineitem/domain"
	obsmetrics "github.com/smallbiznis/carebill/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/carebill/internal/payment/domain"
	"github.com/smallbiznis/carebill/internal/paymentgate/gate"
	walletdomain "github.com/smallbiznis/carebill/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	LineItems    lineitemdomain.Repository
	PaymentRepo  paymentdomain.Repository
	EncounterSvc encounterdomain.Service
	CoverageSvc  coveragedomain.Service
	WalletSvc    walletdomain.Service
	Policy       *config.BillingPolicyHolder `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics         `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	lineItems    lineitemdomain.Repository
	paymentRepo  paymentdomain.Repository
	encounterSvc encounterdomain.Service
	coverageSvc  coveragedomain.Service
	walletSvc    walletdomain.Service
	policy       *config.BillingPolicyHolder
	obsMetrics   *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("billingsummary.service"),
		lineItems:    p.LineItems,
		paymentRepo:  p.PaymentRepo,
		encounterSvc: p.EncounterSvc,
		coverageSvc:  p.CoverageSvc,
		walletSvc:    p.WalletSvc,
		policy:       p.Policy,
		obsMetrics:   p.ObsMetrics,
	}
}

func (s *Service) ComputeSummary(ctx context.Context, encounterID snowflake.ID) (*domain.Report, error) {
	return s.ComputeWithDB(ctx, nil, encounterID)
}

// ComputeWithDB loads every input through db, so a caller holding a
// transaction sees its own uncommitted writes.
func (s *Service) ComputeWithDB(ctx context.Context, db *gorm.DB, encounterID snowflake.ID) (*domain.Report, error) {
	if encounterID == 0 {
		return nil, domain.ErrInvalidReference
	}
	if db == nil {
		db = s.db
	}

	if _, err := s.encounterSvc.Get(ctx, db, encounterID); err != nil {
		return nil, err
	}
	items, err := s.lineItems.ListByEncounter(ctx, db, encounterID)
	if err != nil {
		return nil, err
	}
	flat, err := s.encounterSvc.FlatChargesTotal(ctx, db, encounterID)
	if err != nil {
		return nil, err
	}
	cleared, err := s.paymentRepo.SumClearedByEncounter(ctx, db, encounterID)
	if err != nil {
		return nil, err
	}
	debits, err := s.walletSvc.CompletedDebits(ctx, db, encounterID)
	if err != nil {
		return nil, err
	}
	insurance, err := s.coverageSvc.Insurance(ctx, db, encounterID)
	if err != nil {
		return nil, err
	}
	retainership, err := s.coverageSvc.Retainership(ctx, db, encounterID)
	if err != nil {
		return nil, err
	}

	policy := s.policy.Get()
	inputs := summary.Inputs{
		FlatCharges:     flat,
		ClearedPayments: cleared,
		WalletDebits:    debits,
		DiscountOrder:   policy.DiscountOrder,
	}
	for _, item := range items {
		inputs.LineItemCharges += item.Amount
	}
	if insurance != nil {
		inputs.Insurance = &summary.Insurance{
			ApprovalStatus: insurance.ApprovalStatus,
			CoverageBps:    insurance.EffectiveBps(),
			ApprovedAmount: insurance.ApprovedAmount,
		}
	}
	if retainership != nil {
		inputs.Retainership = &summary.Retainership{
			Active:      retainership.Active,
			DiscountBps: retainership.DiscountBps,
		}
	}

	computed := summary.Compute(inputs)
	gates := gate.Evaluate(items, computed, lineitemdomain.RulesFromPolicy(policy))
	s.observeFallback(ctx, encounterID, "registration", gates.RegistrationReason)
	s.observeFallback(ctx, encounterID, "consultation", gates.ConsultationReason)

	return &domain.Report{
		EncounterID: encounterID,
		Summary:     computed,
		Gates:       gates,
	}, nil
}

func (s *Service) observeFallback(ctx context.Context, encounterID snowflake.ID, name string, reason gate.Reason) {
	if reason != gate.ReasonOutstandingBalance {
		return
	}
	s.log.Debug("payment gate opened by encounter balance",
		zap.String("encounter_id", encounterID.String()),
		zap.String("gate", name),
		zap.String("gate_fallback", string(reason)),
	)
	s.obsMetrics.RecordGateFallback(ctx, name, string(reason))
}
