package service

import (
	"context"
	"fmt"

	"github.com/smallbiznis/carebill/internal/actor"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	billingsummarydomain "github.com/smallbiznis/carebill/internal/billingsummary/domain"
	encounterdomain "github.com/smallbiznis/carebill/internal/encounter/domain"
	obslogger "github.com/smallbiznis/carebill/internal/observability/logger"
	"github.com/smallbiznis/carebill/internal/paymentevent/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log          *zap.Logger
	EncounterSvc encounterdomain.Service
	SummarySvc   billingsummarydomain.Service
	AuditSvc     auditdomain.Service `optional:"true"`
}

// Dispatcher handles PAYMENT_CONFIRMED inside a savepoint of the writer's
// transaction.
type Dispatcher struct {
	log          *zap.Logger
	encounterSvc encounterdomain.Service
	summarySvc   billingsummarydomain.Service
	auditSvc     auditdomain.Service
}

func New(p Params) domain.Dispatcher {
	return &Dispatcher{
		log:          p.Log.Named("paymentevent.dispatcher"),
		encounterSvc: p.EncounterSvc,
		summarySvc:   p.SummarySvc,
		auditSvc:     p.AuditSvc,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, tx *gorm.DB, event domain.PaymentConfirmedEvent) error {
	if tx == nil {
		return fmt.Errorf("dispatch %s: transaction required", domain.TypePaymentConfirmed)
	}

	err := tx.Transaction(func(sp *gorm.DB) error {
		if err := d.activateConsultation(ctx, sp, event); err != nil {
			return err
		}
		return d.refreshPaymentStatus(ctx, sp, event)
	})
	if err != nil {
		return fmt.Errorf("handle %s for line item %s: %w", domain.TypePaymentConfirmed, event.LineItemID, err)
	}

	obslogger.WithContext(ctx, d.log).Debug("payment confirmed handled",
		zap.String("line_item_id", event.LineItemID.String()),
		zap.String("encounter_id", event.EncounterID.String()),
		zap.String("service_code", event.ServiceCode),
	)
	return nil
}

// activateConsultation unlocks a PENDING consultation. ACTIVE and CLOSED
// consultations are left alone, so a repeated event is a no-op.
func (d *Dispatcher) activateConsultation(ctx context.Context, sp *gorm.DB, event domain.PaymentConfirmedEvent) error {
	if event.ConsultationID == nil {
		return nil
	}
	consultation, activated, err := d.encounterSvc.ActivateConsultation(ctx, sp, *event.ConsultationID)
	if err != nil {
		return err
	}
	if !activated {
		return nil
	}

	if d.auditSvc != nil {
		a := event.Actor
		if a.Validate() != nil {
			a = actor.System()
		}
		metadata := map[string]any{
			"consultation_id": consultation.ID.String(),
			"line_item_id":    event.LineItemID.String(),
		}
		if consultation.ClinicianID != nil {
			metadata["clinician_id"] = *consultation.ClinicianID
		}
		_ = d.auditSvc.Timeline(ctx, sp, event.EncounterID, a, auditdomain.TimelineConsultationActive,
			fmt.Sprintf("consultation unlocked by %s payment", event.ServiceCode), metadata)
	}
	return nil
}

func (d *Dispatcher) refreshPaymentStatus(ctx context.Context, sp *gorm.DB, event domain.PaymentConfirmedEvent) error {
	report, err := d.summarySvc.ComputeWithDB(ctx, sp, event.EncounterID)
	if err != nil {
		return err
	}
	return d.encounterSvc.UpdatePaymentStatus(ctx, sp, event.EncounterID, string(report.Summary.PaymentStatus))
}
