package authorization

import (
	"context"
	"errors"

	"github.com/smallbiznis/carebill/internal/actor"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = actor.ErrInvalidActor
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

const (
	ObjectLineItem       = "line_item"
	ObjectPayment        = "payment"
	ObjectLeak           = "leak"
	ObjectReconciliation = "reconciliation"
	ObjectAuditLog       = "audit_log"
)

const (
	ActionLineItemCreate       = "line_item.create"
	ActionLineItemUpdate       = "line_item.update"
	ActionLineItemDelete       = "line_item.delete"
	ActionLineItemApplyPayment = "line_item.apply_payment"

	ActionPaymentRecord   = "payment.record"
	ActionPaymentAllocate = "payment.allocate"

	ActionLeakDetect  = "leak.detect"
	ActionLeakSweep   = "leak.sweep"
	ActionLeakResolve = "leak.resolve"

	ActionReconciliationPrepare  = "reconciliation.prepare"
	ActionReconciliationFinalize = "reconciliation.finalize"
	ActionReconciliationCancel   = "reconciliation.cancel"
	ActionReconciliationNotes    = "reconciliation.notes"

	ActionAuditLogView = "audit_log.view"
)

// Service decides whether an actor may perform an action on a ledger object.
type Service interface {
	Authorize(ctx context.Context, a actor.Actor, object string, action string) error
}
