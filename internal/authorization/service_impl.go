package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/carebill/internal/actor"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

// NewEnforcer loads policies through the gorm adapter and seeds the built-in
// role grants on top of whatever the casbin_rule table already holds.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

// NewMemoryEnforcer builds an enforcer with the seeded grants and no storage.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, a actor.Actor, object string, action string) error {
	if err := a.Validate(); err != nil {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(subjectFor(a.Role), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("actor_id", a.ID),
			zap.String("actor_role", string(a.Role)),
			zap.String("object", object),
			zap.String("action", action),
		)
		s.auditDenied(ctx, a, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) auditDenied(ctx context.Context, a actor.Actor, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.AuditLog(ctx, nil, a, "authorization.denied", "authorization", object, map[string]any{
		"object":  object,
		"action":  action,
		"subject": subjectFor(a.Role),
	})
}

func subjectFor(role actor.Role) string {
	return "role:" + string(role)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Cashier desk
		{subjectFor(actor.RoleCashier), ObjectLineItem, ActionLineItemCreate},
		{subjectFor(actor.RoleCashier), ObjectLineItem, ActionLineItemApplyPayment},
		{subjectFor(actor.RoleCashier), ObjectPayment, ActionPaymentRecord},
		{subjectFor(actor.RoleCashier), ObjectPayment, ActionPaymentAllocate},

		// Clinicians order billable services
		{subjectFor(actor.RoleClinician), ObjectLineItem, ActionLineItemCreate},
		{subjectFor(actor.RoleClinician), ObjectLeak, ActionLeakDetect},

		// Billing officers
		{subjectFor(actor.RoleBillingOfficer), ObjectLineItem, ActionLineItemUpdate},
		{subjectFor(actor.RoleBillingOfficer), ObjectLineItem, ActionLineItemDelete},
		{subjectFor(actor.RoleBillingOfficer), ObjectLeak, ActionLeakDetect},
		{subjectFor(actor.RoleBillingOfficer), ObjectLeak, ActionLeakSweep},
		{subjectFor(actor.RoleBillingOfficer), ObjectLeak, ActionLeakResolve},
		{subjectFor(actor.RoleBillingOfficer), ObjectReconciliation, ActionReconciliationPrepare},
		{subjectFor(actor.RoleBillingOfficer), ObjectReconciliation, ActionReconciliationNotes},

		// Accountants
		{subjectFor(actor.RoleAccountant), ObjectReconciliation, ActionReconciliationPrepare},
		{subjectFor(actor.RoleAccountant), ObjectReconciliation, ActionReconciliationFinalize},
		{subjectFor(actor.RoleAccountant), ObjectReconciliation, ActionReconciliationCancel},
		{subjectFor(actor.RoleAccountant), ObjectReconciliation, ActionReconciliationNotes},
		{subjectFor(actor.RoleAccountant), ObjectAuditLog, ActionAuditLogView},

		// Scheduler and gateway intake
		{subjectFor(actor.RoleSystem), ObjectLineItem, ActionLineItemApplyPayment},
		{subjectFor(actor.RoleSystem), ObjectPayment, ActionPaymentRecord},
		{subjectFor(actor.RoleSystem), ObjectPayment, ActionPaymentAllocate},
		{subjectFor(actor.RoleSystem), ObjectLeak, ActionLeakDetect},
		{subjectFor(actor.RoleSystem), ObjectLeak, ActionLeakSweep},
		{subjectFor(actor.RoleSystem), ObjectReconciliation, ActionReconciliationPrepare},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	groupings := [][]string{
		{subjectFor(actor.RoleBillingOfficer), subjectFor(actor.RoleCashier)},
		{subjectFor(actor.RoleAdmin), subjectFor(actor.RoleBillingOfficer)},
		{subjectFor(actor.RoleAdmin), subjectFor(actor.RoleAccountant)},
		{subjectFor(actor.RoleAdmin), subjectFor(actor.RoleClinician)},
		{subjectFor(actor.RoleAdmin), subjectFor(actor.RoleSystem)},
	}
	for _, grouping := range groupings {
		has, err := enforcer.HasGroupingPolicy(grouping)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddGroupingPolicy(grouping); err != nil {
			return err
		}
	}
	return nil
}
