package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/carebill/internal/actor"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	enforcer, err := NewMemoryEnforcer()
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestAuthorizeRoleGrants(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		role    actor.Role
		object  string
		action  string
		allowed bool
	}{
		{"cashier records payment", actor.RoleCashier, ObjectPayment, ActionPaymentRecord, true},
		{"cashier cannot finalize", actor.RoleCashier, ObjectReconciliation, ActionReconciliationFinalize, false},
		{"cashier cannot resolve leak", actor.RoleCashier, ObjectLeak, ActionLeakResolve, false},
		{"billing officer inherits cashier", actor.RoleBillingOfficer, ObjectPayment, ActionPaymentRecord, true},
		{"billing officer resolves leak", actor.RoleBillingOfficer, ObjectLeak, ActionLeakResolve, true},
		{"billing officer cannot finalize", actor.RoleBillingOfficer, ObjectReconciliation, ActionReconciliationFinalize, false},
		{"accountant finalizes", actor.RoleAccountant, ObjectReconciliation, ActionReconciliationFinalize, true},
		{"accountant cannot record payment", actor.RoleAccountant, ObjectPayment, ActionPaymentRecord, false},
		{"clinician creates line item", actor.RoleClinician, ObjectLineItem, ActionLineItemCreate, true},
		{"clinician cannot delete line item", actor.RoleClinician, ObjectLineItem, ActionLineItemDelete, false},
		{"system sweeps leaks", actor.RoleSystem, ObjectLeak, ActionLeakSweep, true},
		{"system cannot cancel reconciliation", actor.RoleSystem, ObjectReconciliation, ActionReconciliationCancel, false},
		{"admin cancels reconciliation", actor.RoleAdmin, ObjectReconciliation, ActionReconciliationCancel, true},
		{"admin deletes line item", actor.RoleAdmin, ObjectLineItem, ActionLineItemDelete, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Authorize(ctx, actor.Actor{ID: "u-1", Role: tc.role}, tc.object, tc.action)
			if tc.allowed {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrForbidden)
		})
	}
}

func TestAuthorizeValidatesInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.ErrorIs(t, svc.Authorize(ctx, actor.Actor{Role: actor.RoleCashier}, ObjectPayment, ActionPaymentRecord), ErrInvalidActor)
	require.ErrorIs(t, svc.Authorize(ctx, actor.Actor{ID: "u-1", Role: "janitor"}, ObjectPayment, ActionPaymentRecord), ErrInvalidActor)
	require.ErrorIs(t, svc.Authorize(ctx, actor.System(), " ", ActionPaymentRecord), ErrInvalidObject)
	require.ErrorIs(t, svc.Authorize(ctx, actor.System(), ObjectPayment, ""), ErrInvalidAction)
}
