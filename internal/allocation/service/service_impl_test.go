package service

import (
	"context"
	"sync"
	"testing"

	"github.com/smallbiznis/carebill/internal/actor"
	"github.com/smallbiznis/carebill/internal/allocation/domain"
	"github.com/smallbiznis/carebill/internal/authorization"
	"github.com/smallbiznis/carebill/internal/billingtest"
	lineitemdomain "github.com/smallbiznis/carebill/internal/lineitem/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, h *billingtest.Harness) domain.Service {
	t.Helper()
	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)
	return New(Params{
		DB:           h.DB,
		Log:          h.Log,
		LineItemSvc:  h.LineItems,
		EncounterSvc: h.Encounters,
		Authz:        authorization.NewService(authorization.Params{Log: h.Log, Enforcer: enforcer}),
	})
}

func TestRegistrationIsPaidBeforeConsultation(t *testing.T) {
	h := billingtest.New(t)
	svc := newTestService(t, h)
	ctx := context.Background()
	enc := h.Encounter()

	consultation := h.LineItem(enc.ID, "GP-CONSULT", "OPD", 500_000)
	registration := h.LineItem(enc.ID, "REG-001", "Front Desk", 200_000)

	result, err := svc.AllocatePayment(ctx, billingtest.Cashier, enc.ID, 300_000, "CASH")
	require.NoError(t, err)
	assert.Equal(t, int64(300_000), result.Allocated)
	assert.Equal(t, int64(0), result.Unallocated)
	require.Len(t, result.Applications, 2)
	assert.Equal(t, registration.ID, result.Applications[0].LineItemID)
	assert.Equal(t, "registration", result.Applications[0].Tier)

	reg := h.Reload(registration.ID)
	assert.Equal(t, lineitemdomain.StatusPaid, reg.Status)
	con := h.Reload(consultation.ID)
	assert.Equal(t, lineitemdomain.StatusPartiallyPaid, con.Status)
	assert.Equal(t, int64(100_000), con.AmountPaid)
	assert.Equal(t, int64(400_000), con.OutstandingAmount)

	report, err := h.Summary.ComputeSummary(ctx, enc.ID)
	require.NoError(t, err)
	assert.True(t, report.Gates.RegistrationPaid)
	assert.False(t, report.Gates.ConsultationPaid)
}

func TestAllocationOrderIgnoresInsertionOrder(t *testing.T) {
	h := billingtest.New(t)
	svc := newTestService(t, h)
	ctx := context.Background()

	first := h.Encounter()
	h.LineItem(first.ID, "LAB-FBC", "Laboratory", 100_000)
	h.LineItem(first.ID, "GP-CONSULT", "OPD", 100_000)
	h.LineItem(first.ID, "REG-001", "Front Desk", 100_000)

	second := h.Encounter()
	for _, code := range []string{"REG-001", "GP-CONSULT", "LAB-FBC"} {
		entry, err := h.Catalog.Lookup(ctx, code)
		require.NoError(t, err)
		_, err = h.LineItems.Create(ctx, billingtest.Cashier, lineitemdomain.CreateRequest{ServiceID: entry.ID, EncounterID: second.ID})
		require.NoError(t, err)
	}

	codes := func(res *domain.Result) []string {
		out := make([]string, 0, len(res.Applications))
		for _, app := range res.Applications {
			out = append(out, app.ServiceCode)
		}
		return out
	}

	a, err := svc.AllocatePayment(ctx, billingtest.Cashier, first.ID, 250_000, "POS")
	require.NoError(t, err)
	b, err := svc.AllocatePayment(ctx, billingtest.Cashier, second.ID, 250_000, "POS")
	require.NoError(t, err)

	assert.Equal(t, []string{"REG-001", "GP-CONSULT", "LAB-FBC"}, codes(a))
	assert.Equal(t, codes(a), codes(b))
	assert.Equal(t, int64(50_000), a.Applications[2].Amount)
}

func TestSurplusIsReturnedUnallocated(t *testing.T) {
	h := billingtest.New(t)
	svc := newTestService(t, h)
	ctx := context.Background()
	enc := h.Encounter()
	item := h.LineItem(enc.ID, "RAD-XRAY", "Radiology", 800_000)

	result, err := svc.AllocatePayment(ctx, billingtest.Cashier, enc.ID, 1_000_000, "TRANSFER")
	require.NoError(t, err)
	assert.Equal(t, int64(800_000), result.Allocated)
	assert.Equal(t, int64(200_000), result.Unallocated)

	got := h.Reload(item.ID)
	assert.Equal(t, int64(800_000), got.AmountPaid)
	assert.Equal(t, int64(0), got.OutstandingAmount)

	again, err := svc.AllocatePayment(ctx, billingtest.Cashier, enc.ID, 5_000, "CASH")
	require.NoError(t, err)
	assert.Empty(t, again.Applications)
	assert.Equal(t, int64(5_000), again.Unallocated)
}

func TestAllocateRejectsBadInput(t *testing.T) {
	h := billingtest.New(t)
	svc := newTestService(t, h)
	ctx := context.Background()
	enc := h.Encounter()

	_, err := svc.AllocatePayment(ctx, billingtest.Cashier, enc.ID, 0, "CASH")
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = svc.AllocatePayment(ctx, billingtest.Cashier, enc.ID, 100, "IOU")
	require.ErrorIs(t, err, domain.ErrInvalidMethod)

	clinician := actor.Actor{ID: "dr-1", Role: actor.RoleClinician}
	_, err = svc.AllocatePayment(ctx, clinician, enc.ID, 100, "CASH")
	require.ErrorIs(t, err, authorization.ErrForbidden)
}

func TestConcurrentAllocationsNeverOverAllocate(t *testing.T) {
	h := billingtest.New(t)
	svc := newTestService(t, h)
	ctx := context.Background()
	enc := h.Encounter()

	items := []*lineitemdomain.LineItem{
		h.LineItem(enc.ID, "REG-001", "Front Desk", 200_000),
		h.LineItem(enc.ID, "GP-CONSULT", "OPD", 500_000),
		h.LineItem(enc.ID, "LAB-FBC", "Laboratory", 300_000),
	}
	const billed = int64(1_000_000)

	const payers = 3
	results := make([]*domain.Result, payers)
	errs := make([]error, payers)
	var wg sync.WaitGroup
	for i := 0; i < payers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.AllocatePayment(ctx, billingtest.Cashier, enc.ID, 400_000, "CASH")
		}(i)
	}
	wg.Wait()

	var allocated, unallocated int64
	for i := 0; i < payers; i++ {
		require.NoError(t, errs[i])
		allocated += results[i].Allocated
		unallocated += results[i].Unallocated
	}
	assert.Equal(t, billed, allocated)
	assert.Equal(t, int64(200_000), unallocated)

	var paid int64
	for _, item := range items {
		stored := h.Reload(item.ID)
		assert.LessOrEqual(t, stored.AmountPaid, stored.Amount)
		assert.Equal(t, stored.Amount-stored.AmountPaid, stored.OutstandingAmount)
		assert.Equal(t, lineitemdomain.StatusPaid, stored.Status)
		paid += stored.AmountPaid
	}
	assert.Equal(t, billed, paid)
}
