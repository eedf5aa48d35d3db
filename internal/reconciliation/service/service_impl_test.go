package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/actor"
	"github.com/smallbiznis/carebill/internal/authorization"
	"github.com/smallbiznis/carebill/internal/billingtest"
	"github.com/smallbiznis/carebill/internal/config"
	encounterdomain "github.com/smallbiznis/carebill/internal/encounter/domain"
	fulfillmentdomain "github.com/smallbiznis/carebill/internal/fulfillment/domain"
	leakrepository "github.com/smallbiznis/carebill/internal/leak/repository"
	leakservice "github.com/smallbiznis/carebill/internal/leak/service"
	paymentdomain "github.com/smallbiznis/carebill/internal/payment/domain"
	"github.com/smallbiznis/carebill/internal/reconciliation/domain"
	"github.com/smallbiznis/carebill/internal/reconciliation/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accountant = actor.Actor{ID: "acct-1", Role: actor.RoleAccountant}

const day = "2026-03-02"

func newTestService(t *testing.T, h *billingtest.Harness) domain.Service {
	t.Helper()
	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)
	leaks := leakservice.New(leakservice.Params{
		DB:             h.DB,
		Log:            h.Log,
		GenID:          h.Node,
		Clock:          h.Clock,
		Repo:           leakrepository.Provide(),
		Catalog:        h.Catalog,
		LineItemSvc:    h.LineItems,
		FulfillmentSvc: h.Fulfillment,
		Policy:         h.Policy,
	})
	return New(Params{
		DB:           h.DB,
		Log:          h.Log,
		GenID:        h.Node,
		Clock:        h.Clock,
		Cfg:          config.Config{TimeZone: "UTC"},
		Repo:         repository.Provide(),
		PaymentRepo:  h.PaymentRepo,
		LineItemSvc:  h.LineItems,
		EncounterSvc: h.Encounters,
		LeakSvc:      leaks,
		AuditSvc:     h.Audit,
		Authz:        authorization.NewService(authorization.Params{Log: h.Log, Enforcer: enforcer}),
	})
}

func pay(t *testing.T, h *billingtest.Harness, encounterID snowflake.ID, method paymentdomain.Method, status string, amount int64, at time.Time) {
	t.Helper()
	err := h.PaymentRepo.InsertRecord(context.Background(), h.DB, &paymentdomain.Record{
		ID:          h.Node.Generate(),
		EncounterID: encounterID,
		Amount:      amount,
		Method:      method,
		Status:      status,
		ProcessedBy: "cashier-1",
		CreatedAt:   at,
	})
	require.NoError(t, err)
}

func TestCreateSumsBucketsOutstandingAndLeaks(t *testing.T) {
	h := billingtest.New(t)
	svc := newTestService(t, h)
	ctx := context.Background()
	enc := h.Encounter()
	at := billingtest.Start

	pay(t, h, enc.ID, paymentdomain.MethodCash, paymentdomain.StatusCleared, 100_000, at)
	pay(t, h, enc.ID, paymentdomain.MethodPOS, paymentdomain.StatusCleared, 50_000, at)
	pay(t, h, enc.ID, paymentdomain.MethodWallet, paymentdomain.StatusCleared, 20_000, at)
	pay(t, h, enc.ID, paymentdomain.MethodPaystack, paymentdomain.StatusCleared, 30_000, at)
	pay(t, h, enc.ID, paymentdomain.MethodHMO, paymentdomain.StatusCleared, 40_000, at)
	pay(t, h, enc.ID, paymentdomain.MethodInsurance, paymentdomain.StatusCleared, 60_000, at)
	pay(t, h, enc.ID, paymentdomain.MethodCash, paymentdomain.StatusFailed, 999, at)
	pay(t, h, enc.ID, paymentdomain.MethodCash, paymentdomain.StatusCleared, 777, at.AddDate(0, 0, -1))

	h.LineItem(enc.ID, "LAB-FBC", "Laboratory", 120_000)
	_, err := h.Fulfillment.Record(ctx, fulfillmentdomain.RecordRequest{
		EntityType:  fulfillmentdomain.EntityRadiologyReport,
		EntityID:    h.Node.Generate(),
		EncounterID: enc.ID,
		ServiceCode: "XRAY-CHEST",
	})
	require.NoError(t, err)

	rec, err := svc.Create(ctx, accountant, domain.CreateRequest{Date: day})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, rec.Status)
	assert.Equal(t, int64(150_000), rec.CashTotal)
	assert.Equal(t, int64(20_000), rec.WalletTotal)
	assert.Equal(t, int64(30_000), rec.GatewayTotal)
	assert.Equal(t, int64(100_000), rec.HMOTotal)
	assert.Equal(t, int64(60_000), rec.InsuranceTotal)
	assert.Equal(t, int64(300_000), rec.TotalRevenue)
	assert.Equal(t, int64(6), rec.PaymentCount)
	assert.Equal(t, int64(120_000), rec.OutstandingTotal)
	assert.Equal(t, int64(1), rec.OutstandingCount)
	assert.Equal(t, int64(1), rec.LeakCount)
	assert.Equal(t, h.Policy.Get().DefaultLeakAmount, rec.LeakTotal)
	assert.False(t, rec.HasMismatches)
	assert.Empty(t, rec.MismatchDetails)
	assert.Equal(t, accountant.ID, rec.PreparedBy)
}

func TestUnbucketedMethodIsRecordedAsMismatch(t *testing.T) {
	h := billingtest.New(t)
	svc := newTestService(t, h)
	enc := h.Encounter()

	pay(t, h, enc.ID, paymentdomain.MethodCash, paymentdomain.StatusCleared, 10_000, billingtest.Start)
	pay(t, h, enc.ID, paymentdomain.Method("CHEQUE"), paymentdomain.StatusCleared, 5_000, billingtest.Start)

	rec, err := svc.Create(context.Background(), accountant, domain.CreateRequest{Date: day})
	require.NoError(t, err)
	assert.True(t, rec.HasMismatches)
	assert.Equal(t, int64(15_000), rec.TotalRevenue)
	assert.Equal(t, int64(10_000), rec.CashTotal)

	checks := make([]string, 0, len(rec.MismatchDetails))
	for _, m := range rec.MismatchDetails {
		checks = append(checks, m.Check)
	}
	assert.ElementsMatch(t, []string{"unbucketed_method", "revenue_vs_buckets", "payment_count"}, checks)
}

func TestFinalizeTwice(t *testing.T) {
	h := billingtest.New(t)
	svc := newTestService(t, h)
	ctx := context.Background()
	enc := h.Encounter()
	pay(t, h, enc.ID, paymentdomain.MethodCash, paymentdomain.StatusCleared, 70_000, billingtest.Start)

	draft, err := svc.Create(ctx, accountant, domain.CreateRequest{Date: day})
	require.NoError(t, err)

	finalized, err := svc.Finalize(ctx, accountant, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinalized, finalized.Status)
	require.NotNil(t, finalized.FinalizedBy)
	assert.Equal(t, accountant.ID, *finalized.FinalizedBy)

	// money arriving later must not leak into a closed day
	pay(t, h, enc.ID, paymentdomain.MethodCash, paymentdomain.StatusCleared, 5_000, billingtest.Start.Add(time.Hour))

	_, err = svc.Finalize(ctx, accountant, draft.ID)
	require.ErrorIs(t, err, domain.ErrAlreadyFinalized)
	_, err = svc.Create(ctx, accountant, domain.CreateRequest{Date: day})
	require.ErrorIs(t, err, domain.ErrAlreadyFinalized)
	_, err = svc.Cancel(ctx, accountant, draft.ID, "late")
	require.ErrorIs(t, err, domain.ErrAlreadyFinalized)

	after, err := svc.GetByDate(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, finalized.TotalRevenue, after.TotalRevenue)
	assert.Equal(t, finalized.CashTotal, after.CashTotal)
	assert.Equal(t, finalized.PaymentCount, after.PaymentCount)

	noted, err := svc.UpdateNotes(ctx, accountant, draft.ID, "till counted twice")
	require.NoError(t, err)
	assert.Equal(t, "till counted twice", noted.Notes)
	assert.Equal(t, domain.StatusFinalized, noted.Status)
}

func TestCancelledDayIsRecomputed(t *testing.T) {
	h := billingtest.New(t)
	svc := newTestService(t, h)
	ctx := context.Background()
	enc := h.Encounter()
	pay(t, h, enc.ID, paymentdomain.MethodCash, paymentdomain.StatusCleared, 10_000, billingtest.Start)

	draft, err := svc.Create(ctx, accountant, domain.CreateRequest{Date: day})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, accountant, draft.ID, "wrong till")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Contains(t, cancelled.Notes, "wrong till")

	_, err = svc.Finalize(ctx, accountant, draft.ID)
	require.ErrorIs(t, err, domain.ErrReconciliationCancelled)

	pay(t, h, enc.ID, paymentdomain.MethodPOS, paymentdomain.StatusCleared, 2_000, billingtest.Start)
	redo, err := svc.Create(ctx, accountant, domain.CreateRequest{Date: day})
	require.NoError(t, err)
	assert.Equal(t, draft.ID, redo.ID)
	assert.Equal(t, domain.StatusDraft, redo.Status)
	assert.Equal(t, int64(12_000), redo.TotalRevenue)
	assert.Nil(t, redo.CancelledAt)
}

func TestCreateClosesOpenEncounters(t *testing.T) {
	h := billingtest.New(t)
	svc := newTestService(t, h)
	ctx := context.Background()
	enc := h.Encounter()

	// the next morning, once the day is over
	h.Clock.Set(time.Date(2026, 3, 3, 1, 0, 0, 0, time.UTC))
	rec, err := svc.Create(ctx, accountant, domain.CreateRequest{Date: day, CloseOpenEncounters: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.EncountersClosed)

	stored, err := h.Encounters.Get(ctx, nil, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, encounterdomain.StatusClosed, stored.Status)
}

func TestCreateLeavesEncountersOpenWhileDayInProgress(t *testing.T) {
	h := billingtest.New(t)
	svc := newTestService(t, h)
	ctx := context.Background()
	enc := h.Encounter()

	h.Clock.Advance(2 * time.Hour)
	rec, err := svc.Create(ctx, accountant, domain.CreateRequest{Date: day, CloseOpenEncounters: true})
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.EncountersClosed)

	stored, err := h.Encounters.Get(ctx, nil, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, encounterdomain.StatusOpen, stored.Status)

	// still billable
	item := h.LineItem(enc.ID, "LAB-FBC", "Laboratory", 100_000)
	assert.Equal(t, enc.ID, item.EncounterID)
}

func TestConcurrentFinalizeHasOneWinner(t *testing.T) {
	h := billingtest.New(t)
	svc := newTestService(t, h)
	ctx := context.Background()
	enc := h.Encounter()
	pay(t, h, enc.ID, paymentdomain.MethodCash, paymentdomain.StatusCleared, 40_000, billingtest.Start)

	draft, err := svc.Create(ctx, accountant, domain.CreateRequest{Date: day})
	require.NoError(t, err)

	const callers = 4
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Finalize(ctx, accountant, draft.ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrAlreadyFinalized)
	}
	assert.Equal(t, 1, wins)

	stored, err := svc.Get(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinalized, stored.Status)
	assert.Equal(t, int64(40_000), stored.TotalRevenue)
}

func TestCreateValidation(t *testing.T) {
	h := billingtest.New(t)
	svc := newTestService(t, h)
	ctx := context.Background()

	_, err := svc.Create(ctx, accountant, domain.CreateRequest{Date: "02/03/2026"})
	require.ErrorIs(t, err, domain.ErrInvalidDate)

	_, err = svc.Create(ctx, accountant, domain.CreateRequest{Date: "2026-03-05"})
	require.ErrorIs(t, err, domain.ErrInvalidDate)

	cashier := actor.Actor{ID: "c-1", Role: actor.RoleCashier}
	_, err = svc.Create(ctx, cashier, domain.CreateRequest{Date: day})
	require.ErrorIs(t, err, authorization.ErrForbidden)

	_, err = svc.Finalize(ctx, accountant, h.Node.Generate())
	require.ErrorIs(t, err, domain.ErrReconciliationNotFound)
}
