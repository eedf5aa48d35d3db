package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/smallbiznis/carebill/internal/actor"
	allocationservice "github.com/smallbiznis/carebill/internal/allocation/service"
	"github.com/smallbiznis/carebill/internal/authorization"
	"github.com/smallbiznis/carebill/internal/billingsummary/summary"
	"github.com/smallbiznis/carebill/internal/billingtest"
	lineitemdomain "github.com/smallbiznis/carebill/internal/lineitem/domain"
	paymentdomain "github.com/smallbiznis/carebill/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, h *billingtest.Harness) paymentdomain.Service {
	t.Helper()
	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{Log: h.Log, Enforcer: enforcer})
	allocation := allocationservice.New(allocationservice.Params{
		DB:           h.DB,
		Log:          h.Log,
		LineItemSvc:  h.LineItems,
		EncounterSvc: h.Encounters,
		Authz:        authz,
	})
	return NewService(Params{
		DB:            h.DB,
		Log:           h.Log,
		GenID:         h.Node,
		Clock:         h.Clock,
		Repo:          h.PaymentRepo,
		EncounterSvc:  h.Encounters,
		AllocationSvc: allocation,
		SummarySvc:    h.Summary,
		AuditSvc:      h.Audit,
		Authz:         authz,
	})
}

func TestRecordPaymentAllocatesAndStoresRows(t *testing.T) {
	h := billingtest.New(t)
	svc := newTestService(t, h)
	ctx := context.Background()
	enc := h.Encounter()

	registration := h.LineItem(enc.ID, "REG-001", "Front Desk", 200_000)
	consultation := h.LineItem(enc.ID, "GP-CONSULT", "OPD", 500_000)

	res, err := svc.RecordPayment(ctx, billingtest.Cashier, paymentdomain.RecordPaymentRequest{
		EncounterID: enc.ID,
		Amount:      250_000,
		Method:      "cash",
		Reference:   "RCPT-001",
	})
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, paymentdomain.StatusCleared, res.Payment.Status)
	assert.Equal(t, paymentdomain.MethodCash, res.Payment.Method)
	assert.Equal(t, int64(250_000), res.Allocated)
	require.Len(t, res.Allocations, 2)
	assert.Equal(t, registration.ID, res.Allocations[0].LineItemID)
	assert.Equal(t, int64(200_000), res.Allocations[0].Amount)
	assert.Equal(t, consultation.ID, res.Allocations[1].LineItemID)
	assert.Equal(t, int64(50_000), res.Allocations[1].Amount)

	stored, err := svc.ListAllocations(ctx, res.Payment.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	assert.Equal(t, lineitemdomain.StatusPaid, h.Reload(registration.ID).Status)
	assert.Equal(t, lineitemdomain.StatusPartiallyPaid, h.Reload(consultation.ID).Status)

	encounter, err := h.Encounters.Get(ctx, nil, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, string(summary.PaymentStatusPartiallyPaid), encounter.PaymentStatus)
}

func TestRecordPaymentDuplicateReference(t *testing.T) {
	h := billingtest.New(t)
	svc := newTestService(t, h)
	ctx := context.Background()
	enc := h.Encounter()
	h.LineItem(enc.ID, "LAB-FBC", "Laboratory", 100_000)

	req := paymentdomain.RecordPaymentRequest{EncounterID: enc.ID, Amount: 60_000, Method: "POS", Reference: "POS-77"}
	first, err := svc.RecordPayment(ctx, billingtest.Cashier, req)
	require.NoError(t, err)

	second, err := svc.RecordPayment(ctx, billingtest.Cashier, req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Payment.ID, second.Payment.ID)
	assert.Equal(t, int64(60_000), second.Allocated)

	records, err := svc.ListByEncounter(ctx, enc.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRecordPaymentPendingIsNotAllocated(t *testing.T) {
	h := billingtest.New(t)
	svc := newTestService(t, h)
	ctx := context.Background()
	enc := h.Encounter()
	item := h.LineItem(enc.ID, "LAB-FBC", "Laboratory", 100_000)

	res, err := svc.RecordPayment(ctx, billingtest.Cashier, paymentdomain.RecordPaymentRequest{
		EncounterID: enc.ID, Amount: 100_000, Method: "TRANSFER", Status: "pending",
	})
	require.NoError(t, err)
	assert.Empty(t, res.Allocations)
	assert.Equal(t, int64(100_000), res.Unallocated)
	assert.Equal(t, lineitemdomain.StatusPending, h.Reload(item.ID).Status)
}

func TestRecordPaymentValidation(t *testing.T) {
	h := billingtest.New(t)
	svc := newTestService(t, h)
	ctx := context.Background()
	enc := h.Encounter()

	_, err := svc.RecordPayment(ctx, billingtest.Cashier, paymentdomain.RecordPaymentRequest{EncounterID: enc.ID, Amount: 0, Method: "CASH"})
	require.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)

	_, err = svc.RecordPayment(ctx, billingtest.Cashier, paymentdomain.RecordPaymentRequest{EncounterID: enc.ID, Amount: 10, Method: "CHEQUE"})
	require.ErrorIs(t, err, paymentdomain.ErrInvalidMethod)

	_, err = svc.RecordPayment(ctx, billingtest.Cashier, paymentdomain.RecordPaymentRequest{EncounterID: enc.ID, Amount: 10, Method: "CASH", Status: "BOUNCED"})
	require.ErrorIs(t, err, paymentdomain.ErrInvalidStatus)

	clinician := actor.Actor{ID: "dr-1", Role: actor.RoleClinician}
	_, err = svc.RecordPayment(ctx, clinician, paymentdomain.RecordPaymentRequest{EncounterID: enc.ID, Amount: 10, Method: "CASH"})
	require.ErrorIs(t, err, authorization.ErrForbidden)
}

func TestProcessEventIsIdempotent(t *testing.T) {
	h := billingtest.New(t)
	svc := newTestService(t, h)
	ctx := context.Background()
	enc := h.Encounter()
	item := h.LineItem(enc.ID, "REG-001", "Front Desk", 200_000)

	payload, err := json.Marshal(map[string]any{"event": "charge.success", "reference": "PSK-1"})
	require.NoError(t, err)
	event := func() *paymentdomain.PaymentEvent {
		return &paymentdomain.PaymentEvent{
			Provider:        "paystack",
			ProviderEventID: "charge.success:1",
			Reference:       "PSK-1",
			Type:            paymentdomain.EventTypePaymentSucceeded,
			Method:          paymentdomain.MethodPaystack,
			EncounterID:     enc.ID,
			Amount:          200_000,
			Currency:        "ngn",
			OccurredAt:      time.Now(),
		}
	}

	require.NoError(t, svc.ProcessEvent(ctx, event(), payload))
	require.ErrorIs(t, svc.ProcessEvent(ctx, event(), payload), paymentdomain.ErrEventAlreadyProcessed)

	records, err := svc.ListByEncounter(ctx, enc.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, actor.System().ID, records[0].ProcessedBy)
	assert.Equal(t, lineitemdomain.StatusPaid, h.Reload(item.ID).Status)
}

func TestProcessEventRejectsForeignCurrency(t *testing.T) {
	h := billingtest.New(t)
	svc := newTestService(t, h)
	enc := h.Encounter()

	err := svc.ProcessEvent(context.Background(), &paymentdomain.PaymentEvent{
		Provider:        "flutterwave",
		ProviderEventID: "99",
		Reference:       "FLW-99",
		Type:            paymentdomain.EventTypePaymentSucceeded,
		Method:          paymentdomain.MethodFlutterwave,
		EncounterID:     enc.ID,
		Amount:          1_000,
		Currency:        "USD",
	}, []byte(`{}`))
	require.ErrorIs(t, err, paymentdomain.ErrInvalidCurrency)
}
