package webhook_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/http"
	"testing"

	allocationservice "github.com/smallbiznis/carebill/internal/allocation/service"
	"github.com/smallbiznis/carebill/internal/billingtest"
	"github.com/smallbiznis/carebill/internal/config"
	lineitemdomain "github.com/smallbiznis/carebill/internal/lineitem/domain"
	"github.com/smallbiznis/carebill/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/carebill/internal/payment/domain"
	paymentservice "github.com/smallbiznis/carebill/internal/payment/service"
	"github.com/smallbiznis/carebill/internal/payment/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const paystackSecret = "sk_test_webhook"

func newWebhook(t *testing.T, h *billingtest.Harness) (paymentdomain.WebhookService, paymentdomain.Service) {
	t.Helper()
	payments := paymentservice.NewService(paymentservice.Params{
		DB:           h.DB,
		Log:          h.Log,
		GenID:        h.Node,
		Clock:        h.Clock,
		Repo:         h.PaymentRepo,
		EncounterSvc: h.Encounters,
		AllocationSvc: allocationservice.New(allocationservice.Params{
			DB: h.DB, Log: h.Log, LineItemSvc: h.LineItems, EncounterSvc: h.Encounters,
		}),
		SummarySvc: h.Summary,
		AuditSvc:   h.Audit,
	})
	svc := webhook.NewService(webhook.Params{
		Log:        h.Log,
		PaymentSvc: payments,
		Adapters:   adapters.NewDefaultRegistry(),
		Cfg:        config.Config{Gateways: config.GatewayConfig{PaystackSecretKey: paystackSecret}},
	})
	return svc, payments
}

func signed(payload []byte) http.Header {
	mac := hmac.New(sha512.New, []byte(paystackSecret))
	_, _ = mac.Write(payload)
	headers := http.Header{}
	headers.Set("X-Paystack-Signature", hex.EncodeToString(mac.Sum(nil)))
	return headers
}

func TestPaystackWebhookRecordsPaymentOnce(t *testing.T) {
	h := billingtest.New(t)
	svc, payments := newWebhook(t, h)
	ctx := context.Background()
	enc := h.Encounter()
	item := h.LineItem(enc.ID, "REG-001", "Front Desk", 150_000)

	payload := []byte(fmt.Sprintf(`{"event":"charge.success","data":{"id":4411,"status":"success","reference":"PSK-4411","amount":150000,"currency":"NGN","paid_at":"2026-03-02T09:30:00Z","metadata":{"encounter_id":"%s"}}}`, enc.ID.String()))

	require.NoError(t, svc.IngestWebhook(ctx, "paystack", payload, signed(payload)))
	require.NoError(t, svc.IngestWebhook(ctx, "paystack", payload, signed(payload)))

	records, err := payments.ListByEncounter(ctx, enc.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, paymentdomain.MethodPaystack, records[0].Method)
	assert.Equal(t, lineitemdomain.StatusPaid, h.Reload(item.ID).Status)
}

func TestWebhookRejectsBadSignatureAndUnknownProvider(t *testing.T) {
	h := billingtest.New(t)
	svc, _ := newWebhook(t, h)
	ctx := context.Background()
	payload := []byte(`{"event":"charge.success","data":{}}`)

	headers := http.Header{}
	headers.Set("X-Paystack-Signature", "deadbeef")
	require.ErrorIs(t, svc.IngestWebhook(ctx, "paystack", payload, headers), paymentdomain.ErrInvalidSignature)

	require.ErrorIs(t, svc.IngestWebhook(ctx, "stripe", payload, headers), paymentdomain.ErrProviderNotFound)
	// flutterwave is registered but has no secret configured
	require.ErrorIs(t, svc.IngestWebhook(ctx, "flutterwave", payload, headers), paymentdomain.ErrProviderNotFound)
}

func TestWebhookIgnoresUnhandledEvents(t *testing.T) {
	h := billingtest.New(t)
	svc, _ := newWebhook(t, h)
	payload := []byte(`{"event":"transfer.success","data":{"id":1}}`)

	require.NoError(t, svc.IngestWebhook(context.Background(), "paystack", payload, signed(payload)))
}
