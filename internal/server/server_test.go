package server

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/carebill/internal/actor"
	allocationservice "github.com/smallbiznis/carebill/internal/allocation/service"
	"github.com/smallbiznis/carebill/internal/authorization"
	"github.com/smallbiznis/carebill/internal/billingtest"
	"github.com/smallbiznis/carebill/internal/config"
	lineitemservice "github.com/smallbiznis/carebill/internal/lineitem/service"
	"github.com/smallbiznis/carebill/internal/observability"
	"github.com/smallbiznis/carebill/internal/payment/adapters"
	paymentservice "github.com/smallbiznis/carebill/internal/payment/service"
	"github.com/smallbiznis/carebill/internal/payment/webhook"
	paymentgateservice "github.com/smallbiznis/carebill/internal/paymentgate/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const paystackSecret = "sk_test_server"

type testServer struct {
	h      *billingtest.Harness
	engine *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := billingtest.New(t)
	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{Log: h.Log, Enforcer: enforcer})

	lineItems := lineitemservice.New(lineitemservice.Params{
		DB:           h.DB,
		Log:          h.Log,
		GenID:        h.Node,
		Clock:        h.Clock,
		Repo:         h.LineRepo,
		Catalog:      h.Catalog,
		EncounterSvc: h.Encounters,
		PaymentRepo:  h.PaymentRepo,
		Policy:       h.Policy,
		AuditSvc:     h.Audit,
		Dispatcher:   h.Dispatcher,
		Authz:        authz,
	})
	allocation := allocationservice.New(allocationservice.Params{
		DB:           h.DB,
		Log:          h.Log,
		LineItemSvc:  lineItems,
		EncounterSvc: h.Encounters,
		Authz:        authz,
	})
	payments := paymentservice.NewService(paymentservice.Params{
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
	webhooks := webhook.NewService(webhook.Params{
		Log:        h.Log,
		PaymentSvc: payments,
		Adapters:   adapters.NewDefaultRegistry(),
		Cfg:        config.Config{Gateways: config.GatewayConfig{PaystackSecretKey: paystackSecret}},
	})

	engine := NewEngine(observability.Config{ServiceName: "carebill", Environment: "test"}, h.Log)
	NewServer(Params{
		Engine:         engine,
		Log:            h.Log,
		Authz:          authz,
		AuditSvc:       h.Audit,
		LineItemSvc:    lineItems,
		AllocationSvc:  allocation,
		SummarySvc:     h.Summary,
		GateSvc:        paymentgateservice.New(paymentgateservice.Params{SummarySvc: h.Summary}),
		PaymentSvc:     payments,
		WebhookSvc:     webhooks,
		FulfillmentSvc: h.Fulfillment,
	})
	return &testServer{h: h, engine: engine}
}

func (s *testServer) do(t *testing.T, method, path string, who *actor.Actor, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if who != nil {
		req.Header.Set(HeaderActorID, who.ID)
		req.Header.Set(HeaderActorRole, string(who.Role))
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error errorPayload    `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var out envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

var (
	cashier   = actor.Actor{ID: "cashier-1", Role: actor.RoleCashier}
	clinician = actor.Actor{ID: "dr-ade", Role: actor.RoleClinician}
)

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireActor(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/v1/line-items/1", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/line-items/1", &actor.Actor{ID: "x", Role: "janitor"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/line-items/1", &actor.Actor{ID: "x", Role: actor.RoleSystem}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLineItemCreateAndApplyPayment(t *testing.T) {
	s := newTestServer(t)
	enc := s.h.Encounter()
	s.h.Service("GP-CONSULT", "OPD", 500_000)

	rec := s.do(t, http.MethodPost, "/v1/line-items", &clinician, map[string]any{
		"service_code": "GP-CONSULT",
		"encounter_id": enc.ID.String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var item struct {
		ID     string `json:"id"`
		Amount int64  `json:"amount"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &item))
	assert.Equal(t, int64(500_000), item.Amount)

	path := fmt.Sprintf("/v1/line-items/%s/payments", item.ID)

	rec = s.do(t, http.MethodPost, path, &clinician, map[string]any{"amount": 100_000, "method": "cash"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, path, &cashier, map[string]any{"amount": 600_000, "method": "cash"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "over_allocation", decode(t, rec).Error.Message)

	rec = s.do(t, http.MethodPost, path, &cashier, map[string]any{"amount": 500_000, "method": "cash"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &item))
	assert.Equal(t, "PAID", item.Status)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/v1/encounters/%s/summary", enc.ID), &cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAllocatePaymentAcrossEncounter(t *testing.T) {
	s := newTestServer(t)
	enc := s.h.Encounter()
	first := s.h.LineItem(enc.ID, "REG-001", "Front Desk", 200_000)
	s.h.LineItem(enc.ID, "GP-CONSULT", "OPD", 500_000)

	rec := s.do(t, http.MethodPost, fmt.Sprintf("/v1/encounters/%s/allocations", enc.ID), &cashier,
		map[string]any{"amount": 250_000, "method": "transfer"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, int64(200_000), s.h.Reload(first.ID).AmountPaid)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/v1/encounters/%s/payment-gates", enc.ID), &cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestLineItemNotFoundAndBadID(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/v1/line-items/12345", &cashier, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "line_item_not_found", decode(t, rec).Error.Message)

	rec = s.do(t, http.MethodGet, "/v1/line-items/abc", &cashier, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuditLogsRequirePermission(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/v1/audit-logs", &cashier, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := actor.Actor{ID: "root", Role: actor.RoleAdmin}
	rec = s.do(t, http.MethodGet, "/v1/audit-logs?page_size=5", &admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestPaystackWebhook(t *testing.T) {
	s := newTestServer(t)
	enc := s.h.Encounter()
	item := s.h.LineItem(enc.ID, "REG-001", "Front Desk", 150_000)

	payload := []byte(fmt.Sprintf(`{"event":"charge.success","data":{"id":9001,"status":"success","reference":"PSK-9001","amount":150000,"currency":"NGN","paid_at":"2026-03-02T09:30:00Z","metadata":{"encounter_id":"%s"}}}`, enc.ID.String()))
	send := func(signature string) int {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/paystack", bytes.NewReader(payload))
		req.Header.Set("X-Paystack-Signature", signature)
		rec := httptest.NewRecorder()
		s.engine.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, send("deadbeef"))

	mac := hmac.New(sha512.New, []byte(paystackSecret))
	_, _ = mac.Write(payload)
	signature := hex.EncodeToString(mac.Sum(nil))
	assert.Equal(t, http.StatusOK, send(signature))
	assert.Equal(t, http.StatusOK, send(signature))

	assert.Equal(t, "PAID", string(s.h.Reload(item.ID).Status))
}
