// Package billingtest wires the ledger services over an in-memory database
// for package tests above the line item ledger.
package billingtest

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/actor"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	auditrepository "github.com/smallbiznis/carebill/internal/audit/repository"
	auditservice "github.com/smallbiznis/carebill/internal/audit/service"
	billingsummarydomain "github.com/smallbiznis/carebill/internal/billingsummary/domain"
	billingsummaryservice "github.com/smallbiznis/carebill/internal/billingsummary/service"
	catalogdomain "github.com/smallbiznis/carebill/internal/catalog/domain"
	catalogrepository "github.com/smallbiznis/carebill/internal/catalog/repository"
	catalogservice "github.com/smallbiznis/carebill/internal/catalog/service"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/config"
	coveragedomain "github.com/smallbiznis/carebill/internal/coverage/domain"
	coveragerepository "github.com/smallbiznis/carebill/internal/coverage/repository"
	coverageservice "github.com/smallbiznis/carebill/internal/coverage/service"
	encounterdomain "github.com/smallbiznis/carebill/internal/encounter/domain"
	encounterrepository "github.com/smallbiznis/carebill/internal/encounter/repository"
	encounterservice "github.com/smallbiznis/carebill/internal/encounter/service"
	fulfillmentdomain "github.com/smallbiznis/carebill/internal/fulfillment/domain"
	fulfillmentrepository "github.com/smallbiznis/carebill/internal/fulfillment/repository"
	fulfillmentservice "github.com/smallbiznis/carebill/internal/fulfillment/service"
	lineitemdomain "github.com/smallbiznis/carebill/internal/lineitem/domain"
	lineitemrepository "github.com/smallbiznis/carebill/internal/lineitem/repository"
	lineitemservice "github.com/smallbiznis/carebill/internal/lineitem/service"
	"github.com/smallbiznis/carebill/internal/migration/migrationtest"
	paymentdomain "github.com/smallbiznis/carebill/internal/payment/domain"
	paymentrepository "github.com/smallbiznis/carebill/internal/payment/repository"
	paymenteventdomain "github.com/smallbiznis/carebill/internal/paymentevent/domain"
	paymenteventservice "github.com/smallbiznis/carebill/internal/paymentevent/service"
	walletdomain "github.com/smallbiznis/carebill/internal/wallet/domain"
	walletrepository "github.com/smallbiznis/carebill/internal/wallet/repository"
	walletservice "github.com/smallbiznis/carebill/internal/wallet/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Cashier is a valid front-desk actor for tests.
var Cashier = actor.Actor{ID: "cashier-1", Role: actor.RoleCashier}

// Start is the fake clock's initial instant.
var Start = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type Harness struct {
	T      testing.TB
	DB     *gorm.DB
	Log    *zap.Logger
	Node   *snowflake.Node
	Clock  *clock.FakeClock
	Policy *config.BillingPolicyHolder

	AuditRepo   auditdomain.Repository
	Audit       auditdomain.Service
	Catalog     catalogdomain.Catalog
	Encounters  encounterdomain.Service
	Coverage    coveragedomain.Service
	Wallet      walletdomain.Service
	Fulfillment fulfillmentdomain.Service
	PaymentRepo paymentdomain.Repository
	LineRepo    lineitemdomain.Repository
	Summary     billingsummarydomain.Service
	Dispatcher  paymenteventdomain.Dispatcher
	LineItems   lineitemdomain.Service
}

func New(t testing.TB) *Harness {
	t.Helper()
	h := &Harness{
		T:      t,
		DB:     migrationtest.NewDB(t),
		Log:    zap.NewNop(),
		Node:   migrationtest.NewNode(t),
		Clock:  clock.NewFakeClock(Start),
		Policy: config.NewStaticBillingPolicyHolder(config.DefaultBillingPolicy()),
	}

	h.AuditRepo = auditrepository.Provide()
	h.Audit = auditservice.NewService(auditservice.Params{
		DB: h.DB, Log: h.Log, GenID: h.Node, Clock: h.Clock, Repo: h.AuditRepo,
	})
	h.Catalog = catalogservice.New(catalogservice.Params{
		DB: h.DB, Log: h.Log, GenID: h.Node, Clock: h.Clock, Repo: catalogrepository.Provide(),
	})
	h.Encounters = encounterservice.New(encounterservice.Params{
		DB: h.DB, Log: h.Log, GenID: h.Node, Clock: h.Clock, Repo: encounterrepository.Provide(), AuditSvc: h.Audit,
	})
	h.Coverage = coverageservice.New(coverageservice.Params{
		DB: h.DB, Log: h.Log, GenID: h.Node, Clock: h.Clock, Repo: coveragerepository.Provide(),
	})
	h.Wallet = walletservice.New(walletservice.Params{
		DB: h.DB, Log: h.Log, GenID: h.Node, Clock: h.Clock, Repo: walletrepository.Provide(),
	})
	h.Fulfillment = fulfillmentservice.New(fulfillmentservice.Params{
		DB: h.DB, Log: h.Log, GenID: h.Node, Clock: h.Clock, Repo: fulfillmentrepository.Provide(),
	})
	h.PaymentRepo = paymentrepository.Provide()
	h.LineRepo = lineitemrepository.Provide()

	h.Summary = billingsummaryservice.New(billingsummaryservice.Params{
		DB:           h.DB,
		Log:          h.Log,
		LineItems:    h.LineRepo,
		PaymentRepo:  h.PaymentRepo,
		EncounterSvc: h.Encounters,
		CoverageSvc:  h.Coverage,
		WalletSvc:    h.Wallet,
		Policy:       h.Policy,
	})
	h.Dispatcher = paymenteventservice.New(paymenteventservice.Params{
		Log:          h.Log,
		EncounterSvc: h.Encounters,
		SummarySvc:   h.Summary,
		AuditSvc:     h.Audit,
	})
	h.LineItems = lineitemservice.New(lineitemservice.Params{
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
	})
	return h
}

// Service registers a catalog entry.
func (h *Harness) Service(code, department string, amount int64) *catalogdomain.Service {
	h.T.Helper()
	svc, err := h.Catalog.Create(context.Background(), catalogdomain.CreateRequest{
		Code:       code,
		Name:       code,
		Department: department,
		Amount:     amount,
	})
	require.NoError(h.T, err)
	return svc
}

func (h *Harness) Encounter() *encounterdomain.Encounter {
	h.T.Helper()
	enc, err := h.Encounters.Open(context.Background(), encounterdomain.OpenRequest{PatientRef: "PT-" + h.Node.Generate().String()})
	require.NoError(h.T, err)
	return enc
}

// LineItem registers a catalog entry and bills it to the encounter.
func (h *Harness) LineItem(encounterID snowflake.ID, code, department string, amount int64) *lineitemdomain.LineItem {
	h.T.Helper()
	h.Service(code, department, amount)
	item, err := h.LineItems.Create(context.Background(), Cashier, lineitemdomain.CreateRequest{
		ServiceCode: code,
		EncounterID: encounterID,
	})
	require.NoError(h.T, err)
	return item
}

// Reload returns the stored line item.
func (h *Harness) Reload(id snowflake.ID) *lineitemdomain.LineItem {
	h.T.Helper()
	item, err := h.LineItems.Get(context.Background(), id)
	require.NoError(h.T, err)
	return item
}
