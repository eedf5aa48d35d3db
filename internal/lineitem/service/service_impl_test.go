package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/carebill/internal/actor"
	auditrepository "github.com/smallbiznis/carebill/internal/audit/repository"
	auditservice "github.com/smallbiznis/carebill/internal/audit/service"
	catalogdomain "github.com/smallbiznis/carebill/internal/catalog/domain"
	catalogrepository "github.com/smallbiznis/carebill/internal/catalog/repository"
	catalogservice "github.com/smallbiznis/carebill/internal/catalog/service"
	"github.com/smallbiznis/carebill/internal/clock"
	encounterdomain "github.com/smallbiznis/carebill/internal/encounter/domain"
	encounterrepository "github.com/smallbiznis/carebill/internal/encounter/repository"
	encounterservice "github.com/smallbiznis/carebill/internal/encounter/service"
	"github.com/smallbiznis/carebill/internal/lineitem/domain"
	"github.com/smallbiznis/carebill/internal/lineitem/repository"
	"github.com/smallbiznis/carebill/internal/migration/migrationtest"
	paymentrepository "github.com/smallbiznis/carebill/internal/payment/repository"
	paymenteventdomain "github.com/smallbiznis/carebill/internal/paymentevent/domain"
	paymenteventmock "github.com/smallbiznis/carebill/internal/paymentevent/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var cashier = actor.Actor{ID: "cashier-1", Role: actor.RoleCashier}

type fixture struct {
	db         *gorm.DB
	clock      *clock.FakeClock
	svc        domain.Service
	catalog    catalogdomain.Catalog
	encounters encounterdomain.Service
	dispatcher *paymenteventmock.MockDispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := migrationtest.NewDB(t)
	node := migrationtest.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	audit := auditservice.NewService(auditservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: auditrepository.Provide(),
	})
	catalog := catalogservice.New(catalogservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: catalogrepository.Provide(),
	})
	encounters := encounterservice.New(encounterservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Repo: encounterrepository.Provide(), AuditSvc: audit,
	})
	dispatcher := paymenteventmock.NewMockDispatcher(gomock.NewController(t))

	svc := New(Params{
		DB:           db,
		Log:          log,
		GenID:        node,
		Clock:        clk,
		Repo:         repository.Provide(),
		Catalog:      catalog,
		EncounterSvc: encounters,
		PaymentRepo:  paymentrepository.Provide(),
		AuditSvc:     audit,
		Dispatcher:   dispatcher,
	})
	return &fixture{db: db, clock: clk, svc: svc, catalog: catalog, encounters: encounters, dispatcher: dispatcher}
}

func (f *fixture) service(t *testing.T, code, department string, amount int64) *catalogdomain.Service {
	t.Helper()
	svc, err := f.catalog.Create(context.Background(), catalogdomain.CreateRequest{
		Code:       code,
		Name:       code,
		Department: department,
		Amount:     amount,
	})
	require.NoError(t, err)
	return svc
}

func (f *fixture) encounter(t *testing.T) *encounterdomain.Encounter {
	t.Helper()
	enc, err := f.encounters.Open(context.Background(), encounterdomain.OpenRequest{PatientRef: "PT-100"})
	require.NoError(t, err)
	return enc
}

func (f *fixture) lineItem(t *testing.T, encounterID snowflake.ID, code string, amount int64) *domain.LineItem {
	t.Helper()
	f.service(t, code, "Front Desk", amount)
	item, err := f.svc.Create(context.Background(), cashier, domain.CreateRequest{
		ServiceCode: code,
		EncounterID: encounterID,
	})
	require.NoError(t, err)
	return item
}

func TestCreateSnapshotsCatalogEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	enc := f.encounter(t)
	f.service(t, "REG-001", "Front Desk", 200_000)

	item, err := f.svc.Create(ctx, cashier, domain.CreateRequest{ServiceCode: "REG-001", EncounterID: enc.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, item.Status)
	assert.Equal(t, int64(200_000), item.Amount)
	assert.Equal(t, int64(200_000), item.OutstandingAmount)
	assert.Equal(t, "cashier-1", item.CreatedBy)

	_, err = f.svc.Create(ctx, cashier, domain.CreateRequest{ServiceCode: "REG-001", EncounterID: enc.ID})
	require.ErrorIs(t, err, domain.ErrDuplicateLineItem)

	_, err = f.svc.Create(ctx, cashier, domain.CreateRequest{EncounterID: enc.ID})
	require.ErrorIs(t, err, domain.ErrInvalidReference)

	_, err = f.svc.Create(ctx, actor.Actor{}, domain.CreateRequest{ServiceCode: "REG-001", EncounterID: enc.ID})
	require.ErrorIs(t, err, actor.ErrInvalidActor)
}

func TestCreateRejectsInactiveServiceAndClosedEncounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	enc := f.encounter(t)

	inactive := f.service(t, "LAB-OLD", "Laboratory", 100_000)
	require.NoError(t, f.catalog.SetActive(ctx, inactive.ID, false))
	_, err := f.svc.Create(ctx, cashier, domain.CreateRequest{ServiceID: inactive.ID, EncounterID: enc.ID})
	require.ErrorIs(t, err, domain.ErrInactiveService)

	_, err = f.encounters.Close(ctx, nil, actor.System(), enc.ID)
	require.NoError(t, err)
	f.service(t, "LAB-FBC", "Laboratory", 450_000)
	_, err = f.svc.Create(ctx, cashier, domain.CreateRequest{ServiceCode: "LAB-FBC", EncounterID: enc.ID})
	require.ErrorIs(t, err, domain.ErrClosedEncounter)
}

func TestApplyPaymentTransitionsAndDispatchesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	enc := f.encounter(t)
	item := f.lineItem(t, enc.ID, "REG-001", 200_000)

	partial, err := f.svc.ApplyPayment(ctx, cashier, item.ID, 50_000, "cash")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPartiallyPaid, partial.Status)
	assert.Equal(t, int64(150_000), partial.OutstandingAmount)
	assert.Nil(t, partial.PaidAt)
	require.NotNil(t, partial.PaymentMethod)
	assert.Equal(t, "CASH", *partial.PaymentMethod)

	f.dispatcher.EXPECT().
		Dispatch(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *gorm.DB, event paymenteventdomain.PaymentConfirmedEvent) error {
			assert.Equal(t, item.ID, event.LineItemID)
			assert.Equal(t, enc.ID, event.EncounterID)
			assert.Equal(t, "REG-001", event.ServiceCode)
			assert.Equal(t, "POS", event.Method)
			assert.Equal(t, cashier, event.Actor)
			return nil
		}).
		Times(1)

	paid, err := f.svc.ApplyPayment(ctx, cashier, item.ID, 150_000, "pos")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, paid.Status)
	assert.Equal(t, int64(0), paid.OutstandingAmount)
	require.NotNil(t, paid.PaidAt)

	_, err = f.svc.ApplyPayment(ctx, cashier, item.ID, 1, "cash")
	require.ErrorIs(t, err, domain.ErrAlreadyPaid)
}

func TestApplyPaymentRejectsOverAllocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	enc := f.encounter(t)
	item := f.lineItem(t, enc.ID, "LAB-FBC", 450_000)

	_, err := f.svc.ApplyPayment(ctx, cashier, item.ID, item.OutstandingAmount+1, "cash")
	require.ErrorIs(t, err, domain.ErrOverAllocation)

	got, err := f.svc.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.AmountPaid)
	assert.Equal(t, domain.StatusPending, got.Status)

	_, err = f.svc.ApplyPayment(ctx, cashier, item.ID, 0, "cash")
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.ApplyPayment(ctx, cashier, item.ID, 100, "barter")
	require.ErrorIs(t, err, domain.ErrInvalidMethod)
}

func TestDispatchFailureDoesNotRollBackPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	enc := f.encounter(t)
	item := f.lineItem(t, enc.ID, "REG-001", 200_000)

	f.dispatcher.EXPECT().
		Dispatch(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(assert.AnError)

	paid, err := f.svc.ApplyPayment(ctx, cashier, item.ID, 200_000, "cash")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, paid.Status)

	got, err := f.svc.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, got.Status)
}

func TestPaidItemIsImmutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	enc := f.encounter(t)
	item := f.lineItem(t, enc.ID, "REG-001", 200_000)

	f.dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	_, err := f.svc.ApplyPayment(ctx, cashier, item.ID, 200_000, "cash")
	require.NoError(t, err)

	amount := int64(250_000)
	_, err = f.svc.Update(ctx, cashier, item.ID, domain.UpdateRequest{Amount: &amount})
	require.ErrorIs(t, err, domain.ErrImmutableRecord)

	method := "POS"
	_, err = f.svc.Update(ctx, cashier, item.ID, domain.UpdateRequest{PaymentMethod: &method})
	require.ErrorIs(t, err, domain.ErrImmutableRecord)

	same := "cash"
	unchanged, err := f.svc.Update(ctx, cashier, item.ID, domain.UpdateRequest{PaymentMethod: &same})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, unchanged.Status)

	other := f.service(t, "REG-CARD", "Front Desk", 100_000)
	_, err = f.svc.Update(ctx, cashier, item.ID, domain.UpdateRequest{ServiceID: &other.ID})
	require.ErrorIs(t, err, domain.ErrImmutableRecord)

	consultation, err := f.encounters.CreateConsultation(ctx, encounterdomain.CreateConsultationRequest{
		EncounterID: enc.ID,
		CreatedBy:   "dr-1",
	})
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, cashier, item.ID, domain.UpdateRequest{ConsultationID: &consultation.ID})
	require.ErrorIs(t, err, domain.ErrImmutableRecord)

	require.ErrorIs(t, f.svc.Delete(ctx, cashier, item.ID), domain.ErrImmutableRecord)

	stored, err := f.svc.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ServiceID, stored.ServiceID)
	assert.Nil(t, stored.ConsultationID)
	assert.Equal(t, int64(200_000), stored.Amount)
	assert.Equal(t, int64(200_000), stored.AmountPaid)
}

func TestUpdateAmountRecomputesStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	enc := f.encounter(t)
	item := f.lineItem(t, enc.ID, "RAD-XRAY", 800_000)

	_, err := f.svc.ApplyPayment(ctx, cashier, item.ID, 300_000, "transfer")
	require.NoError(t, err)

	tooLow := int64(200_000)
	_, err = f.svc.Update(ctx, cashier, item.ID, domain.UpdateRequest{Amount: &tooLow})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	settled := int64(300_000)
	_, err = f.svc.Update(ctx, cashier, item.ID, domain.UpdateRequest{Amount: &settled})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	repriced := int64(500_000)
	updated, err := f.svc.Update(ctx, cashier, item.ID, domain.UpdateRequest{Amount: &repriced})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPartiallyPaid, updated.Status)
	assert.Equal(t, int64(200_000), updated.OutstandingAmount)
	assert.Nil(t, updated.PaidAt)
}

func TestUpdateServiceOnlyBeforePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	enc := f.encounter(t)
	item := f.lineItem(t, enc.ID, "LAB-FBC", 450_000)
	other := f.service(t, "LAB-MP", "Laboratory", 150_000)

	updated, err := f.svc.Update(ctx, cashier, item.ID, domain.UpdateRequest{ServiceID: &other.ID})
	require.NoError(t, err)
	assert.Equal(t, "LAB-MP", updated.ServiceCode)
	assert.Equal(t, int64(150_000), updated.Amount)

	_, err = f.svc.ApplyPayment(ctx, cashier, item.ID, 50_000, "cash")
	require.NoError(t, err)

	original, err := f.catalog.Lookup(ctx, "LAB-FBC")
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, cashier, item.ID, domain.UpdateRequest{ServiceID: &original.ID})
	require.ErrorIs(t, err, domain.ErrImmutableRecord)
}

func TestDeleteUnpaidItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	enc := f.encounter(t)
	item := f.lineItem(t, enc.ID, "PHARM-001", 120_000)

	require.NoError(t, f.svc.Delete(ctx, cashier, item.ID))
	_, err := f.svc.Get(ctx, item.ID)
	require.ErrorIs(t, err, domain.ErrLineItemNotFound)
}

func TestOutstandingBefore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	enc := f.encounter(t)
	first := f.lineItem(t, enc.ID, "REG-001", 200_000)
	f.clock.Advance(48 * time.Hour)
	f.lineItem(t, enc.ID, "LAB-FBC", 450_000)

	_, err := f.svc.ApplyPayment(ctx, cashier, first.ID, 50_000, "cash")
	require.NoError(t, err)

	totals, err := f.svc.OutstandingBefore(ctx, nil, first.CreatedAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(150_000), totals.Total)
	assert.Equal(t, int64(1), totals.Count)
}
