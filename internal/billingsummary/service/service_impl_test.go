package service_test

import (
	"context"
	"testing"

	"github.com/smallbiznis/carebill/internal/billingsummary/summary"
	"github.com/smallbiznis/carebill/internal/billingtest"
	coveragedomain "github.com/smallbiznis/carebill/internal/coverage/domain"
	encounterdomain "github.com/smallbiznis/carebill/internal/encounter/domain"
	"github.com/smallbiznis/carebill/internal/paymentgate/gate"
	walletdomain "github.com/smallbiznis/carebill/internal/wallet/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullyInsuredEncounterIsSettled(t *testing.T) {
	h := billingtest.New(t)
	ctx := context.Background()
	enc := h.Encounter()
	h.LineItem(enc.ID, "REG-001", "Front Desk", 200_000)
	h.LineItem(enc.ID, "GP-CONSULT", "OPD", 800_000)

	_, err := h.Coverage.SetInsurance(ctx, coveragedomain.SetInsuranceRequest{
		EncounterID:    enc.ID,
		ProviderName:   "Hygeia HMO",
		ApprovalStatus: coveragedomain.ApprovalApproved,
		CoverageType:   coveragedomain.CoverageFull,
	})
	require.NoError(t, err)

	report, err := h.Summary.ComputeSummary(ctx, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), report.Summary.TotalCharges)
	assert.Equal(t, int64(1_000_000), report.Summary.InsuranceAmount)
	assert.Equal(t, int64(0), report.Summary.PatientPayable)
	assert.Equal(t, summary.PaymentStatusSettled, report.Summary.PaymentStatus)
	assert.True(t, report.Gates.RegistrationPaid)
	assert.True(t, report.Gates.ConsultationPaid)
	assert.Equal(t, gate.ReasonInsuranceSettled, report.Gates.ConsultationReason)
}

func TestSummaryIncludesFlatChargesWalletAndRetainership(t *testing.T) {
	h := billingtest.New(t)
	ctx := context.Background()
	enc := h.Encounter()
	h.LineItem(enc.ID, "LAB-FBC", "Laboratory", 400_000)

	_, err := h.Encounters.AddFlatCharge(ctx, encounterdomain.AddFlatChargeRequest{
		EncounterID: enc.ID, Description: "bed", Amount: 600_000,
	})
	require.NoError(t, err)
	_, err = h.Coverage.SetRetainership(ctx, coveragedomain.SetRetainershipRequest{
		EncounterID: enc.ID, OrganizationName: "Dangote Staff", DiscountBps: 1000, Active: true,
	})
	require.NoError(t, err)
	_, err = h.Wallet.Record(ctx, walletdomain.RecordRequest{
		EncounterID: enc.ID, Kind: walletdomain.KindDebit, Status: walletdomain.StatusCompleted, Amount: 300_000,
	})
	require.NoError(t, err)
	_, err = h.Wallet.Record(ctx, walletdomain.RecordRequest{
		EncounterID: enc.ID, Kind: walletdomain.KindDebit, Status: walletdomain.StatusFailed, Amount: 500_000,
	})
	require.NoError(t, err)

	report, err := h.Summary.ComputeSummary(ctx, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), report.Summary.TotalCharges)
	assert.Equal(t, int64(100_000), report.Summary.Discount)
	assert.Equal(t, int64(900_000), report.Summary.PatientPayable)
	assert.Equal(t, int64(300_000), report.Summary.TotalWalletDebits)
	assert.Equal(t, int64(600_000), report.Summary.OutstandingBalance)
	assert.Equal(t, summary.PaymentStatusPartiallyPaid, report.Summary.PaymentStatus)
	assert.False(t, report.Gates.RegistrationPaid)
}

func TestComputeSummaryUnknownEncounter(t *testing.T) {
	h := billingtest.New(t)
	_, err := h.Summary.ComputeSummary(context.Background(), 12345)
	require.ErrorIs(t, err, encounterdomain.ErrEncounterNotFound)
}
