package service_test

import (
	"context"
	"testing"

	"github.com/smallbiznis/carebill/internal/billingtest"
	"github.com/smallbiznis/carebill/internal/coverage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetInsuranceNormalizesAndReplaces(t *testing.T) {
	h := billingtest.New(t)
	ctx := context.Background()
	enc := h.Encounter()

	none, err := h.Coverage.Insurance(ctx, nil, enc.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	rec, err := h.Coverage.SetInsurance(ctx, domain.SetInsuranceRequest{
		EncounterID:    enc.ID,
		ProviderName:   " Hygeia HMO ",
		ApprovalStatus: "pending",
		CoverageType:   "full",
		CoverageBps:    1200,
	})
	require.NoError(t, err)
	assert.Equal(t, "Hygeia HMO", rec.ProviderName)
	assert.Equal(t, domain.ApprovalPending, rec.ApprovalStatus)
	assert.Equal(t, int64(domain.FullCoverageBps), rec.CoverageBps)

	approved := int64(400_000)
	rec, err = h.Coverage.SetInsurance(ctx, domain.SetInsuranceRequest{
		EncounterID:    enc.ID,
		ProviderName:   "Hygeia HMO",
		ApprovalStatus: domain.ApprovalApproved,
		CoverageType:   domain.CoveragePartial,
		CoverageBps:    7000,
		ApprovedAmount: &approved,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalApproved, rec.ApprovalStatus)
	assert.Equal(t, int64(7000), rec.EffectiveBps())
	require.NotNil(t, rec.ApprovedAmount)
	assert.Equal(t, approved, *rec.ApprovedAmount)
}

func TestSetInsuranceValidation(t *testing.T) {
	h := billingtest.New(t)
	ctx := context.Background()
	enc := h.Encounter()
	negative := int64(-1)

	cases := []struct {
		name string
		req  domain.SetInsuranceRequest
		want error
	}{
		{"missing provider", domain.SetInsuranceRequest{EncounterID: enc.ID, ApprovalStatus: "APPROVED", CoverageType: "FULL"}, domain.ErrInvalidReference},
		{"unknown status", domain.SetInsuranceRequest{EncounterID: enc.ID, ProviderName: "x", ApprovalStatus: "MAYBE", CoverageType: "FULL"}, domain.ErrInvalidStatus},
		{"partial over 100%", domain.SetInsuranceRequest{EncounterID: enc.ID, ProviderName: "x", ApprovalStatus: "APPROVED", CoverageType: "PARTIAL", CoverageBps: 10001}, domain.ErrInvalidCoverage},
		{"negative approved amount", domain.SetInsuranceRequest{EncounterID: enc.ID, ProviderName: "x", ApprovalStatus: "APPROVED", CoverageType: "FULL", ApprovedAmount: &negative}, domain.ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.Coverage.SetInsurance(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestSetRetainership(t *testing.T) {
	h := billingtest.New(t)
	ctx := context.Background()
	enc := h.Encounter()

	rec, err := h.Coverage.SetRetainership(ctx, domain.SetRetainershipRequest{
		EncounterID:      enc.ID,
		OrganizationName: "Dangote Staff Scheme",
		DiscountBps:      1500,
		Active:           true,
	})
	require.NoError(t, err)
	assert.True(t, rec.Active)

	got, err := h.Coverage.Retainership(ctx, nil, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), got.DiscountBps)

	_, err = h.Coverage.SetRetainership(ctx, domain.SetRetainershipRequest{
		EncounterID:      enc.ID,
		OrganizationName: "x",
		DiscountBps:      -5,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCoverage)
}
