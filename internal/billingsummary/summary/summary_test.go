package summary

import (
	"testing"

	"github.com/smallbiznis/carebill/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestComputeFullApprovedInsurance(t *testing.T) {
	got := Compute(Inputs{
		LineItemCharges: 1_000_000,
		Insurance:       &Insurance{ApprovalStatus: InsuranceApproved, CoverageBps: 10000},
	})

	assert.Equal(t, int64(1_000_000), got.InsuranceAmount)
	assert.Equal(t, int64(0), got.PatientPayable)
	assert.Equal(t, PaymentStatusSettled, got.PaymentStatus)
	assert.True(t, got.FullyCovered)
	assert.True(t, got.CanClear)
	assert.True(t, got.InsuranceSettled())
}

func TestComputeIsPure(t *testing.T) {
	approved := int64(300_000)
	in := Inputs{
		LineItemCharges: 900_000,
		FlatCharges:     100_000,
		ClearedPayments: 200_000,
		WalletDebits:    50_000,
		Insurance:       &Insurance{ApprovalStatus: InsuranceApproved, CoverageBps: 5000, ApprovedAmount: &approved},
		Retainership:    &Retainership{Active: true, DiscountBps: 1000},
	}
	first := Compute(in)
	second := Compute(in)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(300_000), *in.Insurance.ApprovedAmount)
}

func TestComputeStatuses(t *testing.T) {
	tests := []struct {
		name    string
		in      Inputs
		status  PaymentStatus
		balance int64
	}{
		{
			name:    "uninsured unpaid",
			in:      Inputs{LineItemCharges: 700_000},
			status:  PaymentStatusUnpaid,
			balance: 700_000,
		},
		{
			name:    "uninsured partial with wallet",
			in:      Inputs{LineItemCharges: 700_000, ClearedPayments: 200_000, WalletDebits: 100_000},
			status:  PaymentStatusPartiallyPaid,
			balance: 400_000,
		},
		{
			name:    "overpaid leaves a credit",
			in:      Inputs{LineItemCharges: 700_000, ClearedPayments: 800_000},
			status:  PaymentStatusPaid,
			balance: -100_000,
		},
		{
			name:    "no charges uninsured",
			in:      Inputs{},
			status:  PaymentStatusPaid,
			balance: 0,
		},
		{
			name:    "pending insurance unpaid",
			in:      Inputs{LineItemCharges: 700_000, Insurance: &Insurance{ApprovalStatus: InsurancePending, CoverageBps: 10000}},
			status:  PaymentStatusInsurancePending,
			balance: 700_000,
		},
		{
			name:    "pending insurance partial",
			in:      Inputs{LineItemCharges: 700_000, ClearedPayments: 1, Insurance: &Insurance{ApprovalStatus: InsurancePending}},
			status:  PaymentStatusPartiallyPaid,
			balance: 699_999,
		},
		{
			name:    "approved partial coverage awaiting copay",
			in:      Inputs{LineItemCharges: 1_000_000, Insurance: &Insurance{ApprovalStatus: InsuranceApproved, CoverageBps: 8000}},
			status:  PaymentStatusInsuranceClaimed,
			balance: 200_000,
		},
		{
			name:    "approved partial coverage with copay paid",
			in:      Inputs{LineItemCharges: 1_000_000, ClearedPayments: 200_000, Insurance: &Insurance{ApprovalStatus: InsuranceApproved, CoverageBps: 8000}},
			status:  PaymentStatusSettled,
			balance: 0,
		},
		{
			name:    "rejected insurance behaves as uninsured",
			in:      Inputs{LineItemCharges: 500_000, ClearedPayments: 500_000, Insurance: &Insurance{ApprovalStatus: InsuranceRejected, CoverageBps: 10000}},
			status:  PaymentStatusPaid,
			balance: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.in)
			assert.Equal(t, tt.status, got.PaymentStatus)
			assert.Equal(t, tt.balance, got.OutstandingBalance)
		})
	}
}

func TestDiscountOrder(t *testing.T) {
	in := Inputs{
		LineItemCharges: 1_000_000,
		Insurance:       &Insurance{ApprovalStatus: InsuranceApproved, CoverageBps: 5000},
		Retainership:    &Retainership{Active: true, DiscountBps: 2000},
	}

	retainershipFirst := Compute(in)
	assert.Equal(t, int64(200_000), retainershipFirst.Discount)
	assert.Equal(t, int64(400_000), retainershipFirst.InsuranceAmount)
	assert.Equal(t, int64(400_000), retainershipFirst.PatientPayable)

	in.DiscountOrder = config.DiscountOrderInsuranceFirst
	insuranceFirst := Compute(in)
	assert.Equal(t, int64(500_000), insuranceFirst.InsuranceAmount)
	assert.Equal(t, int64(100_000), insuranceFirst.Discount)
	assert.Equal(t, int64(400_000), insuranceFirst.PatientPayable)
}

func TestApprovedAmountIsCapped(t *testing.T) {
	approved := int64(2_000_000)
	got := Compute(Inputs{
		LineItemCharges: 1_000_000,
		Insurance:       &Insurance{ApprovalStatus: InsuranceApproved, CoverageBps: 5000, ApprovedAmount: &approved},
	})
	assert.Equal(t, int64(1_000_000), got.InsuranceAmount)
	assert.Equal(t, int64(0), got.PatientPayable)
}

func TestApplyBpsRoundsHalfUp(t *testing.T) {
	assert.Equal(t, int64(1), applyBps(1, 5000))
	assert.Equal(t, int64(0), applyBps(1, 4999))
	assert.Equal(t, int64(33_333), applyBps(100_000, 3333))
}
