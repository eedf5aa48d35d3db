// Package summary derives the financial position of an encounter.
// Compute is pure; the billing summary service loads its inputs.
package summary

import (
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/carebill/internal/config"
)

type PaymentStatus string

const (
	PaymentStatusUnpaid           PaymentStatus = "UNPAID"
	PaymentStatusPartiallyPaid    PaymentStatus = "PARTIALLY_PAID"
	PaymentStatusPaid             PaymentStatus = "PAID"
	PaymentStatusInsurancePending PaymentStatus = "INSURANCE_PENDING"
	PaymentStatusInsuranceClaimed PaymentStatus = "INSURANCE_CLAIMED"
	PaymentStatusSettled          PaymentStatus = "SETTLED"
)

const (
	InsurancePending  = "PENDING"
	InsuranceApproved = "APPROVED"
	InsuranceRejected = "REJECTED"
)

const bpsDenominator = 10000

// Insurance is the coverage fact for one encounter. CoverageBps is already
// resolved, so FULL coverage arrives as 10000.
type Insurance struct {
	ApprovalStatus string
	CoverageBps    int64
	ApprovedAmount *int64
}

type Retainership struct {
	Active      bool
	DiscountBps int64
}

type Inputs struct {
	LineItemCharges int64
	FlatCharges     int64
	ClearedPayments int64
	WalletDebits    int64
	Insurance       *Insurance
	Retainership    *Retainership
	DiscountOrder   string
}

type BillingSummary struct {
	TotalCharges         int64         `json:"total_charges"`
	Discount             int64         `json:"discount"`
	ChargesAfterDiscount int64         `json:"charges_after_discount"`
	InsuranceAmount      int64         `json:"insurance_amount"`
	PatientPayable       int64         `json:"patient_payable"`
	TotalPayments        int64         `json:"total_payments"`
	TotalWalletDebits    int64         `json:"total_wallet_debits"`
	TotalPaid            int64         `json:"total_paid"`
	OutstandingBalance   int64         `json:"outstanding_balance"`
	FullyCovered         bool          `json:"fully_covered"`
	Insured              bool          `json:"insured"`
	InsuranceStatus      string        `json:"insurance_status,omitempty"`
	PaymentStatus        PaymentStatus `json:"payment_status"`
	CanClear             bool          `json:"can_clear"`
}

// InsuranceSettled reports whether approved insurance leaves nothing for the
// patient to settle.
func (s BillingSummary) InsuranceSettled() bool {
	return s.InsuranceStatus == InsuranceApproved &&
		(s.FullyCovered || s.PaymentStatus == PaymentStatusSettled)
}

func Compute(in Inputs) BillingSummary {
	out := BillingSummary{
		TotalCharges:      in.LineItemCharges + in.FlatCharges,
		TotalPayments:     in.ClearedPayments,
		TotalWalletDebits: in.WalletDebits,
	}
	if in.Insurance != nil {
		out.Insured = true
		out.InsuranceStatus = in.Insurance.ApprovalStatus
	}

	if in.DiscountOrder == config.DiscountOrderInsuranceFirst {
		out.InsuranceAmount = insuranceCover(in.Insurance, out.TotalCharges)
		out.Discount = retainershipDiscount(in.Retainership, out.TotalCharges-out.InsuranceAmount)
		out.ChargesAfterDiscount = out.TotalCharges - out.Discount
	} else {
		out.Discount = retainershipDiscount(in.Retainership, out.TotalCharges)
		out.ChargesAfterDiscount = out.TotalCharges - out.Discount
		out.InsuranceAmount = insuranceCover(in.Insurance, out.ChargesAfterDiscount)
	}

	out.PatientPayable = out.ChargesAfterDiscount - out.InsuranceAmount
	out.FullyCovered = out.InsuranceStatus == InsuranceApproved && out.PatientPayable == 0
	out.TotalPaid = out.TotalPayments + out.TotalWalletDebits
	out.OutstandingBalance = out.PatientPayable - out.TotalPaid
	out.PaymentStatus = paymentStatus(out)
	out.CanClear = out.PatientPayable == 0 || out.TotalPaid >= out.PatientPayable
	return out
}

func retainershipDiscount(r *Retainership, base int64) int64 {
	if r == nil || !r.Active || r.DiscountBps <= 0 || base <= 0 {
		return 0
	}
	return min(applyBps(base, r.DiscountBps), base)
}

// insuranceCover is zero unless the claim is approved. An explicit approved
// amount wins over the coverage share; either is capped at base.
func insuranceCover(ins *Insurance, base int64) int64 {
	if ins == nil || ins.ApprovalStatus != InsuranceApproved || base <= 0 {
		return 0
	}
	var cover int64
	if ins.ApprovedAmount != nil {
		cover = *ins.ApprovedAmount
	} else {
		cover = applyBps(base, ins.CoverageBps)
	}
	if cover < 0 {
		return 0
	}
	return min(cover, base)
}

// applyBps returns round(amount * bps / 10000), rounding half away from zero.
func applyBps(amount, bps int64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(bps)).
		Div(decimal.NewFromInt(bpsDenominator)).
		Round(0).
		IntPart()
}

func paymentStatus(s BillingSummary) PaymentStatus {
	if s.PatientPayable == 0 {
		if s.Insured {
			return PaymentStatusSettled
		}
		return PaymentStatusPaid
	}

	switch s.InsuranceStatus {
	case InsuranceApproved:
		if s.TotalPaid >= s.PatientPayable {
			return PaymentStatusSettled
		}
		return PaymentStatusInsuranceClaimed
	case InsurancePending:
		switch {
		case s.TotalPaid >= s.PatientPayable:
			return PaymentStatusPaid
		case s.TotalPaid > 0:
			return PaymentStatusPartiallyPaid
		default:
			return PaymentStatusInsurancePending
		}
	default:
		switch {
		case s.TotalPaid >= s.PatientPayable:
			return PaymentStatusPaid
		case s.TotalPaid > 0:
			return PaymentStatusPartiallyPaid
		default:
			return PaymentStatusUnpaid
		}
	}
}
