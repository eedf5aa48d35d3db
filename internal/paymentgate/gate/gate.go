// Package gate answers whether registration and consultation access
// may proceed. Gates are derived from ledger state and never stored.
package gate

import (
	"github.com/smallbiznis/carebill/internal/billingsummary/summary"
	lineitemdomain "github.com/smallbiznis/carebill/internal/lineitem/domain"
)

// Reason names the rule that opened a gate.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonInsuranceSettled   Reason = "insurance_settled"
	ReasonLineItemPaid       Reason = "line_item_paid"
	ReasonAmountCovered      Reason = "amount_covered"
	ReasonOutstandingBalance Reason = "outstanding_balance"
)

type Gates struct {
	RegistrationPaid   bool   `json:"registration_paid"`
	ConsultationPaid   bool   `json:"consultation_paid"`
	RegistrationReason Reason `json:"registration_reason,omitempty"`
	ConsultationReason Reason `json:"consultation_reason,omitempty"`
}

// Evaluate is pure. A gate opens when insurance is settled, a matching-tier
// item is PAID or fully covered by amount_paid, or the whole encounter has
// no outstanding balance.
func Evaluate(items []lineitemdomain.LineItem, s summary.BillingSummary, rules lineitemdomain.TierRules) Gates {
	registration := evaluateTier(items, s, rules, lineitemdomain.TierRegistration)
	consultation := evaluateTier(items, s, rules, lineitemdomain.TierConsultation)
	return Gates{
		RegistrationPaid:   registration != ReasonNone,
		ConsultationPaid:   consultation != ReasonNone,
		RegistrationReason: registration,
		ConsultationReason: consultation,
	}
}

func evaluateTier(items []lineitemdomain.LineItem, s summary.BillingSummary, rules lineitemdomain.TierRules, tier lineitemdomain.Tier) Reason {
	if s.InsuranceSettled() {
		return ReasonInsuranceSettled
	}

	reason := ReasonNone
	for _, item := range items {
		if rules.TierOf(item) != tier {
			continue
		}
		if item.Status == lineitemdomain.StatusPaid {
			return ReasonLineItemPaid
		}
		if item.AmountPaid >= item.Amount {
			reason = ReasonAmountCovered
		}
	}
	if reason != ReasonNone {
		return reason
	}

	// A settled encounter opens every gate, even when the tier's own item is
	// still unpaid. Callers log each firing of this fallback.
	if s.OutstandingBalance <= 0 {
		return ReasonOutstandingBalance
	}
	return ReasonNone
}
