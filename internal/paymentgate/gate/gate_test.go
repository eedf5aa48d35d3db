package gate

import (
	"testing"

	"github.com/smallbiznis/carebill/internal/billingsummary/summary"
	lineitemdomain "github.com/smallbiznis/carebill/internal/lineitem/domain"
	"github.com/stretchr/testify/assert"
)

func item(code, department string, amount, paid int64) lineitemdomain.LineItem {
	li := lineitemdomain.LineItem{ServiceCode: code, ServiceName: code, Department: department, Amount: amount, AmountPaid: paid}
	li.Recompute()
	return li
}

func TestEvaluateRegistrationPaidConsultationPartial(t *testing.T) {
	items := []lineitemdomain.LineItem{
		item("REG-001", "Front Desk", 200_000, 200_000),
		item("GP-CONSULT", "OPD", 500_000, 100_000),
	}
	s := summary.Compute(summary.Inputs{LineItemCharges: 700_000, ClearedPayments: 300_000})

	gates := Evaluate(items, s, lineitemdomain.DefaultTierRules())
	assert.True(t, gates.RegistrationPaid)
	assert.Equal(t, ReasonLineItemPaid, gates.RegistrationReason)
	assert.False(t, gates.ConsultationPaid)
	assert.Equal(t, ReasonNone, gates.ConsultationReason)
}

func TestEvaluateInsuranceSettled(t *testing.T) {
	items := []lineitemdomain.LineItem{item("LAB-FBC", "Laboratory", 1_000_000, 0)}
	s := summary.Compute(summary.Inputs{
		LineItemCharges: 1_000_000,
		Insurance:       &summary.Insurance{ApprovalStatus: summary.InsuranceApproved, CoverageBps: 10000},
	})

	gates := Evaluate(items, s, lineitemdomain.DefaultTierRules())
	assert.True(t, gates.RegistrationPaid)
	assert.True(t, gates.ConsultationPaid)
	assert.Equal(t, ReasonInsuranceSettled, gates.ConsultationReason)
}

func TestEvaluateStaleStatus(t *testing.T) {
	stale := item("REG-001", "Front Desk", 200_000, 200_000)
	stale.Status = lineitemdomain.StatusPartiallyPaid
	s := summary.Compute(summary.Inputs{LineItemCharges: 900_000, ClearedPayments: 200_000})

	gates := Evaluate([]lineitemdomain.LineItem{stale}, s, lineitemdomain.DefaultTierRules())
	assert.True(t, gates.RegistrationPaid)
	assert.Equal(t, ReasonAmountCovered, gates.RegistrationReason)
}

func TestEvaluateOutstandingBalanceFallback(t *testing.T) {
	items := []lineitemdomain.LineItem{item("GP-CONSULT", "OPD", 500_000, 0)}
	s := summary.Compute(summary.Inputs{LineItemCharges: 500_000, ClearedPayments: 600_000})

	gates := Evaluate(items, s, lineitemdomain.DefaultTierRules())
	assert.True(t, gates.ConsultationPaid)
	assert.Equal(t, ReasonOutstandingBalance, gates.ConsultationReason)
	assert.True(t, gates.RegistrationPaid)
	assert.Equal(t, ReasonOutstandingBalance, gates.RegistrationReason)
}

func TestEvaluateClosedWhenNothingMatches(t *testing.T) {
	s := summary.Compute(summary.Inputs{LineItemCharges: 100_000})
	gates := Evaluate(nil, s, lineitemdomain.DefaultTierRules())
	assert.False(t, gates.RegistrationPaid)
	assert.False(t, gates.ConsultationPaid)
}
