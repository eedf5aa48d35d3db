package domain

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
)

func TestTierOf(t *testing.T) {
	rules := DefaultTierRules()

	tests := []struct {
		name string
		item LineItem
		want Tier
	}{
		{"registration code prefix", LineItem{ServiceCode: "REG-001", ServiceName: "Card"}, TierRegistration},
		{"registration in name", LineItem{ServiceCode: "FD-9", ServiceName: "Patient Registration"}, TierRegistration},
		{"regular is not registration", LineItem{ServiceCode: "REGULAR-DIET", ServiceName: "Diet"}, TierOther},
		{"consultation department", LineItem{ServiceCode: "GP-1", Department: "General OPD"}, TierConsultation},
		{"consultation workflow", LineItem{ServiceCode: "DR-1", WorkflowType: "consultation"}, TierConsultation},
		{"tag must be a whole segment", LineItem{ServiceCode: "X-1", Department: "Reviewers Office"}, TierOther},
		{"laboratory", LineItem{ServiceCode: "LAB-FBC", Department: "Laboratory"}, TierOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rules.TierOf(tt.item))
		})
	}
}

func TestSortForAllocationIsDeterministic(t *testing.T) {
	rules := DefaultTierRules()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	items := []LineItem{
		{ID: snowflake.ID(5), ServiceCode: "LAB-FBC", CreatedAt: base},
		{ID: snowflake.ID(4), ServiceCode: "GP-1", Department: "OPD", CreatedAt: base.Add(time.Minute)},
		{ID: snowflake.ID(3), ServiceCode: "REG-001", CreatedAt: base.Add(2 * time.Minute)},
		{ID: snowflake.ID(2), ServiceCode: "RAD-XRAY", CreatedAt: base},
		{ID: snowflake.ID(1), ServiceCode: "PHARM-1", CreatedAt: base.Add(-time.Minute)},
	}
	reversed := make([]LineItem, len(items))
	for i := range items {
		reversed[len(items)-1-i] = items[i]
	}

	SortForAllocation(items, rules)
	SortForAllocation(reversed, rules)

	ids := func(in []LineItem) []snowflake.ID {
		out := make([]snowflake.ID, 0, len(in))
		for _, it := range in {
			out = append(out, it.ID)
		}
		return out
	}
	assert.Equal(t, []snowflake.ID{3, 4, 1, 2, 5}, ids(items))
	assert.Equal(t, ids(items), ids(reversed))
}

func TestCheckInvariants(t *testing.T) {
	item := LineItem{Amount: 1000, AmountPaid: 400}
	item.Recompute()
	assert.NoError(t, item.CheckInvariants())
	assert.Equal(t, StatusPartiallyPaid, item.Status)

	item.AmountPaid = 1200
	assert.ErrorIs(t, item.CheckInvariants(), ErrInvalidAmount)
}
