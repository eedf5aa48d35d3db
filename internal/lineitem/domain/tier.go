package domain

import (
	"sort"
	"strings"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/carebill/internal/config"
)

// Tier is the allocation priority of a line item; lower tiers are paid first.
type Tier int

const (
	TierRegistration Tier = iota
	TierConsultation
	TierOther
)

func (t Tier) String() string {
	switch t {
	case TierRegistration:
		return "registration"
	case TierConsultation:
		return "consultation"
	default:
		return "other"
	}
}

// TierRules classifies line items. Registration patterns match as substrings
// of the slugged service code or name; consultation tags match whole slug
// segments of the department or workflow type.
type TierRules struct {
	RegistrationPatterns []string
	ConsultationTags     []string
}

func RulesFromPolicy(policy config.BillingPolicy) TierRules {
	rules := TierRules{
		RegistrationPatterns: make([]string, 0, len(policy.RegistrationPatterns)),
		ConsultationTags:     make([]string, 0, len(policy.ConsultationTags)),
	}
	for _, p := range policy.RegistrationPatterns {
		if pattern := registrationPattern(p); pattern != "" {
			rules.RegistrationPatterns = append(rules.RegistrationPatterns, pattern)
		}
	}
	for _, t := range policy.ConsultationTags {
		if t = slug.Make(t); t != "" {
			rules.ConsultationTags = append(rules.ConsultationTags, t)
		}
	}
	return rules
}

// registrationPattern slugs a pattern but keeps a trailing separator, so
// "reg-" matches "reg-001" and not "regular".
func registrationPattern(p string) string {
	p = strings.TrimSpace(p)
	out := slug.Make(p)
	if out != "" && strings.HasSuffix(p, "-") {
		out += "-"
	}
	return out
}

func DefaultTierRules() TierRules {
	return RulesFromPolicy(config.DefaultBillingPolicy())
}

func (r TierRules) TierOf(item LineItem) Tier {
	if r.isRegistration(item) {
		return TierRegistration
	}
	if r.isConsultation(item) {
		return TierConsultation
	}
	return TierOther
}

func (r TierRules) isRegistration(item LineItem) bool {
	code := slug.Make(item.ServiceCode)
	name := slug.Make(item.ServiceName)
	for _, pattern := range r.RegistrationPatterns {
		if strings.Contains(code, pattern) || strings.Contains(name, pattern) {
			return true
		}
	}
	return false
}

func (r TierRules) isConsultation(item LineItem) bool {
	department := "-" + slug.Make(item.Department) + "-"
	workflow := "-" + slug.Make(item.WorkflowType) + "-"
	for _, tag := range r.ConsultationTags {
		needle := "-" + tag + "-"
		if strings.Contains(department, needle) || strings.Contains(workflow, needle) {
			return true
		}
	}
	return false
}

// SortForAllocation orders items by tier, then creation time, then id. The
// order is total, so the result does not depend on the input order.
func SortForAllocation(items []LineItem, rules TierRules) {
	tiers := make(map[int64]Tier, len(items))
	for _, item := range items {
		tiers[item.ID.Int64()] = rules.TierOf(item)
	}
	sort.SliceStable(items, func(i, j int) bool {
		ti, tj := tiers[items[i].ID.Int64()], tiers[items[j].ID.Int64()]
		if ti != tj {
			return ti < tj
		}
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
}
