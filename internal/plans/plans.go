// Package plans holds the pricing tier catalogue and the plan change rules.
package plans

// Plan identifies a pricing tier.
type Plan string

const (
	PlanTrial        Plan = "trial"
	PlanStarter      Plan = "starter"
	PlanProfessional Plan = "professional"
	PlanBusiness     Plan = "business"
)

// BillingCycle identifies how a subscription is billed.
type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleYearly  BillingCycle = "yearly"
)

// PlanConfig defines the entitlements of a pricing tier.
type PlanConfig struct {
	Plan            Plan
	Credits         int
	ActivationLimit int
	ExpiryDays      int // 0 = never expires
}

// Plans is the hardcoded plan catalogue.
var Plans = map[Plan]PlanConfig{
	PlanTrial: {
		Plan:            PlanTrial,
		Credits:         10,
		ActivationLimit: 1,
		ExpiryDays:      14,
	},
	PlanStarter: {
		Plan:            PlanStarter,
		Credits:         600,
		ActivationLimit: 1,
	},
	PlanProfessional: {
		Plan:            PlanProfessional,
		Credits:         1200,
		ActivationLimit: 3,
	},
	PlanBusiness: {
		Plan:            PlanBusiness,
		Credits:         6000,
		ActivationLimit: 10,
	},
}

// Config returns the catalogue entry for a plan, falling back to trial for
// unknown slugs.
func Config(p Plan) PlanConfig {
	cfg, ok := Plans[p]
	if !ok {
		return Plans[PlanTrial]
	}
	return cfg
}

// ValidPlan returns true if the plan slug is recognised.
func ValidPlan(p Plan) bool {
	_, ok := Plans[p]
	return ok
}

// ValidCycle returns true if the billing cycle is recognised.
func ValidCycle(c BillingCycle) bool {
	return c == CycleMonthly || c == CycleYearly
}
