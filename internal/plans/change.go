package plans

import "fmt"

// ChangeKind classifies a candidate plan transition.
type ChangeKind string

const (
	ChangeUnchanged           ChangeKind = "unchanged"
	ChangeUpgrade             ChangeKind = "upgrade"
	ChangeDowngrade           ChangeKind = "downgrade"
	ChangeDowngradeBlocked    ChangeKind = "downgrade_blocked"
	ChangeBilling             ChangeKind = "billing_change"
	ChangeCrossBillingBlocked ChangeKind = "cross_billing"
)

// A downgrade is refused while the customer still holds more than ten times
// the target plan's monthly allotment in unused credits.
const downgradeCreditFactor = 10

// ChangeResult is the outcome of evaluating a plan transition.
type ChangeResult struct {
	Kind    ChangeKind `json:"kind"`
	Allowed bool       `json:"allowed"`
	Reason  string     `json:"reason,omitempty"`

	// Threshold is set for downgrade_blocked: the credit balance at or
	// above which the downgrade is refused.
	Threshold int `json:"threshold,omitempty"`
}

// ValidateChange evaluates a (plan, billing cycle) transition against the
// catalogue and the current credit balance. It is total: every input maps
// to exactly one outcome.
func ValidateChange(currentPlan Plan, currentCycle BillingCycle, targetPlan Plan, targetCycle BillingCycle, creditsRemaining int) ChangeResult {
	samePlan := currentPlan == targetPlan
	sameCycle := currentCycle == targetCycle

	switch {
	case samePlan && sameCycle:
		return ChangeResult{Kind: ChangeUnchanged, Allowed: true}

	case samePlan:
		return ChangeResult{Kind: ChangeBilling, Allowed: true}

	case !sameCycle:
		return ChangeResult{
			Kind:    ChangeCrossBillingBlocked,
			Allowed: false,
			Reason:  "change the plan and the billing cycle in separate steps",
		}
	}

	current := Config(currentPlan)
	target := Config(targetPlan)

	if target.Credits > current.Credits {
		return ChangeResult{Kind: ChangeUpgrade, Allowed: true}
	}

	threshold := target.Credits * downgradeCreditFactor
	if creditsRemaining >= threshold {
		return ChangeResult{
			Kind:      ChangeDowngradeBlocked,
			Allowed:   false,
			Threshold: threshold,
			Reason: fmt.Sprintf("credit balance %d is at or above the downgrade threshold %d; use credits before downgrading",
				creditsRemaining, threshold),
		}
	}

	return ChangeResult{Kind: ChangeDowngrade, Allowed: true}
}
