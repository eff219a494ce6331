package plans

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateChange_Upgrade(t *testing.T) {
	// Credits remaining are irrelevant for upgrades.
	res := ValidateChange(PlanStarter, CycleMonthly, PlanProfessional, CycleMonthly, 599)
	assert.Equal(t, ChangeUpgrade, res.Kind)
	assert.True(t, res.Allowed)
}

func TestValidateChange_DowngradeAllowed(t *testing.T) {
	// starter credits = 600, threshold = 6000. Balance below threshold passes.
	res := ValidateChange(PlanProfessional, CycleMonthly, PlanStarter, CycleMonthly, 5999)
	assert.Equal(t, ChangeDowngrade, res.Kind)
	assert.True(t, res.Allowed)
}

func TestValidateChange_DowngradeBlocked(t *testing.T) {
	res := ValidateChange(PlanProfessional, CycleMonthly, PlanStarter, CycleMonthly, 6000)
	assert.Equal(t, ChangeDowngradeBlocked, res.Kind)
	assert.False(t, res.Allowed)
	assert.Equal(t, 6000, res.Threshold)
	assert.Contains(t, res.Reason, "6000")
}

func TestValidateChange_DowngradeBoundary(t *testing.T) {
	// trial credits = 10, threshold = 100
	blocked := ValidateChange(PlanStarter, CycleYearly, PlanTrial, CycleYearly, 100)
	assert.Equal(t, ChangeDowngradeBlocked, blocked.Kind)

	allowed := ValidateChange(PlanStarter, CycleYearly, PlanTrial, CycleYearly, 99)
	assert.Equal(t, ChangeDowngrade, allowed.Kind)
	assert.True(t, allowed.Allowed)
}

func TestValidateChange_BillingChange(t *testing.T) {
	res := ValidateChange(PlanStarter, CycleMonthly, PlanStarter, CycleYearly, 0)
	assert.Equal(t, ChangeBilling, res.Kind)
	assert.True(t, res.Allowed)
}

func TestValidateChange_CrossBillingForbidden(t *testing.T) {
	res := ValidateChange(PlanStarter, CycleMonthly, PlanProfessional, CycleYearly, 0)
	assert.Equal(t, ChangeCrossBillingBlocked, res.Kind)
	assert.False(t, res.Allowed)
	assert.NotEmpty(t, res.Reason)
}

func TestValidateChange_Unchanged(t *testing.T) {
	res := ValidateChange(PlanBusiness, CycleYearly, PlanBusiness, CycleYearly, 123)
	assert.Equal(t, ChangeUnchanged, res.Kind)
	assert.True(t, res.Allowed)
}

func TestValidateChange_TotalOverCatalogue(t *testing.T) {
	// Every (plan, cycle) pair maps to exactly one outcome.
	cycles := []BillingCycle{CycleMonthly, CycleYearly}
	for from := range Plans {
		for to := range Plans {
			for _, cf := range cycles {
				for _, ct := range cycles {
					res := ValidateChange(from, cf, to, ct, 50)
					assert.NotEmpty(t, res.Kind, "from=%s/%s to=%s/%s", from, cf, to, ct)
				}
			}
		}
	}
}

func TestConfig_UnknownPlanFallsBackToTrial(t *testing.T) {
	cfg := Config(Plan("legacy-gold"))
	assert.Equal(t, PlanTrial, cfg.Plan)
}

func TestValidPlanAndCycle(t *testing.T) {
	assert.True(t, ValidPlan(PlanProfessional))
	assert.False(t, ValidPlan(Plan("platinum")))
	assert.True(t, ValidCycle(CycleMonthly))
	assert.False(t, ValidCycle(BillingCycle("weekly")))
}
