package runtime

import (
	"github.com/shopspring/decimal"

	"github.com/aionlabs/aion/engine/budget"
	"github.com/aionlabs/aion/engine/core"
	"github.com/aionlabs/aion/engine/planner"
)

const (
	minSleepSeconds     = 10
	maxSleepSeconds     = 3600
	defaultSleepSeconds = 30
	idleSleepSeconds    = 120
	// With free providers available there is no reason to sleep long.
	maxSleepWithFree = 120
	// Under this many dollars remaining the loop conserves paid calls.
	lowBudgetSeconds     = 3600
	lowBudgetFreeSeconds = 60
)

var lowBudgetFloor = decimal.NewFromInt(1)

// computeSleep decides the next sleep from the plan's request and the
// budget picture. The result always lands in [10, 3600].
func computeSleep(plan *planner.Plan, status *budget.Status) int {
	hasFree := status != nil && status.HasFreeProvider()
	if plan != nil && plan.SleepSeconds > 0 {
		ceiling := maxSleepSeconds
		if hasFree {
			ceiling = maxSleepWithFree
		}
		return core.ClampInt(plan.SleepSeconds, minSleepSeconds, ceiling)
	}
	if status != nil && status.Remaining.LessThanOrEqual(lowBudgetFloor) {
		if hasFree {
			return lowBudgetFreeSeconds
		}
		return lowBudgetSeconds
	}
	if plan == nil || !plan.HasActions() {
		return idleSleepSeconds
	}
	return defaultSleepSeconds
}
