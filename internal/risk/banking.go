package risk

import (
	"sort"
	"time"

	"atrx/config"
	"atrx/internal/domain"
)

// BankingController decides, once the daily profit target is reached,
// which open positions to close to convert unrealized profit into banked
// realized P&L, and how to scale remaining risk for the rest of the
// session.
type BankingController struct {
	policy *config.Policy
}

// NewBankingController creates a controller over the shared policy.
func NewBankingController(policy *config.Policy) *BankingController {
	return &BankingController{policy: policy}
}

// BankingPlan is the closure schedule produced by Plan.
type BankingPlan struct {
	Triggered bool
	// Closures lists the positions to close, in closing order
	// (weakest profitable first).
	Closures []*domain.Position
	// Banked is the projected realized P&L from the closures.
	Banked float64
	// Partial is set when the target cannot be reached because the
	// remaining positions are swing-protected. Not an error: the plan
	// banks what is achievable.
	Partial bool
	// Multiplier to apply to all subsequent sizing for the session.
	Multiplier float64
}

// Plan evaluates the banking rule against the current position snapshot.
// unrealized maps position id to its current mark-to-market P&L.
//
// Selection: swing positions (held past the policy hold) are protected
// unless no non-swing positions exist at all while the target is unmet.
// Eligible positions close weakest-profit first until realized daily P&L
// plus projected closures reach the target. Overshoot is allowed,
// undershoot is reported as partial.
func (c *BankingController) Plan(account *domain.AccountState, openPositions []*domain.Position, unrealized map[int64]float64, now time.Time) BankingPlan {
	target := c.policy.DailyProfitTarget
	if target <= 0 {
		return BankingPlan{}
	}

	totalUnrealized := 0.0
	for _, pos := range openPositions {
		totalUnrealized += unrealized[pos.ID]
	}
	if account.DailyPnL+totalUnrealized < target {
		return BankingPlan{} // target not reached yet
	}

	plan := BankingPlan{Triggered: true, Multiplier: c.policy.PostTargetRiskMultiplier}

	needed := target - account.DailyPnL
	if needed <= 0 {
		return plan // already banked in realized P&L, just de-risk
	}

	hold := c.policy.SwingHoldDuration()
	var eligible, swing []*domain.Position
	for _, pos := range openPositions {
		if unrealized[pos.ID] <= 0 {
			continue // closing a loser cannot contribute to banking
		}
		if pos.IsSwing(now, hold) {
			swing = append(swing, pos)
		} else {
			eligible = append(eligible, pos)
		}
	}
	if len(eligible) == 0 {
		// Swing protection yields only when there is nothing else to bank.
		eligible, swing = swing, nil
	}
	sortByProfitAscending(eligible, unrealized)

	for _, pos := range eligible {
		if plan.Banked >= needed {
			break
		}
		plan.Closures = append(plan.Closures, pos)
		plan.Banked += unrealized[pos.ID]
	}
	plan.Partial = plan.Banked < needed
	return plan
}

func sortByProfitAscending(positions []*domain.Position, unrealized map[int64]float64) {
	sort.SliceStable(positions, func(i, j int) bool {
		return unrealized[positions[i].ID] < unrealized[positions[j].ID]
	})
}
