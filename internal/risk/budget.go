package risk

import (
	"fmt"
	"math"

	"atrx/config"
	"atrx/internal/domain"
)

// BudgetEngine computes an approved position size for a trade intent
// given drawdown tier, phase budget, and circuit-breaker state. It
// composes the ExposureTracker and the CircuitBreaker and is pure given
// its inputs, so every tier/phase/exposure combination is deterministic
// to test.
type BudgetEngine struct {
	policy   *config.Policy
	breaker  *CircuitBreaker
	exposure *ExposureTracker
}

// NewBudgetEngine creates a sizing engine over the shared policy.
func NewBudgetEngine(policy *config.Policy, breaker *CircuitBreaker, exposure *ExposureTracker) *BudgetEngine {
	return &BudgetEngine{policy: policy, breaker: breaker, exposure: exposure}
}

// ComputeSize sizes an intent against the account and position snapshot.
//
// Order of gates: circuit breaker, input validation, drawdown tier and
// phase clamp, exposure (hard gate, never a soft scaler), open-risk
// budget, broker minimum size.
func (e *BudgetEngine) ComputeSize(intent *domain.TradeIntent, account *domain.AccountState, openPositions []*domain.Position) domain.SizingDecision {
	if !e.breaker.IsTradingAllowed() {
		return rejected(domain.RejectCircuitBreaker, fmt.Sprintf("circuit breaker %s", e.breaker.State()))
	}

	// The intent comes from the out-of-scope alpha layer: untrusted input.
	if reason, detail := validateIntent(intent, e.policy); reason != domain.RejectNone {
		return rejected(reason, detail)
	}

	bounds, ok := e.policy.Bounds(account.Phase)
	if !ok {
		return rejected(domain.RejectValidation, fmt.Sprintf("no risk bounds configured for phase %s", account.Phase))
	}

	totalDD := account.TotalDrawdownPct(bounds.DrawdownMode)
	tierMult := e.policy.TierMultiplier(totalDD)

	base := intent.RequestedRiskPct
	if base <= 0 {
		base = bounds.BaseRiskPct
	}
	effective := base * tierMult
	if account.PostTargetMultiplier > 0 {
		effective *= account.PostTargetMultiplier
	}
	// Clamp into the phase's bounds; the clamp is the invariant, the
	// multipliers only move inside it.
	effective = math.Min(math.Max(effective, bounds.MinRiskPct), bounds.MaxRiskPct)

	report := e.exposure.Evaluate(intent, openPositions)
	if !report.OK() {
		v := report.Violations[0]
		return domain.SizingDecision{
			Approved: false,
			TierMult: tierMult,
			Reason:   domain.RejectExposureLimit,
			Detail:   v.Detail,
		}
	}

	// Reserved-risk budget: summed open risk plus this trade must stay
	// under the policy cap.
	if e.policy.MaxOpenRiskPct > 0 {
		used := 0.0
		for _, pos := range openPositions {
			used += pos.RiskPct
		}
		if used+effective > e.policy.MaxOpenRiskPct {
			return domain.SizingDecision{
				Approved: false,
				TierMult: tierMult,
				Reason:   domain.RejectRiskBudget,
				Detail:   fmt.Sprintf("open risk %.2f%% + %.2f%% exceeds budget %.2f%%", used, effective, e.policy.MaxOpenRiskPct),
			}
		}
	}

	spec, _ := e.policy.Symbol(intent.Symbol) // presence checked in validateIntent
	riskAmount := account.Balance * effective / 100
	size := riskAmount / (intent.StopDistance * spec.PointValue)

	if spec.VolumeStep > 0 {
		size = math.Floor(size/spec.VolumeStep) * spec.VolumeStep
	}
	if spec.MaxVolume > 0 {
		size = math.Min(size, spec.MaxVolume)
	}
	if size < spec.MinVolume || size <= 0 {
		return domain.SizingDecision{
			Approved: false,
			TierMult: tierMult,
			Reason:   domain.RejectMinSize,
			Detail:   fmt.Sprintf("size %.4f below minimum tradable %.4f for %s", size, spec.MinVolume, intent.Symbol),
		}
	}

	return domain.SizingDecision{
		Approved: true,
		Size:     size,
		RiskPct:  effective,
		TierMult: tierMult,
	}
}

// AvailableRisk returns the unreserved portion of the open-risk budget.
func (e *BudgetEngine) AvailableRisk(openPositions []*domain.Position) float64 {
	used := 0.0
	for _, pos := range openPositions {
		used += pos.RiskPct
	}
	return math.Max(0, e.policy.MaxOpenRiskPct-used)
}

// MaxNewPositions is the dynamic position limit: how many minimum-risk
// trades still fit in the available budget. Capacity shrinks automatically
// as drawdown consumes the budget.
func (e *BudgetEngine) MaxNewPositions(phase domain.Phase, openPositions []*domain.Position) int {
	bounds, ok := e.policy.Bounds(phase)
	if !ok || bounds.MinRiskPct <= 0 {
		return 0
	}
	return int(e.AvailableRisk(openPositions) / bounds.MinRiskPct)
}

func validateIntent(intent *domain.TradeIntent, policy *config.Policy) (domain.RejectReason, string) {
	if intent == nil {
		return domain.RejectValidation, "nil intent"
	}
	if intent.Symbol == "" {
		return domain.RejectValidation, "intent has no symbol"
	}
	if intent.Side != domain.Buy && intent.Side != domain.Sell {
		return domain.RejectValidation, fmt.Sprintf("invalid side %q", intent.Side)
	}
	if intent.StopDistance <= 0 {
		return domain.RejectValidation, fmt.Sprintf("non-positive stop distance %.5f", intent.StopDistance)
	}
	if intent.RequestedRiskPct < 0 {
		return domain.RejectValidation, fmt.Sprintf("negative requested risk %.3f", intent.RequestedRiskPct)
	}
	if _, ok := policy.Symbol(intent.Symbol); !ok {
		return domain.RejectValidation, fmt.Sprintf("unknown symbol %s", intent.Symbol)
	}
	return domain.RejectNone, ""
}

func rejected(reason domain.RejectReason, detail string) domain.SizingDecision {
	return domain.SizingDecision{Approved: false, Reason: reason, Detail: detail}
}
