package risk

import (
	"fmt"
	"math"
	"sort"

	"atrx/config"
	"atrx/internal/domain"
)

// ExposureTracker computes net directional exposure per underlying
// currency from open positions plus a candidate trade. It is a pure
// function of position state: the ledger is always recomputed, never
// mutated, so it cannot drift from the position snapshot.
type ExposureTracker struct {
	policy *config.Policy
}

// NewExposureTracker creates a tracker bound to a policy's symbol table
// and exposure threshold.
func NewExposureTracker(policy *config.Policy) *ExposureTracker {
	return &ExposureTracker{policy: policy}
}

// Evaluate decomposes every open position and the candidate into signed
// currency legs, sums them, and flags any currency whose absolute net
// exposure exceeds the threshold.
//
// Positions on the candidate's own symbol are excluded from the sum:
// same-symbol averaging is a strategic choice, the gate targets
// cross-symbol correlation (long EURUSD + long GBPUSD = doubled short USD).
//
// Fails closed: a candidate whose symbol cannot be decomposed is reported
// as a violation rather than silently ignored.
func (t *ExposureTracker) Evaluate(candidate *domain.TradeIntent, openPositions []*domain.Position) domain.ExposureReport {
	report := domain.ExposureReport{NetByCurrency: make(map[string]float64)}

	for _, pos := range openPositions {
		if candidate != nil && pos.Symbol == candidate.Symbol {
			continue // same-symbol averaging allowed
		}
		spec, ok := t.policy.Symbol(pos.Symbol)
		if !ok {
			// An undecomposable open position means the ledger is incomplete.
			report.Violations = append(report.Violations, domain.ExposureViolation{
				Currency: pos.Symbol,
				Limit:    t.policy.ExposureThreshold,
				Detail:   fmt.Sprintf("open position %d on unknown symbol %s", pos.ID, pos.Symbol),
			})
			continue
		}
		addLegs(report.NetByCurrency, spec.Legs, pos.Side)
	}

	if candidate == nil {
		t.flagOverThreshold(&report)
		return report
	}

	spec, ok := t.policy.Symbol(candidate.Symbol)
	if !ok {
		report.Violations = append(report.Violations, domain.ExposureViolation{
			Currency: candidate.Symbol,
			Limit:    t.policy.ExposureThreshold,
			Detail:   fmt.Sprintf("unknown symbol %s: no currency decomposition", candidate.Symbol),
		})
		return report
	}
	addLegs(report.NetByCurrency, spec.Legs, candidate.Side)

	t.flagOverThreshold(&report)
	return report
}

// Ledger recomputes the net exposure of a position set with no candidate.
func (t *ExposureTracker) Ledger(openPositions []*domain.Position) map[string]float64 {
	return t.Evaluate(nil, openPositions).NetByCurrency
}

func (t *ExposureTracker) flagOverThreshold(report *domain.ExposureReport) {
	// Deterministic violation order for logs and tests.
	currencies := make([]string, 0, len(report.NetByCurrency))
	for ccy := range report.NetByCurrency {
		currencies = append(currencies, ccy)
	}
	sort.Strings(currencies)

	for _, ccy := range currencies {
		net := report.NetByCurrency[ccy]
		if math.Abs(net) > t.policy.ExposureThreshold {
			report.Violations = append(report.Violations, domain.ExposureViolation{
				Currency: ccy,
				Net:      net,
				Limit:    t.policy.ExposureThreshold,
				Detail:   fmt.Sprintf("net %s exposure %.2f exceeds threshold %.2f", ccy, net, t.policy.ExposureThreshold),
			})
		}
	}
}

func addLegs(net map[string]float64, legs map[string]float64, side domain.OrderSide) {
	direction := 1.0
	if side == domain.Sell {
		direction = -1.0
	}
	for ccy, weight := range legs {
		net[ccy] += weight * direction
	}
}
