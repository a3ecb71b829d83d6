package risk

import (
	"context"

	"atrx/config"
	"atrx/internal/domain"
	"atrx/internal/ports"
)

// CircuitBreaker is the drawdown-driven halt state machine.
//
// Transitions, evaluated on every account refresh:
//
//	ACTIVE → HALTED_DAILY  when daily drawdown ≥ the daily limit
//	ACTIVE → HALTED_TOTAL  when total drawdown ≥ the total limit
//	                       (total dominates if both trip at once)
//	HALTED_DAILY → ACTIVE  only at the next session boundary
//	HALTED_TOTAL → ACTIVE  only via an explicit external reset, never by time
//
// A halted breaker blocks new intents only; it does not cancel in-flight
// orders.
type CircuitBreaker struct {
	policy *config.Policy
	logger ports.Logger
	state  domain.BreakerState
}

// NewCircuitBreaker creates a breaker in the given initial state
// (persisted state from the store, so a restart does not clear a halt).
func NewCircuitBreaker(policy *config.Policy, logger ports.Logger, initial domain.BreakerState) *CircuitBreaker {
	if initial == "" {
		initial = domain.BreakerActive
	}
	return &CircuitBreaker{policy: policy, logger: logger, state: initial}
}

// Refresh evaluates the transition rules against the account snapshot and
// returns the resulting state. Drawdowns are recomputed from the account's
// equity fields on every call.
func (cb *CircuitBreaker) Refresh(ctx context.Context, account *domain.AccountState) domain.BreakerState {
	if cb.state != domain.BreakerActive {
		return cb.state // halted states only clear via reset paths
	}

	mode := domain.DrawdownStatic
	if b, ok := cb.policy.Bounds(account.Phase); ok {
		mode = b.DrawdownMode
	}
	totalDD := account.TotalDrawdownPct(mode)
	dailyDD := account.DailyDrawdownPct()

	// Total dominates when both trip in the same refresh.
	switch {
	case totalDD >= cb.policy.MaxTotalDrawdownPct:
		cb.state = domain.BreakerHaltedTotal
		cb.logger.Warn(ctx, "Circuit breaker tripped: total drawdown limit", map[string]interface{}{
			"totalDrawdownPct": totalDD, "limit": cb.policy.MaxTotalDrawdownPct,
		})
	case dailyDD >= cb.policy.MaxDailyDrawdownPct:
		cb.state = domain.BreakerHaltedDaily
		cb.logger.Warn(ctx, "Circuit breaker tripped: daily drawdown limit", map[string]interface{}{
			"dailyDrawdownPct": dailyDD, "limit": cb.policy.MaxDailyDrawdownPct,
		})
	}
	return cb.state
}

// OnSessionBoundary clears a daily halt at a recognized session boundary.
// A total-drawdown halt is unaffected.
func (cb *CircuitBreaker) OnSessionBoundary(ctx context.Context) {
	if cb.state == domain.BreakerHaltedDaily {
		cb.state = domain.BreakerActive
		cb.logger.Info(ctx, "Circuit breaker reset at session boundary")
	}
}

// ResetTotal clears a total-drawdown halt. This is the explicit external
// reset signal (new challenge or funded cycle); it is never time-based.
func (cb *CircuitBreaker) ResetTotal(ctx context.Context) {
	if cb.state == domain.BreakerHaltedTotal {
		cb.state = domain.BreakerActive
		cb.logger.Info(ctx, "Circuit breaker reset by external signal")
	}
}

// IsTradingAllowed reports whether new intents may be sized.
func (cb *CircuitBreaker) IsTradingAllowed() bool {
	return cb.state == domain.BreakerActive
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() domain.BreakerState {
	return cb.state
}
