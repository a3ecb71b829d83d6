package risk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atrx/config"
	"atrx/internal/domain"
)

func newEngine(t *testing.T) (*BudgetEngine, *CircuitBreaker) {
	t.Helper()
	policy := config.DefaultPolicy()
	breaker := NewCircuitBreaker(policy, &mockLogger{}, domain.BreakerActive)
	return NewBudgetEngine(policy, breaker, NewExposureTracker(policy)), breaker
}

func challengeAccount(equity float64) *domain.AccountState {
	return &domain.AccountState{
		Phase:          domain.PhaseChallenge,
		InitialBalance: 100000,
		Balance:        equity,
		Equity:         equity,
		PeakEquity:     100000,
		DayStartEquity: 100000,
		Breaker:        domain.BreakerActive,
	}
}

func eurusdIntent(riskPct float64) *domain.TradeIntent {
	return &domain.TradeIntent{
		Symbol:           "EURUSD",
		Side:             domain.Buy,
		RequestedRiskPct: riskPct,
		StopDistance:     0.0050,
	}
}

func TestTierMultiplierBoundaries(t *testing.T) {
	policy := config.DefaultPolicy()

	tests := []struct {
		drawdown float64
		want     float64
	}{
		{0.0, 1.00},
		{0.5, 1.00},
		{1.0, 0.75}, // lower tier boundary is closed
		{1.5, 0.75},
		{2.0, 0.50},
		{2.5, 0.50},
		{3.0, 0.25},
		{3.5, 0.25},
		{50.0, 0.25}, // survival tier is unbounded
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, policy.TierMultiplier(tt.drawdown), "drawdown %.1f", tt.drawdown)
	}
}

func TestComputeSizeBaseline(t *testing.T) {
	engine, _ := newEngine(t)

	// 1% of 100k is 1000 at risk; a 50 pip stop on a 100k lot gives 2 lots.
	decision := engine.ComputeSize(eurusdIntent(1.0), challengeAccount(100000), nil)
	require.True(t, decision.Approved, decision.Detail)
	assert.Equal(t, 1.0, decision.RiskPct)
	assert.Equal(t, 1.0, decision.TierMult)
	assert.InDelta(t, 2.0, decision.Size, 1e-9)
}

func TestComputeSizeTierReducesRisk(t *testing.T) {
	engine, _ := newEngine(t)

	// 1.5% drawdown lands in the 0.75 tier: 1% requested becomes 0.75%.
	decision := engine.ComputeSize(eurusdIntent(1.0), challengeAccount(98500), nil)
	require.True(t, decision.Approved, decision.Detail)
	assert.Equal(t, 0.75, decision.TierMult)
	assert.InDelta(t, 0.75, decision.RiskPct, 1e-9)
}

func TestComputeSizeClampedIntoPhaseBounds(t *testing.T) {
	engine, _ := newEngine(t)

	// 2.5% drawdown gives tier 0.50; 0.6% requested would become 0.30%,
	// below the challenge floor of 0.50%, so the clamp takes over.
	decision := engine.ComputeSize(eurusdIntent(0.6), challengeAccount(97500), nil)
	require.True(t, decision.Approved, decision.Detail)
	assert.Equal(t, 0.50, decision.RiskPct)

	// An oversized request is clamped to the ceiling.
	decision = engine.ComputeSize(eurusdIntent(5.0), challengeAccount(100000), nil)
	require.True(t, decision.Approved, decision.Detail)
	assert.Equal(t, 1.25, decision.RiskPct)
}

func TestComputeSizeUsesPhaseBaseWhenUnspecified(t *testing.T) {
	engine, _ := newEngine(t)

	decision := engine.ComputeSize(eurusdIntent(0), challengeAccount(100000), nil)
	require.True(t, decision.Approved, decision.Detail)
	assert.Equal(t, 1.0, decision.RiskPct) // challenge base risk
}

func TestComputeSizePostTargetMultiplier(t *testing.T) {
	engine, _ := newEngine(t)

	account := challengeAccount(100000)
	account.PostTargetMultiplier = 0.5
	decision := engine.ComputeSize(eurusdIntent(1.0), account, nil)
	require.True(t, decision.Approved, decision.Detail)
	assert.Equal(t, 0.5, decision.RiskPct)
}

func TestComputeSizeRejectsWhenHalted(t *testing.T) {
	engine, breaker := newEngine(t)
	breaker.Refresh(context.Background(), accountWithEquity(91000, 100000))

	decision := engine.ComputeSize(eurusdIntent(1.0), challengeAccount(91000), nil)
	require.False(t, decision.Approved)
	assert.Equal(t, domain.RejectCircuitBreaker, decision.Reason)
}

func TestComputeSizeRejectsExposureBreach(t *testing.T) {
	engine, _ := newEngine(t)

	open := []*domain.Position{
		{ID: 1, Symbol: "EURUSD", Side: domain.Buy, Size: 1, RiskPct: 1.0, EntryTime: time.Now(), Status: domain.StatusOpen},
		{ID: 2, Symbol: "GBPUSD", Side: domain.Buy, Size: 1, RiskPct: 1.0, EntryTime: time.Now(), Status: domain.StatusOpen},
	}
	intent := &domain.TradeIntent{Symbol: "AUDUSD", Side: domain.Buy, RequestedRiskPct: 1.0, StopDistance: 0.0050}

	decision := engine.ComputeSize(intent, challengeAccount(100000), open)
	require.False(t, decision.Approved)
	assert.Equal(t, domain.RejectExposureLimit, decision.Reason)
	assert.Contains(t, decision.Detail, "USD")
}

func TestComputeSizeRejectsOverOpenRiskBudget(t *testing.T) {
	engine, _ := newEngine(t)

	// 3.5% already reserved; another 1% would exceed the 4% budget.
	open := []*domain.Position{
		{ID: 1, Symbol: "USDJPY", Side: domain.Buy, Size: 1, RiskPct: 2.0, EntryTime: time.Now(), Status: domain.StatusOpen},
		{ID: 2, Symbol: "USDCHF", Side: domain.Buy, Size: 1, RiskPct: 1.5, EntryTime: time.Now(), Status: domain.StatusOpen},
	}
	decision := engine.ComputeSize(eurusdIntent(1.0), challengeAccount(100000), open)
	require.False(t, decision.Approved)
	assert.Equal(t, domain.RejectRiskBudget, decision.Reason)
}

func TestComputeSizeRejectsBelowMinimum(t *testing.T) {
	engine, _ := newEngine(t)

	// A huge stop distance drives the computed size under the broker
	// minimum; dropping the stop instead would breach the risk contract.
	intent := &domain.TradeIntent{Symbol: "EURUSD", Side: domain.Buy, RequestedRiskPct: 0.5, StopDistance: 1.0}
	decision := engine.ComputeSize(intent, challengeAccount(100000), nil)
	require.False(t, decision.Approved)
	assert.Equal(t, domain.RejectMinSize, decision.Reason)
}

func TestComputeSizeValidation(t *testing.T) {
	engine, _ := newEngine(t)
	account := challengeAccount(100000)

	tests := []struct {
		name   string
		intent *domain.TradeIntent
	}{
		{"nil intent", nil},
		{"missing symbol", &domain.TradeIntent{Side: domain.Buy, StopDistance: 1}},
		{"bad side", &domain.TradeIntent{Symbol: "EURUSD", Side: "HOLD", StopDistance: 1}},
		{"zero stop", &domain.TradeIntent{Symbol: "EURUSD", Side: domain.Buy, StopDistance: 0}},
		{"negative risk", &domain.TradeIntent{Symbol: "EURUSD", Side: domain.Buy, StopDistance: 1, RequestedRiskPct: -1}},
		{"unknown symbol", &domain.TradeIntent{Symbol: "ZZZZZZ", Side: domain.Buy, StopDistance: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := engine.ComputeSize(tt.intent, account, nil)
			require.False(t, decision.Approved)
			assert.Equal(t, domain.RejectValidation, decision.Reason)
		})
	}
}

func TestComputeSizeVolumeStepRounding(t *testing.T) {
	engine, _ := newEngine(t)

	// 0.55% of 100k over a 33 pip stop: 550/330 = 1.666..., floored to
	// the 0.01 step, never rounded up.
	intent := &domain.TradeIntent{Symbol: "EURUSD", Side: domain.Buy, RequestedRiskPct: 0.55, StopDistance: 0.0033}
	decision := engine.ComputeSize(intent, challengeAccount(100000), nil)
	require.True(t, decision.Approved, decision.Detail)
	assert.InDelta(t, 1.66, decision.Size, 1e-9)
}

func TestMaxNewPositionsShrinksWithUsage(t *testing.T) {
	engine, _ := newEngine(t)

	assert.Equal(t, 8, engine.MaxNewPositions(domain.PhaseChallenge, nil)) // 4.0 / 0.5

	open := []*domain.Position{
		{ID: 1, Symbol: "EURUSD", RiskPct: 1.0, Status: domain.StatusOpen},
		{ID: 2, Symbol: "USDJPY", RiskPct: 1.5, Status: domain.StatusOpen},
	}
	assert.Equal(t, 3, engine.MaxNewPositions(domain.PhaseChallenge, open)) // 1.5 / 0.5
	assert.InDelta(t, 1.5, engine.AvailableRisk(open), 1e-9)
}
