package domain

import "time"

// AccountState is the durable snapshot of the trading account.
//
// Drawdown percentages are never stored: they are always recomputed from
// the equity fields below, so they cannot drift-accumulate across updates.
// The ExecutionReconciler is the only writer (plus the session day-roll).
type AccountState struct {
	Phase          Phase
	InitialBalance float64 // balance at phase start, baseline for static drawdown
	Balance        float64 // realized balance
	Equity         float64 // balance plus unrealized PnL
	PeakEquity     float64 // high-water mark, baseline for trailing drawdown
	DayStartEquity float64 // equity at the last session boundary
	DailyPnL       float64 // realized PnL since the last session boundary

	// Breaker is persisted so a restart does not silently clear a halt.
	Breaker BreakerState

	// PostTargetMultiplier scales all sizing after the daily profit target
	// was banked. 0 means not set; reset at the session boundary.
	PostTargetMultiplier float64

	UpdatedAt time.Time
}

// TotalDrawdownPct returns the total drawdown as a percentage (8.0 = 8%),
// measured from the baseline selected by mode.
func (a *AccountState) TotalDrawdownPct(mode DrawdownMode) float64 {
	base := a.InitialBalance
	if mode == DrawdownTrailing {
		base = a.PeakEquity
	}
	if base <= 0 {
		return 0
	}
	dd := (base - a.Equity) / base * 100
	if dd < 0 {
		return 0
	}
	return dd
}

// DailyDrawdownPct returns the drawdown since the session start as a
// percentage (3.8 = 3.8%).
func (a *AccountState) DailyDrawdownPct() float64 {
	if a.DayStartEquity <= 0 {
		return 0
	}
	dd := (a.DayStartEquity - a.Equity) / a.DayStartEquity * 100
	if dd < 0 {
		return 0
	}
	return dd
}

// RollDay resets the per-session fields at a session boundary.
func (a *AccountState) RollDay(now time.Time) {
	a.DayStartEquity = a.Equity
	a.DailyPnL = 0
	a.PostTargetMultiplier = 0
	a.UpdatedAt = now
}
