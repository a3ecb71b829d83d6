package domain

import "time"

// Position represents a position held by the decision process.
// Created by the reconciler on order fill, mutated on close.
type Position struct {
	ID         int64     // Unique identifier (assigned by the store)
	OrderID    string    // Queue order that opened the position
	Symbol     string    // Instrument (e.g., "EURUSD")
	Side       OrderSide // BUY (long) or SELL (short)
	Size       float64   // Filled size in lots
	EntryPrice float64   // Average fill price at entry
	EntryTime  time.Time // Timestamp of the opening fill
	StopPrice  float64   // Protective stop level
	RiskPct    float64   // Risk budget reserved for this position (1.0 = 1%)

	Status      PositionStatus
	ExitPrice   float64     // 0 while open
	ExitTime    time.Time   // zero value while open
	PNL         float64     // realized PnL, set on close
	CloseReason CloseReason // set on close
}

// IsOpen checks if the position status is open.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// IsSwing reports whether the position has been held longer than the
// configured hold duration. Computed at observation time rather than
// stored, so the flag cannot go stale.
func (p *Position) IsSwing(now time.Time, hold time.Duration) bool {
	return now.Sub(p.EntryTime) > hold
}

// UnrealizedPnL returns the mark-to-market PnL at the given price,
// scaled by the instrument's point value.
func (p *Position) UnrealizedPnL(mark, pointValue float64) float64 {
	diff := mark - p.EntryPrice
	if p.Side == Sell {
		diff = -diff
	}
	return diff * p.Size * pointValue
}
