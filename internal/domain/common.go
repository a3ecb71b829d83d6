package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Opposite returns the side that flattens this one.
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Phase is the prop-firm evaluation stage the account is trading under.
// Each phase carries its own risk bounds and drawdown mode.
type Phase string

const (
	PhaseChallenge    Phase = "challenge"
	PhaseVerification Phase = "verification"
	PhaseFunded       Phase = "funded"
)

// DrawdownMode selects the baseline total drawdown is measured from.
type DrawdownMode string

const (
	// DrawdownStatic measures drawdown from the initial account balance.
	DrawdownStatic DrawdownMode = "static"
	// DrawdownTrailing measures drawdown from the equity high-water mark.
	DrawdownTrailing DrawdownMode = "trailing"
)

// BreakerState is the circuit breaker's halt state.
type BreakerState string

const (
	BreakerActive      BreakerState = "ACTIVE"
	BreakerHaltedDaily BreakerState = "HALTED_DAILY"
	BreakerHaltedTotal BreakerState = "HALTED_TOTAL"
)

// PositionStatus represents the status of a trading position.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "open"
	StatusClosed PositionStatus = "closed"
)

// CloseReason indicates why a position was closed.
type CloseReason string

const (
	CloseReasonStopLoss      CloseReason = "SL"
	CloseReasonProfitBanking CloseReason = "PROFIT_BANKING"
	CloseReasonManual        CloseReason = "MANUAL"
	CloseReasonUnknown       CloseReason = "Unknown"
)

// RejectReason classifies why a trade intent was not turned into an order.
// These are policy outcomes, not errors: the cycle continues normally.
type RejectReason string

const (
	RejectNone           RejectReason = ""
	RejectValidation     RejectReason = "VALIDATION"
	RejectCircuitBreaker RejectReason = "CIRCUIT_BREAKER"
	RejectExposureLimit  RejectReason = "EXPOSURE_LIMIT"
	RejectRiskBudget     RejectReason = "RISK_BUDGET"
	RejectMinSize        RejectReason = "MIN_SIZE"
)

// Failure reason codes carried on FAILED orders.
const (
	FailReasonLeaseExhausted   = "LEASE_EXHAUSTED"
	FailReasonTerminalRejected = "TERMINAL_REJECTED"
)
