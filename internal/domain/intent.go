package domain

// TradeIntent is the untrusted input from the upstream alpha/AI layer.
// It is ephemeral: produced once per cycle and consumed once. Everything
// beyond the sizing inputs is opaque metadata passed through for audit.
type TradeIntent struct {
	Symbol           string
	Side             OrderSide
	RequestedRiskPct float64 // requested risk per trade (1.0 = 1%)
	StopDistance     float64 // stop distance in price units, ATR-derived upstream
	Meta             map[string]string
}

// SizingDecision is the outcome of RiskBudgetEngine.ComputeSize.
type SizingDecision struct {
	Approved bool
	Size     float64      // approved size in lots, 0 when rejected
	RiskPct  float64      // realized effective risk % for audit
	TierMult float64      // drawdown-tier multiplier that was applied
	Reason   RejectReason // RejectNone when approved
	Detail   string       // human-readable rejection detail
}

// ExposureViolation flags a currency whose absolute net exposure would
// exceed the configured threshold if the candidate were opened.
type ExposureViolation struct {
	Currency string
	Net      float64 // proposed net exposure including the candidate
	Limit    float64
	Detail   string
}

// ExposureReport is the result of an ExposureTracker evaluation.
type ExposureReport struct {
	NetByCurrency map[string]float64
	Violations    []ExposureViolation
}

// OK reports whether the evaluation found no violations.
func (r ExposureReport) OK() bool {
	return len(r.Violations) == 0
}
