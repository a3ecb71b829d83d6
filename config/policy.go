package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"atrx/internal/domain"
)

// Policy is the explicit risk-policy value object: tier table, phase
// bounds, exposure threshold, symbol tables, and queue lease knobs.
// Loaded once per run and passed by reference to all components; never
// read from ambient global state.
type Policy struct {
	// Tiers is the anti-martingale step table, ordered by ascending
	// drawdown bound. An entry applies to total drawdown in
	// [previous bound, MaxDrawdownPct); boundaries are closed on the
	// lower edge.
	Tiers []Tier `yaml:"tiers"`

	// Phases maps a trading phase to its risk bounds and drawdown mode.
	Phases map[domain.Phase]PhaseBounds `yaml:"phases"`

	// Circuit breaker thresholds, in percent (3.8 = 3.8%).
	MaxDailyDrawdownPct float64 `yaml:"max_daily_drawdown_pct"`
	MaxTotalDrawdownPct float64 `yaml:"max_total_drawdown_pct"`

	// ExposureThreshold is the maximum absolute net exposure per currency,
	// in signed unit legs.
	ExposureThreshold float64 `yaml:"exposure_threshold"`

	// MaxOpenRiskPct caps the summed reserved risk of open positions.
	MaxOpenRiskPct float64 `yaml:"max_open_risk_pct"`

	// Symbols is the instrument table: currency-leg decomposition plus
	// broker sizing constraints.
	Symbols map[string]SymbolSpec `yaml:"symbols"`

	// Profit banking
	DailyProfitTarget        float64 `yaml:"daily_profit_target"`         // absolute currency amount per session
	PostTargetRiskMultiplier float64 `yaml:"post_target_risk_multiplier"` // applied to sizing after banking
	SwingHold                string  `yaml:"swing_hold"`                  // e.g. "6h"; held longer = swing protected

	// Order queue
	LeaseTTL       string `yaml:"lease_ttl"` // e.g. "90s"
	MaxReclaims    int    `yaml:"max_reclaims"`
	SubmitAttempts int    `yaml:"submit_attempts"`

	swingHold time.Duration
	leaseTTL  time.Duration
}

// Tier is one step of the drawdown multiplier table.
type Tier struct {
	MaxDrawdownPct float64 `yaml:"max_drawdown_pct"` // exclusive upper bound; <=0 means unbounded
	Multiplier     float64 `yaml:"multiplier"`
}

// PhaseBounds holds the per-phase risk configuration.
type PhaseBounds struct {
	BaseRiskPct  float64             `yaml:"base_risk_pct"` // default when the intent requests nothing
	MinRiskPct   float64             `yaml:"min_risk_pct"`
	MaxRiskPct   float64             `yaml:"max_risk_pct"`
	DrawdownMode domain.DrawdownMode `yaml:"drawdown_mode"`
}

// SymbolSpec describes one tradable instrument.
type SymbolSpec struct {
	// Legs is the signed currency decomposition of one long unit
	// (long EURUSD → EUR +1, USD -1).
	Legs       map[string]float64 `yaml:"legs"`
	PointValue float64            `yaml:"point_value"` // cash value of a 1.0 price move per lot
	MinVolume  float64            `yaml:"min_volume"`
	MaxVolume  float64            `yaml:"max_volume"`
	VolumeStep float64            `yaml:"volume_step"`
}

// DefaultPolicy returns the built-in policy matching the prop-firm
// "never fail" parameters.
func DefaultPolicy() *Policy {
	// pointValue is per standard lot: 100k notional for FX, 100oz for
	// gold, 1 coin for crypto.
	fx := func(base, quote string) SymbolSpec {
		return SymbolSpec{
			Legs:       map[string]float64{base: 1, quote: -1},
			PointValue: 100000.0,
			MinVolume:  0.01,
			MaxVolume:  100.0,
			VolumeStep: 0.01,
		}
	}
	contract := func(base, quote string, pointValue, minVol, step float64) SymbolSpec {
		return SymbolSpec{
			Legs:       map[string]float64{base: 1, quote: -1},
			PointValue: pointValue,
			MinVolume:  minVol,
			MaxVolume:  100.0,
			VolumeStep: step,
		}
	}
	p := &Policy{
		Tiers: []Tier{
			{MaxDrawdownPct: 1.0, Multiplier: 1.00},
			{MaxDrawdownPct: 2.0, Multiplier: 0.75},
			{MaxDrawdownPct: 3.0, Multiplier: 0.50},
			{MaxDrawdownPct: 0, Multiplier: 0.25}, // survival mode, unbounded
		},
		Phases: map[domain.Phase]PhaseBounds{
			domain.PhaseChallenge:    {BaseRiskPct: 1.0, MinRiskPct: 0.50, MaxRiskPct: 1.25, DrawdownMode: domain.DrawdownStatic},
			domain.PhaseVerification: {BaseRiskPct: 0.5, MinRiskPct: 0.25, MaxRiskPct: 0.75, DrawdownMode: domain.DrawdownStatic},
			domain.PhaseFunded:       {BaseRiskPct: 0.5, MinRiskPct: 0.25, MaxRiskPct: 1.00, DrawdownMode: domain.DrawdownTrailing},
		},
		MaxDailyDrawdownPct: 3.8,
		MaxTotalDrawdownPct: 8.0,
		ExposureThreshold:   2.0,
		MaxOpenRiskPct:      4.0,
		Symbols: map[string]SymbolSpec{
			"EURUSD": fx("EUR", "USD"),
			"GBPUSD": fx("GBP", "USD"),
			"AUDUSD": fx("AUD", "USD"),
			"NZDUSD": fx("NZD", "USD"),
			"USDCAD": fx("USD", "CAD"),
			"USDCHF": fx("USD", "CHF"),
			"USDJPY": fx("USD", "JPY"),
			"EURGBP": fx("EUR", "GBP"),
			"EURJPY": fx("EUR", "JPY"),
			"GBPJPY": fx("GBP", "JPY"),
			"AUDJPY": fx("AUD", "JPY"),
			"NZDJPY": fx("NZD", "JPY"),
			"XAUUSD": contract("XAU", "USD", 100.0, 0.01, 0.01),
			"BTCUSD": contract("BTC", "USD", 1.0, 0.01, 0.01),
			"ETHUSD": contract("ETH", "USD", 1.0, 0.1, 0.1),
		},
		DailyProfitTarget:        1000.0,
		PostTargetRiskMultiplier: 0.5,
		SwingHold:                "6h",
		LeaseTTL:                 "90s",
		MaxReclaims:              3,
		SubmitAttempts:           5,
	}
	// Validate cannot fail on the built-in values.
	if err := p.Validate(); err != nil {
		panic(fmt.Sprintf("default policy invalid: %v", err))
	}
	return p
}

// LoadPolicy reads a YAML policy file over the built-in defaults.
// An empty path returns the defaults unchanged.
func LoadPolicy(path string) (*Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %q: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("policy file %q: %w", path, err)
	}
	return p, nil
}

// Validate checks invariants and resolves the duration fields.
func (p *Policy) Validate() error {
	var errs []string

	if len(p.Tiers) == 0 {
		errs = append(errs, "tiers must not be empty")
	}
	prev := 0.0
	for i, t := range p.Tiers {
		last := i == len(p.Tiers)-1
		if !last && t.MaxDrawdownPct <= prev {
			errs = append(errs, fmt.Sprintf("tiers[%d] bound %.2f not ascending", i, t.MaxDrawdownPct))
		}
		if t.Multiplier <= 0 || t.Multiplier > 1 {
			errs = append(errs, fmt.Sprintf("tiers[%d] multiplier %.2f outside (0,1]", i, t.Multiplier))
		}
		prev = t.MaxDrawdownPct
	}

	for phase, b := range p.Phases {
		if b.MinRiskPct <= 0 || b.MaxRiskPct <= 0 || b.MinRiskPct > b.MaxRiskPct {
			errs = append(errs, fmt.Sprintf("phase %s risk bounds [%.2f, %.2f] invalid", phase, b.MinRiskPct, b.MaxRiskPct))
		}
		if b.DrawdownMode != domain.DrawdownStatic && b.DrawdownMode != domain.DrawdownTrailing {
			errs = append(errs, fmt.Sprintf("phase %s drawdown mode %q invalid", phase, b.DrawdownMode))
		}
	}

	if p.MaxDailyDrawdownPct <= 0 {
		errs = append(errs, "max_daily_drawdown_pct must be positive")
	}
	if p.MaxTotalDrawdownPct <= 0 {
		errs = append(errs, "max_total_drawdown_pct must be positive")
	}
	if p.ExposureThreshold <= 0 {
		errs = append(errs, "exposure_threshold must be positive")
	}
	if p.MaxReclaims < 0 {
		errs = append(errs, "max_reclaims cannot be negative")
	}
	if p.SubmitAttempts <= 0 {
		errs = append(errs, "submit_attempts must be positive")
	}
	for sym, spec := range p.Symbols {
		if len(spec.Legs) != 2 {
			errs = append(errs, fmt.Sprintf("symbol %s must decompose into exactly two currency legs", sym))
		}
		if spec.PointValue <= 0 {
			errs = append(errs, fmt.Sprintf("symbol %s point_value must be positive", sym))
		}
	}

	var err error
	p.swingHold, err = time.ParseDuration(p.SwingHold)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid swing_hold %q: %v", p.SwingHold, err))
	}
	p.leaseTTL, err = time.ParseDuration(p.LeaseTTL)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid lease_ttl %q: %v", p.LeaseTTL, err))
	} else if p.leaseTTL <= 0 {
		errs = append(errs, "lease_ttl must be positive")
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("policy validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// TierMultiplier returns the step-function multiplier for a total
// drawdown percentage. Boundaries are closed on the lower edge: a
// drawdown of exactly 1.0% lands in the second tier.
func (p *Policy) TierMultiplier(totalDrawdownPct float64) float64 {
	for i, t := range p.Tiers {
		if i == len(p.Tiers)-1 || totalDrawdownPct < t.MaxDrawdownPct {
			return t.Multiplier
		}
	}
	return p.Tiers[len(p.Tiers)-1].Multiplier
}

// Bounds returns the risk bounds for a phase.
func (p *Policy) Bounds(phase domain.Phase) (PhaseBounds, bool) {
	b, ok := p.Phases[phase]
	return b, ok
}

// Symbol returns the instrument spec for a symbol.
func (p *Policy) Symbol(symbol string) (SymbolSpec, bool) {
	s, ok := p.Symbols[symbol]
	return s, ok
}

// SwingHoldDuration returns the parsed swing protection hold time.
func (p *Policy) SwingHoldDuration() time.Duration { return p.swingHold }

// LeaseTTLDuration returns the parsed queue lease TTL.
func (p *Policy) LeaseTTLDuration() time.Duration { return p.leaseTTL }
