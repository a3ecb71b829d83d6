// Package simterminal provides an in-process execution terminal for
// dry runs and tests. Fills are immediate at the current mark plus a
// fixed slippage, and marks follow a small random walk so that equity
// refresh and drawdown tracking have something to chew on.
package simterminal

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"atrx/internal/domain"
	"atrx/internal/ports"
)

// Terminal simulates an execution venue. Safe for concurrent use.
type Terminal struct {
	mu       sync.Mutex
	marks    map[string]float64
	slippage float64       // fractional slippage applied against the taker
	latency  time.Duration // simulated venue round-trip
	rejects  map[string]string
	rng      *rand.Rand
	logger   ports.Logger
}

// Config configures the simulated terminal.
type Config struct {
	// Marks seeds the initial mark price per symbol. Symbols not listed
	// here are unknown to the venue and orders for them are rejected.
	Marks map[string]float64

	// Slippage is the fractional price penalty per fill, e.g. 0.0001.
	Slippage float64

	// Latency delays every Execute call, zero for tests.
	Latency time.Duration

	// Seed makes the mark walk reproducible; zero uses the clock.
	Seed int64

	Logger ports.Logger
}

// New creates a simulated terminal.
func New(cfg Config) (*Terminal, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("simterminal requires a logger")
	}
	if len(cfg.Marks) == 0 {
		return nil, fmt.Errorf("simterminal requires at least one seeded mark price")
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	marks := make(map[string]float64, len(cfg.Marks))
	for sym, px := range cfg.Marks {
		if px <= 0 {
			return nil, fmt.Errorf("non-positive seed mark for %s", sym)
		}
		marks[sym] = px
	}
	return &Terminal{
		marks:    marks,
		slippage: cfg.Slippage,
		latency:  cfg.Latency,
		rejects:  make(map[string]string),
		rng:      rand.New(rand.NewSource(seed)),
		logger:   cfg.Logger,
	}, nil
}

// RejectNext makes the next order for the given symbol fail with the
// given reason. Used by tests and chaos drills.
func (t *Terminal) RejectNext(symbol, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rejects[symbol] = reason
}

// Execute fills the order at the current mark adjusted for slippage.
func (t *Terminal) Execute(ctx context.Context, order *domain.Order) (domain.OrderResult, error) {
	if t.latency > 0 {
		select {
		case <-ctx.Done():
			return domain.OrderResult{}, ctx.Err()
		case <-time.After(t.latency):
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if reason, ok := t.rejects[order.Symbol]; ok {
		delete(t.rejects, order.Symbol)
		return domain.OrderResult{Reason: reason}, fmt.Errorf("%w: %s", ports.ErrTerminalRejected, reason)
	}

	mark, ok := t.marks[order.Symbol]
	if !ok {
		return domain.OrderResult{Reason: "UNKNOWN_SYMBOL"},
			fmt.Errorf("%w: unknown symbol %s", ports.ErrTerminalRejected, order.Symbol)
	}

	fill := mark
	switch order.Side {
	case domain.Buy:
		fill = mark * (1 + t.slippage)
	case domain.Sell:
		fill = mark * (1 - t.slippage)
	}

	t.logger.Debug(ctx, "Simulated fill", map[string]interface{}{
		"orderID": order.ID, "symbol": order.Symbol, "fillPrice": fill, "size": order.Size,
	})
	return domain.OrderResult{FillPrice: fill, FillSize: order.Size}, nil
}

// MarkPrice returns the current mark for the symbol, advancing it one
// random-walk step per observation.
func (t *Terminal) MarkPrice(ctx context.Context, symbol string) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	mark, ok := t.marks[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: no mark for symbol %s", ports.ErrNotFound, symbol)
	}
	// Up to ±5 bps per step keeps the walk gentle.
	step := (t.rng.Float64() - 0.5) * 0.001
	mark *= 1 + step
	t.marks[symbol] = mark
	return mark, nil
}

// SetMark pins the mark for a symbol. Used by tests.
func (t *Terminal) SetMark(symbol string, price float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.marks[symbol] = price
}
