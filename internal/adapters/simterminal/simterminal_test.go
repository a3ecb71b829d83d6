package simterminal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atrx/internal/domain"
	"atrx/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newTestTerminal(t *testing.T) *Terminal {
	t.Helper()
	term, err := New(Config{
		Marks:    map[string]float64{"EURUSD": 1.0850, "XAUUSD": 2320.0},
		Slippage: 0.0001,
		Seed:     42,
		Logger:   &mockLogger{},
	})
	require.NoError(t, err)
	return term
}

func TestFillAppliesSlippageAgainstTaker(t *testing.T) {
	term := newTestTerminal(t)

	buy, err := term.Execute(context.Background(), &domain.Order{ID: "o1", Symbol: "EURUSD", Side: domain.Buy, Size: 2.0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0850*1.0001, buy.FillPrice, 1e-9)
	assert.Equal(t, 2.0, buy.FillSize)

	sell, err := term.Execute(context.Background(), &domain.Order{ID: "o2", Symbol: "EURUSD", Side: domain.Sell, Size: 1.0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0850*0.9999, sell.FillPrice, 1e-9)
}

func TestUnknownSymbolRejected(t *testing.T) {
	term := newTestTerminal(t)

	result, err := term.Execute(context.Background(), &domain.Order{ID: "o1", Symbol: "USDZZZ", Side: domain.Buy, Size: 1.0})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrTerminalRejected)
	assert.Equal(t, "UNKNOWN_SYMBOL", result.Reason)
}

func TestRejectNextConsumesOneOrder(t *testing.T) {
	term := newTestTerminal(t)
	term.RejectNext("EURUSD", "INSUFFICIENT_MARGIN")

	result, err := term.Execute(context.Background(), &domain.Order{ID: "o1", Symbol: "EURUSD", Side: domain.Buy, Size: 1.0})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrTerminalRejected)
	assert.Equal(t, "INSUFFICIENT_MARGIN", result.Reason)

	// The reject is one-shot; the next order fills.
	_, err = term.Execute(context.Background(), &domain.Order{ID: "o2", Symbol: "EURUSD", Side: domain.Buy, Size: 1.0})
	require.NoError(t, err)
}

func TestMarkPriceWalksGently(t *testing.T) {
	term := newTestTerminal(t)

	for i := 0; i < 50; i++ {
		mark, err := term.MarkPrice(context.Background(), "EURUSD")
		require.NoError(t, err)
		assert.Greater(t, mark, 1.0850*0.95)
		assert.Less(t, mark, 1.0850*1.05)
	}
}

func TestMarkPriceUnknownSymbol(t *testing.T) {
	term := newTestTerminal(t)

	_, err := term.MarkPrice(context.Background(), "USDZZZ")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestSetMarkPinsPrice(t *testing.T) {
	term := newTestTerminal(t)
	term.SetMark("EURUSD", 1.1000)

	fill, err := term.Execute(context.Background(), &domain.Order{ID: "o1", Symbol: "EURUSD", Side: domain.Buy, Size: 1.0})
	require.NoError(t, err)
	assert.InDelta(t, 1.1000*1.0001, fill.FillPrice, 1e-9)
}

func TestConfigValidation(t *testing.T) {
	_, err := New(Config{Marks: map[string]float64{"EURUSD": 1.0850}})
	require.Error(t, err)

	_, err = New(Config{Logger: &mockLogger{}})
	require.Error(t, err)

	_, err = New(Config{Marks: map[string]float64{"EURUSD": -1}, Logger: &mockLogger{}})
	require.Error(t, err)
}
