package intentfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atrx/internal/domain"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func writeIntentFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "intents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReplaysOneBatchPerCall(t *testing.T) {
	path := writeIntentFile(t, `
batches:
  - - symbol: EURUSD
      side: BUY
      riskPct: 1.0
      stopDistance: 0.0050
    - symbol: GBPUSD
      side: sell
      riskPct: 0.75
      stopDistance: 0.0060
  - - symbol: XAUUSD
      side: BUY
      riskPct: 0.5
      stopDistance: 5.0
      meta:
        strategy: breakout
`)
	src, err := New(path, &mockLogger{})
	require.NoError(t, err)

	ctx := context.Background()

	first, err := src.NextIntents(ctx)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "EURUSD", first[0].Symbol)
	assert.Equal(t, domain.Buy, first[0].Side)
	assert.Equal(t, 1.0, first[0].RequestedRiskPct)
	assert.Equal(t, 0.0050, first[0].StopDistance)
	assert.Equal(t, domain.Sell, first[1].Side)

	second, err := src.NextIntents(ctx)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "XAUUSD", second[0].Symbol)
	assert.Equal(t, "breakout", second[0].Meta["strategy"])

	// Exhausted.
	third, err := src.NextIntents(ctx)
	require.NoError(t, err)
	assert.Empty(t, third)
}

func TestEmptyPathNeverEmits(t *testing.T) {
	src, err := New("", &mockLogger{})
	require.NoError(t, err)

	batch, err := src.NextIntents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestInvalidSideRejectedAtLoad(t *testing.T) {
	path := writeIntentFile(t, `
batches:
  - - symbol: EURUSD
      side: HOLD
      riskPct: 1.0
      stopDistance: 0.0050
`)
	_, err := New(path, &mockLogger{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid side")
}

func TestMissingSymbolRejectedAtLoad(t *testing.T) {
	path := writeIntentFile(t, `
batches:
  - - side: BUY
      riskPct: 1.0
      stopDistance: 0.0050
`)
	_, err := New(path, &mockLogger{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing symbol")
}

func TestMissingFileErrors(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope.yaml"), &mockLogger{})
	require.Error(t, err)
}

func TestMalformedYAMLErrors(t *testing.T) {
	path := writeIntentFile(t, "batches: [this is: not: valid")
	_, err := New(path, &mockLogger{})
	require.Error(t, err)
}
