package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompoundReturnPct(t *testing.T) {
	tests := []struct {
		name     string
		returns  []float64
		expected float64
	}{
		{"up then down", []float64{0.10, -0.05}, 4.5},
		{"single day", []float64{0.10}, 10},
		{"flat", []float64{0, 0, 0}, 0},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CompoundReturnPct(tt.returns), 1e-9)
		})
	}
}

func TestDailyReturns(t *testing.T) {
	returns, ok := DailyReturns([]float64{100, 110, 104.5})
	assert.True(t, ok)
	assert.InDeltaSlice(t, []float64{0.10, -0.05}, returns, 1e-9)

	// Compounding daily returns equals last/first - 1
	assert.InDelta(t, 4.5, CompoundReturnPct(returns), 1e-9)

	_, ok = DailyReturns([]float64{100})
	assert.False(t, ok)

	_, ok = DailyReturns([]float64{0, 10})
	assert.False(t, ok)
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, 1.23, Round(1.2345, 2))
	assert.Equal(t, 2.0, Avg([]float64{1, 2, 3}))
	assert.Equal(t, 0.0, Avg(nil))
	assert.Equal(t, 6.0, Sum([]float64{1, 2, 3}))
}
