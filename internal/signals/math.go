// Package signals holds the numeric helpers shared by the screening rules,
// the return ranker and the report summary.
package signals

import "math"

// Round rounds to specified decimal places
func Round(value float64, places int) float64 {
	mult := math.Pow(10, float64(places))
	return math.Round(value*mult) / mult
}

// Avg calculates the average of all values
func Avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return Sum(values) / float64(len(values))
}

// Sum adds all values
func Sum(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum
}

// DailyReturns returns close-to-close simple returns (0.01 = 1%).
// A non-positive base close yields ok=false.
func DailyReturns(closes []float64) (returns []float64, ok bool) {
	if len(closes) < 2 {
		return nil, false
	}
	returns = make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 {
			return nil, false
		}
		returns = append(returns, closes[i]/closes[i-1]-1)
	}
	return returns, true
}

// CompoundReturnPct compounds daily returns: (prod(1+r) - 1) * 100.
func CompoundReturnPct(returns []float64) float64 {
	growth := 1.0
	for _, r := range returns {
		growth *= 1 + r
	}
	return (growth - 1) * 100
}
