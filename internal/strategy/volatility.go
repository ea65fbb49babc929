package strategy

import (
	"math"

	"momentum-rebalancer/internal/market"
)

// VolatilityEstimator measures the sample standard deviation of percentage returns over a fixed period.
type VolatilityEstimator struct {
	period int
}

// NewVolatilityEstimator builds an estimator over period returns (period+1 closes).
func NewVolatilityEstimator(period int) VolatilityEstimator {
	if period < 2 {
		period = 2
	}
	return VolatilityEstimator{period: period}
}

// Period returns the number of returns the estimate spans.
func (v VolatilityEstimator) Period() int { return v.period }

// WindowLength returns how many closes a full estimate needs.
func (v VolatilityEstimator) WindowLength() int { return v.period + 1 }

// Volatility returns NaN when the window is too short or yields a non-finite return; callers
// must exclude NaN from weighting rather than treat it as zero.
func (v VolatilityEstimator) Volatility(window market.PriceWindow) float64 {
	if len(window) < v.period+1 {
		return math.NaN()
	}
	tail := window[len(window)-v.period-1:]
	returns := make([]float64, v.period)
	var mean float64
	for i := 1; i < len(tail); i++ {
		r := tail[i]/tail[i-1] - 1
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return math.NaN()
		}
		returns[i-1] = r
		mean += r
	}
	mean /= float64(v.period)

	var ss float64
	for _, r := range returns {
		d := r - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(v.period-1))
}
