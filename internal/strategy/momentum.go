// Package strategy contains the scoring, ranking and weighting math behind the rebalancer.
package strategy

import (
	"errors"
	"math"

	"momentum-rebalancer/internal/market"
)

var (
	// ErrInsufficientHistory marks an asset whose window is too short to score.
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrInvalidPriceData marks a window holding a non-positive or non-finite price.
	ErrInvalidPriceData = errors.New("invalid price data")
	// ErrDegenerateVolatility marks a NaN, zero or infinite volatility estimate.
	ErrDegenerateVolatility = errors.New("degenerate volatility")
)

// Scorer turns a price window into a scalar momentum score.
type Scorer interface {
	Score(window market.PriceWindow) (float64, error)
	Name() string
}

// RegressionMomentum scores the annualised slope of ln(price) against bar index, weighted by R².
type RegressionMomentum struct {
	periods float64
}

// NewRegressionMomentum builds the scorer compounding the per-bar slope over annualPeriods bars.
func NewRegressionMomentum(annualPeriods int) *RegressionMomentum {
	if annualPeriods <= 0 {
		annualPeriods = 365
	}
	return &RegressionMomentum{periods: float64(annualPeriods)}
}

// Name returns the identifier used in config and logs.
func (m *RegressionMomentum) Name() string { return "regression" }

// Score fits ln(price) = a + b·i and returns (exp(b)^periods − 1)·100·R².
func (m *RegressionMomentum) Score(window market.PriceWindow) (float64, error) {
	slope, r2, err := logRegression(window)
	if err != nil {
		return 0, err
	}
	if r2 == 0 {
		return 0, nil
	}
	annualized := (math.Exp(slope*m.periods) - 1) * 100
	return annualized * r2, nil
}

// logRegression returns the least-squares slope and coefficient of determination of ln(price)
// against 0..n-1. A window with no variance in either axis has R² = 0.
func logRegression(window market.PriceWindow) (slope, r2 float64, err error) {
	n := len(window)
	if n < 2 {
		return 0, 0, ErrInsufficientHistory
	}
	logs := make([]float64, n)
	var meanX, meanY float64
	for i, px := range window {
		if px <= 0 || math.IsNaN(px) || math.IsInf(px, 0) {
			return 0, 0, ErrInvalidPriceData
		}
		logs[i] = math.Log(px)
		meanX += float64(i)
		meanY += logs[i]
	}
	meanX /= float64(n)
	meanY /= float64(n)

	var sxx, syy, sxy float64
	for i, y := range logs {
		dx := float64(i) - meanX
		dy := y - meanY
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}
	slope = sxy / sxx
	if syy == 0 {
		return slope, 0, nil
	}
	r2 = (sxy * sxy) / (sxx * syy)
	if r2 > 1 {
		r2 = 1
	}
	return slope, r2, nil
}
