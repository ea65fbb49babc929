package strategy

import (
	"math"

	"momentum-rebalancer/internal/market"
)

// RateOfChange scores the percent change between the first and last close of the window.
type RateOfChange struct{}

// NewRateOfChange builds the rate-of-change scorer.
func NewRateOfChange() *RateOfChange { return &RateOfChange{} }

// Name returns the configured identifier for logging.
func (r *RateOfChange) Name() string { return "roc" }

// Score returns (last/first − 1)·100.
func (r *RateOfChange) Score(window market.PriceWindow) (float64, error) {
	if len(window) < 2 {
		return 0, ErrInsufficientHistory
	}
	for _, px := range window {
		if px <= 0 || math.IsNaN(px) || math.IsInf(px, 0) {
			return 0, ErrInvalidPriceData
		}
	}
	oldest, latest := window[0], window.Last()
	return (latest/oldest - 1) * 100, nil
}
