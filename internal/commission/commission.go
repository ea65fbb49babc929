// Package commission prices venue fees on fills.
package commission

import (
	"math"

	"github.com/shopspring/decimal"
)

// DefaultRate is the Binance spot taker fee.
const DefaultRate = 0.001

// Model computes the fee for a fill.
type Model interface {
	Fee(qty, price float64) float64
}

// Percent charges a fixed fraction of notional. Arithmetic runs in decimal so repeated
// small fills do not drift.
type Percent struct {
	rate decimal.Decimal
}

// New picks the model for a configured rate: zero means no fees.
func New(rate float64) Model {
	if rate == 0 {
		return Free{}
	}
	return NewPercent(rate)
}

// NewPercent builds a percentage model. A negative or non-finite rate falls back to DefaultRate;
// zero charges nothing.
func NewPercent(rate float64) Percent {
	if rate < 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		rate = DefaultRate
	}
	return Percent{rate: decimal.NewFromFloat(rate)}
}

// Rate returns the configured fraction.
func (p Percent) Rate() float64 { return p.rate.InexactFloat64() }

// Fee returns |qty·price|·rate rounded to 8 places.
func (p Percent) Fee(qty, price float64) float64 {
	notional := decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(price)).Abs()
	return notional.Mul(p.rate).Round(8).InexactFloat64()
}

// Free charges nothing.
type Free struct{}

// Fee always returns zero.
func (Free) Fee(float64, float64) float64 { return 0 }
