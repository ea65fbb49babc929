// Package risk gates order notionals before they reach the venue.
package risk

import "fmt"

// Limits bounds the notional of a single order. Zero disables a bound.
type Limits struct {
	MaxNotionalPerTrade float64
	MinNotionalPerTrade float64
}

// Allow reports whether the notional passes both bounds.
func (l Limits) Allow(notional float64) bool {
	return l.Check(notional) == nil
}

// Check explains why a notional is refused.
func (l Limits) Check(notional float64) error {
	if l.MaxNotionalPerTrade > 0 && notional > l.MaxNotionalPerTrade {
		return fmt.Errorf("notional %.2f above max %.2f", notional, l.MaxNotionalPerTrade)
	}
	if l.MinNotionalPerTrade > 0 && notional < l.MinNotionalPerTrade {
		return fmt.Errorf("notional %.2f below min %.2f", notional, l.MinNotionalPerTrade)
	}
	return nil
}

// Clamp shrinks a buy notional to the max bound so oversized targets are partially filled.
func (l Limits) Clamp(notional float64) float64 {
	if l.MaxNotionalPerTrade > 0 && notional > l.MaxNotionalPerTrade {
		return l.MaxNotionalPerTrade
	}
	return notional
}
