// Package market holds the bar and price-window payloads shared by data sources, the host simulator and the rebalancing core.
package market

import "time"

// Asset identifies a tradable symbol such as "BTCUSDT".
type Asset string

// Bar is one discrete OHLCV observation for a single asset.
type Bar struct {
	Asset  Asset
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// PriceWindow is an oldest-first snapshot of closing prices. Consumers must treat it as read-only.
type PriceWindow []float64

// Last returns the most recent close, or zero for an empty window.
func (w PriceWindow) Last() float64 {
	if len(w) == 0 {
		return 0
	}
	return w[len(w)-1]
}
