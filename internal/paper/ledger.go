package paper

import (
	"sync"

	"momentum-rebalancer/internal/execution"
	"momentum-rebalancer/internal/market"
)

// Ledger stores paper fills in memory and keeps running trade statistics.
type Ledger struct {
	mu         sync.Mutex
	fills      []execution.Fill
	commission float64
	turnover   float64
	perAsset   map[market.Asset]int
}

// LedgerStats summarises recorded fills. Zero-quantity acknowledgements are not trades.
type LedgerStats struct {
	Trades     int
	Commission float64
	Turnover   float64
	Assets     int
}

// NewLedger creates an empty ledger optionally pre-sizing storage.
func NewLedger(capacity int) *Ledger {
	if capacity < 0 {
		capacity = 0
	}
	return &Ledger{
		fills:    make([]execution.Fill, 0, capacity),
		perAsset: make(map[market.Asset]int),
	}
}

// Record appends a fill to the ledger.
func (l *Ledger) Record(fill execution.Fill) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fills = append(l.fills, fill)
	if fill.Qty <= 0 {
		return
	}
	l.commission += fill.Commission
	l.turnover += fill.Notional()
	l.perAsset[fill.Asset]++
}

// Snapshot returns a copy of the recorded fills.
func (l *Ledger) Snapshot() []execution.Fill {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]execution.Fill, len(l.fills))
	copy(out, l.fills)
	return out
}

// Stats returns the running totals.
func (l *Ledger) Stats() LedgerStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	trades := 0
	for _, n := range l.perAsset {
		trades += n
	}
	return LedgerStats{
		Trades:     trades,
		Commission: l.commission,
		Turnover:   l.turnover,
		Assets:     len(l.perAsset),
	}
}

// Reset clears all stored fills and totals.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.fills = l.fills[:0]
	l.commission = 0
	l.turnover = 0
	l.perAsset = make(map[market.Asset]int)
	l.mu.Unlock()
}
