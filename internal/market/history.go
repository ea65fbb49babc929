package market

import (
	"sort"
	"time"
)

// History keeps a fixed-size ring of closes per asset. It is owned by the host simulator and
// serves windows to the rebalancing core; it is not safe for concurrent use.
type History struct {
	capacity int
	grace    time.Duration
	series   map[Asset]*closeRing
}

type closeRing struct {
	closes   []float64
	next     int
	count    int
	lastTime time.Time
}

// NewHistory builds a history retaining at most capacity closes per asset.
func NewHistory(capacity int) *History {
	if capacity < 2 {
		capacity = 2
	}
	return &History{capacity: capacity, series: make(map[Asset]*closeRing)}
}

// Capacity reports the per-asset ring size.
func (h *History) Capacity() int { return h.capacity }

// SetGrace lets an asset whose latest bar lags asOf by at most d stay in the universe. Live feeds
// use one bar interval so a late kline does not drop the asset for that bar.
func (h *History) SetGrace(d time.Duration) {
	if d < 0 {
		d = 0
	}
	h.grace = d
}

// Push appends the bar's close to its asset ring, evicting the oldest close when full. A timed
// bar that is not newer than the asset's last bar is dropped.
func (h *History) Push(bar Bar) {
	if bar.Asset == "" {
		return
	}
	ring := h.series[bar.Asset]
	if ring == nil {
		ring = &closeRing{closes: make([]float64, h.capacity)}
		h.series[bar.Asset] = ring
	}
	if ring.count > 0 && !bar.Time.IsZero() && !bar.Time.After(ring.lastTime) {
		return
	}
	ring.closes[ring.next] = bar.Close
	ring.next = (ring.next + 1) % h.capacity
	if ring.count < h.capacity {
		ring.count++
	}
	ring.lastTime = bar.Time
}

// Len returns how many closes are currently stored for the asset.
func (h *History) Len(asset Asset) int {
	if ring := h.series[asset]; ring != nil {
		return ring.count
	}
	return 0
}

// Window copies out the most recent length closes, oldest first. The result is shorter than
// length when the asset has not accumulated enough history.
func (h *History) Window(asset Asset, length int) PriceWindow {
	ring := h.series[asset]
	if ring == nil || length <= 0 {
		return nil
	}
	n := length
	if n > ring.count {
		n = ring.count
	}
	out := make(PriceWindow, n)
	start := ring.next - n
	if start < 0 {
		start += h.capacity
	}
	for i := 0; i < n; i++ {
		out[i] = ring.closes[(start+i)%h.capacity]
	}
	return out
}

// Close returns the latest close for the asset.
func (h *History) Close(asset Asset) (float64, bool) {
	ring := h.series[asset]
	if ring == nil || ring.count == 0 {
		return 0, false
	}
	idx := ring.next - 1
	if idx < 0 {
		idx += h.capacity
	}
	return ring.closes[idx], true
}

// Marks returns the latest close of every asset keyed by symbol.
func (h *History) Marks() map[Asset]float64 {
	out := make(map[Asset]float64, len(h.series))
	for asset := range h.series {
		if px, ok := h.Close(asset); ok {
			out[asset] = px
		}
	}
	return out
}

// Universe lists, in symbol order, the assets that are live as of asOf: their latest bar is not
// after asOf and not older than asOf minus the grace period. An asset that stops printing bars
// drops out. A zero asOf lists every asset.
func (h *History) Universe(asOf time.Time) []Asset {
	out := make([]Asset, 0, len(h.series))
	for asset, ring := range h.series {
		if ring.count == 0 {
			continue
		}
		if !asOf.IsZero() && !ring.lastTime.IsZero() {
			if ring.lastTime.After(asOf) || ring.lastTime.Add(h.grace).Before(asOf) {
				continue
			}
		}
		out = append(out, asset)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
