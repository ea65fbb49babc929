package exchange

import (
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"momentum-rebalancer/internal/market"
)

// stubWalk produces a deterministic geometric random walk per asset, each asset with its own drift.
type stubWalk struct {
	rng   *rand.Rand
	price map[market.Asset]float64
}

func newStubWalk(seed int64) *stubWalk {
	return &stubWalk{rng: rand.New(rand.NewSource(seed)), price: make(map[market.Asset]float64)}
}

func (w *stubWalk) next(asset market.Asset, ts time.Time) market.Bar {
	h := fnv.New32a()
	_, _ = h.Write([]byte(asset))
	sum := h.Sum32()
	px, ok := w.price[asset]
	if !ok {
		px = 10 + float64(sum%990)
	}
	drift := (float64(sum%21) - 10) / 2000
	ret := drift + w.rng.NormFloat64()*0.02
	next := px * math.Exp(ret)
	w.price[asset] = next
	hi, lo := math.Max(px, next), math.Min(px, next)
	return market.Bar{
		Asset:  asset,
		Time:   ts,
		Open:   px,
		High:   hi * (1 + math.Abs(w.rng.NormFloat64())*0.005),
		Low:    lo * (1 - math.Abs(w.rng.NormFloat64())*0.005),
		Close:  next,
		Volume: 1000 + float64(w.rng.Intn(9000)),
	}
}

// StubBars generates n bars per symbol spaced by step from start, ordered by time then symbol.
// The same seed always yields the same series.
func StubBars(symbols []string, start time.Time, step time.Duration, n int, seed int64) []market.Bar {
	walk := newStubWalk(seed)
	assets := make([]market.Asset, 0, len(symbols))
	for _, s := range symbols {
		if sym := NormalizeSymbol(s); sym != "" {
			assets = append(assets, market.Asset(sym))
		}
	}
	sortAssets(assets)
	out := make([]market.Bar, 0, n*len(assets))
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * step)
		for _, a := range assets {
			out = append(out, walk.next(a, ts))
		}
	}
	return out
}
