package strategy

import (
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"momentum-rebalancer/internal/market"
)

// WindowSource serves read-only price windows as of the current bar.
type WindowSource interface {
	Window(asset market.Asset, length int) market.PriceWindow
}

// Ranking is one scored entry of a snapshot. Rank starts at 1.
type Ranking struct {
	Asset market.Asset
	Score float64
	Rank  int
}

// RankingSnapshot is the immutable result of one ranking pass, best score first.
type RankingSnapshot struct {
	AsOf    int
	Time    time.Time
	entries []Ranking
	index   map[market.Asset]int
}

// Len returns the number of eligible assets.
func (s RankingSnapshot) Len() int { return len(s.entries) }

// Entries returns a copy of the ranked entries.
func (s RankingSnapshot) Entries() []Ranking {
	out := make([]Ranking, len(s.entries))
	copy(out, s.entries)
	return out
}

// Lookup returns the ranking of an asset if it was eligible.
func (s RankingSnapshot) Lookup(asset market.Asset) (Ranking, bool) {
	i, ok := s.index[asset]
	if !ok {
		return Ranking{}, false
	}
	return s.entries[i], true
}

// Top returns up to n best-ranked entries.
func (s RankingSnapshot) Top(n int) []Ranking {
	if n > len(s.entries) {
		n = len(s.entries)
	}
	if n <= 0 {
		return nil
	}
	out := make([]Ranking, n)
	copy(out, s.entries[:n])
	return out
}

// SelectionPolicy sizes the selection either by absolute count or as a share of the universe.
// Exactly one of the two fields is expected to be set; config validation enforces it.
type SelectionPolicy struct {
	Size       int
	Percentage float64
}

// Count returns how many assets to hold for a universe of n assets.
func (p SelectionPolicy) Count(n int) int {
	if n <= 0 {
		return 0
	}
	if p.Size > 0 {
		return p.Size
	}
	count := int(float64(n) * p.Percentage)
	if count < 1 {
		count = 1
	}
	if count > n {
		count = n
	}
	return count
}

// Ranker orders the universe by momentum, highest first.
type Ranker struct {
	scorer Scorer
	period int
	policy SelectionPolicy
	log    zerolog.Logger
}

// NewRanker builds a ranker scoring period-length windows.
func NewRanker(scorer Scorer, period int, policy SelectionPolicy, log zerolog.Logger) *Ranker {
	if period < 2 {
		period = 2
	}
	return &Ranker{scorer: scorer, period: period, policy: policy, log: log}
}

// Period returns the momentum lookback in bars.
func (r *Ranker) Period() int { return r.period }

// SelectionSize applies the selection policy to a universe of n assets.
func (r *Ranker) SelectionSize(n int) int { return r.policy.Count(n) }

// Rank scores every asset in the universe. Assets without a full window are skipped silently,
// bad price data is skipped with a warning. Ties keep symbol order.
func (r *Ranker) Rank(universe []market.Asset, windows WindowSource, asOf int, ts time.Time) RankingSnapshot {
	assets := make([]market.Asset, len(universe))
	copy(assets, universe)
	sort.Slice(assets, func(i, j int) bool { return assets[i] < assets[j] })

	entries := make([]Ranking, 0, len(assets))
	for _, asset := range assets {
		window := windows.Window(asset, r.period)
		if len(window) < r.period {
			continue
		}
		score, err := r.scorer.Score(window)
		if err != nil {
			if errors.Is(err, ErrInvalidPriceData) {
				r.log.Warn().Err(err).Str("asset", string(asset)).Msg("skipping asset with bad price data")
			}
			continue
		}
		entries = append(entries, Ranking{Asset: asset, Score: score})
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	index := make(map[market.Asset]int, len(entries))
	for i := range entries {
		entries[i].Rank = i + 1
		index[entries[i].Asset] = i
	}
	return RankingSnapshot{AsOf: asOf, Time: ts, entries: entries, index: index}
}
