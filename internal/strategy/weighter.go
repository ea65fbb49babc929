package strategy

import (
	"fmt"
	"math"
	"sort"

	"momentum-rebalancer/internal/market"
)

// TargetWeights maps each asset to its target fraction of equity. Missing assets target zero.
type TargetWeights map[market.Asset]float64

// Sum returns the total allocated fraction.
func (t TargetWeights) Sum() float64 {
	var s float64
	for _, w := range t {
		s += w
	}
	return s
}

// Assets lists the table keys in symbol order.
func (t TargetWeights) Assets() []market.Asset {
	out := make([]market.Asset, 0, len(t))
	for a := range t {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Weighter allocates inverse-volatility weights, leaving a reserve unallocated and capping each stake.
type Weighter struct {
	reserve  float64
	maxStake float64
}

// NewWeighter validates the reserve/stake pair; an infeasible pair is a configuration error.
func NewWeighter(reserve, maxStake float64) (Weighter, error) {
	if reserve < 0 || reserve >= 1 {
		return Weighter{}, fmt.Errorf("reserve fraction %.4f outside [0,1)", reserve)
	}
	if maxStake <= 0 || maxStake > 1 {
		return Weighter{}, fmt.Errorf("maximum stake %.4f outside (0,1]", maxStake)
	}
	return Weighter{reserve: reserve, maxStake: maxStake}, nil
}

// Reserve returns the unallocated fraction.
func (w Weighter) Reserve() float64 { return w.reserve }

// MaxStake returns the per-asset cap.
func (w Weighter) MaxStake() float64 { return w.maxStake }

// Weights normalises 1/vol over the candidates so the valid weights sum to 1−reserve, then caps
// each at the maximum stake. Capped excess is not redistributed. Candidates with degenerate
// volatility get weight 0 and stay out of the denominator.
func (w Weighter) Weights(candidates []market.Asset, vols map[market.Asset]float64) TargetWeights {
	out := make(TargetWeights, len(candidates))
	inverse := make(map[market.Asset]float64, len(candidates))
	var sum float64
	for _, asset := range candidates {
		out[asset] = 0
		iv, err := inverseVolatility(vols[asset])
		if err != nil {
			continue
		}
		inverse[asset] = iv
		sum += iv
	}
	if sum == 0 || math.IsInf(sum, 0) {
		return out
	}

	// the reserve occupies its share of the denominator: sum + reserve·denominator
	denominator := sum / (1 - w.reserve)
	for asset, iv := range inverse {
		out[asset] = math.Min(iv/denominator, w.maxStake)
	}
	return out
}

func inverseVolatility(vol float64) (float64, error) {
	if math.IsNaN(vol) || math.IsInf(vol, 0) || vol <= 0 {
		return 0, ErrDegenerateVolatility
	}
	iv := 1 / vol
	if math.IsInf(iv, 0) || math.IsNaN(iv) {
		return 0, ErrDegenerateVolatility
	}
	return iv, nil
}
