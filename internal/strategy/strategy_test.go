package strategy

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momentum-rebalancer/internal/market"
)

type staticWindows map[market.Asset]market.PriceWindow

func (s staticWindows) Window(asset market.Asset, length int) market.PriceWindow {
	w := s[asset]
	if len(w) > length {
		w = w[len(w)-length:]
	}
	return w
}

func TestRegressionMomentumExponentialSeries(t *testing.T) {
	window := make(market.PriceWindow, 10)
	for i := range window {
		window[i] = 100 * math.Exp(0.001*float64(i))
	}
	score, err := NewRegressionMomentum(365).Score(window)
	require.NoError(t, err)
	assert.InDelta(t, (math.Exp(0.365)-1)*100, score, 1e-6)
}

func TestRegressionMomentumFlatSeriesScoresZero(t *testing.T) {
	score, err := NewRegressionMomentum(0).Score(market.PriceWindow{5, 5, 5, 5})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestRegressionMomentumRejectsBadWindows(t *testing.T) {
	m := NewRegressionMomentum(365)
	_, err := m.Score(market.PriceWindow{1})
	assert.ErrorIs(t, err, ErrInsufficientHistory)
	_, err = m.Score(market.PriceWindow{1, 0, 2})
	assert.ErrorIs(t, err, ErrInvalidPriceData)
	_, err = m.Score(market.PriceWindow{1, math.NaN(), 2})
	assert.ErrorIs(t, err, ErrInvalidPriceData)
}

func TestRegressionMomentumMonotonicInSlope(t *testing.T) {
	m := NewRegressionMomentum(365)
	prev := math.Inf(-1)
	for _, g := range []float64{-0.02, -0.005, 0.001, 0.004, 0.01} {
		window := make(market.PriceWindow, 20)
		for i := range window {
			window[i] = 50 * math.Exp(g*float64(i))
		}
		score, err := m.Score(window)
		require.NoError(t, err)
		assert.Greater(t, score, prev, "growth %.3f", g)
		prev = score
	}
}

func TestRegressionMomentumFallsAsFitLoosens(t *testing.T) {
	m := NewRegressionMomentum(365)
	// residual pattern orthogonal to the intercept and the index, so the fitted slope stays 0.01
	residual := []float64{1, -2, 0, 2, -1}
	prev := math.Inf(1)
	for _, noise := range []float64{0, 0.002, 0.005, 0.01, 0.02} {
		window := make(market.PriceWindow, len(residual))
		for i := range window {
			window[i] = 50 * math.Exp(0.01*float64(i)+noise*residual[i])
		}
		score, err := m.Score(window)
		require.NoError(t, err)
		assert.Greater(t, score, 0.0, "noise %.3f", noise)
		assert.Less(t, score, prev, "noise %.3f", noise)
		prev = score
	}
}

func TestRateOfChange(t *testing.T) {
	score, err := NewRateOfChange().Score(market.PriceWindow{100, 90, 120})
	require.NoError(t, err)
	assert.InDelta(t, 20.0, score, 1e-9)
}

func TestVolatilitySampleStd(t *testing.T) {
	v := NewVolatilityEstimator(2)
	assert.Equal(t, 3, v.WindowLength())
	got := v.Volatility(market.PriceWindow{100, 110, 99})
	assert.InDelta(t, math.Sqrt(0.02), got, 1e-12)
	assert.Equal(t, 0.0, v.Volatility(market.PriceWindow{7, 7, 7}))
}

func TestVolatilityShortWindowIsNaN(t *testing.T) {
	v := NewVolatilityEstimator(5)
	assert.True(t, math.IsNaN(v.Volatility(market.PriceWindow{1, 2, 3})))
	assert.True(t, math.IsNaN(v.Volatility(market.PriceWindow{1, 0, 3, 4, 5, 6})))
}

func TestRankerOrdersDescending(t *testing.T) {
	windows := staticWindows{
		"X": {1, 2, 3},
		"Y": {2, 2, 2},
		"Z": {3, 2, 1},
	}
	r := NewRanker(NewRegressionMomentum(365), 3, SelectionPolicy{Size: 2}, zerolog.Nop())
	snap := r.Rank([]market.Asset{"Z", "Y", "X"}, windows, 3, time.Time{})

	require.Equal(t, 3, snap.Len())
	order := make([]market.Asset, 0, 3)
	for _, e := range snap.Entries() {
		order = append(order, e.Asset)
	}
	assert.Equal(t, []market.Asset{"X", "Y", "Z"}, order)

	x, ok := snap.Lookup("X")
	require.True(t, ok)
	assert.Equal(t, 1, x.Rank)
	assert.Len(t, snap.Top(r.SelectionSize(3)), 2)
}

func TestRankerExcludesShortAndInvalidHistory(t *testing.T) {
	windows := staticWindows{
		"A": {1, 1.1, 1.2, 1.3},
		"B": {1, 1.1},
		"C": {1, -1, 1.2, 1.3},
	}
	r := NewRanker(NewRegressionMomentum(365), 4, SelectionPolicy{Size: 1}, zerolog.Nop())
	snap := r.Rank([]market.Asset{"A", "B", "C"}, windows, 10, time.Time{})

	assert.Equal(t, 1, snap.Len())
	_, ok := snap.Lookup("B")
	assert.False(t, ok)
	_, ok = snap.Lookup("C")
	assert.False(t, ok)
}

func TestRankerTiesKeepSymbolOrder(t *testing.T) {
	windows := staticWindows{
		"BBB": {4, 4, 4},
		"AAA": {4, 4, 4},
	}
	r := NewRanker(NewRateOfChange(), 3, SelectionPolicy{Size: 1}, zerolog.Nop())
	snap := r.Rank([]market.Asset{"BBB", "AAA"}, windows, 0, time.Time{})
	top := snap.Top(1)
	require.Len(t, top, 1)
	assert.Equal(t, market.Asset("AAA"), top[0].Asset)
}

func TestSelectionPolicyCount(t *testing.T) {
	assert.Equal(t, 3, SelectionPolicy{Size: 3}.Count(10))
	assert.Equal(t, 2, SelectionPolicy{Percentage: 0.25}.Count(10))
	assert.Equal(t, 1, SelectionPolicy{Percentage: 0.01}.Count(10))
	assert.Equal(t, 0, SelectionPolicy{Percentage: 0.5}.Count(0))
}

func TestWeighterExcludesDegenerateVolatility(t *testing.T) {
	w, err := NewWeighter(0.1, 1)
	require.NoError(t, err)
	weights := w.Weights([]market.Asset{"X", "Y", "Z"}, map[market.Asset]float64{
		"X": 0.1,
		"Y": 0.2,
		"Z": 0,
	})

	assert.InDelta(t, 0.6, weights["X"], 1e-9)
	assert.InDelta(t, 0.3, weights["Y"], 1e-9)
	assert.Equal(t, 0.0, weights["Z"])
	assert.InDelta(t, 0.9, weights.Sum(), 1e-9)
}

func TestWeighterCapsWithoutRedistribution(t *testing.T) {
	w, err := NewWeighter(0.1, 0.5)
	require.NoError(t, err)
	weights := w.Weights([]market.Asset{"X", "Y"}, map[market.Asset]float64{"X": 0.1, "Y": 0.2})

	assert.InDelta(t, 0.5, weights["X"], 1e-9)
	assert.InDelta(t, 0.3, weights["Y"], 1e-9)
	assert.LessOrEqual(t, weights.Sum(), 0.9+1e-9)
}

func TestWeighterBounds(t *testing.T) {
	w, err := NewWeighter(0.05, 0.3)
	require.NoError(t, err)
	vols := map[market.Asset]float64{
		"A": 0.01, "B": 0.02, "C": 0.05, "D": math.NaN(), "E": math.Inf(1), "F": -0.1, "G": 0.03,
	}
	candidates := []market.Asset{"A", "B", "C", "D", "E", "F", "G"}
	weights := w.Weights(candidates, vols)

	require.Len(t, weights, len(candidates))
	for asset, v := range weights {
		assert.GreaterOrEqual(t, v, 0.0, string(asset))
		assert.LessOrEqual(t, v, 0.3, string(asset))
	}
	assert.LessOrEqual(t, weights.Sum(), 0.95+1e-9)
	assert.Equal(t, 0.0, weights["D"])
	assert.Equal(t, 0.0, weights["E"])
	assert.Equal(t, 0.0, weights["F"])
}

func TestWeighterAllDegenerate(t *testing.T) {
	w, err := NewWeighter(0, 1)
	require.NoError(t, err)
	weights := w.Weights([]market.Asset{"A"}, map[market.Asset]float64{"A": 0})
	assert.Equal(t, 0.0, weights.Sum())
}

func TestNewWeighterRejectsInfeasibleConfig(t *testing.T) {
	_, err := NewWeighter(1, 0.5)
	assert.Error(t, err)
	_, err = NewWeighter(0.1, 0)
	assert.Error(t, err)
}

func TestBuildScorer(t *testing.T) {
	assert.Equal(t, "regression", Build("", Params{}).Name())
	assert.Equal(t, "roc", Build("ROC", Params{}).Name())
	assert.False(t, KnownMode("obi"))
}
