package rebalance

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momentum-rebalancer/internal/execution"
	"momentum-rebalancer/internal/market"
	"momentum-rebalancer/internal/portfolio"
	"momentum-rebalancer/internal/schedule"
	"momentum-rebalancer/internal/signal"
	"momentum-rebalancer/internal/strategy"
)

type submission struct {
	asset  market.Asset
	weight float64
	close  bool
	handle execution.OrderHandle
}

type recordingExecutor struct {
	seq   int
	calls []submission
	fail  map[market.Asset]bool
}

func (r *recordingExecutor) next() execution.OrderHandle {
	r.seq++
	return execution.OrderHandle(fmt.Sprintf("h%d", r.seq))
}

func (r *recordingExecutor) SubmitTargetWeight(asset market.Asset, weight float64) (execution.OrderHandle, error) {
	if r.fail[asset] {
		return "", errors.New("venue down")
	}
	h := r.next()
	r.calls = append(r.calls, submission{asset: asset, weight: weight, handle: h})
	return h, nil
}

func (r *recordingExecutor) SubmitClose(asset market.Asset) (execution.OrderHandle, error) {
	h := r.next()
	r.calls = append(r.calls, submission{asset: asset, close: true, handle: h})
	return h, nil
}

var start = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

func seedHistory(series map[market.Asset][]float64) *market.History {
	h := market.NewHistory(64)
	for asset, closes := range series {
		for i, px := range closes {
			h.Push(market.Bar{Asset: asset, Time: start.AddDate(0, 0, i), Close: px})
		}
	}
	return h
}

func newEngine(t *testing.T, data Data, size int, exec Executor) *Engine {
	t.Helper()
	return newEngineWithVolatility(t, data, size, exec, 3)
}

func newEngineWithVolatility(t *testing.T, data Data, size int, exec Executor, volPeriod int) *Engine {
	t.Helper()
	w, err := strategy.NewWeighter(0.1, 0.6)
	require.NoError(t, err)
	ranker := strategy.NewRanker(strategy.NewRegressionMomentum(365), 5, strategy.SelectionPolicy{Size: size}, zerolog.Nop())
	return New(Components{
		Data:       data,
		Scheduler:  schedule.New(schedule.DefaultConfig()),
		Ranker:     ranker,
		Volatility: strategy.NewVolatilityEstimator(volPeriod),
		Weighter:   w,
		Tracker:    portfolio.NewTracker(zerolog.Nop()),
		Executor:   exec,
	}, 0, zerolog.Nop())
}

func hold(t *testing.T, tr *portfolio.Tracker, asset market.Asset, qty float64) {
	t.Helper()
	h := execution.OrderHandle("seed-" + string(asset))
	require.NoError(t, tr.MarkBuy(asset, h))
	tr.OnFill(execution.Fill{Handle: h, Asset: asset, Side: execution.Buy, Qty: qty})
}

func selection() schedule.Event {
	return schedule.Event{Kind: schedule.PortfolioSelection, Time: start.AddDate(0, 0, 5)}
}

func reweight() schedule.Event {
	return schedule.Event{Kind: schedule.PositionReweight, Time: start.AddDate(0, 0, 5)}
}

var trending = map[market.Asset][]float64{
	"X": {10, 11, 12.5, 13, 14.8, 16},
	"Y": {10, 10.2, 10.3, 10.6, 10.7, 10.9},
	"Z": {10, 9.5, 9.2, 8.8, 8.1, 7.9},
}

func TestSelectionKeepsHeldAssetAndFillsSlate(t *testing.T) {
	exec := &recordingExecutor{}
	e := newEngine(t, seedHistory(trending), 2, exec)
	hold(t, e.Tracker, "Y", 1)

	d := e.Handle(selection())

	require.Len(t, d.Intents, 2)
	assert.Equal(t, market.Asset("Y"), d.Intents[0].Asset)
	assert.Equal(t, signal.Rebalance, d.Intents[0].Action)
	assert.Equal(t, market.Asset("X"), d.Intents[1].Asset)
	assert.Equal(t, signal.Enter, d.Intents[1].Action)
	for _, c := range exec.calls {
		assert.False(t, c.close, "no exit expected for %s", c.asset)
	}
	assert.Equal(t, portfolio.Held, e.Tracker.State("Y"))
	assert.Equal(t, portfolio.PendingBuy, e.Tracker.State("X"))
	assert.LessOrEqual(t, d.Weights.Sum(), 0.9+1e-9)
}

func TestSelectionExitsLaggardsFirst(t *testing.T) {
	exec := &recordingExecutor{}
	e := newEngine(t, seedHistory(trending), 2, exec)
	hold(t, e.Tracker, "Z", 1)

	d := e.Handle(selection())

	require.Len(t, d.Intents, 3)
	assert.Equal(t, signal.Exit, d.Intents[0].Action)
	assert.Equal(t, market.Asset("Z"), d.Intents[0].Asset)
	assert.Zero(t, d.Intents[0].Weight)
	assert.Equal(t, signal.Enter, d.Intents[1].Action)
	assert.Equal(t, market.Asset("X"), d.Intents[1].Asset)
	assert.Equal(t, market.Asset("Y"), d.Intents[2].Asset)
	assert.Equal(t, portfolio.PendingSell, e.Tracker.State("Z"))
}

func TestSelectionRequiresPositiveMomentumForEntry(t *testing.T) {
	exec := &recordingExecutor{}
	e := newEngine(t, seedHistory(trending), 3, exec)

	d := e.Handle(selection())

	for _, in := range d.Intents {
		assert.NotEqual(t, market.Asset("Z"), in.Asset)
	}
	assert.Len(t, d.Intents, 2)
}

func TestInFlightOrdersCountAgainstSlate(t *testing.T) {
	exec := &recordingExecutor{}
	e := newEngine(t, seedHistory(trending), 2, exec)
	hold(t, e.Tracker, "Y", 1)
	require.NoError(t, e.Tracker.MarkBuy("X", "pending-x"))

	d := e.Handle(selection())

	require.Len(t, d.Intents, 1)
	assert.Equal(t, market.Asset("Y"), d.Intents[0].Asset)
	assert.Equal(t, signal.Rebalance, d.Intents[0].Action)
}

func TestDegenerateVolatilityKeepsPosition(t *testing.T) {
	flat := map[market.Asset][]float64{
		"X": trending["X"],
		"F": {5, 5, 5, 5, 5, 5},
	}
	exec := &recordingExecutor{}
	e := newEngine(t, seedHistory(flat), 2, exec)
	hold(t, e.Tracker, "F", 2)

	d := e.Handle(selection())

	assert.Equal(t, 0.0, d.Weights["F"])
	assert.Equal(t, portfolio.Held, e.Tracker.State("F"))
	for _, c := range exec.calls {
		assert.NotEqual(t, market.Asset("F"), c.asset)
	}
	require.Len(t, d.Intents, 1)
	assert.Equal(t, market.Asset("X"), d.Intents[0].Asset)
}

func TestReweightIsIdempotent(t *testing.T) {
	exec := &recordingExecutor{}
	e := newEngine(t, seedHistory(trending), 2, exec)
	hold(t, e.Tracker, "X", 1)
	hold(t, e.Tracker, "Y", 1)

	first := e.Handle(reweight())
	require.Len(t, first.Intents, 2)
	for _, in := range first.Intents {
		assert.Equal(t, signal.Rebalance, in.Action)
		e.OnFill(execution.Fill{Handle: execution.OrderHandle(in.Handle), Asset: in.Asset, Side: execution.Buy, Qty: 0})
	}

	second := e.Handle(reweight())
	assert.Equal(t, first.Weights, second.Weights)
	require.Len(t, second.Intents, 2)
	for i := range first.Intents {
		assert.Equal(t, first.Intents[i].Weight, second.Intents[i].Weight)
	}
}

func TestReweightSkipsInFlight(t *testing.T) {
	exec := &recordingExecutor{}
	e := newEngine(t, seedHistory(trending), 2, exec)
	hold(t, e.Tracker, "X", 1)
	hold(t, e.Tracker, "Y", 1)

	e.Handle(reweight())
	second := e.Handle(reweight())
	assert.Empty(t, second.Intents)
	assert.Len(t, second.Weights, 2)
}

func TestRejectedEntryReturnsToUnheld(t *testing.T) {
	exec := &recordingExecutor{}
	e := newEngine(t, seedHistory(trending), 1, exec)

	d := e.Handle(selection())
	require.Len(t, d.Intents, 1)
	e.OnReject(execution.OrderHandle(d.Intents[0].Handle), execution.Rejection("X", "insufficient cash"))
	assert.Equal(t, portfolio.Unheld, e.Tracker.State("X"))
}

func TestSubmitFailureDoesNotAbortDecision(t *testing.T) {
	exec := &recordingExecutor{fail: map[market.Asset]bool{"X": true}}
	e := newEngine(t, seedHistory(trending), 2, exec)

	d := e.Handle(selection())
	require.Len(t, d.Intents, 1)
	assert.Equal(t, market.Asset("Y"), d.Intents[0].Asset)
	assert.Equal(t, portfolio.Unheld, e.Tracker.State("X"))
}

func TestOnBarFollowsSchedule(t *testing.T) {
	exec := &recordingExecutor{}
	e := newEngine(t, seedHistory(trending), 2, exec)

	// 2021-01-04 is a Monday; selection fires on Friday the 8th
	for i := 0; i < 4; i++ {
		_, ok := e.OnBar(time.Date(2021, 1, 4+i, 0, 0, 0, 0, time.UTC))
		assert.False(t, ok)
	}
	d, ok := e.OnBar(time.Date(2021, 1, 8, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, schedule.PortfolioSelection, d.Event.Kind)
	assert.Equal(t, 5, d.Snapshot.AsOf)
}

func TestEntrySkipsDegenerateVolatility(t *testing.T) {
	h := market.NewHistory(64)
	long := []float64{10, 10.5, 11.2, 11.6, 12.4, 12.8, 13.7, 14}
	for i, px := range long {
		h.Push(market.Bar{Asset: "L", Time: start.AddDate(0, 0, i), Close: px})
	}
	// steeper but too short for a volatility estimate
	short := []float64{10, 12, 14, 17, 20, 24}
	for i, px := range short {
		h.Push(market.Bar{Asset: "S", Time: start.AddDate(0, 0, 2+i), Close: px})
	}
	exec := &recordingExecutor{}
	e := newEngineWithVolatility(t, h, 1, exec, 6)

	d := e.Handle(schedule.Event{Kind: schedule.PortfolioSelection, Time: start.AddDate(0, 0, 7)})

	require.Equal(t, 2, d.Snapshot.Len())
	assert.Equal(t, market.Asset("S"), d.Snapshot.Entries()[0].Asset)
	require.Len(t, d.Intents, 1)
	assert.Equal(t, market.Asset("L"), d.Intents[0].Asset)
	assert.Equal(t, signal.Enter, d.Intents[0].Action)
	assert.Equal(t, portfolio.Unheld, e.Tracker.State("S"))
	assert.Equal(t, portfolio.PendingBuy, e.Tracker.State("L"))
}

func TestStaleHeldAssetIsSkippedThenClosed(t *testing.T) {
	series := map[market.Asset][]float64{
		"X": trending["X"],
		"Y": trending["Y"],
		"D": {10, 11, 12},
	}
	exec := &recordingExecutor{}
	e := newEngine(t, seedHistory(series), 2, exec)
	hold(t, e.Tracker, "X", 1)
	hold(t, e.Tracker, "D", 1)

	rw := e.Handle(reweight())
	require.Len(t, rw.Intents, 1)
	assert.Equal(t, market.Asset("X"), rw.Intents[0].Asset)
	_, weighted := rw.Weights["D"]
	assert.False(t, weighted)
	assert.Equal(t, portfolio.Held, e.Tracker.State("D"))
	e.OnFill(execution.Fill{Handle: execution.OrderHandle(rw.Intents[0].Handle), Asset: "X", Side: execution.Buy})

	sel := e.Handle(selection())
	require.NotEmpty(t, sel.Intents)
	assert.Equal(t, market.Asset("D"), sel.Intents[0].Asset)
	assert.Equal(t, signal.Exit, sel.Intents[0].Action)
	_, ranked := sel.Snapshot.Lookup("D")
	assert.False(t, ranked)
	assert.Equal(t, portfolio.PendingSell, e.Tracker.State("D"))
}
