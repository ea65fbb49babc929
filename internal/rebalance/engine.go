// Package rebalance composes scoring, ranking, weighting and position tracking into the per-bar
// decision of the momentum rotation strategy.
package rebalance

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"momentum-rebalancer/internal/execution"
	"momentum-rebalancer/internal/market"
	"momentum-rebalancer/internal/metrics"
	"momentum-rebalancer/internal/portfolio"
	"momentum-rebalancer/internal/schedule"
	"momentum-rebalancer/internal/signal"
	"momentum-rebalancer/internal/strategy"
)

// Executor places target-weight orders. Acknowledgements must arrive later through the engine's
// AckHandler methods, never from inside a Submit call.
type Executor interface {
	execution.Venue
}

// Data is the point-in-time view of prices.
type Data interface {
	strategy.WindowSource
	Universe(asOf time.Time) []market.Asset
}

// Components wires the engine's collaborators.
type Components struct {
	Data       Data
	Scheduler  *schedule.Scheduler
	Ranker     *strategy.Ranker
	Volatility strategy.VolatilityEstimator
	Weighter   strategy.Weighter
	Tracker    *portfolio.Tracker
	Executor   Executor
}

// Decision is everything one rebalance event produced.
type Decision struct {
	Event    schedule.Event
	Snapshot strategy.RankingSnapshot
	Weights  strategy.TargetWeights
	Intents  []signal.Intent
}

// Engine runs the rebalance loop. Not safe for concurrent use; all calls, acknowledgements
// included, must come from the bar loop.
type Engine struct {
	Components
	minimumMomentum float64
	bar             int
	log             zerolog.Logger
}

// New builds an engine. Kept assets need a score of at least minimumMomentum, new entries must
// beat it strictly.
func New(c Components, minimumMomentum float64, log zerolog.Logger) *Engine {
	return &Engine{Components: c, minimumMomentum: minimumMomentum, log: log}
}

// OnBar advances the bar counter and handles the event due at ts, if any.
func (e *Engine) OnBar(ts time.Time) (Decision, bool) {
	e.bar++
	ev, ok := e.Scheduler.Tick(ts)
	if !ok {
		return Decision{}, false
	}
	return e.Handle(ev), true
}

// Handle runs one event. Per-asset failures are logged and skipped; the decision always completes.
func (e *Engine) Handle(ev schedule.Event) Decision {
	metrics.RebalanceEventsTotal.WithLabelValues(ev.Kind.String()).Inc()
	switch ev.Kind {
	case schedule.PortfolioSelection:
		return e.selectPortfolio(ev)
	case schedule.PositionReweight:
		return e.reweightPositions(ev)
	default:
		e.log.Error().Int("event", int(ev.Kind)).Msg("unknown rebalance event")
		return Decision{Event: ev}
	}
}

// OnFill forwards a fill to the tracker.
func (e *Engine) OnFill(fill execution.Fill) { e.Tracker.OnFill(fill) }

// OnReject forwards a rejection to the tracker.
func (e *Engine) OnReject(handle execution.OrderHandle, reason error) {
	e.Tracker.OnReject(handle, reason)
}

func (e *Engine) selectPortfolio(ev schedule.Event) Decision {
	universe := e.Data.Universe(ev.Time)
	snap := e.Ranker.Rank(universe, e.Data, e.bar, ev.Time)
	size := e.Ranker.SelectionSize(len(universe))

	top := make(map[market.Asset]bool, size)
	for _, r := range snap.Top(size) {
		top[r.Asset] = true
	}

	var kept, exits []market.Asset
	for _, asset := range e.Tracker.Held() {
		r, ranked := snap.Lookup(asset)
		if top[asset] && ranked && r.Score >= e.minimumMomentum {
			kept = append(kept, asset)
			continue
		}
		exits = append(exits, asset)
	}

	// pending orders and held assets whose exit cannot be sent yet still occupy a slot
	occupied := len(e.Tracker.Pending())
	for _, asset := range exits {
		if e.Tracker.InFlight(asset) {
			occupied++
		}
	}
	replacements := size - len(kept) - occupied
	var entries []market.Asset
	for _, r := range snap.Entries() {
		if replacements <= 0 {
			break
		}
		if r.Score <= e.minimumMomentum {
			break
		}
		if e.Tracker.State(r.Asset) != portfolio.Unheld {
			continue
		}
		if !usableVolatility(e.volatility(r.Asset)) {
			e.log.Debug().Str("asset", string(r.Asset)).Msg("entry skipped, degenerate volatility")
			continue
		}
		entries = append(entries, r.Asset)
		replacements--
	}

	union := append(append([]market.Asset{}, kept...), entries...)
	weights := e.Weighter.Weights(union, e.volatilities(union))
	d := Decision{Event: ev, Snapshot: snap, Weights: weights}

	for _, asset := range exits {
		e.exit(&d, asset)
	}
	for _, asset := range kept {
		e.resize(&d, asset, signal.Rebalance, "kept in selection")
	}
	for _, asset := range entries {
		e.resize(&d, asset, signal.Enter, "entered selection")
	}

	e.log.Info().
		Time("ts", ev.Time).
		Int("universe", len(universe)).
		Int("ranked", snap.Len()).
		Int("kept", len(kept)).
		Int("exits", len(exits)).
		Int("entries", len(entries)).
		Float64("allocated", weights.Sum()).
		Msg("portfolio selection")
	return d
}

func (e *Engine) reweightPositions(ev schedule.Event) Decision {
	live := make(map[market.Asset]bool)
	for _, asset := range e.Data.Universe(ev.Time) {
		live[asset] = true
	}
	var held []market.Asset
	for _, asset := range e.Tracker.Held() {
		if !live[asset] {
			// no longer printing bars; the next selection closes it
			e.log.Warn().Str("asset", string(asset)).Msg("held asset left the live universe, reweight skipped")
			continue
		}
		held = append(held, asset)
	}
	weights := e.Weighter.Weights(held, e.volatilities(held))
	d := Decision{Event: ev, Weights: weights}
	for _, asset := range held {
		e.resize(&d, asset, signal.Rebalance, "periodic reweight")
	}
	e.log.Info().Time("ts", ev.Time).Int("held", len(held)).Float64("allocated", weights.Sum()).Msg("position reweight")
	return d
}

func (e *Engine) volatilities(assets []market.Asset) map[market.Asset]float64 {
	vols := make(map[market.Asset]float64, len(assets))
	for _, asset := range assets {
		vols[asset] = e.volatility(asset)
	}
	return vols
}

func (e *Engine) volatility(asset market.Asset) float64 {
	return e.Volatility.Volatility(e.Data.Window(asset, e.Volatility.WindowLength()))
}

// usableVolatility matches the weighter: only a finite positive volatility earns a weight.
func usableVolatility(vol float64) bool {
	return vol > 0 && !math.IsInf(vol, 0) && !math.IsNaN(vol)
}

func (e *Engine) exit(d *Decision, asset market.Asset) {
	if e.Tracker.InFlight(asset) {
		e.log.Debug().Str("asset", string(asset)).Msg("exit deferred, order in flight")
		return
	}
	handle, err := e.Executor.SubmitClose(asset)
	if err != nil {
		e.log.Error().Err(err).Str("asset", string(asset)).Msg("submit close failed")
		return
	}
	if err := e.Tracker.MarkSell(asset, handle); err != nil {
		e.log.Error().Err(err).Str("asset", string(asset)).Msg("track close failed")
		return
	}
	e.record(d, asset, signal.Exit, 0, "left selection", handle)
}

func (e *Engine) resize(d *Decision, asset market.Asset, action signal.Action, reason string) {
	if e.Tracker.InFlight(asset) {
		e.log.Debug().Str("asset", string(asset)).Msg("resize skipped, order in flight")
		return
	}
	weight := d.Weights[asset]
	if weight <= 0 {
		e.log.Warn().Err(strategy.ErrDegenerateVolatility).Str("asset", string(asset)).Str("action", string(action)).Msg("zero target weight, leaving position untouched")
		return
	}
	handle, err := e.Executor.SubmitTargetWeight(asset, weight)
	if err != nil {
		e.log.Error().Err(err).Str("asset", string(asset)).Msg("submit target weight failed")
		return
	}
	if action == signal.Enter {
		err = e.Tracker.MarkBuy(asset, handle)
	} else {
		err = e.Tracker.MarkReweight(asset, handle)
	}
	if err != nil {
		e.log.Error().Err(err).Str("asset", string(asset)).Msg("track order failed")
		return
	}
	e.record(d, asset, action, weight, reason, handle)
}

func (e *Engine) record(d *Decision, asset market.Asset, action signal.Action, weight float64, reason string, handle execution.OrderHandle) {
	intent := signal.Intent{
		Asset:  asset,
		Action: action,
		Weight: weight,
		Reason: reason,
		Ts:     d.Event.Time,
		Handle: string(handle),
	}
	if r, ok := d.Snapshot.Lookup(asset); ok {
		intent.Score = r.Score
	}
	d.Intents = append(d.Intents, intent)
	metrics.IntentsTotal.WithLabelValues(string(asset), string(action)).Inc()
	e.log.Info().
		Str("asset", string(asset)).
		Str("action", string(action)).
		Float64("weight", weight).
		Float64("score", intent.Score).
		Str("handle", string(handle)).
		Msg("rebalance intent")
}

// String summarises a decision for logs and the CLI.
func (d Decision) String() string {
	return fmt.Sprintf("%s@%s intents=%d allocated=%.4f", d.Event.Kind, d.Event.Time.Format(time.RFC3339), len(d.Intents), d.Weights.Sum())
}
