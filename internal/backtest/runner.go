// Package backtest drives the rebalancer over historical bars: it feeds each bar time to the
// engine, settles the paper venue at the bar's closes and records the equity curve.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"momentum-rebalancer/internal/commission"
	"momentum-rebalancer/internal/config"
	"momentum-rebalancer/internal/execution"
	"momentum-rebalancer/internal/market"
	"momentum-rebalancer/internal/metrics"
	"momentum-rebalancer/internal/paper"
	"momentum-rebalancer/internal/portfolio"
	"momentum-rebalancer/internal/rebalance"
	"momentum-rebalancer/internal/report"
	"momentum-rebalancer/internal/schedule"
	"momentum-rebalancer/internal/strategy"
)

// Option customises a Runner built from config.
type Option func(*options)

type options struct {
	sinks     []report.Sink
	recorders []paper.FillRecorder
}

// WithSink adds an equity sink fed once per bar time.
func WithSink(s report.Sink) Option {
	return func(o *options) {
		if s != nil {
			o.sinks = append(o.sinks, s)
		}
	}
}

// WithFillRecorder adds a fill journal next to the in-memory ledger.
func WithFillRecorder(r paper.FillRecorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorders = append(o.recorders, r)
		}
	}
}

// Runner owns one rebalancer stack. Not safe for concurrent use.
type Runner struct {
	Engine  *rebalance.Engine
	History *market.History
	Broker  *paper.Broker
	Ledger  *paper.Ledger

	curve          *report.Curve
	sink           report.Sink
	periodsPerYear float64
	events         int
	log            zerolog.Logger
}

// New assembles scorer, ranker, weighter, tracker, scheduler, history and paper venue from cfg.
func New(cfg *config.Config, log zerolog.Logger, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrInvalidConfig)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	schedCfg, err := cfg.ScheduleConfig()
	if err != nil {
		return nil, err
	}
	weighter, err := strategy.NewWeighter(cfg.Strategy.ReserveFraction, cfg.Strategy.MaximumStake)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	scorer := strategy.Build(cfg.Strategy.Scorer, strategy.Params{AnnualizationPeriods: cfg.Strategy.AnnualizationPeriods})

	history := market.NewHistory(cfg.HistoryDepth())
	ledger := paper.NewLedger(256)
	brokerOpts := []paper.Option{paper.WithLimits(cfg.Limits()), paper.WithRecorder(ledger)}
	for _, rec := range o.recorders {
		brokerOpts = append(brokerOpts, paper.WithRecorder(rec))
	}
	broker := paper.NewBroker(
		paper.NewAccount(cfg.Paper.StartingCash),
		commission.New(cfg.Paper.CommissionRate),
		log,
		brokerOpts...,
	)

	engine := rebalance.New(rebalance.Components{
		Data:       history,
		Scheduler:  schedule.New(schedCfg),
		Ranker:     strategy.NewRanker(scorer, cfg.Strategy.MomentumPeriod, cfg.SelectionPolicy(), log),
		Volatility: strategy.NewVolatilityEstimator(cfg.Strategy.VolatilityPeriod),
		Weighter:   weighter,
		Tracker:    portfolio.NewTracker(log),
		Executor:   execution.NewExecutor(log, broker),
	}, cfg.Strategy.MinimumMomentum, log)

	curve := report.NewCurve()
	sinks := append(report.Multi{curve}, o.sinks...)
	return &Runner{
		Engine:         engine,
		History:        history,
		Broker:         broker,
		Ledger:         ledger,
		curve:          curve,
		sink:           sinks,
		periodsPerYear: report.PeriodsPerYear(cfg.Data.Interval),
		log:            log,
	}, nil
}

// Step processes every bar sharing the close time ts: the bars enter history, the engine decides,
// queued orders settle at the closes, and the marked equity is recorded.
func (r *Runner) Step(ts time.Time, bars []market.Bar) (rebalance.Decision, bool, error) {
	for _, bar := range bars {
		r.History.Push(bar)
	}
	decision, fired := r.Engine.OnBar(ts)
	if fired {
		r.events++
		r.log.Info().
			Str("event", decision.Event.Kind.String()).
			Time("time", ts).
			Int("ranked", decision.Snapshot.Len()).
			Int("intents", len(decision.Intents)).
			Msg("rebalance")
	}

	marks := r.History.Marks()
	r.Broker.Settle(marks, ts, r.Engine)

	snap := r.Broker.Account().Snapshot(marks)
	if err := r.sink.Record(ts, snap.Cash, snap.Equity); err != nil {
		return decision, fired, fmt.Errorf("record equity: %w", err)
	}
	return decision, fired, nil
}

// Run replays bars, which must be ordered by time (exchange.SortBars). Cancellation is checked
// between bar times; the summary covers whatever ran.
func (r *Runner) Run(ctx context.Context, bars []market.Bar) (report.Summary, error) {
	for start := 0; start < len(bars); {
		if err := ctx.Err(); err != nil {
			return r.Summary(), err
		}
		ts := bars[start].Time
		end := start + 1
		for end < len(bars) && bars[end].Time.Equal(ts) {
			end++
		}
		for _, bar := range bars[start:end] {
			metrics.BarsTotal.WithLabelValues(string(bar.Asset)).Inc()
		}
		if _, _, err := r.Step(ts, bars[start:end]); err != nil {
			return r.Summary(), err
		}
		start = end
	}
	return r.Summary(), nil
}

// Summary reports the run so far.
func (r *Runner) Summary() report.Summary {
	s := report.Summarize(r.curve.Points(), r.Broker.Account().StartingCash(), r.periodsPerYear)
	stats := r.Ledger.Stats()
	s.Trades = stats.Trades
	s.Commission = stats.Commission
	s.Turnover = stats.Turnover
	s.Events = r.events
	return s
}

// Points returns the recorded equity curve.
func (r *Runner) Points() []report.Point { return r.curve.Points() }
