// Binary paper runs the rebalancer live against Binance closed klines with a simulated account.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"momentum-rebalancer/internal/backtest"
	"momentum-rebalancer/internal/config"
	"momentum-rebalancer/internal/exchange"
	"momentum-rebalancer/internal/market"
	"momentum-rebalancer/internal/metrics"
	"momentum-rebalancer/internal/paper"
	"momentum-rebalancer/internal/report"
	"momentum-rebalancer/internal/util"
)

const defaultConfigPath = "internal/config/config.yaml"

// flushAfter is how long the loop waits for the rest of a bar time's klines before deciding.
const flushAfter = 5 * time.Second

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to the YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := util.NewLogger(cfg.App.LogLevel)

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider := cfg.Data.Provider
	if provider == exchange.ProviderCSV {
		provider = exchange.ProviderBinance
	}
	rest := exchange.NewBinanceREST(cfg.Data.RESTURL, log)
	symbols := cfg.Data.Symbols
	if provider == exchange.ProviderBinance && cfg.Data.UniverseTop > 0 {
		top, err := rest.TopByQuoteVolume(ctx, cfg.Data.UniverseTop, "USDT")
		if err != nil {
			log.Warn().Err(err).Msg("initial universe lookup failed")
		}
		symbols = append(append([]string(nil), symbols...), top...)
	}

	feed := exchange.NewFeed(provider, symbols, log,
		exchange.WithInterval(cfg.Data.Interval),
		exchange.WithStreamURL(cfg.Data.WSURL),
	)
	if provider == exchange.ProviderBinance {
		exchange.NewVolumeDiscovery(log, feed, rest, cfg.Data.Symbols, cfg.Data.UniverseTop, 24*time.Hour).Start(ctx)
	}

	var opts []backtest.Option
	if cfg.Paper.FillsPath != "" {
		rec, err := paper.NewJSONLRecorder(cfg.Paper.FillsPath)
		if err != nil {
			log.Fatal().Err(err).Msg("open fill recorder")
		}
		defer rec.Close()
		opts = append(opts, backtest.WithFillRecorder(rec))
	}
	if cfg.Paper.EquityPath != "" {
		sink, err := report.NewCSVSink(cfg.Paper.EquityPath)
		if err != nil {
			log.Fatal().Err(err).Msg("open equity sink")
		}
		defer sink.Close()
		opts = append(opts, backtest.WithSink(sink))
	}
	runner, err := backtest.New(cfg, log, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("build runner")
	}

	// a kline that misses the flush window keeps its asset live for one more bar
	if step, ok := report.IntervalDuration(cfg.Data.Interval); ok {
		runner.History.SetGrace(step)
	}

	if provider == exchange.ProviderBinance {
		warmUp(ctx, runner, rest, feed.Symbols(), cfg, log)
	}

	bars := make(chan market.Bar, 1024)
	go func() {
		if err := feed.Run(ctx, bars); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("feed stopped")
			cancel()
		}
	}()

	log.Info().Str("provider", provider).Strs("symbols", feed.Symbols()).Msg("paper rebalancer started")

	var batch []market.Bar
	flush := time.NewTimer(flushAfter)
	flush.Stop()
	step := func() {
		if len(batch) == 0 {
			return
		}
		ts := batch[0].Time
		decision, fired, err := runner.Step(ts, batch)
		if err != nil {
			log.Error().Err(err).Msg("step failed")
		}
		if fired {
			log.Info().Msg(decision.String())
		}
		snap := runner.Broker.Account().Snapshot(runner.History.Marks())
		log.Debug().Time("bar", ts).Int("bars", len(batch)).Float64("equity", snap.Equity).Float64("cash", snap.Cash).Msg("bar settled")
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			fmt.Println(runner.Summary().String())
			return
		case bar := <-bars:
			if len(batch) > 0 && !bar.Time.Equal(batch[0].Time) {
				step()
			}
			batch = append(batch, bar)
			if !flush.Stop() {
				select {
				case <-flush.C:
				default:
				}
			}
			flush.Reset(flushAfter)
		case <-flush.C:
			step()
		}
	}
}

// warmUp fills history with recent closed klines so ranking can start on the first live bar.
// Warm-up bars never tick the scheduler.
func warmUp(ctx context.Context, runner *backtest.Runner, rest *exchange.BinanceREST, symbols []string, cfg *config.Config, log zerolog.Logger) {
	depth := cfg.HistoryDepth() + 1
	loaded := 0
	for _, sym := range symbols {
		klines, err := rest.Klines(ctx, sym, cfg.Data.Interval, depth)
		if err != nil {
			log.Warn().Err(err).Str("asset", sym).Msg("warm-up download failed")
			continue
		}
		for _, b := range klines {
			runner.History.Push(b)
		}
		loaded += len(klines)
	}
	log.Info().Int("bars", loaded).Int("symbols", len(symbols)).Msg("history warmed up")
}
