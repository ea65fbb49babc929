// Binary backtest replays Binance kline archives (or synthetic bars) through the rebalancer and
// prints the run summary.
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
	"momentum-rebalancer/internal/paper"
	"momentum-rebalancer/internal/report"
	"momentum-rebalancer/internal/util"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	var (
		configPath = flag.String("config", defaultConfigPath, "path to the YAML config")
		dataDir    = flag.String("data", "", "kline CSV directory (overrides data.dir)")
		from       = flag.String("from", "", "first bar date, YYYY-MM-DD")
		to         = flag.String("to", "", "last bar date, YYYY-MM-DD")
		stubDays   = flag.Int("stub-days", 365, "bars per symbol when data.provider is stub")
		equityPath = flag.String("equity", "", "equity curve CSV (overrides paper.equity_path)")
		fillsPath  = flag.String("fills", "", "fill journal JSONL (overrides paper.fills_path)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	// logs go to stderr so stdout carries only the summary
	log := util.Console(cfg.App.LogLevel)

	if *dataDir != "" {
		cfg.Data.Dir = *dataDir
	}
	if *equityPath != "" {
		cfg.Paper.EquityPath = *equityPath
	}
	if *fillsPath != "" {
		cfg.Paper.FillsPath = *fillsPath
	}

	opts := exchange.LoadOptions{Symbols: cfg.Data.Symbols}
	if opts.From, err = parseDate(*from); err != nil {
		log.Fatal().Err(err).Msg("parse -from")
	}
	if opts.To, err = parseDate(*to); err != nil {
		log.Fatal().Err(err).Msg("parse -to")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bars, err := loadBars(ctx, cfg, opts, *stubDays, log)
	if err != nil {
		log.Fatal().Err(err).Msg("load bars")
	}
	log.Info().Int("bars", len(bars)).Str("provider", cfg.Data.Provider).Msg("bars loaded")

	var runnerOpts []backtest.Option
	if cfg.Paper.EquityPath != "" {
		sink, err := report.NewCSVSink(cfg.Paper.EquityPath)
		if err != nil {
			log.Fatal().Err(err).Msg("open equity sink")
		}
		defer func() {
			if err := sink.Close(); err != nil {
				log.Error().Err(err).Msg("close equity sink")
			}
		}()
		runnerOpts = append(runnerOpts, backtest.WithSink(sink))
	}
	if cfg.Paper.FillsPath != "" {
		rec, err := paper.NewJSONLRecorder(cfg.Paper.FillsPath)
		if err != nil {
			log.Fatal().Err(err).Msg("open fill recorder")
		}
		defer func() {
			if err := rec.Close(); err != nil {
				log.Error().Err(err).Msg("close fill recorder")
			}
		}()
		runnerOpts = append(runnerOpts, backtest.WithFillRecorder(rec))
	}

	runner, err := backtest.New(cfg, log, runnerOpts...)
	if err != nil {
		log.Fatal().Err(err).Msg("build runner")
	}

	summary, err := runner.Run(ctx, bars)
	if err != nil {
		log.Error().Err(err).Msg("backtest interrupted")
	}
	fmt.Println(summary.String())
}

func loadBars(ctx context.Context, cfg *config.Config, opts exchange.LoadOptions, stubDays int, log zerolog.Logger) ([]market.Bar, error) {
	switch cfg.Data.Provider {
	case exchange.ProviderBinance:
		return fetchKlines(ctx, cfg, opts, log)
	case exchange.ProviderStub:
		symbols := cfg.Data.Symbols
		if len(symbols) == 0 {
			symbols = []string{"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT", "ADAUSDT"}
		}
		step, ok := report.IntervalDuration(cfg.Data.Interval)
		if !ok {
			step = 24 * time.Hour
		}
		start := opts.From
		if start.IsZero() {
			start = time.Now().UTC().Truncate(24*time.Hour).Add(-time.Duration(stubDays) * step)
		}
		return exchange.StubBars(symbols, start, step, stubDays, 1), nil
	default:
		return exchange.LoadCSVDir(cfg.Data.Dir, opts)
	}
}

// fetchKlines pulls the most recent klines (at most 1000 per symbol) over REST.
func fetchKlines(ctx context.Context, cfg *config.Config, opts exchange.LoadOptions, log zerolog.Logger) ([]market.Bar, error) {
	rest := exchange.NewBinanceREST(cfg.Data.RESTURL, log)
	symbols := cfg.Data.Symbols
	if cfg.Data.UniverseTop > 0 {
		top, err := rest.TopByQuoteVolume(ctx, cfg.Data.UniverseTop, "USDT")
		if err != nil {
			return nil, fmt.Errorf("universe lookup: %w", err)
		}
		symbols = append(symbols, top...)
	}
	seen := make(map[string]bool)
	var bars []market.Bar
	for _, sym := range symbols {
		sym = exchange.NormalizeSymbol(sym)
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		klines, err := rest.Klines(ctx, sym, cfg.Data.Interval, 1000)
		if err != nil {
			log.Warn().Err(err).Str("asset", sym).Msg("kline download failed")
			continue
		}
		for _, b := range klines {
			if (!opts.From.IsZero() && b.Time.Before(opts.From)) || (!opts.To.IsZero() && b.Time.After(opts.To)) {
				continue
			}
			bars = append(bars, b)
		}
	}
	if len(bars) == 0 {
		return nil, exchange.ErrNoData
	}
	exchange.SortBars(bars)
	return bars, nil
}

func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation("2006-01-02", v, time.UTC)
}
