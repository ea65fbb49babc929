// Package exchange hosts bar sources: Binance kline streams, CSV kline archives and a synthetic stub.
package exchange

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"momentum-rebalancer/internal/market"
	"momentum-rebalancer/internal/metrics"
)

const (
	// ProviderStub emits deterministic synthetic bars (useful for tests/offline work).
	ProviderStub = "stub"
	// ProviderBinance streams closed klines from Binance public websockets.
	ProviderBinance = "binance"
	// ProviderCSV replays kline archives from disk; only the backtest runner uses it.
	ProviderCSV = "csv"
)

const (
	defaultStreamURL  = "wss://stream.binance.com:9443"
	defaultInterval   = "1d"
	defaultStubPeriod = 500 * time.Millisecond
)

// Feed represents a pluggable live bar stream.
type Feed struct {
	provider   string
	symbols    []string
	log        zerolog.Logger
	interval   string
	streamURL  string
	stubPeriod time.Duration
	mu         sync.RWMutex
}

// Option configures Feed construction parameters.
type Option func(*Feed)

// WithInterval selects the kline interval, e.g. "1d" or "1h".
func WithInterval(interval string) Option {
	return func(f *Feed) {
		if interval = strings.TrimSpace(interval); interval != "" {
			f.interval = interval
		}
	}
}

// WithStreamURL overrides the websocket base URL.
func WithStreamURL(url string) Option {
	return func(f *Feed) {
		if url != "" {
			f.streamURL = strings.TrimSuffix(url, "/")
		}
	}
}

// WithStubPeriod sets how often the stub provider emits a round of bars.
func WithStubPeriod(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.stubPeriod = d
		}
	}
}

// NewFeed constructs a feed backed by the requested provider.
func NewFeed(provider string, symbols []string, log zerolog.Logger, opts ...Option) *Feed {
	if provider == "" {
		provider = ProviderStub
	}
	f := &Feed{
		provider:   strings.ToLower(provider),
		log:        log,
		interval:   defaultInterval,
		streamURL:  defaultStreamURL,
		stubPeriod: defaultStubPeriod,
	}
	f.setSymbols(symbols)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetSymbols replaces the tracked symbol list (deduplicated, sorted for determinism). Streams
// pick up the change on their next reconnect.
func (f *Feed) SetSymbols(symbols []string) {
	f.setSymbols(symbols)
}

// Symbols returns the tracked symbols.
func (f *Feed) Symbols() []string { return f.snapshotSymbols() }

func (f *Feed) setSymbols(symbols []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	unique := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		sym = NormalizeSymbol(sym)
		if sym == "" {
			continue
		}
		unique[sym] = struct{}{}
	}
	f.symbols = make([]string, 0, len(unique))
	for sym := range unique {
		f.symbols = append(f.symbols, sym)
	}
	sort.Strings(f.symbols)
}

func (f *Feed) snapshotSymbols() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, len(f.symbols))
	copy(out, f.symbols)
	return out
}

// Run pushes closed bars onto the provided channel until the context is canceled.
func (f *Feed) Run(ctx context.Context, out chan<- market.Bar) error {
	switch f.provider {
	case ProviderBinance:
		return f.runBinance(ctx, out)
	default:
		return f.runStub(ctx, out)
	}
}

func (f *Feed) runStub(ctx context.Context, out chan<- market.Bar) error {
	ticker := time.NewTicker(f.stubPeriod)
	defer ticker.Stop()

	walk := newStubWalk(1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ts := <-ticker.C:
			for _, s := range f.snapshotSymbols() {
				bar := walk.next(market.Asset(s), ts.UTC())
				select {
				case out <- bar:
					metrics.BarsTotal.WithLabelValues(s).Inc()
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}
