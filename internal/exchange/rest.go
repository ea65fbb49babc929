package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"momentum-rebalancer/internal/market"
)

const defaultRESTURL = "https://api.binance.com"

// BinanceREST is a minimal client for the public Binance spot endpoints.
type BinanceREST struct {
	client  *http.Client
	baseURL string
	log     zerolog.Logger
	now     func() time.Time
}

// NewBinanceREST builds a client; an empty baseURL targets api.binance.com.
func NewBinanceREST(baseURL string, log zerolog.Logger) *BinanceREST {
	if baseURL == "" {
		baseURL = defaultRESTURL
	}
	return &BinanceREST{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		log:     log,
		now:     time.Now,
	}
}

type ticker24h struct {
	Symbol      string `json:"symbol"`
	QuoteVolume string `json:"quoteVolume"`
	LastPrice   string `json:"lastPrice"`
}

type volumeCandidate struct {
	symbol string
	volume float64
}

// TopByQuoteVolume returns the n most traded pairs quoted in quote over the last 24h, skipping
// leveraged tokens and stablecoin-vs-stablecoin pairs. Order is by volume, largest first.
func (c *BinanceREST) TopByQuoteVolume(ctx context.Context, n int, quote string) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	quote = NormalizeSymbol(quote)
	if quote == "" {
		quote = "USDT"
	}
	var tickers []ticker24h
	if err := c.get(ctx, "/api/v3/ticker/24hr", nil, &tickers); err != nil {
		return nil, err
	}

	candidates := make([]volumeCandidate, 0, len(tickers))
	for _, t := range tickers {
		sym := NormalizeSymbol(t.Symbol)
		if !strings.HasSuffix(sym, quote) || sym == quote {
			continue
		}
		if IsLeveragedToken(sym) || IsStablecoinPair(sym) {
			continue
		}
		vol, err := strconv.ParseFloat(t.QuoteVolume, 64)
		if err != nil || vol <= 0 {
			continue
		}
		candidates = append(candidates, volumeCandidate{symbol: sym, volume: vol})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].volume != candidates[j].volume {
			return candidates[i].volume > candidates[j].volume
		}
		return candidates[i].symbol < candidates[j].symbol
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	out := make([]string, len(candidates))
	for i, cand := range candidates {
		out[i] = cand.symbol
	}
	return out, nil
}

// Klines fetches up to limit recent closed klines for symbol, oldest first. A kline still
// forming is dropped.
func (c *BinanceREST) Klines(ctx context.Context, symbol, interval string, limit int) ([]market.Bar, error) {
	sym := NormalizeSymbol(symbol)
	params := url.Values{}
	params.Set("symbol", sym)
	params.Set("interval", interval)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var rows [][]any
	if err := c.get(ctx, "/api/v3/klines", params, &rows); err != nil {
		return nil, err
	}
	now := c.now()
	bars := make([]market.Bar, 0, len(rows))
	for _, row := range rows {
		if len(row) < 7 {
			continue
		}
		openMs, ok1 := row[0].(float64)
		closeMs, ok2 := row[6].(float64)
		if !ok1 || !ok2 {
			continue
		}
		if time.UnixMilli(int64(closeMs)).After(now) {
			continue
		}
		bar := market.Bar{Asset: market.Asset(sym), Time: time.UnixMilli(int64(openMs)).UTC()}
		vals := []*float64{&bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume}
		valid := true
		for i, dst := range vals {
			s, _ := row[i+1].(string)
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				valid = false
				break
			}
			*dst = v
		}
		if valid {
			bars = append(bars, bar)
		}
	}
	return bars, nil
}

func (c *BinanceREST) get(ctx context.Context, path string, params url.Values, dst any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "momentum-rebalancer/1.0")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}
