package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"momentum-rebalancer/internal/market"
	"momentum-rebalancer/internal/metrics"
)

type binanceEnvelope struct {
	Stream string           `json:"stream"`
	Data   binanceKlineData `json:"data"`
}

type binanceKlineData struct {
	Symbol string       `json:"s"`
	Kline  binanceKline `json:"k"`
}

type binanceKline struct {
	OpenTime int64  `json:"t"`
	Open     string `json:"o"`
	High     string `json:"h"`
	Low      string `json:"l"`
	Close    string `json:"c"`
	Volume   string `json:"v"`
	Closed   bool   `json:"x"`
}

func (f *Feed) runBinance(ctx context.Context, out chan<- market.Bar) error {
	if len(f.snapshotSymbols()) == 0 {
		return fmt.Errorf("binance feed requires at least one symbol")
	}

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := f.consumeBinanceStream(ctx, f.binanceURL(), out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn().Err(err).Dur("backoff", backoff).Msg("binance feed disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		return nil
	}
}

func (f *Feed) binanceURL() string {
	symbols := f.snapshotSymbols()
	streams := make([]string, len(symbols))
	for i, sym := range symbols {
		streams[i] = strings.ToLower(sym) + "@kline_" + f.interval
	}
	return fmt.Sprintf("%s/stream?streams=%s", f.streamURL, strings.Join(streams, "/"))
}

func (f *Feed) consumeBinanceStream(ctx context.Context, url string, out chan<- market.Bar) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	f.log.Info().Str("provider", ProviderBinance).Str("interval", f.interval).Strs("symbols", f.snapshotSymbols()).Msg("connected market data feed")

	const readWindow = 90 * time.Second
	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(readWindow))
	conn.SetPongHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(readWindow))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					f.log.Warn().Err(err).Msg("binance ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	// unblock ReadMessage on cancel
	go func() {
		<-pingCtx.Done()
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		conn.SetReadDeadline(time.Now().Add(readWindow))

		bar, closed, err := decodeBinanceKline(message)
		if err != nil {
			f.log.Warn().Err(err).Msg("failed to decode binance kline")
			continue
		}
		if !closed {
			continue
		}

		select {
		case out <- bar:
			metrics.BarsTotal.WithLabelValues(string(bar.Asset)).Inc()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// decodeBinanceKline parses a combined-stream kline message. closed is false for klines still forming.
func decodeBinanceKline(message []byte) (bar market.Bar, closed bool, err error) {
	var env binanceEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		return market.Bar{}, false, err
	}
	symbol := env.Data.Symbol
	if symbol == "" {
		symbol = parseBinanceSymbol(env.Stream)
	}
	k := env.Data.Kline
	fields := [...]struct {
		raw string
		dst *float64
	}{
		{k.Open, &bar.Open},
		{k.High, &bar.High},
		{k.Low, &bar.Low},
		{k.Close, &bar.Close},
		{k.Volume, &bar.Volume},
	}
	for _, fld := range fields {
		v, err := strconv.ParseFloat(fld.raw, 64)
		if err != nil {
			return market.Bar{}, false, fmt.Errorf("kline %s: %w", symbol, err)
		}
		*fld.dst = v
	}
	bar.Asset = market.Asset(NormalizeSymbol(symbol))
	bar.Time = time.UnixMilli(k.OpenTime).UTC()
	return bar, k.Closed, nil
}

func parseBinanceSymbol(stream string) string {
	parts := strings.Split(stream, "@")
	if len(parts) == 0 || parts[0] == "" {
		return strings.ToUpper(stream)
	}
	return strings.ToUpper(parts[0])
}
