package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"momentum-rebalancer/internal/market"
)

func TestFeedRunEmitsBars(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := NewFeed(ProviderStub, []string{"btcusdt"}, zerolog.Nop(), WithStubPeriod(20*time.Millisecond))
	bars := make(chan market.Bar, 1)

	go func() {
		_ = feed.Run(ctx, bars)
	}()

	select {
	case bar := <-bars:
		if bar.Asset != "BTCUSDT" {
			t.Fatalf("unexpected symbol %s", bar.Asset)
		}
		if bar.Close <= 0 {
			t.Fatalf("expected positive close, got %.4f", bar.Close)
		}
		cancel()
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for bar")
	}
}

func TestParseBinanceSymbol(t *testing.T) {
	cases := map[string]string{
		"btcusdt@kline_1d": "BTCUSDT",
		"ethusdt@aggTrade": "ETHUSDT",
		"dogeusdt":         "DOGEUSDT",
		"":                 "",
	}
	for stream, expected := range cases {
		if got := parseBinanceSymbol(stream); got != expected {
			t.Fatalf("expected %s got %s", expected, got)
		}
	}
}

const closedKline = `{"stream":"btcusdt@kline_1d","data":{"e":"kline","s":"BTCUSDT","k":{"t":1612137600000,"o":"33092.97","h":"34717.27","l":"32296.16","c":"33526.37","v":"82718.27","x":true}}}`
const openKline = `{"stream":"btcusdt@kline_1d","data":{"e":"kline","s":"BTCUSDT","k":{"t":1612224000000,"o":"33526.37","h":"33800.00","l":"33400.00","c":"33700.10","v":"100.5","x":false}}}`

func TestDecodeBinanceKline(t *testing.T) {
	bar, closed, err := decodeBinanceKline([]byte(closedKline))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !closed {
		t.Fatalf("expected closed kline")
	}
	if bar.Asset != "BTCUSDT" || bar.Close != 33526.37 || bar.High != 34717.27 {
		t.Fatalf("unexpected bar %+v", bar)
	}
	if !bar.Time.Equal(time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected open time %s", bar.Time)
	}

	if _, _, err := decodeBinanceKline([]byte(`{"data":{"s":"X","k":{"c":"abc"}}}`)); err == nil {
		t.Fatalf("expected decode error on bad price")
	}
}

func TestBinanceFeedForwardsClosedKlinesOnly(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotPath := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath <- r.URL.RawQuery
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(openKline))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(closedKline))
		// hold the connection until the client leaves
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	feed := NewFeed(ProviderBinance, []string{"BTCUSDT"}, zerolog.Nop(), WithStreamURL(wsURL), WithInterval("1d"))
	bars := make(chan market.Bar, 4)
	errCh := make(chan error, 1)
	go func() {
		errCh <- feed.Run(ctx, bars)
	}()

	select {
	case q := <-gotPath:
		if q != "streams=btcusdt@kline_1d" {
			t.Fatalf("unexpected stream query %q", q)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("feed never connected")
	}

	select {
	case bar := <-bars:
		if bar.Close != 33526.37 {
			t.Fatalf("expected the closed kline, got %+v", bar)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for bar")
	}

	select {
	case bar := <-bars:
		t.Fatalf("unexpected extra bar %+v", bar)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("feed returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("feed did not stop after cancel")
	}
}

func TestBinanceFeedRequiresSymbols(t *testing.T) {
	feed := NewFeed(ProviderBinance, nil, zerolog.Nop())
	if err := feed.Run(context.Background(), make(chan market.Bar)); err == nil {
		t.Fatalf("expected error without symbols")
	}
}

func TestSetSymbolsNormalizes(t *testing.T) {
	feed := NewFeed(ProviderStub, []string{"eth/usdt", "BTC-USDT", "ETHUSDT", " "}, zerolog.Nop())
	got := feed.Symbols()
	if len(got) != 2 || got[0] != "BTCUSDT" || got[1] != "ETHUSDT" {
		t.Fatalf("unexpected symbols %v", got)
	}
}
