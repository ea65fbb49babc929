package exchange

import (
	"path/filepath"
	"strings"
)

// NormalizeSymbol upper-cases a symbol and strips everything but letters and digits, so
// "btc/usdt", "BTC-USDT" and "btcusdt" all map to "BTCUSDT".
func NormalizeSymbol(symbol string) string {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(symbol))
	for _, r := range symbol {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if r >= 'a' && r <= 'z' {
				r -= 32
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

var quoteAssets = []string{"USDT", "BUSD", "USDC", "FDUSD", "TUSD", "BTC", "ETH", "BNB", "EUR"}

var filenameNoise = map[string]bool{
	"BINANCE": true,
	"DATA":    true,
	"KLINES":  true,
	"SPOT":    true,
}

// SymbolFromFilename extracts the trading pair from kline archive names such as
// "BTCUSDT-1d.csv", "Binance-ETHUSDT-1d-data.csv" or "Binance_SOLUSDT_1d.csv". It returns ""
// when no token ends in a known quote asset.
func SymbolFromFilename(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	tokens := strings.FieldsFunc(base, func(r rune) bool { return r == '-' || r == '_' || r == '.' || r == ' ' })
	for _, tok := range tokens {
		sym := NormalizeSymbol(tok)
		if sym == "" || filenameNoise[sym] {
			continue
		}
		if _, isInterval := intervalTokens[strings.ToLower(tok)]; isInterval {
			continue
		}
		if hasQuoteSuffix(sym) {
			return sym
		}
	}
	return ""
}

func hasQuoteSuffix(sym string) bool {
	for _, q := range quoteAssets {
		if len(sym) > len(q) && strings.HasSuffix(sym, q) {
			return true
		}
	}
	return false
}

// IsLeveragedToken reports Binance leveraged token pairs such as BTCUPUSDT or ETHDOWNUSDT.
func IsLeveragedToken(sym string) bool {
	base := strings.TrimSuffix(sym, "USDT")
	for _, suffix := range []string{"UP", "DOWN", "BULL", "BEAR"} {
		if len(base) > len(suffix) && strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}

// IsStablecoinPair reports pairs whose base asset is itself a dollar stablecoin.
func IsStablecoinPair(sym string) bool {
	base := strings.TrimSuffix(sym, "USDT")
	if base == sym {
		return false
	}
	return strings.HasPrefix(base, "USD") || base == "BUSD" || base == "TUSD" || base == "FDUSD" || base == "DAI" || base == "PAX"
}

var intervalTokens = map[string]struct{}{
	"1m": {}, "3m": {}, "5m": {}, "15m": {}, "30m": {},
	"1h": {}, "2h": {}, "4h": {}, "6h": {}, "8h": {}, "12h": {},
	"1d": {}, "3d": {}, "1w": {}, "1mo": {},
}
