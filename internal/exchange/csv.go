package exchange

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"momentum-rebalancer/internal/market"
)

// ErrNoData is returned when a directory yields no usable bars.
var ErrNoData = errors.New("no kline data")

// LoadOptions filters a CSV directory load.
type LoadOptions struct {
	Symbols []string  // empty loads every file with a recognisable symbol
	From    time.Time // inclusive; zero means unbounded
	To      time.Time // inclusive; zero means unbounded
}

// LoadCSVDir reads every Binance kline CSV in dir and returns the bars ordered by time then
// symbol. Files whose name carries no trading pair are skipped.
func LoadCSVDir(dir string, opts LoadOptions) ([]market.Bar, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}
	want := make(map[string]bool, len(opts.Symbols))
	for _, s := range opts.Symbols {
		if sym := NormalizeSymbol(s); sym != "" {
			want[sym] = true
		}
	}

	var bars []market.Bar
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}
		sym := SymbolFromFilename(entry.Name())
		if sym == "" || (len(want) > 0 && !want[sym]) {
			continue
		}
		fileBars, err := LoadCSVFile(filepath.Join(dir, entry.Name()), market.Asset(sym))
		if err != nil {
			return nil, err
		}
		for _, b := range fileBars {
			if !opts.From.IsZero() && b.Time.Before(opts.From) {
				continue
			}
			if !opts.To.IsZero() && b.Time.After(opts.To) {
				continue
			}
			bars = append(bars, b)
		}
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoData)
	}
	SortBars(bars)
	return bars, nil
}

// LoadCSVFile parses one kline file for asset.
func LoadCSVFile(path string, asset market.Asset) ([]market.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	bars, err := ParseKlineCSV(f, asset)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return bars, nil
}

type columnIndex struct {
	time, open, high, low, close, volume int
}

var defaultColumns = columnIndex{time: 0, open: 1, high: 2, low: 3, close: 4, volume: 5}

// ParseKlineCSV reads kline rows. A header row is optional; without one the Binance column order
// (open time, open, high, low, close, volume, ...) is assumed. Rows with a bad close are skipped.
func ParseKlineCSV(r io.Reader, asset market.Asset) ([]market.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	cols := defaultColumns
	var bars []market.Bar
	first := true
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if first {
			first = false
			if _, terr := parseKlineTime(row[0]); terr != nil {
				cols, err = headerColumns(row)
				if err != nil {
					return nil, err
				}
				continue
			}
		}
		bar, ok := parseKlineRow(row, cols)
		if !ok {
			continue
		}
		bar.Asset = asset
		bars = append(bars, bar)
	}
	return bars, nil
}

func headerColumns(header []string) (columnIndex, error) {
	cols := columnIndex{time: -1, open: -1, high: -1, low: -1, close: -1, volume: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "timestamp", "open_time", "opentime", "date", "time", "datetime", "unix":
			if cols.time < 0 {
				cols.time = i
			}
		case "open":
			cols.open = i
		case "high":
			cols.high = i
		case "low":
			cols.low = i
		case "close":
			cols.close = i
		case "volume":
			cols.volume = i
		}
	}
	if cols.time < 0 || cols.close < 0 {
		return cols, fmt.Errorf("header %v lacks time or close column", header)
	}
	return cols, nil
}

func parseKlineRow(row []string, cols columnIndex) (market.Bar, bool) {
	get := func(i int) (float64, bool) {
		if i < 0 || i >= len(row) {
			return 0, false
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
		return v, err == nil
	}
	if cols.time >= len(row) {
		return market.Bar{}, false
	}
	ts, err := parseKlineTime(row[cols.time])
	if err != nil {
		return market.Bar{}, false
	}
	closePx, ok := get(cols.close)
	if !ok {
		return market.Bar{}, false
	}
	bar := market.Bar{Time: ts, Close: closePx, Open: closePx, High: closePx, Low: closePx}
	if v, ok := get(cols.open); ok {
		bar.Open = v
	}
	if v, ok := get(cols.high); ok {
		bar.High = v
	}
	if v, ok := get(cols.low); ok {
		bar.Low = v
	}
	if v, ok := get(cols.volume); ok {
		bar.Volume = v
	}
	return bar, true
}

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseKlineTime accepts epoch milliseconds (or seconds) and common date layouts, always in UTC.
func parseKlineTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n < 1e11 {
			return time.Unix(n, 0).UTC(), nil
		}
		if n >= 1e14 {
			return time.UnixMicro(n).UTC(), nil
		}
		return time.UnixMilli(n).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", raw)
}

// SortBars orders bars by time, then asset.
func SortBars(bars []market.Bar) {
	sort.SliceStable(bars, func(i, j int) bool {
		if !bars[i].Time.Equal(bars[j].Time) {
			return bars[i].Time.Before(bars[j].Time)
		}
		return bars[i].Asset < bars[j].Asset
	})
}

func sortAssets(assets []market.Asset) {
	sort.Slice(assets, func(i, j int) bool { return assets[i] < assets[j] })
}
