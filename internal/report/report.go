// Package report records the per-bar cash/equity series and summarises a run.
package report

import (
	"encoding/json"
	"math"
	"sync"
	"time"
)

// Point is one cash/equity observation at a bar close.
type Point struct {
	Time   time.Time `json:"time"`
	Cash   float64   `json:"cash"`
	Equity float64   `json:"equity"`
}

// Sink receives one point per bar.
type Sink interface {
	Record(ts time.Time, cash, equity float64) error
}

// Multi fans a point out to several sinks and returns the first error.
type Multi []Sink

// Record implements Sink.
func (m Multi) Record(ts time.Time, cash, equity float64) error {
	var first error
	for _, s := range m {
		if err := s.Record(ts, cash, equity); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Curve keeps the series in memory.
type Curve struct {
	mu     sync.Mutex
	points []Point
}

// NewCurve returns an empty in-memory sink.
func NewCurve() *Curve { return &Curve{} }

// Record implements Sink.
func (c *Curve) Record(ts time.Time, cash, equity float64) error {
	c.mu.Lock()
	c.points = append(c.points, Point{Time: ts, Cash: cash, Equity: equity})
	c.mu.Unlock()
	return nil
}

// Points returns a copy of the series.
func (c *Curve) Points() []Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Point, len(c.points))
	copy(out, c.points)
	return out
}

// Summary holds headline statistics of a run.
type Summary struct {
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Bars           int       `json:"bars"`
	StartingEquity float64   `json:"starting_equity"`
	FinalEquity    float64   `json:"final_equity"`
	TotalReturn    float64   `json:"total_return"`
	CAGR           float64   `json:"cagr"`
	Sharpe         float64   `json:"sharpe"`
	MaxDrawdown    float64   `json:"max_drawdown"`
	Trades         int       `json:"trades"`
	Commission     float64   `json:"commission"`
	Turnover       float64   `json:"turnover"`
	Events         int       `json:"events"`
}

// String renders the summary as indented JSON.
func (s Summary) String() string {
	b, _ := json.MarshalIndent(s, "", "  ")
	return string(b)
}

// Summarize computes return statistics from the curve. periodsPerYear annualises Sharpe
// (365 for daily crypto bars).
func Summarize(points []Point, startingEquity, periodsPerYear float64) Summary {
	s := Summary{StartingEquity: startingEquity, FinalEquity: startingEquity, Bars: len(points)}
	if len(points) == 0 {
		return s
	}
	s.Start = points[0].Time
	s.End = points[len(points)-1].Time
	s.FinalEquity = points[len(points)-1].Equity
	if startingEquity > 0 {
		s.TotalReturn = s.FinalEquity/startingEquity - 1
		years := s.End.Sub(s.Start).Hours() / (24 * 365.25)
		if years > 0 && s.FinalEquity > 0 {
			s.CAGR = math.Pow(s.FinalEquity/startingEquity, 1/years) - 1
		}
	}

	rets := make([]float64, 0, len(points))
	prev := startingEquity
	peak := startingEquity
	for _, p := range points {
		if prev > 0 {
			rets = append(rets, p.Equity/prev-1)
		}
		prev = p.Equity
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			if dd := (peak - p.Equity) / peak; dd > s.MaxDrawdown {
				s.MaxDrawdown = dd
			}
		}
	}
	s.Sharpe = sharpe(rets, math.Sqrt(periodsPerYear))
	return s
}

func sharpe(rets []float64, ann float64) float64 {
	if len(rets) < 2 {
		return 0
	}
	var m float64
	for _, r := range rets {
		m += r
	}
	m /= float64(len(rets))
	var v float64
	for _, r := range rets {
		v += (r - m) * (r - m)
	}
	v /= float64(len(rets) - 1)
	if v <= 0 {
		return 0
	}
	return m / math.Sqrt(v) * ann
}

// PeriodsPerYear maps a kline interval such as "1d" or "4h" to bars per year; unknown intervals
// default to daily.
func PeriodsPerYear(interval string) float64 {
	d, ok := intervals[interval]
	if !ok {
		return 365
	}
	return float64(365*24*time.Hour) / float64(d)
}

var intervals = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"3d":  72 * time.Hour,
	"1w":  7 * 24 * time.Hour,
}

// IntervalDuration returns the bar length of a kline interval.
func IntervalDuration(interval string) (time.Duration, bool) {
	d, ok := intervals[interval]
	return d, ok
}
