// Package schedule decides on each bar whether a rebalance event is due.
package schedule

import (
	"fmt"
	"strings"
	"time"
)

// EventKind tags the two rebalance events.
type EventKind int

const (
	// PortfolioSelection re-ranks the universe and replaces laggards.
	PortfolioSelection EventKind = iota + 1
	// PositionReweight re-weights the held set without changing membership.
	PositionReweight
)

func (k EventKind) String() string {
	switch k {
	case PortfolioSelection:
		return "selection"
	case PositionReweight:
		return "reweight"
	default:
		return "unknown"
	}
}

// Event is one firing of the scheduler.
type Event struct {
	Kind EventKind
	Time time.Time
}

// Config anchors both events to weekdays.
type Config struct {
	SelectionWeekday   time.Weekday
	ReweightWeekday    time.Weekday
	IntradayHourModulo int
	Location           *time.Location
}

// DefaultConfig fires selection on Friday and reweighting on Saturday, in UTC.
func DefaultConfig() Config {
	return Config{
		SelectionWeekday: time.Friday,
		ReweightWeekday:  time.Saturday,
		Location:         time.UTC,
	}
}

type isoWeek struct {
	year int
	week int
}

// Scheduler tracks which ISO weeks have already fired each event. Not safe for concurrent use.
type Scheduler struct {
	cfg          Config
	lastSelect   isoWeek
	lastReweight isoWeek
}

// New builds a scheduler; a nil location means UTC.
func New(cfg Config) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Scheduler{cfg: cfg}
}

// Tick reports the event due on the bar closing at ts. An event whose weekday passed without a
// bar carries forward to the next bar in the same week and fires once.
func (s *Scheduler) Tick(ts time.Time) (Event, bool) {
	local := ts.In(s.cfg.Location)
	if m := s.cfg.IntradayHourModulo; m > 1 && local.Hour()%m != 0 {
		return Event{}, false
	}
	year, week := local.ISOWeek()
	current := isoWeek{year: year, week: week}
	day := isoDay(local.Weekday())

	selectDue := s.lastSelect != current && day >= isoDay(s.cfg.SelectionWeekday)
	reweightDue := s.lastReweight != current && day >= isoDay(s.cfg.ReweightWeekday)

	switch {
	case selectDue:
		s.lastSelect = current
		if reweightDue {
			s.lastReweight = current
		}
		return Event{Kind: PortfolioSelection, Time: ts}, true
	case reweightDue:
		s.lastReweight = current
		return Event{Kind: PositionReweight, Time: ts}, true
	}
	return Event{}, false
}

// isoDay maps Monday..Sunday to 1..7.
func isoDay(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ParseWeekday accepts English names, three-letter abbreviations, or ISO numbers 1 (Monday) to 7.
func ParseWeekday(v string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(v))
	if d, ok := weekdays[key]; ok {
		return d, nil
	}
	if len(key) == 1 && key[0] >= '1' && key[0] <= '7' {
		n := int(key[0] - '0')
		return time.Weekday(n % 7), nil
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", v)
}
