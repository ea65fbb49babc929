// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"momentum-rebalancer/internal/risk"
	"momentum-rebalancer/internal/schedule"
	"momentum-rebalancer/internal/strategy"
)

// ErrInvalidConfig marks settings the rebalancer cannot run with.
var ErrInvalidConfig = errors.New("invalid config")

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	Timezone    string `yaml:"timezone"`
}

// Data selects where bars come from.
type Data struct {
	Provider    string   `yaml:"provider"`
	Dir         string   `yaml:"dir"`
	Interval    string   `yaml:"interval"`
	Symbols     []string `yaml:"symbols"`
	UniverseTop int      `yaml:"universe_top"`
	RESTURL     string   `yaml:"rest_url"`
	WSURL       string   `yaml:"ws_url"`
}

// Strategy holds the ranking and allocation knobs.
type Strategy struct {
	Scorer               string  `yaml:"scorer"`
	MomentumPeriod       int     `yaml:"momentum_period"`
	VolatilityPeriod     int     `yaml:"volatility_period"`
	AnnualizationPeriods int     `yaml:"annualization_periods"`
	MinimumMomentum      float64 `yaml:"minimum_momentum"`
	PortfolioSize        int     `yaml:"portfolio_size"`
	SelectionPercentage  float64 `yaml:"selection_percentage"`
	ReserveFraction      float64 `yaml:"reserve_fraction"`
	MaximumStake         float64 `yaml:"maximum_stake"`
}

// Schedule anchors the two rebalance events.
type Schedule struct {
	SelectionWeekday   string `yaml:"rebalance_weekday_selection"`
	ReweightWeekday    string `yaml:"rebalance_weekday_reweight"`
	IntradayHourModulo int    `yaml:"intraday_hour_modulo"`
}

// Paper captures paper-trading account settings such as starting cash, commission, and trade caps.
type Paper struct {
	StartingCash        float64 `yaml:"starting_cash"`
	CommissionRate      float64 `yaml:"commission_rate"`
	MaxNotionalPerTrade float64 `yaml:"max_notional_per_trade"`
	MinNotionalPerTrade float64 `yaml:"min_notional_per_trade"`
	FillsPath           string  `yaml:"fills_path"`
	EquityPath          string  `yaml:"equity_path"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Data     Data     `yaml:"data"`
	Strategy Strategy `yaml:"strategy"`
	Schedule Schedule `yaml:"schedule"`
	Paper    Paper    `yaml:"paper"`
}

// Default returns the settings used for any key the YAML file leaves out.
func Default() *Config {
	return &Config{
		App: App{
			Name:        "momentum-rebalancer",
			Env:         "dev",
			MetricsAddr: ":9102",
			LogLevel:    "info",
			Timezone:    "UTC",
		},
		Data: Data{
			Provider: "csv",
			Dir:      "data",
			Interval: "1d",
		},
		Strategy: Strategy{
			Scorer:               "regression",
			MomentumPeriod:       90,
			VolatilityPeriod:     20,
			AnnualizationPeriods: 365,
			MinimumMomentum:      40,
			PortfolioSize:        10,
			ReserveFraction:      0.05,
			MaximumStake:         0.2,
		},
		Schedule: Schedule{
			SelectionWeekday: "friday",
			ReweightWeekday:  "saturday",
		},
		Paper: Paper{
			StartingCash:   10000,
			CommissionRate: 0.001,
		},
	}
}

// Load reads a YAML file from disk over the defaults, applies REBALANCER_* overrides from the
// environment (or a .env file next to the working directory) and validates the result.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	cfg := Default()
	if err := yaml.NewDecoder(file).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := cfg.ApplyEnv(EnvLookup(".env")); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// EnvLookup resolves variables from the process environment first, then from the given dotenv
// files. Missing dotenv files are ignored.
func EnvLookup(dotenvPaths ...string) func(string) (string, bool) {
	fileVars := make(map[string]string)
	for _, p := range dotenvPaths {
		vars, err := godotenv.Read(p)
		if err != nil {
			continue
		}
		for k, v := range vars {
			if _, seen := fileVars[k]; !seen {
				fileVars[k] = v
			}
		}
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileVars[key]
		return v, ok
	}
}

const envPrefix = "REBALANCER_"

// ApplyEnv overrides selected keys from REBALANCER_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		return nil
	}
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	num := func(name string, dst *float64) {
		v, ok := lookup(envPrefix + name)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
			return
		}
		*dst = f
	}
	integer := func(name string, dst *int) {
		v, ok := lookup(envPrefix + name)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
			return
		}
		*dst = n
	}

	str("LOG_LEVEL", &c.App.LogLevel)
	str("METRICS_ADDR", &c.App.MetricsAddr)
	str("TIMEZONE", &c.App.Timezone)
	str("DATA_PROVIDER", &c.Data.Provider)
	str("DATA_DIR", &c.Data.Dir)
	str("DATA_INTERVAL", &c.Data.Interval)
	str("REST_URL", &c.Data.RESTURL)
	str("WS_URL", &c.Data.WSURL)
	if v, ok := lookup(envPrefix + "SYMBOLS"); ok && strings.TrimSpace(v) != "" {
		c.Data.Symbols = splitList(v)
	}
	integer("UNIVERSE_TOP", &c.Data.UniverseTop)

	str("SCORER", &c.Strategy.Scorer)
	integer("MOMENTUM_PERIOD", &c.Strategy.MomentumPeriod)
	integer("VOLATILITY_PERIOD", &c.Strategy.VolatilityPeriod)
	integer("ANNUALIZATION_PERIODS", &c.Strategy.AnnualizationPeriods)
	num("MINIMUM_MOMENTUM", &c.Strategy.MinimumMomentum)
	integer("PORTFOLIO_SIZE", &c.Strategy.PortfolioSize)
	num("SELECTION_PERCENTAGE", &c.Strategy.SelectionPercentage)
	num("RESERVE_FRACTION", &c.Strategy.ReserveFraction)
	num("MAXIMUM_STAKE", &c.Strategy.MaximumStake)

	str("REBALANCE_WEEKDAY_SELECTION", &c.Schedule.SelectionWeekday)
	str("REBALANCE_WEEKDAY_REWEIGHT", &c.Schedule.ReweightWeekday)
	integer("INTRADAY_HOUR_MODULO", &c.Schedule.IntradayHourModulo)

	num("STARTING_CASH", &c.Paper.StartingCash)
	num("COMMISSION_RATE", &c.Paper.CommissionRate)
	num("MAX_NOTIONAL_PER_TRADE", &c.Paper.MaxNotionalPerTrade)
	num("MIN_NOTIONAL_PER_TRADE", &c.Paper.MinNotionalPerTrade)
	str("FILLS_PATH", &c.Paper.FillsPath)
	str("EQUITY_PATH", &c.Paper.EquityPath)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports every problem at once, each wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	s := c.Strategy
	if !strategy.KnownMode(s.Scorer) {
		add("strategy.scorer %q unknown", s.Scorer)
	}
	if s.MomentumPeriod < 2 {
		add("strategy.momentum_period must be at least 2, got %d", s.MomentumPeriod)
	}
	if s.VolatilityPeriod < 2 {
		add("strategy.volatility_period must be at least 2, got %d", s.VolatilityPeriod)
	}
	if s.AnnualizationPeriods <= 0 {
		add("strategy.annualization_periods must be positive, got %d", s.AnnualizationPeriods)
	}
	if math.IsNaN(s.MinimumMomentum) || math.IsInf(s.MinimumMomentum, 0) {
		add("strategy.minimum_momentum must be finite")
	}
	switch {
	case s.PortfolioSize > 0 && s.SelectionPercentage > 0:
		add("strategy.portfolio_size and strategy.selection_percentage are mutually exclusive")
	case s.PortfolioSize <= 0 && s.SelectionPercentage <= 0:
		add("one of strategy.portfolio_size or strategy.selection_percentage is required")
	case s.SelectionPercentage > 1:
		add("strategy.selection_percentage %.4f outside (0,1]", s.SelectionPercentage)
	case s.PortfolioSize < 0:
		add("strategy.portfolio_size must not be negative")
	}
	if _, err := strategy.NewWeighter(s.ReserveFraction, s.MaximumStake); err != nil {
		add("allocation infeasible: %v", err)
	}

	sel, selErr := schedule.ParseWeekday(c.Schedule.SelectionWeekday)
	if selErr != nil {
		add("schedule.rebalance_weekday_selection: %v", selErr)
	}
	rew, rewErr := schedule.ParseWeekday(c.Schedule.ReweightWeekday)
	if rewErr != nil {
		add("schedule.rebalance_weekday_reweight: %v", rewErr)
	}
	if selErr == nil && rewErr == nil && sel == rew {
		add("schedule weekdays must differ, both are %s", sel)
	}
	if m := c.Schedule.IntradayHourModulo; m < 0 || m > 23 {
		add("schedule.intraday_hour_modulo %d outside [0,23]", m)
	}
	if _, err := c.Location(); err != nil {
		add("app.timezone: %v", err)
	}

	switch strings.ToLower(c.Data.Provider) {
	case "stub", "binance":
	case "csv":
		if strings.TrimSpace(c.Data.Dir) == "" {
			add("data.dir is required for the csv provider")
		}
	default:
		add("data.provider %q unknown", c.Data.Provider)
	}
	if c.Data.UniverseTop < 0 {
		add("data.universe_top must not be negative")
	}

	p := c.Paper
	if p.StartingCash <= 0 {
		add("paper.starting_cash must be positive")
	}
	if p.CommissionRate < 0 || p.CommissionRate >= 1 {
		add("paper.commission_rate %.4f outside [0,1)", p.CommissionRate)
	}
	if p.MaxNotionalPerTrade < 0 || p.MinNotionalPerTrade < 0 {
		add("paper notional limits must not be negative")
	}
	if p.MaxNotionalPerTrade > 0 && p.MinNotionalPerTrade > p.MaxNotionalPerTrade {
		add("paper.min_notional_per_trade exceeds paper.max_notional_per_trade")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Location resolves app.timezone; empty means UTC.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.App.Timezone)
	if tz == "" || strings.EqualFold(tz, "utc") {
		return time.UTC, nil
	}
	return time.LoadLocation(tz)
}

// ScheduleConfig converts the schedule section for the scheduler.
func (c *Config) ScheduleConfig() (schedule.Config, error) {
	sel, err := schedule.ParseWeekday(c.Schedule.SelectionWeekday)
	if err != nil {
		return schedule.Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	rew, err := schedule.ParseWeekday(c.Schedule.ReweightWeekday)
	if err != nil {
		return schedule.Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	loc, err := c.Location()
	if err != nil {
		return schedule.Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return schedule.Config{
		SelectionWeekday:   sel,
		ReweightWeekday:    rew,
		IntradayHourModulo: c.Schedule.IntradayHourModulo,
		Location:           loc,
	}, nil
}

// SelectionPolicy returns the configured selection sizing.
func (c *Config) SelectionPolicy() strategy.SelectionPolicy {
	return strategy.SelectionPolicy{Size: c.Strategy.PortfolioSize, Percentage: c.Strategy.SelectionPercentage}
}

// Limits returns the paper venue's per-trade notional bounds.
func (c *Config) Limits() risk.Limits {
	return risk.Limits{MaxNotionalPerTrade: c.Paper.MaxNotionalPerTrade, MinNotionalPerTrade: c.Paper.MinNotionalPerTrade}
}

// HistoryDepth is the number of closes per asset the rebalancer needs to keep.
func (c *Config) HistoryDepth() int {
	depth := c.Strategy.MomentumPeriod
	if v := c.Strategy.VolatilityPeriod + 1; v > depth {
		depth = v
	}
	return depth
}
