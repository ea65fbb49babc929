package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"momentum-rebalancer/internal/config"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	reader := bufio.NewReader(os.Stdin)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	for {
		fmt.Println("\n=== Momentum Rebalancer ===")
		fmt.Println("1) Show configuration summary")
		fmt.Println("2) Edit strategy knobs")
		fmt.Println("3) Edit rebalance schedule")
		fmt.Println("4) Edit paper account and data source")
		fmt.Println("5) Save config")
		fmt.Println("6) Run backtest")
		fmt.Println("7) Launch paper rebalancer")
		fmt.Println("8) Reload config from disk")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(input)

		switch choice {
		case "1":
			printSummary(cfg)
		case "2":
			editStrategy(reader, cfg)
			reportValidation(cfg)
		case "3":
			editSchedule(reader, cfg)
			reportValidation(cfg)
		case "4":
			editPaper(reader, cfg)
			reportValidation(cfg)
		case "5":
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(os.Stderr, "not saved: %v\n", err)
			} else if err := saveConfig(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved")
			}
		case "6":
			launch(reader, "backtest", false)
		case "7":
			launch(reader, "paper", true)
		case "8":
			reloaded, err := loadConfig()
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
			} else {
				cfg = reloaded
				fmt.Println("config reloaded")
			}
		case "0":
			return
		default:
			fmt.Println("unknown option")
		}
	}
}

func printSummary(cfg *config.Config) {
	s := cfg.Strategy
	fmt.Println("\n--- Configuration Summary ---")
	fmt.Printf("Data: %s (%s bars) dir=%s symbols=%s top=%d\n", cfg.Data.Provider, cfg.Data.Interval, cfg.Data.Dir, strings.Join(cfg.Data.Symbols, ","), cfg.Data.UniverseTop)
	fmt.Printf("Scorer: %s | momentum period %d | volatility period %d\n", s.Scorer, s.MomentumPeriod, s.VolatilityPeriod)
	fmt.Printf("Minimum momentum: %.2f\n", s.MinimumMomentum)
	if s.PortfolioSize > 0 {
		fmt.Printf("Portfolio size: %d assets\n", s.PortfolioSize)
	} else {
		fmt.Printf("Selection: top %.1f%% of universe\n", s.SelectionPercentage*100)
	}
	fmt.Printf("Reserve: %.1f%% | max stake: %.1f%%\n", s.ReserveFraction*100, s.MaximumStake*100)
	fmt.Printf("Selection on %s, reweight on %s (%s)", cfg.Schedule.SelectionWeekday, cfg.Schedule.ReweightWeekday, cfg.App.Timezone)
	if cfg.Schedule.IntradayHourModulo > 1 {
		fmt.Printf(", hours divisible by %d", cfg.Schedule.IntradayHourModulo)
	}
	fmt.Println()
	fmt.Printf("Starting cash: $%.2f | commission %.3f%%\n", cfg.Paper.StartingCash, cfg.Paper.CommissionRate*100)
	fmt.Printf("Per-trade notional: min $%.2f max $%.2f (0 = off)\n", cfg.Paper.MinNotionalPerTrade, cfg.Paper.MaxNotionalPerTrade)
}

func editStrategy(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Strategy ---")
	s := &cfg.Strategy
	s.Scorer = promptString(reader, "Scorer (regression|roc)", s.Scorer)
	s.MomentumPeriod = promptInt(reader, "Momentum period (bars)", s.MomentumPeriod)
	s.VolatilityPeriod = promptInt(reader, "Volatility period (bars)", s.VolatilityPeriod)
	s.MinimumMomentum = promptFloat(reader, "Minimum momentum", s.MinimumMomentum)
	s.PortfolioSize = promptInt(reader, "Portfolio size (0 to select by percentage)", s.PortfolioSize)
	if s.PortfolioSize > 0 {
		s.SelectionPercentage = 0
	} else {
		s.SelectionPercentage = promptPercent(reader, "Selection percentage (%)", s.SelectionPercentage)
	}
	s.ReserveFraction = promptPercent(reader, "Cash reserve (%)", s.ReserveFraction)
	s.MaximumStake = promptPercent(reader, "Maximum stake per asset (%)", s.MaximumStake)
}

func editSchedule(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Schedule ---")
	cfg.Schedule.SelectionWeekday = promptString(reader, "Selection weekday", cfg.Schedule.SelectionWeekday)
	cfg.Schedule.ReweightWeekday = promptString(reader, "Reweight weekday", cfg.Schedule.ReweightWeekday)
	cfg.Schedule.IntradayHourModulo = promptInt(reader, "Intraday hour modulo (0 = off)", cfg.Schedule.IntradayHourModulo)
	cfg.App.Timezone = promptString(reader, "Timezone", cfg.App.Timezone)
}

func editPaper(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Paper Account / Data ---")
	cfg.Paper.StartingCash = promptFloat(reader, "Starting cash", cfg.Paper.StartingCash)
	cfg.Paper.CommissionRate = promptPercent(reader, "Commission (%)", cfg.Paper.CommissionRate)
	cfg.Paper.MinNotionalPerTrade = promptFloat(reader, "Min notional per trade (USD)", cfg.Paper.MinNotionalPerTrade)
	cfg.Paper.MaxNotionalPerTrade = promptFloat(reader, "Max notional per trade (USD)", cfg.Paper.MaxNotionalPerTrade)
	cfg.Data.Provider = promptString(reader, "Data provider (csv|binance|stub)", cfg.Data.Provider)
	cfg.Data.Dir = promptString(reader, "CSV directory", cfg.Data.Dir)
	cfg.Data.Interval = promptString(reader, "Kline interval", cfg.Data.Interval)
	fmt.Printf("Current symbols: %s\n", strings.Join(cfg.Data.Symbols, ", "))
	fmt.Print("Enter symbols comma-separated (blank to keep): ")
	if line, _ := reader.ReadString('\n'); strings.TrimSpace(line) != "" {
		cfg.Data.Symbols = nil
		for _, p := range strings.Split(strings.TrimSpace(line), ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				cfg.Data.Symbols = append(cfg.Data.Symbols, trimmed)
			}
		}
	}
	cfg.Data.UniverseTop = promptInt(reader, "Add top N pairs by volume (0 = off)", cfg.Data.UniverseTop)
}

func reportValidation(cfg *config.Config) {
	if err := cfg.Validate(); err != nil {
		fmt.Printf("warning: %v\n", err)
	}
}

// launch runs a sibling binary against the saved config. Interactive runs stop on ENTER.
func launch(reader *bufio.Reader, name string, interactive bool) {
	fmt.Printf("Launching %s (uses the saved config)...\n", name)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "run", "./cmd/"+name, "-config", locateConfig())
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start %s: %v\n", name, err)
		return
	}
	if !interactive {
		if err := cmd.Wait(); err != nil {
			fmt.Fprintf(os.Stderr, "%s exited: %v\n", name, err)
		}
		return
	}

	go func() {
		_ = cmd.Wait()
		cancel()
	}()

	fmt.Print("\nPress ENTER to stop and return to menu...")
	_, _ = reader.ReadString('\n')
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func promptString(reader *bufio.Reader, label, current string) string {
	fmt.Printf("%s [%s]: ", label, current)
	line, _ := reader.ReadString('\n')
	if line = strings.TrimSpace(line); line == "" {
		return current
	}
	return line
}

func promptInt(reader *bufio.Reader, label string, current int) int {
	fmt.Printf("%s [%d]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.Atoi(line)
	if err != nil {
		fmt.Printf("invalid number, keeping %d\n", current)
		return current
	}
	return val
}

func promptFloat(reader *bufio.Reader, label string, current float64) float64 {
	fmt.Printf("%s [%.2f]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseFloat(line, 64)
	if err != nil {
		fmt.Printf("invalid number, keeping %.2f\n", current)
		return current
	}
	return val
}

func promptPercent(reader *bufio.Reader, label string, current float64) float64 {
	pct := promptFloat(reader, label, current*100)
	return pct / 100
}

func loadConfig() (*config.Config, error) {
	return config.Load(locateConfig())
}

func saveConfig(cfg *config.Config) error {
	return config.Save(locateConfig(), cfg)
}

func locateConfig() string {
	if filepath.IsAbs(defaultConfigPath) {
		return defaultConfigPath
	}
	return filepath.Clean(defaultConfigPath)
}
