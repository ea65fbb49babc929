package paper

import (
	"math"
	"testing"

	"momentum-rebalancer/internal/execution"
	"momentum-rebalancer/internal/market"
)

func TestMarketFillBuySellPnL(t *testing.T) {
	account := NewAccount(1000)

	if err := account.MarketFill("BTCUSDT", execution.Buy, 0.5, 1000, 0); err != nil {
		t.Fatalf("unexpected buy error: %v", err)
	}
	if err := account.MarketFill("BTCUSDT", execution.Buy, 0.25, 1000, 0); err != nil {
		t.Fatalf("unexpected second buy error: %v", err)
	}

	snap := account.Snapshot(map[market.Asset]float64{"BTCUSDT": 1150})
	pos := snap.Positions["BTCUSDT"]
	if pos.Qty < 0.74 || pos.Qty > 0.76 {
		t.Fatalf("expected qty ~0.75, got %.4f", pos.Qty)
	}
	if pos.AvgCost != 1000 {
		t.Fatalf("avg cost not tracked: %.2f", pos.AvgCost)
	}

	if err := account.MarketFill("BTCUSDT", execution.Sell, 0.25, 1200, 0); err != nil {
		t.Fatalf("unexpected sell error: %v", err)
	}
	if realized := account.RealizedPnL(); math.Abs(realized-50) > 1e-9 {
		t.Fatalf("expected realized pnl 50, got %.2f", realized)
	}

	snap = account.Snapshot(map[market.Asset]float64{"BTCUSDT": 1180})
	if math.Abs(snap.Cash+snap.Positions["BTCUSDT"].MarketValue-snap.Equity) > 1e-6 {
		t.Fatalf("equity did not balance")
	}
}

func TestMarketFillChargesFees(t *testing.T) {
	account := NewAccount(1000)
	if err := account.MarketFill("ETHUSDT", execution.Buy, 1, 500, 0.5); err != nil {
		t.Fatalf("unexpected buy error: %v", err)
	}
	if got := account.AvailableCash(); math.Abs(got-499.5) > 1e-9 {
		t.Fatalf("expected cash 499.5, got %.4f", got)
	}
	if err := account.MarketFill("ETHUSDT", execution.Sell, 1, 500, 0.5); err != nil {
		t.Fatalf("unexpected sell error: %v", err)
	}
	if got := account.Fees(); math.Abs(got-1) > 1e-9 {
		t.Fatalf("expected fees 1, got %.4f", got)
	}
	if got := account.RealizedPnL(); math.Abs(got+1) > 1e-9 {
		t.Fatalf("expected realized -1 after fees, got %.4f", got)
	}
	if account.Position("ETHUSDT") != 0 {
		t.Fatalf("expected flat position")
	}
}

func TestMarketFillInsufficientCash(t *testing.T) {
	account := NewAccount(10)
	if err := account.MarketFill("BTCUSDT", execution.Buy, 0.1, 200, 0); err == nil {
		t.Fatalf("expected cash error")
	}
	if err := account.MarketFill("BTCUSDT", execution.Buy, 0.05, 200, 0.5); err == nil {
		t.Fatalf("expected fee to count against cash")
	}
}

func TestMarketFillInsufficientPosition(t *testing.T) {
	account := NewAccount(1000)
	if err := account.MarketFill("BTCUSDT", execution.Sell, 0.01, 1000, 0); err == nil {
		t.Fatalf("expected insufficient position error")
	}
}

func TestSnapshotUnmarkedPositionAtCost(t *testing.T) {
	account := NewAccount(100)
	if err := account.MarketFill("SOLUSDT", execution.Buy, 2, 10, 0); err != nil {
		t.Fatalf("unexpected buy error: %v", err)
	}
	snap := account.Snapshot(nil)
	if math.Abs(snap.Equity-100) > 1e-9 {
		t.Fatalf("expected equity at cost 100, got %.2f", snap.Equity)
	}
}
