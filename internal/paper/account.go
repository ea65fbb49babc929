package paper

import (
	"errors"
	"sync"

	"momentum-rebalancer/internal/execution"
	"momentum-rebalancer/internal/market"
)

// FillRecorder captures paper fills for later inspection.
type FillRecorder interface {
	Record(execution.Fill)
}

const epsilon = 1e-9

type positionState struct {
	Qty     float64
	AvgCost float64
}

// Account tracks virtual cash, realized PnL, fees, and per-asset positions while trading in paper mode.
type Account struct {
	mu           sync.Mutex
	startingCash float64
	cash         float64
	realizedPnL  float64
	fees         float64
	positions    map[market.Asset]positionState
}

// PositionSnapshot exposes a read-only view of a single asset position.
type PositionSnapshot struct {
	Qty         float64
	AvgCost     float64
	MarketValue float64
	Unrealized  float64
}

// Snapshot represents a thread-safe view of the account state, marked to market using provided prices.
type Snapshot struct {
	Cash        float64
	RealizedPnL float64
	Fees        float64
	Equity      float64
	Positions   map[market.Asset]PositionSnapshot
}

// NewAccount constructs an account populated with starting cash.
func NewAccount(startingCash float64) *Account {
	return &Account{
		startingCash: startingCash,
		cash:         startingCash,
		positions:    make(map[market.Asset]positionState),
	}
}

// StartingCash returns the initial bankroll used to compute returns and drawdown.
func (a *Account) StartingCash() float64 { return a.startingCash }

// MarketFill executes a market order at price, charging fee in cash. Realized PnL is net of fees.
func (a *Account) MarketFill(asset market.Asset, side execution.Side, qty, price, fee float64) error {
	if qty <= 0 {
		return errors.New("quantity must be positive")
	}
	if price <= 0 {
		return errors.New("price must be positive")
	}
	if fee < 0 {
		return errors.New("fee must not be negative")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	state := a.positions[asset]
	notional := qty * price

	switch side {
	case execution.Buy:
		if notional+fee > a.cash+epsilon {
			return errors.New("insufficient cash for buy")
		}
		newQty := state.Qty + qty
		newAvg := ((state.AvgCost * state.Qty) + notional) / newQty
		a.cash -= notional + fee
		a.positions[asset] = positionState{Qty: newQty, AvgCost: newAvg}

	case execution.Sell:
		if state.Qty <= 0 || state.Qty+epsilon < qty {
			return errors.New("insufficient position to sell")
		}
		if qty > state.Qty {
			qty = state.Qty
			notional = qty * price
		}
		a.realizedPnL += (price - state.AvgCost) * qty
		a.cash += notional - fee
		newQty := state.Qty - qty
		if newQty <= epsilon {
			delete(a.positions, asset)
		} else {
			a.positions[asset] = positionState{Qty: newQty, AvgCost: state.AvgCost}
		}

	default:
		return errors.New("unknown order side")
	}
	a.realizedPnL -= fee
	a.fees += fee
	return nil
}

// Snapshot returns a copy of balances marked using the supplied prices. Unmarked positions count at cost.
func (a *Account) Snapshot(prices map[market.Asset]float64) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	positions := make(map[market.Asset]PositionSnapshot, len(a.positions))
	equity := a.cash
	for asset, pos := range a.positions {
		mark, ok := prices[asset]
		if !ok || mark <= 0 {
			mark = pos.AvgCost
		}
		marketValue := pos.Qty * mark
		positions[asset] = PositionSnapshot{
			Qty:         pos.Qty,
			AvgCost:     pos.AvgCost,
			MarketValue: marketValue,
			Unrealized:  (mark - pos.AvgCost) * pos.Qty,
		}
		equity += marketValue
	}

	return Snapshot{
		Cash:        a.cash,
		RealizedPnL: a.realizedPnL,
		Fees:        a.fees,
		Equity:      equity,
		Positions:   positions,
	}
}

// AvailableCash reports free cash that can be deployed into new longs.
func (a *Account) AvailableCash() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cash
}

// Position returns the current position size for the supplied asset.
func (a *Account) Position(asset market.Asset) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.positions[asset].Qty
}

// RealizedPnL returns total closed-trade profit and loss net of fees.
func (a *Account) RealizedPnL() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realizedPnL
}

// Fees returns total commission paid.
func (a *Account) Fees() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fees
}
