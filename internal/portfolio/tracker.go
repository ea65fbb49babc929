// Package portfolio owns the held set and the order state of each position.
package portfolio

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"momentum-rebalancer/internal/execution"
	"momentum-rebalancer/internal/market"
)

const epsilon = 1e-9

// State is the lifecycle stage of one asset.
type State int

const (
	Unheld State = iota
	PendingBuy
	Held
	PendingSell
)

func (s State) String() string {
	switch s {
	case Unheld:
		return "unheld"
	case PendingBuy:
		return "pending_buy"
	case Held:
		return "held"
	case PendingSell:
		return "pending_sell"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Position is the tracker's record for one asset.
type Position struct {
	Asset  market.Asset
	Size   float64
	State  State
	Handle execution.OrderHandle // in-flight order, empty when idle

	prior State
}

// InFlight reports whether an order awaits acknowledgement.
func (p Position) InFlight() bool { return p.Handle != "" }

// Tracker is the single source of truth for what is held. It carries no locks; drive it from
// the bar loop goroutine only.
type Tracker struct {
	positions map[market.Asset]*Position
	byHandle  map[execution.OrderHandle]market.Asset
	log       zerolog.Logger
}

// NewTracker returns an empty tracker.
func NewTracker(log zerolog.Logger) *Tracker {
	return &Tracker{
		positions: make(map[market.Asset]*Position),
		byHandle:  make(map[execution.OrderHandle]market.Asset),
		log:       log,
	}
}

// State returns the asset's state; unknown assets are Unheld.
func (t *Tracker) State(asset market.Asset) State {
	if p, ok := t.positions[asset]; ok {
		return p.State
	}
	return Unheld
}

// Position returns a copy of the asset's record.
func (t *Tracker) Position(asset market.Asset) (Position, bool) {
	p, ok := t.positions[asset]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// InFlight reports whether the asset has an unacknowledged order.
func (t *Tracker) InFlight(asset market.Asset) bool {
	p, ok := t.positions[asset]
	return ok && p.InFlight()
}

// Held lists assets in the Held state in symbol order, including those with an in-flight reweight.
func (t *Tracker) Held() []market.Asset {
	return t.filter(func(p *Position) bool { return p.State == Held })
}

// Pending lists assets awaiting a buy or sell acknowledgement.
func (t *Tracker) Pending() []market.Asset {
	return t.filter(func(p *Position) bool { return p.State == PendingBuy || p.State == PendingSell })
}

// Occupied lists every asset that takes a slot: held or pending either way.
func (t *Tracker) Occupied() []market.Asset {
	return t.filter(func(p *Position) bool { return p.State != Unheld })
}

func (t *Tracker) filter(keep func(*Position) bool) []market.Asset {
	out := make([]market.Asset, 0, len(t.positions))
	for asset, p := range t.positions {
		if keep(p) {
			out = append(out, asset)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarkBuy records an entry order: Unheld → PendingBuy.
func (t *Tracker) MarkBuy(asset market.Asset, handle execution.OrderHandle) error {
	p := t.get(asset)
	if p.State != Unheld || p.InFlight() {
		return fmt.Errorf("mark buy %s: state %s", asset, p.State)
	}
	t.attach(p, handle, PendingBuy)
	return nil
}

// MarkReweight records a resize order on a held asset; the state stays Held.
func (t *Tracker) MarkReweight(asset market.Asset, handle execution.OrderHandle) error {
	p, ok := t.positions[asset]
	if !ok || p.State != Held || p.InFlight() {
		return fmt.Errorf("mark reweight %s: state %s", asset, t.State(asset))
	}
	t.attach(p, handle, Held)
	return nil
}

// MarkSell records an exit order: Held → PendingSell.
func (t *Tracker) MarkSell(asset market.Asset, handle execution.OrderHandle) error {
	p, ok := t.positions[asset]
	if !ok || p.State != Held || p.InFlight() {
		return fmt.Errorf("mark sell %s: state %s", asset, t.State(asset))
	}
	t.attach(p, handle, PendingSell)
	return nil
}

func (t *Tracker) get(asset market.Asset) *Position {
	p, ok := t.positions[asset]
	if !ok {
		p = &Position{Asset: asset}
		t.positions[asset] = p
	}
	return p
}

func (t *Tracker) attach(p *Position, handle execution.OrderHandle, next State) {
	p.prior = p.State
	p.State = next
	p.Handle = handle
	t.byHandle[handle] = p.Asset
}

func (t *Tracker) release(handle execution.OrderHandle) (*Position, bool) {
	asset, ok := t.byHandle[handle]
	if !ok {
		return nil, false
	}
	delete(t.byHandle, handle)
	p := t.positions[asset]
	if p == nil || p.Handle != handle {
		return nil, false
	}
	p.Handle = ""
	return p, true
}

// OnFill applies an execution acknowledgement. Each handle resolves exactly once.
func (t *Tracker) OnFill(fill execution.Fill) {
	p, ok := t.release(fill.Handle)
	if !ok {
		t.log.Warn().Str("handle", string(fill.Handle)).Str("asset", string(fill.Asset)).Msg("fill for unknown handle")
		return
	}
	switch fill.Side {
	case execution.Buy:
		p.Size += fill.Qty
	case execution.Sell:
		p.Size -= fill.Qty
	}
	if math.Abs(p.Size) < epsilon {
		p.Size = 0
	}

	switch p.State {
	case PendingBuy, Held:
		if p.Size > 0 {
			p.State = Held
		} else {
			p.State = Unheld
		}
	case PendingSell:
		if p.Size > 0 {
			t.log.Warn().Str("asset", string(p.Asset)).Float64("residual", p.Size).Msg("exit left residual size")
		}
		p.State = Unheld
		p.Size = 0
	}
	if p.State == Unheld {
		delete(t.positions, p.Asset)
	}
	t.log.Debug().Str("asset", string(p.Asset)).Str("state", p.State.String()).Float64("size", p.Size).Msg("position updated")
}

// OnReject reverts the asset to the state it had before the order. No retry is scheduled.
func (t *Tracker) OnReject(handle execution.OrderHandle, reason error) {
	p, ok := t.release(handle)
	if !ok {
		t.log.Warn().Str("handle", string(handle)).Msg("reject for unknown handle")
		return
	}
	p.State = p.prior
	t.log.Warn().Err(reason).Str("asset", string(p.Asset)).Str("state", p.State.String()).Msg("order rejected")
	if p.State == Unheld && p.Size == 0 {
		delete(t.positions, p.Asset)
	}
}
