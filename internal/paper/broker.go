// Package paper simulates a spot venue: virtual cash, target-weight order sizing at the bar close,
// fees, and a fill journal.
package paper

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"momentum-rebalancer/internal/commission"
	"momentum-rebalancer/internal/execution"
	"momentum-rebalancer/internal/market"
	"momentum-rebalancer/internal/metrics"
	"momentum-rebalancer/internal/risk"
)

// Option customises a Broker.
type Option func(*Broker)

// WithRecorder adds a fill sink; may be given more than once.
func WithRecorder(rec FillRecorder) Option {
	return func(b *Broker) {
		if rec != nil {
			b.recorders = append(b.recorders, rec)
		}
	}
}

// WithLimits applies per-order notional bounds.
func WithLimits(l risk.Limits) Option {
	return func(b *Broker) { b.limits = l }
}

// Broker queues target-weight orders and fills them against the next marks passed to Settle.
type Broker struct {
	mu         sync.Mutex
	account    *Account
	commission commission.Model
	limits     risk.Limits
	recorders  []FillRecorder
	log        zerolog.Logger
	queue      []execution.Order
}

// NewBroker wraps an account. A nil commission model charges nothing.
func NewBroker(account *Account, model commission.Model, log zerolog.Logger, opts ...Option) *Broker {
	if model == nil {
		model = commission.Free{}
	}
	b := &Broker{account: account, commission: model, log: log}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Account exposes the underlying account.
func (b *Broker) Account() *Account { return b.account }

// SubmitTargetWeight queues an order resizing asset to weight·equity at settlement.
func (b *Broker) SubmitTargetWeight(asset market.Asset, weight float64) (execution.OrderHandle, error) {
	if weight < 0 || weight > 1 || math.IsNaN(weight) {
		return "", execution.Rejection(asset, "target weight outside [0,1]")
	}
	return b.enqueue(execution.Order{Asset: asset, Weight: weight}), nil
}

// SubmitClose queues a full liquidation of asset.
func (b *Broker) SubmitClose(asset market.Asset) (execution.OrderHandle, error) {
	return b.enqueue(execution.Order{Asset: asset, Close: true}), nil
}

func (b *Broker) enqueue(order execution.Order) execution.OrderHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	order.Handle = execution.OrderHandle(uuid.NewString())
	b.queue = append(b.queue, order)
	return order.Handle
}

// Pending returns the number of queued orders.
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

type plannedOrder struct {
	execution.Order
	side  execution.Side
	qty   float64
	price float64
	entry bool
}

// Settle fills every queued order at the supplied marks and reports each outcome to handler.
// Target quantities are sized from equity before any order executes; sells run before buys so
// exits fund entries.
func (b *Broker) Settle(marks map[market.Asset]float64, ts time.Time, handler execution.AckHandler) []execution.Fill {
	b.mu.Lock()
	queue := b.queue
	b.queue = nil
	b.mu.Unlock()
	if len(queue) == 0 {
		return nil
	}

	equity := b.account.Snapshot(marks).Equity
	var sells, buys []plannedOrder
	var fills []execution.Fill
	for _, order := range queue {
		price := marks[order.Asset]
		if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
			b.reject(order, "no mark price", handler)
			continue
		}
		current := b.account.Position(order.Asset)
		target := 0.0
		if !order.Close {
			target = order.Weight * equity / price
		}
		delta := target - current
		plan := plannedOrder{Order: order, price: price, entry: current <= epsilon && !order.Close}
		switch {
		case math.Abs(delta)*price < epsilon:
			fills = append(fills, b.acknowledge(order, execution.Buy, 0, price, ts, handler))
		case delta < 0:
			plan.side, plan.qty = execution.Sell, -delta
			sells = append(sells, plan)
		default:
			plan.side, plan.qty = execution.Buy, delta
			buys = append(buys, plan)
		}
	}

	for _, plan := range append(sells, buys...) {
		if fill, ok := b.execute(plan, ts, handler); ok {
			fills = append(fills, fill)
		}
	}
	metrics.PortfolioEquity.Set(b.account.Snapshot(marks).Equity)
	return fills
}

func (b *Broker) execute(plan plannedOrder, ts time.Time, handler execution.AckHandler) (execution.Fill, bool) {
	qty := plan.qty
	notional := qty * plan.price

	if plan.side == execution.Buy {
		if clamped := b.limits.Clamp(notional); clamped < notional {
			qty = clamped / plan.price
		}
		// shrink to what cash can pay for, fee included, with headroom for fee rounding
		unitCost := plan.price + b.commission.Fee(1, plan.price)
		if affordable := b.account.AvailableCash() / unitCost * (1 - 1e-9); qty > affordable {
			qty = affordable
		}
		notional = qty * plan.price
	}

	if !plan.Close && !b.limits.Allow(notional) && notional < b.limits.MinNotionalPerTrade {
		if plan.entry {
			b.reject(plan.Order, b.limits.Check(notional).Error(), handler)
			return execution.Fill{}, false
		}
		// resize too small to trade; acknowledge without touching the account
		return b.acknowledge(plan.Order, plan.side, 0, plan.price, ts, handler), true
	}
	if qty <= epsilon {
		b.reject(plan.Order, "insufficient cash", handler)
		return execution.Fill{}, false
	}

	fee := b.commission.Fee(qty, plan.price)
	if err := b.account.MarketFill(plan.Asset, plan.side, qty, plan.price, fee); err != nil {
		b.reject(plan.Order, err.Error(), handler)
		return execution.Fill{}, false
	}
	return b.acknowledge(plan.Order, plan.side, qty, plan.price, ts, handler), true
}

func (b *Broker) acknowledge(order execution.Order, side execution.Side, qty, price float64, ts time.Time, handler execution.AckHandler) execution.Fill {
	fill := execution.Fill{
		Handle: order.Handle,
		Asset:  order.Asset,
		Side:   side,
		Qty:    qty,
		Price:  price,
		Ts:     ts,
	}
	if qty > 0 {
		fill.Commission = b.commission.Fee(qty, price)
		metrics.OrdersTotal.WithLabelValues(string(order.Asset), string(side)).Inc()
		b.log.Info().
			Str("asset", string(order.Asset)).
			Str("side", string(side)).
			Float64("qty", qty).
			Float64("px", price).
			Float64("fee", fill.Commission).
			Str("handle", string(order.Handle)).
			Msg("paper fill")
	}
	for _, rec := range b.recorders {
		rec.Record(fill)
	}
	if handler != nil {
		handler.OnFill(fill)
	}
	return fill
}

func (b *Broker) reject(order execution.Order, reason string, handler execution.AckHandler) {
	err := execution.Rejection(order.Asset, reason)
	metrics.OrderRejectsTotal.WithLabelValues(string(order.Asset)).Inc()
	b.log.Warn().Err(err).Str("handle", string(order.Handle)).Msg("paper order rejected")
	if handler != nil {
		handler.OnReject(order.Handle, err)
	}
}
