// Package execution handles the order lifecycle between the rebalance engine and a venue.
package execution

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"momentum-rebalancer/internal/market"
)

// ErrOrderRejected wraps every venue-side rejection.
var ErrOrderRejected = errors.New("order rejected")

// Side enumerates order directions used by the executor.
type Side string

const (
	// Buy indicates a long order.
	Buy Side = "BUY"
	// Sell indicates a reducing order.
	Sell Side = "SELL"
)

// OrderHandle is the opaque identifier a venue returns for a submitted order.
type OrderHandle string

// Order represents a target-weight placement request.
type Order struct {
	Handle OrderHandle
	Asset  market.Asset
	Weight float64 // target fraction of equity
	Close  bool    // liquidate regardless of weight
	Ts     time.Time
}

// Fill is the venue acknowledgement of an executed order.
type Fill struct {
	Handle     OrderHandle
	Asset      market.Asset
	Side       Side
	Qty        float64
	Price      float64
	Commission float64
	Ts         time.Time
}

// Notional returns qty·price.
func (f Fill) Notional() float64 { return f.Qty * f.Price }

// AckHandler receives order outcomes. Venues call it on the bar loop goroutine.
type AckHandler interface {
	OnFill(fill Fill)
	OnReject(handle OrderHandle, reason error)
}

// Rejection wraps a reason as ErrOrderRejected.
func Rejection(asset market.Asset, reason string) error {
	return fmt.Errorf("%s: %s: %w", asset, reason, ErrOrderRejected)
}

// Venue accepts target-weight orders and acknowledges them later through an AckHandler.
type Venue interface {
	SubmitTargetWeight(asset market.Asset, weight float64) (OrderHandle, error)
	SubmitClose(asset market.Asset) (OrderHandle, error)
}

// Executor logs every submission and forwards it to a venue. Without a venue it is a dry run:
// orders get sequential handles and are never acknowledged.
type Executor struct {
	log   zerolog.Logger
	venue Venue
	seq   int
}

// NewExecutor wraps a zerolog logger for order submissions. venue may be nil.
func NewExecutor(log zerolog.Logger, venue Venue) *Executor {
	return &Executor{log: log, venue: venue}
}

// SubmitTargetWeight logs the order and hands it to the venue.
func (executor *Executor) SubmitTargetWeight(asset market.Asset, weight float64) (OrderHandle, error) {
	var (
		handle OrderHandle
		err    error
	)
	if executor.venue != nil {
		handle, err = executor.venue.SubmitTargetWeight(asset, weight)
	} else {
		handle = executor.dryHandle()
	}
	executor.logSubmit(err, asset, handle).Float64("weight", weight).Msg("submit target weight")
	return handle, err
}

// SubmitClose logs a liquidation request and hands it to the venue.
func (executor *Executor) SubmitClose(asset market.Asset) (OrderHandle, error) {
	var (
		handle OrderHandle
		err    error
	)
	if executor.venue != nil {
		handle, err = executor.venue.SubmitClose(asset)
	} else {
		handle = executor.dryHandle()
	}
	executor.logSubmit(err, asset, handle).Msg("submit close")
	return handle, err
}

func (executor *Executor) dryHandle() OrderHandle {
	executor.seq++
	return OrderHandle(fmt.Sprintf("dry-%d", executor.seq))
}

func (executor *Executor) logSubmit(err error, asset market.Asset, handle OrderHandle) *zerolog.Event {
	if err != nil {
		return executor.log.Warn().Err(err).Str("asset", string(asset))
	}
	return executor.log.Debug().Str("asset", string(asset)).Str("handle", string(handle)).Bool("dry_run", executor.venue == nil)
}
