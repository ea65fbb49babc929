// Package signal standardizes the rebalance intents passed from the engine to order placement.
package signal

import (
	"time"

	"momentum-rebalancer/internal/market"
)

// Action enumerates what an intent asks the executor to do.
type Action string

const (
	// Enter opens a position in an asset not currently held.
	Enter Action = "ENTER"
	// Rebalance adjusts a held position to its target weight.
	Rebalance Action = "REBALANCE"
	// Exit closes a held position.
	Exit Action = "EXIT"
)

// Intent expresses one target-weight instruction produced on a rebalance event.
type Intent struct {
	Asset  market.Asset
	Action Action
	Weight float64 // target fraction of equity; 0 for exits
	Score  float64
	Reason string
	Ts     time.Time
	Handle string // venue order handle once submitted
}
