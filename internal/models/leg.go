// Package models provides data structures and state management for the
// sandwich position's legs and lifecycle.
package models

import "time"

// ContractKind identifies the instrument type of a leg.
type ContractKind string

const (
	// KindFuture is an index futures contract.
	KindFuture ContractKind = "FUT"
	// KindCall is a call option (CE in NSE symbology).
	KindCall ContractKind = "CE"
	// KindPut is a put option (PE in NSE symbology).
	KindPut ContractKind = "PE"
)

// Direction is the side of a leg.
type Direction string

const (
	// Long means the leg was bought.
	Long Direction = "BUY"
	// Short means the leg was sold.
	Short Direction = "SELL"
)

// Sign returns the P&L multiplier for the direction: +1 for long, -1 for short.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// LegRole tags the structural purpose of a leg within the sandwich.
type LegRole string

const (
	// Core ("sausage") structure: short future hedged by a long call, funded
	// by a short put.
	RoleCoreFuture   LegRole = "core_future"
	RoleCoreCallLong LegRole = "core_call_long"
	RoleCorePutShort LegRole = "core_put_short"

	// Outer ("bread") structure: the range-bound wings.
	RoleOuterCallShort LegRole = "outer_call_short"
	RoleOuterCallLong  LegRole = "outer_call_long"
	RoleOuterPutShort  LegRole = "outer_put_short"
	RoleOuterPutLong   LegRole = "outer_put_long"
)

// Roles lists every structural role in build order.
var Roles = []LegRole{
	RoleCoreFuture, RoleCoreCallLong, RoleCorePutShort,
	RoleOuterCallShort, RoleOuterCallLong, RoleOuterPutShort, RoleOuterPutLong,
}

// Valid returns true if the role is one of the defined constants.
func (r LegRole) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Leg is one option or future contract within the multi-leg structure.
// Legs are append-only: adjustments close a leg and append a replacement
// rather than mutating strike or role in place, preserving the full audit
// history of the position.
type Leg struct {
	ID           int          `json:"id"`
	Symbol       string       `json:"symbol"`
	Kind         ContractKind `json:"kind"`
	Strike       int          `json:"strike,omitempty"` // zero for futures
	Direction    Direction    `json:"direction"`
	Quantity     int          `json:"quantity"` // lots
	Role         LegRole      `json:"role"`
	EntryPrice   float64      `json:"entry_price"`
	CurrentPrice float64      `json:"current_price"`
	Open         bool         `json:"open"`
	OpenedAt     time.Time    `json:"opened_at"`
	ClosedAt     time.Time    `json:"closed_at,omitempty"`
}

// PnL returns the mark-to-market profit of the leg in index points times
// lots. A closed leg contributes nothing.
func (l *Leg) PnL() float64 {
	if !l.Open {
		return 0
	}
	return (l.CurrentPrice - l.EntryPrice) * l.Direction.Sign() * float64(l.Quantity)
}
