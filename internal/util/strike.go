// Package util provides pure helpers for strike and instrument symbol arithmetic.
package util

import (
	"fmt"
	"math"
	"time"
)

// StrikeStep is the BankNifty strike grid in index points.
const StrikeStep = 100

// RoundStrike maps a raw price level to the nearest strike on the grid.
// Ties round away from zero (math.Round), so 45050 becomes 45100. The same
// rule is used everywhere a strike is computed; applying it to an
// already-rounded strike returns the same value.
func RoundStrike(level float64) int {
	return int(math.Round(level/StrikeStep)) * StrikeStep
}

// OptionSymbol returns the canonical NFO-style identifier for an option
// contract, e.g. BANKNIFTY25103044600PE.
func OptionSymbol(underlying string, expiry time.Time, strike int, kind string) string {
	return fmt.Sprintf("%s%s%d%s", underlying, expiry.Format("060102"), strike, kind)
}

// FutureSymbol returns the canonical identifier for a futures contract,
// e.g. BANKNIFTY251030FUT.
func FutureSymbol(underlying string, expiry time.Time) string {
	return fmt.Sprintf("%sFUT", underlying+expiry.Format("060102"))
}
