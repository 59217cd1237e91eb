package models

import (
	"fmt"
	"time"
)

// LegBook is an arena of Leg records indexed by a monotonically increasing
// id. "Open legs" is always a computed view over the arena, never a second
// owned collection that could desynchronize.
type LegBook struct {
	legs   []Leg
	nextID int
}

// NewLegBook returns an empty book. Ids start at 1.
func NewLegBook() *LegBook {
	return &LegBook{nextID: 1}
}

// Append assigns the next id, marks the leg open and stores it. The stored
// leg is returned so callers can read the assigned id.
func (b *LegBook) Append(leg Leg) *Leg {
	leg.ID = b.nextID
	leg.Open = true
	b.nextID++
	b.legs = append(b.legs, leg)
	return &b.legs[len(b.legs)-1]
}

// Len returns the total number of legs ever recorded, open or closed.
func (b *LegBook) Len() int {
	return len(b.legs)
}

// All returns a copy of every leg in append order.
func (b *LegBook) All() []Leg {
	out := make([]Leg, len(b.legs))
	copy(out, b.legs)
	return out
}

// OpenLegs returns pointers to every open leg in append order.
func (b *LegBook) OpenLegs() []*Leg {
	var out []*Leg
	for i := range b.legs {
		if b.legs[i].Open {
			out = append(out, &b.legs[i])
		}
	}
	return out
}

// OpenCount returns the number of open legs.
func (b *LegBook) OpenCount() int {
	n := 0
	for i := range b.legs {
		if b.legs[i].Open {
			n++
		}
	}
	return n
}

// ClosedCount returns the number of closed legs.
func (b *LegBook) ClosedCount() int {
	return len(b.legs) - b.OpenCount()
}

// OpenByRole returns the open leg holding the given role, or nil if none.
// At most one generation of legs per role is open at any time; see
// ValidateRoles.
func (b *LegBook) OpenByRole(role LegRole) *Leg {
	for i := range b.legs {
		if b.legs[i].Open && b.legs[i].Role == role {
			return &b.legs[i]
		}
	}
	return nil
}

// CloseRole marks every open leg of the role closed and returns how many
// were closed.
func (b *LegBook) CloseRole(role LegRole, at time.Time) int {
	n := 0
	for i := range b.legs {
		if b.legs[i].Open && b.legs[i].Role == role {
			b.legs[i].Open = false
			b.legs[i].ClosedAt = at
			n++
		}
	}
	return n
}

// CloseAll marks every open leg closed and returns how many were closed.
func (b *LegBook) CloseAll(at time.Time) int {
	n := 0
	for i := range b.legs {
		if b.legs[i].Open {
			b.legs[i].Open = false
			b.legs[i].ClosedAt = at
			n++
		}
	}
	return n
}

// ValidateRoles checks the generation invariant: for every structural role
// at most one leg is open. Adjustments must close the old generation before
// appending its replacement.
func (b *LegBook) ValidateRoles() error {
	seen := make(map[LegRole]int)
	for i := range b.legs {
		if b.legs[i].Open {
			seen[b.legs[i].Role]++
		}
	}
	for role, count := range seen {
		if count > 1 {
			return fmt.Errorf("role %s has %d open legs, want at most 1", role, count)
		}
	}
	return nil
}
