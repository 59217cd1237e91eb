package strategy

import (
	"time"

	"github.com/nikhilbhatia/banknifty-sandwich/internal/expiry"
	"github.com/nikhilbhatia/banknifty-sandwich/internal/models"
)

// Snapshot is a point-in-time view of strategy health.
type Snapshot struct {
	StrategyID    string                 `json:"strategy_id"`
	State         models.StrategyState   `json:"state"`
	Cycle         expiry.MonthCycle      `json:"cycle,omitempty"`
	OpenLegs      int                    `json:"open_legs"`
	ClosedLegs    int                    `json:"closed_legs"`
	RoleBreakdown map[models.LegRole]int `json:"role_breakdown"`
	TotalPnL      float64                `json:"total_pnl"`
	PnLPctCapital float64                `json:"pnl_pct_capital"`
	LongPnL       float64                `json:"long_pnl"`
	ShortPnL      float64                `json:"short_pnl"`
	// NetPnLConsistency must be zero by construction; it is a diagnostic
	// self-check, not a business value.
	NetPnLConsistency float64 `json:"net_pnl_consistency"`
	DaysSinceEntry    int     `json:"days_since_entry"`
	RallyPoints       float64 `json:"rally_points"`
}

// Metrics computes the current snapshot. Read-only: it never advances state.
func (s *Sandwich) Metrics(now time.Time) Snapshot {
	snap := Snapshot{
		StrategyID:    s.id,
		State:         s.sm.Current(),
		Cycle:         s.ctx.Cycle,
		OpenLegs:      s.book.OpenCount(),
		ClosedLegs:    s.book.ClosedCount(),
		RoleBreakdown: make(map[models.LegRole]int),
	}

	scale := float64(s.cfg.Lots) * float64(s.cfg.LotSize)
	if snap.State == models.StateClosed {
		// Settled: report the final marks of the whole leg history.
		for _, leg := range s.book.All() {
			pnl := (leg.CurrentPrice - leg.EntryPrice) * leg.Direction.Sign() * float64(leg.Quantity) * scale
			snap.TotalPnL += pnl
			if leg.Direction == models.Long {
				snap.LongPnL += pnl
			} else {
				snap.ShortPnL += pnl
			}
		}
	} else {
		for _, leg := range s.book.OpenLegs() {
			snap.RoleBreakdown[leg.Role]++
			pnl := leg.PnL() * scale
			snap.TotalPnL += pnl
			if leg.Direction == models.Long {
				snap.LongPnL += pnl
			} else {
				snap.ShortPnL += pnl
			}
		}
	}

	capital := s.cfg.Capital
	if capital <= 0 {
		capital = 1
	}
	snap.PnLPctCapital = snap.TotalPnL / capital * 100
	snap.NetPnLConsistency = snap.LongPnL + snap.ShortPnL - snap.TotalPnL

	if !s.ctx.EntryTime.IsZero() {
		snap.DaysSinceEntry = s.daysSinceEntry(now)
		snap.RallyPoints = s.lastSpot - s.ctx.RefSpot
	}
	return snap
}
