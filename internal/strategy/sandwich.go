// Package strategy implements the sandwich position lifecycle: the seven-leg
// entry build, the defensive adjustment stages, and the exit rules.
package strategy

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nikhilbhatia/banknifty-sandwich/internal/broker"
	"github.com/nikhilbhatia/banknifty-sandwich/internal/expiry"
	"github.com/nikhilbhatia/banknifty-sandwich/internal/journal"
	"github.com/nikhilbhatia/banknifty-sandwich/internal/marketdata"
	"github.com/nikhilbhatia/banknifty-sandwich/internal/models"
	"github.com/nikhilbhatia/banknifty-sandwich/internal/notify"
)

// Structural strategy parameters. These define the sandwich shape itself and
// are not configuration: changing them changes the strategy.
const (
	hedgeOffset = 500

	breadDistanceShort = 2000
	breadDistanceLong  = 2500

	passiveDaysShort = 14
	passiveDaysLong  = 21

	rallyThresholdShort = 1500
	rallyThresholdLong  = 2000

	stage2WaitDays = 4
	stage2Buffer   = 250
	stage2Shift    = 1000

	straddleWindowDays = 4
)

// corePutRollCandidates are the discrete shifts considered when rolling the
// core short put up in stage 1.
var corePutRollCandidates = []int{400, 500, 600}

// Config carries the operational strategy parameters.
type Config struct {
	Underlying      string
	Capital         float64 // base for P&L percentage
	Lots            int     // lots per unit-quantity leg
	LotSize         int     // contract units per lot
	ProfitTargetPct float64 // close everything at this P&L percentage

	// Entry/exit reference time of day and tolerance, in the clock's zone.
	EntryHour      int
	EntryMinute    int
	EntryWindowMin int
}

// Context captures the immutable entry references plus the adjustment clock.
type Context struct {
	EntryTime      time.Time
	RefSpot        float64
	RefFuture      float64
	Cycle          expiry.MonthCycle
	CurrentExpiry  time.Time
	NextExpiry     time.Time
	LastAdjustment time.Time // zero until the first adjustment
}

// Recorder persists leg audit events. The journal package provides the
// sqlite implementation; backtests may pass nil.
type Recorder interface {
	Record(journal.LegEvent) error
}

// Sandwich owns one strategy instance: its context, its legs, and its
// lifecycle state machine. Enter and Monitor must be called from a single
// goroutine; there is no internal locking.
type Sandwich struct {
	id       string
	cfg      Config
	broker   broker.Broker
	data     marketdata.Provider
	cal      *expiry.Calendar
	logger   *logrus.Logger
	notifier notify.Notifier
	recorder Recorder

	sm       *models.StateMachine
	book     *models.LegBook
	ctx      Context
	lastSpot float64
}

// New creates an idle sandwich instance.
func New(cfg Config, b broker.Broker, data marketdata.Provider, cal *expiry.Calendar,
	logger *logrus.Logger, notifier notify.Notifier, recorder Recorder) *Sandwich {
	if logger == nil {
		logger = logrus.New()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	if cfg.EntryHour == 0 {
		cfg.EntryHour = 15
	}
	if cfg.EntryWindowMin == 0 {
		cfg.EntryWindowMin = 5
	}
	if cfg.Lots == 0 {
		cfg.Lots = 1
	}
	if cfg.LotSize == 0 {
		cfg.LotSize = 30
	}
	return &Sandwich{
		id:       uuid.New().String(),
		cfg:      cfg,
		broker:   b,
		data:     data,
		cal:      cal,
		logger:   logger,
		notifier: notifier,
		recorder: recorder,
		sm:       models.NewStateMachine(),
		book:     models.NewLegBook(),
	}
}

// ID returns the strategy instance identifier.
func (s *Sandwich) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Sandwich) State() models.StrategyState { return s.sm.Current() }

// Legs returns a copy of the full leg history.
func (s *Sandwich) Legs() []models.Leg { return s.book.All() }

// EntryOptions selects entry gating overrides. Zero values mean "use live
// data and the calendar".
type EntryOptions struct {
	Force         bool // bypass expiry-day and time-of-day gating
	Spot          float64
	Future        float64
	CurrentExpiry time.Time
	NextExpiry    time.Time
}

// Enter attempts to build the initial seven-leg structure. It returns false
// without error when a gating precondition fails (not expiry day, outside
// the entry window, future below spot) and an error only when a collaborator
// call fails.
func (s *Sandwich) Enter(now time.Time, opts EntryOptions) (bool, error) {
	if s.sm.Current() != models.StateIdle {
		s.logger.WithField("state", s.sm.Current()).Warn("enter called on non-idle strategy")
		return false, nil
	}

	currentExpiry := opts.CurrentExpiry
	if currentExpiry.IsZero() {
		currentExpiry = s.cal.CurrentExpiry(now)
	}
	if !opts.Force {
		if !sameDate(now, currentExpiry) {
			s.logger.Info("not monthly expiry day, skipping entry")
			return false, nil
		}
		if !s.nearEntryTime(now) {
			s.logger.Info("outside the 15:00 entry window, skipping entry")
			return false, nil
		}
	}

	nextExpiry := opts.NextExpiry
	if nextExpiry.IsZero() {
		nextExpiry = s.cal.NextExpiry(currentExpiry)
	}
	cycle := expiry.Classify(currentExpiry, nextExpiry)

	spot := opts.Spot
	if spot == 0 {
		var err error
		spot, err = s.data.Spot()
		if err != nil {
			return false, fmt.Errorf("fetching spot at entry: %w", err)
		}
	}
	future := opts.Future
	if future == 0 {
		var err error
		future, err = s.data.Future(nextExpiry)
		if err != nil {
			return false, fmt.Errorf("fetching future at entry: %w", err)
		}
	}

	// Hard precondition: a future at a discount to spot voids the structure.
	if future < spot {
		s.logger.WithFields(logrus.Fields{
			"spot":   spot,
			"future": future,
		}).Info("future below spot, aborting entry")
		return false, nil
	}

	s.ctx = Context{
		EntryTime:     now,
		RefSpot:       spot,
		RefFuture:     future,
		Cycle:         cycle,
		CurrentExpiry: currentExpiry,
		NextExpiry:    nextExpiry,
	}
	s.lastSpot = spot

	if err := s.buildInitialLegs(now); err != nil {
		// Reset so a later attempt starts clean.
		s.ctx = Context{}
		return false, fmt.Errorf("building initial legs: %w", err)
	}

	if err := s.sm.Transition(models.StateActive, models.ConditionEntryFilled, now); err != nil {
		return false, err
	}

	s.logger.WithFields(logrus.Fields{
		"cycle":  cycle,
		"spot":   spot,
		"future": future,
		"expiry": nextExpiry.Format("2006-01-02"),
	}).Info("sandwich entered")
	s.notifyEvent("entry", fmt.Sprintf("entered %s sandwich: spot=%.2f future=%.2f expiry=%s",
		cycle, spot, future, nextExpiry.Format("2006-01-02")))
	return true, nil
}

// Monitor runs one evaluation cycle at the given time. It refreshes prices,
// checks the exits in fixed priority order (profit target, then calendar),
// and then evaluates the stage transition for the current state. Safe to
// call repeatedly within a day: adjustments fire at most once per day.
func (s *Sandwich) Monitor(now time.Time) {
	state := s.sm.Current()
	if state == models.StateIdle || state == models.StateClosed {
		return
	}

	s.refreshPrices()

	spot, err := s.data.Spot()
	if err != nil {
		s.logger.WithError(err).Warn("spot unavailable, retaining last known")
		spot = s.lastSpot
	} else {
		s.lastSpot = spot
	}

	pnl, pnlPct := s.portfolioPnL()
	s.logger.WithFields(logrus.Fields{
		"state":   state,
		"pnl":     fmt.Sprintf("%.2f", pnl),
		"pnl_pct": fmt.Sprintf("%.3f", pnlPct),
		"spot":    spot,
	}).Info("monitor cycle")

	// Exit checks in fixed priority order: profit target wins over the
	// calendar deadline when both hold on the same cycle.
	if pnlPct >= s.cfg.ProfitTargetPct {
		s.closeEverything(now, models.ConditionProfitTarget, "profit target reached")
		return
	}
	if sameDate(now, s.ctx.NextExpiry) && s.nearEntryTime(now) {
		s.closeEverything(now, models.ConditionExpiryExit, "final expiry exit")
		return
	}

	// One adjustment per day at most.
	if !s.ctx.LastAdjustment.IsZero() && sameDate(now, s.ctx.LastAdjustment) {
		return
	}

	switch state {
	case models.StateActive:
		if s.daysSinceEntry(now) < s.passiveDays() {
			return
		}
		rally := spot - s.ctx.RefSpot
		if pnl < 0 && rally >= float64(s.rallyThreshold()) {
			s.stage1(now)
		}
	case models.StateDefense1:
		if s.daysSinceAdjustment(now) < stage2WaitDays {
			return
		}
		shortPut := s.book.OpenByRole(models.RoleOuterPutShort)
		if shortPut != nil && spot > float64(shortPut.Strike+stage2Buffer) {
			s.stage2(now)
		}
	case models.StateDefense2:
		if now.Weekday() != time.Monday || daysBetween(now, s.ctx.NextExpiry) > straddleWindowDays {
			return
		}
		shortCall := s.book.OpenByRole(models.RoleOuterCallShort)
		if shortCall != nil && spot > float64(shortCall.Strike) {
			s.convertToStraddle(now, shortCall.Strike)
		}
	}
}

// ForceClose closes every open leg regardless of conditions.
func (s *Sandwich) ForceClose(now time.Time) {
	state := s.sm.Current()
	if state == models.StateIdle || state == models.StateClosed {
		return
	}
	s.closeEverything(now, models.ConditionForceClose, "forced close")
}

// refreshPrices marks every open leg to market, retaining the last known
// price when a lookup fails.
func (s *Sandwich) refreshPrices() {
	for _, leg := range s.book.OpenLegs() {
		var price float64
		var err error
		if leg.Kind == models.KindFuture {
			price, err = s.data.Future(s.ctx.NextExpiry)
		} else {
			price, err = s.data.OptionPrice(s.ctx.NextExpiry, leg.Strike, leg.Kind)
		}
		if err != nil {
			s.logger.WithError(err).WithField("symbol", leg.Symbol).Debug("price refresh failed")
			continue
		}
		leg.CurrentPrice = price
	}
}

func (s *Sandwich) portfolioPnL() (total, pct float64) {
	for _, leg := range s.book.OpenLegs() {
		total += leg.PnL() * float64(s.cfg.Lots) * float64(s.cfg.LotSize)
	}
	capital := s.cfg.Capital
	if capital <= 0 {
		capital = 1
	}
	return total, total / capital * 100
}

// openLeg places the order and appends the leg. An order rejection is logged
// but the leg is still recorded as intended: execution reconciliation is a
// broker-side concern.
func (s *Sandwich) openLeg(now time.Time, symbol string, kind models.ContractKind,
	strike int, dir models.Direction, lots int, role models.LegRole, price float64) {
	units := lots * s.cfg.Lots * s.cfg.LotSize
	side := broker.SideBuy
	if dir == models.Short {
		side = broker.SideSell
	}
	result, err := s.broker.PlaceOrder(symbol, side, units, broker.TypeMarket, 0)
	switch {
	case err != nil:
		s.logger.WithError(err).WithField("symbol", symbol).Error("order placement failed")
	case !result.Accepted():
		s.logger.WithFields(logrus.Fields{
			"symbol":  symbol,
			"message": result.Message,
		}).Error("order rejected")
	case result.FillPrice > 0:
		price = result.FillPrice
	}

	leg := s.book.Append(models.Leg{
		Symbol:       symbol,
		Kind:         kind,
		Strike:       strike,
		Direction:    dir,
		Quantity:     lots,
		Role:         role,
		EntryPrice:   price,
		CurrentPrice: price,
		OpenedAt:     now,
	})
	s.journalLeg(now, "opened", leg)
	s.logger.WithFields(logrus.Fields{
		"symbol": symbol,
		"side":   dir,
		"lots":   lots,
		"role":   role,
		"price":  price,
	}).Info("leg opened")
}

// closeRole unwinds the open leg of one role with a reverse order.
func (s *Sandwich) closeRole(now time.Time, role models.LegRole) {
	leg := s.book.OpenByRole(role)
	if leg == nil {
		return
	}
	s.submitReverse(leg)
	s.book.CloseRole(role, now)
	s.journalLeg(now, "closed", leg)
}

func (s *Sandwich) closeEverything(now time.Time, condition, reason string) {
	for _, leg := range s.book.OpenLegs() {
		s.submitReverse(leg)
		s.journalLeg(now, "closed", leg)
	}
	closed := s.book.CloseAll(now)
	if err := s.sm.Transition(models.StateClosed, condition, now); err != nil {
		s.logger.WithError(err).Error("close transition failed")
		return
	}
	pnl, pnlPct := s.portfolioPnLIncludingClosedMarks()
	s.logger.WithFields(logrus.Fields{
		"reason":  reason,
		"legs":    closed,
		"pnl":     fmt.Sprintf("%.2f", pnl),
		"pnl_pct": fmt.Sprintf("%.3f", pnlPct),
	}).Info("all legs closed")
	s.notifyEvent("close", fmt.Sprintf("%s: closed %d legs, final pnl %.2f (%.2f%%)", reason, closed, pnl, pnlPct))
}

// portfolioPnLIncludingClosedMarks reports the final mark-to-market result
// after a close, when PnL() of the now-closed legs reads zero.
func (s *Sandwich) portfolioPnLIncludingClosedMarks() (total, pct float64) {
	for _, leg := range s.book.All() {
		total += (leg.CurrentPrice - leg.EntryPrice) * leg.Direction.Sign() *
			float64(leg.Quantity) * float64(s.cfg.Lots) * float64(s.cfg.LotSize)
	}
	capital := s.cfg.Capital
	if capital <= 0 {
		capital = 1
	}
	return total, total / capital * 100
}

func (s *Sandwich) submitReverse(leg *models.Leg) {
	side := broker.SideSell
	if leg.Direction == models.Short {
		side = broker.SideBuy
	}
	units := leg.Quantity * s.cfg.Lots * s.cfg.LotSize
	if _, err := s.broker.PlaceOrder(leg.Symbol, side, units, broker.TypeMarket, 0); err != nil {
		s.logger.WithError(err).WithField("symbol", leg.Symbol).Error("closing order failed")
	}
}

func (s *Sandwich) journalLeg(now time.Time, event string, leg *models.Leg) {
	if s.recorder == nil {
		return
	}
	err := s.recorder.Record(journal.LegEvent{
		StrategyID: s.id,
		Timestamp:  now,
		Event:      event,
		State:      string(s.sm.Current()),
		Symbol:     leg.Symbol,
		Role:       string(leg.Role),
		Side:       string(leg.Direction),
		Quantity:   leg.Quantity * s.cfg.Lots * s.cfg.LotSize,
		Strike:     leg.Strike,
		Price:      leg.CurrentPrice,
	})
	if err != nil {
		s.logger.WithError(err).Warn("journal write failed")
	}
}

func (s *Sandwich) notifyEvent(event, message string) {
	if err := s.notifier.Notify(event, message); err != nil {
		s.logger.WithError(err).Warn("notification failed")
	}
}

func (s *Sandwich) passiveDays() int {
	if s.ctx.Cycle == expiry.CycleLong {
		return passiveDaysLong
	}
	return passiveDaysShort
}

func (s *Sandwich) rallyThreshold() int {
	if s.ctx.Cycle == expiry.CycleLong {
		return rallyThresholdLong
	}
	return rallyThresholdShort
}

func (s *Sandwich) breadDistance() int {
	if s.ctx.Cycle == expiry.CycleLong {
		return breadDistanceLong
	}
	return breadDistanceShort
}

func (s *Sandwich) daysSinceEntry(now time.Time) int {
	return daysBetween(s.ctx.EntryTime, now)
}

func (s *Sandwich) daysSinceAdjustment(now time.Time) int {
	if s.ctx.LastAdjustment.IsZero() {
		return 0
	}
	return daysBetween(s.ctx.LastAdjustment, now)
}

func (s *Sandwich) nearEntryTime(now time.Time) bool {
	minutes := now.Hour()*60 + now.Minute()
	target := s.cfg.EntryHour*60 + s.cfg.EntryMinute
	diff := minutes - target
	if diff < 0 {
		diff = -diff
	}
	return diff <= s.cfg.EntryWindowMin
}

func sameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// daysBetween counts whole calendar days from a to b.
func daysBetween(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bd.Sub(ad).Hours() / 24)
}
