package strategy

import (
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhatia/banknifty-sandwich/internal/broker"
	"github.com/nikhilbhatia/banknifty-sandwich/internal/expiry"
	"github.com/nikhilbhatia/banknifty-sandwich/internal/models"
)

// stubProvider serves prices from plain fields, no venue involved.
type stubProvider struct {
	spot    float64
	future  float64
	optFn   func(strike int, kind models.ContractKind) float64
	spotErr error
}

func (p *stubProvider) Spot() (float64, error) {
	if p.spotErr != nil {
		return 0, p.spotErr
	}
	return p.spot, nil
}

func (p *stubProvider) Future(time.Time) (float64, error) {
	return p.future, nil
}

func (p *stubProvider) OptionPrice(_ time.Time, strike int, kind models.ContractKind) (float64, error) {
	if p.optFn == nil {
		return 100, nil
	}
	return p.optFn(strike, kind), nil
}

// stubBroker accepts every order and records it.
type stubBroker struct {
	orders []string
}

func (b *stubBroker) Connect() error { return nil }

func (b *stubBroker) GetLTP(string) (float64, error) { return 0, broker.ErrUnavailable }

func (b *stubBroker) GetQuote(string) (*broker.Quote, error) { return nil, broker.ErrUnavailable }

func (b *stubBroker) PlaceOrder(symbol string, side broker.OrderSide, quantity int,
	_ broker.OrderType, _ float64) (*broker.OrderResult, error) {
	b.orders = append(b.orders, fmt.Sprintf("%s %s %d", side, symbol, quantity))
	return &broker.OrderResult{OrderID: fmt.Sprintf("T%04d", len(b.orders)), Status: "COMPLETE"}, nil
}

func (b *stubBroker) CancelOrder(string) error { return nil }

func (b *stubBroker) GetOrderStatus(string) (*broker.OrderResult, error) {
	return nil, broker.ErrUnavailable
}

func (b *stubBroker) GetPositions() ([]broker.PositionItem, error) { return nil, nil }

func (b *stubBroker) GetMargins() (float64, float64, error) { return 0, 0, nil }

var (
	// Sep 30 2025 is a monthly expiry (last Tuesday); the next is Oct 28,
	// a 28-day gap, so this is a short cycle.
	testCurrentExpiry = time.Date(2025, time.September, 30, 0, 0, 0, 0, time.UTC)
	testEntryTime     = time.Date(2025, time.September, 30, 15, 0, 0, 0, time.UTC)
)

func newTestSandwich(p *stubProvider, b *stubBroker) *Sandwich {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	cfg := Config{
		Underlying:      "BANKNIFTY",
		Capital:         100_000,
		Lots:            1,
		LotSize:         30,
		ProfitTargetPct: 12,
		EntryHour:       15,
	}
	return New(cfg, b, p, expiry.NewCalendar(), logger, nil, nil)
}

func enterTestPosition(t *testing.T, s *Sandwich) {
	t.Helper()
	entered, err := s.Enter(testEntryTime, EntryOptions{
		Force:         true,
		Spot:          45000,
		Future:        45090,
		CurrentExpiry: testCurrentExpiry,
	})
	require.NoError(t, err)
	require.True(t, entered)
}

func openStrike(s *Sandwich, role models.LegRole) int {
	for _, leg := range s.Legs() {
		if leg.Open && leg.Role == role {
			return leg.Strike
		}
	}
	return -1
}

func TestEnterBuildsSevenLegs(t *testing.T) {
	p := &stubProvider{spot: 45000, future: 45090}
	b := &stubBroker{}
	s := newTestSandwich(p, b)

	enterTestPosition(t, s)

	assert.Equal(t, models.StateActive, s.State())
	assert.Len(t, b.orders, 7)

	snap := s.Metrics(testEntryTime)
	assert.Equal(t, 7, snap.OpenLegs)
	assert.Equal(t, 0, snap.ClosedLegs)
	assert.Equal(t, expiry.CycleShort, snap.Cycle)
	for _, role := range models.Roles {
		assert.Equal(t, 1, snap.RoleBreakdown[role], "role %s", role)
	}

	// Scenario strikes from S0=45000, F0=45090, offset 500, D=2000.
	assert.Equal(t, 45600, openStrike(s, models.RoleCoreCallLong))
	assert.Equal(t, 44600, openStrike(s, models.RoleCorePutShort))
	assert.Equal(t, 47000, openStrike(s, models.RoleOuterCallShort))
	assert.Equal(t, 47500, openStrike(s, models.RoleOuterCallLong))
	assert.Equal(t, 43000, openStrike(s, models.RoleOuterPutShort))
	assert.Equal(t, 42500, openStrike(s, models.RoleOuterPutLong))

	// Outer legs carry double quantity.
	for _, leg := range s.Legs() {
		switch leg.Role {
		case models.RoleCoreFuture, models.RoleCoreCallLong, models.RoleCorePutShort:
			assert.Equal(t, 1, leg.Quantity)
		default:
			assert.Equal(t, 2, leg.Quantity)
		}
	}
}

func TestEnterAbortsWhenFutureBelowSpot(t *testing.T) {
	p := &stubProvider{}
	s := newTestSandwich(p, &stubBroker{})

	entered, err := s.Enter(testEntryTime, EntryOptions{
		Force:         true,
		Spot:          45000,
		Future:        44950,
		CurrentExpiry: testCurrentExpiry,
	})
	require.NoError(t, err)
	assert.False(t, entered)
	assert.Equal(t, models.StateIdle, s.State())
	assert.Empty(t, s.Legs())
}

func TestEnterGating(t *testing.T) {
	p := &stubProvider{spot: 45000, future: 45090}

	t.Run("not expiry day", func(t *testing.T) {
		s := newTestSandwich(p, &stubBroker{})
		entered, err := s.Enter(time.Date(2025, 10, 1, 15, 0, 0, 0, time.UTC), EntryOptions{})
		require.NoError(t, err)
		assert.False(t, entered)
	})

	t.Run("expiry day outside entry window", func(t *testing.T) {
		s := newTestSandwich(p, &stubBroker{})
		entered, err := s.Enter(time.Date(2025, 9, 30, 12, 0, 0, 0, time.UTC), EntryOptions{})
		require.NoError(t, err)
		assert.False(t, entered)
	})

	t.Run("expiry day at entry time", func(t *testing.T) {
		s := newTestSandwich(p, &stubBroker{})
		entered, err := s.Enter(time.Date(2025, 9, 30, 15, 3, 0, 0, time.UTC), EntryOptions{})
		require.NoError(t, err)
		assert.True(t, entered)
	})

	t.Run("non-idle instance refuses re-entry", func(t *testing.T) {
		s := newTestSandwich(p, &stubBroker{})
		enterTestPosition(t, s)
		entered, err := s.Enter(testEntryTime, EntryOptions{Force: true, Spot: 45000, Future: 45090, CurrentExpiry: testCurrentExpiry})
		require.NoError(t, err)
		assert.False(t, entered)
	})
}

func TestProfitTargetClosesFromAnyState(t *testing.T) {
	p := &stubProvider{spot: 45000, future: 45090}
	b := &stubBroker{}
	s := newTestSandwich(p, b)
	enterTestPosition(t, s)

	// Future drops 1100 points: the short future leg alone earns
	// 1100 x 30 = 33000, i.e. 33% of capital.
	p.future = 43990
	s.Monitor(time.Date(2025, 10, 2, 11, 0, 0, 0, time.UTC))

	assert.Equal(t, models.StateClosed, s.State())
	snap := s.Metrics(time.Date(2025, 10, 2, 11, 0, 0, 0, time.UTC))
	assert.Equal(t, 0, snap.OpenLegs)
	assert.Equal(t, 7, snap.ClosedLegs)

	// Closed is absorbing: a further monitor places no orders.
	before := len(b.orders)
	s.Monitor(time.Date(2025, 10, 3, 11, 0, 0, 0, time.UTC))
	assert.Equal(t, before, len(b.orders))
	assert.Equal(t, models.StateClosed, s.State())
}

func TestCalendarCloseOnNextExpiry(t *testing.T) {
	p := &stubProvider{spot: 45000, future: 45090}
	b := &stubBroker{}
	s := newTestSandwich(p, b)
	enterTestPosition(t, s)

	// Expiry morning: not yet within the exit window.
	s.Monitor(time.Date(2025, 10, 28, 11, 0, 0, 0, time.UTC))
	assert.Equal(t, models.StateActive, s.State())

	s.Monitor(time.Date(2025, 10, 28, 15, 2, 0, 0, time.UTC))
	assert.Equal(t, models.StateClosed, s.State())
	assert.Equal(t, 0, s.Metrics(time.Now()).OpenLegs)
}

func TestStage1RollAndShift(t *testing.T) {
	p := &stubProvider{spot: 45000, future: 45090}
	b := &stubBroker{}
	s := newTestSandwich(p, b)
	enterTestPosition(t, s)

	// Day 15: passive window over. Future up slightly makes the short
	// future bleed, spot rallied 1600 over the 1500 threshold.
	p.future = 45200
	p.spot = 46600
	day15 := time.Date(2025, 10, 15, 11, 0, 0, 0, time.UTC)
	s.Monitor(day15)

	assert.Equal(t, models.StateDefense1, s.State())
	// Core put 44600 rolls by the candidate landing closest to
	// round(45090)=45100: +500.
	assert.Equal(t, 45100, openStrike(s, models.RoleCorePutShort))
	// Bread puts shift by D=2000 from the previous strikes.
	assert.Equal(t, 45000, openStrike(s, models.RoleOuterPutShort))
	assert.Equal(t, 44500, openStrike(s, models.RoleOuterPutLong))
	assert.Equal(t, 3, s.Metrics(day15).ClosedLegs)

	// Same-day re-run must not fire another adjustment even though the
	// stage-2 spot condition already holds.
	before := len(b.orders)
	s.Monitor(day15.Add(2 * time.Hour))
	assert.Equal(t, models.StateDefense1, s.State())
	assert.Equal(t, before, len(b.orders))
}

func TestStage1RequiresAllConditions(t *testing.T) {
	day15 := time.Date(2025, 10, 15, 11, 0, 0, 0, time.UTC)

	t.Run("positive pnl holds", func(t *testing.T) {
		p := &stubProvider{spot: 46600, future: 45089}
		s := newTestSandwich(p, &stubBroker{})
		enterTestPosition(t, s)
		// Tiny profit on the future, nowhere near the target.
		s.Monitor(day15)
		assert.Equal(t, models.StateActive, s.State())
	})

	t.Run("rally below threshold holds", func(t *testing.T) {
		p := &stubProvider{spot: 46400, future: 45200}
		s := newTestSandwich(p, &stubBroker{})
		enterTestPosition(t, s)
		s.Monitor(day15)
		assert.Equal(t, models.StateActive, s.State())
	})

	t.Run("inside passive window holds", func(t *testing.T) {
		p := &stubProvider{spot: 46600, future: 45200}
		s := newTestSandwich(p, &stubBroker{})
		enterTestPosition(t, s)
		s.Monitor(time.Date(2025, 10, 10, 11, 0, 0, 0, time.UTC))
		assert.Equal(t, models.StateActive, s.State())
	})
}

// advanceToDefense2 walks a fresh position through stages 1 and 2.
func advanceToDefense2(t *testing.T, s *Sandwich, p *stubProvider) {
	t.Helper()
	enterTestPosition(t, s)
	p.future = 45200
	p.spot = 46600
	s.Monitor(time.Date(2025, 10, 15, 11, 0, 0, 0, time.UTC))
	require.Equal(t, models.StateDefense1, s.State())

	// Four days later spot is above the new short put (45000) + 250.
	p.spot = 46600
	s.Monitor(time.Date(2025, 10, 20, 11, 0, 0, 0, time.UTC))
	require.Equal(t, models.StateDefense2, s.State())
}

func TestStage2Shift(t *testing.T) {
	p := &stubProvider{spot: 45000, future: 45090}
	s := newTestSandwich(p, &stubBroker{})
	advanceToDefense2(t, s, p)

	assert.Equal(t, 46000, openStrike(s, models.RoleOuterPutShort))
	assert.Equal(t, 45500, openStrike(s, models.RoleOuterPutLong))
	// Core put from stage 1 is untouched by stage 2.
	assert.Equal(t, 45100, openStrike(s, models.RoleCorePutShort))
}

func TestStage2WaitsFourDays(t *testing.T) {
	p := &stubProvider{spot: 45000, future: 45090}
	s := newTestSandwich(p, &stubBroker{})
	enterTestPosition(t, s)
	p.future = 45200
	p.spot = 46600
	s.Monitor(time.Date(2025, 10, 15, 11, 0, 0, 0, time.UTC))
	require.Equal(t, models.StateDefense1, s.State())

	// Two days later the spot condition holds but the wait does not.
	s.Monitor(time.Date(2025, 10, 17, 11, 0, 0, 0, time.UTC))
	assert.Equal(t, models.StateDefense1, s.State())
}

func TestStraddleConversion(t *testing.T) {
	p := &stubProvider{spot: 45000, future: 45090}
	s := newTestSandwich(p, &stubBroker{})
	advanceToDefense2(t, s, p)

	// Monday Oct 27 2025, one day before expiry, spot above the 47000
	// sold call.
	p.spot = 47100
	monday := time.Date(2025, 10, 27, 11, 0, 0, 0, time.UTC)
	require.Equal(t, time.Monday, monday.Weekday())
	s.Monitor(monday)

	assert.Equal(t, models.StateStraddle, s.State())
	assert.Equal(t, 47000, openStrike(s, models.RoleOuterPutShort))
	assert.Equal(t, 46500, openStrike(s, models.RoleOuterPutLong))
	assert.Equal(t, 47000, openStrike(s, models.RoleOuterCallShort))
}

func TestStraddleRequiresExpiryWeekMonday(t *testing.T) {
	p := &stubProvider{spot: 45000, future: 45090}
	s := newTestSandwich(p, &stubBroker{})
	advanceToDefense2(t, s, p)
	p.spot = 47100

	// A Thursday inside expiry week does not convert.
	s.Monitor(time.Date(2025, 10, 23, 11, 0, 0, 0, time.UTC))
	assert.Equal(t, models.StateDefense2, s.State())

	// An earlier Monday, too far from expiry, does not convert either.
	s.Monitor(time.Date(2025, 10, 13, 11, 0, 0, 0, time.UTC))
	assert.Equal(t, models.StateDefense2, s.State())
}

func TestGenerationInvariantAcrossAdjustments(t *testing.T) {
	p := &stubProvider{spot: 45000, future: 45090}
	s := newTestSandwich(p, &stubBroker{})
	advanceToDefense2(t, s, p)

	open := make(map[models.LegRole]int)
	for _, leg := range s.Legs() {
		if leg.Open {
			open[leg.Role]++
		}
	}
	for role, count := range open {
		assert.Equal(t, 1, count, "role %s has %d open generations", role, count)
	}
}

func TestMetricsConsistencyIdentity(t *testing.T) {
	p := &stubProvider{spot: 45000, future: 45090}
	s := newTestSandwich(p, &stubBroker{})
	enterTestPosition(t, s)

	// Skew prices so longs and shorts both carry nonzero P&L.
	p.future = 44800
	p.optFn = func(strike int, kind models.ContractKind) float64 {
		if kind == models.KindPut {
			return 150
		}
		return 60
	}
	now := time.Date(2025, 10, 6, 11, 0, 0, 0, time.UTC)
	s.Monitor(now)

	snap := s.Metrics(now)
	assert.InDelta(t, 0, snap.NetPnLConsistency, 1e-9)
	assert.NotZero(t, snap.LongPnL)
	assert.NotZero(t, snap.ShortPnL)
	assert.Equal(t, 6, snap.DaysSinceEntry)
}

func TestMonitorRetainsPricesWhenSpotUnavailable(t *testing.T) {
	p := &stubProvider{spot: 45000, future: 45090}
	s := newTestSandwich(p, &stubBroker{})
	enterTestPosition(t, s)

	p.spotErr = fmt.Errorf("feed down")
	s.Monitor(time.Date(2025, 10, 6, 11, 0, 0, 0, time.UTC))
	// Cycle completes without state change or panic.
	assert.Equal(t, models.StateActive, s.State())
}

func TestForceClose(t *testing.T) {
	p := &stubProvider{spot: 45000, future: 45090}
	s := newTestSandwich(p, &stubBroker{})
	enterTestPosition(t, s)

	s.ForceClose(time.Date(2025, 10, 6, 11, 0, 0, 0, time.UTC))
	assert.Equal(t, models.StateClosed, s.State())
	assert.Equal(t, 0, s.Metrics(time.Now()).OpenLegs)
}
