package broker

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"
)

// optionSymbolRe matches our canonical option identifiers, e.g.
// BANKNIFTY25102844600PE.
var optionSymbolRe = regexp.MustCompile(`^([A-Z ]+?)(\d{6})(\d{3,6})(CE|PE)$`)

// MockBroker simulates a venue for dry runs, tests and backtests. Orders
// always fill with a small random slippage, and option prices come from a
// crude intrinsic-plus-time-value model around a controllable spot level.
type MockBroker struct {
	logger       *logrus.Logger
	spot         float64 // simulated underlying level
	timeValue    float64 // flat extrinsic premium applied to every option
	orders       map[string]*OrderResult
	positions    map[string]*mockPosition
	orderCounter int
}

type mockPosition struct {
	quantity  int
	totalCost float64
}

// secureFloat64 generates a cryptographically secure random float64 in [0, 1).
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		// Fallback to a reasonable default if crypto/rand fails
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// NewMockBroker creates a mock venue with the underlying at the given level.
func NewMockBroker(spot float64, logger *logrus.Logger) *MockBroker {
	if logger == nil {
		logger = logrus.New()
	}
	return &MockBroker{
		logger:    logger,
		spot:      spot,
		timeValue: 80,
		orders:    make(map[string]*OrderResult),
		positions: make(map[string]*mockPosition),
	}
}

// Connect always succeeds.
func (m *MockBroker) Connect() error {
	m.logger.Debug("mock broker: simulating venue connection")
	return nil
}

// SetSpot moves the simulated underlying level. Backtests drive price paths
// through this.
func (m *MockBroker) SetSpot(level float64) { m.spot = level }

// Spot returns the simulated underlying level.
func (m *MockBroker) Spot() float64 { return m.spot }

// GetLTP returns a synthetic last traded price for the symbol.
func (m *MockBroker) GetLTP(symbol string) (float64, error) {
	return m.price(symbol)
}

// GetQuote returns a synthetic quote with a 0.1% bid/ask spread.
func (m *MockBroker) GetQuote(symbol string) (*Quote, error) {
	last, err := m.price(symbol)
	if err != nil {
		return nil, err
	}
	spread := last * 0.001
	return &Quote{
		Symbol:    symbol,
		Last:      last,
		Bid:       round2(last - spread/2),
		Ask:       round2(last + spread/2),
		Volume:    int64(1000 + secureFloat64()*9000),
		Timestamp: time.Now(),
	}, nil
}

// PlaceOrder fills immediately at the synthetic price with ±0.2% slippage.
func (m *MockBroker) PlaceOrder(symbol string, side OrderSide, quantity int,
	orderType OrderType, limitPrice float64) (*OrderResult, error) {
	px, err := m.price(symbol)
	if err != nil {
		return nil, err
	}
	if orderType == TypeLimit && limitPrice > 0 {
		px = limitPrice
	}
	px = round2(px * (1 + (secureFloat64()-0.5)*0.004))

	m.orderCounter++
	result := &OrderResult{
		OrderID:   fmt.Sprintf("MOCK_%06d", m.orderCounter),
		Status:    "COMPLETE",
		FillPrice: px,
		Message:   "order executed",
		Timestamp: time.Now(),
	}
	m.orders[result.OrderID] = result
	m.updatePosition(symbol, side, quantity, px)

	m.logger.WithFields(logrus.Fields{
		"order_id": result.OrderID,
		"symbol":   symbol,
		"side":     side,
		"quantity": quantity,
		"price":    px,
	}).Info("mock broker: order filled")
	return result, nil
}

// CancelOrder marks a previously placed order cancelled.
func (m *MockBroker) CancelOrder(orderID string) error {
	order, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("mock broker: order %s not found", orderID)
	}
	order.Status = "CANCELLED"
	return nil
}

// GetOrderStatus returns the stored result for the order.
func (m *MockBroker) GetOrderStatus(orderID string) (*OrderResult, error) {
	order, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("mock broker: order %s not found", orderID)
	}
	return order, nil
}

// GetPositions returns the net simulated positions.
func (m *MockBroker) GetPositions() ([]PositionItem, error) {
	var items []PositionItem
	for symbol, pos := range m.positions {
		if pos.quantity == 0 {
			continue
		}
		last, err := m.price(symbol)
		if err != nil {
			continue
		}
		avg := math.Abs(pos.totalCost / float64(pos.quantity))
		pnl := (last - avg) * float64(pos.quantity)
		items = append(items, PositionItem{
			Symbol:        symbol,
			Quantity:      pos.quantity,
			AveragePrice:  round2(avg),
			LastPrice:     last,
			UnrealizedPnL: round2(pnl),
		})
	}
	return items, nil
}

// GetMargins reports a fixed ten-lakh account.
func (m *MockBroker) GetMargins() (float64, float64, error) {
	return 1_000_000, 200_000, nil
}

// price synthesizes an instrument price from the symbol alone. Futures trade
// at a small positive carry over spot; options are intrinsic plus a flat
// time value.
func (m *MockBroker) price(symbol string) (float64, error) {
	if len(symbol) > 3 && symbol[len(symbol)-3:] == "FUT" {
		return round2(m.spot * 1.002), nil
	}
	if match := optionSymbolRe.FindStringSubmatch(symbol); match != nil {
		var strike float64
		if _, err := fmt.Sscanf(match[3], "%f", &strike); err != nil {
			return 0, fmt.Errorf("mock broker: bad strike in %s: %w", symbol, err)
		}
		var intrinsic float64
		if match[4] == "CE" {
			intrinsic = math.Max(0, m.spot-strike)
		} else {
			intrinsic = math.Max(0, strike-m.spot)
		}
		return round2(intrinsic + m.timeValue), nil
	}
	// Anything else is treated as the underlying index itself.
	return round2(m.spot), nil
}

func (m *MockBroker) updatePosition(symbol string, side OrderSide, quantity int, price float64) {
	pos, ok := m.positions[symbol]
	if !ok {
		pos = &mockPosition{}
		m.positions[symbol] = pos
	}
	if side == SideBuy {
		pos.quantity += quantity
		pos.totalCost += float64(quantity) * price
	} else {
		pos.quantity -= quantity
		pos.totalCost -= float64(quantity) * price
	}
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
