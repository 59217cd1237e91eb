// Package broker defines the order-execution and market-data boundary used
// by the strategy core, plus its mock and Zerodha implementations.
package broker

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// OrderSide is the transaction direction.
type OrderSide string

const (
	// SideBuy buys the instrument.
	SideBuy OrderSide = "BUY"
	// SideSell sells the instrument.
	SideSell OrderSide = "SELL"
)

// OrderType selects how the order is priced.
type OrderType string

const (
	// TypeMarket executes at the prevailing price.
	TypeMarket OrderType = "MARKET"
	// TypeLimit executes at the given limit or better.
	TypeLimit OrderType = "LIMIT"
)

// OrderResult reports the outcome of an order placement or status lookup.
type OrderResult struct {
	OrderID   string
	Status    string // PLACED, COMPLETE, CANCELLED, REJECTED
	FillPrice float64
	Message   string
	Timestamp time.Time
}

// Accepted reports whether the order made it to the exchange.
func (r *OrderResult) Accepted() bool {
	return r != nil && r.Status != "REJECTED"
}

// Quote is a point-in-time market snapshot for one instrument.
type Quote struct {
	Symbol    string
	Last      float64
	Bid       float64
	Ask       float64
	Volume    int64
	Timestamp time.Time
}

// PositionItem is one broker-side position row.
type PositionItem struct {
	Symbol        string
	Quantity      int
	AveragePrice  float64
	LastPrice     float64
	UnrealizedPnL float64
}

// ErrUnavailable is returned when the venue has no price for the instrument.
var ErrUnavailable = errors.New("broker: price unavailable")

// Broker is the minimal contract the strategy core requires from a venue.
// All calls are synchronous request/response with a bounded result.
type Broker interface {
	Connect() error

	// Market data
	GetLTP(symbol string) (float64, error)
	GetQuote(symbol string) (*Quote, error)

	// Order lifecycle
	PlaceOrder(symbol string, side OrderSide, quantity int, orderType OrderType, limitPrice float64) (*OrderResult, error)
	CancelOrder(orderID string) error
	GetOrderStatus(orderID string) (*OrderResult, error)

	// Account
	GetPositions() ([]PositionItem, error)
	GetMargins() (available, used float64, err error)
}

// Ensure implementations satisfy Broker at compile time.
var (
	_ Broker = (*MockBroker)(nil)
	_ Broker = (*KiteBroker)(nil)
	_ Broker = (*CircuitBreakerBroker)(nil)
)

// CircuitBreakerBroker wraps a Broker with circuit breaker functionality so
// a flapping venue does not stall every monitor cycle.
type CircuitBreakerBroker struct {
	broker  Broker
	breaker *gobreaker.CircuitBreaker
}

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerBroker creates a CircuitBreakerBroker with sensible defaults.
func NewCircuitBreakerBroker(broker Broker, logger *logrus.Logger) *CircuitBreakerBroker {
	return NewCircuitBreakerBrokerWithSettings(broker, logger, CircuitBreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	})
}

// NewCircuitBreakerBrokerWithSettings creates a CircuitBreakerBroker with
// custom settings.
func NewCircuitBreakerBrokerWithSettings(broker Broker, logger *logrus.Logger,
	settings CircuitBreakerSettings) *CircuitBreakerBroker {
	gbSettings := gobreaker.Settings{
		Name:        "BrokerCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if logger != nil {
				logger.Warnf("circuit breaker %s state changed from %s to %s", name, from, to)
			}
		},
	}

	return &CircuitBreakerBroker{
		broker:  broker,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// execCircuitBreaker is a generic helper for circuit breaker wrapper methods.
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	broker Broker,
	fn func(Broker) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(broker) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// Connect wraps the underlying broker call with the circuit breaker.
func (c *CircuitBreakerBroker) Connect() error {
	_, err := execCircuitBreaker(c.breaker, c.broker, func(b Broker) (struct{}, error) {
		return struct{}{}, b.Connect()
	})
	return err
}

// GetLTP wraps the underlying broker call with the circuit breaker.
func (c *CircuitBreakerBroker) GetLTP(symbol string) (float64, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (float64, error) { return b.GetLTP(symbol) })
}

// GetQuote wraps the underlying broker call with the circuit breaker.
func (c *CircuitBreakerBroker) GetQuote(symbol string) (*Quote, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*Quote, error) { return b.GetQuote(symbol) })
}

// PlaceOrder wraps the underlying broker call with the circuit breaker.
func (c *CircuitBreakerBroker) PlaceOrder(symbol string, side OrderSide, quantity int,
	orderType OrderType, limitPrice float64) (*OrderResult, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*OrderResult, error) {
		return b.PlaceOrder(symbol, side, quantity, orderType, limitPrice)
	})
}

// CancelOrder wraps the underlying broker call with the circuit breaker.
func (c *CircuitBreakerBroker) CancelOrder(orderID string) error {
	_, err := execCircuitBreaker(c.breaker, c.broker, func(b Broker) (struct{}, error) {
		return struct{}{}, b.CancelOrder(orderID)
	})
	return err
}

// GetOrderStatus wraps the underlying broker call with the circuit breaker.
func (c *CircuitBreakerBroker) GetOrderStatus(orderID string) (*OrderResult, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*OrderResult, error) {
		return b.GetOrderStatus(orderID)
	})
}

// GetPositions wraps the underlying broker call with the circuit breaker.
func (c *CircuitBreakerBroker) GetPositions() ([]PositionItem, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]PositionItem, error) { return b.GetPositions() })
}

// GetMargins wraps the underlying broker call with the circuit breaker.
func (c *CircuitBreakerBroker) GetMargins() (float64, float64, error) {
	type margins struct{ available, used float64 }
	m, err := execCircuitBreaker(c.breaker, c.broker, func(b Broker) (margins, error) {
		avail, used, err := b.GetMargins()
		return margins{avail, used}, err
	})
	return m.available, m.used, err
}
