// Package marketdata resolves spot, future and option prices for the
// strategy core, caching short-lived quotes so one monitor pass does not
// hammer the venue.
package marketdata

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nikhilbhatia/banknifty-sandwich/internal/broker"
	"github.com/nikhilbhatia/banknifty-sandwich/internal/models"
	"github.com/nikhilbhatia/banknifty-sandwich/internal/util"
)

// Provider supplies the three price kinds the strategy needs.
type Provider interface {
	Spot() (float64, error)
	Future(expiry time.Time) (float64, error)
	OptionPrice(expiry time.Time, strike int, kind models.ContractKind) (float64, error)
}

// BrokerProvider fetches prices through a Broker and caches them for a short
// TTL. Safe for concurrent use.
type BrokerProvider struct {
	broker     broker.Broker
	underlying string
	spotSymbol string
	ttl        time.Duration
	logger     *logrus.Logger

	mu    sync.Mutex
	cache map[string]cachedPrice
}

type cachedPrice struct {
	price   float64
	fetched time.Time
}

// Option configures a BrokerProvider.
type Option func(*BrokerProvider)

// WithTTL overrides the default 5s quote cache lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(p *BrokerProvider) { p.ttl = ttl }
}

// WithSpotSymbol sets the venue symbol used for the spot index, e.g.
// "NSE:NIFTY BANK" on Kite.
func WithSpotSymbol(symbol string) Option {
	return func(p *BrokerProvider) { p.spotSymbol = symbol }
}

// NewBrokerProvider creates a provider for the given underlying index.
func NewBrokerProvider(b broker.Broker, underlying string, logger *logrus.Logger, opts ...Option) *BrokerProvider {
	if logger == nil {
		logger = logrus.New()
	}
	p := &BrokerProvider{
		broker:     b,
		underlying: underlying,
		spotSymbol: underlying,
		ttl:        5 * time.Second,
		logger:     logger,
		cache:      make(map[string]cachedPrice),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ Provider = (*BrokerProvider)(nil)

// Spot returns the index level.
func (p *BrokerProvider) Spot() (float64, error) {
	return p.fetch(p.spotSymbol)
}

// Future returns the price of the monthly future for the given expiry.
func (p *BrokerProvider) Future(expiry time.Time) (float64, error) {
	return p.fetch(util.FutureSymbol(p.underlying, expiry))
}

// OptionPrice returns the premium of the given contract.
func (p *BrokerProvider) OptionPrice(expiry time.Time, strike int, kind models.ContractKind) (float64, error) {
	return p.fetch(util.OptionSymbol(p.underlying, expiry, strike, string(kind)))
}

func (p *BrokerProvider) fetch(symbol string) (float64, error) {
	p.mu.Lock()
	if entry, ok := p.cache[symbol]; ok && time.Since(entry.fetched) < p.ttl {
		p.mu.Unlock()
		return entry.price, nil
	}
	p.mu.Unlock()

	price, err := p.broker.GetLTP(symbol)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", symbol, err)
	}

	p.mu.Lock()
	p.cache[symbol] = cachedPrice{price: price, fetched: time.Now()}
	p.mu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"symbol": symbol,
		"price":  price,
	}).Debug("quote refreshed")
	return price, nil
}

// Invalidate drops all cached quotes, forcing fresh fetches.
func (p *BrokerProvider) Invalidate() {
	p.mu.Lock()
	p.cache = make(map[string]cachedPrice)
	p.mu.Unlock()
}
