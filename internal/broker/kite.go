package broker

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"
)

// KiteConfig holds Zerodha Kite Connect credentials. The access token must
// be generated daily through the Kite login flow and supplied via config or
// environment.
type KiteConfig struct {
	APIKey      string
	AccessToken string
	Exchange    string // derivatives exchange, defaults to NFO
}

// KiteBroker places orders on Zerodha through the Kite Connect REST API.
// All instruments are NRML day-validity orders on the derivatives segment.
type KiteBroker struct {
	client   *kiteconnect.Client
	exchange string
	logger   *logrus.Logger
}

// NewKiteBroker creates a Kite Connect client. Connect must be called before
// any market or order operation.
func NewKiteBroker(cfg KiteConfig, logger *logrus.Logger) *KiteBroker {
	if logger == nil {
		logger = logrus.New()
	}
	client := kiteconnect.New(cfg.APIKey)
	client.SetAccessToken(cfg.AccessToken)
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "NFO"
	}
	return &KiteBroker{
		client:   client,
		exchange: exchange,
		logger:   logger,
	}
}

// Connect verifies the session by fetching the user profile.
func (k *KiteBroker) Connect() error {
	profile, err := k.client.GetUserProfile()
	if err != nil {
		return fmt.Errorf("kite session check failed: %w", err)
	}
	k.logger.WithField("user_id", profile.UserID).Info("connected to kite")
	return nil
}

// qualify prefixes the derivatives exchange unless the symbol already names
// one (e.g. "NSE:NIFTY BANK" for the spot index).
func (k *KiteBroker) qualify(symbol string) string {
	if strings.Contains(symbol, ":") {
		return symbol
	}
	return k.exchange + ":" + symbol
}

// GetLTP fetches the last traded price for the symbol.
func (k *KiteBroker) GetLTP(symbol string) (float64, error) {
	full := k.qualify(symbol)
	ltp, err := k.client.GetLTP(full)
	if err != nil {
		return 0, fmt.Errorf("failed to get ltp for %s: %w", symbol, err)
	}
	q, ok := ltp[full]
	if !ok {
		return 0, fmt.Errorf("no ltp returned for %s", symbol)
	}
	return q.LastPrice, nil
}

// GetQuote fetches a full quote for the symbol.
func (k *KiteBroker) GetQuote(symbol string) (*Quote, error) {
	full := k.qualify(symbol)
	quotes, err := k.client.GetQuote(full)
	if err != nil {
		return nil, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
	}
	q, ok := quotes[full]
	if !ok {
		return nil, fmt.Errorf("no quote returned for %s", symbol)
	}
	quote := &Quote{
		Symbol:    symbol,
		Last:      q.LastPrice,
		Volume:    int64(q.Volume),
		Timestamp: q.LastTradeTime.Time,
	}
	if len(q.Depth.Buy) > 0 {
		quote.Bid = q.Depth.Buy[0].Price
	}
	if len(q.Depth.Sell) > 0 {
		quote.Ask = q.Depth.Sell[0].Price
	}
	return quote, nil
}

// PlaceOrder submits a regular NRML order. Quantity is in units, not lots.
func (k *KiteBroker) PlaceOrder(symbol string, side OrderSide, quantity int,
	orderType OrderType, limitPrice float64) (*OrderResult, error) {
	params := kiteconnect.OrderParams{
		Exchange:        k.exchange,
		Tradingsymbol:   symbol,
		TransactionType: string(side),
		OrderType:       string(orderType),
		Product:         kiteconnect.ProductNRML,
		Quantity:        quantity,
		Validity:        "DAY",
	}
	if orderType == TypeLimit {
		params.Price = limitPrice
	}

	resp, err := k.client.PlaceOrder(kiteconnect.VarietyRegular, params)
	if err != nil {
		return nil, fmt.Errorf("failed to place order for %s: %w", symbol, err)
	}

	k.logger.WithFields(logrus.Fields{
		"order_id": resp.OrderID,
		"symbol":   symbol,
		"side":     side,
		"quantity": quantity,
	}).Info("kite order placed")

	return &OrderResult{
		OrderID:   resp.OrderID,
		Status:    "PLACED",
		Message:   "order placed",
		Timestamp: time.Now(),
	}, nil
}

// CancelOrder cancels a pending regular order.
func (k *KiteBroker) CancelOrder(orderID string) error {
	if _, err := k.client.CancelOrder(kiteconnect.VarietyRegular, orderID, nil); err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}
	return nil
}

// GetOrderStatus looks up the order in the day's order book. Kite has no
// single-order endpoint, so this scans GetOrders.
func (k *KiteBroker) GetOrderStatus(orderID string) (*OrderResult, error) {
	orders, err := k.client.GetOrders()
	if err != nil {
		return nil, fmt.Errorf("failed to get orders: %w", err)
	}
	for _, o := range orders {
		if o.OrderID != orderID {
			continue
		}
		return &OrderResult{
			OrderID:   o.OrderID,
			Status:    o.Status,
			FillPrice: o.AveragePrice,
			Message:   o.StatusMessage,
			Timestamp: o.OrderTimestamp.Time,
		}, nil
	}
	return nil, fmt.Errorf("order %s not found", orderID)
}

// GetPositions fetches net positions on the derivatives segment.
func (k *KiteBroker) GetPositions() ([]PositionItem, error) {
	positions, err := k.client.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	items := make([]PositionItem, 0, len(positions.Net))
	for _, p := range positions.Net {
		if p.Quantity == 0 {
			continue
		}
		items = append(items, PositionItem{
			Symbol:        p.Tradingsymbol,
			Quantity:      int(p.Quantity),
			AveragePrice:  p.AveragePrice,
			LastPrice:     p.LastPrice,
			UnrealizedPnL: (p.LastPrice - p.AveragePrice) * float64(p.Quantity) * float64(p.Multiplier),
		})
	}
	return items, nil
}

// GetMargins reports available cash and utilised margin on the equity
// segment, which covers index derivatives.
func (k *KiteBroker) GetMargins() (float64, float64, error) {
	margins, err := k.client.GetUserMargins()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get margins: %w", err)
	}
	return margins.Equity.Available.Cash, margins.Equity.Used.Debits, nil
}
