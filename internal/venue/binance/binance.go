// Package binance adapts the teacher's HTTP-bridge broker shape
// (broker_binance.go, binance_broker.go) to a direct connection against
// the real Binance API via the adshao/go-binance/v2 SDK, as spec.md
// §4.1's HMAC-keyed auth-scheme example. The teacher's bridge pattern
// (an HTTP sidecar the bot polls) is replaced with the SDK client
// directly; the adapter's public shape — Name/GetNowPrice/PlaceMarketQuote
// -style coverage — still follows the teacher's broker surface.
package binance

import (
	"context"
	"fmt"
	"strings"
	"time"

	binancesdk "github.com/adshao/go-binance/v2"

	"github.com/chidi150c/tradegateway/internal/indicators"
	"github.com/chidi150c/tradegateway/internal/intent"
	"github.com/chidi150c/tradegateway/internal/money"
	"github.com/chidi150c/tradegateway/internal/venue"
)

// Config is the HMAC credential payload this adapter expects.
type Config struct {
	APIKey    string
	APISecret string
}

// Adapter wraps a go-binance/v2 client behind venue.Adapter.
type Adapter struct {
	client *binancesdk.Client
}

func New(cfg Config) (*Adapter, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("binance: missing api_key/api_secret")
	}
	return &Adapter{client: binancesdk.NewClient(cfg.APIKey, cfg.APISecret)}, nil
}

func (a *Adapter) Name() string { return "binance" }

func (a *Adapter) Capabilities() map[venue.Capability]bool {
	return map[venue.Capability]bool{
		venue.CapLimitOrder:      true,
		venue.CapOCOOrder:        true,
		venue.CapFractionalOrder: true,
		venue.CapMargin:          true,
	}
}

func (a *Adapter) NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "/", "")
	if s == "" {
		return "", fmt.Errorf("binance: empty symbol")
	}
	return s, nil
}

func (a *Adapter) RoundQuantity(_ string, qty money.Amount) (money.Amount, error) {
	return qty.RoundDownStep(money.MustNew("0.000001")), nil
}

func (a *Adapter) RoundPrice(_ string, price money.Amount) (money.Amount, error) {
	return price.RoundDownStep(money.MustNew("0.01")), nil
}

func (a *Adapter) MinQuantityStep(_ string) money.Amount {
	return money.MustNew("0.000001")
}

func (a *Adapter) GetBalance(ctx context.Context) (venue.Balance, error) {
	acct, err := a.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return venue.Balance{}, fmt.Errorf("binance: get account: %w", err)
	}
	for _, bal := range acct.Balances {
		if bal.Asset == "USDT" {
			avail, err := money.New(bal.Free)
			if err != nil {
				return venue.Balance{}, fmt.Errorf("binance: parse balance: %w", err)
			}
			locked, _ := money.New(bal.Locked)
			return venue.Balance{Currency: "USDT", Available: avail, Total: avail.Add(locked)}, nil
		}
	}
	return venue.Balance{Currency: "USDT"}, nil
}

func (a *Adapter) GetAvailableMargin(ctx context.Context) (money.Amount, error) {
	return money.Zero, fmt.Errorf("binance: margin requires the margin API client: %w", venue.ErrUnsupported)
}

func (a *Adapter) GetTicker(ctx context.Context, symbol string) (venue.Ticker, error) {
	book, err := a.client.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return venue.Ticker{}, fmt.Errorf("binance: ticker: %w", err)
	}
	if len(book) == 0 {
		return venue.Ticker{}, fmt.Errorf("binance: no ticker for %s", symbol)
	}
	bid, err := money.New(book[0].BidPrice)
	if err != nil {
		return venue.Ticker{}, fmt.Errorf("binance: parse bid: %w", err)
	}
	ask, err := money.New(book[0].AskPrice)
	if err != nil {
		return venue.Ticker{}, fmt.Errorf("binance: parse ask: %w", err)
	}
	return venue.Ticker{Symbol: symbol, Bid: bid, Ask: ask, Last: bid.Add(ask).Percent(50), Time: time.Now().UTC()}, nil
}

func (a *Adapter) GetRecentCandles(ctx context.Context, symbol string, n int) ([]indicators.Candle, error) {
	klines, err := a.client.NewKlinesService().Symbol(symbol).Interval("1m").Limit(n).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: klines: %w", err)
	}
	out := make([]indicators.Candle, 0, len(klines))
	for _, k := range klines {
		o, _ := money.New(k.Open)
		h, _ := money.New(k.High)
		l, _ := money.New(k.Low)
		c, _ := money.New(k.Close)
		v, _ := money.New(k.Volume)
		out = append(out, indicators.Candle{
			Time:   time.UnixMilli(k.OpenTime).UTC(),
			Open:   o.Float64(), High: h.Float64(), Low: l.Float64(), Close: c.Float64(), Volume: v.Float64(),
		})
	}
	return out, nil
}

func (a *Adapter) GetPositions(ctx context.Context) ([]venue.Position, error) {
	return nil, fmt.Errorf("binance: spot venue has no positions concept: %w", venue.ErrUnsupported)
}

func (a *Adapter) GetPosition(ctx context.Context, symbol string) (venue.Position, error) {
	return venue.Position{}, venue.ErrPositionNotFound
}

func (a *Adapter) HasOpenPosition(ctx context.Context, symbol string) (bool, error) {
	return false, nil
}

func (a *Adapter) PlaceMarketOrder(ctx context.Context, symbol string, side venue.Side, qty money.Amount) (venue.OrderResult, error) {
	sdkSide := binancesdk.SideTypeBuy
	if side == venue.SideShort {
		sdkSide = binancesdk.SideTypeSell
	}
	order, err := a.client.NewCreateOrderService().
		Symbol(symbol).Side(sdkSide).Type(binancesdk.OrderTypeMarket).
		Quantity(qty.String()).Do(ctx)
	if err != nil {
		return venue.OrderResult{}, fmt.Errorf("binance: place market order: %w", err)
	}
	filled, _ := money.New(order.ExecutedQuantity)
	return venue.OrderResult{OrderID: fmt.Sprintf("%d", order.OrderID), Status: statusOf(order.Status), FilledQty: filled}, nil
}

func (a *Adapter) PlaceLimitOrder(ctx context.Context, symbol string, side venue.Side, qty, price money.Amount) (venue.OrderResult, error) {
	sdkSide := binancesdk.SideTypeBuy
	if side == venue.SideShort {
		sdkSide = binancesdk.SideTypeSell
	}
	order, err := a.client.NewCreateOrderService().
		Symbol(symbol).Side(sdkSide).Type(binancesdk.OrderTypeLimit).
		TimeInForce(binancesdk.TimeInForceTypeGTC).
		Quantity(qty.String()).Price(price.String()).Do(ctx)
	if err != nil {
		return venue.OrderResult{}, fmt.Errorf("binance: place limit order: %w", err)
	}
	return venue.OrderResult{OrderID: fmt.Sprintf("%d", order.OrderID), Status: statusOf(order.Status), FilledPrice: price}, nil
}

func (a *Adapter) PlaceStopLoss(ctx context.Context, symbol string, side venue.Side, qty, stopPrice money.Amount) (venue.OrderResult, error) {
	sdkSide := binancesdk.SideTypeSell
	if side == venue.SideShort {
		sdkSide = binancesdk.SideTypeBuy
	}
	order, err := a.client.NewCreateOrderService().
		Symbol(symbol).Side(sdkSide).Type(binancesdk.OrderTypeStopLoss).
		Quantity(qty.String()).StopPrice(stopPrice.String()).Do(ctx)
	if err != nil {
		return venue.OrderResult{}, fmt.Errorf("binance: place stop loss: %w", err)
	}
	return venue.OrderResult{OrderID: fmt.Sprintf("%d", order.OrderID), Status: statusOf(order.Status)}, nil
}

func (a *Adapter) PlaceTakeProfit(ctx context.Context, symbol string, side venue.Side, qty, limitPrice money.Amount) (venue.OrderResult, error) {
	sdkSide := binancesdk.SideTypeSell
	if side == venue.SideShort {
		sdkSide = binancesdk.SideTypeBuy
	}
	order, err := a.client.NewCreateOrderService().
		Symbol(symbol).Side(sdkSide).Type(binancesdk.OrderTypeTakeProfit).
		Quantity(qty.String()).StopPrice(limitPrice.String()).Do(ctx)
	if err != nil {
		return venue.OrderResult{}, fmt.Errorf("binance: place take profit: %w", err)
	}
	return venue.OrderResult{OrderID: fmt.Sprintf("%d", order.OrderID), Status: statusOf(order.Status)}, nil
}

func (a *Adapter) PlaceTrailingStop(ctx context.Context, symbol string, side venue.Side, qty money.Amount, distance float64) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("binance: native trailing stop: %w", venue.ErrUnsupported)
}

func (a *Adapter) PlaceBracketOrder(ctx context.Context, symbol string, side venue.Side, qty, entryPrice money.Amount, protective venue.ProtectiveOrders) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("binance: bracket order: %w", venue.ErrUnsupported)
}

// PlaceOCOOrder uses Binance's native OCO order type for the protective
// pair (CapOCOOrder is true for this adapter).
func (a *Adapter) PlaceOCOOrder(ctx context.Context, symbol string, side venue.Side, qty money.Amount, protective venue.ProtectiveOrders) (venue.OrderResult, venue.OrderResult, error) {
	if !protective.HasStopLoss || !protective.HasTakeProfit {
		return venue.OrderResult{}, venue.OrderResult{}, fmt.Errorf("binance: oco requires both legs")
	}
	sdkSide := binancesdk.SideTypeSell
	if side == venue.SideShort {
		sdkSide = binancesdk.SideTypeBuy
	}
	oco, err := a.client.NewCreateOCOService().
		Symbol(symbol).Side(sdkSide).Quantity(qty.String()).
		Price(protective.TakeProfitPrice.String()).
		StopPrice(protective.StopLossPrice.String()).
		StopLimitPrice(protective.StopLossPrice.String()).
		StopLimitTimeInForce(binancesdk.TimeInForceTypeGTC).
		Do(ctx)
	if err != nil {
		return venue.OrderResult{}, venue.OrderResult{}, fmt.Errorf("binance: place oco: %w", err)
	}
	tp := venue.OrderResult{OrderID: fmt.Sprintf("oco-%d-tp", oco.OrderListID), Status: venue.OrderOpen}
	sl := venue.OrderResult{OrderID: fmt.Sprintf("oco-%d-sl", oco.OrderListID), Status: venue.OrderOpen}
	return tp, sl, nil
}

func (a *Adapter) PlaceOTOOrder(ctx context.Context, symbol string, side venue.Side, qty, entryPrice money.Amount, protective venue.ProtectiveOrders) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("binance: oto order: %w", venue.ErrUnsupported)
}

func (a *Adapter) ClosePosition(ctx context.Context, symbol string, percent float64) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("binance: spot venue has no position to close directly, sell the held quantity instead: %w", venue.ErrUnsupported)
}

func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	return fmt.Errorf("binance: cancel order requires symbol context, use CancelAllOrders: %w", venue.ErrUnsupported)
}

func (a *Adapter) CancelAllOrders(ctx context.Context, symbol string) error {
	_, err := a.client.NewCancelOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return fmt.Errorf("binance: cancel all orders: %w", err)
	}
	return nil
}

func (a *Adapter) PlaceOptionOrder(ctx context.Context, symbol string, extras intent.OptionsExtras, side venue.Side, qty money.Amount) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("binance: options: %w", venue.ErrUnsupported)
}

func (a *Adapter) PlacePredictionOrder(ctx context.Context, symbol string, extras intent.PredictionExtras, qty money.Amount) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("binance: prediction market: %w", venue.ErrUnsupported)
}

func statusOf(s binancesdk.OrderStatusType) venue.OrderStatus {
	switch s {
	case binancesdk.OrderStatusTypeFilled:
		return venue.OrderFilled
	case binancesdk.OrderStatusTypeCanceled:
		return venue.OrderCanceled
	case binancesdk.OrderStatusTypeRejected, binancesdk.OrderStatusTypeExpired:
		return venue.OrderRejected
	case binancesdk.OrderStatusTypeNew, binancesdk.OrderStatusTypePartiallyFilled:
		return venue.OrderOpen
	default:
		return venue.OrderPending
	}
}

var _ venue.Adapter = (*Adapter)(nil)
