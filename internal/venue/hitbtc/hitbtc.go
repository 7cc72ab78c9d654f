// Package hitbtc adapts the teacher's HitbtcBridge (broker_hitbtc.go) from
// an HTTP sidecar call pattern into a direct venue.Adapter, using
// go-resty/resty/v2 in place of the teacher's raw net/http client, and the
// session-token auth scheme of spec.md §4.1 (a login call exchanges
// credentials for a session token that is refreshed on expiry, rather
// than signed per request like the HMAC/JWT venues).
package hitbtc

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/chidi150c/tradegateway/internal/indicators"
	"github.com/chidi150c/tradegateway/internal/intent"
	"github.com/chidi150c/tradegateway/internal/money"
	"github.com/chidi150c/tradegateway/internal/venue"
)

// Config is the session-token credential payload for this adapter.
type Config struct {
	APIBase  string
	Login    string
	Password string
}

// Adapter maintains a refreshable session token, mirroring the teacher's
// bridge base-URL pattern but talking to HitBTC directly.
type Adapter struct {
	cfg    Config
	hc     *resty.Client
	mu     sync.Mutex
	token  string
	expiry time.Time
	retry  venue.RetryPolicy
}

func New(cfg Config) (*Adapter, error) {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.hitbtc.com"
	}
	if cfg.Login == "" || cfg.Password == "" {
		return nil, fmt.Errorf("hitbtc: missing login/password")
	}
	return &Adapter{
		cfg:   cfg,
		hc:    resty.New().SetBaseURL(strings.TrimRight(cfg.APIBase, "/")).SetTimeout(15 * time.Second),
		retry: venue.DefaultRetryPolicy(),
	}, nil
}

func (a *Adapter) Name() string { return "hitbtc" }

func (a *Adapter) Capabilities() map[venue.Capability]bool {
	return map[venue.Capability]bool{
		venue.CapLimitOrder:      true,
		venue.CapFractionalOrder: true,
	}
}

func (a *Adapter) NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(symbol), "-", ""))
	if s == "" {
		return "", fmt.Errorf("hitbtc: empty symbol")
	}
	return s, nil
}

func (a *Adapter) RoundQuantity(_ string, qty money.Amount) (money.Amount, error) {
	return qty.RoundDownStep(money.MustNew("0.00001")), nil
}

func (a *Adapter) RoundPrice(_ string, price money.Amount) (money.Amount, error) {
	return price.RoundDownStep(money.MustNew("0.0001")), nil
}

func (a *Adapter) MinQuantityStep(_ string) money.Amount {
	return money.MustNew("0.00001")
}

// sessionToken returns a valid session token, logging in again once the
// previous one has expired. force skips the cache and always logs in again,
// used to recover from a 401 that outlived our cached expiry estimate.
func (a *Adapter) sessionToken(ctx context.Context, force bool) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !force && a.token != "" && time.Now().Before(a.expiry) {
		return a.token, nil
	}
	var body struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expires_in"`
	}
	resp, err := a.hc.R().SetContext(ctx).
		SetBody(map[string]string{"login": a.cfg.Login, "password": a.cfg.Password}).
		SetResult(&body).
		Post("/api/3/session/login")
	if err != nil {
		return "", fmt.Errorf("hitbtc: session login: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("hitbtc: session login: status %d", resp.StatusCode())
	}
	if body.ExpiresIn <= 0 {
		body.ExpiresIn = 900
	}
	a.token = body.Token
	a.expiry = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second).Add(-30 * time.Second)
	return a.token, nil
}

// authedDo runs do with a bearer-authed request, forcing one session
// renewal if the first attempt comes back 401, then retrying on 429/5xx
// with jittered exponential backoff. The forced renewal happens once and
// is never itself subject to the retry budget.
func (a *Adapter) authedDo(ctx context.Context, do func(*resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	tok, err := a.sessionToken(ctx, false)
	if err != nil {
		return nil, err
	}
	resp, err := do(a.hc.R().SetContext(ctx).SetHeader("Authorization", "Bearer "+tok))
	if err == nil && resp.StatusCode() == http.StatusUnauthorized {
		tok, err = a.sessionToken(ctx, true)
		if err != nil {
			return nil, err
		}
		resp, err = do(a.hc.R().SetContext(ctx).SetHeader("Authorization", "Bearer "+tok))
	}
	b := a.retry.Backoff
	b.Reset()
	for attempt := 1; err == nil && resp.IsError() && venue.IsRetryableStatus(resp.StatusCode()) && attempt < a.retry.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return resp, ctx.Err()
		case <-time.After(b.Duration()):
		}
		resp, err = do(a.hc.R().SetContext(ctx).SetHeader("Authorization", "Bearer "+tok))
	}
	return resp, err
}

func (a *Adapter) GetBalance(ctx context.Context) (venue.Balance, error) {
	var balances []struct {
		Currency  string `json:"currency"`
		Available string `json:"available"`
		Reserved  string `json:"reserved"`
	}
	resp, err := a.authedDo(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.SetResult(&balances).Get("/api/3/spot/balance")
	})
	if err != nil {
		return venue.Balance{}, fmt.Errorf("hitbtc: get balance: %w", err)
	}
	if resp.IsError() {
		return venue.Balance{}, fmt.Errorf("hitbtc: get balance: status %d", resp.StatusCode())
	}
	for _, b := range balances {
		if b.Currency == "USDT" || b.Currency == "USD" {
			avail, _ := money.New(b.Available)
			reserved, _ := money.New(b.Reserved)
			return venue.Balance{Currency: b.Currency, Available: avail, Total: avail.Add(reserved)}, nil
		}
	}
	return venue.Balance{Currency: "USD"}, nil
}

func (a *Adapter) GetAvailableMargin(ctx context.Context) (money.Amount, error) {
	return money.Zero, fmt.Errorf("hitbtc: margin: %w", venue.ErrUnsupported)
}

func (a *Adapter) GetTicker(ctx context.Context, symbol string) (venue.Ticker, error) {
	var t struct {
		Ask  string `json:"ask"`
		Bid  string `json:"bid"`
		Last string `json:"last"`
	}
	resp, err := a.authedDo(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.SetResult(&t).Get("/api/3/public/ticker/" + url.PathEscape(symbol))
	})
	if err != nil {
		return venue.Ticker{}, fmt.Errorf("hitbtc: get ticker: %w", err)
	}
	if resp.IsError() {
		return venue.Ticker{}, fmt.Errorf("hitbtc: get ticker: status %d", resp.StatusCode())
	}
	bid, _ := money.New(t.Bid)
	ask, _ := money.New(t.Ask)
	last, _ := money.New(t.Last)
	return venue.Ticker{Symbol: symbol, Bid: bid, Ask: ask, Last: last, Time: time.Now().UTC()}, nil
}

func (a *Adapter) GetRecentCandles(ctx context.Context, symbol string, n int) ([]indicators.Candle, error) {
	var rows []struct {
		Timestamp string `json:"timestamp"`
		Open      string `json:"open"`
		High      string `json:"max"`
		Low       string `json:"min"`
		Close     string `json:"close"`
		Volume    string `json:"volume"`
	}
	resp, err := a.authedDo(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.SetQueryParam("limit", fmt.Sprintf("%d", n)).SetResult(&rows).
			Get("/api/3/public/candles/" + url.PathEscape(symbol))
	})
	if err != nil {
		return nil, fmt.Errorf("hitbtc: get candles: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("hitbtc: get candles: status %d", resp.StatusCode())
	}
	out := make([]indicators.Candle, 0, len(rows))
	for _, r := range rows {
		ts, _ := time.Parse(time.RFC3339, r.Timestamp)
		o, _ := money.New(r.Open)
		h, _ := money.New(r.High)
		l, _ := money.New(r.Low)
		c, _ := money.New(r.Close)
		v, _ := money.New(r.Volume)
		out = append(out, indicators.Candle{Time: ts, Open: o.Float64(), High: h.Float64(), Low: l.Float64(), Close: c.Float64(), Volume: v.Float64()})
	}
	return out, nil
}

func (a *Adapter) GetPositions(ctx context.Context) ([]venue.Position, error) {
	return nil, fmt.Errorf("hitbtc: spot venue has no positions concept: %w", venue.ErrUnsupported)
}

func (a *Adapter) GetPosition(ctx context.Context, symbol string) (venue.Position, error) {
	return venue.Position{}, venue.ErrPositionNotFound
}

func (a *Adapter) HasOpenPosition(ctx context.Context, symbol string) (bool, error) {
	return false, nil
}

func (a *Adapter) PlaceMarketOrder(ctx context.Context, symbol string, side venue.Side, qty money.Amount) (venue.OrderResult, error) {
	return a.placeOrder(ctx, symbol, side, qty, money.Zero, "market")
}

func (a *Adapter) PlaceLimitOrder(ctx context.Context, symbol string, side venue.Side, qty, price money.Amount) (venue.OrderResult, error) {
	return a.placeOrder(ctx, symbol, side, qty, price, "limit")
}

func (a *Adapter) placeOrder(ctx context.Context, symbol string, side venue.Side, qty, price money.Amount, orderType string) (venue.OrderResult, error) {
	sideStr := "buy"
	if side == venue.SideShort {
		sideStr = "sell"
	}
	body := map[string]string{"symbol": symbol, "side": sideStr, "type": orderType, "quantity": qty.String()}
	if orderType == "limit" {
		body["price"] = price.String()
	}
	var result struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	resp, err := a.authedDo(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.SetBody(body).SetResult(&result).Post("/api/3/spot/order")
	})
	if err != nil {
		return venue.OrderResult{}, fmt.Errorf("hitbtc: place order: %w", err)
	}
	if resp.IsError() {
		return venue.OrderResult{}, fmt.Errorf("hitbtc: place order: status %d", resp.StatusCode())
	}
	return venue.OrderResult{OrderID: fmt.Sprintf("%d", result.ID), Status: statusOf(result.Status), FilledPrice: price}, nil
}

func (a *Adapter) PlaceStopLoss(ctx context.Context, symbol string, side venue.Side, qty, stopPrice money.Amount) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("hitbtc: stop loss: %w", venue.ErrUnsupported)
}

func (a *Adapter) PlaceTakeProfit(ctx context.Context, symbol string, side venue.Side, qty, limitPrice money.Amount) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("hitbtc: take profit: %w", venue.ErrUnsupported)
}

func (a *Adapter) PlaceTrailingStop(ctx context.Context, symbol string, side venue.Side, qty money.Amount, distance float64) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("hitbtc: trailing stop: %w", venue.ErrUnsupported)
}

func (a *Adapter) PlaceBracketOrder(ctx context.Context, symbol string, side venue.Side, qty, entryPrice money.Amount, protective venue.ProtectiveOrders) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("hitbtc: bracket order: %w", venue.ErrUnsupported)
}

func (a *Adapter) PlaceOCOOrder(ctx context.Context, symbol string, side venue.Side, qty money.Amount, protective venue.ProtectiveOrders) (venue.OrderResult, venue.OrderResult, error) {
	return venue.OrderResult{}, venue.OrderResult{}, fmt.Errorf("hitbtc: oco order: %w", venue.ErrUnsupported)
}

func (a *Adapter) PlaceOTOOrder(ctx context.Context, symbol string, side venue.Side, qty, entryPrice money.Amount, protective venue.ProtectiveOrders) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("hitbtc: oto order: %w", venue.ErrUnsupported)
}

func (a *Adapter) ClosePosition(ctx context.Context, symbol string, percent float64) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("hitbtc: spot venue has no position to close: %w", venue.ErrUnsupported)
}

func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	resp, err := a.authedDo(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.Delete("/api/3/spot/order/" + url.PathEscape(orderID))
	})
	if err != nil {
		return fmt.Errorf("hitbtc: cancel order: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("hitbtc: cancel order: status %d", resp.StatusCode())
	}
	return nil
}

func (a *Adapter) CancelAllOrders(ctx context.Context, symbol string) error {
	resp, err := a.authedDo(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.SetQueryParam("symbol", symbol).Delete("/api/3/spot/order")
	})
	if err != nil {
		return fmt.Errorf("hitbtc: cancel all orders: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("hitbtc: cancel all orders: status %d", resp.StatusCode())
	}
	return nil
}

func (a *Adapter) PlaceOptionOrder(ctx context.Context, symbol string, extras intent.OptionsExtras, side venue.Side, qty money.Amount) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("hitbtc: options: %w", venue.ErrUnsupported)
}

func (a *Adapter) PlacePredictionOrder(ctx context.Context, symbol string, extras intent.PredictionExtras, qty money.Amount) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("hitbtc: prediction market: %w", venue.ErrUnsupported)
}

func statusOf(s string) venue.OrderStatus {
	switch strings.ToLower(s) {
	case "filled":
		return venue.OrderFilled
	case "canceled", "cancelled":
		return venue.OrderCanceled
	case "rejected", "expired":
		return venue.OrderRejected
	case "new", "partiallyfilled", "suspended":
		return venue.OrderOpen
	default:
		return venue.OrderPending
	}
}

var _ venue.Adapter = (*Adapter)(nil)
