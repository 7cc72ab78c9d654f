// Package oauthfx is a venue.Adapter for a forex/equities-style broker
// whose auth scheme is an OAuth2 refresh-token flow (spec.md §4.1's
// "OAuth-refresh" example) rather than a static key. It is new relative
// to the teacher — chidi150c-coinbase only ever talks to crypto venues —
// but follows the teacher's broker shape (Name/GetTicker/PlaceMarketOrder
// etc.) with golang.org/x/oauth2 supplying the token source and
// go-resty/resty/v2 carrying the requests, matching the resty idiom the
// other REST adapters in this module use.
package oauthfx

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"

	"github.com/chidi150c/tradegateway/internal/indicators"
	"github.com/chidi150c/tradegateway/internal/intent"
	"github.com/chidi150c/tradegateway/internal/money"
	"github.com/chidi150c/tradegateway/internal/venue"
)

// Config is the OAuth-refresh credential payload.
type Config struct {
	APIBase      string
	ClientID     string
	ClientSecret string
	RefreshToken string
	TokenURL     string
}

// Adapter talks to an OAuth2-protected brokerage REST API. The token
// source is rebuilt from the bare refresh token on a forced renewal,
// since oauth2.ReuseTokenSource exposes no public invalidation call.
type Adapter struct {
	hc  *resty.Client
	cfg oauth2.Config

	mu           sync.Mutex
	refreshToken string
	src          oauth2.TokenSource
	retry        venue.RetryPolicy
}

func New(cfg Config) (*Adapter, error) {
	if cfg.RefreshToken == "" || cfg.ClientID == "" {
		return nil, fmt.Errorf("oauthfx: missing client_id/refresh_token")
	}
	oauthCfg := oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
	}
	a := &Adapter{
		hc:           resty.New().SetBaseURL(strings.TrimRight(cfg.APIBase, "/")).SetTimeout(15 * time.Second),
		cfg:          oauthCfg,
		refreshToken: cfg.RefreshToken,
		retry:        venue.DefaultRetryPolicy(),
	}
	a.src = oauthCfg.TokenSource(context.Background(), &oauth2.Token{RefreshToken: cfg.RefreshToken})
	return a, nil
}

func (a *Adapter) Name() string { return "oauthfx" }

func (a *Adapter) Capabilities() map[venue.Capability]bool {
	return map[venue.Capability]bool{
		venue.CapLimitOrder:   true,
		venue.CapBracketOrder: true,
		venue.CapOptions:      true,
	}
}

func (a *Adapter) NormalizeSymbol(symbol string) (string, error) {
	return strings.ToUpper(strings.TrimSpace(symbol)), nil
}

func (a *Adapter) RoundQuantity(_ string, qty money.Amount) (money.Amount, error) {
	return qty.RoundDownStep(money.MustNew("1")), nil
}

func (a *Adapter) RoundPrice(_ string, price money.Amount) (money.Amount, error) {
	return price.RoundDownStep(money.MustNew("0.01")), nil
}

func (a *Adapter) MinQuantityStep(_ string) money.Amount {
	return money.MustNew("1")
}

// bearerToken returns the access token, forcing a fresh refresh-exchange
// when force is set by discarding the cached TokenSource and rebuilding
// one seeded with only the refresh token (always !Valid(), so .Token()
// always calls the token endpoint).
func (a *Adapter) bearerToken(ctx context.Context, force bool) (string, error) {
	a.mu.Lock()
	src := a.src
	if force {
		src = a.cfg.TokenSource(context.Background(), &oauth2.Token{RefreshToken: a.refreshToken})
		a.src = src
	}
	a.mu.Unlock()
	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("oauthfx: refresh token exchange: %w", err)
	}
	return tok.AccessToken, nil
}

// authedDo runs do with a bearer-authed request, forcing one token
// renewal if the first attempt comes back 401, then retrying on 429/5xx
// with jittered exponential backoff. The forced renewal happens once and
// is never itself subject to the retry budget.
func (a *Adapter) authedDo(ctx context.Context, do func(*resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	tok, err := a.bearerToken(ctx, false)
	if err != nil {
		return nil, err
	}
	resp, err := do(a.hc.R().SetContext(ctx).SetHeader("Authorization", "Bearer "+tok))
	if err == nil && resp.StatusCode() == http.StatusUnauthorized {
		tok, err = a.bearerToken(ctx, true)
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
	var body struct {
		Currency  string `json:"currency"`
		Available string `json:"buying_power"`
		Total     string `json:"equity"`
	}
	resp, err := a.authedDo(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.SetResult(&body).Get("/v1/account")
	})
	if err != nil {
		return venue.Balance{}, fmt.Errorf("oauthfx: get balance: %w", err)
	}
	if resp.IsError() {
		return venue.Balance{}, fmt.Errorf("oauthfx: get balance: status %d", resp.StatusCode())
	}
	avail, _ := money.New(body.Available)
	total, _ := money.New(body.Total)
	if body.Currency == "" {
		body.Currency = "USD"
	}
	return venue.Balance{Currency: body.Currency, Available: avail, Total: total}, nil
}

func (a *Adapter) GetAvailableMargin(ctx context.Context) (money.Amount, error) {
	var body struct {
		MarginAvailable string `json:"margin_available"`
	}
	resp, err := a.authedDo(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.SetResult(&body).Get("/v1/account")
	})
	if err != nil {
		return money.Zero, fmt.Errorf("oauthfx: get margin: %w", err)
	}
	if resp.IsError() {
		return money.Zero, fmt.Errorf("oauthfx: get margin: status %d", resp.StatusCode())
	}
	avail, _ := money.New(body.MarginAvailable)
	return avail, nil
}

func (a *Adapter) GetTicker(ctx context.Context, symbol string) (venue.Ticker, error) {
	var body struct {
		Bid  string `json:"bid"`
		Ask  string `json:"ask"`
		Last string `json:"last"`
	}
	resp, err := a.authedDo(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.SetResult(&body).Get("/v1/quotes/" + symbol)
	})
	if err != nil {
		return venue.Ticker{}, fmt.Errorf("oauthfx: get ticker: %w", err)
	}
	if resp.IsError() {
		return venue.Ticker{}, fmt.Errorf("oauthfx: get ticker: status %d", resp.StatusCode())
	}
	bid, _ := money.New(body.Bid)
	ask, _ := money.New(body.Ask)
	last, _ := money.New(body.Last)
	return venue.Ticker{Symbol: symbol, Bid: bid, Ask: ask, Last: last, Time: time.Now().UTC()}, nil
}

func (a *Adapter) GetRecentCandles(ctx context.Context, symbol string, n int) ([]indicators.Candle, error) {
	var rows []struct {
		Timestamp string `json:"t"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
	}
	resp, err := a.authedDo(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.SetQueryParam("limit", fmt.Sprintf("%d", n)).SetResult(&rows).
			Get("/v1/candles/" + symbol)
	})
	if err != nil {
		return nil, fmt.Errorf("oauthfx: get candles: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("oauthfx: get candles: status %d", resp.StatusCode())
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
	var rows []struct {
		Symbol string `json:"symbol"`
		Side   string `json:"side"`
		Qty    string `json:"qty"`
		Entry  string `json:"avg_entry_price"`
		Mark   string `json:"current_price"`
	}
	resp, err := a.authedDo(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.SetResult(&rows).Get("/v1/positions")
	})
	if err != nil {
		return nil, fmt.Errorf("oauthfx: get positions: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("oauthfx: get positions: status %d", resp.StatusCode())
	}
	out := make([]venue.Position, 0, len(rows))
	for _, r := range rows {
		qty, _ := money.New(r.Qty)
		entry, _ := money.New(r.Entry)
		mark, _ := money.New(r.Mark)
		side := venue.SideLong
		if r.Side == "short" {
			side = venue.SideShort
		}
		out = append(out, venue.Position{Symbol: r.Symbol, Side: side, Quantity: qty, EntryPrice: entry, MarkPrice: mark})
	}
	return out, nil
}

func (a *Adapter) GetPosition(ctx context.Context, symbol string) (venue.Position, error) {
	positions, err := a.GetPositions(ctx)
	if err != nil {
		return venue.Position{}, err
	}
	for _, p := range positions {
		if p.Symbol == symbol {
			return p, nil
		}
	}
	return venue.Position{}, venue.ErrPositionNotFound
}

func (a *Adapter) HasOpenPosition(ctx context.Context, symbol string) (bool, error) {
	_, err := a.GetPosition(ctx, symbol)
	if err == venue.ErrPositionNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (a *Adapter) PlaceMarketOrder(ctx context.Context, symbol string, side venue.Side, qty money.Amount) (venue.OrderResult, error) {
	return a.placeOrder(ctx, symbol, side, qty, money.Zero, "market", nil)
}

func (a *Adapter) PlaceLimitOrder(ctx context.Context, symbol string, side venue.Side, qty, price money.Amount) (venue.OrderResult, error) {
	return a.placeOrder(ctx, symbol, side, qty, price, "limit", nil)
}

func (a *Adapter) PlaceStopLoss(ctx context.Context, symbol string, side venue.Side, qty, stopPrice money.Amount) (venue.OrderResult, error) {
	return a.placeOrder(ctx, symbol, side, qty, stopPrice, "stop", nil)
}

func (a *Adapter) PlaceTakeProfit(ctx context.Context, symbol string, side venue.Side, qty, limitPrice money.Amount) (venue.OrderResult, error) {
	return a.placeOrder(ctx, symbol, side, qty, limitPrice, "limit", nil)
}

func (a *Adapter) PlaceTrailingStop(ctx context.Context, symbol string, side venue.Side, qty money.Amount, distance float64) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("oauthfx: trailing stop: %w", venue.ErrUnsupported)
}

// PlaceBracketOrder is the preferred protective-order path for this
// adapter (CapBracketOrder is true): entry + stop-loss + take-profit in
// one atomic request.
func (a *Adapter) PlaceBracketOrder(ctx context.Context, symbol string, side venue.Side, qty, entryPrice money.Amount, protective venue.ProtectiveOrders) (venue.OrderResult, error) {
	extra := map[string]any{
		"order_class": "bracket",
	}
	if protective.HasStopLoss {
		extra["stop_loss"] = map[string]string{"stop_price": protective.StopLossPrice.String()}
	}
	if protective.HasTakeProfit {
		extra["take_profit"] = map[string]string{"limit_price": protective.TakeProfitPrice.String()}
	}
	return a.placeOrder(ctx, symbol, side, qty, entryPrice, "limit", extra)
}

func (a *Adapter) PlaceOCOOrder(ctx context.Context, symbol string, side venue.Side, qty money.Amount, protective venue.ProtectiveOrders) (venue.OrderResult, venue.OrderResult, error) {
	return venue.OrderResult{}, venue.OrderResult{}, fmt.Errorf("oauthfx: oco order: %w", venue.ErrUnsupported)
}

func (a *Adapter) PlaceOTOOrder(ctx context.Context, symbol string, side venue.Side, qty, entryPrice money.Amount, protective venue.ProtectiveOrders) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("oauthfx: oto order: %w", venue.ErrUnsupported)
}

func (a *Adapter) placeOrder(ctx context.Context, symbol string, side venue.Side, qty, price money.Amount, orderType string, extra map[string]any) (venue.OrderResult, error) {
	sideStr := "buy"
	if side == venue.SideShort {
		sideStr = "sell"
	}
	body := map[string]any{"symbol": symbol, "side": sideStr, "type": orderType, "qty": qty.String()}
	if orderType != "market" {
		body["limit_price"] = price.String()
	}
	for k, v := range extra {
		body[k] = v
	}
	var result struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		FilledQty   string `json:"filled_qty"`
		FilledAvgPx string `json:"filled_avg_price"`
	}
	resp, err := a.authedDo(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.SetBody(body).SetResult(&result).Post("/v1/orders")
	})
	if err != nil {
		return venue.OrderResult{}, fmt.Errorf("oauthfx: place order: %w", err)
	}
	if resp.IsError() {
		return venue.OrderResult{}, fmt.Errorf("oauthfx: place order: status %d", resp.StatusCode())
	}
	filledQty, _ := money.New(result.FilledQty)
	filledPx, _ := money.New(result.FilledAvgPx)
	if filledPx.IsZero() {
		filledPx = price
	}
	return venue.OrderResult{OrderID: result.ID, Status: statusOf(result.Status), FilledQty: filledQty, FilledPrice: filledPx}, nil
}

func (a *Adapter) ClosePosition(ctx context.Context, symbol string, percent float64) (venue.OrderResult, error) {
	if percent <= 0 || percent > 100 {
		percent = 100
	}
	var result struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		FilledQty   string `json:"filled_qty"`
		FilledAvgPx string `json:"filled_avg_price"`
	}
	resp, err := a.authedDo(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.SetQueryParam("percentage", fmt.Sprintf("%g", percent)).SetResult(&result).
			Delete("/v1/positions/" + symbol)
	})
	if err != nil {
		return venue.OrderResult{}, fmt.Errorf("oauthfx: close position: %w", err)
	}
	if resp.IsError() {
		return venue.OrderResult{}, fmt.Errorf("oauthfx: close position: status %d", resp.StatusCode())
	}
	filledQty, _ := money.New(result.FilledQty)
	filledPx, _ := money.New(result.FilledAvgPx)
	return venue.OrderResult{OrderID: result.ID, Status: statusOf(result.Status), FilledQty: filledQty, FilledPrice: filledPx}, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	resp, err := a.authedDo(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.Delete("/v1/orders/" + orderID)
	})
	if err != nil {
		return fmt.Errorf("oauthfx: cancel order: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("oauthfx: cancel order: status %d", resp.StatusCode())
	}
	return nil
}

func (a *Adapter) CancelAllOrders(ctx context.Context, symbol string) error {
	resp, err := a.authedDo(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.SetQueryParam("symbol", symbol).Delete("/v1/orders")
	})
	if err != nil {
		return fmt.Errorf("oauthfx: cancel all orders: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("oauthfx: cancel all orders: status %d", resp.StatusCode())
	}
	return nil
}

// PlaceOptionOrder is the one meaningfully wired compound operation for
// this adapter (CapOptions is true): options-market brokers are the
// reason Intent carries the OptionsExtras sub-struct.
func (a *Adapter) PlaceOptionOrder(ctx context.Context, symbol string, extras intent.OptionsExtras, side venue.Side, qty money.Amount) (venue.OrderResult, error) {
	if extras.Right != "call" && extras.Right != "put" {
		return venue.OrderResult{}, fmt.Errorf("oauthfx: options right must be call or put, got %q", extras.Right)
	}
	sideStr := "buy_to_open"
	if side == venue.SideShort {
		sideStr = "sell_to_open"
	}
	body := map[string]any{
		"symbol":     symbol,
		"side":       sideStr,
		"type":       "market",
		"qty":        qty.String(),
		"right":      extras.Right,
		"strike":     extras.Strike.String(),
		"expiration": extras.Expiration,
	}
	var result struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		FilledQty   string `json:"filled_qty"`
		FilledAvgPx string `json:"filled_avg_price"`
	}
	resp, err := a.authedDo(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.SetBody(body).SetResult(&result).Post("/v1/options/orders")
	})
	if err != nil {
		return venue.OrderResult{}, fmt.Errorf("oauthfx: place option order: %w", err)
	}
	if resp.IsError() {
		return venue.OrderResult{}, fmt.Errorf("oauthfx: place option order: status %d", resp.StatusCode())
	}
	filledQty, _ := money.New(result.FilledQty)
	filledPx, _ := money.New(result.FilledAvgPx)
	return venue.OrderResult{OrderID: result.ID, Status: statusOf(result.Status), FilledQty: filledQty, FilledPrice: filledPx}, nil
}

func (a *Adapter) PlacePredictionOrder(ctx context.Context, symbol string, extras intent.PredictionExtras, qty money.Amount) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("oauthfx: prediction market: %w", venue.ErrUnsupported)
}

func statusOf(s string) venue.OrderStatus {
	switch strings.ToLower(s) {
	case "filled":
		return venue.OrderFilled
	case "canceled", "cancelled", "expired":
		return venue.OrderCanceled
	case "rejected":
		return venue.OrderRejected
	case "new", "accepted", "partially_filled", "held":
		return venue.OrderOpen
	default:
		return venue.OrderPending
	}
}

var _ venue.Adapter = (*Adapter)(nil)
