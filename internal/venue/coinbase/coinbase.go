// Package coinbase adapts the teacher's CoinbaseBroker (broker_coinbase.go)
// into the venue.Adapter contract. It keeps the teacher's asymmetric JWT
// auth scheme (RS256 with a per-request short-lived token, via
// github.com/golang-jwt/jwt/v5) but generalizes the product/order surface
// to the full Adapter interface (spec.md §4.1's "Asymmetric/JWT" auth
// scheme example).
package coinbase

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/chidi150c/tradegateway/internal/indicators"
	"github.com/chidi150c/tradegateway/internal/intent"
	"github.com/chidi150c/tradegateway/internal/money"
	"github.com/chidi150c/tradegateway/internal/venue"
)

// Config is the credential payload this adapter expects from
// venue.Credential.Payload: either "bearer_token", or "key_name" +
// "private_key_pem" for the teacher's mint-per-request JWT path.
type Config struct {
	APIBase       string
	KeyName       string
	PrivateKeyPEM string
	BearerToken   string
}

// Adapter talks to the Coinbase Advanced Trade REST API.
type Adapter struct {
	cfg Config
	hc  *resty.Client
}

// New builds a coinbase Adapter. Matches the venue.Factory signature once
// partially applied by the registry wiring in cmd/gateway.
func New(cfg Config) (*Adapter, error) {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.coinbase.com"
	}
	if cfg.BearerToken == "" && (cfg.KeyName == "" || cfg.PrivateKeyPEM == "") {
		return nil, errors.New("coinbase: auth not configured (need bearer_token or key_name+private_key_pem)")
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.APIBase, "/")).
		SetTimeout(15 * time.Second).
		SetHeader("User-Agent", "tradegateway/coinbase")
	return &Adapter{cfg: cfg, hc: client}, nil
}

func (a *Adapter) Name() string { return "coinbase" }

func (a *Adapter) Capabilities() map[venue.Capability]bool {
	return map[venue.Capability]bool{
		venue.CapLimitOrder: true,
	}
}

func (a *Adapter) NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.ReplaceAll(s, "/", "-")
	if !strings.Contains(s, "-") {
		return "", fmt.Errorf("coinbase: symbol %q is not in BASE-QUOTE form", symbol)
	}
	return s, nil
}

func (a *Adapter) RoundQuantity(_ string, qty money.Amount) (money.Amount, error) {
	return qty.RoundDownStep(money.MustNew("0.00000001")), nil
}

func (a *Adapter) RoundPrice(_ string, price money.Amount) (money.Amount, error) {
	return price.RoundDownStep(money.MustNew("0.01")), nil
}

func (a *Adapter) MinQuantityStep(_ string) money.Amount {
	return money.MustNew("0.00000001")
}

// authHeader mints the Authorization header value for a request, preferring
// a fixed bearer token and falling back to the teacher's per-request RS256
// JWT minting (broker_coinbase.go mintCoinbaseJWT).
func (a *Adapter) authHeader() (string, error) {
	if a.cfg.BearerToken != "" {
		return "Bearer " + a.cfg.BearerToken, nil
	}
	token, err := mintJWT(a.cfg.KeyName, a.cfg.PrivateKeyPEM, 25*time.Second)
	if err != nil {
		return "", err
	}
	return "Bearer " + token, nil
}

func mintJWT(keyName, privatePEM string, ttl time.Duration) (string, error) {
	block, _ := pem.Decode([]byte(strings.ReplaceAll(privatePEM, `\n`, "\n")))
	if block == nil {
		return "", errors.New("coinbase: invalid private key (no PEM block)")
	}
	var priv *rsa.PrivateKey
	switch block.Type {
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return "", err
		}
		rk, ok := k.(*rsa.PrivateKey)
		if !ok {
			return "", errors.New("coinbase: not an RSA private key")
		}
		priv = rk
	case "RSA PRIVATE KEY":
		k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return "", err
		}
		priv = k
	default:
		return "", fmt.Errorf("coinbase: unsupported key type %q", block.Type)
	}
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": keyName,
		"aud": "retail_rest_api",
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"nbf": now.Add(-5 * time.Second).Unix(),
		"jti": uuid.New().String(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(priv)
}

func (a *Adapter) req(ctx context.Context) (*resty.Request, error) {
	h, err := a.authHeader()
	if err != nil {
		return nil, err
	}
	return a.hc.R().SetContext(ctx).SetHeader("Authorization", h), nil
}

func (a *Adapter) GetTicker(ctx context.Context, symbol string) (venue.Ticker, error) {
	req, err := a.req(ctx)
	if err != nil {
		return venue.Ticker{}, err
	}
	var body struct {
		Price string `json:"price"`
	}
	resp, err := req.SetResult(&body).Get("/api/v3/brokerage/products/" + url.PathEscape(symbol))
	if err != nil {
		return venue.Ticker{}, fmt.Errorf("coinbase: get ticker: %w", err)
	}
	if resp.IsError() {
		return venue.Ticker{}, fmt.Errorf("coinbase: get ticker: status %d", resp.StatusCode())
	}
	price, err := money.New(body.Price)
	if err != nil {
		return venue.Ticker{}, fmt.Errorf("coinbase: parse price: %w", err)
	}
	return venue.Ticker{Symbol: symbol, Bid: price, Ask: price, Last: price, Time: time.Now().UTC()}, nil
}

func (a *Adapter) GetRecentCandles(ctx context.Context, symbol string, n int) ([]indicators.Candle, error) {
	return nil, fmt.Errorf("coinbase: candle fetch not wired in this adapter: %w", venue.ErrUnsupported)
}

func (a *Adapter) GetBalance(ctx context.Context) (venue.Balance, error) {
	return venue.Balance{}, fmt.Errorf("coinbase: get balance: %w", venue.ErrUnsupported)
}

func (a *Adapter) GetAvailableMargin(ctx context.Context) (money.Amount, error) {
	return money.Zero, fmt.Errorf("coinbase: margin: %w", venue.ErrUnsupported)
}

func (a *Adapter) GetPositions(ctx context.Context) ([]venue.Position, error) {
	return nil, fmt.Errorf("coinbase: positions: %w", venue.ErrUnsupported)
}

func (a *Adapter) GetPosition(ctx context.Context, symbol string) (venue.Position, error) {
	return venue.Position{}, venue.ErrPositionNotFound
}

func (a *Adapter) HasOpenPosition(ctx context.Context, symbol string) (bool, error) {
	return false, nil
}

func (a *Adapter) PlaceMarketOrder(ctx context.Context, symbol string, side venue.Side, qty money.Amount) (venue.OrderResult, error) {
	req, err := a.req(ctx)
	if err != nil {
		return venue.OrderResult{}, err
	}
	orderSide := "BUY"
	if side == venue.SideShort {
		orderSide = "SELL"
	}
	payload := map[string]any{
		"client_order_id": uuid.New().String(),
		"product_id":      symbol,
		"side":            orderSide,
		"order_configuration": map[string]any{
			"market_market_ioc": map[string]any{"base_size": qty.String()},
		},
	}
	var buf bytes.Buffer
	resp, err := req.SetBody(payload).SetResult(&buf).Post("/api/v3/brokerage/orders")
	if err != nil {
		return venue.OrderResult{}, fmt.Errorf("coinbase: place market order: %w", err)
	}
	if resp.IsError() {
		return venue.OrderResult{}, fmt.Errorf("coinbase: place market order: status %d", resp.StatusCode())
	}
	return venue.OrderResult{OrderID: payload["client_order_id"].(string), Status: venue.OrderPending, FilledQty: qty}, nil
}

func (a *Adapter) PlaceLimitOrder(ctx context.Context, symbol string, side venue.Side, qty, price money.Amount) (venue.OrderResult, error) {
	req, err := a.req(ctx)
	if err != nil {
		return venue.OrderResult{}, err
	}
	orderSide := "BUY"
	if side == venue.SideShort {
		orderSide = "SELL"
	}
	clientID := uuid.New().String()
	payload := map[string]any{
		"client_order_id": clientID,
		"product_id":      symbol,
		"side":            orderSide,
		"order_configuration": map[string]any{
			"limit_limit_gtc": map[string]any{
				"base_size":   qty.String(),
				"limit_price": price.String(),
				"post_only":   false,
			},
		},
	}
	resp, err := req.SetBody(payload).Post("/api/v3/brokerage/orders")
	if err != nil {
		return venue.OrderResult{}, fmt.Errorf("coinbase: place limit order: %w", err)
	}
	if resp.IsError() {
		return venue.OrderResult{}, fmt.Errorf("coinbase: place limit order: status %d", resp.StatusCode())
	}
	return venue.OrderResult{OrderID: clientID, Status: venue.OrderOpen, FilledPrice: price}, nil
}

func (a *Adapter) PlaceStopLoss(ctx context.Context, symbol string, side venue.Side, qty, stopPrice money.Amount) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("coinbase: standalone stop loss: %w", venue.ErrUnsupported)
}

func (a *Adapter) PlaceTakeProfit(ctx context.Context, symbol string, side venue.Side, qty, limitPrice money.Amount) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("coinbase: standalone take profit: %w", venue.ErrUnsupported)
}

func (a *Adapter) PlaceTrailingStop(ctx context.Context, symbol string, side venue.Side, qty money.Amount, distance float64) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("coinbase: trailing stop: %w", venue.ErrUnsupported)
}

func (a *Adapter) PlaceBracketOrder(ctx context.Context, symbol string, side venue.Side, qty, entryPrice money.Amount, protective venue.ProtectiveOrders) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("coinbase: bracket order: %w", venue.ErrUnsupported)
}

func (a *Adapter) PlaceOCOOrder(ctx context.Context, symbol string, side venue.Side, qty money.Amount, protective venue.ProtectiveOrders) (venue.OrderResult, venue.OrderResult, error) {
	return venue.OrderResult{}, venue.OrderResult{}, fmt.Errorf("coinbase: oco order: %w", venue.ErrUnsupported)
}

func (a *Adapter) PlaceOTOOrder(ctx context.Context, symbol string, side venue.Side, qty, entryPrice money.Amount, protective venue.ProtectiveOrders) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("coinbase: oto order: %w", venue.ErrUnsupported)
}

func (a *Adapter) ClosePosition(ctx context.Context, symbol string, percent float64) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("coinbase: close position: %w", venue.ErrUnsupported)
}

func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	req, err := a.req(ctx)
	if err != nil {
		return err
	}
	resp, err := req.SetBody(map[string]any{"order_ids": []string{orderID}}).Post("/api/v3/brokerage/orders/batch_cancel")
	if err != nil {
		return fmt.Errorf("coinbase: cancel order: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("coinbase: cancel order: status %d", resp.StatusCode())
	}
	return nil
}

func (a *Adapter) CancelAllOrders(ctx context.Context, symbol string) error {
	return fmt.Errorf("coinbase: cancel all orders: %w", venue.ErrUnsupported)
}

func (a *Adapter) PlaceOptionOrder(ctx context.Context, symbol string, extras intent.OptionsExtras, side venue.Side, qty money.Amount) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("coinbase: options: %w", venue.ErrUnsupported)
}

func (a *Adapter) PlacePredictionOrder(ctx context.Context, symbol string, extras intent.PredictionExtras, qty money.Amount) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("coinbase: prediction market: %w", venue.ErrUnsupported)
}

var _ venue.Adapter = (*Adapter)(nil)
