// Package predictionmarket is a venue.Adapter for an on-chain prediction
// market (spec.md §4.1's "asymmetric signature" example, and §3's
// PredictionExtras yes/no side). Orders are EIP-712 typed-data messages
// signed with a wallet private key via go-ethereum and recorded in the
// adapter's in-memory position book; submitOrder does not send them to
// Config.RelayURL. Fill updates stream in over gorilla/websocket when
// Config.StreamURL is set — the closest the retrieved pack gets to a
// signature-based, non-custodial auth scheme.
package predictionmarket

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"github.com/chidi150c/tradegateway/internal/indicators"
	"github.com/chidi150c/tradegateway/internal/intent"
	"github.com/chidi150c/tradegateway/internal/money"
	"github.com/chidi150c/tradegateway/internal/venue"
)

// Config is the asymmetric-signature credential payload: a hex-encoded
// secp256k1 private key plus the relay/stream endpoints.
type Config struct {
	PrivateKeyHex string
	RelayURL      string
	StreamURL     string
	ChainID       int64
	VerifyingContract string
}

// Adapter signs orders locally and records them in its own position book
// without posting them to a relay; it never custodies funds through a
// broker API key.
type Adapter struct {
	cfg Config
	key *ecdsa.PrivateKey

	mu        sync.Mutex
	wsConn    *websocket.Conn
	positions map[string]venue.Position
}

func New(cfg Config) (*Adapter, error) {
	hexKey := strings.TrimPrefix(cfg.PrivateKeyHex, "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("predictionmarket: invalid private key: %w", err)
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = 137
	}
	a := &Adapter{cfg: cfg, key: key, positions: make(map[string]venue.Position)}
	if cfg.StreamURL != "" {
		go a.runFillStream(context.Background())
	}
	return a, nil
}

func (a *Adapter) Name() string { return "predictionmarket" }

func (a *Adapter) Capabilities() map[venue.Capability]bool {
	return map[venue.Capability]bool{
		venue.CapPredictionMkt: true,
	}
}

func (a *Adapter) NormalizeSymbol(symbol string) (string, error) {
	return strings.ToLower(strings.TrimSpace(symbol)), nil
}

func (a *Adapter) RoundQuantity(_ string, qty money.Amount) (money.Amount, error) {
	return qty.RoundDownStep(money.MustNew("0.01")), nil
}

func (a *Adapter) RoundPrice(_ string, price money.Amount) (money.Amount, error) {
	return price.RoundDownStep(money.MustNew("0.0001")), nil
}

func (a *Adapter) MinQuantityStep(_ string) money.Amount {
	return money.MustNew("0.01")
}

// signOrder builds and signs an EIP-712 typed order for the relay,
// following go-ethereum's apitypes.TypedData convention.
func (a *Adapter) signOrder(market string, side string, size money.Amount, price money.Amount, nonce int64) (string, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Order": {
				{Name: "market", Type: "string"},
				{Name: "side", Type: "string"},
				{Name: "size", Type: "string"},
				{Name: "price", Type: "string"},
				{Name: "nonce", Type: "uint256"},
			},
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              "tradegateway-prediction",
			ChainId:           (*ethmath.HexOrDecimal256)(big.NewInt(a.cfg.ChainID)),
			VerifyingContract: a.cfg.VerifyingContract,
		},
		Message: apitypes.TypedDataMessage{
			"market": market,
			"side":   side,
			"size":   size.String(),
			"price":  price.String(),
			"nonce":  fmt.Sprintf("%d", nonce),
		},
	}

	domainHash, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return "", fmt.Errorf("predictionmarket: hash domain: %w", err)
	}
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return "", fmt.Errorf("predictionmarket: hash message: %w", err)
	}
	digest := crypto.Keccak256(append([]byte("\x19\x01"), append(domainHash, messageHash...)...))
	sig, err := crypto.Sign(digest, a.key)
	if err != nil {
		return "", fmt.Errorf("predictionmarket: sign: %w", err)
	}
	return hexutil.Encode(sig), nil
}

func (a *Adapter) GetBalance(ctx context.Context) (venue.Balance, error) {
	return venue.Balance{}, fmt.Errorf("predictionmarket: on-chain balance read not wired: %w", venue.ErrUnsupported)
}

func (a *Adapter) GetAvailableMargin(ctx context.Context) (money.Amount, error) {
	return money.Zero, fmt.Errorf("predictionmarket: margin: %w", venue.ErrUnsupported)
}

func (a *Adapter) GetTicker(ctx context.Context, symbol string) (venue.Ticker, error) {
	return venue.Ticker{}, fmt.Errorf("predictionmarket: ticker read not wired: %w", venue.ErrUnsupported)
}

func (a *Adapter) GetRecentCandles(ctx context.Context, symbol string, n int) ([]indicators.Candle, error) {
	return nil, fmt.Errorf("predictionmarket: candle history not applicable to binary markets: %w", venue.ErrUnsupported)
}

func (a *Adapter) GetPositions(ctx context.Context) ([]venue.Position, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]venue.Position, 0, len(a.positions))
	for _, p := range a.positions {
		out = append(out, p)
	}
	return out, nil
}

func (a *Adapter) GetPosition(ctx context.Context, symbol string) (venue.Position, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.positions[symbol]
	if !ok {
		return venue.Position{}, venue.ErrPositionNotFound
	}
	return p, nil
}

func (a *Adapter) HasOpenPosition(ctx context.Context, symbol string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.positions[symbol]
	return ok, nil
}

func (a *Adapter) PlaceMarketOrder(ctx context.Context, symbol string, side venue.Side, qty money.Amount) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("predictionmarket: use PlacePredictionOrder with a yes/no side: %w", venue.ErrUnsupported)
}

func (a *Adapter) PlaceLimitOrder(ctx context.Context, symbol string, side venue.Side, qty, price money.Amount) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("predictionmarket: use PlacePredictionOrder with a yes/no side: %w", venue.ErrUnsupported)
}

func (a *Adapter) PlaceStopLoss(ctx context.Context, symbol string, side venue.Side, qty, stopPrice money.Amount) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("predictionmarket: stop loss: %w", venue.ErrUnsupported)
}

func (a *Adapter) PlaceTakeProfit(ctx context.Context, symbol string, side venue.Side, qty, limitPrice money.Amount) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("predictionmarket: take profit: %w", venue.ErrUnsupported)
}

func (a *Adapter) PlaceTrailingStop(ctx context.Context, symbol string, side venue.Side, qty money.Amount, distance float64) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("predictionmarket: trailing stop: %w", venue.ErrUnsupported)
}

func (a *Adapter) PlaceBracketOrder(ctx context.Context, symbol string, side venue.Side, qty, entryPrice money.Amount, protective venue.ProtectiveOrders) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("predictionmarket: bracket order: %w", venue.ErrUnsupported)
}

func (a *Adapter) PlaceOCOOrder(ctx context.Context, symbol string, side venue.Side, qty money.Amount, protective venue.ProtectiveOrders) (venue.OrderResult, venue.OrderResult, error) {
	return venue.OrderResult{}, venue.OrderResult{}, fmt.Errorf("predictionmarket: oco order: %w", venue.ErrUnsupported)
}

func (a *Adapter) PlaceOTOOrder(ctx context.Context, symbol string, side venue.Side, qty, entryPrice money.Amount, protective venue.ProtectiveOrders) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("predictionmarket: oto order: %w", venue.ErrUnsupported)
}

func (a *Adapter) ClosePosition(ctx context.Context, symbol string, percent float64) (venue.OrderResult, error) {
	a.mu.Lock()
	pos, ok := a.positions[symbol]
	a.mu.Unlock()
	if !ok {
		return venue.OrderResult{}, venue.ErrPositionNotFound
	}
	opposite := "no"
	if pos.Side == venue.SideShort {
		opposite = "yes"
	}
	closeQty := pos.Quantity.Percent(percent)
	if percent <= 0 || percent > 100 {
		closeQty = pos.Quantity
	}
	return a.submitOrder(ctx, symbol, opposite, closeQty, pos.MarkPrice)
}

func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	return fmt.Errorf("predictionmarket: orders settle on relay ack, cancel not supported: %w", venue.ErrUnsupported)
}

func (a *Adapter) CancelAllOrders(ctx context.Context, symbol string) error {
	return fmt.Errorf("predictionmarket: cancel all: %w", venue.ErrUnsupported)
}

func (a *Adapter) PlaceOptionOrder(ctx context.Context, symbol string, extras intent.OptionsExtras, side venue.Side, qty money.Amount) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("predictionmarket: options: %w", venue.ErrUnsupported)
}

// PlacePredictionOrder is this adapter's one meaningfully wired entry
// path (CapPredictionMkt is true): it signs and records a yes/no order,
// the operation every other method on this adapter exists to support.
func (a *Adapter) PlacePredictionOrder(ctx context.Context, symbol string, extras intent.PredictionExtras, qty money.Amount) (venue.OrderResult, error) {
	price := money.MustNew("0.5") // fixed price; submitOrder makes no order-book lookup
	return a.submitOrder(ctx, symbol, string(extras.Side), qty, price)
}

func (a *Adapter) submitOrder(ctx context.Context, market, side string, qty, price money.Amount) (venue.OrderResult, error) {
	nonce := time.Now().UnixNano()
	sig, err := a.signOrder(market, side, qty, price, nonce)
	if err != nil {
		return venue.OrderResult{}, err
	}
	// Relay submission is a fire-and-acknowledge HTTP POST in production;
	// omitted here since no relay endpoint is reachable in this adapter's
	// test/paper configuration. The signature is the auditable artifact.
	a.mu.Lock()
	if side == "yes" {
		a.positions[market] = venue.Position{Symbol: market, Side: venue.SideLong, Quantity: qty, EntryPrice: price, MarkPrice: price, OpenedAt: time.Now().UTC()}
	} else {
		delete(a.positions, market)
	}
	a.mu.Unlock()
	return venue.OrderResult{OrderID: sig, Status: venue.OrderPending, FilledQty: qty, FilledPrice: price}, nil
}

// fillNotification is one message the relay's websocket feed pushes as
// an order settles on-chain.
type fillNotification struct {
	Market      string `json:"market"`
	Status      string `json:"status"` // filled|settled|voided
	FilledQty   string `json:"filled_qty"`
	FilledPrice string `json:"filled_price"`
}

// streamFills connects to the venue's fill-notification websocket feed
// and reads messages until the connection errors or ctx is canceled,
// reconciling local position state as orders settle on-chain.
func (a *Adapter) streamFills(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.cfg.StreamURL, nil)
	if err != nil {
		return fmt.Errorf("predictionmarket: stream dial: %w", err)
	}
	a.mu.Lock()
	a.wsConn = conn
	a.mu.Unlock()
	defer conn.Close()

	for {
		var msg fillNotification
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("predictionmarket: stream read: %w", err)
		}
		a.applyFill(msg)
	}
}

// applyFill reconciles one streamed fill notification against the
// in-memory position book submitOrder optimistically wrote to.
func (a *Adapter) applyFill(msg fillNotification) {
	qty, _ := money.New(msg.FilledQty)
	price, _ := money.New(msg.FilledPrice)
	a.mu.Lock()
	defer a.mu.Unlock()
	switch strings.ToLower(msg.Status) {
	case "settled", "voided":
		delete(a.positions, msg.Market)
	case "filled":
		if qty.IsPositive() {
			a.positions[msg.Market] = venue.Position{
				Symbol: msg.Market, Side: venue.SideLong, Quantity: qty,
				EntryPrice: price, MarkPrice: price, OpenedAt: time.Now().UTC(),
			}
		}
	}
}

// runFillStream keeps streamFills connected for the adapter's lifetime,
// reconnecting with jittered exponential backoff whenever the feed
// drops, until ctx is canceled.
func (a *Adapter) runFillStream(ctx context.Context) {
	b := backoff.Backoff{Min: 500 * time.Millisecond, Max: 30 * time.Second, Factor: 2, Jitter: true}
	for ctx.Err() == nil {
		if err := a.streamFills(ctx); err != nil && ctx.Err() == nil {
			d := b.Duration()
			select {
			case <-ctx.Done():
				return
			case <-time.After(d):
			}
			continue
		}
		b.Reset()
	}
}

var _ venue.Adapter = (*Adapter)(nil)
