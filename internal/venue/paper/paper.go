// Package paper adapts the teacher's PaperBroker (broker_paper.go) into
// the full venue.Adapter contract. It simulates fills against a single
// mutable last-seen price, as the teacher's broker did, but now tracks
// positions in-memory so HasOpenPosition/GetPosition/ClosePosition are
// meaningful for dry runs and scenario tests rather than unconditionally
// "not supported".
package paper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chidi150c/tradegateway/internal/indicators"
	"github.com/chidi150c/tradegateway/internal/intent"
	"github.com/chidi150c/tradegateway/internal/money"
	"github.com/chidi150c/tradegateway/internal/venue"
)

// Adapter is an in-memory simulation venue. Safe for concurrent use.
type Adapter struct {
	mu        sync.Mutex
	price     money.Amount
	balance   money.Amount
	positions map[string]venue.Position
}

// New constructs a paper Adapter with a bootstrap price and quote balance,
// mirroring the teacher's env-driven PAPER_BASE_BALANCE/PAPER_QUOTE_BALANCE
// bootstrap (env.go), now passed explicitly rather than read from env at
// call time so the adapter is independently testable.
func New(startPrice, startBalance money.Amount) *Adapter {
	return &Adapter{
		price:     startPrice,
		balance:   startBalance,
		positions: make(map[string]venue.Position),
	}
}

// SetPrice lets tests drive the simulated market.
func (a *Adapter) SetPrice(p money.Amount) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.price = p
}

func (a *Adapter) Name() string { return "paper" }

func (a *Adapter) Capabilities() map[venue.Capability]bool {
	return map[venue.Capability]bool{
		venue.CapLimitOrder:      true,
		venue.CapFractionalOrder: true,
	}
}

func (a *Adapter) NormalizeSymbol(symbol string) (string, error) {
	return strings.ToUpper(strings.TrimSpace(symbol)), nil
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

func (a *Adapter) GetBalance(ctx context.Context) (venue.Balance, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return venue.Balance{Currency: "USD", Available: a.balance, Total: a.balance}, nil
}

func (a *Adapter) GetAvailableMargin(ctx context.Context) (money.Amount, error) {
	return money.Zero, venue.ErrUnsupported
}

func (a *Adapter) GetTicker(ctx context.Context, symbol string) (venue.Ticker, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return venue.Ticker{Symbol: symbol, Bid: a.price, Ask: a.price, Last: a.price, Time: time.Now().UTC()}, nil
}

func (a *Adapter) GetRecentCandles(ctx context.Context, symbol string, n int) ([]indicators.Candle, error) {
	return nil, fmt.Errorf("paper: no candle history: %w", venue.ErrUnsupported)
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
	if !qty.IsPositive() {
		return venue.OrderResult{}, errors.New("paper: quantity must be > 0")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	price := a.price
	pos, existed := a.positions[symbol]
	switch {
	case !existed:
		a.positions[symbol] = venue.Position{
			Symbol: symbol, Side: side, Quantity: qty,
			EntryPrice: price, MarkPrice: price, OpenedAt: time.Now().UTC(),
		}
	case pos.Side == side:
		totalQty := pos.Quantity.Add(qty)
		pos.EntryPrice = pos.EntryPrice.Mul(pos.Quantity).Add(price.Mul(qty)).Div(totalQty)
		pos.Quantity = totalQty
		a.positions[symbol] = pos
	default:
		delete(a.positions, symbol)
	}
	return venue.OrderResult{
		OrderID: uuid.New().String(), Status: venue.OrderFilled,
		FilledQty: qty, FilledPrice: price,
	}, nil
}

func (a *Adapter) PlaceLimitOrder(ctx context.Context, symbol string, side venue.Side, qty, price money.Amount) (venue.OrderResult, error) {
	return venue.OrderResult{OrderID: uuid.New().String(), Status: venue.OrderOpen, FilledQty: money.Zero, FilledPrice: price}, nil
}

func (a *Adapter) PlaceStopLoss(ctx context.Context, symbol string, side venue.Side, qty, stopPrice money.Amount) (venue.OrderResult, error) {
	return venue.OrderResult{OrderID: uuid.New().String(), Status: venue.OrderOpen}, nil
}

func (a *Adapter) PlaceTakeProfit(ctx context.Context, symbol string, side venue.Side, qty, limitPrice money.Amount) (venue.OrderResult, error) {
	return venue.OrderResult{OrderID: uuid.New().String(), Status: venue.OrderOpen}, nil
}

func (a *Adapter) PlaceTrailingStop(ctx context.Context, symbol string, side venue.Side, qty money.Amount, distance float64) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("paper: trailing stop: %w", venue.ErrUnsupported)
}

func (a *Adapter) PlaceBracketOrder(ctx context.Context, symbol string, side venue.Side, qty, entryPrice money.Amount, protective venue.ProtectiveOrders) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("paper: bracket order: %w", venue.ErrUnsupported)
}

func (a *Adapter) PlaceOCOOrder(ctx context.Context, symbol string, side venue.Side, qty money.Amount, protective venue.ProtectiveOrders) (venue.OrderResult, venue.OrderResult, error) {
	return venue.OrderResult{}, venue.OrderResult{}, fmt.Errorf("paper: oco order: %w", venue.ErrUnsupported)
}

func (a *Adapter) PlaceOTOOrder(ctx context.Context, symbol string, side venue.Side, qty, entryPrice money.Amount, protective venue.ProtectiveOrders) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("paper: oto order: %w", venue.ErrUnsupported)
}

func (a *Adapter) ClosePosition(ctx context.Context, symbol string, percent float64) (venue.OrderResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	pos, ok := a.positions[symbol]
	if !ok {
		return venue.OrderResult{}, venue.ErrPositionNotFound
	}
	if percent <= 0 || percent > 100 {
		percent = 100
	}
	closeQty := pos.Quantity.Percent(percent)
	if percent >= 100 {
		delete(a.positions, symbol)
	} else {
		pos.Quantity = pos.Quantity.Sub(closeQty)
		a.positions[symbol] = pos
	}
	return venue.OrderResult{OrderID: uuid.New().String(), Status: venue.OrderFilled, FilledQty: closeQty, FilledPrice: a.price}, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	return fmt.Errorf("paper: cancel order: %w", venue.ErrUnsupported)
}

func (a *Adapter) CancelAllOrders(ctx context.Context, symbol string) error {
	return nil
}

func (a *Adapter) PlaceOptionOrder(ctx context.Context, symbol string, extras intent.OptionsExtras, side venue.Side, qty money.Amount) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("paper: options: %w", venue.ErrUnsupported)
}

func (a *Adapter) PlacePredictionOrder(ctx context.Context, symbol string, extras intent.PredictionExtras, qty money.Amount) (venue.OrderResult, error) {
	return venue.OrderResult{}, fmt.Errorf("paper: prediction market: %w", venue.ErrUnsupported)
}

var _ venue.Adapter = (*Adapter)(nil)
