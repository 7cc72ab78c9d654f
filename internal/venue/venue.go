// Package venue defines the uniform capability-set contract every trading
// venue adapter implements (spec.md §4.1). Generalized from the teacher's
// broker.go Broker interface, which covered one exchange shape (spot,
// market/limit, a single quote currency); this Adapter widens that same
// idea to heterogeneous venues: crypto exchanges, options brokers, and
// prediction markets, each of which supports a different subset of
// operations. Capability flags replace "does this broker support X" type
// assertions the teacher's callers never needed with only one broker.
package venue

import (
	"context"
	"errors"
	"time"

	"github.com/chidi150c/tradegateway/internal/indicators"
	"github.com/chidi150c/tradegateway/internal/intent"
	"github.com/chidi150c/tradegateway/internal/money"
)

// ErrUnsupported is returned by an adapter method when the venue has no
// equivalent operation (e.g. place_trailing_stop on a venue without
// native trailing-stop orders). Callers distinguish this from a
// transient/venue error via errors.Is so the executor can fall back to
// an alternate protective-order strategy (spec.md §4.1, §4.6).
var ErrUnsupported = errors.New("venue: operation not supported by this adapter")

// ErrNoCredentials is returned by the Registry when a user has no stored
// credential record for the requested venue (spec.md §4.1).
var ErrNoCredentials = errors.New("venue: no credentials on file for this user/venue")

// ErrPositionNotFound is returned by GetPosition/ClosePosition when the
// venue reports no open position for the symbol.
var ErrPositionNotFound = errors.New("venue: no open position for symbol")

// Side is the direction of a position or order.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Capability is a single optional operation an Adapter may or may not
// support. The registry/executor consult Capabilities() before calling
// the corresponding method rather than relying solely on ErrUnsupported,
// so the executor can choose its protective-order strategy up front
// (spec.md §4.6 bracket > atomic batch > OTO > separate legs).
type Capability string

const (
	CapBracketOrder    Capability = "bracket_order"
	CapOCOOrder        Capability = "oco_order"
	CapOTOOrder        Capability = "oto_order"
	CapTrailingStop    Capability = "trailing_stop"
	CapLimitOrder      Capability = "limit_order"
	CapFractionalOrder Capability = "fractional_order"
	CapMargin          Capability = "margin"
	CapOptions         Capability = "options"
	CapPredictionMkt   Capability = "prediction_market"
)

// Balance reports free and total funds in the venue's quote currency.
type Balance struct {
	Currency  string
	Available money.Amount
	Total     money.Amount
}

// Ticker is a point-in-time quote.
type Ticker struct {
	Symbol string
	Bid    money.Amount
	Ask    money.Amount
	Last   money.Amount
	Time   time.Time
}

// Position is the venue's own view of an open position, used by the
// position tracker's reconciliation pass (spec.md §4.2).
type Position struct {
	Symbol       string
	Side         Side
	Quantity     money.Amount
	EntryPrice   money.Amount
	MarkPrice    money.Amount
	UnrealizedPL money.Amount
	OpenedAt     time.Time
}

// OrderStatus is the lifecycle state of a placed order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderOpen      OrderStatus = "open"
	OrderFilled    OrderStatus = "filled"
	OrderCanceled  OrderStatus = "canceled"
	OrderRejected  OrderStatus = "rejected"
)

// OrderResult is the venue's response to a placement call.
type OrderResult struct {
	OrderID       string
	Status        OrderStatus
	FilledQty     money.Amount
	FilledPrice   money.Amount
	RawVenueState string // opaque diagnostic text, never parsed by callers
}

// ProtectiveOrders is the set of protective legs attached to an entry,
// in the order the executor prefers to request them (spec.md §4.6):
// a single bracket call, then an OCO pair, then an OTO pair, then two
// independent legs. Zero-value fields on unused legs.
type ProtectiveOrders struct {
	StopLossPrice   money.Amount
	HasStopLoss     bool
	TakeProfitPrice money.Amount
	HasTakeProfit   bool
	TrailingDistance float64
	HasTrailing      bool
}

// CandleSource fetches recent OHLCV bars, the price history the AI worker's
// indicator pipeline (internal/indicators) consumes.
type CandleSource interface {
	GetRecentCandles(ctx context.Context, symbol string, n int) ([]indicators.Candle, error)
}

// Adapter is the uniform contract the executor, risk engine, and AI
// worker all program against, never importing a venue-specific package
// directly (spec.md §4.1). Every method takes ctx first per the
// teacher's convention of passing context to all blocking calls.
type Adapter interface {
	CandleSource

	// Name is the venue identifier this adapter was constructed for.
	Name() string

	// Capabilities lists the optional operations this adapter supports.
	Capabilities() map[Capability]bool

	// NormalizeSymbol maps a user-supplied symbol into this venue's
	// native spelling (e.g. "BTC-USD" -> "BTCUSDT"), the symbol
	// normalization contract of spec.md §4.1.
	NormalizeSymbol(symbol string) (string, error)

	// RoundQuantity and RoundPrice apply the venue's lot-size/tick-size
	// rounding contract so downstream orders are never rejected for
	// precision (spec.md §4.1).
	RoundQuantity(symbol string, qty money.Amount) (money.Amount, error)
	RoundPrice(symbol string, price money.Amount) (money.Amount, error)

	// MinQuantityStep reports the smallest tradable increment for
	// symbol, i.e. the step RoundQuantity rounds down to. The executor
	// clamps a partial close to this floor instead of rounding it away
	// to zero (spec.md §4.6 close step 3: "never to zero").
	MinQuantityStep(symbol string) money.Amount

	GetBalance(ctx context.Context) (Balance, error)
	GetAvailableMargin(ctx context.Context) (money.Amount, error)
	GetTicker(ctx context.Context, symbol string) (Ticker, error)

	GetPositions(ctx context.Context) ([]Position, error)
	GetPosition(ctx context.Context, symbol string) (Position, error)
	HasOpenPosition(ctx context.Context, symbol string) (bool, error)

	PlaceMarketOrder(ctx context.Context, symbol string, side Side, qty money.Amount) (OrderResult, error)
	PlaceLimitOrder(ctx context.Context, symbol string, side Side, qty, price money.Amount) (OrderResult, error)

	PlaceStopLoss(ctx context.Context, symbol string, side Side, qty, stopPrice money.Amount) (OrderResult, error)
	PlaceTakeProfit(ctx context.Context, symbol string, side Side, qty, limitPrice money.Amount) (OrderResult, error)
	PlaceTrailingStop(ctx context.Context, symbol string, side Side, qty money.Amount, distance float64) (OrderResult, error)

	// PlaceBracketOrder submits entry + both protective legs atomically.
	// Returns ErrUnsupported when CapBracketOrder is false.
	PlaceBracketOrder(ctx context.Context, symbol string, side Side, qty, entryPrice money.Amount, protective ProtectiveOrders) (OrderResult, error)
	// PlaceOCOOrder submits a one-cancels-other protective pair.
	// Returns ErrUnsupported when CapOCOOrder is false.
	PlaceOCOOrder(ctx context.Context, symbol string, side Side, qty money.Amount, protective ProtectiveOrders) (OrderResult, OrderResult, error)
	// PlaceOTOOrder submits a one-triggers-other entry+protective pair.
	// Returns ErrUnsupported when CapOTOOrder is false.
	PlaceOTOOrder(ctx context.Context, symbol string, side Side, qty, entryPrice money.Amount, protective ProtectiveOrders) (OrderResult, error)

	ClosePosition(ctx context.Context, symbol string, percent float64) (OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	CancelAllOrders(ctx context.Context, symbol string) error

	// PlaceOptionOrder and PlacePredictionOrder are only meaningful when
	// CapOptions/CapPredictionMkt is set; other adapters return
	// ErrUnsupported.
	PlaceOptionOrder(ctx context.Context, symbol string, extras intent.OptionsExtras, side Side, qty money.Amount) (OrderResult, error)
	PlacePredictionOrder(ctx context.Context, symbol string, extras intent.PredictionExtras, qty money.Amount) (OrderResult, error)
}
