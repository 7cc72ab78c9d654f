// Package intent defines the normalized Trading Intent that every signal —
// external webhook or AI-worker-synthesized — is converted into before it
// reaches the trade executor. Generalized from the teacher's strategy.go
// Signal/Decision types (which only distinguished Buy/Sell/Flat for one
// product) into the full per-user, per-venue intent spec.md §3 and §9
// describe, with the mixed camelCase/snake_case aliasing folded in once at
// the boundary (spec.md §9's "Mixed camelCase/snake_case" redesign flag).
package intent

import (
	"fmt"
	"strings"

	"github.com/chidi150c/tradegateway/internal/money"
)

// Action is the canonical trading action. Webhook aliases long/short are
// expanded to buy/sell at normalization time (spec.md §6).
type Action string

const (
	ActionBuy   Action = "buy"
	ActionSell  Action = "sell"
	ActionClose Action = "close"
)

// OrderType selects market vs. limit entry.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// Source distinguishes external webhooks from the AI worker's own signals,
// both of which flow through the same executor (spec.md §4.8.2e).
type Source string

const (
	SourceWebhook  Source = "webhook"
	SourceAIEngine Source = "ai_engine"
	// SourceScheduler marks closes the trading-window sweep triggers on
	// the executor's own initiative rather than in response to a caller.
	SourceScheduler Source = "scheduler"
)

// PredictionSide is the yes/no side used by prediction-market venues.
type PredictionSide string

const (
	PredictionYes PredictionSide = "yes"
	PredictionNo  PredictionSide = "no"
)

// Intent is the canonical, normalized trading instruction. Every field
// from spec.md §3's "Trading Intent" is represented; venue-specific
// extras live in the Options/Prediction sub-structs rather than as loose
// top-level fields, so downstream code never branches on venue name to
// decide which fields are meaningful (spec.md §9).
type Intent struct {
	User       string
	Venue      string
	Action     Action
	Symbol     string
	OrderType  OrderType
	LimitPrice money.Amount // zero value means "not set"

	PositionSizeUSD money.Amount // zero value means "resolve from defaults"
	HasPositionSize bool

	StopLossPercent     float64
	HasStopLoss         bool
	TakeProfitPercent   float64
	HasTakeProfit       bool
	TrailingDistance    float64
	HasTrailingDistance bool
	TrailingPercent     float64
	HasTrailingPercent  bool

	UseBracket bool
	UseOCO     bool
	UseOTO     bool

	StopLimitOffset float64
	HasStopLimitOffset bool

	ExtendedHours bool

	// SellPercentage is always in (0,100]; values outside this range are
	// coerced to 100 with a warning at the webhook boundary (spec.md §6).
	SellPercentage float64

	StrategyID string
	SignalID   string
	Source     Source

	Options    *OptionsExtras
	Prediction *PredictionExtras
}

// OptionsExtras carries the options-market-specific intent fields.
type OptionsExtras struct {
	Right      string // "call" | "put"
	Strike     money.Amount
	Expiration string // venue-native date token, adapter interprets
}

// PredictionExtras carries the prediction-market-specific intent fields.
type PredictionExtras struct {
	Side PredictionSide
}

// Validate checks the structural invariants the webhook boundary and the
// AI worker must both satisfy before an Intent reaches the executor.
func (in Intent) Validate() error {
	if strings.TrimSpace(in.User) == "" {
		return fmt.Errorf("intent: missing user")
	}
	if strings.TrimSpace(in.Venue) == "" {
		return fmt.Errorf("intent: missing venue")
	}
	if strings.TrimSpace(in.Symbol) == "" {
		return fmt.Errorf("intent: missing symbol")
	}
	switch in.Action {
	case ActionBuy, ActionSell, ActionClose:
	default:
		return fmt.Errorf("intent: unsupported action %q", in.Action)
	}
	if in.OrderType == OrderTypeLimit && in.LimitPrice.IsZero() {
		return fmt.Errorf("intent: limit order requires limit_price")
	}
	if in.SellPercentage <= 0 {
		return fmt.Errorf("intent: sell_percentage must be positive")
	}
	return nil
}
