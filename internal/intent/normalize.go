package intent

import (
	"fmt"
	"log"
	"strings"

	"github.com/chidi150c/tradegateway/internal/money"
)

// RawPayload is the tolerant, alias-accepting shape of an inbound webhook
// body (spec.md §6). Both camelCase and snake_case spellings are accepted;
// Normalize folds them into one Intent so every downstream package sees
// canonical names only (spec.md §9 "Mixed camelCase/snake_case" flag).
type RawPayload struct {
	Secret string `json:"secret"`
	Venue  string `json:"exchange"`
	Action string `json:"action"`
	Symbol string `json:"symbol"`

	OrderType  string `json:"order_type"`
	OrderTypeAlt string `json:"orderType"`
	LimitPrice string `json:"limit_price"`

	PositionSizeUSD string `json:"position_size_usd"`

	StopLossPercent    *float64 `json:"stop_loss_percent"`
	StopLossPercentAlt *float64 `json:"stopLoss"`
	TakeProfitPercent    *float64 `json:"take_profit_percent"`
	TakeProfitPercentAlt *float64 `json:"takeProfit"`
	TrailingDistance   *float64 `json:"trailing_distance"`
	TrailingPercent    *float64 `json:"trailing_percent"`

	UseBracket bool `json:"use_bracket"`
	UseOCO     bool `json:"use_oco"`
	UseOTO     bool `json:"use_oto"`

	StopLimitOffset *float64 `json:"stop_limit_offset"`

	ExtendedHours    bool `json:"extended_hours"`
	ExtendedHoursAlt bool `json:"extendedHours"`

	SellPercentage *float64 `json:"sell_percentage"`

	StrategyID string `json:"strategy_id"`
	SignalID   string `json:"signal_id"`

	Right      string `json:"right"`
	Strike     string `json:"strike"`
	Expiration string `json:"expiration"`

	Side string `json:"side"`
}

// Normalize converts a RawPayload (already secret-verified by the caller)
// plus the resolved user id into a canonical Intent. It never logs or
// returns the secret (spec.md invariant: credential material is never
// logged or persisted).
func Normalize(user string, raw RawPayload, source Source) (Intent, []string, error) {
	var warnings []string

	action, err := normalizeAction(raw.Action)
	if err != nil {
		return Intent{}, warnings, err
	}

	orderType := OrderTypeMarket
	ot := firstNonEmpty(raw.OrderType, raw.OrderTypeAlt)
	if strings.EqualFold(ot, "limit") {
		orderType = OrderTypeLimit
	}

	in := Intent{
		User:      user,
		Venue:     strings.TrimSpace(raw.Venue),
		Action:    action,
		Symbol:    strings.ToUpper(strings.TrimSpace(raw.Symbol)),
		OrderType: orderType,
		StrategyID: raw.StrategyID,
		SignalID:   raw.SignalID,
		Source:     source,
	}

	if raw.LimitPrice != "" {
		amt, err := money.New(raw.LimitPrice)
		if err != nil {
			return Intent{}, warnings, fmt.Errorf("intent: bad limit_price: %w", err)
		}
		in.LimitPrice = amt
	}

	if raw.PositionSizeUSD != "" {
		amt, err := money.New(raw.PositionSizeUSD)
		if err != nil {
			return Intent{}, warnings, fmt.Errorf("intent: bad position_size_usd: %w", err)
		}
		in.PositionSizeUSD = amt
		in.HasPositionSize = true
	}

	if v := firstFloat(raw.StopLossPercent, raw.StopLossPercentAlt); v != nil {
		in.StopLossPercent = *v
		in.HasStopLoss = true
	}
	if v := firstFloat(raw.TakeProfitPercent, raw.TakeProfitPercentAlt); v != nil {
		in.TakeProfitPercent = *v
		in.HasTakeProfit = true
	}
	if raw.TrailingDistance != nil {
		in.TrailingDistance = *raw.TrailingDistance
		in.HasTrailingDistance = true
	}
	if raw.TrailingPercent != nil {
		in.TrailingPercent = *raw.TrailingPercent
		in.HasTrailingPercent = true
	}
	if raw.StopLimitOffset != nil {
		in.StopLimitOffset = *raw.StopLimitOffset
		in.HasStopLimitOffset = true
	}

	in.UseBracket = raw.UseBracket
	in.UseOCO = raw.UseOCO
	in.UseOTO = raw.UseOTO
	in.ExtendedHours = raw.ExtendedHours || raw.ExtendedHoursAlt

	// sell_percentage always in (0,100]; out-of-range coerces to 100 with
	// a warning (spec.md §6).
	in.SellPercentage = 100
	if raw.SellPercentage != nil {
		sp := *raw.SellPercentage
		if sp <= 0 || sp > 100 {
			warnings = append(warnings, fmt.Sprintf("sell_percentage %.4f out of (0,100]; coerced to 100", sp))
			log.Printf("WARN intent: sell_percentage %.4f out of range, coercing to 100", sp)
			sp = 100
		}
		in.SellPercentage = sp
	}

	if raw.Right != "" || raw.Strike != "" || raw.Expiration != "" {
		opt := &OptionsExtras{Right: raw.Right, Expiration: raw.Expiration}
		if raw.Strike != "" {
			amt, err := money.New(raw.Strike)
			if err != nil {
				return Intent{}, warnings, fmt.Errorf("intent: bad strike: %w", err)
			}
			opt.Strike = amt
		}
		in.Options = opt
	}

	if raw.Side != "" {
		side := strings.ToLower(strings.TrimSpace(raw.Side))
		if side == string(PredictionYes) || side == string(PredictionNo) {
			in.Prediction = &PredictionExtras{Side: PredictionSide(side)}
		}
	}

	if err := in.Validate(); err != nil {
		return Intent{}, warnings, err
	}
	return in, warnings, nil
}

func normalizeAction(raw string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy", "long":
		return ActionBuy, nil
	case "sell", "short":
		return ActionSell, nil
	case "close":
		return ActionClose, nil
	default:
		return "", fmt.Errorf("intent: unsupported action %q", raw)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstFloat(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
