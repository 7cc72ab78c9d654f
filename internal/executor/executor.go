// Package executor is the Trade Executor (spec.md §4.6): the state
// machine that turns a normalized Intent into venue orders. It is the
// one place that talks to all of the other collaborators at once — the
// ML validator, the risk engine, the settings service, the position
// tracker, a venue adapter, the store, and the notification transport —
// generalized from the teacher's trader.go/step.go per-tick decision
// loop (which only ever managed one product on one broker) into a
// per-(user, venue, symbol) state machine serialized by a lock-per-key,
// the same granularity the teacher's single trader.mu protected when it
// only had one book to guard.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/chidi150c/tradegateway/internal/intent"
	"github.com/chidi150c/tradegateway/internal/metrics"
	"github.com/chidi150c/tradegateway/internal/mlclient"
	"github.com/chidi150c/tradegateway/internal/money"
	"github.com/chidi150c/tradegateway/internal/notify"
	"github.com/chidi150c/tradegateway/internal/position"
	"github.com/chidi150c/tradegateway/internal/risk"
	"github.com/chidi150c/tradegateway/internal/settings"
	"github.com/chidi150c/tradegateway/internal/store"
	"github.com/chidi150c/tradegateway/internal/venue"
)

// AdapterResolver resolves the venue adapter for a (user, venue) pair.
// Satisfied by *venue.Registry.
type AdapterResolver interface {
	Resolve(ctx context.Context, user, venueName string) (venue.Adapter, error)
}

// MLValidator is the pre-dispatch ML-assisted signal gate (spec.md §4.6
// step 1). Satisfied by *mlclient.Client.
type MLValidator interface {
	ValidateStrategySignal(ctx context.Context, payload any) mlclient.ValidationResult
}

// StrategyLookup answers whether a strategy id opted into ML-gated
// validation and its configured default position-size tier (spec.md
// §4.6 step 1). Satisfied by *store.Client.
type StrategyLookup interface {
	MLAssisted(ctx context.Context, strategyID string) (bool, error)
	StrategySizePercent(ctx context.Context, strategyID string) (float64, error)
}

// RiskEngine is the narrow risk-limit dependency. Satisfied by
// *risk.Engine.
type RiskEngine interface {
	Evaluate(ctx context.Context, user, venueName string) risk.Decision
	InvalidateCache(user, venueName string)
}

// SettingsResolver is the narrow settings dependency. Satisfied by
// *settings.Service.
type SettingsResolver interface {
	Resolve(ctx context.Context, user, venueName string) settings.Policy
}

// Notifier is the narrow notification dependency. Satisfied by
// *notify.Transport (including a nil *notify.Transport).
type Notifier interface {
	Send(ctx context.Context, user string, kind notify.Kind, message string)
}

// Store is the narrow persistence dependency for positions and closed
// trades.
type Store interface {
	UpsertPosition(ctx context.Context, rec store.PositionRecord) error
	DeletePosition(ctx context.Context, user, venueName, symbol string) error
	InsertTrade(ctx context.Context, rec store.TradeRecord) error
}

// Config holds the executor's tunables.
type Config struct {
	// ReversalSettleDelay is how long to pause between closing the
	// existing position and opening the new one on a reversal, giving
	// the venue time to release margin/balance the new entry needs.
	ReversalSettleDelay time.Duration
}

// Result is the outcome of one Execute call, the shape the webhook
// handler's HTTP response and the AI worker's decision log both reuse.
type Result struct {
	Success    bool
	Action     string // opened|reversed|closed|skipped|blocked|denied|rejected|nothing_to_close
	Reason     string
	OrderID    string
	ExitReason string
}

// Executor implements spec.md §4.6.
type Executor struct {
	adapters   AdapterResolver
	tracker    *position.Tracker
	settings   SettingsResolver
	risk       RiskEngine
	ml         MLValidator
	strategies StrategyLookup
	store      Store
	notifier   Notifier
	cfg        Config

	locks sync.Map // position.Key -> *sync.Mutex
}

func New(adapters AdapterResolver, tracker *position.Tracker, settingsSvc SettingsResolver, riskEngine RiskEngine, ml MLValidator, strategies StrategyLookup, st Store, notifier Notifier, cfg Config) *Executor {
	if cfg.ReversalSettleDelay <= 0 {
		cfg.ReversalSettleDelay = 500 * time.Millisecond
	}
	return &Executor{
		adapters: adapters, tracker: tracker, settings: settingsSvc, risk: riskEngine,
		ml: ml, strategies: strategies, store: st, notifier: notifier, cfg: cfg,
	}
}

func (e *Executor) lockFor(key position.Key) *sync.Mutex {
	v, _ := e.locks.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Execute runs the full pre-dispatch guard followed by the open/close
// state machine for in.
func (e *Executor) Execute(ctx context.Context, in intent.Intent) (Result, error) {
	if res, proceed := e.preDispatch(ctx, in); !proceed {
		return res, nil
	}

	key := position.Key{User: in.User, Venue: in.Venue, Symbol: in.Symbol}
	lock := e.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	adapter, err := e.adapters.Resolve(ctx, in.User, in.Venue)
	if err != nil {
		return Result{}, fmt.Errorf("executor: resolve adapter for %s: %w", key, err)
	}

	switch in.Action {
	case intent.ActionClose:
		return e.executeClose(ctx, in, adapter, key)
	case intent.ActionBuy, intent.ActionSell:
		return e.executeOpenOrReverse(ctx, in, adapter, key)
	default:
		return Result{}, fmt.Errorf("executor: unsupported action %q", in.Action)
	}
}

// preDispatch runs the three pre-dispatch guard checks (spec.md §4.6).
// The bool return is false when the caller should stop and return res
// as-is.
func (e *Executor) preDispatch(ctx context.Context, in intent.Intent) (Result, bool) {
	if in.StrategyID != "" {
		assisted, err := e.strategies.MLAssisted(ctx, in.StrategyID)
		if err != nil {
			log.Printf("executor: strategy lookup failed for %s, treating as not ML-assisted: %v", in.StrategyID, err)
			assisted = false
		}
		if assisted {
			verdict := e.ml.ValidateStrategySignal(ctx, in)
			if !verdict.Approved {
				e.notifier.Send(ctx, in.User, notify.KindMLBlock, notify.MLBlockMessage(in.Venue, in.Symbol, verdict.Confidence))
				return Result{Success: false, Action: "blocked", Reason: verdict.Reason}, false
			}
		}
	}

	decision := e.risk.Evaluate(ctx, in.User, in.Venue)
	if !decision.Allowed {
		metrics.IncRiskDenial(in.Venue)
		e.notifier.Send(ctx, in.User, notify.KindLimitBreach, notify.LimitBreachMessage(in.Venue, in.Symbol, decision.Reason))
		return Result{Success: false, Action: "denied", Reason: decision.Reason}, false
	}

	if in.Action == intent.ActionBuy || in.Action == intent.ActionSell {
		policy := e.settings.Resolve(ctx, in.User, in.Venue)
		if !policy.Window.Contains(time.Now()) {
			return Result{Success: false, Action: "rejected", Reason: "OUTSIDE_WINDOW"}, false
		}
	}

	return Result{}, true
}

func sideFromAction(a intent.Action) venue.Side {
	if a == intent.ActionBuy {
		return venue.SideLong
	}
	return venue.SideShort
}

func opposite(s venue.Side) venue.Side {
	if s == venue.SideLong {
		return venue.SideShort
	}
	return venue.SideLong
}

// normalizeSymbol applies the adapter's venue-specific symbol contract
// (spec.md §4.1) ahead of any adapter call. The canonical, un-normalized
// symbol stays the tracker/store/notification key; only the literal
// venue-bound calls get the normalized form.
func normalizeSymbol(adapter venue.Adapter, symbol string) (string, error) {
	vSym, err := adapter.NormalizeSymbol(symbol)
	if err != nil {
		return "", fmt.Errorf("executor: normalize symbol %q: %w", symbol, err)
	}
	return vSym, nil
}

// executeOpenOrReverse implements the open-position state machine
// diagram of spec.md §4.6.
func (e *Executor) executeOpenOrReverse(ctx context.Context, in intent.Intent, adapter venue.Adapter, key position.Key) (Result, error) {
	wantSide := sideFromAction(in.Action)

	vSym, err := normalizeSymbol(adapter, in.Symbol)
	if err != nil {
		return Result{}, err
	}

	if _, tracked := e.tracker.Get(key); tracked {
		live, err := adapter.GetPosition(ctx, vSym)
		switch {
		case errors.Is(err, venue.ErrPositionNotFound):
			e.tracker.Remove(key)
		case err != nil:
			return Result{}, fmt.Errorf("executor: confirm position for %s: %w", key, err)
		default:
			if live.Side == wantSide {
				return Result{Success: false, Action: "skipped", Reason: "already open"}, nil
			}
			if _, err := e.closePosition(ctx, in.User, in.Venue, in.Symbol, adapter, live, 100, "reversal", in.Source); err != nil {
				return Result{}, fmt.Errorf("executor: reversal close for %s: %w", key, err)
			}
			time.Sleep(e.cfg.ReversalSettleDelay)
			res, err := e.openNew(ctx, in, adapter, key, wantSide)
			if err != nil {
				return Result{}, err
			}
			res.Action = "reversed"
			return res, nil
		}
	}

	return e.openNew(ctx, in, adapter, key, wantSide)
}

// openNew implements the "OPEN NEW" procedure (spec.md §4.6).
func (e *Executor) openNew(ctx context.Context, in intent.Intent, adapter venue.Adapter, key position.Key, side venue.Side) (Result, error) {
	policy := e.settings.Resolve(ctx, in.User, in.Venue)

	vSym, err := normalizeSymbol(adapter, in.Symbol)
	if err != nil {
		return Result{}, err
	}

	sizeUSD := in.PositionSizeUSD
	if !in.HasPositionSize {
		strategyPct, stratErr := e.strategyDefaultSizePercent(ctx, in.StrategyID)
		if stratErr != nil {
			log.Printf("executor: strategy sizing lookup failed for %s, falling back to venue default: %v", in.StrategyID, stratErr)
		}
		sizePct := strategyPct
		if sizePct <= 0 {
			sizePct = policy.DefaultPositionSizeUSDPercent
		}
		if sizePct <= 0 {
			return Result{}, fmt.Errorf("executor: no position size resolvable for %s", key)
		}
		balance, err := adapter.GetBalance(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("executor: fetch balance for %s: %w", key, err)
		}
		sizeUSD = balance.Available.Percent(sizePct)
	}
	if !sizeUSD.IsPositive() {
		return Result{}, fmt.Errorf("executor: resolved position size is not positive for %s", key)
	}

	ticker, err := adapter.GetTicker(ctx, vSym)
	if err != nil {
		return Result{}, fmt.Errorf("executor: fetch ticker for %s: %w", key, err)
	}
	referencePrice := ticker.Last

	entryPrice := referencePrice
	if in.OrderType == intent.OrderTypeLimit && !in.LimitPrice.IsZero() {
		entryPrice = in.LimitPrice
	}
	entryPrice, err = adapter.RoundPrice(vSym, entryPrice)
	if err != nil {
		return Result{}, fmt.Errorf("executor: round entry price for %s: %w", key, err)
	}

	qty, err := adapter.RoundQuantity(vSym, sizeUSD.Div(referencePrice))
	if err != nil {
		return Result{}, fmt.Errorf("executor: round quantity for %s: %w", key, err)
	}
	if !qty.IsPositive() {
		return Result{}, fmt.Errorf("executor: rounded quantity is zero for %s (size %s @ %s)", key, sizeUSD, referencePrice)
	}

	stopLossPct := policy.DefaultStopLossPercent
	if in.HasStopLoss {
		stopLossPct = in.StopLossPercent
	}
	takeProfitPct := policy.DefaultTakeProfitPercent
	if in.HasTakeProfit {
		takeProfitPct = in.TakeProfitPercent
	}

	protective := venue.ProtectiveOrders{
		TrailingDistance: in.TrailingDistance,
		HasTrailing:      in.HasTrailingDistance,
	}
	if stopLossPct > 0 {
		stop := entryPrice.Percent(100 - stopLossPct)
		if side == venue.SideShort {
			stop = entryPrice.Percent(100 + stopLossPct)
		}
		protective.StopLossPrice, err = adapter.RoundPrice(vSym, stop)
		if err != nil {
			return Result{}, fmt.Errorf("executor: round stop price for %s: %w", key, err)
		}
		protective.HasStopLoss = true
	}
	if takeProfitPct > 0 {
		take := entryPrice.Percent(100 + takeProfitPct)
		if side == venue.SideShort {
			take = entryPrice.Percent(100 - takeProfitPct)
		}
		protective.TakeProfitPrice, err = adapter.RoundPrice(vSym, take)
		if err != nil {
			return Result{}, fmt.Errorf("executor: round take-profit price for %s: %w", key, err)
		}
		protective.HasTakeProfit = true
	}

	caps := adapter.Capabilities()
	var orderID, stopLossOrderID, takeProfitOrderID string

	switch {
	case in.UseBracket && caps[venue.CapBracketOrder]:
		res, err := adapter.PlaceBracketOrder(ctx, vSym, side, qty, entryPrice, protective)
		if err != nil {
			return Result{}, fmt.Errorf("executor: place bracket order for %s: %w", key, err)
		}
		orderID = res.OrderID

	case caps[venue.CapOCOOrder]:
		entryRes, err := e.placeEntry(ctx, adapter, in, vSym, side, qty, entryPrice)
		if err != nil {
			return Result{}, fmt.Errorf("executor: place entry for %s: %w", key, err)
		}
		orderID = entryRes.OrderID
		tpRes, slRes, err := adapter.PlaceOCOOrder(ctx, vSym, opposite(side), qty, protective)
		if err != nil {
			log.Printf("WARN executor: OCO protective leg failed for %s after entry %s: %v", key, orderID, err)
		} else {
			takeProfitOrderID, stopLossOrderID = tpRes.OrderID, slRes.OrderID
		}

	case in.UseOTO && caps[venue.CapOTOOrder]:
		res, err := adapter.PlaceOTOOrder(ctx, vSym, side, qty, entryPrice, protective)
		if err != nil {
			return Result{}, fmt.Errorf("executor: place OTO order for %s: %w", key, err)
		}
		orderID = res.OrderID

	default:
		entryRes, err := e.placeEntry(ctx, adapter, in, vSym, side, qty, entryPrice)
		if err != nil {
			return Result{}, fmt.Errorf("executor: place entry for %s: %w", key, err)
		}
		orderID = entryRes.OrderID
		oppSide := opposite(side)
		if protective.HasTakeProfit {
			if res, err := adapter.PlaceTakeProfit(ctx, vSym, oppSide, qty, protective.TakeProfitPrice); err != nil {
				log.Printf("WARN executor: take-profit leg failed for %s after entry %s: %v", key, orderID, err)
			} else {
				takeProfitOrderID = res.OrderID
			}
		}
		if protective.HasStopLoss {
			if res, err := adapter.PlaceStopLoss(ctx, vSym, oppSide, qty, protective.StopLossPrice); err != nil {
				log.Printf("WARN executor: stop-loss leg failed for %s after entry %s: %v", key, orderID, err)
			} else {
				stopLossOrderID = res.OrderID
			}
		}
	}

	openedAt := time.Now().UTC()
	e.tracker.Add(key, venue.Position{
		Symbol: in.Symbol, Side: side, Quantity: qty,
		EntryPrice: entryPrice, MarkPrice: entryPrice, OpenedAt: openedAt,
	})

	if e.store != nil {
		rec := store.PositionRecord{
			User: in.User, Venue: in.Venue, Symbol: in.Symbol, Side: string(side),
			Quantity: qty.String(), EntryPrice: entryPrice.String(),
			StopLossOrderID: stopLossOrderID, TakeProfitOrderID: takeProfitOrderID,
			StrategyID: in.StrategyID, OpenedAt: openedAt,
		}
		if err := e.store.UpsertPosition(ctx, rec); err != nil {
			log.Printf("executor: persist opened position for %s: %v", key, err)
		}
	}

	e.notifier.Send(ctx, in.User, notify.KindTradeSuccess, notify.TradeOpenedMessage(in.Venue, in.Symbol, string(side), qty, entryPrice))
	return Result{Success: true, Action: "opened", OrderID: orderID}, nil
}

// SweepTradingWindows force-closes every tracked position whose policy
// has AutoCloseOutsideWindow set and whose trading window is no longer
// open (spec.md §4.3's `auto_close_outside_window`), producing the
// auto_close_window exit reason. cmd/gateway calls it from its own
// one-minute ticker (runTradingWindowSweep).
func (e *Executor) SweepTradingWindows(ctx context.Context) {
	for _, sum := range e.tracker.All() {
		if ctx.Err() != nil {
			return
		}
		policy := e.settings.Resolve(ctx, sum.Key.User, sum.Key.Venue)
		if !policy.AutoCloseOutsideWindow || policy.Window.Contains(time.Now()) {
			continue
		}

		lock := e.lockFor(sum.Key)
		lock.Lock()
		e.closeOutsideWindow(ctx, sum.Key)
		lock.Unlock()
	}
}

// closeOutsideWindow re-confirms sum.Key is still tracked and open under
// the position lock, then closes it in full with the auto_close_window
// exit reason. Re-checks under lock since the sweep's initial scan in
// SweepTradingWindows runs unlocked.
func (e *Executor) closeOutsideWindow(ctx context.Context, key position.Key) {
	if _, tracked := e.tracker.Get(key); !tracked {
		return
	}
	adapter, err := e.adapters.Resolve(ctx, key.User, key.Venue)
	if err != nil {
		log.Printf("executor: sweep resolve adapter for %s: %v", key, err)
		return
	}
	vSym, err := normalizeSymbol(adapter, key.Symbol)
	if err != nil {
		log.Printf("executor: sweep %s: %v", key, err)
		return
	}
	live, err := adapter.GetPosition(ctx, vSym)
	if errors.Is(err, venue.ErrPositionNotFound) {
		e.tracker.Remove(key)
		return
	}
	if err != nil {
		log.Printf("executor: sweep confirm position for %s: %v", key, err)
		return
	}
	if _, err := e.closePosition(ctx, key.User, key.Venue, key.Symbol, adapter, live, 100, "auto_close_window", intent.SourceScheduler); err != nil {
		log.Printf("executor: sweep close for %s: %v", key, err)
	}
}

// strategyDefaultSizePercent looks up strategyID's configured default
// size tier (spec.md §4.6 step 1), the tier between "intent-provided
// size" and "venue policy default". A blank strategyID or an unset
// field both resolve to 0, which openNew treats as "fall through".
func (e *Executor) strategyDefaultSizePercent(ctx context.Context, strategyID string) (float64, error) {
	if strategyID == "" {
		return 0, nil
	}
	return e.strategies.StrategySizePercent(ctx, strategyID)
}

func (e *Executor) placeEntry(ctx context.Context, adapter venue.Adapter, in intent.Intent, vSym string, side venue.Side, qty, entryPrice money.Amount) (venue.OrderResult, error) {
	if in.OrderType == intent.OrderTypeLimit {
		return adapter.PlaceLimitOrder(ctx, vSym, side, qty, entryPrice)
	}
	return adapter.PlaceMarketOrder(ctx, vSym, side, qty)
}

// executeClose implements the close-position procedure (spec.md §4.6).
func (e *Executor) executeClose(ctx context.Context, in intent.Intent, adapter venue.Adapter, key position.Key) (Result, error) {
	_, tracked := e.tracker.Get(key)

	vSym, err := normalizeSymbol(adapter, in.Symbol)
	if err != nil {
		return Result{}, err
	}

	live, err := adapter.GetPosition(ctx, vSym)
	switch {
	case errors.Is(err, venue.ErrPositionNotFound):
		if tracked {
			e.tracker.Remove(key)
		}
		return Result{Success: true, Action: "nothing_to_close", Reason: "no open position"}, nil
	case err != nil:
		return Result{}, fmt.Errorf("executor: confirm position for close %s: %w", key, err)
	}

	if !tracked {
		// Tracker had no entry but the venue reports one: reconcile
		// before proceeding (spec.md §4.6 close-procedure step 1).
		e.tracker.Add(key, live)
	}

	return e.closePosition(ctx, in.User, in.Venue, in.Symbol, adapter, live, in.SellPercentage, "manual", in.Source)
}

// closePosition submits the reduce-only close order, cancels protective
// orders, computes realized PnL, updates the tracker/store, and emits
// the outcome notification. Shared by the reversal path and the
// close-action path (spec.md §4.6). symbol is the canonical tracker/store
// key; the venue-bound calls use its normalized form.
func (e *Executor) closePosition(ctx context.Context, user, venueName, symbol string, adapter venue.Adapter, live venue.Position, percent float64, exitReason string, source intent.Source) (Result, error) {
	full := percent >= 100

	vSym, err := normalizeSymbol(adapter, symbol)
	if err != nil {
		return Result{}, err
	}

	// Prefer the venue's own ClosePosition primitive (spot/margin venues
	// like binance/coinbase/hitbtc have no native notion of "reduce an
	// open position" and return ErrUnsupported; the paper venue and the
	// prediction-market venue do, and size the closed quantity themselves).
	orderRes, err := adapter.ClosePosition(ctx, vSym, percent)
	closedQty := orderRes.FilledQty
	if errors.Is(err, venue.ErrUnsupported) {
		qty := live.Quantity
		if !full {
			partial := live.Quantity.Percent(percent)
			rounded, rErr := adapter.RoundQuantity(vSym, partial)
			switch {
			case rErr == nil && rounded.IsPositive():
				qty = rounded
			case live.Quantity.GreaterThan(adapter.MinQuantityStep(vSym)):
				// Requested fraction rounds below one lot: clamp to the
				// floor instead of escalating to a full close (spec.md
				// §4.6 close step 3: "never to zero").
				qty = adapter.MinQuantityStep(vSym)
				log.Printf("WARN executor: partial close %.2f%% of %s/%s/%s rounds below one lot, clamping to the minimum tradable quantity instead", percent, user, venueName, symbol)
			default:
				log.Printf("WARN executor: partial close %.2f%% of %s/%s/%s rounds below one lot and the position itself is smaller than one lot, closing the full position instead", percent, user, venueName, symbol)
				full = true
			}
		}
		closeSide := opposite(live.Side)
		orderRes, err = adapter.PlaceMarketOrder(ctx, vSym, closeSide, qty)
		closedQty = qty
	}
	if err != nil {
		return Result{}, fmt.Errorf("executor: close order for %s/%s/%s: %w", user, venueName, symbol, err)
	}
	qty := closedQty

	if err := adapter.CancelAllOrders(ctx, vSym); err != nil && !errors.Is(err, venue.ErrUnsupported) {
		log.Printf("executor: cancel protective orders for %s/%s/%s: %v", user, venueName, symbol, err)
	}

	exitPrice := orderRes.FilledPrice
	if exitPrice.IsZero() {
		if t, tErr := adapter.GetTicker(ctx, vSym); tErr == nil {
			exitPrice = t.Last
		} else {
			exitPrice = live.MarkPrice
		}
	}

	pnl := exitPrice.Sub(live.EntryPrice).Mul(qty)
	if live.Side == venue.SideShort {
		pnl = live.EntryPrice.Sub(exitPrice).Mul(qty)
	}

	key := position.Key{User: user, Venue: venueName, Symbol: symbol}
	if full {
		e.tracker.Remove(key)
		if e.store != nil {
			if err := e.store.DeletePosition(ctx, user, venueName, symbol); err != nil {
				log.Printf("executor: delete persisted position for %s: %v", key, err)
			}
		}
	} else {
		remaining := live
		remaining.Quantity = live.Quantity.Sub(qty)
		if err := e.tracker.Update(key, remaining); err != nil {
			log.Printf("executor: update tracked position for %s: %v", key, err)
		}
		if e.store != nil {
			rec := store.PositionRecord{
				User: user, Venue: venueName, Symbol: symbol, Side: string(live.Side),
				Quantity: remaining.Quantity.String(), EntryPrice: live.EntryPrice.String(),
				OpenedAt: live.OpenedAt,
			}
			if err := e.store.UpsertPosition(ctx, rec); err != nil {
				log.Printf("executor: persist reduced position for %s: %v", key, err)
			}
		}
	}

	if e.store != nil {
		trade := store.TradeRecord{
			User: user, Venue: venueName, Symbol: symbol, Side: string(live.Side),
			Quantity: qty.String(), EntryPrice: live.EntryPrice.String(), ExitPrice: exitPrice.String(),
			PnLUSD: pnl.String(), ExitReason: exitReason,
			OpenedAt: live.OpenedAt, ClosedAt: time.Now().UTC(), Source: string(source),
		}
		if err := e.store.InsertTrade(ctx, trade); err != nil {
			log.Printf("executor: persist closed trade for %s: %v", key, err)
		}
	}
	e.risk.InvalidateCache(user, venueName)
	metrics.IncClosedTrade(exitReason, venueName)
	metrics.SetOpenPositions(e.tracker.Count())

	kind := notify.KindPositionClosedProfit
	if pnl.IsNegative() {
		kind = notify.KindPositionClosedLoss
	}
	e.notifier.Send(ctx, user, kind, notify.TradeOutcomeMessage(venueName, symbol, pnl, live.OpenedAt))

	return Result{Success: true, Action: "closed", OrderID: orderRes.OrderID, ExitReason: exitReason}, nil
}
