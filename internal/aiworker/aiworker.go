// Package aiworker is the AI Signal Worker (spec.md §4.8): a background
// loop that wakes every ~45s, evaluates every active strategy's target
// symbols through a hybrid ML/LLM decision pipeline, and feeds any
// non-HOLD verdict through the same internal/executor path external
// webhooks use, so risk limits, the ML guard, and the trading window
// apply uniformly regardless of signal origin (spec.md §4.8.2e).
// Generalized from the teacher's trader.go per-tick Step loop — a single
// ticker driving one product's decision cycle — into a per-strategy,
// per-symbol fan-out bounded by a timeout per unit of work so one stuck
// strategy cannot block the fleet (spec.md §4.8's cancellation note).
package aiworker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/chidi150c/tradegateway/internal/executor"
	"github.com/chidi150c/tradegateway/internal/indicators"
	"github.com/chidi150c/tradegateway/internal/intent"
	"github.com/chidi150c/tradegateway/internal/llmclient"
	"github.com/chidi150c/tradegateway/internal/metrics"
	"github.com/chidi150c/tradegateway/internal/mlclient"
	"github.com/chidi150c/tradegateway/internal/store"
	"github.com/chidi150c/tradegateway/internal/venue"
)

// AdapterResolver is the narrow venue-access dependency, satisfied by
// *venue.Registry.
type AdapterResolver interface {
	Resolve(ctx context.Context, user, venueName string) (venue.Adapter, error)
}

// Store is the narrow persistence dependency for strategy config and
// decision logging.
type Store interface {
	ActiveAIStrategies(ctx context.Context) ([]store.AIStrategyRecord, error)
	InsertAIDecision(ctx context.Context, rec store.AITradeDecisionRecord) error
}

// Executor is the shared execution path, satisfied by *executor.Executor.
type Executor interface {
	Execute(ctx context.Context, in intent.Intent) (executor.Result, error)
}

// MLPredictor is the ML prediction leg of the hybrid decision (spec.md
// §4.8.2c), satisfied by *mlclient.Client.
type MLPredictor interface {
	PredictStrategy(ctx context.Context, strategyID string, features indicators.FeatureVector) (mlclient.PredictionResult, error)
}

// LLMDecider is the LLM fallback leg (spec.md §4.8.2c/d), satisfied by
// *llmclient.Client.
type LLMDecider interface {
	Decide(ctx context.Context, strategyID, symbol string, features indicators.FeatureVector) llmclient.Decision
}

// Config holds the worker's tunables.
type Config struct {
	// Interval between ticks. Defaults to 45s (spec.md §4.8).
	Interval time.Duration
	// PerStrategySymbolTimeout bounds one (strategy, symbol) evaluation
	// so a stuck venue/ML/LLM call cannot stall the whole tick.
	PerStrategySymbolTimeout time.Duration
	// CandleLookback is how many recent bars to fetch per evaluation.
	CandleLookback int
}

// Worker runs the periodic AI signal loop.
type Worker struct {
	adapters AdapterResolver
	store    Store
	exec     Executor
	ml       MLPredictor
	llm      LLMDecider
	cfg      Config
	rng      *rand.Rand
}

// New constructs a Worker.
func New(adapters AdapterResolver, st Store, exec Executor, ml MLPredictor, llm LLMDecider, cfg Config) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 45 * time.Second
	}
	if cfg.PerStrategySymbolTimeout <= 0 {
		cfg.PerStrategySymbolTimeout = 10 * time.Second
	}
	if cfg.CandleLookback <= 0 {
		cfg.CandleLookback = 100
	}
	return &Worker{
		adapters: adapters, store: st, exec: exec, ml: ml, llm: llm, cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run drives the loop until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one evaluation pass over every active strategy. Exported so
// tests and an admin CLI "run once" command can drive it directly.
func (w *Worker) Tick(ctx context.Context) {
	strategies, err := w.store.ActiveAIStrategies(ctx)
	if err != nil {
		log.Printf("aiworker: failed to load active strategies, skipping tick: %v", err)
		return
	}
	for _, strat := range strategies {
		if ctx.Err() != nil {
			return
		}
		w.evaluateStrategy(ctx, strat)
	}
}

func (w *Worker) evaluateStrategy(ctx context.Context, strat store.AIStrategyRecord) {
	blacklist := make(map[string]bool)
	for _, s := range strat.Blacklist() {
		blacklist[s] = true
	}
	for _, symbol := range strat.Symbols() {
		if ctx.Err() != nil {
			return
		}
		if blacklist[symbol] {
			continue
		}
		func() {
			tctx, cancel := context.WithTimeout(ctx, w.cfg.PerStrategySymbolTimeout)
			defer cancel()
			w.evaluateSymbol(tctx, strat, symbol)
		}()
	}
}

func (w *Worker) evaluateSymbol(ctx context.Context, strat store.AIStrategyRecord, symbol string) {
	strategyID := fmt.Sprintf("ai:%d:%s", strat.ID, strat.Name)

	adapter, err := w.adapters.Resolve(ctx, strat.User, strat.Venue)
	if err != nil {
		log.Printf("aiworker: strategy %s: resolve adapter %s/%s: %v", strategyID, strat.User, strat.Venue, err)
		return
	}
	candles, err := adapter.GetRecentCandles(ctx, symbol, w.cfg.CandleLookback)
	if err != nil {
		log.Printf("aiworker: strategy %s: fetch candles for %s: %v", strategyID, symbol, err)
		return
	}
	features, ok := indicators.BuildFeatures(candles)
	if !ok {
		log.Printf("aiworker: strategy %s: insufficient candle history for %s, skipping", strategyID, symbol)
		return
	}

	action, confidence, reasoning, modelID := w.decide(ctx, strategyID, symbol, features, strat)
	metrics.IncAIDecision(action)

	decision := store.AITradeDecisionRecord{
		User: strat.User, StrategyID: strat.ID, Symbol: symbol, EvaluatedAt: time.Now().UTC(),
		Action: action, Confidence: confidence, Reasoning: reasoning, ModelID: modelID,
	}
	if raw, err := json.Marshal(features); err == nil {
		decision.TechnicalIndicators = string(raw)
	}
	if len(candles) > 0 {
		if raw, err := json.Marshal(candles[len(candles)-1]); err == nil {
			decision.MarketSnapshot = string(raw)
		}
	}

	if action == "hold" {
		if err := w.store.InsertAIDecision(ctx, decision); err != nil {
			log.Printf("aiworker: strategy %s: persist hold decision: %v", strategyID, err)
		}
		return
	}

	in := intent.Intent{
		User: strat.User, Venue: strat.Venue, Action: intent.Action(action), Symbol: symbol,
		OrderType: intent.OrderTypeMarket, StrategyID: strategyID, Source: intent.SourceAIEngine,
		SellPercentage: 100,
	}
	if strat.PositionSizePercent > 0 {
		if balance, err := adapter.GetBalance(ctx); err == nil {
			in.PositionSizeUSD = balance.Available.Percent(strat.PositionSizePercent)
			in.HasPositionSize = true
		}
	}

	result, err := w.exec.Execute(ctx, in)
	if err != nil {
		log.Printf("aiworker: strategy %s: execute %s/%s failed: %v", strategyID, symbol, action, err)
	} else {
		decision.Executed = result.Success
	}
	if err := w.store.InsertAIDecision(ctx, decision); err != nil {
		log.Printf("aiworker: strategy %s: persist decision: %v", strategyID, err)
	}
}

// decide runs the hybrid ML/LLM routing rule (spec.md §4.8.2c): the
// strategy's routing mix picks whether ML is consulted first; if ML's
// confidence clears the strategy's threshold its action wins, otherwise
// (or if ML wasn't consulted) the LLM decision endpoint is the verdict.
func (w *Worker) decide(ctx context.Context, strategyID, symbol string, features indicators.FeatureVector, strat store.AIStrategyRecord) (action string, confidence float64, reasoning, modelID string) {
	tryML := w.rng.Intn(100) < strat.MLRoutePercent
	if tryML {
		pred, err := w.ml.PredictStrategy(ctx, strategyID, features)
		if err != nil {
			log.Printf("aiworker: strategy %s: ml predict failed, falling back to llm: %v", strategyID, err)
		} else if pred.Confidence >= strat.ConfidenceThreshold {
			return pred.Action, pred.Confidence, "ml prediction above threshold", "ml-predictor"
		}
	}
	llmDecision := w.llm.Decide(ctx, strategyID, symbol, features)
	return string(llmDecision.Action), llmDecision.Confidence, llmDecision.Reasoning, llmDecision.ModelID
}
