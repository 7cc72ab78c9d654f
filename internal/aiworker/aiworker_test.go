package aiworker

import (
	"context"
	"testing"
	"time"

	"github.com/chidi150c/tradegateway/internal/executor"
	"github.com/chidi150c/tradegateway/internal/indicators"
	"github.com/chidi150c/tradegateway/internal/intent"
	"github.com/chidi150c/tradegateway/internal/llmclient"
	"github.com/chidi150c/tradegateway/internal/mlclient"
	"github.com/chidi150c/tradegateway/internal/money"
	"github.com/chidi150c/tradegateway/internal/store"
	"github.com/chidi150c/tradegateway/internal/venue"
)

type fakeAdapters struct{ adapter venue.Adapter }

func (f *fakeAdapters) Resolve(ctx context.Context, user, venueName string) (venue.Adapter, error) {
	return f.adapter, nil
}

type fakeAdapter struct {
	venue.Adapter
	candles []indicators.Candle
	balance venue.Balance
}

func (f *fakeAdapter) GetRecentCandles(ctx context.Context, symbol string, n int) ([]indicators.Candle, error) {
	return f.candles, nil
}
func (f *fakeAdapter) GetBalance(ctx context.Context) (venue.Balance, error) { return f.balance, nil }

type fakeStore struct {
	strategies []store.AIStrategyRecord
	decisions  []store.AITradeDecisionRecord
}

func (f *fakeStore) ActiveAIStrategies(ctx context.Context) ([]store.AIStrategyRecord, error) {
	return f.strategies, nil
}
func (f *fakeStore) InsertAIDecision(ctx context.Context, rec store.AITradeDecisionRecord) error {
	f.decisions = append(f.decisions, rec)
	return nil
}

type fakeExec struct {
	calls []intent.Intent
	res   executor.Result
}

func (f *fakeExec) Execute(ctx context.Context, in intent.Intent) (executor.Result, error) {
	f.calls = append(f.calls, in)
	return f.res, nil
}

type fakeML struct {
	result mlclient.PredictionResult
	err    error
}

func (f *fakeML) PredictStrategy(ctx context.Context, strategyID string, features indicators.FeatureVector) (mlclient.PredictionResult, error) {
	return f.result, f.err
}

type fakeLLM struct{ decision llmclient.Decision }

func (f *fakeLLM) Decide(ctx context.Context, strategyID, symbol string, features indicators.FeatureVector) llmclient.Decision {
	return f.decision
}

func sixtyCandles() []indicators.Candle {
	out := make([]indicators.Candle, 0, 60)
	price := 100.0
	for i := 0; i < 60; i++ {
		price += 0.5
		out = append(out, indicators.Candle{
			Time: time.Now().Add(time.Duration(i) * time.Minute),
			Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 10,
		})
	}
	return out
}

func TestTickLogsHoldWithoutExecuting(t *testing.T) {
	adapter := &fakeAdapter{candles: sixtyCandles()}
	st := &fakeStore{strategies: []store.AIStrategyRecord{
		{ID: 1, User: "u1", Venue: "paper", Name: "trend", TargetSymbols: "BTCUSDT", MLRoutePercent: 100, ConfidenceThreshold: 90},
	}}
	exec := &fakeExec{}
	ml := &fakeML{result: mlclient.PredictionResult{Action: "hold", Confidence: 95}}
	llm := &fakeLLM{}

	w := New(&fakeAdapters{adapter: adapter}, st, exec, ml, llm, Config{})
	w.Tick(context.Background())

	if len(exec.calls) != 0 {
		t.Fatalf("expected no executor calls on a hold decision, got %d", len(exec.calls))
	}
	if len(st.decisions) != 1 || st.decisions[0].Action != "hold" {
		t.Fatalf("expected one persisted hold decision, got %+v", st.decisions)
	}
}

func TestTickExecutesNonHoldActionThroughSharedPath(t *testing.T) {
	adapter := &fakeAdapter{candles: sixtyCandles(), balance: venue.Balance{Available: money.MustNew("1000")}}
	st := &fakeStore{strategies: []store.AIStrategyRecord{
		{ID: 2, User: "u1", Venue: "paper", Name: "trend", TargetSymbols: "BTCUSDT", MLRoutePercent: 100, ConfidenceThreshold: 50, PositionSizePercent: 10},
	}}
	exec := &fakeExec{res: executor.Result{Success: true, Action: "opened"}}
	ml := &fakeML{result: mlclient.PredictionResult{Action: "buy", Confidence: 80}}
	llm := &fakeLLM{}

	w := New(&fakeAdapters{adapter: adapter}, st, exec, ml, llm, Config{})
	w.Tick(context.Background())

	if len(exec.calls) != 1 {
		t.Fatalf("expected exactly one executor call, got %d", len(exec.calls))
	}
	got := exec.calls[0]
	if got.Action != intent.ActionBuy || got.Source != intent.SourceAIEngine {
		t.Fatalf("unexpected synthesized intent: %+v", got)
	}
	if !got.HasPositionSize || got.PositionSizeUSD.String() != money.MustNew("100").String() {
		t.Fatalf("expected position size 10%% of 1000 balance, got %+v", got)
	}
	if len(st.decisions) != 1 || !st.decisions[0].Executed {
		t.Fatalf("expected one executed decision row, got %+v", st.decisions)
	}
}

func TestEvaluateStrategySkipsBlacklistedSymbols(t *testing.T) {
	adapter := &fakeAdapter{candles: sixtyCandles()}
	st := &fakeStore{strategies: []store.AIStrategyRecord{
		{ID: 3, User: "u1", Venue: "paper", Name: "trend", TargetSymbols: "BTCUSDT,ETHUSDT", BlacklistSymbols: "ETHUSDT", MLRoutePercent: 100},
	}}
	exec := &fakeExec{}
	ml := &fakeML{result: mlclient.PredictionResult{Action: "hold", Confidence: 99}}
	llm := &fakeLLM{}

	w := New(&fakeAdapters{adapter: adapter}, st, exec, ml, llm, Config{})
	w.Tick(context.Background())

	if len(st.decisions) != 1 {
		t.Fatalf("expected evaluation only for the non-blacklisted symbol, got %d decisions", len(st.decisions))
	}
	if st.decisions[0].Symbol != "BTCUSDT" {
		t.Fatalf("evaluated symbol = %q, want BTCUSDT", st.decisions[0].Symbol)
	}
}

func TestDecideFallsBackToLLMBelowConfidenceThreshold(t *testing.T) {
	adapter := &fakeAdapter{candles: sixtyCandles()}
	strat := store.AIStrategyRecord{ID: 4, MLRoutePercent: 100, ConfidenceThreshold: 90}
	exec := &fakeExec{res: executor.Result{Success: true}}
	ml := &fakeML{result: mlclient.PredictionResult{Action: "sell", Confidence: 40}}
	llm := &fakeLLM{decision: llmclient.Decision{Action: llmclient.ActionClose, Confidence: 60, ModelID: "gpt-test"}}

	w := New(&fakeAdapters{adapter: adapter}, &fakeStore{}, exec, ml, llm, Config{})
	action, confidence, _, modelID := w.decide(context.Background(), "ai:4", "BTCUSDT", indicators.FeatureVector{}, strat)

	if action != "close" || confidence != 60 || modelID != "gpt-test" {
		t.Fatalf("expected llm fallback verdict, got action=%q confidence=%v modelID=%q", action, confidence, modelID)
	}
}
