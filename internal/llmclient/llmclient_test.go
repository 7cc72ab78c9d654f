package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chidi150c/tradegateway/internal/indicators"
)

func TestDecideReturnsParsedAction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Decision{Action: ActionBuy, Reasoning: "momentum breakout", Confidence: 0.8})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	d := c.Decide(context.Background(), "strat-1", "BTC-USD", indicators.FeatureVector{})
	if d.Action != ActionBuy {
		t.Fatalf("Action = %v, want buy", d.Action)
	}
}

func TestDecideFallsBackToHoldOnUnreachable(t *testing.T) {
	c := New("http://127.0.0.1:0", 50*time.Millisecond)
	c.hc.RetryMax = 0
	d := c.Decide(context.Background(), "strat-1", "BTC-USD", indicators.FeatureVector{})
	if d.Action != ActionHold {
		t.Fatalf("Action = %v, want hold on unreachable service", d.Action)
	}
}

func TestDecideFallsBackToHoldOnUnknownAction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"action": "yolo"})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	d := c.Decide(context.Background(), "strat-1", "BTC-USD", indicators.FeatureVector{})
	if d.Action != ActionHold {
		t.Fatalf("Action = %v, want hold on unrecognized action", d.Action)
	}
}
