// Package llmclient is the HTTP client for the LLM-backed decision
// endpoint the AI worker's hybrid routing path can call into (spec.md
// §4.8.2c, §4.8.2d): given a feature snapshot and recent context, the
// service returns an action plus natural-language reasoning. Shares the
// same retryablehttp-based transport pattern as internal/mlclient.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/chidi150c/tradegateway/internal/indicators"
)

// Action is the LLM's directional verdict.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
	ActionClose Action = "close"
)

// Decision is the LLM service's structured response.
type Decision struct {
	Action    Action  `json:"action"`
	Reasoning string  `json:"reasoning"`
	ModelID   string  `json:"model_id"`
	Confidence float64 `json:"confidence"`
}

// Client talks to the LLM decision endpoint.
type Client struct {
	baseURL string
	hc      *retryablehttp.Client
	timeout time.Duration
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = 1
	rc.Logger = nil
	return &Client{baseURL: baseURL, hc: rc, timeout: timeout}
}

// Decide requests a BUY/SELL/HOLD/CLOSE verdict plus reasoning for the
// given strategy's current feature snapshot (spec.md §4.8.2d). On
// failure it returns ActionHold: an unreachable LLM must never itself
// synthesize a trade, matching the AI worker's overall fail-safe
// posture of preferring inaction to an ungrounded decision.
func (c *Client) Decide(ctx context.Context, strategyID, symbol string, features indicators.FeatureVector) Decision {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := map[string]any{
		"strategy_id": strategyID,
		"symbol":      symbol,
		"features":    features.Values(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Decision{Action: ActionHold, Reasoning: fmt.Sprintf("request encode failed: %v", err)}
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/decide", bytes.NewReader(body))
	if err != nil {
		return Decision{Action: ActionHold, Reasoning: fmt.Sprintf("request build failed: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return Decision{Action: ActionHold, Reasoning: fmt.Sprintf("llm service unreachable: %v", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return Decision{Action: ActionHold, Reasoning: fmt.Sprintf("llm service status %d: %s", resp.StatusCode, string(b))}
	}
	var decision Decision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return Decision{Action: ActionHold, Reasoning: fmt.Sprintf("decode failed: %v", err)}
	}
	switch decision.Action {
	case ActionBuy, ActionSell, ActionHold, ActionClose:
	default:
		return Decision{Action: ActionHold, Reasoning: fmt.Sprintf("unrecognized action %q from llm service", decision.Action)}
	}
	return decision
}
