// Package mlclient is the HTTP client for the ML validation/prediction
// service the pre-dispatch guard and AI worker call into (spec.md
// §4.5, §4.8.2b). Built on hashicorp/go-retryablehttp the way the
// teacher pack's download manager (NimbleMarkets-dbn-go) wraps retries
// around an external HTTP dependency, but with a hard deadline: a
// validation call that doesn't return inside the configured timeout is
// treated as a fail-open "allow" rather than blocking the caller
// indefinitely (spec.md §4.5's fail-open-on-timeout invariant).
package mlclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/chidi150c/tradegateway/internal/indicators"
)

// ValidationResult is the service's verdict on a proposed trade.
type ValidationResult struct {
	Approved   bool    `json:"approved"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// PredictionResult is the service's directional forecast for a strategy.
type PredictionResult struct {
	Action     string  `json:"action"` // buy|sell|hold
	Confidence float64 `json:"confidence"`
}

// Client talks to the ML validation/prediction service.
type Client struct {
	baseURL string
	hc      *retryablehttp.Client
	timeout time.Duration
}

// New constructs a Client. timeout bounds every call; the teacher's
// pattern of a dedicated retryablehttp.Client with a bounded RetryMax is
// kept, but logging is disabled (a noisy default retry logger would
// spam the gateway's own structured log stream).
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.Logger = nil
	return &Client{baseURL: baseURL, hc: rc, timeout: timeout}
}

// ValidateStrategySignal calls POST /validate-strategy-signal with a
// hard deadline. On timeout or transport failure it fails open
// (Approved=true) and logs the degradation, per spec.md §4.5.
func (c *Client) ValidateStrategySignal(ctx context.Context, payload any) ValidationResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var result ValidationResult
	if err := c.post(ctx, "/validate-strategy-signal", payload, &result); err != nil {
		log.Printf("mlclient: validate-strategy-signal degraded, failing open: %v", err)
		return ValidationResult{Approved: true, Reason: "ml validation unavailable, failed open"}
	}
	return result
}

// PredictStrategy calls POST /predict-strategy with the current feature
// vector, used by the AI worker's ML routing path (spec.md §4.8.2c).
func (c *Client) PredictStrategy(ctx context.Context, strategyID string, features indicators.FeatureVector) (PredictionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := map[string]any{"strategy_id": strategyID, "features": features.Values()}
	var result PredictionResult
	if err := c.post(ctx, "/predict-strategy", payload, &result); err != nil {
		return PredictionResult{}, fmt.Errorf("mlclient: predict-strategy: %w", err)
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
