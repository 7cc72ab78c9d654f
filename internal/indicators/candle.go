// Package indicators implements the technical-analysis helpers the AI
// signal worker (internal/aiworker) turns OHLCV candles into feature
// vectors with. Generalized from the teacher's indicators.go (SMA, RSI,
// ZScore), which covered only what its single-product micro-model needed;
// this expands to the full indicator set spec.md §4.8 requires.
package indicators

import "time"

// Candle is the normalized OHLCV row shared across adapters and the
// feature pipeline, carried over from the teacher's strategy.go.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

func closes(c []Candle) []float64 {
	out := make([]float64, len(c))
	for i := range c {
		out[i] = c[i].Close
	}
	return out
}
