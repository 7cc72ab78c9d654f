package indicators

import "math"

// FeatureVector is the fixed, named set of ≥15 indicators the AI signal
// worker computes per strategy tick (spec.md §4.8.2a). Generalized from
// the teacher's BuildExtendedFeatures (strategy.go), which produced an
// 8-wide unnamed slice for its own micro-model; named fields make the
// vector inspectable for logging and for ai_trade_decisions.technical_indicators.
type FeatureVector struct {
	SMA10        float64
	SMA30        float64
	SMA50        float64
	EMA12        float64
	EMA26        float64
	RSI14        float64
	MACD         float64
	MACDSignal   float64
	MACDHist     float64
	BollingerMid float64
	PercentB     float64
	ATR14        float64
	ATRPercent   float64
	RealizedVol  float64
	VolumeSMA20  float64
	VolumeRatio  float64
	OBV          float64
	ADX14        float64
	AboveSMA50   bool
	BelowSMA50   bool
}

// Values returns the vector as a flat, stably-ordered slice for feeding
// a model client and for persisting a reproducible snapshot.
func (f FeatureVector) Values() []float64 {
	ab, bl := 0.0, 0.0
	if f.AboveSMA50 {
		ab = 1
	}
	if f.BelowSMA50 {
		bl = 1
	}
	return []float64{
		f.SMA10, f.SMA30, f.SMA50, f.EMA12, f.EMA26, f.RSI14,
		f.MACD, f.MACDSignal, f.MACDHist, f.BollingerMid, f.PercentB,
		f.ATR14, f.ATRPercent, f.RealizedVol, f.VolumeSMA20, f.VolumeRatio,
		f.OBV, f.ADX14, ab, bl,
	}
}

// BuildFeatures computes the full feature vector for the most recent bar
// in c. Deterministic for a given bar sequence, per spec.md §4.8.2a.
// Returns ok=false when there is not enough history (< 60 bars) to fill
// the slower indicators (SMA50, ADX14).
func BuildFeatures(c []Candle) (FeatureVector, bool) {
	if len(c) < 60 {
		return FeatureVector{}, false
	}
	i := len(c) - 1
	close := closes(c)

	sma10 := SMA(c, 10)
	sma30 := SMA(c, 30)
	sma50 := SMA(c, 50)
	ema12 := EMA(close, 12)
	ema26 := EMA(close, 26)
	rsi14 := RSI(c, 14)
	macd, sig, hist := MACD(close, 12, 26, 9)
	mid, _, _, pctB := Bollinger(close, 20, 2)
	atr14 := ATR(c, 14)
	rvol := RealizedVol(close, 20)
	obv := OBV(c)
	adx14 := ADX(c, 14)

	volumes := make([]float64, len(c))
	for k := range c {
		volumes[k] = c[k].Volume
	}
	volSMA := rollingMeanFloat(volumes, 20)

	atrPct := 0.0
	if c[i].Close > 0 {
		atrPct = atr14[i] / c[i].Close
	}
	volRatio := 1.0
	if volSMA[i] > 0 {
		volRatio = c[i].Volume / volSMA[i]
	}

	fv := FeatureVector{
		SMA10:        nz(sma10[i]),
		SMA30:        nz(sma30[i]),
		SMA50:        nz(sma50[i]),
		EMA12:        nz(ema12[i]),
		EMA26:        nz(ema26[i]),
		RSI14:        rsi14[i],
		MACD:         macd[i],
		MACDSignal:   sig[i],
		MACDHist:     hist[i],
		BollingerMid: nz(mid[i]),
		PercentB:     pctB[i],
		ATR14:        atr14[i],
		ATRPercent:   atrPct,
		RealizedVol:  rvol[i],
		VolumeSMA20:  volSMA[i],
		VolumeRatio:  volRatio,
		OBV:          obv[i],
		ADX14:        adx14[i],
		AboveSMA50:   !math.IsNaN(sma50[i]) && c[i].Close > sma50[i],
		BelowSMA50:   !math.IsNaN(sma50[i]) && c[i].Close < sma50[i],
	}
	return fv, true
}

func nz(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return f
}

func rollingMeanFloat(series []float64, n int) []float64 {
	out := make([]float64, len(series))
	var sum float64
	for i := range series {
		sum += series[i]
		if i >= n {
			sum -= series[i-n]
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		}
	}
	return out
}
