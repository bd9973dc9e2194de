package signals

import (
	"fmt"
	"math"

	"github.com/stockflow/engine/internal/common"
	"github.com/stockflow/engine/internal/models"
)

// Default factor weights. The user factor carries no weight unless the
// caller overrides it, so an attached stance is visible without moving the
// aggregate.
var defaultAnalysisWeights = map[string]float64{
	"rsi14":       0.22,
	"macdHist":    0.30,
	"ema200Trend": 0.22,
	"momentum20":  0.16,
	"volumeTrend": 0.10,
	"user":        0.0,
}

var analysisFactorOrder = []string{"rsi14", "macdHist", "ema200Trend", "momentum20", "volumeTrend", "user"}

var analysisFactorLabels = map[string]string{
	"rsi14":       "RSI (14)",
	"macdHist":    "MACD histogram",
	"ema200Trend": "EMA200 trend",
	"momentum20":  "20-day momentum",
	"volumeTrend": "Volume trend",
	"user":        "User stance",
}

const (
	stanceDeadband     = 0.12
	userStanceDeadband = 0.01

	macdStdWindow = 120
	macdMinPoints = 30
)

// BuildReport runs the technical factor model over an ascending series.
func BuildReport(ticker string, candles []models.Candle, req models.AnalyzeRequest) (*models.AnalysisReport, error) {
	closes := ValidCloses(candles)
	if len(closes) == 0 {
		return nil, fmt.Errorf("%w: no close data for %s", common.ErrInvalidInput, ticker)
	}
	volumes := ValidVolumes(candles)

	weights := make(map[string]float64, len(defaultAnalysisWeights))
	for k, v := range defaultAnalysisWeights {
		weights[k] = v
	}
	for k, v := range req.Weights {
		if _, known := weights[k]; known {
			weights[k] = v
		}
	}

	factors := []models.AnalysisFactor{
		rsiFactor(closes, weights["rsi14"]),
		macdHistFactor(closes, weights["macdHist"]),
		ema200Factor(closes, weights["ema200Trend"]),
		momentumFactor(closes, weights["momentum20"]),
		volumeFactor(closes, volumes, weights["volumeTrend"]),
	}
	if req.UserFactor != nil {
		factors = append(factors, userFactor(req.UserFactor, weights["user"]))
	}

	score := 0.0
	for i := range factors {
		if factors[i].Value == nil {
			continue
		}
		factors[i].Contribution = factors[i].Weight * factors[i].Score
		score += factors[i].Contribution
	}
	pUp := 1.0 / (1.0 + math.Exp(-1.6*score))

	signal := "HOLD"
	switch {
	case pUp > 0.6:
		signal = "BUY"
	case pUp < 0.4:
		signal = "SELL"
	}

	confidence := 2 * math.Abs(pUp-0.5)

	last := lastValidCandle(candles)
	report := &models.AnalysisReport{
		Symbol:   ticker,
		Interval: "1d",
		AsOf: models.AnalysisAsOf{
			T:     last.Date.UnixMilli(),
			Close: closes[len(closes)-1],
		},
		Candles: models.AnalysisCandles{Count: len(candles)},
		Aggregate: models.AnalysisAggregate{
			Score:      score,
			PUp:        pUp,
			PDown:      1 - pUp,
			Signal:     signal,
			Confidence: confidence,
		},
		Factors: factors,
	}
	if len(candles) > 0 {
		report.Candles.From = candles[0].DateKey()
		report.Candles.To = candles[len(candles)-1].DateKey()
	}
	return report, nil
}

func lastValidCandle(candles []models.Candle) models.Candle {
	for i := len(candles) - 1; i >= 0; i-- {
		if candles[i].Close != nil {
			return candles[i]
		}
	}
	if len(candles) > 0 {
		return candles[len(candles)-1]
	}
	return models.Candle{}
}

func newFactor(id string, weight float64) models.AnalysisFactor {
	return models.AnalysisFactor{
		ID:     id,
		Label:  analysisFactorLabels[id],
		Weight: weight,
		Stance: "neutral",
	}
}

func stanceOf(score, deadband float64) string {
	switch {
	case score >= deadband:
		return "bullish"
	case score <= -deadband:
		return "bearish"
	default:
		return "neutral"
	}
}

// rsiFactor maps RSI to a contrarian-tilted score: oversold readings score
// increasingly bullish, overbought increasingly bearish, and the mid-range
// leans with the side of 50.
func rsiFactor(closes []float64, weight float64) models.AnalysisFactor {
	f := newFactor("rsi14", weight)
	rsi := RSI(closes, 14)
	if math.IsNaN(rsi) {
		f.Explanation = "insufficient history"
		return f
	}

	var score float64
	switch {
	case rsi <= 30:
		score = 0.5 + 0.5*(30-rsi)/30
	case rsi >= 70:
		score = -0.5 - 0.5*(rsi-70)/30
	default:
		score = (rsi - 50) / 40
	}

	f.Value = &rsi
	f.Score = clamp(score, -1, 1)
	f.Stance = stanceOf(f.Score, stanceDeadband)
	f.Explanation = fmt.Sprintf("RSI %.1f", rsi)
	return f
}

// macdHistFactor normalizes the latest histogram bar by recent histogram
// volatility.
func macdHistFactor(closes []float64, weight float64) models.AnalysisFactor {
	f := newFactor("macdHist", weight)
	_, _, hist := MACDSeries(closes)

	var defined []float64
	for _, v := range hist {
		if !math.IsNaN(v) {
			defined = append(defined, v)
		}
	}
	if len(defined) < macdMinPoints {
		f.Explanation = "insufficient history"
		return f
	}

	window := defined
	if len(window) > macdStdWindow {
		window = window[len(window)-macdStdWindow:]
	}
	latest := defined[len(defined)-1]
	denom := math.Max(2*StdDev(window), 1e-9)

	f.Value = &latest
	f.Score = math.Tanh(latest / denom)
	f.Stance = stanceOf(f.Score, stanceDeadband)
	f.Explanation = fmt.Sprintf("histogram %.4f vs recent volatility", latest)
	return f
}

// ema200Factor scores the close's distance from its 200-period EMA.
func ema200Factor(closes []float64, weight float64) models.AnalysisFactor {
	f := newFactor("ema200Trend", weight)
	ema := EMA(closes, 200)
	if math.IsNaN(ema) || ema == 0 {
		f.Explanation = "insufficient history"
		return f
	}

	dist := (closes[len(closes)-1] - ema) / ema
	f.Value = &dist
	f.Score = math.Tanh(8 * dist)
	f.Stance = stanceOf(f.Score, stanceDeadband)
	f.Explanation = fmt.Sprintf("close %+.1f%% vs EMA200", dist*100)
	return f
}

// momentumFactor scores the 21-bar price change.
func momentumFactor(closes []float64, weight float64) models.AnalysisFactor {
	f := newFactor("momentum20", weight)
	if len(closes) < 25 {
		f.Explanation = "insufficient history"
		return f
	}

	base := closes[len(closes)-22]
	if base == 0 {
		f.Explanation = "insufficient history"
		return f
	}
	change := closes[len(closes)-1]/base - 1

	f.Value = &change
	f.Score = math.Tanh(10 * change)
	f.Stance = stanceOf(f.Score, stanceDeadband)
	f.Explanation = fmt.Sprintf("%+.1f%% over 21 bars", change*100)
	return f
}

// volumeFactor scores the latest volume against its 20-bar average.
func volumeFactor(closes, volumes []float64, weight float64) models.AnalysisFactor {
	f := newFactor("volumeTrend", weight)
	if len(volumes) < 20 {
		f.Explanation = "insufficient history"
		return f
	}

	avg := SMA(volumes, 20)
	if math.IsNaN(avg) || avg == 0 {
		f.Explanation = "insufficient history"
		return f
	}
	ratio := volumes[len(volumes)-1] / avg

	f.Value = &ratio
	f.Score = math.Tanh(1.5 * (ratio - 1))
	f.Stance = stanceOf(f.Score, stanceDeadband)
	f.Explanation = fmt.Sprintf("volume %.2fx 20-bar average", ratio)
	return f
}

// userFactor folds a caller-provided stance in. The tighter deadband makes
// any non-zero stance visible in the label.
func userFactor(user *models.UserFactor, weight float64) models.AnalysisFactor {
	f := newFactor("user", weight)

	stance := float64(user.Stance)
	stance = clamp(stance, -1, 1)

	f.Value = &stance
	f.Score = stance
	f.Stance = stanceOf(stance, userStanceDeadband)
	f.Explanation = user.Note
	return f
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
