package signals

import (
	"fmt"
	"math"

	"github.com/stockflow/engine/internal/common"
	"github.com/stockflow/engine/internal/models"
)

// MinFeatureCloses is the minimum number of valid closes required for a
// feature snapshot; below it the MA200 family is meaningless.
const MinFeatureCloses = 200

// trendWindow is how many recent closes feed the trend fit.
const trendWindow = 10

// ValidCloses extracts the non-nil close values from an ascending series.
func ValidCloses(candles []models.Candle) []float64 {
	closes := make([]float64, 0, len(candles))
	for _, c := range candles {
		if c.Close != nil && !math.IsNaN(*c.Close) {
			closes = append(closes, *c.Close)
		}
	}
	return closes
}

// ValidVolumes extracts the non-nil volume values from an ascending series.
func ValidVolumes(candles []models.Candle) []float64 {
	volumes := make([]float64, 0, len(candles))
	for _, c := range candles {
		if c.Volume != nil && !math.IsNaN(*c.Volume) {
			volumes = append(volumes, *c.Volume)
		}
	}
	return volumes
}

// ComputeFeatures builds the indicator snapshot from an ascending series.
func ComputeFeatures(candles []models.Candle) (*models.TechnicalFeatures, error) {
	closes := ValidCloses(candles)
	if len(closes) < MinFeatureCloses {
		return nil, fmt.Errorf("%w: need at least %d closes, have %d",
			common.ErrInvalidInput, MinFeatureCloses, len(closes))
	}

	f := &models.TechnicalFeatures{}

	latest := closes[len(closes)-1]
	f.LatestClose = &latest

	prev := closes[len(closes)-2]
	if prev != 0 {
		ret := (latest - prev) / prev
		f.Return1D = &ret
		f.Return1DPercent = fmt.Sprintf("%+.2f%%", ret*100)
	}

	setIfFinite(&f.MA20, SMA(closes, 20))
	setIfFinite(&f.MA50, SMA(closes, 50))
	setIfFinite(&f.MA200, SMA(closes, 200))
	setIfFinite(&f.RSI, RSI(closes, 14))

	line, signal, hist := MACDSeries(closes)
	setIfFinite(&f.MACD, line[len(line)-1])
	setIfFinite(&f.MACDSignal, signal[len(signal)-1])
	setIfFinite(&f.MACDHist, hist[len(hist)-1])

	f.Trend = classifyTrend(closes)
	f.MASignal = classifyMACross(closes)
	f.RSISignal = classifyRSI(f.RSI)

	return f, nil
}

func setIfFinite(dst **float64, v float64) {
	if !math.IsNaN(v) && !math.IsInf(v, 0) {
		*dst = &v
	}
}

// classifyTrend fits a line through the last closes. A slope inside the
// threshold is flat, fewer points than the window is unknown.
func classifyTrend(closes []float64) string {
	if len(closes) < trendWindow {
		return "unknown"
	}
	tail := closes[len(closes)-trendWindow:]

	allEqual := true
	for _, v := range tail[1:] {
		if v != tail[0] {
			allEqual = false
			break
		}
	}
	if allEqual {
		return "flat"
	}

	slope := SlopeOfFit(tail)
	switch {
	case slope > 0.001:
		return "up"
	case slope < -0.001:
		return "down"
	default:
		return "flat"
	}
}

// classifyMACross reports the MA50/MA200 relationship: a cross on the
// latest bar, the persistent state, or neutral when either average is
// unavailable.
func classifyMACross(closes []float64) string {
	if len(closes) < 201 {
		return "neutral"
	}

	ma50Now := SMA(closes, 50)
	ma200Now := SMA(closes, 200)
	ma50Prev := SMA(closes[:len(closes)-1], 50)
	ma200Prev := SMA(closes[:len(closes)-1], 200)

	if math.IsNaN(ma50Now) || math.IsNaN(ma200Now) || math.IsNaN(ma50Prev) || math.IsNaN(ma200Prev) {
		return "neutral"
	}

	switch {
	case ma50Prev <= ma200Prev && ma50Now > ma200Now:
		return "golden_cross"
	case ma50Prev >= ma200Prev && ma50Now < ma200Now:
		return "death_cross"
	case ma50Now > ma200Now:
		return "golden_cross_state"
	case ma50Now < ma200Now:
		return "death_cross_state"
	default:
		return "neutral"
	}
}

func classifyRSI(rsi *float64) string {
	if rsi == nil {
		return ""
	}
	switch {
	case *rsi > 70:
		return "overbought"
	case *rsi < 30:
		return "oversold"
	default:
		return "neutral"
	}
}
