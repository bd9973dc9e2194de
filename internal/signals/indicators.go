// Package signals computes technical indicators, feature snapshots, and the
// factor models over persisted market series.
package signals

import "math"

// SMA returns the simple moving average of the last period values, or NaN
// when there are not enough points.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// EMASeries returns the exponential moving average series aligned with
// values. Entries before the seed window are NaN; the seed is the SMA of
// the first period values.
func EMASeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 || len(values) < period {
		return out
	}

	sum := 0.0
	for _, v := range values[:period] {
		sum += v
	}
	out[period-1] = sum / float64(period)

	k := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// EMA returns the latest exponential moving average value, or NaN.
func EMA(values []float64, period int) float64 {
	series := EMASeries(values, period)
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}

// RSI returns the latest Wilder-smoothed relative strength index, or NaN
// when there are fewer than period+1 values.
func RSI(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return math.NaN()
	}

	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(values); i++ {
		delta := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACDSeries returns the MACD line, signal line, and histogram series
// (12/26/9), each aligned with values. Entries without enough history are
// NaN.
func MACDSeries(values []float64) (line, signal, hist []float64) {
	fast := EMASeries(values, 12)
	slow := EMASeries(values, 26)

	line = make([]float64, len(values))
	for i := range values {
		line[i] = fast[i] - slow[i]
	}

	// Signal is the EMA9 of the defined portion of the line.
	signal = make([]float64, len(values))
	for i := range signal {
		signal[i] = math.NaN()
	}
	start := -1
	for i, v := range line {
		if !math.IsNaN(v) {
			start = i
			break
		}
	}
	if start >= 0 {
		defined := EMASeries(line[start:], 9)
		copy(signal[start:], defined)
	}

	hist = make([]float64, len(values))
	for i := range values {
		hist[i] = line[i] - signal[i]
	}
	return line, signal, hist
}

// StdDev returns the population standard deviation, or NaN for an empty
// slice. NaN entries are skipped.
func StdDev(values []float64) float64 {
	var clean []float64
	for _, v := range values {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return math.NaN()
	}

	mean := 0.0
	for _, v := range clean {
		mean += v
	}
	mean /= float64(len(clean))

	variance := 0.0
	for _, v := range clean {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(clean)))
}

// SlopeOfFit returns the least-squares slope of values against their index.
func SlopeOfFit(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return math.NaN()
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return math.NaN()
	}
	return (n*sumXY - sumX*sumY) / denom
}
