package signals

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, 4.0, SMA(values, 3))
	assert.Equal(t, 3.0, SMA(values, 5))
	assert.True(t, math.IsNaN(SMA(values, 6)))
	assert.True(t, math.IsNaN(SMA(nil, 1)))
}

func TestEMASeriesSeedAndRecursion(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	series := EMASeries(values, 3)
	require.Len(t, series, 5)

	assert.True(t, math.IsNaN(series[0]))
	assert.True(t, math.IsNaN(series[1]))
	assert.Equal(t, 2.0, series[2], "seed is the SMA of the first period")

	k := 2.0 / 4.0
	assert.InDelta(t, 4*k+2.0*(1-k), series[3], 1e-9)
}

func TestRSIExtremes(t *testing.T) {
	rising := make([]float64, 30)
	for i := range rising {
		rising[i] = float64(100 + i)
	}
	assert.Equal(t, 100.0, RSI(rising, 14))

	falling := make([]float64, 30)
	for i := range falling {
		falling[i] = float64(200 - i)
	}
	assert.InDelta(t, 0.0, RSI(falling, 14), 1e-9)

	assert.True(t, math.IsNaN(RSI(rising[:10], 14)))
}

func TestMACDSeriesAlignment(t *testing.T) {
	values := make([]float64, 60)
	for i := range values {
		values[i] = 100 + float64(i)*0.5
	}
	line, signal, hist := MACDSeries(values)
	require.Len(t, line, 60)
	require.Len(t, signal, 60)
	require.Len(t, hist, 60)

	assert.True(t, math.IsNaN(line[24]), "line undefined before the slow EMA seeds")
	assert.False(t, math.IsNaN(line[59]))
	assert.False(t, math.IsNaN(signal[59]))
	assert.InDelta(t, line[59]-signal[59], hist[59], 1e-9)
	// A steadily rising series keeps the line positive.
	assert.Greater(t, line[59], 0.0)
}

func TestStdDev(t *testing.T) {
	assert.InDelta(t, 2.0, StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-9)
	assert.Equal(t, 0.0, StdDev([]float64{3, 3, 3}))
	assert.True(t, math.IsNaN(StdDev(nil)))

	withNaN := []float64{1, math.NaN(), 1}
	assert.Equal(t, 0.0, StdDev(withNaN))
}

func TestSlopeOfFit(t *testing.T) {
	assert.InDelta(t, 2.0, SlopeOfFit([]float64{1, 3, 5, 7}), 1e-9)
	assert.InDelta(t, 0.0, SlopeOfFit([]float64{4, 4, 4}), 1e-9)
	assert.True(t, math.IsNaN(SlopeOfFit([]float64{1})))
}
