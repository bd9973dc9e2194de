package signals

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/engine/internal/common"
	"github.com/stockflow/engine/internal/models"
)

func seriesOf(closes []float64) []models.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]models.Candle, len(closes))
	for i := range closes {
		v := closes[i]
		vol := 1_000_000.0
		candles[i] = models.Candle{
			Date:   start.AddDate(0, 0, i),
			Close:  &v,
			Volume: &vol,
		}
	}
	return candles
}

func risingSeries(n int) []models.Candle {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i)*0.5
	}
	return seriesOf(closes)
}

func TestComputeFeaturesRequiresHistory(t *testing.T) {
	_, err := ComputeFeatures(risingSeries(150))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestComputeFeaturesRisingSeries(t *testing.T) {
	f, err := ComputeFeatures(risingSeries(260))
	require.NoError(t, err)

	require.NotNil(t, f.LatestClose)
	assert.Equal(t, 100+259*0.5, *f.LatestClose)
	require.NotNil(t, f.Return1D)
	assert.Greater(t, *f.Return1D, 0.0)
	assert.Less(t, *f.Return1D, 0.01, "stored as a ratio")
	assert.Equal(t, fmt.Sprintf("%+.2f%%", *f.Return1D*100), f.Return1DPercent)

	require.NotNil(t, f.MA20)
	require.NotNil(t, f.MA200)
	assert.Greater(t, *f.MA20, *f.MA200)

	assert.Equal(t, "up", f.Trend)
	assert.Equal(t, "golden_cross_state", f.MASignal)
	assert.Equal(t, "overbought", f.RSISignal)
}

func TestComputeFeaturesFlatSeries(t *testing.T) {
	closes := make([]float64, 220)
	for i := range closes {
		closes[i] = 50
	}
	f, err := ComputeFeatures(seriesOf(closes))
	require.NoError(t, err)

	assert.Equal(t, "flat", f.Trend)
	assert.Equal(t, "neutral", f.MASignal)
}

func TestComputeFeaturesSkipsNilCloses(t *testing.T) {
	candles := risingSeries(205)
	candles[100].Close = nil
	candles[101].Close = nil
	candles[102].Close = nil
	candles[103].Close = nil
	candles[104].Close = nil
	candles[105].Close = nil

	_, err := ComputeFeatures(candles)
	assert.ErrorIs(t, err, common.ErrInvalidInput, "nil closes do not count toward the floor")
}
