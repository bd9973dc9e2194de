package signals

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/engine/internal/common"
	"github.com/stockflow/engine/internal/models"
)

func TestBuildReportStructure(t *testing.T) {
	report, err := BuildReport("AAPL", risingSeries(260), models.AnalyzeRequest{Ticker: "AAPL", Years: 5})
	require.NoError(t, err)

	assert.Equal(t, "AAPL", report.Symbol)
	assert.Equal(t, "1d", report.Interval)
	assert.Equal(t, 260, report.Candles.Count)
	assert.Equal(t, "2024-01-01", report.Candles.From)

	assert.InDelta(t, 1.0, report.Aggregate.PUp+report.Aggregate.PDown, 1e-9)
	assert.Contains(t, []string{"BUY", "SELL", "HOLD"}, report.Aggregate.Signal)

	// No user factor requested: only the five technical factors appear.
	require.Len(t, report.Factors, 5)
	for _, f := range report.Factors {
		if f.Value != nil {
			assert.InDelta(t, f.Weight*f.Score, f.Contribution, 1e-9)
		}
		assert.Contains(t, []string{"bullish", "neutral", "bearish"}, f.Stance)
	}
	assert.InDelta(t, 2*math.Abs(report.Aggregate.PUp-0.5), report.Aggregate.Confidence, 1e-9)
	assert.LessOrEqual(t, report.Aggregate.Confidence, 1.0)
}

func TestBuildReportUserFactorOverride(t *testing.T) {
	req := models.AnalyzeRequest{
		Ticker: "AAPL",
		Weights: map[string]float64{
			"rsi14": 0, "macdHist": 0, "ema200Trend": 0, "momentum20": 0, "volumeTrend": 0,
			"user": 1,
		},
		UserFactor: &models.UserFactor{Stance: 1, Note: "conviction long"},
	}

	report, err := BuildReport("AAPL", risingSeries(260), req)
	require.NoError(t, err)

	require.Len(t, report.Factors, 6)
	user := report.Factors[5]
	assert.Equal(t, "user", user.ID)
	assert.Equal(t, 1.0, user.Score)
	assert.Equal(t, "bullish", user.Stance)
	assert.Equal(t, "conviction long", user.Explanation)

	// All aggregate weight sits on the user stance.
	assert.InDelta(t, 1.0, report.Aggregate.Score, 1e-9)
	assert.Equal(t, "BUY", report.Aggregate.Signal)
}

func TestBuildReportUserStanceClamped(t *testing.T) {
	req := models.AnalyzeRequest{
		Ticker:     "AAPL",
		UserFactor: &models.UserFactor{Stance: 5},
	}
	report, err := BuildReport("AAPL", risingSeries(260), req)
	require.NoError(t, err)
	assert.Equal(t, 1.0, report.Factors[5].Score)
}

func TestBuildReportRSIScoreShape(t *testing.T) {
	report, err := BuildReport("AAPL", risingSeries(260), models.AnalyzeRequest{Ticker: "AAPL"})
	require.NoError(t, err)

	rsi := report.Factors[0]
	require.Equal(t, "rsi14", rsi.ID)
	require.NotNil(t, rsi.Value)
	// The relentless rise pins RSI to 100; the contrarian mapping bottoms out.
	assert.InDelta(t, 100.0, *rsi.Value, 1e-6)
	assert.InDelta(t, -1.0, rsi.Score, 1e-6)
	assert.Equal(t, "bearish", rsi.Stance)
}

func TestBuildReportShortSeries(t *testing.T) {
	report, err := BuildReport("AAPL", risingSeries(15), models.AnalyzeRequest{Ticker: "AAPL"})
	require.NoError(t, err)

	// momentum20 needs 25 closes; it stays out of the aggregate.
	var momentum models.AnalysisFactor
	for _, f := range report.Factors {
		if f.ID == "momentum20" {
			momentum = f
		}
	}
	assert.Nil(t, momentum.Value)
	assert.Zero(t, momentum.Contribution)
	assert.Less(t, report.Aggregate.Confidence, 1.0)
}

func TestBuildReportNoData(t *testing.T) {
	_, err := BuildReport("AAPL", nil, models.AnalyzeRequest{Ticker: "AAPL"})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}
