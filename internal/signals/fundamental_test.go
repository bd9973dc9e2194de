package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/engine/internal/models"
)

func metrics(pairs map[string]float64) map[string]*float64 {
	out := make(map[string]*float64, len(pairs))
	for k, v := range pairs {
		val := v
		out[k] = &val
	}
	return out
}

func strongSnapshot() *models.FinancialSnapshot {
	return &models.FinancialSnapshot{
		Ticker: "AAPL",
		Statements: map[string][]models.StatementRow{
			"quarterly_financials": {
				{Date: "2025-03-31", Metrics: metrics(map[string]float64{
					"Total Revenue": 120, "Gross Profit": 70, "Operating Income": 30, "Net Income": 25,
				})},
				{Date: "2024-12-31", Metrics: metrics(map[string]float64{
					"Total Revenue": 100, "Gross Profit": 55, "Operating Income": 24, "Net Income": 18,
				})},
				{Date: "2024-09-30", Metrics: metrics(map[string]float64{"Total Revenue": 95})},
				{Date: "2024-06-30", Metrics: metrics(map[string]float64{"Total Revenue": 92})},
				{Date: "2024-03-31", Metrics: metrics(map[string]float64{"Total Revenue": 90})},
			},
			"quarterly_earnings": {
				{Date: "2025-03-31", Metrics: metrics(map[string]float64{"Diluted EPS": 2.4})},
				{Date: "2024-12-31", Metrics: metrics(map[string]float64{"Diluted EPS": 2.0})},
				{Date: "2024-09-30", Metrics: metrics(map[string]float64{"Diluted EPS": 1.9})},
				{Date: "2024-06-30", Metrics: metrics(map[string]float64{"Diluted EPS": 1.7})},
				{Date: "2024-03-31", Metrics: metrics(map[string]float64{"Diluted EPS": 1.5})},
			},
			"quarterly_balance_sheet": {
				{Date: "2025-03-31", Metrics: metrics(map[string]float64{
					"Total Debt": 50, "Stockholders Equity": 100,
					"Cash And Cash Equivalents": 60,
					"Current Assets":            150, "Current Liabilities": 75,
				})},
			},
			"quarterly_cashflow": {
				{Date: "2025-03-31", Metrics: metrics(map[string]float64{
					"Operating Cash Flow": 30, "Capital Expenditure": -5,
				})},
				{Date: "2024-12-31", Metrics: metrics(map[string]float64{
					"Operating Cash Flow": 20, "Capital Expenditure": -4,
				})},
			},
		},
		Valuations: map[string]*float64{
			"trailing_pe":    fptr(15),
			"price_to_sales": fptr(5),
		},
	}
}

func fptr(v float64) *float64 { return &v }

func TestComputeFundamentalSignalStrongQuarter(t *testing.T) {
	sig := ComputeFundamentalSignal(strongSnapshot())

	assert.Equal(t, FundamentalVersion, sig.Version)
	assert.Equal(t, "bullish", sig.Overall.Signal)
	assert.GreaterOrEqual(t, sig.Overall.Score, 0.20)

	// price_to_book is the only metric of the 18 that cannot be derived.
	assert.InDelta(t, 17.0/18.0, sig.Overall.Confidence, 1e-9)

	require.Len(t, sig.Factors, 5)
	for _, f := range sig.Factors {
		assert.Equal(t, sig.FactorContributions[f.Name], f.Contribution)
	}
}

func TestComputeFundamentalSignalDerivedMetrics(t *testing.T) {
	sig := ComputeFundamentalSignal(strongSnapshot())

	require.NotNil(t, sig.DerivedMetrics["revenue_qoq"])
	assert.InDelta(t, 20.0, *sig.DerivedMetrics["revenue_qoq"], 1e-9)

	require.NotNil(t, sig.DerivedMetrics["revenue_yoy"])
	assert.InDelta(t, 100.0/3.0, *sig.DerivedMetrics["revenue_yoy"], 1e-6)

	require.NotNil(t, sig.DerivedMetrics["debt_to_equity"])
	assert.InDelta(t, 0.5, *sig.DerivedMetrics["debt_to_equity"], 1e-9)

	// FCF falls back to OCF minus |CapEx| when not reported directly.
	require.NotNil(t, sig.DerivedMetrics["fcf_margin"])
	assert.InDelta(t, 25.0/120.0, *sig.DerivedMetrics["fcf_margin"], 1e-9)

	assert.Nil(t, sig.DerivedMetrics["price_to_book"])
}

func TestComputeFundamentalSignalInvertedMetric(t *testing.T) {
	snap := &models.FinancialSnapshot{
		Ticker: "DEBT",
		Statements: map[string][]models.StatementRow{
			"quarterly_balance_sheet": {
				{Date: "2025-03-31", Metrics: metrics(map[string]float64{
					"Total Debt": 250, "Stockholders Equity": 100,
				})},
			},
		},
	}
	sig := ComputeFundamentalSignal(snap)

	var balance models.Factor
	for _, f := range sig.Factors {
		if f.Name == "balance_sheet" {
			balance = f
		}
	}
	require.Equal(t, 1, balance.AvailableMetrics)
	// debt_to_equity 2.5 sits at the worst bound; inversion makes it -1.
	assert.InDelta(t, -1.0, balance.Score, 1e-9)
}

func TestComputeFundamentalSignalEmptySnapshot(t *testing.T) {
	sig := ComputeFundamentalSignal(&models.FinancialSnapshot{Ticker: "EMPTY"})

	assert.Equal(t, "neutral", sig.Overall.Signal)
	assert.Zero(t, sig.Overall.Score)
	assert.Zero(t, sig.Overall.Confidence)
	for _, f := range sig.Factors {
		assert.Zero(t, f.AvailableMetrics)
	}
}
