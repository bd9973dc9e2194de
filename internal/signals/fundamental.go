package signals

import (
	"math"
	"sort"

	"github.com/stockflow/engine/internal/models"
)

// FundamentalVersion tags the factor-model revision persisted with each
// signal.
const FundamentalVersion = "fundamental_factor_v1"

// Factor weights. Growth dominates; valuation is a small tilt.
var fundamentalWeights = map[string]float64{
	"growth":           0.34,
	"profitability":    0.24,
	"cashflow_quality": 0.22,
	"balance_sheet":    0.14,
	"valuation":        0.06,
}

var fundamentalFactorOrder = []string{"growth", "profitability", "cashflow_quality", "balance_sheet", "valuation"}

// metricBound maps a derived metric linearly onto [-1, 1] between lo and
// hi. Inverted metrics score better when lower (debt, valuation ratios).
type metricBound struct {
	lo, hi   float64
	inverted bool
}

var fundamentalBounds = map[string]map[string]metricBound{
	"growth": {
		"revenue_qoq": {lo: -15, hi: 15},
		"revenue_yoy": {lo: -30, hi: 30},
		"eps_qoq":     {lo: -25, hi: 25},
		"eps_yoy":     {lo: -40, hi: 40},
	},
	"profitability": {
		"gross_margin":       {lo: 0.20, hi: 0.65},
		"operating_margin":   {lo: 0.05, hi: 0.30},
		"net_margin":         {lo: 0.03, hi: 0.22},
		"gross_margin_delta": {lo: -0.03, hi: 0.03},
		"net_margin_delta":   {lo: -0.02, hi: 0.02},
	},
	"cashflow_quality": {
		"fcf_margin":        {lo: 0, hi: 0.20},
		"ocf_to_net_income": {lo: 0.60, hi: 1.60},
		"fcf_qoq":           {lo: -30, hi: 30},
	},
	"balance_sheet": {
		"debt_to_equity": {lo: 0.20, hi: 2.50, inverted: true},
		"cash_to_debt":   {lo: 0.10, hi: 1.20},
		"current_ratio":  {lo: 1.00, hi: 2.50},
	},
	"valuation": {
		"trailing_pe":    {lo: 10, hi: 40, inverted: true},
		"price_to_sales": {lo: 1, hi: 12, inverted: true},
		"price_to_book":  {lo: 1, hi: 10, inverted: true},
	},
}

// Metric name candidates consulted at the snapshot boundary. Upstreams
// disagree on naming; the first present finite value wins.
var (
	revenueNames   = []string{"Total Revenue", "Revenue"}
	epsNames       = []string{"Earnings", "Diluted EPS", "Basic EPS"}
	equityNames    = []string{"Common Stock Equity", "Stockholders Equity", "Total Equity Gross Minority Interest"}
	cashNames      = []string{"Cash And Cash Equivalents", "Cash Cash Equivalents And Short Term Investments"}
	curLiabNames   = []string{"Current Liabilities", "Current Liabilities Net Minority Interest"}
	curAssetNames  = []string{"Current Assets"}
	totalDebtNames = []string{"Total Debt"}
	grossNames     = []string{"Gross Profit"}
	opIncomeNames  = []string{"Operating Income"}
	netIncomeNames = []string{"Net Income"}
	ocfNames       = []string{"Operating Cash Flow", "Total Cash From Operating Activities"}
	capexNames     = []string{"Capital Expenditure"}
	fcfNames       = []string{"Free Cash Flow"}
)

// ComputeFundamentalSignal derives the weighted factor signal from a
// snapshot. Missing metrics lower factor availability instead of failing
// the run.
func ComputeFundamentalSignal(snap *models.FinancialSnapshot) *models.FundamentalSignal {
	derived := deriveMetrics(snap)

	factors := make([]models.Factor, 0, len(fundamentalFactorOrder))
	contributions := make(map[string]float64, len(fundamentalFactorOrder))

	var weightedSum float64
	var availableTotal, metricTotal int

	for _, name := range fundamentalFactorOrder {
		bounds := fundamentalBounds[name]
		weight := fundamentalWeights[name]

		var sum float64
		available := 0
		for metric, bound := range bounds {
			metricTotal++
			v, ok := derived[metric]
			if !ok || v == nil {
				continue
			}
			sum += linearScore(*v, bound)
			available++
			availableTotal++
		}

		factor := models.Factor{
			Name:             name,
			Weight:           weight,
			AvailableMetrics: available,
			TotalMetrics:     len(bounds),
		}
		if available > 0 {
			factor.Score = sum / float64(available)
			factor.Contribution = weight * factor.Score
			weightedSum += factor.Contribution
		}
		contributions[name] = factor.Contribution
		factors = append(factors, factor)
	}

	score := clamp(weightedSum, -1, 1)

	signal := "neutral"
	switch {
	case score >= 0.20:
		signal = "bullish"
	case score <= -0.20:
		signal = "bearish"
	}

	confidence := 0.0
	if metricTotal > 0 {
		confidence = float64(availableTotal) / float64(metricTotal)
	}

	return &models.FundamentalSignal{
		Version: FundamentalVersion,
		Overall: models.OverallSignal{
			Score:      score,
			Signal:     signal,
			Confidence: confidence,
		},
		Factors:             factors,
		FactorContributions: contributions,
		DerivedMetrics:      derived,
	}
}

func linearScore(v float64, b metricBound) float64 {
	score := clamp(2*(v-b.lo)/(b.hi-b.lo)-1, -1, 1)
	if b.inverted {
		return -score
	}
	return score
}

// deriveMetrics computes the raw metric values the bounds apply to. A nil
// entry records that the metric was consulted but not derivable.
func deriveMetrics(snap *models.FinancialSnapshot) map[string]*float64 {
	derived := make(map[string]*float64)

	income := sortedRows(snap.Rows("quarterly_financials"))
	earnings := sortedRows(snap.Rows("quarterly_earnings"))
	balance := sortedRows(snap.Rows("quarterly_balance_sheet"))
	cashflow := sortedRows(snap.Rows("quarterly_cashflow"))

	// Growth.
	derived["revenue_qoq"] = pctChange(metricAt(income, 0, revenueNames), metricAt(income, 1, revenueNames))
	derived["revenue_yoy"] = pctChange(metricAt(income, 0, revenueNames), metricAt(income, 4, revenueNames))
	derived["eps_qoq"] = pctChange(metricAt(earnings, 0, epsNames), metricAt(earnings, 1, epsNames))
	derived["eps_yoy"] = pctChange(metricAt(earnings, 0, epsNames), metricAt(earnings, 4, epsNames))

	// Profitability.
	derived["gross_margin"] = ratio(metricAt(income, 0, grossNames), metricAt(income, 0, revenueNames))
	derived["operating_margin"] = ratio(metricAt(income, 0, opIncomeNames), metricAt(income, 0, revenueNames))
	derived["net_margin"] = ratio(metricAt(income, 0, netIncomeNames), metricAt(income, 0, revenueNames))
	derived["gross_margin_delta"] = delta(
		ratio(metricAt(income, 0, grossNames), metricAt(income, 0, revenueNames)),
		ratio(metricAt(income, 1, grossNames), metricAt(income, 1, revenueNames)))
	derived["net_margin_delta"] = delta(
		ratio(metricAt(income, 0, netIncomeNames), metricAt(income, 0, revenueNames)),
		ratio(metricAt(income, 1, netIncomeNames), metricAt(income, 1, revenueNames)))

	// Cash-flow quality.
	fcfNow := freeCashFlow(cashflow, 0)
	fcfPrev := freeCashFlow(cashflow, 1)
	derived["fcf_margin"] = ratio(fcfNow, metricAt(income, 0, revenueNames))
	derived["ocf_to_net_income"] = ratio(metricAt(cashflow, 0, ocfNames), metricAt(income, 0, netIncomeNames))
	derived["fcf_qoq"] = pctChange(fcfNow, fcfPrev)

	// Balance sheet.
	debt := metricAt(balance, 0, totalDebtNames)
	derived["debt_to_equity"] = ratio(debt, metricAt(balance, 0, equityNames))
	derived["cash_to_debt"] = ratio(metricAt(balance, 0, cashNames), debt)
	derived["current_ratio"] = ratio(metricAt(balance, 0, curAssetNames), metricAt(balance, 0, curLiabNames))

	// Valuation.
	derived["trailing_pe"] = snap.Valuation("trailing_pe")
	derived["price_to_sales"] = snap.Valuation("price_to_sales")
	derived["price_to_book"] = snap.Valuation("price_to_book")

	return derived
}

// sortedRows returns rows newest first regardless of persisted order.
func sortedRows(rows []models.StatementRow) []models.StatementRow {
	out := make([]models.StatementRow, len(rows))
	copy(out, rows)
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}

func metricAt(rows []models.StatementRow, idx int, names []string) *float64 {
	if idx >= len(rows) {
		return nil
	}
	return rows[idx].Metric(names...)
}

func freeCashFlow(cashflow []models.StatementRow, idx int) *float64 {
	if direct := metricAt(cashflow, idx, fcfNames); direct != nil {
		return direct
	}
	ocf := metricAt(cashflow, idx, ocfNames)
	capex := metricAt(cashflow, idx, capexNames)
	if ocf == nil || capex == nil {
		return nil
	}
	fcf := *ocf - math.Abs(*capex)
	return &fcf
}

// pctChange returns the percent change against the magnitude of the base,
// so improvement from a negative base still scores up. Nil when undefined.
func pctChange(now, prev *float64) *float64 {
	if now == nil || prev == nil || *prev == 0 {
		return nil
	}
	change := (*now - *prev) / math.Abs(*prev) * 100
	return &change
}

func ratio(num, den *float64) *float64 {
	if num == nil || den == nil || *den == 0 {
		return nil
	}
	r := *num / *den
	return &r
}

func delta(now, prev *float64) *float64 {
	if now == nil || prev == nil {
		return nil
	}
	d := *now - *prev
	return &d
}
