package marketdata

import (
	"sort"
	"strconv"

	"github.com/stockflow/engine/internal/models"
)

func (f flexFloat64) ptr() *float64 {
	v := float64(f)
	return &v
}

// quoteResponse is the realtime quote wire form.
type quoteResponse struct {
	Code          string      `json:"code"`
	Timestamp     int64       `json:"timestamp"`
	Open          flexFloat64 `json:"open"`
	High          flexFloat64 `json:"high"`
	Low           flexFloat64 `json:"low"`
	Close         flexFloat64 `json:"close"`
	PreviousClose flexFloat64 `json:"previousClose"`
	Volume        flexFloat64 `json:"volume"`
}

// eodBarResponse is one end-of-day bar.
type eodBarResponse struct {
	Date   string      `json:"date"`
	Open   flexFloat64 `json:"open"`
	High   flexFloat64 `json:"high"`
	Low    flexFloat64 `json:"low"`
	Close  flexFloat64 `json:"close"`
	Volume flexFloat64 `json:"volume"`
}

type earningsCalendarResponse struct {
	Earnings []struct {
		Code       string `json:"code"`
		ReportDate string `json:"report_date"`
	} `json:"earnings"`
}

type generalSection struct {
	Code   string `json:"Code"`
	Name   string `json:"Name"`
	WebURL string `json:"WebURL"`
	Sector string `json:"Sector"`
}

// statementTables groups the yearly and quarterly period maps of one
// statement family. Keys of the outer maps are YYYY-MM-DD period ends.
type statementTables struct {
	Yearly    map[string]map[string]any `json:"yearly"`
	Quarterly map[string]map[string]any `json:"quarterly"`
}

// fundamentalsResponse is the fundamentals wire form.
type fundamentalsResponse struct {
	General    generalSection `json:"General"`
	Highlights map[string]any `json:"Highlights"`
	Valuation  map[string]any `json:"Valuation"`
	Financials struct {
		BalanceSheet    statementTables `json:"Balance_Sheet"`
		CashFlow        statementTables `json:"Cash_Flow"`
		IncomeStatement statementTables `json:"Income_Statement"`
	} `json:"Financials"`
	Earnings struct {
		History map[string]map[string]any `json:"History"`
		Annual  map[string]map[string]any `json:"Annual"`
	} `json:"Earnings"`
}

// canonicalNames maps upstream field names to the canonical metric names the
// factor engine consults. Unmapped numeric fields pass through unchanged so
// a new upstream metric is preserved.
var canonicalNames = map[string]string{
	// income statement
	"totalRevenue":    "Total Revenue",
	"grossProfit":     "Gross Profit",
	"operatingIncome": "Operating Income",
	"netIncome":       "Net Income",

	// balance sheet
	"totalStockholderEquity":      "Stockholders Equity",
	"commonStockTotalEquity":      "Common Stock Equity",
	"cash":                        "Cash And Cash Equivalents",
	"cashAndShortTermInvestments": "Cash Cash Equivalents And Short Term Investments",
	"totalCurrentLiabilities":     "Current Liabilities",
	"totalCurrentAssets":          "Current Assets",
	"shortLongTermDebtTotal":      "Total Debt",

	// cash flow
	"totalCashFromOperatingActivities": "Operating Cash Flow",
	"capitalExpenditures":              "Capital Expenditure",
	"freeCashFlow":                     "Free Cash Flow",

	// earnings history
	"epsActual": "Diluted EPS",
}

// valuationNames maps upstream valuation fields to the snapshot's valuation
// keys.
var valuationNames = map[string]string{
	"TrailingPE":           "trailing_pe",
	"ForwardPE":            "forward_pe",
	"PriceSalesTTM":        "price_to_sales",
	"PriceBookMRQ":         "price_to_book",
	"MarketCapitalization": "market_cap",
}

func numeric(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

// toRows converts a period map into statement rows sorted by date descending.
func toRows(periods map[string]map[string]any) []models.StatementRow {
	rows := make([]models.StatementRow, 0, len(periods))
	for date, fields := range periods {
		if d, ok := fields["date"].(string); ok && d != "" {
			date = d
		}
		metrics := make(map[string]*float64, len(fields))
		for k, v := range fields {
			if k == "date" {
				continue
			}
			name := k
			if canonical, ok := canonicalNames[k]; ok {
				name = canonical
			}
			if f := numeric(v); f != nil {
				metrics[name] = f
			}
		}
		if len(metrics) == 0 {
			continue
		}
		rows = append(rows, models.StatementRow{Date: date, Metrics: metrics})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date > rows[j].Date })
	return rows
}

// toSnapshot maps the fundamentals wire form onto the persisted snapshot.
func (r *fundamentalsResponse) toSnapshot(ticker string) *models.FinancialSnapshot {
	snap := &models.FinancialSnapshot{
		Ticker: ticker,
		Statements: map[string][]models.StatementRow{
			"annual_financials":       toRows(r.Financials.IncomeStatement.Yearly),
			"quarterly_financials":    toRows(r.Financials.IncomeStatement.Quarterly),
			"annual_balance_sheet":    toRows(r.Financials.BalanceSheet.Yearly),
			"quarterly_balance_sheet": toRows(r.Financials.BalanceSheet.Quarterly),
			"annual_cashflow":         toRows(r.Financials.CashFlow.Yearly),
			"quarterly_cashflow":      toRows(r.Financials.CashFlow.Quarterly),
			"annual_earnings":         toRows(r.Earnings.Annual),
			"quarterly_earnings":      toRows(r.Earnings.History),
		},
		Info:       map[string]any{},
		Valuations: map[string]*float64{},
	}

	if r.General.Name != "" {
		snap.Info["name"] = r.General.Name
	}
	if r.General.Sector != "" {
		snap.Info["sector"] = r.General.Sector
	}
	if r.General.WebURL != "" {
		snap.Info["website"] = r.General.WebURL
	}

	for src, dst := range valuationNames {
		if v, ok := r.Valuation[src]; ok {
			if f := numeric(v); f != nil {
				snap.Valuations[dst] = f
			}
		}
	}
	for src, dst := range valuationNames {
		if _, done := snap.Valuations[dst]; done {
			continue
		}
		if v, ok := r.Highlights[src]; ok {
			if f := numeric(v); f != nil {
				snap.Valuations[dst] = f
			}
		}
	}

	return snap
}
