package financial

import (
	"fmt"

	"github.com/stockflow/engine/internal/models"
	"github.com/stockflow/engine/internal/signals"
)

// interpret builds the served view of a snapshot: the factor signal, a
// metric table, and plain-language interpretation lines.
func (s *Service) interpret(ticker string, snap *models.FinancialSnapshot, layer string) *models.InterpretedEarnings {
	signal := signals.ComputeFundamentalSignal(snap)

	data := map[string]any{
		"ticker": ticker,
	}
	if rows := snap.Rows("quarterly_financials"); len(rows) > 0 {
		data["latest_quarter"] = rows[0].Date
	}
	for name, value := range signal.DerivedMetrics {
		if value != nil {
			data[name] = *value
		}
	}

	out := &models.InterpretedEarnings{
		Ticker:             ticker,
		InterpretationData: data,
		Interpretations:    interpretations(signal),
		CacheLayer:         layer,
		FundamentalSignal:  signal,
		CacheMeta:          snap.CacheMeta,
	}
	if snap.CacheMeta != nil {
		out.LastUpdated = snap.CacheMeta.LastRefreshedAt
	}
	return out
}

// interpretations renders the notable derived metrics as sentences, in a
// stable order.
func interpretations(signal *models.FundamentalSignal) []string {
	d := signal.DerivedMetrics
	var lines []string

	if v := d["revenue_qoq"]; v != nil {
		lines = append(lines, fmt.Sprintf("Revenue %s %.1f%% quarter over quarter.", direction(*v), abs(*v)))
	}
	if v := d["revenue_yoy"]; v != nil {
		lines = append(lines, fmt.Sprintf("Revenue %s %.1f%% year over year.", direction(*v), abs(*v)))
	}
	if v := d["eps_qoq"]; v != nil {
		lines = append(lines, fmt.Sprintf("EPS %s %.1f%% quarter over quarter.", direction(*v), abs(*v)))
	}
	if v := d["net_margin"]; v != nil {
		lines = append(lines, fmt.Sprintf("Net margin is %.1f%%.", *v*100))
	}
	if v := d["fcf_margin"]; v != nil {
		lines = append(lines, fmt.Sprintf("Free cash flow margin is %.1f%%.", *v*100))
	}
	if v := d["debt_to_equity"]; v != nil {
		lines = append(lines, fmt.Sprintf("Debt to equity stands at %.2f.", *v))
	}
	if v := d["trailing_pe"]; v != nil {
		lines = append(lines, fmt.Sprintf("Trailing P/E is %.1f.", *v))
	}

	lines = append(lines, fmt.Sprintf("Overall fundamental signal: %s (score %.2f, confidence %.0f%%).",
		signal.Overall.Signal, signal.Overall.Score, signal.Overall.Confidence*100))
	return lines
}

func direction(v float64) string {
	if v < 0 {
		return "fell"
	}
	return "grew"
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
