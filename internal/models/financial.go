package models

import (
	"encoding/json"
	"math"
	"time"
)

// Statement kinds persisted in a FinancialSnapshot. Each kind maps to an
// ordered list of StatementRow, deduplicated by date and sorted descending.
var StatementKinds = []string{
	"annual_financials",
	"annual_balance_sheet",
	"annual_cashflow",
	"quarterly_financials",
	"quarterly_balance_sheet",
	"quarterly_cashflow",
	"annual_earnings",
	"quarterly_earnings",
}

// StatementRow is one reporting period of one statement kind. Metrics maps
// upstream metric names to values; nil is the explicit null sentinel for
// missing or non-finite numbers.
type StatementRow struct {
	Date    string              `json:"date"`
	Metrics map[string]*float64 `json:"metrics"`
}

// Metric returns the first available finite value among candidate names.
func (r *StatementRow) Metric(candidates ...string) *float64 {
	if r == nil {
		return nil
	}
	for _, name := range candidates {
		if v, ok := r.Metrics[name]; ok && v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0) {
			return v
		}
	}
	return nil
}

// MarshalJSON flattens Metrics beside the date so the persisted row keeps the
// upstream "one object per period" shape.
func (r StatementRow) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Metrics)+1)
	flat["date"] = r.Date
	for k, v := range r.Metrics {
		if v == nil {
			flat[k] = nil
		} else {
			flat[k] = *v
		}
	}
	return json.Marshal(flat)
}

// UnmarshalJSON reverses MarshalJSON. Non-numeric fields other than date are
// dropped; non-finite numbers become the nil sentinel.
func (r *StatementRow) UnmarshalJSON(data []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	r.Metrics = make(map[string]*float64, len(flat))
	for k, v := range flat {
		if k == "date" {
			if s, ok := v.(string); ok {
				r.Date = s
			}
			continue
		}
		switch n := v.(type) {
		case float64:
			if math.IsNaN(n) || math.IsInf(n, 0) {
				r.Metrics[k] = nil
			} else {
				val := n
				r.Metrics[k] = &val
			}
		case nil:
			r.Metrics[k] = nil
		}
	}
	return nil
}

// CacheMeta records the refresh history used by the earnings-gated policy.
type CacheMeta struct {
	LastRefreshedAt  string `json:"last_refreshed_at"`
	NextEarningsDate string `json:"next_earnings_date,omitempty"`
	RefreshReason    string `json:"refresh_reason,omitempty"`
}

// FinancialSnapshot is the merged, persisted financial statement bundle for
// one equity. Statements keys are the StatementKinds.
type FinancialSnapshot struct {
	Ticker     string                    `json:"ticker"`
	Statements map[string][]StatementRow `json:"statements"`
	Info       map[string]any            `json:"info,omitempty"`
	Valuations map[string]*float64       `json:"valuations,omitempty"`
	FetchedAt  time.Time                 `json:"fetched_at"`
	CacheMeta  *CacheMeta                `json:"cache_meta,omitempty"`
}

// Rows returns the row list for a statement kind, or nil.
func (s *FinancialSnapshot) Rows(kind string) []StatementRow {
	if s == nil || s.Statements == nil {
		return nil
	}
	return s.Statements[kind]
}

// Valuation returns a named valuation metric, or nil.
func (s *FinancialSnapshot) Valuation(name string) *float64 {
	if s == nil || s.Valuations == nil {
		return nil
	}
	return s.Valuations[name]
}

// Factor is one row of the fundamental factor model output.
type Factor struct {
	Name             string  `json:"name"`
	Weight           float64 `json:"weight"`
	Score            float64 `json:"score"`
	Contribution     float64 `json:"contribution"`
	AvailableMetrics int     `json:"available_metrics"`
	TotalMetrics     int     `json:"total_metrics"`
}

// OverallSignal summarizes the weighted factor model.
type OverallSignal struct {
	Score      float64 `json:"score"`
	Signal     string  `json:"signal"` // bullish / neutral / bearish
	Confidence float64 `json:"confidence"`
}

// FundamentalSignal is the factor-model output derived from a snapshot.
type FundamentalSignal struct {
	Version             string              `json:"version"`
	Overall             OverallSignal       `json:"overall"`
	Factors             []Factor            `json:"factors"`
	FactorContributions map[string]float64  `json:"factor_contributions"`
	DerivedMetrics      map[string]*float64 `json:"derived_metrics"`
}

// InterpretedEarnings is the payload served by the financial engine: the
// per-metric columns the card renderers consume, plain-language
// interpretations, and the factor signal.
type InterpretedEarnings struct {
	Ticker             string             `json:"ticker"`
	InterpretationData map[string]any     `json:"interpretation_data"`
	Interpretations    []string           `json:"interpretations"`
	LastUpdated        string             `json:"last_updated"`
	SavedFilePath      string             `json:"saved_file_path,omitempty"`
	CacheLayer         string             `json:"cacheLayer"`
	FundamentalSignal  *FundamentalSignal `json:"fundamental_signal,omitempty"`
	CacheMeta          *CacheMeta         `json:"cache_meta,omitempty"`
	Stale              bool               `json:"stale,omitempty"`
	StaleReason        string             `json:"staleReason,omitempty"`
}
