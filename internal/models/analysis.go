package models

// AnalysisFactor is one scored factor in an AnalysisReport.
type AnalysisFactor struct {
	ID           string   `json:"id"`
	Label        string   `json:"label"`
	Value        *float64 `json:"value"`
	Score        float64  `json:"score"`
	Weight       float64  `json:"weight"`
	Contribution float64  `json:"contribution"`
	Stance       string   `json:"stance"` // bullish / neutral / bearish
	Explanation  string   `json:"explanation,omitempty"`
}

// AnalysisAsOf anchors the report to its latest candle.
type AnalysisAsOf struct {
	T     int64   `json:"t"` // epoch millis, UTC midnight of the last candle
	Close float64 `json:"close"`
}

// AnalysisCandles describes the input series range.
type AnalysisCandles struct {
	Count int    `json:"count"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
}

// AnalysisAggregate is the weighted summary. pUp + pDown = 1; signal is BUY
// when pUp > 0.6, SELL when pUp < 0.4, else HOLD.
type AnalysisAggregate struct {
	Score      float64 `json:"score"`
	PUp        float64 `json:"pUp"`
	PDown      float64 `json:"pDown"`
	Signal     string  `json:"signal"`
	Confidence float64 `json:"confidence"`
}

// AnalysisMeta records provenance.
type AnalysisMeta struct {
	Provider   string `json:"provider"`
	Years      int    `json:"years"`
	Range      string `json:"range"`
	FetchedAt  string `json:"fetchedAt"`
	ServedFrom string `json:"servedFrom,omitempty"`
}

// UserFactor is an optional caller-provided stance folded into the analysis.
// Stance is clamped to {-1, 0, +1}.
type UserFactor struct {
	Stance int    `json:"stance"`
	Note   string `json:"note,omitempty"`
}

// AnalyzeRequest parameterizes one analysis run. Nil Weights and nil
// UserFactor select the cacheable baseline configuration.
type AnalyzeRequest struct {
	Ticker     string             `json:"ticker"`
	Years      int                `json:"years"`
	Weights    map[string]float64 `json:"weights,omitempty"`
	UserFactor *UserFactor        `json:"user_factor,omitempty"`
}

// IsBaseline reports whether the request matches the cached default
// configuration.
func (r *AnalyzeRequest) IsBaseline() bool {
	return len(r.Weights) == 0 && r.UserFactor == nil
}

// AnalysisReport is the factor-model output keyed by (ticker, date).
type AnalysisReport struct {
	Symbol    string            `json:"symbol"`
	Interval  string            `json:"interval"`
	AsOf      AnalysisAsOf      `json:"asOf"`
	Candles   AnalysisCandles   `json:"candles"`
	Aggregate AnalysisAggregate `json:"aggregate"`
	Factors   []AnalysisFactor  `json:"factors"`
	Meta      AnalysisMeta      `json:"meta"`
}
