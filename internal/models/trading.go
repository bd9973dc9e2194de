package models

import "time"

// Candle is one daily OHLCV row. Date is normalized to 00:00:00 UTC; nil
// fields are upstream nulls preserved through merge.
type Candle struct {
	Date   time.Time `json:"-"`
	Open   *float64  `json:"Open"`
	High   *float64  `json:"High"`
	Low    *float64  `json:"Low"`
	Close  *float64  `json:"Close"`
	Volume *float64  `json:"Volume"`
}

// DateKey returns the canonical YYYY-MM-DD key for the row.
func (c Candle) DateKey() string { return c.Date.Format("2006-01-02") }

// HistoricalRow is the persisted record form of a Candle
// (historical_data/{TICKER}_historical.json).
type HistoricalRow struct {
	Date   string   `json:"Date"`
	Open   *float64 `json:"Open"`
	High   *float64 `json:"High"`
	Low    *float64 `json:"Low"`
	Close  *float64 `json:"Close"`
	Volume *float64 `json:"Volume"`
}

// MarketCandle is the wire form used by the candles endpoint:
// epoch-millis timestamp plus OHLCV.
type MarketCandle struct {
	T int64    `json:"t"`
	O *float64 `json:"o"`
	H *float64 `json:"h"`
	L *float64 `json:"l"`
	C *float64 `json:"c"`
	V *float64 `json:"v"`
}

// Quote is a best-effort realtime quote from the market-data adapter.
type Quote struct {
	Ticker        string   `json:"ticker"`
	Price         *float64 `json:"price"`
	PreviousClose *float64 `json:"previous_close"`
	Open          *float64 `json:"open"`
	DayHigh       *float64 `json:"day_high"`
	DayLow        *float64 `json:"day_low"`
	Volume        *float64 `json:"volume"`
	Currency      string   `json:"currency,omitempty"`
	LastUpdated   string   `json:"last_updated"`
}

// PriceSnapshot is the latest close and day change derived from persisted
// history, used by downstream card renderers.
type PriceSnapshot struct {
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"changePercent"`
}

// TechnicalFeatures is the indicator snapshot computed from the most recent
// valid tail of an OHLCV series. Nil values mean "not computable".
type TechnicalFeatures struct {
	LatestClose      *float64 `json:"latest_close"`
	Return1D         *float64 `json:"return_1d"` // ratio, not percent; Return1DPercent carries the rendered form
	Return1DPercent  string   `json:"return_1d_percent,omitempty"`
	MA20             *float64 `json:"ma_20"`
	MA50             *float64 `json:"ma_50"`
	MA200            *float64 `json:"ma_200"`
	RSI              *float64 `json:"rsi"`
	MACD             *float64 `json:"macd"`
	MACDSignal       *float64 `json:"macd_signal"`
	MACDHist         *float64 `json:"macd_hist"`
	Trend            string   `json:"trend"`     // up / down / flat / unknown
	MASignal         string   `json:"ma_signal"` // golden_cross / death_cross / *_state / neutral
	RSISignal        string   `json:"rsi_signal,omitempty"`
}
