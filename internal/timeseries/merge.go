// Package timeseries merges persisted market series with freshly fetched
// slices. Merges are idempotent: replaying the same new slice leaves the
// result unchanged.
package timeseries

import (
	"sort"
	"time"

	"github.com/stockflow/engine/internal/models"
)

// MergeStatementRows combines old and new statement rows keyed by the date
// string. Collisions resolve to the new row. The result is strictly sorted
// by date descending.
func MergeStatementRows(old, fresh []models.StatementRow) []models.StatementRow {
	byDate := make(map[string]models.StatementRow, len(old)+len(fresh))
	for _, row := range old {
		byDate[row.Date] = row
	}
	for _, row := range fresh {
		byDate[row.Date] = row
	}

	merged := make([]models.StatementRow, 0, len(byDate))
	for _, row := range byDate {
		merged = append(merged, row)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Date > merged[j].Date })
	return merged
}

// MergeSnapshot folds a freshly fetched snapshot into the persisted one.
// Statement lists are merged per kind; scalar sections (info, valuations,
// cache_meta, fetched_at) are replaced wholesale by the new snapshot's
// values.
func MergeSnapshot(old, fresh *models.FinancialSnapshot) *models.FinancialSnapshot {
	if old == nil {
		return fresh
	}
	if fresh == nil {
		return old
	}

	kinds := make(map[string]bool, len(old.Statements)+len(fresh.Statements))
	for kind := range old.Statements {
		kinds[kind] = true
	}
	for kind := range fresh.Statements {
		kinds[kind] = true
	}

	out := *fresh
	out.Statements = make(map[string][]models.StatementRow, len(kinds))
	for kind := range kinds {
		out.Statements[kind] = MergeStatementRows(old.Statements[kind], fresh.Statements[kind])
	}
	return &out
}

// MergeCandles combines old and new OHLCV rows. Dates are normalized to UTC
// midnight; duplicates are eliminated keeping the last occurrence (new rows
// are appended after old, so fresh data wins); the result is sorted
// ascending by date.
func MergeCandles(old, fresh []models.Candle) []models.Candle {
	combined := make([]models.Candle, 0, len(old)+len(fresh))
	combined = append(combined, old...)
	combined = append(combined, fresh...)

	byDate := make(map[string]models.Candle, len(combined))
	order := make([]string, 0, len(combined))
	for _, c := range combined {
		c.Date = midnightUTC(c.Date)
		key := c.DateKey()
		if _, seen := byDate[key]; !seen {
			order = append(order, key)
		}
		byDate[key] = c
	}

	merged := make([]models.Candle, 0, len(order))
	for _, key := range order {
		merged = append(merged, byDate[key])
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Date.Before(merged[j].Date) })
	return merged
}

// LastDate returns the date of the newest candle, or the zero time for an
// empty series.
func LastDate(candles []models.Candle) time.Time {
	if len(candles) == 0 {
		return time.Time{}
	}
	return candles[len(candles)-1].Date
}

func midnightUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
