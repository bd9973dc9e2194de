package trading

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/stockflow/engine/internal/models"
	"github.com/stockflow/engine/internal/storage"
)

// loadCandles reads the persisted series and returns it sorted ascending by
// date. A missing blob is an empty series.
func (s *Service) loadCandles(ctx context.Context, ticker string) ([]models.Candle, error) {
	rows, err := s.loadRows(ctx, ticker)
	if err != nil {
		return nil, err
	}

	candles := make([]models.Candle, 0, len(rows))
	for _, row := range rows {
		date, err := time.Parse("2006-01-02", row.Date)
		if err != nil {
			s.logger.Warn().Str("ticker", ticker).Str("date", row.Date).Msg("dropping unparseable historical row")
			continue
		}
		candles = append(candles, models.Candle{
			Date:   date.UTC(),
			Open:   row.Open,
			High:   row.High,
			Low:    row.Low,
			Close:  row.Close,
			Volume: row.Volume,
		})
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Date.Before(candles[j].Date) })
	return candles, nil
}

// loadRows reads the persisted record form, which is kept newest first.
func (s *Service) loadRows(ctx context.Context, ticker string) ([]models.HistoricalRow, error) {
	var rows []models.HistoricalRow
	err := s.gateway.ReadJSON(ctx, s.gateway.HistoricalPath(ticker), &rows)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rows, nil
}

// saveCandles persists an ascending series in its newest-first record form.
func (s *Service) saveCandles(ctx context.Context, ticker string, candles []models.Candle) error {
	rows := make([]models.HistoricalRow, 0, len(candles))
	for i := len(candles) - 1; i >= 0; i-- {
		c := candles[i]
		rows = append(rows, models.HistoricalRow{
			Date:   c.DateKey(),
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		})
	}
	return s.gateway.WriteJSON(ctx, s.gateway.HistoricalPath(ticker), rows)
}

func lastDateKey(candles []models.Candle) string {
	if len(candles) == 0 {
		return ""
	}
	return candles[len(candles)-1].DateKey()
}
