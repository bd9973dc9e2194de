// Package trading owns the daily OHLCV lifecycle: gated incremental
// refresh with a cold backfill, technical features, and the factor-model
// analysis with its baseline cache.
package trading

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/stockflow/engine/internal/cache"
	"github.com/stockflow/engine/internal/common"
	"github.com/stockflow/engine/internal/interfaces"
	"github.com/stockflow/engine/internal/models"
	"github.com/stockflow/engine/internal/signals"
	"github.com/stockflow/engine/internal/storage"
	"github.com/stockflow/engine/internal/timeseries"
)

// backfillPadDays widens the cold backfill window a little past the
// configured year depth so the 200-day indicators have a full tail.
const backfillPadDays = 10

// Service implements interfaces.TradingService.
type Service struct {
	logger  *common.Logger
	config  *common.Config
	gateway *storage.Gateway
	client  interfaces.MarketDataClient

	gate *cache.RefreshGate
	now  func() time.Time
}

// NewService creates the trading service.
func NewService(logger *common.Logger, config *common.Config, gateway *storage.Gateway, client interfaces.MarketDataClient) *Service {
	return &Service{
		logger:  logger,
		config:  config,
		gateway: gateway,
		client:  client,
		gate:    cache.NewRefreshGate(config.Cache.MinRefreshInterval(), config.Cache.FailBackoff()),
		now:     time.Now,
	}
}

// RefreshTrading backfills or incrementally extends the persisted series.
// A cold ticker gets the full year depth; a warm one re-fetches a bounded
// back-look so upstream corrections are absorbed. The refresh gate turns
// repeat calls inside the minimum interval into cheap reads.
func (s *Service) RefreshTrading(ctx context.Context, ticker string) (string, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return "", fmt.Errorf("%w: empty ticker", common.ErrInvalidInput)
	}

	existing, err := s.loadCandles(ctx, ticker)
	if err != nil {
		return "", err
	}

	if !s.gate.Allow(ticker) {
		s.logger.Debug().Str("ticker", ticker).Msg("trading refresh gated, serving persisted series")
		return lastDateKey(existing), nil
	}

	now := s.now().UTC()
	from := s.fetchStart(existing, now)

	fresh, err := s.client.History(ctx, ticker, from, now)
	if err != nil {
		s.gate.RecordFail(ticker)
		return "", fmt.Errorf("%w: history fetch for %s: %v", common.ErrUpstream, ticker, err)
	}
	fresh = dropFutureCandles(fresh, now)

	merged := timeseries.MergeCandles(existing, fresh)
	if len(merged) == 0 {
		s.gate.RecordFail(ticker)
		return "", fmt.Errorf("%w: empty history for %s", common.ErrUpstream, ticker)
	}

	if err := s.saveCandles(ctx, ticker, merged); err != nil {
		s.gate.RecordFail(ticker)
		return "", err
	}
	s.gate.RecordOK(ticker)

	s.logger.Info().Str("ticker", ticker).Int("rows", len(merged)).Str("last_date", lastDateKey(merged)).Msg("trading series refreshed")

	s.writeBaselineAnalysis(ctx, ticker, merged)
	return lastDateKey(merged), nil
}

// fetchStart picks the fetch window: cold backfill depth for an empty
// series, the incremental back-look otherwise.
func (s *Service) fetchStart(existing []models.Candle, now time.Time) time.Time {
	if len(existing) == 0 {
		return now.AddDate(-s.config.Engine.Years(), 0, -backfillPadDays)
	}
	last := existing[len(existing)-1].Date
	return last.AddDate(0, 0, -s.config.Engine.LookbackDays())
}

// Analyze runs the factor model over the persisted series. A baseline
// request is served from the fixed per-day path when present, and persisted
// there with put-if-absent when not.
func (s *Service) Analyze(ctx context.Context, req models.AnalyzeRequest) (*models.AnalysisReport, error) {
	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	if ticker == "" {
		return nil, fmt.Errorf("%w: empty ticker", common.ErrInvalidInput)
	}
	req.Ticker = ticker
	if req.Years <= 0 {
		req.Years = s.config.Engine.Years()
	}

	candles, err := s.loadCandles(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: no history for %s", common.ErrNotFound, ticker)
	}
	candles = trimToYears(candles, req.Years, s.now().UTC())
	date := lastDateKey(candles)

	if req.IsBaseline() {
		var cached models.AnalysisReport
		err := s.gateway.ReadJSON(ctx, s.gateway.AnalysisPath(ticker, date), &cached)
		if err == nil {
			cached.Meta.ServedFrom = "gcs-cache"
			return &cached, nil
		}
		if !errors.Is(err, storage.ErrBlobNotFound) {
			return nil, err
		}
	}

	report, err := signals.BuildReport(ticker, candles, req)
	if err != nil {
		return nil, err
	}
	s.stampMeta(report, req.Years)

	if req.IsBaseline() {
		if err := s.persistBaseline(ctx, ticker, date, report); err != nil {
			s.logger.Warn().Str("ticker", ticker).Err(err).Msg("baseline analysis persist failed")
		}
	}
	return report, nil
}

// History returns the persisted series, newest first, capped to days rows.
func (s *Service) History(ctx context.Context, ticker string, days int) ([]models.HistoricalRow, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	rows, err := s.loadRows(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		return nil, fmt.Errorf("%w: no history for %s", common.ErrNotFound, ticker)
	}
	if days > 0 && len(rows) > days {
		rows = rows[:days]
	}
	return rows, nil
}

// Quote proxies the realtime quote from the market-data adapter.
func (s *Service) Quote(ctx context.Context, ticker string) (*models.Quote, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, fmt.Errorf("%w: empty ticker", common.ErrInvalidInput)
	}
	quote, err := s.client.Quote(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("%w: quote fetch for %s: %v", common.ErrUpstream, ticker, err)
	}
	return quote, nil
}

// PriceSnapshot derives the latest close and day change from the persisted
// series.
func (s *Service) PriceSnapshot(ctx context.Context, ticker string) (*models.PriceSnapshot, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	candles, err := s.loadCandles(ctx, ticker)
	if err != nil {
		return nil, err
	}

	closes := signals.ValidCloses(candles)
	if len(closes) == 0 {
		return nil, fmt.Errorf("%w: no close data for %s", common.ErrNotFound, ticker)
	}

	snapshot := &models.PriceSnapshot{Price: round2(closes[len(closes)-1])}
	if len(closes) >= 2 {
		prev := closes[len(closes)-2]
		if prev != 0 {
			snapshot.ChangePercent = round2((closes[len(closes)-1]/prev - 1) * 100)
		}
	}
	return snapshot, nil
}

// MarketCandles returns the persisted series in wire form, oldest first,
// skipping incomplete rows.
func (s *Service) MarketCandles(ctx context.Context, ticker string, days int) ([]models.MarketCandle, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	candles, err := s.loadCandles(ctx, ticker)
	if err != nil {
		return nil, err
	}

	out := make([]models.MarketCandle, 0, len(candles))
	for _, c := range candles {
		if c.Close == nil {
			continue
		}
		out = append(out, models.MarketCandle{
			T: c.Date.UnixMilli(),
			O: c.Open,
			H: c.High,
			L: c.Low,
			C: c.Close,
			V: c.Volume,
		})
	}
	if days > 0 && len(out) > days {
		out = out[len(out)-days:]
	}
	return out, nil
}

// Features computes the technical indicator snapshot from the persisted
// series.
func (s *Service) Features(ctx context.Context, ticker string) (*models.TechnicalFeatures, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	candles, err := s.loadCandles(ctx, ticker)
	if err != nil {
		return nil, err
	}
	return signals.ComputeFeatures(candles)
}

// writeBaselineAnalysis persists the default-configuration report for the
// series' last date. Failures are logged, not propagated; a short series is
// simply not analyzable yet.
func (s *Service) writeBaselineAnalysis(ctx context.Context, ticker string, candles []models.Candle) {
	req := models.AnalyzeRequest{Ticker: ticker, Years: s.config.Engine.Years()}
	report, err := signals.BuildReport(ticker, candles, req)
	if err != nil {
		s.logger.Debug().Str("ticker", ticker).Err(err).Msg("baseline analysis skipped")
		return
	}
	s.stampMeta(report, req.Years)

	if err := s.persistBaseline(ctx, ticker, lastDateKey(candles), report); err != nil {
		s.logger.Warn().Str("ticker", ticker).Err(err).Msg("baseline analysis persist failed")
	}
}

// persistBaseline writes the report with put-if-absent and, on the winning
// write, appends the analysis daily index.
func (s *Service) persistBaseline(ctx context.Context, ticker, date string, report *models.AnalysisReport) error {
	path := s.gateway.AnalysisPath(ticker, date)
	written, err := s.gateway.WriteJSONIfAbsent(ctx, path, report)
	if err != nil {
		return err
	}
	if !written {
		return nil
	}
	entry := models.IndexEntry{Ticker: ticker, Path: path}
	return s.gateway.AppendIndex(ctx, s.gateway.AnalysisIndexPath(date), entry, s.now())
}

func (s *Service) stampMeta(report *models.AnalysisReport, years int) {
	report.Meta = models.AnalysisMeta{
		Provider:  "eodhd",
		Years:     years,
		Range:     fmt.Sprintf("%dy", years),
		FetchedAt: s.now().UTC().Format(time.RFC3339),
	}
}

func trimToYears(candles []models.Candle, years int, now time.Time) []models.Candle {
	cutoff := now.AddDate(-years, 0, 0)
	for i, c := range candles {
		if !c.Date.Before(cutoff) {
			return candles[i:]
		}
	}
	return nil
}

func dropFutureCandles(candles []models.Candle, now time.Time) []models.Candle {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	kept := candles[:0]
	for _, c := range candles {
		if c.Date.After(today) {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
