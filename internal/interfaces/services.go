package interfaces

import (
	"context"

	"github.com/stockflow/engine/internal/models"
)

// FinancialService owns the financial snapshot lifecycle: refresh policy,
// layered cache, and interpreted earnings.
type FinancialService interface {
	// RefreshFinancials runs the refresh policy and returns the merged
	// snapshot with its fundamental signal.
	RefreshFinancials(ctx context.Context, ticker string, force bool) (*models.InterpretedEarnings, error)

	// GetInterpretedEarnings serves the interpreted view through the
	// layered cache with singleflight.
	GetInterpretedEarnings(ctx context.Context, ticker string, force bool) (*models.InterpretedEarnings, error)
}

// TradingService owns OHLCV persistence, technical features, and analysis.
type TradingService interface {
	// RefreshTrading backfills or incrementally extends the persisted
	// series and returns the last candle date.
	RefreshTrading(ctx context.Context, ticker string) (string, error)

	// Analyze runs the factor model over the persisted series.
	Analyze(ctx context.Context, req models.AnalyzeRequest) (*models.AnalysisReport, error)

	// History returns the persisted series, newest first.
	History(ctx context.Context, ticker string, days int) ([]models.HistoricalRow, error)

	// Quote proxies the realtime quote from the market-data adapter.
	Quote(ctx context.Context, ticker string) (*models.Quote, error)

	// PriceSnapshot derives the latest close and day change from the
	// persisted series.
	PriceSnapshot(ctx context.Context, ticker string) (*models.PriceSnapshot, error)

	// MarketCandles returns the persisted series in wire form.
	MarketCandles(ctx context.Context, ticker string, days int) ([]models.MarketCandle, error)

	// Features computes the technical indicator snapshot.
	Features(ctx context.Context, ticker string) (*models.TechnicalFeatures, error)
}

// NewsService owns article ingest and the AI-context pipeline.
type NewsService interface {
	// CrawlEntity ingests fresh articles for one entity key.
	CrawlEntity(ctx context.Context, entityKey, date string, force bool, maxArticles int) (*models.CrawlResult, error)

	// BuildAIContext renders the per-day context artifacts for an entity.
	BuildAIContext(ctx context.Context, entityKey, date string, steps []int) (*models.AIContextResult, error)

	// ListDailyIndex returns a per-day artifact index ("ai_context" or
	// "analysis").
	ListDailyIndex(ctx context.Context, kind, date string) ([]models.IndexEntry, error)
}

// ReportSourceService resolves a company's investor-relations surface.
type ReportSourceService interface {
	Resolve(ctx context.Context, ticker string, force bool) (*models.ReportSource, error)
}

// BatchService runs the two-phase daily pipeline.
type BatchService interface {
	RunDaily(ctx context.Context) (*models.BatchRunResult, error)
}
