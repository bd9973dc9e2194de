// Package interfaces defines the service and client contracts used for
// dependency injection across the engine.
package interfaces

import (
	"context"
	"time"

	"github.com/stockflow/engine/internal/models"
)

// MarketDataClient is the upstream market-data adapter: quotes, OHLCV
// history, financial statements, and the earnings calendar.
type MarketDataClient interface {
	// Quote returns a best-effort realtime quote.
	Quote(ctx context.Context, ticker string) (*models.Quote, error)

	// History returns daily OHLCV candles in [from, to].
	History(ctx context.Context, ticker string, from, to time.Time) ([]models.Candle, error)

	// Statements returns the full financial snapshot: statement tables,
	// company info, and valuation ratios.
	Statements(ctx context.Context, ticker string) (*models.FinancialSnapshot, error)

	// NextEarningsDate returns the next scheduled earnings date as
	// YYYY-MM-DD, or "" when the calendar has none.
	NextEarningsDate(ctx context.Context, ticker string) (string, error)

	// CompanyProfile returns the company's name and website.
	CompanyProfile(ctx context.Context, ticker string) (*models.CompanyProfile, error)
}

// FeedClient fetches and normalizes an RSS/Atom feed.
type FeedClient interface {
	Fetch(ctx context.Context, url string) ([]models.FeedItem, error)
}

// PageFetcher retrieves a bounded snapshot of a web page.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (*models.PageSnapshot, error)
}

// Searcher performs web searches for candidate discovery.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error)
}

// AIVerifier classifies a candidate page as an official IR surface or not.
type AIVerifier interface {
	VerifyIRPage(ctx context.Context, ticker, companyName string, page *models.PageSnapshot) (*models.IRVerdict, error)
}

// CardDispatcher submits an idempotent card-generation request to the
// downstream artifact service.
type CardDispatcher interface {
	GenerateCard(ctx context.Context, ticker, cardType string, route models.LLMRoute) error
}
