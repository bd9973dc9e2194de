// Package marketdata provides the upstream market-data client: quotes,
// daily OHLCV history, fundamentals, and the earnings calendar.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/stockflow/engine/internal/common"
	"github.com/stockflow/engine/internal/models"
)

// flexFloat64 handles JSON values that may be either a number or a string.
type flexFloat64 float64

func (f *flexFloat64) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = flexFloat64(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" || s == "N/A" {
			*f = 0
			return nil
		}
		num, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexFloat64(num)
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into float64", string(data))
}

const (
	DefaultBaseURL   = "https://eodhd.com/api"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second
)

// Client talks to the market-data API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new market-data client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents an upstream API error.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("market-data API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("url", c.baseURL+path).Msg("market-data API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// Quote returns a best-effort realtime quote.
func (c *Client) Quote(ctx context.Context, ticker string) (*models.Quote, error) {
	var raw quoteResponse
	if err := c.get(ctx, fmt.Sprintf("/real-time/%s", ticker), nil, &raw); err != nil {
		return nil, err
	}

	q := &models.Quote{
		Ticker:        ticker,
		Price:         raw.Close.ptr(),
		PreviousClose: raw.PreviousClose.ptr(),
		Open:          raw.Open.ptr(),
		DayHigh:       raw.High.ptr(),
		DayLow:        raw.Low.ptr(),
		Volume:        raw.Volume.ptr(),
		LastUpdated:   time.Now().UTC().Format(time.RFC3339),
	}
	if raw.Timestamp > 0 {
		q.LastUpdated = time.Unix(raw.Timestamp, 0).UTC().Format(time.RFC3339)
	}
	return q, nil
}

// History returns daily OHLCV candles in [from, to], oldest first.
func (c *Client) History(ctx context.Context, ticker string, from, to time.Time) ([]models.Candle, error) {
	params := url.Values{}
	params.Set("period", "d")
	params.Set("order", "a")
	if !from.IsZero() {
		params.Set("from", from.Format("2006-01-02"))
	}
	if !to.IsZero() {
		params.Set("to", to.Format("2006-01-02"))
	}

	var bars []eodBarResponse
	if err := c.get(ctx, fmt.Sprintf("/eod/%s", ticker), params, &bars); err != nil {
		return nil, err
	}

	candles := make([]models.Candle, 0, len(bars))
	for _, bar := range bars {
		date, err := time.Parse("2006-01-02", bar.Date)
		if err != nil {
			continue
		}
		candles = append(candles, models.Candle{
			Date:   date,
			Open:   bar.Open.ptr(),
			High:   bar.High.ptr(),
			Low:    bar.Low.ptr(),
			Close:  bar.Close.ptr(),
			Volume: bar.Volume.ptr(),
		})
	}
	return candles, nil
}

// Statements returns the merged fundamentals bundle for a ticker.
func (c *Client) Statements(ctx context.Context, ticker string) (*models.FinancialSnapshot, error) {
	var raw fundamentalsResponse
	if err := c.get(ctx, fmt.Sprintf("/fundamentals/%s", ticker), nil, &raw); err != nil {
		return nil, err
	}
	return raw.toSnapshot(ticker), nil
}

// NextEarningsDate returns the next scheduled earnings date as YYYY-MM-DD,
// or "" when the calendar has none.
func (c *Client) NextEarningsDate(ctx context.Context, ticker string) (string, error) {
	params := url.Values{}
	params.Set("symbols", ticker)
	params.Set("from", time.Now().UTC().Format("2006-01-02"))

	var raw earningsCalendarResponse
	if err := c.get(ctx, "/calendar/earnings", params, &raw); err != nil {
		return "", err
	}

	next := ""
	for _, e := range raw.Earnings {
		if e.ReportDate == "" {
			continue
		}
		if next == "" || e.ReportDate < next {
			next = e.ReportDate
		}
	}
	return next, nil
}

// CompanyProfile returns the company's name and website.
func (c *Client) CompanyProfile(ctx context.Context, ticker string) (*models.CompanyProfile, error) {
	var raw struct {
		General generalSection `json:"General"`
	}
	if err := c.get(ctx, fmt.Sprintf("/fundamentals/%s", ticker), url.Values{"filter": {"General"}}, &raw); err != nil {
		return nil, err
	}
	return &models.CompanyProfile{
		Ticker:  ticker,
		Name:    raw.General.Name,
		Website: raw.General.WebURL,
		Sector:  raw.General.Sector,
	}, nil
}
