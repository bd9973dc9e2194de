// Package cards provides the client for the downstream card-generation
// service used by the batch orchestrator.
package cards

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/stockflow/engine/internal/common"
	"github.com/stockflow/engine/internal/models"
)

const DefaultTimeout = 300 * time.Second

// Client talks to the card-generation service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new card-service client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// GenerateCard asks the card service to build one (ticker, card_type)
// artifact. The call is idempotent on the service side; re-dispatching an
// already generated card is a no-op there.
func (c *Client) GenerateCard(ctx context.Context, ticker, cardType string, route models.LLMRoute) error {
	params := url.Values{}
	params.Set("ticker", ticker)
	if route.Backend != "" {
		params.Set("preferred_llm_backend", route.Backend)
	}
	if route.Model != "" {
		params.Set("model_name", route.Model)
	}

	reqURL := fmt.Sprintf("%s/card/%s?%s", c.baseURL, url.PathEscape(cardType), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("ticker", ticker).Str("card_type", cardType).Str("backend", route.Backend).Msg("card request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("card service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("card service returned %d for %s/%s: %s", resp.StatusCode, ticker, cardType, string(body))
	}
	return nil
}
