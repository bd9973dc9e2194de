// Package gemini provides the AI-verification client used by the
// report-source resolver.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/stockflow/engine/internal/common"
	"github.com/stockflow/engine/internal/models"
)

const (
	DefaultModel = "gemini-3-flash-preview"

	// maxPageText bounds how much page text is sent per verification.
	maxPageText = 6000
)

// Client wraps the Gemini API.
type Client struct {
	client *genai.Client
	model  string
	logger *common.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithModel sets the model to use
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new Gemini client
func NewClient(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	c := &Client{
		client: genaiClient,
		model:  DefaultModel,
		logger: common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// GenerateContent generates text from a prompt.
func (c *Client) GenerateContent(ctx context.Context, prompt string) (string, error) {
	c.logger.Debug().Str("model", c.model).Msg("Generating content")

	contents := genai.Text(prompt)
	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	return extractTextFromResponse(result)
}

// VerifyIRPage asks the model whether a page is a company's official
// investor-relations surface. The answer is a strict-JSON verdict.
func (c *Client) VerifyIRPage(ctx context.Context, ticker, companyName string, page *models.PageSnapshot) (*models.IRVerdict, error) {
	text := page.Text
	if len(text) > maxPageText {
		text = text[:maxPageText]
	}

	prompt := fmt.Sprintf(`You are verifying investor-relations pages.
Company: %s (ticker %s)
Page URL: %s
Page title: %s
Page text (truncated):
%s

Answer with JSON only, no markdown fences:
{"is_official_ir_page": bool, "confidence": number between 0 and 1, "page_kind": "ir_home"|"financial_reports"|"sec_filings"|"other", "reason": "one sentence"}`,
		companyName, ticker, page.FinalURL, page.Title, text)

	raw, err := c.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, err
	}

	verdict, err := parseVerdict(raw)
	if err != nil {
		return nil, fmt.Errorf("unparseable verification answer: %w", err)
	}
	return verdict, nil
}

// parseVerdict decodes the model answer, tolerating markdown fences and
// leading prose around the JSON object.
func parseVerdict(raw string) (*models.IRVerdict, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in answer")
	}

	var verdict models.IRVerdict
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &verdict); err != nil {
		return nil, err
	}
	if verdict.Confidence < 0 {
		verdict.Confidence = 0
	}
	if verdict.Confidence > 1 {
		verdict.Confidence = 1
	}
	return &verdict, nil
}

// extractTextFromResponse extracts text from a generate content response
func extractTextFromResponse(result *genai.GenerateContentResponse) (string, error) {
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content generated")
	}

	text := ""
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			text += part.Text
		}
	}

	if text == "" {
		return "", fmt.Errorf("no text in response")
	}
	return text, nil
}
