// Package webfetch provides bounded page fetching, main-text extraction,
// and web search for candidate discovery.
package webfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/stockflow/engine/internal/common"
	"github.com/stockflow/engine/internal/models"
)

const (
	// FetchTimeout bounds one page fetch end to end.
	FetchTimeout = 8 * time.Second

	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes = 300_000

	// maxTextBytes caps the extracted text kept in a snapshot.
	maxTextBytes = 20_000

	browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// Client fetches pages and runs searches.
type Client struct {
	httpClient *http.Client
	logger     *common.Logger
}

// NewClient creates a web-fetch client.
func NewClient(logger *common.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: FetchTimeout},
		logger:     logger,
	}
}

// FetchPage retrieves a bounded snapshot of a page: final URL after
// redirects, status, title, main text, and absolute links. Non-2xx
// responses still produce a snapshot so callers can score them.
func (c *Client) FetchPage(ctx context.Context, pageURL string) (*models.PageSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	snapshot := &models.PageSnapshot{
		URL:         pageURL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}

	if !strings.Contains(snapshot.ContentType, "html") && snapshot.ContentType != "" {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return snapshot, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return snapshot, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return snapshot, nil
	}

	snapshot.Title = strings.TrimSpace(doc.Find("title").First().Text())
	snapshot.Text = ExtractMainText(doc)
	snapshot.Links = extractLinks(doc, resp.Request.URL)

	return snapshot, nil
}

// ExtractMainText pulls the readable body text from a parsed page:
// paragraph and heading text from the article/main region when present,
// falling back to the whole body.
func ExtractMainText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, nav, footer, header, aside").Remove()

	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("main").First()
	}
	if root.Length() == 0 {
		root = doc.Find("body").First()
	}

	var parts []string
	root.Find("h1, h2, h3, p, li").Each(func(_ int, s *goquery.Selection) {
		text := common.CollapseWhitespace(s.Text())
		if len(text) >= 20 {
			parts = append(parts, text)
		}
	})

	text := strings.Join(parts, "\n")
	if text == "" {
		text = common.CollapseWhitespace(root.Text())
	}
	if len(text) > maxTextBytes {
		text = text[:maxTextBytes]
	}
	return text
}

func extractLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		if seen[abs] {
			return
		}
		seen[abs] = true
		links = append(links, abs)
	})
	return links
}

// Search queries the DuckDuckGo HTML endpoint and returns up to limit
// results with redirect links unwrapped.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	endpoint := "https://html.duckduckgo.com/html/?q=" + url.QueryEscape(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", browserUA)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}

	var results []models.SearchResult
	doc.Find(".result").Each(func(_ int, s *goquery.Selection) {
		if limit > 0 && len(results) >= limit {
			return
		}
		anchor := s.Find(".result__a").First()
		href, _ := anchor.Attr("href")
		link := unwrapSearchLink(href)
		if link == "" {
			return
		}
		results = append(results, models.SearchResult{
			Title:   common.CollapseWhitespace(anchor.Text()),
			URL:     link,
			Snippet: common.CollapseWhitespace(s.Find(".result__snippet").Text()),
		})
	})

	c.logger.Debug().Str("query", query).Int("results", len(results)).Msg("web search")
	return results, nil
}

// unwrapSearchLink extracts the destination from a search redirect link
// (the "uddg" parameter), tolerating scheme-relative hrefs.
func unwrapSearchLink(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if dest := u.Query().Get("uddg"); dest != "" {
		return dest
	}
	if strings.HasPrefix(href, "http") {
		return href
	}
	return ""
}
