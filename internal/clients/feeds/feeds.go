// Package feeds wraps RSS/Atom parsing and normalizes aggregator links back
// to their publisher URLs.
package feeds

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/stockflow/engine/internal/common"
	"github.com/stockflow/engine/internal/models"
)

// Client fetches and normalizes feeds.
type Client struct {
	parser *gofeed.Parser
	logger *common.Logger
}

// NewClient creates a feed client.
func NewClient(logger *common.Logger, timeout time.Duration) *Client {
	parser := gofeed.NewParser()
	parser.UserAgent = "Mozilla/5.0 (compatible; stockflow/1.0)"
	parser.Client = &http.Client{Timeout: timeout}
	return &Client{parser: parser, logger: logger}
}

// GoogleNewsURL builds a Google News search feed URL for a query.
func GoogleNewsURL(query string) string {
	return fmt.Sprintf("https://news.google.com/rss/search?q=%s&hl=en-US&gl=US&ceid=US:en",
		url.QueryEscape(query))
}

// Fetch retrieves a feed and returns normalized items. Aggregator redirect
// links are unwrapped to the publisher URL where possible.
func (c *Client) Fetch(ctx context.Context, feedURL string) ([]models.FeedItem, error) {
	feed, err := c.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", feedURL, err)
	}

	items := make([]models.FeedItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		title, source := splitTitleSource(item.Title)
		link := ResolveLink(item)
		if source == "" {
			source = hostOf(link)
		}

		published := time.Time{}
		if item.PublishedParsed != nil {
			published = item.PublishedParsed.UTC()
		} else if item.UpdatedParsed != nil {
			published = item.UpdatedParsed.UTC()
		}

		items = append(items, models.FeedItem{
			Title:     title,
			Link:      link,
			RawLink:   item.Link,
			Source:    source,
			Summary:   strings.TrimSpace(item.Description),
			Published: published,
		})
	}

	c.logger.Debug().Str("feed", feedURL).Int("items", len(items)).Msg("feed fetched")
	return items, nil
}

// ResolveLink unwraps an aggregator item link to the publisher URL. Order:
// feedburner origLink extension, then redirect query params, then an
// http(s) URL embedded in the redirect path.
func ResolveLink(item *gofeed.Item) string {
	if ext, ok := item.Extensions["feedburner"]; ok {
		if origs, ok := ext["origLink"]; ok && len(origs) > 0 && origs[0].Value != "" {
			return origs[0].Value
		}
	}
	return UnwrapRedirect(item.Link)
}

// UnwrapRedirect extracts the destination URL from an aggregator redirect
// link. The raw link is returned unchanged when no destination is found.
func UnwrapRedirect(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}

	for _, param := range []string{"url", "q", "u"} {
		if dest := u.Query().Get(param); strings.HasPrefix(dest, "http") {
			return repairScheme(dest)
		}
	}

	// Some redirects embed the destination directly in the path.
	if idx := strings.Index(u.Path, "http"); idx >= 0 {
		return repairScheme(u.Path[idx:])
	}

	return repairScheme(link)
}

// repairScheme fixes URLs mangled by path normalization: a collapsed
// "http:/host" separator or a scheme-relative "//host" prefix.
func repairScheme(raw string) string {
	if strings.HasPrefix(raw, "http:/") && !strings.HasPrefix(raw, "http://") {
		return "http://" + strings.TrimPrefix(raw, "http:/")
	}
	if strings.HasPrefix(raw, "https:/") && !strings.HasPrefix(raw, "https://") {
		return "https://" + strings.TrimPrefix(raw, "https:/")
	}
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}
	return raw
}

// splitTitleSource splits an aggregator headline of the form
// "Headline - Publisher" into its parts.
func splitTitleSource(title string) (string, string) {
	idx := strings.LastIndex(title, " - ")
	if idx <= 0 {
		return strings.TrimSpace(title), ""
	}
	return strings.TrimSpace(title[:idx]), strings.TrimSpace(title[idx+3:])
}

func hostOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
