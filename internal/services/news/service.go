// Package news owns article ingest: feed collection, canonicalization,
// dedupe, filtering, body extraction, and persistence, plus the staged
// AI-context artifacts built from the persisted articles.
package news

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/stockflow/engine/internal/common"
	"github.com/stockflow/engine/internal/interfaces"
	"github.com/stockflow/engine/internal/models"
	"github.com/stockflow/engine/internal/registry"
	"github.com/stockflow/engine/internal/storage"
)

// ArticleVersion tags the persisted article schema.
const ArticleVersion = "news_v1"

// Service implements interfaces.NewsService.
type Service struct {
	logger   *common.Logger
	config   *common.Config
	gateway  *storage.Gateway
	registry *registry.Registry
	feeds    interfaces.FeedClient
	pages    interfaces.PageFetcher

	feedURL func(query string) string
	now     func() time.Time
}

// NewService creates the news service. feedURL builds the default search
// feed for entities with no configured feeds.
func NewService(logger *common.Logger, config *common.Config, gateway *storage.Gateway, reg *registry.Registry, feeds interfaces.FeedClient, pages interfaces.PageFetcher, feedURL func(string) string) *Service {
	return &Service{
		logger:   logger,
		config:   config,
		gateway:  gateway,
		registry: reg,
		feeds:    feeds,
		pages:    pages,
		feedURL:  feedURL,
		now:      time.Now,
	}
}

// CrawlEntity ingests fresh articles for one entity key. A failure on one
// entry skips that entry, never the crawl.
func (s *Service) CrawlEntity(ctx context.Context, entityKey, date string, force bool, maxArticles int) (*models.CrawlResult, error) {
	entry, ok := s.registry.Get(entityKey)
	if !ok {
		return nil, fmt.Errorf("%w: unknown entity %q", common.ErrNotFound, entityKey)
	}
	if date == "" {
		date = common.DateString(s.now().UTC())
	}
	if maxArticles <= 0 {
		maxArticles = entry.MaxArticles
	}
	if maxArticles <= 0 {
		maxArticles = s.config.News.MaxArticles()
	}
	maxAge := time.Duration(entry.MaxAgeHours) * time.Hour
	if maxAge <= 0 {
		maxAge = time.Duration(s.config.News.MaxAge()) * time.Hour
	}

	manifest, err := s.gateway.LoadManifest(ctx, entry.Kind, date)
	if err != nil {
		return nil, err
	}

	items := s.collectItems(ctx, entry)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Published.After(items[j].Published)
	})

	result := &models.CrawlResult{}
	dirty := false
	for _, item := range items {
		if result.NewCount >= maxArticles {
			break
		}
		saved, err := s.processItem(ctx, entry, date, item, force, maxAge, manifest)
		if err != nil {
			s.logger.Warn().Str("entity", entry.Key).Str("link", item.Link).Err(err).Msg("article ingest failed")
			result.SkippedCount++
			continue
		}
		if saved {
			result.NewCount++
			dirty = true
		} else {
			result.SkippedCount++
		}
	}

	if dirty {
		if err := s.gateway.SaveManifest(ctx, entry.Kind, date, manifest); err != nil {
			return nil, err
		}
	}

	result.TotalCount = result.NewCount + result.SkippedCount
	s.logger.Info().Str("entity", entry.Key).Str("date", date).Int("new", result.NewCount).Int("skipped", result.SkippedCount).Msg("entity crawl done")
	return result, nil
}

// collectItems fetches every configured feed, falling back to the default
// search feed. A feed failure drops that feed only.
func (s *Service) collectItems(ctx context.Context, entry *registry.Entry) []models.FeedItem {
	urls := entry.Feeds
	if len(urls) == 0 {
		urls = []string{s.feedURL(defaultQuery(entry))}
	}

	var items []models.FeedItem
	for _, feedURL := range urls {
		fetched, err := s.feeds.Fetch(ctx, feedURL)
		if err != nil {
			s.logger.Warn().Str("entity", entry.Key).Str("feed", feedURL).Err(err).Msg("feed fetch failed")
			continue
		}
		items = append(items, fetched...)
	}
	return items
}

func defaultQuery(entry *registry.Entry) string {
	if entry.Kind == "equity" {
		return entry.Identifier + " stock"
	}
	if len(entry.Keywords) > 0 {
		return strings.Join(entry.Keywords, " ")
	}
	return entry.Identifier
}

// processItem runs one feed entry through the ingest pipeline. It returns
// true when a new article was persisted.
func (s *Service) processItem(ctx context.Context, entry *registry.Entry, date string, item models.FeedItem, force bool, maxAge time.Duration, manifest *models.Manifest) (bool, error) {
	if item.Published.IsZero() {
		return false, nil
	}
	if s.now().UTC().Sub(item.Published) > maxAge {
		return false, nil
	}

	hash := DedupeHash(item.Title, item.Source, item.Published)
	if !force && manifest.Contains(hash) {
		return false, nil
	}
	if !passesPreFilters(entry, item) {
		return false, nil
	}

	body := s.extractBody(ctx, item.Link)
	feedSummary := common.CollapseWhitespace(stripHTML(item.Summary))

	if entry.EnforceContentFilters && !passesContentFilters(entry, item, body, feedSummary) {
		return false, nil
	}

	article := buildArticle(entry, date, item, body, feedSummary)
	file := articleFileName(item, article.URL)
	key := s.gateway.ArticleDir(entry.Kind, date, entry.StoragePath) + "/" + file

	if err := s.gateway.WriteJSON(ctx, key, article); err != nil {
		return false, err
	}
	manifest.Append(hash, entry.StoragePath+"/"+file)
	return true, nil
}

// extractBody fetches the page and returns its extracted main text; any
// failure degrades to an empty body.
func (s *Service) extractBody(ctx context.Context, link string) string {
	if link == "" {
		return ""
	}
	page, err := s.pages.FetchPage(ctx, link)
	if err != nil {
		s.logger.Debug().Str("url", link).Err(err).Msg("body extraction failed")
		return ""
	}
	if page.StatusCode < 200 || page.StatusCode >= 300 {
		return ""
	}
	return page.Text
}

// passesPreFilters applies keyword and domain filters over the entry
// metadata before any page fetch.
func passesPreFilters(entry *registry.Entry, item models.FeedItem) bool {
	blob := strings.ToLower(item.Title + " " + item.Summary + " " + item.Source)

	if len(entry.RequiredKeywords) > 0 {
		found := false
		for _, kw := range entry.RequiredKeywords {
			if strings.Contains(blob, kw) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, kw := range entry.ExcludedKeywords {
		if strings.Contains(blob, kw) {
			return false
		}
	}

	domain := domainOf(item.Link)
	if len(entry.SourceAllowlist) > 0 && !domainMatches(domain, entry.SourceAllowlist) {
		return false
	}
	if domainMatches(domain, entry.SourceBlocklist) {
		return false
	}
	return true
}

// passesContentFilters applies the post-extraction quality gates.
func passesContentFilters(entry *registry.Entry, item models.FeedItem, body, summary string) bool {
	if entry.RequireFullText && body == "" {
		return false
	}
	if entry.MinContentLength > 0 && len(body) < entry.MinContentLength {
		return false
	}
	if body == "" && entry.MinSummaryLength > 0 && len(summary) < entry.MinSummaryLength {
		return false
	}
	if len(entry.RequiredKeywords) > 0 {
		blob := strings.ToLower(body + " " + summary)
		found := false
		for _, kw := range entry.RequiredKeywords {
			if strings.Contains(blob, kw) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// buildArticle assembles the persisted record.
func buildArticle(entry *registry.Entry, date string, item models.FeedItem, body, feedSummary string) *models.Article {
	urlHash := URLHash(item.Link)

	summary := common.Summarize(feedSummary, 3)
	if body != "" {
		summary = common.Summarize(body, 3)
	}

	article := &models.Article{
		ID:        fmt.Sprintf("%s-%s-%s", date, entry.Key, urlHash),
		Ticker:    entry.Identifier,
		Date:      date,
		Title:     item.Title,
		URL:       item.Link,
		RSSLink:   item.RawLink,
		Published: item.Published.UTC().Format(time.RFC3339),
		Source:    item.Source,
		Extraction: models.Extraction{
			Summary:    summary,
			Content:    body,
			FulltextOK: body != "",
		},
		Metrics: models.ArticleMetrics{
			TitleLen:   len(item.Title),
			ContentLen: len(body),
		},
		Version: ArticleVersion,
	}
	if entry.Kind != "equity" {
		article.NewsType = entry.Kind
		article.Topic = entry.Identifier
		article.TopicGroup = entry.Group
	}
	return article
}

// DedupeHash derives the manifest hash of a feed entry from its slugged
// title, slugged source, and publication minute in UTC.
func DedupeHash(title, source string, published time.Time) string {
	seed := fmt.Sprintf("%s|%s|%s", common.Slug(title), common.Slug(source), published.UTC().Format("2006-01-02 15:04"))
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// URLHash derives the short article identity hash from the canonical URL.
func URLHash(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])[:16]
}

func articleFileName(item models.FeedItem, canonical string) string {
	titleSlug := common.Slug(item.Title)
	if len(titleSlug) > 60 {
		titleSlug = titleSlug[:60]
	}
	return fmt.Sprintf("%s_%s_%s_%s.json",
		item.Published.UTC().Format("20060102150405"),
		common.Slug(item.Source),
		titleSlug,
		URLHash(canonical)[:8])
}

func stripHTML(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return doc.Text()
}

func domainOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func domainMatches(domain string, list []string) bool {
	for _, d := range list {
		d = strings.TrimPrefix(d, "www.")
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}
