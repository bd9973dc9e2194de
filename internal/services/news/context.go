package news

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/stockflow/engine/internal/common"
	"github.com/stockflow/engine/internal/models"
	"github.com/stockflow/engine/internal/registry"
	"github.com/stockflow/engine/internal/storage"
)

// condensedBlockLimit caps each step-2 article block.
const condensedBlockLimit = 1200

// defaultHighlightKeywords score step-2 highlight sentences when the entity
// configures none.
var defaultHighlightKeywords = []string{
	"earnings", "revenue", "guidance", "growth", "profit",
	"forecast", "outlook", "margin", "market",
}

// BuildAIContext renders the per-day context artifacts for an entity. Only
// the highest emitted step updates the daily index.
func (s *Service) BuildAIContext(ctx context.Context, entityKey, date string, steps []int) (*models.AIContextResult, error) {
	entry, ok := s.registry.Get(entityKey)
	if !ok {
		return nil, fmt.Errorf("%w: unknown entity %q", common.ErrNotFound, entityKey)
	}
	if date == "" {
		date = common.DateString(s.now().UTC())
	}
	if len(steps) == 0 {
		steps = s.config.Engine.Steps()
	}
	steps = append([]int(nil), steps...)
	sort.Ints(steps)

	articles, err := s.loadArticles(ctx, entry, date)
	if err != nil {
		return nil, err
	}

	entity := entityArtifactName(entry)
	highest := steps[len(steps)-1]
	result := &models.AIContextResult{SavedSteps: make(map[int]string)}

	for _, step := range steps {
		var text string
		switch step {
		case 1:
			text = s.renderStep1(entry, entity, date, articles)
		case 2:
			text = s.renderStep2(entry, entity, date, articles)
		default:
			s.logger.Warn().Int("step", step).Msg("unknown ai-context step, skipping")
			continue
		}

		stamp := s.now().UTC().Format("20060102150405")
		path := s.gateway.AIContextPath(entity, date, step, stamp)
		if err := s.gateway.WriteText(ctx, path, text); err != nil {
			return nil, err
		}
		result.SavedSteps[step] = path

		if step == highest {
			idxEntry := models.IndexEntry{Ticker: entity, Path: path}
			if err := s.gateway.AppendIndex(ctx, s.gateway.AIContextIndexPath(date), idxEntry, s.now()); err != nil {
				return nil, err
			}
			result.FinalPath = path
		}
	}
	return result, nil
}

// ListDailyIndex returns the per-day artifact index for "ai_context" or
// "analysis".
func (s *Service) ListDailyIndex(ctx context.Context, kind, date string) ([]models.IndexEntry, error) {
	switch kind {
	case "ai_context":
		return s.gateway.LoadIndex(ctx, s.gateway.AIContextIndexPath(date))
	case "analysis":
		return s.gateway.LoadIndex(ctx, s.gateway.AnalysisIndexPath(date))
	default:
		return nil, fmt.Errorf("%w: unknown index kind %q", common.ErrInvalidInput, kind)
	}
}

// loadArticles reads every persisted article for (entity, date).
func (s *Service) loadArticles(ctx context.Context, entry *registry.Entry, date string) ([]models.Article, error) {
	prefix := s.gateway.ArticleDir(entry.Kind, date, entry.StoragePath) + "/"
	listing, err := s.gateway.Store().List(ctx, storage.ListOptions{Prefix: prefix})
	if err != nil {
		return nil, err
	}

	articles := make([]models.Article, 0, len(listing.Blobs))
	for _, blob := range listing.Blobs {
		if !strings.HasSuffix(blob.Key, ".json") {
			continue
		}
		var article models.Article
		if err := s.gateway.ReadJSON(ctx, blob.Key, &article); err != nil {
			s.logger.Warn().Str("key", blob.Key).Err(err).Msg("skipping unreadable article")
			continue
		}
		articles = append(articles, article)
	}
	return articles, nil
}

// renderStep1 emits the raw concatenation: every qualifying article with a
// header block and its full body or summary.
func (s *Service) renderStep1(entry *registry.Entry, entity, date string, articles []models.Article) string {
	qualified := make([]models.Article, 0, len(articles))
	for _, a := range articles {
		if (a.Extraction.FulltextOK && a.Metrics.ContentLen > 50) || len(a.Extraction.Summary) > 20 {
			qualified = append(qualified, a)
		}
	}
	sort.SliceStable(qualified, func(i, j int) bool {
		ai, aj := qualified[i], qualified[j]
		if ai.Extraction.FulltextOK != aj.Extraction.FulltextOK {
			return ai.Extraction.FulltextOK
		}
		if ai.Metrics.ContentLen != aj.Metrics.ContentLen {
			return ai.Metrics.ContentLen > aj.Metrics.ContentLen
		}
		return ai.Published > aj.Published
	})

	var b strings.Builder
	s.writeHeader(&b, entity, date, 1)

	if len(qualified) == 0 {
		fmt.Fprintf(&b, "No qualifying articles for %s on %s.\n", entity, date)
		return b.String()
	}

	for _, a := range qualified {
		writeArticleHeader(&b, a)
		if a.Extraction.FulltextOK {
			b.WriteString(a.Extraction.Content)
		} else {
			b.WriteString(a.Extraction.Summary)
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

// renderStep2 emits the condensed artifact: full-body articles only, each
// reduced to its summary plus scored highlight sentences.
func (s *Service) renderStep2(entry *registry.Entry, entity, date string, articles []models.Article) string {
	qualified := make([]models.Article, 0, len(articles))
	for _, a := range articles {
		if a.Extraction.FulltextOK {
			qualified = append(qualified, a)
		}
	}
	sort.SliceStable(qualified, func(i, j int) bool {
		if qualified[i].Metrics.ContentLen != qualified[j].Metrics.ContentLen {
			return qualified[i].Metrics.ContentLen > qualified[j].Metrics.ContentLen
		}
		return qualified[i].Published > qualified[j].Published
	})
	if limit := s.config.News.MaxArticles(); len(qualified) > limit {
		qualified = qualified[:limit]
	}

	keywords := entry.Keywords
	if len(keywords) == 0 {
		keywords = defaultHighlightKeywords
	}

	var b strings.Builder
	s.writeHeader(&b, entity, date, 2)

	if len(qualified) == 0 {
		fmt.Fprintf(&b, "No full-text articles for %s on %s.\n", entity, date)
		return b.String()
	}

	for _, a := range qualified {
		writeArticleHeader(&b, a)
		b.WriteString(condensedBlock(a, keywords))
		b.WriteString("\n\n")
	}
	return b.String()
}

func (s *Service) writeHeader(b *strings.Builder, entity, date string, step int) {
	fmt.Fprintf(b, "--- News AI Context for %s on %s ---\n", entity, date)
	fmt.Fprintf(b, "Generated: %s (step %d)\n\n",
		s.now().In(s.config.Engine.Location()).Format("2006-01-02 15:04:05 MST"), step)
}

func writeArticleHeader(b *strings.Builder, a models.Article) {
	fmt.Fprintf(b, "Title: %s\nSource: %s\nPublished: %s\nURL: %s\n\n",
		a.Title, a.Source, a.Published, a.URL)
}

// condensedBlock builds the step-2 article block: summary, then up to three
// highlight sentences, truncated at the block limit.
func condensedBlock(a models.Article, keywords []string) string {
	summary := a.Extraction.Summary
	if summary == "" {
		summary = common.Summarize(a.Extraction.Content, 3)
	}

	block := summary
	if lines := highlightSentences(a.Extraction.Content, summary, keywords, 3); len(lines) > 0 {
		block += "\nHighlights: " + strings.Join(lines, " ")
	}
	return common.Truncate(block, condensedBlockLimit)
}

// highlightSentences scores each body sentence (+3 per keyword hit, +1 when
// it carries a number) and returns the top max scorers in document order.
// Sentences already in the summary are not repeated.
func highlightSentences(body, summary string, keywords []string, max int) []string {
	type scored struct {
		idx   int
		score int
		text  string
	}

	var candidates []scored
	for idx, sentence := range common.SplitSentences(body) {
		if strings.Contains(summary, sentence) {
			continue
		}
		lower := strings.ToLower(sentence)
		score := 0
		for _, kw := range keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				score += 3
			}
		}
		if strings.ContainsAny(sentence, "0123456789") {
			score++
		}
		if score > 0 {
			candidates = append(candidates, scored{idx: idx, score: score, text: sentence})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].idx < candidates[j].idx
	})
	if len(candidates) > max {
		candidates = candidates[:max]
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].idx < candidates[j].idx })

	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.text)
	}
	return out
}

// entityArtifactName is the path segment artifacts are filed under: the
// upper-cased ticker for equities, the storage path otherwise.
func entityArtifactName(entry *registry.Entry) string {
	if entry.Kind == "equity" {
		return strings.ToUpper(entry.Identifier)
	}
	return entry.StoragePath
}
