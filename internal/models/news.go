package models

// Extraction holds the body-extraction result for one article.
type Extraction struct {
	Summary    string `json:"summary"`
	Content    string `json:"content"`
	FulltextOK bool   `json:"fulltext_ok"`
}

// ArticleMetrics holds length metrics used by downstream quality filters.
type ArticleMetrics struct {
	TitleLen   int `json:"title_len"`
	ContentLen int `json:"content_len"`
}

// Article is the canonical persisted news record.
// ID = "{date}-{entity_id}-{url_hash[:16]}".
type Article struct {
	ID         string         `json:"id"`
	Ticker     string         `json:"ticker"`
	Date       string         `json:"date"`
	Title      string         `json:"title"`
	URL        string         `json:"url"`
	RSSLink    string         `json:"rss_link,omitempty"`
	Published  string         `json:"published"`
	Source     string         `json:"source"`
	Extraction Extraction     `json:"extraction"`
	Metrics    ArticleMetrics `json:"metrics"`
	NewsType   string         `json:"news_type,omitempty"`
	Topic      string         `json:"topic,omitempty"`
	TopicGroup string         `json:"topic_group,omitempty"`
	Version    string         `json:"version"`
}

// Manifest tracks article hashes and files for one (entity group, date);
// enables O(1) membership tests during dedupe.
type Manifest struct {
	Hashes []string `json:"hashes"`
	Files  []string `json:"files"`
}

// Contains reports whether hash is already in the manifest.
func (m *Manifest) Contains(hash string) bool {
	for _, h := range m.Hashes {
		if h == hash {
			return true
		}
	}
	return false
}

// Append records an article write. Hashes and Files grow in lockstep.
func (m *Manifest) Append(hash, file string) {
	m.Hashes = append(m.Hashes, hash)
	m.Files = append(m.Files, file)
}

// CrawlResult reports one entity crawl outcome.
type CrawlResult struct {
	NewCount     int `json:"new_count"`
	SkippedCount int `json:"skipped_count"`
	TotalCount   int `json:"total_count"`
}

// AIContextResult reports the artifacts produced by the AI-context pipeline.
type AIContextResult struct {
	SavedSteps map[int]string `json:"saved_steps"`
	FinalPath  string         `json:"final_path"`
}
