package models

import "time"

// CompanyProfile is the minimal company identity used by the report-source
// resolver.
type CompanyProfile struct {
	Ticker  string `json:"ticker"`
	Name    string `json:"name"`
	Website string `json:"website,omitempty"`
	Sector  string `json:"sector,omitempty"`
}

// FeedItem is one entry from an RSS/Atom feed, normalized.
type FeedItem struct {
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	RawLink   string    `json:"raw_link,omitempty"`
	Source    string    `json:"source"`
	Summary   string    `json:"summary,omitempty"`
	Published time.Time `json:"published"`
}

// SearchResult is one web-search hit used for candidate discovery.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}
