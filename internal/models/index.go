package models

// IndexEntry is one row of a per-day artifact index. Entries are unique per
// (ticker, path) and kept sorted by timestamp descending.
type IndexEntry struct {
	Ticker    string         `json:"ticker"`
	Path      string         `json:"path"`
	Timestamp string         `json:"timestamp"`
	Extra     map[string]any `json:"extra,omitempty"`
}
