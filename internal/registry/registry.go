// Package registry holds the dynamic entity registries: equities, topics,
// and persons, loaded from a local JSON file with an optional remote
// overlay, normalized, and indexed by alias.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/stockflow/engine/internal/common"
	"github.com/stockflow/engine/internal/storage"
)

// Entry is one normalized registry record.
type Entry struct {
	Key              string          `json:"key"`
	Identifier       string          `json:"identifier"`
	Kind             string          `json:"kind"` // equity / topic / person
	StoragePath      string          `json:"storage_path"`
	Group            string          `json:"group"`
	Keywords         []string        `json:"keywords,omitempty"`
	RequiredKeywords []string        `json:"required_keywords,omitempty"`
	ExcludedKeywords []string        `json:"excluded_keywords,omitempty"`
	SourceAllowlist  []string        `json:"source_allowlist,omitempty"`
	SourceBlocklist  []string        `json:"source_blocklist,omitempty"`
	Feeds            []string        `json:"feeds,omitempty"`
	MaxArticles      int             `json:"max_articles"`
	MaxAgeHours      int             `json:"max_age_hours"`
	RunEngines       map[string]bool `json:"run_engines,omitempty"`

	EnforceContentFilters bool `json:"enforce_content_filters,omitempty"`
	RequireFullText       bool `json:"require_full_text,omitempty"`
	MinContentLength      int  `json:"min_content_length,omitempty"`
	MinSummaryLength      int  `json:"min_summary_length,omitempty"`
}

// Registry is the alias-indexed entity store. Refresh replaces the whole
// index atomically.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry // canonical key -> entry
	aliases map[string]string // alias -> canonical key

	localPath string
	remoteKey string
	gateway   *storage.Gateway
	logger    *common.Logger
}

// NewRegistry creates a registry backed by a local file and an optional
// remote blob overlay. Either source may be empty.
func NewRegistry(logger *common.Logger, gateway *storage.Gateway, localPath, remoteKey string) *Registry {
	return &Registry{
		entries:   make(map[string]*Entry),
		aliases:   make(map[string]string),
		localPath: localPath,
		remoteKey: remoteKey,
		gateway:   gateway,
		logger:    logger,
	}
}

// Refresh reloads both sources and rebuilds the alias index. Remote entries
// overlay local ones with the same canonical key.
func (r *Registry) Refresh(ctx context.Context) error {
	var raw []map[string]any

	if r.localPath != "" {
		local, err := loadLocal(r.localPath)
		if err != nil {
			return err
		}
		raw = append(raw, local...)
	}

	if r.remoteKey != "" && r.gateway != nil {
		var remote []map[string]any
		err := r.gateway.ReadJSON(ctx, r.remoteKey, &remote)
		if err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
			return fmt.Errorf("failed to load remote registry %s: %w", r.remoteKey, err)
		}
		raw = append(raw, remote...)
	}

	entries := make(map[string]*Entry, len(raw))
	aliases := make(map[string]string, len(raw)*4)

	for _, record := range raw {
		entry := normalize(record)
		if entry.Key == "" {
			continue
		}
		entries[entry.Key] = entry
		// Later registration wins alias collisions.
		for _, alias := range aliasSet(entry) {
			aliases[alias] = entry.Key
		}
	}

	r.mu.Lock()
	r.entries = entries
	r.aliases = aliases
	r.mu.Unlock()

	r.logger.Info().Int("entries", len(entries)).Int("aliases", len(aliases)).Msg("registry refreshed")
	return nil
}

func loadLocal(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read registry %s: %w", path, err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse registry %s: %w", path, err)
	}
	return raw, nil
}

// Get resolves an entry by any alias. When the alias is unknown, the
// trailing segment after the last "/" or "." is tried before giving up.
func (r *Registry) Get(alias string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(alias))
	if key, ok := r.aliases[needle]; ok {
		return r.entries[key], true
	}

	if idx := strings.LastIndexAny(needle, "/."); idx >= 0 && idx+1 < len(needle) {
		if key, ok := r.aliases[needle[idx+1:]]; ok {
			return r.entries[key], true
		}
	}
	return nil, false
}

// All returns every entry, in no particular order.
func (r *Registry) All() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

// ByKind returns every entry of a kind.
func (r *Registry) ByKind(kind string) []*Entry {
	var out []*Entry
	for _, e := range r.All() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// normalize coerces one raw record into a canonical entry: lowercase key,
// slashified storage path, list-valued lowercase keyword fields, numeric
// and boolean coercion.
func normalize(record map[string]any) *Entry {
	entry := &Entry{
		Key:        strings.ToLower(strings.TrimSpace(asString(record, "key", "identifier", "ticker"))),
		Identifier: strings.TrimSpace(asString(record, "identifier", "ticker", "key")),
		Kind:       strings.ToLower(asString(record, "kind", "type", "target_type")),
		Group:      strings.ToLower(asString(record, "group", "category")),

		Keywords:         asStringList(record["keywords"]),
		RequiredKeywords: asStringList(firstPresent(record, "required_keywords", "require_keywords")),
		ExcludedKeywords: asStringList(firstPresent(record, "excluded_keywords", "exclude_keywords")),
		SourceAllowlist:  asStringList(record["source_allowlist"]),
		SourceBlocklist:  asStringList(record["source_blocklist"]),
		Feeds:            asURLList(record["feeds"]),

		MaxArticles: asInt(record["max_articles"], 0),
		MaxAgeHours: asInt(record["max_age_hours"], 0),
		RunEngines:  asBoolMap(record["run_engines"]),

		EnforceContentFilters: asBool(record["enforce_content_filters"]),
		RequireFullText:       asBool(record["require_full_text"]),
		MinContentLength:      asInt(record["min_content_length"], 0),
		MinSummaryLength:      asInt(record["min_summary_length"], 0),
	}

	if entry.Kind == "" {
		entry.Kind = "equity"
	}

	entry.StoragePath = strings.ReplaceAll(asString(record, "storage_path"), ".", "/")
	if entry.StoragePath == "" {
		entry.StoragePath = entry.Identifier
	}

	return entry
}

// aliasSet builds the lookup aliases of an entry: the key, the identifier,
// its slashed variant, the storage path, and the path's trailing segment.
func aliasSet(entry *Entry) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(alias string) {
		alias = strings.ToLower(strings.TrimSpace(alias))
		if alias == "" || seen[alias] {
			return
		}
		seen[alias] = true
		out = append(out, alias)
	}

	add(entry.Key)
	add(entry.Identifier)
	add(strings.ReplaceAll(entry.Identifier, ".", "/"))
	add(entry.StoragePath)
	if idx := strings.LastIndex(entry.StoragePath, "/"); idx >= 0 {
		add(entry.StoragePath[idx+1:])
	}
	return out
}

func asString(record map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := record[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstPresent(record map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := record[k]; ok {
			return v
		}
	}
	return nil
}

// asStringList coerces a scalar or list into a lowercased string slice.
func asStringList(v any) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{strings.ToLower(val)}
	case []any:
		var out []string
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, strings.ToLower(s))
			}
		}
		return out
	default:
		return nil
	}
}

// asURLList is asStringList without the lowercasing; URLs are
// case-sensitive past the host.
func asURLList(v any) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []any:
		var out []string
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func asInt(v any, fallback int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return parsed
		}
	case int:
		return n
	}
	return fallback
}

func asBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return parsed
		}
	}
	return false
}

func asBoolMap(v any) map[string]bool {
	raw, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]bool, len(raw))
	for k, val := range raw {
		switch b := val.(type) {
		case bool:
			out[strings.ToLower(k)] = b
		case string:
			if parsed, err := strconv.ParseBool(b); err == nil {
				out[strings.ToLower(k)] = parsed
			}
		}
	}
	return out
}
