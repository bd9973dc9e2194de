package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stockflow/engine/internal/common"
)

// Gateway wraps a BlobStore with the JSON conventions and the logical path
// layout shared by every engine. All JSON artifacts are written indented so
// they stay diffable in the bucket browser.
type Gateway struct {
	store    BlobStore
	prefixes common.StorageConfig
	logger   *common.Logger
}

// NewGateway creates a storage gateway over the given blob store.
func NewGateway(logger *common.Logger, store BlobStore, cfg *common.StorageConfig) *Gateway {
	return &Gateway{
		store:    store,
		prefixes: *cfg,
		logger:   logger,
	}
}

// Store exposes the underlying blob store for callers that need raw access.
func (g *Gateway) Store() BlobStore { return g.store }

// MarshalJSON2 renders v as indented UTF-8 JSON without HTML escaping.
func MarshalJSON2(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadJSON loads and decodes a JSON blob into out.
// Returns ErrBlobNotFound when the key does not exist.
func (g *Gateway) ReadJSON(ctx context.Context, key string, out any) error {
	data, err := g.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

// WriteJSON encodes v and stores it at key, replacing any existing object.
func (g *Gateway) WriteJSON(ctx context.Context, key string, v any) error {
	data, err := MarshalJSON2(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return g.store.Put(ctx, key, data, JSONAttrs)
}

// WriteJSONIfAbsent encodes v and stores it only when key does not exist.
// Returns (false, nil) when another writer already created the object.
func (g *Gateway) WriteJSONIfAbsent(ctx context.Context, key string, v any) (bool, error) {
	data, err := MarshalJSON2(v)
	if err != nil {
		return false, fmt.Errorf("failed to encode %s: %w", key, err)
	}
	err = g.store.PutIfAbsent(ctx, key, data, JSONAttrs)
	if err != nil {
		if err == ErrBlobExists {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// WriteText stores a plain-text artifact at key.
func (g *Gateway) WriteText(ctx context.Context, key string, text string) error {
	return g.store.Put(ctx, key, []byte(text), TextAttrs)
}

// Age returns how long ago the artifact at key was produced, derived from
// the payload's own discovered_at/fetched_at field rather than object
// metadata, so a re-upload of identical content does not reset it.
func (g *Gateway) Age(ctx context.Context, key string, now time.Time) (time.Duration, error) {
	var stamped struct {
		DiscoveredAt string `json:"discovered_at"`
		FetchedAt    string `json:"fetched_at"`
	}
	if err := g.ReadJSON(ctx, key, &stamped); err != nil {
		return 0, err
	}
	raw := stamped.DiscoveredAt
	if raw == "" {
		raw = stamped.FetchedAt
	}
	if raw == "" {
		return 0, fmt.Errorf("no timestamp field in %s", key)
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, fmt.Errorf("bad timestamp in %s: %w", key, err)
	}
	return now.Sub(ts), nil
}

// Path builders. These are the authoritative logical locations; engines
// never assemble artifact keys themselves.

// HistoricalPath returns the OHLCV series key for a ticker.
func (g *Gateway) HistoricalPath(ticker string) string {
	return fmt.Sprintf("historical_data/%s_historical.json", strings.ToUpper(ticker))
}

// FinancialsPath returns the L2 financial snapshot key for a ticker.
func (g *Gateway) FinancialsPath(ticker string) string {
	return fmt.Sprintf("financial_data/%s_financials.json", strings.ToUpper(ticker))
}

// AnalysisPath returns the per-day analysis report key.
func (g *Gateway) AnalysisPath(ticker, date string) string {
	return fmt.Sprintf("analysis/%s/%s.json", strings.ToUpper(ticker), date)
}

// AnalysisIndexPath returns the per-day analysis index key.
func (g *Gateway) AnalysisIndexPath(date string) string {
	return fmt.Sprintf("analysis/daily_index/%s.json", date)
}

// AIContextPath returns the per-step AI-context artifact key.
// stamp is the UTC write time rendered as YYYYMMDDHHMMSS.
func (g *Gateway) AIContextPath(entity, date string, step int, stamp string) string {
	return fmt.Sprintf("%s/%s/%s__step%d_%s_UTC.txt", g.prefixes.AIContextPrefix, entity, date, step, stamp)
}

// AIContextIndexPath returns the per-day AI-context index key.
func (g *Gateway) AIContextIndexPath(date string) string {
	return fmt.Sprintf("%s/daily_index/%s.json", g.prefixes.AIContextPrefix, date)
}

// NewsPrefix returns the raw-article prefix for an entity kind.
func (g *Gateway) NewsPrefix(kind string) string {
	switch kind {
	case "topic":
		return g.prefixes.TopicNewsPrefix
	case "person":
		return g.prefixes.PersonPrefix
	default:
		return g.prefixes.RawNewsPrefix
	}
}

// ArticleDir returns the per-day, per-entity article directory.
func (g *Gateway) ArticleDir(kind, date, storagePath string) string {
	return fmt.Sprintf("%s/%s/%s", g.NewsPrefix(kind), date, storagePath)
}

// ManifestPath returns the per-day dedupe manifest key for an entity kind.
func (g *Gateway) ManifestPath(kind, date string) string {
	return fmt.Sprintf("%s/%s/.manifest.json", g.NewsPrefix(kind), date)
}

// ReportSourcePath returns the cached report-source key for a ticker.
func (g *Gateway) ReportSourcePath(ticker string) string {
	return fmt.Sprintf("report_sources/%s.json", strings.ToUpper(ticker))
}

// DefaultTickersPath returns the dynamic ticker-universe key.
func (g *Gateway) DefaultTickersPath() string {
	return "config/default_tickers.json"
}

// BatchConfigPath returns the orchestrator input key for one config name
// (ticker_list, card_types, card_targets, llm_config, engine_control).
func (g *Gateway) BatchConfigPath(name string) string {
	return fmt.Sprintf("batch_config/%s.json", name)
}
