package storage

import (
	"context"
	"sort"
	"time"

	"github.com/stockflow/engine/internal/models"
)

// LoadIndex reads a per-day index. A missing index is an empty one.
func (g *Gateway) LoadIndex(ctx context.Context, key string) ([]models.IndexEntry, error) {
	var entries []models.IndexEntry
	err := g.ReadJSON(ctx, key, &entries)
	if err != nil {
		if err == ErrBlobNotFound {
			return nil, nil
		}
		return nil, err
	}
	return entries, nil
}

// AppendIndex performs a read-modify-write append: any existing entry with
// the same (ticker, path) is replaced, the new entry is stamped with the
// current UTC time, and the result is sorted by timestamp descending.
// Concurrent writers to the same index converge because the operation is a
// pure set-union keyed by (ticker, path).
func (g *Gateway) AppendIndex(ctx context.Context, key string, entry models.IndexEntry, now time.Time) error {
	entries, err := g.LoadIndex(ctx, key)
	if err != nil {
		return err
	}

	kept := entries[:0]
	for _, e := range entries {
		if e.Ticker == entry.Ticker && e.Path == entry.Path {
			continue
		}
		kept = append(kept, e)
	}

	entry.Timestamp = now.UTC().Format(time.RFC3339)
	kept = append(kept, entry)

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Timestamp > kept[j].Timestamp
	})

	return g.WriteJSON(ctx, key, kept)
}

// LoadManifest reads the per-day dedupe manifest for an entity kind.
// A missing manifest is an empty one.
func (g *Gateway) LoadManifest(ctx context.Context, kind, date string) (*models.Manifest, error) {
	var m models.Manifest
	err := g.ReadJSON(ctx, g.ManifestPath(kind, date), &m)
	if err != nil {
		if err == ErrBlobNotFound {
			return &models.Manifest{}, nil
		}
		return nil, err
	}
	return &m, nil
}

// SaveManifest persists the per-day dedupe manifest.
func (g *Gateway) SaveManifest(ctx context.Context, kind, date string, m *models.Manifest) error {
	return g.WriteJSON(ctx, g.ManifestPath(kind, date), m)
}
