package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/engine/internal/common"
	"github.com/stockflow/engine/internal/models"
)

func newTestStore(t *testing.T) *FileBlobStore {
	t.Helper()
	logger := common.NewSilentLogger()
	store, err := NewFileBlobStore(logger, t.TempDir())
	require.NoError(t, err)
	return store
}

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	store := newTestStore(t)
	cfg := common.NewDefaultConfig()
	return NewGateway(common.NewSilentLogger(), store, &cfg.Storage)
}

func TestFileBlobStorePutGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "historical_data/AAPL_historical.json", []byte(`[]`), JSONAttrs))

	data, err := store.Get(ctx, "historical_data/AAPL_historical.json")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(data))

	_, err = store.Get(ctx, "historical_data/MSFT_historical.json")
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestFileBlobStorePutIfAbsent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutIfAbsent(ctx, "analysis/AAPL/2025-02-03.json", []byte(`{"v":1}`), JSONAttrs))

	err := store.PutIfAbsent(ctx, "analysis/AAPL/2025-02-03.json", []byte(`{"v":2}`), JSONAttrs)
	assert.ErrorIs(t, err, ErrBlobExists)

	// Loser must not clobber the winner's payload.
	data, err := store.Get(ctx, "analysis/AAPL/2025-02-03.json")
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(data))
}

func TestFileBlobStoreKeySanitization(t *testing.T) {
	base := t.TempDir()
	store, err := NewFileBlobStore(common.NewSilentLogger(), base)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "../escape.json", []byte(`{}`), nil))

	// Traversal segments are rewritten, keeping the write inside the base.
	ok, err := store.Exists(ctx, "__/escape.json")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = os.Stat(filepath.Join(filepath.Dir(base), "escape.json"))
	assert.True(t, os.IsNotExist(err), "nothing may land outside the base path")
}

func TestFileBlobStoreList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "raw-news/2025-02-03/AAPL/a.json", []byte(`{}`), nil))
	require.NoError(t, store.Put(ctx, "raw-news/2025-02-03/AAPL/b.json", []byte(`{}`), nil))
	require.NoError(t, store.Put(ctx, "raw-news/2025-02-04/AAPL/c.json", []byte(`{}`), nil))

	res, err := store.List(ctx, ListOptions{Prefix: "raw-news/2025-02-03/"})
	require.NoError(t, err)
	assert.Len(t, res.Blobs, 2)
	for _, b := range res.Blobs {
		assert.Contains(t, b.Key, "raw-news/2025-02-03/")
	}
}

func TestGatewayJSONRoundTrip(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	in := map[string]any{"ticker": "AAPL", "price": 191.5}
	require.NoError(t, g.WriteJSON(ctx, "quotes/AAPL.json", in))

	var out map[string]any
	require.NoError(t, g.ReadJSON(ctx, "quotes/AAPL.json", &out))
	assert.Equal(t, "AAPL", out["ticker"])

	raw, err := g.Store().Get(ctx, "quotes/AAPL.json")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \"price\"", "artifacts are written indented")
}

func TestGatewayAge(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	fetched := time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)
	require.NoError(t, g.WriteJSON(ctx, "report_sources/AAPL.json", map[string]string{
		"discovered_at": fetched.Format(time.RFC3339),
	}))

	age, err := g.Age(ctx, "report_sources/AAPL.json", fetched.Add(36*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 36*time.Hour, age)

	_, err = g.Age(ctx, "report_sources/MSFT.json", fetched)
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestGatewayAppendIndexReplacesSameTickerPath(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()
	key := g.AIContextIndexPath("2025-02-03")

	t0 := time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)
	require.NoError(t, g.AppendIndex(ctx, key, models.IndexEntry{Ticker: "AAPL", Path: "ai_context/AAPL/a.txt"}, t0))
	require.NoError(t, g.AppendIndex(ctx, key, models.IndexEntry{Ticker: "MSFT", Path: "ai_context/MSFT/b.txt"}, t0.Add(5*time.Minute)))
	require.NoError(t, g.AppendIndex(ctx, key, models.IndexEntry{Ticker: "AAPL", Path: "ai_context/AAPL/c.txt"}, t0.Add(time.Hour)))

	entries, err := g.LoadIndex(ctx, key)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "ai_context/AAPL/c.txt", entries[0].Path)
	for i := 1; i < len(entries); i++ {
		assert.GreaterOrEqual(t, entries[i-1].Timestamp, entries[i].Timestamp)
	}

	// Re-append with an existing (ticker, path) replaces instead of duplicating.
	require.NoError(t, g.AppendIndex(ctx, key, models.IndexEntry{Ticker: "AAPL", Path: "ai_context/AAPL/a.txt"}, t0.Add(2*time.Hour)))
	entries, err = g.LoadIndex(ctx, key)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.Equal(t, "ai_context/AAPL/a.txt", entries[0].Path)
}

func TestGatewayManifest(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	m, err := g.LoadManifest(ctx, "equity", "2025-02-03")
	require.NoError(t, err)
	assert.False(t, m.Contains("abc"))

	m.Append("abc", "raw-news/2025-02-03/AAPL/x.json")
	require.NoError(t, g.SaveManifest(ctx, "equity", "2025-02-03", m))

	m2, err := g.LoadManifest(ctx, "equity", "2025-02-03")
	require.NoError(t, err)
	assert.True(t, m2.Contains("abc"))
	assert.Equal(t, m2.Files, []string{"raw-news/2025-02-03/AAPL/x.json"})
}
