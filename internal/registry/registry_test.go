package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/engine/internal/common"
	"github.com/stockflow/engine/internal/storage"
)

func writeLocal(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newGateway(t *testing.T) *storage.Gateway {
	t.Helper()
	logger := common.NewSilentLogger()
	store, err := storage.NewFileBlobStore(logger, t.TempDir())
	require.NoError(t, err)
	cfg := common.NewDefaultConfig()
	return storage.NewGateway(logger, store, &cfg.Storage)
}

func TestRefreshNormalizesEntries(t *testing.T) {
	local := writeLocal(t, `[
		{
			"identifier": "Fed.Funds.Rate",
			"type": "Topic",
			"storage_path": "macro.Fed_Funds_Rate",
			"group": "Macro",
			"keywords": "Interest Rates",
			"max_articles": "25",
			"run_engines": {"News": true, "financials": "false"}
		}
	]`)

	r := NewRegistry(common.NewSilentLogger(), nil, local, "")
	require.NoError(t, r.Refresh(context.Background()))

	entry, ok := r.Get("fed.funds.rate")
	require.True(t, ok)
	assert.Equal(t, "topic", entry.Kind)
	assert.Equal(t, "macro/Fed_Funds_Rate", entry.StoragePath, "dots in storage paths become slashes")
	assert.Equal(t, []string{"interest rates"}, entry.Keywords, "scalar keywords coerce to a lowercased list")
	assert.Equal(t, 25, entry.MaxArticles, "string numbers coerce")
	assert.Equal(t, map[string]bool{"news": true, "financials": false}, entry.RunEngines)
}

func TestAliasLookup(t *testing.T) {
	local := writeLocal(t, `[
		{"identifier": "Fed.Funds.Rate", "type": "topic", "storage_path": "macro.Fed_Funds_Rate"}
	]`)
	r := NewRegistry(common.NewSilentLogger(), nil, local, "")
	require.NoError(t, r.Refresh(context.Background()))

	for _, alias := range []string{
		"fed.funds.rate",
		"Fed.Funds.Rate",
		"fed/funds/rate",
		"macro/Fed_Funds_Rate",
		"fed_funds_rate",
	} {
		_, ok := r.Get(alias)
		assert.True(t, ok, "alias %q should resolve", alias)
	}

	// Tail fallback: an unknown qualified name resolves via its last segment.
	_, ok := r.Get("anything/fed_funds_rate")
	assert.True(t, ok)

	_, ok = r.Get("unknown")
	assert.False(t, ok)
}

func TestAliasCollisionLaterWins(t *testing.T) {
	local := writeLocal(t, `[
		{"identifier": "AAPL", "type": "equity", "group": "old"},
		{"identifier": "aapl", "type": "equity", "group": "new"}
	]`)
	r := NewRegistry(common.NewSilentLogger(), nil, local, "")
	require.NoError(t, r.Refresh(context.Background()))

	entry, ok := r.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, "new", entry.Group)
}

func TestRemoteOverlay(t *testing.T) {
	local := writeLocal(t, `[
		{"identifier": "AAPL", "type": "equity", "max_articles": 10}
	]`)
	gw := newGateway(t)
	require.NoError(t, gw.WriteJSON(context.Background(), "config/registry.json", []map[string]any{
		{"identifier": "AAPL", "type": "equity", "max_articles": 40},
		{"identifier": "MSFT", "type": "equity"},
	}))

	r := NewRegistry(common.NewSilentLogger(), gw, local, "config/registry.json")
	require.NoError(t, r.Refresh(context.Background()))

	entry, ok := r.Get("aapl")
	require.True(t, ok)
	assert.Equal(t, 40, entry.MaxArticles, "remote entries overlay local ones")

	_, ok = r.Get("msft")
	assert.True(t, ok)
	assert.Len(t, r.ByKind("equity"), 2)
}

func TestMissingSourcesAreEmpty(t *testing.T) {
	r := NewRegistry(common.NewSilentLogger(), newGateway(t), filepath.Join(t.TempDir(), "absent.json"), "config/absent.json")
	require.NoError(t, r.Refresh(context.Background()))
	assert.Empty(t, r.All())
}
