package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/engine/internal/common"
	"github.com/stockflow/engine/internal/models"
	"github.com/stockflow/engine/internal/storage"
)

type fakeFinancial struct {
	mu        sync.Mutex
	refreshed []string
	failOn    map[string]bool
}

func (f *fakeFinancial) RefreshFinancials(ctx context.Context, ticker string, force bool) (*models.InterpretedEarnings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn[ticker] {
		return nil, errors.New("refresh failed")
	}
	f.refreshed = append(f.refreshed, ticker)
	return &models.InterpretedEarnings{}, nil
}

func (f *fakeFinancial) GetInterpretedEarnings(ctx context.Context, ticker string, force bool) (*models.InterpretedEarnings, error) {
	return nil, errors.New("not implemented")
}

type fakeTrading struct {
	mu        sync.Mutex
	refreshed []string
	failAll   bool
}

func (f *fakeTrading) RefreshTrading(ctx context.Context, ticker string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return "", errors.New("upstream down")
	}
	f.refreshed = append(f.refreshed, ticker)
	return "2025-02-03", nil
}

func (f *fakeTrading) Analyze(ctx context.Context, req models.AnalyzeRequest) (*models.AnalysisReport, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTrading) History(ctx context.Context, ticker string, days int) ([]models.HistoricalRow, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTrading) Quote(ctx context.Context, ticker string) (*models.Quote, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTrading) PriceSnapshot(ctx context.Context, ticker string) (*models.PriceSnapshot, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTrading) MarketCandles(ctx context.Context, ticker string, days int) ([]models.MarketCandle, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTrading) Features(ctx context.Context, ticker string) (*models.TechnicalFeatures, error) {
	return nil, errors.New("not implemented")
}

type fakeNews struct {
	mu      sync.Mutex
	crawled []string
	built   []string
	failOn  map[string]bool
}

func (f *fakeNews) CrawlEntity(ctx context.Context, entityKey, date string, force bool, maxArticles int) (*models.CrawlResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn[entityKey] {
		return nil, errors.New("feed unreachable")
	}
	f.crawled = append(f.crawled, entityKey)
	return &models.CrawlResult{}, nil
}

func (f *fakeNews) BuildAIContext(ctx context.Context, entityKey, date string, steps []int) (*models.AIContextResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.built = append(f.built, entityKey)
	return &models.AIContextResult{}, nil
}

func (f *fakeNews) ListDailyIndex(ctx context.Context, kind, date string) ([]models.IndexEntry, error) {
	return nil, errors.New("not implemented")
}

type dispatchedCard struct {
	Ticker   string
	CardType string
	Route    models.LLMRoute
}

type fakeCards struct {
	dispatched []dispatchedCard
	failOn     map[string]bool // keyed ticker:card_type
}

func (f *fakeCards) GenerateCard(ctx context.Context, ticker, cardType string, route models.LLMRoute) error {
	if f.failOn[ticker+":"+cardType] {
		return errors.New("card service error")
	}
	f.dispatched = append(f.dispatched, dispatchedCard{ticker, cardType, route})
	return nil
}

type fixture struct {
	svc       *Service
	gateway   *storage.Gateway
	financial *fakeFinancial
	trading   *fakeTrading
	news      *fakeNews
	cards     *fakeCards
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := common.NewSilentLogger()
	store, err := storage.NewFileBlobStore(logger, t.TempDir())
	require.NoError(t, err)
	cfg := common.NewDefaultConfig()
	gateway := storage.NewGateway(logger, store, &cfg.Storage)

	f := &fixture{
		gateway:   gateway,
		financial: &fakeFinancial{},
		trading:   &fakeTrading{},
		news:      &fakeNews{},
		cards:     &fakeCards{},
	}
	f.svc = NewService(logger, cfg, gateway, f.financial, f.trading, f.news, f.cards)
	f.svc.now = func() time.Time { return time.Date(2025, 2, 3, 14, 0, 0, 0, time.UTC) }
	return f
}

func (f *fixture) seedConfig(t *testing.T, name string, payload any) {
	t.Helper()
	require.NoError(t, f.gateway.WriteJSON(context.Background(), f.gateway.BatchConfigPath(name), payload))
}

func seedStandardRun(t *testing.T, f *fixture) {
	f.seedConfig(t, "ticker_list", []string{"AAPL", "MSFT"})
	f.seedConfig(t, "engine_control", map[string]bool{
		"run_financials_engine": true,
		"run_trading_engine":    true,
		"run_news_engine":       true,
	})
	f.seedConfig(t, "card_types", []cardTypeEntry{
		{Name: "earnings_card", Enabled: true},
		{Name: "news_card", Enabled: true},
		{Name: "legacy_card", Enabled: false},
	})
	f.seedConfig(t, "card_targets", []rawTarget{
		{ID: "equities_default", CardTypes: []string{"earnings_card"}},
		{ID: "Fed.Funds.Rate", TargetType: "topic", Category: "macro", CardTypes: []string{"news_card"}},
	})
	f.seedConfig(t, "llm_config", models.LLMConfig{
		Default: models.LLMRoute{Backend: "gemini", Model: "gemini-3-flash-preview"},
		Tasks:   map[string]models.LLMRoute{"news_card": {Model: "gemini-3-pro-preview"}},
	})
}

func TestRunDailyFullPipeline(t *testing.T) {
	f := newFixture(t)
	seedStandardRun(t, f)

	result, err := f.svc.RunDaily(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Aborted)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "2025-02-03", result.Date)

	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, f.financial.refreshed)
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, f.trading.refreshed)
	assert.ElementsMatch(t, []string{"AAPL", "MSFT", "Fed.Funds.Rate"}, f.news.crawled)
	assert.ElementsMatch(t, f.news.crawled, f.news.built, "every crawled target gets its context built")

	var pairs []dispatchedCard
	for _, d := range f.cards.dispatched {
		pairs = append(pairs, dispatchedCard{Ticker: d.Ticker, CardType: d.CardType})
	}
	assert.ElementsMatch(t, []dispatchedCard{
		{Ticker: "AAPL", CardType: "earnings_card"},
		{Ticker: "MSFT", CardType: "earnings_card"},
		{Ticker: "Fed.Funds.Rate", CardType: "news_card"},
	}, pairs)

	for _, d := range f.cards.dispatched {
		if d.CardType == "news_card" {
			assert.Equal(t, "gemini-3-pro-preview", d.Route.Model, "task override applies to the model only")
			assert.Equal(t, "gemini", d.Route.Backend)
		} else {
			assert.Equal(t, "gemini-3-flash-preview", d.Route.Model)
		}
	}

	assert.Len(t, result.Cards.Succeeded, 3)
	assert.Empty(t, result.Cards.Failed)
}

func TestRunDailyEngineFlagResolution(t *testing.T) {
	f := newFixture(t)
	f.seedConfig(t, "ticker_list", []string{"AAPL", "MSFT"})
	f.seedConfig(t, "engine_control", map[string]bool{
		"run_financials_engine": false,
		"run_trading_engine":    true,
		"run_news_engine":       false,
	})
	f.seedConfig(t, "card_types", []cardTypeEntry{{Name: "earnings_card", Enabled: true}})
	f.seedConfig(t, "card_targets", []rawTarget{
		{ID: "equities_default", RunEngines: map[string]bool{"news": true}},
		{ID: "AAPL", TargetType: "equity", RunEngines: map[string]bool{"run_financials_engine": true}},
	})

	result, err := f.svc.RunDaily(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Aborted)

	assert.ElementsMatch(t, []string{"AAPL"}, f.financial.refreshed,
		"per-target override turns financials back on for AAPL only")
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, f.trading.refreshed)
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, f.news.crawled,
		"equities_default turns news on for the whole universe")
}

func TestRunDailyAbortsCardsWhenEngineFails(t *testing.T) {
	f := newFixture(t)
	seedStandardRun(t, f)
	f.trading.failAll = true

	result, err := f.svc.RunDaily(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Aborted)
	assert.Contains(t, result.AbortCause, "trading engine failed")
	assert.Len(t, result.Trading.Failed, 2)
	assert.Empty(t, f.cards.dispatched, "phase 2 never starts after a data-engine failure")
}

func TestRunDailyNewsPerItemIsolation(t *testing.T) {
	f := newFixture(t)
	seedStandardRun(t, f)
	f.news.failOn = map[string]bool{"Fed.Funds.Rate": true}

	result, err := f.svc.RunDaily(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Aborted, "one failing news target does not abort the run")
	assert.Contains(t, result.News.Failed, "Fed.Funds.Rate")
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, result.News.Succeeded)
	assert.NotEmpty(t, f.cards.dispatched)
}

func TestRunDailyCardFailureIsolated(t *testing.T) {
	f := newFixture(t)
	seedStandardRun(t, f)
	f.cards.failOn = map[string]bool{"AAPL:earnings_card": true}

	result, err := f.svc.RunDaily(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Aborted)
	assert.Contains(t, result.Cards.Failed, "AAPL:earnings_card")
	assert.Len(t, result.Cards.Succeeded, 2, "remaining dispatches still run")
}

func TestRunDailyDuplicatePairsDispatchOnce(t *testing.T) {
	f := newFixture(t)
	f.seedConfig(t, "ticker_list", []string{"AAPL"})
	f.seedConfig(t, "card_types", []cardTypeEntry{{Name: "earnings_card", Enabled: true}})
	f.seedConfig(t, "card_targets", []rawTarget{
		{ID: "equities_default", CardTypes: []string{"earnings_card"}},
		{ID: "AAPL", TargetType: "equity", CardTypes: []string{"earnings_card"}},
	})

	result, err := f.svc.RunDaily(context.Background())
	require.NoError(t, err)
	require.False(t, result.Aborted)

	assert.Len(t, f.cards.dispatched, 1, "base universe and additional target overlap on the same pair")
}

func TestRunDailyFallbackUniverse(t *testing.T) {
	f := newFixture(t)
	// No batch_config blobs at all.

	result, err := f.svc.RunDaily(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Aborted)
	assert.ElementsMatch(t, fallbackTickers, f.financial.refreshed,
		"missing configs fall back to the built-in universe with all engines on")
	assert.Empty(t, f.cards.dispatched, "no enabled card types means no phase 2")
}

func TestResolveEngineFlags(t *testing.T) {
	global := map[string]bool{
		"run_financials_engine": true,
		"run_trading_engine":    false,
		"run_news_engine":       true,
	}

	flags := resolveEngineFlags(global, nil)
	assert.True(t, flags.Financials)
	assert.False(t, flags.Trading)
	assert.True(t, flags.News)

	flags = resolveEngineFlags(global, map[string]bool{"trading": true, "run_news_engine": false})
	assert.True(t, flags.Trading, "canonical override key is honored")
	assert.False(t, flags.News, "alias override key is honored")
}

func TestExpandCardTargets(t *testing.T) {
	raw := []rawTarget{
		{ID: "equities_default", CardTypes: []string{"earnings_card", "legacy_card"}, RunEngines: map[string]bool{"news": false}},
		{ID: "Elon.Musk", Category: "celebrity"},
		{ID: "Fed.Funds.Rate", TargetType: "topic", CardTypes: []string{"news_card"}},
		{ID: ""},
	}

	targets, defaults := expandCardTargets(raw, []string{"earnings_card", "news_card"})

	assert.Equal(t, []string{"earnings_card"}, defaults.CardTypes, "disabled types are filtered out")
	assert.Equal(t, map[string]bool{"news": false}, defaults.RunEngines)

	require.Len(t, targets, 2)
	assert.Equal(t, "person", targets[0].TargetType, "celebrity category maps to person")
	assert.Equal(t, []string{"earnings_card", "news_card"}, targets[0].CardTypes,
		"unspecified card types inherit the full enabled set")
	assert.Equal(t, "topic", targets[1].TargetType)
	assert.Equal(t, []string{"news_card"}, targets[1].CardTypes)
}

func TestResolveEquityCardTypes(t *testing.T) {
	enabled := []string{"news_card", "trading_card", "custom_card"}

	assert.Equal(t, []string{"news_card"}, resolveEquityCardTypes([]string{"news_card"}, enabled))
	assert.Equal(t, []string{"news_card", "trading_card"}, resolveEquityCardTypes(nil, enabled),
		"falls back to the preferred lineup intersected with enabled types")
	assert.Equal(t, []string{"other"}, resolveEquityCardTypes(nil, []string{"other"}),
		"when nothing preferred is enabled, every enabled type runs")
}
