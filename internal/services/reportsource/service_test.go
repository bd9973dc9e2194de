package reportsource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/engine/internal/common"
	"github.com/stockflow/engine/internal/models"
	"github.com/stockflow/engine/internal/storage"
)

type fakeMarket struct {
	profile      *models.CompanyProfile
	profileCalls int
}

func (f *fakeMarket) Quote(ctx context.Context, ticker string) (*models.Quote, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeMarket) History(ctx context.Context, ticker string, from, to time.Time) ([]models.Candle, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeMarket) Statements(ctx context.Context, ticker string) (*models.FinancialSnapshot, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeMarket) NextEarningsDate(ctx context.Context, ticker string) (string, error) {
	return "", nil
}

func (f *fakeMarket) CompanyProfile(ctx context.Context, ticker string) (*models.CompanyProfile, error) {
	f.profileCalls++
	if f.profile == nil {
		return nil, errors.New("no profile")
	}
	return f.profile, nil
}

type fakePages struct {
	pages map[string]*models.PageSnapshot
}

func (f *fakePages) FetchPage(ctx context.Context, url string) (*models.PageSnapshot, error) {
	if page, ok := f.pages[url]; ok {
		return page, nil
	}
	return nil, errors.New("unreachable")
}

type fakeSearch struct {
	results map[string][]models.SearchResult
}

func (f *fakeSearch) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	return f.results[query], nil
}

type fakeVerifier struct {
	verdict *models.IRVerdict
	calls   int
}

func (f *fakeVerifier) VerifyIRPage(ctx context.Context, ticker, companyName string, page *models.PageSnapshot) (*models.IRVerdict, error) {
	f.calls++
	if f.verdict == nil {
		return nil, errors.New("verifier down")
	}
	return f.verdict, nil
}

var resolverNow = time.Date(2025, 2, 3, 12, 0, 0, 0, time.UTC)

func irPage(url string) *models.PageSnapshot {
	return &models.PageSnapshot{
		URL:         url,
		FinalURL:    url,
		StatusCode:  200,
		ContentType: "text/html; charset=utf-8",
		Title:       "Example Corp Investor Relations",
		Text: "Welcome to Example Corp investor relations. Find earnings releases, " +
			"quarterly results, the latest annual report, and SEC filings.",
		Links: []string{
			"https://investor.example.com/financial-reports/annual",
			"https://investor.example.com/sec-filings/default.aspx",
		},
	}
}

func newTestService(t *testing.T, market *fakeMarket, pages *fakePages, search *fakeSearch, verifier *fakeVerifier) (*Service, *storage.Gateway) {
	t.Helper()
	logger := common.NewSilentLogger()
	store, err := storage.NewFileBlobStore(logger, t.TempDir())
	require.NoError(t, err)
	cfg := common.NewDefaultConfig()
	gateway := storage.NewGateway(logger, store, &cfg.Storage)

	var v *Service
	if verifier != nil {
		cfg.ReportSource.EnableAI = true
		v = NewService(logger, cfg, gateway, market, pages, search, verifier)
	} else {
		v = NewService(logger, cfg, gateway, market, pages, search, nil)
	}
	v.now = func() time.Time { return resolverNow }
	return v, gateway
}

func TestResolveVerifiedFromDomainPattern(t *testing.T) {
	market := &fakeMarket{profile: &models.CompanyProfile{
		Ticker: "EXMP", Name: "Example Corp", Website: "https://www.example.com",
	}}
	pages := &fakePages{pages: map[string]*models.PageSnapshot{
		"https://investor.example.com": irPage("https://investor.example.com"),
	}}
	svc, gateway := newTestService(t, market, pages, &fakeSearch{}, nil)
	ctx := context.Background()

	result, err := svc.Resolve(ctx, "exmp", false)
	require.NoError(t, err)
	assert.Equal(t, models.ReportSourceVerified, result.VerificationStatus)
	assert.Equal(t, "https://investor.example.com", result.IRHomeURL)
	assert.NotEmpty(t, result.FinancialReportsURL)
	assert.NotEmpty(t, result.SECFilingsURL)
	assert.Greater(t, result.Confidence, 0.5)
	assert.LessOrEqual(t, result.Confidence, 1.0)
	require.NotNil(t, result.Evidence)
	assert.Nil(t, result.Evidence.Fallback)
	assert.LessOrEqual(t, len(result.Evidence.Candidates), 12)

	var persisted models.ReportSource
	require.NoError(t, gateway.ReadJSON(ctx, gateway.ReportSourcePath("EXMP"), &persisted))
	assert.Equal(t, result.IRHomeURL, persisted.IRHomeURL)
}

func TestResolveServesCacheInsideTTL(t *testing.T) {
	market := &fakeMarket{profile: &models.CompanyProfile{
		Ticker: "EXMP", Name: "Example Corp", Website: "https://www.example.com",
	}}
	pages := &fakePages{pages: map[string]*models.PageSnapshot{
		"https://investor.example.com": irPage("https://investor.example.com"),
	}}
	svc, _ := newTestService(t, market, pages, &fakeSearch{}, nil)
	ctx := context.Background()

	_, err := svc.Resolve(ctx, "EXMP", false)
	require.NoError(t, err)
	require.Equal(t, 1, market.profileCalls)

	again, err := svc.Resolve(ctx, "EXMP", false)
	require.NoError(t, err)
	assert.Equal(t, 1, market.profileCalls, "no second full resolve inside the TTL")
	assert.Equal(t, models.ReportSourceVerified, again.VerificationStatus)
}

func TestResolveFallbackToTickerHints(t *testing.T) {
	svc, _ := newTestService(t, &fakeMarket{}, &fakePages{}, &fakeSearch{}, nil)
	svc.hints = map[string]hintSet{
		"XYZ": {
			IR:      "https://ir.xyz-company.com",
			Reports: "https://ir.xyz-company.com/reports",
			SEC:     "https://ir.xyz-company.com/sec",
		},
	}
	ctx := context.Background()

	result, err := svc.Resolve(ctx, "XYZ", false)
	require.NoError(t, err)
	assert.Equal(t, models.ReportSourcePartial, result.VerificationStatus)
	assert.Equal(t, 0.22, result.Confidence)
	assert.Equal(t, "https://ir.xyz-company.com", result.IRHomeURL)
	require.NotNil(t, result.Evidence.Fallback)
	assert.Equal(t, "ticker_hint_unverified", result.Evidence.Fallback.Mode)
	assert.True(t, result.Evidence.Fallback.Used)

	// Fallback monotonicity.
	assert.Contains(t, []string{models.ReportSourcePartial, models.ReportSourceNotFound}, result.VerificationStatus)
	assert.LessOrEqual(t, result.Confidence, 0.45)
}

func TestResolveNotFoundWithoutHints(t *testing.T) {
	svc, _ := newTestService(t, &fakeMarket{}, &fakePages{}, &fakeSearch{}, nil)
	svc.hints = map[string]hintSet{}

	result, err := svc.Resolve(context.Background(), "ZZZZ", false)
	require.NoError(t, err)
	assert.Equal(t, models.ReportSourceNotFound, result.VerificationStatus)
	assert.Zero(t, result.Confidence)
	assert.Empty(t, result.IRHomeURL)
}

func TestResolveAIVerificationBoost(t *testing.T) {
	market := &fakeMarket{profile: &models.CompanyProfile{
		Ticker: "EXMP", Name: "Example Corp", Website: "https://www.example.com",
	}}
	pages := &fakePages{pages: map[string]*models.PageSnapshot{
		"https://investor.example.com": irPage("https://investor.example.com"),
	}}
	verifier := &fakeVerifier{verdict: &models.IRVerdict{IsOfficialIRPage: true, Confidence: 1}}
	svc, _ := newTestService(t, market, pages, &fakeSearch{}, verifier)
	ctx := context.Background()

	result, err := svc.Resolve(ctx, "EXMP", false)
	require.NoError(t, err)
	assert.Positive(t, verifier.calls)
	assert.Equal(t, 1.0, result.Confidence, "the boosted score saturates the confidence")
	assert.True(t, result.Evidence.AIEnabled)

	top := result.Evidence.Candidates[0]
	require.NotNil(t, top.AIVerified)
	assert.True(t, *top.AIVerified)
	assert.Equal(t, 1.0, top.AIConfidence)
}

func TestResolveVerifiedRecheckPastTTL(t *testing.T) {
	pages := &fakePages{pages: map[string]*models.PageSnapshot{
		"https://investor.example.com": irPage("https://investor.example.com"),
	}}
	svc, gateway := newTestService(t, &fakeMarket{}, pages, &fakeSearch{}, nil)
	ctx := context.Background()

	stale := &models.ReportSource{
		Ticker:             "EXMP",
		CompanyWebsite:     "https://www.example.com",
		IRHomeURL:          "https://investor.example.com",
		Confidence:         0.9,
		VerificationStatus: models.ReportSourceVerified,
		DiscoveredAt:       resolverNow.Add(-48 * time.Hour).Format(time.RFC3339),
		Evidence:           &models.ReportSourceEvidence{},
	}
	require.NoError(t, gateway.WriteJSON(ctx, gateway.ReportSourcePath("EXMP"), stale))

	result, err := svc.Resolve(ctx, "EXMP", false)
	require.NoError(t, err)
	assert.Equal(t, models.ReportSourceVerified, result.VerificationStatus)
	assert.Equal(t, "lightweight", result.Evidence.RecheckMode)
	assert.Equal(t, resolverNow.Format(time.RFC3339), result.DiscoveredAt)
	assert.NotEmpty(t, result.FinancialReportsURL, "recheck refreshes secondary links from the live page")
	assert.NotEmpty(t, result.SECFilingsURL)
}

func TestResolveRejectsEmptyTicker(t *testing.T) {
	svc, _ := newTestService(t, &fakeMarket{}, &fakePages{}, &fakeSearch{}, nil)
	_, err := svc.Resolve(context.Background(), "  ", false)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestPickBestGates(t *testing.T) {
	company := "example.com"

	aggregator := candidate{page: irPage("https://finance.yahoo.com/quote/EXMP")}
	aggregator.page.FinalURL = "https://finance.yahoo.com/quote/EXMP"
	scoreCandidate(&aggregator, company, "Example Corp")

	official := candidate{page: irPage("https://investor.example.com")}
	scoreCandidate(&official, company, "Example Corp")

	picked := pickBest([]candidate{aggregator, official}, modeIR, company)
	require.NotNil(t, picked)
	assert.Equal(t, "https://investor.example.com", picked.FinalURL)

	// Secondary modes insist on a company-domain match.
	sec := pickBest([]candidate{aggregator}, modeSEC, company)
	assert.Nil(t, sec)
}

func TestScoreCandidateErrorPage(t *testing.T) {
	page := &models.PageSnapshot{
		URL: "https://example.com/investors", FinalURL: "https://example.com/investors",
		StatusCode: 200, ContentType: "text/html",
		Title: "Page Not Found", Text: "404 error, this page does not exist",
	}
	c := candidate{page: page}
	scoreCandidate(&c, "example.com", "Example Corp")
	assert.Less(t, c.Score, 0.0, "error pages score below zero")
}
