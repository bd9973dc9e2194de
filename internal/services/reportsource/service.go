// Package reportsource resolves a company's official investor-relations
// surface: cache with TTL and verified recheck, candidate generation over
// hints, domain patterns and search, page scoring, optional AI
// verification, and per-mode pick with an unverified fallback.
package reportsource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/stockflow/engine/internal/common"
	"github.com/stockflow/engine/internal/interfaces"
	"github.com/stockflow/engine/internal/models"
	"github.com/stockflow/engine/internal/storage"
)

// evidenceCandidateCap bounds the persisted audit trail.
const evidenceCandidateCap = 12

// confidenceDivisor converts the winning score into a confidence in [0,1].
const confidenceDivisor = 70.0

// Service implements interfaces.ReportSourceService.
type Service struct {
	logger   *common.Logger
	config   *common.Config
	gateway  *storage.Gateway
	market   interfaces.MarketDataClient
	pages    interfaces.PageFetcher
	search   interfaces.Searcher
	verifier interfaces.AIVerifier

	hints map[string]hintSet
	now   func() time.Time
}

// NewService creates the resolver. verifier may be nil; AI verification is
// then skipped regardless of configuration.
func NewService(logger *common.Logger, config *common.Config, gateway *storage.Gateway, market interfaces.MarketDataClient, pages interfaces.PageFetcher, search interfaces.Searcher, verifier interfaces.AIVerifier) *Service {
	return &Service{
		logger:   logger,
		config:   config,
		gateway:  gateway,
		market:   market,
		pages:    pages,
		search:   search,
		verifier: verifier,
		hints:    defaultTickerHints,
		now:      time.Now,
	}
}

// Resolve returns the ReportSource for a ticker, serving the cached result
// inside the TTL and rechecking verified entries past it.
func (s *Service) Resolve(ctx context.Context, ticker string, force bool) (*models.ReportSource, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, fmt.Errorf("%w: empty ticker", common.ErrInvalidInput)
	}

	key := s.gateway.ReportSourcePath(ticker)
	if !force {
		if cached := s.serveCached(ctx, ticker, key); cached != nil {
			return cached, nil
		}
	}

	result, err := s.resolve(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if err := s.gateway.WriteJSON(ctx, key, result); err != nil {
		return nil, err
	}
	return result, nil
}

// serveCached returns the cached entry when it is still usable: inside the
// TTL, or verified and passing the lightweight recheck.
func (s *Service) serveCached(ctx context.Context, ticker, key string) *models.ReportSource {
	var cached models.ReportSource
	if err := s.gateway.ReadJSON(ctx, key, &cached); err != nil {
		if !errors.Is(err, storage.ErrBlobNotFound) {
			s.logger.Warn().Str("ticker", ticker).Err(err).Msg("report-source cache read failed")
		}
		return nil
	}

	age, err := s.gateway.Age(ctx, key, s.now())
	if err == nil && age <= s.config.Cache.ReportSourceTTL() {
		s.logger.Debug().Str("ticker", ticker).Msg("report source served from cache")
		return &cached
	}

	if cached.VerificationStatus == models.ReportSourceVerified && cached.IRHomeURL != "" {
		if s.recheckVerified(ctx, &cached) {
			cached.DiscoveredAt = s.now().UTC().Format(time.RFC3339)
			if cached.Evidence != nil {
				cached.Evidence.VerifiedRecheckAt = cached.DiscoveredAt
				cached.Evidence.RecheckMode = "lightweight"
			}
			if err := s.gateway.WriteJSON(ctx, key, &cached); err != nil {
				s.logger.Warn().Str("ticker", ticker).Err(err).Msg("recheck re-persist failed")
			}
			return &cached
		}
	}
	return nil
}

// recheckVerified confirms a stale verified entry without a full resolve:
// the IR home must still answer, on a plausible host, with IR language. On
// success the secondary links are refreshed from the live page.
func (s *Service) recheckVerified(ctx context.Context, cached *models.ReportSource) bool {
	page, err := s.pages.FetchPage(ctx, cached.IRHomeURL)
	if err != nil {
		return false
	}
	if page.StatusCode < 200 || page.StatusCode >= 400 {
		return false
	}

	host := hostOf(page.FinalURL)
	companyDomain := hostOf(cached.CompanyWebsite)
	hostOK := hasIRSubdomain(host) ||
		(companyDomain != "" && (host == companyDomain || strings.HasSuffix(host, "."+companyDomain)))
	if !hostOK {
		return false
	}

	text := strings.ToLower(page.Title + " " + page.Text)
	hinted := false
	for _, kw := range irKeywords {
		if strings.Contains(text, kw) {
			hinted = true
			break
		}
	}
	if !hinted {
		return false
	}

	s.enrichSecondaryLinks(cached, page, companyDomain)
	return true
}

// resolve runs the full protocol: candidates, scoring, AI verification,
// per-mode picks, fallback, enrichment.
func (s *Service) resolve(ctx context.Context, ticker string) (*models.ReportSource, error) {
	profile, err := s.market.CompanyProfile(ctx, ticker)
	if err != nil {
		s.logger.Debug().Str("ticker", ticker).Err(err).Msg("company profile unavailable")
		profile = nil
	}

	companyDomain, companyName := "", ""
	if profile != nil {
		companyDomain = hostOf(profile.Website)
		companyName = profile.Name
	}

	candidates := s.candidateURLs(ctx, ticker, profile)
	candidates = s.fetchAndScore(ctx, candidates, companyDomain, companyName)
	s.aiVerify(ctx, ticker, companyName, candidates)

	result := &models.ReportSource{
		Ticker:             ticker,
		CompanyName:        companyName,
		VerificationStatus: models.ReportSourceNotFound,
		DiscoveredAt:       s.now().UTC().Format(time.RFC3339),
		Evidence: &models.ReportSourceEvidence{
			CandidateCount: len(candidates),
			AIEnabled:      s.config.ReportSource.EnableAI && s.verifier != nil,
		},
	}
	if profile != nil {
		result.CompanyWebsite = profile.Website
	}

	ir := pickBest(candidates, modeIR, companyDomain)
	if ir != nil {
		result.IRHomeURL = ir.FinalURL
		result.Confidence = clampConfidence(ir.Score / confidenceDivisor)
	}
	if reports := pickBest(candidates, modeReports, companyDomain); reports != nil {
		result.FinancialReportsURL = reports.FinalURL
	}
	if sec := pickBest(candidates, modeSEC, companyDomain); sec != nil {
		result.SECFilingsURL = sec.FinalURL
	}

	if ir == nil {
		s.applyFallback(ticker, result, len(candidates))
	}

	if result.IRHomeURL != "" && (result.FinancialReportsURL == "" || result.SECFilingsURL == "") && ir != nil && ir.page != nil {
		s.enrichSecondaryLinks(result, ir.page, companyDomain)
	}

	switch {
	case result.IRHomeURL != "" && (result.FinancialReportsURL != "" || result.SECFilingsURL != ""):
		if result.Evidence.Fallback == nil || !result.Evidence.Fallback.Used {
			result.VerificationStatus = models.ReportSourceVerified
		}
	case result.IRHomeURL != "":
		result.VerificationStatus = models.ReportSourcePartial
	default:
		result.VerificationStatus = models.ReportSourceNotFound
		result.Confidence = 0
	}

	result.Evidence.Candidates = evidenceCandidates(candidates)

	s.logger.Info().Str("ticker", ticker).Str("status", result.VerificationStatus).Float64("confidence", result.Confidence).Msg("report source resolved")
	return result, nil
}

// applyFallback installs the static hints as an unverified partial result
// with a fixed low confidence.
func (s *Service) applyFallback(ticker string, result *models.ReportSource, candidateCount int) {
	hints, ok := s.hints[ticker]
	if !ok || hints.IR == "" {
		return
	}

	result.IRHomeURL = hints.IR
	result.FinancialReportsURL = hints.Reports
	result.SECFilingsURL = hints.SEC
	result.VerificationStatus = models.ReportSourcePartial
	result.Confidence = 0.22
	result.Evidence.Fallback = &models.FallbackEvidence{
		Mode:   "ticker_hint_unverified",
		Reason: fmt.Sprintf("no candidate passed the ir gate (%d scored)", candidateCount),
		Used:   true,
	}
}

// pickBest selects the highest-scoring candidate that passes the mode's
// gates.
func pickBest(candidates []candidate, mode string, companyDomain string) *candidate {
	var best *candidate
	for i := range candidates {
		c := &candidates[i]
		if c.page == nil {
			continue
		}

		hard := hardSignal(c, mode)
		if mode != modeIR {
			allowed := c.CompanyDomainMatch
			if mode == modeSEC && strings.HasSuffix(c.host, "sec.gov") {
				allowed = true
			}
			if !allowed || !hard {
				continue
			}
		}

		score := c.Score
		if homeLike(c.path) && !(mode == modeIR && c.irSubdomain) {
			score -= 12
		}

		threshold := float64(minScoreSecondary)
		if mode == modeIR {
			if hard {
				threshold = minScoreIRHardSignal
			} else {
				threshold = minScoreIRSoft
			}
		}
		if score < threshold {
			continue
		}
		if best == nil || score > best.Score {
			best = c
		}
	}
	return best
}

// enrichSecondaryLinks fills missing reports/sec URLs from the IR page's
// outbound links.
func (s *Service) enrichSecondaryLinks(result *models.ReportSource, irPage *models.PageSnapshot, companyDomain string) {
	if result.FinancialReportsURL == "" {
		if link := bestLinkFit(irPage.Links, modeReports, companyDomain); link != "" {
			result.FinancialReportsURL = link
		}
	}
	if result.SECFilingsURL == "" {
		if link := bestLinkFit(irPage.Links, modeSEC, companyDomain); link != "" {
			result.SECFilingsURL = link
		}
	}
}

// bestLinkFit scores each outbound link for mode fit on path and domain
// rules alone; the page behind it is not fetched.
func bestLinkFit(links []string, mode string, companyDomain string) string {
	bestScore := 0.0
	best := ""
	for _, link := range links {
		score := linkFitScore(link, mode, companyDomain)
		if score >= minScoreLinkFit && score > bestScore {
			bestScore = score
			best = link
		}
	}
	return best
}

func linkFitScore(link, mode, companyDomain string) float64 {
	lowered := strings.ToLower(link)
	host := hostOf(link)
	score := 0.0

	switch mode {
	case modeReports:
		for segment, bonus := range map[string]float64{
			"report": 6, "financial": 5, "results": 4, "annual": 3, "quarterly": 3, "earnings": 4,
		} {
			if strings.Contains(lowered, segment) {
				score += bonus
			}
		}
	case modeSEC:
		if strings.HasSuffix(host, "sec.gov") {
			score += 12
		}
		for segment, bonus := range map[string]float64{
			"sec-filings": 8, "filings": 8, "edgar": 8, "proxy": 3,
		} {
			if strings.Contains(lowered, segment) {
				score += bonus
			}
		}
	}

	if companyDomain != "" && (host == companyDomain || strings.HasSuffix(host, "."+companyDomain)) {
		score += 4
	}
	return score
}

func evidenceCandidates(candidates []candidate) []models.CandidateScore {
	scores := make([]models.CandidateScore, 0, len(candidates))
	for _, c := range candidates {
		scores = append(scores, c.CandidateScore)
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	if len(scores) > evidenceCandidateCap {
		scores = scores[:evidenceCandidateCap]
	}
	return scores
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
