package reportsource

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stockflow/engine/internal/models"
)

// aiVerifyTimeout bounds one external classifier call.
const aiVerifyTimeout = 20 * time.Second

// aiVerifyTopN limits classifier spend to the strongest candidates.
const aiVerifyTopN = 3

// hintSet is a curated report-source hint for one ticker, used both as
// high-priority candidates and as the unverified fallback.
type hintSet struct {
	IR      string
	Reports string
	SEC     string
}

// defaultTickerHints covers companies whose IR platforms resist automated
// discovery (bot walls, nonstandard domains).
var defaultTickerHints = map[string]hintSet{
	"AAPL": {
		IR:      "https://investor.apple.com/investor-relations/default.aspx",
		Reports: "https://investor.apple.com/earnings/default.aspx",
		SEC:     "https://investor.apple.com/sec-filings/default.aspx",
	},
	"MSFT": {
		IR:      "https://www.microsoft.com/en-us/investor",
		Reports: "https://www.microsoft.com/en-us/investor/earnings/overview.aspx",
		SEC:     "https://www.microsoft.com/en-us/investor/sec-filings.aspx",
	},
	"NVDA": {
		IR:      "https://investor.nvidia.com/home/default.aspx",
		Reports: "https://investor.nvidia.com/financial-info/financial-reports/default.aspx",
		SEC:     "https://investor.nvidia.com/financial-info/sec-filings/default.aspx",
	},
	"TSLA": {
		IR:      "https://ir.tesla.com",
		Reports: "https://ir.tesla.com/#quarterly-disclosure",
		SEC:     "https://ir.tesla.com/sec-filings",
	},
	"GOOGL": {
		IR:      "https://abc.xyz/investor/",
		Reports: "https://abc.xyz/investor/earnings/",
		SEC:     "https://abc.xyz/investor/sec-filings/",
	},
}

var searchQueryTemplates = []string{
	"%s investor relations",
	"%s financial results investor relations",
	"%s annual report",
}

// candidateURLs assembles the prioritized, deduplicated candidate list:
// ticker hints, domain patterns, then search hits, capped at the configured
// maximum.
func (s *Service) candidateURLs(ctx context.Context, ticker string, profile *models.CompanyProfile) []candidate {
	limit := s.config.ReportSource.CandidateCap()
	seen := make(map[string]bool)
	var out []candidate

	add := func(raw, source string) {
		raw = strings.TrimSpace(raw)
		if raw == "" || len(out) >= limit {
			return
		}
		key := strings.TrimSuffix(strings.ToLower(raw), "/")
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, candidate{CandidateScore: models.CandidateScore{URL: raw, Source: source}})
	}

	if hints, ok := s.hints[ticker]; ok {
		add(hints.IR, "hint")
		add(hints.Reports, "hint")
		add(hints.SEC, "hint")
	}

	if profile != nil {
		for _, pattern := range domainPatterns(hostOf(profile.Website)) {
			add(pattern, "domain_pattern")
		}
	}

	for _, query := range s.searchQueries(ticker, profile) {
		results, err := s.search.Search(ctx, query, 5)
		if err != nil {
			s.logger.Debug().Str("query", query).Err(err).Msg("report-source search failed")
			continue
		}
		for _, r := range results {
			add(r.URL, "search")
		}
	}

	return out
}

// domainPatterns derives sister-domain and path candidates from the
// company's website domain.
func domainPatterns(domain string) []string {
	if domain == "" {
		return nil
	}
	return []string{
		"https://investor." + domain,
		"https://investors." + domain,
		"https://ir." + domain,
		"https://stock." + domain,
		"https://" + domain + "/investor-relations",
		"https://" + domain + "/investors",
		"https://" + domain + "/investor-relations/default.aspx",
		"https://" + domain + "/reports.html",
		"https://" + domain + "/annual-reports",
		"https://" + domain + "/financials",
		"https://" + domain + "/sec-filings",
	}
}

func (s *Service) searchQueries(ticker string, profile *models.CompanyProfile) []string {
	var queries []string
	for _, tpl := range searchQueryTemplates {
		queries = append(queries, fmt.Sprintf(tpl, ticker))
	}
	if profile != nil && profile.Name != "" {
		queries = append(queries, fmt.Sprintf("%s investor relations", profile.Name))
	}
	return queries
}

// fetchAndScore snapshots every candidate page and scores it.
func (s *Service) fetchAndScore(ctx context.Context, candidates []candidate, companyDomain, companyName string) []candidate {
	for i := range candidates {
		page, err := s.pages.FetchPage(ctx, candidates[i].URL)
		if err != nil {
			s.logger.Debug().Str("url", candidates[i].URL).Err(err).Msg("candidate fetch failed")
		}
		candidates[i].page = page
		scoreCandidate(&candidates[i], companyDomain, companyName)
	}
	return candidates
}

// aiVerify re-scores the strongest candidates through the external
// classifier: verified pages gain, confidently rejected ones lose.
func (s *Service) aiVerify(ctx context.Context, ticker, companyName string, candidates []candidate) {
	if !s.config.ReportSource.EnableAI || s.verifier == nil {
		return
	}

	verified := 0
	for _, idx := range topCandidates(candidates, aiVerifyTopN) {
		c := &candidates[idx]
		if c.page == nil {
			continue
		}

		verifyCtx, cancel := context.WithTimeout(ctx, aiVerifyTimeout)
		verdict, err := s.verifier.VerifyIRPage(verifyCtx, ticker, companyName, c.page)
		cancel()
		if err != nil {
			s.logger.Debug().Str("url", c.URL).Err(err).Msg("ai verification failed")
			continue
		}

		ok := verdict.IsOfficialIRPage
		c.AIVerified = &ok
		c.AIConfidence = verdict.Confidence
		if ok {
			c.Score += 10 + 8*verdict.Confidence
			verified++
		} else if verdict.Confidence >= 0.7 {
			c.Score -= 20
		}
	}
	s.logger.Debug().Str("ticker", ticker).Int("verified", verified).Msg("ai verification done")
}

// topCandidates returns the indices of the n highest-scoring candidates.
func topCandidates(candidates []candidate, n int) []int {
	idx := make([]int, 0, len(candidates))
	for i := range candidates {
		idx = append(idx, i)
	}
	for i := 0; i < len(idx); i++ {
		for j := i + 1; j < len(idx); j++ {
			if candidates[idx[j]].Score > candidates[idx[i]].Score {
				idx[i], idx[j] = idx[j], idx[i]
			}
		}
	}
	if len(idx) > n {
		idx = idx[:n]
	}
	return idx
}
