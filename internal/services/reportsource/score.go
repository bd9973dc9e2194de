package reportsource

import (
	"net/url"
	"strings"

	"github.com/stockflow/engine/internal/models"
)

// Resolver modes. Each picks one URL of the final ReportSource.
const (
	modeIR      = "ir"
	modeReports = "reports"
	modeSEC     = "sec"
)

// Minimum scores a candidate must reach to be picked.
const (
	minScoreIRHardSignal = 18
	minScoreIRSoft       = 24
	minScoreSecondary    = 30
	minScoreLinkFit      = 10
)

var irKeywords = []string{
	"investor relations", "investor-relations", "shareholder",
	"earnings", "quarterly results", "financial results",
}

var financialKeywords = []string{
	"annual report", "quarterly report", "financial statements",
	"balance sheet", "income statement", "press release",
}

var secKeywords = []string{
	"sec filings", "10-k", "10-q", "8-k", "edgar", "proxy statement",
}

var irURLSegments = map[string]float64{
	"investor":           10,
	"financial-results":  9,
	"earnings":           8,
	"/home/default.aspx": 10,
	"annual-report":      9,
	"shareholder":        8,
}

// badHosts are aggregators and quote sites that never host an official IR
// surface.
var badHosts = []string{
	"finance.yahoo.com", "seekingalpha.com", "marketwatch.com",
	"fool.com", "benzinga.com", "investing.com", "stocktwits.com",
	"wikipedia.org", "reddit.com", "tradingview.com", "morningstar.com",
}

var errorPageMarkers = []string{
	"page not found", "404 error", "access denied", "forbidden",
	"this page isn't available", "something went wrong",
}

var botChallengeMarkers = []string{
	"verify you are human", "enable javascript and cookies",
	"checking your browser", "captcha",
}

var irSubdomainPrefixes = []string{"ir.", "investor.", "investors.", "stock."}

// candidate is one URL under evaluation, with the page snapshot and the
// derived signals the pick logic needs.
type candidate struct {
	models.CandidateScore

	page        *models.PageSnapshot
	host        string
	path        string
	irSubdomain bool
	sisterMatch bool
	exactMatch  bool
}

// scoreCandidate fills the candidate's score from its page snapshot against
// the company's domain and name.
func scoreCandidate(c *candidate, companyDomain, companyName string) {
	page := c.page
	if page == nil {
		c.Score = -120
		return
	}

	c.host = hostOf(page.FinalURL)
	c.path = strings.ToLower(pathOf(page.FinalURL))
	c.irSubdomain = hasIRSubdomain(c.host)
	c.exactMatch = companyDomain != "" && c.host == companyDomain
	c.sisterMatch = companyDomain != "" && !c.exactMatch && strings.HasSuffix(c.host, "."+companyDomain)
	c.CompanyDomainMatch = c.exactMatch || c.sisterMatch
	c.StatusCode = page.StatusCode
	c.Title = page.Title
	c.FinalURL = page.FinalURL

	score := 0.0

	switch {
	case page.StatusCode >= 200 && page.StatusCode < 300:
		score += 12
	case page.StatusCode >= 300 && page.StatusCode < 400:
		score += 4
	case page.StatusCode == 403 || page.StatusCode == 429:
		// Many IR platforms bot-block; an IR-looking URL still counts.
		if c.irSubdomain {
			score += 18
		} else if strings.Contains(c.path, "investor") {
			score += 8
		} else {
			score -= 20
		}
	default:
		score -= 20
	}

	if strings.Contains(strings.ToLower(page.ContentType), "text/html") {
		score += 2
	}
	if c.exactMatch {
		score += 20
	} else if c.sisterMatch {
		score += 11
	}

	text := strings.ToLower(page.Title + " " + page.Text)
	irHits := 0
	for _, kw := range irKeywords {
		if strings.Contains(text, kw) && irHits < 8 {
			irHits++
			score += 6
			c.MatchedKeywords = append(c.MatchedKeywords, kw)
		}
	}
	for _, kw := range financialKeywords {
		if strings.Contains(text, kw) {
			score += 4
			c.MatchedKeywords = append(c.MatchedKeywords, kw)
		}
	}
	for _, kw := range secKeywords {
		if strings.Contains(text, kw) {
			score += 4
			c.MatchedKeywords = append(c.MatchedKeywords, kw)
		}
	}

	lowered := strings.ToLower(page.FinalURL)
	for segment, bonus := range irURLSegments {
		if strings.Contains(lowered, segment) {
			score += bonus
		}
	}

	for _, token := range nameTokens(companyName, 2) {
		if strings.Contains(text, token) {
			score += 3
		}
	}

	if looksLikeErrorPage(text) {
		// Challenge pages on a dedicated IR subdomain are tolerated; the
		// platform is blocking the crawler, not missing.
		if !(c.irSubdomain && looksLikeBotChallenge(text)) {
			score -= 120
		}
	}
	if isBadHost(c.host) {
		score -= 45
	}

	c.Score = score
}

// hardSignal reports whether a candidate carries the mode's direct evidence,
// independent of its numeric score.
func hardSignal(c *candidate, mode string) bool {
	text := ""
	if c.page != nil {
		text = strings.ToLower(c.page.Title + " " + c.page.Text)
	}

	switch mode {
	case modeIR:
		return c.irSubdomain ||
			strings.Contains(c.path, "investor") ||
			strings.Contains(text, "investor relations")
	case modeReports:
		return strings.Contains(c.path, "report") ||
			strings.Contains(c.path, "financial") ||
			strings.Contains(c.path, "results") ||
			strings.Contains(text, "annual report")
	case modeSEC:
		return strings.HasSuffix(c.host, "sec.gov") ||
			strings.Contains(c.path, "sec-filings") ||
			strings.Contains(c.path, "filings") ||
			strings.Contains(text, "sec filings") ||
			strings.Contains(text, "edgar")
	}
	return false
}

// homeLike reports whether the URL points at a generic landing path.
func homeLike(path string) bool {
	p := strings.TrimSuffix(strings.ToLower(path), "/")
	return p == "" || p == "/en-us" || p == "/home" || strings.HasPrefix(p, "/default")
}

func hasIRSubdomain(host string) bool {
	for _, prefix := range irSubdomainPrefixes {
		if strings.HasPrefix(host, prefix) {
			return true
		}
	}
	return false
}

func isBadHost(host string) bool {
	for _, bad := range badHosts {
		if host == bad || strings.HasSuffix(host, "."+bad) {
			return true
		}
	}
	return false
}

func looksLikeErrorPage(text string) bool {
	for _, marker := range errorPageMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return looksLikeBotChallenge(text)
}

func looksLikeBotChallenge(text string) bool {
	for _, marker := range botChallengeMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func nameTokens(name string, max int) []string {
	var out []string
	for _, token := range strings.Fields(strings.ToLower(name)) {
		token = strings.Trim(token, ".,")
		if len(token) < 3 || token == "inc" || token == "corp" || token == "the" {
			continue
		}
		out = append(out, token)
		if len(out) == max {
			break
		}
	}
	return out
}

func hostOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func pathOf(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return u.Path
}
