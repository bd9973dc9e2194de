package models

// PageSnapshot is a bounded capture of one fetched page.
type PageSnapshot struct {
	URL         string   `json:"url"`
	FinalURL    string   `json:"final_url"`
	StatusCode  int      `json:"status_code"`
	ContentType string   `json:"content_type,omitempty"`
	Title       string   `json:"title,omitempty"`
	Text        string   `json:"text,omitempty"`
	Links       []string `json:"links,omitempty"`
}

// CandidateScore is one scored report-source candidate, persisted as
// evidence.
type CandidateScore struct {
	URL                string   `json:"url"`
	FinalURL           string   `json:"final_url"`
	Source             string   `json:"source"`
	Score              float64  `json:"score"`
	MatchedKeywords    []string `json:"matched_keywords,omitempty"`
	StatusCode         int      `json:"status_code"`
	Title              string   `json:"title,omitempty"`
	Snippet            string   `json:"snippet,omitempty"`
	CompanyDomainMatch bool     `json:"company_domain_match"`
	AIVerified         *bool    `json:"ai_verified,omitempty"`
	AIConfidence       float64  `json:"ai_confidence,omitempty"`
}

// FallbackEvidence marks that ticker hints were used instead of a verified
// candidate.
type FallbackEvidence struct {
	Mode   string `json:"mode"`
	Reason string `json:"reason,omitempty"`
	Used   bool   `json:"used"`
}

// ReportSourceEvidence carries the audit trail of one resolution.
type ReportSourceEvidence struct {
	CandidateCount    int               `json:"candidate_count"`
	Candidates        []CandidateScore  `json:"candidates"`
	AIEnabled         bool              `json:"ai_enabled"`
	Fallback          *FallbackEvidence `json:"fallback,omitempty"`
	VerifiedRecheckAt string            `json:"verified_recheck_at,omitempty"`
	RecheckMode       string            `json:"recheck_mode,omitempty"`
}

// Report-source verification states.
const (
	ReportSourceVerified = "verified"
	ReportSourcePartial  = "partial"
	ReportSourceNotFound = "not_found"
	ReportSourceError    = "error"
)

// ReportSource is a company's resolved investor-relations surface.
// "verified" requires IRHomeURL plus at least one secondary link; "partial"
// requires IRHomeURL without both secondaries; "not_found" zeroes confidence.
type ReportSource struct {
	Ticker             string                `json:"ticker"`
	CompanyName        string                `json:"company_name,omitempty"`
	CompanyWebsite     string                `json:"company_website,omitempty"`
	IRHomeURL          string                `json:"ir_home_url,omitempty"`
	FinancialReportsURL string               `json:"financial_reports_url,omitempty"`
	SECFilingsURL      string                `json:"sec_filings_url,omitempty"`
	Confidence         float64               `json:"confidence"`
	VerificationStatus string                `json:"verification_status"`
	DiscoveredAt       string                `json:"discovered_at"`
	Evidence           *ReportSourceEvidence `json:"evidence,omitempty"`
}

// IRVerdict is the external classifier's answer for one candidate page.
type IRVerdict struct {
	IsOfficialIRPage bool    `json:"is_official_ir_page"`
	Confidence       float64 `json:"confidence"`
	Reason           string  `json:"reason,omitempty"`
	PageKind         string  `json:"page_kind,omitempty"`
}
