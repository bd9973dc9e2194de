package common

import (
	"regexp"
	"strings"
	"time"
)

var (
	slugStrip    = regexp.MustCompile(`[^a-z0-9]+`)
	sentenceTerm = regexp.MustCompile(`(?:[。.!?？!])\s*`)
)

// Slug lowercases a string and collapses every non-alphanumeric run into a
// single hyphen. Used for dedupe hashes and artifact filenames.
func Slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugStrip.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// SplitSentences splits text on Chinese and English terminal punctuation.
func SplitSentences(text string) []string {
	if text == "" {
		return nil
	}
	var out []string
	last := 0
	for _, loc := range sentenceTerm.FindAllStringIndex(text, -1) {
		s := strings.TrimSpace(text[last:loc[1]])
		if s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if tail := strings.TrimSpace(text[last:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

// Summarize returns the first maxSentences sentences of text joined by spaces.
func Summarize(text string, maxSentences int) string {
	sentences := SplitSentences(text)
	if len(sentences) > maxSentences {
		sentences = sentences[:maxSentences]
	}
	return strings.Join(sentences, " ")
}

// CollapseWhitespace reduces all whitespace runs to single spaces.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate cuts s at maxChars, snapping back to the last whitespace and
// appending an ellipsis. Strings at or under the limit pass through.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	cut := s[:maxChars]
	if idx := strings.LastIndexAny(cut, " \t\n"); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " \t\n") + "..."
}

func splitAndTrim(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DateString formats t as the canonical YYYY-MM-DD key.
func DateString(t time.Time) string {
	return t.Format("2006-01-02")
}

// ParseDate parses a canonical YYYY-MM-DD key.
func ParseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

// Midnight normalizes t to 00:00:00 UTC on its calendar date. Daily rows are
// keyed by calendar date in UTC.
func Midnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// IsTradingDay reports whether d falls on a weekday. Exchange holidays are
// not modeled; the daily jobs tolerate empty fetches on holidays.
func IsTradingDay(d time.Time) bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// LatestExpectedTradingDay walks back from today to the most recent weekday.
func LatestExpectedTradingDay(today time.Time) time.Time {
	d := today
	for !IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}
