package financial

import (
	"time"

	"github.com/stockflow/engine/internal/models"
)

// Refresh reasons recorded in cache_meta and surfaced to callers.
const (
	ReasonForceRefresh              = "force_refresh"
	ReasonColdStart                 = "cold_start"
	ReasonMissingLastRefreshDate    = "missing_last_refresh_date"
	ReasonBeforeCachedEarningsDay   = "before_cached_earnings_day"
	ReasonCachedEarningsDayPassed   = "cached_earnings_day_passed"
	ReasonAlreadyRefreshedAfterCach = "already_refreshed_after_cached_earnings"
	ReasonNoEarningsStaleTimeout    = "no_earnings_date_stale_timeout"
	ReasonNoEarningsRecent          = "no_earnings_date_recent"
	ReasonBeforeEarningsDay         = "before_earnings_day"
	ReasonAlreadyRefreshedAfter     = "already_refreshed_after_earnings"
	ReasonEarningsDayPassed         = "earnings_day_passed"
)

// shouldRefresh decides whether a snapshot needs an upstream refresh,
// consulting the cached and freshly reported next-earnings dates. Dates are
// compared as YYYY-MM-DD strings in UTC.
func shouldRefresh(snap *models.FinancialSnapshot, upstreamNext string, force bool, now time.Time, noEarningsStalenessDays int) (bool, string) {
	if force {
		return true, ReasonForceRefresh
	}
	if snap == nil {
		return true, ReasonColdStart
	}

	lastRefresh, ok := lastRefreshTime(snap)
	if !ok {
		return true, ReasonMissingLastRefreshDate
	}

	today := now.UTC().Format("2006-01-02")
	lastRefreshDay := lastRefresh.UTC().Format("2006-01-02")

	if cached := cachedNextEarnings(snap); cached != "" {
		if today < cached {
			return false, ReasonBeforeCachedEarningsDay
		}
		if lastRefreshDay < cached {
			return true, ReasonCachedEarningsDayPassed
		}
		if upstreamNext == "" || upstreamNext <= cached {
			return false, ReasonAlreadyRefreshedAfterCach
		}
		// Upstream moved the calendar forward; fall through and compare
		// against the new date.
	}

	if upstreamNext == "" {
		staleness := now.Sub(lastRefresh)
		if staleness >= time.Duration(noEarningsStalenessDays)*24*time.Hour {
			return true, ReasonNoEarningsStaleTimeout
		}
		return false, ReasonNoEarningsRecent
	}

	if today < upstreamNext {
		return false, ReasonBeforeEarningsDay
	}
	if lastRefreshDay >= upstreamNext {
		return false, ReasonAlreadyRefreshedAfter
	}
	return true, ReasonEarningsDayPassed
}

func lastRefreshTime(snap *models.FinancialSnapshot) (time.Time, bool) {
	if snap.CacheMeta == nil || snap.CacheMeta.LastRefreshedAt == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, snap.CacheMeta.LastRefreshedAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func cachedNextEarnings(snap *models.FinancialSnapshot) string {
	if snap.CacheMeta == nil {
		return ""
	}
	return snap.CacheMeta.NextEarningsDate
}
