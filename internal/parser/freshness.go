package parser

import (
	"fmt"
	"time"
)

// Tier is a coarse recency classification of a message. Tiers form a total
// order: hot > warm > cold > stale. Unknown is the neutral tier for
// messages without a timestamp.
type Tier string

const (
	TierHot     Tier = "hot"
	TierWarm    Tier = "warm"
	TierCold    Tier = "cold"
	TierStale   Tier = "stale"
	TierUnknown Tier = "unknown"
)

// tierRank orders tiers hottest-first. Unknown deliberately sorts below
// stale so that an undated message never outranks a dated one.
var tierRank = map[Tier]int{
	TierHot:     4,
	TierWarm:    3,
	TierCold:    2,
	TierStale:   1,
	TierUnknown: 0,
}

// Hotter reports whether tier a classifies strictly fresher than tier b.
func Hotter(a, b Tier) bool {
	return tierRank[a] > tierRank[b]
}

// FreshnessPolicy carries the tier boundaries. Boundaries are inclusive
// upper bounds in days and must be strictly increasing; config validation
// enforces that before a policy reaches this package.
type FreshnessPolicy struct {
	HotMaxAge  time.Duration
	WarmMaxAge time.Duration
	ColdMaxAge time.Duration
}

// DefaultFreshnessPolicy matches the configuration defaults (1/3/7 days).
func DefaultFreshnessPolicy() FreshnessPolicy {
	return FreshnessPolicy{
		HotMaxAge:  24 * time.Hour,
		WarmMaxAge: 3 * 24 * time.Hour,
		ColdMaxAge: 7 * 24 * time.Hour,
	}
}

// Classify maps a message timestamp to a freshness tier and a human-readable
// age string. An absent timestamp is a valid input and yields the unknown
// tier, never an error. The mapping is monotonic in elapsed time.
func Classify(ts *time.Time, now time.Time, p FreshnessPolicy) (Tier, string) {
	if ts == nil {
		return TierUnknown, "unknown date"
	}

	age := now.Sub(*ts)
	if age < 0 {
		age = 0
	}

	var tier Tier
	switch {
	case age <= p.HotMaxAge:
		tier = TierHot
	case age <= p.WarmMaxAge:
		tier = TierWarm
	case age <= p.ColdMaxAge:
		tier = TierCold
	default:
		tier = TierStale
	}

	return tier, formatAge(age)
}

// formatAge renders an elapsed duration as a short display string.
func formatAge(age time.Duration) string {
	days := int(age.Hours() / 24)
	switch {
	case days == 0:
		return "today"
	case days == 1:
		return "yesterday"
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	case days < 30:
		weeks := days / 7
		if weeks == 1 {
			return "1 week ago"
		}
		return fmt.Sprintf("%d weeks ago", weeks)
	default:
		months := days / 30
		if months == 1 {
			return "1 month ago"
		}
		return fmt.Sprintf("%d months ago", months)
	}
}
