package pains

import (
	"database/sql"
	"strings"
	"time"
)

// emptyTextSentinel replaces pain text or quotes the model returned blank.
const emptyTextSentinel = "(not provided)"

// categories is the fixed enumeration pains are normalized against.
// Anything the model invents outside this set becomes "other".
var categories = map[string]bool{
	"marketing":  true,
	"sales":      true,
	"operations": true,
	"finance":    true,
	"hiring":     true,
	"product":    true,
	"tech":       true,
	"legal":      true,
	"other":      true,
}

// NormalizeText trims a pain text or quote, substituting a sentinel when
// the result is empty.
func NormalizeText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return emptyTextSentinel
	}
	return s
}

// NormalizeCategory maps a model-supplied category onto the fixed
// enumeration; unrecognized values become "other".
func NormalizeCategory(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if categories[s] {
		return s
	}
	return "other"
}

// NormalizeIntensity maps a model-supplied intensity onto {low, medium,
// high}; unrecognized values become "low".
func NormalizeIntensity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return "low"
	case "medium":
		return "medium"
	case "high":
		return "high"
	default:
		return "low"
	}
}

// IntensityScore maps an intensity label to its numeric value for
// averaging: low=1, medium=2, high=3.
func IntensityScore(intensity string) float64 {
	switch NormalizeIntensity(intensity) {
	case "high":
		return 3
	case "medium":
		return 2
	default:
		return 1
	}
}

// normalizeDate converts a message timestamp to UTC for storage. An absent
// timestamp yields a null, not an error.
func normalizeDate(ts *time.Time) sql.NullTime {
	if ts == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: ts.UTC(), Valid: true}
}
