package parser_test

import (
	"testing"
	"time"

	"github.com/leadscout/leadscout/internal/parser"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	policy := parser.DefaultFreshnessPolicy()

	tests := []struct {
		name    string
		age     time.Duration
		tier    parser.Tier
		display string
	}{
		{"two hours", 2 * time.Hour, parser.TierHot, "today"},
		{"exactly one day", 24 * time.Hour, parser.TierHot, "yesterday"},
		{"two days", 2 * 24 * time.Hour, parser.TierWarm, "2 days ago"},
		{"five days", 5 * 24 * time.Hour, parser.TierCold, "5 days ago"},
		{"ten days", 10 * 24 * time.Hour, parser.TierStale, "1 week ago"},
		{"three weeks", 21 * 24 * time.Hour, parser.TierStale, "3 weeks ago"},
		{"two months", 65 * 24 * time.Hour, parser.TierStale, "2 months ago"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ts := now.Add(-tt.age)
			tier, display := parser.Classify(&ts, now, policy)
			if tier != tt.tier {
				t.Errorf("tier = %q, want %q", tier, tt.tier)
			}
			if display != tt.display {
				t.Errorf("display = %q, want %q", display, tt.display)
			}
		})
	}
}

func TestClassifyNilTimestamp(t *testing.T) {
	t.Parallel()

	tier, display := parser.Classify(nil, time.Now(), parser.DefaultFreshnessPolicy())
	if tier != parser.TierUnknown {
		t.Errorf("tier = %q, want unknown", tier)
	}
	if display != "unknown date" {
		t.Errorf("display = %q", display)
	}
}

func TestClassifyFutureTimestamp(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	tier, display := parser.Classify(&future, now, parser.DefaultFreshnessPolicy())
	if tier != parser.TierHot || display != "today" {
		t.Errorf("future timestamp = (%q, %q), want (hot, today)", tier, display)
	}
}

// A 1-day-old message must classify strictly hotter than a 10-day-old one.
func TestFreshnessMonotonicity(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	policy := parser.DefaultFreshnessPolicy()

	oneDay := now.Add(-24 * time.Hour)
	tenDays := now.Add(-10 * 24 * time.Hour)
	a, _ := parser.Classify(&oneDay, now, policy)
	b, _ := parser.Classify(&tenDays, now, policy)
	if !parser.Hotter(a, b) {
		t.Errorf("Hotter(%q, %q) = false, want true", a, b)
	}
}

func TestHotterOrdering(t *testing.T) {
	t.Parallel()

	order := []parser.Tier{parser.TierHot, parser.TierWarm, parser.TierCold, parser.TierStale, parser.TierUnknown}
	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			if !parser.Hotter(order[i], order[j]) {
				t.Errorf("Hotter(%q, %q) = false, want true", order[i], order[j])
			}
			if parser.Hotter(order[j], order[i]) {
				t.Errorf("Hotter(%q, %q) = true, want false", order[j], order[i])
			}
		}
		if parser.Hotter(order[i], order[i]) {
			t.Errorf("Hotter(%q, %q) = true, want false", order[i], order[i])
		}
	}
}
