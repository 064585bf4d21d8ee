package stats

import (
	"time"

	"github.com/linnemanlabs/watchtower/internal/alert"
)

// Options controls Compute.
type Options struct {
	// Now anchors the due-window, rate and daily trend calculations.
	Now time.Time
	// Location is used for hour-of-day and calendar-day bucketing. Nil means UTC.
	Location *time.Location
	// Severity is FilterAll or a severity name, used for the active view.
	Severity string
}

// Summary is every statistic of the alarm center for one scoped alert set.
type Summary struct {
	Total         int                    `json:"total"`
	Counts        map[alert.Severity]int `json:"counts"`
	Buckets       Buckets                `json:"buckets"`
	Statuses      StatusBuckets          `json:"statuses"`
	Active        []alert.Normalized     `json:"active"`
	Due           DueWindow              `json:"due"`
	Categories    []CategoryShare        `json:"categories"`
	TopCategories []CategoryShare        `json:"topCategories"`
	Flood         Flood                  `json:"flood"`
	AvgPerHour    float64                `json:"avgPerHour"`
	Hourly        [24]int                `json:"hourly"`
	Daily         []DayBucket            `json:"daily"`
}

// Compute derives the full summary from scratch. It keeps no state between calls.
func Compute(ns []alert.Normalized, opts Options) Summary {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	b := BySeverity(ns)
	cats := Categories(ns)
	return Summary{
		Total:         len(ns),
		Counts:        b.Counts(),
		Buckets:       b,
		Statuses:      ByStatus(ns),
		Active:        Active(b, opts.Severity),
		Due:           Due(ns, now),
		Categories:    cats,
		TopCategories: TopCategories(cats),
		Flood:         FloodRatio(ns),
		AvgPerHour:    AveragePerHour(ns, now),
		Hourly:        Hourly(ns, loc),
		Daily:         Daily(ns, now, loc),
	}
}
