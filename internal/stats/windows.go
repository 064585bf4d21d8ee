package stats

import (
	"math"
	"sort"
	"time"

	"github.com/linnemanlabs/watchtower/internal/alert"
)

const (
	// DueSoonHours is the upper bound of the due-soon window.
	DueSoonHours = 12.0

	// BurstWindow is the trailing window used for flood detection.
	BurstWindow = 10 * time.Minute

	// BurstThreshold is the alert count within BurstWindow that marks a burst.
	BurstThreshold = 10

	// DefaultCategory labels alerts without a category.
	DefaultCategory = "Other"

	// TopCategoryCount is how many categories TopCategories keeps.
	TopCategoryCount = 3
)

// DueWindow counts active alerts by how close they are to their due time.
type DueWindow struct {
	DueSoon int `json:"dueSoon"`
	Overdue int `json:"overdue"`
	// Eligible is the number of active alerts with a due time.
	Eligible int `json:"eligible"`
	// MeanHours is the mean hours until due across eligible alerts, negative when overdue on average.
	MeanHours float64 `json:"meanHours"`
}

// Due classifies every active alert with a due time relative to now.
func Due(ns []alert.Normalized, now time.Time) DueWindow {
	var (
		w   DueWindow
		sum float64
	)
	for _, n := range ns {
		if !n.Status.Active() || n.Alert.DueAt == nil {
			continue
		}
		diff := n.Alert.DueAt.Sub(now).Hours()
		w.Eligible++
		sum += diff
		switch {
		case diff < 0:
			w.Overdue++
		case diff <= DueSoonHours:
			w.DueSoon++
		}
	}
	if w.Eligible > 0 {
		w.MeanHours = sum / float64(w.Eligible)
	}
	return w
}

// CategoryShare is one row of the category distribution.
type CategoryShare struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
	// Share is the rounded percentage of the scoped total.
	Share int `json:"share"`
}

// Categories groups ns by category, largest first. Ties are ordered by name.
func Categories(ns []alert.Normalized) []CategoryShare {
	if len(ns) == 0 {
		return []CategoryShare{}
	}
	counts := make(map[string]int)
	for _, n := range ns {
		c := n.Alert.Category
		if c == "" {
			c = DefaultCategory
		}
		counts[c]++
	}

	total := float64(len(ns))
	out := make([]CategoryShare, 0, len(counts))
	for c, cnt := range counts {
		out = append(out, CategoryShare{
			Category: c,
			Count:    cnt,
			Share:    int(math.Round(float64(cnt) / total * 100)),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// TopCategories returns the first TopCategoryCount rows of a sorted distribution.
func TopCategories(shares []CategoryShare) []CategoryShare {
	if len(shares) > TopCategoryCount {
		return shares[:TopCategoryCount]
	}
	return shares
}

// BurstEvents marks every alert that falls inside a trailing BurstWindow,
// ending at some alert of the set, that holds at least BurstThreshold alerts.
// The result is indexed like ns. Quadratic in len(ns); scoped sets are small.
func BurstEvents(ns []alert.Normalized) []bool {
	marks := make([]bool, len(ns))
	for i := range ns {
		end := ns[i].Alert.RaisedAt
		start := end.Add(-BurstWindow)

		var members []int
		for j := range ns {
			t := ns[j].Alert.RaisedAt
			if !t.Before(start) && !t.After(end) {
				members = append(members, j)
			}
		}
		if len(members) >= BurstThreshold {
			for _, j := range members {
				marks[j] = true
			}
		}
	}
	return marks
}

// Flood summarises burst detection over the scoped set.
type Flood struct {
	BurstEvents int     `json:"burstEvents"`
	Ratio       float64 `json:"ratio"`
}

// FloodRatio returns the burst event count and its percentage of the set.
func FloodRatio(ns []alert.Normalized) Flood {
	if len(ns) == 0 {
		return Flood{}
	}
	var f Flood
	for _, burst := range BurstEvents(ns) {
		if burst {
			f.BurstEvents++
		}
	}
	f.Ratio = float64(f.BurstEvents) / float64(len(ns)) * 100
	return f
}

// AveragePerHour divides the alert count by the hours since the oldest alert,
// with a floor of one hour.
func AveragePerHour(ns []alert.Normalized, now time.Time) float64 {
	if len(ns) == 0 {
		return 0
	}
	oldest := ns[0].Alert.RaisedAt
	for _, n := range ns[1:] {
		if n.Alert.RaisedAt.Before(oldest) {
			oldest = n.Alert.RaisedAt
		}
	}
	hours := math.Max(now.Sub(oldest).Hours(), 1)
	return float64(len(ns)) / hours
}
