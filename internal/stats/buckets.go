// Package stats partitions a scoped, normalized alert set and derives the
// due-window, category, burst and trend statistics shown on the alarm center.
// Every function is a pure computation over its input slice.
package stats

import (
	"sort"

	"github.com/linnemanlabs/watchtower/internal/alert"
)

// FilterAll selects every severity in Active.
const FilterAll = "all"

// Buckets partitions alerts by normalized severity, preserving input order.
type Buckets struct {
	Critical []alert.Normalized `json:"critical"`
	Major    []alert.Normalized `json:"major"`
	Minor    []alert.Normalized `json:"minor"`
}

// Get returns the bucket for sev.
func (b Buckets) Get(sev alert.Severity) []alert.Normalized {
	switch sev {
	case alert.SeverityCritical:
		return b.Critical
	case alert.SeverityMajor:
		return b.Major
	case alert.SeverityMinor:
		return b.Minor
	default:
		return nil
	}
}

// Counts returns the size of each bucket.
func (b Buckets) Counts() map[alert.Severity]int {
	return map[alert.Severity]int{
		alert.SeverityCritical: len(b.Critical),
		alert.SeverityMajor:    len(b.Major),
		alert.SeverityMinor:    len(b.Minor),
	}
}

// BySeverity partitions ns into severity buckets.
func BySeverity(ns []alert.Normalized) Buckets {
	b := Buckets{
		Critical: []alert.Normalized{},
		Major:    []alert.Normalized{},
		Minor:    []alert.Normalized{},
	}
	for _, n := range ns {
		switch n.Severity {
		case alert.SeverityCritical:
			b.Critical = append(b.Critical, n)
		case alert.SeverityMajor:
			b.Major = append(b.Major, n)
		default:
			b.Minor = append(b.Minor, n)
		}
	}
	return b
}

// StatusBuckets holds one list per workflow status, each newest first.
type StatusBuckets map[alert.StatusKey][]alert.Normalized

// ByStatus partitions ns by status. Every status key is present, possibly empty.
func ByStatus(ns []alert.Normalized) StatusBuckets {
	out := make(StatusBuckets, len(alert.StatusKeys))
	for _, k := range alert.StatusKeys {
		out[k] = []alert.Normalized{}
	}
	for _, n := range ns {
		out[n.Status] = append(out[n.Status], n)
	}
	for k := range out {
		SortNewestFirst(out[k])
	}
	return out
}

// Active returns the alerts for the severity filter, newest first. filter is
// FilterAll or a severity name; an unknown filter yields an empty list.
func Active(b Buckets, filter string) []alert.Normalized {
	var out []alert.Normalized
	if filter == "" || filter == FilterAll {
		out = make([]alert.Normalized, 0, len(b.Critical)+len(b.Major)+len(b.Minor))
		out = append(out, b.Critical...)
		out = append(out, b.Major...)
		out = append(out, b.Minor...)
	} else {
		sev, _ := alert.ParseSeverity(filter)
		out = append([]alert.Normalized{}, b.Get(sev)...)
	}
	SortNewestFirst(out)
	return out
}

// SortNewestFirst orders ns by raised_at descending. Ties keep their order.
func SortNewestFirst(ns []alert.Normalized) {
	sort.SliceStable(ns, func(i, j int) bool {
		return ns[i].Alert.RaisedAt.After(ns[j].Alert.RaisedAt)
	})
}
