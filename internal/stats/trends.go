package stats

import (
	"time"

	"github.com/linnemanlabs/watchtower/internal/alert"
)

// TrendDays is the number of calendar days in the daily trend, today included.
const TrendDays = 7

// Hourly counts alerts by hour of day in loc.
func Hourly(ns []alert.Normalized, loc *time.Location) [24]int {
	var out [24]int
	for _, n := range ns {
		out[n.Alert.RaisedAt.In(loc).Hour()]++
	}
	return out
}

// DayBucket is one day of the stacked daily trend.
type DayBucket struct {
	Date     string `json:"date"`
	Label    string `json:"label"`
	Critical int    `json:"critical"`
	Major    int    `json:"major"`
	Minor    int    `json:"minor"`
}

// Total returns the alert count of the day.
func (d DayBucket) Total() int {
	return d.Critical + d.Major + d.Minor
}

// Daily buckets alerts raised in the trailing TrendDays calendar days, oldest
// day first, split by severity. Days are computed in loc. Older alerts are ignored.
func Daily(ns []alert.Normalized, now time.Time, loc *time.Location) []DayBucket {
	now = now.In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	out := make([]DayBucket, TrendDays)
	index := make(map[string]int, TrendDays)
	for i := range out {
		day := today.AddDate(0, 0, i-(TrendDays-1))
		key := day.Format(time.DateOnly)
		out[i] = DayBucket{Date: key, Label: day.Format("Mon Jan 2")}
		index[key] = i
	}

	for _, n := range ns {
		i, ok := index[n.Alert.RaisedAt.In(loc).Format(time.DateOnly)]
		if !ok {
			continue
		}
		switch n.Severity {
		case alert.SeverityCritical:
			out[i].Critical++
		case alert.SeverityMajor:
			out[i].Major++
		default:
			out[i].Minor++
		}
	}
	return out
}
