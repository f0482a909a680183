package core

import (
	"sort"
	"time"
)

// ProgressTotals is the derived per-category aggregation over the entry
// set. It is a pure cache: always re-derivable via ComputeTotals, and it
// may be absent without correctness loss.
type ProgressTotals struct {
	Weekly      map[Category]float64 `json:"weeklyTotals"`
	Monthly     map[Category]float64 `json:"monthlyTotals"`
	AllTime     map[Category]float64 `json:"allTimeTotals"`
	LastUpdated time.Time            `json:"lastUpdated"`
}

// ZeroTotals returns totals with an explicit 0 for every category.
func ZeroTotals(categories []Category) ProgressTotals {
	zero := func() map[Category]float64 {
		m := make(map[Category]float64, len(categories))
		for _, c := range categories {
			m[c] = 0
		}
		return m
	}
	return ProgressTotals{Weekly: zero(), Monthly: zero(), AllTime: zero()}
}

// StartOfWeek returns the most recent weekStart day on or before d.
func StartOfWeek(d Date, weekStart time.Weekday) Date {
	offset := (int(d.Weekday()) - int(weekStart) + 7) % 7
	return d.AddDays(-offset)
}

// StartOfMonth returns the first day of d's month.
func StartOfMonth(d Date) Date {
	return NewDate(d.Year(), d.Month(), 1)
}

// ComputeTotals aggregates weekly, monthly and all-time per-category
// totals from the entry set. Window membership is decided at day
// granularity: weekly covers [StartOfWeek(now), now] inclusive, monthly
// [StartOfMonth(now), now]. Entries are summed in date order so results
// are reproducible regardless of input order. Pure function, no I/O.
func ComputeTotals(entries []StudyEntry, now time.Time, weekStart time.Weekday, categories []Category) ProgressTotals {
	today := DateOf(now)
	weekFrom := StartOfWeek(today, weekStart)
	monthFrom := StartOfMonth(today)

	sorted := make([]StudyEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date.Time)
	})

	totals := ZeroTotals(categories)
	totals.LastUpdated = now

	for _, entry := range sorted {
		d := entry.Date
		inWeek := !d.Before(weekFrom.Time) && !d.After(today.Time)
		inMonth := !d.Before(monthFrom.Time) && !d.After(today.Time)
		for _, rec := range entry.HourRecords {
			totals.AllTime[rec.Category] += rec.Hours
			if inWeek {
				totals.Weekly[rec.Category] += rec.Hours
			}
			if inMonth {
				totals.Monthly[rec.Category] += rec.Hours
			}
		}
	}
	return totals
}
