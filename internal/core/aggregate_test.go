package core

import (
	"testing"
	"time"
)

func entry(date string, records ...HourRecord) StudyEntry {
	d, err := ParseDate(date)
	if err != nil {
		panic(err)
	}
	return StudyEntry{ID: "e-" + date, Date: d, HourRecords: records}
}

func TestStartOfWeek(t *testing.T) {
	tests := []struct {
		name      string
		date      string
		weekStart time.Weekday
		want      string
	}{
		{name: "monday on monday", date: "2024-01-08", weekStart: time.Monday, want: "2024-01-08"},
		{name: "sunday belongs to prior monday week", date: "2024-01-07", weekStart: time.Monday, want: "2024-01-01"},
		{name: "midweek", date: "2024-01-10", weekStart: time.Monday, want: "2024-01-08"},
		{name: "sunday start", date: "2024-01-10", weekStart: time.Sunday, want: "2024-01-07"},
		{name: "saturday start", date: "2024-01-08", weekStart: time.Saturday, want: "2024-01-06"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := ParseDate(tt.date)
			if got := StartOfWeek(d, tt.weekStart); got.String() != tt.want {
				t.Fatalf("StartOfWeek(%s, %v) = %s, want %s", tt.date, tt.weekStart, got, tt.want)
			}
		})
	}
}

func TestStartOfMonth(t *testing.T) {
	d, _ := ParseDate("2024-02-29")
	if got := StartOfMonth(d); got.String() != "2024-02-01" {
		t.Fatalf("StartOfMonth = %s, want 2024-02-01", got)
	}
}

func TestComputeTotalsWindows(t *testing.T) {
	// 2024-01-08 is a Monday; 2024-01-01 falls in the previous week but
	// the same month.
	entries := []StudyEntry{
		entry("2024-01-01", HourRecord{Category: Productive, Hours: 3}),
		entry("2024-01-08", HourRecord{Category: Productive, Hours: 2}),
	}
	now := time.Date(2024, time.January, 8, 15, 30, 0, 0, time.UTC)

	totals := ComputeTotals(entries, now, time.Monday, DefaultCategories())

	if got := totals.Weekly[Productive]; got != 2 {
		t.Fatalf("weekly productive = %v, want 2", got)
	}
	if got := totals.Monthly[Productive]; got != 5 {
		t.Fatalf("monthly productive = %v, want 5", got)
	}
	if got := totals.AllTime[Productive]; got != 5 {
		t.Fatalf("all-time productive = %v, want 5", got)
	}
	if !totals.LastUpdated.Equal(now) {
		t.Fatalf("lastUpdated = %v, want %v", totals.LastUpdated, now)
	}
}

func TestComputeTotalsZeroCategoriesReported(t *testing.T) {
	entries := []StudyEntry{
		entry("2024-01-08", HourRecord{Category: Productive, Hours: 1}),
	}
	now := time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC)

	totals := ComputeTotals(entries, now, time.Monday, DefaultCategories())

	for _, window := range []map[Category]float64{totals.Weekly, totals.Monthly, totals.AllTime} {
		for _, c := range []Category{Creative, Learning} {
			got, ok := window[c]
			if !ok {
				t.Fatalf("category %s missing from totals", c)
			}
			if got != 0 {
				t.Fatalf("category %s = %v, want 0", c, got)
			}
		}
	}
}

func TestComputeTotalsMonthBoundary(t *testing.T) {
	entries := []StudyEntry{
		entry("2023-12-31", HourRecord{Category: Learning, Hours: 4}),
		entry("2024-01-01", HourRecord{Category: Learning, Hours: 1}),
	}
	now := time.Date(2024, time.January, 2, 12, 0, 0, 0, time.UTC)

	totals := ComputeTotals(entries, now, time.Monday, DefaultCategories())

	if got := totals.Monthly[Learning]; got != 1 {
		t.Fatalf("monthly learning = %v, want 1", got)
	}
	// 2024-01-01 is a Monday, so the weekly window starts there too.
	if got := totals.Weekly[Learning]; got != 1 {
		t.Fatalf("weekly learning = %v, want 1", got)
	}
	if got := totals.AllTime[Learning]; got != 5 {
		t.Fatalf("all-time learning = %v, want 5", got)
	}
}

func TestComputeTotalsExcludesFutureDates(t *testing.T) {
	entries := []StudyEntry{
		entry("2024-01-08", HourRecord{Category: Creative, Hours: 2}),
		entry("2024-01-09", HourRecord{Category: Creative, Hours: 3}),
	}
	now := time.Date(2024, time.January, 8, 9, 0, 0, 0, time.UTC)

	totals := ComputeTotals(entries, now, time.Monday, DefaultCategories())

	if got := totals.Weekly[Creative]; got != 2 {
		t.Fatalf("weekly creative = %v, want 2 (future entry must not count)", got)
	}
	if got := totals.Monthly[Creative]; got != 2 {
		t.Fatalf("monthly creative = %v, want 2", got)
	}
	if got := totals.AllTime[Creative]; got != 5 {
		t.Fatalf("all-time creative = %v, want 5 (unconstrained window)", got)
	}
}

func TestComputeTotalsDeterministicAcrossInputOrder(t *testing.T) {
	a := entry("2024-01-05",
		HourRecord{Category: Productive, Hours: 0.1},
		HourRecord{Category: Productive, Hours: 0.2},
	)
	b := entry("2024-01-06", HourRecord{Category: Productive, Hours: 0.3})
	c := entry("2024-01-07", HourRecord{Category: Productive, Hours: 0.4})
	now := time.Date(2024, time.January, 7, 0, 0, 0, 0, time.UTC)

	first := ComputeTotals([]StudyEntry{a, b, c}, now, time.Monday, DefaultCategories())
	second := ComputeTotals([]StudyEntry{c, a, b}, now, time.Monday, DefaultCategories())

	if first.AllTime[Productive] != second.AllTime[Productive] {
		t.Fatalf("all-time differs across input order: %v vs %v",
			first.AllTime[Productive], second.AllTime[Productive])
	}
	if first.Weekly[Productive] != second.Weekly[Productive] {
		t.Fatalf("weekly differs across input order: %v vs %v",
			first.Weekly[Productive], second.Weekly[Productive])
	}
}

func TestComputeTotalsEmptyEntrySet(t *testing.T) {
	now := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	totals := ComputeTotals(nil, now, time.Monday, DefaultCategories())
	for _, c := range DefaultCategories() {
		if totals.AllTime[c] != 0 || totals.Weekly[c] != 0 || totals.Monthly[c] != 0 {
			t.Fatalf("expected all-zero totals for %s", c)
		}
	}
}
