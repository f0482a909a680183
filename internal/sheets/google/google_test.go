package google

import (
	"testing"
	"time"

	"studylog/internal/core"
)

func TestRowValues(t *testing.T) {
	date := core.NewDate(2024, time.January, 8)
	rec := core.HourRecord{Category: core.Productive, Hours: 2.5}

	row := rowValues("entry-1", date, rec)

	want := []any{"2024-01-08", "entry-1", "productive", 2.5}
	if len(row) != len(want) {
		t.Fatalf("row has %d columns, want %d", len(row), len(want))
	}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("column %d = %v, want %v", i, row[i], want[i])
		}
	}
}
