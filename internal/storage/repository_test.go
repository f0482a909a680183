package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"studylog/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	r, err := NewMemory()
	if err != nil {
		t.Fatalf("new memory repository: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func mustDate(t *testing.T, s string) core.Date {
	t.Helper()
	d, err := core.ParseDate(s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

func TestCreateAndFindByDate(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	date := mustDate(t, "2024-01-08")

	id, err := r.Create(ctx, date)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty id")
	}

	if err := r.AppendHour(ctx, id, core.HourRecord{Category: core.Productive, Hours: 2}); err != nil {
		t.Fatalf("append: %v", err)
	}

	entry, err := r.FindByDate(ctx, date)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if entry == nil {
		t.Fatal("expected entry, got nil")
	}
	if entry.ID != id {
		t.Fatalf("id = %s, want %s", entry.ID, id)
	}
	if len(entry.HourRecords) != 1 || entry.HourRecords[0].Hours != 2 {
		t.Fatalf("unexpected records: %+v", entry.HourRecords)
	}
}

func TestFindByDateAbsent(t *testing.T) {
	r := newTestRepo(t)
	entry, err := r.FindByDate(context.Background(), mustDate(t, "2024-01-08"))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected nil for absent date, got %+v", entry)
	}
}

func TestOneEntryPerDate(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	date := mustDate(t, "2024-01-08")

	if _, err := r.Create(ctx, date); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := r.Create(ctx, date); err == nil {
		t.Fatal("second create for same date must fail")
	}
}

func TestAppendHourPreservesInsertionOrder(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	id, err := r.Create(ctx, mustDate(t, "2024-01-08"))
	if err != nil {
		t.Fatal(err)
	}

	records := []core.HourRecord{
		{Category: core.Productive, Hours: 1},
		{Category: core.Productive, Hours: 2},
		{Category: core.Learning, Hours: 3},
	}
	for _, rec := range records {
		if err := r.AppendHour(ctx, id, rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	entry, err := r.GetEntry(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(entry.HourRecords) != len(records) {
		t.Fatalf("got %d records, want %d", len(entry.HourRecords), len(records))
	}
	for i, rec := range records {
		if entry.HourRecords[i] != rec {
			t.Fatalf("record %d = %+v, want %+v", i, entry.HourRecords[i], rec)
		}
	}
}

func TestAppendHourMissingEntry(t *testing.T) {
	r := newTestRepo(t)
	err := r.AppendHour(context.Background(), "no-such-id", core.HourRecord{Category: core.Creative, Hours: 1})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestRemoveHourAtRepacksPositions(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	id, _ := r.Create(ctx, mustDate(t, "2024-01-08"))
	for _, h := range []float64{1, 2, 3} {
		if err := r.AppendHour(ctx, id, core.HourRecord{Category: core.Productive, Hours: h}); err != nil {
			t.Fatal(err)
		}
	}

	deleted, err := r.RemoveHourAt(ctx, id, 1)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if deleted {
		t.Fatal("entry should survive while records remain")
	}

	entry, err := r.GetEntry(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(entry.HourRecords) != 2 {
		t.Fatalf("got %d records, want 2", len(entry.HourRecords))
	}
	if entry.HourRecords[0].Hours != 1 || entry.HourRecords[1].Hours != 3 {
		t.Fatalf("unexpected records after removal: %+v", entry.HourRecords)
	}

	// The survivor that shifted down must now be addressable at index 1.
	if _, err := r.RemoveHourAt(ctx, id, 1); err != nil {
		t.Fatalf("remove re-packed index: %v", err)
	}
}

func TestRemoveLastHourDeletesEntry(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	date := mustDate(t, "2024-01-08")
	id, _ := r.Create(ctx, date)
	if err := r.AppendHour(ctx, id, core.HourRecord{Category: core.Learning, Hours: 1}); err != nil {
		t.Fatal(err)
	}

	deleted, err := r.RemoveHourAt(ctx, id, 0)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !deleted {
		t.Fatal("expected entryDeleted=true when last record removed")
	}

	entry, err := r.FindByDate(ctx, date)
	if err != nil {
		t.Fatal(err)
	}
	if entry != nil {
		t.Fatalf("entry should be gone, got %+v", entry)
	}
}

func TestRemoveHourAtInvalidTargets(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	id, _ := r.Create(ctx, mustDate(t, "2024-01-08"))
	if err := r.AppendHour(ctx, id, core.HourRecord{Category: core.Learning, Hours: 1}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		id    string
		index int
	}{
		{name: "unknown entry", id: "missing", index: 0},
		{name: "index out of range", id: id, index: 5},
		{name: "negative index", id: id, index: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.RemoveHourAt(ctx, tt.id, tt.index); !errors.Is(err, core.ErrNotFound) {
				t.Fatalf("error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestListAllSortedByDate(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	for _, date := range []string{"2024-03-01", "2024-01-15", "2024-02-20"} {
		id, err := r.Create(ctx, mustDate(t, date))
		if err != nil {
			t.Fatal(err)
		}
		if err := r.AppendHour(ctx, id, core.HourRecord{Category: core.Productive, Hours: 1}); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := r.ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	want := []string{"2024-01-15", "2024-02-20", "2024-03-01"}
	for i, w := range want {
		if entries[i].Date.String() != w {
			t.Fatalf("entry %d date = %s, want %s", i, entries[i].Date, w)
		}
	}
}

func TestClearAll(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	for _, date := range []string{"2024-01-01", "2024-01-02"} {
		id, _ := r.Create(ctx, mustDate(t, date))
		if err := r.AppendHour(ctx, id, core.HourRecord{Category: core.Creative, Hours: 2}); err != nil {
			t.Fatal(err)
		}
	}
	totals := core.ZeroTotals(core.DefaultCategories())
	totals.LastUpdated = time.Now()
	if err := r.WriteTotals(ctx, totals); err != nil {
		t.Fatal(err)
	}

	if err := r.ClearAll(ctx); err != nil {
		t.Fatalf("clear all: %v", err)
	}

	entries, err := r.ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty store, got %d entries", len(entries))
	}
	if _, ok, err := r.ReadTotals(ctx); err != nil || ok {
		t.Fatalf("totals should be absent after reset (ok=%v, err=%v)", ok, err)
	}
}

func TestTotalsRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	if _, ok, err := r.ReadTotals(ctx); err != nil || ok {
		t.Fatalf("expected cache miss on fresh store (ok=%v, err=%v)", ok, err)
	}

	written := core.ProgressTotals{
		Weekly:      map[core.Category]float64{core.Productive: 2, core.Creative: 0, core.Learning: 0},
		Monthly:     map[core.Category]float64{core.Productive: 5, core.Creative: 0, core.Learning: 0},
		AllTime:     map[core.Category]float64{core.Productive: 5, core.Creative: 1.5, core.Learning: 0},
		LastUpdated: time.Date(2024, time.January, 8, 12, 0, 0, 0, time.UTC),
	}
	if err := r.WriteTotals(ctx, written); err != nil {
		t.Fatalf("write totals: %v", err)
	}

	read, ok, err := r.ReadTotals(ctx)
	if err != nil {
		t.Fatalf("read totals: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if read.Weekly[core.Productive] != 2 || read.AllTime[core.Creative] != 1.5 {
		t.Fatalf("unexpected totals: %+v", read)
	}
	if !read.LastUpdated.Equal(written.LastUpdated) {
		t.Fatalf("lastUpdated = %v, want %v", read.LastUpdated, written.LastUpdated)
	}

	// Overwrite replaces, not merges.
	written.Weekly[core.Productive] = 9
	written.LastUpdated = written.LastUpdated.Add(time.Hour)
	if err := r.WriteTotals(ctx, written); err != nil {
		t.Fatal(err)
	}
	read, _, err = r.ReadTotals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if read.Weekly[core.Productive] != 9 {
		t.Fatalf("weekly productive = %v, want 9", read.Weekly[core.Productive])
	}

	if err := r.InvalidateTotals(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := r.ReadTotals(ctx); err != nil || ok {
		t.Fatalf("expected cache miss after invalidate (ok=%v, err=%v)", ok, err)
	}
}

func TestReopenPersistsEntries(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/studylog.db"

	r, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	id, err := r.Create(ctx, mustDate(t, "2024-01-08"))
	if err != nil {
		t.Fatal(err)
	}
	if err := r.AppendHour(ctx, id, core.HourRecord{Category: core.Productive, Hours: 3}); err != nil {
		t.Fatal(err)
	}
	r.Close()

	r2, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r2.Close()
	entries, err := r2.ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].HourRecords[0].Hours != 3 {
		t.Fatalf("unexpected entries after reopen: %+v", entries)
	}
}
