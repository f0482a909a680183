package worker

import (
	"context"
	"testing"
	"time"

	"studylog/internal/amqp"
	"studylog/internal/core"
	"studylog/internal/sheets/memory"
	"studylog/internal/storage"
)

func newTestWorker(t *testing.T) (*BackupWorker, *storage.SQLiteRepository, *memory.Store) {
	t.Helper()
	repo, err := storage.NewMemory()
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	mirror := memory.New()
	return NewBackupWorker(repo, mirror), repo, mirror
}

func seedEntry(t *testing.T, repo *storage.SQLiteRepository, date core.Date, recs ...core.HourRecord) string {
	t.Helper()
	ctx := context.Background()
	id, err := repo.Create(ctx, date)
	if err != nil {
		t.Fatalf("create entry: %v", err)
	}
	for _, rec := range recs {
		if err := repo.AppendHour(ctx, id, rec); err != nil {
			t.Fatalf("append hour: %v", err)
		}
	}
	return id
}

func TestHandleChange_MirrorsRecordedHour(t *testing.T) {
	w, repo, mirror := newTestWorker(t)
	date := core.NewDate(2024, time.January, 8)
	id := seedEntry(t, repo, date,
		core.HourRecord{Category: core.Productive, Hours: 2},
		core.HourRecord{Category: core.Learning, Hours: 1.5},
	)

	msg := &amqp.ChangeMessage{Kind: amqp.KindHourRecorded, EntryID: id, Date: date, Position: 1}
	if err := w.HandleChange(context.Background(), msg); err != nil {
		t.Fatalf("handle change: %v", err)
	}

	rows := mirror.Rows()
	if len(rows) != 1 {
		t.Fatalf("mirrored rows = %d, want 1", len(rows))
	}
	if rows[0].EntryID != id {
		t.Errorf("entry ID = %q, want %q", rows[0].EntryID, id)
	}
	if rows[0].Record.Category != core.Learning || rows[0].Record.Hours != 1.5 {
		t.Errorf("mirrored record = %+v, want learning 1.5", rows[0].Record)
	}
}

func TestHandleChange_SkipsMissingEntry(t *testing.T) {
	w, _, mirror := newTestWorker(t)

	msg := &amqp.ChangeMessage{Kind: amqp.KindHourRecorded, EntryID: "gone", Position: 0}
	if err := w.HandleChange(context.Background(), msg); err != nil {
		t.Fatalf("stale message should not error: %v", err)
	}
	if len(mirror.Rows()) != 0 {
		t.Error("nothing should be mirrored for a missing entry")
	}
}

func TestHandleChange_SkipsStalePosition(t *testing.T) {
	w, repo, mirror := newTestWorker(t)
	date := core.NewDate(2024, time.January, 8)
	id := seedEntry(t, repo, date, core.HourRecord{Category: core.Productive, Hours: 2})

	msg := &amqp.ChangeMessage{Kind: amqp.KindHourRecorded, EntryID: id, Date: date, Position: 5}
	if err := w.HandleChange(context.Background(), msg); err != nil {
		t.Fatalf("stale position should not error: %v", err)
	}
	if len(mirror.Rows()) != 0 {
		t.Error("nothing should be mirrored for a stale position")
	}
}

func TestHandleChange_IgnoresDeletions(t *testing.T) {
	w, repo, mirror := newTestWorker(t)
	date := core.NewDate(2024, time.January, 8)
	id := seedEntry(t, repo, date, core.HourRecord{Category: core.Creative, Hours: 1})

	msg := &amqp.ChangeMessage{Kind: amqp.KindHourDeleted, EntryID: id, Position: 0}
	if err := w.HandleChange(context.Background(), msg); err != nil {
		t.Fatalf("deletion message should not error: %v", err)
	}
	if len(mirror.Rows()) != 0 {
		t.Error("deletions must not touch the mirror")
	}
}

func TestHandleChange_IgnoresUnknownKind(t *testing.T) {
	w, _, mirror := newTestWorker(t)

	msg := &amqp.ChangeMessage{Kind: "made_up", EntryID: "x"}
	if err := w.HandleChange(context.Background(), msg); err != nil {
		t.Fatalf("unknown kind should not error: %v", err)
	}
	if len(mirror.Rows()) != 0 {
		t.Error("unknown kinds must not touch the mirror")
	}
}
