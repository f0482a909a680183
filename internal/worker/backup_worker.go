package worker

import (
	"context"
	"fmt"
	"log/slog"

	"studylog/internal/amqp"
	"studylog/internal/sheets"
	"studylog/internal/storage"
)

// BackupWorker mirrors hour records from SQLite to a backup sheet as change
// messages arrive. The mirror is append-only: deletions are acknowledged but
// never propagated, so the sheet keeps a full history of recorded hours.
type BackupWorker struct {
	storage *storage.SQLiteRepository
	sheets  sheets.HourAppender
}

func NewBackupWorker(storage *storage.SQLiteRepository, sheets sheets.HourAppender) *BackupWorker {
	return &BackupWorker{
		storage: storage,
		sheets:  sheets,
	}
}

// HandleChange routes a single change message by kind.
func (w *BackupWorker) HandleChange(ctx context.Context, msg *amqp.ChangeMessage) error {
	switch msg.Kind {
	case amqp.KindHourRecorded:
		return w.handleHourRecorded(ctx, msg)
	case amqp.KindHourDeleted:
		slog.InfoContext(ctx, "Skipping deletion, backup sheet is append-only",
			"entryId", msg.EntryID,
			"index", msg.Position)
		return nil
	default:
		slog.WarnContext(ctx, "Ignoring change message with unknown kind",
			"kind", msg.Kind,
			"entryId", msg.EntryID)
		return nil
	}
}

func (w *BackupWorker) handleHourRecorded(ctx context.Context, msg *amqp.ChangeMessage) error {
	entry, err := w.storage.GetEntry(ctx, msg.EntryID)
	if err != nil {
		return fmt.Errorf("get entry from storage: %w", err)
	}

	// The entry or the record may be gone by the time the message arrives
	// (deleted or reset in between). The mirror only records what still
	// exists; a stale message is not an error.
	if entry == nil {
		slog.WarnContext(ctx, "Entry no longer exists, skipping backup",
			"entryId", msg.EntryID)
		return nil
	}
	if msg.Position < 0 || msg.Position >= len(entry.HourRecords) {
		slog.WarnContext(ctx, "Record position no longer exists, skipping backup",
			"entryId", msg.EntryID,
			"position", msg.Position,
			"records", len(entry.HourRecords))
		return nil
	}

	rec := entry.HourRecords[msg.Position]
	ref, err := w.sheets.AppendHour(ctx, entry.ID, entry.Date, rec)
	if err != nil {
		return fmt.Errorf("append to sheets: %w", err)
	}

	slog.InfoContext(ctx, "Mirrored hour record to backup sheet",
		"entryId", entry.ID,
		"date", entry.Date.String(),
		"category", rec.Category,
		"hours", rec.Hours,
		"sheets_ref", ref)

	return nil
}
