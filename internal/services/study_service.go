package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"studylog/internal/core"
	applog "studylog/internal/log"
	"studylog/internal/notify"
	"studylog/internal/storage"
)

// EventPublisher pushes change events beyond the process (AMQP). A nil
// publisher disables the pipeline; failures never fail the local write.
type EventPublisher interface {
	PublishHourRecorded(ctx context.Context, entryID string, date core.Date, position int) error
	PublishHourDeleted(ctx context.Context, entryID string, index int) error
}

// Options configure a StudyService beyond its collaborators.
type Options struct {
	Categories []core.Category
	WeekStart  time.Weekday
	// Now is the reference-instant source, overridable in tests.
	Now func() time.Time
}

// StudyService is the merge engine and the single write path for
// study-hour observations. Writes for the same date are serialized;
// distinct dates proceed in parallel. Reset excludes all writers.
type StudyService struct {
	store    *storage.SQLiteRepository
	notifier *notify.Notifier
	events   EventPublisher
	logger   *applog.Logger

	categories []core.Category
	weekStart  time.Weekday
	now        func() time.Time

	// resetMu is held shared by per-date writers and exclusively by
	// Reset, so observers see either the full pre-reset or the full
	// post-reset state.
	resetMu   sync.RWMutex
	datesMu   sync.Mutex
	dateLocks map[string]*sync.Mutex
}

func NewStudyService(store *storage.SQLiteRepository, notifier *notify.Notifier, events EventPublisher, logger *applog.Logger, opts Options) *StudyService {
	if opts.Categories == nil {
		opts.Categories = core.DefaultCategories()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &StudyService{
		store:      store,
		notifier:   notifier,
		events:     events,
		logger:     logger.WithComponent(applog.ComponentStudy),
		categories: opts.Categories,
		weekStart:  opts.WeekStart,
		now:        opts.Now,
		dateLocks:  make(map[string]*sync.Mutex),
	}
}

// Categories returns the configured category set.
func (s *StudyService) Categories() []core.Category {
	return s.categories
}

func (s *StudyService) lockDate(d core.Date) func() {
	key := d.String()
	s.datesMu.Lock()
	m, ok := s.dateLocks[key]
	if !ok {
		m = &sync.Mutex{}
		s.dateLocks[key] = m
	}
	s.datesMu.Unlock()
	m.Lock()
	return m.Unlock
}

// RecordHours appends a study-hour observation to the entry for date,
// creating the entry on the first write for that date. Repeated
// submissions accumulate as separate line items; records are never
// merged or overwritten. Returns the entry id.
func (s *StudyService) RecordHours(ctx context.Context, date core.Date, category core.Category, hours float64) (string, error) {
	rec := core.HourRecord{Category: category, Hours: hours}
	if err := rec.Validate(s.categories); err != nil {
		return "", err
	}
	if err := date.Validate(); err != nil {
		return "", err
	}

	s.resetMu.RLock()
	defer s.resetMu.RUnlock()
	unlock := s.lockDate(date)
	defer unlock()

	entry, err := s.store.FindByDate(ctx, date)
	if err != nil {
		return "", fmt.Errorf("record hours: %w", err)
	}

	var id string
	var position int
	if entry == nil {
		id, err = s.store.Create(ctx, date)
		if err != nil {
			return "", fmt.Errorf("record hours: %w", err)
		}
	} else {
		id = entry.ID
		position = len(entry.HourRecords)
	}

	if err := s.store.AppendHour(ctx, id, rec); err != nil {
		return "", fmt.Errorf("record hours: %w", err)
	}

	s.logger.InfoContext(ctx, "hour recorded",
		applog.FieldOperation, applog.OpRecord,
		applog.FieldEntryID, id,
		applog.FieldDate, date.String(),
		applog.FieldCategory, string(category),
		applog.FieldHours, hours,
	)

	s.afterMutation(ctx)
	if s.events != nil {
		if err := s.events.PublishHourRecorded(ctx, id, date, position); err != nil {
			// Local write already committed; the backup pipeline
			// catches up on its next pass.
			s.logger.WarnContext(ctx, "publish hour-recorded event failed",
				applog.FieldEntryID, id, applog.FieldError, err)
		}
	}
	return id, nil
}

// DeleteHour removes the hour record at the given position. A target
// that no longer exists is a no-op success: the desired end state (the
// record absent) already holds.
func (s *StudyService) DeleteHour(ctx context.Context, entryID string, index int) error {
	s.resetMu.RLock()
	defer s.resetMu.RUnlock()

	entry, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return fmt.Errorf("delete hour: %w", err)
	}
	if entry == nil {
		s.logger.DebugContext(ctx, "delete target already absent",
			applog.FieldEntryID, entryID, applog.FieldIndex, index)
		return nil
	}

	unlock := s.lockDate(entry.Date)
	defer unlock()

	entryDeleted, err := s.store.RemoveHourAt(ctx, entryID, index)
	if errors.Is(err, core.ErrNotFound) {
		s.logger.DebugContext(ctx, "delete target already absent",
			applog.FieldEntryID, entryID, applog.FieldIndex, index)
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete hour: %w", err)
	}

	s.logger.InfoContext(ctx, "hour deleted",
		applog.FieldOperation, applog.OpDelete,
		applog.FieldEntryID, entryID,
		applog.FieldIndex, index,
		"entry_deleted", entryDeleted,
	)

	s.afterMutation(ctx)
	if s.events != nil {
		if err := s.events.PublishHourDeleted(ctx, entryID, index); err != nil {
			s.logger.WarnContext(ctx, "publish hour-deleted event failed",
				applog.FieldEntryID, entryID, applog.FieldError, err)
		}
	}
	return nil
}

// Reset deletes every entry and the cached totals in one atomic batch.
func (s *StudyService) Reset(ctx context.Context) error {
	s.resetMu.Lock()
	defer s.resetMu.Unlock()

	if err := s.store.ClearAll(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	s.logger.InfoContext(ctx, "store reset", applog.FieldOperation, applog.OpReset)

	s.notifier.PublishEntries([]core.StudyEntry{})
	s.notifier.PublishTotals(core.ProgressTotals{}, false)
	return nil
}

// Entries returns every entry, sorted by date.
func (s *StudyService) Entries(ctx context.Context) ([]core.StudyEntry, error) {
	return s.store.ListAll(ctx)
}

// EntryForDate returns the entry for a date, or nil when absent.
func (s *StudyService) EntryForDate(ctx context.Context, date core.Date) (*core.StudyEntry, error) {
	return s.store.FindByDate(ctx, date)
}

// GetStats returns the current totals, preferring the persisted cache
// and falling back to recomputation from the full entry set on a miss.
// The recomputed value is written through so simultaneous observers
// do not all pay the aggregation cost.
func (s *StudyService) GetStats(ctx context.Context) (core.ProgressTotals, error) {
	totals, ok, err := s.store.ReadTotals(ctx)
	if err != nil {
		return core.ProgressTotals{}, fmt.Errorf("get stats: %w", err)
	}
	if ok {
		return totals, nil
	}

	entries, err := s.store.ListAll(ctx)
	if err != nil {
		return core.ProgressTotals{}, fmt.Errorf("get stats: %w", err)
	}
	totals = core.ComputeTotals(entries, s.now(), s.weekStart, s.categories)
	if err := s.store.WriteTotals(ctx, totals); err != nil {
		// The cache is advisory; serve the computed value anyway.
		s.logger.WarnContext(ctx, "totals write-through failed", applog.FieldError, err)
	}
	return totals, nil
}

// InvalidateStats drops the cached totals, forcing the next read to
// recompute.
func (s *StudyService) InvalidateStats(ctx context.Context) error {
	return s.store.InvalidateTotals(ctx)
}

// SubscribeEntries registers a live observer of the entry set,
// optionally narrowed to a single date. The current snapshot is
// delivered immediately.
func (s *StudyService) SubscribeEntries(ctx context.Context, filter *core.Date) *notify.EntrySubscription {
	entries, err := s.store.ListAll(ctx)
	initial := notify.EntryUpdate{Entries: entries, Err: err}
	return s.notifier.SubscribeEntries(filter, initial)
}

// SubscribeTotals registers a live observer of the totals.
func (s *StudyService) SubscribeTotals(ctx context.Context) *notify.TotalsSubscription {
	totals, ok, err := s.store.ReadTotals(ctx)
	initial := notify.TotalsUpdate{Totals: totals, Present: ok, Err: err}
	return s.notifier.SubscribeTotals(initial)
}

// afterMutation recomputes totals over the full entry set, writes them
// through the cache and pushes both snapshots to subscribers. It may
// observe a snapshot slightly newer than the triggering write when
// other writes race it; the next change event re-triggers it, so the
// final delivered state is always correct.
func (s *StudyService) afterMutation(ctx context.Context) {
	entries, err := s.store.ListAll(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "post-mutation listing failed", applog.FieldError, err)
		s.notifier.PublishEntriesError(err)
		s.notifier.PublishTotalsError(err)
		return
	}

	totals := core.ComputeTotals(entries, s.now(), s.weekStart, s.categories)
	if err := s.store.WriteTotals(ctx, totals); err != nil {
		s.logger.WarnContext(ctx, "totals write-through failed", applog.FieldError, err)
	}

	s.notifier.PublishEntries(entries)
	s.notifier.PublishTotals(totals, true)
}
