// Package notify fans out entry-set and totals changes to registered
// observers. Delivery is latest-state: a slow subscriber sees the most
// recent committed snapshot, not necessarily every intermediate one.
package notify

import (
	"sync"

	"studylog/internal/core"
	applog "studylog/internal/log"
)

// EntryUpdate is one delivery on an entry subscription. Err is set when
// the underlying store failed; the stream keeps delivering afterwards.
type EntryUpdate struct {
	Entries []core.StudyEntry
	Err     error
}

// TotalsUpdate is one delivery on a totals subscription. Present is
// false when the cached totals are absent (e.g. right after a reset).
type TotalsUpdate struct {
	Totals  core.ProgressTotals
	Present bool
	Err     error
}

// EntrySubscription is the handle returned by SubscribeEntries.
type EntrySubscription struct {
	id      int
	filter  *core.Date
	updates chan EntryUpdate
	n       *Notifier
}

// Updates is the stream of entry-set snapshots.
func (s *EntrySubscription) Updates() <-chan EntryUpdate { return s.updates }

// Unsubscribe detaches the subscription and closes its stream.
func (s *EntrySubscription) Unsubscribe() { s.n.dropEntries(s.id) }

// TotalsSubscription is the handle returned by SubscribeTotals.
type TotalsSubscription struct {
	id      int
	updates chan TotalsUpdate
	n       *Notifier
}

func (s *TotalsSubscription) Updates() <-chan TotalsUpdate { return s.updates }

func (s *TotalsSubscription) Unsubscribe() { s.n.dropTotals(s.id) }

// Notifier is the publish/subscribe hub. Publishing never blocks:
// each subscription buffers exactly one update and a newer snapshot
// replaces an undelivered older one.
type Notifier struct {
	mu     sync.Mutex
	nextID int
	entry  map[int]*EntrySubscription
	totals map[int]*TotalsSubscription
	logger *applog.Logger
}

func New(logger *applog.Logger) *Notifier {
	return &Notifier{
		entry:  make(map[int]*EntrySubscription),
		totals: make(map[int]*TotalsSubscription),
		logger: logger.WithComponent(applog.ComponentNotify),
	}
}

// SubscribeEntries registers an observer of the entry set. A non-nil
// filter narrows deliveries to the entry for that date. The initial
// update is delivered immediately, before any subsequent change.
func (n *Notifier) SubscribeEntries(filter *core.Date, initial EntryUpdate) *EntrySubscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	sub := &EntrySubscription{
		id:      n.nextID,
		filter:  filter,
		updates: make(chan EntryUpdate, 1),
		n:       n,
	}
	n.entry[sub.id] = sub
	if initial.Err == nil {
		initial.Entries = filterEntries(initial.Entries, sub.filter)
	}
	deliverEntry(sub, initial)
	return sub
}

// SubscribeTotals registers an observer of the totals state.
func (n *Notifier) SubscribeTotals(initial TotalsUpdate) *TotalsSubscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	sub := &TotalsSubscription{
		id:      n.nextID,
		updates: make(chan TotalsUpdate, 1),
		n:       n,
	}
	n.totals[sub.id] = sub
	deliverTotals(sub, initial)
	return sub
}

// PublishEntries pushes a fresh entry-set snapshot to every entry
// subscriber, applying per-subscription date filters.
func (n *Notifier) PublishEntries(entries []core.StudyEntry) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, sub := range n.entry {
		deliverEntry(sub, EntryUpdate{Entries: filterEntries(entries, sub.filter)})
	}
	n.logger.Debug("published entry snapshot", "entries", len(entries), "subscribers", len(n.entry))
}

// PublishEntriesError reports a store failure on every entry stream.
func (n *Notifier) PublishEntriesError(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, sub := range n.entry {
		deliverEntry(sub, EntryUpdate{Err: err})
	}
	n.logger.Warn("published entry stream error", "error", err)
}

// PublishTotals pushes refreshed totals to every totals subscriber.
// present=false announces that the cache is now absent.
func (n *Notifier) PublishTotals(totals core.ProgressTotals, present bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, sub := range n.totals {
		deliverTotals(sub, TotalsUpdate{Totals: totals, Present: present})
	}
	n.logger.Debug("published totals snapshot", "present", present, "subscribers", len(n.totals))
}

// PublishTotalsError reports a store failure on every totals stream.
func (n *Notifier) PublishTotalsError(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, sub := range n.totals {
		deliverTotals(sub, TotalsUpdate{Err: err})
	}
	n.logger.Warn("published totals stream error", "error", err)
}

func (n *Notifier) dropEntries(id int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if sub, ok := n.entry[id]; ok {
		delete(n.entry, id)
		close(sub.updates)
	}
}

func (n *Notifier) dropTotals(id int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if sub, ok := n.totals[id]; ok {
		delete(n.totals, id)
		close(sub.updates)
	}
}

// deliverEntry replaces an undelivered update with the newer one. Both
// deliver helpers run under n.mu, so a send can never race a close.
func deliverEntry(sub *EntrySubscription, u EntryUpdate) {
	for {
		select {
		case sub.updates <- u:
			return
		default:
			select {
			case <-sub.updates:
			default:
			}
		}
	}
}

func deliverTotals(sub *TotalsSubscription, u TotalsUpdate) {
	for {
		select {
		case sub.updates <- u:
			return
		default:
			select {
			case <-sub.updates:
			default:
			}
		}
	}
}

func filterEntries(entries []core.StudyEntry, filter *core.Date) []core.StudyEntry {
	if filter == nil {
		return entries
	}
	for _, e := range entries {
		if e.Date.Equal(filter.Time) {
			return []core.StudyEntry{e}
		}
	}
	return []core.StudyEntry{}
}
