package memory

import (
	"context"
	"fmt"
	"sync"

	"studylog/internal/core"
)

// Row is one mirrored hour record.
type Row struct {
	EntryID string
	Date    core.Date
	Record  core.HourRecord
}

// Store is an in-memory HourAppender for tests and local runs.
type Store struct {
	mu   sync.Mutex
	rows []Row
}

func New() *Store {
	return &Store{}
}

// AppendHour stores the record and returns a synthetic row reference.
func (s *Store) AppendHour(_ context.Context, entryID string, date core.Date, rec core.HourRecord) (string, error) {
	if err := date.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, Row{EntryID: entryID, Date: date, Record: rec})
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Rows returns a copy of the mirrored rows in append order.
func (s *Store) Rows() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Row(nil), s.rows...)
}
