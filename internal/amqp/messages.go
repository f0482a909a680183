package amqp

import (
	"encoding/json"
	"time"

	"studylog/internal/core"
)

// Change kinds carried on the wire.
const (
	KindHourRecorded = "hour_recorded"
	KindHourDeleted  = "hour_deleted"
)

// ChangeMessage is a lightweight notification that an entry changed.
// It carries only identifiers; the worker fetches the full entry from
// the database before mirroring it.
type ChangeMessage struct {
	Kind      string    `json:"kind"`
	EntryID   string    `json:"entryId"`
	Date      core.Date `json:"date"`
	Position  int       `json:"position"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHourRecordedMessage describes a record appended to an entry at the
// given position.
func NewHourRecordedMessage(entryID string, date core.Date, position int) *ChangeMessage {
	return &ChangeMessage{
		Kind:      KindHourRecorded,
		EntryID:   entryID,
		Date:      date,
		Position:  position,
		Timestamp: time.Now(),
	}
}

// NewHourDeletedMessage describes a record removed from an entry. Position
// holds the index the record occupied before removal.
func NewHourDeletedMessage(entryID string, index int) *ChangeMessage {
	return &ChangeMessage{
		Kind:      KindHourDeleted,
		EntryID:   entryID,
		Position:  index,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON creates a message from JSON bytes
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
