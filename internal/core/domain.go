package core

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	Productive Category = "productive"
	Creative   Category = "creative"
	Learning   Category = "learning"
)

type (
	// Category identifies a study category by its stable identifier.
	// Display labels and colors belong to the presentation layer.
	Category string

	// Date is a calendar date at day granularity. The wrapped time is
	// always midnight UTC.
	Date struct {
		time.Time
	}

	// HourRecord is a single study-hour observation. Immutable once created.
	HourRecord struct {
		Category Category `json:"category"`
		Hours    float64  `json:"hours"`
	}

	// StudyEntry collects every hour record submitted for one calendar
	// date. At most one entry exists per date. HourRecords keeps insertion
	// order; deletion addresses a record by its position in this sequence,
	// so the sequence is never reordered or compacted except by an
	// explicit delete.
	StudyEntry struct {
		ID          string       `json:"id"`
		Date        Date         `json:"date"`
		HourRecords []HourRecord `json:"hourRecords"`
	}
)

var (
	ErrInvalidHours     = errors.New("hours must be positive")
	ErrInvalidDate      = errors.New("invalid date")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrResetIncomplete  = errors.New("reset incomplete")
)

// DefaultCategories returns the built-in category set, in display order.
func DefaultCategories() []Category {
	return []Category{Productive, Creative, Learning}
}

const dateLayout = "2006-01-02"

// NewDate creates a Date from year, month, day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an instant to day granularity.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses a date in YYYY-MM-DD form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: zero date", ErrInvalidDate)
	}
	return nil
}

// AddDays returns the date shifted by n days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.AddDate(0, 0, n))
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("%w: %s", ErrInvalidDate, s)
	}
	parsed, err := ParseDate(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Validate checks the observation against the configured category set.
func (r HourRecord) Validate(categories []Category) error {
	if r.Hours <= 0 || math.IsNaN(r.Hours) || math.IsInf(r.Hours, 0) {
		return ErrInvalidHours
	}
	for _, c := range categories {
		if c == r.Category {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownCategory, r.Category)
}

// TotalHours sums every hour record in the entry.
func (e StudyEntry) TotalHours() float64 {
	var total float64
	for _, r := range e.HourRecords {
		total += r.Hours
	}
	return total
}
