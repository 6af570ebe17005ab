package scheduler

import "time"

const (
	// DefaultEaseFactor seeds new items and replaces an unset ease factor.
	DefaultEaseFactor = 2.5
	// MinEaseFactor is the floor applied after every grading.
	MinEaseFactor = 1.3
)

// MaxDueDate is the last day a due date can take. Dates are stored as
// four-digit-year YYYY-MM-DD text.
var MaxDueDate = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// State is the scheduling-relevant subset of a review item.
type State struct {
	EaseFactor   float64   `json:"ease_factor"`
	IntervalDays int       `json:"interval_days"`
	DueDate      time.Time `json:"due_date"`
}

// NewState returns the state of a freshly created, never graded item:
// immediately reviewable with the default ease factor.
func NewState(today time.Time) State {
	return State{
		EaseFactor:   DefaultEaseFactor,
		IntervalDays: 0,
		DueDate:      Day(today),
	}
}

// Day truncates t to its calendar day, expressed as midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsDue reports whether the item is reviewable on the given day.
func (s State) IsDue(today time.Time) bool {
	return !Day(today).Before(Day(s.DueDate))
}

// DaysUntilDue returns the whole days until the due date, or 0 if already due.
func (s State) DaysUntilDue(today time.Time) int {
	if s.IsDue(today) {
		return 0
	}
	return daysBetween(Day(today), Day(s.DueDate))
}

// OverdueDays returns how many days past due the item is, or 0 if not due.
func (s State) OverdueDays(today time.Time) int {
	if !s.IsDue(today) {
		return 0
	}
	return daysBetween(Day(s.DueDate), Day(today))
}

// daysBetween counts whole days between two midnights. Unix seconds are
// used because time.Duration saturates after about 292 years.
func daysBetween(from, to time.Time) int {
	return int((to.Unix() - from.Unix()) / 86400)
}
