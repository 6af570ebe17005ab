package scheduler

import "errors"

// ErrInvalidRating is returned when a rating is outside Again..Easy.
// Check with errors.Is.
var ErrInvalidRating = errors.New("scheduler: invalid rating")

// ErrDateOutOfRange is returned when the grading day leaves no room for a
// due date on or before MaxDueDate.
var ErrDateOutOfRange = errors.New("scheduler: date out of range")
