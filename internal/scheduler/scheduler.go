// Package scheduler computes the next review schedule for a mistake review
// item using a light SM-2 variant with four ratings.
//
// Grade is a pure function: it reads nothing but its arguments and performs
// no I/O. Callers own persistence and any serialization of concurrent
// gradings of the same item.
package scheduler

import (
	"fmt"
	"math"
	"time"
)

// Grade applies a rating to the current state and returns the next state.
// today is the calendar day of the grading event; the due date is projected
// from it, not from the previous due date. Intervals are capped so the due
// date never passes MaxDueDate.
func Grade(state State, rating Rating, today time.Time) (State, error) {
	if !rating.IsValid() {
		return State{}, fmt.Errorf("%w: %d", ErrInvalidRating, int(rating))
	}
	day := Day(today)
	limit := daysBetween(day, MaxDueDate)
	if limit < 1 {
		return State{}, fmt.Errorf("%w: grading on %s", ErrDateOutOfRange, day.Format(time.DateOnly))
	}

	ef := nextEaseFactor(normalizeEaseFactor(state.EaseFactor), rating)
	interval := nextInterval(state.IntervalDays, ef, rating, limit)

	return State{
		EaseFactor:   ef,
		IntervalDays: interval,
		DueDate:      day.AddDate(0, 0, interval),
	}, nil
}

// normalizeEaseFactor maps an unset (zero) or non-finite ease factor to the
// default. Negative values pass through; the floor in nextEaseFactor
// handles them.
func normalizeEaseFactor(ef float64) float64 {
	if ef == 0 || math.IsNaN(ef) || math.IsInf(ef, 0) {
		return DefaultEaseFactor
	}
	return ef
}

// nextEaseFactor applies the SM-2 adjustment on the 0..3 scale, rounds to
// two decimals and then clamps to MinEaseFactor.
func nextEaseFactor(ef float64, rating Rating) float64 {
	q := float64(Easy - rating)
	ef += 0.1 - q*(0.08+q*0.02)
	return math.Max(MinEaseFactor, roundTo(ef, 2))
}

// nextInterval picks the interval in days. A lapse always resets to 1; the
// second successful step is a fixed 6 days; after that the interval grows
// by the new ease factor. The result never exceeds limit.
func nextInterval(prior int, ef float64, rating Rating, limit int) int {
	if rating < Good {
		return 1
	}
	var next float64
	switch {
	case prior <= 0:
		next = 1
		if rating == Easy {
			next = 3
		}
	case prior == 1:
		next = 6
	default:
		next = math.Round(float64(prior) * ef)
	}
	if next > float64(limit) {
		return limit
	}
	return int(next)
}

// roundTo rounds half away from zero at the given number of decimals.
func roundTo(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(x*p) / p
}
