package scheduler

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Rating is the user's recall grade for a review item.
type Rating int

const (
	Again Rating = iota // Could not recall.
	Hard                // Recalled with significant difficulty.
	Good                // Recalled with some effort.
	Easy                // Recalled effortlessly.
)

var ratingNames = [...]string{Again: "Again", Hard: "Hard", Good: "Good", Easy: "Easy"}

var (
	_ fmt.Stringer     = Rating(0)
	_ json.Marshaler   = Rating(0)
	_ json.Unmarshaler = (*Rating)(nil)
)

// Ratings lists every valid rating in ordinal order.
func Ratings() []Rating {
	return []Rating{Again, Hard, Good, Easy}
}

// IsValid reports whether r is one of Again, Hard, Good or Easy.
func (r Rating) IsValid() bool {
	return r >= Again && r <= Easy
}

// String returns the rating name, or "Rating(n)" for invalid values.
func (r Rating) String() string {
	if r.IsValid() {
		return ratingNames[r]
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

// ParseRating accepts an ordinal ("0".."3") or a case-insensitive name.
func ParseRating(s string) (Rating, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		r := Rating(n)
		if !r.IsValid() {
			return 0, fmt.Errorf("%w: %d", ErrInvalidRating, n)
		}
		return r, nil
	}
	for i, name := range ratingNames {
		if strings.EqualFold(s, name) {
			return Rating(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidRating, s)
}

// MarshalJSON encodes the rating as its ordinal.
func (r Rating) MarshalJSON() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRating, int(r))
	}
	return []byte(strconv.Itoa(int(r))), nil
}

// UnmarshalJSON accepts an integer ordinal or a rating name. Fractional
// numbers are rejected rather than truncated.
func (r *Rating) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		v, err := ParseRating(name)
		if err != nil {
			return err
		}
		*r = v
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRating, data)
	}
	if f != math.Trunc(f) {
		return fmt.Errorf("%w: %s", ErrInvalidRating, data)
	}
	v := Rating(f)
	if float64(v) != f || !v.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidRating, data)
	}
	*r = v
	return nil
}
