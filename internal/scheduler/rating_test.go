package scheduler

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRatingValues(t *testing.T) {
	assert.Equal(t, []Rating{0, 1, 2, 3}, []Rating{Again, Hard, Good, Easy})
}

func TestRatingString(t *testing.T) {
	tests := []struct {
		r    Rating
		want string
	}{
		{Again, "Again"},
		{Hard, "Hard"},
		{Good, "Good"},
		{Easy, "Easy"},
		{Rating(4), "Rating(4)"},
		{Rating(-1), "Rating(-1)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.r.String(), "Rating(%d)", int(tt.r))
	}
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		in      string
		want    Rating
		wantErr bool
	}{
		{"0", Again, false},
		{"3", Easy, false},
		{" 2 ", Good, false},
		{"hard", Hard, false},
		{"EASY", Easy, false},
		{"Good", Good, false},
		{"4", 0, true},
		{"-1", 0, true},
		{"2.5", 0, true},
		{"", 0, true},
		{"great", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseRating(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidRating, "ParseRating(%q)", tt.in)
			continue
		}
		if assert.NoError(t, err, "ParseRating(%q)", tt.in) {
			assert.Equal(t, tt.want, got, "ParseRating(%q)", tt.in)
		}
	}
}

func TestRatingUnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    Rating
		wantErr bool
	}{
		{`0`, Again, false},
		{`3`, Easy, false},
		{`2.0`, Good, false},
		{`"good"`, Good, false},
		{`"1"`, Hard, false},
		{`2.5`, 0, true},
		{`4`, 0, true},
		{`-1`, 0, true},
		{`1e300`, 0, true},
		{`null`, 0, true},
		{`true`, 0, true},
		{`"meh"`, 0, true},
	}
	for _, tt := range tests {
		var r Rating
		err := json.Unmarshal([]byte(tt.in), &r)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidRating, "Unmarshal(%s)", tt.in)
			continue
		}
		if assert.NoError(t, err, "Unmarshal(%s)", tt.in) {
			assert.Equal(t, tt.want, r, "Unmarshal(%s)", tt.in)
		}
	}
}

func TestRatingMarshalJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		R Rating `json:"rating"`
	}{Easy})
	require.NoError(t, err)
	assert.JSONEq(t, `{"rating":3}`, string(b))

	_, err = json.Marshal(Rating(7))
	assert.Error(t, err)
}

func TestStateDueHelpers(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	s := State{DueDate: time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)}

	assert.False(t, s.IsDue(now), "three days early")
	assert.Equal(t, 3, s.DaysUntilDue(now))
	assert.Equal(t, 0, s.OverdueDays(now))

	later := time.Date(2025, 3, 19, 23, 0, 0, 0, time.UTC)
	assert.True(t, s.IsDue(later))
	assert.Equal(t, 2, s.OverdueDays(later))
	assert.Equal(t, 0, s.DaysUntilDue(later))

	onDay := time.Date(2025, 3, 17, 18, 0, 0, 0, time.UTC)
	assert.True(t, s.IsDue(onDay), "due on the due date itself")
}

func TestStateDueHelpersFarFuture(t *testing.T) {
	now := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	s := State{DueDate: MaxDueDate}

	// 2025-03-14 .. 9999-12-31, past the range of time.Duration.
	assert.Equal(t, 2912735, s.DaysUntilDue(now))
	assert.Equal(t, 2912735, State{DueDate: now}.OverdueDays(MaxDueDate))
}

func TestNewState(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	s := NewState(now)
	assert.Equal(t, DefaultEaseFactor, s.EaseFactor)
	assert.Equal(t, 0, s.IntervalDays)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), s.DueDate)
	assert.True(t, s.IsDue(now), "new item should be immediately due")
}
