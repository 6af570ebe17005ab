// Package api holds the JSON shapes exchanged between the atlas server and
// its clients.
package api

import (
	"time"

	"github.com/lazypower/atlas/internal/scheduler"
	"github.com/lazypower/atlas/internal/store"
)

// DateLayout formats calendar dates in responses.
const DateLayout = time.DateOnly

// Health is the body of GET /api/health.
type Health struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	Uptime        float64 `json:"uptime"`
	DB            bool    `json:"db"`
	DBPath        string  `json:"db_path"`
	SchemaVersion int     `json:"schema_version"`
}

type Problem struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Source     string    `json:"source"`
	Topic      string    `json:"topic"`
	TopicLabel string    `json:"topic_label"`
	Difficulty int       `json:"difficulty"`
	Tags       []string  `json:"tags"`
	Statement  string    `json:"statement"`
	CreatedAt  time.Time `json:"created_at"`
}

// ProblemDetail adds the attempts made on a problem.
type ProblemDetail struct {
	Problem
	Attempts []Attempt `json:"attempts"`
}

type Attempt struct {
	ID               int64      `json:"id"`
	ProblemID        int64      `json:"problem_id"`
	ProblemTitle     string     `json:"problem_title"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at"`
	TimeSpentSeconds int        `json:"time_spent_seconds"`
	Duration         string     `json:"duration"`
	Outcome          string     `json:"outcome"`
	FinalAnswer      string     `json:"final_answer"`
	SolutionNotes    string     `json:"solution_notes"`
	Confidence       int        `json:"confidence"`
}

type MistakeType struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Mistake struct {
	ID                 int64   `json:"id"`
	AttemptID          int64   `json:"attempt_id"`
	MistakeTypeID      int64   `json:"mistake_type_id"`
	MistakeType        string  `json:"mistake_type"`
	Severity           int     `json:"severity"`
	ShortLabel         string  `json:"short_label"`
	DetailedPostmortem string  `json:"detailed_postmortem"`
	ConceptualGap      bool    `json:"conceptual_gap"`
	ExecutionError     bool    `json:"execution_error"`
	StrategyError      bool    `json:"strategy_error"`
	FixPlan            string  `json:"fix_plan"`
	NextReviewDate     *string `json:"next_review_date"`
}

// ReviewItem carries the schedule plus its position relative to today.
type ReviewItem struct {
	ID               int64   `json:"id"`
	RelatedMistakeID *int64  `json:"related_mistake_id"`
	RelatedProblemID *int64  `json:"related_problem_id"`
	Prompt           string  `json:"prompt"`
	AnswerKey        string  `json:"answer_key"`
	EaseFactor       float64 `json:"ease_factor"`
	IntervalDays     int     `json:"interval_days"`
	DueDate          string  `json:"due_date"`
	Due              bool    `json:"due"`
	DaysUntilDue     int     `json:"days_until_due"`
	OverdueDays      int     `json:"overdue_days"`
}

type ReviewLog struct {
	ID             int64     `json:"id"`
	Rating         int       `json:"rating"`
	RatingName     string    `json:"rating_name"`
	EaseBefore     float64   `json:"ease_before"`
	EaseAfter      float64   `json:"ease_after"`
	IntervalBefore int       `json:"interval_before"`
	IntervalAfter  int       `json:"interval_after"`
	DueDate        string    `json:"due_date"`
	GradedAt       time.Time `json:"graded_at"`
}

// Queue is the body of GET /api/reviews/queue.
type Queue struct {
	Today string       `json:"today"`
	Count int          `json:"count"`
	Items []ReviewItem `json:"items"`
}

// GradeRequest is the body of POST /api/reviews/{id}/grade.
type GradeRequest struct {
	Rating scheduler.Rating `json:"rating"`
}

// GradeResult is the response to a grading.
type GradeResult struct {
	Item ReviewItem `json:"item"`
	Log  ReviewLog  `json:"log"`
}

type Dashboard struct {
	DueReviews     int       `json:"due_reviews"`
	AttemptsLast7  int       `json:"attempts_last7"`
	AttemptsLast30 int       `json:"attempts_last30"`
	RecentAttempts []Attempt `json:"recent_attempts"`
}

func NewProblem(p *store.Problem) Problem {
	tags := p.TagList()
	if tags == nil {
		tags = []string{}
	}
	return Problem{
		ID:         p.ID,
		Title:      p.Title,
		Source:     p.Source,
		Topic:      p.Topic,
		TopicLabel: store.TopicLabels[p.Topic],
		Difficulty: p.Difficulty,
		Tags:       tags,
		Statement:  p.Statement,
		CreatedAt:  time.UnixMilli(p.CreatedAt).UTC(),
	}
}

func NewAttempt(a *store.Attempt) Attempt {
	out := Attempt{
		ID:               a.ID,
		ProblemID:        a.ProblemID,
		ProblemTitle:     a.ProblemTitle,
		StartedAt:        time.UnixMilli(a.StartedAt).UTC(),
		TimeSpentSeconds: a.TimeSpentSeconds,
		Duration:         a.DurationDisplay(),
		Outcome:          a.Outcome,
		FinalAnswer:      a.FinalAnswer,
		SolutionNotes:    a.SolutionNotes,
		Confidence:       a.Confidence,
	}
	if a.EndedAt != nil {
		t := time.UnixMilli(*a.EndedAt).UTC()
		out.EndedAt = &t
	}
	return out
}

func NewAttempts(attempts []store.Attempt) []Attempt {
	out := make([]Attempt, 0, len(attempts))
	for i := range attempts {
		out = append(out, NewAttempt(&attempts[i]))
	}
	return out
}

func NewMistake(m *store.Mistake) Mistake {
	out := Mistake{
		ID:                 m.ID,
		AttemptID:          m.AttemptID,
		MistakeTypeID:      m.MistakeTypeID,
		MistakeType:        m.MistakeTypeName,
		Severity:           m.Severity,
		ShortLabel:         m.ShortLabel,
		DetailedPostmortem: m.DetailedPostmortem,
		ConceptualGap:      m.ConceptualGap,
		ExecutionError:     m.ExecutionError,
		StrategyError:      m.StrategyError,
		FixPlan:            m.FixPlan,
	}
	if m.NextReviewDate != nil {
		d := m.NextReviewDate.Format(DateLayout)
		out.NextReviewDate = &d
	}
	return out
}

// NewReviewItem renders r as seen on the given day.
func NewReviewItem(r *store.ReviewItem, today time.Time) ReviewItem {
	s := r.State()
	return ReviewItem{
		ID:               r.ID,
		RelatedMistakeID: r.RelatedMistakeID,
		RelatedProblemID: r.RelatedProblemID,
		Prompt:           r.Prompt,
		AnswerKey:        r.AnswerKey,
		EaseFactor:       r.EaseFactor,
		IntervalDays:     r.IntervalDays,
		DueDate:          r.DueDate.Format(DateLayout),
		Due:              s.IsDue(today),
		DaysUntilDue:     s.DaysUntilDue(today),
		OverdueDays:      s.OverdueDays(today),
	}
}

func NewReviewLog(l *store.ReviewLog) ReviewLog {
	return ReviewLog{
		ID:             l.ID,
		Rating:         int(l.Rating),
		RatingName:     l.Rating.String(),
		EaseBefore:     l.EaseBefore,
		EaseAfter:      l.EaseAfter,
		IntervalBefore: l.IntervalBefore,
		IntervalAfter:  l.IntervalAfter,
		DueDate:        l.DueDate.Format(DateLayout),
		GradedAt:       time.UnixMilli(l.GradedAt).UTC(),
	}
}
