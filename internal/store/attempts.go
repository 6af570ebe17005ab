package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Attempt outcomes.
const (
	OutcomeSolved  = "solved"
	OutcomePartial = "partial"
	OutcomeStuck   = "stuck"
	OutcomeWrong   = "wrong"
)

// Outcomes lists the valid attempt outcomes.
var Outcomes = []string{OutcomeSolved, OutcomePartial, OutcomeStuck, OutcomeWrong}

// Attempt is one timed try at a problem.
type Attempt struct {
	ID               int64
	ProblemID        int64
	StartedAt        int64
	EndedAt          *int64
	TimeSpentSeconds int
	Outcome          string
	FinalAnswer      string
	SolutionNotes    string
	Confidence       int

	// ProblemTitle is filled by list queries that join problems.
	ProblemTitle string
}

// Finished reports whether the attempt has an end time.
func (a *Attempt) Finished() bool {
	return a.EndedAt != nil
}

// DurationDisplay renders the time spent as "Xm Ys".
func (a *Attempt) DurationDisplay() string {
	return fmt.Sprintf("%dm %ds", a.TimeSpentSeconds/60, a.TimeSpentSeconds%60)
}

// AttemptResult is the data recorded when an attempt finishes.
type AttemptResult struct {
	Outcome       string
	FinalAnswer   string
	SolutionNotes string
	Confidence    int
}

// timeSpentSeconds derives the attempt duration, never negative.
func timeSpentSeconds(startedAt, endedAt int64) int {
	if endedAt <= startedAt {
		return 0
	}
	return int((endedAt - startedAt) / 1000)
}

const attemptColumns = `a.id, a.problem_id, a.started_at, a.ended_at, a.time_spent_seconds, a.outcome,
	a.final_answer, a.solution_notes, a.confidence, p.title`

// StartAttempt opens a new attempt on a problem at the given time.
func (q *Queries) StartAttempt(ctx context.Context, problemID int64, startedAt time.Time) (*Attempt, error) {
	start := startedAt.UnixMilli()
	result, err := q.q.ExecContext(ctx, `
		INSERT INTO attempts (problem_id, started_at, outcome, confidence)
		VALUES (?, ?, ?, 3)
	`, problemID, start, OutcomeStuck)
	if err != nil {
		return nil, fmt.Errorf("start attempt: %w", err)
	}
	id, _ := result.LastInsertId()
	return &Attempt{
		ID:         id,
		ProblemID:  problemID,
		StartedAt:  start,
		Outcome:    OutcomeStuck,
		Confidence: 3,
	}, nil
}

// InsertAttempt stores a complete attempt (used by import). TimeSpentSeconds
// is derived from the start and end times.
func (q *Queries) InsertAttempt(ctx context.Context, a *Attempt) error {
	if a.EndedAt != nil {
		a.TimeSpentSeconds = timeSpentSeconds(a.StartedAt, *a.EndedAt)
	}
	result, err := q.q.ExecContext(ctx, `
		INSERT INTO attempts (problem_id, started_at, ended_at, time_spent_seconds, outcome,
			final_answer, solution_notes, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ProblemID, a.StartedAt, nullInt64(a.EndedAt), a.TimeSpentSeconds, a.Outcome,
		a.FinalAnswer, a.SolutionNotes, a.Confidence)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	id, _ := result.LastInsertId()
	a.ID = id
	return nil
}

// FinishAttempt records the result and end time of an attempt. Finishing an
// already finished attempt overwrites the previous result.
func (q *Queries) FinishAttempt(ctx context.Context, id int64, res AttemptResult, endedAt time.Time) (*Attempt, error) {
	a, err := q.GetAttempt(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("finish attempt %d: %w", id, ErrNotFound)
	}

	end := endedAt.UnixMilli()
	spent := timeSpentSeconds(a.StartedAt, end)
	_, err = q.q.ExecContext(ctx, `
		UPDATE attempts SET ended_at = ?, time_spent_seconds = ?, outcome = ?,
			final_answer = ?, solution_notes = ?, confidence = ?
		WHERE id = ?
	`, end, spent, res.Outcome, res.FinalAnswer, res.SolutionNotes, res.Confidence, id)
	if err != nil {
		return nil, fmt.Errorf("finish attempt: %w", err)
	}

	a.EndedAt = &end
	a.TimeSpentSeconds = spent
	a.Outcome = res.Outcome
	a.FinalAnswer = res.FinalAnswer
	a.SolutionNotes = res.SolutionNotes
	a.Confidence = res.Confidence
	return a, nil
}

// GetAttempt returns an attempt by ID, or nil if not found.
func (q *Queries) GetAttempt(ctx context.Context, id int64) (*Attempt, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT `+attemptColumns+`
		FROM attempts a JOIN problems p ON p.id = a.problem_id
		WHERE a.id = ?
	`, id)
	a, err := scanAttempt(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return a, nil
}

// ListAttempts returns attempts newest first. problemID 0 lists all problems;
// limit 0 means no limit.
func (q *Queries) ListAttempts(ctx context.Context, problemID int64, limit int) ([]Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM attempts a JOIN problems p ON p.id = a.problem_id`
	var args []any
	if problemID != 0 {
		query += ` WHERE a.problem_id = ?`
		args = append(args, problemID)
	}
	query += ` ORDER BY a.started_at DESC, a.id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

// CountAttemptsSince counts attempts started at or after the given time.
func (q *Queries) CountAttemptsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempts WHERE started_at >= ?`, since.UnixMilli(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return n, nil
}

func scanAttempt(s rowScanner) (*Attempt, error) {
	var a Attempt
	var endedAt sql.NullInt64
	if err := s.Scan(&a.ID, &a.ProblemID, &a.StartedAt, &endedAt, &a.TimeSpentSeconds, &a.Outcome,
		&a.FinalAnswer, &a.SolutionNotes, &a.Confidence, &a.ProblemTitle); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		a.EndedAt = &endedAt.Int64
	}
	return &a, nil
}
