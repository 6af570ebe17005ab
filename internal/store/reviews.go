package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lazypower/atlas/internal/scheduler"
)

// ReviewItem is a flashcard-like prompt scheduled for spaced review.
type ReviewItem struct {
	ID               int64
	RelatedMistakeID *int64
	RelatedProblemID *int64
	Prompt           string
	AnswerKey        string
	EaseFactor       float64
	IntervalDays     int
	DueDate          time.Time
	CreatedAt        int64
	UpdatedAt        int64
}

// State returns the scheduling fields of the item.
func (r *ReviewItem) State() scheduler.State {
	return scheduler.State{
		EaseFactor:   r.EaseFactor,
		IntervalDays: r.IntervalDays,
		DueDate:      r.DueDate,
	}
}

// ReviewLog records a single grading of a review item.
type ReviewLog struct {
	ID             int64
	ReviewItemID   int64
	Rating         scheduler.Rating
	EaseBefore     float64
	EaseAfter      float64
	IntervalBefore int
	IntervalAfter  int
	DueDate        time.Time
	GradedAt       int64
}

const reviewColumns = `id, related_mistake_id, related_problem_id, prompt, answer_key,
	ease_factor, interval_days, due_date, created_at, updated_at`

// checkDueDate rejects dates that cannot round-trip through YYYY-MM-DD text.
func checkDueDate(t time.Time) error {
	if t.Year() < 1 || t.After(scheduler.MaxDueDate) {
		return fmt.Errorf("due date %s: %w", t.Format(time.DateOnly), scheduler.ErrDateOutOfRange)
	}
	return nil
}

// CreateReviewItem inserts a review item and fills in its ID and timestamps.
// A zero EaseFactor and DueDate are seeded from scheduler.NewState(now).
func (q *Queries) CreateReviewItem(ctx context.Context, r *ReviewItem, now time.Time) error {
	seed := scheduler.NewState(now)
	if r.EaseFactor == 0 {
		r.EaseFactor = seed.EaseFactor
	}
	if r.DueDate.IsZero() {
		r.DueDate = seed.DueDate
	}
	r.DueDate = scheduler.Day(r.DueDate)
	if err := checkDueDate(r.DueDate); err != nil {
		return fmt.Errorf("create review item: %w", err)
	}
	r.CreatedAt, r.UpdatedAt = now.UnixMilli(), now.UnixMilli()

	result, err := q.q.ExecContext(ctx, `
		INSERT INTO review_items (related_mistake_id, related_problem_id, prompt, answer_key,
			ease_factor, interval_days, due_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, nullInt64(r.RelatedMistakeID), nullInt64(r.RelatedProblemID), r.Prompt, r.AnswerKey,
		r.EaseFactor, r.IntervalDays, formatDate(r.DueDate), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create review item: %w", err)
	}
	id, _ := result.LastInsertId()
	r.ID = id
	return nil
}

// GetReviewItem returns a review item by ID, or nil if not found.
func (q *Queries) GetReviewItem(ctx context.Context, id int64) (*ReviewItem, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM review_items WHERE id = ?`, id)
	r, err := scanReviewItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get review item: %w", err)
	}
	return r, nil
}

// ListDueReviews returns items due on or before today, oldest due date first.
func (q *Queries) ListDueReviews(ctx context.Context, today time.Time) ([]ReviewItem, error) {
	return q.listReviews(ctx, `WHERE due_date <= ? ORDER BY due_date, id`, formatDate(scheduler.Day(today)))
}

// ListReviewItems returns every review item ordered by due date.
func (q *Queries) ListReviewItems(ctx context.Context) ([]ReviewItem, error) {
	return q.listReviews(ctx, `ORDER BY due_date, id`)
}

func (q *Queries) listReviews(ctx context.Context, tail string, args ...any) ([]ReviewItem, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+reviewColumns+` FROM review_items `+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("list review items: %w", err)
	}
	defer rows.Close()

	var items []ReviewItem
	for rows.Next() {
		r, err := scanReviewItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review item: %w", err)
		}
		items = append(items, *r)
	}
	return items, rows.Err()
}

// CountDueReviews counts items due on or before today.
func (q *Queries) CountDueReviews(ctx context.Context, today time.Time) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM review_items WHERE due_date <= ?`, formatDate(scheduler.Day(today)),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count due reviews: %w", err)
	}
	return n, nil
}

// SaveSchedule overwrites the three scheduling fields of an item and stamps
// updated_at. Nothing else on the row changes.
func (q *Queries) SaveSchedule(ctx context.Context, id int64, s scheduler.State, updatedAt time.Time) error {
	due := scheduler.Day(s.DueDate)
	if err := checkDueDate(due); err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	result, err := q.q.ExecContext(ctx, `
		UPDATE review_items SET ease_factor = ?, interval_days = ?, due_date = ?, updated_at = ?
		WHERE id = ?
	`, s.EaseFactor, s.IntervalDays, formatDate(due), updatedAt.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("save schedule %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteReviewItem removes a review item and its log.
func (q *Queries) DeleteReviewItem(ctx context.Context, id int64) error {
	result, err := q.q.ExecContext(ctx, `DELETE FROM review_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete review item: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("delete review item %d: %w", id, ErrNotFound)
	}
	return nil
}

// AppendReviewLog records a grading.
func (q *Queries) AppendReviewLog(ctx context.Context, l *ReviewLog) error {
	if l.GradedAt == 0 {
		l.GradedAt = time.Now().UnixMilli()
	}
	result, err := q.q.ExecContext(ctx, `
		INSERT INTO review_logs (review_item_id, rating, ease_before, ease_after,
			interval_before, interval_after, due_date, graded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, l.ReviewItemID, int(l.Rating), l.EaseBefore, l.EaseAfter,
		l.IntervalBefore, l.IntervalAfter, formatDate(scheduler.Day(l.DueDate)), l.GradedAt)
	if err != nil {
		return fmt.Errorf("append review log: %w", err)
	}
	id, _ := result.LastInsertId()
	l.ID = id
	return nil
}

// ListReviewLogs returns the grading history of an item, oldest first.
func (q *Queries) ListReviewLogs(ctx context.Context, itemID int64) ([]ReviewLog, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, review_item_id, rating, ease_before, ease_after, interval_before, interval_after,
			due_date, graded_at
		FROM review_logs WHERE review_item_id = ?
		ORDER BY graded_at, id
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list review logs: %w", err)
	}
	defer rows.Close()

	var logs []ReviewLog
	for rows.Next() {
		var l ReviewLog
		var rating int
		var due string
		if err := rows.Scan(&l.ID, &l.ReviewItemID, &rating, &l.EaseBefore, &l.EaseAfter,
			&l.IntervalBefore, &l.IntervalAfter, &due, &l.GradedAt); err != nil {
			return nil, fmt.Errorf("scan review log: %w", err)
		}
		l.Rating = scheduler.Rating(rating)
		if l.DueDate, err = parseDate(due); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func scanReviewItem(s rowScanner) (*ReviewItem, error) {
	var r ReviewItem
	var mistakeID, problemID sql.NullInt64
	var due string
	if err := s.Scan(&r.ID, &mistakeID, &problemID, &r.Prompt, &r.AnswerKey,
		&r.EaseFactor, &r.IntervalDays, &due, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if mistakeID.Valid {
		r.RelatedMistakeID = &mistakeID.Int64
	}
	if problemID.Valid {
		r.RelatedProblemID = &problemID.Int64
	}
	d, err := parseDate(due)
	if err != nil {
		return nil, err
	}
	r.DueDate = d
	return &r, nil
}
