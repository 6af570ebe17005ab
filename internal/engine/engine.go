package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lazypower/atlas/internal/scheduler"
	"github.com/lazypower/atlas/internal/store"
)

// ErrNotFound is returned when an operation targets a missing entity.
var ErrNotFound = store.ErrNotFound

// Engine orchestrates problems, attempts, mistakes and their spaced review.
type Engine struct {
	DB     *store.DB
	Clock  func() time.Time
	Logger *slog.Logger

	// SweepInterval is how often StartDueSweep reports the due count.
	SweepInterval time.Duration

	gradeMu  sync.Mutex
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a new Engine using the wall clock.
func New(db *store.DB, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		DB:            db,
		Clock:         time.Now,
		Logger:        logger,
		SweepInterval: 24 * time.Hour,
		stopCh:        make(chan struct{}),
	}
}

func (e *Engine) now() time.Time {
	return e.Clock().UTC()
}

// Today returns the current calendar day.
func (e *Engine) Today() time.Time {
	return scheduler.Day(e.now())
}

// CreateProblem validates and stores a new problem.
func (e *Engine) CreateProblem(ctx context.Context, in ProblemInput) (*store.Problem, error) {
	p, err := ValidateProblem(in)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = e.now().UnixMilli()
	if err := e.DB.CreateProblem(ctx, &p); err != nil {
		return nil, err
	}
	e.Logger.Info("problem created", "id", p.ID, "topic", p.Topic, "difficulty", p.Difficulty)
	return &p, nil
}

// UpdateProblem validates and overwrites the editable fields of a problem.
func (e *Engine) UpdateProblem(ctx context.Context, id int64, in ProblemInput) (*store.Problem, error) {
	p, err := ValidateProblem(in)
	if err != nil {
		return nil, err
	}
	existing, err := e.DB.GetProblem(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("problem %d: %w", id, ErrNotFound)
	}
	p.ID = id
	p.CreatedAt = existing.CreatedAt
	if err := e.DB.UpdateProblem(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// StartAttempt opens a timed attempt on an existing problem.
func (e *Engine) StartAttempt(ctx context.Context, problemID int64) (*store.Attempt, error) {
	p, err := e.DB.GetProblem(ctx, problemID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("problem %d: %w", problemID, ErrNotFound)
	}
	a, err := e.DB.StartAttempt(ctx, problemID, e.now())
	if err != nil {
		return nil, err
	}
	a.ProblemTitle = p.Title
	e.Logger.Info("attempt started", "id", a.ID, "problem", problemID)
	return a, nil
}

// FinishAttempt validates the result and closes the attempt at the current time.
func (e *Engine) FinishAttempt(ctx context.Context, id int64, in AttemptInput) (*store.Attempt, error) {
	res, err := ValidateAttempt(in)
	if err != nil {
		return nil, err
	}
	a, err := e.DB.FinishAttempt(ctx, id, res, e.now())
	if err != nil {
		return nil, err
	}
	e.Logger.Info("attempt finished", "id", id, "outcome", a.Outcome, "seconds", a.TimeSpentSeconds)
	return a, nil
}

// RecordMistake stores a mistake on an attempt and schedules a review item
// for it. Both rows are written in one transaction.
func (e *Engine) RecordMistake(ctx context.Context, attemptID int64, in MistakeInput) (*store.Mistake, *store.ReviewItem, error) {
	m, err := validateMistake(in)
	if err != nil {
		return nil, nil, err
	}
	now := e.now()

	var item store.ReviewItem
	err = e.DB.WithTx(ctx, func(tx *store.Tx) error {
		a, err := tx.GetAttempt(ctx, attemptID)
		if err != nil {
			return err
		}
		if a == nil {
			return fmt.Errorf("attempt %d: %w", attemptID, ErrNotFound)
		}

		mt, err := resolveMistakeType(ctx, tx, in)
		if err != nil {
			return err
		}
		m.AttemptID = attemptID
		m.MistakeTypeID = mt.ID
		m.MistakeTypeName = mt.Name
		if err := tx.CreateMistake(ctx, &m); err != nil {
			return err
		}

		item = store.ReviewItem{
			RelatedMistakeID: &m.ID,
			Prompt:           m.ShortLabel,
			AnswerKey:        m.DetailedPostmortem,
		}
		if m.NextReviewDate != nil {
			item.DueDate = *m.NextReviewDate
		}
		return tx.CreateReviewItem(ctx, &item, now)
	})
	if err != nil {
		return nil, nil, err
	}

	e.Logger.Info("mistake recorded", "id", m.ID, "attempt", attemptID, "type", m.MistakeTypeName,
		"review", item.ID, "due", item.DueDate.Format("2006-01-02"))
	return &m, &item, nil
}

func resolveMistakeType(ctx context.Context, tx *store.Tx, in MistakeInput) (*store.MistakeType, error) {
	if in.MistakeTypeID != 0 {
		mt, err := tx.GetMistakeType(ctx, in.MistakeTypeID)
		if err != nil {
			return nil, err
		}
		if mt == nil {
			return nil, invalid("unknown mistake type %d", in.MistakeTypeID)
		}
		return mt, nil
	}
	name := strings.TrimSpace(in.MistakeType)
	mt, err := tx.GetMistakeTypeByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if mt == nil {
		return nil, invalid("unknown mistake type %q", name)
	}
	return mt, nil
}

// GradeResult is the outcome of grading a review item.
type GradeResult struct {
	Item store.ReviewItem
	Log  store.ReviewLog
}

// GradeReview applies a rating to a review item and persists the new
// schedule. An invalid rating is rejected before anything is read.
// Gradings are serialized so concurrent calls on one item never lose an update.
func (e *Engine) GradeReview(ctx context.Context, itemID int64, rating scheduler.Rating) (*GradeResult, error) {
	if !rating.IsValid() {
		return nil, fmt.Errorf("%w: %d", scheduler.ErrInvalidRating, int(rating))
	}

	e.gradeMu.Lock()
	defer e.gradeMu.Unlock()

	now := e.now()
	today := scheduler.Day(now)

	var res GradeResult
	err := e.DB.WithTx(ctx, func(tx *store.Tx) error {
		item, err := tx.GetReviewItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item == nil {
			return fmt.Errorf("review item %d: %w", itemID, ErrNotFound)
		}

		before := item.State()
		next, err := scheduler.Grade(before, rating, today)
		if err != nil {
			return err
		}
		if err := tx.SaveSchedule(ctx, itemID, next, now); err != nil {
			return err
		}

		res.Log = store.ReviewLog{
			ReviewItemID:   itemID,
			Rating:         rating,
			EaseBefore:     before.EaseFactor,
			EaseAfter:      next.EaseFactor,
			IntervalBefore: before.IntervalDays,
			IntervalAfter:  next.IntervalDays,
			DueDate:        next.DueDate,
			GradedAt:       now.UnixMilli(),
		}
		if err := tx.AppendReviewLog(ctx, &res.Log); err != nil {
			return err
		}

		item.EaseFactor = next.EaseFactor
		item.IntervalDays = next.IntervalDays
		item.DueDate = next.DueDate
		res.Item = *item
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.Logger.Info("review graded", "id", itemID, "rating", rating.String(),
		"ease", res.Item.EaseFactor, "interval", res.Item.IntervalDays,
		"due", res.Item.DueDate.Format("2006-01-02"))
	return &res, nil
}

// Queue is the set of review items due today.
type Queue struct {
	Today time.Time
	Count int
	Items []store.ReviewItem
}

// Queue returns the items due on or before today, oldest due date first.
func (e *Engine) Queue(ctx context.Context) (*Queue, error) {
	today := e.Today()
	items, err := e.DB.ListDueReviews(ctx, today)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []store.ReviewItem{}
	}
	return &Queue{Today: today, Count: len(items), Items: items}, nil
}

// Dashboard summarizes recent practice and pending reviews.
type Dashboard struct {
	DueReviews     int
	AttemptsLast7  int
	AttemptsLast30 int
	RecentAttempts []store.Attempt
}

// Dashboard returns the due count, recent attempt counts and the five most
// recent attempts.
func (e *Engine) Dashboard(ctx context.Context) (*Dashboard, error) {
	now := e.now()
	var d Dashboard
	var err error

	if d.DueReviews, err = e.DB.CountDueReviews(ctx, now); err != nil {
		return nil, err
	}
	if d.AttemptsLast7, err = e.DB.CountAttemptsSince(ctx, now.AddDate(0, 0, -7)); err != nil {
		return nil, err
	}
	if d.AttemptsLast30, err = e.DB.CountAttemptsSince(ctx, now.AddDate(0, 0, -30)); err != nil {
		return nil, err
	}
	if d.RecentAttempts, err = e.DB.ListAttempts(ctx, 0, 5); err != nil {
		return nil, err
	}
	if d.RecentAttempts == nil {
		d.RecentAttempts = []store.Attempt{}
	}
	return &d, nil
}

// StartDueSweep reports the due-review count on startup and then every
// SweepInterval until Stop is called.
func (e *Engine) StartDueSweep() {
	e.sweep()

	go func() {
		ticker := time.NewTicker(e.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				e.sweep()
			case <-e.stopCh:
				return
			}
		}
	}()
}

func (e *Engine) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := e.DB.CountDueReviews(ctx, e.now())
	if err != nil {
		e.Logger.Error("due sweep", "err", err)
		return
	}
	e.Logger.Info("due sweep", "due", n)
}

// Stop shuts down the engine's background goroutines. Safe to call twice.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

// IsNotFound reports whether err means a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
