package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/atlas/internal/scheduler"
	"github.com/lazypower/atlas/internal/store"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// testEngine returns an engine whose clock reads *now.
func testEngine(t *testing.T, now *time.Time) *Engine {
	t.Helper()
	e := New(testDB(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	e.Clock = func() time.Time { return *now }
	t.Cleanup(e.Stop)
	return e
}

func seedAttempt(t *testing.T, e *Engine) *store.Attempt {
	t.Helper()
	ctx := context.Background()
	p, err := e.CreateProblem(ctx, ProblemInput{Title: "ISL 2019 N4", Topic: "NT", Difficulty: 7, Statement: "Find all..."})
	require.NoError(t, err)
	a, err := e.StartAttempt(ctx, p.ID)
	require.NoError(t, err)
	return a
}

func TestStartAttemptUnknownProblem(t *testing.T) {
	now := fixedNow
	e := testEngine(t, &now)

	_, err := e.StartAttempt(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFinishAttemptUsesClock(t *testing.T) {
	now := fixedNow
	e := testEngine(t, &now)
	a := seedAttempt(t, e)

	now = fixedNow.Add(17*time.Minute + 3*time.Second)
	got, err := e.FinishAttempt(context.Background(), a.ID, AttemptInput{Outcome: "partial", Confidence: 2})
	require.NoError(t, err)
	assert.Equal(t, "17m 3s", got.DurationDisplay())
	assert.Equal(t, store.OutcomePartial, got.Outcome)
}

func TestRecordMistakeSchedulesReview(t *testing.T) {
	now := fixedNow
	e := testEngine(t, &now)
	a := seedAttempt(t, e)
	ctx := context.Background()

	m, item, err := e.RecordMistake(ctx, a.ID, MistakeInput{
		MistakeType:        "Missed invariant",
		Severity:           4,
		ShortLabel:         "ignored parity",
		DetailedPostmortem: "The sum is always even.",
	})
	require.NoError(t, err)
	assert.Equal(t, "Missed invariant", m.MistakeTypeName)

	require.NotNil(t, item.RelatedMistakeID)
	assert.Equal(t, m.ID, *item.RelatedMistakeID)
	assert.Equal(t, "ignored parity", item.Prompt)
	assert.Equal(t, "The sum is always even.", item.AnswerKey)
	assert.Equal(t, scheduler.NewState(fixedNow), item.State())

	q, err := e.Queue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, q.Count)
}

func TestRecordMistakeUsesNextReviewDate(t *testing.T) {
	now := fixedNow
	e := testEngine(t, &now)
	a := seedAttempt(t, e)

	_, item, err := e.RecordMistake(context.Background(), a.ID, MistakeInput{
		MistakeType:    "Algebra slip",
		ShortLabel:     "dropped a sign",
		NextReviewDate: "2026-03-20",
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC), item.DueDate)

	q, err := e.Queue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, q.Count)
}

func TestRecordMistakeRejectsUnknownTypeAtomically(t *testing.T) {
	now := fixedNow
	e := testEngine(t, &now)
	a := seedAttempt(t, e)
	ctx := context.Background()

	_, _, err := e.RecordMistake(ctx, a.ID, MistakeInput{MistakeType: "Cosmic rays", ShortLabel: "x"})
	assert.ErrorIs(t, err, ErrValidation)

	_, _, err = e.RecordMistake(ctx, 999, MistakeInput{MistakeType: "Algebra slip", ShortLabel: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	mistakes, err := e.DB.ListMistakes(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, mistakes)
	items, err := e.DB.ListReviewItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func newReviewItem(t *testing.T, e *Engine) *store.ReviewItem {
	t.Helper()
	item := &store.ReviewItem{Prompt: "Why does AM-GM fail here?"}
	require.NoError(t, e.DB.CreateReviewItem(context.Background(), item, e.Today()))
	return item
}

func TestGradeReviewPersistsAndLogs(t *testing.T) {
	now := fixedNow
	e := testEngine(t, &now)
	ctx := context.Background()
	item := newReviewItem(t, e)

	res, err := e.GradeReview(ctx, item.ID, scheduler.Easy)
	require.NoError(t, err)
	assert.Equal(t, 2.6, res.Item.EaseFactor)
	assert.Equal(t, 3, res.Item.IntervalDays)
	assert.Equal(t, time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC), res.Item.DueDate)

	stored, err := e.DB.GetReviewItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Item.State(), stored.State())
	assert.Equal(t, item.Prompt, stored.Prompt)

	logs, err := e.DB.ListReviewLogs(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, scheduler.Easy, logs[0].Rating)
	assert.Equal(t, 2.5, logs[0].EaseBefore)
	assert.Equal(t, 0, logs[0].IntervalBefore)
	assert.Equal(t, 3, logs[0].IntervalAfter)
}

func TestGradeReviewSequence(t *testing.T) {
	now := fixedNow
	e := testEngine(t, &now)
	ctx := context.Background()
	item := newReviewItem(t, e)

	steps := []struct {
		rating   scheduler.Rating
		ease     float64
		interval int
	}{
		{scheduler.Good, 2.5, 1},
		{scheduler.Good, 2.5, 6},
		{scheduler.Good, 2.5, 15},
		{scheduler.Again, 2.18, 1},
	}
	for i, s := range steps {
		res, err := e.GradeReview(ctx, item.ID, s.rating)
		require.NoError(t, err, "step %d", i)
		assert.Equal(t, s.ease, res.Item.EaseFactor, "step %d ease", i)
		assert.Equal(t, s.interval, res.Item.IntervalDays, "step %d interval", i)
		now = now.AddDate(0, 0, s.interval)
	}
}

func TestGradeReviewInvalidRatingWritesNothing(t *testing.T) {
	now := fixedNow
	e := testEngine(t, &now)
	ctx := context.Background()
	item := newReviewItem(t, e)

	_, err := e.GradeReview(ctx, item.ID, scheduler.Rating(4))
	assert.ErrorIs(t, err, scheduler.ErrInvalidRating)

	stored, err := e.DB.GetReviewItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduler.NewState(fixedNow), stored.State())
	logs, err := e.DB.ListReviewLogs(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestGradeReviewUnknownItem(t *testing.T) {
	now := fixedNow
	e := testEngine(t, &now)

	_, err := e.GradeReview(context.Background(), 12345, scheduler.Good)
	assert.True(t, IsNotFound(err), "err = %v", err)
}

func TestGradeReviewConcurrent(t *testing.T) {
	now := fixedNow
	e := testEngine(t, &now)
	ctx := context.Background()
	item := newReviewItem(t, e)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.GradeReview(ctx, item.ID, scheduler.Good)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	logs, err := e.DB.ListReviewLogs(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, logs, n)
	for i := 1; i < n; i++ {
		assert.Equal(t, logs[i-1].IntervalAfter, logs[i].IntervalBefore, "log %d does not chain", i)
	}
}

func TestGradeReviewEasyStreakStaysReadable(t *testing.T) {
	now := fixedNow
	e := testEngine(t, &now)
	ctx := context.Background()
	item := newReviewItem(t, e)
	other := newReviewItem(t, e)

	for i := 0; i < 20; i++ {
		res, err := e.GradeReview(ctx, item.ID, scheduler.Easy)
		require.NoError(t, err, "grade %d", i)
		assert.False(t, res.Item.DueDate.After(scheduler.MaxDueDate), "grade %d: due %v", i, res.Item.DueDate)
	}

	got, err := e.DB.GetReviewItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduler.MaxDueDate, got.DueDate)
	assert.Equal(t, now.UnixMilli(), got.UpdatedAt)

	q, err := e.Queue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, q.Count)
	assert.Equal(t, other.ID, q.Items[0].ID)
}

func TestQueueOrdersByDueDate(t *testing.T) {
	now := fixedNow
	e := testEngine(t, &now)
	ctx := context.Background()

	for _, d := range []int{-1, -5, 2} {
		item := &store.ReviewItem{Prompt: "p", DueDate: e.Today().AddDate(0, 0, d)}
		require.NoError(t, e.DB.CreateReviewItem(ctx, item, e.Today()))
	}

	q, err := e.Queue(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, q.Count)
	assert.True(t, q.Items[0].DueDate.Before(q.Items[1].DueDate))
	assert.Equal(t, e.Today(), q.Today)
}

func TestDashboard(t *testing.T) {
	now := fixedNow.AddDate(0, 0, -20)
	e := testEngine(t, &now)
	ctx := context.Background()

	seedAttempt(t, e)
	now = fixedNow
	for i := 0; i < 6; i++ {
		seedAttempt(t, e)
	}
	newReviewItem(t, e)

	d, err := e.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, d.DueReviews)
	assert.Equal(t, 6, d.AttemptsLast7)
	assert.Equal(t, 7, d.AttemptsLast30)
	assert.Len(t, d.RecentAttempts, 5)
}

func TestStopIsIdempotent(t *testing.T) {
	now := fixedNow
	e := testEngine(t, &now)
	e.SweepInterval = time.Hour
	e.StartDueSweep()
	e.Stop()
	e.Stop()
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(store.ErrNotFound))
	assert.False(t, IsNotFound(errors.New("other")))
}
