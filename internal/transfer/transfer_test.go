package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

// seed fills db with one problem, one finished attempt, a mistake and the
// review items that point at them.
func seed(t *testing.T, db *store.DB) {
	t.Helper()
	ctx := context.Background()

	p := &store.Problem{Title: "USAMO 2003/1", Source: "USAMO", Topic: "NT", Difficulty: 6, Tags: "digits", Statement: "Prove that..."}
	require.NoError(t, db.CreateProblem(ctx, p))

	a, err := db.StartAttempt(ctx, p.ID, fixedNow.Add(-time.Hour))
	require.NoError(t, err)
	_, err = db.FinishAttempt(ctx, a.ID, store.AttemptResult{Outcome: store.OutcomePartial, Confidence: 2}, fixedNow)
	require.NoError(t, err)

	mt, err := db.EnsureMistakeType(ctx, "Misread problem", "Solved a different problem")
	require.NoError(t, err)
	next := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	m := &store.Mistake{AttemptID: a.ID, MistakeTypeID: mt.ID, Severity: 4, ShortLabel: "odd digits only", ExecutionError: true, NextReviewDate: &next}
	require.NoError(t, db.CreateMistake(ctx, m))

	require.NoError(t, db.CreateReviewItem(ctx, &store.ReviewItem{
		RelatedMistakeID: &m.ID,
		Prompt:           m.ShortLabel,
		EaseFactor:       2.18,
		IntervalDays:     6,
		DueDate:          next,
	}, fixedNow))
	require.NoError(t, db.CreateReviewItem(ctx, &store.ReviewItem{
		RelatedProblemID: &p.ID,
		Prompt:           "Restate the problem",
	}, fixedNow))
}

func TestExport(t *testing.T) {
	db := testDB(t)
	seed(t, db)

	doc, err := Export(context.Background(), db, fixedNow)
	require.NoError(t, err)

	assert.NotEmpty(t, doc.ExportID)
	assert.Equal(t, FormatVersion, doc.Version)
	assert.Equal(t, "2026-03-14T09:30:00Z", doc.ExportedAt)
	require.Len(t, doc.Problems, 1)
	require.Len(t, doc.Attempts, 1)
	assert.Len(t, doc.MistakeTypes, 7)
	require.Len(t, doc.Mistakes, 1)
	require.Len(t, doc.Reviews, 2)

	assert.Equal(t, doc.Problems[0].ID, doc.Attempts[0].Problem)
	assert.Equal(t, "Misread problem", doc.Mistakes[0].MistakeType)
	require.NotNil(t, doc.Mistakes[0].NextReviewDate)
	assert.Equal(t, "2026-03-20", *doc.Mistakes[0].NextReviewDate)

	var linked, byTitle int
	for _, r := range doc.Reviews {
		if r.RelatedMistake != nil && *r.RelatedMistake == "odd digits only" {
			linked++
			assert.Equal(t, 2.18, *r.EaseFactor)
			assert.Equal(t, 6, *r.IntervalDays)
		}
		if r.RelatedProblem != nil && *r.RelatedProblem == "USAMO 2003/1" {
			byTitle++
		}
	}
	assert.Equal(t, 1, linked)
	assert.Equal(t, 1, byTitle)

	// The document must satisfy its own schema.
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.NoError(t, Validate(data))
}

func TestExportIDsAreUnique(t *testing.T) {
	db := testDB(t)
	a, err := Export(context.Background(), db, fixedNow)
	require.NoError(t, err)
	b, err := Export(context.Background(), db, fixedNow)
	require.NoError(t, err)
	assert.NotEqual(t, a.ExportID, b.ExportID)
}

func TestRoundTrip(t *testing.T) {
	src := testDB(t)
	seed(t, src)
	doc, err := Export(context.Background(), src, fixedNow)
	require.NoError(t, err)
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	dst := testDB(t)
	ctx := context.Background()
	counts, err := Import(ctx, dst, data, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, &Counts{MistakeTypes: 1, Problems: 1, Attempts: 1, Mistakes: 1, Reviews: 2}, counts)

	attempts, err := dst.ListAttempts(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, 3600, attempts[0].TimeSpentSeconds)
	assert.Equal(t, store.OutcomePartial, attempts[0].Outcome)

	items, err := dst.ListReviewItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	var relinked int
	for _, it := range items {
		if it.RelatedMistakeID != nil {
			relinked++
			assert.Equal(t, 2.18, it.EaseFactor)
			assert.Equal(t, 6, it.IntervalDays)
		}
		if it.RelatedProblemID != nil {
			relinked++
		}
	}
	assert.Equal(t, 2, relinked)
}

func TestImportDefaultsAndSkips(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	data := []byte(`{
		"problems": [{"id": 10, "statement": "S"}],
		"attempts": [
			{"id": 1, "problem": 10, "started_at": "2026-03-01T10:00:00+00:00", "ended_at": "2026-03-01T10:05:30+00:00"},
			{"id": 2, "problem": 99}
		],
		"mistakes": [
			{"attempt": 1, "mistake_type": "Algebra slip"},
			{"attempt": 2, "mistake_type": "Algebra slip"},
			{"attempt": 1, "mistake_type": "Unknown type"}
		],
		"reviews": [{"prompt": "p", "due_date": null, "related_mistake": "nothing matches"}]
	}`)

	counts, err := Import(ctx, db, data, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, &Counts{Problems: 1, Attempts: 1, Mistakes: 1, Reviews: 1, Skipped: 3}, counts)

	problems, err := db.ListProblems(ctx, store.ProblemFilter{})
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Equal(t, "Untitled", problems[0].Title)
	assert.Equal(t, "OTHER", problems[0].Topic)
	assert.Equal(t, 5, problems[0].Difficulty)

	attempts, err := db.ListAttempts(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, 330, attempts[0].TimeSpentSeconds)
	assert.Equal(t, store.OutcomeStuck, attempts[0].Outcome)
	assert.Equal(t, 3, attempts[0].Confidence)

	mistakes, err := db.ListMistakes(ctx, 0)
	require.NoError(t, err)
	require.Len(t, mistakes, 1)
	assert.Equal(t, "Mistake", mistakes[0].ShortLabel)
	assert.Equal(t, 3, mistakes[0].Severity)

	items, err := db.ListReviewItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Nil(t, items[0].RelatedMistakeID)
	assert.Equal(t, 2.5, items[0].EaseFactor)
	assert.Equal(t, 0, items[0].IntervalDays)
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), items[0].DueDate)
}

func TestImportRejectsInvalidDocuments(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	bad := map[string]string{
		"not json":           `{"problems": [`,
		"wrong topic":        `{"problems": [{"id": 1, "topic": "CALCULUS"}]}`,
		"difficulty range":   `{"problems": [{"id": 1, "difficulty": 11}]}`,
		"missing attempt id": `{"attempts": [{"problem": 1}]}`,
		"bad outcome":        `{"attempts": [{"id": 1, "problem": 1, "outcome": "gave up"}]}`,
		"severity range":     `{"mistakes": [{"attempt": 1, "mistake_type": "x", "severity": 0}]}`,
		"negative interval":  `{"reviews": [{"interval_days": -1}]}`,
	}
	for name, doc := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := Import(ctx, db, []byte(doc), fixedNow)
			assert.True(t, errors.Is(err, ErrInvalidDocument), "err = %v", err)
		})
	}

	problems, err := db.ListProblems(ctx, store.ProblemFilter{})
	require.NoError(t, err)
	assert.Empty(t, problems)
}
