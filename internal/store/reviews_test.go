package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lazypower/atlas/internal/scheduler"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCreateReviewItemSeedsNewState(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	r := &ReviewItem{Prompt: "What invariant did you miss?", AnswerKey: "parity"}
	if err := db.CreateReviewItem(ctx, r, fixedNow); err != nil {
		t.Fatalf("CreateReviewItem: %v", err)
	}

	got, err := db.GetReviewItem(ctx, r.ID)
	if err != nil || got == nil {
		t.Fatalf("GetReviewItem: %v", err)
	}
	want := scheduler.NewState(fixedNow)
	if got.State() != want {
		t.Errorf("State = %+v, want %+v", got.State(), want)
	}
	if got.CreatedAt != fixedNow.UnixMilli() || got.UpdatedAt != fixedNow.UnixMilli() {
		t.Errorf("timestamps = %d/%d, want %d", got.CreatedAt, got.UpdatedAt, fixedNow.UnixMilli())
	}
}

func TestDueDateOutOfRangeIsRejected(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	r := &ReviewItem{Prompt: "p"}
	if err := db.CreateReviewItem(ctx, r, fixedNow); err != nil {
		t.Fatalf("CreateReviewItem: %v", err)
	}

	far := scheduler.State{EaseFactor: 2.6, IntervalDays: 4000000, DueDate: day(12387, 7, 20)}
	if err := db.SaveSchedule(ctx, r.ID, far, fixedNow); !errors.Is(err, scheduler.ErrDateOutOfRange) {
		t.Fatalf("SaveSchedule far future: err = %v, want ErrDateOutOfRange", err)
	}
	err := db.CreateReviewItem(ctx, &ReviewItem{Prompt: "q", DueDate: day(10000, 1, 1)}, fixedNow)
	if !errors.Is(err, scheduler.ErrDateOutOfRange) {
		t.Fatalf("CreateReviewItem far future: err = %v, want ErrDateOutOfRange", err)
	}

	last := scheduler.State{EaseFactor: 2.6, IntervalDays: 10, DueDate: scheduler.MaxDueDate}
	if err := db.SaveSchedule(ctx, r.ID, last, fixedNow); err != nil {
		t.Fatalf("SaveSchedule last day: %v", err)
	}

	// Every row must still read back.
	all, err := db.ListReviewItems(ctx)
	if err != nil {
		t.Fatalf("ListReviewItems: %v", err)
	}
	if len(all) != 1 || !all[0].DueDate.Equal(scheduler.MaxDueDate) {
		t.Errorf("items = %+v", all)
	}
	if due, err := db.ListDueReviews(ctx, fixedNow); err != nil || len(due) != 0 {
		t.Errorf("ListDueReviews = %d, %v; want none", len(due), err)
	}
}

func TestListDueReviews(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	today := day(2026, 3, 14)

	for _, due := range []time.Time{day(2026, 3, 15), day(2026, 3, 14), day(2026, 3, 1)} {
		r := &ReviewItem{Prompt: due.Format(dateLayout), DueDate: due}
		if err := db.CreateReviewItem(ctx, r, today); err != nil {
			t.Fatalf("CreateReviewItem: %v", err)
		}
	}

	due, err := db.ListDueReviews(ctx, today.Add(23*time.Hour))
	if err != nil {
		t.Fatalf("ListDueReviews: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("got %d due, want 2", len(due))
	}
	if due[0].Prompt != "2026-03-01" || due[1].Prompt != "2026-03-14" {
		t.Errorf("order = %q, %q", due[0].Prompt, due[1].Prompt)
	}

	n, _ := db.CountDueReviews(ctx, today)
	if n != 2 {
		t.Errorf("CountDueReviews = %d, want 2", n)
	}
	all, _ := db.ListReviewItems(ctx)
	if len(all) != 3 {
		t.Errorf("ListReviewItems = %d, want 3", len(all))
	}
}

func TestSaveScheduleOnlyTouchesSchedule(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	r := &ReviewItem{Prompt: "p", AnswerKey: "a"}
	if err := db.CreateReviewItem(ctx, r, fixedNow); err != nil {
		t.Fatalf("CreateReviewItem: %v", err)
	}

	next := scheduler.State{EaseFactor: 2.6, IntervalDays: 3, DueDate: day(2026, 3, 17)}
	graded := fixedNow.Add(2 * time.Hour)
	if err := db.SaveSchedule(ctx, r.ID, next, graded); err != nil {
		t.Fatalf("SaveSchedule: %v", err)
	}

	got, _ := db.GetReviewItem(ctx, r.ID)
	if got.State() != next {
		t.Errorf("State = %+v, want %+v", got.State(), next)
	}
	if got.Prompt != "p" || got.AnswerKey != "a" || got.CreatedAt != r.CreatedAt {
		t.Errorf("non-schedule fields changed: %+v", got)
	}
	if got.UpdatedAt != graded.UnixMilli() {
		t.Errorf("UpdatedAt = %d, want %d", got.UpdatedAt, graded.UnixMilli())
	}

	if err := db.SaveSchedule(ctx, 999, next, graded); !errors.Is(err, ErrNotFound) {
		t.Errorf("SaveSchedule missing: err = %v, want ErrNotFound", err)
	}
}

func TestReviewLogs(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	r := &ReviewItem{Prompt: "p"}
	if err := db.CreateReviewItem(ctx, r, fixedNow); err != nil {
		t.Fatalf("CreateReviewItem: %v", err)
	}

	entries := []ReviewLog{
		{ReviewItemID: r.ID, Rating: scheduler.Good, EaseBefore: 2.5, EaseAfter: 2.5, IntervalAfter: 1, DueDate: day(2026, 3, 15), GradedAt: 1},
		{ReviewItemID: r.ID, Rating: scheduler.Easy, EaseBefore: 2.5, EaseAfter: 2.6, IntervalBefore: 1, IntervalAfter: 6, DueDate: day(2026, 3, 21), GradedAt: 2},
	}
	for i := range entries {
		if err := db.AppendReviewLog(ctx, &entries[i]); err != nil {
			t.Fatalf("AppendReviewLog: %v", err)
		}
	}

	logs, err := db.ListReviewLogs(ctx, r.ID)
	if err != nil {
		t.Fatalf("ListReviewLogs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("got %d logs, want 2", len(logs))
	}
	if logs[1].Rating != scheduler.Easy || logs[1].IntervalAfter != 6 || !logs[1].DueDate.Equal(day(2026, 3, 21)) {
		t.Errorf("second log = %+v", logs[1])
	}

	if err := db.DeleteReviewItem(ctx, r.ID); err != nil {
		t.Fatalf("DeleteReviewItem: %v", err)
	}
	logs, _ = db.ListReviewLogs(ctx, r.ID)
	if len(logs) != 0 {
		t.Errorf("logs survived item deletion: %d", len(logs))
	}
}

func TestWithTxRollsBack(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := db.WithTx(ctx, func(tx *Tx) error {
		if err := tx.CreateReviewItem(ctx, &ReviewItem{Prompt: "p"}, fixedNow); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx err = %v, want boom", err)
	}
	all, _ := db.ListReviewItems(ctx)
	if len(all) != 0 {
		t.Errorf("rolled back insert is visible: %d items", len(all))
	}
}
