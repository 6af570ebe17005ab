package store

import (
	"context"
	"errors"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustProblem(t *testing.T, db *DB, title, topic string, difficulty int) *Problem {
	t.Helper()
	p := &Problem{Title: title, Topic: topic, Difficulty: difficulty, Statement: "Prove it."}
	if err := db.CreateProblem(context.Background(), p); err != nil {
		t.Fatalf("CreateProblem: %v", err)
	}
	return p
}

func TestCreateAndGetProblem(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	p := &Problem{
		Title:      "IMO 1988/6",
		Source:     "IMO 1988",
		Topic:      "NT",
		Difficulty: 9,
		Tags:       "vieta-jumping,descent",
		Statement:  "Let a and b be positive integers...",
	}
	if err := db.CreateProblem(ctx, p); err != nil {
		t.Fatalf("CreateProblem: %v", err)
	}
	if p.ID == 0 {
		t.Fatal("expected ID to be set")
	}
	if p.CreatedAt == 0 {
		t.Error("expected CreatedAt to be set")
	}

	got, err := db.GetProblem(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProblem: %v", err)
	}
	if got == nil {
		t.Fatal("GetProblem returned nil")
	}
	if got.Title != p.Title || got.Topic != "NT" || got.Difficulty != 9 {
		t.Errorf("got %+v, want %+v", got, p)
	}
	tags := got.TagList()
	if len(tags) != 2 || tags[0] != "vieta-jumping" || tags[1] != "descent" {
		t.Errorf("TagList = %v", tags)
	}
}

func TestGetProblemNotFound(t *testing.T) {
	db := testDB(t)

	got, err := db.GetProblem(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetProblem: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestUpdateProblem(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	p := mustProblem(t, db, "Old", "ALG", 3)

	p.Title = "New"
	p.Difficulty = 7
	if err := db.UpdateProblem(ctx, p); err != nil {
		t.Fatalf("UpdateProblem: %v", err)
	}
	got, _ := db.GetProblem(ctx, p.ID)
	if got.Title != "New" || got.Difficulty != 7 {
		t.Errorf("after update: %+v", got)
	}

	missing := &Problem{ID: 999, Title: "x", Topic: "ALG", Difficulty: 1, Statement: "x"}
	if err := db.UpdateProblem(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateProblem missing: err = %v, want ErrNotFound", err)
	}
}

func TestListProblemsFilters(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	nt := &Problem{Title: "NT easy", Source: "USAMO 2001", Topic: "NT", Difficulty: 2, Tags: "parity", Statement: "s"}
	alg := &Problem{Title: "ALG mid", Source: "ISL 2010", Topic: "ALG", Difficulty: 5, Tags: "inequality,am-gm", Statement: "s"}
	geo := &Problem{Title: "GEO hard", Source: "IMO 2015", Topic: "GEO", Difficulty: 9, Tags: "inversion", Statement: "s"}
	for _, p := range []*Problem{nt, alg, geo} {
		if err := db.CreateProblem(ctx, p); err != nil {
			t.Fatalf("CreateProblem: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter ProblemFilter
		want   []string
	}{
		{"all newest first", ProblemFilter{}, []string{"GEO hard", "ALG mid", "NT easy"}},
		{"topics", ProblemFilter{Topics: []string{"NT", "GEO"}}, []string{"GEO hard", "NT easy"}},
		{"difficulty range", ProblemFilter{DifficultyMin: 3, DifficultyMax: 8}, []string{"ALG mid"}},
		{"tag case-insensitive", ProblemFilter{Tag: "AM-GM"}, []string{"ALG mid"}},
		{"source substring", ProblemFilter{Source: "imo"}, []string{"GEO hard"}},
		{"no match", ProblemFilter{Topics: []string{"COMB"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.ListProblems(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListProblems: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d problems, want %d", len(got), len(tt.want))
			}
			for i, p := range got {
				if p.Title != tt.want[i] {
					t.Errorf("[%d] = %q, want %q", i, p.Title, tt.want[i])
				}
			}
		})
	}
}

func TestDeleteProblemCascades(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	p := mustProblem(t, db, "Doomed", "COMB", 4)

	a, err := db.StartAttempt(ctx, p.ID, fixedNow)
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	types, _ := db.ListMistakeTypes(ctx)
	m := &Mistake{AttemptID: a.ID, MistakeTypeID: types[0].ID, Severity: 3, ShortLabel: "oops"}
	if err := db.CreateMistake(ctx, m); err != nil {
		t.Fatalf("CreateMistake: %v", err)
	}
	r := &ReviewItem{RelatedMistakeID: &m.ID, RelatedProblemID: &p.ID, Prompt: "oops"}
	if err := db.CreateReviewItem(ctx, r, fixedNow); err != nil {
		t.Fatalf("CreateReviewItem: %v", err)
	}

	if err := db.DeleteProblem(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProblem: %v", err)
	}

	if got, _ := db.GetAttempt(ctx, a.ID); got != nil {
		t.Error("attempt survived problem deletion")
	}
	if got, _ := db.GetMistake(ctx, m.ID); got != nil {
		t.Error("mistake survived problem deletion")
	}
	got, err := db.GetReviewItem(ctx, r.ID)
	if err != nil || got == nil {
		t.Fatalf("review item should survive: %v", err)
	}
	if got.RelatedMistakeID != nil || got.RelatedProblemID != nil {
		t.Errorf("links not cleared: mistake=%v problem=%v", got.RelatedMistakeID, got.RelatedProblemID)
	}

	if err := db.DeleteProblem(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: err = %v, want ErrNotFound", err)
	}
}
