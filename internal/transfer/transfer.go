// Package transfer exports the whole atlas database to a portable JSON
// document and imports such documents back, remapping ids.
package transfer

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/lazypower/atlas/internal/scheduler"
	"github.com/lazypower/atlas/internal/store"
)

// FormatVersion is written to every export.
const FormatVersion = 1

// Filename is the suggested name of an export file.
const Filename = "olympiad_error_atlas.json"

// ErrInvalidDocument is returned when an import is not valid JSON or does
// not match the export schema.
var ErrInvalidDocument = errors.New("transfer: invalid document")

//go:embed schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// Document is the export file layout.
type Document struct {
	ExportID     string        `json:"export_id"`
	ExportedAt   string        `json:"exported_at"`
	Version      int           `json:"version"`
	Problems     []Problem     `json:"problems"`
	Attempts     []Attempt     `json:"attempts"`
	MistakeTypes []MistakeType `json:"mistake_types"`
	Mistakes     []Mistake     `json:"mistakes"`
	Reviews      []Review      `json:"reviews"`
}

// Problem is an exported problem. ID is only meaningful inside the document.
type Problem struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Source     string `json:"source"`
	Topic      string `json:"topic"`
	Difficulty *int   `json:"difficulty,omitempty"`
	Tags       string `json:"tags"`
	Statement  string `json:"statement"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// Attempt refers to its problem by document id.
type Attempt struct {
	ID            int64   `json:"id"`
	Problem       int64   `json:"problem"`
	StartedAt     *string `json:"started_at"`
	EndedAt       *string `json:"ended_at"`
	Outcome       string  `json:"outcome"`
	FinalAnswer   string  `json:"final_answer"`
	SolutionNotes string  `json:"solution_notes"`
	Confidence    *int    `json:"confidence,omitempty"`
}

// MistakeType is matched by name on import.
type MistakeType struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Mistake refers to its attempt by document id and its type by name.
type Mistake struct {
	Attempt            int64   `json:"attempt"`
	MistakeType        string  `json:"mistake_type"`
	Severity           *int    `json:"severity,omitempty"`
	ShortLabel         string  `json:"short_label"`
	DetailedPostmortem string  `json:"detailed_postmortem"`
	ConceptualGap      bool    `json:"conceptual_gap"`
	ExecutionError     bool    `json:"execution_error"`
	StrategyError      bool    `json:"strategy_error"`
	FixPlan            string  `json:"fix_plan"`
	NextReviewDate     *string `json:"next_review_date"`
}

// Review refers to its mistake by short label and its problem by title.
type Review struct {
	RelatedMistake *string  `json:"related_mistake"`
	RelatedProblem *string  `json:"related_problem"`
	Prompt         string   `json:"prompt"`
	AnswerKey      string   `json:"answer_key"`
	EaseFactor     *float64 `json:"ease_factor,omitempty"`
	IntervalDays   *int     `json:"interval_days,omitempty"`
	DueDate        *string  `json:"due_date"`
}

// Counts reports how many rows of each kind an import created.
type Counts struct {
	MistakeTypes int `json:"mistake_types"`
	Problems     int `json:"problems"`
	Attempts     int `json:"attempts"`
	Mistakes     int `json:"mistakes"`
	Reviews      int `json:"reviews"`
	Skipped      int `json:"skipped"`
}

// Export snapshots the database into a Document.
func Export(ctx context.Context, db *store.DB, now time.Time) (*Document, error) {
	doc := &Document{
		ExportID:     uuid.NewString(),
		ExportedAt:   now.UTC().Format(time.RFC3339),
		Version:      FormatVersion,
		Problems:     []Problem{},
		Attempts:     []Attempt{},
		MistakeTypes: []MistakeType{},
		Mistakes:     []Mistake{},
		Reviews:      []Review{},
	}

	problems, err := db.ListProblems(ctx, store.ProblemFilter{})
	if err != nil {
		return nil, err
	}
	titles := make(map[int64]string, len(problems))
	for _, p := range problems {
		difficulty := p.Difficulty
		doc.Problems = append(doc.Problems, Problem{
			ID:         p.ID,
			Title:      p.Title,
			Source:     p.Source,
			Topic:      p.Topic,
			Difficulty: &difficulty,
			Tags:       p.Tags,
			Statement:  p.Statement,
			CreatedAt:  formatMillis(p.CreatedAt),
		})
		titles[p.ID] = p.Title
	}

	attempts, err := db.ListAttempts(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	for _, a := range attempts {
		started := formatMillis(a.StartedAt)
		confidence := a.Confidence
		out := Attempt{
			ID:            a.ID,
			Problem:       a.ProblemID,
			StartedAt:     &started,
			Outcome:       a.Outcome,
			FinalAnswer:   a.FinalAnswer,
			SolutionNotes: a.SolutionNotes,
			Confidence:    &confidence,
		}
		if a.EndedAt != nil {
			ended := formatMillis(*a.EndedAt)
			out.EndedAt = &ended
		}
		doc.Attempts = append(doc.Attempts, out)
	}

	types, err := db.ListMistakeTypes(ctx)
	if err != nil {
		return nil, err
	}
	for _, mt := range types {
		doc.MistakeTypes = append(doc.MistakeTypes, MistakeType{Name: mt.Name, Description: mt.Description})
	}

	mistakes, err := db.ListMistakes(ctx, 0)
	if err != nil {
		return nil, err
	}
	labels := make(map[int64]string, len(mistakes))
	for _, m := range mistakes {
		severity := m.Severity
		out := Mistake{
			Attempt:            m.AttemptID,
			MistakeType:        m.MistakeTypeName,
			Severity:           &severity,
			ShortLabel:         m.ShortLabel,
			DetailedPostmortem: m.DetailedPostmortem,
			ConceptualGap:      m.ConceptualGap,
			ExecutionError:     m.ExecutionError,
			StrategyError:      m.StrategyError,
			FixPlan:            m.FixPlan,
		}
		if m.NextReviewDate != nil {
			d := m.NextReviewDate.Format(time.DateOnly)
			out.NextReviewDate = &d
		}
		doc.Mistakes = append(doc.Mistakes, out)
		labels[m.ID] = m.ShortLabel
	}

	reviews, err := db.ListReviewItems(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range reviews {
		ease, interval := r.EaseFactor, r.IntervalDays
		due := r.DueDate.Format(time.DateOnly)
		out := Review{
			Prompt:       r.Prompt,
			AnswerKey:    r.AnswerKey,
			EaseFactor:   &ease,
			IntervalDays: &interval,
			DueDate:      &due,
		}
		if r.RelatedMistakeID != nil {
			if label, ok := labels[*r.RelatedMistakeID]; ok {
				out.RelatedMistake = &label
			}
		}
		if r.RelatedProblemID != nil {
			if title, ok := titles[*r.RelatedProblemID]; ok {
				out.RelatedProblem = &title
			}
		}
		doc.Reviews = append(doc.Reviews, out)
	}

	return doc, nil
}

// Validate checks raw JSON against the export schema.
func Validate(data []byte) error {
	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return nil
}

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("parse export schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		const url = "schema://atlas-export.json"
		if err := c.AddResource(url, doc); err != nil {
			schemaErr = fmt.Errorf("add export schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(url)
	})
	return schema, schemaErr
}

// Import validates data and loads it into the database in one transaction.
// Mistake types are matched by name, every problem is created fresh, and
// attempts or mistakes whose references cannot be resolved are skipped.
// Nothing is written when any row fails.
func Import(ctx context.Context, db *store.DB, data []byte, now time.Time) (*Counts, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	var counts Counts
	err := db.WithTx(ctx, func(tx *store.Tx) error {
		typeIDs := make(map[string]int64)
		for _, mt := range doc.MistakeTypes {
			existing, err := tx.GetMistakeTypeByName(ctx, mt.Name)
			if err != nil {
				return err
			}
			if existing == nil {
				counts.MistakeTypes++
			}
			got, err := tx.EnsureMistakeType(ctx, mt.Name, mt.Description)
			if err != nil {
				return err
			}
			typeIDs[got.Name] = got.ID
		}

		problemIDs := make(map[int64]int64)
		for _, p := range doc.Problems {
			np := store.Problem{
				Title:      withDefault(p.Title, "Untitled"),
				Source:     p.Source,
				Topic:      withDefault(p.Topic, "OTHER"),
				Difficulty: intOr(p.Difficulty, 5),
				Tags:       p.Tags,
				Statement:  p.Statement,
				CreatedAt:  now.UnixMilli(),
			}
			if err := tx.CreateProblem(ctx, &np); err != nil {
				return err
			}
			problemIDs[p.ID] = np.ID
			counts.Problems++
		}

		attemptIDs := make(map[int64]int64)
		for _, a := range doc.Attempts {
			problemID, ok := problemIDs[a.Problem]
			if !ok {
				counts.Skipped++
				continue
			}
			started := parseTimestamp(a.StartedAt)
			if started == nil {
				t := now
				started = &t
			}
			na := store.Attempt{
				ProblemID:     problemID,
				StartedAt:     started.UnixMilli(),
				Outcome:       withDefault(a.Outcome, store.OutcomeStuck),
				FinalAnswer:   a.FinalAnswer,
				SolutionNotes: a.SolutionNotes,
				Confidence:    intOr(a.Confidence, 3),
			}
			if ended := parseTimestamp(a.EndedAt); ended != nil {
				ms := ended.UnixMilli()
				na.EndedAt = &ms
			}
			if err := tx.InsertAttempt(ctx, &na); err != nil {
				return err
			}
			attemptIDs[a.ID] = na.ID
			counts.Attempts++
		}

		for _, m := range doc.Mistakes {
			attemptID, okAttempt := attemptIDs[m.Attempt]
			typeID, okType := typeIDs[m.MistakeType]
			if !okType {
				// Types already in the database need not be listed in the document.
				mt, err := tx.GetMistakeTypeByName(ctx, m.MistakeType)
				if err != nil {
					return err
				}
				if mt != nil {
					typeID, okType = mt.ID, true
					typeIDs[mt.Name] = mt.ID
				}
			}
			if !okAttempt || !okType {
				counts.Skipped++
				continue
			}
			nm := store.Mistake{
				AttemptID:          attemptID,
				MistakeTypeID:      typeID,
				Severity:           intOr(m.Severity, 3),
				ShortLabel:         withDefault(m.ShortLabel, "Mistake"),
				DetailedPostmortem: m.DetailedPostmortem,
				ConceptualGap:      m.ConceptualGap,
				ExecutionError:     m.ExecutionError,
				StrategyError:      m.StrategyError,
				FixPlan:            m.FixPlan,
				NextReviewDate:     parseDay(m.NextReviewDate),
			}
			if err := tx.CreateMistake(ctx, &nm); err != nil {
				return err
			}
			counts.Mistakes++
		}

		for _, r := range doc.Reviews {
			item := store.ReviewItem{
				Prompt:       r.Prompt,
				AnswerKey:    r.AnswerKey,
				EaseFactor:   scheduler.DefaultEaseFactor,
				IntervalDays: intOr(r.IntervalDays, 0),
			}
			if r.EaseFactor != nil {
				item.EaseFactor = *r.EaseFactor
			}
			if d := parseDay(r.DueDate); d != nil {
				item.DueDate = *d
			}
			if r.RelatedMistake != nil && *r.RelatedMistake != "" {
				m, err := tx.FindMistakeByLabel(ctx, *r.RelatedMistake)
				if err != nil {
					return err
				}
				if m != nil {
					item.RelatedMistakeID = &m.ID
				}
			}
			if r.RelatedProblem != nil && *r.RelatedProblem != "" {
				p, err := tx.FindProblemByTitle(ctx, *r.RelatedProblem)
				if err != nil {
					return err
				}
				if p != nil {
					item.RelatedProblemID = &p.ID
				}
			}
			if err := tx.CreateReviewItem(ctx, &item, now); err != nil {
				return err
			}
			counts.Reviews++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	return &counts, nil
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
}

// timestampLayouts covers our own exports and naive ISO timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	time.DateOnly,
}

// parseTimestamp returns nil for missing or unparseable values.
func parseTimestamp(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, *s, time.UTC); err == nil {
			return &t
		}
	}
	return nil
}

// parseDay is parseTimestamp truncated to the calendar day.
func parseDay(s *string) *time.Time {
	t := parseTimestamp(s)
	if t == nil {
		return nil
	}
	d := scheduler.Day(*t)
	return &d
}

func withDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
