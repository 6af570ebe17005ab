package engine

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/lazypower/atlas/internal/store"
)

// ErrValidation marks input rejected before it reaches the store.
var ErrValidation = errors.New("engine: invalid input")

// Field size limits.
const (
	maxTitleChars     = 200
	maxSourceChars    = 200
	maxLabelChars     = 150
	maxAnswerChars    = 200
	maxTextChars      = 20000
	defaultDifficulty = 5
	defaultConfidence = 3
	defaultSeverity   = 3
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ProblemInput is the user-editable part of a problem.
type ProblemInput struct {
	Title      string `json:"title"`
	Source     string `json:"source"`
	Topic      string `json:"topic"`
	Difficulty int    `json:"difficulty"`
	Tags       string `json:"tags"`
	Statement  string `json:"statement"`
}

// AttemptInput is the result submitted when finishing an attempt.
type AttemptInput struct {
	Outcome       string `json:"outcome"`
	FinalAnswer   string `json:"final_answer"`
	SolutionNotes string `json:"solution_notes"`
	Confidence    int    `json:"confidence"`
}

// MistakeInput describes a mistake found in an attempt. The type is given by
// ID or, when MistakeTypeID is zero, by name.
type MistakeInput struct {
	MistakeTypeID      int64  `json:"mistake_type_id"`
	MistakeType        string `json:"mistake_type"`
	Severity           int    `json:"severity"`
	ShortLabel         string `json:"short_label"`
	DetailedPostmortem string `json:"detailed_postmortem"`
	ConceptualGap      bool   `json:"conceptual_gap"`
	ExecutionError     bool   `json:"execution_error"`
	StrategyError      bool   `json:"strategy_error"`
	FixPlan            string `json:"fix_plan"`
	NextReviewDate     string `json:"next_review_date"` // YYYY-MM-DD, optional
}

// validTagChar returns true if the character is allowed in a tag.
func validTagChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_'
}

// sanitizeTag normalizes a tag to [a-z0-9_-].
// Uppercase becomes lowercase, spaces and dots become hyphens, other chars are dropped.
func sanitizeTag(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}

	var b strings.Builder
	prevHyphen := false
	for _, r := range strings.ToLower(tag) {
		if validTagChar(r) {
			b.WriteRune(r)
			prevHyphen = (r == '-')
		} else if r == ' ' || r == '.' || r == '/' {
			if !prevHyphen && b.Len() > 0 {
				b.WriteByte('-')
				prevHyphen = true
			}
		}
	}

	return strings.Trim(b.String(), "-_")
}

// normalizeTags sanitizes a comma-separated tag list, dropping empties and
// duplicates while keeping the first-seen order.
func normalizeTags(tags string) string {
	var out []string
	for _, t := range strings.Split(tags, ",") {
		t = sanitizeTag(t)
		if t == "" || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	return strings.Join(out, ",")
}

// ValidateProblem checks and normalizes a problem input.
func ValidateProblem(in ProblemInput) (store.Problem, error) {
	p := store.Problem{
		Title:      strings.TrimSpace(in.Title),
		Source:     strings.TrimSpace(in.Source),
		Topic:      strings.ToUpper(strings.TrimSpace(in.Topic)),
		Difficulty: in.Difficulty,
		Tags:       normalizeTags(in.Tags),
		Statement:  strings.TrimSpace(in.Statement),
	}

	if p.Title == "" {
		return p, invalid("title is required")
	}
	if p.Statement == "" {
		return p, invalid("statement is required")
	}
	if p.Topic == "" {
		p.Topic = "OTHER"
	}
	if !slices.Contains(store.Topics, p.Topic) {
		return p, invalid("unknown topic %q", in.Topic)
	}
	if p.Difficulty == 0 {
		p.Difficulty = defaultDifficulty
	}
	if p.Difficulty < 1 || p.Difficulty > 10 {
		return p, invalid("difficulty must be between 1 and 10, got %d", p.Difficulty)
	}

	p.Title = truncateClean(p.Title, maxTitleChars)
	p.Source = truncateClean(p.Source, maxSourceChars)
	p.Statement = truncateClean(p.Statement, maxTextChars)
	return p, nil
}

// ValidateAttempt checks and normalizes an attempt result.
func ValidateAttempt(in AttemptInput) (store.AttemptResult, error) {
	res := store.AttemptResult{
		Outcome:       strings.ToLower(strings.TrimSpace(in.Outcome)),
		FinalAnswer:   truncateClean(strings.TrimSpace(in.FinalAnswer), maxAnswerChars),
		SolutionNotes: truncateClean(strings.TrimSpace(in.SolutionNotes), maxTextChars),
		Confidence:    in.Confidence,
	}
	if res.Outcome == "" {
		res.Outcome = store.OutcomeStuck
	}
	if !slices.Contains(store.Outcomes, res.Outcome) {
		return res, invalid("unknown outcome %q", in.Outcome)
	}
	if res.Confidence == 0 {
		res.Confidence = defaultConfidence
	}
	if res.Confidence < 1 || res.Confidence > 5 {
		return res, invalid("confidence must be between 1 and 5, got %d", res.Confidence)
	}
	return res, nil
}

// validateMistake checks the fields of a mistake input that do not need the
// database. The mistake type is resolved by the caller.
func validateMistake(in MistakeInput) (store.Mistake, error) {
	m := store.Mistake{
		Severity:           in.Severity,
		ShortLabel:         strings.TrimSpace(in.ShortLabel),
		DetailedPostmortem: truncateClean(strings.TrimSpace(in.DetailedPostmortem), maxTextChars),
		ConceptualGap:      in.ConceptualGap,
		ExecutionError:     in.ExecutionError,
		StrategyError:      in.StrategyError,
		FixPlan:            truncateClean(strings.TrimSpace(in.FixPlan), maxTextChars),
	}
	if m.ShortLabel == "" {
		return m, invalid("short label is required")
	}
	m.ShortLabel = truncateClean(m.ShortLabel, maxLabelChars)
	if m.Severity == 0 {
		m.Severity = defaultSeverity
	}
	if m.Severity < 1 || m.Severity > 5 {
		return m, invalid("severity must be between 1 and 5, got %d", m.Severity)
	}
	if in.MistakeTypeID == 0 && strings.TrimSpace(in.MistakeType) == "" {
		return m, invalid("mistake type is required")
	}
	if d := strings.TrimSpace(in.NextReviewDate); d != "" {
		t, err := time.ParseInLocation("2006-01-02", d, time.UTC)
		if err != nil {
			return m, invalid("next review date %q is not YYYY-MM-DD", d)
		}
		m.NextReviewDate = &t
	}
	return m, nil
}

// truncateClean truncates a string to maxLen bytes, cutting at the last word
// boundary to avoid mid-word breaks.
func truncateClean(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	truncated := s[:maxLen]
	if idx := strings.LastIndexFunc(truncated, unicode.IsSpace); idx > maxLen/2 {
		truncated = truncated[:idx]
	}
	return strings.TrimSpace(strings.ToValidUTF8(truncated, ""))
}
