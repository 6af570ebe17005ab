package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Topic codes, in display order.
var Topics = []string{"NT", "ALG", "GEO", "COMB", "OTHER"}

// TopicLabels maps a topic code to its human label.
var TopicLabels = map[string]string{
	"NT":    "Number Theory",
	"ALG":   "Algebra",
	"GEO":   "Geometry",
	"COMB":  "Combinatorics",
	"OTHER": "Other",
}

// Problem is a practice problem.
type Problem struct {
	ID         int64
	Title      string
	Source     string
	Topic      string
	Difficulty int
	Tags       string // comma-separated
	Statement  string
	CreatedAt  int64
}

// TagList splits Tags on commas, dropping blanks.
func (p *Problem) TagList() []string {
	var tags []string
	for _, t := range strings.Split(p.Tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// ProblemFilter narrows ListProblems. Zero values match everything.
type ProblemFilter struct {
	Topics        []string
	DifficultyMin int
	DifficultyMax int
	Tag           string // case-insensitive substring of tags
	Source        string // case-insensitive substring of source
}

const problemColumns = `id, title, source, topic, difficulty, tags, statement, created_at`

// CreateProblem inserts a problem and fills in its ID and CreatedAt.
func (q *Queries) CreateProblem(ctx context.Context, p *Problem) error {
	if p.CreatedAt == 0 {
		p.CreatedAt = time.Now().UnixMilli()
	}
	result, err := q.q.ExecContext(ctx, `
		INSERT INTO problems (title, source, topic, difficulty, tags, statement, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.Title, p.Source, p.Topic, p.Difficulty, p.Tags, p.Statement, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create problem: %w", err)
	}
	id, _ := result.LastInsertId()
	p.ID = id
	return nil
}

// GetProblem returns a problem by ID, or nil if not found.
func (q *Queries) GetProblem(ctx context.Context, id int64) (*Problem, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+problemColumns+` FROM problems WHERE id = ?`, id)
	p, err := scanProblem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get problem: %w", err)
	}
	return p, nil
}

// FindProblemByTitle returns the most recent problem with the given title,
// or nil if none exists.
func (q *Queries) FindProblemByTitle(ctx context.Context, title string) (*Problem, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT `+problemColumns+` FROM problems WHERE title = ?
		ORDER BY created_at DESC, id DESC LIMIT 1
	`, title)
	p, err := scanProblem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find problem by title: %w", err)
	}
	return p, nil
}

// UpdateProblem overwrites the editable fields of a problem.
func (q *Queries) UpdateProblem(ctx context.Context, p *Problem) error {
	result, err := q.q.ExecContext(ctx, `
		UPDATE problems SET title = ?, source = ?, topic = ?, difficulty = ?, tags = ?, statement = ?
		WHERE id = ?
	`, p.Title, p.Source, p.Topic, p.Difficulty, p.Tags, p.Statement, p.ID)
	if err != nil {
		return fmt.Errorf("update problem: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("update problem %d: %w", p.ID, ErrNotFound)
	}
	return nil
}

// DeleteProblem removes a problem and, by cascade, its attempts and mistakes.
// Review items that pointed at it keep existing with the link cleared.
func (q *Queries) DeleteProblem(ctx context.Context, id int64) error {
	result, err := q.q.ExecContext(ctx, `DELETE FROM problems WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete problem: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("delete problem %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListProblems returns problems matching the filter, newest first.
func (q *Queries) ListProblems(ctx context.Context, f ProblemFilter) ([]Problem, error) {
	var where []string
	var args []any

	if len(f.Topics) > 0 {
		marks := make([]string, len(f.Topics))
		for i, t := range f.Topics {
			marks[i] = "?"
			args = append(args, t)
		}
		where = append(where, "topic IN ("+strings.Join(marks, ", ")+")")
	}
	if f.DifficultyMin > 0 {
		where = append(where, "difficulty >= ?")
		args = append(args, f.DifficultyMin)
	}
	if f.DifficultyMax > 0 {
		where = append(where, "difficulty <= ?")
		args = append(args, f.DifficultyMax)
	}
	if f.Tag != "" {
		where = append(where, "LOWER(tags) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Tag)+"%")
	}
	if f.Source != "" {
		where = append(where, "LOWER(source) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Source)+"%")
	}

	query := `SELECT ` + problemColumns + ` FROM problems`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list problems: %w", err)
	}
	defer rows.Close()

	var problems []Problem
	for rows.Next() {
		p, err := scanProblem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan problem: %w", err)
		}
		problems = append(problems, *p)
	}
	return problems, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProblem(s rowScanner) (*Problem, error) {
	var p Problem
	if err := s.Scan(&p.ID, &p.Title, &p.Source, &p.Topic, &p.Difficulty, &p.Tags, &p.Statement, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
