package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// MistakeType is an entry of the mistake taxonomy.
type MistakeType struct {
	ID          int64
	Name        string
	Description string
}

// Mistake is a post-mortem record attached to an attempt.
type Mistake struct {
	ID                 int64
	AttemptID          int64
	MistakeTypeID      int64
	Severity           int
	ShortLabel         string
	DetailedPostmortem string
	ConceptualGap      bool
	ExecutionError     bool
	StrategyError      bool
	FixPlan            string
	NextReviewDate     *time.Time

	// MistakeTypeName is filled by queries that join mistake_types.
	MistakeTypeName string
}

// ListMistakeTypes returns the taxonomy ordered by name.
func (q *Queries) ListMistakeTypes(ctx context.Context) ([]MistakeType, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT id, name, description FROM mistake_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list mistake types: %w", err)
	}
	defer rows.Close()

	var types []MistakeType
	for rows.Next() {
		var mt MistakeType
		if err := rows.Scan(&mt.ID, &mt.Name, &mt.Description); err != nil {
			return nil, fmt.Errorf("scan mistake type: %w", err)
		}
		types = append(types, mt)
	}
	return types, rows.Err()
}

// GetMistakeTypeByName returns a mistake type, or nil if not found.
func (q *Queries) GetMistakeTypeByName(ctx context.Context, name string) (*MistakeType, error) {
	var mt MistakeType
	err := q.q.QueryRowContext(ctx,
		`SELECT id, name, description FROM mistake_types WHERE name = ?`, name,
	).Scan(&mt.ID, &mt.Name, &mt.Description)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get mistake type: %w", err)
	}
	return &mt, nil
}

// GetMistakeType returns a mistake type by ID, or nil if not found.
func (q *Queries) GetMistakeType(ctx context.Context, id int64) (*MistakeType, error) {
	var mt MistakeType
	err := q.q.QueryRowContext(ctx,
		`SELECT id, name, description FROM mistake_types WHERE id = ?`, id,
	).Scan(&mt.ID, &mt.Name, &mt.Description)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get mistake type: %w", err)
	}
	return &mt, nil
}

// EnsureMistakeType returns the named type, creating it with the given
// description if it does not exist yet. An existing description is kept.
func (q *Queries) EnsureMistakeType(ctx context.Context, name, description string) (*MistakeType, error) {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO mistake_types (name, description) VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING
	`, name, description)
	if err != nil {
		return nil, fmt.Errorf("ensure mistake type: %w", err)
	}
	mt, err := q.GetMistakeTypeByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if mt == nil {
		return nil, fmt.Errorf("ensure mistake type %q: %w", name, ErrNotFound)
	}
	return mt, nil
}

const mistakeColumns = `m.id, m.attempt_id, m.mistake_type_id, m.severity, m.short_label, m.detailed_postmortem,
	m.conceptual_gap, m.execution_error, m.strategy_error, m.fix_plan, m.next_review_date, t.name`

// CreateMistake inserts a mistake and fills in its ID.
func (q *Queries) CreateMistake(ctx context.Context, m *Mistake) error {
	result, err := q.q.ExecContext(ctx, `
		INSERT INTO mistakes (attempt_id, mistake_type_id, severity, short_label, detailed_postmortem,
			conceptual_gap, execution_error, strategy_error, fix_plan, next_review_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.AttemptID, m.MistakeTypeID, m.Severity, m.ShortLabel, m.DetailedPostmortem,
		boolInt(m.ConceptualGap), boolInt(m.ExecutionError), boolInt(m.StrategyError),
		m.FixPlan, nullDate(m.NextReviewDate))
	if err != nil {
		return fmt.Errorf("create mistake: %w", err)
	}
	id, _ := result.LastInsertId()
	m.ID = id
	return nil
}

// GetMistake returns a mistake by ID, or nil if not found.
func (q *Queries) GetMistake(ctx context.Context, id int64) (*Mistake, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT `+mistakeColumns+`
		FROM mistakes m JOIN mistake_types t ON t.id = m.mistake_type_id
		WHERE m.id = ?
	`, id)
	m, err := scanMistake(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get mistake: %w", err)
	}
	return m, nil
}

// FindMistakeByLabel returns the most recent mistake with the given short
// label, or nil if none exists.
func (q *Queries) FindMistakeByLabel(ctx context.Context, label string) (*Mistake, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT `+mistakeColumns+`
		FROM mistakes m JOIN mistake_types t ON t.id = m.mistake_type_id
		WHERE m.short_label = ? ORDER BY m.id DESC LIMIT 1
	`, label)
	m, err := scanMistake(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find mistake by label: %w", err)
	}
	return m, nil
}

// ListMistakes returns mistakes ordered by severity, most severe first.
// attemptID 0 lists every mistake.
func (q *Queries) ListMistakes(ctx context.Context, attemptID int64) ([]Mistake, error) {
	query := `SELECT ` + mistakeColumns + ` FROM mistakes m JOIN mistake_types t ON t.id = m.mistake_type_id`
	var args []any
	if attemptID != 0 {
		query += ` WHERE m.attempt_id = ?`
		args = append(args, attemptID)
	}
	query += ` ORDER BY m.severity DESC, m.id`

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list mistakes: %w", err)
	}
	defer rows.Close()

	var mistakes []Mistake
	for rows.Next() {
		m, err := scanMistake(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mistake: %w", err)
		}
		mistakes = append(mistakes, *m)
	}
	return mistakes, rows.Err()
}

func scanMistake(s rowScanner) (*Mistake, error) {
	var m Mistake
	var conceptual, execution, strategy int
	var next sql.NullString
	if err := s.Scan(&m.ID, &m.AttemptID, &m.MistakeTypeID, &m.Severity, &m.ShortLabel, &m.DetailedPostmortem,
		&conceptual, &execution, &strategy, &m.FixPlan, &next, &m.MistakeTypeName); err != nil {
		return nil, err
	}
	m.ConceptualGap = conceptual != 0
	m.ExecutionError = execution != 0
	m.StrategyError = strategy != 0
	if next.Valid {
		d, err := parseDate(next.String)
		if err != nil {
			return nil, err
		}
		m.NextReviewDate = &d
	}
	return &m, nil
}
