package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "problems: practice problem catalogue",
		SQL: `
CREATE TABLE problems (
    id          INTEGER PRIMARY KEY,
    title       TEXT NOT NULL,
    source      TEXT NOT NULL DEFAULT '',
    topic       TEXT NOT NULL CHECK (topic IN ('NT', 'ALG', 'GEO', 'COMB', 'OTHER')),
    difficulty  INTEGER NOT NULL DEFAULT 5 CHECK (difficulty BETWEEN 1 AND 10),
    tags        TEXT NOT NULL DEFAULT '',
    statement   TEXT NOT NULL,
    created_at  INTEGER NOT NULL
);

CREATE INDEX idx_problems_topic   ON problems(topic);
CREATE INDEX idx_problems_created ON problems(created_at DESC);
`,
	},
	{
		Version:     2,
		Description: "attempts: timed attempts at a problem",
		SQL: `
CREATE TABLE attempts (
    id                 INTEGER PRIMARY KEY,
    problem_id         INTEGER NOT NULL,
    started_at         INTEGER NOT NULL,
    ended_at           INTEGER,
    time_spent_seconds INTEGER NOT NULL DEFAULT 0 CHECK (time_spent_seconds >= 0),
    outcome            TEXT NOT NULL DEFAULT 'stuck' CHECK (outcome IN ('solved', 'partial', 'stuck', 'wrong')),
    final_answer       TEXT NOT NULL DEFAULT '',
    solution_notes     TEXT NOT NULL DEFAULT '',
    confidence         INTEGER NOT NULL DEFAULT 3 CHECK (confidence BETWEEN 1 AND 5),

    FOREIGN KEY (problem_id) REFERENCES problems(id) ON DELETE CASCADE
);

CREATE INDEX idx_attempts_problem ON attempts(problem_id);
CREATE INDEX idx_attempts_started ON attempts(started_at DESC);
`,
	},
	{
		Version:     3,
		Description: "mistake_types: taxonomy with default seed",
		SQL: `
CREATE TABLE mistake_types (
    id          INTEGER PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT ''
);

INSERT INTO mistake_types (name, description) VALUES
    ('Algebra slip', 'Algebra slip'),
    ('Wrong lemma', 'Wrong lemma'),
    ('Invalid assumption', 'Invalid assumption'),
    ('Missed invariant', 'Missed invariant'),
    ('Case bash explosion', 'Case bash explosion'),
    ('Time management', 'Time management');
`,
	},
	{
		Version:     4,
		Description: "mistakes: post-mortem records per attempt",
		SQL: `
CREATE TABLE mistakes (
    id                  INTEGER PRIMARY KEY,
    attempt_id          INTEGER NOT NULL,
    mistake_type_id     INTEGER NOT NULL,
    severity            INTEGER NOT NULL DEFAULT 3 CHECK (severity BETWEEN 1 AND 5),
    short_label         TEXT NOT NULL,
    detailed_postmortem TEXT NOT NULL DEFAULT '',
    conceptual_gap      INTEGER NOT NULL DEFAULT 0,
    execution_error     INTEGER NOT NULL DEFAULT 0,
    strategy_error      INTEGER NOT NULL DEFAULT 0,
    fix_plan            TEXT NOT NULL DEFAULT '',
    next_review_date    TEXT,

    FOREIGN KEY (attempt_id)      REFERENCES attempts(id) ON DELETE CASCADE,
    FOREIGN KEY (mistake_type_id) REFERENCES mistake_types(id) ON DELETE CASCADE
);

CREATE INDEX idx_mistakes_attempt ON mistakes(attempt_id);
CREATE INDEX idx_mistakes_type    ON mistakes(mistake_type_id);
`,
	},
	{
		Version:     5,
		Description: "review_items: spaced review schedule",
		SQL: `
CREATE TABLE review_items (
    id                 INTEGER PRIMARY KEY,
    related_mistake_id INTEGER,
    related_problem_id INTEGER,
    prompt             TEXT NOT NULL,
    answer_key         TEXT NOT NULL DEFAULT '',
    ease_factor        REAL NOT NULL DEFAULT 2.5,
    interval_days      INTEGER NOT NULL DEFAULT 0 CHECK (interval_days >= 0),
    due_date           TEXT NOT NULL,
    created_at         INTEGER NOT NULL,
    updated_at         INTEGER NOT NULL,

    FOREIGN KEY (related_mistake_id) REFERENCES mistakes(id) ON DELETE SET NULL,
    FOREIGN KEY (related_problem_id) REFERENCES problems(id) ON DELETE SET NULL
);

CREATE INDEX idx_reviews_due ON review_items(due_date);
`,
	},
	{
		Version:     6,
		Description: "review_logs: one row per grading",
		SQL: `
CREATE TABLE review_logs (
    id              INTEGER PRIMARY KEY,
    review_item_id  INTEGER NOT NULL,
    rating          INTEGER NOT NULL CHECK (rating BETWEEN 0 AND 3),
    ease_before     REAL NOT NULL,
    ease_after      REAL NOT NULL,
    interval_before INTEGER NOT NULL,
    interval_after  INTEGER NOT NULL,
    due_date        TEXT NOT NULL,
    graded_at       INTEGER NOT NULL,

    FOREIGN KEY (review_item_id) REFERENCES review_items(id) ON DELETE CASCADE
);

CREATE INDEX idx_review_logs_item ON review_logs(review_item_id, graded_at);
`,
	},
}

func (db *DB) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
