// Package sqlite implements every repository interface on a single SQLite
// file through database/sql and mattn/go-sqlite3. It serves local
// single-user deployments and repository tests against ":memory:".
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/loes-hub/outcome-engine/internal/domain/achievement"
	"github.com/loes-hub/outcome-engine/internal/domain/assessment"
	"github.com/loes-hub/outcome-engine/internal/domain/outcome"
	"github.com/loes-hub/outcome-engine/internal/domain/prerequisite"
	"github.com/loes-hub/outcome-engine/pkg/retry"
)

// Store is a SQLite-backed implementation of the repositories.
type Store struct {
	db *sql.DB
}

var (
	_ outcome.Repository        = (*Store)(nil)
	_ outcome.MappingRepository = (*Store)(nil)
	_ assessment.Repository     = (*Store)(nil)
	_ achievement.Repository    = (*Store)(nil)
	_ prerequisite.Repository   = (*Store)(nil)
)

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_foreign_keys=on&_busy_timeout=5000"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection: SQLite serializes writers anyway, and a ":memory:"
	// database lives only as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database file is still usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates missing tables. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return nil
}

// withTx runs fn in a transaction, committing on nil.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return wrapErr("commit", tx.Commit())
}

// wrapErr annotates err and marks lock contention retryable.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("sqlite: %s: %w", op, err)
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) && (sqErr.Code == sqlite3.ErrBusy || sqErr.Code == sqlite3.ErrLocked) {
		return retry.Retryable(wrapped)
	}
	return wrapped
}

func isConstraint(err error, ext sqlite3.ErrNoExtended) bool {
	var sqErr sqlite3.Error
	return errors.As(err, &sqErr) && sqErr.ExtendedCode == ext
}

// idList renders ids as a JSON array for json_each(?).
func idList[T ~int64](ids []T) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d", int64(id))
	}
	b.WriteByte(']')
	return b.String()
}

const schema = `
CREATE TABLE IF NOT EXISTS programs (
    id INTEGER PRIMARY KEY,
    code TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    expected_threshold REAL NOT NULL DEFAULT 0.7
);

CREATE TABLE IF NOT EXISTS courses (
    id INTEGER PRIMARY KEY,
    program_id INTEGER NOT NULL REFERENCES programs(id) ON DELETE CASCADE,
    code TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    credits INTEGER NOT NULL DEFAULT 0 CHECK (credits >= 0),
    version_year INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS outcomes (
    id INTEGER PRIMARY KEY,
    course_id INTEGER NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    code TEXT NOT NULL,
    verb TEXT NOT NULL DEFAULT '',
    text TEXT NOT NULL DEFAULT '',
    bloom_level TEXT NOT NULL DEFAULT '',
    threshold REAL NOT NULL DEFAULT 0.7 CHECK (threshold >= 0 AND threshold <= 1)
);
CREATE INDEX IF NOT EXISTS idx_outcomes_course ON outcomes(course_id);

CREATE TABLE IF NOT EXISTS program_outcomes (
    id INTEGER PRIMARY KEY,
    program_id INTEGER NOT NULL REFERENCES programs(id) ON DELETE CASCADE,
    code TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS outcome_mappings (
    outcome_id INTEGER NOT NULL REFERENCES outcomes(id) ON DELETE CASCADE,
    program_outcome_id INTEGER NOT NULL REFERENCES program_outcomes(id) ON DELETE CASCADE,
    tier TEXT NOT NULL CHECK (tier IN ('M', 'N', 'L', '-')),
    source TEXT NOT NULL DEFAULT 'manual',
    score REAL NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (outcome_id, program_outcome_id)
);

CREATE TABLE IF NOT EXISTS assessments (
    id INTEGER PRIMARY KEY,
    course_id INTEGER NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    code TEXT NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    weight REAL NOT NULL DEFAULT 1.0 CHECK (weight >= 0)
);

CREATE TABLE IF NOT EXISTS questions (
    id INTEGER PRIMARY KEY,
    assessment_id INTEGER NOT NULL REFERENCES assessments(id) ON DELETE CASCADE,
    text TEXT NOT NULL DEFAULT '',
    max_score REAL NOT NULL DEFAULT 0 CHECK (max_score >= 0)
);

CREATE TABLE IF NOT EXISTS question_outcomes (
    question_id INTEGER NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
    outcome_id INTEGER NOT NULL REFERENCES outcomes(id) ON DELETE CASCADE,
    PRIMARY KEY (question_id, outcome_id)
);
CREATE INDEX IF NOT EXISTS idx_question_outcomes_outcome ON question_outcomes(outcome_id);

CREATE TABLE IF NOT EXISTS students (
    id INTEGER PRIMARY KEY,
    student_number TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL DEFAULT '',
    cohort TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS student_scores (
    student_id INTEGER NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    question_id INTEGER NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
    score REAL NOT NULL,
    PRIMARY KEY (student_id, question_id)
);

CREATE TABLE IF NOT EXISTS achievement_results (
    id TEXT PRIMARY KEY,
    student_id INTEGER NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    outcome_id INTEGER NOT NULL REFERENCES outcomes(id) ON DELETE CASCADE,
    achievement REAL NOT NULL,
    achieved INTEGER NOT NULL,
    computed_at TIMESTAMP NOT NULL,
    source TEXT NOT NULL,
    UNIQUE (student_id, outcome_id)
);

CREATE TABLE IF NOT EXISTS prerequisite_rules (
    id INTEGER PRIMARY KEY,
    course_id INTEGER NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    prereq_course_id INTEGER NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    type TEXT NOT NULL,
    condition_type TEXT NOT NULL DEFAULT 'pass_course',
    condition_payload TEXT NOT NULL DEFAULT '{}',
    effective_year INTEGER NOT NULL DEFAULT 0,
    CHECK (course_id <> prereq_course_id)
);
CREATE INDEX IF NOT EXISTS idx_prerequisite_rules_course ON prerequisite_rules(course_id);
`
