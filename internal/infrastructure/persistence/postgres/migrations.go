package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CURRICULUM
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS programs (
    id BIGSERIAL PRIMARY KEY,
    code VARCHAR(30) NOT NULL UNIQUE,
    name TEXT NOT NULL,
    expected_threshold DOUBLE PRECISION NOT NULL DEFAULT 0.7,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_expected_threshold CHECK (expected_threshold >= 0 AND expected_threshold <= 1)
);

CREATE TABLE IF NOT EXISTS courses (
    id BIGSERIAL PRIMARY KEY,
    program_id BIGINT NOT NULL REFERENCES programs(id) ON DELETE CASCADE,
    code VARCHAR(30) NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    credits INTEGER NOT NULL DEFAULT 0,
    version_year INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_credits CHECK (credits >= 0)
);

CREATE INDEX IF NOT EXISTS idx_courses_program ON courses(program_id);

-- Course learning outcomes (CLO). bloom_level keeps the label as entered;
-- unrecognized labels are flagged when read, never rejected.
CREATE TABLE IF NOT EXISTS outcomes (
    id BIGSERIAL PRIMARY KEY,
    course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    code VARCHAR(30) NOT NULL,
    verb TEXT NOT NULL DEFAULT '',
    text TEXT NOT NULL DEFAULT '',
    bloom_level VARCHAR(30) NOT NULL DEFAULT '',
    threshold DOUBLE PRECISION NOT NULL DEFAULT 0.7,

    CONSTRAINT valid_threshold CHECK (threshold >= 0 AND threshold <= 1)
);

CREATE INDEX IF NOT EXISTS idx_outcomes_course ON outcomes(course_id);

-- Program learning outcomes (PLO).
CREATE TABLE IF NOT EXISTS program_outcomes (
    id BIGSERIAL PRIMARY KEY,
    program_id BIGINT NOT NULL REFERENCES programs(id) ON DELETE CASCADE,
    code VARCHAR(30) NOT NULL,
    description TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_program_outcomes_program ON program_outcomes(program_id);

-- At most one mapping per (CLO, PLO).
CREATE TABLE IF NOT EXISTS outcome_mappings (
    outcome_id BIGINT NOT NULL REFERENCES outcomes(id) ON DELETE CASCADE,
    program_outcome_id BIGINT NOT NULL REFERENCES program_outcomes(id) ON DELETE CASCADE,
    tier VARCHAR(1) NOT NULL,
    source VARCHAR(20) NOT NULL DEFAULT 'manual',
    score DOUBLE PRECISION NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (outcome_id, program_outcome_id),
    CONSTRAINT valid_tier CHECK (tier IN ('M', 'N', 'L', '-')),
    CONSTRAINT valid_source CHECK (source IN ('manual', 'imported', 'inferred'))
);

CREATE INDEX IF NOT EXISTS idx_outcome_mappings_plo ON outcome_mappings(program_outcome_id);
`

const migration001Down = `
DROP TABLE IF EXISTS outcome_mappings;
DROP TABLE IF EXISTS program_outcomes;
DROP TABLE IF EXISTS outcomes;
DROP TABLE IF EXISTS courses;
DROP TABLE IF EXISTS programs;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: GRADED WORK
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS assessments (
    id BIGSERIAL PRIMARY KEY,
    course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    code VARCHAR(30) NOT NULL DEFAULT '',
    title TEXT NOT NULL DEFAULT '',
    weight DOUBLE PRECISION NOT NULL DEFAULT 1.0,

    CONSTRAINT valid_weight CHECK (weight >= 0)
);

CREATE INDEX IF NOT EXISTS idx_assessments_course ON assessments(course_id);

CREATE TABLE IF NOT EXISTS questions (
    id BIGSERIAL PRIMARY KEY,
    assessment_id BIGINT NOT NULL REFERENCES assessments(id) ON DELETE CASCADE,
    text TEXT NOT NULL DEFAULT '',
    max_score DOUBLE PRECISION NOT NULL DEFAULT 0,

    CONSTRAINT valid_max_score CHECK (max_score >= 0)
);

CREATE INDEX IF NOT EXISTS idx_questions_assessment ON questions(assessment_id);

-- Outcome tags of a question. A question may sit in an assessment of another course.
CREATE TABLE IF NOT EXISTS question_outcomes (
    question_id BIGINT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
    outcome_id BIGINT NOT NULL REFERENCES outcomes(id) ON DELETE CASCADE,

    PRIMARY KEY (question_id, outcome_id)
);

CREATE INDEX IF NOT EXISTS idx_question_outcomes_outcome ON question_outcomes(outcome_id);

CREATE TABLE IF NOT EXISTS students (
    id BIGSERIAL PRIMARY KEY,
    student_number VARCHAR(30) NOT NULL UNIQUE,
    name TEXT NOT NULL DEFAULT '',
    cohort VARCHAR(30) NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_students_cohort ON students(cohort);

CREATE TABLE IF NOT EXISTS student_scores (
    student_id BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    question_id BIGINT NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
    score DOUBLE PRECISION NOT NULL,

    PRIMARY KEY (student_id, question_id)
);

CREATE INDEX IF NOT EXISTS idx_student_scores_question ON student_scores(question_id);
`

const migration002Down = `
DROP TABLE IF EXISTS student_scores;
DROP TABLE IF EXISTS students;
DROP TABLE IF EXISTS question_outcomes;
DROP TABLE IF EXISTS questions;
DROP TABLE IF EXISTS assessments;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: RESULTS AND PREREQUISITE RULES
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- One row per (student, outcome); every calculation overwrites it.
CREATE TABLE IF NOT EXISTS achievement_results (
    id UUID PRIMARY KEY,
    student_id BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    outcome_id BIGINT NOT NULL REFERENCES outcomes(id) ON DELETE CASCADE,
    achievement DOUBLE PRECISION NOT NULL,
    achieved BOOLEAN NOT NULL,
    computed_at TIMESTAMP WITH TIME ZONE NOT NULL,
    source VARCHAR(30) NOT NULL,

    CONSTRAINT uq_achievement_results_pair UNIQUE (student_id, outcome_id),
    CONSTRAINT valid_achievement CHECK (achievement >= 0 AND achievement <= 1)
);

CREATE INDEX IF NOT EXISTS idx_achievement_results_outcome ON achievement_results(outcome_id);

CREATE TABLE IF NOT EXISTS prerequisite_rules (
    id BIGSERIAL PRIMARY KEY,
    course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    prereq_course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
    type VARCHAR(20) NOT NULL,
    condition_type VARCHAR(30) NOT NULL DEFAULT 'pass_course',
    condition_payload JSONB NOT NULL DEFAULT '{}'::jsonb,
    effective_year INTEGER NOT NULL DEFAULT 0,

    CONSTRAINT no_self_prerequisite CHECK (course_id <> prereq_course_id),
    CONSTRAINT valid_rule_type CHECK (type IN ('strict', 'coreq', 'recommended'))
);

CREATE INDEX IF NOT EXISTS idx_prerequisite_rules_course ON prerequisite_rules(course_id);
`

const migration003Down = `
DROP TABLE IF EXISTS prerequisite_rules;
DROP TABLE IF EXISTS achievement_results;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration is one versioned schema step.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// GetMigrations returns all embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_curriculum", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_graded_work", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_results_and_rules", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

const migrationsTable = "schema_migrations"

// Migrator applies embedded migrations, recording each in schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// NewMigrator creates a migrator over the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: GetMigrations()}
}

func (m *Migrator) applied(ctx context.Context) (map[int]bool, error) {
	_, err := m.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+migrationsTable+` (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := m.conn.Query(ctx, `SELECT version FROM `+migrationsTable)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		out[v] = true
	}
	return out, rows.Err()
}

// Migrate applies every pending migration, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	done, err := m.applied(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if done[mig.Version] {
			continue
		}
		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO `+migrationsTable+` (version, name) VALUES ($1, $2)`, mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d (%s): %w", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
	}
	return nil
}

// Rollback reverts the most recently applied migration. It is a no-op on
// an empty schema.
func (m *Migrator) Rollback(ctx context.Context) error {
	done, err := m.applied(ctx)
	if err != nil {
		return err
	}

	for i := len(m.migrations) - 1; i >= 0; i-- {
		mig := m.migrations[i]
		if !done[mig.Version] {
			continue
		}
		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `DELETE FROM `+migrationsTable+` WHERE version = $1`, mig.Version)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: rollback %d (%s): %w", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
		return nil
	}
	return nil
}
