package sqlite

import (
	"context"
	"database/sql"

	"github.com/loes-hub/outcome-engine/internal/domain/assessment"
	"github.com/loes-hub/outcome-engine/internal/domain/outcome"
	"github.com/loes-hub/outcome-engine/internal/infrastructure/persistence/memory"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEEDING (memory.Seeder)
// ══════════════════════════════════════════════════════════════════════════════

var _ memory.Seeder = (*Store)(nil)

// Seed rows keep their IDs and overwrite an existing row with the same key,
// so applying a fixture twice is harmless.

func (s *Store) SeedProgram(ctx context.Context, p outcome.Program) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO programs (id, code, name, expected_threshold) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			expected_threshold = excluded.expected_threshold
	`, p.ID, p.Code, p.Name, p.ExpectedThreshold)
	return wrapErr("seed program", err)
}

func (s *Store) SeedCourse(ctx context.Context, c outcome.Course) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO courses (id, program_id, code, title, credits, version_year) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			program_id = excluded.program_id,
			code = excluded.code,
			title = excluded.title,
			credits = excluded.credits,
			version_year = excluded.version_year
	`, c.ID, c.ProgramID, c.Code, c.Title, c.Credits, c.VersionYear)
	return wrapErr("seed course", err)
}

func (s *Store) SeedOutcome(ctx context.Context, o outcome.Outcome) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outcomes (id, course_id, code, verb, text, bloom_level, threshold) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			course_id = excluded.course_id,
			code = excluded.code,
			verb = excluded.verb,
			text = excluded.text,
			bloom_level = excluded.bloom_level,
			threshold = excluded.threshold
	`, o.ID, o.CourseID, o.Code, o.Verb, o.Text, o.LevelLabel, o.Threshold)
	return wrapErr("seed outcome", err)
}

func (s *Store) SeedProgramOutcome(ctx context.Context, p outcome.ProgramOutcome) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO program_outcomes (id, program_id, code, description) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			program_id = excluded.program_id,
			code = excluded.code,
			description = excluded.description
	`, p.ID, p.ProgramID, p.Code, p.Description)
	return wrapErr("seed program outcome", err)
}

func (s *Store) SeedAssessment(ctx context.Context, a assessment.Assessment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assessments (id, course_id, code, title, weight) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			course_id = excluded.course_id,
			code = excluded.code,
			title = excluded.title,
			weight = excluded.weight
	`, a.ID, a.CourseID, a.Code, a.Title, a.Weight)
	return wrapErr("seed assessment", err)
}

// SeedQuestion writes the question and replaces its outcome tags.
func (s *Store) SeedQuestion(ctx context.Context, q assessment.Question) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO questions (id, assessment_id, text, max_score) VALUES (?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				assessment_id = excluded.assessment_id,
				text = excluded.text,
				max_score = excluded.max_score
		`, q.ID, q.AssessmentID, q.Text, q.MaxScore)
		if err != nil {
			return wrapErr("seed question", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM question_outcomes WHERE question_id = ?`, q.ID); err != nil {
			return wrapErr("clear question tags", err)
		}
		for _, oid := range q.OutcomeIDs {
			_, err := tx.ExecContext(ctx, `
				INSERT OR IGNORE INTO question_outcomes (question_id, outcome_id) VALUES (?, ?)
			`, q.ID, oid)
			if err != nil {
				return wrapErr("tag question", err)
			}
		}
		return nil
	})
}

func (s *Store) SeedStudent(ctx context.Context, st assessment.Student) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO students (id, student_number, name, cohort) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			student_number = excluded.student_number,
			name = excluded.name,
			cohort = excluded.cohort
	`, st.ID, st.StudentNumber, st.Name, st.Cohort.String())
	return wrapErr("seed student", err)
}

func (s *Store) SeedScore(ctx context.Context, sc assessment.Score) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO student_scores (student_id, question_id, score) VALUES (?, ?, ?)
		ON CONFLICT (student_id, question_id) DO UPDATE SET
			score = excluded.score
	`, sc.StudentID, sc.QuestionID, sc.Value)
	return wrapErr("seed score", err)
}
