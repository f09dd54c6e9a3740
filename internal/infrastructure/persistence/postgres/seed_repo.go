package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/loes-hub/outcome-engine/internal/domain/assessment"
	"github.com/loes-hub/outcome-engine/internal/domain/outcome"
	"github.com/loes-hub/outcome-engine/internal/domain/prerequisite"
	"github.com/loes-hub/outcome-engine/internal/infrastructure/persistence/memory"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEED REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// SeedRepository loads fixtures into PostgreSQL keeping their IDs.
// Call SyncSequences once seeding is finished so BIGSERIAL columns continue
// after the highest seeded ID.
type SeedRepository struct {
	*CurriculumRepository
	conn *Connection
}

// NewSeedRepository creates a new SeedRepository.
func NewSeedRepository(conn *Connection) *SeedRepository {
	return &SeedRepository{CurriculumRepository: NewCurriculumRepository(conn), conn: conn}
}

var _ memory.Seeder = (*SeedRepository)(nil)

func (r *SeedRepository) exec(ctx context.Context, op, sql string, args ...any) error {
	_, err := r.conn.Exec(ctx, sql, args...)
	return wrapErr(op, err)
}

func (r *SeedRepository) SeedProgram(ctx context.Context, p outcome.Program) error {
	return r.exec(ctx, "seed program", `
		INSERT INTO programs (id, code, name, expected_threshold) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			name = EXCLUDED.name,
			expected_threshold = EXCLUDED.expected_threshold
	`, p.ID.Int64(), p.Code, p.Name, p.ExpectedThreshold)
}

func (r *SeedRepository) SeedCourse(ctx context.Context, c outcome.Course) error {
	return r.exec(ctx, "seed course", `
		INSERT INTO courses (id, program_id, code, title, credits, version_year) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			program_id = EXCLUDED.program_id,
			code = EXCLUDED.code,
			title = EXCLUDED.title,
			credits = EXCLUDED.credits,
			version_year = EXCLUDED.version_year
	`, c.ID.Int64(), c.ProgramID.Int64(), c.Code, c.Title, c.Credits, c.VersionYear)
}

func (r *SeedRepository) SeedOutcome(ctx context.Context, o outcome.Outcome) error {
	return r.exec(ctx, "seed outcome", `
		INSERT INTO outcomes (id, course_id, code, verb, text, bloom_level, threshold) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			course_id = EXCLUDED.course_id,
			code = EXCLUDED.code,
			verb = EXCLUDED.verb,
			text = EXCLUDED.text,
			bloom_level = EXCLUDED.bloom_level,
			threshold = EXCLUDED.threshold
	`, o.ID.Int64(), o.CourseID.Int64(), o.Code, o.Verb, o.Text, o.LevelLabel, o.Threshold)
}

func (r *SeedRepository) SeedProgramOutcome(ctx context.Context, p outcome.ProgramOutcome) error {
	return r.exec(ctx, "seed program outcome", `
		INSERT INTO program_outcomes (id, program_id, code, description) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			program_id = EXCLUDED.program_id,
			code = EXCLUDED.code,
			description = EXCLUDED.description
	`, p.ID.Int64(), p.ProgramID.Int64(), p.Code, p.Description)
}

func (r *SeedRepository) SeedAssessment(ctx context.Context, a assessment.Assessment) error {
	return r.exec(ctx, "seed assessment", `
		INSERT INTO assessments (id, course_id, code, title, weight) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			course_id = EXCLUDED.course_id,
			code = EXCLUDED.code,
			title = EXCLUDED.title,
			weight = EXCLUDED.weight
	`, a.ID.Int64(), a.CourseID.Int64(), a.Code, a.Title, a.Weight)
}

// SeedQuestion writes the question and replaces its outcome tags in one transaction.
func (r *SeedRepository) SeedQuestion(ctx context.Context, q assessment.Question) error {
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO questions (id, assessment_id, text, max_score) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				assessment_id = EXCLUDED.assessment_id,
				text = EXCLUDED.text,
				max_score = EXCLUDED.max_score
		`, q.ID.Int64(), q.AssessmentID.Int64(), q.Text, q.MaxScore); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM question_outcomes WHERE question_id = $1`, q.ID.Int64()); err != nil {
			return err
		}
		if len(q.OutcomeIDs) == 0 {
			return nil
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO question_outcomes (question_id, outcome_id)
			SELECT $1, unnest($2::bigint[])
			ON CONFLICT DO NOTHING
		`, q.ID.Int64(), toInt64s(q.OutcomeIDs))
		return err
	})
	return wrapErr("seed question", err)
}

func (r *SeedRepository) SeedStudent(ctx context.Context, st assessment.Student) error {
	return r.exec(ctx, "seed student", `
		INSERT INTO students (id, student_number, name, cohort) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			student_number = EXCLUDED.student_number,
			name = EXCLUDED.name,
			cohort = EXCLUDED.cohort
	`, st.ID.Int64(), st.StudentNumber, st.Name, st.Cohort.String())
}

func (r *SeedRepository) SeedScore(ctx context.Context, sc assessment.Score) error {
	return r.exec(ctx, "seed score", `
		INSERT INTO student_scores (student_id, question_id, score) VALUES ($1, $2, $3)
		ON CONFLICT (student_id, question_id) DO UPDATE SET score = EXCLUDED.score
	`, sc.StudentID.Int64(), sc.QuestionID.Int64(), sc.Value)
}

// SeedRule upserts a rule by its fixture ID.
func (r *SeedRepository) SeedRule(ctx context.Context, rule *prerequisite.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if !rule.ID.IsValid() {
		return NewRuleRepository(r.conn).SaveRule(ctx, rule)
	}
	kind, payload, err := prerequisite.EncodeCondition(rule.Condition)
	if err != nil {
		return fmt.Errorf("encode condition: %w", err)
	}
	return r.exec(ctx, "seed rule", `
		INSERT INTO prerequisite_rules (id, course_id, prereq_course_id, type, condition_type, condition_payload, effective_year)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			course_id = EXCLUDED.course_id,
			prereq_course_id = EXCLUDED.prereq_course_id,
			type = EXCLUDED.type,
			condition_type = EXCLUDED.condition_type,
			condition_payload = EXCLUDED.condition_payload,
			effective_year = EXCLUDED.effective_year
	`, rule.ID.Int64(), rule.CourseID.Int64(), rule.PrereqCourseID.Int64(), string(rule.Type), kind, payload, rule.EffectiveYear)
}

var sequencedTables = []string{"programs", "courses", "outcomes", "program_outcomes", "assessments", "questions", "students", "prerequisite_rules"}

// SyncSequences moves every id sequence past the highest stored ID.
func (r *SeedRepository) SyncSequences(ctx context.Context) error {
	for _, table := range sequencedTables {
		sql := fmt.Sprintf(`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), COALESCE((SELECT MAX(id) FROM %[1]s), 0) + 1, false)`, table)
		if err := r.exec(ctx, "sync sequence "+table, sql); err != nil {
			return err
		}
	}
	return nil
}
