package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/loes-hub/outcome-engine/internal/domain/outcome"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CURRICULUM REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// CurriculumRepository implements outcome.Repository and
// outcome.MappingRepository for PostgreSQL.
type CurriculumRepository struct {
	conn *Connection
}

// NewCurriculumRepository creates a new CurriculumRepository.
func NewCurriculumRepository(conn *Connection) *CurriculumRepository {
	return &CurriculumRepository{conn: conn}
}

var (
	_ outcome.Repository        = (*CurriculumRepository)(nil)
	_ outcome.MappingRepository = (*CurriculumRepository)(nil)
)

// ─────────────────────────────────────────────────────────────────────────────
// Programs and Courses
// ─────────────────────────────────────────────────────────────────────────────

// GetProgram returns a program by ID.
func (r *CurriculumRepository) GetProgram(ctx context.Context, id shared.ID) (*outcome.Program, error) {
	var p outcome.Program
	err := r.conn.QueryRow(ctx, `
		SELECT id, code, name, expected_threshold FROM programs WHERE id = $1
	`, id).Scan(&p.ID, &p.Code, &p.Name, &p.ExpectedThreshold)
	if IsNoRows(err) {
		return nil, shared.ErrProgramNotFound
	}
	if err != nil {
		return nil, wrapErr("get program", err)
	}
	return &p, nil
}

// ListPrograms returns every program ordered by ID.
func (r *CurriculumRepository) ListPrograms(ctx context.Context) ([]*outcome.Program, error) {
	rows, err := r.conn.Query(ctx, `SELECT id, code, name, expected_threshold FROM programs ORDER BY id`)
	if err != nil {
		return nil, wrapErr("list programs", err)
	}
	defer rows.Close()

	var out []*outcome.Program
	for rows.Next() {
		var p outcome.Program
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.ExpectedThreshold); err != nil {
			return nil, fmt.Errorf("failed to scan program: %w", err)
		}
		out = append(out, &p)
	}
	return out, wrapErr("list programs", rows.Err())
}

const courseColumns = `id, program_id, code, title, credits, version_year`

func scanCourse(row pgx.Row) (*outcome.Course, error) {
	var c outcome.Course
	if err := row.Scan(&c.ID, &c.ProgramID, &c.Code, &c.Title, &c.Credits, &c.VersionYear); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCourse returns a course by ID.
func (r *CurriculumRepository) GetCourse(ctx context.Context, id shared.ID) (*outcome.Course, error) {
	c, err := scanCourse(r.conn.QueryRow(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id))
	if IsNoRows(err) {
		return nil, shared.ErrCourseNotFound
	}
	if err != nil {
		return nil, wrapErr("get course", err)
	}
	return c, nil
}

// ListCourses returns the courses of a program ordered by ID.
func (r *CurriculumRepository) ListCourses(ctx context.Context, programID shared.ID) ([]*outcome.Course, error) {
	return r.queryCourses(ctx, "list courses",
		`SELECT `+courseColumns+` FROM courses WHERE program_id = $1 ORDER BY id`, programID)
}

// ListCoursesWithOutcomes returns every course with at least one outcome.
func (r *CurriculumRepository) ListCoursesWithOutcomes(ctx context.Context) ([]*outcome.Course, error) {
	return r.queryCourses(ctx, "list courses with outcomes", `
		SELECT `+courseColumns+` FROM courses c
		WHERE EXISTS (SELECT 1 FROM outcomes o WHERE o.course_id = c.id)
		ORDER BY id
	`)
}

func (r *CurriculumRepository) queryCourses(ctx context.Context, op, sql string, args ...any) ([]*outcome.Course, error) {
	rows, err := r.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	out := make([]*outcome.Course, 0)
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan course: %w", err)
		}
		out = append(out, c)
	}
	return out, wrapErr(op, rows.Err())
}

// ─────────────────────────────────────────────────────────────────────────────
// Outcomes
// ─────────────────────────────────────────────────────────────────────────────

const outcomeColumns = `id, course_id, code, verb, text, bloom_level, threshold`

func scanOutcome(row pgx.Row) (*outcome.Outcome, error) {
	var (
		p         outcome.NewOutcomeParams
		threshold float64
	)
	if err := row.Scan(&p.ID, &p.CourseID, &p.Code, &p.Verb, &p.Text, &p.LevelLabel, &threshold); err != nil {
		return nil, err
	}
	p.Threshold = &threshold
	return outcome.NewOutcome(p)
}

// GetOutcome returns a course outcome by ID.
func (r *CurriculumRepository) GetOutcome(ctx context.Context, id shared.ID) (*outcome.Outcome, error) {
	o, err := scanOutcome(r.conn.QueryRow(ctx, `SELECT `+outcomeColumns+` FROM outcomes WHERE id = $1`, id))
	if IsNoRows(err) {
		return nil, shared.ErrOutcomeNotFound
	}
	if err != nil {
		return nil, wrapErr("get outcome", err)
	}
	return o, nil
}

// ListOutcomes returns the outcomes of a course ordered by ID.
func (r *CurriculumRepository) ListOutcomes(ctx context.Context, courseID shared.ID) ([]*outcome.Outcome, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+outcomeColumns+` FROM outcomes WHERE course_id = $1 ORDER BY id`, courseID)
	if err != nil {
		return nil, wrapErr("list outcomes", err)
	}
	defer rows.Close()

	out := make([]*outcome.Outcome, 0)
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		out = append(out, o)
	}
	return out, wrapErr("list outcomes", rows.Err())
}

// GetProgramOutcome returns a PLO by ID.
func (r *CurriculumRepository) GetProgramOutcome(ctx context.Context, id shared.ID) (*outcome.ProgramOutcome, error) {
	var p outcome.ProgramOutcome
	err := r.conn.QueryRow(ctx, `
		SELECT id, program_id, code, description FROM program_outcomes WHERE id = $1
	`, id).Scan(&p.ID, &p.ProgramID, &p.Code, &p.Description)
	if IsNoRows(err) {
		return nil, shared.ErrProgramOutcomeNotFound
	}
	if err != nil {
		return nil, wrapErr("get program outcome", err)
	}
	return &p, nil
}

// ListProgramOutcomes returns the PLOs of a program ordered by ID.
func (r *CurriculumRepository) ListProgramOutcomes(ctx context.Context, programID shared.ID) ([]*outcome.ProgramOutcome, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, program_id, code, description FROM program_outcomes
		WHERE program_id = $1 ORDER BY id
	`, programID)
	if err != nil {
		return nil, wrapErr("list program outcomes", err)
	}
	defer rows.Close()

	out := make([]*outcome.ProgramOutcome, 0)
	for rows.Next() {
		var p outcome.ProgramOutcome
		if err := rows.Scan(&p.ID, &p.ProgramID, &p.Code, &p.Description); err != nil {
			return nil, fmt.Errorf("failed to scan program outcome: %w", err)
		}
		out = append(out, &p)
	}
	return out, wrapErr("list program outcomes", rows.Err())
}

// ─────────────────────────────────────────────────────────────────────────────
// Mappings
// ─────────────────────────────────────────────────────────────────────────────

// ListByProgramOutcome returns the mappings into a PLO ordered by outcome ID.
func (r *CurriculumRepository) ListByProgramOutcome(ctx context.Context, programOutcomeID shared.ID) ([]*outcome.Mapping, error) {
	return r.queryMappings(ctx, "list mappings by program outcome", `
		SELECT outcome_id, program_outcome_id, tier, source, score, updated_at
		FROM outcome_mappings
		WHERE program_outcome_id = $1
		ORDER BY outcome_id
	`, programOutcomeID)
}

// ListByCourse returns the mappings of every outcome of a course.
func (r *CurriculumRepository) ListByCourse(ctx context.Context, courseID shared.ID) ([]*outcome.Mapping, error) {
	return r.queryMappings(ctx, "list mappings by course", `
		SELECT m.outcome_id, m.program_outcome_id, m.tier, m.source, m.score, m.updated_at
		FROM outcome_mappings m
		JOIN outcomes o ON o.id = m.outcome_id
		WHERE o.course_id = $1
		ORDER BY m.outcome_id, m.program_outcome_id
	`, courseID)
}

func (r *CurriculumRepository) queryMappings(ctx context.Context, op, sql string, args ...any) ([]*outcome.Mapping, error) {
	rows, err := r.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	out := make([]*outcome.Mapping, 0)
	for rows.Next() {
		var (
			m            outcome.Mapping
			tier, source string
		)
		if err := rows.Scan(&m.OutcomeID, &m.ProgramOutcomeID, &tier, &source, &m.Score, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		m.Tier = outcome.ContributionTier(tier)
		m.Source = outcome.MappingSource(source)
		out = append(out, &m)
	}
	return out, wrapErr(op, rows.Err())
}

// Upsert inserts or replaces the mapping for (outcome, program outcome).
func (r *CurriculumRepository) Upsert(ctx context.Context, m *outcome.Mapping) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now().UTC()
	}

	_, err := r.conn.Exec(ctx, `
		INSERT INTO outcome_mappings (outcome_id, program_outcome_id, tier, source, score, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (outcome_id, program_outcome_id) DO UPDATE SET
			tier = EXCLUDED.tier,
			source = EXCLUDED.source,
			score = EXCLUDED.score,
			updated_at = EXCLUDED.updated_at
	`, m.OutcomeID, m.ProgramOutcomeID, string(m.Tier), string(m.Source), m.Score, m.UpdatedAt)
	if IsForeignKeyViolation(err) {
		return shared.WrapError("postgres", "Upsert", shared.ErrNotFound, "outcome or program outcome does not exist", err)
	}
	return wrapErr("upsert mapping", err)
}

// Delete removes a mapping. Returns ErrMappingNotFound if there is none.
func (r *CurriculumRepository) Delete(ctx context.Context, outcomeID, programOutcomeID shared.ID) error {
	tag, err := r.conn.Exec(ctx, `
		DELETE FROM outcome_mappings WHERE outcome_id = $1 AND program_outcome_id = $2
	`, outcomeID, programOutcomeID)
	if err != nil {
		return wrapErr("delete mapping", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrMappingNotFound
	}
	return nil
}
