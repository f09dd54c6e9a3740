package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/loes-hub/outcome-engine/internal/domain/outcome"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CURRICULUM (outcome.Repository)
// ══════════════════════════════════════════════════════════════════════════════

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) GetProgram(ctx context.Context, id shared.ID) (*outcome.Program, error) {
	var p outcome.Program
	err := s.db.QueryRowContext(ctx, `SELECT id, code, name, expected_threshold FROM programs WHERE id = ?`, id).
		Scan(&p.ID, &p.Code, &p.Name, &p.ExpectedThreshold)
	if err != nil {
		return nil, wrapNotFound("get program", err, shared.ErrProgramNotFound)
	}
	return &p, nil
}

func (s *Store) ListPrograms(ctx context.Context) ([]*outcome.Program, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, code, name, expected_threshold FROM programs ORDER BY id`)
	if err != nil {
		return nil, wrapErr("list programs", err)
	}
	defer rows.Close()

	out := make([]*outcome.Program, 0)
	for rows.Next() {
		var p outcome.Program
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.ExpectedThreshold); err != nil {
			return nil, wrapErr("scan program", err)
		}
		out = append(out, &p)
	}
	return out, wrapErr("list programs", rows.Err())
}

const courseColumns = `id, program_id, code, title, credits, version_year`

func scanCourse(row scanner) (*outcome.Course, error) {
	var c outcome.Course
	if err := row.Scan(&c.ID, &c.ProgramID, &c.Code, &c.Title, &c.Credits, &c.VersionYear); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) GetCourse(ctx context.Context, id shared.ID) (*outcome.Course, error) {
	c, err := scanCourse(s.db.QueryRowContext(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = ?`, id))
	if err != nil {
		return nil, wrapNotFound("get course", err, shared.ErrCourseNotFound)
	}
	return c, nil
}

func (s *Store) ListCourses(ctx context.Context, programID shared.ID) ([]*outcome.Course, error) {
	return s.queryCourses(ctx, "list courses", `SELECT `+courseColumns+` FROM courses WHERE program_id = ? ORDER BY id`, programID)
}

func (s *Store) ListCoursesWithOutcomes(ctx context.Context) ([]*outcome.Course, error) {
	return s.queryCourses(ctx, "list courses with outcomes", `
		SELECT `+courseColumns+` FROM courses c
		WHERE EXISTS (SELECT 1 FROM outcomes o WHERE o.course_id = c.id)
		ORDER BY id
	`)
}

func (s *Store) queryCourses(ctx context.Context, op, query string, args ...any) ([]*outcome.Course, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	out := make([]*outcome.Course, 0)
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, wrapErr("scan course", err)
		}
		out = append(out, c)
	}
	return out, wrapErr(op, rows.Err())
}

const outcomeColumns = `id, course_id, code, verb, text, bloom_level, threshold`

func scanOutcome(row scanner) (*outcome.Outcome, error) {
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

func (s *Store) GetOutcome(ctx context.Context, id shared.ID) (*outcome.Outcome, error) {
	o, err := scanOutcome(s.db.QueryRowContext(ctx, `SELECT `+outcomeColumns+` FROM outcomes WHERE id = ?`, id))
	if err != nil {
		return nil, wrapNotFound("get outcome", err, shared.ErrOutcomeNotFound)
	}
	return o, nil
}

func (s *Store) ListOutcomes(ctx context.Context, courseID shared.ID) ([]*outcome.Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+outcomeColumns+` FROM outcomes WHERE course_id = ? ORDER BY id`, courseID)
	if err != nil {
		return nil, wrapErr("list outcomes", err)
	}
	defer rows.Close()

	out := make([]*outcome.Outcome, 0)
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, wrapErr("scan outcome", err)
		}
		out = append(out, o)
	}
	return out, wrapErr("list outcomes", rows.Err())
}

func (s *Store) GetProgramOutcome(ctx context.Context, id shared.ID) (*outcome.ProgramOutcome, error) {
	var p outcome.ProgramOutcome
	err := s.db.QueryRowContext(ctx, `SELECT id, program_id, code, description FROM program_outcomes WHERE id = ?`, id).
		Scan(&p.ID, &p.ProgramID, &p.Code, &p.Description)
	if err != nil {
		return nil, wrapNotFound("get program outcome", err, shared.ErrProgramOutcomeNotFound)
	}
	return &p, nil
}

func (s *Store) ListProgramOutcomes(ctx context.Context, programID shared.ID) ([]*outcome.ProgramOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, program_id, code, description FROM program_outcomes WHERE program_id = ? ORDER BY id
	`, programID)
	if err != nil {
		return nil, wrapErr("list program outcomes", err)
	}
	defer rows.Close()

	out := make([]*outcome.ProgramOutcome, 0)
	for rows.Next() {
		var p outcome.ProgramOutcome
		if err := rows.Scan(&p.ID, &p.ProgramID, &p.Code, &p.Description); err != nil {
			return nil, wrapErr("scan program outcome", err)
		}
		out = append(out, &p)
	}
	return out, wrapErr("list program outcomes", rows.Err())
}

// ══════════════════════════════════════════════════════════════════════════════
// MAPPINGS (outcome.MappingRepository)
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) ListByProgramOutcome(ctx context.Context, programOutcomeID shared.ID) ([]*outcome.Mapping, error) {
	return s.queryMappings(ctx, "list mappings by program outcome", `
		SELECT outcome_id, program_outcome_id, tier, source, score, updated_at
		FROM outcome_mappings WHERE program_outcome_id = ?
		ORDER BY outcome_id
	`, programOutcomeID)
}

func (s *Store) ListByCourse(ctx context.Context, courseID shared.ID) ([]*outcome.Mapping, error) {
	return s.queryMappings(ctx, "list mappings by course", `
		SELECT m.outcome_id, m.program_outcome_id, m.tier, m.source, m.score, m.updated_at
		FROM outcome_mappings m JOIN outcomes o ON o.id = m.outcome_id
		WHERE o.course_id = ?
		ORDER BY m.outcome_id, m.program_outcome_id
	`, courseID)
}

func (s *Store) queryMappings(ctx context.Context, op, query string, args ...any) ([]*outcome.Mapping, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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
			return nil, wrapErr("scan mapping", err)
		}
		m.Tier = outcome.ContributionTier(tier)
		m.Source = outcome.MappingSource(source)
		out = append(out, &m)
	}
	return out, wrapErr(op, rows.Err())
}

func (s *Store) Upsert(ctx context.Context, m *outcome.Mapping) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outcome_mappings (outcome_id, program_outcome_id, tier, source, score, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (outcome_id, program_outcome_id) DO UPDATE SET
			tier = excluded.tier,
			source = excluded.source,
			score = excluded.score,
			updated_at = excluded.updated_at
	`, m.OutcomeID, m.ProgramOutcomeID, string(m.Tier), string(m.Source), m.Score, m.UpdatedAt)
	if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
		return shared.WrapError("sqlite", "Upsert", shared.ErrNotFound, "outcome or program outcome does not exist", err)
	}
	return wrapErr("upsert mapping", err)
}

func (s *Store) Delete(ctx context.Context, outcomeID, programOutcomeID shared.ID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM outcome_mappings WHERE outcome_id = ? AND program_outcome_id = ?`, outcomeID, programOutcomeID)
	if err != nil {
		return wrapErr("delete mapping", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("delete mapping", err)
	}
	if n == 0 {
		return shared.ErrMappingNotFound
	}
	return nil
}

// wrapNotFound maps sql.ErrNoRows to kind and annotates anything else.
func wrapNotFound(op string, err, kind error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return kind
	}
	return wrapErr(op, err)
}
