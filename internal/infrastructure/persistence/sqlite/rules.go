package sqlite

import (
	"context"
	"errors"

	"github.com/mattn/go-sqlite3"

	"github.com/loes-hub/outcome-engine/internal/domain/prerequisite"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RULES (prerequisite.Repository)
// ══════════════════════════════════════════════════════════════════════════════

const ruleColumns = `id, course_id, prereq_course_id, type, condition_type, condition_payload, effective_year`

func scanRule(row scanner) (*prerequisite.Rule, error) {
	var (
		rule     prerequisite.Rule
		ruleType string
		kind     string
		payload  string
	)
	if err := row.Scan(&rule.ID, &rule.CourseID, &rule.PrereqCourseID, &ruleType, &kind, &payload, &rule.EffectiveYear); err != nil {
		return nil, err
	}
	rule.Type = prerequisite.Type(ruleType)

	cond, err := prerequisite.DecodeCondition(kind, []byte(payload))
	if err != nil && !errors.Is(err, shared.ErrInvalidPayloadJSON) {
		return nil, err
	}
	rule.Condition = cond
	return &rule, nil
}

func (s *Store) GetRule(ctx context.Context, id shared.ID) (*prerequisite.Rule, error) {
	rule, err := scanRule(s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM prerequisite_rules WHERE id = ?`, id))
	if err != nil {
		return nil, wrapNotFound("get rule", err, shared.ErrRuleNotFound)
	}
	return rule, nil
}

func (s *Store) ListRules(ctx context.Context, courseID shared.ID) ([]*prerequisite.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM prerequisite_rules WHERE course_id = ? ORDER BY id`, courseID)
	if err != nil {
		return nil, wrapErr("list rules", err)
	}
	defer rows.Close()

	out := make([]*prerequisite.Rule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, wrapErr("scan rule", err)
		}
		out = append(out, rule)
	}
	return out, wrapErr("list rules", rows.Err())
}

// SaveRule inserts a rule when its ID is zero and upserts it by ID otherwise.
func (s *Store) SaveRule(ctx context.Context, rule *prerequisite.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	kind, payload, err := prerequisite.EncodeCondition(rule.Condition)
	if err != nil {
		return wrapErr("encode condition", err)
	}

	if !rule.ID.IsValid() {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO prerequisite_rules (course_id, prereq_course_id, type, condition_type, condition_payload, effective_year)
			VALUES (?, ?, ?, ?, ?, ?)
		`, rule.CourseID, rule.PrereqCourseID, string(rule.Type), kind, string(payload), rule.EffectiveYear)
		if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
			return shared.ErrCourseNotFound
		}
		if err != nil {
			return wrapErr("insert rule", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return wrapErr("insert rule", err)
		}
		rule.ID = shared.ID(id)
		return nil
	}

	// An explicit ID that does not exist yet is inserted as-is so fixtures
	// keep their IDs.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO prerequisite_rules (id, course_id, prereq_course_id, type, condition_type, condition_payload, effective_year)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			course_id = excluded.course_id,
			prereq_course_id = excluded.prereq_course_id,
			type = excluded.type,
			condition_type = excluded.condition_type,
			condition_payload = excluded.condition_payload,
			effective_year = excluded.effective_year
	`, rule.ID, rule.CourseID, rule.PrereqCourseID, string(rule.Type), kind, string(payload), rule.EffectiveYear)
	if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
		return shared.ErrCourseNotFound
	}
	return wrapErr("save rule", err)
}
