package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/loes-hub/outcome-engine/internal/domain/prerequisite"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RULE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// RuleRepository implements prerequisite.Repository for PostgreSQL.
type RuleRepository struct {
	conn *Connection
}

// NewRuleRepository creates a new RuleRepository.
func NewRuleRepository(conn *Connection) *RuleRepository {
	return &RuleRepository{conn: conn}
}

var _ prerequisite.Repository = (*RuleRepository)(nil)

const ruleColumns = `id, course_id, prereq_course_id, type, condition_type, condition_payload, effective_year`

// scanRule decodes a stored rule. A malformed payload keeps the condition
// kind with default parameters rather than failing the read.
func scanRule(row pgx.Row) (*prerequisite.Rule, error) {
	var (
		rule     prerequisite.Rule
		ruleType string
		kind     string
		payload  []byte
	)
	if err := row.Scan(&rule.ID, &rule.CourseID, &rule.PrereqCourseID, &ruleType, &kind, &payload, &rule.EffectiveYear); err != nil {
		return nil, err
	}
	rule.Type = prerequisite.Type(ruleType)

	cond, err := prerequisite.DecodeCondition(kind, payload)
	if err != nil && !errors.Is(err, shared.ErrInvalidPayloadJSON) {
		return nil, err
	}
	rule.Condition = cond
	return &rule, nil
}

// GetRule returns a rule by ID.
func (r *RuleRepository) GetRule(ctx context.Context, id shared.ID) (*prerequisite.Rule, error) {
	rule, err := scanRule(r.conn.QueryRow(ctx, `SELECT `+ruleColumns+` FROM prerequisite_rules WHERE id = $1`, id.Int64()))
	if IsNoRows(err) {
		return nil, shared.ErrRuleNotFound
	}
	if err != nil {
		return nil, wrapErr("get rule", err)
	}
	return rule, nil
}

// ListRules returns the rules of a course ordered by ID.
func (r *RuleRepository) ListRules(ctx context.Context, courseID shared.ID) ([]*prerequisite.Rule, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+ruleColumns+` FROM prerequisite_rules WHERE course_id = $1 ORDER BY id
	`, courseID.Int64())
	if err != nil {
		return nil, wrapErr("list rules", err)
	}
	defer rows.Close()

	out := make([]*prerequisite.Rule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		out = append(out, rule)
	}
	return out, wrapErr("list rules", rows.Err())
}

// SaveRule inserts a rule when its ID is zero and updates it otherwise.
func (r *RuleRepository) SaveRule(ctx context.Context, rule *prerequisite.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	kind, payload, err := prerequisite.EncodeCondition(rule.Condition)
	if err != nil {
		return fmt.Errorf("encode condition: %w", err)
	}

	if !rule.ID.IsValid() {
		var id int64
		err := r.conn.QueryRow(ctx, `
			INSERT INTO prerequisite_rules (course_id, prereq_course_id, type, condition_type, condition_payload, effective_year)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, rule.CourseID.Int64(), rule.PrereqCourseID.Int64(), string(rule.Type), kind, payload, rule.EffectiveYear).Scan(&id)
		if IsForeignKeyViolation(err) {
			return shared.ErrCourseNotFound
		}
		if err != nil {
			return wrapErr("insert rule", err)
		}
		rule.ID = shared.ID(id)
		return nil
	}

	tag, err := r.conn.Exec(ctx, `
		UPDATE prerequisite_rules SET
			course_id = $1,
			prereq_course_id = $2,
			type = $3,
			condition_type = $4,
			condition_payload = $5,
			effective_year = $6
		WHERE id = $7
	`, rule.CourseID.Int64(), rule.PrereqCourseID.Int64(), string(rule.Type), kind, payload, rule.EffectiveYear, rule.ID.Int64())
	if IsForeignKeyViolation(err) {
		return shared.ErrCourseNotFound
	}
	if err != nil {
		return wrapErr("update rule", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrRuleNotFound
	}
	return nil
}
