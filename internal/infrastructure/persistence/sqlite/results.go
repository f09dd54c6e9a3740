package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/loes-hub/outcome-engine/internal/domain/achievement"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESULTS (achievement.Repository)
// ══════════════════════════════════════════════════════════════════════════════

const upsertResult = `
	INSERT INTO achievement_results (id, student_id, outcome_id, achievement, achieved, computed_at, source)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (student_id, outcome_id) DO UPDATE SET
		id = excluded.id,
		achievement = excluded.achievement,
		achieved = excluded.achieved,
		computed_at = excluded.computed_at,
		source = excluded.source
`

// UpsertResults writes the batch in one transaction with a prepared statement.
func (s *Store) UpsertResults(ctx context.Context, results []*achievement.Result) error {
	if len(results) == 0 {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertResult)
		if err != nil {
			return wrapErr("prepare upsert result", err)
		}
		defer stmt.Close()

		for _, res := range results {
			id := res.ID
			if id == "" {
				id = uuid.NewString()
			}
			_, err := stmt.ExecContext(ctx, id, res.StudentID, res.OutcomeID, res.Achievement, res.Achieved, res.ComputedAt, string(res.Source))
			if err != nil {
				return wrapErr(fmt.Sprintf("upsert result for student %s outcome %s", res.StudentID, res.OutcomeID), err)
			}
		}
		return nil
	})
}

func (s *Store) ListStudentResults(ctx context.Context, studentID shared.ID, outcomeIDs []shared.ID) ([]*achievement.Result, error) {
	out := make([]*achievement.Result, 0, len(outcomeIDs))
	if len(outcomeIDs) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_id, outcome_id, achievement, achieved, computed_at, source
		FROM achievement_results
		WHERE student_id = ? AND outcome_id IN (SELECT value FROM json_each(?))
		ORDER BY outcome_id
	`, studentID, idList(outcomeIDs))
	if err != nil {
		return nil, wrapErr("list student results", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			res    achievement.Result
			source string
		)
		if err := rows.Scan(&res.ID, &res.StudentID, &res.OutcomeID, &res.Achievement, &res.Achieved, &res.ComputedAt, &source); err != nil {
			return nil, wrapErr("scan result", err)
		}
		res.ComputedAt = res.ComputedAt.UTC()
		res.Source = achievement.Source(source)
		out = append(out, &res)
	}
	return out, wrapErr("list student results", rows.Err())
}
