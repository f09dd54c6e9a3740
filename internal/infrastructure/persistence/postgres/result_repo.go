package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/loes-hub/outcome-engine/internal/domain/achievement"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESULT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ResultRepository implements achievement.Repository for PostgreSQL.
type ResultRepository struct {
	conn *Connection
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(conn *Connection) *ResultRepository {
	return &ResultRepository{conn: conn}
}

var _ achievement.Repository = (*ResultRepository)(nil)

const upsertResult = `
	INSERT INTO achievement_results (id, student_id, outcome_id, achievement, achieved, computed_at, source)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (student_id, outcome_id) DO UPDATE SET
		id = EXCLUDED.id,
		achievement = EXCLUDED.achievement,
		achieved = EXCLUDED.achieved,
		computed_at = EXCLUDED.computed_at,
		source = EXCLUDED.source
`

// UpsertResults writes every result in one transaction. A failure rolls the
// whole batch back so a course is never half-written.
func (r *ResultRepository) UpsertResults(ctx context.Context, results []*achievement.Result) error {
	if len(results) == 0 {
		return nil
	}

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, res := range results {
			id := res.ID
			if id == "" {
				id = uuid.NewString()
			}
			batch.Queue(upsertResult,
				id,
				res.StudentID.Int64(),
				res.OutcomeID.Int64(),
				res.Achievement,
				res.Achieved,
				res.ComputedAt,
				string(res.Source),
			)
		}

		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		for _, res := range results {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("failed to upsert result for student %s outcome %s: %w", res.StudentID, res.OutcomeID, err)
			}
		}
		return nil
	})
	return wrapErr("upsert results", err)
}

// ListStudentResults returns the stored results of a student for the outcomes.
func (r *ResultRepository) ListStudentResults(ctx context.Context, studentID shared.ID, outcomeIDs []shared.ID) ([]*achievement.Result, error) {
	out := make([]*achievement.Result, 0, len(outcomeIDs))
	if len(outcomeIDs) == 0 {
		return out, nil
	}

	rows, err := r.conn.Query(ctx, `
		SELECT id, student_id, outcome_id, achievement, achieved, computed_at, source
		FROM achievement_results
		WHERE student_id = $1 AND outcome_id = ANY($2)
		ORDER BY outcome_id
	`, studentID.Int64(), toInt64s(outcomeIDs))
	if err != nil {
		return nil, wrapErr("list student results", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			res    achievement.Result
			id     uuid.UUID
			source string
		)
		if err := rows.Scan(&id, &res.StudentID, &res.OutcomeID, &res.Achievement, &res.Achieved, &res.ComputedAt, &source); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		res.ID = id.String()
		res.Source = achievement.Source(source)
		out = append(out, &res)
	}
	return out, wrapErr("list student results", rows.Err())
}
