package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/loes-hub/outcome-engine/internal/domain/assessment"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ASSESSMENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AssessmentRepository implements assessment.Repository for PostgreSQL.
type AssessmentRepository struct {
	conn *Connection
}

// NewAssessmentRepository creates a new AssessmentRepository.
func NewAssessmentRepository(conn *Connection) *AssessmentRepository {
	return &AssessmentRepository{conn: conn}
}

var _ assessment.Repository = (*AssessmentRepository)(nil)

func toInt64s(ids []shared.ID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = id.Int64()
	}
	return out
}

const taggedQuestions = `SELECT question_id FROM question_outcomes WHERE outcome_id = ANY($1)`

// LoadSnapshot reads the whole snapshot in one repeatable-read transaction
// and one batch round trip.
func (r *AssessmentRepository) LoadSnapshot(ctx context.Context, courseID shared.ID, outcomeIDs []shared.ID) (*assessment.Snapshot, error) {
	var data assessment.SnapshotData
	ids := toInt64s(outcomeIDs)

	opts := TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err := r.conn.WithTx(ctx, opts, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		batch.Queue(`
			SELECT q.id, q.assessment_id, q.text, q.max_score, array_agg(qo.outcome_id ORDER BY qo.outcome_id)
			FROM questions q
			JOIN question_outcomes qo ON qo.question_id = q.id
			WHERE q.id IN (`+taggedQuestions+`)
			GROUP BY q.id
			ORDER BY q.id
		`, ids)
		batch.Queue(`
			SELECT id, course_id, code, title, weight FROM assessments
			WHERE id IN (SELECT assessment_id FROM questions WHERE id IN (`+taggedQuestions+`))
		`, ids)
		batch.Queue(`
			SELECT student_id, question_id, score FROM student_scores
			WHERE question_id IN (`+taggedQuestions+`)
		`, ids)
		batch.Queue(`
			SELECT DISTINCT s.student_id
			FROM student_scores s
			JOIN questions q ON q.id = s.question_id
			JOIN assessments a ON a.id = q.assessment_id
			WHERE a.course_id = $1
		`, courseID.Int64())

		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		rows, err := br.Query()
		if err != nil {
			return fmt.Errorf("query questions: %w", err)
		}
		for rows.Next() {
			var (
				q    assessment.Question
				tags []int64
			)
			if err := rows.Scan(&q.ID, &q.AssessmentID, &q.Text, &q.MaxScore, &tags); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan question: %w", err)
			}
			for _, t := range tags {
				q.OutcomeIDs = append(q.OutcomeIDs, shared.ID(t))
			}
			data.Questions = append(data.Questions, q)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = br.Query()
		if err != nil {
			return fmt.Errorf("query assessments: %w", err)
		}
		for rows.Next() {
			var a assessment.Assessment
			if err := rows.Scan(&a.ID, &a.CourseID, &a.Code, &a.Title, &a.Weight); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan assessment: %w", err)
			}
			data.Assessments = append(data.Assessments, a)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = br.Query()
		if err != nil {
			return fmt.Errorf("query scores: %w", err)
		}
		for rows.Next() {
			var sc assessment.Score
			if err := rows.Scan(&sc.StudentID, &sc.QuestionID, &sc.Value); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan score: %w", err)
			}
			data.Scores = append(data.Scores, sc)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = br.Query()
		if err != nil {
			return fmt.Errorf("query assessed students: %w", err)
		}
		for rows.Next() {
			var id shared.ID
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan student: %w", err)
			}
			data.AssessedStudents = append(data.AssessedStudents, id)
		}
		rows.Close()
		return rows.Err()
	})
	if err != nil {
		return nil, wrapErr("load snapshot", err)
	}

	return assessment.NewSnapshot(data), nil
}

// GetStudent returns a student by ID.
func (r *AssessmentRepository) GetStudent(ctx context.Context, id shared.ID) (*assessment.Student, error) {
	var (
		st     assessment.Student
		cohort string
	)
	err := r.conn.QueryRow(ctx, `
		SELECT id, student_number, name, cohort FROM students WHERE id = $1
	`, id).Scan(&st.ID, &st.StudentNumber, &st.Name, &cohort)
	if IsNoRows(err) {
		return nil, shared.ErrStudentNotFound
	}
	if err != nil {
		return nil, wrapErr("get student", err)
	}
	st.Cohort = shared.Cohort(cohort)
	return &st, nil
}

// ListStudents returns the students of a cohort, or all students when the cohort is empty.
func (r *AssessmentRepository) ListStudents(ctx context.Context, cohort shared.Cohort) ([]*assessment.Student, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, student_number, name, cohort FROM students
		WHERE $1 = '' OR cohort = $1
		ORDER BY id
	`, cohort.String())
	if err != nil {
		return nil, wrapErr("list students", err)
	}
	defer rows.Close()

	out := make([]*assessment.Student, 0)
	for rows.Next() {
		var (
			st assessment.Student
			c  string
		)
		if err := rows.Scan(&st.ID, &st.StudentNumber, &st.Name, &c); err != nil {
			return nil, fmt.Errorf("failed to scan student: %w", err)
		}
		st.Cohort = shared.Cohort(c)
		out = append(out, &st)
	}
	return out, wrapErr("list students", rows.Err())
}
