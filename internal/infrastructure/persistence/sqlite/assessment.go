package sqlite

import (
	"context"
	"database/sql"

	"github.com/loes-hub/outcome-engine/internal/domain/assessment"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRADED WORK (assessment.Repository)
// ══════════════════════════════════════════════════════════════════════════════

const taggedQuestions = `SELECT question_id FROM question_outcomes WHERE outcome_id IN (SELECT value FROM json_each(?))`

// LoadSnapshot reads the snapshot inside one transaction so concurrent
// writers cannot interleave between the four reads.
func (s *Store) LoadSnapshot(ctx context.Context, courseID shared.ID, outcomeIDs []shared.ID) (*assessment.Snapshot, error) {
	var data assessment.SnapshotData
	ids := idList(outcomeIDs)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		questions, err := loadQuestions(ctx, tx, ids)
		if err != nil {
			return err
		}
		data.Questions = questions

		rows, err := tx.QueryContext(ctx, `
			SELECT id, course_id, code, title, weight FROM assessments
			WHERE id IN (SELECT assessment_id FROM questions WHERE id IN (`+taggedQuestions+`))
			ORDER BY id
		`, ids)
		if err != nil {
			return wrapErr("query assessments", err)
		}
		for rows.Next() {
			var a assessment.Assessment
			if err := rows.Scan(&a.ID, &a.CourseID, &a.Code, &a.Title, &a.Weight); err != nil {
				rows.Close()
				return wrapErr("scan assessment", err)
			}
			data.Assessments = append(data.Assessments, a)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return wrapErr("query assessments", err)
		}

		rows, err = tx.QueryContext(ctx, `
			SELECT student_id, question_id, score FROM student_scores
			WHERE question_id IN (`+taggedQuestions+`)
		`, ids)
		if err != nil {
			return wrapErr("query scores", err)
		}
		for rows.Next() {
			var sc assessment.Score
			if err := rows.Scan(&sc.StudentID, &sc.QuestionID, &sc.Value); err != nil {
				rows.Close()
				return wrapErr("scan score", err)
			}
			data.Scores = append(data.Scores, sc)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return wrapErr("query scores", err)
		}

		rows, err = tx.QueryContext(ctx, `
			SELECT DISTINCT s.student_id
			FROM student_scores s
			JOIN questions q ON q.id = s.question_id
			JOIN assessments a ON a.id = q.assessment_id
			WHERE a.course_id = ?
			ORDER BY s.student_id
		`, courseID)
		if err != nil {
			return wrapErr("query assessed students", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id shared.ID
			if err := rows.Scan(&id); err != nil {
				return wrapErr("scan student", err)
			}
			data.AssessedStudents = append(data.AssessedStudents, id)
		}
		return wrapErr("query assessed students", rows.Err())
	})
	if err != nil {
		return nil, err
	}

	return assessment.NewSnapshot(data), nil
}

// loadQuestions returns every question tagged with any of ids, carrying all
// of its tags. Rows arrive one per (question, tag) pair.
func loadQuestions(ctx context.Context, tx *sql.Tx, ids string) ([]assessment.Question, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT q.id, q.assessment_id, q.text, q.max_score, qo.outcome_id
		FROM questions q
		JOIN question_outcomes qo ON qo.question_id = q.id
		WHERE q.id IN (`+taggedQuestions+`)
		ORDER BY q.id, qo.outcome_id
	`, ids)
	if err != nil {
		return nil, wrapErr("query questions", err)
	}
	defer rows.Close()

	var out []assessment.Question
	for rows.Next() {
		var (
			q   assessment.Question
			tag shared.ID
		)
		if err := rows.Scan(&q.ID, &q.AssessmentID, &q.Text, &q.MaxScore, &tag); err != nil {
			return nil, wrapErr("scan question", err)
		}
		if n := len(out); n > 0 && out[n-1].ID == q.ID {
			out[n-1].OutcomeIDs = append(out[n-1].OutcomeIDs, tag)
			continue
		}
		q.OutcomeIDs = []shared.ID{tag}
		out = append(out, q)
	}
	return out, wrapErr("query questions", rows.Err())
}

func (s *Store) GetStudent(ctx context.Context, id shared.ID) (*assessment.Student, error) {
	var (
		st     assessment.Student
		cohort string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, student_number, name, cohort FROM students WHERE id = ?`, id).
		Scan(&st.ID, &st.StudentNumber, &st.Name, &cohort)
	if err != nil {
		return nil, wrapNotFound("get student", err, shared.ErrStudentNotFound)
	}
	st.Cohort = shared.Cohort(cohort)
	return &st, nil
}

func (s *Store) ListStudents(ctx context.Context, cohort shared.Cohort) ([]*assessment.Student, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_number, name, cohort FROM students
		WHERE ?1 = '' OR cohort = ?1
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
			return nil, wrapErr("scan student", err)
		}
		st.Cohort = shared.Cohort(c)
		out = append(out, &st)
	}
	return out, wrapErr("list students", rows.Err())
}
