// Package assessment contains graded work: assessments, their questions,
// students and the raw scores students earned.
package assessment

import (
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
)

// Assessment is a graded component of a course (exam, project, quiz).
// Weights of one course are not required to sum to 1.
type Assessment struct {
	ID       shared.ID
	CourseID shared.ID
	Code     string
	Title    string
	Weight   float64
}

// Validate checks the assessment invariants.
func (a Assessment) Validate() error {
	if a.Weight < 0 {
		return shared.ErrInvalidWeight
	}
	return nil
}

// Question is one scored item of an assessment. It may be tagged with zero
// or more course outcomes.
type Question struct {
	ID           shared.ID
	AssessmentID shared.ID
	Text         string
	MaxScore     float64
	OutcomeIDs   []shared.ID
}

// Validate checks the question invariants.
func (q Question) Validate() error {
	if q.MaxScore < 0 {
		return shared.ErrInvalidMaxScore
	}
	return nil
}

// Tags reports whether the question is tagged with the outcome.
func (q Question) Tags(outcomeID shared.ID) bool {
	for _, id := range q.OutcomeIDs {
		if id == outcomeID {
			return true
		}
	}
	return false
}

// Student is an enrolled learner.
type Student struct {
	ID            shared.ID
	StudentNumber string
	Name          string
	Cohort        shared.Cohort
}

// Score is what one student earned on one question. The value is taken as
// given and is not checked against the question maximum.
type Score struct {
	StudentID  shared.ID
	QuestionID shared.ID
	Value      float64
}
