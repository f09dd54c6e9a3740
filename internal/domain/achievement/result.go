package achievement

import (
	"context"
	"time"

	"github.com/loes-hub/outcome-engine/internal/domain/shared"
)

// Source tags where a stored result came from.
type Source string

const (
	SourceCourseCalculation  Source = "course_calculation"
	SourceScheduledRecompute Source = "scheduled_recompute"
)

// Result is the persisted achievement of one student on one outcome.
// There is at most one per (StudentID, OutcomeID); each calculation
// overwrites it wholesale.
type Result struct {
	ID          string
	StudentID   shared.ID
	OutcomeID   shared.ID
	Achievement float64
	Achieved    bool
	ComputedAt  time.Time
	Source      Source
}

// NewResult converts a calculation into a storable result.
func NewResult(id string, c Calculation, computedAt time.Time, source Source) *Result {
	return &Result{
		ID:          id,
		StudentID:   c.StudentID,
		OutcomeID:   c.OutcomeID,
		Achievement: c.Achievement,
		Achieved:    c.Achieved,
		ComputedAt:  computedAt.UTC(),
		Source:      source,
	}
}

// Repository stores achievement results.
type Repository interface {
	// UpsertResults writes every result in one batch, replacing any existing
	// row for the same (student, outcome).
	UpsertResults(ctx context.Context, results []*Result) error

	// ListStudentResults returns the student's stored results for the given
	// outcomes. Outcomes without a result are simply absent.
	ListStudentResults(ctx context.Context, studentID shared.ID, outcomeIDs []shared.ID) ([]*Result, error)
}
