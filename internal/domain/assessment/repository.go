package assessment

import (
	"context"

	"github.com/loes-hub/outcome-engine/internal/domain/shared"
)

// Repository provides read access to graded work.
type Repository interface {
	// LoadSnapshot fetches, in one pass, every question tagged with any of
	// outcomeIDs (in any assessment), the owning assessments, every score on
	// those questions, and the students assessed in courseID.
	LoadSnapshot(ctx context.Context, courseID shared.ID, outcomeIDs []shared.ID) (*Snapshot, error)

	// GetStudent returns a student by ID.
	// Returns ErrStudentNotFound if it does not exist.
	GetStudent(ctx context.Context, id shared.ID) (*Student, error)

	// ListStudents returns students of a cohort ordered by ID; an empty cohort
	// means every student.
	ListStudents(ctx context.Context, cohort shared.Cohort) ([]*Student, error)
}
