package outcome

import (
	"context"

	"github.com/loes-hub/outcome-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// These interfaces define the storage contract for the curriculum.
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository provides read access to programs, courses and outcomes.
type Repository interface {
	// ─────────────────────────────────────────────────────────────────────────
	// Programs & Courses
	// ─────────────────────────────────────────────────────────────────────────

	// GetProgram returns a program by ID.
	// Returns ErrProgramNotFound if it does not exist.
	GetProgram(ctx context.Context, id shared.ID) (*Program, error)

	// ListPrograms returns every program ordered by ID.
	ListPrograms(ctx context.Context) ([]*Program, error)

	// GetCourse returns a course by ID.
	// Returns ErrCourseNotFound if it does not exist.
	GetCourse(ctx context.Context, id shared.ID) (*Course, error)

	// ListCourses returns the courses of a program ordered by ID.
	ListCourses(ctx context.Context, programID shared.ID) ([]*Course, error)

	// ListCoursesWithOutcomes returns every course that has at least one outcome.
	ListCoursesWithOutcomes(ctx context.Context) ([]*Course, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Outcomes
	// ─────────────────────────────────────────────────────────────────────────

	// GetOutcome returns a course outcome by ID.
	// Returns ErrOutcomeNotFound if it does not exist.
	GetOutcome(ctx context.Context, id shared.ID) (*Outcome, error)

	// ListOutcomes returns the outcomes of a course ordered by ID.
	ListOutcomes(ctx context.Context, courseID shared.ID) ([]*Outcome, error)

	// GetProgramOutcome returns a program outcome by ID.
	// Returns ErrProgramOutcomeNotFound if it does not exist.
	GetProgramOutcome(ctx context.Context, id shared.ID) (*ProgramOutcome, error)

	// ListProgramOutcomes returns the program outcomes of a program ordered by ID.
	ListProgramOutcomes(ctx context.Context, programID shared.ID) ([]*ProgramOutcome, error)
}

// MappingRepository stores CLO↔PLO mappings. At most one mapping exists per
// (outcome, program outcome) pair.
type MappingRepository interface {
	// ListByProgramOutcome returns every mapping targeting the program outcome.
	ListByProgramOutcome(ctx context.Context, programOutcomeID shared.ID) ([]*Mapping, error)

	// ListByCourse returns every mapping whose outcome belongs to the course.
	ListByCourse(ctx context.Context, courseID shared.ID) ([]*Mapping, error)

	// Upsert inserts the mapping or replaces the existing one for the same pair.
	Upsert(ctx context.Context, m *Mapping) error

	// Delete removes the mapping for the pair.
	// Returns ErrMappingNotFound if there was none.
	Delete(ctx context.Context, outcomeID, programOutcomeID shared.ID) error
}
