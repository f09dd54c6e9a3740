package prerequisite

import (
	"context"

	"github.com/loes-hub/outcome-engine/internal/domain/shared"
)

// Rule declares that CourseID requires PrereqCourseID under Condition.
type Rule struct {
	ID             shared.ID
	CourseID       shared.ID
	PrereqCourseID shared.ID
	Type           Type
	Condition      Condition

	// EffectiveYear is the curriculum version year the rule belongs to; 0 means any.
	EffectiveYear int
}

// Validate checks the rule invariants.
func (r *Rule) Validate() error {
	if !r.CourseID.IsValid() || !r.PrereqCourseID.IsValid() {
		return shared.NewDomainError("prerequisite", "Validate", shared.ErrInvalidID, "rule requires course and prerequisite course IDs")
	}
	if r.CourseID == r.PrereqCourseID {
		return shared.ErrSelfPrerequisite
	}
	if !r.Type.IsValid() {
		return shared.ErrInvalidRuleType
	}
	if c, ok := r.Condition.(OutcomeAchievementRatio); ok && c.RequiredRatio != nil {
		if !shared.Ratio(*c.RequiredRatio).IsValid() {
			return shared.ErrInvalidRatio
		}
	}
	return nil
}

// AppliesTo reports whether the rule is in force for the curriculum year
// (0 on either side matches everything).
func (r *Rule) AppliesTo(year int) bool {
	return year == 0 || r.EffectiveYear == 0 || r.EffectiveYear == year
}

// Repository stores prerequisite rules.
type Repository interface {
	// GetRule returns a rule by ID.
	// Returns ErrRuleNotFound if it does not exist.
	GetRule(ctx context.Context, id shared.ID) (*Rule, error)

	// ListRules returns the rules declared for a course ordered by ID.
	ListRules(ctx context.Context, courseID shared.ID) ([]*Rule, error)

	// SaveRule inserts the rule (ID zero) or updates it, setting the ID.
	SaveRule(ctx context.Context, r *Rule) error
}
