package achievement

import (
	"github.com/loes-hub/outcome-engine/internal/domain/outcome"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
)

// Contribution is one (course, mapped outcome) term of a program attainment sum.
type Contribution struct {
	CourseID      shared.ID
	OutcomeID     shared.ID
	Credits       int
	Tier          outcome.ContributionTier
	TierWeight    float64
	AchievedCount int
	AssessedCount int
}

// ProgramAttainment accumulates credit- and tier-weighted cohort counts for
// one program outcome:
//
//	numerator   += credits × tier_weight × achieved
//	denominator += credits × tier_weight × assessed
//
// The zero value is not usable; construct with NewProgramAttainment.
type ProgramAttainment struct {
	weights       outcome.TierWeights
	numerator     float64
	denominator   float64
	contributions []Contribution
}

// NewProgramAttainment creates an empty accumulator.
func NewProgramAttainment(weights outcome.TierWeights) *ProgramAttainment {
	return &ProgramAttainment{weights: weights}
}

// Add folds one cohort result in. Non-contributing tiers and cohorts with no
// assessed students are ignored.
func (p *ProgramAttainment) Add(course *outcome.Course, tier outcome.ContributionTier, ca CohortAttainment) {
	if !tier.IsContributing() || ca.AssessedCount == 0 {
		return
	}

	w := tier.Weight(p.weights)
	t := float64(course.Credits)

	p.numerator += t * w * float64(ca.AchievedCount)
	p.denominator += t * w * float64(ca.AssessedCount)
	p.contributions = append(p.contributions, Contribution{
		CourseID:      course.ID,
		OutcomeID:     ca.OutcomeID,
		Credits:       course.Credits,
		Tier:          tier,
		TierWeight:    w,
		AchievedCount: ca.AchievedCount,
		AssessedCount: ca.AssessedCount,
	})
}

// Merge folds another accumulator in, for fan-out across courses.
func (p *ProgramAttainment) Merge(other *ProgramAttainment) {
	p.numerator += other.numerator
	p.denominator += other.denominator
	p.contributions = append(p.contributions, other.contributions...)
}

// Numerator returns the weighted achieved sum.
func (p *ProgramAttainment) Numerator() float64 { return p.numerator }

// Denominator returns the weighted assessed sum.
func (p *ProgramAttainment) Denominator() float64 { return p.denominator }

// Rate returns numerator/denominator, or 0 when nothing contributed.
func (p *ProgramAttainment) Rate() float64 {
	return shared.SafeDivide(p.numerator, p.denominator)
}

// Contributions returns the folded terms in insertion order.
func (p *ProgramAttainment) Contributions() []Contribution {
	out := make([]Contribution, len(p.contributions))
	copy(out, p.contributions)
	return out
}
