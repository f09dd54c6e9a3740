// Package achievement computes how far students and cohorts reached their
// learning outcomes, and how cohort results roll up into program attainment.
//
// All functions are pure: they read an assessment.Snapshot and return values.
// Persisting results is the caller's job.
package achievement

import (
	"github.com/loes-hub/outcome-engine/internal/domain/assessment"
	"github.com/loes-hub/outcome-engine/internal/domain/outcome"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT ACHIEVEMENT
// ══════════════════════════════════════════════════════════════════════════════

// Calculation is the achievement of one student on one outcome.
type Calculation struct {
	StudentID shared.ID
	OutcomeID shared.ID

	// Achievement is WeightedScore / WeightedMax, or 0 when WeightedMax is 0.
	Achievement float64
	Achieved    bool

	WeightedScore float64
	WeightedMax   float64

	// Questions is the number of tagged questions that were counted.
	Questions int
}

// Calculate aggregates the student's weighted scores over every question
// tagged with the outcome. A missing score counts as 0; a question whose
// assessment is not in the snapshot is skipped.
func Calculate(snap *assessment.Snapshot, studentID shared.ID, o *outcome.Outcome) Calculation {
	c := Calculation{StudentID: studentID, OutcomeID: o.ID}

	for _, q := range snap.QuestionsFor(o.ID) {
		a, ok := snap.Assessment(q.AssessmentID)
		if !ok {
			continue
		}
		if score, ok := snap.Score(studentID, q.ID); ok {
			c.WeightedScore += score * a.Weight
		}
		c.WeightedMax += q.MaxScore * a.Weight
		c.Questions++
	}

	if c.WeightedMax > 0 {
		c.Achievement = c.WeightedScore / c.WeightedMax
		c.Achieved = c.Achievement >= o.Threshold
	}

	return c
}

// ══════════════════════════════════════════════════════════════════════════════
// COHORT ATTAINMENT
// ══════════════════════════════════════════════════════════════════════════════

// CohortAttainment is the class-level result for one outcome.
type CohortAttainment struct {
	OutcomeID     shared.ID
	AchievedCount int
	AssessedCount int

	// ClassRate is AchievedCount / AssessedCount, or 0 with nobody assessed.
	ClassRate float64

	// Students holds one calculation per assessed student, ordered by student ID.
	Students []Calculation
}

// Cohort runs Calculate over every assessed student in the snapshot.
func Cohort(snap *assessment.Snapshot, o *outcome.Outcome) CohortAttainment {
	students := snap.AssessedStudents()
	ca := CohortAttainment{
		OutcomeID:     o.ID,
		AssessedCount: len(students),
		Students:      make([]Calculation, 0, len(students)),
	}

	for _, sid := range students {
		c := Calculate(snap, sid, o)
		if c.Achieved {
			ca.AchievedCount++
		}
		ca.Students = append(ca.Students, c)
	}

	ca.ClassRate = shared.SafeDivide(float64(ca.AchievedCount), float64(ca.AssessedCount))
	return ca
}
