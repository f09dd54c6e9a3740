package achievement

import (
	"testing"
	"time"

	"github.com/loes-hub/outcome-engine/internal/domain/assessment"
	"github.com/loes-hub/outcome-engine/internal/domain/outcome"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func singleQuestionSnapshot(score float64) *assessment.Snapshot {
	return assessment.NewSnapshot(assessment.SnapshotData{
		Assessments:      []assessment.Assessment{{ID: 1, CourseID: 1, Weight: 1.0}},
		Questions:        []assessment.Question{{ID: 10, AssessmentID: 1, MaxScore: 10, OutcomeIDs: []shared.ID{100}}},
		Scores:           []assessment.Score{{StudentID: 7, QuestionID: 10, Value: score}},
		AssessedStudents: []shared.ID{7},
	})
}

func TestCalculate_SingleQuestionScenario(t *testing.T) {
	c1 := &outcome.Outcome{ID: 100, Code: "C1", Threshold: 0.7}

	t.Run("8 of 10 is achieved", func(t *testing.T) {
		c := Calculate(singleQuestionSnapshot(8), 7, c1)
		assert.InDelta(t, 0.8, c.Achievement, 1e-12)
		assert.True(t, c.Achieved)
	})

	t.Run("6 of 10 is not achieved", func(t *testing.T) {
		c := Calculate(singleQuestionSnapshot(6), 7, c1)
		assert.InDelta(t, 0.6, c.Achievement, 1e-12)
		assert.False(t, c.Achieved)
	})

	t.Run("exactly at threshold is achieved", func(t *testing.T) {
		exact := &outcome.Outcome{ID: 100, Threshold: 0.5}
		c := Calculate(singleQuestionSnapshot(5), 7, exact)
		assert.Equal(t, 0.5, c.Achievement)
		assert.True(t, c.Achieved)
	})
}

func TestCalculate_NoData(t *testing.T) {
	o := &outcome.Outcome{ID: 555, Threshold: 0}

	t.Run("no tagged questions", func(t *testing.T) {
		c := Calculate(singleQuestionSnapshot(10), 7, o)
		assert.Equal(t, 0.0, c.Achievement)
		assert.False(t, c.Achieved)
		assert.Zero(t, c.Questions)
	})

	t.Run("zero weighted max", func(t *testing.T) {
		snap := assessment.NewSnapshot(assessment.SnapshotData{
			Assessments: []assessment.Assessment{{ID: 1, Weight: 0}},
			Questions:   []assessment.Question{{ID: 10, AssessmentID: 1, MaxScore: 10, OutcomeIDs: []shared.ID{555}}},
		})
		c := Calculate(snap, 7, o)
		assert.Equal(t, 0.0, c.Achievement)
		assert.False(t, c.Achieved)
	})
}

func TestCalculate_WeightedAcrossAssessments(t *testing.T) {
	snap := assessment.NewSnapshot(assessment.SnapshotData{
		Assessments: []assessment.Assessment{{ID: 1, Weight: 0.3}, {ID: 2, Weight: 0.7}},
		Questions: []assessment.Question{
			{ID: 10, AssessmentID: 1, MaxScore: 10, OutcomeIDs: []shared.ID{100}},
			{ID: 20, AssessmentID: 2, MaxScore: 20, OutcomeIDs: []shared.ID{100, 101}},
			{ID: 30, AssessmentID: 2, MaxScore: 5, OutcomeIDs: []shared.ID{100}},
			{ID: 40, AssessmentID: 99, MaxScore: 50, OutcomeIDs: []shared.ID{100}},
		},
		Scores: []assessment.Score{
			{StudentID: 7, QuestionID: 10, Value: 10},
			{StudentID: 7, QuestionID: 20, Value: 10},
			{StudentID: 7, QuestionID: 40, Value: 50},
		},
	})

	c := Calculate(snap, 7, &outcome.Outcome{ID: 100, Threshold: 0.7})

	// question 30 is unanswered and counts as zero; question 40 has no assessment
	wantScore := 10*0.3 + 10*0.7
	wantMax := 10*0.3 + 20*0.7 + 5*0.7
	assert.InDelta(t, wantScore, c.WeightedScore, 1e-12)
	assert.InDelta(t, wantMax, c.WeightedMax, 1e-12)
	assert.InDelta(t, wantScore/wantMax, c.Achievement, 1e-12)
	assert.Equal(t, 3, c.Questions)
	assert.False(t, c.Achieved)
}

func TestCohort(t *testing.T) {
	snap := assessment.NewSnapshot(assessment.SnapshotData{
		Assessments: []assessment.Assessment{{ID: 1, Weight: 1}},
		Questions:   []assessment.Question{{ID: 10, AssessmentID: 1, MaxScore: 10, OutcomeIDs: []shared.ID{100}}},
		Scores: []assessment.Score{
			{StudentID: 1, QuestionID: 10, Value: 9},
			{StudentID: 2, QuestionID: 10, Value: 7},
			{StudentID: 3, QuestionID: 10, Value: 2},
		},
		// student 4 sat another question of the course but not this one
		AssessedStudents: []shared.ID{3, 1, 2, 4},
	})

	ca := Cohort(snap, &outcome.Outcome{ID: 100, Threshold: 0.7})

	assert.Equal(t, 4, ca.AssessedCount)
	assert.Equal(t, 2, ca.AchievedCount)
	assert.Equal(t, 0.5, ca.ClassRate)
	require.Len(t, ca.Students, 4)
	assert.Equal(t, shared.ID(1), ca.Students[0].StudentID)
	assert.False(t, ca.Students[3].Achieved)
}

func TestCohort_NobodyAssessed(t *testing.T) {
	ca := Cohort(assessment.NewSnapshot(assessment.SnapshotData{}), &outcome.Outcome{ID: 1, Threshold: 0.7})
	assert.Equal(t, 0.0, ca.ClassRate)
	assert.Zero(t, ca.AssessedCount)
	assert.Empty(t, ca.Students)
}

func TestProgramAttainment_CreditAndTierWeighted(t *testing.T) {
	p := NewProgramAttainment(outcome.DefaultTierWeights())

	courseA := &outcome.Course{ID: 1, Credits: 3}
	courseB := &outcome.Course{ID: 2, Credits: 4}

	p.Add(courseA, outcome.TierMajor, CohortAttainment{OutcomeID: 10, AchievedCount: 8, AssessedCount: 10})
	p.Add(courseB, outcome.TierLow, CohortAttainment{OutcomeID: 20, AchievedCount: 2, AssessedCount: 5})

	wantNum := 3*1.0*8 + 4*0.33*2
	wantDen := 3*1.0*10 + 4*0.33*5
	assert.InDelta(t, wantNum, p.Numerator(), 1e-9)
	assert.InDelta(t, wantDen, p.Denominator(), 1e-9)
	assert.InDelta(t, 26.64/36.6, p.Rate(), 1e-9)
	assert.Len(t, p.Contributions(), 2)
}

func TestProgramAttainment_NoContributions(t *testing.T) {
	p := NewProgramAttainment(outcome.DefaultTierWeights())
	p.Add(&outcome.Course{ID: 1, Credits: 3}, outcome.TierNone, CohortAttainment{AchievedCount: 5, AssessedCount: 5})

	assert.Equal(t, 0.0, p.Rate())
	assert.Empty(t, p.Contributions())
}

func TestProgramAttainment_SkipsUnassessedCohorts(t *testing.T) {
	p := NewProgramAttainment(outcome.DefaultTierWeights())
	p.Add(&outcome.Course{ID: 1, Credits: 3}, outcome.TierMajor, CohortAttainment{OutcomeID: 10, AchievedCount: 1, AssessedCount: 2})
	p.Add(&outcome.Course{ID: 2, Credits: 4}, outcome.TierMajor, CohortAttainment{OutcomeID: 20})

	assert.InDelta(t, 0.5, p.Rate(), 1e-12)
	require.Len(t, p.Contributions(), 1)
	assert.Equal(t, shared.ID(1), p.Contributions()[0].CourseID)
}

func TestProgramAttainment_Merge(t *testing.T) {
	a := NewProgramAttainment(outcome.DefaultTierWeights())
	b := NewProgramAttainment(outcome.DefaultTierWeights())
	a.Add(&outcome.Course{ID: 1, Credits: 2}, outcome.TierNeutral, CohortAttainment{AchievedCount: 1, AssessedCount: 2})
	b.Add(&outcome.Course{ID: 2, Credits: 2}, outcome.TierNeutral, CohortAttainment{AchievedCount: 2, AssessedCount: 2})

	a.Merge(b)
	assert.InDelta(t, 0.75, a.Rate(), 1e-12)
	assert.Len(t, a.Contributions(), 2)
}

func TestNewResult(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("ICT", 7*3600))
	r := NewResult("id-1", Calculation{StudentID: 1, OutcomeID: 2, Achievement: 0.75, Achieved: true}, at, SourceCourseCalculation)

	assert.Equal(t, "id-1", r.ID)
	assert.Equal(t, time.UTC, r.ComputedAt.Location())
	assert.True(t, r.Achieved)
	assert.Equal(t, SourceCourseCalculation, r.Source)
}
