package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/loes-hub/outcome-engine/internal/domain/achievement"
	"github.com/loes-hub/outcome-engine/internal/domain/bloom"
	"github.com/loes-hub/outcome-engine/internal/domain/outcome"
	"github.com/loes-hub/outcome-engine/internal/domain/prerequisite"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSample(t *testing.T) {
	ctx := context.Background()
	s, err := Sample()
	require.NoError(t, err)

	courses, err := s.ListCourses(ctx, 1)
	require.NoError(t, err)
	require.Len(t, courses, 3)
	assert.Equal(t, "TOUR101", courses[0].Code)

	withOutcomes, err := s.ListCoursesWithOutcomes(ctx)
	require.NoError(t, err)
	assert.Len(t, withOutcomes, 2)

	o, err := s.GetOutcome(ctx, 202)
	require.NoError(t, err)
	assert.Equal(t, bloom.Evaluate, o.Level)
	assert.True(t, o.LevelRecognized)
	assert.Equal(t, 0.6, o.Threshold)

	o, err = s.GetOutcome(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, outcome.DefaultThreshold, o.Threshold)

	rule, err := s.GetRule(ctx, 2)
	require.NoError(t, err)
	cond, ok := rule.Condition.(prerequisite.OutcomeAchievementRatio)
	require.True(t, ok)
	assert.Equal(t, []shared.ID{101, 102}, cond.RequiredOutcomeIDs)
	assert.Equal(t, 0.5, cond.Ratio(0.66))
}

func TestLoadSnapshot(t *testing.T) {
	ctx := context.Background()
	s, err := Sample()
	require.NoError(t, err)

	snap, err := s.LoadSnapshot(ctx, 10, []shared.ID{101, 102})
	require.NoError(t, err)

	assert.Equal(t, []shared.ID{1, 2}, snap.AssessedStudents())
	require.Len(t, snap.QuestionsFor(101), 2)
	require.Len(t, snap.QuestionsFor(102), 1)

	v, ok := snap.Score(1, 121)
	assert.True(t, ok)
	assert.Equal(t, 9.0, v)

	_, ok = snap.Score(1, 211)
	assert.False(t, ok, "scores on untagged questions are not loaded")

	a, ok := snap.Assessment(12)
	require.True(t, ok)
	assert.Equal(t, 0.6, a.Weight)
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.GetCourse(ctx, 99)
	assert.ErrorIs(t, err, shared.ErrCourseNotFound)
	assert.True(t, shared.IsNotFound(err))

	_, err = s.GetProgramOutcome(ctx, 99)
	assert.ErrorIs(t, err, shared.ErrProgramOutcomeNotFound)

	err = s.Delete(ctx, 1, 2)
	assert.ErrorIs(t, err, shared.ErrMappingNotFound)
}

func TestMappings(t *testing.T) {
	ctx := context.Background()
	s, err := Sample()
	require.NoError(t, err)

	byCourse, err := s.ListByCourse(ctx, 20)
	require.NoError(t, err)
	require.Len(t, byCourse, 2)
	assert.Equal(t, outcome.SourceInferred, byCourse[1].Source)

	require.NoError(t, s.Upsert(ctx, &outcome.Mapping{OutcomeID: 202, ProgramOutcomeID: 1001, Tier: outcome.TierLow, Source: outcome.SourceInferred}))
	byPLO, err := s.ListByProgramOutcome(ctx, 1001)
	require.NoError(t, err)
	require.Len(t, byPLO, 2)
	assert.Equal(t, outcome.TierLow, byPLO[1].Tier)

	err = s.Upsert(ctx, &outcome.Mapping{OutcomeID: 202, ProgramOutcomeID: 1001, Tier: "Z", Source: outcome.SourceInferred})
	assert.ErrorIs(t, err, shared.ErrInvalidTier)
}

func TestResults_UpsertByPair(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertResults(ctx, []*achievement.Result{
		{ID: "a", StudentID: 1, OutcomeID: 101, Achievement: 0.5, ComputedAt: now},
		{ID: "b", StudentID: 1, OutcomeID: 102, Achievement: 0.9, Achieved: true, ComputedAt: now},
	}))
	require.NoError(t, s.UpsertResults(ctx, []*achievement.Result{
		{ID: "c", StudentID: 1, OutcomeID: 101, Achievement: 0.8, Achieved: true, ComputedAt: now},
	}))

	assert.Equal(t, 2, s.ResultCount())

	got, err := s.ListStudentResults(ctx, 1, []shared.ID{101, 101, 103})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)
	assert.True(t, got[0].Achieved)
}

func TestRules(t *testing.T) {
	ctx := context.Background()
	s := New()

	r := &prerequisite.Rule{CourseID: 2, PrereqCourseID: 1, Type: prerequisite.TypeStrict, Condition: prerequisite.PassCourse{}}
	require.NoError(t, s.SaveRule(ctx, r))
	assert.Equal(t, shared.ID(1), r.ID)

	bad := &prerequisite.Rule{CourseID: 2, PrereqCourseID: 2, Type: prerequisite.TypeStrict}
	assert.ErrorIs(t, s.SaveRule(ctx, bad), shared.ErrSelfPrerequisite)

	rules, err := s.ListRules(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestLoadFixture_DefaultThreshold(t *testing.T) {
	ctx := context.Background()
	doc := "outcomes:\n  - {id: 1, course_id: 1}\n  - {id: 2, course_id: 1, threshold: 0.5}\n"

	s, err := LoadFixture(strings.NewReader(doc), ApplyOptions{DefaultThreshold: 0.8})
	require.NoError(t, err)

	o, err := s.GetOutcome(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.8, o.Threshold)

	o, err = s.GetOutcome(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 0.5, o.Threshold, "explicit threshold wins")

	s, err = LoadFixture(strings.NewReader(doc))
	require.NoError(t, err)
	o, err = s.GetOutcome(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, outcome.DefaultThreshold, o.Threshold)
}

func TestLoadFixture_Errors(t *testing.T) {
	_, err := LoadFixture(strings.NewReader("outcomes:\n  - {id: 1, course_id: 1, threshold: 1.5}\n"))
	assert.ErrorIs(t, err, shared.ErrInvalidThreshold)

	_, err = LoadFixture(strings.NewReader("mappings:\n  - {outcome_id: 1, program_outcome_id: 2, tier: Q}\n"))
	assert.ErrorIs(t, err, shared.ErrInvalidTier)

	_, err = LoadFixture(strings.NewReader("assessments:\n  - {id: 1, course_id: 1, weight: -1}\n"))
	assert.ErrorIs(t, err, shared.ErrInvalidWeight)

	s, err := LoadFixture(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, 0, s.ResultCount())
}
